package core

import (
	"time"

	"pkt.systems/pslog"
)

// ServiceDeps captures dependencies for the core service.
type ServiceDeps struct {
	// Transport is required; the host picks the simulated or live variant once.
	Transport Transport
	// Registry defaults to a fresh registry owned by the service.
	Registry  *Registry
	EventSink EventSink
	Logger    pslog.Logger
	Clock     func() time.Time
}
