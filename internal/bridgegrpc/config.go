package bridgegrpc

import "time"

// Config controls the bridge gRPC server/client setup.
type Config struct {
	SocketPath        string
	KeepaliveInterval time.Duration
	KeepaliveMisses   int
}
