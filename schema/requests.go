package schema

// CreateSessionRequest describes a new terminal session.
type CreateSessionRequest struct {
	// Credential is passed through to the backend opaquely.
	Credential string
	// WorkingDirectory defaults to ServiceConfig.DefaultWorkingDirectory when empty.
	WorkingDirectory string
}
