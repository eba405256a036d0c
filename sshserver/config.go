package sshserver

// Config defines SSH server settings.
type Config struct {
	Addr               string
	HostKeyPath        string
	AuthorizedKeysPath string
	// TOTPSecret enables a keyboard-interactive second factor when set.
	TOTPSecret string
}
