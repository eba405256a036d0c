package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/termlink/internal/livetransport"
	"pkt.systems/termlink/internal/simtransport"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	Transport     TransportConfig `mapstructure:"transport" yaml:"transport"`
	Session       SessionConfig   `mapstructure:"session" yaml:"session"`
	HTTP          HTTPConfig      `mapstructure:"http" yaml:"http"`
	SSH           SSHConfig       `mapstructure:"ssh" yaml:"ssh"`
	Bridge        BridgeConfig    `mapstructure:"bridge" yaml:"bridge"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Transport modes.
const (
	TransportSimulated = "simulated"
	TransportLive      = "live"
)

// TransportConfig selects and tunes the backend transport.
type TransportConfig struct {
	Mode       string          `mapstructure:"mode" yaml:"mode"`
	SocketPath string          `mapstructure:"socket_path" yaml:"socket_path"`
	Simulated  SimulatedConfig `mapstructure:"simulated" yaml:"simulated"`
}

// SimulatedConfig controls the simulated backend timing.
type SimulatedConfig struct {
	OutputDelayMS int `mapstructure:"output_delay_ms" yaml:"output_delay_ms"`
	StartDelayMS  int `mapstructure:"start_delay_ms" yaml:"start_delay_ms"`
}

// SessionConfig holds defaults applied to new sessions.
type SessionConfig struct {
	DefaultWorkingDir string `mapstructure:"default_working_dir" yaml:"default_working_dir"`
	Credential        string `mapstructure:"credential" yaml:"credential"`
}

// HTTPConfig configures the websocket terminal surface.
type HTTPConfig struct {
	Addr           string `mapstructure:"addr" yaml:"addr"`
	ReadLimitBytes int64  `mapstructure:"read_limit_bytes" yaml:"read_limit_bytes"`
}

// SSHConfig configures the SSH terminal surface.
type SSHConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr               string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath        string `mapstructure:"host_key_path" yaml:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path" yaml:"authorized_keys_path"`
	TOTPSecret         string `mapstructure:"totp_secret" yaml:"totp_secret"`
}

// BridgeConfig configures the host bridge served by `termlink bridge`.
type BridgeConfig struct {
	SocketPath               string   `mapstructure:"socket_path" yaml:"socket_path"`
	Shell                    string   `mapstructure:"shell" yaml:"shell"`
	Env                      []string `mapstructure:"env" yaml:"env"`
	KeepaliveIntervalSeconds int      `mapstructure:"keepalive_interval_seconds" yaml:"keepalive_interval_seconds"`
	KeepaliveMisses          int      `mapstructure:"keepalive_misses" yaml:"keepalive_misses"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	socketPath := filepath.Join(home, ".termlink", "bridge.sock")
	if _, err := os.Stat(filepath.Dir(livetransport.DefaultSocketPath)); err == nil {
		socketPath = livetransport.DefaultSocketPath
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Transport: TransportConfig{
			Mode:       TransportSimulated,
			SocketPath: socketPath,
			Simulated: SimulatedConfig{
				OutputDelayMS: int(simtransport.DefaultOutputDelay.Milliseconds()),
				StartDelayMS:  int(simtransport.DefaultStartDelay.Milliseconds()),
			},
		},
		Session: SessionConfig{
			DefaultWorkingDir: home,
			Credential:        "",
		},
		HTTP: HTTPConfig{
			Addr:           ":27580",
			ReadLimitBytes: 64 * 1024,
		},
		SSH: SSHConfig{
			Enabled:            false,
			Addr:               ":27522",
			HostKeyPath:        filepath.Join(home, ".termlink", "ssh_host_key"),
			AuthorizedKeysPath: filepath.Join(home, ".ssh", "authorized_keys"),
			TOTPSecret:         "",
		},
		Bridge: BridgeConfig{
			SocketPath:               socketPath,
			Shell:                    "sh",
			Env:                      []string{},
			KeepaliveIntervalSeconds: 0,
			KeepaliveMisses:          3,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".termlink", "config.yaml"), nil
}
