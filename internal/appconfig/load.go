package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("transport.mode", cfg.Transport.Mode)
	v.SetDefault("transport.socket_path", cfg.Transport.SocketPath)
	v.SetDefault("transport.simulated.output_delay_ms", cfg.Transport.Simulated.OutputDelayMS)
	v.SetDefault("transport.simulated.start_delay_ms", cfg.Transport.Simulated.StartDelayMS)
	v.SetDefault("session.default_working_dir", cfg.Session.DefaultWorkingDir)
	v.SetDefault("session.credential", cfg.Session.Credential)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.read_limit_bytes", cfg.HTTP.ReadLimitBytes)
	v.SetDefault("ssh.enabled", cfg.SSH.Enabled)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.host_key_path", cfg.SSH.HostKeyPath)
	v.SetDefault("ssh.authorized_keys_path", cfg.SSH.AuthorizedKeysPath)
	v.SetDefault("ssh.totp_secret", cfg.SSH.TOTPSecret)
	v.SetDefault("bridge.socket_path", cfg.Bridge.SocketPath)
	v.SetDefault("bridge.shell", cfg.Bridge.Shell)
	v.SetDefault("bridge.env", cfg.Bridge.Env)
	v.SetDefault("bridge.keepalive_interval_seconds", cfg.Bridge.KeepaliveIntervalSeconds)
	v.SetDefault("bridge.keepalive_misses", cfg.Bridge.KeepaliveMisses)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch strings.TrimSpace(cfg.Transport.Mode) {
	case TransportSimulated:
	case TransportLive:
		if strings.TrimSpace(cfg.Transport.SocketPath) == "" {
			return fmt.Errorf("transport.socket_path is required for transport.mode %q", TransportLive)
		}
	default:
		return fmt.Errorf("unsupported transport.mode %q", cfg.Transport.Mode)
	}
	if cfg.Transport.Simulated.OutputDelayMS < 0 || cfg.Transport.Simulated.StartDelayMS < 0 {
		return fmt.Errorf("transport.simulated delays must not be negative")
	}
	if cfg.HTTP.ReadLimitBytes < 0 {
		return fmt.Errorf("http.read_limit_bytes must not be negative")
	}
	if cfg.SSH.Enabled && strings.TrimSpace(cfg.SSH.AuthorizedKeysPath) == "" {
		return fmt.Errorf("ssh.authorized_keys_path is required when ssh.enabled is true")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Transport.SocketPath = expandEnv(cfg.Transport.SocketPath)
	cfg.Session.DefaultWorkingDir = expandEnv(cfg.Session.DefaultWorkingDir)
	cfg.Session.Credential = expandEnv(cfg.Session.Credential)
	cfg.SSH.HostKeyPath = expandEnv(cfg.SSH.HostKeyPath)
	cfg.SSH.AuthorizedKeysPath = expandEnv(cfg.SSH.AuthorizedKeysPath)
	cfg.SSH.TOTPSecret = expandEnv(cfg.SSH.TOTPSecret)
	cfg.Bridge.SocketPath = expandEnv(cfg.Bridge.SocketPath)
	cfg.Bridge.Shell = expandEnv(cfg.Bridge.Shell)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
