package appconfig

import "testing"

func TestDefaultConfigUsesSimulatedTransport(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Transport.Mode != TransportSimulated {
		t.Fatalf("expected simulated transport by default, got %q", cfg.Transport.Mode)
	}
	if cfg.Transport.Simulated.OutputDelayMS != 500 || cfg.Transport.Simulated.StartDelayMS != 1000 {
		t.Fatalf("unexpected simulated delays: %+v", cfg.Transport.Simulated)
	}
	if cfg.SSH.Enabled {
		t.Fatalf("expected ssh to default disabled")
	}
	if cfg.ConfigVersion != CurrentConfigVersion {
		t.Fatalf("expected config version %d, got %d", CurrentConfigVersion, cfg.ConfigVersion)
	}
}
