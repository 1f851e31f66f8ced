package config

import "testing"

func TestFromEnvOverridesDt(t *testing.T) {
	t.Setenv("CTL_DT", "0.02")
	t.Setenv("CTL_MAX_ITER", "1000")

	cfg := FromEnv()
	if cfg.ControlSystem.Dt != 0.02 {
		t.Fatalf("expected Dt 0.02, got %v", cfg.ControlSystem.Dt)
	}
	if cfg.ControlSystem.MaxIter != 1000 {
		t.Fatalf("expected MaxIter 1000, got %v", cfg.ControlSystem.MaxIter)
	}
}

func TestApplyOptionsOverrideDefaults(t *testing.T) {
	cfg := Apply(Default(),
		WithDt(0.05),
		WithMaxIter(50),
		WithTelemetryAddr(":9999"),
		WithParamStorePath("/tmp/params.toml"),
	)
	if cfg.ControlSystem.Dt != 0.05 {
		t.Fatalf("expected Dt 0.05, got %v", cfg.ControlSystem.Dt)
	}
	if cfg.ControlSystem.MaxIter != 50 {
		t.Fatalf("expected MaxIter 50, got %v", cfg.ControlSystem.MaxIter)
	}
	if cfg.Telemetry.ListenAddr != ":9999" {
		t.Fatalf("expected listen addr :9999, got %v", cfg.Telemetry.ListenAddr)
	}
	if cfg.ParamStorePath != "/tmp/params.toml" {
		t.Fatalf("expected overridden param store path, got %v", cfg.ParamStorePath)
	}
}

func TestIgnoredOptionsLeaveDefaultsUntouched(t *testing.T) {
	cfg := Apply(Default(), WithDt(-1), WithTelemetryChannelSize(0))
	def := Default()
	if cfg.ControlSystem.Dt != def.ControlSystem.Dt {
		t.Fatalf("non-positive Dt should be ignored, got %v", cfg.ControlSystem.Dt)
	}
	if cfg.Telemetry.ChannelSize != def.Telemetry.ChannelSize {
		t.Fatalf("non-positive channel size should be ignored, got %v", cfg.Telemetry.ChannelSize)
	}
}
