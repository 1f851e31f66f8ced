// Package config centralizes runtime configuration for the control runtime:
// step timing, telemetry addressing, and the parameter-store path, layered
// as defaults, then environment overrides, then explicit functional options.
package config

import (
	"os"
	"strconv"
	"strings"
)

// ControlSystemParameters governs the step driver (C4): the simulated step
// size and the iteration ceiling.
type ControlSystemParameters struct {
	Dt      float64
	MaxIter uint64
}

// TelemetrySettings addresses the telemetry control plane (C7) and the
// per-entry channel sizing used when registering signals with the
// telemetry bus (C6).
type TelemetrySettings struct {
	ListenAddr   string
	ChannelSize  int
	OTLPEndpoint string
	ServiceName  string
}

// Settings is the control runtime configuration tree.
type Settings struct {
	ControlSystem ControlSystemParameters
	Telemetry     TelemetrySettings
	ParamStorePath string
}

// Default returns the default control runtime configuration.
func Default() Settings {
	return Settings{
		ControlSystem: ControlSystemParameters{
			Dt:      0.01,
			MaxIter: 0,
		},
		Telemetry: TelemetrySettings{
			ListenAddr:   ":8090",
			ChannelSize:  64,
			OTLPEndpoint: "",
			ServiceName:  "controlrunner",
		},
		ParamStorePath: "params.toml",
	}
}

// FromEnv loads configuration values from environment variables, overriding
// defaults.
func FromEnv() Settings {
	cfg := Default()

	if v := strings.TrimSpace(os.Getenv("CTL_DT")); v != "" {
		if dt, err := strconv.ParseFloat(v, 64); err == nil && dt > 0 {
			cfg.ControlSystem.Dt = dt
		}
	}
	if v := strings.TrimSpace(os.Getenv("CTL_MAX_ITER")); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.ControlSystem.MaxIter = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CTL_TELEMETRY_ADDR")); v != "" {
		cfg.Telemetry.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("CTL_TELEMETRY_CHANNEL_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Telemetry.ChannelSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CTL_PARAM_STORE_PATH")); v != "" {
		cfg.ParamStorePath = v
	}
	if v := strings.TrimSpace(os.Getenv("CTL_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("CTL_SERVICE_NAME")); v != "" {
		cfg.Telemetry.ServiceName = v
	}

	return cfg
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of base.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithDt overrides the step size, in seconds of simulated time.
func WithDt(dt float64) Option {
	return func(s *Settings) {
		if dt > 0 {
			s.ControlSystem.Dt = dt
		}
	}
}

// WithMaxIter overrides the iteration ceiling. Zero means unbounded.
func WithMaxIter(n uint64) Option {
	return func(s *Settings) { s.ControlSystem.MaxIter = n }
}

// WithTelemetryAddr overrides the telemetry control-plane listen address.
func WithTelemetryAddr(addr string) Option {
	addr = strings.TrimSpace(addr)
	return func(s *Settings) {
		if addr != "" {
			s.Telemetry.ListenAddr = addr
		}
	}
}

// WithTelemetryChannelSize overrides the per-entry telemetry channel
// capacity.
func WithTelemetryChannelSize(n int) Option {
	return func(s *Settings) {
		if n > 0 {
			s.Telemetry.ChannelSize = n
		}
	}
}

// WithOTLPEndpoint overrides the OTLP metrics exporter endpoint. Empty
// disables export and keeps the noop meter provider.
func WithOTLPEndpoint(endpoint string) Option {
	endpoint = strings.TrimSpace(endpoint)
	return func(s *Settings) { s.Telemetry.OTLPEndpoint = endpoint }
}

// WithServiceName overrides the service name attached to exported metrics.
func WithServiceName(name string) Option {
	name = strings.TrimSpace(name)
	return func(s *Settings) {
		if name != "" {
			s.Telemetry.ServiceName = name
		}
	}
}

// WithParamStorePath overrides the parameter-store file path.
func WithParamStorePath(path string) Option {
	path = strings.TrimSpace(path)
	return func(s *Settings) {
		if path != "" {
			s.ParamStorePath = path
		}
	}
}
