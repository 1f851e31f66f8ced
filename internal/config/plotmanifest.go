package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlotSpec names one graph signal that should be bridged into the
// telemetry bus via a C9 plotter adapter, and the shape of its value.
type PlotSpec struct {
	Signal string `yaml:"signal"`
	// Kind is "float64" or "vector3"; anything else fails validation.
	Kind string `yaml:"kind"`
}

// PlotManifest is the declarative list of signals an application wants
// streamed to telemetry clients, loaded from a YAML file so an operator can
// add or remove plotted signals without recompiling the binary.
type PlotManifest struct {
	Plots []PlotSpec `yaml:"plots"`
}

// LoadPlotManifest reads and parses a YAML plot manifest at path. A missing
// file is not an error: it returns an empty manifest so the caller can fall
// back to its own built-in defaults.
func LoadPlotManifest(path string) (PlotManifest, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return PlotManifest{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return PlotManifest{}, nil
		}
		return PlotManifest{}, fmt.Errorf("read plot manifest: %w", err)
	}

	var manifest PlotManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return PlotManifest{}, fmt.Errorf("unmarshal plot manifest: %w", err)
	}
	for i, p := range manifest.Plots {
		if strings.TrimSpace(p.Signal) == "" {
			return PlotManifest{}, fmt.Errorf("plot manifest entry %d: signal name must not be empty", i)
		}
		switch p.Kind {
		case "float64", "vector3":
		default:
			return PlotManifest{}, fmt.Errorf("plot manifest entry %d (%s): unknown kind %q", i, p.Signal, p.Kind)
		}
	}
	return manifest, nil
}
