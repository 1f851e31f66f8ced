package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPlotManifestMissingFileReturnsEmpty(t *testing.T) {
	m, err := LoadPlotManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(m.Plots) != 0 {
		t.Fatalf("expected empty manifest, got %+v", m.Plots)
	}
}

func TestLoadPlotManifestEmptyPathReturnsEmpty(t *testing.T) {
	m, err := LoadPlotManifest("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(m.Plots) != 0 {
		t.Fatalf("expected empty manifest, got %+v", m.Plots)
	}
}

func TestLoadPlotManifestParsesPlots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.yaml")
	writeFile(t, path, "plots:\n  - signal: /imu/accel\n    kind: vector3\n  - signal: /ref/pos\n    kind: float64\n")

	m, err := LoadPlotManifest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(m.Plots) != 2 {
		t.Fatalf("expected 2 plots, got %d: %+v", len(m.Plots), m.Plots)
	}
	if m.Plots[0].Signal != "/imu/accel" || m.Plots[0].Kind != "vector3" {
		t.Fatalf("unexpected first plot: %+v", m.Plots[0])
	}
	if m.Plots[1].Signal != "/ref/pos" || m.Plots[1].Kind != "float64" {
		t.Fatalf("unexpected second plot: %+v", m.Plots[1])
	}
}

func TestLoadPlotManifestRejectsUnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.yaml")
	writeFile(t, path, "plots:\n  - signal: /x\n    kind: quaternion\n")

	if _, err := LoadPlotManifest(path); err == nil {
		t.Fatal("expected error for unknown plot kind")
	}
}

func TestLoadPlotManifestRejectsEmptySignalName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.yaml")
	writeFile(t, path, "plots:\n  - signal: \"\"\n    kind: float64\n")

	if _, err := LoadPlotManifest(path); err == nil {
		t.Fatal("expected error for empty signal name")
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}
