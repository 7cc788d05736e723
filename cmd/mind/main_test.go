package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nidhogg/nuka-mind/internal/cognitive"
	"github.com/spf13/viper"
)

func TestLoadConfig_Explicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mind.json")
	if err := os.WriteFile(path, []byte(`{"server": {"port": 9090}, "memory": {"backend": "chromem"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	viper.Set("config", path)
	viper.Set("log_level", "production")
	defer viper.Reset()

	cfg, used, err := loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if used != path || cfg.Server.Port != 9090 {
		t.Errorf("unexpected config from %q: %+v", used, cfg.Server)
	}
	if cfg.Server.LogLevel != "production" {
		t.Errorf("flag should override log level, got %q", cfg.Server.LogLevel)
	}
}

func TestLoadConfig_MissingExplicit(t *testing.T) {
	viper.Set("config", filepath.Join(t.TempDir(), "nope.json"))
	defer viper.Reset()

	if _, _, err := loadConfig(); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestReadDecideInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.json")
	body := `{"observation": {"entity_id": "ada", "current_simulation_time": 42,
		"status": {"position": [3, 4]}},
		"available_actions": [{"name": "wait", "description": "Do nothing"}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	in, err := readDecideInput(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if in.Observation.SimulationTime != 42 || in.Observation.Status.Position != cognitive.Position{3, 4} {
		t.Errorf("unexpected observation: %+v", in.Observation)
	}
	if len(in.AvailableActions) != 1 || in.AvailableActions[0].Name != "wait" {
		t.Errorf("unexpected actions: %+v", in.AvailableActions)
	}
}
