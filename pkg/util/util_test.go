package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Section struct {
		Name  string        `yaml:"name"`
		Tick  time.Duration `yaml:"tick"`
		Limit int           `yaml:"limit"`
	} `yaml:"section"`
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "section:\n  name: failures\n  tick: 500ms\n")

	cfg, err := LoadConfig[testConfig](path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Section.Name != "failures" {
		t.Errorf("name = %q", cfg.Section.Name)
	}
	if cfg.Section.Tick != 500*time.Millisecond {
		t.Errorf("tick = %v", cfg.Section.Tick)
	}
}

func TestLoadConfigOrDefault(t *testing.T) {
	path := writeFile(t, "section:\n  name: failures\n")

	var def testConfig
	def.Section.Limit = 2
	def.Section.Tick = 5 * time.Second

	cfg, err := LoadConfigOrDefault(path, def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Section.Limit != 2 || cfg.Section.Tick != 5*time.Second {
		t.Errorf("defaults not kept: %+v", cfg.Section)
	}
	if cfg.Section.Name != "failures" {
		t.Errorf("name = %q", cfg.Section.Name)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig[testConfig](filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}
