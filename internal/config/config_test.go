package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"fundtrail/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if !cfg.Workflow.AllowDirectDecide {
		t.Errorf("default allow_direct_decide = false, want true")
	}
	if cfg.Workflow.UrgentWindowDays != 7 {
		t.Errorf("default urgent_window_days = %d, want 7", cfg.Workflow.UrgentWindowDays)
	}
	if len(cfg.Webhooks) != 0 {
		t.Errorf("default has %d webhooks, want 0", len(cfg.Webhooks))
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workflow.UrgentWindowDays != 7 {
		t.Errorf("fallback urgent_window_days = %d, want 7", cfg.Workflow.UrgentWindowDays)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	doc := `workflow:
  allow_direct_decide: false
  urgent_window_days: 3
webhooks:
  - url: https://example.org/hook
    actions: [VoteCast]
`
	if err := os.WriteFile(filepath.Join(dir, "fundtrail.yml"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workflow.AllowDirectDecide {
		t.Errorf("allow_direct_decide = true, want false")
	}
	if cfg.Workflow.UrgentWindowDays != 3 {
		t.Errorf("urgent_window_days = %d, want 3", cfg.Workflow.UrgentWindowDays)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].URL != "https://example.org/hook" {
		t.Errorf("webhooks not parsed: %+v", cfg.Webhooks)
	}
}

func TestValidate(t *testing.T) {
	if _, err := config.FromYAML([]byte("workflow:\n  urgent_window_days: -1\n")); err == nil {
		t.Errorf("negative urgent window accepted")
	}
	if _, err := config.FromYAML([]byte("webhooks:\n  - actions: [VoteCast]\n")); err == nil {
		t.Errorf("webhook without url accepted")
	}
	if _, err := config.FromYAML([]byte("workflow: [broken")); err == nil {
		t.Errorf("malformed yaml accepted")
	}
}

func TestGenerateDefaultParses(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault()))
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if cfg.Workflow.UrgentWindowDays != 7 {
		t.Errorf("template urgent_window_days = %d, want 7", cfg.Workflow.UrgentWindowDays)
	}
}
