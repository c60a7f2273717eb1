package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mapping.Thresholds.High != 0.75 || cfg.Mapping.Thresholds.Low != 0.60 {
		t.Errorf("default thresholds = %g/%g, want 0.75/0.60", cfg.Mapping.Thresholds.High, cfg.Mapping.Thresholds.Low)
	}
	if cfg.Mapping.Blend.CosineWeight != 0.7 || cfg.Mapping.Blend.LexicalWeight != 0.3 {
		t.Errorf("default blend = %g/%g, want 0.7/0.3", cfg.Mapping.Blend.CosineWeight, cfg.Mapping.Blend.LexicalWeight)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `mapping:
  top_k: 3
  thresholds:
    high: 0.8
    low: 0.5
  blend:
    cosine_weight: 0.6
    lexical_weight: 0.4
storage:
  data_dir: out
  audit_dir: trail
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mapping.TopK != 3 {
		t.Errorf("TopK = %d, want 3", cfg.Mapping.TopK)
	}
	if cfg.Storage.AuditDir != "trail" {
		t.Errorf("AuditDir = %q, want trail", cfg.Storage.AuditDir)
	}
	// Untouched sections keep defaults.
	if cfg.Embedding.Provider != "hash:256" {
		t.Errorf("Provider = %q, want default hash:256", cfg.Embedding.Provider)
	}
	if cfg.AuditFile() != filepath.Join("trail", "audit.jsonl") {
		t.Errorf("AuditFile = %q", cfg.AuditFile())
	}
}

func TestLoad_MissingFileIsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load error = %v, want ErrInvalidConfig", err)
	}
}

func TestValidate_RejectsInvertedThresholds(t *testing.T) {
	cfg := Default()
	cfg.Mapping.Thresholds.High = 0.5
	cfg.Mapping.Thresholds.Low = 0.7
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Validate error = %v, want ErrInvalidConfig", err)
	}
}

func TestValidate_RejectsZeroWeights(t *testing.T) {
	cfg := Default()
	cfg.Mapping.Blend = BlendConfig{}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Validate error = %v, want ErrInvalidConfig", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.AuditDir = filepath.Join(dir, "audit")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, d := range []string{cfg.Storage.DataDir, cfg.Storage.AuditDir} {
		if fi, err := os.Stat(d); err != nil || !fi.IsDir() {
			t.Errorf("directory %s not created", d)
		}
	}
}
