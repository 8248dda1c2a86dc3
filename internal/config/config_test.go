package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.RecognitionTimeout != 15*time.Second {
		t.Errorf("Expected recognition timeout 15s, got %s", cfg.RecognitionTimeout)
	}
	if cfg.ClaheClipLimit != 3.0 || cfg.ClaheTileGrid != 8 {
		t.Errorf("Unexpected CLAHE defaults: clip=%g grid=%d", cfg.ClaheClipLimit, cfg.ClaheTileGrid)
	}
	if cfg.SessionStore != SessionStoreMemory {
		t.Errorf("Expected memory session store, got %s", cfg.SessionStore)
	}
	if len(cfg.OCRLanguages) != 2 || cfg.OCRLanguages[0] != "chi_sim" {
		t.Errorf("Unexpected OCR languages: %v", cfg.OCRLanguages)
	}
	if !cfg.BarcodeFallback {
		t.Error("Expected barcode fallback enabled by default")
	}
	if cfg.ArchiveEnabled() {
		t.Error("Archive must be disabled without Azure credentials")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("OCR_LANGUAGES", "eng+chi_tra")
	t.Setenv("SESSION_STORE", "BOLT")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("BARCODE_FALLBACK", "false")
	t.Setenv("AZURE_STORAGE_ACCOUNT", "acct")
	t.Setenv("AZURE_STORAGE_KEY", "key")
	t.Setenv("SCAN_ARCHIVE_CONTAINER", "scans")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.ServerAddress() != "0.0.0.0:9090" {
		t.Errorf("ServerAddress() = %s", cfg.ServerAddress())
	}
	if got := cfg.OCRLanguages; len(got) != 2 || got[1] != "chi_tra" {
		t.Errorf("OCRLanguages = %v", got)
	}
	if cfg.SessionStore != SessionStoreBolt {
		t.Errorf("SessionStore = %s", cfg.SessionStore)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Errorf("SessionTTL = %s", cfg.SessionTTL)
	}
	if cfg.BarcodeFallback {
		t.Error("Expected barcode fallback disabled")
	}
	if !cfg.ArchiveEnabled() {
		t.Error("Expected archive enabled")
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "PORT", "70000"},
		{"port not numeric", "PORT", "http"},
		{"zero body size", "MAX_REQUEST_BODY_SIZE", "0"},
		{"unknown store", "SESSION_STORE", "redis"},
		{"tile grid too large", "CLAHE_TILE_GRID", "100"},
		{"negative clip", "CLAHE_CLIP_LIMIT", "-1"},
		{"negative pixel cap", "MAX_IMAGE_PIXELS", "-5"},
		{"no archive workers", "ARCHIVE_WORKERS", "0"},
		{"negative ocr concurrency", "OCR_CONCURRENCY", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadFromEnv(); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
