package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Session store backends.
const (
	SessionStoreMemory = "memory"
	SessionStoreBolt   = "bolt"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	RecognitionTimeout time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	// Recognition engine
	OCRLanguages   []string
	TessdataPrefix string
	OCRConcurrency int // simultaneous recognitions, 0 = NumCPU

	// Image normalization
	ClaheClipLimit    float64
	ClaheTileGrid     int
	MaxImageDimension int
	MaxImagePixels    int
	WorkerPoolSize    int
	BarcodeFallback   bool

	// Sessions and catalog
	SessionStore  string
	SessionDBPath string
	SessionTTL    time.Duration
	CatalogDBPath string

	// Azure blob storage, optional
	AzureAccountName     string
	AzureAccountKey      string
	ScanArchiveContainer string
	ArchiveWorkers       int
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// AzureEnabled reports whether blob credentials were supplied.
func (c *Config) AzureEnabled() bool {
	return c.AzureAccountName != "" && c.AzureAccountKey != ""
}

// ArchiveEnabled reports whether scan images should be archived to blob storage.
func (c *Config) ArchiveEnabled() bool {
	return c.AzureEnabled() && c.ScanArchiveContainer != ""
}

func LoadFromEnv() (*Config, error) {
	// Set defaults
	cfg := &Config{
		Host:                 getEnvOrDefault("HOST", "0.0.0.0"),
		Port:                 getEnvOrDefault("PORT", "8080"),
		RequestTimeout:       parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		ImageFetchTimeout:    parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		RecognitionTimeout:   parseDurationOrDefault("RECOGNITION_TIMEOUT", 15*time.Second),
		MaxRequestBodySize:   parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		OCRLanguages:         parseListOrDefault("OCR_LANGUAGES", []string{"chi_sim", "eng"}),
		TessdataPrefix:       os.Getenv("TESSDATA_PREFIX"),
		OCRConcurrency:       int(parseIntOrDefault("OCR_CONCURRENCY", 0)),
		ClaheClipLimit:       parseFloatOrDefault("CLAHE_CLIP_LIMIT", 3.0),
		ClaheTileGrid:        int(parseIntOrDefault("CLAHE_TILE_GRID", 8)),
		MaxImageDimension:    int(parseIntOrDefault("MAX_IMAGE_DIMENSION", 3000)),
		MaxImagePixels:       int(parseIntOrDefault("MAX_IMAGE_PIXELS", 64_000_000)),
		WorkerPoolSize:       int(parseIntOrDefault("WORKER_POOL_SIZE", 0)),
		BarcodeFallback:      parseBoolOrDefault("BARCODE_FALLBACK", true),
		SessionStore:         strings.ToLower(getEnvOrDefault("SESSION_STORE", SessionStoreMemory)),
		SessionDBPath:        getEnvOrDefault("SESSION_DB_PATH", "sessions.db"),
		SessionTTL:           parseDurationOrDefault("SESSION_TTL", 0),
		CatalogDBPath:        getEnvOrDefault("CATALOG_DB_PATH", "catalog.db"),
		AzureAccountName:     os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureAccountKey:      os.Getenv("AZURE_STORAGE_KEY"),
		ScanArchiveContainer: os.Getenv("SCAN_ARCHIVE_CONTAINER"),
		ArchiveWorkers:       int(parseIntOrDefault("ARCHIVE_WORKERS", 4)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.RecognitionTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, recognition=%s)",
			c.RequestTimeout, c.ImageFetchTimeout, c.RecognitionTimeout)
	}
	if c.ClaheClipLimit <= 0 {
		return fmt.Errorf("CLAHE_CLIP_LIMIT must be > 0 (got %g)", c.ClaheClipLimit)
	}
	if c.ClaheTileGrid < 1 || c.ClaheTileGrid > 64 {
		return fmt.Errorf("CLAHE_TILE_GRID must be in [1, 64] (got %d)", c.ClaheTileGrid)
	}
	if c.MaxImageDimension < 0 {
		return fmt.Errorf("MAX_IMAGE_DIMENSION must be >= 0 (got %d)", c.MaxImageDimension)
	}
	if c.OCRConcurrency < 0 {
		return fmt.Errorf("OCR_CONCURRENCY must be >= 0 (got %d)", c.OCRConcurrency)
	}
	if c.ArchiveWorkers < 1 {
		return fmt.Errorf("ARCHIVE_WORKERS must be >= 1 (got %d)", c.ArchiveWorkers)
	}
	if c.MaxImagePixels < 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be >= 0 (got %d)", c.MaxImagePixels)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must be >= 0 (got %s)", c.SessionTTL)
	}
	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreBolt:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q (got %q)", SessionStoreMemory, SessionStoreBolt, c.SessionStore)
	}
	if len(c.OCRLanguages) == 0 {
		return fmt.Errorf("OCR_LANGUAGES must name at least one language")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration >= 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// parseListOrDefault splits on '+' or ',' (tesseract style "chi_sim+eng").
func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == '+' || r == ',' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
