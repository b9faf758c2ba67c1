// Package integration holds end-to-end tests that need a radio and a real
// peripheral. They skip unless BLEREMOTE_IT_ADDRESS names the device.
package integration

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

// Config holds integration test configuration from environment.
type Config struct {
	Address     string // peripheral under test, e.g. "24:0a:c4:12:34:56"
	AdapterID   int
	TestTimeout time.Duration
	SkipSlow    bool
}

// LoadConfig loads integration test configuration from environment.
func LoadConfig() *Config {
	cfg := &Config{
		Address:     strings.ToLower(os.Getenv("BLEREMOTE_IT_ADDRESS")),
		TestTimeout: 60 * time.Second,
		SkipSlow:    os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
	if n, err := strconv.Atoi(os.Getenv("BLEREMOTE_IT_ADAPTER")); err == nil {
		cfg.AdapterID = n
	}
	return cfg
}

// SkipIfNoDevice skips the test unless a peripheral address is configured.
func SkipIfNoDevice(t *testing.T, cfg *Config) {
	t.Helper()
	if cfg.Address == "" {
		t.Skip("Skipping hardware test: BLEREMOTE_IT_ADDRESS not set")
	}
}

// SkipIfShort skips integration tests in short mode.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests.
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
