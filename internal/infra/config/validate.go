package config

import (
	"fmt"
	"net"
	"strings"

	"bleremote/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateBLE(cfg, ve)
	validateControl(cfg, ve)
	validateUI(cfg, ve)
	validateGateway(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateBLE(cfg *Config, ve *ValidationError) {
	switch cfg.BLE.Backend {
	case "hci", "sim":
	default:
		ve.Add("ble.backend %q must be one of hci, sim", cfg.BLE.Backend)
	}
	if cfg.BLE.AdapterID < 0 {
		ve.Add("ble.adapter_id must be >= 0")
	}
	if cfg.BLE.ScanTimeout <= 0 {
		ve.Add("ble.scan_timeout must be > 0")
	}
	if cfg.BLE.ConnectTimeout < 0 {
		ve.Add("ble.connect_timeout must be >= 0")
	}
}

func validateControl(cfg *Config, ve *ValidationError) {
	c := cfg.Control
	if _, ok := domain.LookupProfile(c.Profile); !ok {
		if c.Profile != "custom" {
			ve.Add("control.profile %q must be one of byte, drive, custom", c.Profile)
		} else {
			validateRange("control.forward", c.Forward, ve)
			validateRange("control.turn", c.Turn, ve)
		}
	}
	switch c.SendMode {
	case "debounce", "immediate", "manual":
	default:
		ve.Add("control.send_mode %q must be one of debounce, immediate, manual", c.SendMode)
	}
	if c.SendMode == "debounce" && c.Debounce <= 0 {
		ve.Add("control.debounce must be > 0 in debounce mode")
	}
	switch c.WriteMode {
	case "without_response", "with_response":
	default:
		ve.Add("control.write_mode %q must be one of without_response, with_response", c.WriteMode)
	}
	if c.WriteTimeout <= 0 {
		ve.Add("control.write_timeout must be > 0")
	}
	if c.MaxWritesPerSecond < 0 {
		ve.Add("control.max_writes_per_second must be >= 0")
	}
	if c.Breaker.MaxFailures == 0 {
		ve.Add("control.breaker.max_failures must be > 0")
	}
	if c.Breaker.Timeout <= 0 {
		ve.Add("control.breaker.timeout must be > 0")
	}
}

// validateRange rejects ranges that would not survive a single-byte encoding.
func validateRange(name string, r domain.Range, ve *ValidationError) {
	if r.Min > r.Max {
		ve.Add("%s.min (%d) must be <= max (%d)", name, r.Min, r.Max)
		return
	}
	if !r.Contains(r.Default) {
		ve.Add("%s.default (%d) must lie within %d..%d", name, r.Default, r.Min, r.Max)
	}
	if r.Min < -128 || r.Max > 255 {
		ve.Add("%s must fit in one byte (-128..255)", name)
	}
	if r.Max-r.Min > 255 {
		ve.Add("%s spans more than 256 values", name)
	}
}

func validateUI(cfg *Config, ve *ValidationError) {
	if cfg.UI.Width < 40 {
		ve.Add("ui.width must be >= 40")
	}
	if cfg.UI.Height < 16 {
		ve.Add("ui.height must be >= 16")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}
	switch cfg.Gateway.Auth.Type {
	case "":
	case "static":
		if len(cfg.Gateway.Auth.Tokens) == 0 {
			ve.Add("gateway.auth.tokens must not be empty for static auth")
		}
		for i, tok := range cfg.Gateway.Auth.Tokens {
			if tok.Token == "" {
				ve.Add("gateway.auth.tokens[%d].token must not be empty", i)
			}
		}
	default:
		ve.Add("gateway.auth.type %q must be \"static\" or empty", cfg.Gateway.Auth.Type)
	}
	if cfg.Gateway.MDNS && cfg.Gateway.Instance == "" {
		ve.Add("gateway.instance is required when mdns is enabled")
	}
	if cfg.Gateway.RateLimit.RequestsPerMin < 0 || cfg.Gateway.RateLimit.Burst < 0 {
		ve.Add("gateway.rate_limit values must be >= 0")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q must be one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop":
	default:
		ve.Add("tracer.exporter %q must be stdout or noop", cfg.Tracer.Exporter)
	}
}
