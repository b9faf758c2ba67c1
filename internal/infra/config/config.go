package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"bleremote/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	BLE     BLEConfig     `yaml:"ble"`
	Control ControlConfig `yaml:"control"`
	UI      UIConfig      `yaml:"ui"`
	Gateway GatewayConfig `yaml:"gateway"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// BLEConfig holds central/radio settings.
type BLEConfig struct {
	Backend         string        `yaml:"backend"`    // "hci" or "sim"
	AdapterID       int           `yaml:"adapter_id"` // hciN on Linux
	ScanTimeout     time.Duration `yaml:"scan_timeout"`
	AllowDuplicates bool          `yaml:"allow_duplicates"`
	NameFilter      string        `yaml:"name_filter,omitempty"` // case-insensitive substring
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`       // 0 = platform default
}

// ControlConfig holds the value ranges and transmit behaviour.
type ControlConfig struct {
	Profile            string        `yaml:"profile"` // "byte", "drive" or "custom"
	Forward            domain.Range  `yaml:"forward"` // used when profile is "custom"
	Turn               domain.Range  `yaml:"turn"`
	SendMode           string        `yaml:"send_mode"` // "debounce", "immediate" or "manual"
	Debounce           time.Duration `yaml:"debounce"`
	WriteMode          string        `yaml:"write_mode"` // "without_response" or "with_response"
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	MaxWritesPerSecond float64       `yaml:"max_writes_per_second"` // 0 = unlimited
	Breaker            BreakerConfig `yaml:"breaker"`
}

// BreakerConfig holds the circuit breaker settings for characteristic writes.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// UIConfig holds panel presentation settings.
type UIConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Addr      string          `yaml:"addr"`
	MDNS      bool            `yaml:"mdns"`
	Instance  string          `yaml:"instance"` // mDNS instance name
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// RateLimitConfig bounds HTTP requests per client IP.
type RateLimitConfig struct {
	RequestsPerMin int `yaml:"requests_per_min"`
	Burst          int `yaml:"burst"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		BLE: BLEConfig{
			Backend:     "hci",
			ScanTimeout: 10 * time.Second,
		},
		Control: ControlConfig{
			Profile:      "drive",
			SendMode:     "debounce",
			Debounce:     100 * time.Millisecond,
			WriteMode:    "without_response",
			WriteTimeout: 2 * time.Second,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     3 * time.Second,
				Interval:    30 * time.Second,
			},
		},
		UI: UIConfig{
			Title:  "BLE Remote",
			Width:  80,
			Height: 28,
		},
		Gateway: GatewayConfig{
			Addr:     "127.0.0.1:8787",
			Instance: "bleremote",
			RateLimit: RateLimitConfig{
				RequestsPerMin: 120,
				Burst:          20,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// ResolveProfile returns the named built-in profile, or a custom one built
// from the Forward and Turn ranges.
func (c ControlConfig) ResolveProfile() domain.Profile {
	if p, ok := domain.LookupProfile(c.Profile); ok {
		return p
	}
	return domain.Profile{Name: "custom", Forward: c.Forward, Turn: c.Turn}
}

// WithResponse reports whether writes wait for an acknowledgement.
func (c ControlConfig) WithResponse() bool {
	return c.WriteMode == "with_response"
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("BLEREMOTE_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps BLEREMOTE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BLEREMOTE_BLE_BACKEND"); v != "" {
		cfg.BLE.Backend = v
	}
	if v := os.Getenv("BLEREMOTE_BLE_ADAPTER_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BLE.AdapterID = n
		}
	}
	if v := os.Getenv("BLEREMOTE_BLE_SCAN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.BLE.ScanTimeout = d
		}
	}
	if v := os.Getenv("BLEREMOTE_BLE_NAME_FILTER"); v != "" {
		cfg.BLE.NameFilter = v
	}
	if v := os.Getenv("BLEREMOTE_CONTROL_PROFILE"); v != "" {
		cfg.Control.Profile = v
	}
	if v := os.Getenv("BLEREMOTE_CONTROL_SEND_MODE"); v != "" {
		cfg.Control.SendMode = v
	}
	if v := os.Getenv("BLEREMOTE_CONTROL_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Control.Debounce = d
		}
	}
	if v := os.Getenv("BLEREMOTE_CONTROL_WRITE_MODE"); v != "" {
		cfg.Control.WriteMode = v
	}
	if v := os.Getenv("BLEREMOTE_UI_TITLE"); v != "" {
		cfg.UI.Title = v
	}
	if v := os.Getenv("BLEREMOTE_GATEWAY_ENABLED"); v != "" {
		cfg.Gateway.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("BLEREMOTE_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("BLEREMOTE_GATEWAY_MDNS"); v != "" {
		cfg.Gateway.MDNS = v == "true" || v == "1"
	}
	if v := os.Getenv("BLEREMOTE_GATEWAY_TOKENS"); v != "" {
		// Format: name:token,name:token
		cfg.Gateway.Auth.Type = "static"
		cfg.Gateway.Auth.Tokens = nil
		for _, pair := range splitAndTrim(v, ",") {
			name, token, ok := strings.Cut(pair, ":")
			if !ok || token == "" {
				continue
			}
			cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{Name: name, Token: token})
		}
	}
	if v := os.Getenv("BLEREMOTE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("BLEREMOTE_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("BLEREMOTE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("BLEREMOTE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// decryptSecrets finds "enc:..." gateway tokens and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.Gateway.Auth.Tokens {
		tok := cfg.Gateway.Auth.Tokens[i].Token
		if !strings.HasPrefix(tok, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(tok, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("gateway auth token %s: %w", cfg.Gateway.Auth.Tokens[i].Name, err)
		}
		cfg.Gateway.Auth.Tokens[i].Token = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The result has the form hex(salt) ":" hex(nonce+ciphertext).
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("%w: invalid encrypted format", domain.ErrDecryption)
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", domain.ErrDecryption)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
