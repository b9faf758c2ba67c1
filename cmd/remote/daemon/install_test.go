package daemon

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Name:       "bleremote",
		BinaryPath: "/usr/local/bin/bleremote",
		ConfigPath: "/etc/bleremote/config.yaml",
		WorkDir:    "/var/lib/bleremote",
		User:       "pi",
		LogPath:    "/var/log/bleremote",
		HomeDir:    "/home/pi",
	}
}

func TestSystemdUnitRunsServe(t *testing.T) {
	content, err := RenderSystemdUnit(testConfig())
	require.NoError(t, err)

	for _, want := range []string{
		"Description=bleremote BLE remote gateway",
		"After=network-online.target bluetooth.target",
		"ExecStart=/usr/local/bin/bleremote serve --config /etc/bleremote/config.yaml",
		"User=pi",
		"AmbientCapabilities=CAP_NET_ADMIN CAP_NET_RAW",
		"StandardOutput=append:/var/log/bleremote/bleremote.log",
		"Environment=HOME=/home/pi",
		"WantedBy=multi-user.target",
	} {
		assert.Contains(t, content, want)
	}
}

func TestSystemdUnitCustomAdapterUnit(t *testing.T) {
	cfg := testConfig()
	cfg.AdapterUnit = "sys-subsystem-bluetooth-devices-hci1.device"
	content, err := RenderSystemdUnit(cfg)
	require.NoError(t, err)
	assert.Contains(t, content, "Wants=sys-subsystem-bluetooth-devices-hci1.device")
}

func TestLaunchdPlistRunsServe(t *testing.T) {
	content, err := RenderLaunchdPlist(testConfig())
	require.NoError(t, err)

	for _, want := range []string{
		"<string>io.bleremote.bleremote</string>",
		"<string>/usr/local/bin/bleremote</string>",
		"<string>serve</string>",
		"<string>/etc/bleremote/config.yaml</string>",
		"RunAtLoad",
		"bleremote.log",
	} {
		assert.Contains(t, content, want)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ServiceName, cfg.Name)
	assert.NotEmpty(t, cfg.BinaryPath)
	assert.NotEmpty(t, cfg.User)
	assert.Equal(t, "bluetooth.target", cfg.AdapterUnit)
	assert.Equal(t, filepath.Join(cfg.HomeDir, ".config", "bleremote", "config.yaml"), cfg.ConfigPath)
}

func TestValidate(t *testing.T) {
	cfg := Config{}
	assert.ErrorContains(t, cfg.Validate(), "name is required")

	cfg = Config{Name: "ble remote"}
	assert.ErrorContains(t, cfg.Validate(), "must not contain")

	cfg = Config{Name: "bleremote"}
	assert.ErrorContains(t, cfg.Validate(), "binary path is required")

	cfg = Config{Name: "bleremote", BinaryPath: "/nonexistent/bleremote"}
	assert.Error(t, cfg.Validate())

	exe, err := os.Executable()
	if err != nil {
		t.Skipf("cannot determine executable: %v", err)
	}
	cfg = Config{Name: "bleremote", BinaryPath: exe}
	assert.NoError(t, cfg.Validate())
}

func TestValidateNotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleremote")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh"), 0o644))

	cfg := Config{Name: "bleremote", BinaryPath: path}
	assert.ErrorContains(t, cfg.Validate(), "not executable")
}

func TestInstallUnsupportedPlatform(t *testing.T) {
	if runtime.GOOS == "linux" || runtime.GOOS == "darwin" {
		t.Skip("supported platform")
	}
	assert.ErrorContains(t, Install(DefaultConfig()), "unsupported platform")
}

func TestParsePIDs(t *testing.T) {
	assert.Equal(t, 812, parseMainPID("MainPID=812\n"))
	assert.Equal(t, 0, parseMainPID("garbage"))

	out := "{\n\t\"LimitLoadToSessionType\" = \"Aqua\";\n\t\"PID\" = 4242;\n};\n"
	assert.Equal(t, 4242, parseLaunchdPID(out))
	assert.Equal(t, 0, parseLaunchdPID("{}"))
}
