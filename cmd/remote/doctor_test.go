package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bleremote/internal/domain"
	"bleremote/internal/infra/config"
)

func hciConfig() *config.Config {
	cfg := config.Defaults()
	cfg.BLE.Backend = "hci"
	return cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func fakeSys(t *testing.T) string {
	t.Helper()
	old := sysRoot
	sysRoot = t.TempDir()
	t.Cleanup(func() { sysRoot = old })
	return sysRoot
}

func requireLinux(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("linux only")
	}
}

func TestCheckConfigFile(t *testing.T) {
	dir := t.TempDir()

	missing := checkConfigFile(filepath.Join(dir, "none.yaml"), nil)(nil)
	assert.Equal(t, StatusWarn, missing.Status)
	assert.NotEmpty(t, missing.Fix)

	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "ble:\n  backend: sim\n")
	assert.Equal(t, StatusPass, checkConfigFile(path, nil)(nil).Status)

	broken := checkConfigFile(path, &config.ValidationError{Errors: []string{"bad"}})(nil)
	assert.Equal(t, StatusFail, broken.Status)
}

func TestCheckBackend(t *testing.T) {
	assert.Equal(t, StatusFail, checkBackend(nil).Status)

	cfg := config.Defaults()
	cfg.BLE.Backend = "sim"
	res := checkBackend(cfg)
	assert.Equal(t, StatusPass, res.Status)
	assert.Contains(t, res.Message, "simulated")
}

func TestCheckAdapterDevice(t *testing.T) {
	requireLinux(t)
	root := fakeSys(t)
	cfg := hciConfig()
	cfg.BLE.AdapterID = 1

	res := checkAdapterDevice(cfg)
	assert.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Message, "hci1")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "class", "bluetooth", "hci1"), 0o755))
	assert.Equal(t, StatusPass, checkAdapterDevice(cfg).Status)
}

func TestCheckRFKill(t *testing.T) {
	requireLinux(t)
	root := fakeSys(t)
	cfg := hciConfig()

	assert.Equal(t, StatusWarn, checkRFKill(cfg).Status, "no entry")

	wifi := filepath.Join(root, "class", "rfkill", "rfkill0")
	writeFile(t, filepath.Join(wifi, "type"), "wlan\n")
	writeFile(t, filepath.Join(wifi, "soft"), "1\n")

	bt := filepath.Join(root, "class", "rfkill", "rfkill1")
	writeFile(t, filepath.Join(bt, "type"), "bluetooth\n")
	writeFile(t, filepath.Join(bt, "hard"), "0\n")
	writeFile(t, filepath.Join(bt, "soft"), "0\n")
	assert.Equal(t, StatusPass, checkRFKill(cfg).Status)

	writeFile(t, filepath.Join(bt, "soft"), "1\n")
	res := checkRFKill(cfg)
	assert.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Fix, "rfkill unblock")
}

func TestEffectiveCaps(t *testing.T) {
	status := "Name:\tbleremote\nCapInh:\t0000000000000000\nCapEff:\t0000000000003000\n"
	eff, ok := effectiveCaps(status)
	require.True(t, ok)
	assert.NotZero(t, eff&(1<<capNetAdmin))
	assert.NotZero(t, eff&(1<<capNetRaw))

	_, ok = effectiveCaps("Name:\tx\n")
	assert.False(t, ok)
}

func TestCheckCapabilitiesMissing(t *testing.T) {
	requireLinux(t)
	if os.Geteuid() == 0 {
		t.Skip("root short-circuits the check")
	}
	old := procStatusPath
	procStatusPath = filepath.Join(t.TempDir(), "status")
	t.Cleanup(func() { procStatusPath = old })

	writeFile(t, procStatusPath, "CapEff:\t0000000000001000\n")
	res := checkCapabilities(hciConfig())
	assert.Equal(t, StatusFail, res.Status)
	assert.Equal(t, "missing cap_net_raw", res.Message)

	writeFile(t, procStatusPath, "CapEff:\t0000000000003000\n")
	assert.Equal(t, StatusPass, checkCapabilities(hciConfig()).Status)
}

func TestCheckAdapterPower(t *testing.T) {
	old := adapterProbe
	t.Cleanup(func() { adapterProbe = old })

	adapterProbe = func(context.Context, config.BLEConfig) error {
		return fmt.Errorf("%w: hci0", domain.ErrAdapterPoweredOff)
	}
	res := checkAdapterPower(hciConfig())
	assert.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Message, "Bluetooth Is Off")
	assert.Equal(t, "Turn Bluetooth on", res.Fix)

	adapterProbe = func(context.Context, config.BLEConfig) error { return nil }
	assert.Equal(t, StatusPass, checkAdapterPower(hciConfig()).Status)
}

func TestProbeAdapterSim(t *testing.T) {
	cfg := config.Defaults()
	cfg.BLE.Backend = "sim"
	assert.NoError(t, probeAdapter(context.Background(), cfg.BLE))
}

func TestCheckGateway(t *testing.T) {
	cfg := config.Defaults()
	assert.Equal(t, StatusPass, checkGateway(cfg).Status, "disabled")

	cfg.Gateway.Enabled = true
	cfg.Gateway.Addr = "127.0.0.1:0"
	assert.Equal(t, StatusPass, checkGateway(cfg).Status)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	cfg.Gateway.Addr = ln.Addr().String()
	assert.Equal(t, StatusFail, checkGateway(cfg).Status)
}

func TestIsLoopback(t *testing.T) {
	assert.True(t, isLoopback("127.0.0.1:8787"))
	assert.True(t, isLoopback("localhost:8787"))
	assert.True(t, isLoopback("[::1]:8787"))
	assert.False(t, isLoopback("0.0.0.0:8787"))
	assert.False(t, isLoopback(":8787"))
}

func TestRunChecksCounts(t *testing.T) {
	checks := []Check{
		{Name: "a", Fn: func(*config.Config) CheckResult { return CheckResult{Status: StatusPass, Message: "ok"} }},
		{Name: "b", Fn: func(*config.Config) CheckResult { return CheckResult{Status: StatusWarn, Message: "meh", Fix: "do x"} }},
		{Name: "c", Fn: func(*config.Config) CheckResult { return CheckResult{Status: StatusFail, Message: "bad"} }},
	}
	var buf bytes.Buffer
	pass, warn, fail := runChecks(&buf, nil, checks)
	assert.Equal(t, [3]int{1, 1, 1}, [3]int{pass, warn, fail})
	assert.Contains(t, buf.String(), "[WARN] b: meh")
	assert.Contains(t, buf.String(), "Fix: do x")
}
