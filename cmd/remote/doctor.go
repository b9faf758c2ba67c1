package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"bleremote/internal/adapter/tui/theme"
	"bleremote/internal/adapter/tui/uxerror"
	"bleremote/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// Overridable in tests.
var (
	sysRoot        = "/sys"
	procStatusPath = "/proc/self/status"
	adapterProbe   = probeAdapter
)

const (
	capNetAdmin = 12
	capNetRaw   = 13
)

func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "BLE backend", Fn: checkBackend},
		{Name: "Adapter device", Fn: checkAdapterDevice},
		{Name: "RF kill switch", Fn: checkRFKill},
		{Name: "Capabilities", Fn: checkCapabilities},
		{Name: "Adapter power", Fn: checkAdapterPower},
		{Name: "Gateway", Fn: checkGateway},
		{Name: "Terminal", Fn: checkTerminal},
	}

	fmt.Println("bleremote doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	pass, warn, fail := runChecks(os.Stdout, cfg, checks)

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above before connecting to a device.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\nbleremote should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed.")
	}
	return nil
}

func runChecks(w io.Writer, cfg *config.Config, checks []Check) (pass, warn, fail int) {
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}
	return pass, warn, fail
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and loads. A missing
// file is only a warning because defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and permissions (chmod 600)",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config at %s, using defaults", cfgPath),
				Fix:     "Create config.yaml to pick a profile and send mode",
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", cfgPath)}
	}
}

func isSim(cfg *config.Config) bool {
	return cfg != nil && cfg.BLE.Backend == "sim"
}

func checkBackend(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "config not loaded"}
	}
	if isSim(cfg) {
		return CheckResult{Status: StatusPass, Message: "simulated devices (no radio)"}
	}
	switch runtime.GOOS {
	case "linux":
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("HCI socket on hci%d", cfg.BLE.AdapterID)}
	case "darwin":
		return CheckResult{Status: StatusPass, Message: "CoreBluetooth"}
	default:
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("no BLE backend for %s", runtime.GOOS),
			Fix:     "Set ble.backend: sim to use the panel without hardware",
		}
	}
}

func checkAdapterDevice(cfg *config.Config) CheckResult {
	if cfg == nil || isSim(cfg) || runtime.GOOS != "linux" {
		return CheckResult{Status: StatusPass, Message: "not applicable"}
	}
	name := fmt.Sprintf("hci%d", cfg.BLE.AdapterID)
	if _, err := os.Stat(filepath.Join(sysRoot, "class", "bluetooth", name)); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: name + " not present",
			Fix:     "Plug in a Bluetooth adapter or set ble.adapter_id (see 'hciconfig -a')",
		}
	}
	return CheckResult{Status: StatusPass, Message: name + " present"}
}

func checkRFKill(cfg *config.Config) CheckResult {
	if isSim(cfg) || runtime.GOOS != "linux" {
		return CheckResult{Status: StatusPass, Message: "not applicable"}
	}
	entries, _ := filepath.Glob(filepath.Join(sysRoot, "class", "rfkill", "rfkill*"))
	found := false
	for _, dir := range entries {
		if readTrim(filepath.Join(dir, "type")) != "bluetooth" {
			continue
		}
		found = true
		if readTrim(filepath.Join(dir, "hard")) == "1" {
			return CheckResult{
				Status:  StatusFail,
				Message: "Bluetooth is hard-blocked",
				Fix:     "Flip the hardware wireless switch",
			}
		}
		if readTrim(filepath.Join(dir, "soft")) == "1" {
			return CheckResult{
				Status:  StatusFail,
				Message: "Bluetooth is soft-blocked",
				Fix:     "Run 'rfkill unblock bluetooth'",
			}
		}
	}
	if !found {
		return CheckResult{Status: StatusWarn, Message: "no Bluetooth rfkill entry"}
	}
	return CheckResult{Status: StatusPass, Message: "not blocked"}
}

// checkCapabilities looks for CAP_NET_ADMIN and CAP_NET_RAW, which the raw
// HCI socket needs when not running as root.
func checkCapabilities(cfg *config.Config) CheckResult {
	if isSim(cfg) || runtime.GOOS != "linux" {
		return CheckResult{Status: StatusPass, Message: "not applicable"}
	}
	if os.Geteuid() == 0 {
		return CheckResult{Status: StatusPass, Message: "running as root"}
	}
	data, err := os.ReadFile(procStatusPath)
	if err != nil {
		return CheckResult{Status: StatusWarn, Message: fmt.Sprintf("cannot read capabilities: %v", err)}
	}
	eff, ok := effectiveCaps(string(data))
	if !ok {
		return CheckResult{Status: StatusWarn, Message: "CapEff not reported"}
	}
	var missing []string
	if eff&(1<<capNetAdmin) == 0 {
		missing = append(missing, "cap_net_admin")
	}
	if eff&(1<<capNetRaw) == 0 {
		missing = append(missing, "cap_net_raw")
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "missing " + strings.Join(missing, ", "),
			Fix:     "Run 'sudo setcap cap_net_raw,cap_net_admin+eip $(which bleremote)'",
		}
	}
	return CheckResult{Status: StatusPass, Message: "cap_net_admin, cap_net_raw"}
}

// effectiveCaps parses the CapEff line of /proc/<pid>/status.
func effectiveCaps(status string) (uint64, bool) {
	for _, line := range strings.Split(status, "\n") {
		v, ok := strings.CutPrefix(line, "CapEff:")
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(v), 16, 64)
		return n, err == nil
	}
	return 0, false
}

func checkAdapterPower(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "config not loaded"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := adapterProbe(ctx, cfg.BLE); err != nil {
		fe := uxerror.Humanize(err)
		fix := ""
		if len(fe.Hints) > 0 {
			fix = fe.Hints[0]
		}
		return CheckResult{Status: StatusFail, Message: fe.Line(), Fix: fix}
	}
	return CheckResult{Status: StatusPass, Message: "adapter ready"}
}

func probeAdapter(ctx context.Context, cfg config.BLEConfig) error {
	central, err := newCentral(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return err
	}
	defer central.Close()
	return central.Ready(ctx)
}

func checkGateway(cfg *config.Config) CheckResult {
	if cfg == nil || !cfg.Gateway.Enabled {
		return CheckResult{Status: StatusPass, Message: "disabled"}
	}
	ln, err := net.Listen("tcp", cfg.Gateway.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot listen on %s: %v", cfg.Gateway.Addr, err),
			Fix:     "Pick a free gateway.addr or stop the other bleremote",
		}
	}
	_ = ln.Close()

	if cfg.Gateway.Auth.Type != "static" && !isLoopback(cfg.Gateway.Addr) {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s is reachable from the network without auth", cfg.Gateway.Addr),
			Fix:     "Set gateway.auth.type: static with a token, or bind to 127.0.0.1",
		}
	}
	return CheckResult{Status: StatusPass, Message: "listening on " + cfg.Gateway.Addr + " is possible"}
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func checkTerminal(_ *config.Config) CheckResult {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return CheckResult{Status: StatusWarn, Message: "stdout is not a terminal", Fix: "Run the panel in an interactive terminal"}
	}
	w, h, err := term.GetSize(fd)
	if err != nil {
		return CheckResult{Status: StatusWarn, Message: fmt.Sprintf("cannot read terminal size: %v", err)}
	}
	if w < theme.MinPanelWidth {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%dx%d; narrower than %d columns stacks the panel", w, h, theme.MinPanelWidth),
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%dx%d", w, h)}
}

func readTrim(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
