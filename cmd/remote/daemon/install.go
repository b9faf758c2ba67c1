// Package daemon installs the headless gateway bridge as a system service:
// a systemd unit on Linux and a launchd agent on macOS.
package daemon

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"text/template"
)

// ServiceName is the unit and agent name used when none is given.
const ServiceName = "bleremote"

// Config holds parameters for service installation.
type Config struct {
	Name       string
	BinaryPath string
	ConfigPath string
	WorkDir    string
	User       string
	LogPath    string
	HomeDir    string
	// AdapterUnit is the systemd unit the service starts after.
	AdapterUnit string
}

// Status holds the status of an installed service.
type Status struct {
	Running bool
	PID     int
}

// DefaultConfig returns a Config with auto-detected defaults.
func DefaultConfig() Config {
	binary, _ := os.Executable()
	if binary == "" {
		binary = "/usr/local/bin/" + ServiceName
	}

	username, homeDir := "root", "/root"
	if u, _ := user.Current(); u != nil {
		username = u.Username
		homeDir = u.HomeDir
	}

	return Config{
		Name:        ServiceName,
		BinaryPath:  binary,
		ConfigPath:  filepath.Join(homeDir, ".config", ServiceName, "config.yaml"),
		WorkDir:     filepath.Join(homeDir, ".local", "share", ServiceName),
		User:        username,
		LogPath:     filepath.Join(homeDir, ".local", "share", ServiceName, "logs"),
		HomeDir:     homeDir,
		AdapterUnit: "bluetooth.target",
	}
}

// Validate checks the Config for correctness.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if strings.ContainsAny(c.Name, "/ \t") {
		return fmt.Errorf("service name %q must not contain slashes or spaces", c.Name)
	}
	if c.BinaryPath == "" {
		return fmt.Errorf("binary path is required")
	}
	info, err := os.Stat(c.BinaryPath)
	if err != nil {
		return fmt.Errorf("binary %q: %w", c.BinaryPath, err)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("binary %q is not executable", c.BinaryPath)
	}
	return nil
}

// Install installs and starts the service on the current platform.
func Install(cfg Config) error {
	switch runtime.GOOS {
	case "linux":
		return installSystemd(cfg)
	case "darwin":
		return installLaunchd(cfg)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// Uninstall stops and removes the service on the current platform.
func Uninstall(name string) error {
	switch runtime.GOOS {
	case "linux":
		return uninstallSystemd(name)
	case "darwin":
		return uninstallLaunchd(name)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// Query returns the service status on the current platform.
func Query(name string) (*Status, error) {
	switch runtime.GOOS {
	case "linux":
		return statusSystemd(name)
	case "darwin":
		return statusLaunchd(name)
	default:
		return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// --- systemd ---

// The raw HCI socket needs CAP_NET_ADMIN and CAP_NET_RAW; granting them as
// ambient capabilities lets the bridge run as an unprivileged user.
const systemdTemplate = `[Unit]
Description={{.Name}} BLE remote gateway
Wants={{.AdapterUnit}}
After=network-online.target {{.AdapterUnit}}

[Service]
Type=simple
ExecStart={{.BinaryPath}} serve --config {{.ConfigPath}}
WorkingDirectory={{.WorkDir}}
User={{.User}}
AmbientCapabilities=CAP_NET_ADMIN CAP_NET_RAW
CapabilityBoundingSet=CAP_NET_ADMIN CAP_NET_RAW
Restart=on-failure
RestartSec=5
StandardOutput=append:{{.LogPath}}/{{.Name}}.log
StandardError=append:{{.LogPath}}/{{.Name}}.log
Environment=HOME={{.HomeDir}}

[Install]
WantedBy=multi-user.target
`

// RenderSystemdUnit renders the systemd service file content.
func RenderSystemdUnit(cfg Config) (string, error) {
	if cfg.AdapterUnit == "" {
		cfg.AdapterUnit = "bluetooth.target"
	}
	return render("systemd", systemdTemplate, cfg)
}

func render(name, text string, cfg Config) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func prepareDirs(cfg Config) error {
	if err := os.MkdirAll(cfg.LogPath, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	return nil
}

func installSystemd(cfg Config) error {
	content, err := RenderSystemdUnit(cfg)
	if err != nil {
		return err
	}
	if err := prepareDirs(cfg); err != nil {
		return err
	}

	unitPath := filepath.Join("/etc/systemd/system", cfg.Name+".service")
	if err := os.WriteFile(unitPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}

	for _, args := range [][]string{
		{"systemctl", "daemon-reload"},
		{"systemctl", "enable", cfg.Name},
		{"systemctl", "start", cfg.Name},
	} {
		if out, err := exec.Command(args[0], args[1:]...).CombinedOutput(); err != nil {
			return fmt.Errorf("%s: %s: %w", strings.Join(args, " "), out, err)
		}
	}
	return nil
}

func uninstallSystemd(name string) error {
	for _, args := range [][]string{
		{"systemctl", "stop", name},
		{"systemctl", "disable", name},
	} {
		_ = exec.Command(args[0], args[1:]...).Run() // best effort
	}

	unitPath := filepath.Join("/etc/systemd/system", name+".service")
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit file: %w", err)
	}
	_ = exec.Command("systemctl", "daemon-reload").Run()
	return nil
}

func statusSystemd(name string) (*Status, error) {
	out, err := exec.Command("systemctl", "is-active", name).Output()
	running := strings.TrimSpace(string(out)) == "active"
	if err != nil && !running {
		return &Status{}, nil
	}

	status := &Status{Running: running}
	if pidOut, err := exec.Command("systemctl", "show", "--property=MainPID", name).Output(); err == nil {
		status.PID = parseMainPID(string(pidOut))
	}
	return status, nil
}

// parseMainPID reads "MainPID=1234" as printed by systemctl show.
func parseMainPID(out string) int {
	_, v, ok := strings.Cut(strings.TrimSpace(out), "=")
	if !ok {
		return 0
	}
	pid, _ := strconv.Atoi(v)
	return pid
}

// --- launchd ---

const launchdLabelPrefix = "io.bleremote."

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>` + launchdLabelPrefix + `{{.Name}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.BinaryPath}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{.ConfigPath}}</string>
    </array>
    <key>WorkingDirectory</key>
    <string>{{.WorkDir}}</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.LogPath}}/{{.Name}}.log</string>
    <key>StandardErrorPath</key>
    <string>{{.LogPath}}/{{.Name}}.log</string>
    <key>EnvironmentVariables</key>
    <dict>
        <key>HOME</key>
        <string>{{.HomeDir}}</string>
    </dict>
</dict>
</plist>
`

// RenderLaunchdPlist renders the launchd plist content.
func RenderLaunchdPlist(cfg Config) (string, error) {
	return render("launchd", launchdTemplate, cfg)
}

func plistPath(home, name string) string {
	return filepath.Join(home, "Library", "LaunchAgents", launchdLabelPrefix+name+".plist")
}

func installLaunchd(cfg Config) error {
	content, err := RenderLaunchdPlist(cfg)
	if err != nil {
		return err
	}
	if err := prepareDirs(cfg); err != nil {
		return err
	}

	path := plistPath(cfg.HomeDir, cfg.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create LaunchAgents dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write plist: %w", err)
	}
	if out, err := exec.Command("launchctl", "load", path).CombinedOutput(); err != nil {
		return fmt.Errorf("launchctl load: %s: %w", out, err)
	}
	return nil
}

func uninstallLaunchd(name string) error {
	home, _ := os.UserHomeDir()
	path := plistPath(home, name)
	_ = exec.Command("launchctl", "unload", path).Run() // best effort
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove plist: %w", err)
	}
	return nil
}

func statusLaunchd(name string) (*Status, error) {
	out, err := exec.Command("launchctl", "list", launchdLabelPrefix+name).CombinedOutput()
	if err != nil {
		return &Status{}, nil
	}
	return &Status{Running: true, PID: parseLaunchdPID(string(out))}, nil
}

// parseLaunchdPID reads the `"PID" = 1234;` line of launchctl list output.
func parseLaunchdPID(out string) int {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "PID") {
			continue
		}
		_, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(strings.Trim(strings.TrimSpace(v), ";"))
		if err == nil {
			return pid
		}
	}
	return 0
}
