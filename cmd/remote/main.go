package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bleremote/cmd/remote/daemon"
	"bleremote/internal/adapter/tui/panel"
	"bleremote/internal/adapter/tui/theme"
	"bleremote/internal/infra/config"
	"bleremote/internal/infra/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd, args := splitCommand(os.Args[1:])

	var err error
	switch cmd {
	case "help":
		showUsage()
		return
	case "panel":
		err = runPanel()
	case "serve":
		err = runServe()
	case "scan":
		err = runScan()
	case "explore":
		err = runExplore(args)
	case "doctor":
		err = runDoctor()
	case "daemon":
		err = runDaemon(args)
	case "encrypt":
		err = runEncrypt(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'bleremote --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// splitCommand returns the subcommand and its positional arguments. Flags
// are read separately; no command means the panel.
func splitCommand(argv []string) (string, []string) {
	for _, a := range argv {
		switch a {
		case "--help", "-h", "help":
			return "help", nil
		}
	}
	args := positional(argv)
	switch len(args) {
	case 0:
		return "panel", nil
	case 1:
		return args[0], nil
	}
	return args[0], args[1:]
}

// positional drops flags and their values from args.
func positional(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--config" {
			i++
			continue
		}
		if strings.HasPrefix(a, "-") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func showUsage() {
	fmt.Println(`bleremote - drive a BLE peripheral from the terminal

USAGE:
    bleremote [COMMAND] [FLAGS]

COMMANDS:
    panel             Open the control panel (default)
    serve             Run the WebSocket gateway without the panel
    scan              Scan once and list nearby devices
    explore ADDRESS   Connect and print the GATT tree of a device
    doctor            Check adapter, permissions and configuration
    daemon            Manage the gateway as a system service
                      Subcommands: install, uninstall, status
    encrypt [VALUE]   Encrypt a gateway token for config.yaml
                      (passphrase from BLEREMOTE_CONFIG_KEY)

FLAGS:
    -h, --help        Show this help message
    --config PATH     Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml, or BLEREMOTE_CONFIG
    Environment: BLEREMOTE_* variables override config
    Without hardware, set ble.backend: sim (or BLEREMOTE_BLE_BACKEND=sim)

EXAMPLES:
    bleremote                           # Open the panel
    BLEREMOTE_BLE_BACKEND=sim bleremote # Try the panel against simulated devices
    bleremote explore aa:bb:cc:dd:ee:ff # Show services and characteristics
    bleremote daemon install            # Run the gateway at boot`)
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("BLEREMOTE_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func runPanel() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The panel owns the terminal, so logs go to a file.
	log, logCloser, logPath, err := logger.ForPanel(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()
	theme.InitSymbols()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := bootstrap(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Gateway.Enabled {
		if _, err := a.startGateway(ctx); err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
	}

	log.Info("bleremote panel starting",
		"backend", a.central.Name(),
		"profile", cfg.Control.ResolveProfile().Name,
		"send_mode", cfg.Control.SendMode,
		"gateway", cfg.Gateway.Enabled,
		"log", logPath,
	)

	err = panel.Run(ctx, panel.Deps{
		Session: a.session,
		Bus:     a.bus,
		Logger:  log,
		Title:   cfg.UI.Title,
		Width:   cfg.UI.Width,
		Height:  cfg.UI.Height,
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := bootstrap(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := a.startGateway(ctx)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	log.Info("bleremote gateway serving",
		"addr", srv.BoundAddr(),
		"backend", a.central.Name(),
		"methods", len(srv.Methods()),
	)

	select {
	case <-ctx.Done():
	case <-a.session.Done():
		return fmt.Errorf("session stopped")
	}
	log.Info("bleremote gateway shutting down")
	return nil
}

func runDaemon(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: bleremote daemon <install|uninstall|status>")
	}

	switch args[0] {
	case "install":
		cfg := daemon.DefaultConfig()
		cfg.ConfigPath = configPath()
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := daemon.Install(cfg); err != nil {
			return err
		}
		fmt.Printf("%s installed; config %s\n", cfg.Name, cfg.ConfigPath)
		return nil
	case "uninstall":
		return daemon.Uninstall(daemon.ServiceName)
	case "status":
		status, err := daemon.Query(daemon.ServiceName)
		if err != nil {
			return err
		}
		if status.Running {
			fmt.Printf("%s is running (PID %d)\n", daemon.ServiceName, status.PID)
		} else {
			fmt.Printf("%s is not running\n", daemon.ServiceName)
		}
		return nil
	default:
		return fmt.Errorf("unknown daemon command: %s (want: install, uninstall, status)", args[0])
	}
}

// shutdownTimeout bounds gateway shutdown and the final disconnect.
const shutdownTimeout = 5 * time.Second
