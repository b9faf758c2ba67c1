package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"
	"golang.org/x/term"

	"bleremote/internal/adapter/tui/theme"
	"bleremote/internal/adapter/tui/uxerror"
	"bleremote/internal/domain"
	"bleremote/internal/infra/config"
	"bleremote/internal/infra/logger"
	"bleremote/internal/usecase/session"
)

// withSession runs fn against a freshly bootstrapped session and prints a
// friendly explanation when it fails.
func withSession(fn func(ctx context.Context, a *app) error) error {
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

	if err := fn(ctx, a); err != nil {
		fmt.Fprintln(os.Stderr, uxerror.Humanize(err).Render())
		return err
	}
	return nil
}

func runScan() error {
	return withSession(func(ctx context.Context, a *app) error {
		fmt.Fprintf(os.Stderr, "Scanning for %s%s\n", a.cfg.BLE.ScanTimeout, theme.SymbolEllipsis)
		devices, err := a.session.Scan(ctx)
		if err != nil {
			return err
		}
		fmt.Println(renderDeviceTable(devices))
		return nil
	})
}

func runExplore(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: bleremote explore <address>")
	}
	address := strings.ToLower(args[0])
	return withSession(func(ctx context.Context, a *app) error {
		fmt.Fprintf(os.Stderr, "Connecting to %s%s\n", address, theme.SymbolEllipsis)
		if err := a.session.Connect(ctx, address); err != nil {
			return err
		}
		snap, err := a.session.Snapshot(ctx)
		if err != nil {
			return err
		}
		fmt.Println(renderGATTTree(snap))
		return nil
	})
}

// renderDeviceTable lists scan results strongest signal first, the order the
// session already keeps.
func renderDeviceTable(devices []domain.DiscoveredDevice) string {
	if len(devices) == 0 {
		return "No devices found."
	}
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		conn := "no"
		if d.Connectable {
			conn = "yes"
		}
		rows = append(rows, []string{d.DisplayName(), d.Address, strconv.Itoa(d.RSSI), conn})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.SectionTitle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("NAME", "ADDRESS", "RSSI", "CONNECTABLE").
		Rows(rows...)
	return t.String()
}

// renderGATTTree prints the services and characteristics of the connected
// peripheral, marking the write target.
func renderGATTTree(snap session.Snapshot) string {
	name := snap.DeviceName
	if name == "" {
		name = snap.Address
	}
	root := tree.Root(theme.Bold.Render(name) + " " + theme.Dim.Render(snap.Address)).
		Enumerator(tree.RoundedEnumerator)
	for _, svc := range snap.Services {
		node := tree.Root(svc.UUID + " " + theme.Dim.Render(string(svc.State)))
		for _, c := range svc.Characteristics {
			label := c.Label()
			if snap.Target != nil && snap.Target.UUID == c.UUID {
				label += " " + theme.TextAccent.Render(theme.SymbolArrowR+" target")
			}
			node.Child(label)
		}
		root.Child(node)
	}
	if len(snap.Services) == 0 {
		root.Child(theme.Dim.Render("no services"))
	}
	return root.String()
}

func runEncrypt(args []string) error {
	value := ""
	if len(args) > 0 {
		value = args[0]
	} else {
		v, err := readSecret("Token to encrypt: ")
		if err != nil {
			return err
		}
		value = v
	}

	passphrase := os.Getenv("BLEREMOTE_CONFIG_KEY")
	if passphrase == "" {
		p, err := readSecret("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readSecret("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if p != confirm {
			return fmt.Errorf("passphrases do not match")
		}
		passphrase = p
	}

	out, err := encryptToken(value, passphrase)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// encryptToken returns the config form of an encrypted gateway token.
func encryptToken(value, passphrase string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("nothing to encrypt")
	}
	if passphrase == "" {
		return "", fmt.Errorf("passphrase is empty")
	}
	enc, err := config.EncryptValue(value, passphrase)
	if err != nil {
		return "", err
	}
	return "enc:" + enc, nil
}

var stdin = bufio.NewReader(os.Stdin)

// readSecret prompts on stderr and reads one line, without echo when stdin
// is a terminal.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return readLine(stdin)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
