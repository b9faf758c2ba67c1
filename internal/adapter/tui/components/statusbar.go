package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"bleremote/internal/adapter/tui/theme"
	"bleremote/internal/domain"
)

// StatusBarModel renders the connection status line: state and device on
// the left, activity and backend on the right.
type StatusBarModel struct {
	State   domain.ConnectionState
	Device  string // name or address of the linked peripheral
	Target  string // active write characteristic
	Backend string
	Extra   string // transient activity, e.g. "Scanning…"
	width   int
}

// NewStatusBar creates a status bar in the disconnected state.
func NewStatusBar() StatusBarModel {
	return StatusBarModel{State: domain.StateDisconnected}
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the status bar as a single line.
func (m StatusBarModel) View() string {
	state := m.State
	if state == "" {
		state = domain.StateDisconnected
	}
	left := theme.StatusKey.Render("Status: ") + theme.StateStyle(state).Render(string(state))
	if m.Device != "" {
		left += " " + theme.SymbolArrowR + " " + m.Device
	}
	if m.Target != "" {
		left += theme.Dim.Render("  [" + m.Target + "]")
	}

	var parts []string
	if m.Extra != "" {
		parts = append(parts, theme.TextInfo.Render(m.Extra))
	}
	if m.Backend != "" {
		parts = append(parts, theme.TextMuted.Render(m.Backend))
	}
	right := strings.Join(parts, "  "+theme.SymbolBullet+"  ")

	leftW := lipgloss.Width(left)
	rightW := lipgloss.Width(right)
	gap := m.width - leftW - rightW - 2
	if gap < 1 {
		gap = 1
	}

	bar := left + strings.Repeat(" ", gap) + right
	return theme.StatusBar.Width(m.width).Render(bar)
}
