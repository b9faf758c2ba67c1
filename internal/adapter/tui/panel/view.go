package panel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"bleremote/internal/adapter/tui/theme"
	"bleremote/internal/domain"
)

// View renders the panel.
func (m *Model) View() string {
	if m.modal.Visible {
		return m.modal.View()
	}

	w := m.width
	if w <= 0 {
		w = theme.MinPanelWidth
	}

	header := theme.Title.Render(m.deps.Title)
	if m.busy() {
		header += " " + m.spinner.View()
	}

	var body string
	if w >= theme.MinPanelWidth {
		half := w/2 - 1
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			m.pane(focusDevices, "Devices", m.devicesView(), half),
			m.pane(focusServices, "Services", m.servicesView(), w-half-2),
		)
	} else {
		body = lipgloss.JoinVertical(lipgloss.Left,
			m.pane(focusDevices, "Devices", m.devicesView(), w-2),
			m.pane(focusServices, "Services", m.servicesView(), w-2),
		)
	}
	controlFocus := focusForward
	if m.focus == focusTurn {
		controlFocus = focusTurn
	}
	controls := m.pane(controlFocus, "Controls", m.controlsView(), w-2)

	parts := []string{header, body, controls}
	if m.showLog {
		parts = append(parts, m.pane(-1, "Activity", m.activity.View(), w-2))
	}
	if m.notice != "" {
		parts = append(parts, " "+m.notice)
	}
	parts = append(parts, m.statusBar.View(), m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// pane draws a bordered section, highlighted when it holds focus.
func (m *Model) pane(f focus, title, content string, width int) string {
	style := theme.UnfocusedBorder
	if m.focus == f {
		style = theme.FocusBorder
	}
	inner := lipgloss.JoinVertical(lipgloss.Left, theme.SectionTitle.Render(title), content)
	return style.Width(max(width-2, 10)).Render(inner)
}

func (m *Model) devicesView() string {
	if len(m.snap.Devices) == 0 {
		if m.scanning {
			return theme.Dim.Render("Scanning" + theme.SymbolEllipsis)
		}
		return theme.Dim.Render("No devices. Press s to scan.")
	}
	var sb strings.Builder
	for i, d := range m.snap.Devices {
		line := fmt.Sprintf("%-20s %s %4d dBm", truncate(d.DisplayName(), 20), theme.Dim.Render(d.Address), d.RSSI)
		if d.Address == m.snap.Address && m.snap.State.IsLinked() {
			line += " " + theme.TextSuccess.Render(theme.SymbolSuccess)
		}
		sb.WriteString(m.cursorLine(m.focus == focusDevices && i == m.devCursor, line))
		if i < len(m.snap.Devices)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func (m *Model) servicesView() string {
	rows := m.rows()
	if len(rows) == 0 {
		switch m.snap.State {
		case domain.StateConnecting:
			return theme.Dim.Render("Connecting" + theme.SymbolEllipsis)
		case domain.StateDiscovering:
			return theme.Dim.Render("Discovering services" + theme.SymbolEllipsis)
		default:
			return theme.Dim.Render("Not connected.")
		}
	}
	var sb strings.Builder
	for i, row := range rows {
		var line string
		if row.char == nil {
			marker := "+"
			if m.expanded[row.service] {
				marker = "-"
			}
			line = marker + " " + shortUUID(row.service) + " " + theme.Dim.Render(m.serviceState(row.service))
		} else {
			line = "    " + shortUUID(row.char.UUID) + " " + theme.Dim.Render(flagsLabel(row.char.Flags))
			if m.snap.Target != nil && m.snap.Target.UUID == row.char.UUID {
				line += " " + theme.TextAccent.Render(theme.SymbolArrowR+" target")
			}
		}
		sb.WriteString(m.cursorLine(m.focus == focusServices && i == m.rowCursor, line))
		if i < len(rows)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func (m *Model) serviceState(uuid string) string {
	for _, s := range m.snap.Services {
		if s.UUID == uuid {
			return string(s.State)
		}
	}
	return ""
}

func (m *Model) controlsView() string {
	var sb strings.Builder
	for i := range m.sliders {
		sb.WriteString(m.sliders[i].View())
		sb.WriteString("  ")
		if m.inputs[i].Focused() {
			sb.WriteString(theme.InputPrompt.Render("> ") + m.inputs[i].View())
		} else {
			sb.WriteString(theme.Dim.Render(m.inputs[i].Value()))
		}
		sb.WriteByte('\n')
	}
	payload := "payload " + formatBytes(m.snap.Payload)
	if m.snap.SendMode != "" {
		payload += theme.Dim.Render("  mode " + string(m.snap.SendMode))
	}
	if len(m.snap.LastSent) > 0 {
		payload += theme.Dim.Render("  last " + formatBytes(m.snap.LastSent))
	}
	sb.WriteString(payload)
	return sb.String()
}

func (m *Model) cursorLine(selected bool, line string) string {
	if selected {
		return theme.Selected.Render(theme.SymbolCursor) + " " + line
	}
	return "  " + line
}

func flagsLabel(f domain.CharFlags) string {
	labels := f.Labels()
	if len(labels) == 0 {
		return ""
	}
	return "(" + strings.Join(labels, ") (") + ")"
}

// shortUUID abbreviates 128-bit UUIDs to their first eight digits.
func shortUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8] + theme.SymbolEllipsis
	}
	return uuid
}

func formatBytes(b []int) string {
	if len(b) == 0 {
		return "[]"
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("0x%02X", v&0xff)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + theme.SymbolEllipsis
}

func decodePayload(e domain.Event, v any) bool {
	if len(e.Payload) == 0 {
		return false
	}
	return json.Unmarshal(e.Payload, v) == nil
}
