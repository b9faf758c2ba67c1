package components

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bleremote/internal/adapter/tui/theme"
	"bleremote/internal/domain"
)

const maxActivityEntries = 200

// ActivityModel is a scrolling log of session events, newest at the bottom.
// It follows new entries until the user scrolls up.
type ActivityModel struct {
	Viewport viewport.Model
	events   []domain.Event
	ready    bool
	atBottom bool
}

// NewActivity creates an empty activity log.
func NewActivity() ActivityModel {
	return ActivityModel{atBottom: true}
}

// SetSize sets the viewport dimensions.
func (m *ActivityModel) SetSize(w, h int) {
	if !m.ready {
		m.Viewport = viewport.New(w, h)
		m.ready = true
	} else {
		m.Viewport.Width = w
		m.Viewport.Height = h
	}
	m.refresh()
}

// Add appends an event. Control changes are skipped; they arrive per slider
// step and the payload line already shows them.
func (m *ActivityModel) Add(e domain.Event) {
	if e.Type == domain.EventControlChanged {
		return
	}
	m.events = append(m.events, e)
	if len(m.events) > maxActivityEntries {
		m.events = m.events[len(m.events)-maxActivityEntries:]
	}
	m.refresh()
	if m.atBottom {
		m.Viewport.GotoBottom()
	}
}

// Len returns the number of retained entries.
func (m ActivityModel) Len() int { return len(m.events) }

// Update handles viewport scrolling.
func (m ActivityModel) Update(msg tea.Msg) (ActivityModel, tea.Cmd) {
	if !m.ready {
		return m, nil
	}
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	m.atBottom = m.Viewport.AtBottom()
	return m, cmd
}

// View renders the log.
func (m ActivityModel) View() string {
	if !m.ready {
		return ""
	}
	return m.Viewport.View()
}

func (m *ActivityModel) refresh() {
	if !m.ready {
		return
	}
	if len(m.events) == 0 {
		m.Viewport.SetContent(theme.TextMuted.Render("No activity yet."))
		return
	}
	lines := make([]string, len(m.events))
	for i, e := range m.events {
		lines[i] = fmt.Sprintf("%s  %s %s",
			theme.Dim.Render(e.Timestamp.Format("15:04:05")),
			activityStyle(e.Type).Render(fmt.Sprintf("%-24s", e.Type)),
			Summarize(e),
		)
	}
	m.Viewport.SetContent(strings.Join(lines, "\n"))
}

func activityStyle(t domain.EventType) lipgloss.Style {
	switch t {
	case domain.EventConnectionError, domain.EventScanFailed, domain.EventPayloadFailed:
		return theme.TextError
	case domain.EventPayloadSent:
		return theme.TextSuccess
	case domain.EventConnectionState:
		return theme.TextWarning
	case domain.EventServiceDiscovered, domain.EventServiceState, domain.EventTargetSelected, domain.EventTargetCleared:
		return theme.TextAccent
	default:
		return theme.TextInfo
	}
}

// Summarize renders the interesting fields of an event payload on one line.
func Summarize(e domain.Event) string {
	if len(e.Payload) == 0 {
		return ""
	}
	switch e.Type {
	case domain.EventConnectionState:
		var p domain.ConnectionStatePayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return fmt.Sprintf("%s %s %s %s", p.From, theme.SymbolArrowR, p.To, p.Address)
		}
	case domain.EventConnectionError, domain.EventScanFailed:
		var p domain.ConnectionErrorPayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return string(p.Code) + ": " + p.Message
		}
	case domain.EventPayloadSent, domain.EventPayloadFailed:
		var p domain.WritePayload
		if json.Unmarshal(e.Payload, &p) == nil {
			s := fmt.Sprint(p.Bytes)
			if p.Error != "" {
				s += " " + p.Error
			}
			return s
		}
	case domain.EventServiceDiscovered, domain.EventServiceState:
		var p domain.ServiceStatePayload
		if json.Unmarshal(e.Payload, &p) == nil {
			return p.UUID + " " + string(p.State)
		}
	case domain.EventDeviceFound:
		var d domain.DiscoveredDevice
		if json.Unmarshal(e.Payload, &d) == nil {
			return fmt.Sprintf("%s %d dBm", d.DisplayName(), d.RSSI)
		}
	case domain.EventTargetSelected:
		var c domain.CharacteristicRecord
		if json.Unmarshal(e.Payload, &c) == nil {
			return c.UUID
		}
	}
	return ""
}
