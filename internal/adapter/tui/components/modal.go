package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bleremote/internal/adapter/tui/theme"
)

// ModalKind picks the modal border colour.
type ModalKind int

const (
	ModalInfo ModalKind = iota
	ModalError
)

// ModalModel is an overlay viewport used for error dialogs and the help sheet.
type ModalModel struct {
	Viewport viewport.Model
	Title    string
	Kind     ModalKind
	Visible  bool
	width    int
	height   int
}

// NewModal creates a modal.
func NewModal() ModalModel {
	return ModalModel{}
}

// Open shows the modal with the given content.
func (m *ModalModel) Open(kind ModalKind, title, content string) {
	m.Title = title
	m.Kind = kind
	m.Visible = true
	w, h := m.width-4, m.height-4
	if m.width <= 0 {
		w, h = 76, 20
	}
	m.Viewport = viewport.New(w, h)
	m.Viewport.MouseWheelEnabled = true
	m.Viewport.SetContent(content)
}

// Close hides the modal.
func (m *ModalModel) Close() {
	m.Visible = false
}

// SetSize updates the modal dimensions.
func (m *ModalModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.Visible {
		m.Viewport.Width = w - 4
		m.Viewport.Height = h - 4
	}
}

// Update handles modal keys: Esc, q and Enter close, j/k scroll.
func (m ModalModel) Update(msg tea.Msg) (ModalModel, tea.Cmd) {
	if !m.Visible {
		return m, nil
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc", "q", "enter":
			m.Close()
			return m, nil
		case "j", "down":
			m.Viewport.LineDown(3)
			return m, nil
		case "k", "up":
			m.Viewport.LineUp(3)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	return m, cmd
}

// View renders the modal overlay.
func (m ModalModel) View() string {
	if !m.Visible {
		return ""
	}

	border := theme.ColorBorderActive
	title := theme.Bold.Render("  " + m.Title)
	if m.Kind == ModalError {
		border = theme.ColorError
		title = theme.TextError.Render("  " + theme.SymbolError + " " + m.Title)
	}

	scrollInfo := theme.TextMuted.Render(fmt.Sprintf(" %.0f%%", m.Viewport.ScrollPercent()*100))
	footer := theme.Dim.Render("  Esc/Enter: close  j/k: scroll") + "  " + scrollInfo

	inner := lipgloss.JoinVertical(lipgloss.Left, title, m.Viewport.View(), footer)

	style := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(border).
		Padding(0, 1)
	if m.width > 0 {
		style = style.Width(m.width - 2).Height(m.height - 2)
	}
	return style.Render(inner)
}
