// Package panel is the terminal control panel: a device list, the GATT
// tree of the connected peripheral and two sliders mirrored by text fields.
// Every action is forwarded to the session; the panel redraws from session
// snapshots pulled whenever a bus event arrives.
package panel

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bleremote/internal/adapter/tui/components"
	"bleremote/internal/adapter/tui/theme"
	"bleremote/internal/adapter/tui/uxerror"
	"bleremote/internal/domain"
	"bleremote/internal/usecase/session"
)

// Ensure *Model satisfies tea.Model.
var _ tea.Model = (*Model)(nil)

// Session is the part of the session the panel drives.
type Session interface {
	Scan(ctx context.Context) ([]domain.DiscoveredDevice, error)
	Connect(ctx context.Context, address string) error
	Disconnect(ctx context.Context) error
	Snapshot(ctx context.Context) (session.Snapshot, error)
	Characteristics(ctx context.Context, serviceUUID string) ([]domain.CharacteristicRecord, error)
	SelectCharacteristic(ctx context.Context, uuid string) (domain.CharacteristicRecord, error)
	SetControl(ctx context.Context, axis domain.Axis, value int) (domain.Controls, error)
	SetControlText(ctx context.Context, axis domain.Axis, text string) (domain.Controls, error)
	Center(ctx context.Context, axis domain.Axis) (domain.Controls, error)
	Stop(ctx context.Context) (domain.Controls, error)
	SendNow(ctx context.Context) error
	Profile() domain.Profile
}

// Deps are dependencies for the panel.
type Deps struct {
	Session Session
	Bus     domain.EventBus // can be nil
	Logger  *slog.Logger
	Title   string
	Width   int
	Height  int
}

type focus int

const (
	focusDevices focus = iota
	focusServices
	focusForward
	focusTurn
	focusCount
)

// gattRow is one line of the services pane: a service, or one of the
// characteristics of an expanded service.
type gattRow struct {
	service string
	char    *domain.CharacteristicRecord
}

// Model is the root Bubble Tea model of the control panel.
type Model struct {
	deps Deps
	keys keyMap

	statusBar components.StatusBarModel
	modal     components.ModalModel
	help      help.Model
	spinner   spinner.Model
	sliders   [2]components.SliderModel
	inputs    [2]textinput.Model
	activity  components.ActivityModel

	snap      session.Snapshot
	focus     focus
	devCursor int
	rowCursor int
	expanded  map[string]bool
	chars     map[string][]domain.CharacteristicRecord
	editing   bool
	scanning  bool
	linking   bool
	showLog   bool
	notice    string // one-line feedback under the controls
	width     int
	height    int

	programSend func(tea.Msg)
	unsubscribe func()
}

// activityHeight is the number of log lines shown under the controls.
const activityHeight = 4

var axes = [2]domain.Axis{domain.AxisForward, domain.AxisTurn}

// New creates the panel model.
func New(deps Deps) *Model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Title == "" {
		deps.Title = "BLE Remote"
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	profile := deps.Session.Profile()
	m := &Model{
		deps:      deps,
		keys:      defaultKeys(),
		statusBar: components.NewStatusBar(),
		modal:     components.NewModal(),
		help:      help.New(),
		spinner:   s,
		expanded:  make(map[string]bool),
		chars:     make(map[string][]domain.CharacteristicRecord),
		activity:  components.NewActivity(),
		showLog:   true,
		width:     deps.Width,
		height:    deps.Height,
	}
	for i, a := range axes {
		m.sliders[i] = components.NewSlider(axisLabel(profile, a), profile.RangeOf(a))
		m.inputs[i] = newValueInput(profile.RangeOf(a))
	}
	m.snap.Controls = profile.DefaultControls()
	m.syncControls(m.snap.Controls)
	m.layout()
	return m
}

func axisLabel(p domain.Profile, a domain.Axis) string {
	if p.Name == "byte" {
		if a == domain.AxisForward {
			return "id"
		}
		return "value"
	}
	return string(a)
}

func newValueInput(r domain.Range) textinput.Model {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Width = 6
	ti.CharLimit = len(strconv.Itoa(r.Min))
	if n := len(strconv.Itoa(r.Max)); n > ti.CharLimit {
		ti.CharLimit = n
	}
	ti.Cursor.SetMode(cursor.CursorStatic)
	ti.PromptStyle = theme.InputPrompt
	ti.PlaceholderStyle = theme.InputPlaceholder
	return ti
}

// SetProgramSender sets the function used to inject bus events.
// Must be called before Run().
func (m *Model) SetProgramSender(send func(tea.Msg)) {
	m.programSend = send
}

// Init subscribes to the bus and pulls the first snapshot.
func (m *Model) Init() tea.Cmd {
	if m.deps.Bus != nil && m.programSend != nil {
		m.unsubscribe = m.deps.Bus.SubscribeAll(func(_ context.Context, event domain.Event) {
			m.programSend(EventBusMsg{Event: event})
		})
	}
	return snapshotCmd(m.deps.Session)
}

func (m *Model) quit() tea.Cmd {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	return tea.Quit
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		if m.modal.Visible {
			if msg.Type == tea.KeyCtrlC {
				return m, m.quit()
			}
			var cmd tea.Cmd
			m.modal, cmd = m.modal.Update(msg)
			return m, cmd
		}
		if m.editing {
			return m, m.updateEditing(msg)
		}
		return m, m.handleKey(msg)

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventBusMsg:
		return m, m.handleEvent(msg.Event)

	case snapshotMsg:
		if msg.err != nil {
			m.deps.Logger.Debug("panel snapshot failed", "error", msg.err)
			return m, nil
		}
		m.applySnapshot(msg.snap)
		return m, nil

	case scanDoneMsg:
		m.scanning = false
		m.statusBar.Extra = ""
		if msg.err != nil {
			m.showError(msg.err)
			return m, snapshotCmd(m.deps.Session)
		}
		m.snap.Devices = msg.devices
		m.devCursor = theme.Clamp(m.devCursor, 0, max(len(msg.devices)-1, 0))
		m.notice = theme.SymbolSuccess + " found " + strconv.Itoa(len(msg.devices)) + " device(s)"
		return m, snapshotCmd(m.deps.Session)

	case connectDoneMsg:
		m.linking = false
		m.statusBar.Extra = ""
		if msg.err != nil {
			m.showError(msg.err)
		} else {
			m.focus = focusServices
			m.rowCursor = 0
		}
		return m, snapshotCmd(m.deps.Session)

	case charsMsg:
		if msg.err != nil {
			m.notice = uxerror.Humanize(msg.err).Line()
			return m, nil
		}
		m.chars[msg.service] = msg.chars
		return m, nil

	case controlsMsg:
		if msg.err != nil {
			m.notice = theme.SymbolWarning + " " + uxerror.Humanize(msg.err).Line()
			if !errors.Is(msg.err, domain.ErrInvalidInput) {
				// The session did not answer; fall back to its last snapshot.
				m.syncControls(m.snap.Controls)
				return m, nil
			}
		} else if msg.fromText {
			m.notice = ""
		}
		m.snap.Controls = msg.controls
		m.syncControls(msg.controls)
		return m, nil

	case opDoneMsg:
		if msg.err != nil {
			if msg.op == "send" || msg.op == "select" {
				m.showError(msg.err)
			} else {
				m.notice = uxerror.Humanize(msg.err).Line()
			}
		}
		return m, snapshotCmd(m.deps.Session)
	}
	return m, nil
}

func (m *Model) busy() bool { return m.scanning || m.linking }

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	s := m.deps.Session
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Help):
		m.modal.Open(components.ModalInfo, "Help", renderHelp(m.width-6))
		return nil
	case key.Matches(msg, m.keys.NextFocus):
		m.setFocus((m.focus + 1) % focusCount)
		return nil
	case key.Matches(msg, m.keys.PrevFocus):
		m.setFocus((m.focus + focusCount - 1) % focusCount)
		return nil
	case key.Matches(msg, m.keys.Scan):
		if m.scanning {
			return nil
		}
		m.scanning = true
		m.notice = ""
		m.statusBar.Extra = "Scanning" + theme.SymbolEllipsis
		return tea.Batch(scanCmd(s), m.spinner.Tick)
	case key.Matches(msg, m.keys.Disconnect):
		return disconnectCmd(s)
	case key.Matches(msg, m.keys.Activity):
		m.showLog = !m.showLog
		return nil
	case key.Matches(msg, m.keys.Stop):
		return stopCmd(s)
	}

	switch m.focus {
	case focusDevices:
		return m.handleDeviceKey(msg)
	case focusServices:
		return m.handleServiceKey(msg)
	default:
		return m.handleSliderKey(msg)
	}
}

func (m *Model) handleDeviceKey(msg tea.KeyMsg) tea.Cmd {
	n := len(m.snap.Devices)
	switch {
	case key.Matches(msg, m.keys.Up):
		m.devCursor = theme.Clamp(m.devCursor-1, 0, max(n-1, 0))
	case key.Matches(msg, m.keys.Down):
		m.devCursor = theme.Clamp(m.devCursor+1, 0, max(n-1, 0))
	case key.Matches(msg, m.keys.Enter):
		if n == 0 || m.linking {
			return nil
		}
		dev := m.snap.Devices[m.devCursor]
		m.linking = true
		m.notice = ""
		m.expanded = make(map[string]bool)
		m.chars = make(map[string][]domain.CharacteristicRecord)
		m.statusBar.Extra = "Connecting to " + dev.DisplayName() + theme.SymbolEllipsis
		m.deps.Logger.Debug("panel connect", "address", dev.Address)
		return tea.Batch(connectCmd(m.deps.Session, dev.Address), m.spinner.Tick)
	}
	return nil
}

// rows flattens the GATT tree for the services pane.
func (m *Model) rows() []gattRow {
	var out []gattRow
	for _, svc := range m.snap.Services {
		out = append(out, gattRow{service: svc.UUID})
		if !m.expanded[svc.UUID] {
			continue
		}
		chars, ok := m.chars[svc.UUID]
		if !ok {
			chars = svc.Characteristics
		}
		for i := range chars {
			out = append(out, gattRow{service: svc.UUID, char: &chars[i]})
		}
	}
	return out
}

func (m *Model) handleServiceKey(msg tea.KeyMsg) tea.Cmd {
	rows := m.rows()
	switch {
	case key.Matches(msg, m.keys.Up):
		m.rowCursor = theme.Clamp(m.rowCursor-1, 0, max(len(rows)-1, 0))
	case key.Matches(msg, m.keys.Down):
		m.rowCursor = theme.Clamp(m.rowCursor+1, 0, max(len(rows)-1, 0))
	case key.Matches(msg, m.keys.Enter):
		if len(rows) == 0 {
			return nil
		}
		row := rows[theme.Clamp(m.rowCursor, 0, len(rows)-1)]
		if row.char != nil {
			return selectCmd(m.deps.Session, row.char.UUID)
		}
		m.expanded[row.service] = !m.expanded[row.service]
		if m.expanded[row.service] {
			return charsCmd(m.deps.Session, row.service)
		}
	}
	return nil
}

func (m *Model) handleSliderKey(msg tea.KeyMsg) tea.Cmd {
	idx := int(m.focus - focusForward)
	axis := axes[idx]
	step := func(delta int) tea.Cmd {
		v := m.sliders[idx].Step(delta)
		m.inputs[idx].SetValue(strconv.Itoa(v))
		return setControlCmd(m.deps.Session, axis, v)
	}
	switch {
	case key.Matches(msg, m.keys.Up):
		m.setFocus(focusForward)
	case key.Matches(msg, m.keys.Down):
		m.setFocus(focusTurn)
	case key.Matches(msg, m.keys.Left):
		return step(-1)
	case key.Matches(msg, m.keys.Right):
		return step(1)
	case key.Matches(msg, m.keys.BigLeft):
		return step(-10)
	case key.Matches(msg, m.keys.BigRight):
		return step(10)
	case key.Matches(msg, m.keys.Center):
		return centerCmd(m.deps.Session, axis)
	case key.Matches(msg, m.keys.Edit):
		m.editing = true
		m.inputs[idx].SetValue("")
		return m.inputs[idx].Focus()
	case key.Matches(msg, m.keys.Enter):
		return sendCmd(m.deps.Session)
	}
	return nil
}

// updateEditing routes keys to the focused text field. Enter applies the
// text, Esc restores the field from the slider.
func (m *Model) updateEditing(msg tea.KeyMsg) tea.Cmd {
	idx := int(m.focus - focusForward)
	switch msg.Type {
	case tea.KeyCtrlC:
		return m.quit()
	case tea.KeyEnter:
		text := m.inputs[idx].Value()
		m.stopEditing(idx)
		return setTextCmd(m.deps.Session, axes[idx], text)
	case tea.KeyEsc:
		m.stopEditing(idx)
		return nil
	}
	var cmd tea.Cmd
	m.inputs[idx], cmd = m.inputs[idx].Update(msg)
	return cmd
}

func (m *Model) stopEditing(idx int) {
	m.editing = false
	m.inputs[idx].Blur()
	m.inputs[idx].SetValue(strconv.Itoa(m.sliders[idx].Value))
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	m.sliders[0].Focused = f == focusForward
	m.sliders[1].Focused = f == focusTurn
}

func (m *Model) handleEvent(e domain.Event) tea.Cmd {
	m.activity.Add(e)
	switch e.Type {
	case domain.EventConnectionError:
		var p domain.ConnectionErrorPayload
		if decodePayload(e, &p) && p.Code == domain.CodeRemoteClosed {
			m.modal.Open(components.ModalError, "Device Disconnected", p.Message)
		}
	case domain.EventPayloadFailed:
		var p domain.WritePayload
		if decodePayload(e, &p) && p.Error != "" {
			m.notice = theme.SymbolError + " write failed: " + p.Error
		}
	case domain.EventPayloadSent:
		var p domain.WritePayload
		if decodePayload(e, &p) {
			m.notice = theme.SymbolSuccess + " sent " + formatBytes(p.Bytes)
		}
	}
	return snapshotCmd(m.deps.Session)
}

// applySnapshot adopts session state and keeps cursors in range.
func (m *Model) applySnapshot(snap session.Snapshot) {
	m.snap = snap
	if !m.editing {
		m.syncControls(snap.Controls)
	}
	m.devCursor = theme.Clamp(m.devCursor, 0, max(len(snap.Devices)-1, 0))
	m.rowCursor = theme.Clamp(m.rowCursor, 0, max(len(m.rows())-1, 0))
	if snap.State == domain.StateDisconnected {
		m.expanded = make(map[string]bool)
		m.chars = make(map[string][]domain.CharacteristicRecord)
	}

	m.statusBar.State = snap.State
	m.statusBar.Backend = snap.Backend
	m.statusBar.Device = snap.DeviceName
	if m.statusBar.Device == "" {
		m.statusBar.Device = snap.Address
	}
	m.statusBar.Target = ""
	if snap.Target != nil {
		m.statusBar.Target = shortUUID(snap.Target.UUID)
	}
}

// syncControls mirrors values into the sliders and text fields.
func (m *Model) syncControls(c domain.Controls) {
	for i, a := range axes {
		m.sliders[i].Value = c.Get(a)
		if !m.inputs[i].Focused() {
			m.inputs[i].SetValue(strconv.Itoa(c.Get(a)))
		}
	}
}

func (m *Model) showError(err error) {
	fe := uxerror.Humanize(err)
	m.deps.Logger.Warn("panel error", "title", fe.Title, "error", err)
	m.modal.Open(components.ModalError, fe.Title, fe.Render())
}

func (m *Model) layout() {
	w := m.width
	if w <= 0 {
		w = 80
	}
	h := m.height
	if h <= 0 {
		h = 28
	}
	m.statusBar.SetWidth(w)
	m.modal.SetSize(w, h)
	m.help.Width = w
	for i := range m.sliders {
		m.sliders[i].SetWidth(w - 32)
	}
	m.activity.SetSize(w-6, activityHeight)
}

// Run starts the panel program and blocks until the user quits or ctx ends.
func Run(ctx context.Context, deps Deps) error {
	m := New(deps)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	m.SetProgramSender(p.Send)
	_, err := p.Run()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return err
}
