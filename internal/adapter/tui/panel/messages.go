package panel

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"bleremote/internal/domain"
	"bleremote/internal/usecase/session"
)

// EventBusMsg wraps a domain.Event from the bus subscription.
type EventBusMsg struct {
	Event domain.Event
}

type snapshotMsg struct {
	snap session.Snapshot
	err  error
}

type scanDoneMsg struct {
	devices []domain.DiscoveredDevice
	err     error
}

type connectDoneMsg struct {
	address string
	err     error
}

type charsMsg struct {
	service string
	chars   []domain.CharacteristicRecord
	err     error
}

type controlsMsg struct {
	controls domain.Controls
	axis     domain.Axis
	fromText bool
	err      error
}

// opDoneMsg reports operations whose only result is an error.
type opDoneMsg struct {
	op  string
	err error
}

// callTimeout bounds the short session calls. Scan and connect carry their
// own bounds.
const callTimeout = 5 * time.Second

func shortCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), callTimeout)
}

func snapshotCmd(s Session) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := shortCtx()
		defer cancel()
		snap, err := s.Snapshot(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

func scanCmd(s Session) tea.Cmd {
	return func() tea.Msg {
		devices, err := s.Scan(context.Background())
		return scanDoneMsg{devices: devices, err: err}
	}
}

func connectCmd(s Session, address string) tea.Cmd {
	return func() tea.Msg {
		return connectDoneMsg{address: address, err: s.Connect(context.Background(), address)}
	}
}

func disconnectCmd(s Session) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := shortCtx()
		defer cancel()
		return opDoneMsg{op: "disconnect", err: s.Disconnect(ctx)}
	}
}

func charsCmd(s Session, service string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := shortCtx()
		defer cancel()
		chars, err := s.Characteristics(ctx, service)
		return charsMsg{service: service, chars: chars, err: err}
	}
}

func selectCmd(s Session, uuid string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := shortCtx()
		defer cancel()
		_, err := s.SelectCharacteristic(ctx, uuid)
		return opDoneMsg{op: "select", err: err}
	}
}

func sendCmd(s Session) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := shortCtx()
		defer cancel()
		return opDoneMsg{op: "send", err: s.SendNow(ctx)}
	}
}

func setControlCmd(s Session, axis domain.Axis, v int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := shortCtx()
		defer cancel()
		c, err := s.SetControl(ctx, axis, v)
		return controlsMsg{controls: c, axis: axis, err: err}
	}
}

func setTextCmd(s Session, axis domain.Axis, text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := shortCtx()
		defer cancel()
		c, err := s.SetControlText(ctx, axis, text)
		return controlsMsg{controls: c, axis: axis, fromText: true, err: err}
	}
}

func centerCmd(s Session, axis domain.Axis) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := shortCtx()
		defer cancel()
		c, err := s.Center(ctx, axis)
		return controlsMsg{controls: c, axis: axis, err: err}
	}
}

func stopCmd(s Session) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := shortCtx()
		defer cancel()
		c, err := s.Stop(ctx)
		return controlsMsg{controls: c, err: err}
	}
}
