package components

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"bleremote/internal/domain"
)

func TestSliderStepClamps(t *testing.T) {
	s := NewSlider("forward", domain.Range{Min: -100, Max: 100, Default: 0})
	assert.Equal(t, 0, s.Value)
	assert.Equal(t, 10, s.Step(10))
	assert.Equal(t, 100, s.Step(500))
	assert.Equal(t, -100, s.Step(-1000))
}

func TestSliderKnobPosition(t *testing.T) {
	s := NewSlider("id", domain.Range{Min: 0, Max: 255, Default: 127})
	s.SetWidth(52)
	s.Value = 0
	assert.Equal(t, 0, s.Knob())
	s.Value = 255
	assert.Equal(t, 51, s.Knob())
	s.Value = 127
	assert.Equal(t, 25, s.Knob())
}

func TestSliderView(t *testing.T) {
	s := NewSlider("turn", domain.Range{Min: -90, Max: 90, Default: 0})
	s.Value = -20
	assert.Contains(t, s.View(), " -20")
	assert.Contains(t, s.View(), "turn")
}

func TestStatusBarView(t *testing.T) {
	sb := NewStatusBar()
	sb.SetWidth(100)
	sb.State = domain.StateConnected
	sb.Device = "ESP32-Rover"
	sb.Backend = "sim"
	out := sb.View()
	assert.Contains(t, out, "connected")
	assert.Contains(t, out, "ESP32-Rover")
	assert.Contains(t, out, "sim")
}

func TestModalOpenClose(t *testing.T) {
	m := NewModal()
	m.SetSize(80, 24)
	m.Open(ModalError, "Bluetooth Is Off", "turn Bluetooth on")
	assert.True(t, m.Visible)
	assert.True(t, strings.Contains(m.View(), "Bluetooth Is Off"))

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.Visible)
	assert.Empty(t, m.View())
}

func TestActivityKeepsLatestEntries(t *testing.T) {
	a := NewActivity()
	a.SetSize(80, 4)
	assert.Contains(t, a.View(), "No activity yet.")

	a.Add(domain.NewEvent(domain.EventControlChanged, "", domain.Controls{Forward: 1}))
	assert.Equal(t, 0, a.Len(), "control changes are not logged")

	for i := 0; i < maxActivityEntries+10; i++ {
		a.Add(domain.NewEvent(domain.EventPayloadSent, "", domain.WritePayload{Bytes: []int{i % 256, 0}}))
	}
	assert.Equal(t, maxActivityEntries, a.Len())
	assert.Contains(t, a.View(), "payload.sent")
}

func TestSummarize(t *testing.T) {
	ev := func(typ domain.EventType, payload any) domain.Event {
		e := domain.NewEvent(typ, "", payload)
		e.Timestamp = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		return e
	}

	assert.Contains(t, Summarize(ev(domain.EventConnectionState, domain.ConnectionStatePayload{
		From: domain.StateConnecting, To: domain.StateDiscovering, Address: "aa:bb",
	})), "connecting")
	assert.Equal(t, "REMOTE_CLOSED: gone", Summarize(ev(domain.EventConnectionError, domain.ConnectionErrorPayload{
		Code: domain.CodeRemoteClosed, Message: "gone",
	})))
	assert.Equal(t, "[20 236] busy", Summarize(ev(domain.EventPayloadFailed, domain.WritePayload{
		Bytes: []int{20, 236}, Error: "busy",
	})))
	assert.Equal(t, "Rover -50 dBm", Summarize(ev(domain.EventDeviceFound, domain.DiscoveredDevice{
		Name: "Rover", Address: "aa:bb", RSSI: -50,
	})))
	assert.Equal(t, "ff00 fully_discovered", Summarize(ev(domain.EventServiceState, domain.ServiceStatePayload{
		UUID: "ff00", State: domain.ServiceFullyDiscovered,
	})))
	assert.Empty(t, Summarize(domain.Event{Type: domain.EventScanStarted}))
}
