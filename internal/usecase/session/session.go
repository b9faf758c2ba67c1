// Package session owns the single BLE controller of the application: the
// scan results, the connection lifecycle, GATT discovery, the active write
// target and the two control values.
//
// All state lives on one event-loop goroutine. Public methods hand a closure
// to the loop and block until it has run; backend callbacks and the debounce
// timer post closures the same way, so nothing outside the loop touches the
// session's fields.
package session

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"bleremote/internal/domain"
	"bleremote/internal/infra/config"
	"bleremote/internal/usecase/transmit"
)

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	SessionID    string                       `json:"session_id,omitempty"`
	Backend      string                       `json:"backend"`
	State        domain.ConnectionState       `json:"state"`
	Address      string                       `json:"address,omitempty"`
	DeviceName   string                       `json:"device_name,omitempty"`
	Scanning     bool                         `json:"scanning"`
	Devices      []domain.DiscoveredDevice    `json:"devices"`
	Services     []domain.ServiceRecord       `json:"services"`
	Target       *domain.CharacteristicRecord `json:"target,omitempty"`
	Profile      domain.Profile               `json:"profile"`
	Controls     domain.Controls              `json:"controls"`
	Payload      []int                        `json:"payload"`
	SendMode     transmit.Mode                `json:"send_mode"`
	WithResponse bool                         `json:"with_response"`
	LastSent     []int                        `json:"last_sent,omitempty"`
	LastError    string                       `json:"last_error,omitempty"`
}

// Session is the explicitly owned controller of one BLE peripheral link.
type Session struct {
	central domain.Central
	bus     domain.EventBus
	ble     config.BLEConfig
	profile domain.Profile
	tx      *transmit.Transmitter
	logger  *slog.Logger

	ops     chan func()
	quit    chan struct{}
	stopped chan struct{}
	start   sync.Once
	stop    sync.Once

	// Loop-owned state below.
	ctx        context.Context
	cancel     context.CancelFunc
	entropy    io.Reader
	state      domain.ConnectionState
	sessionID  string
	address    string
	deviceName string
	periph     domain.Peripheral
	linkGen    uint64
	linkCancel context.CancelFunc
	waiter     chan error

	scanning   bool
	devices    []domain.DiscoveredDevice
	deviceIdx  map[string]int
	services   []*domain.ServiceRecord
	serviceIdx map[string]*domain.ServiceRecord
	inDetails  int
	target     *domain.CharacteristicRecord

	controls  domain.Controls
	armed     bool
	lastSent  []int
	lastError string
}

// New creates a session. Call Start before using it.
func New(central domain.Central, bus domain.EventBus, cfg *config.Config, logger *slog.Logger) *Session {
	now := time.Now()
	profile := cfg.Control.ResolveProfile()
	s := &Session{
		central:    central,
		bus:        bus,
		ble:        cfg.BLE,
		profile:    profile,
		logger:     logger.With("component", "session"),
		ops:        make(chan func()),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		ctx:        context.Background(),
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0),
		state:      domain.StateDisconnected,
		deviceIdx:  make(map[string]int),
		serviceIdx: make(map[string]*domain.ServiceRecord),
		controls:   profile.DefaultControls(),
	}
	s.tx = transmit.New(cfg.Control, s.onDebounceExpired, s.onWriteResult, s.logger)
	return s
}

// Start runs the event loop and the writer until ctx is cancelled or Close
// is called.
func (s *Session) Start(ctx context.Context) {
	s.start.Do(func() {
		s.ctx, s.cancel = context.WithCancel(ctx)
		s.tx.Start(s.ctx)
		go s.run(s.ctx)
	})
}

// Close disconnects, stops the loop and waits for an in-flight write.
func (s *Session) Close() error {
	s.stop.Do(func() { close(s.quit) })
	s.start.Do(func() { close(s.stopped) }) // never started
	<-s.stopped
	if s.cancel != nil {
		s.cancel()
	}
	s.tx.Close()
	return nil
}

// Done is closed once the loop has exited.
func (s *Session) Done() <-chan struct{} { return s.stopped }

// Profile returns the value ranges in effect.
func (s *Session) Profile() domain.Profile { return s.profile }

// Backend names the BLE central in use.
func (s *Session) Backend() string { return s.central.Name() }

func (s *Session) run(ctx context.Context) {
	defer close(s.stopped)
	for {
		select {
		case op := <-s.ops:
			op()
		case <-ctx.Done():
			s.shutdown()
			return
		case <-s.quit:
			s.shutdown()
			return
		}
	}
}

func (s *Session) shutdown() {
	if p := s.teardown(domain.ErrSessionClosed); p != nil {
		if err := p.Disconnect(); err != nil {
			s.logger.Debug("disconnect on shutdown", "error", err)
		}
	}
}

// call runs fn on the loop and waits for it.
func (s *Session) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	op := func() {
		defer close(done)
		fn()
	}
	select {
	case s.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return domain.ErrSessionClosed
	}
	<-done
	return nil
}

// post hands fn to the loop from a backend goroutine. It gives up silently
// once the loop has exited.
func (s *Session) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.stopped:
	}
}

func (s *Session) publish(t domain.EventType, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(s.ctx, domain.NewEvent(t, s.sessionID, payload))
}

func (s *Session) newSessionID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// setState moves along the transition table and publishes the change.
func (s *Session) setState(next domain.ConnectionState) bool {
	from := s.state
	to, err := from.Transition(next)
	if err != nil {
		s.logger.Warn("rejected connection state change", "error", err)
		return false
	}
	s.state = to
	s.logger.Debug("connection state", "from", from, "to", to, "address", s.address)
	s.publish(domain.EventConnectionState, domain.ConnectionStatePayload{From: from, To: to, Address: s.address})
	return true
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.call(ctx, func() { snap = s.snapshot() })
	return snap, err
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:    s.sessionID,
		Backend:      s.central.Name(),
		State:        s.state,
		Address:      s.address,
		DeviceName:   s.deviceName,
		Scanning:     s.scanning,
		Devices:      append([]domain.DiscoveredDevice{}, s.devices...),
		Services:     s.copyServices(),
		Profile:      s.profile,
		Controls:     s.controls,
		Payload:      bytesToInts(s.controls.Payload()),
		SendMode:     s.tx.Mode(),
		WithResponse: s.tx.WithResponse(),
		LastSent:     s.lastSent,
		LastError:    s.lastError,
	}
	if s.target != nil {
		t := *s.target
		snap.Target = &t
	}
	return snap
}

// State returns the connection state.
func (s *Session) State(ctx context.Context) (domain.ConnectionState, error) {
	var st domain.ConnectionState
	err := s.call(ctx, func() { st = s.state })
	return st, err
}

func bytesToInts(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}
