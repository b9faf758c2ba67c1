package transmit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"bleremote/internal/domain"
	"bleremote/internal/infra/config"
)

// Mode selects when control changes reach the radio.
type Mode string

const (
	ModeDebounce  Mode = "debounce"
	ModeImmediate Mode = "immediate"
	ModeManual    Mode = "manual"
)

// Default settings used when the config leaves them zero.
const (
	defaultDebounce     = 100 * time.Millisecond
	defaultWriteTimeout = 2 * time.Second
	defaultMaxFailures  = 5
	defaultBreakerOpen  = 3 * time.Second
)

// Frame is one write: the payload and where it goes.
type Frame struct {
	Peripheral domain.Peripheral
	Target     domain.CharacteristicRecord
	Controls   domain.Controls
	Payload    []byte
}

// Result reports the outcome of a dispatched frame.
type Result struct {
	Frame Frame
	Err   error
	Took  time.Duration
}

// Transmitter decides when control changes are written and performs the
// writes on its own goroutine. Writes are fire-and-forget: Dispatch returns
// at once and the outcome arrives through the result callback. When frames
// arrive faster than the radio accepts them only the newest is kept.
type Transmitter struct {
	mode         Mode
	withResponse bool
	timeout      time.Duration
	breakerCfg   config.BreakerConfig
	debounce     *Debouncer
	limiter      *rate.Limiter
	onResult     func(Result)
	logger       *slog.Logger

	mu      sync.Mutex
	breaker *gobreaker.CircuitBreaker[struct{}]
	pending *Frame
	closed  bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a transmitter. expire is called from a timer goroutine when
// the debounce window closes; the owner is expected to respond by building
// a Frame from its current values and calling Dispatch. onResult is called
// from the writer goroutine.
func New(cfg config.ControlConfig, expire func(), onResult func(Result), logger *slog.Logger) *Transmitter {
	mode := Mode(cfg.SendMode)
	switch mode {
	case ModeDebounce, ModeImmediate, ModeManual:
	default:
		mode = ModeDebounce
	}

	delay := cfg.Debounce
	if delay <= 0 {
		delay = defaultDebounce
	}

	var limiter *rate.Limiter
	if mode == ModeImmediate && cfg.MaxWritesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxWritesPerSecond), 1)
		// Changes refused by the limiter are sent as one trailing write.
		delay = time.Duration(float64(time.Second) / cfg.MaxWritesPerSecond)
	}

	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	if onResult == nil {
		onResult = func(Result) {}
	}

	t := &Transmitter{
		mode:         mode,
		withResponse: cfg.WithResponse(),
		timeout:      timeout,
		breakerCfg:   cfg.Breaker,
		debounce:     NewDebouncer(delay, expire),
		limiter:      limiter,
		onResult:     onResult,
		logger:       logger,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	t.breaker = t.newBreaker()
	return t
}

func (t *Transmitter) newBreaker() *gobreaker.CircuitBreaker[struct{}] {
	maxFailures := t.breakerCfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := t.breakerCfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerOpen
	}
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "ble:write",
		MaxRequests: 1,
		Interval:    t.breakerCfg.Interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.logger.Warn("write circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
}

// Mode returns the active send mode.
func (t *Transmitter) Mode() Mode { return t.mode }

// WithResponse reports whether writes wait for an acknowledgement.
func (t *Transmitter) WithResponse() bool { return t.withResponse }

// Start runs the writer goroutine until ctx is cancelled or Close is called.
func (t *Transmitter) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(ctx)
	}()
}

// Changed records a control change. It reports whether the owner should
// dispatch a frame now; otherwise the change is either waiting on the
// debounce timer or, in manual mode, on an explicit send.
func (t *Transmitter) Changed() bool {
	switch t.mode {
	case ModeManual:
		return false
	case ModeImmediate:
		if t.limiter == nil || t.limiter.Allow() {
			t.debounce.Stop()
			return true
		}
		t.debounce.Trigger()
		return false
	default:
		t.debounce.Trigger()
		return false
	}
}

// Pending reports whether a debounced write is waiting to fire.
func (t *Transmitter) Pending() bool { return t.debounce.Pending() }

// Dispatch queues a frame for writing, replacing any frame not yet written.
func (t *Transmitter) Dispatch(f Frame) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.pending = &f
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Cancel stops the debounce timer and drops any frame not yet written.
func (t *Transmitter) Cancel() {
	t.debounce.Stop()
	t.mu.Lock()
	t.pending = nil
	t.mu.Unlock()
}

// ResetLink cancels pending work and starts a fresh circuit breaker for a
// new connection.
func (t *Transmitter) ResetLink() {
	t.Cancel()
	t.mu.Lock()
	t.breaker = t.newBreaker()
	t.mu.Unlock()
}

// Close stops the writer goroutine and waits for an in-flight write.
func (t *Transmitter) Close() {
	t.debounce.Stop()
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.pending = nil
	t.mu.Unlock()
	close(t.done)
	t.wg.Wait()
}

func (t *Transmitter) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-t.wake:
		}

		for {
			t.mu.Lock()
			f := t.pending
			t.pending = nil
			cb := t.breaker
			t.mu.Unlock()
			if f == nil {
				break
			}

			start := time.Now()
			err := t.write(ctx, cb, *f)
			t.onResult(Result{Frame: *f, Err: err, Took: time.Since(start)})
		}
	}
}

func (t *Transmitter) write(ctx context.Context, cb *gobreaker.CircuitBreaker[struct{}], f Frame) error {
	if f.Peripheral == nil {
		return domain.ErrNoWritableCharacteristic
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	_, err := cb.Execute(func() (struct{}, error) {
		return struct{}{}, f.Peripheral.Write(ctx, f.Target, f.Payload, t.withResponse)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", domain.ErrLinkUnhealthy, err)
	}
	return err
}
