package integration

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bleremote/internal/adapter/central/goble"
	"bleremote/internal/adapter/central/sim"
	"bleremote/internal/domain"
	"bleremote/internal/infra/config"
	"bleremote/internal/usecase/eventbus"
	"bleremote/internal/usecase/session"
)

func newHardwareSession(t *testing.T, it *Config) *session.Session {
	t.Helper()
	cfg := config.Defaults()
	cfg.BLE.AdapterID = it.AdapterID
	cfg.BLE.ScanTimeout = 8 * time.Second

	central := goble.New(goble.Config{AdapterID: it.AdapterID}, slog.Default())
	bus := eventbus.New(slog.Default())
	s := session.New(central, bus, cfg, slog.Default())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Disconnect(ctx)
		_ = s.Close()
		_ = central.Close()
		bus.Close()
	})
	return s
}

func TestE2E_ScanFindsDevice(t *testing.T) {
	SkipIfShort(t)
	it := LoadConfig()
	SkipIfNoDevice(t, it)
	ctx := NewTestContext(t, it.TestTimeout)

	s := newHardwareSession(t, it)
	devices, err := s.Scan(ctx)
	require.NoError(t, err)

	var found bool
	for _, d := range devices {
		if d.Address == it.Address {
			found = true
		}
	}
	assert.True(t, found, "%s not among %d devices", it.Address, len(devices))
}

func TestE2E_ConnectDiscoverAndStop(t *testing.T) {
	SkipIfShort(t)
	it := LoadConfig()
	SkipIfNoDevice(t, it)
	if it.SkipSlow {
		t.Skip("slow test")
	}
	ctx := NewTestContext(t, it.TestTimeout)

	s := newHardwareSession(t, it)
	_, err := s.Scan(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Connect(ctx, it.Address))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateConnected, snap.State)
	require.NotNil(t, snap.Target, "device exposes no writable characteristic")

	_, err = s.Stop(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, err := s.Snapshot(ctx)
		return err == nil && len(snap.LastSent) == 2
	}, 5*time.Second, 50*time.Millisecond)
}

// TestE2E_SharedSessionEventOrder drives one session from two callers, as
// the panel and a gateway client do, and checks both see one event order.
func TestE2E_SharedSessionEventOrder(t *testing.T) {
	SkipIfShort(t)
	ctx := NewTestContext(t, 10*time.Second)

	cfg := config.Defaults()
	cfg.BLE.Backend = "sim"
	cfg.BLE.ScanTimeout = 50 * time.Millisecond
	cfg.Control.SendMode = "immediate"

	central := sim.NewDemo()
	central.SetAdvertisingInterval(time.Millisecond)
	bus := eventbus.New(slog.Default())
	s := session.New(central, bus, cfg, slog.Default())
	s.Start(ctx)
	t.Cleanup(func() {
		_ = s.Close()
		bus.Close()
	})

	var mu sync.Mutex
	var panelSeen, gatewaySeen []domain.EventType
	record := func(dst *[]domain.EventType) domain.EventHandler {
		return func(_ context.Context, e domain.Event) {
			mu.Lock()
			*dst = append(*dst, e.Type)
			mu.Unlock()
		}
	}
	bus.SubscribeAll(record(&panelSeen))
	bus.SubscribeAll(record(&gatewaySeen))

	devices, err := s.Scan(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, devices)
	require.NoError(t, s.Connect(ctx, devices[0].Address))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(v int) {
			defer wg.Done()
			_, _ = s.SetControl(ctx, domain.AxisForward, v)
		}(i)
		go func(v int) {
			defer wg.Done()
			_, _ = s.SetControl(ctx, domain.AxisTurn, -v)
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.Disconnect(ctx))

	// Closing the bus drains both mailboxes.
	_ = s.Close()
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, panelSeen)
	assert.Contains(t, panelSeen, domain.EventControlChanged)
	assert.Equal(t, panelSeen, gatewaySeen)
}
