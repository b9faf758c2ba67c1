package transmit

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerCollapsesBurst(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { fired.Add(1) })

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, d.Pending())

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, d.Pending())
}

func TestDebouncerRestartsNotAccumulates(t *testing.T) {
	var firedAt atomic.Int64
	d := NewDebouncer(40*time.Millisecond, func() { firedAt.Store(time.Now().UnixNano()) })

	start := time.Now()
	d.Trigger()
	time.Sleep(25 * time.Millisecond)
	d.Trigger()

	assert.Eventually(t, func() bool { return firedAt.Load() != 0 }, time.Second, 5*time.Millisecond)
	elapsed := time.Duration(firedAt.Load() - start.UnixNano())
	assert.GreaterOrEqual(t, elapsed, 65*time.Millisecond)
}

func TestDebouncerStop(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { fired.Add(1) })

	assert.False(t, d.Stop())
	d.Trigger()
	assert.True(t, d.Stop())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 20*time.Millisecond, d.Delay())
}
