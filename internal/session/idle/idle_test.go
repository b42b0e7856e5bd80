package idle

import (
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counters struct {
	warnings atomic.Int32
	timeouts atomic.Int32
}

func newMonitor(t *testing.T, c *counters) *Monitor {
	t.Helper()
	m, err := New(Config{
		Timeout:   5 * time.Minute,
		Warning:   time.Minute,
		OnWarning: func() { c.warnings.Add(1) },
		OnTimeout: func() { c.timeouts.Add(1) },
	})
	require.NoError(t, err)
	return m
}

func TestCountdown(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var c counters
		m := newMonitor(t, &c)
		defer m.Close()
		m.Start()

		time.Sleep(4*time.Minute + 30*time.Second)
		synctest.Wait()
		assert.Equal(t, int32(1), c.warnings.Load(), "warning fires once below the threshold")
		assert.Equal(t, State{TimeLeft: 30 * time.Second, IsWarning: true, IsActive: true}, m.State())

		require.True(t, m.Activity(EventMouseMove))
		assert.Equal(t, State{TimeLeft: 5 * time.Minute, IsActive: true}, m.State())

		time.Sleep(4 * time.Minute)
		synctest.Wait()
		assert.Equal(t, int32(2), c.warnings.Load(), "activity starts a new warning cycle")
		assert.Equal(t, int32(0), c.timeouts.Load())

		time.Sleep(time.Minute)
		synctest.Wait()
		assert.Equal(t, int32(1), c.timeouts.Load())
		assert.Equal(t, State{TimeLeft: 0, IsWarning: true, IsActive: false}, m.State())

		time.Sleep(10 * time.Minute)
		synctest.Wait()
		assert.Equal(t, int32(1), c.timeouts.Load(), "timeout fires once per cycle")
		assert.Equal(t, int32(2), c.warnings.Load())
	})
}

func TestStopCancelsCallbacks(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var c counters
		m := newMonitor(t, &c)
		m.Start()

		time.Sleep(2 * time.Minute)
		synctest.Wait()
		m.Stop()
		assert.False(t, m.State().IsActive)

		time.Sleep(10 * time.Minute)
		synctest.Wait()
		assert.Equal(t, int32(0), c.warnings.Load())
		assert.Equal(t, int32(0), c.timeouts.Load())
		assert.False(t, m.Activity(EventClick), "activity is ignored while stopped")
	})
}

func TestResetAfterTimeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var c counters
		m := newMonitor(t, &c)
		defer m.Close()
		m.Start()

		time.Sleep(5 * time.Minute)
		synctest.Wait()
		require.Equal(t, int32(1), c.timeouts.Load())

		m.Reset()
		assert.Equal(t, State{TimeLeft: 5 * time.Minute, IsActive: true}, m.State())

		time.Sleep(5 * time.Minute)
		synctest.Wait()
		assert.Equal(t, int32(2), c.timeouts.Load())
	})
}

func TestCloseIgnoresStart(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var c counters
		m := newMonitor(t, &c)
		m.Close()
		m.Start()

		time.Sleep(10 * time.Minute)
		synctest.Wait()
		assert.False(t, m.State().IsActive)
		assert.Equal(t, int32(0), c.timeouts.Load())
	})
}

func TestActivityFiltersEvents(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var c counters
		m := newMonitor(t, &c)
		defer m.Close()
		m.Start()

		for _, e := range TrackedEvents {
			assert.True(t, m.Activity(e), e)
		}
		assert.False(t, m.Activity(Event("focus")))
	})
}

func TestNewValidatesConfig(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, m.State().TimeLeft)

	_, err = New(Config{Timeout: time.Minute, Warning: time.Minute})
	assert.Error(t, err)
}
