package ratetrack

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	guild  = "g1"
	author = "u1"
)

func TestRecordAndCheck_Debounce(t *testing.T) {
	tr := New(time.Minute, time.Minute)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	interval := 5 * time.Second

	var alerts []bool
	for i := 0; i < 5; i++ {
		alerts = append(alerts, tr.RecordAndCheck(guild, author, base.Add(time.Duration(i)*500*time.Millisecond), 5, interval))
	}
	require.Equal(t, []bool{false, false, false, false, true}, alerts, "fifth message inside the interval triggers")

	alertAt := base.Add(2 * time.Second)
	require.False(t, tr.RecordAndCheck(guild, author, alertAt.Add(time.Second), 5, interval),
		"sixth message a second later is debounced")

	// A fresh burst more than 2*interval after the alert fires again.
	restart := alertAt.Add(11 * time.Second)
	var fired bool
	for i := 0; i < 5; i++ {
		fired = tr.RecordAndCheck(guild, author, restart.Add(time.Duration(i)*100*time.Millisecond), 5, interval)
	}
	require.True(t, fired)
}

func TestRecordAndCheck_WindowExpires(t *testing.T) {
	tr := New(time.Minute, time.Minute)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.False(t, tr.RecordAndCheck(guild, author, base.Add(time.Duration(i)*3*time.Second), 3, 5*time.Second))
	}
}

func TestRecordAndCheck_EntryExactlyIntervalOldIsDropped(t *testing.T) {
	tr := New(time.Minute, time.Minute)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.False(t, tr.RecordAndCheck(guild, author, base, 2, time.Second))
	require.False(t, tr.RecordAndCheck(guild, author, base.Add(time.Second), 2, time.Second))
	require.True(t, tr.RecordAndCheck(guild, author, base.Add(1500*time.Millisecond), 2, time.Second))
}

func TestRecordAndCheck_KeysAreIndependent(t *testing.T) {
	tr := New(time.Minute, time.Minute)
	now := time.Now()

	require.False(t, tr.RecordAndCheck("g1", "u1", now, 2, time.Second))
	require.False(t, tr.RecordAndCheck("g2", "u1", now, 2, time.Second))
	require.False(t, tr.RecordAndCheck("g1", "u2", now, 2, time.Second))
	require.True(t, tr.RecordAndCheck("g1", "u1", now, 2, time.Second))

	require.Equal(t, 3, tr.Len())
	require.Equal(t, 2, tr.Guilds())
}

func TestRecordAndCheck_DisabledThreshold(t *testing.T) {
	tr := New(time.Minute, time.Minute)
	now := time.Now()
	for i := 0; i < 10; i++ {
		require.False(t, tr.RecordAndCheck(guild, author, now, 0, time.Second))
	}
	require.Zero(t, tr.Len(), "disabled checks do not allocate windows")
}

func TestCleanup(t *testing.T) {
	tr := New(time.Minute, time.Minute)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tr.RecordAndCheck("g1", "old", base, 5, time.Second)
	tr.RecordAndCheck("g2", "old", base, 5, time.Second)
	tr.RecordAndCheck("g1", "fresh", base.Add(50*time.Second), 5, time.Second)
	require.Equal(t, 2, tr.Guilds())

	evicted := tr.Cleanup(base.Add(61*time.Second), time.Minute)
	require.Equal(t, 2, evicted)
	require.Equal(t, 1, tr.Len())
	require.Equal(t, 1, tr.Guilds(), "guild with no remaining authors disappears")
}

func TestCleanup_KeepsWindowsLongerThanMaxIdle(t *testing.T) {
	maxIdle := 5 * time.Minute
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("interval above max idle", func(t *testing.T) {
		tr := New(time.Minute, maxIdle)
		interval := 10 * time.Minute

		require.False(t, tr.RecordAndCheck(guild, author, base, 2, interval))
		require.Zero(t, tr.Cleanup(base.Add(maxIdle+time.Second), maxIdle))
		require.True(t, tr.RecordAndCheck(guild, author, base.Add(6*time.Minute), 2, interval),
			"entry inside the interval survives cleanup")
	})

	t.Run("debounce above max idle", func(t *testing.T) {
		tr := New(time.Minute, maxIdle)
		interval := 3 * time.Minute

		require.False(t, tr.RecordAndCheck(guild, author, base, 2, interval))
		require.True(t, tr.RecordAndCheck(guild, author, base.Add(time.Second), 2, interval))

		require.Zero(t, tr.Cleanup(base.Add(5*time.Minute+10*time.Second), maxIdle))
		require.False(t, tr.RecordAndCheck(guild, author, base.Add(5*time.Minute+11*time.Second), 2, interval))
		require.False(t, tr.RecordAndCheck(guild, author, base.Add(5*time.Minute+12*time.Second), 2, interval),
			"alert within twice the interval stays debounced")
	})

	t.Run("evicted once past twice the interval", func(t *testing.T) {
		tr := New(time.Minute, maxIdle)
		tr.RecordAndCheck(guild, author, base, 2, 10*time.Minute)
		require.Equal(t, 1, tr.Cleanup(base.Add(20*time.Minute+time.Second), maxIdle))
		require.Zero(t, tr.Len())
	})
}

func TestStartStop(t *testing.T) {
	var clock atomic.Int64
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock.Store(base.UnixNano())

	tr := New(10*time.Millisecond, time.Second, WithClock(func() time.Time {
		return time.Unix(0, clock.Load()).UTC()
	}))
	tr.RecordAndCheck(guild, author, base, 5, time.Second)

	tr.Start()
	tr.Start()
	defer tr.Stop()

	clock.Store(base.Add(time.Hour).UnixNano())
	require.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)

	tr.Stop()
	tr.Stop()
}

func TestRecordAndCheck_ConcurrentSameKey(t *testing.T) {
	tr := New(time.Minute, time.Minute)
	now := time.Now()

	var wg sync.WaitGroup
	var alerts atomic.Int32
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if tr.RecordAndCheck(guild, author, now, 10, time.Minute) {
				alerts.Add(1)
			}
			tr.RecordAndCheck(guild, fmt.Sprintf("other-%d", i), now, 10, time.Minute)
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), alerts.Load(), "a burst raises exactly one alert")
	require.Equal(t, 201, tr.Len())
}
