package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickbus/tickbus/pkg/signal"
	"github.com/tickbus/tickbus/pkg/timer"
)

func TestHub_SchedulerIsSharedByName(t *testing.T) {
	h := New()
	world := h.Scheduler("world")

	assert.Same(t, world, h.Scheduler("world"))
	assert.NotSame(t, world, h.Scheduler("ui"))
	assert.Len(t, h.Schedulers(), 2)
	assert.Same(t, h.Timers(), world.Registry())
}

func TestHub_TickAdvancesEverySchedulerOnLane(t *testing.T) {
	h := New()
	var fired []string
	h.Scheduler("a").SetTimeout(func() { fired = append(fired, "a") }, time.Second)
	h.Scheduler("b").SetTimeout(func() { fired = append(fired, "b") }, time.Second)
	h.Scheduler("b").SetTimeout(func() { fired = append(fired, "fixed") }, time.Second,
		timer.WithLane(timer.LaneFixed))

	h.Tick(timer.LaneNormal, time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)

	h.Tick(timer.LaneFixed, time.Second)
	assert.Equal(t, []string{"a", "b", "fixed"}, fired)
}

func TestHub_ClearInstanceAcrossSchedulers(t *testing.T) {
	h := New()
	tm := h.Scheduler("world").SetInterval(func() {}, time.Second)

	assert.True(t, h.ClearInstance(tm))
	assert.False(t, h.ClearInstance(tm))
	assert.Equal(t, 0, h.Timers().Len())
}

func TestHub_Broadcast(t *testing.T) {
	h := New()
	key := signal.NewKey[int]("score")
	var got []int

	_, err := signal.Subscribe(h.Bus(), key, func(v int) { got = append(got, v) })
	require.NoError(t, err)

	h.Broadcast("score")
	require.NoError(t, BroadcastValue(h, key, 42))
	assert.Equal(t, []int{0, 42}, got)

	err = BroadcastValue(h, signal.NewKey[string]("score"), "x")
	assert.ErrorIs(t, err, signal.ErrPayloadMismatch)
}

func TestHub_PostAndDrain(t *testing.T) {
	h := New(WithQueueSize(2))
	ran := 0

	require.NoError(t, h.Post(func() { ran++ }))
	require.NoError(t, h.Post(func() { ran++ }))
	assert.ErrorIs(t, h.Post(func() { ran++ }), ErrQueueFull)

	assert.Equal(t, 2, h.Drain())
	assert.Equal(t, 2, ran)
	assert.Equal(t, 0, h.Drain())
}

func TestHub_Call(t *testing.T) {
	h := New()
	done := make(chan error, 1)
	value := 0

	go func() {
		done <- h.Call(context.Background(), func() { value = 7 })
	}()

	require.Eventually(t, func() bool { return h.Drain() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, <-done)
	assert.Equal(t, 7, value)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.Call(ctx, func() {})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestHub_Shutdown(t *testing.T) {
	h := New()
	notified := 0
	h.Bus().SubscribeFunc(SignalShutdown, func() { notified++ })

	world := h.Scheduler("world")
	world.SetInterval(func() {}, time.Second)
	h.Scheduler("ui").SetTimeout(func() {}, time.Second)
	ran := false
	require.NoError(t, h.Post(func() { ran = true }))

	require.NoError(t, h.Shutdown(context.Background()))
	assert.Equal(t, 1, notified)
	assert.True(t, ran, "pending commands run during shutdown")
	assert.Equal(t, 0, h.Timers().Len())
	assert.True(t, h.Closed())
	assert.ErrorIs(t, h.Post(func() {}), ErrHubClosed)

	require.NoError(t, h.Shutdown(context.Background()))
	assert.Equal(t, 1, notified)

	tm := world.SetTimeout(func() {}, time.Second)
	assert.Nil(t, tm.Scheduler(), "closed schedulers reject timers")
}
