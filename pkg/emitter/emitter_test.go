package emitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickbus/tickbus/pkg/hub"
	"github.com/tickbus/tickbus/pkg/logger"
	"github.com/tickbus/tickbus/pkg/signal"
	"github.com/tickbus/tickbus/pkg/timer"
)

func newTestHub(t *testing.T) *hub.Hub {
	t.Helper()
	return hub.New(hub.WithLogger(logger.Discard()))
}

func collect(t *testing.T, h *hub.Hub, name string) *[]Pulse {
	t.Helper()
	var got []Pulse
	_, err := signal.Subscribe(h.Bus(), Key(name), func(p Pulse) {
		got = append(got, p)
	})
	require.NoError(t, err)
	return &got
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{name: "valid", spec: Spec{Signal: "spawn", Interval: time.Second}},
		{name: "valid range", spec: Spec{Signal: "spawn", Interval: time.Second, MaxInterval: 2 * time.Second}},
		{name: "empty signal", spec: Spec{Interval: time.Second}, wantErr: true},
		{name: "zero interval", spec: Spec{Signal: "spawn"}, wantErr: true},
		{name: "inverted range", spec: Spec{Signal: "spawn", Interval: 2 * time.Second, MaxInterval: time.Second}, wantErr: true},
		{name: "negative count", spec: Spec{Signal: "spawn", Interval: time.Second, Count: -1}, wantErr: true},
		{name: "negative delay", spec: Spec{Signal: "spawn", Interval: time.Second, Delay: -time.Second}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStart_RejectsInvalidSpecsWithoutStarting(t *testing.T) {
	h := newTestHub(t)

	_, err := Start(h, "world", []Spec{
		{Signal: "ok", Interval: time.Second},
		{Signal: "", Interval: time.Second},
	}, WithLogger(logger.Discard()))
	require.Error(t, err)
	assert.Equal(t, 0, h.Scheduler("world").Len())
}

func TestStart_FixedInterval(t *testing.T) {
	h := newTestHub(t)
	pulses := collect(t, h, "spawn")

	set, err := Start(h, "world", []Spec{{Signal: "spawn", Interval: 100 * time.Millisecond}},
		WithLogger(logger.Discard()))
	require.NoError(t, err)
	require.Len(t, set.Timers(), 1)

	for i := 0; i < 5; i++ {
		h.Tick(timer.LaneNormal, 50*time.Millisecond)
	}

	require.Len(t, *pulses, 2)
	assert.Equal(t, Pulse{Signal: "spawn", Seq: 1, Interval: 100 * time.Millisecond}, (*pulses)[0])
	assert.Equal(t, 2, (*pulses)[1].Seq)
}

func TestStart_DrawsEachIntervalFromRange(t *testing.T) {
	h := newTestHub(t)
	pulses := collect(t, h, "spawn")

	draws := []int64{0, 200_000_000, 100_000_000}
	var ns []int64
	next := func(n int64) int64 {
		ns = append(ns, n)
		v := draws[0]
		draws = append(draws[1:], draws[0])
		return v
	}

	_, err := Start(h, "world", []Spec{{
		Signal:      "spawn",
		Interval:    100 * time.Millisecond,
		MaxInterval: 300 * time.Millisecond,
	}}, WithRand(next), WithLogger(logger.Discard()))
	require.NoError(t, err)

	// first interval 100ms, then 300ms, then 200ms
	h.Tick(timer.LaneNormal, 100*time.Millisecond)
	h.Tick(timer.LaneNormal, 299*time.Millisecond)
	require.Len(t, *pulses, 1)
	h.Tick(timer.LaneNormal, time.Millisecond)
	require.Len(t, *pulses, 2)
	h.Tick(timer.LaneNormal, 200*time.Millisecond)
	require.Len(t, *pulses, 3)

	assert.Equal(t, 100*time.Millisecond, (*pulses)[0].Interval)
	assert.Equal(t, 300*time.Millisecond, (*pulses)[1].Interval)
	assert.Equal(t, 200*time.Millisecond, (*pulses)[2].Interval)
	for _, n := range ns {
		assert.Equal(t, int64(200*time.Millisecond)+1, n)
	}
}

func TestStart_CountClearsTimer(t *testing.T) {
	h := newTestHub(t)
	pulses := collect(t, h, "wave")

	set, err := Start(h, "world", []Spec{{Signal: "wave", Interval: 10 * time.Millisecond, Count: 3}},
		WithLogger(logger.Discard()))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		h.Tick(timer.LaneNormal, 10*time.Millisecond)
	}

	assert.Len(t, *pulses, 3)
	assert.Empty(t, set.Timers())
	assert.Equal(t, 0, h.Scheduler("world").Len())
	assert.Equal(t, 0, set.Stop())
}

func TestStart_DelayAndLane(t *testing.T) {
	h := newTestHub(t)
	pulses := collect(t, h, "physics")

	_, err := Start(h, "world", []Spec{{
		Signal:   "physics",
		Lane:     timer.LaneFixed,
		Interval: 20 * time.Millisecond,
		Delay:    time.Second,
	}}, WithLogger(logger.Discard()))
	require.NoError(t, err)

	h.Tick(timer.LaneNormal, 2*time.Second)
	assert.Empty(t, *pulses)

	h.Tick(timer.LaneFixed, 999*time.Millisecond)
	assert.Empty(t, *pulses)
	h.Tick(timer.LaneFixed, time.Millisecond)
	require.Len(t, *pulses, 1)
	assert.Equal(t, time.Second, (*pulses)[0].Interval)

	h.Tick(timer.LaneFixed, 20*time.Millisecond)
	require.Len(t, *pulses, 2)
	assert.Equal(t, 20*time.Millisecond, (*pulses)[1].Interval)
}

func TestSet_Stop(t *testing.T) {
	h := newTestHub(t)
	pulses := collect(t, h, "a")

	set, err := Start(h, "world", []Spec{
		{Signal: "a", Interval: 10 * time.Millisecond},
		{Signal: "b", Interval: 10 * time.Millisecond},
	}, WithLogger(logger.Discard()))
	require.NoError(t, err)

	assert.Equal(t, 2, set.Stop())
	h.Tick(timer.LaneNormal, time.Second)
	assert.Empty(t, *pulses)
	assert.Equal(t, 0, set.Stop())
}

func TestStart_ConflictingPayloadType(t *testing.T) {
	h := newTestHub(t)
	require.NoError(t, signal.Define(h.Bus(), signal.NewKey[int]("taken")))

	_, err := Start(h, "world", []Spec{
		{Signal: "free", Interval: time.Second},
		{Signal: "taken", Interval: time.Second},
	}, WithLogger(logger.Discard()))
	require.ErrorIs(t, err, signal.ErrPayloadMismatch)
	assert.Equal(t, 0, h.Scheduler("world").Len())
}
