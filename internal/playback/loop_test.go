package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoopFixedTimestep(t *testing.T) {
	q := NewFrameQueue(time.Unix(0, 0))
	var steps []float64
	renders := 0
	l := NewLoop(q, 50, func(d float64) { steps = append(steps, d) }, func() { renders++ })

	l.Play()
	q.Advance(45 * time.Millisecond) // 2 steps of 20ms, 5ms carried
	assert.Equal(t, []float64{20, 20}, steps)
	assert.Equal(t, 1, renders)

	q.Advance(16 * time.Millisecond) // 21ms accumulated
	assert.Len(t, steps, 3)
	assert.Equal(t, 2, renders)

	q.Advance(time.Millisecond) // 2ms accumulated, render only
	assert.Len(t, steps, 3)
	assert.Equal(t, 3, renders)
}

func TestLoopDropsLargeBacklog(t *testing.T) {
	q := NewFrameQueue(time.Unix(0, 0))
	updates := 0
	renders := 0
	l := NewLoop(q, 60, func(float64) { updates++ }, func() { renders++ })

	l.Play()
	q.Advance(11 * time.Second)
	assert.Equal(t, 0, updates)
	assert.Equal(t, 0, renders)
	assert.True(t, l.Running())

	q.Advance(40 * time.Millisecond)
	assert.Equal(t, 2, updates)
}

func TestLoopStopCancelsPendingFrame(t *testing.T) {
	q := NewFrameQueue(time.Unix(0, 0))
	updates := 0
	l := NewLoop(q, 60, func(float64) { updates++ }, nil)

	l.Play()
	l.Stop()
	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, 0, q.Advance(time.Second))
	assert.Equal(t, 0, updates)
	assert.False(t, l.Running())
}

func TestLoopStopFromUpdate(t *testing.T) {
	q := NewFrameQueue(time.Unix(0, 0))
	var l *Loop
	updates := 0
	renders := 0
	l = NewLoop(q, 60, func(float64) {
		updates++
		l.Stop()
	}, func() { renders++ })

	l.Play()
	q.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, updates)
	assert.Equal(t, 0, renders)
	assert.Equal(t, 0, q.Pending())
}

func TestLoopRestartResetsClock(t *testing.T) {
	q := NewFrameQueue(time.Unix(0, 0))
	updates := 0
	l := NewLoop(q, 60, func(float64) { updates++ }, nil)

	l.Play()
	l.Stop()
	q.Fire(q.Now().Add(5 * time.Second))

	l.Play()
	q.Advance(20 * time.Millisecond)
	assert.Equal(t, 1, updates, "time spent stopped is not replayed")
}

func TestFrameQueueDefersNestedRequests(t *testing.T) {
	q := NewFrameQueue(time.Unix(0, 0))
	calls := 0
	var tick func(time.Time)
	tick = func(time.Time) {
		calls++
		q.RequestFrame(tick)
	}
	q.RequestFrame(tick)

	assert.Equal(t, 1, q.Advance(time.Millisecond))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, q.Pending())
}
