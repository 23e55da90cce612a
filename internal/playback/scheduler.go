package playback

import "time"

// Scheduler is the tick source the loop runs on: a one-shot "call me on the
// next frame" request, like an animation-frame callback. Implementations
// call fn on the same goroutine that requested it.
type Scheduler interface {
	RequestFrame(fn func(now time.Time)) (cancel func())
	Now() time.Time
}

type frameRequest struct {
	fn        func(now time.Time)
	cancelled bool
}

// FrameQueue is a manually driven Scheduler. Requests made while a frame is
// being fired wait for the next Fire call.
type FrameQueue struct {
	now     time.Time
	pending []*frameRequest
}

// NewFrameQueue creates a queue whose clock starts at start.
func NewFrameQueue(start time.Time) *FrameQueue {
	return &FrameQueue{now: start}
}

func (q *FrameQueue) Now() time.Time { return q.now }

func (q *FrameQueue) RequestFrame(fn func(now time.Time)) (cancel func()) {
	r := &frameRequest{fn: fn}
	q.pending = append(q.pending, r)
	return func() { r.cancelled = true }
}

// Fire runs every request queued before the call with the given time and
// returns how many ran.
func (q *FrameQueue) Fire(now time.Time) int {
	if now.After(q.now) {
		q.now = now
	}
	batch := q.pending
	q.pending = nil
	ran := 0
	for _, r := range batch {
		if r.cancelled {
			continue
		}
		r.cancelled = true
		r.fn(q.now)
		ran++
	}
	return ran
}

// Advance moves the clock forward by d and fires one frame.
func (q *FrameQueue) Advance(d time.Duration) int {
	return q.Fire(q.now.Add(d))
}

// Pending reports how many live requests wait for the next frame.
func (q *FrameQueue) Pending() int {
	n := 0
	for _, r := range q.pending {
		if !r.cancelled {
			n++
		}
	}
	return n
}
