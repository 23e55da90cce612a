package playback

import "time"

const (
	DefaultFPS = 60
	// MaxAccumulated is how much unconsumed time (ms) the loop tolerates
	// before it drops the backlog instead of catching up.
	MaxAccumulated = 10000.0
)

// Loop is a fixed-timestep loop: elapsed real time is consumed in steps of
// 1000/fps ms through update, then render runs once per scheduled frame.
type Loop struct {
	sched  Scheduler
	step   float64
	update func(deltaMS float64)
	render func()

	running bool
	gen     int
	last    time.Time
	acc     float64
	cancel  func()
}

// NewLoop creates a stopped loop. Either callback may be nil.
func NewLoop(sched Scheduler, fps int, update func(deltaMS float64), render func()) *Loop {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Loop{
		sched:  sched,
		step:   1000 / float64(fps),
		update: update,
		render: render,
	}
}

// Step returns the fixed timestep in milliseconds.
func (l *Loop) Step() float64 { return l.step }

func (l *Loop) Running() bool { return l.running }

// Play (re)starts the loop from the scheduler's current time.
func (l *Loop) Play() {
	l.Stop()
	l.running = true
	l.last = l.sched.Now()
	l.acc = 0
	gen := l.gen
	l.cancel = l.sched.RequestFrame(func(now time.Time) { l.frame(gen, now) })
}

// Stop cancels the pending frame. No callback runs after Stop returns.
func (l *Loop) Stop() {
	l.gen++
	l.running = false
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *Loop) frame(gen int, now time.Time) {
	if gen != l.gen {
		return
	}
	l.cancel = l.sched.RequestFrame(func(now time.Time) { l.frame(gen, now) })

	elapsed := float64(now.Sub(l.last)) / float64(time.Millisecond)
	l.last = now
	if elapsed < 0 {
		elapsed = 0
	}
	l.acc += elapsed
	if l.acc > MaxAccumulated {
		l.acc = 0
		return
	}

	for l.acc > l.step {
		l.acc -= l.step
		if l.update != nil {
			l.update(l.step)
		}
		if gen != l.gen {
			return
		}
	}
	if l.render != nil {
		l.render()
	}
}
