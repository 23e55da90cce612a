// Package host runs the single goroutine that owns all playback, filter and
// render state. Other goroutines (HTTP handlers, file watchers) post work to
// it instead of touching that state directly.
package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/gifscrub/internal/playback"
)

// ErrStopped is returned for work posted after the host has exited.
var ErrStopped = errors.New("host: stopped")

// Host is an event loop with a frame ticker. It implements
// playback.Scheduler; RequestFrame must only be called on the loop itself.
type Host struct {
	fps   int
	cmds  chan func()
	queue *playback.FrameQueue
	done  chan struct{}
	log   zerolog.Logger
}

type Option func(*Host)

func WithLogger(l zerolog.Logger) Option {
	return func(h *Host) { h.log = l }
}

// WithQueueSize sets how many posted commands may wait before Do blocks.
func WithQueueSize(n int) Option {
	return func(h *Host) { h.cmds = make(chan func(), n) }
}

// New creates a host ticking at fps frames per second.
func New(fps int, opts ...Option) *Host {
	if fps <= 0 {
		fps = playback.DefaultFPS
	}
	h := &Host{
		fps:   fps,
		cmds:  make(chan func(), 64),
		queue: playback.NewFrameQueue(time.Now()),
		done:  make(chan struct{}),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Host) Now() time.Time { return time.Now() }

func (h *Host) RequestFrame(fn func(now time.Time)) (cancel func()) {
	return h.queue.RequestFrame(fn)
}

// Run processes commands and frame ticks until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	defer close(h.done)
	ticker := time.NewTicker(time.Second / time.Duration(h.fps))
	defer ticker.Stop()

	h.log.Debug().Int("fps", h.fps).Msg("host loop started")
	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Msg("host loop stopped")
			return ctx.Err()
		case fn := <-h.cmds:
			h.run(fn)
		case now := <-ticker.C:
			h.queue.Fire(now)
		}
	}
}

func (h *Host) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Msg("command panicked")
		}
	}()
	fn()
}

// Do queues fn for the loop. It returns ErrStopped if the loop has exited.
func (h *Host) Do(fn func()) error {
	select {
	case <-h.done:
		return ErrStopped
	default:
	}
	select {
	case h.cmds <- fn:
		return nil
	case <-h.done:
		return ErrStopped
	}
}

// Call runs fn on the loop and waits for its result.
func (h *Host) Call(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	err := h.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				res <- fmt.Errorf("host: command panicked: %v", r)
			}
		}()
		res <- fn()
	})
	if err != nil {
		return err
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrStopped
		}
	}
}

// Done is closed when Run returns.
func (h *Host) Done() <-chan struct{} { return h.done }
