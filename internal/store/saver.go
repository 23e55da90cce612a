package store

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDebounce is how long Saver waits for a record to settle.
const DefaultDebounce = 300 * time.Millisecond

type pendingWrite struct {
	version int
	value   any
	timer   *time.Timer
}

// Saver coalesces bursts of writes per key and performs them off the
// caller's goroutine once the key has been quiet for the debounce delay.
type Saver struct {
	store *FileStore
	delay time.Duration
	log   zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingWrite
	closed  bool
	wg      sync.WaitGroup
}

func NewSaver(s *FileStore, delay time.Duration, log zerolog.Logger) *Saver {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Saver{store: s, delay: delay, log: log, pending: make(map[string]*pendingWrite)}
}

// Save schedules value to be written under key. A later Save for the same
// key replaces the value and restarts the delay. The value must not be
// mutated afterwards.
func (s *Saver) Save(key string, version int, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if p, ok := s.pending[key]; ok {
		p.version, p.value = version, value
		p.timer.Reset(s.delay)
		return
	}
	p := &pendingWrite{version: version, value: value}
	s.wg.Add(1)
	p.timer = time.AfterFunc(s.delay, func() { s.fire(key, p) })
	s.pending[key] = p
}

func (s *Saver) fire(key string, p *pendingWrite) {
	s.mu.Lock()
	if s.pending[key] != p {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	version, value := p.version, p.value
	s.mu.Unlock()

	defer s.wg.Done()
	s.write(key, version, value)
}

func (s *Saver) write(key string, version int, value any) {
	if err := s.store.Set(key, version, value); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("failed to persist state")
		return
	}
	s.log.Debug().Str("key", key).Int("version", version).Msg("state saved")
}

// Flush writes everything still pending and waits for in-flight writes.
func (s *Saver) Flush() {
	s.mu.Lock()
	due := make(map[string]*pendingWrite)
	for key, p := range s.pending {
		// a timer that already fired is finished by fire itself
		if p.timer.Stop() {
			due[key] = p
			delete(s.pending, key)
		}
	}
	s.mu.Unlock()

	for key, p := range due {
		s.write(key, p.version, p.value)
		s.wg.Done()
	}
	s.wg.Wait()
}

// Close flushes and rejects further saves.
func (s *Saver) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Flush()
}
