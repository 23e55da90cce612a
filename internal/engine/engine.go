// Package engine loads media into a playable session and keeps the session's
// state (trim window, filter options) persisted across runs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ivlev/gifscrub/internal/analyzer"
	"github.com/ivlev/gifscrub/internal/config"
	"github.com/ivlev/gifscrub/internal/event"
	"github.com/ivlev/gifscrub/internal/filter"
	"github.com/ivlev/gifscrub/internal/host"
	"github.com/ivlev/gifscrub/internal/playback"
	"github.com/ivlev/gifscrub/internal/renderer"
	"github.com/ivlev/gifscrub/internal/sketch"
	"github.com/ivlev/gifscrub/internal/source"
	"github.com/ivlev/gifscrub/internal/store"
	"github.com/ivlev/gifscrub/internal/timeline"
)

// ErrNoSession is returned when nothing has been loaded yet.
var ErrNoSession = errors.New("engine: no media loaded")

const (
	filterKey       = "screen-filter"
	filterVersion   = 1
	timelineVersion = 1
)

// Session is everything built for one loaded file. It lives on the host loop.
type Session struct {
	ID       string
	Path     string
	Timeline *timeline.Timeline
	Clock    *playback.Clock
	Renderer *renderer.Renderer
	Sketch   *sketch.Layer

	stateKey string
	offs     []func()
}

func (s *Session) destroy() {
	for _, off := range s.offs {
		off()
	}
	s.offs = nil
	s.Renderer.Destroy()
	s.Clock.Destroy()
}

type Events struct {
	// SessionChanged fires on the host loop after a new session is installed.
	SessionChanged event.Emitter[*Session]
}

// Engine owns the active session. Methods documented as loop-only must run on
// the host goroutine, e.g. inside Call.
type Engine struct {
	Events Events

	cfg    config.Config
	host   *host.Host
	store  *store.FileStore
	saver  *store.Saver
	sink   renderer.Sink
	thumbs *renderer.Thumbnails
	log    zerolog.Logger

	session *Session

	mu   sync.Mutex
	path string
}

type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an engine that renders into sink. State is persisted under
// cfg.StateDir unless it is empty.
func New(cfg config.Config, h *host.Host, sink renderer.Sink, opts ...Option) (*Engine, error) {
	e := &Engine{cfg: cfg, host: h, sink: sink, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}

	thumbs, err := renderer.NewThumbnails(cfg.ThumbCache)
	if err != nil {
		return nil, fmt.Errorf("thumbnail cache: %w", err)
	}
	e.thumbs = thumbs

	if cfg.StateDir != "" {
		fs, err := store.NewFileStore(cfg.StateDir)
		if err != nil {
			return nil, fmt.Errorf("state dir: %w", err)
		}
		e.store = fs
		e.saver = store.NewSaver(fs, store.DefaultDebounce, e.log.With().Str("component", "store").Logger())
	}
	return e, nil
}

func (e *Engine) Config() config.Config { return e.cfg }

func (e *Engine) Thumbnails() *renderer.Thumbnails { return e.thumbs }

// Path is the file the current session was loaded from.
func (e *Engine) Path() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path
}

// Session returns the active session or nil. Loop only.
func (e *Engine) Session() *Session { return e.session }

// Call runs fn with the active session on the host loop.
func (e *Engine) Call(ctx context.Context, fn func(s *Session) error) error {
	return e.host.Call(ctx, func() error {
		if e.session == nil {
			return ErrNoSession
		}
		return fn(e.session)
	})
}

// Exec runs fn on the host loop whether or not a session exists.
func (e *Engine) Exec(ctx context.Context, fn func() error) error {
	return e.host.Call(ctx, fn)
}

// Load decodes path off the loop, then swaps the new session in on the loop
// and destroys the previous one.
func (e *Engine) Load(ctx context.Context, path string) error {
	started := time.Now()
	src, err := source.Open(ctx, path, source.Options{
		FrameDelay: e.cfg.FrameDelayMS,
		VideoFPS:   e.cfg.VideoFPS,
		DPI:        e.cfg.DPI,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	decoded, err := source.Decode(ctx, src, e.cfg.Workers)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	tlOpts := []timeline.Option{
		timeline.WithWorkers(e.cfg.Workers),
		timeline.WithLogger(e.log),
	}
	if e.cfg.CollapseDuplicates {
		m, err := analyzer.NewMatcher(e.cfg.Matcher, e.cfg.MatcherOptions())
		if err != nil {
			return err
		}
		tlOpts = append(tlOpts, timeline.WithMatcher(m))
	}
	tl, err := timeline.New(ctx, decoded, tlOpts...)
	if err != nil {
		return err
	}

	key := StateKey(path)
	e.restoreTrim(tl, key)
	filt := filter.New(e.filterOptions(), tl, filter.WithLogger(e.log))
	if err := filt.Prewarm(ctx, e.cfg.Workers); err != nil {
		return err
	}

	err = e.host.Call(ctx, func() error {
		return e.install(tl, filt, path, key)
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.path = path
	e.mu.Unlock()
	e.thumbs.Purge()

	e.log.Info().
		Str("path", path).
		Str("kind", tl.Source().Kind).
		Int("frames", tl.Len()).
		Int("collapsed", tl.Collapsed()).
		Float64("total_ms", tl.TotalDuration()).
		Dur("took", time.Since(started)).
		Msg("media loaded")
	return nil
}

func (e *Engine) install(tl *timeline.Timeline, filt *filter.Filter, path, key string) error {
	clock, err := playback.New(tl, e.host, e.cfg.FPS,
		playback.WithSpeed(e.cfg.Speed),
		playback.WithLogger(e.log),
	)
	if err != nil {
		return err
	}
	layer := sketch.New(tl.Width(), tl.Height())
	r := renderer.New(clock, filt, e.host, e.sink,
		renderer.WithSketch(layer),
		renderer.WithLogger(e.log),
	)
	r.Resize(e.cfg.Viewport.Width, e.cfg.Viewport.Height)

	s := &Session{
		ID:       tl.ID(),
		Path:     path,
		Timeline: tl,
		Clock:    clock,
		Renderer: r,
		Sketch:   layer,
		stateKey: key,
	}
	if e.saver != nil {
		s.offs = append(s.offs, clock.Events.TimelineChanged.On(func(tl *timeline.Timeline) {
			e.saver.Save(key, timelineVersion, tl.Snapshot())
		}))
	}

	if e.session != nil {
		e.session.destroy()
	}
	e.session = s
	e.Events.SessionChanged.Emit(s)
	return nil
}

func (e *Engine) restoreTrim(tl *timeline.Timeline, key string) {
	if e.store == nil {
		return
	}
	var snap timeline.Snapshot
	ok, err := e.store.Get(key, timelineVersion, &snap)
	if err != nil {
		e.log.Warn().Err(err).Str("key", key).Msg("ignoring stored trim")
		return
	}
	if ok && tl.Restore(snap) {
		e.log.Debug().Float64("start", tl.TrimStart()).Float64("end", tl.TrimEnd()).Msg("trim restored")
	}
}

func (e *Engine) filterOptions() filter.Options {
	opts := e.cfg.Filter
	if e.store == nil {
		return opts
	}
	var stored filter.Options
	ok, err := e.store.Get(filterKey, filterVersion, &stored)
	if err != nil {
		e.log.Warn().Err(err).Msg("ignoring stored filter options")
		return opts
	}
	if ok {
		return stored.Normalize()
	}
	return opts
}

// SetFilterOptions applies o to the active session and persists it. Loop only.
func (e *Engine) SetFilterOptions(o filter.Options) error {
	if e.session == nil {
		return ErrNoSession
	}
	o = o.Normalize()
	e.session.Renderer.SetFilterOptions(o)
	if e.saver != nil {
		e.saver.Save(filterKey, filterVersion, o)
	}
	return nil
}

// Close destroys the session and flushes pending state writes.
func (e *Engine) Close(ctx context.Context) error {
	err := e.host.Call(ctx, func() error {
		if e.session != nil {
			e.session.destroy()
			e.session = nil
		}
		return nil
	})
	if errors.Is(err, host.ErrStopped) {
		err = nil
	}
	if e.saver != nil {
		e.saver.Close()
	}
	return err
}

// StateKey names the persisted trim record for a media path. The same file
// maps to the same key across runs.
func StateKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "timeline-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(path))).String()
}
