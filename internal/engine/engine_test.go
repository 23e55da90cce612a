package engine

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/gifscrub/internal/config"
	"github.com/ivlev/gifscrub/internal/host"
	"github.com/ivlev/gifscrub/internal/renderer"
)

var palette = color.Palette{color.RGBA{R: 255, A: 255}, color.RGBA{B: 255, A: 255}, color.RGBA{G: 255, A: 255}}

// encodeGIF builds a 4x4 animation with one frame per colour index, each
// shown for 100ms.
func encodeGIF(colours ...uint8) ([]byte, error) {
	g := &gif.GIF{Config: image.Config{ColorModel: palette, Width: 4, Height: 4}}
	for _, c := range colours {
		img := image.NewPaletted(image.Rect(0, 0, 4, 4), palette)
		for i := range img.Pix {
			img.Pix[i] = c
		}
		g.Image = append(g.Image, img)
		g.Delay = append(g.Delay, 10)
	}
	var buf bytes.Buffer
	err := gif.EncodeAll(&buf, g)
	return buf.Bytes(), err
}

func writeGIF(t *testing.T, path string, colours ...uint8) {
	t.Helper()
	data, err := encodeGIF(colours...)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func startHost(t *testing.T) *host.Host {
	t.Helper()
	h := host.New(120)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.Workers = 2
	cfg.Viewport = config.Viewport{Width: 80, Height: 80}
	return cfg
}

func newEngine(t *testing.T, cfg config.Config, h *host.Host) (*Engine, *renderer.MemorySink) {
	t.Helper()
	sink := renderer.NewMemorySink()
	e, err := New(cfg, h, sink)
	require.NoError(t, err)
	return e, sink
}

func TestLoadBuildsSession(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clip.gif")
	writeGIF(t, path, 0, 0, 1)

	e, sink := newEngine(t, testConfig(t), startHost(t))
	require.NoError(t, e.Load(ctx, path))
	assert.Equal(t, path, e.Path())

	err := e.Call(ctx, func(s *Session) error {
		assert.Equal(t, 2, s.Timeline.Len())
		assert.Equal(t, 1, s.Timeline.Collapsed())
		assert.Equal(t, 300.0, s.Timeline.TotalDuration())
		assert.Equal(t, s.Timeline.ID(), s.ID)
		assert.NotNil(t, s.Sketch)
		return nil
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return sink.Frames() > 0 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, e.Close(ctx))
}

func TestCallWithoutSession(t *testing.T) {
	e, _ := newEngine(t, testConfig(t), startHost(t))
	err := e.Call(context.Background(), func(*Session) error { return nil })
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestLoadMissingFile(t *testing.T) {
	e, _ := newEngine(t, testConfig(t), startHost(t))
	assert.Error(t, e.Load(context.Background(), filepath.Join(t.TempDir(), "nope.gif")))
}

func TestTrimPersistsAcrossRuns(t *testing.T) {
	ctx := context.Background()
	h := startHost(t)
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "clip.gif")
	writeGIF(t, path, 0, 1, 2)

	first, _ := newEngine(t, cfg, h)
	require.NoError(t, first.Load(ctx, path))
	require.NoError(t, first.Call(ctx, func(s *Session) error {
		s.Clock.SetTrimStart(100)
		s.Clock.SetTrimEnd(200)
		return nil
	}))
	require.NoError(t, first.Close(ctx))

	second, _ := newEngine(t, cfg, h)
	require.NoError(t, second.Load(ctx, path))
	require.NoError(t, second.Call(ctx, func(s *Session) error {
		assert.Equal(t, 100.0, s.Timeline.TrimStart())
		assert.Equal(t, 200.0, s.Timeline.TrimEnd())
		assert.Equal(t, 100.0, s.Clock.CurrentTime())
		return nil
	}))
	require.NoError(t, second.Close(ctx))
}

func TestStaleTrimIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := startHost(t)
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "clip.gif")
	writeGIF(t, path, 0, 1, 2)

	first, _ := newEngine(t, cfg, h)
	require.NoError(t, first.Load(ctx, path))
	require.NoError(t, first.Call(ctx, func(s *Session) error {
		s.Clock.SetTrimStart(100)
		return nil
	}))
	require.NoError(t, first.Close(ctx))

	// the file now has a different shape
	writeGIF(t, path, 0, 1, 2, 0, 1)
	second, _ := newEngine(t, cfg, h)
	require.NoError(t, second.Load(ctx, path))
	require.NoError(t, second.Call(ctx, func(s *Session) error {
		assert.Equal(t, 0.0, s.Timeline.TrimStart())
		return nil
	}))
	require.NoError(t, second.Close(ctx))
}

func TestFilterOptionsPersist(t *testing.T) {
	ctx := context.Background()
	h := startHost(t)
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "clip.gif")
	writeGIF(t, path, 0, 1)

	first, _ := newEngine(t, cfg, h)
	require.NoError(t, first.Load(ctx, path))
	require.NoError(t, first.Call(ctx, func(s *Session) error {
		o := s.Renderer.Filter().Options()
		o.OnionSkinEnabled = true
		o.Steps = 2
		return first.SetFilterOptions(o)
	}))
	require.NoError(t, first.Close(ctx))

	second, _ := newEngine(t, cfg, h)
	require.NoError(t, second.Load(ctx, path))
	require.NoError(t, second.Call(ctx, func(s *Session) error {
		o := s.Renderer.Filter().Options()
		assert.True(t, o.OnionSkinEnabled)
		assert.Equal(t, 2, o.Steps)
		return nil
	}))
	require.NoError(t, second.Close(ctx))
}

func TestReloadReplacesSession(t *testing.T) {
	ctx := context.Background()
	h := startHost(t)
	e, _ := newEngine(t, testConfig(t), h)
	path := filepath.Join(t.TempDir(), "clip.gif")
	writeGIF(t, path, 0, 1)

	var changes int
	require.NoError(t, h.Call(ctx, func() error {
		e.Events.SessionChanged.On(func(*Session) { changes++ })
		return nil
	}))

	require.NoError(t, e.Load(ctx, path))
	var old *Session
	require.NoError(t, e.Call(ctx, func(s *Session) error { old = s; return nil }))

	require.NoError(t, e.Load(ctx, path))
	require.NoError(t, e.Call(ctx, func(s *Session) error {
		assert.NotSame(t, old, s)
		assert.True(t, old.Clock.Destroyed())
		assert.Equal(t, 2, changes)
		return nil
	}))
	require.NoError(t, e.Close(ctx))
}

func TestWatchReloadsOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, _ := newEngine(t, testConfig(t), startHost(t))
	path := filepath.Join(t.TempDir(), "clip.gif")
	writeGIF(t, path, 0, 1)
	require.NoError(t, e.Load(ctx, path))

	done := make(chan error, 1)
	go func() { done <- e.Watch(ctx) }()

	assert.Eventually(t, func() bool {
		var n int
		_ = e.Call(ctx, func(s *Session) error { n = s.Timeline.Len(); return nil })
		if n == 3 {
			return true
		}
		data, _ := encodeGIF(0, 1, 2)
		_ = os.WriteFile(path, data, 0o644)
		return false
	}, 5*time.Second, 400*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestStateKey(t *testing.T) {
	assert.Equal(t, StateKey("a.gif"), StateKey("./a.gif"))
	assert.NotEqual(t, StateKey("a.gif"), StateKey("b.gif"))
	assert.Regexp(t, `^timeline-[0-9a-f-]{36}$`, StateKey("a.gif"))
}
