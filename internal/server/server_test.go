package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/gifscrub/internal/config"
	"github.com/ivlev/gifscrub/internal/engine"
	"github.com/ivlev/gifscrub/internal/filter"
	"github.com/ivlev/gifscrub/internal/host"
	"github.com/ivlev/gifscrub/internal/renderer"
)

func writeGIF(t *testing.T, dir string) string {
	t.Helper()
	pal := color.Palette{color.RGBA{R: 255, A: 255}, color.RGBA{B: 255, A: 255}, color.RGBA{G: 255, A: 255}}
	g := &gif.GIF{Config: image.Config{ColorModel: pal, Width: 8, Height: 4}}
	for c := range 3 {
		img := image.NewPaletted(image.Rect(0, 0, 8, 4), pal)
		for i := range img.Pix {
			img.Pix[i] = uint8(c)
		}
		g.Image = append(g.Image, img)
		g.Delay = append(g.Delay, 10)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))
	path := filepath.Join(dir, "clip.gif")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

type fixture struct {
	engine *engine.Engine
	sink   *renderer.MemorySink
	http   *httptest.Server
}

func newFixture(t *testing.T, load bool) *fixture {
	t.Helper()
	h := host.New(120)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.Viewport = config.Viewport{Width: 64, Height: 64}
	sink := renderer.NewMemorySink()
	e, err := engine.New(cfg, h, sink)
	require.NoError(t, err)

	srv := New(e, sink)
	require.NoError(t, srv.Attach(ctx))
	if load {
		require.NoError(t, e.Load(ctx, writeGIF(t, t.TempDir())))
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		e.Close(context.Background())
		cancel()
		<-h.Done()
	})
	return &fixture{engine: e, sink: sink, http: ts}
}

func (f *fixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, cmd Command) Reply {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
	var reply Reply
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

type rawMessage struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func TestHealthWithoutSession(t *testing.T) {
	f := newFixture(t, false)
	resp, err := http.Get(f.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.False(t, h.Loaded)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, true)
	resp, err := http.Get(f.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var h Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.True(t, h.Loaded)
	assert.Equal(t, 3, h.Frames)
	assert.Equal(t, 300.0, h.Total)
	assert.False(t, h.Playing)
}

func TestControlCommands(t *testing.T) {
	f := newFixture(t, true)
	conn := f.dial(t, "/ws/control")

	reply := send(t, conn, Command{Cmd: "seek", Value: 150})
	require.Empty(t, reply.Error)
	require.NotNil(t, reply.State)
	assert.Equal(t, 150.0, reply.State.Time)
	assert.Equal(t, 1, reply.State.Frame.Index)

	reply = send(t, conn, Command{Cmd: "next"})
	assert.Equal(t, 2, reply.State.Frame.Index)

	reply = send(t, conn, Command{Cmd: "trimStart", Value: 100})
	assert.Equal(t, 100.0, reply.State.Timeline.TrimStart)

	reply = send(t, conn, Command{Cmd: "zoom", Value: 2})
	assert.Equal(t, 2.0, reply.State.Camera.Zoom)

	opts := filter.DefaultOptions()
	opts.OnionSkinEnabled = true
	reply = send(t, conn, Command{Cmd: "filter", Filter: &opts})
	require.Empty(t, reply.Error)
	assert.True(t, reply.State.Filter.OnionSkinEnabled)

	reply = send(t, conn, Command{Cmd: "stroke", Tool: "brush", X: 32, Y: 32, ToX: 33, ToY: 32})
	assert.Empty(t, reply.Error)

	reply = send(t, conn, Command{Cmd: "stroke", Tool: "spray"})
	assert.Contains(t, reply.Error, "unknown tool")

	reply = send(t, conn, Command{Cmd: "dance"})
	assert.Contains(t, reply.Error, "unknown command")
}

func TestControlWithoutSession(t *testing.T) {
	f := newFixture(t, false)
	conn := f.dial(t, "/ws/control")
	reply := send(t, conn, Command{Cmd: "play"})
	assert.Equal(t, engine.ErrNoSession.Error(), reply.Error)
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t, true)
	events := f.dial(t, "/ws/events")
	require.NoError(t, events.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first rawMessage
	require.NoError(t, events.ReadJSON(&first))
	require.Equal(t, "session", first.Type)
	var st State
	require.NoError(t, json.Unmarshal(first.Value, &st))
	assert.Equal(t, 3, st.Timeline.Frames)

	control := f.dial(t, "/ws/control")
	send(t, control, Command{Cmd: "seek", Value: 250})

	for {
		var msg rawMessage
		require.NoError(t, events.ReadJSON(&msg))
		if msg.Type != "frame" {
			continue
		}
		var fi FrameInfo
		require.NoError(t, json.Unmarshal(msg.Value, &fi))
		assert.Equal(t, 2, fi.Index)
		return
	}
}

func TestThumb(t *testing.T) {
	f := newFixture(t, true)

	resp, err := http.Get(f.http.URL + "/thumb?i=0&size=4")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())

	for query, want := range map[string]int{
		"i=99":        http.StatusNotFound,
		"i=x":         http.StatusBadRequest,
		"i=0&size=-1": http.StatusBadRequest,
	} {
		resp, err := http.Get(f.http.URL + "/thumb?" + query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, query)
	}
}

func TestFrame(t *testing.T) {
	f := newFixture(t, true)
	require.Eventually(t, func() bool { return f.sink.Frames() > 0 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(f.http.URL + "/frame.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())
}

func TestFrameBeforeRender(t *testing.T) {
	f := newFixture(t, false)
	resp, err := http.Get(f.http.URL + "/frame.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8080/", PublicURL("127.0.0.1:8080"))
	assert.True(t, strings.HasSuffix(PublicURL(":9000"), ":9000/"))
}

func TestPrintQR(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintQR(&buf, "http://example.test/"))
	assert.Contains(t, buf.String(), "http://example.test/")
	assert.Greater(t, strings.Count(buf.String(), "\n"), 5)
}
