// Package server exposes a loaded session over HTTP: live playback events
// and remote control over websockets, plus frame and thumbnail images.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ivlev/gifscrub/internal/engine"
	"github.com/ivlev/gifscrub/internal/renderer"
	"github.com/ivlev/gifscrub/internal/system"
	"github.com/ivlev/gifscrub/internal/timeline"
)

const requestTimeout = 5 * time.Second

type Server struct {
	engine   *engine.Engine
	sink     *renderer.MemorySink
	hub      *hub
	upgrader websocket.Upgrader
	log      zerolog.Logger

	// loop only
	sessionOffs []func()
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func New(e *engine.Engine, sink *renderer.MemorySink, opts ...Option) *Server {
	s := &Server{
		engine: e,
		sink:   sink,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s.log)
	return s
}

// Attach starts forwarding clock events of the current and every future
// session to /ws/events subscribers.
func (s *Server) Attach(ctx context.Context) error {
	return s.engine.Exec(ctx, func() error {
		s.engine.Events.SessionChanged.On(s.bind)
		if sess := s.engine.Session(); sess != nil {
			s.bind(sess)
		}
		return nil
	})
}

// bind runs on the host loop.
func (s *Server) bind(sess *engine.Session) {
	for _, off := range s.sessionOffs {
		off()
	}
	ev := &sess.Clock.Events
	s.sessionOffs = []func(){
		ev.TimeChanged.On(func(t float64) { s.publish("time", t) }),
		ev.FrameChanged.On(func(f *timeline.Frame) { s.publish("frame", frameInfo(f)) }),
		ev.PlayingChanged.On(func(p bool) { s.publish("playing", p) }),
		ev.TrimStartChanged.On(func(v float64) { s.publish("trimStart", v) }),
		ev.TrimEndChanged.On(func(v float64) { s.publish("trimEnd", v) }),
		ev.TimelineChanged.On(func(tl *timeline.Timeline) { s.publish("timeline", timelineInfo(tl)) }),
		ev.SpeedChanged.On(func(v float64) { s.publish("speed", v) }),
	}
	s.publish("session", stateOf(sess))
}

func (s *Server) publish(typ string, value any) {
	if s.hub.count() == 0 {
		return
	}
	b, err := json.Marshal(Message{Type: typ, Value: value})
	if err != nil {
		s.log.Error().Err(err).Str("type", typ).Msg("failed to encode event")
		return
	}
	s.hub.broadcast(b)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/events", s.handleEvents)
	mux.HandleFunc("GET /ws/control", s.handleControl)
	mux.HandleFunc("GET /frame.png", s.handleFrame)
	mux.HandleFunc("GET /thumb", s.handleThumb)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("addr", addr).Msg("http server listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) state(ctx context.Context) (State, error) {
	var st State
	err := s.engine.Call(ctx, func(sess *engine.Session) error {
		st = stateOf(sess)
		return nil
	})
	return st, err
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	c := s.hub.add(conn)
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	if st, err := s.state(ctx); err == nil {
		if b, err := json.Marshal(Message{Type: "session", Value: st}); err == nil {
			select {
			case c.send <- b:
			default:
			}
		}
	}
	cancel()

	go func() {
		// subscribers only listen; reading detects the close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.remove(c)
				return
			}
		}
	}()
	if err := c.writeLoop(); err != nil {
		s.log.Debug().Err(err).Msg("event subscriber gone")
	}
	s.hub.remove(c)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				conn.WriteJSON(Reply{Type: "ack", Error: err.Error()})
				continue
			}
			return
		}
		reply := s.execute(r.Context(), cmd)
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (s *Server) execute(ctx context.Context, cmd Command) Reply {
	reply := Reply{Type: "ack", Cmd: cmd.Cmd}
	var err error
	if cmd.Cmd == "load" {
		// decoding is slow; it must not run on the loop
		err = s.engine.Load(ctx, cmd.Path)
	} else {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		err = s.engine.Call(ctx, func(sess *engine.Session) error {
			if err := apply(s.engine, sess, cmd); err != nil {
				return err
			}
			st := stateOf(sess)
			reply.State = &st
			return nil
		})
	}
	if err != nil {
		reply.Error = err.Error()
		s.log.Debug().Err(err).Str("cmd", cmd.Cmd).Msg("command failed")
	}
	return reply
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	img := s.sink.Snapshot()
	if img == nil {
		http.Error(w, "nothing rendered yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		s.log.Debug().Err(err).Msg("frame write failed")
	}
}

func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(r.URL.Query().Get("i"))
	if err != nil {
		http.Error(w, "i must be a frame index", http.StatusBadRequest)
		return
	}
	size := s.engine.Config().ThumbSize
	if v := r.URL.Query().Get("size"); v != "" {
		if size, err = strconv.Atoi(v); err != nil || size <= 0 || size > 1024 {
			http.Error(w, "size must be in 1..1024", http.StatusBadRequest)
			return
		}
	}

	var fr *timeline.Frame
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	err = s.engine.Call(ctx, func(sess *engine.Session) error {
		fr = sess.Timeline.Frame(i)
		return nil
	})
	if errors.Is(err, engine.ErrNoSession) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if fr == nil {
		http.NotFound(w, r)
		return
	}

	// frames are immutable, so scaling happens off the loop
	img := s.engine.Thumbnails().Get(fr, size)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "max-age=3600")
	if err := png.Encode(w, img); err != nil {
		s.log.Debug().Err(err).Msg("thumbnail write failed")
	}
}

// Health is the /health response.
type Health struct {
	Loaded  bool           `json:"loaded"`
	Frames  int            `json:"frames"`
	Total   float64        `json:"total"`
	Current float64        `json:"current"`
	Playing bool           `json:"playing"`
	Clients int            `json:"clients"`
	Memory  *system.Memory `json:"memory,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := Health{Clients: s.hub.count()}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	err := s.engine.Call(ctx, func(sess *engine.Session) error {
		h.Loaded = true
		h.Frames = sess.Timeline.Len()
		h.Total = sess.Timeline.TotalDuration()
		h.Current = sess.Clock.CurrentTime()
		h.Playing = sess.Clock.Playing()
		return nil
	})
	if err != nil && !errors.Is(err, engine.ErrNoSession) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if m, err := system.MemoryStats(); err == nil {
		h.Memory = &m
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h)
}
