package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/gifscrub/internal/config"
	"github.com/ivlev/gifscrub/internal/engine"
	"github.com/ivlev/gifscrub/internal/export"
	"github.com/ivlev/gifscrub/internal/host"
	"github.com/ivlev/gifscrub/internal/renderer"
	"github.com/ivlev/gifscrub/internal/server"
	"github.com/ivlev/gifscrub/internal/source"
	"github.com/ivlev/gifscrub/internal/system"
	"github.com/ivlev/gifscrub/internal/timeline"
)

type options struct {
	configPath string
	input      string
	serve      string
	exportZip  string
	exportGIF  string
	exportMP4  string
	trimOnly   bool
	adaptive   bool
	speed      float64
	fps        int
	watch      bool
	preview    bool
	play       bool
	logLevel   string
	stateDir   string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "config.yaml", "Path to the YAML config")
	flag.StringVar(&o.input, "input", "", "GIF, video, PDF, image or folder of images (default: newest file in input/)")
	flag.StringVar(&o.serve, "serve", "", "Serve the player API on this address, e.g. :8080")
	flag.StringVar(&o.exportZip, "export-zip", "", "Write every frame as PNG into this zip")
	flag.StringVar(&o.exportGIF, "export-gif", "", "Write the frames as an animated GIF")
	flag.StringVar(&o.exportMP4, "export-mp4", "", "Encode the frames into an H.264 video with ffmpeg")
	flag.BoolVar(&o.trimOnly, "trim-only", false, "Export only the frames inside the trim window")
	flag.BoolVar(&o.adaptive, "adaptive-palette", false, "Use a median-cut palette per GIF frame")
	flag.Float64Var(&o.speed, "speed", 1, "Playback speed multiplier")
	flag.IntVar(&o.fps, "fps", 60, "Scheduler frame rate")
	flag.BoolVar(&o.watch, "watch", false, "Reload when the input changes on disk")
	flag.BoolVar(&o.preview, "preview", false, "Draw the viewport into the terminal with sixel graphics")
	flag.BoolVar(&o.play, "play", false, "Start playing immediately")
	flag.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&o.stateDir, "state-dir", "", "Where trim and filter state is kept")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg, err := loadConfig(o)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, o); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("gifscrub failed")
	}
}

// loadConfig reads the config file and applies the flags that were set
// explicitly on top of it.
func loadConfig(o options) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input = o.input
		case "serve":
			cfg.Addr = o.serve
		case "speed":
			cfg.Speed = o.speed
		case "fps":
			cfg.FPS = o.fps
		case "watch":
			cfg.Watch = o.watch
		case "log-level":
			cfg.LogLevel = o.logLevel
		case "state-dir":
			cfg.StateDir = o.stateDir
		}
	})
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, o options) error {
	input := cfg.Input
	if input == "" {
		if err := os.MkdirAll(cfg.InputDir, 0o755); err != nil {
			return err
		}
		latest, err := system.FindLatest(cfg.InputDir, source.MediaExtensions())
		if err != nil {
			return fmt.Errorf("%w: put a GIF, video, PDF or images into %s/", err, cfg.InputDir)
		}
		input = latest
		log.Info().Str("path", input).Msg("picked newest input")
	}

	g, ctx := errgroup.WithContext(ctx)
	h := host.New(cfg.FPS, host.WithLogger(log.With().Str("component", "host").Logger()))
	g.Go(func() error { return ignoreCanceled(h.Run(ctx)) })

	mem := renderer.NewMemorySink()
	var sink renderer.Sink = mem
	if o.preview {
		sixel := renderer.NewSixelSink(os.Stdout, 100*time.Millisecond)
		sixel.Dither = true
		sink = renderer.MultiSink{mem, sixel}
	}

	e, err := engine.New(cfg, h, sink, engine.WithLogger(log.Logger))
	if err != nil {
		return err
	}
	defer e.Close(context.Background())

	if err := e.Load(ctx, input); err != nil {
		return err
	}

	if o.exportZip != "" || o.exportGIF != "" || o.exportMP4 != "" {
		if err := exportAll(ctx, e, cfg, o); err != nil {
			return err
		}
		if cfg.Addr == "" && !o.preview && !cfg.Watch {
			return nil
		}
	}

	if o.play {
		err := e.Call(ctx, func(s *engine.Session) error {
			s.Clock.Play()
			return nil
		})
		if err != nil {
			return err
		}
	}

	if cfg.Addr != "" {
		srv := server.New(e, mem, server.WithLogger(log.With().Str("component", "server").Logger()))
		if err := srv.Attach(ctx); err != nil {
			return err
		}
		if err := server.PrintQR(os.Stdout, server.PublicURL(cfg.Addr)); err != nil {
			log.Warn().Err(err).Msg("could not render QR code")
		}
		g.Go(func() error { return srv.ListenAndServe(ctx, cfg.Addr) })
	}
	if cfg.Watch {
		g.Go(func() error { return e.Watch(ctx) })
	}

	return ignoreCanceled(g.Wait())
}

func exportAll(ctx context.Context, e *engine.Engine, cfg config.Config, o options) error {
	var tl *timeline.Timeline
	err := e.Call(ctx, func(s *engine.Session) error {
		tl = s.Timeline
		return nil
	})
	if err != nil {
		return err
	}

	if o.exportZip != "" {
		err := writeFile(o.exportZip, func(f *os.File) error {
			return export.Zip(ctx, tl, f, cfg.Workers)
		})
		if err != nil {
			return fmt.Errorf("export zip: %w", err)
		}
		log.Info().Str("path", o.exportZip).Int("frames", tl.Len()).Str("size", fileSize(o.exportZip)).Msg("frames exported")
	}
	if o.exportGIF != "" {
		err := writeFile(o.exportGIF, func(f *os.File) error {
			return export.GIF(ctx, tl, f, export.GIFOptions{TrimOnly: o.trimOnly, Adaptive: o.adaptive})
		})
		if err != nil {
			return fmt.Errorf("export gif: %w", err)
		}
		log.Info().Str("path", o.exportGIF).Str("size", fileSize(o.exportGIF)).Msg("gif exported")
	}
	if o.exportMP4 != "" {
		opts := export.VideoOptions{TrimOnly: o.trimOnly, FPS: cfg.VideoFPS}
		if err := export.Video(ctx, tl, o.exportMP4, opts); err != nil {
			return fmt.Errorf("export mp4: %w", err)
		}
		log.Info().Str("path", o.exportMP4).Str("size", fileSize(o.exportMP4)).Msg("video exported")
	}
	return nil
}

func writeFile(path string, fn func(f *os.File) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func fileSize(path string) string {
	st, err := os.Stat(path)
	if err != nil {
		return "?"
	}
	return humanize.Bytes(uint64(st.Size()))
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
