package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/gemsnake/db"
	"github.com/brensch/gemsnake/engine"
	"github.com/brensch/gemsnake/logging"
	"github.com/brensch/gemsnake/server"
	"github.com/brensch/gemsnake/store"
)

type options struct {
	width     int
	height    int
	speed     int
	seed      int64
	savePath  string
	dbPath    string
	replayDir string
	listen    string
	headless  bool
	autopilot bool
	restart   time.Duration
	logFormat string
	logLevel  string
	logFile   string
}

func main() {
	var opts options
	flag.IntVar(&opts.width, "width", getEnvIntOrDefault("SNAKE_WIDTH", 20), "Board width in cells")
	flag.IntVar(&opts.height, "height", getEnvIntOrDefault("SNAKE_HEIGHT", 20), "Board height in cells")
	flag.IntVar(&opts.speed, "speed", getEnvIntOrDefault("SNAKE_SPEED", engine.DefaultSpeed), fmt.Sprintf("Moves per second, one of %v", engine.Speeds))
	seed := flag.Int("seed", getEnvIntOrDefault("SNAKE_SEED", 0), "Gem placement seed (0 = time based)")
	flag.StringVar(&opts.savePath, "save-path", getEnvOrDefault("SNAKE_SAVE_PATH", "snake-data/save.parquet"), "Parquet file backing the save slot (empty disables)")
	flag.StringVar(&opts.dbPath, "db", getEnvOrDefault("SNAKE_DB", "snake-data/scores.db"), "SQLite score history (empty disables)")
	flag.StringVar(&opts.replayDir, "replay-dir", getEnvOrDefault("SNAKE_REPLAY_DIR", ""), "Directory for per-round replay parquet files (empty disables)")
	flag.StringVar(&opts.listen, "listen", getEnvOrDefault("SNAKE_LISTEN", ""), "HTTP listen address for the spectator API (empty disables)")
	flag.BoolVar(&opts.headless, "headless", getEnvBoolOrDefault("SNAKE_HEADLESS", false), "Run without the terminal UI")
	flag.BoolVar(&opts.autopilot, "autopilot", getEnvBoolOrDefault("SNAKE_AUTOPILOT", false), "Steer towards the gem automatically")
	flag.DurationVar(&opts.restart, "restart-delay", getEnvDurationOrDefault("SNAKE_RESTART_DELAY", 2*time.Second), "Headless: delay before the next round starts")
	flag.StringVar(&opts.logFormat, "log-format", getEnvOrDefault("SNAKE_LOG_FORMAT", "text"), "Log format: text, json or pretty")
	flag.StringVar(&opts.logLevel, "log-level", getEnvOrDefault("SNAKE_LOG_LEVEL", "info"), "Log level: debug, info, warn or error")
	flag.StringVar(&opts.logFile, "log-file", getEnvOrDefault("SNAKE_LOG_FILE", "snake-data/snake.log"), "Log file while the terminal UI is up (empty discards)")
	flag.Parse()
	opts.seed = int64(*seed)

	logger, closeLog, err := openLogger(opts)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()

	interval, err := engine.SpeedInterval(opts.speed)
	if err != nil {
		log.Fatalf("Invalid speed: %v", err)
	}
	cfg := engine.DefaultConfig()
	cfg.BoardWidth = opts.width
	cfg.BoardHeight = opts.height
	cfg.TickInterval = interval
	cfg.Seed = opts.seed

	eng, err := engine.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	if opts.savePath != "" {
		snap, err := store.ReadSnapshot(opts.savePath)
		switch {
		case err == nil:
			if err := eng.SetSnapshot(snap); err != nil {
				logger.Warn("ignoring saved round", "path", opts.savePath, "err", err)
			} else {
				logger.Info("save slot restored", "path", opts.savePath, "score", snap.Score)
			}
		case !errors.Is(err, store.ErrNoSnapshot):
			logger.Warn("failed to read saved round", "path", opts.savePath, "err", err)
		}
	}

	var scores *db.DB
	if opts.dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.dbPath), 0o755); err != nil {
			log.Fatalf("Failed to create db dir: %v", err)
		}
		scores, err = db.New(opts.dbPath, logger)
		if err != nil {
			log.Fatalf("Failed to open score history: %v", err)
		}
		defer scores.Close()
		eng.AddObserver(scores.Observer())
	}

	if opts.replayDir != "" {
		rec, err := store.NewRecorder(opts.replayDir, logger)
		if err != nil {
			log.Fatalf("Failed to open replay recorder: %v", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Error("failed to close replay recorder", "err", err)
			}
		}()
		eng.AddObserver(rec)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	persist := func(s engine.Snapshot) {
		if opts.savePath == "" {
			return
		}
		if err := store.WriteSnapshot(opts.savePath, s); err != nil {
			logger.Error("failed to persist save slot", "path", opts.savePath, "err", err)
		}
	}

	if opts.headless {
		runHeadless(ctx, eng, scores, opts, persist, logger)
		return
	}
	runTUI(ctx, eng, scores, opts, persist, logger)
}

func runHeadless(ctx context.Context, eng *engine.Engine, scores *db.DB, opts options, persist func(engine.Snapshot), logger *slog.Logger) {
	loop := engine.NewLoop(eng, engine.LoopConfig{
		Autopilot:    opts.autopilot,
		RestartDelay: opts.restart,
		OnSave:       persist,
	}, logger)

	if opts.listen != "" {
		startServer(ctx, loop, scores, eng, opts.listen, logger)
	}

	if err := loop.Submit(engine.Command{Kind: engine.CmdStart}); err != nil {
		log.Fatalf("Failed to start round: %v", err)
	}
	log.Printf("Running headless (autopilot=%v, listen=%q)", opts.autopilot, opts.listen)
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Loop stopped: %v", err)
	}
	log.Printf("Shutdown complete")
}

func runTUI(ctx context.Context, eng *engine.Engine, scores *db.DB, opts options, persist func(engine.Snapshot), logger *slog.Logger) {
	m := newModel(eng, scores, opts.autopilot, persist, logger)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	if opts.listen != "" {
		startServer(ctx, newProgramGame(p), scores, eng, opts.listen, logger)
	}

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Fatal(err)
	}
}

func startServer(ctx context.Context, game server.Game, scores *db.DB, eng *engine.Engine, addr string, logger *slog.Logger) {
	var history server.Scores
	if scores != nil {
		history = scores
	}
	srv := server.New(game, history, logger)
	eng.AddObserver(srv.Hub())

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("spectator API listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		srv.Hub().Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()
}

// openLogger writes to stderr in headless mode and to a file under the
// terminal UI, where stderr would tear the screen.
func openLogger(opts options) (*slog.Logger, func(), error) {
	level, err := logging.ParseLevel(opts.logLevel)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if !opts.headless {
		w = io.Discard
		if opts.logFile != "" {
			if err := os.MkdirAll(filepath.Dir(opts.logFile), 0o755); err != nil {
				return nil, nil, err
			}
			f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, nil, err
			}
			w = f
			closeFn = func() { _ = f.Close() }
		}
	}

	logger, err := logging.New(w, opts.logFormat, level)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return logger, closeFn, nil
}
