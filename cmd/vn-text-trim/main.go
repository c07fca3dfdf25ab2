package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/vn-text-trim/internal/buffer"
	"github.com/raaihank/vn-text-trim/internal/cleaner"
	"github.com/raaihank/vn-text-trim/internal/config"
	"github.com/raaihank/vn-text-trim/internal/logger"
	"github.com/raaihank/vn-text-trim/internal/rules"
	"github.com/raaihank/vn-text-trim/internal/server"
	"github.com/raaihank/vn-text-trim/internal/watcher"
	"github.com/raaihank/vn-text-trim/internal/websocket"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file (default: search for vn-text-trim.toml)")
	flag.StringVar(&configPath, "c", "", "Shorthand for -config")
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		checkOnly   = flag.Bool("check", false, "Load and compile the rules, then exit")
		fromStdin   = flag.Bool("stdin", false, "Clean standard input once and print the result")
		pushRules   = flag.Bool("push-rules", false, "Replace the rules in the rule store with those of the configuration file, then exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("vn-text-trim %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *pushRules {
		if err := pushStoredRules(ctx, cfg, log); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to push rules: %v\n", err)
			os.Exit(1)
		}
		return
	}

	rs, err := rules.Load(ctx, cfg, log.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build rules: %v\n", err)
		os.Exit(1)
	}

	engine, err := cleaner.New(rs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create cleaner: %v\n", err)
		os.Exit(1)
	}

	if *checkOnly {
		fmt.Printf("OK: mode=%s rules=%d fingerprint=%s\n", rs.Mode, len(rs.Substitutions), rs.Fingerprint())
		return
	}

	if *fromStdin {
		if err := cleanStdin(engine, log); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to clean input: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cancel, cfg, configPath, cleaner.NewHolder(engine), log); err != nil {
		log.Error("Shutting down with error", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	return logger.New(loggerConfig)
}

// cleanStdin prints the cleaned input, or the input itself when nothing changed
func cleanStdin(engine *cleaner.Cleaner, log *logger.Logger) error {
	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}

	result := engine.Process(string(input))
	log.LogClean("stdin", result.Original, result.Text, result.Changed, result.StageNames())

	_, err = io.WriteString(os.Stdout, result.Text)
	return err
}

func pushStoredRules(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if cfg.RuleStore.DatabaseURL == "" {
		return errors.New("rule_store.database_url is not set")
	}

	// Reject rules that would not compile before they reach the store
	if _, err := rules.Compile(cfg.RulesConfig); err != nil {
		return err
	}

	store, err := rules.NewStore(cfg.RuleStore, log.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.ReplaceRules(ctx, cfg.Replace)
}

// run starts the watcher and the server, as configured, and blocks until a
// shutdown signal arrives or a component fails
func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, configPath string, holder *cleaner.Holder, log *logger.Logger) error {
	if cfg.Buffer.Type == "none" && !cfg.Server.Enabled {
		return errors.New("nothing to do: enable the server or configure a buffer")
	}

	log.Info("Starting vn-text-trim",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.String("buffer", cfg.Buffer.Type),
		zap.Bool("server", cfg.Server.Enabled),
	)

	var hub *websocket.Hub
	if cfg.Server.Enabled && cfg.WebSocket.Enabled {
		hub = websocket.NewHub(&websocket.HubConfig{
			BroadcastClean:       cfg.WebSocket.Events.BroadcastClean,
			BroadcastSystem:      cfg.WebSocket.Events.BroadcastSystem,
			BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
			Username:             cfg.WebSocket.Username,
			Password:             cfg.WebSocket.Password,
		}, log.WithComponent("websocket").Logger)
		go hub.Run(ctx)
	}

	var srv *server.Server
	if cfg.Server.Enabled {
		var err error
		srv, err = server.New(cfg, version, holder, hub, log)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
	}

	if cfg.HotReload {
		startHotReload(ctx, configPath, holder, srv, log)
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup

	if cfg.Buffer.Type != "none" {
		buf, err := buffer.Open(cfg.Buffer, log.WithComponent("buffer").Logger)
		if err != nil {
			return fmt.Errorf("failed to open buffer: %w", err)
		}
		defer buf.Close()

		opts := watcher.Options{
			PollInterval:  cfg.Buffer.PollInterval,
			RetryInterval: cfg.Buffer.RetryInterval,
			MaxAttempts:   cfg.Buffer.MaxAttempts,
		}
		if hub != nil {
			opts.Publisher = hub
		}

		w := watcher.New(buf, holder, opts, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("watcher: %w", err)
			}
		}()
	}

	if srv != nil {
		go func() {
			if err := srv.Start(); err != nil {
				errs <- fmt.Errorf("server: %w", err)
			}
		}()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-errs:
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	cancel()

	if srv != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := srv.Stop(stopCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
		}
	}

	wg.Wait()
	log.Info("Shutdown complete")
	return runErr
}

// startHotReload rebuilds the engine whenever the configuration file
// changes. A failed reload keeps the running engine.
func startHotReload(ctx context.Context, configPath string, holder *cleaner.Holder, srv *server.Server, log *logger.Logger) {
	log = log.WithComponent("reload")

	report := func(status, message string) {
		if srv != nil {
			srv.ReportStatus(status, message)
		}
	}

	onChange := func(cfg *config.Config) {
		rs, err := rules.Load(ctx, cfg, log.Logger)
		if err != nil {
			log.Error("Rule reload failed, keeping previous rules", zap.Error(err))
			report("reload_failed", err.Error())
			return
		}

		engine, err := cleaner.New(rs)
		if err != nil {
			log.Error("Rule reload failed, keeping previous rules", zap.Error(err))
			report("reload_failed", err.Error())
			return
		}

		previous := holder.Swap(engine)
		log.Info("Rules reloaded",
			zap.String("previous_fingerprint", previous.RuleSet().Fingerprint()),
			zap.String("fingerprint", rs.Fingerprint()))
		report("reloaded", "")
	}

	onError := func(err error) {
		log.Error("Configuration reload failed, keeping previous rules", zap.Error(err))
		report("reload_failed", err.Error())
	}

	if err := config.Watch(configPath, onChange, onError); err != nil {
		log.Warn("Hot reload unavailable", zap.Error(err))
		return
	}

	log.Info("Watching configuration for changes")
}
