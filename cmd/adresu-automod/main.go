package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lessucettes/adresu-automod/internal/automod"
	"github.com/lessucettes/adresu-automod/internal/config"
	"github.com/lessucettes/adresu-automod/internal/discord"
	"github.com/lessucettes/adresu-automod/internal/policy"
	"github.com/lessucettes/adresu-automod/internal/ratetrack"
	"github.com/lessucettes/adresu-automod/internal/store"
)

var version = "dev"

const tokenEnv = "ADRESU_DISCORD_TOKEN"

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "./config.toml", "Path to the configuration file.")
	useDefaults := flag.Bool("use-defaults", false, "Run with internal defaults if the config file is missing.")
	validateConfig := flag.Bool("validate", false, "Validate the configuration file and exit.")
	dryRun := flag.Bool("dry-run", false, "Log violations without recording warnings or acting on them.")
	replay := flag.Bool("replay", false, "Read JSON messages from stdin and write outcomes to stdout instead of connecting to Discord.")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}
	if *validateConfig {
		if err := validateConfiguration(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration is INVALID: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration is VALID.")
		return
	}
	if err := runApp(*configPath, *useDefaults, *dryRun, *replay); err != nil {
		fmt.Fprintf(os.Stderr, "Application run failed: %v\n", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg *config.DBConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		return store.NewRedisStore(ctx, cfg.RedisURL)
	default:
		return store.NewBadgerStore(cfg)
	}
}

// app holds everything that outlives a config reload.
type app struct {
	db       store.Store
	resolver *policy.Resolver
	tracker  *ratetrack.Tracker
	engine   *automod.Engine
}

func newApp(ctx context.Context, cfg *config.Config, punisher automod.Punisher, notifier automod.Notifier, dryRun bool) (*app, error) {
	db, err := openStore(ctx, &cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	resolver := policy.NewResolver(cfg.Automod, db, 0)
	if err := resolver.Seed(ctx, cfg.Guilds); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to store guild overrides: %w", err)
	}

	tracker := ratetrack.New(cfg.Automod.CleanupInterval, cfg.Automod.MaxIdle)
	engine := automod.NewEngine(resolver, tracker, db, punisher, notifier, automod.Options{
		DryRun:            dryRun,
		NoticeTTL:         cfg.Discord.NoticeTTL,
		SideEffectTimeout: cfg.Discord.RequestTimeout,
		ViolationLevels:   cfg.Log.ViolationLevels,
	})

	return &app{db: db, resolver: resolver, tracker: tracker, engine: engine}, nil
}

func (a *app) reload(ctx context.Context, cfg *config.Config) {
	a.resolver.SetDefaults(cfg.Automod)
	if err := a.resolver.Seed(ctx, cfg.Guilds); err != nil {
		slog.Error("Failed to store reloaded guild overrides", "error", err)
	}
	a.engine.SetViolationLevels(cfg.Log.ViolationLevels)
	slog.Info("Automod configuration reloaded", "guild_overrides", len(cfg.Guilds))
}

func (a *app) Close() error {
	a.tracker.Stop()
	a.engine.Close()
	return a.db.Close()
}

func runApp(configPath string, useDefaults, dryRun, replay bool) error {
	cfg, defaultsUsed, err := config.Load(configPath, useDefaults)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.Level.ToSlogLevel()}))
	slog.SetDefault(logger)
	if dryRun {
		slog.Warn("Automod is running in DRY-RUN mode.")
	}
	slog.Info("Automod starting up", "version", version, "config_path", configPath, "using_defaults", defaultsUsed,
		"backend", string(cfg.DB.Backend), "replay", replay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdownChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	if cfg.Metrics.Listen != "" {
		go serveMetrics(ctx, cfg.Metrics.Listen)
	}

	if replay {
		a, err := newApp(ctx, cfg, automod.LogSink{}, automod.LogSink{}, dryRun)
		if err != nil {
			return err
		}
		defer a.Close()
		// The cleanup loop runs on wall-clock time, which would evict windows
		// of replayed messages carrying historical timestamps.
		go config.NewWatcher(configPath, 0, func(c *config.Config) { a.reload(ctx, c) }).Run(ctx)
		return processMessages(ctx, os.Stdin, os.Stdout, a.engine)
	}

	token := cfg.Discord.Token
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	if token == "" {
		return fmt.Errorf("discord.token is not set and %s is empty", tokenEnv)
	}

	bot, err := discord.NewBot(token)
	if err != nil {
		return err
	}
	s := discord.NewSink(bot.Session(), cfg.Discord)

	a, err := newApp(ctx, cfg, s, s, dryRun)
	if err != nil {
		return err
	}
	a.tracker.Start()

	go config.NewWatcher(configPath, 0, func(c *config.Config) { a.reload(ctx, c) }).Run(ctx)

	if err := bot.Start(ctx, a.engine); err != nil {
		a.Close()
		return err
	}
	slog.Info("Automod connected to Discord")

	<-ctx.Done()

	if err := bot.Stop(); err != nil {
		slog.Warn("Failed to close Discord session", "error", err)
	}
	s.Close()
	return a.Close()
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server failed", "error", err)
	}
}

// processMessages evaluates one JSON message per input line and writes one
// JSON outcome per line.
func processMessages(ctx context.Context, r io.Reader, w io.Writer, h discord.Handler) error {
	linesChan := make(chan []byte)
	errChan := make(chan error, 1)
	encoder := json.NewEncoder(w)

	go func() {
		defer close(errChan)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lineCopy := make([]byte, len(scanner.Bytes()))
			copy(lineCopy, scanner.Bytes())
			select {
			case linesChan <- lineCopy:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errChan <- err
		}
		close(linesChan)
	}()

	slog.Info("Ready to replay messages from stdin...")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-linesChan:
			if !ok {
				if err := <-errChan; err != nil {
					return err
				}
				slog.Info("Input stream closed, shutting down.")
				return nil
			}

			if len(line) == 0 {
				continue
			}
			var msg automod.Message
			if err := json.Unmarshal(line, &msg); err != nil {
				slog.Warn("Failed to decode message JSON", "error", err, "raw_line_prefix", prefix(line, 64))
				continue
			}

			out, err := h.Handle(ctx, msg)
			if err != nil {
				slog.Error("Error handling message", "message_id", msg.ID, "error", err)
				out.Error = err.Error()
				if out.MessageID == "" {
					out.MessageID = msg.ID
				}
			}

			if err := encoder.Encode(out); err != nil {
				if errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EPIPE) {
					return nil
				}
				slog.Error("Failed to write outcome to stdout", "error", err)
			}
		}
	}
}

func prefix(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}

func validateConfiguration(configPath string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	fmt.Printf("Validating configuration file: %s\n", configPath)
	_, _, err := config.Load(configPath, false)
	return err
}
