package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/unzipr/unzipr/internal/config"
	"github.com/unzipr/unzipr/internal/logger"
	"github.com/unzipr/unzipr/pkg/api"
	"github.com/unzipr/unzipr/pkg/history"
	"github.com/unzipr/unzipr/pkg/server"
	"github.com/unzipr/unzipr/pkg/version"
	"github.com/unzipr/unzipr/pkg/worker"
)

func defaultConfigDir() string {
	if dir := os.Getenv("UNZIPR_CONFIG"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "unzipr")
}

func main() {
	// optional .env next to the binary, e.g. UNZIPR_CONFIG
	_ = godotenv.Load()

	configDir := flag.String("config", defaultConfigDir(), "path to the config directory")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo())
		return
	}

	config.SetConfigPath(*configDir)
	cfg := config.Get()
	if err := config.ValidateConfig(cfg); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "configuration Error: %v\n", err)
		os.Exit(1)
	}

	logger.Configure(cfg.Path, cfg.LogLevel)
	_log := logger.Default()

	fmt.Printf(`
+---------------------------------------------+
|  unzipr %-35s |
|  Log Level: %-31s |
+---------------------------------------------+
`, version.GetInfo(), cfg.LogLevel)

	hist := history.NewService(afero.NewOsFs(), cfg.HistoryFile(), cfg.MaxHistoryEntries)

	retention, err := time.ParseDuration(cfg.TaskRetention)
	if err != nil {
		_log.Warn().Str("task_retention", cfg.TaskRetention).Msg("Invalid task retention, using 24h")
		retention = 24 * time.Hour
	}
	store := worker.NewStore(hist, retention)

	srv := server.New(map[string]http.Handler{
		"/api": api.New(store, hist).Routes(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		return store.StartSchedule(gctx)
	})

	if err := g.Wait(); err != nil {
		_log.Error().Err(err).Msg("Service error")
		os.Exit(1)
	}
}
