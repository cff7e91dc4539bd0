package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/kolibrid/internal/api"
	"github.com/mattjoyce/kolibrid/internal/config"
	"github.com/mattjoyce/kolibrid/internal/events"
	"github.com/mattjoyce/kolibrid/internal/lock"
	"github.com/mattjoyce/kolibrid/internal/log"
	"github.com/mattjoyce/kolibrid/internal/protocol"
	"github.com/mattjoyce/kolibrid/internal/service"
	"github.com/mattjoyce/kolibrid/internal/state"
	"github.com/mattjoyce/kolibrid/internal/storage"
	"github.com/mattjoyce/kolibrid/internal/supervisor"
	"github.com/mattjoyce/kolibrid/internal/webapp"
)

const version = "0.1.0"

// contextPollInterval is how often the controller re-reads the published
// context to fan changes out to SSE clients.
const contextPollInterval = 250 * time.Millisecond

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "worker":
		os.Exit(runWorker(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "version":
		fmt.Printf("kolibrid version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`kolibrid - Kolibri service supervisor daemon

Usage:
  kolibrid <command> [flags]

Commands:
  start           Start the daemon in foreground (spawns the worker process)
  config lock     Authorize current config (update integrity hashes)
  config check    Validate config syntax and integrity
  version         Show version information
  help            Show this help message

Flags:
  --config PATH   Path to configuration file or directory

The worker subcommand is internal; 'kolibrid start' spawns it itself.
`)
}

func resolveConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	discovered, err := config.DiscoverConfigDir()
	if err != nil {
		return "", err
	}
	fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", discovered)
	return discovered, nil
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	autostart := fs.Bool("autostart", false, "Send START_KOLIBRI right after the worker spawns")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	resolved, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	cfg, err := config.Load(resolved)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *autostart {
		cfg.Service.Autostart = true
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("kolibrid starting", "version", version, "config", resolved)

	pidLockPath := cfg.PIDLockPath()
	pidLock, err := lock.Acquire(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	manager, err := service.Spawn(service.SpawnOptions{
		ConfigPath: resolved,
		Reader:     state.NewReader(db),
	})
	if err != nil {
		logger.Error("failed to spawn worker", "error", err)
		return 1
	}

	hub := events.NewHub(100)
	go manager.WatchChanges(ctx, hub, contextPollInterval)

	errCh := make(chan error, 1)
	if cfg.API.Enabled {
		apiConfig := api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
		}
		apiServer := api.New(apiConfig, manager, hub, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	if cfg.Service.Autostart {
		if err := manager.StartKolibri(); err != nil {
			logger.Error("autostart failed", "error", err)
		} else {
			logger.Info("autostart requested")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("kolibrid running (press Ctrl+C to stop)")

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		stopWorker(manager, logger)
	case <-manager.Done():
		if err := manager.Wait(); err != nil {
			logger.Error("worker exited unexpectedly", "error", err)
			exitCode = 1
		} else {
			logger.Info("worker exited")
		}
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		stopWorker(manager, logger)
		exitCode = 1
	}

	cancel()
	logger.Info("kolibrid stopped")
	return exitCode
}

// stopWorker asks the worker to shut down over the command channel and waits
// for it to exit, escalating to an EOF close if the request cannot be sent.
func stopWorker(manager *service.Manager, logger *slog.Logger) {
	if err := manager.Shutdown(); err != nil {
		logger.Warn("shutdown command failed, closing command channel", "error", err)
		_ = manager.Close()
	}
	select {
	case <-manager.Done():
	case <-time.After(10 * time.Second):
		logger.Warn("worker did not exit in time, closing command channel")
		_ = manager.Close()
		<-manager.Done()
	}
}

func runWorker(args []string) int {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	resolved, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	cfg, err := config.Load(resolved)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithProcess("worker")
	logger.Info("worker starting", "version", version)

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()

	app := webapp.New(webapp.Config{
		Port:     cfg.HTTP.Port,
		ZipPort:  cfg.HTTP.ZipPort,
		HomePath: cfg.Home,
	}, db)

	shared := state.NewContext()
	state.NewPublisher(db, log.WithComponent("publisher")).Attach(shared)

	sup := supervisor.New(app, shared, protocol.NewReader(os.Stdin), cfg.Service.PollTimeout)
	if err := sup.Run(ctx); err != nil {
		logger.Error("supervisor exited with error", "error", err)
		return 1
	}

	logger.Info("worker stopped")
	return 0
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: kolibrid config <check|lock> [flags]\n")
		return 1
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "lock":
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	resolved, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	cfg, err := config.Load(resolved)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config check failed: %v\n", err)
		return 1
	}

	fmt.Printf("Config OK: %s\n", resolved)
	fmt.Printf("  service:  %s (log level %s, poll timeout %s)\n", cfg.Service.Name, cfg.Service.LogLevel, cfg.Service.PollTimeout)
	fmt.Printf("  home:     %s\n", cfg.Home)
	fmt.Printf("  state:    %s\n", cfg.State.Path)
	if cfg.API.Enabled {
		fmt.Printf("  api:      %s\n", cfg.API.Listen)
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	resolved, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	if err := config.Lock(resolved); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	fmt.Printf("Successfully locked configuration: %s\n", resolved)
	return 0
}
