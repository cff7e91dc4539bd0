package webapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/mattjoyce/kolibrid/internal/bus"
	"github.com/mattjoyce/kolibrid/internal/log"
)

// Target is a requested webapp state. Transitions are synchronous requests;
// their effects are observed through lifecycle bus events, not return values.
type Target string

const (
	TargetServing Target = "SERVING"
	TargetIdle    Target = "IDLE"
)

// Config carries the webapp's listen ports and home directory. Port 0 means
// an ephemeral port; the bound port is reported via the SERVING event.
type Config struct {
	Port     int
	ZipPort  int
	HomePath string
}

// App is the embedded web application supervised by kolibrid. It owns two
// HTTP listeners (main app and zip content), a lifecycle bus, and the device
// app key.
type App struct {
	cfg    Config
	db     *sql.DB
	bus    *bus.Bus
	logger *slog.Logger

	mu           sync.Mutex
	bootstrapped bool
	appKey       string
	serving      bool
	dead         bool
	main         *httpServer
	zip          *httpServer
}

func New(cfg Config, db *sql.DB) *App {
	return &App{
		cfg:    cfg,
		db:     db,
		bus:    bus.New(16),
		logger: log.WithComponent("webapp"),
	}
}

// Bus returns the lifecycle event bus.
func (a *App) Bus() *bus.Bus {
	return a.bus
}

// HomePath returns the directory the webapp stores its content in.
func (a *App) HomePath() string {
	return a.cfg.HomePath
}

// AppKey returns the device credential. Empty before Bootstrap.
func (a *App) AppKey() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.appKey
}

// Bootstrap prepares the home directory and provisions the device app key.
// Idempotent; called once before the supervisor enters its command loop.
func (a *App) Bootstrap(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bootstrapped {
		return nil
	}

	for _, dir := range []string{a.cfg.HomePath, contentDir(a.cfg.HomePath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("provision home directory: %w", err)
		}
	}

	key, err := ensureAppKey(ctx, a.db)
	if err != nil {
		return fmt.Errorf("provision app key: %w", err)
	}
	a.appKey = key
	a.bootstrapped = true

	a.logger.Info("webapp bootstrapped", "home", a.cfg.HomePath)
	return nil
}

// Transition requests a state change. Requesting the current state is
// harmless. A failed SERVING transition (listener bind error) is returned to
// the caller and leaves the app idle.
func (a *App) Transition(target Target) error {
	switch target {
	case TargetServing:
		return a.startServing()
	case TargetIdle:
		a.stopServing()
		return nil
	default:
		return fmt.Errorf("unknown transition target %q", target)
	}
}

// Alive reports whether the webapp runtime is still healthy. It goes false
// when a listener dies outside an idle transition, so the supervisor's idle
// poll can notice a silently-crashed webapp.
func (a *App) Alive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.dead
}

func (a *App) startServing() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.serving {
		return nil
	}
	if !a.bootstrapped {
		return fmt.Errorf("webapp not bootstrapped")
	}

	mainLn, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", a.cfg.Port))
	if err != nil {
		return fmt.Errorf("bind app port: %w", err)
	}
	zipLn, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", a.cfg.ZipPort))
	if err != nil {
		_ = mainLn.Close()
		return fmt.Errorf("bind zip port: %w", err)
	}

	a.main = a.newMainServer(mainLn)
	a.zip = a.newZipServer(zipLn)
	a.serving = true

	a.serve(a.main, bus.KindServing)
	a.serve(a.zip, bus.KindZipServing)
	return nil
}

// serve runs one listener on its own goroutine, announcing it on the bus
// first. Bus handlers therefore run on webapp goroutines, never on the
// supervisor's command loop.
func (a *App) serve(s *httpServer, kind bus.Kind) {
	port := listenerPort(s.listener)
	go func() {
		a.bus.Publish(bus.Event{Kind: kind, Port: port})
		if err := s.run(); err != nil {
			a.logger.Error("listener died", "kind", string(kind), "port", port, "error", err)
			a.markDead()
		}
	}()
}

func (a *App) stopServing() {
	a.mu.Lock()
	if !a.serving {
		a.mu.Unlock()
		return
	}
	main, zip := a.main, a.zip
	a.serving = false
	a.main, a.zip = nil, nil
	a.mu.Unlock()

	main.shutdown()
	zip.shutdown()
	a.bus.Publish(bus.Event{Kind: bus.KindStop})
}

func (a *App) markDead() {
	a.mu.Lock()
	a.dead = true
	a.mu.Unlock()
}

func listenerPort(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
