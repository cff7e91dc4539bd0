package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mattjoyce/kolibrid/internal/events"
	"github.com/mattjoyce/kolibrid/internal/log"
	"github.com/mattjoyce/kolibrid/internal/protocol"
	"github.com/mattjoyce/kolibrid/internal/state"
)

// Manager owns the worker process from the controller side: it holds the
// write end of the command channel, watches for worker exit, and reads the
// published context. There is no synchronous stop entry point; every
// lifecycle request flows through the command channel.
type Manager struct {
	logger *slog.Logger
	stdin  io.WriteCloser
	writer *protocol.Writer
	reader *state.Reader

	mu      sync.Mutex
	done    chan struct{}
	waitErr error
}

// SpawnOptions configures the worker subprocess.
type SpawnOptions struct {
	ConfigPath string
	Reader     *state.Reader

	// Executable and Args override the worker command line; used by tests.
	// Defaults: the current executable with ["worker", "--config", ConfigPath].
	Executable string
	Args       []string
}

// Spawn starts the worker subprocess with an OS pipe as its command channel
// and begins reaping it in the background.
func Spawn(opts SpawnOptions) (*Manager, error) {
	exe := opts.Executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve own executable: %w", err)
		}
		exe = self
	}
	args := opts.Args
	if args == nil {
		args = []string{"worker", "--config", opts.ConfigPath}
	}

	cmd := exec.Command(exe, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create command pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn worker: %w", err)
	}

	m := &Manager{
		logger: log.WithComponent("manager"),
		stdin:  stdin,
		writer: protocol.NewWriter(stdin),
		reader: opts.Reader,
		done:   make(chan struct{}),
	}
	m.logger.Info("worker spawned", "pid", cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		m.mu.Lock()
		m.waitErr = err
		m.mu.Unlock()
		close(m.done)
		m.logger.Info("worker exited", "error", err)
	}()

	return m, nil
}

// StartKolibri requests the webapp start serving. Best-effort: the outcome
// is observed through the published context, never a return value.
func (m *Manager) StartKolibri() error {
	return m.send(protocol.CommandStartKolibri)
}

// StopKolibri requests the webapp go idle. The worker keeps running.
func (m *Manager) StopKolibri() error {
	return m.send(protocol.CommandStopKolibri)
}

// Shutdown requests the worker stop the webapp and exit its command loop.
func (m *Manager) Shutdown() error {
	return m.send(protocol.CommandShutdown)
}

func (m *Manager) send(cmd protocol.Command) error {
	if m.Exited() {
		return protocol.ErrChannelClosed
	}
	return m.writer.Send(cmd)
}

// Close closes the command channel. The worker reads EOF and shuts down.
func (m *Manager) Close() error {
	return m.stdin.Close()
}

// Done is closed once the worker process has been reaped.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the worker exits.
func (m *Manager) Wait() error {
	<-m.done
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waitErr
}

// Exited reports whether the worker process is gone.
func (m *Manager) Exited() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Context returns the latest published snapshot. A worker that vanished
// without publishing a final reset reads as an implicit full stop, keeping
// only a sticky error result.
func (m *Manager) Context(ctx context.Context) (state.Snapshot, int64, error) {
	snap, rev, err := m.reader.Load(ctx)
	if err != nil {
		return state.Snapshot{}, 0, err
	}
	if m.Exited() && !snap.IsStopped {
		snap = implicitStop(snap)
	}
	return snap, rev, nil
}

// WatchChanges polls the published context and fans changed snapshots out on
// the hub. Blocks until ctx is cancelled or the worker exits.
func (m *Manager) WatchChanges(ctx context.Context, hub *events.Hub, interval time.Duration) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastRev int64 = -1
	publish := func(force bool) {
		snap, rev, err := m.Context(ctx)
		if err != nil {
			m.logger.Warn("failed to read service context", "error", err)
			return
		}
		if force || rev != lastRev {
			lastRev = rev
			hub.Publish(events.TypeContext, snap)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			// One final read so subscribers observe the implicit stop.
			publish(true)
			return
		case <-ticker.C:
			publish(false)
		}
	}
}

func implicitStop(snap state.Snapshot) state.Snapshot {
	result := state.StartResultNone
	if snap.StartResult == state.StartResultError {
		result = state.StartResultError
	}
	return state.Snapshot{
		IsStopped:   true,
		StartResult: result,
		HomePath:    snap.HomePath,
	}
}
