package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattjoyce/kolibrid/internal/events"
	"github.com/mattjoyce/kolibrid/internal/log"
	"github.com/mattjoyce/kolibrid/internal/protocol"
	"github.com/mattjoyce/kolibrid/internal/state"
	"github.com/mattjoyce/kolibrid/internal/storage"
)

// spawnCat uses /bin/cat as a stand-in worker: it consumes the command
// channel and exits on EOF, which is all the manager plumbing needs.
func spawnCat(t *testing.T, reader *state.Reader) *Manager {
	t.Helper()
	m, err := Spawn(SpawnOptions{
		Reader:     reader,
		Executable: "/bin/cat",
		Args:       []string{},
	})
	if err != nil {
		t.Skipf("cannot spawn /bin/cat: %v", err)
	}
	t.Cleanup(func() {
		_ = m.Close()
		_ = m.Wait()
	})
	return m
}

func newReader(t *testing.T) (*state.Reader, *state.Context) {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	shared := state.NewContext()
	state.NewPublisher(db, log.WithComponent("test")).Attach(shared)
	return state.NewReader(db), shared
}

func TestManagerCommandsAndEOFShutdown(t *testing.T) {
	t.Parallel()

	reader, _ := newReader(t)
	m := spawnCat(t, reader)

	if err := m.StartKolibri(); err != nil {
		t.Fatalf("StartKolibri: %v", err)
	}
	if err := m.StopKolibri(); err != nil {
		t.Fatalf("StopKolibri: %v", err)
	}

	// Closing the channel is the EOF shutdown path.
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit after channel close")
	}

	if err := m.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !m.Exited() {
		t.Fatal("Exited should report true after Wait")
	}
}

func TestSendAfterExitReportsClosedChannel(t *testing.T) {
	t.Parallel()

	reader, _ := newReader(t)
	m := spawnCat(t, reader)

	_ = m.Close()
	_ = m.Wait()

	if err := m.Shutdown(); !errors.Is(err, protocol.ErrChannelClosed) {
		t.Fatalf("got %v, want ErrChannelClosed", err)
	}
}

func TestContextImplicitStopAfterWorkerDeath(t *testing.T) {
	t.Parallel()

	reader, shared := newReader(t)
	m := spawnCat(t, reader)

	// Worker published "serving", then died without a final reset.
	shared.MarkStarting()
	shared.SetServing("http://127.0.0.1:8080/")
	_ = m.Close()
	_ = m.Wait()

	snap, _, err := m.Context(context.Background())
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if !snap.IsStopped || snap.BaseURL != "" {
		t.Fatalf("vanished worker must read as stopped: %+v", snap)
	}
}

func TestWatchChangesPublishesOnRevisionChange(t *testing.T) {
	t.Parallel()

	reader, shared := newReader(t)
	m := spawnCat(t, reader)

	hub := events.NewHub(16)
	ch, cancel := hub.Subscribe()
	t.Cleanup(cancel)

	ctx, stop := context.WithCancel(context.Background())
	t.Cleanup(stop)
	watchDone := make(chan struct{})
	go func() {
		m.WatchChanges(ctx, hub, 10*time.Millisecond)
		close(watchDone)
	}()

	awaitEvent := func(what string) events.Event {
		t.Helper()
		select {
		case ev := <-ch:
			return ev
		case <-time.After(5 * time.Second):
			t.Fatalf("no event for %s", what)
			return events.Event{}
		}
	}

	// Initial snapshot (revision 0), then the starting mutation.
	awaitEvent("initial snapshot")
	shared.MarkStarting()
	ev := awaitEvent("starting mutation")

	var snap state.Snapshot
	if err := json.Unmarshal(ev.Data, &snap); err != nil {
		t.Fatalf("decode event payload: %v", err)
	}
	if !snap.IsStarting {
		t.Fatalf("published snapshot should be starting: %+v", snap)
	}

	// Worker death produces a final implicit-stop publish and ends the watch.
	_ = m.Close()
	_ = m.Wait()
	final := awaitEvent("implicit stop")
	if err := json.Unmarshal(final.Data, &snap); err != nil {
		t.Fatalf("decode final payload: %v", err)
	}
	if !snap.IsStopped {
		t.Fatalf("final snapshot should be stopped: %+v", snap)
	}

	select {
	case <-watchDone:
	case <-time.After(5 * time.Second):
		t.Fatal("WatchChanges did not return after worker exit")
	}
}
