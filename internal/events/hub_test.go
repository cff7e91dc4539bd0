package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()

	h := NewHub(8)
	ch, cancel := h.Subscribe()
	t.Cleanup(cancel)

	h.Publish(TypeContext, map[string]bool{"is_stopped": true})

	select {
	case ev := <-ch:
		if ev.Type != TypeContext {
			t.Fatalf("type = %q", ev.Type)
		}
		if ev.ID != 1 {
			t.Fatalf("id = %d", ev.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	h := NewHub(8)
	_, cancel := h.Subscribe()
	t.Cleanup(cancel)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			h.Publish(TypeContext, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestSnapshotSince(t *testing.T) {
	t.Parallel()

	h := NewHub(4)
	for i := 0; i < 6; i++ {
		h.Publish(TypeContext, nil)
	}

	all := h.SnapshotSince(0)
	if len(all) != 4 {
		t.Fatalf("ring should keep 4 events, got %d", len(all))
	}
	if all[0].ID != 3 {
		t.Fatalf("oldest kept ID = %d, want 3", all[0].ID)
	}

	tail := h.SnapshotSince(5)
	if len(tail) != 1 || tail[0].ID != 6 {
		t.Fatalf("SnapshotSince(5) = %+v", tail)
	}
}
