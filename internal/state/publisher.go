package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Publisher persists context snapshots to the service_context table so the
// controller process can observe them. A single row is rewritten on every
// change (last-write-wins) with a monotonic revision for change detection.
type Publisher struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPublisher(db *sql.DB, logger *slog.Logger) *Publisher {
	return &Publisher{db: db, logger: logger}
}

// Publish writes one snapshot. Ordering is preserved by the caller: the
// Context invokes its change hook with the mutation lock held.
func (p *Publisher) Publish(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal context snapshot: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = p.db.ExecContext(ctx, `
INSERT INTO service_context(id, revision, snapshot, updated_at)
VALUES(1, 1, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  revision   = revision + 1,
  snapshot   = excluded.snapshot,
  updated_at = excluded.updated_at;
`, string(data), now)
	if err != nil {
		return fmt.Errorf("upsert service context: %w", err)
	}
	return nil
}

// Attach wires the publisher to a Context as its change hook. Publish
// failures are logged and dropped: the in-memory context stays authoritative
// inside the worker and the next mutation retries the write.
func (p *Publisher) Attach(c *Context) {
	c.SetOnChange(func(snap Snapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Publish(ctx, snap); err != nil {
			p.logger.Error("failed to publish context snapshot", "error", err)
		}
	})
}

// Reader loads published snapshots on the controller side.
type Reader struct {
	db *sql.DB
}

func NewReader(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Load returns the latest snapshot and its revision. Before the worker has
// published anything it returns the initial stopped state with revision 0;
// controllers must treat a vanished worker the same way.
func (r *Reader) Load(ctx context.Context) (Snapshot, int64, error) {
	var (
		raw      string
		revision int64
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT snapshot, revision FROM service_context WHERE id = 1;",
	).Scan(&raw, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{IsStopped: true, StartResult: StartResultNone}, 0, nil
	}
	if err != nil {
		return Snapshot{}, 0, fmt.Errorf("read service context: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, 0, fmt.Errorf("decode service context: %w", err)
	}
	return snap, revision, nil
}
