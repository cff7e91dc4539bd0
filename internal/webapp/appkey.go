package webapp

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// appKeyLength is the length of the device credential in hex characters.
const appKeyLength = 32

// ensureAppKey returns the device app key, generating and persisting one on
// first run. The key is derived from a random UUID seed via BLAKE3 so the
// stored value carries no structure.
func ensureAppKey(ctx context.Context, db *sql.DB) (string, error) {
	var key string
	err := db.QueryRowContext(ctx, "SELECT app_key FROM device WHERE id = 1;").Scan(&key)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read device app key: %w", err)
	}

	sum := blake3.Sum256([]byte(uuid.NewString()))
	key = hex.EncodeToString(sum[:])[:appKeyLength]

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = db.ExecContext(ctx,
		"INSERT INTO device(id, app_key, created_at) VALUES(1, ?, ?);", key, now)
	if err != nil {
		return "", fmt.Errorf("store device app key: %w", err)
	}
	return key, nil
}
