package syncserver

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/fuusan091240-hub/flow-schedule/internal/snapshot"
	"github.com/fuusan091240-hub/flow-schedule/internal/storage"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SnapshotStore keeps the latest envelope per access key.
type SnapshotStore struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSnapshotStore(driver, path string) (*SnapshotStore, error) {
	db, err := storage.OpenDB(driver, path)
	if err != nil {
		return nil, err
	}
	if err := storage.ApplyMigrations(db, migrationFiles, ".up.sql"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SnapshotStore{db: db, now: time.Now}, nil
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// Put stores env for key unless the stored snapshot is at least as new.
// It reports whether env replaced the stored one.
func (s *SnapshotStore) Put(ctx context.Context, key string, env snapshot.Envelope) (bool, error) {
	savedAt, ok := env.SavedTime()
	if !ok {
		return false, fmt.Errorf("%w: savedAt %q", snapshot.ErrMalformedEnvelope, env.SavedAt)
	}
	data := string(env.Data)
	if data == "" {
		data = "null"
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO snapshots(access_key, version, saved_at, saved_at_unix_nano, data, updated_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(access_key) DO UPDATE SET
    version = excluded.version,
    saved_at = excluded.saved_at,
    saved_at_unix_nano = excluded.saved_at_unix_nano,
    data = excluded.data,
    updated_at = excluded.updated_at
WHERE excluded.saved_at_unix_nano > snapshots.saved_at_unix_nano`,
		key,
		env.Version,
		env.SavedAt,
		savedAt.UnixNano(),
		data,
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("put snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get returns nil when key has no snapshot.
func (s *SnapshotStore) Get(ctx context.Context, key string) (*snapshot.Envelope, error) {
	var (
		env  snapshot.Envelope
		data string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, saved_at, data FROM snapshots WHERE access_key = ?`, key,
	).Scan(&env.Version, &env.SavedAt, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	env.Data = []byte(data)
	return &env, nil
}

// Count is the number of stored snapshots.
func (s *SnapshotStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
