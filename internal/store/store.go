package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/changewatch/internal/resource"
)

// Store persists one resource blob per feeder.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// ResourceInfo describes a stored blob without decoding it.
type ResourceInfo struct {
	Feeder    string
	Size      int64
	UpdatedAt time.Time
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadResource returns the stored resource of a feeder. The boolean is false
// when nothing was stored yet; the returned resource is then empty.
func (s *Store) LoadResource(ctx context.Context, feeder string) (*resource.Resource, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM resources WHERE feeder = ?", feeder).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return resource.New(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load resource %s: %w", feeder, err)
	}

	res, err := resource.Decode(data)
	if err != nil {
		return nil, true, fmt.Errorf("decode resource %s: %w", feeder, err)
	}
	return res, true, nil
}

// SaveResource replaces the stored blob of a feeder. The blob is encoded
// before the transaction starts, so a failure leaves the previous row intact.
func (s *Store) SaveResource(ctx context.Context, feeder string, res *resource.Resource) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(feeder) == "" {
		return errors.New("feeder is required")
	}
	if res == nil {
		return errors.New("resource is required")
	}

	data, err := resource.Encode(res)
	if err != nil {
		return fmt.Errorf("encode resource %s: %w", feeder, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO resources (feeder, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(feeder) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, feeder, data, formatTime(s.now()))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("save resource %s: %w", feeder, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit resource %s: %w", feeder, err)
	}
	return nil
}

// DeleteResource forgets a feeder's state. It reports whether a row existed.
func (s *Store) DeleteResource(ctx context.Context, feeder string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM resources WHERE feeder = ?", feeder)
	if err != nil {
		return false, fmt.Errorf("delete resource %s: %w", feeder, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) ListResources(ctx context.Context) ([]ResourceInfo, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT feeder, length(data), updated_at
		FROM resources
		ORDER BY feeder
	`)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var infos []ResourceInfo
	for rows.Next() {
		var (
			info      ResourceInfo
			updatedAt string
		)
		if err := rows.Scan(&info.Feeder, &info.Size, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		info.UpdatedAt, err = parseTime(updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}

	return infos, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return time.Time{}.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
