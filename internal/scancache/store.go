// Package scancache persists loudness measurements between runs so
// unchanged files skip the expensive analysis pass. The cache is opt-in;
// the analysis pipeline itself keeps no state.
package scancache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"gaintag/internal/analysis"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; stale caches are cheap to rebuild, so a mismatch just asks the
// user to clear.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match
// the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrLocked indicates another gaintag process holds the cache.
var ErrLocked = errors.New("cache is locked by another gaintag process")

// Entry is one cached analysis result.
type Entry struct {
	Measurement analysis.Measurement
	Duration    float64
	FormatName  string
	CodecName   string
}

// Store manages measurement persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

// Open initializes or connects to the cache database under dir, guarding
// it with a file lock against concurrent gaintag runs.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, "cache.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	dbPath := filepath.Join(dir, "measurements.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, lock: lock, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return store, nil
}

// Close releases the database connection and the cache lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var dbErr error
	if s.db != nil {
		dbErr = s.db.Close()
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil && dbErr == nil {
			dbErr = err
		}
	}
	return dbErr
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'gaintag cache clear')",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Get looks up a cached entry for path. The hit is only valid when size
// and mtime still match the file on disk.
func (s *Store) Get(ctx context.Context, path string, size, mtimeNS int64) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT size, mtime_ns, integrated, loudness_range, true_peak, sample_peak, duration, format_name, codec_name
         FROM measurements WHERE path = ?`, path)

	var (
		storedSize  int64
		storedMtime int64
		entry       Entry
		integrated  float64
		truePeak    sql.NullFloat64
		samplePeak  sql.NullFloat64
	)
	err := row.Scan(&storedSize, &storedMtime, &integrated, &entry.Measurement.Range,
		&truePeak, &samplePeak, &entry.Duration, &entry.FormatName, &entry.CodecName)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("query measurement: %w", err)
	}
	if storedSize != size || storedMtime != mtimeNS {
		return Entry{}, false, nil
	}

	entry.Measurement.Integrated = integrated
	if truePeak.Valid {
		entry.Measurement.TruePeak = truePeak.Float64
		entry.Measurement.HasTruePeak = true
	}
	if samplePeak.Valid {
		entry.Measurement.SamplePeak = samplePeak.Float64
		entry.Measurement.HasSamplePeak = true
	}
	return entry, true, nil
}

// Put stores or replaces the cached entry for path.
func (s *Store) Put(ctx context.Context, path string, size, mtimeNS int64, entry Entry) error {
	truePeak := nullableFloat(entry.Measurement.TruePeak, entry.Measurement.HasTruePeak)
	samplePeak := nullableFloat(entry.Measurement.SamplePeak, entry.Measurement.HasSamplePeak)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO measurements (path, size, mtime_ns, integrated, loudness_range, true_peak, sample_peak, duration, format_name, codec_name, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(path) DO UPDATE SET
             size = excluded.size,
             mtime_ns = excluded.mtime_ns,
             integrated = excluded.integrated,
             loudness_range = excluded.loudness_range,
             true_peak = excluded.true_peak,
             sample_peak = excluded.sample_peak,
             duration = excluded.duration,
             format_name = excluded.format_name,
             codec_name = excluded.codec_name,
             updated_at = excluded.updated_at`,
		path, size, mtimeNS,
		entry.Measurement.Integrated, entry.Measurement.Range,
		truePeak, samplePeak,
		entry.Duration, entry.FormatName, entry.CodecName,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store measurement: %w", err)
	}
	return nil
}

// Clear removes every cached measurement and reports how many were dropped.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM measurements")
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	dropped, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count cleared rows: %w", err)
	}
	return dropped, nil
}

func nullableFloat(value float64, valid bool) any {
	if !valid || math.IsNaN(value) {
		return nil
	}
	return value
}
