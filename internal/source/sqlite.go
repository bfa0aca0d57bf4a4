package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang/snappy"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/arkilian/eventagg/pkg/types"
)

// PartitionInfo describes one written partition file.
type PartitionInfo struct {
	PartitionID string
	Date        string
	Path        string
	RowCount    int64
	SizeBytes   int64
	CreatedAt   time.Time
}

// PartitionFileName returns the file name holding the partition for date.
func PartitionFileName(date string) string {
	return date + ".sqlite"
}

// PartitionWriter writes one SQLite file per event_date.
type PartitionWriter struct {
	outputDir string
}

// NewPartitionWriter creates a writer placing partition files in outputDir.
func NewPartitionWriter(outputDir string) *PartitionWriter {
	return &PartitionWriter{outputDir: outputDir}
}

// Write creates the partition file for date, replacing any existing file.
// Every event must carry that date. Events are stored in the given order,
// which becomes the partition's scan order.
func (w *PartitionWriter) Write(ctx context.Context, date string, events []types.Event) (*PartitionInfo, error) {
	if _, err := types.ParseDate(date); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	for i := range events {
		if events[i].EventDate != date {
			return nil, fmt.Errorf("source: event %d has date %q, partition is %s", i, events[i].EventDate, date)
		}
	}

	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("source: failed to create output directory: %w", err)
	}

	partitionID := fmt.Sprintf("events:%s:%s", date, uuid.New().String()[:8])
	createdAt := time.Now()
	finalPath := filepath.Clean(filepath.Join(w.outputDir, PartitionFileName(date)))
	tmpPath := finalPath + ".building"
	os.Remove(tmpPath)

	if err := writePartition(ctx, tmpPath, partitionID, date, createdAt, events); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("source: failed to publish partition file: %w", err)
	}

	fileInfo, err := os.Stat(finalPath)
	if err != nil {
		return nil, fmt.Errorf("source: failed to stat partition file: %w", err)
	}

	return &PartitionInfo{
		PartitionID: partitionID,
		Date:        date,
		Path:        finalPath,
		RowCount:    int64(len(events)),
		SizeBytes:   fileInfo.Size(),
		CreatedAt:   createdAt,
	}, nil
}

func writePartition(ctx context.Context, path, partitionID, date string, createdAt time.Time, events []types.Event) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("source: failed to create SQLite database: %w", err)
	}
	defer db.Close()

	// Enable WAL mode for better write performance during build
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("source: failed to set journal mode: %w", err)
	}

	// seq preserves the record order that first-match extraction relies on
	schema := []string{
		`CREATE TABLE events (
			seq INTEGER PRIMARY KEY,
			event_name TEXT NOT NULL,
			event_timestamp INTEGER NOT NULL,
			event_date TEXT NOT NULL,
			user_pseudo_id TEXT NOT NULL,
			params BLOB,
			items BLOB
		)`,
		"CREATE INDEX idx_events_name ON events(event_name, seq)",
		`CREATE TABLE _eventagg_partition (
			partition_id TEXT NOT NULL,
			event_date TEXT NOT NULL,
			row_count INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("source: failed to create schema: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("source: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (seq, event_name, event_timestamp, event_date, user_pseudo_id, params, items) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("source: failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		ev := &events[i]
		params, err := encodeBlob(ev.Params)
		if err != nil {
			return fmt.Errorf("source: failed to encode params: %w", err)
		}
		items, err := encodeBlob(ev.Items)
		if err != nil {
			return fmt.Errorf("source: failed to encode items: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, i, ev.EventName, ev.EventTimestamp, ev.EventDate, ev.UserPseudoID, params, items); err != nil {
			return fmt.Errorf("source: failed to insert event: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO _eventagg_partition (partition_id, event_date, row_count, created_at) VALUES (?, ?, ?, ?)`,
		partitionID, date, len(events), createdAt.UnixMicro()); err != nil {
		return fmt.Errorf("source: failed to record partition metadata: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("source: failed to commit partition: %w", err)
	}

	// Checkpoint WAL and switch to DELETE mode for immutability
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("source: failed to checkpoint WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=DELETE"); err != nil {
		return fmt.Errorf("source: failed to set journal mode to DELETE: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("source: failed to close database: %w", err)
	}
	return nil
}

// encodeBlob stores nested fields as Snappy-compressed JSON. Empty slices
// are stored as NULL.
func encodeBlob[T any](v []T) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

func decodeBlob[T any](blob []byte) ([]T, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	data, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SQLiteProvider serves partition files from a local directory.
type SQLiteProvider struct {
	dir string
}

// NewSQLiteProvider creates a provider reading <dir>/<date>.sqlite files.
func NewSQLiteProvider(dir string) *SQLiteProvider {
	return &SQLiteProvider{dir: dir}
}

// Dates lists the partition dates present in the directory, ascending. A
// missing directory holds no partitions.
func (p *SQLiteProvider) Dates(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return partitionDates(names), nil
}

// Scan implements Provider.
func (p *SQLiteProvider) Scan(ctx context.Context, req ScanRequest, fn func(*types.Event) error) error {
	keys, err := req.Range.Partitions()
	if err != nil {
		return err
	}
	for _, key := range keys {
		path := filepath.Join(p.dir, PartitionFileName(key.Date))
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return partitionNotFound(key.Date)
			}
			return partitionReadFailed(key.Date, err)
		}
		if err := scanFile(ctx, path, key.Date, req.EventNames, fn); err != nil {
			return err
		}
	}
	return nil
}

// scanFile streams the events of one partition file in seq order. Errors
// returned by fn are passed through unchanged; storage errors are reported
// as retryable read failures.
func scanFile(ctx context.Context, path, date string, eventNames []string, fn func(*types.Event) error) error {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return partitionReadFailed(date, err)
	}
	defer db.Close()

	query := `SELECT event_name, event_timestamp, event_date, user_pseudo_id, params, items FROM events`
	args := make([]interface{}, 0, len(eventNames))
	if len(eventNames) > 0 {
		placeholders := make([]string, len(eventNames))
		for i, name := range eventNames {
			placeholders[i] = "?"
			args = append(args, name)
		}
		query += " WHERE event_name IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY seq"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return partitionReadFailed(date, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ev            types.Event
			params, items []byte
		)
		if err := rows.Scan(&ev.EventName, &ev.EventTimestamp, &ev.EventDate, &ev.UserPseudoID, &params, &items); err != nil {
			return partitionReadFailed(date, err)
		}
		if ev.Params, err = decodeBlob[types.Param](params); err != nil {
			return partitionReadFailed(date, fmt.Errorf("decode params: %w", err))
		}
		if ev.Items, err = decodeBlob[types.Item](items); err != nil {
			return partitionReadFailed(date, fmt.Errorf("decode items: %w", err))
		}
		if err := fn(&ev); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return partitionReadFailed(date, err)
	}
	return nil
}
