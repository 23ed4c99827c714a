package store

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/flexplan/core/model"
)

// ArchiveQuery filters archived plans by save time.
type ArchiveQuery struct {
	Start time.Time
	End   time.Time
	// Device keeps plans holding at least one entry of the device.
	Device string
}

// Archive persists every saved plan.
type Archive interface {
	Append(ctx context.Context, plan model.Plan) error
	Query(ctx context.Context, q ArchiveQuery) ([]model.Plan, error)
	Close() error
}

func (q ArchiveQuery) match(p model.Plan) bool {
	if !q.Start.IsZero() && p.UpdatedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && p.UpdatedAt.After(q.End) {
		return false
	}
	if q.Device == "" {
		return true
	}
	for _, e := range p.Entries {
		if e.DeviceID == q.Device {
			return true
		}
	}
	return false
}

// JSONLArchive appends plans to a JSONL file with automatic rotation.
type JSONLArchive struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewJSONLArchive creates an archive rotating at maxSizeMB, keeping
// maxBackups files for maxAgeDays.
func NewJSONLArchive(path string, maxSizeMB, maxBackups, maxAgeDays int) (*JSONLArchive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return &JSONLArchive{logger: lj, path: path}, nil
}

// Append writes the plan as one line.
func (a *JSONLArchive) Append(_ context.Context, plan model.Plan) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return json.NewEncoder(a.logger).Encode(plan)
}

// Query reads the current and rotated files.
func (a *JSONLArchive) Query(_ context.Context, q ArchiveQuery) ([]model.Plan, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	files, err := filepath.Glob(a.path + "*")
	if err != nil {
		return nil, err
	}
	var res []model.Plan
	for _, f := range files {
		file, err := os.Open(f)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			var p model.Plan
			if err := json.Unmarshal(scanner.Bytes(), &p); err != nil {
				continue
			}
			if q.match(p) {
				res = append(res, p)
			}
		}
		_ = file.Close()
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].UpdatedAt.Before(res[j].UpdatedAt) })
	return res, nil
}

// Close closes the underlying writer.
func (a *JSONLArchive) Close() error { return a.logger.Close() }

// SQLiteArchive stores plans in a table.
type SQLiteArchive struct {
	db *sql.DB
}

// NewSQLiteArchive ensures the plans table exists.
func NewSQLiteArchive(db *sql.DB) (*SQLiteArchive, error) {
	schema := `CREATE TABLE IF NOT EXISTS plans (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        revision TEXT,
        ts INTEGER,
        record TEXT
    );`
	if err := ensureSchema(db, schema); err != nil {
		return nil, err
	}
	return &SQLiteArchive{db: db}, nil
}

// Append inserts the plan.
func (a *SQLiteArchive) Append(ctx context.Context, plan model.Plan) error {
	b, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO plans (revision, ts, record) VALUES (?, ?, ?)`,
		plan.Revision, plan.UpdatedAt.UnixNano(), string(b))
	return err
}

// Query returns the plans matching q ordered by save time.
func (a *SQLiteArchive) Query(ctx context.Context, q ArchiveQuery) ([]model.Plan, error) {
	var args []any
	query := `SELECT record FROM plans WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	query += ` ORDER BY ts`
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Plan
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p model.Plan
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
		if q.match(p) {
			res = append(res, p)
		}
	}
	return res, rows.Err()
}

// Close is a no-op; the database is owned by the caller.
func (a *SQLiteArchive) Close() error { return nil }
