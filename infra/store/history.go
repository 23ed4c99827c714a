package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/kilianp07/flexplan/core/model"
)

// PriceHistory keeps one price per slot start.
type PriceHistory struct {
	db *sql.DB
}

// NewPriceHistory ensures the prices table exists.
func NewPriceHistory(db *sql.DB) (*PriceHistory, error) {
	schema := `CREATE TABLE IF NOT EXISTS prices (
        ts INTEGER PRIMARY KEY,
        price REAL NOT NULL
    );`
	if err := ensureSchema(db, schema); err != nil {
		return nil, err
	}
	return &PriceHistory{db: db}, nil
}

// Record stores every slot price of the horizon, replacing known slots.
func (p *PriceHistory) Record(ctx context.Context, h model.PriceHorizon) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO prices (ts, price) VALUES (?, ?)
        ON CONFLICT(ts) DO UPDATE SET price = excluded.price`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()
	for i, price := range h.Prices {
		if _, err := stmt.ExecContext(ctx, h.SlotTime(i).Unix(), price); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Prices returns the prices of slots starting at or after since, oldest
// first.
func (p *PriceHistory) Prices(ctx context.Context, since time.Time) ([]float64, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT price FROM prices WHERE ts >= ? ORDER BY ts`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Prune deletes prices older than before.
func (p *PriceHistory) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM prices WHERE ts < ?`, before.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
