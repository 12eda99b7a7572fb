package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	pgMaxOpenConns    = 10
	pgMaxIdleConns    = 5
	pgConnMaxLifetime = 5 * time.Minute
	pgConnectTimeout  = 10 * time.Second
)

// Postgres inserts one row per routed record.
type Postgres struct {
	db     *sql.DB
	table  string // quoted identifier
	insert string
}

// OpenPostgres connects to dsn, verifies the connection and ensures the
// destination table exists.
func OpenPostgres(ctx context.Context, dsn, table string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: connection URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetMaxIdleConns(pgMaxIdleConns)
	db.SetConnMaxLifetime(pgConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pgConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	p := NewPostgres(db, table)
	if err := p.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB, table string) *Postgres {
	q := pq.QuoteIdentifier(table)
	return &Postgres{
		db:    db,
		table: q,
		insert: `INSERT INTO ` + q + ` (id, record_id, channel, status, amount, category, attributes, routed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	}
}

// EnsureSchema creates the destination table and its channel index.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS ` + p.table + ` (
		id          UUID PRIMARY KEY,
		record_id   TEXT NOT NULL,
		channel     TEXT NOT NULL,
		status      TEXT NOT NULL,
		amount      TEXT NOT NULL,
		category    TEXT,
		attributes  JSONB NOT NULL,
		routed_at   TIMESTAMPTZ NOT NULL
	)`
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: create table: %w", err)
	}
	return nil
}

func (p *Postgres) Deliver(ctx context.Context, d Delivery) error {
	pl := d.payload()
	attrs, err := json.Marshal(pl.Attributes)
	if err != nil {
		return fmt.Errorf("postgres: marshal attributes: %w", err)
	}

	var category sql.NullString
	if pl.Category != "" {
		category = sql.NullString{String: pl.Category, Valid: true}
	}

	_, err = p.db.ExecContext(ctx, p.insert,
		uuid.New(), pl.ID, pl.Channel, pl.Status, pl.Amount, category, attrs, pl.RoutedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert %s: %w", pl.ID, err)
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }
