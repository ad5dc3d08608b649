package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresTableName        = "issuedesk_changes"
	postgresOperationTimeout = 5 * time.Second
)

var ErrNoDSN = errors.New("remote dsn is empty")

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Envelope is one change-set as stored upstream.
type Envelope struct {
	Seq     int64
	Payload []byte
}

// PostgresFeed reads and writes change-sets in an append-only Postgres
// table ordered by seq.
type PostgresFeed struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresFeed(dsn string) (*PostgresFeed, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrNoDSN
	}
	return &PostgresFeed{
		dsn:       dsn,
		tableName: postgresTableName,
		openDB:    sql.Open,
	}, nil
}

func (f *PostgresFeed) ensureReady() error {
	f.initOnce.Do(func() {
		db, err := f.openDB("postgres", f.dsn)
		if err != nil {
			f.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				seq BIGSERIAL PRIMARY KEY,
				payload TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, f.tableName)
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			f.initErr = err
			return
		}
		f.db = db
	})
	return f.initErr
}

// Publish appends a change-set and returns its sequence number.
func (f *PostgresFeed) Publish(ctx context.Context, set ChangeSet) (int64, error) {
	if err := f.ensureReady(); err != nil {
		return 0, err
	}
	payload, err := Marshal(set)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	var seq int64
	query := fmt.Sprintf(`INSERT INTO %s (payload) VALUES ($1) RETURNING seq`, f.tableName)
	if err := f.db.QueryRowContext(ctx, query, string(payload)).Scan(&seq); err != nil {
		return 0, fmt.Errorf("publish change set: %w", err)
	}
	return seq, nil
}

// Pull returns up to limit envelopes with seq greater than after, oldest
// first.
func (f *PostgresFeed) Pull(ctx context.Context, after int64, limit int) ([]Envelope, error) {
	if err := f.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT seq, payload FROM %s WHERE seq > $1 ORDER BY seq LIMIT $2`, f.tableName)
	rows, err := f.db.QueryContext(ctx, query, after, limit)
	if err != nil {
		return nil, fmt.Errorf("pull change sets: %w", err)
	}
	defer rows.Close()

	var out []Envelope
	for rows.Next() {
		var env Envelope
		var payload string
		if err := rows.Scan(&env.Seq, &payload); err != nil {
			return nil, err
		}
		env.Payload = []byte(payload)
		out = append(out, env)
	}
	return out, rows.Err()
}

func (f *PostgresFeed) Close() error {
	if f == nil || f.db == nil {
		return nil
	}
	return f.db.Close()
}
