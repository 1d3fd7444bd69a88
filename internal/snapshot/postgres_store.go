package snapshot

import (
	"context"
	"fmt"
	"time"

	"flatwatch/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const snapshotTable = "listing_snapshot"

// PostgresStore keeps the current snapshot as rows of the listing_snapshot table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPool opens and pings a connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL configuration is required")
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres store: pool cannot be nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the snapshot table if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	sql := `
	CREATE TABLE IF NOT EXISTS ` + snapshotTable + ` (
		id       TEXT PRIMARY KEY,
		title    TEXT NOT NULL,
		price    INTEGER NOT NULL CHECK (price >= 0),
		calendar TEXT NOT NULL,
		rooms    INTEGER NOT NULL CHECK (rooms >= 0),
		people   INTEGER NOT NULL CHECK (people >= 0),
		img      TEXT NOT NULL,
		url      TEXT NOT NULL,
		size     INTEGER NOT NULL CHECK (size >= 0),
		saved_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	if _, err := p.pool.Exec(ctx, sql); err != nil {
		return &model.StorageError{Op: "schema", Path: snapshotTable, Err: err}
	}
	return nil
}

// Load returns every stored listing; an empty table is an empty snapshot.
func (p *PostgresStore) Load(ctx context.Context) (model.Snapshot, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, title, price, calendar, rooms, people, img, url, size FROM `+snapshotTable)
	if err != nil {
		return nil, &model.StorageError{Op: "read", Path: snapshotTable, Err: err}
	}

	listings, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Listing])
	if err != nil {
		return nil, &model.StorageError{Op: "decode", Path: snapshotTable, Err: err}
	}

	s := make(model.Snapshot, len(listings))
	for _, l := range listings {
		s[l.ID] = l
	}
	return s, nil
}

// Save replaces the table contents with s in a single transaction.
func (p *PostgresStore) Save(ctx context.Context, s model.Snapshot) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM `+snapshotTable); err != nil {
			return fmt.Errorf("clear snapshot: %w", err)
		}
		if len(s) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		insertSQL := `
		INSERT INTO ` + snapshotTable + ` (id, title, price, calendar, rooms, people, img, url, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
		for _, id := range s.IDs() {
			l := s[id]
			batch.Queue(insertSQL, l.ID, l.Title, l.Price, l.Calendar, l.Rooms, l.People, l.Img, l.URL, l.Size)
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("batch insert failed at row %d: %w", i, err)
			}
		}
		return results.Close()
	})
	if err != nil {
		return &model.StorageError{Op: "write", Path: snapshotTable, Err: err}
	}
	return nil
}

// Close releases the pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}
