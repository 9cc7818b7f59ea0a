package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jo-hoe/medscan/internal/document"
)

// PostgresDatabase keeps results in a jsonb column, for installations that
// share a clinic database server.
type PostgresDatabase struct {
	pool *pgxpool.Pool
}

func NewPostgresDatabase(ctx context.Context, connectionString string) (DatabaseService, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresDatabase{pool: pool}, nil
}

func (p *PostgresDatabase) CreateDatabase(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		document_type TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		data JSONB NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_results_created_at ON results (created_at)`)
	return err
}

func (p *PostgresDatabase) DoesDatabaseExist(ctx context.Context) bool {
	return p.pool.Ping(ctx) == nil
}

func (p *PostgresDatabase) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresDatabase) SaveResult(ctx context.Context, result *document.Result) (string, error) {
	data, err := prepareResult(result)
	if err != nil {
		return "", err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO results (id, document_type, created_at, data) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET document_type = EXCLUDED.document_type, created_at = EXCLUDED.created_at, data = EXCLUDED.data`,
		result.ID, string(result.DocumentType), result.CreatedAt, string(data))
	if err != nil {
		return "", fmt.Errorf("failed to store result %s: %w", result.ID, err)
	}
	return result.ID, nil
}

func (p *PostgresDatabase) GetResult(ctx context.Context, id string) (*document.Result, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, "SELECT data FROM results WHERE id = $1", id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeResult(data)
}

func (p *PostgresDatabase) ListResults(ctx context.Context, limit int) ([]*document.Result, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = p.pool.Query(ctx, "SELECT data FROM results ORDER BY created_at DESC, id LIMIT $1", limit)
	} else {
		rows, err = p.pool.Query(ctx, "SELECT data FROM results ORDER BY created_at DESC, id")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*document.Result, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		result, err := decodeResult(data)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func (p *PostgresDatabase) DeleteResult(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM results WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDatabase) DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM results WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
