package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clinic-trash/internal/model"
)

// PostgresBackend stores every collection in the records table as jsonb,
// keyed by (collection, id). Collections need no DDL, which is what lets
// restore materialize a loose collection on the fly.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

func (b *PostgresBackend) Get(ctx context.Context, collection string, id string) (model.Document, error) {
	var body []byte
	err := b.pool.QueryRow(ctx,
		`SELECT body FROM records WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrRecordNotFound
	}
	if err != nil {
		return nil, model.Persistence("find record", err)
	}
	return model.DocumentFromJSON(body)
}

func (b *PostgresBackend) PutIfAbsent(ctx context.Context, collection string, doc model.Document) (model.Document, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	var stored []byte
	err = b.pool.QueryRow(ctx,
		`WITH inserted AS (
		     INSERT INTO records (collection, id, body)
		     VALUES ($1, $2, $3)
		     ON CONFLICT (collection, id) DO NOTHING
		     RETURNING body
		 )
		 SELECT body FROM inserted
		 UNION ALL
		 SELECT body FROM records WHERE collection = $1 AND id = $2
		 LIMIT 1`,
		collection, doc.ID(), body).Scan(&stored)
	if err != nil {
		return nil, model.Persistence("insert record", err)
	}
	return model.DocumentFromJSON(stored)
}

func (b *PostgresBackend) Delete(ctx context.Context, collection string, id string) (bool, error) {
	tag, err := b.pool.Exec(ctx,
		`DELETE FROM records WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return false, model.Persistence("delete record", err)
	}
	return tag.RowsAffected() > 0, nil
}
