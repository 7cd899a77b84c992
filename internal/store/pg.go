package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/pacebuddies/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var _ EntityStore = (*PgStore)(nil)

// PgStore keeps all entities in a single table keyed by
// (kind, partition_key, row_key). Every statement touches rows of one
// partition at most, matching the single-partition atomicity contract.
type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{
		db: db,
	}
}

const schema = `
	CREATE TABLE IF NOT EXISTS entity (
		kind TEXT NOT NULL,
		partition_key TEXT NOT NULL,
		row_key TEXT NOT NULL,
		data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (kind, partition_key, row_key)
	);
	CREATE INDEX IF NOT EXISTS entity_kind_row_key_idx ON entity (kind, row_key);
	CREATE INDEX IF NOT EXISTS entity_kind_created_at_idx ON entity (kind, created_at);
`

func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure entity schema: %w", err)
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, kind, partitionKey, rowKey string) (*Entity, error) {
	entity := Entity{
		PartitionKey: partitionKey,
		RowKey:       rowKey,
	}
	err := s.db.QueryRow(ctx, `
		SELECT data, created_at
		FROM entity
		WHERE kind = $1 AND partition_key = $2 AND row_key = $3
	`, kind, partitionKey, rowKey).Scan(&entity.Data, &entity.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (s *PgStore) Create(ctx context.Context, kind string, entity Entity) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO entity (kind, partition_key, row_key, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, partition_key, row_key) DO NOTHING
	`, kind, entity.PartitionKey, entity.RowKey, entity.Data)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PgStore) Update(ctx context.Context, kind string, entity Entity) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE entity
		SET data = $4
		WHERE kind = $1 AND partition_key = $2 AND row_key = $3
	`, kind, entity.PartitionKey, entity.RowKey, entity.Data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntityNotFound
	}
	return nil
}

func (s *PgStore) Delete(ctx context.Context, kind, partitionKey, rowKey string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM entity
		WHERE kind = $1 AND partition_key = $2 AND row_key = $3
	`, kind, partitionKey, rowKey)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PgStore) QueryPartition(ctx context.Context, kind, partitionKey string) (_ []Entity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.queryPartition")
	span.SetAttributes(attribute.String("kind", kind))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rows, err := s.db.Query(ctx, `
		SELECT partition_key, row_key, data, created_at
		FROM entity
		WHERE kind = $1 AND partition_key = $2
		ORDER BY row_key
	`, kind, partitionKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return rows2entities(rows)
}

func (s *PgStore) QueryByRowKey(ctx context.Context, kind, rowKey string) (_ []Entity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.queryByRowKey")
	span.SetAttributes(attribute.String("kind", kind))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rows, err := s.db.Query(ctx, `
		SELECT partition_key, row_key, data, created_at
		FROM entity
		WHERE kind = $1 AND row_key = $2
		ORDER BY partition_key
	`, kind, rowKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return rows2entities(rows)
}

func (s *PgStore) DeleteInPartition(ctx context.Context, kind, partitionKey string, rowKeys []string) (int64, error) {
	if len(rowKeys) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `
		DELETE FROM entity
		WHERE kind = $1 AND partition_key = $2 AND row_key = ANY($3)
	`, kind, partitionKey, rowKeys)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) DeletePartition(ctx context.Context, kind, partitionKey string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM entity
		WHERE kind = $1 AND partition_key = $2
	`, kind, partitionKey)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) DeleteOlderThan(ctx context.Context, kind string, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM entity
		WHERE kind = $1 AND created_at < $2
	`, kind, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) Partitions(ctx context.Context, kind string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT partition_key
		FROM entity
		WHERE kind = $1
	`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var partitions []string
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		partitions = append(partitions, pk)
	}
	return partitions, rows.Err()
}

func rows2entities(rows pgx.Rows) ([]Entity, error) {
	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.PartitionKey, &e.RowKey, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}
