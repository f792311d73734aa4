package kv

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kishek/graph-store/logging"
)

// PostgresBackend implements Backend over a single `kv_store` table,
// scoped to one partition id. Pool configuration mirrors the donor's
// driver.Connect defaults.
type PostgresBackend struct {
	pool        *pgxpool.Pool
	partitionID string
	log         *logging.Logger
}

// ConnectPostgres opens a pool against dsn and ensures the backing table
// exists, scoping every subsequent operation to partitionID.
func ConnectPostgres(ctx context.Context, dsn, partitionID string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("kv: parse dsn: %w", err)
	}

	cfg.MaxConns = 20
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("kv: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("kv: ping: %w", err)
	}

	b := &PostgresBackend{pool: pool, partitionID: partitionID, log: logging.Root()}
	if err := b.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func (b *PostgresBackend) ensureSchema(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS kv_store (
			partition_id TEXT NOT NULL,
			key          TEXT NOT NULL,
			value        JSONB NOT NULL,
			PRIMARY KEY (partition_id, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("kv: ensure schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (b *PostgresBackend) Close() { b.pool.Close() }

func (b *PostgresBackend) GetBatch(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	if len(keys) > MaxBatchSize {
		return nil, &ErrBatchTooLarge{Size: len(keys)}
	}

	rows, err := b.pool.Query(ctx,
		`SELECT key, value FROM kv_store WHERE partition_id = $1 AND key = ANY($2)`,
		b.partitionID, keys)
	if err != nil {
		return nil, fmt.Errorf("kv: get batch: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte, len(keys))
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("kv: scan: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

func (b *PostgresBackend) PutBatch(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	if len(entries) > MaxBatchSize {
		return &ErrBatchTooLarge{Size: len(entries)}
	}
	return b.putBatchTx(ctx, b.pool, entries)
}

func (b *PostgresBackend) putBatchTx(ctx context.Context, q pgxQuerier, entries map[string][]byte) error {
	batch := &pgx.Batch{}
	for key, value := range entries {
		batch.Queue(`
			INSERT INTO kv_store (partition_id, key, value) VALUES ($1, $2, $3)
			ON CONFLICT (partition_id, key) DO UPDATE SET value = EXCLUDED.value
		`, b.partitionID, key, value)
	}

	br := q.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("kv: put batch: %w", err)
		}
	}
	return nil
}

func (b *PostgresBackend) DeleteBatch(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	if len(keys) > MaxBatchSize {
		return 0, &ErrBatchTooLarge{Size: len(keys)}
	}
	return b.deleteBatchTx(ctx, b.pool, keys)
}

func (b *PostgresBackend) deleteBatchTx(ctx context.Context, q pgxQuerier, keys []string) (int, error) {
	tag, err := q.Exec(ctx,
		`DELETE FROM kv_store WHERE partition_id = $1 AND key = ANY($2)`,
		b.partitionID, keys)
	if err != nil {
		return 0, fmt.Errorf("kv: delete batch: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (b *PostgresBackend) ListPrefix(ctx context.Context, prefix string, opts ListOptions) ([]Entry, error) {
	var sb strings.Builder
	args := []interface{}{b.partitionID, prefix + "%"}
	sb.WriteString(`SELECT key, value FROM kv_store WHERE partition_id = $1 AND key LIKE $2`)

	if opts.StartAfter != "" {
		args = append(args, opts.StartAfter)
		sb.WriteString(fmt.Sprintf(" AND key > $%d", len(args)))
	}
	if opts.End != "" {
		args = append(args, opts.End)
		sb.WriteString(fmt.Sprintf(" AND key < $%d", len(args)))
	}

	if opts.Reverse {
		sb.WriteString(" ORDER BY key DESC")
	} else {
		sb.WriteString(" ORDER BY key ASC")
	}

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}

	rows, err := b.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("kv: list prefix: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("kv: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) Purge(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `DELETE FROM kv_store WHERE partition_id = $1`, b.partitionID)
	if err != nil {
		return fmt.Errorf("kv: purge: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Snapshot(ctx context.Context) (map[string][]byte, error) {
	rows, err := b.pool.Query(ctx, `SELECT key, value FROM kv_store WHERE partition_id = $1`, b.partitionID)
	if err != nil {
		return nil, fmt.Errorf("kv: snapshot: %w", err)
	}
	defer rows.Close()

	out := map[string][]byte{}
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("kv: scan: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

// pgxQuerier is the subset of *pgxpool.Pool / pgx.Tx used by the batch
// helpers, so they can run either against the pool directly or inside a
// transaction.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func (b *PostgresBackend) Transact(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgxTx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("kv: begin tx: %w", err)
	}
	defer pgxTx.Rollback(ctx)

	txn := &postgresTx{backend: b, tx: pgxTx}
	if err := fn(ctx, txn); err != nil {
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("kv: commit tx: %w", err)
	}
	return nil
}

type postgresTx struct {
	backend *PostgresBackend
	tx      pgx.Tx
}

func (t *postgresTx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := t.tx.QueryRow(ctx,
		`SELECT value FROM kv_store WHERE partition_id = $1 AND key = $2`,
		t.backend.partitionID, key).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv: tx get: %w", err)
	}
	return value, true, nil
}

func (t *postgresTx) Put(ctx context.Context, key string, value []byte) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO kv_store (partition_id, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (partition_id, key) DO UPDATE SET value = EXCLUDED.value
	`, t.backend.partitionID, key, value)
	if err != nil {
		return fmt.Errorf("kv: tx put: %w", err)
	}
	return nil
}

func (t *postgresTx) Delete(ctx context.Context, key string) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM kv_store WHERE partition_id = $1 AND key = $2`,
		t.backend.partitionID, key)
	if err != nil {
		return fmt.Errorf("kv: tx delete: %w", err)
	}
	return nil
}
