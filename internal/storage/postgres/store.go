package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zakhard90/chainlink-price-feed/internal/model"
)

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS trader_events (
	sequence     BIGINT PRIMARY KEY,
	name         TEXT NOT NULL,
	address      TEXT NOT NULL,
	topics       TEXT[] NOT NULL,
	data         TEXT NOT NULL,
	fields       JSONB NOT NULL,
	emitted_at   TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS chainlink_rounds (
	chain_id        BIGINT NOT NULL,
	feed            TEXT NOT NULL,
	round_id        NUMERIC NOT NULL,
	answer          NUMERIC NOT NULL,
	updated_at      BIGINT NOT NULL,
	block_number    BIGINT NOT NULL,
	block_timestamp BIGINT NOT NULL,
	tx_hash         TEXT NOT NULL,
	log_index       BIGINT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_row_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, feed, round_id)
);
CREATE TABLE IF NOT EXISTS trader_state (
	name         TEXT PRIMARY KEY,
	sequence     BIGINT NOT NULL,
	snapshot     JSONB NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for the event journal, snapshots and
// indexed aggregator rounds.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PutEventBatch inserts journal records. Replaying a sequence number is a no-op.
func (s *Store) PutEventBatch(ctx context.Context, records []model.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		fields, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("marshal fields: %w", err)
		}
		emittedAt, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", rec.Timestamp, err)
		}
		batch.Queue(`
			INSERT INTO trader_events (
				sequence, name, address, topics, data, fields, emitted_at, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (sequence) DO NOTHING
		`,
			int64(rec.Sequence),
			rec.Name,
			rec.Address,
			rec.Topics,
			rec.Data,
			fields,
			emittedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PutRoundBatch upserts aggregator rounds keyed by (chain, feed, round).
func (s *Store) PutRoundBatch(ctx context.Context, rounds []model.RoundUpdate) error {
	if len(rounds) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rounds {
		batch.Queue(`
			INSERT INTO chainlink_rounds (
				chain_id, feed, round_id, answer, updated_at, block_number, block_timestamp,
				tx_hash, log_index, created_at, updated_row_at
			) VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7, $8, $9, now(), now())
			ON CONFLICT (chain_id, feed, round_id)
			DO UPDATE SET
				answer = EXCLUDED.answer,
				updated_at = EXCLUDED.updated_at,
				block_number = EXCLUDED.block_number,
				block_timestamp = EXCLUDED.block_timestamp,
				tx_hash = EXCLUDED.tx_hash,
				log_index = EXCLUDED.log_index,
				updated_row_at = now()
		`,
			int64(r.ChainID),
			r.Feed,
			r.RoundID,
			r.Answer,
			int64(r.UpdatedAt),
			int64(r.BlockNumber),
			int64(r.BlockTimestamp),
			r.TxHash,
			int64(r.LogIndex),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range rounds {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadSnapshot returns the snapshot stored under name.
func (s *Store) LoadSnapshot(ctx context.Context, name string) (model.Snapshot, bool, error) {
	if name == "" {
		return model.Snapshot{}, false, fmt.Errorf("state name required")
	}
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT snapshot FROM trader_state WHERE name=$1`, name)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.Snapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

// SaveSnapshot upserts the snapshot stored under name.
func (s *Store) SaveSnapshot(ctx context.Context, name string, snap model.Snapshot) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO trader_state (name, sequence, snapshot, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE
		SET sequence = EXCLUDED.sequence, snapshot = EXCLUDED.snapshot, updated_at = now()
	`, name, int64(snap.Sequence), raw)
	return err
}
