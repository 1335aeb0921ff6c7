// Package postgres provides Postgres persistence for automation state
// and position snapshots.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rangeKeeper/internal/pool"
	"rangeKeeper/internal/storage"
)

// Store implements storage.StateStore on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pgPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pgPool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) LastClaimedAt(ctx context.Context, positionID uint64) (uint64, bool, error) {
	var ts uint64
	row := s.pool.QueryRow(ctx, `SELECT last_claimed_at FROM position_claims WHERE position_id=$1`, int64(positionID))
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return ts, true, nil
}

func (s *Store) SetLastClaimedAt(ctx context.Context, positionID uint64, ts uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO position_claims (position_id, last_claimed_at, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (position_id) DO UPDATE
		SET last_claimed_at = EXCLUDED.last_claimed_at, updated_at = now()
	`, int64(positionID), ts)
	return err
}

func (s *Store) DigestUsed(ctx context.Context, digest common.Hash) (bool, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM used_digests WHERE digest=$1)`, digest.Hex())
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) MarkDigestUsed(ctx context.Context, digest common.Hash) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO used_digests (digest, used_at)
		VALUES ($1, now())
		ON CONFLICT (digest) DO NOTHING
	`, digest.Hex())
	return err
}

func (s *Store) AppendAction(ctx context.Context, record storage.ActionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO action_log (position_id, action, digest, amount0, amount1, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		int64(record.PositionID),
		record.Action,
		record.Digest,
		record.Amount0,
		record.Amount1,
		record.ExecutedAt,
	)
	return err
}

// UpsertPositions snapshots the managed positions. Amounts are stored as
// decimal strings since they exceed int64.
func (s *Store) UpsertPositions(ctx context.Context, positions []*pool.Position) error {
	if len(positions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(`
			INSERT INTO positions (
				position_id, owner, token0, token1, fee, tick_lower, tick_upper,
				liquidity, tokens_owed0, tokens_owed1, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
			ON CONFLICT (position_id)
			DO UPDATE SET
				liquidity = EXCLUDED.liquidity,
				tokens_owed0 = EXCLUDED.tokens_owed0,
				tokens_owed1 = EXCLUDED.tokens_owed1,
				tick_lower = EXCLUDED.tick_lower,
				tick_upper = EXCLUDED.tick_upper,
				updated_at = now()
		`,
			int64(p.ID),
			p.Owner.Hex(),
			p.Pool.Token0.Hex(),
			p.Pool.Token1.Hex(),
			int64(p.Pool.Fee),
			p.Range.TickLower,
			p.Range.TickUpper,
			p.Liquidity.String(),
			p.TokensOwed0.String(),
			p.TokensOwed1.String(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range positions {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
