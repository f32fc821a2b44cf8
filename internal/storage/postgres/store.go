package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clamm/internal/model"
)

// Schema creates the snapshot tables. Amounts are NUMERIC(78,0) so any uint256 fits.
const Schema = `
CREATE TABLE IF NOT EXISTS clamm_pools (
	snapshot TEXT NOT NULL,
	pool_address TEXT NOT NULL,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	fee INTEGER NOT NULL,
	tick_spacing INTEGER NOT NULL,
	initialized BOOLEAN NOT NULL,
	sqrt_price_x96 NUMERIC(78,0) NOT NULL,
	tick INTEGER NOT NULL,
	liquidity NUMERIC(78,0) NOT NULL,
	fee_growth_global0_x128 NUMERIC(78,0) NOT NULL,
	fee_growth_global1_x128 NUMERIC(78,0) NOT NULL,
	price NUMERIC,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (snapshot, pool_address)
);
CREATE TABLE IF NOT EXISTS clamm_ticks (
	snapshot TEXT NOT NULL,
	pool_address TEXT NOT NULL,
	tick INTEGER NOT NULL,
	liquidity_gross NUMERIC(78,0) NOT NULL,
	liquidity_net NUMERIC(78,0) NOT NULL,
	fee_growth_outside0_x128 NUMERIC(78,0) NOT NULL,
	fee_growth_outside1_x128 NUMERIC(78,0) NOT NULL,
	PRIMARY KEY (snapshot, pool_address, tick)
);
CREATE TABLE IF NOT EXISTS clamm_positions (
	snapshot TEXT NOT NULL,
	token_id BIGINT NOT NULL,
	owner TEXT NOT NULL,
	pool_address TEXT NOT NULL,
	tick_lower INTEGER NOT NULL,
	tick_upper INTEGER NOT NULL,
	liquidity NUMERIC(78,0) NOT NULL,
	tokens_owed0 NUMERIC(78,0) NOT NULL,
	tokens_owed1 NUMERIC(78,0) NOT NULL,
	PRIMARY KEY (snapshot, token_id)
);
CREATE TABLE IF NOT EXISTS clamm_balances (
	snapshot TEXT NOT NULL,
	asset TEXT NOT NULL,
	account TEXT NOT NULL,
	amount NUMERIC(78,0) NOT NULL,
	PRIMARY KEY (snapshot, asset, account)
);
CREATE TABLE IF NOT EXISTS clamm_replay_state (
	name TEXT PRIMARY KEY,
	last_processed_seq BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for engine snapshots.
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

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// tables cleared before a snapshot is rewritten.
var snapshotTables = []string{"clamm_ticks", "clamm_positions", "clamm_balances", "clamm_pools"}

// positionRow joins a managed position with the pool position that backs it.
type positionRow struct {
	model.ManagedPosition
	PoolAddress string
	Liquidity   string
	Owed0       string
	Owed1       string
}

// managedRows resolves each managed position against the pool records. The pool
// position is owned by managerAddress with the token id as salt.
func managedRows(snap model.Snapshot) []positionRow {
	type slot struct {
		token0, token1 string
		fee            uint32
		lower, upper   int32
		salt           uint64
	}
	byKey := make(map[slot]model.PoolPosition)
	addrByPair := make(map[slot]string)
	for _, p := range snap.Pools {
		addrByPair[slot{token0: p.Token0, token1: p.Token1, fee: p.Fee}] = p.Address
		for _, pp := range p.Positions {
			if pp.Owner != snap.ManagerAddress {
				continue
			}
			byKey[slot{token0: p.Token0, token1: p.Token1, fee: p.Fee, lower: pp.TickLower, upper: pp.TickUpper, salt: pp.Salt}] = pp
		}
	}

	rows := make([]positionRow, 0, len(snap.Positions))
	for _, mp := range snap.Positions {
		row := positionRow{
			ManagedPosition: mp,
			PoolAddress:     addrByPair[slot{token0: mp.Token0, token1: mp.Token1, fee: mp.Fee}],
			Liquidity:       "0",
			Owed0:           "0",
			Owed1:           "0",
		}
		if pp, ok := byKey[slot{token0: mp.Token0, token1: mp.Token1, fee: mp.Fee, lower: mp.TickLower, upper: mp.TickUpper, salt: mp.TokenID}]; ok {
			row.Liquidity, row.Owed0, row.Owed1 = pp.Liquidity, pp.TokensOwed0, pp.TokensOwed1
		}
		rows = append(rows, row)
	}
	return rows
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// queueSnapshot queues the statements that rewrite one snapshot and returns how many
// were queued.
func queueSnapshot(batch *pgx.Batch, name string, snap model.Snapshot) int {
	for _, table := range snapshotTables {
		batch.Queue(`DELETE FROM `+table+` WHERE snapshot = $1`, name)
	}
	for _, p := range snap.Pools {
		batch.Queue(`
			INSERT INTO clamm_pools (
				snapshot, pool_address, token0, token1, fee, tick_spacing, initialized, sqrt_price_x96,
				tick, liquidity, fee_growth_global0_x128, fee_growth_global1_x128, price, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
		`,
			name,
			p.Address,
			p.Token0,
			p.Token1,
			int32(p.Fee),
			p.TickSpacing,
			p.Initialized,
			p.SqrtPriceX96,
			p.Tick,
			p.Liquidity,
			p.FeeGrowthGlobal0X128,
			p.FeeGrowthGlobal1X128,
			nullable(p.Price),
		)
		for _, t := range p.Ticks {
			batch.Queue(`
				INSERT INTO clamm_ticks (
					snapshot, pool_address, tick, liquidity_gross, liquidity_net,
					fee_growth_outside0_x128, fee_growth_outside1_x128
				) VALUES ($1,$2,$3,$4,$5,$6,$7)
			`,
				name,
				p.Address,
				t.Index,
				t.LiquidityGross,
				t.LiquidityNet,
				t.FeeGrowthOutside0X128,
				t.FeeGrowthOutside1X128,
			)
		}
	}
	for _, row := range managedRows(snap) {
		batch.Queue(`
			INSERT INTO clamm_positions (
				snapshot, token_id, owner, pool_address, tick_lower, tick_upper, liquidity, tokens_owed0, tokens_owed1
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			name,
			int64(row.TokenID),
			row.Owner,
			row.PoolAddress,
			row.TickLower,
			row.TickUpper,
			row.Liquidity,
			row.Owed0,
			row.Owed1,
		)
	}
	for _, b := range snap.Balances {
		batch.Queue(`INSERT INTO clamm_balances (snapshot, asset, account, amount) VALUES ($1,$2,$3,$4)`,
			name, b.Asset, b.Account, b.Amount)
	}
	return batch.Len()
}

// UpsertSnapshot replaces the named snapshot inside one transaction.
func (s *Store) UpsertSnapshot(ctx context.Context, name string, snap model.Snapshot) error {
	if name == "" {
		return fmt.Errorf("snapshot name required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	n := queueSnapshot(batch, name, snap)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("snapshot statement %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LoadState returns last_processed_seq for a replay name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var seq int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_seq FROM clamm_replay_state WHERE name=$1`, name)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(seq), true, nil
}

// SaveState upserts last_processed_seq for a replay name.
func (s *Store) SaveState(ctx context.Context, name string, seq uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clamm_replay_state (name, last_processed_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_seq = EXCLUDED.last_processed_seq, updated_at = now()
	`, name, int64(seq))
	return err
}
