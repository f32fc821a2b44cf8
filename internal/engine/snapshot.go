package engine

import (
	"fmt"

	"go.uber.org/zap"

	"clamm/internal/ledger"
	"clamm/internal/manager"
	"clamm/internal/pool"
)

// PoolSnapshot is the full persisted state of one pool.
type PoolSnapshot struct {
	Key       pool.Key
	State     pool.State
	Ticks     map[int32]pool.TickInfo
	Positions map[pool.PositionKey]pool.Position
}

// Snapshot is everything needed to rebuild an engine.
type Snapshot struct {
	Options     Options
	Balances    []ledger.Balance
	Pools       []PoolSnapshot
	Positions   []manager.Entry
	NextTokenID uint64
}

// SnapshotPool captures one pool.
func SnapshotPool(p *pool.Pool) PoolSnapshot {
	ticks := make(map[int32]pool.TickInfo)
	for _, tick := range p.InitializedTicks() {
		if info, ok := p.TickInfo(tick); ok {
			ticks[tick] = info
		}
	}
	return PoolSnapshot{
		Key:       p.Key(),
		State:     p.State(),
		Ticks:     ticks,
		Positions: p.Positions(),
	}
}

// Snapshot captures the committed state. It must not be called from inside an
// operation.
func (e *Engine) Snapshot() Snapshot {
	pools := e.registry.Pools()
	out := Snapshot{
		Options:     e.opts,
		Balances:    e.ledger.Balances(),
		Pools:       make([]PoolSnapshot, 0, len(pools)),
		Positions:   e.manager.Entries(),
		NextTokenID: e.manager.NextID(),
	}
	for _, p := range pools {
		out.Pools = append(out.Pools, SnapshotPool(p))
	}
	return out
}

// Restore builds a fresh engine holding the snapshot's state.
func Restore(s Snapshot, logger *zap.Logger) (*Engine, error) {
	e := New(s.Options, logger)
	e.ledger.Load(s.Balances)
	for _, ps := range s.Pools {
		p, err := pool.Restore(ps.Key, ps.State, ps.Ticks, ps.Positions, e.registry.Options()...)
		if err != nil {
			return nil, fmt.Errorf("restore pool %s: %w", ps.Key, err)
		}
		if err := e.registry.Adopt(p); err != nil {
			return nil, fmt.Errorf("adopt pool %s: %w", ps.Key, err)
		}
	}
	next := s.NextTokenID
	if next == 0 {
		next = 1
	}
	if err := e.manager.Load(s.Positions, next); err != nil {
		return nil, err
	}
	e.journal.Commit()
	e.logger.Info("engine restored",
		zap.Int("pools", len(s.Pools)),
		zap.Int("positions", len(s.Positions)),
		zap.Int("balances", len(s.Balances)),
	)
	return e, nil
}
