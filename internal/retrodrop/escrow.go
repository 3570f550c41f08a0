package retrodrop

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gridlelabs/vaultd/internal/ledger"
)

// Escrow receives a drop payout locked on the claimer's behalf.
type Escrow interface {
	Lock(ctx context.Context, account common.Address, amount *big.Int, lockWeeks uint64) error
}

const secondsPerWeek = 7 * 24 * 3600

// Position is one time-locked drop payout.
type Position struct {
	Account   common.Address `json:"account"`
	Amount    *big.Int       `json:"amount"`
	UnlocksAt int64          `json:"unlocks_at"`
}

// TimeLock is the in-process escrow for a single drop asset: positions
// accrue per account and are released through the transferor once their
// unlock time passes.
type TimeLock struct {
	mu        sync.Mutex
	asset     ledger.Asset
	positions map[common.Address][]Position
	out       ledger.Transferor
	now       func() int64
}

func NewTimeLock(asset ledger.Asset, out ledger.Transferor) *TimeLock {
	return &TimeLock{
		asset:     asset,
		positions: make(map[common.Address][]Position),
		out:       out,
		now:       func() int64 { return time.Now().Unix() },
	}
}

func (t *TimeLock) Lock(_ context.Context, account common.Address, amount *big.Int, lockWeeks uint64) error {
	if err := ledger.CheckDestination(account, amount); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[account] = append(t.positions[account], Position{
		Account:   account,
		Amount:    new(big.Int).Set(amount),
		UnlocksAt: t.now() + int64(lockWeeks)*secondsPerWeek,
	})
	return nil
}

// Positions returns the account's open positions.
func (t *TimeLock) Positions(account common.Address) []Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Position, len(t.positions[account]))
	copy(out, t.positions[account])
	return out
}

// Release pays out every matured position for account and returns the total
// released. Positions are removed before the external transfer so a
// reentrant release sees them gone.
func (t *TimeLock) Release(ctx context.Context, account common.Address) (*big.Int, error) {
	t.mu.Lock()
	now := t.now()
	var kept []Position
	total := new(big.Int)
	for _, p := range t.positions[account] {
		if p.UnlocksAt > now {
			kept = append(kept, p)
			continue
		}
		total.Add(total, p.Amount)
	}
	t.positions[account] = kept
	t.mu.Unlock()

	if total.Sign() == 0 {
		return total, nil
	}
	if err := t.out.Transfer(ctx, t.asset, account, total); err != nil {
		return nil, err
	}
	return total, nil
}
