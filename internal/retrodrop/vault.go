// Package retrodrop implements the vesting drop: a claim voucher carries
// the full principal, the claimer chooses a lock duration, and the payout
// is the principal weighted by the square-root vesting curve. A zero lock
// pays out immediately; any longer lock forwards the payout to the time-lock
// escrow. Either way the voucher's signId is consumed exactly once.
package retrodrop

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/gridlelabs/vaultd/internal/journal"
	"github.com/gridlelabs/vaultd/internal/ledger"
	"github.com/gridlelabs/vaultd/internal/metrics"
	"github.com/gridlelabs/vaultd/internal/vesting"
	"github.com/gridlelabs/vaultd/internal/voucher"
)

// DefaultMaxWeeks is the full-vesting horizon: four years of weekly locks.
const DefaultMaxWeeks = 208

type Vault struct {
	mu sync.Mutex

	name     string
	addr     common.Address
	asset    ledger.Asset
	maxWeeks uint64
	store    *ledger.Store
	replay   *ledger.ReplaySet
	roles    *ledger.RoleSet
	auth     voucher.Authority
	escrow   Escrow
	out      ledger.Transferor
	jnl      *journal.Journal
	log      *zap.Logger
	now      func() int64
}

func New(name string, addr, admin common.Address, asset ledger.Asset, maxWeeks uint64,
	auth voucher.Authority, escrow Escrow, out ledger.Transferor,
	jnl *journal.Journal, log *zap.Logger) *Vault {
	if maxWeeks == 0 {
		maxWeeks = DefaultMaxWeeks
	}
	return &Vault{
		name:     name,
		addr:     addr,
		asset:    asset,
		maxWeeks: maxWeeks,
		store:    ledger.NewStore(),
		replay:   ledger.NewReplaySet(),
		roles:    ledger.NewRoleSet(admin),
		auth:     auth,
		escrow:   escrow,
		out:      out,
		jnl:      jnl,
		log:      log.With(zap.String("vault", name)),
		now:      func() int64 { return time.Now().Unix() },
	}
}

// SetClock overrides the deadline clock, for tests.
func (v *Vault) SetClock(now func() int64) { v.now = now }

func (v *Vault) Name() string            { return v.name }
func (v *Vault) Address() common.Address { return v.addr }
func (v *Vault) MaxWeeks() uint64        { return v.maxWeeks }

func (v *Vault) Balance() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.store.Balance(v.asset)
}

// Fund credits drop liquidity into the vault.
func (v *Vault) Fund(amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.store.Credit(v.asset, amount)
}

// ClaimDrop settles a drop voucher. u.Value is the principal; lockWeeks is
// the claimer's requested lock, rejected (not clamped) above the horizon.
func (v *Vault) ClaimDrop(ctx context.Context, u *voucher.Use, lockWeeks uint64) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	payout, err := v.claimDrop(ctx, u, lockWeeks)
	return payout, v.fail("claim", err)
}

func (v *Vault) claimDrop(ctx context.Context, u *voucher.Use, lockWeeks uint64) (*big.Int, error) {
	if u.Account == (common.Address{}) {
		return nil, ledger.ErrZeroAddress
	}
	if err := voucher.CheckDeadline(v.now(), u.Deadline); err != nil {
		return nil, err
	}
	if err := v.auth.Verify(u.Digest(v.addr), u.Signature); err != nil {
		return nil, err
	}

	// Curve math happens before the id is consumed so an invalid lock does
	// not burn the voucher.
	payout, err := vesting.Payout(u.Value, lockWeeks, v.maxWeeks)
	if err != nil {
		return nil, err
	}

	if err := v.replay.ConsumeSignID(u.SignID); err != nil {
		return nil, err
	}
	if err := v.store.Debit(v.asset, payout); err != nil {
		return nil, err
	}
	v.jnl.MirrorSignID(ctx, v.name, u.SignID)

	if lockWeeks == 0 {
		if err := v.out.Transfer(ctx, v.asset, u.Account, payout); err != nil {
			return nil, err
		}
	} else {
		if err := v.escrow.Lock(ctx, u.Account, payout, lockWeeks); err != nil {
			return nil, err
		}
	}

	v.jnl.Emit(ctx, journal.Event{
		Vault:   v.name,
		Kind:    journal.DropClaimed,
		ID:      u.SignID,
		Account: u.Account,
		Asset:   v.asset,
		Value:   payout,
		Param:   new(big.Int).SetUint64(lockWeeks),
	})
	return payout, nil
}

// SetSigner replaces the voucher authority key (admin-gated).
func (v *Vault) SetSigner(caller, signer common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.roles.Require(ledger.RoleAdmin, caller); err != nil {
		return err
	}
	return v.auth.SetSigner(signer)
}

// Withdraw recovers unclaimed drop liquidity, WITHDRAW_ROLE-gated.
func (v *Vault) Withdraw(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	err := func() error {
		if err := v.roles.Require(ledger.RoleWithdraw, caller); err != nil {
			return err
		}
		if err := ledger.CheckDestination(to, amount); err != nil {
			return err
		}
		if err := v.store.Debit(v.asset, amount); err != nil {
			return err
		}
		if err := v.out.Transfer(ctx, v.asset, to, amount); err != nil {
			return err
		}
		v.jnl.Emit(ctx, journal.Event{
			Vault: v.name,
			Kind:  journal.Withdrawn,
			To:    to,
			Asset: v.asset,
			Value: amount,
		})
		return nil
	}()
	return v.fail("withdraw", err)
}

func (v *Vault) GrantRole(caller common.Address, role ledger.Role, addr common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.roles.Grant(caller, role, addr)
}

func (v *Vault) fail(op string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
		var oe *ledger.OpError
		if errors.As(err, &oe) {
			metrics.RejectionsTotal.WithLabelValues(v.name, string(oe.Code)).Inc()
		}
	}
	metrics.OperationsTotal.WithLabelValues(v.name, op, outcome).Inc()
	return err
}
