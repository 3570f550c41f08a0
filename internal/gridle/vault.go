// Package gridle implements the token-vault variant behind the shop and
// grid economy: voucher-gated use/pay with a fee floor, deposits whose
// reserve rebalancing is gated on forward progress of the per-asset signId
// high-water mark. A late-arriving, still-unused id below the mark executes
// normally but never re-triggers a sweep.
package gridle

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
	"github.com/gridlelabs/vaultd/internal/reserve"
	"github.com/gridlelabs/vaultd/internal/voucher"
)

type Vault struct {
	mu sync.Mutex

	name      string
	addr      common.Address
	store     *ledger.Store
	replay    *ledger.ReplaySet
	highWater *ledger.HighWater
	roles     *ledger.RoleSet
	auth      voucher.Authority
	policy    *reserve.Policy
	out       ledger.Transferor
	jnl       *journal.Journal
	log       *zap.Logger
	now       func() int64
}

func New(name string, addr, admin common.Address, auth voucher.Authority, policy *reserve.Policy,
	out ledger.Transferor, jnl *journal.Journal, log *zap.Logger) *Vault {
	return &Vault{
		name:      name,
		addr:      addr,
		store:     ledger.NewStore(),
		replay:    ledger.NewReplaySet(),
		highWater: ledger.NewHighWater(),
		roles:     ledger.NewRoleSet(admin),
		auth:      auth,
		policy:    policy,
		out:       out,
		jnl:       jnl,
		log:       log.With(zap.String("vault", name)),
		now:       func() int64 { return time.Now().Unix() },
	}
}

// SetClock overrides the deadline clock, for tests.
func (v *Vault) SetClock(now func() int64) { v.now = now }

func (v *Vault) Name() string            { return v.name }
func (v *Vault) Address() common.Address { return v.addr }

func (v *Vault) Balance(asset ledger.Asset) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.store.Balance(asset)
}

// HighWaterMark returns the highest deposit signId seen for asset, or nil.
func (v *Vault) HighWaterMark(asset ledger.Asset) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.highWater.Mark(asset)
}

// Deposit credits the vault against a signed deposit voucher. The reserve
// policy runs only when the voucher's orderId advances the asset's
// high-water mark, so replays of the band check cannot be provoked by
// out-of-order ids.
func (v *Vault) Deposit(ctx context.Context, d *voucher.Deposit) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fail("deposit", v.deposit(ctx, d))
}

func (v *Vault) deposit(ctx context.Context, d *voucher.Deposit) error {
	if d.Account == (common.Address{}) {
		return ledger.ErrZeroAddress
	}
	if d.Value == nil || d.Value.Sign() == 0 {
		return ledger.ErrZeroValue
	}
	if err := voucher.CheckDeadline(v.now(), d.Deadline); err != nil {
		return err
	}
	if err := v.auth.Verify(d.Digest(v.addr), d.Signature); err != nil {
		return err
	}
	if err := v.replay.ConsumeSignID(d.OrderID); err != nil {
		return err
	}
	advanced := v.highWater.Advance(d.Token, d.OrderID)

	if err := v.store.Credit(d.Token, d.Value); err != nil {
		return err
	}
	v.store.RecordDeposit(d.Account, d.Token, d.Value)

	v.jnl.MirrorSignID(ctx, v.name, d.OrderID)
	v.jnl.Emit(ctx, journal.Event{
		Vault:   v.name,
		Kind:    journal.Deposited,
		ID:      d.OrderID,
		Account: d.Account,
		Asset:   d.Token,
		Value:   d.Value,
	})

	if advanced {
		v.sweep(ctx, d.Token, d.SystemBalance)
	}
	return nil
}

func (v *Vault) sweep(ctx context.Context, asset ledger.Asset, systemBalance *big.Int) {
	if systemBalance == nil || v.policy == nil {
		return
	}
	surplus, treasury := v.policy.Surplus(asset, systemBalance, v.store.Balance(asset))
	if surplus == nil {
		return
	}
	if err := v.store.Debit(asset, surplus); err != nil {
		v.log.Error("reserve sweep debit failed", zap.Error(err))
		return
	}
	if err := v.out.Transfer(ctx, asset, treasury, surplus); err != nil {
		v.log.Error("reserve sweep transfer failed",
			zap.String("asset", asset.Hex()), zap.Stringer("surplus", surplus), zap.Error(err))
		return
	}
	metrics.SweepsTotal.WithLabelValues(v.name, asset.Hex()).Inc()
	v.jnl.Emit(ctx, journal.Event{
		Vault: v.name,
		Kind:  journal.AutoWithdrawal,
		To:    treasury,
		Asset: asset,
		Value: surplus,
	})
}

// Use spends a signed use/pay voucher: the account's payment (value plus
// fee) is credited to custody and the consumption is reported with its
// opaque param. paidFee is what the caller actually attached; anything
// below the voucher's fee is rejected.
func (v *Vault) Use(ctx context.Context, u *voucher.Use, paidFee *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fail("use", v.use(ctx, u, paidFee))
}

func (v *Vault) use(ctx context.Context, u *voucher.Use, paidFee *big.Int) error {
	if u.Account == (common.Address{}) {
		return ledger.ErrZeroAddress
	}
	if u.Value == nil || u.Value.Sign() == 0 {
		return ledger.ErrZeroValue
	}
	if u.Fee != nil && u.Fee.Sign() > 0 {
		if paidFee == nil || paidFee.Cmp(u.Fee) < 0 {
			return ledger.ErrNotEnoughFee
		}
	}
	if err := voucher.CheckDeadline(v.now(), u.Deadline); err != nil {
		return err
	}
	if err := v.auth.Verify(u.Digest(v.addr), u.Signature); err != nil {
		return err
	}
	if err := v.replay.ConsumeSignID(u.SignID); err != nil {
		return err
	}

	total := new(big.Int).Set(u.Value)
	if u.Fee != nil {
		total.Add(total, u.Fee)
	}
	if err := v.store.Credit(u.Token, total); err != nil {
		return err
	}

	v.jnl.MirrorSignID(ctx, v.name, u.SignID)
	v.jnl.Emit(ctx, journal.Event{
		Vault:   v.name,
		Kind:    journal.Used,
		ID:      u.SignID,
		Account: u.Account,
		Asset:   u.Token,
		Value:   u.Value,
		Fee:     u.Fee,
		Param:   u.Param,
	})
	return nil
}

// Withdraw moves custody out manually, WITHDRAW_ROLE-gated.
func (v *Vault) Withdraw(ctx context.Context, caller common.Address, asset ledger.Asset, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fail("withdraw", v.withdraw(ctx, caller, asset, to, amount))
}

func (v *Vault) withdraw(ctx context.Context, caller common.Address, asset ledger.Asset, to common.Address, amount *big.Int) error {
	if err := v.roles.Require(ledger.RoleWithdraw, caller); err != nil {
		return err
	}
	if err := ledger.CheckDestination(to, amount); err != nil {
		return err
	}
	if err := v.store.Debit(asset, amount); err != nil {
		return err
	}
	if err := v.out.Transfer(ctx, asset, to, amount); err != nil {
		return err
	}
	v.jnl.Emit(ctx, journal.Event{
		Vault: v.name,
		Kind:  journal.Withdrawn,
		To:    to,
		Asset: asset,
		Value: amount,
	})
	return nil
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

// SetReserveParams installs reserve parameters for asset (admin-gated).
func (v *Vault) SetReserveParams(caller common.Address, asset ledger.Asset, params reserve.Params) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.roles.Require(ledger.RoleAdmin, caller); err != nil {
		return err
	}
	return v.policy.Set(asset, params)
}

func (v *Vault) GrantRole(caller common.Address, role ledger.Role, addr common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.roles.Grant(caller, role, addr)
}

func (v *Vault) RevokeRole(caller common.Address, role ledger.Role, addr common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.roles.Revoke(caller, role, addr)
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
