// Package bank implements the custody vault behind the rewards bank:
// voucher-gated deposits and claims, role-gated refunds, manual withdrawals
// and limit-bounded operator pushes. With a reserve policy configured it is
// the V2 vault and sweeps surplus custody to the treasury after deposits.
package bank

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

// Vault is a single-writer state machine: mu serializes every operation, so
// a mutation is all-or-nothing relative to any other. External transfers
// happen only after replay ids are consumed and balances debited.
type Vault struct {
	mu sync.Mutex

	name   string
	addr   common.Address // identity bound into voucher digests
	store  *ledger.Store
	replay *ledger.ReplaySet
	roles  *ledger.RoleSet
	auth   voucher.Authority
	policy *reserve.Policy // nil → no auto-rebalancing (V1)
	out    ledger.Transferor
	jnl    *journal.Journal
	log    *zap.Logger
	now    func() int64
}

type Option func(*Vault)

// WithReservePolicy enables auto-rebalancing (the V2 configuration).
func WithReservePolicy(p *reserve.Policy) Option {
	return func(v *Vault) { v.policy = p }
}

// WithClock overrides the deadline clock, for tests.
func WithClock(now func() int64) Option {
	return func(v *Vault) { v.now = now }
}

func New(name string, addr, admin common.Address, auth voucher.Authority,
	out ledger.Transferor, jnl *journal.Journal, log *zap.Logger, opts ...Option) *Vault {
	v := &Vault{
		name:   name,
		addr:   addr,
		store:  ledger.NewStore(),
		replay: ledger.NewReplaySet(),
		roles:  ledger.NewRoleSet(admin),
		auth:   auth,
		out:    out,
		jnl:    jnl,
		log:    log.With(zap.String("vault", name)),
		now:    func() int64 { return time.Now().Unix() },
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

func (v *Vault) Name() string            { return v.name }
func (v *Vault) Address() common.Address { return v.addr }

// Balance returns the vault's bookkeeping for asset.
func (v *Vault) Balance(asset ledger.Asset) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.store.Balance(asset)
}

// DepositOf returns the recorded unrefunded deposit for (account, asset).
func (v *Vault) DepositOf(account common.Address, asset ledger.Asset) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.store.DepositOf(account, asset)
}

// ── Deposit ────────────────────────────────────────────────────────────────

// Deposit credits the vault against a signed deposit voucher, snapshots the
// depositor's record, and — when a reserve policy is configured — sweeps any
// surplus above the band to the treasury.
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
	if err := v.replay.ConsumeOrder(d.OrderID); err != nil {
		return err
	}
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

	if v.policy != nil {
		v.sweep(ctx, d.Token, d.SystemBalance)
	}
	return nil
}

// sweep runs the reserve policy for asset. Balance is already credited; the
// surplus debit happens before the external transfer.
func (v *Vault) sweep(ctx context.Context, asset ledger.Asset, systemBalance *big.Int) {
	if systemBalance == nil {
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
		// Funds stay debited from bookkeeping; custody reconciliation picks
		// this up. The deposit itself already succeeded.
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

// ── Claim ──────────────────────────────────────────────────────────────────

// Claim pays out against a signed claim voucher. The recipient's deposit
// record for the asset is cleared: claims settle the snapshot, they do not
// decrement it.
func (v *Vault) Claim(ctx context.Context, c *voucher.Claim) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fail("claim", v.claim(ctx, c))
}

func (v *Vault) claim(ctx context.Context, c *voucher.Claim) error {
	if err := ledger.CheckDestination(c.Recipient, c.Value); err != nil {
		return err
	}
	if err := v.auth.Verify(c.Digest(v.addr), c.Signature); err != nil {
		return err
	}
	if err := v.replay.ConsumeOrder(c.OrderID); err != nil {
		return err
	}
	if err := v.store.Debit(c.Token, c.Value); err != nil {
		return err
	}
	v.store.ClearDeposit(c.Recipient, c.Token)
	v.jnl.MirrorSignID(ctx, v.name, c.OrderID)

	if err := v.out.Transfer(ctx, c.Token, c.Recipient, c.Value); err != nil {
		// The order id stays consumed; the caller needs a fresh voucher.
		return err
	}
	v.jnl.Emit(ctx, journal.Event{
		Vault: v.name,
		Kind:  journal.Claimed,
		ID:    c.OrderID,
		To:    c.Recipient,
		Asset: c.Token,
		Value: c.Value,
	})
	return nil
}

// ── Refund / Withdraw / SendToken ──────────────────────────────────────────

// Refund returns part or all of a recorded deposit to its depositor. Caller
// must hold REFUND_ROLE; the amount is bounded by the deposit record, which
// is zeroed afterwards regardless of the refunded fraction.
func (v *Vault) Refund(ctx context.Context, caller, account common.Address, asset ledger.Asset, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fail("refund", v.refund(ctx, caller, account, asset, amount))
}

func (v *Vault) refund(ctx context.Context, caller, account common.Address, asset ledger.Asset, amount *big.Int) error {
	if err := v.roles.Require(ledger.RoleRefund, caller); err != nil {
		return err
	}
	if err := ledger.CheckDestination(account, amount); err != nil {
		return err
	}
	if err := v.store.CheckRefund(account, asset, amount); err != nil {
		return err
	}
	if err := v.store.Debit(asset, amount); err != nil {
		return err
	}
	v.store.ClearDeposit(account, asset)

	if err := v.out.Transfer(ctx, asset, account, amount); err != nil {
		return err
	}
	v.jnl.Emit(ctx, journal.Event{
		Vault:   v.name,
		Kind:    journal.Refunded,
		Account: account,
		To:      account,
		Asset:   asset,
		Value:   amount,
	})
	return nil
}

// Withdraw is the manual sweep: WITHDRAW_ROLE moves custody to an arbitrary
// destination, outside any reserve band.
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

// SendToken is the operator push path, bounded by the per-asset limit. The
// default limit of zero disables it until an admin configures one.
func (v *Vault) SendToken(ctx context.Context, caller common.Address, asset ledger.Asset, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fail("send", v.sendToken(ctx, caller, asset, to, amount))
}

func (v *Vault) sendToken(ctx context.Context, caller common.Address, asset ledger.Asset, to common.Address, amount *big.Int) error {
	if err := v.roles.Require(ledger.RoleOperator, caller); err != nil {
		return err
	}
	if err := ledger.CheckDestination(to, amount); err != nil {
		return err
	}
	if err := v.store.CheckSendLimit(asset, amount); err != nil {
		return err
	}
	if err := v.store.Debit(asset, amount); err != nil {
		return err
	}
	if err := v.out.Transfer(ctx, asset, to, amount); err != nil {
		return err
	}
	v.jnl.Emit(ctx, journal.Event{
		Vault:   v.name,
		Kind:    journal.Withdrawn,
		Account: caller,
		To:      to,
		Asset:   asset,
		Value:   amount,
	})
	return nil
}

// ── Administration ─────────────────────────────────────────────────────────

// SetSigner replaces the voucher authority key. Vouchers signed by the old
// key become permanently unverifiable.
func (v *Vault) SetSigner(caller, signer common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.roles.Require(ledger.RoleAdmin, caller); err != nil {
		return err
	}
	return v.auth.SetSigner(signer)
}

// SetSendLimit configures the operator push ceiling for asset.
func (v *Vault) SetSendLimit(caller common.Address, asset ledger.Asset, limit *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.roles.Require(ledger.RoleAdmin, caller); err != nil {
		return err
	}
	v.store.SetSendLimit(asset, limit)
	return nil
}

// SetReserveParams installs reserve parameters for asset. Rejected when the
// vault runs without a policy (V1).
func (v *Vault) SetReserveParams(caller common.Address, asset ledger.Asset, params reserve.Params) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.roles.Require(ledger.RoleAdmin, caller); err != nil {
		return err
	}
	if v.policy == nil {
		return errors.New("vault has no reserve policy")
	}
	return v.policy.Set(asset, params)
}

// GrantRole and RevokeRole delegate to the role set (admin-gated there).
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

// HasRole reports role membership.
func (v *Vault) HasRole(role ledger.Role, addr common.Address) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.roles.Has(role, addr)
}

// fail records metrics for op and passes err through.
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
