// Package inventory implements the item vault: voucher-gated claiming and
// using of fungible item units keyed by numeric id, with a service fee
// attached in native coin. Item bookkeeping is per (account, id); the fee
// side goes through the shared custody ledger.
package inventory

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
	"github.com/gridlelabs/vaultd/internal/voucher"
)

type itemKey struct {
	account common.Address
	id      string
}

type Vault struct {
	mu sync.Mutex

	name   string
	addr   common.Address
	store  *ledger.Store // native-coin fee custody
	items  map[itemKey]*big.Int
	replay *ledger.ReplaySet
	roles  *ledger.RoleSet
	auth   voucher.Authority
	jnl    *journal.Journal
	log    *zap.Logger
	now    func() int64
}

func New(name string, addr, admin common.Address, auth voucher.Authority,
	jnl *journal.Journal, log *zap.Logger) *Vault {
	return &Vault{
		name:   name,
		addr:   addr,
		store:  ledger.NewStore(),
		items:  make(map[itemKey]*big.Int),
		replay: ledger.NewReplaySet(),
		roles:  ledger.NewRoleSet(admin),
		auth:   auth,
		jnl:    jnl,
		log:    log.With(zap.String("vault", name)),
		now:    func() int64 { return time.Now().Unix() },
	}
}

// SetClock overrides the deadline clock, for tests.
func (v *Vault) SetClock(now func() int64) { v.now = now }

func (v *Vault) Name() string            { return v.name }
func (v *Vault) Address() common.Address { return v.addr }

// ItemBalance returns how many units of id the account holds.
func (v *Vault) ItemBalance(account common.Address, id *big.Int) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if b, ok := v.items[itemKey{account, id.String()}]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// FeeBalance returns the native-coin fees held in custody.
func (v *Vault) FeeBalance() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.store.Balance(ledger.NativeAsset)
}

// Claim mints item units to the voucher's account. paid is the native-coin
// payment attached by the caller; below the voucher fee it is rejected.
func (v *Vault) Claim(ctx context.Context, it *voucher.Item, paid *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fail("claim", v.settle(ctx, it, paid, voucher.TagItemClaim))
}

// Use burns item units from the voucher's account, same fee discipline.
func (v *Vault) Use(ctx context.Context, it *voucher.Item, paid *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fail("use", v.settle(ctx, it, paid, voucher.TagItemUse))
}

func (v *Vault) settle(ctx context.Context, it *voucher.Item, paid *big.Int, tag string) error {
	if it.Account == (common.Address{}) {
		return ledger.ErrZeroAddress
	}
	if it.Amount == nil || it.Amount.Sign() == 0 {
		return ledger.ErrZeroValue
	}
	if it.Fee != nil && it.Fee.Sign() > 0 {
		if paid == nil || paid.Cmp(it.Fee) < 0 {
			return ledger.ErrNotEnoughFee
		}
	}
	if err := voucher.CheckDeadline(v.now(), it.Deadline); err != nil {
		return err
	}
	if err := v.auth.Verify(it.Digest(v.addr, tag), it.Signature); err != nil {
		return err
	}
	if err := v.replay.ConsumeSignID(it.SignID); err != nil {
		return err
	}

	key := itemKey{it.Account, it.ID.String()}
	kind := journal.ItemClaimed
	if tag == voucher.TagItemUse {
		kind = journal.ItemUsed
		held, ok := v.items[key]
		if !ok || held.Cmp(it.Amount) < 0 {
			return ledger.ErrInsufficientBalance
		}
		held.Sub(held, it.Amount)
	} else {
		if v.items[key] == nil {
			v.items[key] = new(big.Int)
		}
		v.items[key].Add(v.items[key], it.Amount)
	}

	if paid != nil && paid.Sign() > 0 {
		if err := v.store.Credit(ledger.NativeAsset, paid); err != nil {
			return err
		}
	}

	v.jnl.MirrorSignID(ctx, v.name, it.SignID)
	v.jnl.Emit(ctx, journal.Event{
		Vault:   v.name,
		Kind:    kind,
		ID:      it.SignID,
		Account: it.Account,
		Asset:   ledger.NativeAsset,
		Value:   it.Amount,
		Fee:     it.Fee,
		Param:   it.ID,
	})
	return nil
}

// ClaimBatch settles several item vouchers for one caller. Slice lengths
// must agree; each voucher still consumes its own signId, so a replayed id
// fails its element without touching the ones already settled.
func (v *Vault) ClaimBatch(ctx context.Context, its []*voucher.Item, paid []*big.Int) error {
	if len(its) != len(paid) {
		return ledger.ErrArraysLengthMismatch
	}
	for i := range its {
		if err := v.Claim(ctx, its[i], paid[i]); err != nil {
			return err
		}
	}
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
