package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Asset identifies a balance bucket. The zero address is the native-coin
// sentinel; any other value is a fungible token contract address.
type Asset = common.Address

// NativeAsset is the reserved id for the native currency.
var NativeAsset = Asset{}

type depositKey struct {
	account common.Address
	asset   Asset
}

// Store is the vault's owned ledger state: custody balances, deposit
// snapshots and per-asset operator send limits. One Store per vault, passed
// by pointer into the operation handlers; the owning vault serializes
// mutations, so Store itself carries no lock.
type Store struct {
	balances   map[Asset]*big.Int
	deposits   map[depositKey]*big.Int
	sendLimits map[Asset]*big.Int
}

func NewStore() *Store {
	return &Store{
		balances:   make(map[Asset]*big.Int),
		deposits:   make(map[depositKey]*big.Int),
		sendLimits: make(map[Asset]*big.Int),
	}
}

// Balance returns the vault's own bookkeeping for asset. Never nil.
func (s *Store) Balance(asset Asset) *big.Int {
	if b, ok := s.balances[asset]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Credit adds amount to the asset balance.
func (s *Store) Credit(asset Asset, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return reject(CodeZeroValue, "credit of zero for asset %s", asset.Hex())
	}
	b, ok := s.balances[asset]
	if !ok {
		b = new(big.Int)
		s.balances[asset] = b
	}
	b.Add(b, amount)
	return nil
}

// Debit subtracts amount from the asset balance. The balance check always
// precedes the subtraction; a vault balance never goes negative.
func (s *Store) Debit(asset Asset, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return reject(CodeZeroValue, "debit of zero for asset %s", asset.Hex())
	}
	b, ok := s.balances[asset]
	if !ok || b.Cmp(amount) < 0 {
		return reject(CodeInsufficientBalance, "asset %s: have %s, need %s",
			asset.Hex(), s.Balance(asset), amount)
	}
	b.Sub(b, amount)
	return nil
}

// CheckDestination applies the shared transfer-out guards.
func CheckDestination(to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return reject(CodeZeroAddress, "transfer to the zero address")
	}
	if amount == nil || amount.Sign() == 0 {
		return reject(CodeZeroValue, "transfer of zero")
	}
	return nil
}

// ── Deposit records ────────────────────────────────────────────────────────

// RecordDeposit snapshots the account's latest deposit for asset. The record
// is a point-in-time snapshot, not an accumulator: a new deposit overwrites
// any previous unrefunded record.
func (s *Store) RecordDeposit(account common.Address, asset Asset, amount *big.Int) {
	s.deposits[depositKey{account, asset}] = new(big.Int).Set(amount)
}

// DepositOf returns the recorded unrefunded deposit for (account, asset).
func (s *Store) DepositOf(account common.Address, asset Asset) *big.Int {
	if d, ok := s.deposits[depositKey{account, asset}]; ok {
		return new(big.Int).Set(d)
	}
	return new(big.Int)
}

// ClearDeposit zeroes the record. Called on refund and on any claim that
// touches the (account, asset) balance.
func (s *Store) ClearDeposit(account common.Address, asset Asset) {
	delete(s.deposits, depositKey{account, asset})
}

// CheckRefund rejects a refund exceeding the recorded deposit.
func (s *Store) CheckRefund(account common.Address, asset Asset, amount *big.Int) error {
	rec := s.DepositOf(account, asset)
	if amount == nil || amount.Sign() == 0 {
		return reject(CodeZeroValue, "refund of zero")
	}
	if amount.Cmp(rec) > 0 {
		return reject(CodeInvalidRefundAmount, "refund %s exceeds recorded deposit %s", amount, rec)
	}
	return nil
}

// ── Operator send limits ───────────────────────────────────────────────────

// SetSendLimit configures the per-asset ceiling for operator push transfers.
// A limit of zero (the default) disables the operation for that asset.
func (s *Store) SetSendLimit(asset Asset, limit *big.Int) {
	if limit == nil || limit.Sign() == 0 {
		delete(s.sendLimits, asset)
		return
	}
	s.sendLimits[asset] = new(big.Int).Set(limit)
}

// SendLimit returns the configured ceiling for asset (zero when disabled).
func (s *Store) SendLimit(asset Asset) *big.Int {
	if l, ok := s.sendLimits[asset]; ok {
		return new(big.Int).Set(l)
	}
	return new(big.Int)
}

// CheckSendLimit rejects operator pushes above the configured ceiling. The
// ceiling is independent of the reserve policy band; it exists to cap the
// blast radius of a compromised operator key.
func (s *Store) CheckSendLimit(asset Asset, amount *big.Int) error {
	limit, ok := s.sendLimits[asset]
	if !ok || amount.Cmp(limit) > 0 {
		return reject(CodeExceedsTokenLimit, "asset %s: amount %s over limit %s",
			asset.Hex(), amount, s.SendLimit(asset))
	}
	return nil
}
