package gridle

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/gridlelabs/vaultd/internal/journal"
	"github.com/gridlelabs/vaultd/internal/ledger"
	"github.com/gridlelabs/vaultd/internal/reserve"
	"github.com/gridlelabs/vaultd/internal/voucher"
)

var (
	vaultAddr = common.HexToAddress("0xFeedFaceFeedFaceFeedFaceFeedFaceFeedFace")
	adminAddr = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	alice     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	treasury  = common.HexToAddress("0x9999999999999999999999999999999999999999")
)

type transferCall struct {
	asset  ledger.Asset
	to     common.Address
	amount *big.Int
}

type fakeTransfer struct {
	calls []transferCall
}

func (f *fakeTransfer) Transfer(_ context.Context, asset ledger.Asset, to common.Address, amount *big.Int) error {
	f.calls = append(f.calls, transferCall{asset, to, new(big.Int).Set(amount)})
	return nil
}

type harness struct {
	vault *Vault
	key   *ecdsa.PrivateKey
	out   *fakeTransfer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	auth := voucher.NewECDSAAuthority(crypto.PubkeyToAddress(key.PublicKey))
	out := &fakeTransfer{}
	v := New("gridle", vaultAddr, adminAddr, auth, reserve.NewPolicy(), out,
		journal.New(nil, zap.NewNop()), zap.NewNop())
	v.SetClock(func() int64 { return 1_000 })
	if err := v.SetReserveParams(adminAddr, tokenAddr, reserve.Params{
		MinCoef:         big.NewInt(11000),
		MaxCoef:         big.NewInt(12000),
		WithdrawAddress: treasury,
	}); err != nil {
		t.Fatal(err)
	}
	return &harness{vault: v, key: key, out: out}
}

func (h *harness) signedDeposit(t *testing.T, signID, value, sysBal int64) *voucher.Deposit {
	t.Helper()
	d := &voucher.Deposit{
		OrderID:       big.NewInt(signID),
		Account:       alice,
		Token:         tokenAddr,
		Value:         big.NewInt(value),
		Deadline:      2_000,
		SystemBalance: big.NewInt(sysBal),
	}
	sig, err := voucher.Sign(d.Digest(vaultAddr), h.key)
	if err != nil {
		t.Fatal(err)
	}
	d.Signature = sig
	return d
}

func (h *harness) signedUse(t *testing.T, signID, value, fee int64) *voucher.Use {
	t.Helper()
	u := &voucher.Use{
		SignID:   big.NewInt(signID),
		Value:    big.NewInt(value),
		Token:    tokenAddr,
		Account:  alice,
		Param:    big.NewInt(42),
		Deadline: 2_000,
	}
	if fee > 0 {
		u.Fee = big.NewInt(fee)
	}
	sig, err := voucher.Sign(u.Digest(vaultAddr), h.key)
	if err != nil {
		t.Fatal(err)
	}
	u.Signature = sig
	return u
}

// ── Deposit / high-water gating ────────────────────────────────────────────

func TestDeposit_AdvancesHighWater(t *testing.T) {
	h := newHarness(t)
	if err := h.vault.Deposit(context.Background(), h.signedDeposit(t, 10, 50, 50)); err != nil {
		t.Fatal(err)
	}
	if mark := h.vault.HighWaterMark(tokenAddr); mark == nil || mark.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("mark = %v, want 10", mark)
	}
	if err := h.vault.Deposit(context.Background(), h.signedDeposit(t, 11, 50, 50)); err != nil {
		t.Fatal(err)
	}
	if mark := h.vault.HighWaterMark(tokenAddr); mark.Cmp(big.NewInt(11)) != 0 {
		t.Fatalf("mark = %v, want 11", mark)
	}
}

// An unused id below the mark still credits the vault but must not run the
// reserve check again.
func TestDeposit_OutOfOrderIDNoSweep(t *testing.T) {
	h := newHarness(t)
	// signId 5 pushes balance to 121 against sysBal 100 → sweep 11, leaves 110
	if err := h.vault.Deposit(context.Background(), h.signedDeposit(t, 5, 121, 100)); err != nil {
		t.Fatal(err)
	}
	if len(h.out.calls) != 1 || h.out.calls[0].amount.Cmp(big.NewInt(11)) != 0 {
		t.Fatalf("expected one sweep of 11, got %+v", h.out.calls)
	}
	// signId 3 arrives late: balance goes back above the band but no sweep
	if err := h.vault.Deposit(context.Background(), h.signedDeposit(t, 3, 100, 100)); err != nil {
		t.Fatal(err)
	}
	if len(h.out.calls) != 1 {
		t.Fatalf("out-of-order id triggered a sweep: %+v", h.out.calls)
	}
	if got := h.vault.Balance(tokenAddr); got.Cmp(big.NewInt(210)) != 0 {
		t.Fatalf("balance = %s, want 210", got)
	}
	if mark := h.vault.HighWaterMark(tokenAddr); mark.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("mark regressed: %v", mark)
	}
}

func TestDeposit_SignIDReplay(t *testing.T) {
	h := newHarness(t)
	d := h.signedDeposit(t, 7, 50, 50)
	if err := h.vault.Deposit(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if err := h.vault.Deposit(context.Background(), d); !errors.Is(err, ledger.ErrSignIDUsed) {
		t.Fatalf("expected SignIDUsed, got %v", err)
	}
}

// ── Use ────────────────────────────────────────────────────────────────────

func TestUse_CreditsValuePlusFee(t *testing.T) {
	h := newHarness(t)
	if err := h.vault.Use(context.Background(), h.signedUse(t, 1, 90, 10), big.NewInt(10)); err != nil {
		t.Fatal(err)
	}
	if got := h.vault.Balance(tokenAddr); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balance = %s, want 100", got)
	}
}

func TestUse_FeeFloor(t *testing.T) {
	h := newHarness(t)
	u := h.signedUse(t, 1, 90, 10)
	err := h.vault.Use(context.Background(), u, big.NewInt(9))
	if !errors.Is(err, ledger.ErrNotEnoughFee) {
		t.Fatalf("expected NotEnoughFee, got %v", err)
	}
	// overpayment is fine; only the floor is enforced
	if err := h.vault.Use(context.Background(), u, big.NewInt(11)); err != nil {
		t.Fatal(err)
	}
}

func TestUse_NoFeeVoucher(t *testing.T) {
	h := newHarness(t)
	if err := h.vault.Use(context.Background(), h.signedUse(t, 1, 90, 0), nil); err != nil {
		t.Fatal(err)
	}
	if got := h.vault.Balance(tokenAddr); got.Cmp(big.NewInt(90)) != 0 {
		t.Fatalf("balance = %s, want 90", got)
	}
}

func TestUse_Replay(t *testing.T) {
	h := newHarness(t)
	u := h.signedUse(t, 1, 90, 0)
	if err := h.vault.Use(context.Background(), u, nil); err != nil {
		t.Fatal(err)
	}
	if err := h.vault.Use(context.Background(), u, nil); !errors.Is(err, ledger.ErrSignIDUsed) {
		t.Fatalf("expected SignIDUsed, got %v", err)
	}
}

// Use signIds and deposit signIds share one consumed set per vault.
func TestUse_SharedReplaySetWithDeposits(t *testing.T) {
	h := newHarness(t)
	if err := h.vault.Deposit(context.Background(), h.signedDeposit(t, 4, 50, 50)); err != nil {
		t.Fatal(err)
	}
	err := h.vault.Use(context.Background(), h.signedUse(t, 4, 90, 0), nil)
	if !errors.Is(err, ledger.ErrSignIDUsed) {
		t.Fatalf("expected SignIDUsed across vocabularies, got %v", err)
	}
}

// ── Withdraw ───────────────────────────────────────────────────────────────

func TestWithdraw_RoleGated(t *testing.T) {
	h := newHarness(t)
	if err := h.vault.Use(context.Background(), h.signedUse(t, 1, 100, 0), nil); err != nil {
		t.Fatal(err)
	}
	err := h.vault.Withdraw(context.Background(), alice, tokenAddr, treasury, big.NewInt(40))
	if !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if err := h.vault.GrantRole(adminAddr, ledger.RoleWithdraw, alice); err != nil {
		t.Fatal(err)
	}
	if err := h.vault.Withdraw(context.Background(), alice, tokenAddr, treasury, big.NewInt(40)); err != nil {
		t.Fatal(err)
	}
	if got := h.vault.Balance(tokenAddr); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("balance = %s, want 60", got)
	}
}
