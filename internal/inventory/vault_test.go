package inventory

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
	"github.com/gridlelabs/vaultd/internal/voucher"
)

var (
	vaultAddr = common.HexToAddress("0x1215121512151215121512151215121512151215")
	adminAddr = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	alice     = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type harness struct {
	vault *Vault
	key   *ecdsa.PrivateKey
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	auth := voucher.NewECDSAAuthority(crypto.PubkeyToAddress(key.PublicKey))
	v := New("inventory", vaultAddr, adminAddr, auth, journal.New(nil, zap.NewNop()), zap.NewNop())
	v.SetClock(func() int64 { return 1_000 })
	return &harness{vault: v, key: key}
}

func (h *harness) signedItem(t *testing.T, tag string, signID, itemID, amount, fee int64) *voucher.Item {
	t.Helper()
	it := &voucher.Item{
		SignID:   big.NewInt(signID),
		Account:  alice,
		ID:       big.NewInt(itemID),
		Amount:   big.NewInt(amount),
		Deadline: 2_000,
		Data:     []byte("drop-season-3"),
	}
	if fee > 0 {
		it.Fee = big.NewInt(fee)
	}
	sig, err := voucher.Sign(it.Digest(vaultAddr, tag), h.key)
	if err != nil {
		t.Fatal(err)
	}
	it.Signature = sig
	return it
}

func TestClaim_MintsUnits(t *testing.T) {
	h := newHarness(t)
	it := h.signedItem(t, voucher.TagItemClaim, 1, 77, 3, 10)
	if err := h.vault.Claim(context.Background(), it, big.NewInt(10)); err != nil {
		t.Fatal(err)
	}
	if got := h.vault.ItemBalance(alice, big.NewInt(77)); got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("item balance = %s, want 3", got)
	}
	if got := h.vault.FeeBalance(); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("fee balance = %s, want 10", got)
	}
}

func TestUse_BurnsUnits(t *testing.T) {
	h := newHarness(t)
	claim := h.signedItem(t, voucher.TagItemClaim, 1, 77, 3, 0)
	if err := h.vault.Claim(context.Background(), claim, nil); err != nil {
		t.Fatal(err)
	}
	use := h.signedItem(t, voucher.TagItemUse, 2, 77, 2, 0)
	if err := h.vault.Use(context.Background(), use, nil); err != nil {
		t.Fatal(err)
	}
	if got := h.vault.ItemBalance(alice, big.NewInt(77)); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("item balance = %s, want 1", got)
	}
}

func TestUse_InsufficientUnits(t *testing.T) {
	h := newHarness(t)
	use := h.signedItem(t, voucher.TagItemUse, 1, 77, 1, 0)
	err := h.vault.Use(context.Background(), use, nil)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
}

// A claim voucher does not authorize a use, even with identical fields: the
// operation tag is part of the digest.
func TestTagSeparation(t *testing.T) {
	h := newHarness(t)
	it := h.signedItem(t, voucher.TagItemClaim, 1, 77, 3, 0)
	if err := h.vault.Use(context.Background(), it, nil); !errors.Is(err, ledger.ErrWrongSignature) {
		t.Fatalf("claim voucher accepted as use: %v", err)
	}
}

func TestClaim_FeeFloor(t *testing.T) {
	h := newHarness(t)
	it := h.signedItem(t, voucher.TagItemClaim, 1, 77, 3, 10)
	if err := h.vault.Claim(context.Background(), it, big.NewInt(9)); !errors.Is(err, ledger.ErrNotEnoughFee) {
		t.Fatalf("expected NotEnoughFee, got %v", err)
	}
	// the rejection happens before the signId is consumed
	if err := h.vault.Claim(context.Background(), it, big.NewInt(10)); err != nil {
		t.Fatalf("voucher burned by fee rejection: %v", err)
	}
}

func TestClaim_Replay(t *testing.T) {
	h := newHarness(t)
	it := h.signedItem(t, voucher.TagItemClaim, 1, 77, 3, 0)
	if err := h.vault.Claim(context.Background(), it, nil); err != nil {
		t.Fatal(err)
	}
	if err := h.vault.Claim(context.Background(), it, nil); !errors.Is(err, ledger.ErrSignIDUsed) {
		t.Fatalf("expected SignIDUsed, got %v", err)
	}
}

func TestClaimBatch(t *testing.T) {
	h := newHarness(t)
	its := []*voucher.Item{
		h.signedItem(t, voucher.TagItemClaim, 1, 77, 3, 0),
		h.signedItem(t, voucher.TagItemClaim, 2, 88, 5, 0),
	}
	if err := h.vault.ClaimBatch(context.Background(), its, []*big.Int{nil, nil}); err != nil {
		t.Fatal(err)
	}
	if got := h.vault.ItemBalance(alice, big.NewInt(88)); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("item 88 balance = %s, want 5", got)
	}
}

func TestClaimBatch_LengthMismatch(t *testing.T) {
	h := newHarness(t)
	its := []*voucher.Item{h.signedItem(t, voucher.TagItemClaim, 1, 77, 3, 0)}
	err := h.vault.ClaimBatch(context.Background(), its, nil)
	if !errors.Is(err, ledger.ErrArraysLengthMismatch) {
		t.Fatalf("expected ArraysLengthMismatch, got %v", err)
	}
}

// Earlier elements stay settled when a later element fails.
func TestClaimBatch_PartialFailure(t *testing.T) {
	h := newHarness(t)
	first := h.signedItem(t, voucher.TagItemClaim, 1, 77, 3, 0)
	if err := h.vault.Claim(context.Background(), first, nil); err != nil {
		t.Fatal(err)
	}
	batch := []*voucher.Item{
		h.signedItem(t, voucher.TagItemClaim, 2, 88, 5, 0),
		first, // already consumed
	}
	err := h.vault.ClaimBatch(context.Background(), batch, []*big.Int{nil, nil})
	if !errors.Is(err, ledger.ErrSignIDUsed) {
		t.Fatalf("expected SignIDUsed, got %v", err)
	}
	if got := h.vault.ItemBalance(alice, big.NewInt(88)); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("first element rolled back: %s", got)
	}
}
