package ledger

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	token = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// ── Balances ───────────────────────────────────────────────────────────────

func TestCreditDebit(t *testing.T) {
	s := NewStore()
	if err := s.Credit(NativeAsset, big.NewInt(100)); err != nil {
		t.Fatal(err)
	}
	if err := s.Debit(NativeAsset, big.NewInt(40)); err != nil {
		t.Fatal(err)
	}
	if got := s.Balance(NativeAsset); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("balance = %s, want 60", got)
	}
}

func TestDebit_Insufficient(t *testing.T) {
	s := NewStore()
	if err := s.Credit(token, big.NewInt(10)); err != nil {
		t.Fatal(err)
	}
	err := s.Debit(token, big.NewInt(11))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
	// failed debit must not touch the balance
	if got := s.Balance(token); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("balance changed on failed debit: %s", got)
	}
}

func TestDebit_UnknownAsset(t *testing.T) {
	s := NewStore()
	if err := s.Debit(token, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
}

func TestCredit_ZeroValue(t *testing.T) {
	s := NewStore()
	if err := s.Credit(token, big.NewInt(0)); !errors.Is(err, ErrZeroValue) {
		t.Fatalf("expected ZeroValue, got %v", err)
	}
}

func TestBalance_IsACopy(t *testing.T) {
	s := NewStore()
	_ = s.Credit(token, big.NewInt(5))
	s.Balance(token).SetInt64(999)
	if got := s.Balance(token); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("Balance leaked internal state: %s", got)
	}
}

func TestCheckDestination(t *testing.T) {
	if err := CheckDestination(common.Address{}, big.NewInt(1)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ZeroAddress, got %v", err)
	}
	if err := CheckDestination(alice, big.NewInt(0)); !errors.Is(err, ErrZeroValue) {
		t.Fatalf("expected ZeroValue, got %v", err)
	}
	if err := CheckDestination(alice, big.NewInt(1)); err != nil {
		t.Fatalf("valid destination rejected: %v", err)
	}
}

// ── Deposit records ────────────────────────────────────────────────────────

// A new deposit overwrites the snapshot; it does not accumulate.
func TestDepositRecord_Snapshot(t *testing.T) {
	s := NewStore()
	s.RecordDeposit(alice, token, big.NewInt(100))
	s.RecordDeposit(alice, token, big.NewInt(30))
	if got := s.DepositOf(alice, token); got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("record = %s, want 30 (snapshot, not sum)", got)
	}
}

func TestCheckRefund_Bounds(t *testing.T) {
	s := NewStore()
	s.RecordDeposit(alice, token, big.NewInt(50))

	if err := s.CheckRefund(alice, token, big.NewInt(51)); !errors.Is(err, ErrInvalidRefundAmount) {
		t.Fatalf("expected InvalidRefundAmount, got %v", err)
	}
	// exactly the recorded amount is fine
	if err := s.CheckRefund(alice, token, big.NewInt(50)); err != nil {
		t.Fatalf("refund equal to record rejected: %v", err)
	}
}

func TestClearDeposit(t *testing.T) {
	s := NewStore()
	s.RecordDeposit(alice, token, big.NewInt(50))
	s.ClearDeposit(alice, token)
	if got := s.DepositOf(alice, token); got.Sign() != 0 {
		t.Fatalf("record not zeroed: %s", got)
	}
	if err := s.CheckRefund(alice, token, big.NewInt(1)); !errors.Is(err, ErrInvalidRefundAmount) {
		t.Fatalf("refund after clear should fail, got %v", err)
	}
}

// ── Send limits ────────────────────────────────────────────────────────────

// The default limit is zero, which disables operator pushes entirely.
func TestSendLimit_DefaultDisabled(t *testing.T) {
	s := NewStore()
	if err := s.CheckSendLimit(token, big.NewInt(1)); !errors.Is(err, ErrExceedsTokenLimit) {
		t.Fatalf("expected ExceedsTokenLimit with no limit set, got %v", err)
	}
}

func TestSendLimit_Configured(t *testing.T) {
	s := NewStore()
	s.SetSendLimit(token, big.NewInt(100))
	if err := s.CheckSendLimit(token, big.NewInt(100)); err != nil {
		t.Fatalf("amount at limit rejected: %v", err)
	}
	if err := s.CheckSendLimit(token, big.NewInt(101)); !errors.Is(err, ErrExceedsTokenLimit) {
		t.Fatalf("expected ExceedsTokenLimit, got %v", err)
	}
}

func TestSendLimit_ResetToZeroDisables(t *testing.T) {
	s := NewStore()
	s.SetSendLimit(token, big.NewInt(100))
	s.SetSendLimit(token, big.NewInt(0))
	if err := s.CheckSendLimit(token, big.NewInt(1)); !errors.Is(err, ErrExceedsTokenLimit) {
		t.Fatalf("zero limit should disable, got %v", err)
	}
}
