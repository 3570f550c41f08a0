package voucher

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// ── Canonical encoding ─────────────────────────────────────────────────────

func TestDigest_Deterministic(t *testing.T) {
	d := &Deposit{
		OrderID:       big.NewInt(1),
		Account:       acct,
		Token:         tokenAddr,
		Value:         big.NewInt(500),
		Deadline:      1000,
		SystemBalance: big.NewInt(400),
	}
	if d.Digest(testVault) != d.Digest(testVault) {
		t.Fatal("digest is not deterministic")
	}
}

func TestDigest_FieldSensitivity(t *testing.T) {
	base := Deposit{
		OrderID:       big.NewInt(1),
		Account:       acct,
		Token:         tokenAddr,
		Value:         big.NewInt(500),
		Deadline:      1000,
		SystemBalance: big.NewInt(400),
	}
	h := base.Digest(testVault)

	mutations := map[string]Deposit{
		"order":   {OrderID: big.NewInt(2), Account: base.Account, Token: base.Token, Value: base.Value, Deadline: base.Deadline, SystemBalance: base.SystemBalance},
		"account": {OrderID: base.OrderID, Account: otherVault, Token: base.Token, Value: base.Value, Deadline: base.Deadline, SystemBalance: base.SystemBalance},
		"value":   {OrderID: base.OrderID, Account: base.Account, Token: base.Token, Value: big.NewInt(501), Deadline: base.Deadline, SystemBalance: base.SystemBalance},
		"sysbal":  {OrderID: base.OrderID, Account: base.Account, Token: base.Token, Value: base.Value, Deadline: base.Deadline, SystemBalance: big.NewInt(401)},
	}
	for name, m := range mutations {
		if m.Digest(testVault) == h {
			t.Errorf("changing %s did not change the digest", name)
		}
	}
}

// Native deposits have no token slot; the message of a native deposit and a
// token deposit with otherwise identical fields must differ.
func TestDigest_NativeVsToken(t *testing.T) {
	native := Deposit{OrderID: big.NewInt(1), Account: acct, Value: big.NewInt(5), SystemBalance: big.NewInt(1)}
	token := native
	token.Token = tokenAddr
	if native.Digest(testVault) == token.Digest(testVault) {
		t.Fatal("native and token deposits hash identically")
	}
}

// The trailing tag separates operations: two tuples that pack to the same
// slots must still produce different digests for claim vs use.
func TestDigest_OperationTagSeparation(t *testing.T) {
	it := Item{
		SignID:  big.NewInt(9),
		Account: acct,
		ID:      big.NewInt(3),
		Amount:  big.NewInt(1),
		Fee:     big.NewInt(10),
	}
	if it.Digest(testVault, TagItemClaim) == it.Digest(testVault, TagItemUse) {
		t.Fatal("item claim and item use digests collide")
	}
}

func TestDigest_UseOptionalFee(t *testing.T) {
	u := Use{
		SignID:  big.NewInt(1),
		Value:   big.NewInt(100),
		Token:   tokenAddr,
		Account: acct,
		Param:   big.NewInt(77),
	}
	withFee := u
	withFee.Fee = big.NewInt(2)
	if u.Digest(testVault) == withFee.Digest(testVault) {
		t.Fatal("fee-less and fee-carrying use vouchers hash identically")
	}
}

func TestDigest_ItemDataBound(t *testing.T) {
	a := Item{SignID: big.NewInt(1), Account: acct, ID: big.NewInt(1), Amount: big.NewInt(1), Fee: new(big.Int), Data: []byte("a")}
	b := a
	b.Data = []byte("b")
	if a.Digest(testVault, TagItemClaim) == b.Digest(testVault, TagItemClaim) {
		t.Fatal("item data is not bound into the digest")
	}
}

func TestDigest_ClaimRecipientBound(t *testing.T) {
	c1 := Claim{OrderID: big.NewInt(1), Recipient: acct, Token: tokenAddr, Value: big.NewInt(10)}
	c2 := c1
	c2.Recipient = otherVault
	if c1.Digest(testVault) == c2.Digest(testVault) {
		t.Fatal("claim recipient is not bound into the digest")
	}
}

func TestRecoverPersonal_MatchesSigner(t *testing.T) {
	d, auth := newSignedDeposit(t)
	// RecoverPersonal is the request-auth path; a voucher signature over a
	// digest must not verify as a personal signature over the same bytes.
	if addr, err := RecoverPersonal(d.Digest(testVault).Bytes(), d.Signature); err == nil && addr == auth.Signer() {
		t.Fatal("personal-message recovery must not alias digest recovery")
	}
}

func TestDigest_VaultAddressSlot(t *testing.T) {
	var p packer
	p.addr(common.HexToAddress("0x00000000000000000000000000000000000000FF"))
	if len(p.buf) != 32 {
		t.Fatalf("address slot must be 32 bytes, got %d", len(p.buf))
	}
	if p.buf[31] != 0xFF || p.buf[11] != 0 {
		t.Fatal("address must be right-aligned in its slot")
	}
}
