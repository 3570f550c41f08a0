package voucher

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gridlelabs/vaultd/internal/ledger"
)

// Authority checks that a voucher digest carries the designated off-chain
// signer's signature. Vault logic depends on this interface so unit tests
// can substitute a fake.
type Authority interface {
	Verify(digest common.Hash, sig []byte) error
	Signer() common.Address
	SetSigner(addr common.Address) error
}

// ECDSAAuthority recovers secp256k1 signatures and compares against a
// replaceable signer address. Replacing the signer instantly invalidates
// every voucher the old key signed; vouchers are short-lived by design.
type ECDSAAuthority struct {
	signer common.Address
}

func NewECDSAAuthority(signer common.Address) *ECDSAAuthority {
	return &ECDSAAuthority{signer: signer}
}

func (a *ECDSAAuthority) Signer() common.Address { return a.signer }

// SetSigner replaces the authority key. Admin gating happens in the vault.
func (a *ECDSAAuthority) SetSigner(addr common.Address) error {
	if addr == (common.Address{}) {
		return ledger.ErrZeroAddress
	}
	a.signer = addr
	return nil
}

// Verify recovers the signing address from sig over digest and rejects any
// mismatch with WrongSignature. A mismatch fails only this call; it is not
// fatal to the vault.
func (a *ECDSAAuthority) Verify(digest common.Hash, sig []byte) error {
	recovered, err := Recover(digest, sig)
	if err != nil {
		return &ledger.OpError{Code: ledger.CodeWrongSignature, Msg: err.Error()}
	}
	if recovered != a.signer {
		return &ledger.OpError{Code: ledger.CodeWrongSignature,
			Msg: fmt.Sprintf("recovered %s, want %s", recovered.Hex(), a.signer.Hex())}
	}
	return nil
}

// Recover extracts the signer address from a 65-byte R||S||V signature,
// with V in {0,1} or {27,28}.
func Recover(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), sigCopy)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Sign produces the 65-byte signature over digest with V in 27/28, the
// convention the off-chain signer service emits.
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// RecoverPersonal recovers the signer of a raw EIP-191 personal message
// (the request-auth path, as opposed to voucher digests).
func RecoverPersonal(msg, sig []byte) (common.Address, error) {
	return Recover(common.BytesToHash(prefixedHash(msg)), sig)
}

// prefixedHash is the EIP-191 personal-message hash:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func prefixedHash(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}

// CheckDeadline rejects an expired voucher. The boundary is inclusive:
// deadline == now still verifies. A zero deadline means the voucher carries
// none.
func CheckDeadline(now, deadline int64) error {
	if deadline != 0 && now > deadline {
		return &ledger.OpError{Code: ledger.CodeDeadlineExpired,
			Msg: fmt.Sprintf("deadline %d, now %d", deadline, now)}
	}
	return nil
}
