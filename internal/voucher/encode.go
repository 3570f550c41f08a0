package voucher

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Canonical message encoding: ABI-style fixed-width packing, one 32-byte
// slot per field in the documented order, followed by the verifying vault's
// address slot and the raw operation tag bytes. Off-chain signers produce
// the same byte string; any reordering breaks existing signatures.

type packer struct {
	buf []byte
}

// uint appends v left-padded to a 32-byte slot.
func (p *packer) uint(v *big.Int) {
	slot := make([]byte, 32)
	if v != nil {
		v.FillBytes(slot)
	}
	p.buf = append(p.buf, slot...)
}

func (p *packer) uint64(v uint64) {
	p.uint(new(big.Int).SetUint64(v))
}

// addr appends a right-aligned in a 32-byte slot.
func (p *packer) addr(a common.Address) {
	slot := make([]byte, 32)
	copy(slot[12:], a.Bytes())
	p.buf = append(p.buf, slot...)
}

func (p *packer) hash(h common.Hash) {
	p.buf = append(p.buf, h.Bytes()...)
}

// tag appends the literal operation tag, unpadded.
func (p *packer) tag(s string) {
	p.buf = append(p.buf, s...)
}

// digest returns the EIP-191 prefixed keccak of the packed message.
func (p *packer) digest() common.Hash {
	return common.BytesToHash(prefixedHash(p.buf))
}

// Digest binds the deposit tuple to the verifying vault. The token slot is
// present only for token deposits; the native-coin message has no token
// field, matching the on-chain ETH variant.
func (v *Deposit) Digest(vault common.Address) common.Hash {
	var p packer
	p.uint(v.OrderID)
	p.addr(v.Account)
	if v.Token != (common.Address{}) {
		p.addr(v.Token)
	}
	p.uint(v.Value)
	p.uint64(uint64(v.Deadline))
	p.uint(v.SystemBalance)
	p.addr(vault)
	p.tag(TagDeposit)
	return p.digest()
}

func (v *Claim) Digest(vault common.Address) common.Hash {
	var p packer
	p.uint(v.OrderID)
	p.addr(v.Recipient)
	if v.Token != (common.Address{}) {
		p.addr(v.Token)
	}
	p.uint(v.Value)
	p.addr(vault)
	p.tag(TagClaim)
	return p.digest()
}

func (v *Use) Digest(vault common.Address) common.Hash {
	var p packer
	p.uint(v.SignID)
	p.uint(v.Value)
	p.addr(v.Token)
	p.addr(v.Account)
	p.uint(v.Param)
	if v.Fee != nil {
		p.uint(v.Fee)
	}
	p.uint64(uint64(v.Deadline))
	p.addr(vault)
	p.tag(TagUse)
	return p.digest()
}

// Digest for an item voucher; tag distinguishes claim from use so a signed
// claim can never be replayed as a use.
func (v *Item) Digest(vault common.Address, tag string) common.Hash {
	var p packer
	p.uint(v.SignID)
	p.addr(v.Account)
	p.uint(v.ID)
	p.uint(v.Amount)
	p.uint(v.Fee)
	if v.Deadline != 0 {
		p.uint64(uint64(v.Deadline))
	}
	p.hash(crypto.Keccak256Hash(v.Data))
	p.addr(vault)
	p.tag(tag)
	return p.digest()
}
