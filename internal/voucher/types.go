package voucher

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// A voucher is an off-chain-signed capability: possession of a valid
// signature over the exact field tuple (including the verifying vault's
// address and a literal operation tag) authorizes exactly one execution.
// Vouchers are stateless; one dies the moment its id enters the replay set.

// Operation tags mixed into every canonical message. Binding the tag and the
// vault address into the digest is what prevents cross-operation and
// cross-vault replay of an otherwise identical tuple.
const (
	TagDeposit   = "deposit"
	TagClaim     = "claim"
	TagUse       = "use"
	TagItemClaim = "item-claim"
	TagItemUse   = "item-use"
)

// Deposit authorizes crediting the vault with the depositor's funds and
// carries the signer-asserted system balance the reserve policy keys off.
// Token is the zero address for a native-coin deposit.
type Deposit struct {
	OrderID       *big.Int       `json:"order_id"`
	Account       common.Address `json:"account"`
	Token         common.Address `json:"token"`
	Value         *big.Int       `json:"value"`
	Deadline      int64          `json:"deadline"`
	SystemBalance *big.Int       `json:"system_balance"`
	Signature     []byte         `json:"signature"`
}

// Claim authorizes paying Value of Token out to Recipient.
type Claim struct {
	OrderID   *big.Int       `json:"order_id"`
	Recipient common.Address `json:"recipient"`
	Token     common.Address `json:"token"`
	Value     *big.Int       `json:"value"`
	Signature []byte         `json:"signature"`
}

// Use authorizes spending Value of Token from Account against an opaque
// Param (shop order, reactor id, …), with an optional service fee.
type Use struct {
	SignID    *big.Int       `json:"sign_id"`
	Value     *big.Int       `json:"value"`
	Token     common.Address `json:"token"`
	Account   common.Address `json:"account"`
	Param     *big.Int       `json:"param"`
	Fee       *big.Int       `json:"fee"`
	Deadline  int64          `json:"deadline"`
	Signature []byte         `json:"signature"`
}

// Item authorizes an inventory claim or use of Amount units of item ID.
// Data is free-form call context; only its hash enters the digest.
type Item struct {
	SignID    *big.Int       `json:"sign_id"`
	Account   common.Address `json:"account"`
	ID        *big.Int       `json:"id"`
	Amount    *big.Int       `json:"amount"`
	Fee       *big.Int       `json:"fee"`
	Deadline  int64          `json:"deadline"`
	Data      []byte         `json:"data"`
	Signature []byte         `json:"signature"`
}
