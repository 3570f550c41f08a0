package journal

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind names a ledger event.
type Kind string

const (
	Deposited      Kind = "Deposited"
	Claimed        Kind = "Claimed"
	Used           Kind = "Used"
	Refunded       Kind = "Refunded"
	Withdrawn      Kind = "Withdrawn"
	AutoWithdrawal Kind = "AutoWithdrawal"
	ItemClaimed    Kind = "ItemClaimed"
	ItemUsed       Kind = "ItemUsed"
	DropClaimed    Kind = "DropClaimed"
)

// Event is the fire-and-forget notification pushed to off-chain indexers.
// It carries the full ledger delta so an indexer can reconstruct state
// without re-reading the vault.
type Event struct {
	Vault   string         `json:"vault"`
	Kind    Kind           `json:"kind"`
	ID      *big.Int       `json:"id,omitempty"` // orderId / signId
	Account common.Address `json:"account,omitempty"`
	To      common.Address `json:"to,omitempty"`
	Asset   common.Address `json:"asset"`
	Value   *big.Int       `json:"value"`
	Fee     *big.Int       `json:"fee,omitempty"`
	Param   *big.Int       `json:"param,omitempty"` // use param / item id / lock weeks
	Time    int64          `json:"time"`
}

// Redis key templates.
const (
	EventQueueKeyFmt = "vault:events:%s"  // %s = vault name
	SignIDKeyFmt     = "vault:sign:%s:%s" // %s = vault name, sign id
)
