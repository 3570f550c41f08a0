package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Transferor pushes funds out of custody. Implementations make external
// calls (native transfers, token contract calls) that may re-enter the
// vault, so vaults consume replay ids and debit balances before invoking
// one — a reentrant call must see the voucher as spent and the balance as
// already reduced.
type Transferor interface {
	Transfer(ctx context.Context, asset Asset, to common.Address, amount *big.Int) error
}
