// Package vesting computes the retro-drop payout curve: a square-root
// time-weighting of the principal by the requested lock duration. All
// arithmetic is integer; floating point never touches amounts.
package vesting

import (
	"math/big"

	"github.com/gridlelabs/vaultd/internal/ledger"
)

// scale is the fixed-point precision for the sqrt ratio. 1e18 keeps the
// rounding error on a wei-denominated principal below one unit.
var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Sqrt returns floor(sqrt(v)) by Newton's method: start at v, iterate
// x' = (x + v/x) / 2, stop once the iterate no longer decreases.
func Sqrt(v *big.Int) *big.Int {
	if v.Sign() <= 0 {
		return new(big.Int)
	}
	x := new(big.Int).Set(v)
	for {
		next := new(big.Int).Div(v, x)
		next.Add(next, x)
		next.Rsh(next, 1)
		if next.Cmp(x) >= 0 {
			return x
		}
		x = next
	}
}

// Payout returns principal * sqrt((lockWeeks+1)/(maxWeeks+1)).
//
// lockWeeks above maxWeeks is rejected, not clamped. lockWeeks of zero still
// pays the sqrt(1/(maxWeeks+1)) fraction; the floor is deliberate.
func Payout(principal *big.Int, lockWeeks, maxWeeks uint64) (*big.Int, error) {
	if lockWeeks > maxWeeks {
		return nil, ledger.ErrInvalidLockWeeks
	}
	if principal == nil || principal.Sign() <= 0 {
		return nil, ledger.ErrZeroValue
	}

	// sqrt((lock+1)/(max+1)) as sqrt((lock+1) * scale^2 / (max+1)) / scale
	num := new(big.Int).SetUint64(lockWeeks + 1)
	num.Mul(num, scale)
	num.Mul(num, scale)
	num.Div(num, new(big.Int).SetUint64(maxWeeks+1))

	out := new(big.Int).Mul(principal, Sqrt(num))
	out.Div(out, scale)
	return out, nil
}
