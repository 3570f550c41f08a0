// Package reserve decides when a vault's custody balance has drifted above
// its allowed band relative to the off-chain system balance, and by how much
// to sweep it back down.
package reserve

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gridlelabs/vaultd/internal/ledger"
)

// BasisPoints is the coefficient denominator: 10000 = 100%.
const BasisPoints = 10000

var bps = big.NewInt(BasisPoints)

// Params is the per-asset reserve configuration. Coefficients are basis
// points of the voucher-asserted system balance. Both are expected to be at
// least 10000: the vault holds at minimum the system's reported balance plus
// a margin, and only the excess above the max band is swept.
type Params struct {
	MinCoef         *big.Int
	MaxCoef         *big.Int
	AbsoluteMin     *big.Int
	WithdrawAddress common.Address
}

// Validate checks coefficient ordering and the 100% floor.
func (p Params) Validate() error {
	if p.MinCoef == nil || p.MinCoef.Cmp(bps) < 0 {
		return ledger.ErrMinCoefficientTooLow
	}
	if p.MaxCoef == nil || p.MaxCoef.Cmp(p.MinCoef) < 0 {
		return ledger.ErrInvalidCoefficients
	}
	if p.WithdrawAddress == (common.Address{}) {
		return ledger.ErrZeroAddress
	}
	return nil
}

// Policy holds validated per-asset reserve parameters.
type Policy struct {
	params map[ledger.Asset]Params
}

func NewPolicy() *Policy {
	return &Policy{params: make(map[ledger.Asset]Params)}
}

// Set installs params for asset after validation.
func (p *Policy) Set(asset ledger.Asset, params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if params.AbsoluteMin == nil {
		params.AbsoluteMin = new(big.Int)
	}
	p.params[asset] = params
	return nil
}

// Get returns the params for asset, if configured.
func (p *Policy) Get(asset ledger.Asset) (Params, bool) {
	params, ok := p.params[asset]
	return params, ok
}

// Surplus computes the sweep for asset given the voucher-asserted system
// balance and the vault balance after crediting the deposit. It returns the
// amount to move to the withdraw address, or nil when the balance is inside
// the band (or no params are configured for the asset).
//
// upper = systemBalance * maxCoef / 10000. Above it the vault is brought
// back to target = max(systemBalance * minCoef / 10000, systemBalance +
// absoluteMin), so the absolute minimum acts as a floor on the retained
// margin when the coefficient margin would be smaller.
func (p *Policy) Surplus(asset ledger.Asset, systemBalance, vaultBalance *big.Int) (*big.Int, common.Address) {
	params, ok := p.params[asset]
	if !ok {
		return nil, common.Address{}
	}

	upper := new(big.Int).Mul(systemBalance, params.MaxCoef)
	upper.Div(upper, bps)
	if vaultBalance.Cmp(upper) <= 0 {
		return nil, common.Address{}
	}

	target := new(big.Int).Mul(systemBalance, params.MinCoef)
	target.Div(target, bps)
	floor := new(big.Int).Add(systemBalance, params.AbsoluteMin)
	if floor.Cmp(target) > 0 {
		target = floor
	}

	surplus := new(big.Int).Sub(vaultBalance, target)
	if surplus.Sign() <= 0 {
		return nil, common.Address{}
	}
	return surplus, params.WithdrawAddress
}
