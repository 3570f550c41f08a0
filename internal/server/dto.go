package server

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gridlelabs/vaultd/internal/voucher"
)

// Wire DTOs: big integers travel as decimal strings, addresses as 0x hex,
// signatures as hex. Conversion failures map to 400s before any vault code
// runs.

type depositReq struct {
	OrderID       string `json:"order_id" binding:"required"`
	Account       string `json:"account" binding:"required"`
	Token         string `json:"token"`
	Value         string `json:"value" binding:"required"`
	Deadline      int64  `json:"deadline"`
	SystemBalance string `json:"system_balance"`
	Signature     string `json:"signature" binding:"required"`
}

func (r *depositReq) voucher() (*voucher.Deposit, error) {
	orderID, err := parseBig(r.OrderID, "order_id")
	if err != nil {
		return nil, err
	}
	value, err := parseBig(r.Value, "value")
	if err != nil {
		return nil, err
	}
	var sysBal *big.Int
	if r.SystemBalance != "" {
		if sysBal, err = parseBig(r.SystemBalance, "system_balance"); err != nil {
			return nil, err
		}
	}
	sig, err := parseSig(r.Signature)
	if err != nil {
		return nil, err
	}
	return &voucher.Deposit{
		OrderID:       orderID,
		Account:       common.HexToAddress(r.Account),
		Token:         common.HexToAddress(r.Token),
		Value:         value,
		Deadline:      r.Deadline,
		SystemBalance: sysBal,
		Signature:     sig,
	}, nil
}

type claimReq struct {
	OrderID   string `json:"order_id" binding:"required"`
	Recipient string `json:"recipient" binding:"required"`
	Token     string `json:"token"`
	Value     string `json:"value" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

func (r *claimReq) voucher() (*voucher.Claim, error) {
	orderID, err := parseBig(r.OrderID, "order_id")
	if err != nil {
		return nil, err
	}
	value, err := parseBig(r.Value, "value")
	if err != nil {
		return nil, err
	}
	sig, err := parseSig(r.Signature)
	if err != nil {
		return nil, err
	}
	return &voucher.Claim{
		OrderID:   orderID,
		Recipient: common.HexToAddress(r.Recipient),
		Token:     common.HexToAddress(r.Token),
		Value:     value,
		Signature: sig,
	}, nil
}

type useReq struct {
	SignID    string `json:"sign_id" binding:"required"`
	Value     string `json:"value" binding:"required"`
	Token     string `json:"token"`
	Account   string `json:"account" binding:"required"`
	Param     string `json:"param"`
	Fee       string `json:"fee"`
	PaidFee   string `json:"paid_fee"`
	Deadline  int64  `json:"deadline"`
	LockWeeks uint64 `json:"lock_weeks"` // retrodrop only
	Signature string `json:"signature" binding:"required"`
}

func (r *useReq) voucher() (*voucher.Use, *big.Int, error) {
	signID, err := parseBig(r.SignID, "sign_id")
	if err != nil {
		return nil, nil, err
	}
	value, err := parseBig(r.Value, "value")
	if err != nil {
		return nil, nil, err
	}
	var param, fee, paidFee *big.Int
	if r.Param != "" {
		if param, err = parseBig(r.Param, "param"); err != nil {
			return nil, nil, err
		}
	}
	if r.Fee != "" {
		if fee, err = parseBig(r.Fee, "fee"); err != nil {
			return nil, nil, err
		}
	}
	if r.PaidFee != "" {
		if paidFee, err = parseBig(r.PaidFee, "paid_fee"); err != nil {
			return nil, nil, err
		}
	}
	sig, err := parseSig(r.Signature)
	if err != nil {
		return nil, nil, err
	}
	return &voucher.Use{
		SignID:    signID,
		Value:     value,
		Token:     common.HexToAddress(r.Token),
		Account:   common.HexToAddress(r.Account),
		Param:     param,
		Fee:       fee,
		Deadline:  r.Deadline,
		Signature: sig,
	}, paidFee, nil
}

type itemReq struct {
	SignID    string `json:"sign_id" binding:"required"`
	Account   string `json:"account" binding:"required"`
	ID        string `json:"id" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Fee       string `json:"fee"`
	PaidFee   string `json:"paid_fee"`
	Deadline  int64  `json:"deadline"`
	Data      string `json:"data"` // hex
	Signature string `json:"signature" binding:"required"`
}

func (r *itemReq) voucher() (*voucher.Item, *big.Int, error) {
	signID, err := parseBig(r.SignID, "sign_id")
	if err != nil {
		return nil, nil, err
	}
	id, err := parseBig(r.ID, "id")
	if err != nil {
		return nil, nil, err
	}
	amount, err := parseBig(r.Amount, "amount")
	if err != nil {
		return nil, nil, err
	}
	var fee, paidFee *big.Int
	if r.Fee != "" {
		if fee, err = parseBig(r.Fee, "fee"); err != nil {
			return nil, nil, err
		}
	}
	if r.PaidFee != "" {
		if paidFee, err = parseBig(r.PaidFee, "paid_fee"); err != nil {
			return nil, nil, err
		}
	}
	if fee == nil {
		fee = new(big.Int)
	}
	data, err := hex.DecodeString(strings.TrimPrefix(r.Data, "0x"))
	if err != nil {
		return nil, nil, errors.New("invalid data hex")
	}
	sig, err := parseSig(r.Signature)
	if err != nil {
		return nil, nil, err
	}
	return &voucher.Item{
		SignID:    signID,
		Account:   common.HexToAddress(r.Account),
		ID:        id,
		Amount:    amount,
		Fee:       fee,
		Deadline:  r.Deadline,
		Data:      data,
		Signature: sig,
	}, paidFee, nil
}

type transferReq struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount" binding:"required"`
}

type refundReq struct {
	Account string `json:"account" binding:"required"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount" binding:"required"`
}

type roleReq struct {
	Role    string `json:"role" binding:"required"`
	Address string `json:"address" binding:"required"`
}

type limitReq struct {
	Asset string `json:"asset"`
	Limit string `json:"limit" binding:"required"`
}

type reserveReq struct {
	Asset           string `json:"asset"`
	MinCoef         string `json:"min_coef" binding:"required"`
	MaxCoef         string `json:"max_coef" binding:"required"`
	AbsoluteMin     string `json:"absolute_min"`
	WithdrawAddress string `json:"withdraw_address" binding:"required"`
}

func parseBig(s, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.New("invalid " + field)
	}
	return v, nil
}

func parseSig(s string) ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, errors.New("invalid signature hex")
	}
	return sig, nil
}
