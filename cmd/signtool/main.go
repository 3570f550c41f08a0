// signtool signs vouchers the way the off-chain signer service does, for
// operators and integration testing:
//
//	signtool -key <hex> -vault <addr> -op deposit -order 1 -account 0x… -value 100 …
//
// It prints the voucher JSON with the signature filled in.
package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gridlelabs/vaultd/internal/voucher"
)

func main() {
	var (
		keyHex   = flag.String("key", "", "signer private key (hex)")
		vaultHex = flag.String("vault", "", "verifying vault address")
		op       = flag.String("op", "deposit", "operation: deposit|claim|use|item-claim|item-use")
		id       = flag.String("id", "1", "orderId / signId (decimal)")
		account  = flag.String("account", "", "account / recipient address")
		token    = flag.String("token", "", "token address (empty = native)")
		value    = flag.String("value", "0", "value (decimal)")
		fee      = flag.String("fee", "", "fee (decimal, optional)")
		param    = flag.String("param", "", "use param / item id (decimal)")
		deadline = flag.Int64("deadline", 0, "unix deadline (0 = none)")
		sysBal   = flag.String("system-balance", "", "system balance (deposit only)")
		data     = flag.String("data", "", "item data (hex)")
	)
	flag.Parse()

	key, err := crypto.HexToECDSA(strings.TrimPrefix(*keyHex, "0x"))
	if err != nil {
		fatal("parse key: %v", err)
	}
	vault := common.HexToAddress(*vaultHex)

	mustBig := func(s, name string) *big.Int {
		if s == "" {
			return nil
		}
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			fatal("invalid %s: %q", name, s)
		}
		return v
	}

	var (
		digest common.Hash
		out    any
	)
	switch *op {
	case "deposit":
		v := &voucher.Deposit{
			OrderID:       mustBig(*id, "id"),
			Account:       common.HexToAddress(*account),
			Token:         common.HexToAddress(*token),
			Value:         mustBig(*value, "value"),
			Deadline:      *deadline,
			SystemBalance: mustBig(*sysBal, "system-balance"),
		}
		digest = v.Digest(vault)
		v.Signature = sign(digest, key)
		out = v
	case "claim":
		v := &voucher.Claim{
			OrderID:   mustBig(*id, "id"),
			Recipient: common.HexToAddress(*account),
			Token:     common.HexToAddress(*token),
			Value:     mustBig(*value, "value"),
		}
		digest = v.Digest(vault)
		v.Signature = sign(digest, key)
		out = v
	case "use":
		v := &voucher.Use{
			SignID:   mustBig(*id, "id"),
			Value:    mustBig(*value, "value"),
			Token:    common.HexToAddress(*token),
			Account:  common.HexToAddress(*account),
			Param:    mustBig(*param, "param"),
			Fee:      mustBig(*fee, "fee"),
			Deadline: *deadline,
		}
		digest = v.Digest(vault)
		v.Signature = sign(digest, key)
		out = v
	case "item-claim", "item-use":
		v := &voucher.Item{
			SignID:   mustBig(*id, "id"),
			Account:  common.HexToAddress(*account),
			ID:       mustBig(*param, "param"),
			Amount:   mustBig(*value, "value"),
			Fee:      mustBig(*fee, "fee"),
			Deadline: *deadline,
			Data:     common.FromHex(*data),
		}
		if v.Fee == nil {
			v.Fee = new(big.Int)
		}
		digest = v.Digest(vault, *op)
		v.Signature = sign(digest, key)
		out = v
	default:
		fatal("unknown op %q", *op)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatal("encode: %v", err)
	}
	fmt.Fprintf(os.Stderr, "digest: %s\nsigner: %s\n",
		digest.Hex(), crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func sign(digest common.Hash, key *ecdsa.PrivateKey) []byte {
	sig, err := voucher.Sign(digest, key)
	if err != nil {
		fatal("sign: %v", err)
	}
	return sig
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
