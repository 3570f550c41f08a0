// Package chain pushes custody funds out on chain: native-coin transfers as
// plain value transactions, token transfers through the ERC-20 transfer
// method. It implements ledger.Transferor for the production vaults.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/gridlelabs/vaultd/internal/ledger"
)

const erc20TransferABI = `[{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`

const nativeTransferGas = 21000

// Client wraps go-ethereum for outbound payouts from the custody key.
type Client struct {
	eth     *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	erc20   abi.ABI
	log     *zap.Logger
}

func NewClient(rpcURL, hexKey string, chainID int64, log *zap.Logger) (*Client, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse custody key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &Client{
		eth:     eth,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		erc20:   parsed,
		log:     log,
	}, nil
}

// From returns the custody address payouts are sent from.
func (c *Client) From() common.Address { return c.from }

// ChainID returns the configured chain id.
func (c *Client) ChainID() *big.Int { return c.chainID }

// Transfer sends amount of asset to the recipient and waits for the receipt.
func (c *Client) Transfer(ctx context.Context, asset ledger.Asset, to common.Address, amount *big.Int) error {
	var (
		tx  *types.Transaction
		err error
	)
	if asset == ledger.NativeAsset {
		tx, err = c.transferNative(ctx, to, amount)
	} else {
		tx, err = c.transferToken(ctx, asset, to, amount)
	}
	if err != nil {
		return err
	}

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return fmt.Errorf("wait mined: %w", err)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("tx reverted: %s", tx.Hash().Hex())
	}
	c.log.Info("payout confirmed",
		zap.String("asset", asset.Hex()),
		zap.String("to", to.Hex()),
		zap.Stringer("amount", amount),
		zap.String("tx", tx.Hash().Hex()),
	)
	return nil
}

func (c *Client) transferNative(ctx context.Context, to common.Address, amount *big.Int) (*types.Transaction, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	tx := types.NewTransaction(nonce, to, amount, nativeTransferGas, gasPrice, nil)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	return signed, nil
}

func (c *Client) transferToken(ctx context.Context, token, to common.Address, amount *big.Int) (*types.Transaction, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("build tx opts: %w", err)
	}
	opts.Context = ctx

	contract := bind.NewBoundContract(token, c.erc20, c.eth, c.eth, c.eth)
	tx, err := contract.Transact(opts, "transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("erc20 transfer: %w", err)
	}
	return tx, nil
}
