package onchain

// ERC20 settlement asset. The pool's own account is the signing key: payouts
// go out with transfer(), stakes and deposits come in with transferFrom(),
// which needs the payer to have approved the pool account beforehand.

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/alejandrodnm/oddspool/internal/ports"
)

const (
	transferGasLimit       = uint64(100_000)
	gasPriceUpdateInterval = 5 * time.Minute
	fallbackGasPriceWei    = 30_000_000_000
)

var (
	ErrTxReverted  = errors.New("onchain: transaction reverted")
	ErrUnconfirmed = errors.New("onchain: transaction not confirmed")
)

var erc20ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "transfer",
			"type": "function",
			"inputs": [
				{"name": "to", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "transferFrom",
			"type": "function",
			"inputs": [
				{"name": "from", "type": "address"},
				{"name": "to", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "balanceOf",
			"type": "function",
			"inputs": [{"name": "account", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("erc20 abi parse: " + err.Error())
	}
}

// Backend is the slice of an Ethereum client the asset needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config describes the token contract and how long to wait for receipts.
type Config struct {
	ChainID        int64
	Token          common.Address
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// ERC20Asset implements ports.SettlementAsset on an ERC20 contract.
type ERC20Asset struct {
	backend Backend
	cfg     Config
	key     *ecdsa.PrivateKey
	address common.Address

	sendMu sync.Mutex // one pending nonce at a time

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

var (
	_ ports.SettlementAsset = (*ERC20Asset)(nil)
	_ ports.TransferTracker = (*ERC20Asset)(nil)
)

// NewERC20Asset signs with privateKeyHex (with or without 0x prefix).
func NewERC20Asset(backend Backend, cfg Config, privateKeyHex string) (*ERC20Asset, error) {
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("onchain: decode private key: %w", err)
	}
	key, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("onchain: invalid private key: %w", err)
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &ERC20Asset{
		backend: backend,
		cfg:     cfg,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address is the signing account, which is also the pool account.
func (a *ERC20Asset) Address() common.Address { return a.address }

// Transfer moves amount from one account to another. Transfers out of the
// signing account use transfer(); anything else uses transferFrom(). A
// transaction broadcast without a receipt in time comes back as a
// *ports.PendingTransferError whose Ref is the transaction hash.
func (a *ERC20Asset) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	var (
		callData []byte
		err      error
	)
	if from == a.address {
		callData, err = erc20ABI.Pack("transfer", to, amount.ToBig())
	} else {
		callData, err = erc20ABI.Pack("transferFrom", from, to, amount.ToBig())
	}
	if err != nil {
		return fmt.Errorf("onchain.Transfer: pack: %w", err)
	}

	hash, err := a.send(ctx, callData)
	if err != nil {
		return fmt.Errorf("onchain.Transfer: %w", err)
	}
	slog.Info("onchain: transfer confirmed",
		"from", from.Hex(), "to", to.Hex(), "amount", amount.Dec(), "tx", hash.Hex())
	return nil
}

// BalanceOf reads the token balance of account at the latest block.
func (a *ERC20Asset) BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error) {
	callData, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("onchain.BalanceOf: pack: %w", err)
	}
	out, err := a.backend.CallContract(ctx, ethereum.CallMsg{To: &a.cfg.Token, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("onchain.BalanceOf: call: %w", err)
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("onchain.BalanceOf: unpack: %w", err)
	}
	bal, overflow := uint256.FromBig(vals[0].(*big.Int))
	if overflow {
		return nil, fmt.Errorf("onchain.BalanceOf: balance overflows 256 bits")
	}
	return bal, nil
}

// send signs callData to the token contract, broadcasts it and waits for a
// successful receipt.
func (a *ERC20Asset) send(ctx context.Context, callData []byte) (common.Hash, error) {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	nonce, err := a.backend.PendingNonceAt(ctx, a.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	gasPrice := a.gasPrice(ctx)

	gas, err := a.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     a.address,
		To:       &a.cfg.Token,
		GasPrice: gasPrice,
		Data:     callData,
	})
	if err != nil {
		gas = transferGasLimit
		slog.Warn("onchain: gas estimate failed, using default", "err", err, "limit", transferGasLimit)
	}
	gas = gas * 12 / 10

	tx := types.NewTransaction(nonce, a.cfg.Token, big.NewInt(0), gas, gasPrice, callData)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(a.cfg.ChainID)), a.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}

	receiptCtx, cancel := context.WithTimeout(ctx, a.cfg.ReceiptTimeout)
	defer cancel()
	receipt, err := a.waitForReceipt(receiptCtx, signed.Hash())
	if err != nil {
		return signed.Hash(), &ports.PendingTransferError{
			Ref: signed.Hash().Hex(),
			Err: fmt.Errorf("%w: %v", ErrUnconfirmed, err),
		}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return signed.Hash(), fmt.Errorf("tx %s: %w", signed.Hash().Hex(), ErrTxReverted)
	}
	return signed.Hash(), nil
}

// TransferStatus looks up the receipt of the transaction hash ref.
func (a *ERC20Asset) TransferStatus(ctx context.Context, ref string) (ports.TransferState, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(ref, "0x"))
	if err != nil || len(raw) != common.HashLength {
		return ports.TransferPending, fmt.Errorf("onchain.TransferStatus: %q is not a transaction hash", ref)
	}
	receipt, err := a.backend.TransactionReceipt(ctx, common.BytesToHash(raw))
	if errors.Is(err, ethereum.NotFound) {
		return ports.TransferPending, nil
	}
	if err != nil {
		return ports.TransferPending, fmt.Errorf("onchain.TransferStatus: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ports.TransferFailed, nil
	}
	return ports.TransferLanded, nil
}

// gasPrice returns the suggested price plus 10%, cached for a few minutes.
func (a *ERC20Asset) gasPrice(ctx context.Context) *big.Int {
	a.mu.RLock()
	cached, updatedAt := a.cachedGasWei, a.gasUpdatedAt
	a.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached
	}

	price, err := a.backend.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached
		}
		return big.NewInt(fallbackGasPriceWei)
	}
	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	a.mu.Lock()
	a.cachedGasWei = buffered
	a.gasUpdatedAt = time.Now()
	a.mu.Unlock()
	return buffered
}

// waitForReceipt polls until the transaction is mined or ctx ends.
func (a *ERC20Asset) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := a.backend.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}
