package asset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
var ErrInsufficientBalance = errors.New("asset: insufficient balance")

// Token is an in-memory fungible settlement asset. It implements
// ports.SettlementAsset and is safe for concurrent use.
type Token struct {
	mu       sync.RWMutex
	symbol   string
	balances map[common.Address]uint256.Int
	supply   uint256.Int
}

// NewToken creates an empty token.
func NewToken(symbol string) *Token {
	return &Token{symbol: symbol, balances: make(map[common.Address]uint256.Int)}
}

func (t *Token) Symbol() string { return t.symbol }

// Mint credits amount to account out of thin air. Used to fund test and
// development accounts.
func (t *Token) Mint(account common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal := t.balances[account]
	bal.Add(&bal, amount)
	t.balances[account] = bal
	t.supply.Add(&t.supply, amount)
}

// Transfer moves amount between accounts.
func (t *Token) Transfer(_ context.Context, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	src := t.balances[from]
	if src.Lt(amount) {
		return fmt.Errorf("asset.Transfer: %s has %s, needs %s: %w", from.Hex(), src.Dec(), amount.Dec(), ErrInsufficientBalance)
	}
	src.Sub(&src, amount)
	t.balances[from] = src

	dst := t.balances[to]
	dst.Add(&dst, amount)
	t.balances[to] = dst
	return nil
}

// BalanceOf returns the balance of account.
func (t *Token) BalanceOf(_ context.Context, account common.Address) (*uint256.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	bal := t.balances[account]
	return bal.Clone(), nil
}

// TotalSupply is the sum of everything minted.
func (t *Token) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.supply.Clone()
}
