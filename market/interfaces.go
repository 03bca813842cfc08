// Package market models two-asset AMM pools quoted against a common base asset.
package market

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// WETHAddress is the canonical mainnet wrapped-ether contract. All volumes and
// profits in this codebase are denominated in it.
var WETHAddress = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

var (
	// ErrUnknownToken is returned when a token that does not belong to the
	// market is quoted. Always a caller bug, never retried.
	ErrUnknownToken = errors.New("market: token not part of pair")

	// ErrNonPositiveAmount is returned for zero or negative trade amounts.
	ErrNonPositiveAmount = errors.New("market: amount must be positive")

	// ErrInsufficientReserve is returned when a requested output meets or
	// exceeds the pool's reserve of that token.
	ErrInsufficientReserve = errors.New("market: requested output exceeds reserve")
)

// Market is the capability interface every tradeable pool must implement.
// The constant-product UniswappyV2Pair is the reference implementation;
// variants with other fee schedules plug in behind the same interface.
type Market interface {
	// Address returns the on-chain identity of the pool.
	Address() common.Address

	// Protocol returns the AMM variant tag (e.g. "UniswapV2", "SushiSwap").
	Protocol() string

	// Tokens returns the pool's two token addresses in contract order.
	Tokens() [2]common.Address

	// HasToken reports whether token is one of the pool's two assets.
	HasToken(token common.Address) bool

	// ReserveOf returns the pool's current balance of token.
	ReserveOf(token common.Address) (*big.Int, error)

	// SetReserves replaces both reserve balances in one step. Partial
	// updates are not possible; a reader never observes a torn state.
	SetReserves(balances map[common.Address]*big.Int) error

	// GetTokensOut quotes the output of swapping amountIn of tokenIn.
	GetTokensOut(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)

	// GetTokensIn quotes the input required to receive amountOut of tokenOut.
	GetTokensIn(tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error)

	// SellTokens builds the calldata that swaps amountIn of tokenIn and
	// delivers the proceeds to recipient.
	SellTokens(tokenIn common.Address, amountIn *big.Int, recipient common.Address) ([]byte, error)

	// ReceivesTokensDirectly reports whether the pool accepts token
	// transfers at its own address, allowing the previous hop to forward
	// output straight to it without an intermediate call.
	ReceivesTokensDirectly() bool
}
