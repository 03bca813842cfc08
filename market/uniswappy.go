package market

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Pair swap ABI, shared by UniswapV2 and its forks.
const pairSwapABIJson = `[{
	"constant": false,
	"inputs": [
		{"name": "amount0Out", "type": "uint256"},
		{"name": "amount1Out", "type": "uint256"},
		{"name": "to", "type": "address"},
		{"name": "data", "type": "bytes"}
	],
	"name": "swap",
	"outputs": [],
	"payable": false,
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// UniswappyV2Pair is the constant-product reference implementation of Market.
// Reserves are replaced wholesale each refresh cycle; reads take a snapshot
// under the lock so an in-flight quote never mixes two cycles.
type UniswappyV2Pair struct {
	address  common.Address
	protocol string
	tokens   [2]common.Address
	pairABI  abi.ABI

	mu       sync.RWMutex
	balances map[common.Address]*big.Int
}

// NewUniswappyV2Pair creates a pair market. The token order must match the
// on-chain token0/token1 order, since swap output slots depend on it.
func NewUniswappyV2Pair(address common.Address, token0, token1 common.Address, protocol string) (*UniswappyV2Pair, error) {
	if token0 == token1 {
		return nil, fmt.Errorf("pair %s: identical tokens", address.Hex())
	}

	parsedABI, err := abi.JSON(strings.NewReader(pairSwapABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}

	return &UniswappyV2Pair{
		address:  address,
		protocol: protocol,
		tokens:   [2]common.Address{token0, token1},
		pairABI:  parsedABI,
		balances: map[common.Address]*big.Int{
			token0: new(big.Int),
			token1: new(big.Int),
		},
	}, nil
}

// Address returns the pair contract address.
func (p *UniswappyV2Pair) Address() common.Address {
	return p.address
}

// Protocol returns the AMM variant tag.
func (p *UniswappyV2Pair) Protocol() string {
	return p.protocol
}

// Tokens returns token0 and token1 in contract order.
func (p *UniswappyV2Pair) Tokens() [2]common.Address {
	return p.tokens
}

// HasToken reports whether token is one of the pair's assets.
func (p *UniswappyV2Pair) HasToken(token common.Address) bool {
	return token == p.tokens[0] || token == p.tokens[1]
}

// other returns the pair's counterpart asset for token.
func (p *UniswappyV2Pair) other(token common.Address) (common.Address, error) {
	switch token {
	case p.tokens[0]:
		return p.tokens[1], nil
	case p.tokens[1]:
		return p.tokens[0], nil
	default:
		return common.Address{}, ErrUnknownToken
	}
}

// ReserveOf returns the current balance of token.
func (p *UniswappyV2Pair) ReserveOf(token common.Address) (*big.Int, error) {
	if !p.HasToken(token) {
		return nil, ErrUnknownToken
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.balances[token]), nil
}

// SetReserves replaces both balances atomically. The map must contain exactly
// the pair's two tokens with non-negative values.
func (p *UniswappyV2Pair) SetReserves(balances map[common.Address]*big.Int) error {
	if len(balances) != 2 {
		return fmt.Errorf("pair %s: expected 2 balances, got %d", p.address.Hex(), len(balances))
	}

	fresh := make(map[common.Address]*big.Int, 2)
	for _, token := range p.tokens {
		balance, ok := balances[token]
		if !ok {
			return fmt.Errorf("pair %s: missing balance for token %s: %w", p.address.Hex(), token.Hex(), ErrUnknownToken)
		}
		if balance.Sign() < 0 {
			return fmt.Errorf("pair %s: negative balance for token %s", p.address.Hex(), token.Hex())
		}
		fresh[token] = new(big.Int).Set(balance)
	}

	p.mu.Lock()
	p.balances = fresh
	p.mu.Unlock()
	return nil
}

// reserves returns a consistent snapshot of both balances in argument order.
func (p *UniswappyV2Pair) reserves(tokenIn, tokenOut common.Address) (*big.Int, *big.Int, error) {
	if !p.HasToken(tokenIn) || !p.HasToken(tokenOut) || tokenIn == tokenOut {
		return nil, nil, ErrUnknownToken
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.balances[tokenIn]), new(big.Int).Set(p.balances[tokenOut]), nil
}

// GetTokensOut quotes the swap output for amountIn of tokenIn.
func (p *UniswappyV2Pair) GetTokensOut(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	reserveIn, reserveOut, err := p.reserves(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return GetAmountOut(reserveIn, reserveOut, amountIn)
}

// GetTokensIn quotes the swap input required for amountOut of tokenOut.
func (p *UniswappyV2Pair) GetTokensIn(tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	reserveIn, reserveOut, err := p.reserves(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return GetAmountIn(reserveIn, reserveOut, amountOut)
}

// SellTokens builds the swap calldata that sells amountIn of tokenIn and
// sends the output to recipient. The pair must already hold the input tokens
// when the call executes; v2 pairs settle against their own balance.
func (p *UniswappyV2Pair) SellTokens(tokenIn common.Address, amountIn *big.Int, recipient common.Address) ([]byte, error) {
	tokenOut, err := p.other(tokenIn)
	if err != nil {
		return nil, err
	}

	amountOut, err := p.GetTokensOut(tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}

	amount0Out := new(big.Int)
	amount1Out := new(big.Int)
	if tokenOut == p.tokens[0] {
		amount0Out = amountOut
	} else {
		amount1Out = amountOut
	}

	data, err := p.pairABI.Pack("swap", amount0Out, amount1Out, recipient, []byte{})
	if err != nil {
		return nil, fmt.Errorf("failed to pack swap call: %w", err)
	}
	return data, nil
}

// ReceivesTokensDirectly is true for v2-style pairs: transferring the input
// token to the pair address before calling swap is the settlement model.
func (p *UniswappyV2Pair) ReceivesTokensDirectly() bool {
	return true
}
