package market

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// reserveBatchSize bounds a single getReservesByPairs call; larger batches
// run into node response size limits.
const reserveBatchSize = 200

// Directory enumerates factory pairs in index ranges, so large factories can
// be walked in batches.
type Directory interface {
	FetchPairs(ctx context.Context, factory common.Address, start, stop *big.Int) ([][3]common.Address, error)
}

// ReserveUpdater refreshes reserve balances for a list of markets. Results
// must align one-to-one with the input order; the engine treats that as a
// hard contract.
type ReserveUpdater interface {
	UpdateReserves(ctx context.Context, markets []Market) error
}

// Lookup contract ABI, a batch-query helper deployed alongside the executor.
const flashQueryABIJson = `[{
	"constant": true,
	"inputs": [
		{"name": "_uniswapFactory", "type": "address"},
		{"name": "_start", "type": "uint256"},
		{"name": "_stop", "type": "uint256"}
	],
	"name": "getPairsByIndexRange",
	"outputs": [{"name": "", "type": "address[3][]"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [{"name": "_pairs", "type": "address[]"}],
	"name": "getReservesByPairs",
	"outputs": [{"name": "", "type": "uint256[3][]"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// FlashQuery talks to the deployed lookup contract. It implements both
// Directory and ReserveUpdater.
type FlashQuery struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewFlashQuery creates a lookup client bound to the contract at address.
func NewFlashQuery(address common.Address, caller bind.ContractCaller) (*FlashQuery, error) {
	parsedABI, err := abi.JSON(strings.NewReader(flashQueryABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse lookup ABI: %w", err)
	}

	return &FlashQuery{
		address:  address,
		contract: bind.NewBoundContract(address, parsedABI, caller, nil, nil),
	}, nil
}

// FetchPairs returns (token0, token1, pair) triples for factory pair indices
// [start, stop). A short result means the factory's pair list is exhausted.
func (q *FlashQuery) FetchPairs(ctx context.Context, factory common.Address, start, stop *big.Int) ([][3]common.Address, error) {
	var out []interface{}
	err := q.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPairsByIndexRange", factory, start, stop)
	if err != nil {
		return nil, fmt.Errorf("failed to query pairs %s [%s,%s): %w", factory.Hex(), start, stop, err)
	}

	pairs, ok := out[0].([][3]common.Address)
	if !ok {
		return nil, fmt.Errorf("failed to parse pair batch for factory %s", factory.Hex())
	}
	return pairs, nil
}

// UpdateReserves fetches fresh reserves for every market in one logical pass
// and applies them wholesale. All batches are collected before any market is
// touched, so a scan never sees reserves from two different refreshes.
func (q *FlashQuery) UpdateReserves(ctx context.Context, markets []Market) error {
	if len(markets) == 0 {
		return nil
	}

	addresses := make([]common.Address, len(markets))
	for i, m := range markets {
		addresses[i] = m.Address()
	}

	reserves := make([][3]*big.Int, 0, len(markets))
	for offset := 0; offset < len(addresses); offset += reserveBatchSize {
		end := offset + reserveBatchSize
		if end > len(addresses) {
			end = len(addresses)
		}

		var out []interface{}
		err := q.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getReservesByPairs", addresses[offset:end])
		if err != nil {
			return fmt.Errorf("failed to query reserves batch at %d: %w", offset, err)
		}

		batch, ok := out[0].([][3]*big.Int)
		if !ok {
			return fmt.Errorf("failed to parse reserve batch at %d", offset)
		}
		if len(batch) != end-offset {
			return fmt.Errorf("reserve batch at %d: expected %d entries, got %d", offset, end-offset, len(batch))
		}
		reserves = append(reserves, batch...)
	}

	for i, m := range markets {
		tokens := m.Tokens()
		err := m.SetReserves(map[common.Address]*big.Int{
			tokens[0]: reserves[i][0],
			tokens[1]: reserves[i][1],
		})
		if err != nil {
			return fmt.Errorf("failed to apply reserves for market %s: %w", m.Address().Hex(), err)
		}
	}
	return nil
}
