package market

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lookupAddr = common.HexToAddress("0x5EF1009b9FCD4fec3094a5564047e190D72Bd511")

// fakeLookupCaller answers getPairsByIndexRange and getReservesByPairs with
// ABI-encoded payloads, like the deployed lookup contract would.
type fakeLookupCaller struct {
	t        *testing.T
	abi      abi.ABI
	reserves map[common.Address][3]*big.Int
	pairs    map[common.Address][][3]common.Address

	calls      int
	failOnCall int // 1-based call index to fail, 0 never
	dropLast   bool
}

func newFakeLookupCaller(t *testing.T) *fakeLookupCaller {
	t.Helper()
	parsedABI, err := abi.JSON(strings.NewReader(flashQueryABIJson))
	require.NoError(t, err)
	return &fakeLookupCaller{
		t:        t,
		abi:      parsedABI,
		reserves: make(map[common.Address][3]*big.Int),
		pairs:    make(map[common.Address][][3]common.Address),
	}
}

func (f *fakeLookupCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (f *fakeLookupCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls++
	if f.failOnCall != 0 && f.calls == f.failOnCall {
		return nil, errors.New("node unavailable")
	}

	switch {
	case bytes.Equal(call.Data[:4], f.abi.Methods["getReservesByPairs"].ID):
		args, err := f.abi.Methods["getReservesByPairs"].Inputs.Unpack(call.Data[4:])
		require.NoError(f.t, err)
		requested := args[0].([]common.Address)

		out := make([][3]*big.Int, 0, len(requested))
		for _, pair := range requested {
			entry, ok := f.reserves[pair]
			require.True(f.t, ok, "reserves requested for unknown pair %s", pair.Hex())
			out = append(out, entry)
		}
		if f.dropLast && len(out) > 0 {
			out = out[:len(out)-1]
		}
		return f.abi.Methods["getReservesByPairs"].Outputs.Pack(out)

	case bytes.Equal(call.Data[:4], f.abi.Methods["getPairsByIndexRange"].ID):
		args, err := f.abi.Methods["getPairsByIndexRange"].Inputs.Unpack(call.Data[4:])
		require.NoError(f.t, err)
		factory := args[0].(common.Address)
		start := int(args[1].(*big.Int).Int64())
		stop := int(args[2].(*big.Int).Int64())

		all := f.pairs[factory]
		if start > len(all) {
			start = len(all)
		}
		if stop > len(all) {
			stop = len(all)
		}
		return f.abi.Methods["getPairsByIndexRange"].Outputs.Pack(all[start:stop])

	default:
		f.t.Fatalf("unexpected call selector %x", call.Data[:4])
		return nil, nil
	}
}

// directoryMarkets builds n WETH-paired markets and registers each one's
// fresh reserves with the fake caller: pair i gets i+1 WETH and 2*(i+1) token.
func directoryMarkets(t *testing.T, caller *fakeLookupCaller, n int) []Market {
	t.Helper()

	markets := make([]Market, 0, n)
	for i := 0; i < n; i++ {
		pairAddr := common.BytesToAddress([]byte{0xdd, byte(i), byte(i >> 8)})
		token := common.BytesToAddress([]byte{0x70, byte(i), byte(i >> 8)})

		pair, err := NewUniswappyV2Pair(pairAddr, WETHAddress, token, "uniswap-v2")
		require.NoError(t, err)
		markets = append(markets, pair)

		caller.reserves[pairAddr] = [3]*big.Int{
			big.NewInt(int64(i + 1)),
			big.NewInt(int64(2 * (i + 1))),
			big.NewInt(1700000000),
		}
	}
	return markets
}

func TestUpdateReservesAlignsAcrossBatches(t *testing.T) {
	caller := newFakeLookupCaller(t)
	query, err := NewFlashQuery(lookupAddr, caller)
	require.NoError(t, err)

	// More markets than one batch holds, so the refresh must split and
	// stitch the results back in input order.
	markets := directoryMarkets(t, caller, reserveBatchSize+5)

	require.NoError(t, query.UpdateReserves(context.Background(), markets))
	assert.Equal(t, 2, caller.calls)

	for i, m := range markets {
		tokens := m.Tokens()
		r0, err := m.ReserveOf(tokens[0])
		require.NoError(t, err)
		r1, err := m.ReserveOf(tokens[1])
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), r0.Int64(), "market %d token0 reserve", i)
		assert.Equal(t, int64(2*(i+1)), r1.Int64(), "market %d token1 reserve", i)
	}
}

func TestUpdateReservesAtomicOnBatchFailure(t *testing.T) {
	caller := newFakeLookupCaller(t)
	query, err := NewFlashQuery(lookupAddr, caller)
	require.NoError(t, err)

	markets := directoryMarkets(t, caller, reserveBatchSize+5)
	for _, m := range markets {
		tokens := m.Tokens()
		require.NoError(t, m.SetReserves(map[common.Address]*big.Int{
			tokens[0]: big.NewInt(111),
			tokens[1]: big.NewInt(222),
		}))
	}

	// First batch succeeds, second fails: no market may see fresh values.
	caller.failOnCall = 2
	require.Error(t, query.UpdateReserves(context.Background(), markets))

	for i, m := range markets {
		tokens := m.Tokens()
		r0, err := m.ReserveOf(tokens[0])
		require.NoError(t, err)
		r1, err := m.ReserveOf(tokens[1])
		require.NoError(t, err)
		assert.Equal(t, int64(111), r0.Int64(), "market %d must keep old reserves", i)
		assert.Equal(t, int64(222), r1.Int64(), "market %d must keep old reserves", i)
	}
}

func TestUpdateReservesRejectsMisalignedBatch(t *testing.T) {
	caller := newFakeLookupCaller(t)
	caller.dropLast = true
	query, err := NewFlashQuery(lookupAddr, caller)
	require.NoError(t, err)

	markets := directoryMarkets(t, caller, 3)
	err = query.UpdateReserves(context.Background(), markets)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 3 entries, got 2")
}

func TestUpdateReservesEmptyList(t *testing.T) {
	caller := newFakeLookupCaller(t)
	query, err := NewFlashQuery(lookupAddr, caller)
	require.NoError(t, err)

	require.NoError(t, query.UpdateReserves(context.Background(), nil))
	assert.Equal(t, 0, caller.calls, "an empty refresh must not touch the node")
}

func TestFetchPairs(t *testing.T) {
	caller := newFakeLookupCaller(t)
	factory := common.BytesToAddress([]byte{0xfa})
	caller.pairs[factory] = [][3]common.Address{
		{common.BytesToAddress([]byte{1}), common.BytesToAddress([]byte{2}), common.BytesToAddress([]byte{3})},
		{common.BytesToAddress([]byte{4}), common.BytesToAddress([]byte{5}), common.BytesToAddress([]byte{6})},
	}

	query, err := NewFlashQuery(lookupAddr, caller)
	require.NoError(t, err)

	triples, err := query.FetchPairs(context.Background(), factory, big.NewInt(0), big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, caller.pairs[factory], triples)

	// A range past the end is a short (empty) result, not an error.
	triples, err = query.FetchPairs(context.Background(), factory, big.NewInt(10), big.NewInt(20))
	require.NoError(t, err)
	assert.Empty(t, triples)
}
