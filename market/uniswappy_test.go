package market

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testToken0 = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testToken1 = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testPair   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	recipient  = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func newTestPair(t *testing.T, reserve0, reserve1 int64) *UniswappyV2Pair {
	t.Helper()

	pair, err := NewUniswappyV2Pair(testPair, testToken0, testToken1, "uniswap-v2")
	require.NoError(t, err)

	require.NoError(t, pair.SetReserves(map[common.Address]*big.Int{
		testToken0: new(big.Int).Mul(big.NewInt(reserve0), big.NewInt(1e18)),
		testToken1: new(big.Int).Mul(big.NewInt(reserve1), big.NewInt(1e18)),
	}))
	return pair
}

func TestNewPairRejectsIdenticalTokens(t *testing.T) {
	_, err := NewUniswappyV2Pair(testPair, testToken0, testToken0, "uniswap-v2")
	assert.Error(t, err)
}

func TestSetReservesValidation(t *testing.T) {
	pair, err := NewUniswappyV2Pair(testPair, testToken0, testToken1, "uniswap-v2")
	require.NoError(t, err)

	err = pair.SetReserves(map[common.Address]*big.Int{
		testToken0: big.NewInt(1),
	})
	assert.Error(t, err, "one balance should be rejected")

	err = pair.SetReserves(map[common.Address]*big.Int{
		testToken0: big.NewInt(1),
		recipient:  big.NewInt(1),
	})
	assert.ErrorIs(t, err, ErrUnknownToken)

	err = pair.SetReserves(map[common.Address]*big.Int{
		testToken0: big.NewInt(-1),
		testToken1: big.NewInt(1),
	})
	assert.Error(t, err, "negative balance should be rejected")
}

func TestSetReservesReplacesWholesale(t *testing.T) {
	pair := newTestPair(t, 100, 100)

	require.NoError(t, pair.SetReserves(map[common.Address]*big.Int{
		testToken0: big.NewInt(7),
		testToken1: big.NewInt(9),
	}))

	r0, err := pair.ReserveOf(testToken0)
	require.NoError(t, err)
	r1, err := pair.ReserveOf(testToken1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), r0.Int64())
	assert.Equal(t, int64(9), r1.Int64())
}

func TestReserveOfUnknownToken(t *testing.T) {
	pair := newTestPair(t, 100, 100)
	_, err := pair.ReserveOf(recipient)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestQuotesMatchPureMath(t *testing.T) {
	pair := newTestPair(t, 100, 80)
	amountIn := big.NewInt(1e18)

	out, err := pair.GetTokensOut(testToken0, testToken1, amountIn)
	require.NoError(t, err)

	expected, err := GetAmountOut(
		new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18)),
		new(big.Int).Mul(big.NewInt(80), big.NewInt(1e18)),
		amountIn,
	)
	require.NoError(t, err)
	assert.Equal(t, expected, out)

	_, err = pair.GetTokensOut(testToken0, recipient, amountIn)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestSellTokensOutputSlot(t *testing.T) {
	pair := newTestPair(t, 100, 100)
	parsedABI, err := abi.JSON(strings.NewReader(pairSwapABIJson))
	require.NoError(t, err)

	amountIn := big.NewInt(1e18)
	expectedOut, err := pair.GetTokensOut(testToken0, testToken1, amountIn)
	require.NoError(t, err)

	// Selling token0 pays out token1, so only amount1Out is set.
	data, err := pair.SellTokens(testToken0, amountIn, recipient)
	require.NoError(t, err)
	expected, err := parsedABI.Pack("swap", new(big.Int), expectedOut, recipient, []byte{})
	require.NoError(t, err)
	assert.Equal(t, expected, data)

	// And the reverse direction fills amount0Out.
	expectedOut, err = pair.GetTokensOut(testToken1, testToken0, amountIn)
	require.NoError(t, err)
	data, err = pair.SellTokens(testToken1, amountIn, recipient)
	require.NoError(t, err)
	expected, err = parsedABI.Pack("swap", expectedOut, new(big.Int), recipient, []byte{})
	require.NoError(t, err)
	assert.Equal(t, expected, data)
}

func TestSellTokensUnknownToken(t *testing.T) {
	pair := newTestPair(t, 100, 100)
	_, err := pair.SellTokens(recipient, big.NewInt(1), recipient)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestReceivesTokensDirectly(t *testing.T) {
	pair := newTestPair(t, 100, 100)
	assert.True(t, pair.ReceivesTokensDirectly())
}
