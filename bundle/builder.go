// Package bundle turns an evaluated opportunity into the ordered call
// sequence executed atomically by the on-chain executor contract.
package bundle

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/michaelpento.lv/arbbot/arbitrage"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Executor contract ABI. The contract pulls the volume from its own WETH
// balance, runs the targets in order, pays the coinbase, and reverts the
// whole invocation if the proceeds fall short.
const executorABIJson = `[{
	"inputs": [
		{"name": "_wethAmountToFirstMarket", "type": "uint256"},
		{"name": "_ethAmountToCoinbase", "type": "uint256"},
		{"name": "_targets", "type": "address[]"},
		{"name": "_payloads", "type": "bytes[]"}
	],
	"name": "uniswapWeth",
	"outputs": [],
	"stateMutability": "payable",
	"type": "function"
}]`

// TradeBundle is the ordered, atomically-executed call sequence for one
// buy-then-sell hop, plus the block producer payment. Targets and Payloads
// are index-aligned and must execute strictly in order.
type TradeBundle struct {
	Targets     []common.Address
	Payloads    [][]byte
	Volume      *big.Int
	MinerReward *big.Int
}

// Builder assembles trade bundles against a fixed executor contract.
type Builder struct {
	executor    common.Address
	base        common.Address
	executorABI abi.ABI
}

// NewBuilder creates a builder. executor is the deployed execution contract
// that owns the base-asset float and receives the final proceeds.
func NewBuilder(executor, base common.Address) (*Builder, error) {
	parsedABI, err := abi.JSON(strings.NewReader(executorABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse executor ABI: %w", err)
	}

	return &Builder{
		executor:    executor,
		base:        base,
		executorABI: parsedABI,
	}, nil
}

// Build produces the ordered call sequence for opp: the buy-from market sells
// base asset and forwards its token output straight to the sell-to market,
// which sells it back to base asset delivered to the executor. The
// intermediate amount is computed with the same quoting function the
// optimizer used, so the built bundle matches the evaluated one exactly.
func (b *Builder) Build(opp *arbitrage.Opportunity, rewardPercentage int64) (*TradeBundle, error) {
	if rewardPercentage < 0 || rewardPercentage > 100 {
		return nil, fmt.Errorf("reward percentage %d out of range [0,100]", rewardPercentage)
	}
	if !opp.SellTo.ReceivesTokensDirectly() {
		// The direct-forward hand-off is the only path the executor
		// supports today; markets needing an explicit forwarding call
		// would require an extra target between the two swaps.
		return nil, fmt.Errorf("market %s cannot receive tokens directly", opp.SellTo.Address().Hex())
	}

	buyCall, err := opp.BuyFrom.SellTokens(b.base, opp.Volume, opp.SellTo.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to build buy call: %w", err)
	}

	intermediate, err := opp.BuyFrom.GetTokensOut(b.base, opp.Token, opp.Volume)
	if err != nil {
		return nil, fmt.Errorf("failed to quote intermediate amount: %w", err)
	}

	sellCall, err := opp.SellTo.SellTokens(opp.Token, intermediate, b.executor)
	if err != nil {
		return nil, fmt.Errorf("failed to build sell call: %w", err)
	}

	reward := new(big.Int).Mul(opp.Profit, big.NewInt(rewardPercentage))
	reward.Div(reward, big.NewInt(100))

	return &TradeBundle{
		Targets:     []common.Address{opp.BuyFrom.Address(), opp.SellTo.Address()},
		Payloads:    [][]byte{buyCall, sellCall},
		Volume:      new(big.Int).Set(opp.Volume),
		MinerReward: reward,
	}, nil
}

// InvocationData packs the single executor call that runs the whole bundle
// atomically on chain.
func (b *Builder) InvocationData(tb *TradeBundle) ([]byte, error) {
	if len(tb.Targets) != len(tb.Payloads) {
		return nil, fmt.Errorf("bundle has %d targets but %d payloads", len(tb.Targets), len(tb.Payloads))
	}

	data, err := b.executorABI.Pack("uniswapWeth", tb.Volume, tb.MinerReward, tb.Targets, tb.Payloads)
	if err != nil {
		return nil, fmt.Errorf("failed to pack executor call: %w", err)
	}
	return data, nil
}

// Executor returns the execution contract address the bundle targets.
func (b *Builder) Executor() common.Address {
	return b.executor
}
