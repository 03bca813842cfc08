// Package executor drives one opportunity through the submission gates:
// gas estimation, relay simulation, and redundant block-targeted submission.
package executor

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/michaelpento.lv/arbbot/arbitrage"
	"github.com/michaelpento.lv/arbbot/bundle"
	"github.com/michaelpento.lv/arbbot/flashbots"
	"github.com/michaelpento.lv/arbbot/utils/metrics"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ErrNoOpportunitySubmitted is returned when every candidate was rejected by
// a gate and the cycle ends with nothing submitted.
var ErrNoOpportunitySubmitted = errors.New("executor: no opportunity survived submission gates")

// State tracks a candidate's progress through the pipeline.
type State int

const (
	StateBuilt State = iota
	StateEstimated
	StateSimulated
	StateSubmitted
	StateDone
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateEstimated:
		return "estimated"
	case StateSimulated:
		return "simulated"
	case StateSubmitted:
		return "submitted"
	case StateDone:
		return "done"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// EthClient is the node-side surface the pipeline needs.
type EthClient interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Relay is the private bundle channel.
type Relay interface {
	CallBundle(ctx context.Context, b *flashbots.Bundle) (*flashbots.Simulation, error)
	SendBundle(ctx context.Context, b *flashbots.Bundle) error
}

// FeeSource supplies current fee caps for the executor transaction.
type FeeSource interface {
	SuggestFees() (gasFeeCap, gasTipCap *big.Int)
}

// Config holds pipeline tunables.
type Config struct {
	// GasCeiling rejects estimates above it as anomalous; a healthy
	// two-hop bundle sits far below.
	GasCeiling uint64

	// RewardPercentage of net profit paid to the block producer, 0-100.
	RewardPercentage int64
}

// Result records what was submitted and where.
type Result struct {
	Opportunity  *arbitrage.Opportunity
	TxHash       common.Hash
	TargetBlocks []uint64
}

// Pipeline signs and submits executor transactions as single-tx bundles.
type Pipeline struct {
	client   EthClient
	relay    Relay
	builder  *bundle.Builder
	fees     FeeSource
	signer   *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	cfg      Config
	logger   *zap.Logger
	txSigner types.Signer
	metrics  *metrics.SubmissionMetrics
}

// SetMetrics attaches gate counters. Optional; a nil receiver field disables
// instrumentation.
func (p *Pipeline) SetMetrics(m *metrics.SubmissionMetrics) {
	p.metrics = m
}

// NewPipeline creates a pipeline. signerKey is the wallet that owns the
// executor contract and pays for gas.
func NewPipeline(client EthClient, relay Relay, builder *bundle.Builder, fees FeeSource,
	signerKey *ecdsa.PrivateKey, chainID *big.Int, cfg Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		client:   client,
		relay:    relay,
		builder:  builder,
		fees:     fees,
		signer:   signerKey,
		from:     crypto.PubkeyToAddress(signerKey.PublicKey),
		chainID:  chainID,
		cfg:      cfg,
		logger:   logger,
		txSigner: types.LatestSignerForChainID(chainID),
	}
}

// SubmitBest walks the opportunity list in order and submits the first one
// that survives both gates, targeting blockNumber+1 and blockNumber+2.
// Rejected candidates fall through to the next; exhaustion returns
// ErrNoOpportunitySubmitted.
func (p *Pipeline) SubmitBest(ctx context.Context, opportunities []*arbitrage.Opportunity, blockNumber uint64) (*Result, error) {
	for _, opp := range opportunities {
		result, err := p.submit(ctx, opp, blockNumber)
		if err != nil {
			p.logger.Warn("Opportunity rejected",
				zap.String("token", opp.Token.Hex()),
				zap.String("profit", opp.Profit.String()),
				zap.Error(err))
			continue
		}
		return result, nil
	}
	return nil, ErrNoOpportunitySubmitted
}

// submit runs one candidate through every gate.
func (p *Pipeline) submit(ctx context.Context, opp *arbitrage.Opportunity, blockNumber uint64) (*Result, error) {
	state := StateBuilt

	tb, err := p.builder.Build(opp, p.cfg.RewardPercentage)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	data, err := p.builder.InvocationData(tb)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	// Estimate gate.
	executorAddr := p.builder.Executor()
	gasEstimate, err := p.client.EstimateGas(ctx, ethereum.CallMsg{
		From: p.from,
		To:   &executorAddr,
		Data: data,
	})
	if err != nil {
		if p.metrics != nil {
			p.metrics.EstimateRejects.Inc()
		}
		return nil, fmt.Errorf("gas estimation: %w", err)
	}
	if gasEstimate > p.cfg.GasCeiling {
		if p.metrics != nil {
			p.metrics.EstimateRejects.Inc()
		}
		return nil, fmt.Errorf("gas estimate %d exceeds ceiling %d", gasEstimate, p.cfg.GasCeiling)
	}
	state = StateEstimated
	p.logger.Debug("Pipeline state", zap.String("state", state.String()), zap.Uint64("gas_estimate", gasEstimate))

	signedTx, err := p.signTx(ctx, executorAddr, data, gasEstimate*2)
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	raw, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding: %w", err)
	}

	// Simulate gate, against the next block.
	targetBlock := blockNumber + 1
	sim, err := p.relay.CallBundle(ctx, &flashbots.Bundle{
		Txs:         [][]byte{raw},
		BlockNumber: new(big.Int).SetUint64(targetBlock),
	})
	if err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}
	if !sim.Success {
		if p.metrics != nil {
			p.metrics.SimulateRejects.Inc()
		}
		if sim.FirstRevert != "" {
			return nil, fmt.Errorf("simulation reverted at tx %s: %s", sim.FirstRevert, sim.Error)
		}
		return nil, fmt.Errorf("simulation failed: %s", sim.Error)
	}
	if p.metrics != nil {
		p.metrics.GasUsed.Observe(float64(sim.GasUsed))
	}
	state = StateSimulated
	p.logger.Debug("Pipeline state", zap.String("state", state.String()), zap.Uint64("sim_gas_used", sim.GasUsed))

	// Submit the identical bundle for two consecutive blocks, concurrently.
	// A fault in one submission must not cancel the other.
	targets := []uint64{targetBlock, targetBlock + 1}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, block := range targets {
		wg.Add(1)
		go func(i int, block uint64) {
			defer wg.Done()
			errs[i] = p.relay.SendBundle(ctx, &flashbots.Bundle{
				Txs:         [][]byte{raw},
				BlockNumber: new(big.Int).SetUint64(block),
			})
		}(i, block)
	}
	wg.Wait()
	state = StateSubmitted
	p.logger.Debug("Pipeline state", zap.String("state", state.String()))

	accepted := 0
	for i, err := range errs {
		if err != nil {
			p.logger.Warn("Bundle submission failed",
				zap.Uint64("target_block", targets[i]),
				zap.Error(err))
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return nil, fmt.Errorf("all %d submissions failed: %w", len(targets), errs[0])
	}
	state = StateDone

	p.logger.Info("Bundle submitted",
		zap.String("state", state.String()),
		zap.String("tx_hash", signedTx.Hash().Hex()),
		zap.Uint64s("target_blocks", targets),
		zap.String("profit", opp.Profit.String()),
		zap.String("miner_reward", tb.MinerReward.String()))

	return &Result{
		Opportunity:  opp,
		TxHash:       signedTx.Hash(),
		TargetBlocks: targets,
	}, nil
}

// signTx builds and signs the EIP-1559 executor transaction.
func (p *Pipeline) signTx(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Transaction, error) {
	nonce, err := p.client.PendingNonceAt(ctx, p.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasFeeCap, gasTipCap := p.fees.SuggestFees()
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   p.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     new(big.Int),
		Data:      data,
	})

	return types.SignTx(tx, p.txSigner, p.signer)
}
