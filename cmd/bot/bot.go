// Package bot wires the arbitrage engine: market discovery, reserve refresh,
// opportunity search, and bundle submission, driven by new block heads.
package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/michaelpento.lv/arbbot/arbitrage"
	"github.com/michaelpento.lv/arbbot/blocks"
	"github.com/michaelpento.lv/arbbot/bundle"
	"github.com/michaelpento.lv/arbbot/config"
	"github.com/michaelpento.lv/arbbot/executor"
	"github.com/michaelpento.lv/arbbot/flashbots"
	"github.com/michaelpento.lv/arbbot/gas"
	"github.com/michaelpento.lv/arbbot/market"
	"github.com/michaelpento.lv/arbbot/utils/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var probeVolume = new(big.Int).Div(big.NewInt(1000000000000000000), big.NewInt(100))

// Bot is one running arbitrage engine instance.
type Bot struct {
	cfg    *config.Config
	logger *zap.Logger

	client    *ethclient.Client
	query     *market.FlashQuery
	scanner   *arbitrage.Scanner
	optimizer *arbitrage.Optimizer
	pipeline  *executor.Pipeline
	estimator *gas.Estimator
	watcher   *blocks.Watcher

	markets []market.Market

	cycleMetrics      *metrics.CycleMetrics
	arbMetrics        *metrics.ArbitrageMetrics
	submissionMetrics *metrics.SubmissionMetrics

	lastBlock uint64
	wg        sync.WaitGroup
}

// New creates a bot from validated config and key material.
func New(cfg *config.Config, secure *config.SecureConfig, logger *zap.Logger) (*Bot, error) {
	endpoint := cfg.WSEndpoint
	if endpoint == "" {
		endpoint = cfg.RPCEndpoint
	}
	client, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node: %w", err)
	}

	walletKey, err := crypto.HexToECDSA(strip0x(secure.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}
	relayKey, err := crypto.HexToECDSA(strip0x(secure.FlashbotsKey))
	if err != nil {
		return nil, fmt.Errorf("invalid relay signing key: %w", err)
	}

	base := common.HexToAddress(cfg.BaseToken)
	lookup := common.HexToAddress(cfg.LookupAddress)
	executorAddr := common.HexToAddress(cfg.ExecutorAddress)

	query, err := market.NewFlashQuery(lookup, client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create lookup client: %w", err)
	}

	limiter := rate.NewLimiter(
		rate.Limit(cfg.RelayRateLimit.RequestsPerSecond),
		cfg.RelayRateLimit.BurstSize,
	)
	relay, err := flashbots.NewClient(cfg.RelayURL, relayKey, limiter)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create relay client: %w", err)
	}

	builder, err := bundle.NewBuilder(executorAddr, base)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create bundle builder: %w", err)
	}

	estimator := gas.NewEstimator(client, logger)

	pipeline := executor.NewPipeline(client, relay, builder, estimator, walletKey,
		new(big.Int).SetUint64(cfg.ChainID),
		executor.Config{
			GasCeiling:       cfg.GasCeiling,
			RewardPercentage: cfg.MinerRewardPercentage,
		},
		logger)

	submissionMetrics := metrics.NewSubmissionMetrics("arbbot_submission")
	pipeline.SetMetrics(submissionMetrics)

	return &Bot{
		cfg:               cfg,
		logger:            logger,
		client:            client,
		query:             query,
		scanner:           arbitrage.NewScanner(base, probeVolume, logger),
		optimizer:         arbitrage.NewOptimizer(base, cfg.MinProfitWei(), logger),
		pipeline:          pipeline,
		estimator:         estimator,
		watcher:           blocks.NewWatcher(client, cfg.BlockPollInterval, logger),
		cycleMetrics:      metrics.NewCycleMetrics("arbbot_cycle"),
		arbMetrics:        metrics.NewArbitrageMetrics("arbbot_arbitrage"),
		submissionMetrics: submissionMetrics,
	}, nil
}

// Start discovers markets and begins the block-driven trading loop. It
// returns once startup is complete; the loop runs until ctx is canceled.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting arbitrage bot")

	factories := make([]common.Address, len(b.cfg.FactoryAddresses))
	for i, addr := range b.cfg.FactoryAddresses {
		factories[i] = common.HexToAddress(addr)
	}

	markets, err := market.LoadMarkets(ctx, b.query, factories, b.logger)
	if err != nil {
		return fmt.Errorf("market discovery failed: %w", err)
	}
	b.markets = markets
	b.logger.Info("Market discovery complete", zap.Int("markets", len(markets)))

	if b.cfg.PrometheusEnabled {
		go metrics.Serve(b.cfg.PrometheusEndpoint)
	}

	b.watcher.Start(ctx)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(ctx)
	}()

	return nil
}

// Stop shuts the bot down and waits for the trading loop to exit.
func (b *Bot) Stop() {
	b.logger.Info("Stopping arbitrage bot")
	b.watcher.Stop()
	b.estimator.Stop()
	b.wg.Wait()
	b.client.Close()
}

// run consumes block heads one at a time. The watcher keeps only the newest
// pending head, so cycles never queue up behind a slow evaluation.
func (b *Bot) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case blockNumber, ok := <-b.watcher.Heads():
			if !ok {
				return
			}
			if b.lastBlock != 0 && blockNumber > b.lastBlock+1 {
				b.cycleMetrics.SkippedTriggers.Add(float64(blockNumber - b.lastBlock - 1))
			}
			b.lastBlock = blockNumber
			b.runCycle(ctx, blockNumber)
		}
	}
}

// runCycle executes one full pass: refresh reserves, rebuild the index, find
// opportunities, and submit the best one that survives the gates.
func (b *Bot) runCycle(ctx context.Context, blockNumber uint64) {
	started := time.Now()
	b.cycleMetrics.Cycles.Inc()
	defer func() {
		b.cycleMetrics.CycleDuration.Observe(time.Since(started).Seconds())
	}()

	if err := b.query.UpdateReserves(ctx, b.markets); err != nil {
		b.cycleMetrics.ReserveErrors.Inc()
		b.logger.Error("Reserve refresh failed, skipping cycle",
			zap.Uint64("block", blockNumber),
			zap.Error(err))
		return
	}
	b.cycleMetrics.ReserveUpdates.Inc()

	base := common.HexToAddress(b.cfg.BaseToken)
	idx := market.BuildIndex(b.markets, base, b.cfg.MinBaseReserveWei())
	b.cycleMetrics.MarketsIndexed.Set(float64(idx.Len()))

	opportunities := b.optimizer.FindOpportunities(b.scanner, idx)
	b.arbMetrics.Opportunities.Add(float64(len(opportunities)))
	if len(opportunities) == 0 {
		b.logger.Debug("No opportunities this cycle",
			zap.Uint64("block", blockNumber),
			zap.Int("markets", idx.Len()),
			zap.Duration("elapsed", time.Since(started)))
		return
	}
	b.arbMetrics.BestProfitWei.Set(weiToFloat(opportunities[0].Profit))

	result, err := b.pipeline.SubmitBest(ctx, opportunities, blockNumber)
	if err != nil {
		if errors.Is(err, executor.ErrNoOpportunitySubmitted) {
			b.submissionMetrics.EmptyCycles.Inc()
			b.logger.Info("No opportunity survived submission gates",
				zap.Uint64("block", blockNumber),
				zap.Int("candidates", len(opportunities)))
		} else {
			b.logger.Error("Submission failed", zap.Uint64("block", blockNumber), zap.Error(err))
		}
		return
	}

	b.submissionMetrics.Submitted.Inc()
	b.logger.Info("Cycle complete",
		zap.Uint64("block", blockNumber),
		zap.String("tx_hash", result.TxHash.Hex()),
		zap.Uint64s("target_blocks", result.TargetBlocks),
		zap.String("profit", result.Opportunity.Profit.String()),
		zap.Duration("elapsed", time.Since(started)))
}

func strip0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// weiToFloat is for gauges only; precision loss above 2^53 wei is acceptable
// in a metric.
func weiToFloat(wei *big.Int) float64 {
	f, _ := new(big.Float).SetInt(wei).Float64()
	return f
}
