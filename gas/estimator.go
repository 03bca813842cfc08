// Package gas tracks current network fee levels for pricing executor
// transactions.
package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// FeeClient is the node surface the estimator polls.
type FeeClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Estimator caches the latest base fee and priority fee suggestion, refreshed
// on a fixed interval so bundle construction never blocks on an RPC call.
type Estimator struct {
	client       FeeClient
	logger       *zap.Logger
	baseFee      *big.Int
	priorityFee  *big.Int
	mu           sync.RWMutex
	updateTicker *time.Ticker
	done         chan struct{}
}

// NewEstimator creates an estimator and starts its refresh loop.
func NewEstimator(client FeeClient, logger *zap.Logger) *Estimator {
	return newEstimator(client, time.Second, logger)
}

func newEstimator(client FeeClient, interval time.Duration, logger *zap.Logger) *Estimator {
	e := &Estimator{
		client:       client,
		logger:       logger,
		baseFee:      big.NewInt(0),
		priorityFee:  big.NewInt(0),
		updateTicker: time.NewTicker(interval),
		done:         make(chan struct{}),
	}
	go e.updateLoop()
	return e
}

func (e *Estimator) updateLoop() {
	for {
		select {
		case <-e.done:
			return
		case <-e.updateTicker.C:
			if err := e.update(); err != nil {
				e.logger.Error("Failed to update gas prices", zap.Error(err))
			}
		}
	}
}

func (e *Estimator) update() error {
	ctx := context.Background()

	header, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get latest header: %w", err)
	}
	if header.BaseFee == nil {
		return fmt.Errorf("latest header carries no base fee; endpoint is not post-london")
	}

	priorityFee, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("failed to get priority fee: %w", err)
	}

	e.mu.Lock()
	e.baseFee = header.BaseFee
	e.priorityFee = priorityFee
	e.mu.Unlock()

	return nil
}

// SuggestFees returns the fee cap and tip cap for a transaction that should
// land in the next block or two. The cap leaves headroom for one full base
// fee increase.
func (e *Estimator) SuggestFees() (gasFeeCap, gasTipCap *big.Int) {
	e.mu.RLock()
	baseFee := new(big.Int).Set(e.baseFee)
	gasTipCap = new(big.Int).Set(e.priorityFee)
	e.mu.RUnlock()

	gasFeeCap = new(big.Int).Mul(baseFee, big.NewInt(2))
	gasFeeCap.Add(gasFeeCap, gasTipCap)
	return gasFeeCap, gasTipCap
}

// EstimateGasCost returns the worst-case wei cost of gasLimit at current fees.
func (e *Estimator) EstimateGasCost(gasLimit uint64) *big.Int {
	gasFeeCap, _ := e.SuggestFees()
	return new(big.Int).Mul(gasFeeCap, new(big.Int).SetUint64(gasLimit))
}

// Stop halts the refresh loop and releases its goroutine. Stop at most once.
func (e *Estimator) Stop() {
	e.updateTicker.Stop()
	close(e.done)
}
