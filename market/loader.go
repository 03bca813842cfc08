package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// pairBatchSize bounds one getPairsByIndexRange call. Mainnet factories hold
// hundreds of thousands of pairs, so discovery walks them in ranges.
const pairBatchSize = 1000

// LoadMarkets discovers every pair of every factory and wraps each as a
// constant-product market. A batch shorter than the requested range ends
// that factory's walk.
func LoadMarkets(ctx context.Context, dir Directory, factories []common.Address, logger *zap.Logger) ([]Market, error) {
	var markets []Market

	for _, factory := range factories {
		count := 0
		for start := int64(0); ; start += pairBatchSize {
			batch, err := dir.FetchPairs(ctx, factory,
				big.NewInt(start), big.NewInt(start+pairBatchSize))
			if err != nil {
				return nil, fmt.Errorf("failed to load pairs from factory %s: %w", factory.Hex(), err)
			}

			for _, triple := range batch {
				pair, err := NewUniswappyV2Pair(triple[2], triple[0], triple[1], "uniswap-v2")
				if err != nil {
					logger.Warn("Skipping malformed pair",
						zap.String("pair", triple[2].Hex()),
						zap.Error(err))
					continue
				}
				markets = append(markets, pair)
				count++
			}

			if len(batch) < pairBatchSize {
				break
			}
		}

		logger.Info("Loaded factory pairs",
			zap.String("factory", factory.Hex()),
			zap.Int("pairs", count))
	}

	return markets, nil
}
