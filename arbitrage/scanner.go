package arbitrage

import (
	"math/big"

	"github.com/michaelpento.lv/arbbot/market"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Scanner detects crossed market pairs for one token at a time.
type Scanner struct {
	base   common.Address
	probe  *big.Int
	logger *zap.Logger
}

// NewScanner creates a scanner. probe is the token amount used to compare
// effective prices across markets; a small fixed probe keeps the comparison
// insensitive to depth differences.
func NewScanner(base common.Address, probe *big.Int, logger *zap.Logger) *Scanner {
	return &Scanner{
		base:   base,
		probe:  probe,
		logger: logger,
	}
}

type probedMarket struct {
	market    market.Market
	buyPrice  *big.Int // base-asset cost to acquire the probe amount
	sellPrice *big.Int // base-asset proceeds of selling the probe amount
}

// FindCrossedMarkets compares every ordered pair of the token's markets and
// returns those where one market's sell price exceeds another's buy price.
// O(n²) over the markets for the token, which stay in the single digits after
// liquidity filtering.
func (s *Scanner) FindCrossedMarkets(token common.Address, markets []market.Market) []CrossedPair {
	probed := make([]probedMarket, 0, len(markets))
	for _, m := range markets {
		buyPrice, err := m.GetTokensIn(s.base, token, s.probe)
		if err != nil {
			s.logger.Debug("Skipping market, buy quote failed",
				zap.String("market", m.Address().Hex()),
				zap.Error(err))
			continue
		}

		sellPrice, err := m.GetTokensOut(token, s.base, s.probe)
		if err != nil {
			s.logger.Debug("Skipping market, sell quote failed",
				zap.String("market", m.Address().Hex()),
				zap.Error(err))
			continue
		}

		probed = append(probed, probedMarket{market: m, buyPrice: buyPrice, sellPrice: sellPrice})
	}

	var crossed []CrossedPair
	for _, sell := range probed {
		for _, buy := range probed {
			if sell.market.Address() == buy.market.Address() {
				continue
			}
			if sell.sellPrice.Cmp(buy.buyPrice) > 0 {
				crossed = append(crossed, CrossedPair{
					Token:   token,
					BuyFrom: buy.market,
					SellTo:  sell.market,
				})
			}
		}
	}

	return crossed
}
