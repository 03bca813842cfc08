package arbitrage

import (
	"math/big"
	"sort"

	"github.com/michaelpento.lv/arbbot/market"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var ether = big.NewInt(1000000000000000000)

// Candidate trade volumes, ascending. Profit over volume rises then falls for
// constant-product pools; the ladder plus one midpoint refinement approximates
// the maximum without a full unimodal search.
var testVolumes = []*big.Int{
	new(big.Int).Div(ether, big.NewInt(100)),
	new(big.Int).Div(ether, big.NewInt(10)),
	new(big.Int).Div(ether, big.NewInt(6)),
	new(big.Int).Div(ether, big.NewInt(4)),
	new(big.Int).Div(ether, big.NewInt(2)),
	new(big.Int).Set(ether),
	new(big.Int).Mul(ether, big.NewInt(2)),
	new(big.Int).Mul(ether, big.NewInt(5)),
	new(big.Int).Mul(ether, big.NewInt(10)),
}

// Optimizer searches the trade volume that maximizes round-trip profit for a
// crossed pair, and assembles the per-cycle opportunity list.
type Optimizer struct {
	base      common.Address
	minProfit *big.Int
	logger    *zap.Logger
}

// NewOptimizer creates an optimizer. minProfit is the acceptance floor in
// base-asset units; opportunities at or below it are discarded.
func NewOptimizer(base common.Address, minProfit *big.Int, logger *zap.Logger) *Optimizer {
	return &Optimizer{
		base:      base,
		minProfit: minProfit,
		logger:    logger,
	}
}

// profitAt evaluates the round trip for one volume: buy the token with volume
// base asset on BuyFrom, sell everything acquired on SellTo, net of volume.
// Uses the same quoting functions the bundle builder uses, so the predicted
// and built amounts cannot drift.
func (o *Optimizer) profitAt(pair CrossedPair, volume *big.Int) (*big.Int, error) {
	tokensOut, err := pair.BuyFrom.GetTokensOut(o.base, pair.Token, volume)
	if err != nil {
		return nil, err
	}

	proceeds, err := pair.SellTo.GetTokensOut(pair.Token, o.base, tokensOut)
	if err != nil {
		return nil, err
	}

	return new(big.Int).Sub(proceeds, volume), nil
}

// bestForPair walks the volume ladder for one crossed pair. The first ladder
// point whose profit drops below the running best triggers a single midpoint
// probe between it and the best volume, after which the walk stops.
func (o *Optimizer) bestForPair(pair CrossedPair) (volume, profit *big.Int) {
	var bestVolume, bestProfit *big.Int

	for _, size := range testVolumes {
		p, err := o.profitAt(pair, size)
		if err != nil {
			break
		}

		if bestProfit != nil && p.Cmp(bestProfit) < 0 {
			trySize := new(big.Int).Add(size, bestVolume)
			trySize.Div(trySize, big.NewInt(2))

			tryProfit, err := o.profitAt(pair, trySize)
			if err == nil && tryProfit.Cmp(bestProfit) > 0 {
				bestVolume = trySize
				bestProfit = tryProfit
			}
			break
		}

		bestVolume = size
		bestProfit = p
	}

	return bestVolume, bestProfit
}

// BestOpportunity evaluates every crossed pair for one token and returns the
// most profitable one, or nil if none clears the acceptance floor.
func (o *Optimizer) BestOpportunity(token common.Address, pairs []CrossedPair) *Opportunity {
	var best *Opportunity

	for _, pair := range pairs {
		volume, profit := o.bestForPair(pair)
		if profit == nil || profit.Cmp(o.minProfit) <= 0 {
			continue
		}

		if best == nil || profit.Cmp(best.Profit) > 0 {
			best = &Opportunity{
				Token:   token,
				BuyFrom: pair.BuyFrom,
				SellTo:  pair.SellTo,
				Volume:  volume,
				Profit:  profit,
			}
		}
	}

	return best
}

// FindOpportunities runs the scanner and optimizer over every indexed token
// and returns at most one opportunity per token, sorted descending by profit.
func (o *Optimizer) FindOpportunities(scanner *Scanner, idx *market.GroupedMarkets) []*Opportunity {
	var opportunities []*Opportunity

	for _, token := range idx.Tokens() {
		crossed := scanner.FindCrossedMarkets(token, idx.MarketsForToken(token))
		if len(crossed) == 0 {
			continue
		}

		opp := o.BestOpportunity(token, crossed)
		if opp == nil {
			continue
		}

		o.logger.Debug("Found opportunity",
			zap.String("token", token.Hex()),
			zap.String("buy_from", opp.BuyFrom.Address().Hex()),
			zap.String("sell_to", opp.SellTo.Address().Hex()),
			zap.String("volume", opp.Volume.String()),
			zap.String("profit", opp.Profit.String()))
		opportunities = append(opportunities, opp)
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].Profit.Cmp(opportunities[j].Profit) > 0
	})

	return opportunities
}
