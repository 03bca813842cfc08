// Package arbitrage finds profitable round trips between markets quoting the
// same token against the base asset.
package arbitrage

import (
	"math/big"

	"github.com/michaelpento.lv/arbbot/market"

	"github.com/ethereum/go-ethereum/common"
)

// CrossedPair is an ordered market pair where selling on SellTo yields more
// base asset than buying the same amount on BuyFrom costs.
type CrossedPair struct {
	Token   common.Address
	BuyFrom market.Market
	SellTo  market.Market
}

// Opportunity is an evaluated crossed pair: the volume of base asset to spend
// on BuyFrom and the net profit of the round trip, both in base-asset units.
// Immutable once produced; consumed by the bundle builder.
type Opportunity struct {
	Token   common.Address
	BuyFrom market.Market
	SellTo  market.Market
	Volume  *big.Int
	Profit  *big.Int
}
