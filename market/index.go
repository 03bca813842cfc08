package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// GroupedMarkets indexes markets by the non-base token they trade against the
// base asset. Built once per refresh cycle; never mutated after construction.
type GroupedMarkets struct {
	base    common.Address
	byToken map[common.Address][]Market
	all     []Market
}

// BuildIndex groups markets pairing base with some other token, dropping any
// whose base reserve sits below minBaseReserve. Markets that do not include
// the base asset at all are ignored.
func BuildIndex(markets []Market, base common.Address, minBaseReserve *big.Int) *GroupedMarkets {
	idx := &GroupedMarkets{
		base:    base,
		byToken: make(map[common.Address][]Market),
	}

	for _, m := range markets {
		if !m.HasToken(base) {
			continue
		}

		baseReserve, err := m.ReserveOf(base)
		if err != nil || baseReserve.Cmp(minBaseReserve) < 0 {
			continue
		}

		tokens := m.Tokens()
		token := tokens[0]
		if token == base {
			token = tokens[1]
		}

		idx.byToken[token] = append(idx.byToken[token], m)
		idx.all = append(idx.all, m)
	}

	return idx
}

// MarketsForToken returns all indexed markets pairing token with the base asset.
func (g *GroupedMarkets) MarketsForToken(token common.Address) []Market {
	return g.byToken[token]
}

// Tokens returns every non-base token with at least one indexed market.
func (g *GroupedMarkets) Tokens() []common.Address {
	tokens := make([]common.Address, 0, len(g.byToken))
	for token := range g.byToken {
		tokens = append(tokens, token)
	}
	return tokens
}

// Len returns the number of indexed markets.
func (g *GroupedMarkets) Len() int {
	return len(g.all)
}
