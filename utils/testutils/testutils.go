package testutils

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/llamalend/sdk"
	"github.com/michaelpento.lv/llamalend/sdk/fixture"
)

// Borrower holds a loan in the bundled lend market
var Borrower = common.HexToAddress("0x1111111111111111111111111111111111111111")

// Set is the bundled fixture markets on one chain
type Set struct {
	Chain *fixture.Chain
	// List keeps fixture file order
	List []*fixture.Market
	ByID map[string]*fixture.Market
}

// All returns every market of the set as the sdk interface
func (s *Set) All() []sdk.Market {
	return AsMarkets(s.List...)
}

// Markets builds the bundled fixture markets on one chain. failures maps a
// market id to the calls that should fail in it.
func Markets(t testing.TB, failures map[string]map[string]string) *Set {
	t.Helper()
	f, err := fixture.Default()
	require.NoError(t, err)
	for i := range f.Markets {
		f.Markets[i].Failures = failures[f.Markets[i].ID]
	}

	chain := fixture.NewChain()
	markets, err := fixture.NewMarkets(f, chain)
	require.NoError(t, err)

	set := &Set{Chain: chain, List: markets, ByID: make(map[string]*fixture.Market, len(markets))}
	for _, m := range markets {
		set.ByID[m.Info().ID] = m
	}
	return set
}

// Market returns one bundled fixture market
func Market(t testing.TB, id string, failures map[string]string) *fixture.Market {
	t.Helper()
	m, ok := Markets(t, map[string]map[string]string{id: failures}).ByID[id]
	require.True(t, ok, "no fixture market %s", id)
	return m
}

// AsMarkets converts fixture markets to the sdk interface in fixture order
func AsMarkets(markets ...*fixture.Market) []sdk.Market {
	out := make([]sdk.Market, 0, len(markets))
	for _, m := range markets {
		out = append(out, m)
	}
	return out
}
