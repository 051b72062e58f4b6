package fixture

import (
	_ "embed"
)

//go:embed markets.yaml
var defaultMarkets []byte

// Default returns the bundled sample markets
func Default() (*File, error) {
	return Parse(defaultMarkets)
}
