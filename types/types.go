package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MarketKind tags the two market families. Mint markets issue the
// stablecoin directly, Lend markets borrow from a vault.
type MarketKind int

const (
	MarketKindMint MarketKind = iota + 1
	MarketKindLend
)

func (k MarketKind) String() string {
	switch k {
	case MarketKindMint:
		return "mint"
	case MarketKindLend:
		return "lend"
	default:
		return "unknown"
	}
}

// ParseMarketKind parses "mint" or "lend", case-insensitively
func ParseMarketKind(s string) (MarketKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mint":
		return MarketKindMint, nil
	case "lend":
		return MarketKindLend, nil
	default:
		return 0, fmt.Errorf("unknown market kind %q", s)
	}
}

// LeverageVersion selects one of the two leverage implementations a market may expose
type LeverageVersion int

const (
	LeverageV1 LeverageVersion = iota + 1
	LeverageV2
)

func (v LeverageVersion) String() string {
	if v == LeverageV2 {
		return "v2"
	}
	return "v1"
}

// Token describes one side of a market
type Token struct {
	Symbol   string         `json:"symbol"`
	Address  common.Address `json:"address"`
	Decimals int            `json:"decimals"`
}

// Market is the immutable description of a lending market loaded for a session
type Market struct {
	ID              string         `json:"id"`
	Kind            MarketKind     `json:"kind"`
	CollateralToken Token          `json:"collateralToken"`
	BorrowedToken   Token          `json:"borrowedToken"`
	MinBands        int            `json:"minBands"`
	MaxBands        int            `json:"maxBands"`
	Gauge           common.Address `json:"gauge"`
}

// HasGauge reports whether the gauge address is set. The zero address
// is the sentinel for "no gauge".
func (m Market) HasGauge() bool {
	return m.Gauge != (common.Address{})
}

// BandCounts returns every valid band count in [MinBands, MaxBands]
func (m Market) BandCounts() []int {
	if m.MaxBands < m.MinBands {
		return nil
	}
	counts := make([]int, 0, m.MaxBands-m.MinBands+1)
	for n := m.MinBands; n <= m.MaxBands; n++ {
		counts = append(counts, n)
	}
	return counts
}

// Action names a loan operation family
type Action string

const (
	ActionCreateLoan       Action = "createLoan"
	ActionBorrowMore       Action = "borrowMore"
	ActionRepay            Action = "repay"
	ActionFullRepay        Action = "fullRepay"
	ActionAddCollateral    Action = "addCollateral"
	ActionRemoveCollateral Action = "removeCollateral"
	ActionSelfLiquidate    Action = "selfLiquidate"
)

// VaultOp names a vault operation
type VaultOp string

const (
	VaultDeposit  VaultOp = "deposit"
	VaultMint     VaultOp = "mint"
	VaultWithdraw VaultOp = "withdraw"
	VaultRedeem   VaultOp = "redeem"
	VaultStake    VaultOp = "stake"
	VaultUnstake  VaultOp = "unstake"
)

// NeedsApproval reports whether the vault operation spends a token allowance
func (op VaultOp) NeedsApproval() bool {
	switch op {
	case VaultDeposit, VaultMint, VaultStake:
		return true
	default:
		return false
	}
}
