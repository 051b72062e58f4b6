// Package fixture is a deterministic in-memory implementation of the sdk
// interfaces, loaded from YAML. It backs dry runs and tests.
package fixture

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Dec is a decimal that decodes from a YAML scalar
type Dec struct {
	decimal.Decimal
}

// D parses s, panicking on malformed input
func D(s string) Dec {
	return Dec{decimal.RequireFromString(s)}
}

func (d *Dec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		d.Decimal = decimal.Zero
		return nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	d.Decimal = v
	return nil
}

// File is a fixture document
type File struct {
	Markets []MarketSpec `yaml:"markets"`
}

type TokenSpec struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int    `yaml:"decimals"`
}

type BalanceSpec struct {
	Borrowed   Dec `yaml:"borrowed"`
	Collateral Dec `yaml:"collateral"`
}

type RatesSpec struct {
	BorrowApr Dec `yaml:"borrow_apr"`
	LendApr   Dec `yaml:"lend_apr"`
	BorrowApy Dec `yaml:"borrow_apy"`
	LendApy   Dec `yaml:"lend_apy"`
}

type RewardSpec struct {
	Symbol  string `yaml:"symbol"`
	Address string `yaml:"address"`
	Apy     Dec    `yaml:"apy"`
	Price   Dec    `yaml:"price"`
}

type VaultSpec struct {
	RewardsOnly      bool           `yaml:"rewards_only"`
	Rewards          []RewardSpec   `yaml:"rewards"`
	Crv              []Dec          `yaml:"crv"`
	TotalLiquidity   Dec            `yaml:"total_liquidity"`
	SharePrice       Dec            `yaml:"share_price"`
	ClaimableCrv     Dec            `yaml:"claimable_crv"`
	ClaimableRewards map[string]Dec `yaml:"claimable_rewards"`
}

type LossSpec struct {
	Deposited Dec `yaml:"deposited"`
	Current   Dec `yaml:"current"`
}

type WalletSpec struct {
	Collateral  Dec `yaml:"collateral"`
	Borrowed    Dec `yaml:"borrowed"`
	VaultShares Dec `yaml:"vault_shares"`
	Gauge       Dec `yaml:"gauge"`
}

type UserSpec struct {
	Collateral    Dec                    `yaml:"collateral"`
	Borrowed      Dec                    `yaml:"borrowed"`
	Debt          Dec                    `yaml:"debt"`
	N             int                    `yaml:"n"`
	Bands         []int                  `yaml:"bands"`
	HealthFull    Dec                    `yaml:"health_full"`
	HealthNotFull Dec                    `yaml:"health_not_full"`
	BandsBalances map[string]BalanceSpec `yaml:"bands_balances"`
	Loss          *LossSpec              `yaml:"loss"`
	Leverage      Dec                    `yaml:"leverage"`
	Wallet        WalletSpec             `yaml:"wallet"`
}

// MarketSpec describes one market. Failures maps a call key such as
// "stats.rates" or "createLoan.health" to the error message the call
// returns; "confirm.<action>" makes the submitted transaction revert.
type MarketSpec struct {
	ID                  string                 `yaml:"id"`
	Kind                string                 `yaml:"kind"`
	CollateralToken     TokenSpec              `yaml:"collateral_token"`
	BorrowedToken       TokenSpec              `yaml:"borrowed_token"`
	MinBands            int                    `yaml:"min_bands"`
	MaxBands            int                    `yaml:"max_bands"`
	Gauge               string                 `yaml:"gauge"`
	Leverage            []string               `yaml:"leverage"`
	A                   int                    `yaml:"a"`
	OraclePrice         Dec                    `yaml:"oracle_price"`
	BasePrice           Dec                    `yaml:"base_price"`
	ActiveBand          int                    `yaml:"active_band"`
	LiquidationBand     *int                   `yaml:"liquidation_band"`
	OracleBand          *int                   `yaml:"oracle_band"`
	Fee                 Dec                    `yaml:"fee"`
	AdminFee            Dec                    `yaml:"admin_fee"`
	LoanDiscount        Dec                    `yaml:"loan_discount"`
	LiquidationDiscount Dec                    `yaml:"liquidation_discount"`
	Rates               RatesSpec              `yaml:"rates"`
	Cap                 Dec                    `yaml:"cap"`
	Available           Dec                    `yaml:"available"`
	TotalDebt           Dec                    `yaml:"total_debt"`
	AmmBalances         BalanceSpec            `yaml:"amm_balances"`
	BandsBalances       map[string]BalanceSpec `yaml:"bands_balances"`
	Approved            bool                   `yaml:"approved"`
	Vault               *VaultSpec             `yaml:"vault"`
	Users               map[string]UserSpec    `yaml:"users"`
	Failures            map[string]string      `yaml:"failures"`
}

// Load reads a fixture file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return Parse(data)
}

// Parse decodes a fixture document
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	for i, m := range f.Markets {
		if m.ID == "" {
			return nil, fmt.Errorf("market %d: missing id", i)
		}
		if m.MaxBands < m.MinBands {
			return nil, fmt.Errorf("market %s: max_bands %d below min_bands %d", m.ID, m.MaxBands, m.MinBands)
		}
	}
	return &f, nil
}
