// Package health derives liquidation risk from a position's raw state.
package health

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// closeBandDistance is how many bands above the oracle band still count as
// close to liquidation
const closeBandDistance = 2

// IsCloseToLiquidation reports whether the user's first band is within two
// bands of the oracle price band. liquidationBand does not affect the result.
func IsCloseToLiquidation(userFirstBand int, liquidationBand, oraclePriceBand *int) bool {
	if oraclePriceBand == nil {
		return false
	}
	return userFirstBand <= *oraclePriceBand+closeBandDistance
}

// Severity orders statuses, most severe first
type Severity int

const (
	SeverityHardLiquidation Severity = iota + 1
	SeveritySoftLiquidation
	SeverityCloseToLiquidation
	SeverityHealthy
)

// Status is a classified liquidation status
type Status struct {
	Label    string   `json:"label"`
	Severity Severity `json:"severity"`
}

const (
	LabelHardLiquidation    = "hard liquidation"
	LabelSoftLiquidation    = "soft liquidation"
	LabelCloseToLiquidation = "close to liquidation"
	LabelHealthy            = "healthy"
)

var (
	StatusHardLiquidation    = Status{Label: LabelHardLiquidation, Severity: SeverityHardLiquidation}
	StatusSoftLiquidation    = Status{Label: LabelSoftLiquidation, Severity: SeveritySoftLiquidation}
	StatusCloseToLiquidation = Status{Label: LabelCloseToLiquidation, Severity: SeverityCloseToLiquidation}
	StatusHealthy            = Status{Label: LabelHealthy, Severity: SeverityHealthy}
)

// Calculator classifies positions. The zero value uses a soft liquidation
// threshold of zero.
type Calculator struct {
	// SoftLiquidationThreshold is the converted (borrowed) amount above
	// which a position counts as soft-liquidated
	SoftLiquidationThreshold decimal.Decimal
	Policy                   Policy
}

// NewCalculator creates a calculator
func NewCalculator(threshold decimal.Decimal, policy Policy) *Calculator {
	return &Calculator{SoftLiquidationThreshold: threshold, Policy: policy}
}

// ClassifyLiquidationStatus evaluates hard, soft, close, healthy in that
// order; the first match wins.
func (c *Calculator) ClassifyLiquidationStatus(healthNotFull decimal.Decimal, isCloseToLiquidation bool, stateBorrowed decimal.Decimal) Status {
	switch {
	case healthNotFull.IsNegative():
		return StatusHardLiquidation
	case stateBorrowed.GreaterThan(c.SoftLiquidationThreshold):
		return StatusSoftLiquidation
	case isCloseToLiquidation:
		return StatusCloseToLiquidation
	default:
		return StatusHealthy
	}
}

// DisplayHealth selects the health shown for a position using the
// calculator's policy
func (c *Calculator) DisplayHealth(healthFull, healthNotFull decimal.Decimal, isCloseToLiquidation bool) decimal.Decimal {
	return c.Policy.Select(healthFull, healthNotFull, isCloseToLiquidation)
}

// Policy chooses between full and not-full health for display
type Policy int

const (
	// PolicyNegativeNotFull shows not-full health whenever it is negative
	PolicyNegativeNotFull Policy = iota
	// PolicyCloseToLiquidation shows not-full health whenever the position
	// is close to liquidation
	PolicyCloseToLiquidation
)

func (p Policy) String() string {
	switch p {
	case PolicyCloseToLiquidation:
		return "close-to-liquidation"
	default:
		return "negative-not-full"
	}
}

// ParsePolicy parses a policy name
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "negative-not-full":
		return PolicyNegativeNotFull, nil
	case "close-to-liquidation":
		return PolicyCloseToLiquidation, nil
	default:
		return 0, fmt.Errorf("unknown health policy %q", s)
	}
}

// Select applies the policy
func (p Policy) Select(healthFull, healthNotFull decimal.Decimal, isCloseToLiquidation bool) decimal.Decimal {
	switch p {
	case PolicyCloseToLiquidation:
		if isCloseToLiquidation {
			return healthNotFull
		}
		return healthFull
	default:
		if healthNotFull.IsNegative() {
			return healthNotFull
		}
		return healthFull
	}
}
