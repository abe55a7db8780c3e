// Package quantity derives and cross-checks pack sizes, strengths and
// concentrations before a product hierarchy is calculated.
package quantity

import (
	"strings"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"

	"github.com/shopspring/decimal"
)

// TotalScale is the number of decimal places derived totals are snapped to.
const TotalScale = 6

var tolerance = decimal.NewFromFloat(0.01)

// CalculateTotal multiplies a concentration by a quantity and snaps the
// result to TotalScale decimal places. The snap is refused with a
// RoundingToleranceError when it would move the value by more than 1%.
func CalculateTotal(concentration, quantity decimal.Decimal) (decimal.Decimal, error) {
	exact := concentration.Mul(quantity)
	if exact.IsZero() {
		return exact, nil
	}

	rounded := exact.Round(TotalScale)
	relErr := rounded.Sub(exact).Abs().Div(exact.Abs())
	if relErr.GreaterThan(tolerance) {
		return decimal.Decimal{}, &common.RoundingToleranceError{
			Concentration: concentration.String(),
			Quantity:      quantity.String(),
			Exact:         exact.String(),
			Rounded:       rounded.String(),
		}
	}
	return rounded, nil
}

// IsEach reports whether unit is the unit of presentation "each".
func IsEach(unit *common.ConceptReference) bool {
	return unit != nil && unit.ID == common.UnitEach
}

// IsComposite reports whether unit is a ratio such as mg/mL.
func IsComposite(unit *common.ConceptReference) bool {
	return strings.Contains(unitName(unit), "/")
}

// Ratio splits a composite unit into numerator and denominator names.
func Ratio(unit *common.ConceptReference) (numerator, denominator string, ok bool) {
	name := unitName(unit)
	numerator, denominator, ok = strings.Cut(name, "/")
	if !ok || numerator == "" || denominator == "" {
		return "", "", false
	}
	return strings.TrimSpace(numerator), strings.TrimSpace(denominator), true
}

// unitName is the normalized name a unit is compared by.
func unitName(unit *common.ConceptReference) string {
	if unit == nil {
		return ""
	}
	name := unit.PT
	if name == "" {
		name = unit.FSN
		if i := strings.LastIndex(name, " ("); i > 0 && strings.HasSuffix(name, ")") {
			name = name[:i]
		}
	}
	return strings.ToLower(strings.TrimSpace(name))
}

func sameUnit(name string, unit *common.ConceptReference) bool {
	return name != "" && name == unitName(unit)
}
