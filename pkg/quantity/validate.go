package quantity

import (
	"github.com/OFFIS-RIT/amtcalc/pkg/common"

	"github.com/shopspring/decimal"
)

// ValidateQuantity checks a single quantity. A quantity in "each" must be a
// whole number; requireEach additionally forces the unit to be "each".
func ValidateQuantity(value decimal.Decimal, unit *common.ConceptReference, requireEach bool) error {
	if unit == nil || unit.ID == "" {
		return common.NewValidationError("quantity %s has no unit", value.String())
	}
	if !value.IsPositive() {
		return &common.ValidationError{
			Reason:     "quantity " + value.String() + " must be positive",
			ConceptIDs: []string{unit.ID},
		}
	}
	if requireEach && !IsEach(unit) {
		return &common.ValidationError{
			Reason:     "unit must be each when a container, device or pack quantity is present",
			ConceptIDs: []string{unit.ID},
		}
	}
	if IsEach(unit) && !value.IsInteger() {
		return &common.ValidationError{
			Reason:     "quantity " + value.String() + " in each must be a whole number",
			ConceptIDs: []string{unit.ID},
		}
	}
	return nil
}

// ValidatePackageQuantity checks how many of a nested package an outer
// package holds. Pack quantities are always counted in "each".
func ValidatePackageQuantity(value decimal.Decimal, unit *common.ConceptReference) error {
	return ValidateQuantity(value, unit, true)
}

// RequiresEach reports whether a product is counted rather than measured:
// it comes in its own unit of use container, is delivered by a device, or
// has a product quantity per unit. The outer package's container does not
// count, so a 200 mL bottle is still measured in mL.
func RequiresEach(details common.MedicationProductDetails) bool {
	return details.ContainerType != nil || details.DeviceType != nil || details.Quantity != nil
}

// ValidateProductQuantity checks the quantity of a medication inside a
// package and the strengths of each of its ingredients.
//
// Of the product quantity, the ingredient's total quantity and its
// concentration strength either none, one or all three may be given. With
// all three the concentration unit must be total unit / product quantity
// unit and concentration x product quantity must equal the total.
func ValidateProductQuantity(pq common.ProductQuantity[common.MedicationProductDetails]) error {
	details := pq.ProductDetails
	if err := ValidateQuantity(pq.Value, pq.Unit, RequiresEach(details)); err != nil {
		return err
	}

	if details.Quantity != nil {
		if err := ValidateQuantity(details.Quantity.Value, details.Quantity.Unit, false); err != nil {
			return err
		}
	}

	for _, ing := range details.ActiveIngredients {
		if err := validateIngredient(ing, details.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func validateIngredient(ing common.Ingredient, productQuantity *common.Quantity) error {
	substance := ""
	if ing.ActiveIngredient != nil {
		substance = ing.ActiveIngredient.ID
	}
	if substance == "" {
		return common.NewValidationError("ingredient has no active ingredient")
	}

	total := ing.TotalQuantity
	conc := ing.ConcentrationStrength

	if total != nil {
		if err := ValidateQuantity(total.Value, total.Unit, false); err != nil {
			return err
		}
		if IsComposite(total.Unit) {
			return &common.ValidationError{
				Reason:     "total quantity unit " + total.Unit.Name() + " must not be a composite unit",
				TypeID:     common.HasPresentationNumeratorUnit,
				ConceptIDs: []string{substance, total.Unit.ID},
			}
		}
	}
	if conc != nil {
		if err := ValidateQuantity(conc.Value, conc.Unit, false); err != nil {
			return err
		}
		if !IsComposite(conc.Unit) {
			return &common.ValidationError{
				Reason:     "concentration strength unit " + conc.Unit.Name() + " must be a composite unit",
				TypeID:     common.HasConcentrationStrengthUnit,
				ConceptIDs: []string{substance, conc.Unit.ID},
			}
		}
	}

	populated := 0
	for _, present := range []bool{productQuantity != nil, total != nil, conc != nil} {
		if present {
			populated++
		}
	}
	switch populated {
	case 0, 1:
		return nil
	case 2:
		return &common.ValidationError{
			Reason:     "product quantity, total quantity and concentration strength must be given all together or at most one of them",
			ConceptIDs: []string{substance},
		}
	}

	numerator, denominator, _ := Ratio(conc.Unit)
	if !sameUnit(numerator, total.Unit) {
		return &common.ValidationError{
			Reason:     "concentration numerator " + numerator + " does not match total quantity unit " + total.Unit.Name(),
			TypeID:     common.HasConcentrationStrengthUnit,
			ConceptIDs: []string{substance, conc.Unit.ID, total.Unit.ID},
		}
	}
	if !sameUnit(denominator, productQuantity.Unit) {
		return &common.ValidationError{
			Reason:     "concentration denominator " + denominator + " does not match product quantity unit " + productQuantity.Unit.Name(),
			TypeID:     common.HasConcentrationStrengthUnit,
			ConceptIDs: []string{substance, conc.Unit.ID, productQuantity.Unit.ID},
		}
	}

	calculated, err := CalculateTotal(conc.Value, productQuantity.Value)
	if err != nil {
		return err
	}
	if !calculated.Equal(total.Value) {
		return &common.ValidationError{
			Reason: "concentration " + conc.Value.String() + " x quantity " + productQuantity.Value.String() +
				" = " + calculated.String() + " does not match total quantity " + total.Value.String(),
			TypeID:     common.HasPresentationNumeratorValue,
			ConceptIDs: []string{substance},
		}
	}
	return nil
}
