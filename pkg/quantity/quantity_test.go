package quantity

import (
	"errors"
	"testing"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"

	"github.com/shopspring/decimal"
)

var (
	each  = &common.ConceptReference{ID: common.UnitEach, PT: "each"}
	mg    = &common.ConceptReference{ID: "258684004", PT: "mg"}
	mL    = &common.ConceptReference{ID: "258773002", PT: "mL"}
	mgPer = &common.ConceptReference{ID: "258798001", PT: "mg/mL"}
	tube  = &common.ConceptReference{ID: "999", PT: "tube"}
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculateTotal(t *testing.T) {
	tests := []struct {
		name          string
		concentration string
		quantity      string
		want          string
	}{
		{"whole numbers", "10", "10", "100"},
		{"six decimal places", "84.444444", "408", "34453.333152"},
		{"rounds beyond six places", "0.3333333", "3", "1"},
		{"zero", "0", "5", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateTotal(d(tt.concentration), d(tt.quantity))
			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if !got.Equal(d(tt.want)) {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCalculateTotal_ExactIntegerResult(t *testing.T) {
	got, err := CalculateTotal(d("10"), d("10"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.String() != "100" {
		t.Fatalf("expected 100, got %s", got.String())
	}
}

func TestCalculateTotal_ToleranceExceeded(t *testing.T) {
	_, err := CalculateTotal(d("0.0000001"), d("3"))
	if !errors.Is(err, common.ErrRoundingTolerance) {
		t.Fatalf("expected rounding tolerance error, got %v", err)
	}
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected rounding error to be a validation error, got %v", err)
	}
}

func TestValidateQuantity(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		unit        *common.ConceptReference
		requireEach bool
		wantErr     bool
	}{
		{"each whole", "2", each, false, false},
		{"each fraction", "2.5", each, false, true},
		{"each fraction with trailing zeros", "2.000", each, false, false},
		{"mL fraction", "2.5", mL, false, false},
		{"require each wrong unit", "2", mL, true, true},
		{"require each fraction", "2.5", each, true, true},
		{"zero", "0", each, false, true},
		{"no unit", "1", nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuantity(d(tt.value), tt.unit, tt.requireEach)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if err != nil && !errors.Is(err, common.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRatio(t *testing.T) {
	num, den, ok := Ratio(mgPer)
	if !ok || num != "mg" || den != "ml" {
		t.Fatalf("unexpected ratio %q %q %v", num, den, ok)
	}
	if _, _, ok := Ratio(mg); ok {
		t.Fatal("expected mg not to be a ratio")
	}
	fsnOnly := &common.ConceptReference{ID: "1", FSN: "microgram/hour (qualifier value)"}
	num, den, ok = Ratio(fsnOnly)
	if !ok || num != "microgram" || den != "hour" {
		t.Fatalf("unexpected ratio from FSN %q %q %v", num, den, ok)
	}
}

func product(quantity *common.Quantity, ingredients ...common.Ingredient) common.ProductQuantity[common.MedicationProductDetails] {
	return common.ProductQuantity[common.MedicationProductDetails]{
		Value: d("1"),
		Unit:  each,
		ProductDetails: common.MedicationProductDetails{
			Quantity:          quantity,
			ActiveIngredients: ingredients,
		},
	}
}

func ingredient(total, conc *common.Quantity) common.Ingredient {
	return common.Ingredient{
		ActiveIngredient:      &common.ConceptReference{ID: "387517004", PT: "paracetamol"},
		TotalQuantity:         total,
		ConcentrationStrength: conc,
	}
}

func TestValidateProductQuantity_Cardinality(t *testing.T) {
	qty := &common.Quantity{Value: d("5"), Unit: mL}
	total := &common.Quantity{Value: d("500"), Unit: mg}
	conc := &common.Quantity{Value: d("100"), Unit: mgPer}

	tests := []struct {
		name    string
		pq      common.ProductQuantity[common.MedicationProductDetails]
		wantErr bool
	}{
		{"none", product(nil, ingredient(nil, nil)), false},
		{"quantity only", product(qty, ingredient(nil, nil)), false},
		{"total only", product(nil, ingredient(total, nil)), false},
		{"concentration only", product(nil, ingredient(nil, conc)), false},
		{"quantity and total", product(qty, ingredient(total, nil)), true},
		{"quantity and concentration", product(qty, ingredient(nil, conc)), true},
		{"total and concentration", product(nil, ingredient(total, conc)), true},
		{"all three consistent", product(qty, ingredient(total, conc)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProductQuantity(tt.pq)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateProductQuantity_Inconsistent(t *testing.T) {
	qty := &common.Quantity{Value: d("5"), Unit: mL}
	conc := &common.Quantity{Value: d("100"), Unit: mgPer}

	tests := []struct {
		name  string
		total *common.Quantity
		qty   *common.Quantity
	}{
		{"wrong total", &common.Quantity{Value: d("400"), Unit: mg}, qty},
		{"numerator mismatch", &common.Quantity{Value: d("500"), Unit: mL}, qty},
		{"denominator mismatch", &common.Quantity{Value: d("500"), Unit: mg}, &common.Quantity{Value: d("5"), Unit: mg}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProductQuantity(product(tt.qty, ingredient(tt.total, conc)))
			if !errors.Is(err, common.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestValidateProductQuantity_TrailingZerosMatch(t *testing.T) {
	qty := &common.Quantity{Value: d("5.0"), Unit: mL}
	total := &common.Quantity{Value: d("500.000"), Unit: mg}
	conc := &common.Quantity{Value: d("100"), Unit: mgPer}
	if err := ValidateProductQuantity(product(qty, ingredient(total, conc))); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestValidateProductQuantity_UnitKinds(t *testing.T) {
	err := ValidateProductQuantity(product(nil, ingredient(&common.Quantity{Value: d("5"), Unit: mgPer}, nil)))
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected composite total unit to be rejected, got %v", err)
	}
	err = ValidateProductQuantity(product(nil, ingredient(nil, &common.Quantity{Value: d("5"), Unit: mg})))
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected simple concentration unit to be rejected, got %v", err)
	}
}

func TestValidateProductQuantity_ContainerForcesEach(t *testing.T) {
	pq := product(nil, ingredient(nil, nil))
	pq.Unit = mL
	pq.Value = d("100")
	if err := ValidateProductQuantity(pq); err != nil {
		t.Fatalf("expected mL pack size to be fine without container, got %v", err)
	}
	pq.ProductDetails.ContainerType = tube
	if err := ValidateProductQuantity(pq); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected container to force each, got %v", err)
	}

	pq.Unit = each
	pq.Value = d("2.5")
	if err := ValidateProductQuantity(pq); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected fractional each to be rejected, got %v", err)
	}
	pq.Value = d("2")
	if err := ValidateProductQuantity(pq); err != nil {
		t.Fatalf("expected 2 each to be accepted, got %v", err)
	}
}

func TestRequiresEach(t *testing.T) {
	tests := []struct {
		name    string
		details common.MedicationProductDetails
		want    bool
	}{
		{"measured", common.MedicationProductDetails{}, false},
		{"own container", common.MedicationProductDetails{ContainerType: tube}, true},
		{"device", common.MedicationProductDetails{DeviceType: tube}, true},
		{"quantity per unit", common.MedicationProductDetails{Quantity: &common.Quantity{Value: d("5"), Unit: mL}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiresEach(tt.details); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestValidatePackageQuantity(t *testing.T) {
	if err := ValidatePackageQuantity(d("3"), each); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := ValidatePackageQuantity(d("3"), mL); err == nil {
		t.Fatal("expected non-each pack quantity to be rejected")
	}
}
