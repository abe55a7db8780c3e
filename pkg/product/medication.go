package product

import (
	"context"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/graph"
	"github.com/OFFIS-RIT/amtcalc/pkg/quantity"
	"github.com/OFFIS-RIT/amtcalc/pkg/resolver"
)

// MedicationStrategy builds MP, MPUU and TPUU for medications.
type MedicationStrategy struct{}

var _ Strategy[common.MedicationProductDetails] = MedicationStrategy{}

// Validate requires a dose form and at least one active ingredient, then
// checks the quantities.
func (MedicationStrategy) Validate(pq common.ProductQuantity[common.MedicationProductDetails]) error {
	details := pq.ProductDetails
	if details.GenericForm == nil || details.GenericForm.ID == "" {
		return &common.ValidationError{Reason: "medication has no generic dose form", TypeID: common.HasManufacturedDoseForm}
	}
	if len(details.ActiveIngredients) == 0 {
		return &common.ValidationError{Reason: "medication has no active ingredient", TypeID: common.HasActiveIngredient}
	}
	return quantity.ValidateProductQuantity(pq)
}

// References lists the forms, units, ingredients and container of pq.
func (MedicationStrategy) References(pq common.ProductQuantity[common.MedicationProductDetails]) []*common.ConceptReference {
	d := pq.ProductDetails
	refs := []*common.ConceptReference{d.ProductName, d.GenericForm, d.SpecificForm, d.UnitOfPresentation, d.DeviceType, d.ContainerType}
	if d.Quantity != nil {
		refs = append(refs, d.Quantity.Unit)
	}
	for _, ing := range d.ActiveIngredients {
		refs = append(refs, ing.ActiveIngredient, ing.PreciseIngredient, ing.BasisOfStrengthSubstance)
		if ing.TotalQuantity != nil {
			refs = append(refs, ing.TotalQuantity.Unit)
		}
		if ing.ConcentrationStrength != nil {
			refs = append(refs, ing.ConcentrationStrength.Unit)
		}
	}
	return refs
}

// ResolveUnits resolves the MP, MPUU and TPUU of pq.
func (MedicationStrategy) ResolveUnits(
	ctx context.Context,
	run *Run,
	pq common.ProductQuantity[common.MedicationProductDetails],
	pkg common.PackageDetails[common.MedicationProductDetails],
) (*Units, error) {
	details := pq.ProductDetails
	summary := graph.NewProductSummary()

	mpCandidates := []common.RelationshipCandidate{
		common.NewRelationship(common.IsA, &common.ConceptReference{ID: common.MedicinalProduct}, 0),
	}
	for i, ing := range details.ActiveIngredients {
		mpCandidates = append(mpCandidates, common.NewRelationship(common.HasActiveIngredient, ing.ActiveIngredient, i+1))
	}
	mp, err := run.Resolve(ctx, resolver.Request{
		Label:       graph.LabelMP,
		SemanticTag: common.TagMedicinalProduct,
		Refsets:     []string{common.MPRefset},
		Candidates:  mpCandidates,
	})
	if err != nil {
		return nil, err
	}
	mp = summary.AddNode(mp)

	groups := ingredientGroups(details)

	mpuuCandidates := []common.RelationshipCandidate{
		common.NewRelationship(common.IsA, mp.Reference(), 0),
		common.NewRelationship(common.HasManufacturedDoseForm, details.GenericForm, 0),
	}
	mpuuCandidates = append(mpuuCandidates, unitAttributes(details)...)
	mpuuCandidates = append(mpuuCandidates, groups...)
	mpuu, err := run.Resolve(ctx, resolver.Request{
		Label:       graph.LabelMPUU,
		SemanticTag: common.TagClinicalDrug,
		Refsets:     []string{common.MPUURefset},
		Candidates:  mpuuCandidates,
	})
	if err != nil {
		return nil, err
	}
	mpuu = summary.AddNode(mpuu)
	summary.AddEdge(mpuu.ConceptID, mp.ConceptID, graph.IsA)

	brandRef := details.ProductName
	if brandRef == nil {
		brandRef = pkg.ProductName
	}
	brand, err := run.Brand(brandRef)
	if err != nil {
		return nil, err
	}
	brand = summary.AddNode(brand)

	form := details.SpecificForm
	if form == nil {
		form = details.GenericForm
	}
	tpuuCandidates := []common.RelationshipCandidate{
		common.NewRelationship(common.IsA, mpuu.Reference(), 0),
		common.NewRelationship(common.HasProductName, brand.Reference(), 0),
		common.NewRelationship(common.HasManufacturedDoseForm, form, 0),
	}
	tpuuCandidates = append(tpuuCandidates, unitAttributes(details)...)
	tpuuCandidates = append(tpuuCandidates, groups...)
	if details.OtherIdentifyingInformation != "" {
		tpuuCandidates = append(tpuuCandidates,
			common.NewStringRelationship(common.HasOtherIdentifyingInformation, details.OtherIdentifyingInformation, 0))
	}
	tpuu, err := run.Resolve(ctx, resolver.Request{
		Label:       graph.LabelTPUU,
		SemanticTag: common.TagBrandedClinicalDrug,
		Refsets:     []string{common.TPUURefset},
		Candidates:  tpuuCandidates,
	})
	if err != nil {
		return nil, err
	}
	tpuu = summary.AddNode(tpuu)
	summary.AddEdge(tpuu.ConceptID, mpuu.ConceptID, graph.IsA)
	summary.AddEdge(tpuu.ConceptID, brand.ConceptID, graph.HasName)

	return &Units{Generic: mpuu, Branded: tpuu, Summary: summary}, nil
}

// unitAttributes are the ungrouped attributes MPUU and TPUU share.
func unitAttributes(details common.MedicationProductDetails) []common.RelationshipCandidate {
	out := make([]common.RelationshipCandidate, 0, 4)
	if details.UnitOfPresentation != nil {
		out = append(out, common.NewRelationship(common.HasUnitOfPresentation, details.UnitOfPresentation, 0))
	}
	if details.DeviceType != nil {
		out = append(out, common.NewRelationship(common.HasDeviceType, details.DeviceType, 0))
	}
	if details.ContainerType != nil {
		out = append(out, common.NewRelationship(common.HasContainerType, details.ContainerType, 0))
	}
	out = append(out, common.NewIntegerRelationship(common.CountOfBaseOfActiveIngredient, countOfBase(details), 0))
	return out
}

func countOfBase(details common.MedicationProductDetails) int {
	seen := make(map[string]struct{}, len(details.ActiveIngredients))
	for _, ing := range details.ActiveIngredients {
		seen[ing.StrengthSubstance().ID] = struct{}{}
	}
	return len(seen)
}

// ingredientGroups renders one role group per ingredient with its
// substances and strengths.
func ingredientGroups(details common.MedicationProductDetails) []common.RelationshipCandidate {
	out := make([]common.RelationshipCandidate, 0)
	for i, ing := range details.ActiveIngredients {
		group := i + 1
		out = append(out, common.NewRelationship(common.HasActiveIngredient, ing.ActiveIngredient, group))
		if ing.PreciseIngredient != nil {
			out = append(out, common.NewRelationship(common.HasPreciseActiveIngredient, ing.PreciseIngredient, group))
		}
		if ing.BasisOfStrengthSubstance != nil {
			out = append(out, common.NewRelationship(common.HasBasisOfStrengthSubstance, ing.BasisOfStrengthSubstance, group))
		}
		if ing.TotalQuantity != nil {
			out = append(out,
				common.NewDecimalRelationship(common.HasPresentationNumeratorValue, ing.TotalQuantity.Value, group),
				common.NewRelationship(common.HasPresentationNumeratorUnit, ing.TotalQuantity.Unit, group),
			)
			if details.Quantity != nil {
				out = append(out,
					common.NewDecimalRelationship(common.HasPresentationDenominatorValue, details.Quantity.Value, group),
					common.NewRelationship(common.HasPresentationDenominatorUnit, details.Quantity.Unit, group),
				)
			}
		}
		if ing.ConcentrationStrength != nil {
			out = append(out,
				common.NewDecimalRelationship(common.HasConcentrationStrengthValue, ing.ConcentrationStrength.Value, group),
				common.NewRelationship(common.HasConcentrationStrengthUnit, ing.ConcentrationStrength.Unit, group),
			)
		}
	}
	return out
}
