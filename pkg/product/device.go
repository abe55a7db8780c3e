package product

import (
	"context"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/graph"
	"github.com/OFFIS-RIT/amtcalc/pkg/quantity"
	"github.com/OFFIS-RIT/amtcalc/pkg/resolver"
)

// DeviceStrategy builds the specific device type and the branded device.
// The specific device type takes the MPUU position in the hierarchy.
type DeviceStrategy struct{}

var _ Strategy[common.DeviceProductDetails] = DeviceStrategy{}

// Validate requires a whole "each" quantity and exactly one of an existing
// or a new specific device type.
func (DeviceStrategy) Validate(pq common.ProductQuantity[common.DeviceProductDetails]) error {
	if err := quantity.ValidateQuantity(pq.Value, pq.Unit, true); err != nil {
		return err
	}
	d := pq.ProductDetails
	hasSpecific := d.SpecificDeviceType != nil && d.SpecificDeviceType.ID != ""
	hasNew := d.NewSpecificDeviceName != ""
	switch {
	case hasSpecific && hasNew:
		return common.NewValidationError("device names both a specific device type and a new one")
	case !hasSpecific && !hasNew:
		return common.NewValidationError("device needs a specific device type or a name for a new one")
	case hasNew && (d.DeviceType == nil || d.DeviceType.ID == ""):
		return &common.ValidationError{Reason: "new specific device type needs a device type parent", TypeID: common.IsA}
	}
	return nil
}

// References lists the device types and parents of pq.
func (DeviceStrategy) References(pq common.ProductQuantity[common.DeviceProductDetails]) []*common.ConceptReference {
	d := pq.ProductDetails
	refs := []*common.ConceptReference{d.ProductName, d.DeviceType, d.SpecificDeviceType}
	for i := range d.OtherParentConcepts {
		refs = append(refs, &d.OtherParentConcepts[i])
	}
	return refs
}

// ResolveUnits resolves the specific device type and the branded device.
func (DeviceStrategy) ResolveUnits(
	ctx context.Context,
	run *Run,
	pq common.ProductQuantity[common.DeviceProductDetails],
	pkg common.PackageDetails[common.DeviceProductDetails],
) (*Units, error) {
	d := pq.ProductDetails
	summary := graph.NewProductSummary()

	var specific *graph.Node
	if d.SpecificDeviceType != nil && d.SpecificDeviceType.ID != "" {
		specific = run.Existing(*d.SpecificDeviceType, graph.LabelMPUU)
	} else {
		parents := []common.RelationshipCandidate{
			common.NewRelationship(common.IsA, d.DeviceType, 0),
		}
		for i := range d.OtherParentConcepts {
			parents = append(parents, common.NewRelationship(common.IsA, &d.OtherParentConcepts[i], 0))
		}
		var err error
		specific, err = run.Define(resolver.Request{
			Label:       graph.LabelMPUU,
			SemanticTag: common.TagPhysicalObject,
			Refsets:     []string{common.MPUURefset},
			Candidates:  parents,
		}, d.NewSpecificDeviceName)
		if err != nil {
			return nil, err
		}
	}
	specific = summary.AddNode(specific)

	brandRef := d.ProductName
	if brandRef == nil {
		brandRef = pkg.ProductName
	}
	brand, err := run.Brand(brandRef)
	if err != nil {
		return nil, err
	}
	brand = summary.AddNode(brand)

	candidates := []common.RelationshipCandidate{
		common.NewRelationship(common.IsA, specific.Reference(), 0),
		common.NewRelationship(common.HasProductName, brand.Reference(), 0),
	}
	if d.OtherIdentifyingInformation != "" {
		candidates = append(candidates,
			common.NewStringRelationship(common.HasOtherIdentifyingInformation, d.OtherIdentifyingInformation, 0))
	}
	tpuu, err := run.Resolve(ctx, resolver.Request{
		Label:       graph.LabelTPUU,
		SemanticTag: common.TagBrandedPhysicalObject,
		Refsets:     []string{common.TPUURefset},
		Candidates:  candidates,
	})
	if err != nil {
		return nil, err
	}
	tpuu = summary.AddNode(tpuu)
	summary.AddEdge(tpuu.ConceptID, specific.ConceptID, graph.IsA)
	summary.AddEdge(tpuu.ConceptID, brand.ConceptID, graph.HasName)

	return &Units{Generic: specific, Branded: tpuu, Summary: summary}, nil
}
