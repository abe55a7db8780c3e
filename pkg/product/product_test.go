package product

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/graph"
	"github.com/OFFIS-RIT/amtcalc/pkg/owl"
	"github.com/OFFIS-RIT/amtcalc/pkg/resolver"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology/terminologytest"

	"github.com/shopspring/decimal"
)

const (
	panadol      = "111"
	blisterPack  = "222"
	tablet       = "333"
	paracetamol  = "444"
	tabletUnit   = "555"
	milligram    = "258684004"
	deviceType   = "777"
	existingMP   = "1001"
	existingMPUU = "2001"
	existingTPUU = "3001"
	existingMPP  = "4001"
	existingTPP  = "5001"
	existingCTPP = "6001"
)

func ref(id string) *common.ConceptReference {
	return &common.ConceptReference{ID: id}
}

func named(id, pt string) *common.ConceptReference {
	return &common.ConceptReference{ID: id, PT: pt}
}

func defined(id, pt string) common.ConceptReference {
	return common.ConceptReference{ID: id, PT: pt, DefinitionStatus: common.FullyDefined}
}

// newRepository knows one existing Panadol 500 mg tablet blister pack of 20.
func newRepository() *terminologytest.Repository {
	repo := terminologytest.NewRepository(
		terminologytest.Rule{
			Contains: []string{"^" + common.MPRefset, common.HasActiveIngredient + " = " + paracetamol},
			Concepts: []common.ConceptReference{defined(existingMP, "Paracetamol")},
		},
		terminologytest.Rule{
			Contains: []string{"^" + common.MPUURefset, "<" + existingMP},
			Concepts: []common.ConceptReference{defined(existingMPUU, "Paracetamol 500 mg tablet")},
		},
		terminologytest.Rule{
			Contains: []string{"^" + common.TPUURefset, "<" + existingMPUU, common.HasProductName + " = " + panadol},
			Concepts: []common.ConceptReference{defined(existingTPUU, "Panadol 500 mg tablet")},
		},
		terminologytest.Rule{
			Contains: []string{"^" + common.MPPRefset, common.ContainsClinicalDrug + " = " + existingMPUU, common.HasPackSizeValue + " = #20,"},
			Concepts: []common.ConceptReference{defined(existingMPP, "Paracetamol 500 mg tablet, 20")},
		},
		terminologytest.Rule{
			Contains: []string{"^" + common.TPPRefset, "<" + existingMPP, common.ContainsClinicalDrug + " = " + existingTPUU},
			Concepts: []common.ConceptReference{defined(existingTPP, "Panadol 500 mg tablet, 20")},
		},
		terminologytest.Rule{
			Contains: []string{"^" + common.CTPPRefset, "<" + existingTPP, common.HasContainerType + " = " + blisterPack},
			Concepts: []common.ConceptReference{defined(existingCTPP, "Panadol 500 mg tablet, 20, blister pack")},
		},
	)
	for _, c := range []common.ConceptReference{
		{ID: panadol, PT: "Panadol"},
		{ID: blisterPack, PT: "Blister pack"},
		{ID: tablet, PT: "Tablet"},
		{ID: paracetamol, PT: "Paracetamol"},
		{ID: tabletUnit, PT: "Tablet"},
		{ID: milligram, PT: "mg"},
		{ID: common.UnitEach, PT: "each"},
		{ID: deviceType, PT: "Bandage"},
		{ID: existingCTPP, PT: "Panadol 500 mg tablet, 20, blister pack"},
	} {
		repo.Concepts[c.ID] = terminology.Concept{ConceptReference: c, Active: true}
	}
	return repo
}

func newCalculator(t *testing.T, repo terminology.Repository) *Calculator {
	t.Helper()
	r, err := resolver.NewNodeResolver(resolver.NewNodeResolverParams{
		Repository: repo,
		Axioms:     owl.Translator{},
		Names:      &terminologytest.Names{},
	})
	if err != nil {
		t.Fatalf("expected resolver, got %v", err)
	}
	calc, err := NewCalculator(NewCalculatorParams{Resolver: r, ParallelNodes: 3})
	if err != nil {
		t.Fatalf("expected calculator, got %v", err)
	}
	return calc
}

func panadolPack(size int64) common.PackageDetails[common.MedicationProductDetails] {
	return common.PackageDetails[common.MedicationProductDetails]{
		ProductName:   ref(panadol),
		ContainerType: ref(blisterPack),
		ContainedProducts: []common.ProductQuantity[common.MedicationProductDetails]{{
			Value: decimal.NewFromInt(size),
			Unit:  named(common.UnitEach, "each"),
			ProductDetails: common.MedicationProductDetails{
				GenericForm:        ref(tablet),
				UnitOfPresentation: ref(tabletUnit),
				ActiveIngredients: []common.Ingredient{{
					ActiveIngredient: ref(paracetamol),
					TotalQuantity:    &common.Quantity{Value: decimal.NewFromInt(500), Unit: named(milligram, "mg")},
				}},
			},
		}},
	}
}

func newLabels(summary *graph.ProductSummary) []graph.Label {
	labels := make([]graph.Label, 0)
	for _, n := range summary.NewNodes() {
		labels = append(labels, n.Label)
	}
	slices.Sort(labels)
	return labels
}

func TestCalculate_UnchangedPackIsFullyExisting(t *testing.T) {
	repo := newRepository()
	calc := newCalculator(t, repo)

	summary, err := NewAssembler(calc, MedicationStrategy{}).Calculate(context.Background(), "MAIN", panadolPack(20))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if n := len(summary.NewNodes()); n != 0 {
		t.Fatalf("expected no new nodes, got %d: %v", n, newLabels(summary))
	}
	if len(summary.Nodes) != 7 {
		t.Fatalf("expected 7 nodes, got %d", len(summary.Nodes))
	}
	if len(summary.Subjects) != 1 || summary.Subjects[0] != existingCTPP {
		t.Fatalf("expected subject %s, got %v", existingCTPP, summary.Subjects)
	}
	if len(repo.Created) != 0 {
		t.Fatalf("expected calculation not to write, got %d concepts", len(repo.Created))
	}
}

func TestCalculate_PackSizeChangeOnlyAffectsPackLevels(t *testing.T) {
	repo := newRepository()
	calc := newCalculator(t, repo)

	summary, err := NewAssembler(calc, MedicationStrategy{}).Calculate(context.Background(), "MAIN", panadolPack(30))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got := newLabels(summary)
	want := []graph.Label{graph.LabelCTPP, graph.LabelMPP, graph.LabelTPP}
	if !slices.Equal(got, want) {
		t.Fatalf("expected new nodes %v, got %v", want, got)
	}

	for _, id := range []string{existingMP, existingMPUU, existingTPUU} {
		n := summary.Node(id)
		if n == nil || n.IsNew() {
			t.Fatalf("expected %s to be existing", id)
		}
	}

	mpp := summary.NodesWithLabel(graph.LabelMPP)[0]
	if !strings.Contains(mpp.Draft.Axiom, `DataHasValue(:`+common.HasPackSizeValue+` "30"^^xsd:decimal)`) {
		t.Fatalf("expected pack size in MPP axiom, got %s", mpp.Draft.Axiom)
	}
	if !strings.HasPrefix(mpp.Draft.Axiom, "EquivalentClasses(") {
		t.Fatalf("expected fully defined MPP, got %s", mpp.Draft.Axiom)
	}

	ctpp := summary.NodesWithLabel(graph.LabelCTPP)[0]
	if len(summary.Subjects) != 1 || summary.Subjects[0] != ctpp.ConceptID {
		t.Fatalf("expected subject %s, got %v", ctpp.ConceptID, summary.Subjects)
	}
	if !common.IsPlaceholderID(ctpp.ConceptID) {
		t.Fatalf("expected placeholder id, got %s", ctpp.ConceptID)
	}

	// closure: the CTPP contains the generic unit through the TPP and MPP
	found := false
	for _, e := range summary.Edges {
		if e.Source == ctpp.ConceptID && e.Target == existingMPUU && e.Relation == graph.Contains {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected implied CONTAINS edge from CTPP to MPUU")
	}
}

func TestCalculate_ValidationBeforeRepositoryCalls(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*common.PackageDetails[common.MedicationProductDetails])
	}{
		{
			name:   "no container",
			mutate: func(p *common.PackageDetails[common.MedicationProductDetails]) { p.ContainerType = nil },
		},
		{
			name:   "no product name",
			mutate: func(p *common.PackageDetails[common.MedicationProductDetails]) { p.ProductName = nil },
		},
		{
			name: "fractional each",
			mutate: func(p *common.PackageDetails[common.MedicationProductDetails]) {
				p.ContainedProducts[0].Value = decimal.RequireFromString("2.5")
			},
		},
		{
			name: "no dose form",
			mutate: func(p *common.PackageDetails[common.MedicationProductDetails]) {
				p.ContainedProducts[0].ProductDetails.GenericForm = nil
			},
		},
		{
			name: "empty package",
			mutate: func(p *common.PackageDetails[common.MedicationProductDetails]) {
				p.ContainedProducts = nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepository()
			calc := newCalculator(t, repo)
			pkg := panadolPack(20)
			tt.mutate(&pkg)

			_, err := NewAssembler(calc, MedicationStrategy{}).Calculate(context.Background(), "MAIN", pkg)
			if !errors.Is(err, common.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if repo.QueryCount() != 0 {
				t.Fatalf("expected no queries, got %d", repo.QueryCount())
			}
		})
	}
}

func TestAssemblerValidate_OuterContainerDoesNotForceEach(t *testing.T) {
	mL := named("258773002", "mL")
	mgPerML := named("258798001", "mg/mL")
	bottle := named("419672006", "Bottle")

	syrup := func(total *common.Quantity) common.PackageDetails[common.MedicationProductDetails] {
		return common.PackageDetails[common.MedicationProductDetails]{
			ProductName:   ref(panadol),
			ContainerType: bottle,
			ContainedProducts: []common.ProductQuantity[common.MedicationProductDetails]{{
				Value: decimal.NewFromInt(200),
				Unit:  mL,
				ProductDetails: common.MedicationProductDetails{
					GenericForm: ref(tablet),
					ActiveIngredients: []common.Ingredient{{
						ActiveIngredient:      ref(paracetamol),
						TotalQuantity:         total,
						ConcentrationStrength: &common.Quantity{Value: decimal.NewFromInt(24), Unit: mgPerML},
					}},
				},
			}},
		}
	}

	a := NewAssembler(newCalculator(t, newRepository()), MedicationStrategy{})
	if err := a.Validate(syrup(nil)); err != nil {
		t.Fatalf("expected 200 mL in a bottle to be accepted, got %v", err)
	}

	ampoule := syrup(nil)
	ampoule.ContainedProducts[0].ProductDetails.ContainerType = named("420040002", "Ampoule")
	if err := a.Validate(ampoule); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected a unit of use container to force each, got %v", err)
	}

	ampoule.ContainedProducts[0].Value = decimal.NewFromInt(5)
	ampoule.ContainedProducts[0].Unit = named(common.UnitEach, "each")
	if err := a.Validate(ampoule); err != nil {
		t.Fatalf("expected 5 ampoules to be accepted, got %v", err)
	}
}

func TestPackage_CancelledContext(t *testing.T) {
	repo := newRepository()
	calc := newCalculator(t, repo)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAssembler(calc, MedicationStrategy{}).Package(ctx, calc.newRun("MAIN", nil), panadolPack(20))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if repo.QueryCount() != 0 {
		t.Fatalf("expected no queries, got %d", repo.QueryCount())
	}
}

func TestCalculate_UnknownConcept(t *testing.T) {
	repo := newRepository()
	delete(repo.Concepts, paracetamol)
	calc := newCalculator(t, repo)

	_, err := NewAssembler(calc, MedicationStrategy{}).Calculate(context.Background(), "MAIN", panadolPack(20))

	var verr *common.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !slices.Equal(verr.ConceptIDs, []string{paracetamol}) {
		t.Fatalf("expected %s to be reported, got %v", paracetamol, verr.ConceptIDs)
	}
}

func TestCalculate_NestedPackages(t *testing.T) {
	repo := newRepository()
	calc := newCalculator(t, repo)

	outer := common.PackageDetails[common.MedicationProductDetails]{
		ProductName:   ref(panadol),
		ContainerType: ref(blisterPack),
		ContainedPackages: []common.PackageQuantity[common.MedicationProductDetails]{
			{Value: decimal.NewFromInt(1), Unit: ref(common.UnitEach), PackageDetails: panadolPack(20)},
			{Value: decimal.NewFromInt(2), Unit: ref(common.UnitEach), PackageDetails: panadolPack(30)},
		},
	}

	summary, err := NewAssembler(calc, MedicationStrategy{}).Calculate(context.Background(), "MAIN", outer)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(summary.Subjects) != 1 {
		t.Fatalf("expected one subject, got %v", summary.Subjects)
	}
	subject := summary.Node(summary.Subjects[0])
	if subject == nil || !subject.IsNew() {
		t.Fatalf("expected outer CTPP to be new")
	}
	if !summary.ContainsEdgeBetween(subject.ConceptID, existingCTPP) {
		t.Fatalf("expected outer CTPP to contain %s", existingCTPP)
	}
	if got := len(summary.NodesWithLabel(graph.LabelCTPP)); got != 3 {
		t.Fatalf("expected 3 CTPPs, got %d", got)
	}

	var mpp *graph.Node
	for _, n := range summary.NodesWithLabel(graph.LabelMPP) {
		if n.Draft == nil {
			continue
		}
		for _, rel := range n.Draft.Relationships {
			if rel.TypeID == common.CountOfContainedPackageType {
				mpp = n
			}
		}
	}
	if mpp == nil {
		t.Fatalf("expected an MPP counting its contained packages")
	}
	contained := 0
	for _, rel := range mpp.Draft.Relationships {
		if rel.TypeID == common.ContainsPackagedClinicalDrug {
			contained++
		}
		if rel.TypeID == common.CountOfContainedPackageType && rel.Concrete.Value != "2" {
			t.Fatalf("expected count 2, got %s", rel.Concrete.Value)
		}
	}
	if contained != 2 {
		t.Fatalf("expected 2 contained packages, got %d", contained)
	}
}

func TestCalculate_SelectionSettlesPrimitiveMatches(t *testing.T) {
	repo := newRepository()
	repo.Rules = append([]terminologytest.Rule{{
		Contains: []string{"^" + common.MPPRefset, common.HasPackSizeValue + " = #30,"},
		Concepts: []common.ConceptReference{{ID: "4100", PT: "a"}, {ID: "4200", PT: "b"}},
	}}, repo.Rules...)
	calc := newCalculator(t, repo)

	pkg := panadolPack(30)
	pkg.SelectedConceptIdentifiers = []string{"4200"}
	summary, err := NewAssembler(calc, MedicationStrategy{}).Calculate(context.Background(), "MAIN", pkg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	n := summary.Node("4200")
	if n == nil || n.IsNew() || n.Label != graph.LabelMPP {
		t.Fatalf("expected selected MPP 4200 to be existing")
	}
}

func TestCalculate_Device(t *testing.T) {
	repo := newRepository()
	calc := newCalculator(t, repo)

	pkg := common.PackageDetails[common.DeviceProductDetails]{
		ProductName:   named("", "Acme"),
		ContainerType: ref(blisterPack),
		ContainedProducts: []common.ProductQuantity[common.DeviceProductDetails]{{
			Value: decimal.NewFromInt(10),
			Unit:  ref(common.UnitEach),
			ProductDetails: common.DeviceProductDetails{
				DeviceType:                  ref(deviceType),
				NewSpecificDeviceName:       "Acme bandage 5 cm",
				OtherIdentifyingInformation: "sterile",
			},
		}},
	}

	summary, err := NewAssembler(calc, DeviceStrategy{}).Calculate(context.Background(), "MAIN", pkg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	specific := summary.NodesWithLabel(graph.LabelMPUU)
	if len(specific) != 1 || !specific[0].IsNew() {
		t.Fatalf("expected one new specific device type, got %d", len(specific))
	}
	if specific[0].Draft.PT != "Acme bandage 5 cm" || specific[0].Draft.DefinitionStatus != common.Primitive {
		t.Fatalf("expected primitive draft named after the request, got %+v", specific[0].Draft)
	}

	tp := summary.NodesWithLabel(graph.LabelTP)
	if len(tp) != 1 || !tp[0].IsNew() || tp[0].Draft.PT != "Acme" {
		t.Fatalf("expected new brand Acme, got %v", tp)
	}

	tpuu := summary.NodesWithLabel(graph.LabelTPUU)[0]
	if !strings.Contains(tpuu.Draft.Axiom, `"sterile"^^xsd:string`) {
		t.Fatalf("expected identifying information in axiom, got %s", tpuu.Draft.Axiom)
	}
	if len(summary.NewNodes()) != 6 {
		t.Fatalf("expected 6 new nodes, got %v", newLabels(summary))
	}
}

func TestDeviceStrategy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		unit    string
		details common.DeviceProductDetails
		valid   bool
	}{
		{"existing specific", common.UnitEach, common.DeviceProductDetails{SpecificDeviceType: ref("1")}, true},
		{"new specific", common.UnitEach, common.DeviceProductDetails{DeviceType: ref("1"), NewSpecificDeviceName: "x"}, true},
		{"both", common.UnitEach, common.DeviceProductDetails{DeviceType: ref("1"), SpecificDeviceType: ref("2"), NewSpecificDeviceName: "x"}, false},
		{"neither", common.UnitEach, common.DeviceProductDetails{DeviceType: ref("1")}, false},
		{"new without parent", common.UnitEach, common.DeviceProductDetails{NewSpecificDeviceName: "x"}, false},
		{"not each", milligram, common.DeviceProductDetails{SpecificDeviceType: ref("1")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pq := common.ProductQuantity[common.DeviceProductDetails]{
				Value:          decimal.NewFromInt(1),
				Unit:           ref(tt.unit),
				ProductDetails: tt.details,
			}
			err := DeviceStrategy{}.Validate(pq)
			if tt.valid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.valid && !errors.Is(err, common.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
