package product

import (
	"context"
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/graph"
	"github.com/OFFIS-RIT/amtcalc/pkg/quantity"

	"golang.org/x/sync/errgroup"
)

// BrandPackSizeCalculator calculates every brand and pack size variant of
// an existing single-product package.
type BrandPackSizeCalculator struct {
	medications *Assembler[common.MedicationProductDetails]
}

// NewBrandPackSizeCalculator creates a BrandPackSizeCalculator on calc.
func NewBrandPackSizeCalculator(calc *Calculator) *BrandPackSizeCalculator {
	return &BrandPackSizeCalculator{medications: NewAssembler(calc, MedicationStrategy{})}
}

// Validate checks the request and every variant it describes.
func (b *BrandPackSizeCalculator) Validate(details common.BrandPackSizeCreationDetails) error {
	if details.ProductID == "" {
		return common.NewValidationError("product id is required")
	}
	base := details.PackageDetails
	if len(base.ContainedProducts) != 1 || len(base.ContainedPackages) != 0 {
		return &common.ValidationError{
			Reason:     "brand and pack size variants need a package with exactly one contained product",
			ConceptIDs: []string{details.ProductID},
		}
	}
	if len(details.Brands) == 0 && len(details.PackSizes) == 0 {
		return common.NewValidationError("at least one brand or pack size is required")
	}
	for _, brand := range details.Brands {
		if brand.Brand.ID == "" && brand.Brand.PT == "" {
			return common.NewValidationError("brand needs an id or a name")
		}
	}

	unit := base.ContainedProducts[0].Unit
	requireEach := quantity.RequiresEach(base.ContainedProducts[0].ProductDetails)
	for _, size := range details.PackSizes {
		if err := quantity.ValidateQuantity(size.PackSize, unit, requireEach); err != nil {
			return err
		}
	}

	for _, variant := range variants(details) {
		if err := b.medications.Validate(variant); err != nil {
			return err
		}
	}
	return nil
}

// Calculate returns one summary holding every variant, with one subject per
// variant package.
func (b *BrandPackSizeCalculator) Calculate(ctx context.Context, branch string, details common.BrandPackSizeCreationDetails) (*graph.ProductSummary, error) {
	if err := b.Validate(details); err != nil {
		return nil, err
	}

	run := b.medications.calc.newRun(branch, details.PackageDetails.SelectedConceptIdentifiers)
	run.Log.Info("[Product] Calculating brand and pack size variants",
		"product", details.ProductID,
		"brands", len(details.Brands),
		"pack_sizes", len(details.PackSizes),
	)

	concepts, err := b.medications.calc.resolver.Repository().BulkLoadConcepts(ctx, branch, []string{details.ProductID})
	if err != nil {
		return nil, fmt.Errorf("failed to load product %s: %w", details.ProductID, err)
	}
	if c, ok := concepts[details.ProductID]; !ok || !c.Active {
		return nil, &common.AmbiguityError{Kind: common.NoMatch, Branch: branch, ConceptIDs: []string{details.ProductID}}
	}

	all := variants(details)
	refs := make([]*common.ConceptReference, 0)
	for _, v := range all {
		refs = append(refs, b.medications.references(v)...)
	}
	if err := run.preload(ctx, refs); err != nil {
		return nil, err
	}

	summary := graph.NewProductSummary()
	mu := sync.Mutex{}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(run.Parallel())
	for _, variant := range all {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				res, err := b.medications.Package(gCtx, run, variant)
				if err != nil {
					return err
				}
				mu.Lock()
				summary.Merge(res.Summary)
				mu.Unlock()
				return nil
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary.ComputeTransitiveClosure()
	subjects, err := summary.CalculateSubjects()
	if err != nil {
		return nil, err
	}

	run.Log.Info("[Product] Calculated brand and pack size variants",
		"subjects", len(subjects),
		"new", len(summary.NewNodes()),
	)
	return summary, nil
}

// variants expands the request into one package per brand and pack size.
// Without brands the package's own brand is used, without pack sizes its
// own pack size.
func variants(details common.BrandPackSizeCreationDetails) []common.PackageDetails[common.MedicationProductDetails] {
	base := details.PackageDetails

	brands := details.Brands
	if len(brands) == 0 {
		brand := common.BrandWithIdentifiers{}
		if base.ProductName != nil {
			brand.Brand = *base.ProductName
		}
		brands = []common.BrandWithIdentifiers{brand}
	}
	sizes := details.PackSizes
	if len(sizes) == 0 && len(base.ContainedProducts) > 0 {
		sizes = []common.PackSizeWithIdentifiers{{PackSize: base.ContainedProducts[0].Value}}
	}

	brandRefs := make([]*common.ConceptReference, len(brands))
	for i := range brands {
		ref := brands[i].Brand
		brandRefs[i] = &ref
	}

	out := make([]common.PackageDetails[common.MedicationProductDetails], 0, len(brands)*len(sizes))
	for i, brand := range brands {
		for _, size := range sizes {
			v := base
			v.ProductName = brandRefs[i]
			v.ContainedProducts = make([]common.ProductQuantity[common.MedicationProductDetails], len(base.ContainedProducts))
			copy(v.ContainedProducts, base.ContainedProducts)
			v.ContainedProducts[0].Value = size.PackSize
			v.ContainedProducts[0].ProductDetails.ProductName = brandRefs[i]

			ids := make([]common.ExternalIdentifier, 0, len(base.ExternalIdentifiers)+len(brand.ExternalIdentifiers)+len(size.ExternalIdentifiers))
			ids = append(ids, base.ExternalIdentifiers...)
			ids = append(ids, brand.ExternalIdentifiers...)
			ids = append(ids, size.ExternalIdentifiers...)
			v.ExternalIdentifiers = ids

			out = append(out, v)
		}
	}
	return out
}
