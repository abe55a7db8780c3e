package product

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/graph"
	"github.com/OFFIS-RIT/amtcalc/pkg/quantity"
	"github.com/OFFIS-RIT/amtcalc/pkg/resolver"

	"golang.org/x/sync/errgroup"
)

// Units are the unit of use levels resolved for one contained product.
// Generic is contained by the MPP, Branded by the TPP and CTPP.
type Units struct {
	Generic *graph.Node
	Branded *graph.Node
	Summary *graph.ProductSummary
}

// Strategy supplies the product family specific parts of the hierarchy.
// Everything from the pack levels up is shared.
type Strategy[T any] interface {
	// Validate checks one contained product.
	Validate(pq common.ProductQuantity[T]) error
	// References lists every concept the product details point at.
	References(pq common.ProductQuantity[T]) []*common.ConceptReference
	// ResolveUnits resolves the unit of use levels of one contained product.
	ResolveUnits(ctx context.Context, run *Run, pq common.ProductQuantity[T], pkg common.PackageDetails[T]) (*Units, error)
}

// PackResult holds the pack levels of one package and everything below them.
type PackResult struct {
	MPP     *graph.Node
	TPP     *graph.Node
	CTPP    *graph.Node
	Summary *graph.ProductSummary
}

// Assembler builds the product hierarchy of one package bottom-up.
type Assembler[T any] struct {
	calc     *Calculator
	strategy Strategy[T]
}

// NewAssembler creates an Assembler for the product family of strategy.
func NewAssembler[T any](calc *Calculator, strategy Strategy[T]) *Assembler[T] {
	return &Assembler[T]{calc: calc, strategy: strategy}
}

// Calculate validates pkg, resolves every level against branch and returns
// the summary with its single subject. Nothing is written.
func (a *Assembler[T]) Calculate(ctx context.Context, branch string, pkg common.PackageDetails[T]) (*graph.ProductSummary, error) {
	if err := a.Validate(pkg); err != nil {
		return nil, err
	}

	run := a.calc.newRun(branch, selectedIDs(pkg))
	run.Log.Info("[Product] Calculating package")

	if err := run.preload(ctx, a.references(pkg)); err != nil {
		return nil, err
	}

	result, err := a.Package(ctx, run, pkg)
	if err != nil {
		return nil, err
	}

	summary := result.Summary
	added := summary.ComputeTransitiveClosure()
	if _, err := summary.CalculateSubject(); err != nil {
		return nil, err
	}

	run.Log.Info("[Product] Calculated package",
		"nodes", len(summary.Nodes),
		"new", len(summary.NewNodes()),
		"implied_edges", added,
	)
	return summary, nil
}

// Validate checks pkg and everything nested in it. It makes no repository
// calls.
func (a *Assembler[T]) Validate(pkg common.PackageDetails[T]) error {
	if pkg.ProductName == nil {
		return common.NewValidationError("package has no product name")
	}
	if pkg.ContainerType == nil || pkg.ContainerType.ID == "" {
		return &common.ValidationError{Reason: "package has no container type", TypeID: common.HasContainerType}
	}
	if len(pkg.ContainedProducts) == 0 && len(pkg.ContainedPackages) == 0 {
		return common.NewValidationError("package contains neither products nor packages")
	}
	for _, id := range pkg.ExternalIdentifiers {
		if id.Scheme == "" || id.Value == "" {
			return common.NewValidationError("external identifier needs a scheme and a value")
		}
	}

	for _, pq := range pkg.ContainedProducts {
		if err := a.strategy.Validate(pq); err != nil {
			return err
		}
	}
	for _, inner := range pkg.ContainedPackages {
		if err := quantity.ValidatePackageQuantity(inner.Value, inner.Unit); err != nil {
			return err
		}
		if err := a.Validate(inner.PackageDetails); err != nil {
			return fmt.Errorf("contained package: %w", err)
		}
	}
	return nil
}

func (a *Assembler[T]) references(pkg common.PackageDetails[T]) []*common.ConceptReference {
	refs := []*common.ConceptReference{pkg.ProductName, pkg.ContainerType}
	for _, pq := range pkg.ContainedProducts {
		refs = append(refs, pq.Unit)
		refs = append(refs, a.strategy.References(pq)...)
	}
	for _, inner := range pkg.ContainedPackages {
		refs = append(refs, inner.Unit)
		refs = append(refs, a.references(inner.PackageDetails)...)
	}
	return refs
}

func selectedIDs[T any](pkg common.PackageDetails[T]) []string {
	ids := append([]string{}, pkg.SelectedConceptIdentifiers...)
	for _, inner := range pkg.ContainedPackages {
		ids = append(ids, selectedIDs(inner.PackageDetails)...)
	}
	return ids
}

// Package resolves the contained products and nested packages of pkg
// concurrently, then the MPP, TPP and CTPP on top of them.
func (a *Assembler[T]) Package(ctx context.Context, run *Run, pkg common.PackageDetails[T]) (*PackResult, error) {
	units := make([]*Units, len(pkg.ContainedProducts))
	packs := make([]*PackResult, len(pkg.ContainedPackages))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(run.Parallel())
	for i, pq := range pkg.ContainedProducts {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				u, err := a.strategy.ResolveUnits(gCtx, run, pq, pkg)
				if err != nil {
					return err
				}
				units[i] = u
				return nil
			}
		})
	}
	for i, inner := range pkg.ContainedPackages {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				p, err := a.Package(gCtx, run, inner.PackageDetails)
				if err != nil {
					return err
				}
				packs[i] = p
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

	summary := graph.NewProductSummary()
	for _, u := range units {
		summary.Merge(u.Summary)
	}
	for _, p := range packs {
		summary.Merge(p.Summary)
	}

	brand, err := run.Brand(pkg.ProductName)
	if err != nil {
		return nil, err
	}
	brand = summary.AddNode(brand)

	mpp, err := run.Resolve(ctx, resolver.Request{
		Label:       graph.LabelMPP,
		SemanticTag: common.TagMedicinalProductPack,
		Refsets:     []string{common.MPPRefset},
		Candidates: packCandidates(
			[]common.RelationshipCandidate{
				common.NewRelationship(common.IsA, &common.ConceptReference{ID: common.MedicinalProductPackage}, 0),
			},
			pkg, units, packs,
			func(u *Units) *graph.Node { return u.Generic },
			func(p *PackResult) *graph.Node { return p.MPP },
		),
	})
	if err != nil {
		return nil, err
	}
	mpp = summary.AddNode(mpp)
	for _, u := range units {
		summary.AddEdge(mpp.ConceptID, u.Generic.ConceptID, graph.Contains)
	}
	for _, p := range packs {
		summary.AddEdge(mpp.ConceptID, p.MPP.ConceptID, graph.Contains)
	}

	tpp, err := run.Resolve(ctx, resolver.Request{
		Label:       graph.LabelTPP,
		SemanticTag: common.TagTradeProductPack,
		Refsets:     []string{common.TPPRefset},
		Candidates: packCandidates(
			[]common.RelationshipCandidate{
				common.NewRelationship(common.IsA, mpp.Reference(), 0),
				common.NewRelationship(common.HasProductName, brand.Reference(), 0),
			},
			pkg, units, packs,
			func(u *Units) *graph.Node { return u.Branded },
			func(p *PackResult) *graph.Node { return p.TPP },
		),
	})
	if err != nil {
		return nil, err
	}
	tpp = summary.AddNode(tpp)
	summary.AddEdge(tpp.ConceptID, mpp.ConceptID, graph.IsA)
	summary.AddEdge(tpp.ConceptID, brand.ConceptID, graph.HasName)
	for _, u := range units {
		summary.AddEdge(tpp.ConceptID, u.Branded.ConceptID, graph.Contains)
	}
	for _, p := range packs {
		summary.AddEdge(tpp.ConceptID, p.TPP.ConceptID, graph.Contains)
	}

	ctpp, err := run.Resolve(ctx, resolver.Request{
		Label:               graph.LabelCTPP,
		SemanticTag:         common.TagContaineredTradePack,
		Refsets:             []string{common.CTPPRefset},
		ExternalIdentifiers: pkg.ExternalIdentifiers,
		Candidates: packCandidates(
			[]common.RelationshipCandidate{
				common.NewRelationship(common.IsA, tpp.Reference(), 0),
				common.NewRelationship(common.HasProductName, brand.Reference(), 0),
				common.NewRelationship(common.HasContainerType, pkg.ContainerType, 0),
			},
			pkg, units, packs,
			func(u *Units) *graph.Node { return u.Branded },
			func(p *PackResult) *graph.Node { return p.CTPP },
		),
	})
	if err != nil {
		return nil, err
	}
	ctpp = summary.AddNode(ctpp)
	summary.AddEdge(ctpp.ConceptID, tpp.ConceptID, graph.IsA)
	summary.AddEdge(ctpp.ConceptID, brand.ConceptID, graph.HasName)
	for _, u := range units {
		summary.AddEdge(ctpp.ConceptID, u.Branded.ConceptID, graph.Contains)
	}
	for _, p := range packs {
		summary.AddEdge(ctpp.ConceptID, p.CTPP.ConceptID, graph.Contains)
	}

	return &PackResult{MPP: mpp, TPP: tpp, CTPP: ctpp, Summary: summary}, nil
}

// packCandidates appends one role group per contained product and nested
// package to base. Nested packages additionally count their types.
func packCandidates[T any](
	base []common.RelationshipCandidate,
	pkg common.PackageDetails[T],
	units []*Units,
	packs []*PackResult,
	unitNode func(*Units) *graph.Node,
	packNode func(*PackResult) *graph.Node,
) []common.RelationshipCandidate {
	out := append([]common.RelationshipCandidate{}, base...)
	group := 0
	for i, u := range units {
		group++
		pq := pkg.ContainedProducts[i]
		out = append(out,
			common.NewRelationship(common.ContainsClinicalDrug, unitNode(u).Reference(), group),
			common.NewDecimalRelationship(common.HasPackSizeValue, pq.Value, group),
			common.NewRelationship(common.HasPackSizeUnit, pq.Unit, group),
		)
	}
	for i, p := range packs {
		group++
		inner := pkg.ContainedPackages[i]
		out = append(out,
			common.NewRelationship(common.ContainsPackagedClinicalDrug, packNode(p).Reference(), group),
			common.NewDecimalRelationship(common.HasPackSizeValue, inner.Value, group),
			common.NewRelationship(common.HasPackSizeUnit, inner.Unit, group),
		)
	}
	if len(packs) > 0 {
		out = append(out, common.NewIntegerRelationship(common.CountOfContainedPackageType, len(packs), 0))
	}
	return out
}
