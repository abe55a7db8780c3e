// Package product assembles the product hierarchy of medications, devices
// and bulk brand/pack size variants bottom-up, resolving every level
// against the terminology repository.
package product

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/graph"
	"github.com/OFFIS-RIT/amtcalc/pkg/idcache"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"
	"github.com/OFFIS-RIT/amtcalc/pkg/resolver"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Calculator holds what every calculation shares: the node resolver and
// the concurrency limit.
//
// A Calculator should be created using NewCalculator.
type Calculator struct {
	resolver      *resolver.NodeResolver
	parallelNodes int
}

// NewCalculatorParams configures a Calculator.
//
// ParallelNodes limits how many sibling nodes of one hierarchy level are
// resolved concurrently.
type NewCalculatorParams struct {
	Resolver      *resolver.NodeResolver
	ParallelNodes int
}

// NewCalculator creates a Calculator.
//
// Example:
//
//	calc, err := product.NewCalculator(product.NewCalculatorParams{
//		Resolver:      nodeResolver,
//		ParallelNodes: 8,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	summary, err := product.NewAssembler(calc, product.MedicationStrategy{}).
//		Calculate(ctx, "MAIN/SNOMEDCT-AU/AUAMT", details)
func NewCalculator(params NewCalculatorParams) (*Calculator, error) {
	if params.Resolver == nil {
		return nil, errors.New("calculator needs a node resolver")
	}
	parallel := params.ParallelNodes
	if parallel <= 0 {
		parallel = 4
	}
	return &Calculator{
		resolver:      params.Resolver,
		parallelNodes: parallel,
	}, nil
}

// Run is the state of one calculation. It is created per request and
// discarded with the result.
type Run struct {
	ID       string
	Branch   string
	Cache    *idcache.Cache
	Log      *logger.Entry
	selected []string

	calc *Calculator
}

func (c *Calculator) newRun(branch string, selected []string) *Run {
	id, err := gonanoid.New()
	if err != nil {
		id = "unknown"
	}
	sorted := slices.Clone(selected)
	sort.Strings(sorted)
	return &Run{
		ID:       id,
		Branch:   branch,
		Cache:    idcache.New(),
		Log:      logger.With("calculation", id, "branch", branch),
		selected: slices.Compact(sorted),
		calc:     c,
	}
}

// Parallel is the number of sibling nodes resolved concurrently.
func (r *Run) Parallel() int {
	return r.calc.parallelNodes
}

// Resolve resolves one node on the run's branch, honouring the user's
// concept selections.
func (r *Run) Resolve(ctx context.Context, req resolver.Request) (*graph.Node, error) {
	req.Branch = r.Branch
	req.SelectedIDs = append(slices.Clone(req.SelectedIDs), r.selected...)
	node, err := r.calc.resolver.Resolve(ctx, r.Cache, req)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", req.Label, err)
	}
	return node, nil
}

// Define drafts a primitive concept named pt without a lookup.
func (r *Run) Define(req resolver.Request, pt string) (*graph.Node, error) {
	req.Branch = r.Branch
	return r.calc.resolver.Define(r.Cache, req, pt)
}

// Existing wraps a concept given in the request.
func (r *Run) Existing(ref common.ConceptReference, label graph.Label) *graph.Node {
	if name, ok := r.Cache.Name(ref.ID); ok && ref.PT == "" {
		ref.PT = name
	}
	r.Cache.Put(ref.ID, ref.Name())
	return graph.NewExistingNode(ref, label)
}

// Brand returns the TP node of a brand. A brand without an id is drafted as
// a new product name.
func (r *Run) Brand(brand *common.ConceptReference) (*graph.Node, error) {
	if brand == nil {
		return nil, common.NewValidationError("product name is required")
	}
	if brand.ID != "" && !brand.IsPlaceholder() {
		return r.Existing(*brand, graph.LabelTP), nil
	}
	if brand.PT == "" {
		return nil, common.NewValidationError("new product name needs a preferred term")
	}
	return r.Define(resolver.Request{
		Label:       graph.LabelTP,
		SemanticTag: common.TagProductName,
		Refsets:     []string{common.TPRefset},
		Candidates: []common.RelationshipCandidate{
			common.NewRelationship(common.IsA, &common.ConceptReference{ID: common.ProductName}, 0),
		},
	}, brand.PT)
}

// preload checks that every referenced concept exists and is active and
// caches its name. Names are filled into refs that came without one.
func (r *Run) preload(ctx context.Context, refs []*common.ConceptReference) error {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref == nil || ref.ID == "" || ref.IsPlaceholder() {
			continue
		}
		ids = append(ids, ref.ID)
	}
	sort.Strings(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return nil
	}

	concepts, err := r.calc.resolver.Repository().BulkLoadConcepts(ctx, r.Branch, ids)
	if err != nil {
		return fmt.Errorf("failed to load referenced concepts: %w", err)
	}

	missing := make([]string, 0)
	for _, id := range ids {
		c, ok := concepts[id]
		if !ok || !c.Active {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &common.ValidationError{
			Reason:     "referenced concepts do not exist or are inactive",
			Branch:     r.Branch,
			ConceptIDs: missing,
		}
	}

	for _, ref := range refs {
		if ref == nil || ref.ID == "" {
			continue
		}
		c, ok := concepts[ref.ID]
		if !ok {
			continue
		}
		if ref.PT == "" {
			ref.PT = c.PT
		}
		if ref.FSN == "" {
			ref.FSN = c.FSN
		}
		if ref.DefinitionStatus == "" {
			ref.DefinitionStatus = c.DefinitionStatus
		}
		r.Cache.Put(ref.ID, ref.Name())
	}

	r.Log.Debug("[Product] Preloaded concepts", "count", len(ids))
	return nil
}
