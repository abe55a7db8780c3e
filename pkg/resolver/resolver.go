// Package resolver decides for a single hierarchy node whether an equivalent
// concept already exists or a new one has to be drafted.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/ecl"
	"github.com/OFFIS-RIT/amtcalc/pkg/graph"
	"github.com/OFFIS-RIT/amtcalc/pkg/idcache"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology"

	"golang.org/x/sync/errgroup"
)

// Request describes the node to resolve.
type Request struct {
	Branch      string
	Label       graph.Label
	SemanticTag string
	Candidates  []common.RelationshipCandidate
	Refsets     []string
	Options     ecl.Options

	// ExternalIdentifiers are attached to the draft if a new concept is needed.
	ExternalIdentifiers []common.ExternalIdentifier
	// SelectedIDs are concepts the user picked to settle ambiguous matches.
	SelectedIDs []string
}

// NodeResolver resolves nodes against a terminology repository.
//
// A NodeResolver should be created using NewNodeResolver. It holds no
// per-calculation state and is safe for concurrent use.
type NodeResolver struct {
	repo          terminology.Repository
	axioms        terminology.AxiomTranslator
	names         terminology.NameGenerator
	maxMatches    int
	parallelLooks int
}

// NewNodeResolverParams configures a NodeResolver.
//
// MaxMatches is the hard cap on matches a lookup may return; more matches
// fail the calculation. ParallelLookups limits concurrent relationship
// lookups of the identifying information filter.
type NewNodeResolverParams struct {
	Repository      terminology.Repository
	Axioms          terminology.AxiomTranslator
	Names           terminology.NameGenerator
	MaxMatches      int
	ParallelLookups int
}

// NewNodeResolver creates a NodeResolver. Non-positive limits fall back to
// MaxMatches 25 and ParallelLookups 4.
func NewNodeResolver(params NewNodeResolverParams) (*NodeResolver, error) {
	if params.Repository == nil || params.Axioms == nil || params.Names == nil {
		return nil, errors.New("resolver needs a repository, an axiom translator and a name generator")
	}
	maxMatches := params.MaxMatches
	if maxMatches <= 0 {
		maxMatches = 25
	}
	parallel := params.ParallelLookups
	if parallel <= 0 {
		parallel = 4
	}
	return &NodeResolver{
		repo:          params.Repository,
		axioms:        params.Axioms,
		names:         params.Names,
		maxMatches:    maxMatches,
		parallelLooks: parallel,
	}, nil
}

// Repository returns the repository the resolver queries.
func (r *NodeResolver) Repository() terminology.Repository {
	return r.repo
}

// Resolve returns an Existing node if exactly one equivalent concept exists
// or the user's selection settles the choice, and a New node otherwise.
//
// Requests describing the same node within one calculation share a single
// resolution through cache, so concurrent branches never draft the same
// concept twice.
func (r *NodeResolver) Resolve(ctx context.Context, cache *idcache.Cache, req Request) (*graph.Node, error) {
	v, err := cache.Remember(memoKey(req), func() (any, error) {
		return r.resolve(ctx, cache, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*graph.Node), nil
}

func (r *NodeResolver) resolve(ctx context.Context, cache *idcache.Cache, req Request) (*graph.Node, error) {
	matches, query, err := r.lookup(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(matches) == 1 && matches[0].IsFullyDefined() {
		logger.Debug("[Resolver] Match", "label", req.Label, "concept", matches[0].ID, "branch", req.Branch)
		return r.existing(cache, matches[0], req.Label), nil
	}

	selected := make([]common.ConceptReference, 0)
	for _, m := range matches {
		if slices.Contains(req.SelectedIDs, m.ID) {
			selected = append(selected, m)
		}
	}
	switch len(selected) {
	case 0:
	case 1:
		logger.Debug("[Resolver] Selected", "label", req.Label, "concept", selected[0].ID, "branch", req.Branch)
		return r.existing(cache, selected[0], req.Label), nil
	default:
		ids := make([]string, 0, len(selected))
		for _, s := range selected {
			ids = append(ids, s.ID)
		}
		return nil, &common.AmbiguityError{Kind: common.AmbiguousSelection, Branch: req.Branch, Query: query, ConceptIDs: ids}
	}

	return r.draft(ctx, cache, req, matches)
}

func (r *NodeResolver) existing(cache *idcache.Cache, concept common.ConceptReference, label graph.Label) *graph.Node {
	cache.Put(concept.ID, concept.Name())
	return graph.NewExistingNode(concept, label)
}

// lookup runs the capped constraint query and the identifying information
// filter. No lookup is possible for an empty candidate set or one that
// references a placeholder.
func (r *NodeResolver) lookup(ctx context.Context, req Request) ([]common.ConceptReference, string, error) {
	if len(req.Candidates) == 0 {
		return nil, "", nil
	}
	query, err := ecl.Build(req.Candidates, req.Refsets, req.Options)
	if errors.Is(err, ecl.ErrNoQueryPossible) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	page, err := r.repo.FindConceptsByQuery(ctx, req.Branch, query, 0, r.maxMatches)
	if err != nil {
		return nil, query, fmt.Errorf("failed to look up %s: %w", req.Label, err)
	}
	if page.Total > r.maxMatches || len(page.Items) > r.maxMatches {
		return nil, query, &common.AmbiguityError{
			Kind:   common.TooManyMatches,
			Branch: req.Branch,
			Query:  query,
			Total:  page.Total,
			Limit:  r.maxMatches,
		}
	}

	matches, err := r.filterIdentifyingInformation(ctx, req, page.Items)
	if err != nil {
		return nil, query, err
	}
	return matches, query, nil
}

// filterIdentifyingInformation keeps the matches whose free text
// identifying information equals the candidate's. A branded unit request
// without any keeps only matches that carry none either. ECL cannot compare
// it, so each match is checked with its own relationship lookup.
func (r *NodeResolver) filterIdentifyingInformation(
	ctx context.Context,
	req Request,
	matches []common.ConceptReference,
) ([]common.ConceptReference, error) {
	want, ok := identifyingInformation(req.Candidates)
	if (!ok && req.Label != graph.LabelTPUU) || len(matches) == 0 {
		return matches, nil
	}

	keep := make([]bool, len(matches))
	mu := sync.Mutex{}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelLooks)
	for i, match := range matches {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				rels, err := r.repo.FindRelationships(gCtx, req.Branch, match.ID, common.HasOtherIdentifyingInformation)
				if err != nil {
					return fmt.Errorf("failed to load identifying information of %s: %w", match.ID, err)
				}
				texts := activeTexts(rels)
				if (ok && slices.Contains(texts, want)) || (!ok && len(texts) == 0) {
					mu.Lock()
					keep[i] = true
					mu.Unlock()
				}
				return nil
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]common.ConceptReference, 0, len(matches))
	for i, m := range matches {
		if keep[i] {
			out = append(out, m)
		}
	}
	return out, nil
}

func identifyingInformation(candidates []common.RelationshipCandidate) (string, bool) {
	for _, c := range candidates {
		if c.Active && c.TypeID == common.HasOtherIdentifyingInformation && c.Concrete != nil {
			return c.Concrete.Value, true
		}
	}
	return "", false
}

func activeTexts(rels []common.RelationshipCandidate) []string {
	var out []string
	for _, rel := range rels {
		if rel.Active && rel.Concrete != nil && rel.Concrete.Value != "" {
			out = append(out, rel.Concrete.Value)
		}
	}
	return out
}

// draft allocates a placeholder and synthesizes the new concept's
// definition. Remaining options make the draft primitive; the reviewer can
// still pick one of them instead.
func (r *NodeResolver) draft(
	ctx context.Context,
	cache *idcache.Cache,
	req Request,
	options []common.ConceptReference,
) (*graph.Node, error) {
	status := common.FullyDefined
	if len(options) > 0 {
		status = common.Primitive
	}

	id := cache.NextPlaceholder()
	axiom, err := r.axioms.Translate(id, req.Candidates, status)
	if err != nil {
		return nil, fmt.Errorf("failed to translate %s axiom: %w", req.Label, err)
	}

	names, err := r.names.GenerateNames(ctx, req.SemanticTag, cache.SubstituteNames(axiom))
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s names: %w", req.Label, err)
	}
	cache.Put(id, names.PT)

	logger.Debug("[Resolver] New concept", "label", req.Label, "placeholder", id, "pt", names.PT, "options", len(options))

	return &graph.Node{
		ConceptID:      id,
		Label:          req.Label,
		PlaceholderID:  id,
		ConceptOptions: options,
		Draft: &graph.NewConceptDraft{
			SemanticTag:         req.SemanticTag,
			FSN:                 names.FSN,
			PT:                  names.PT,
			Axiom:               axiom,
			DefinitionStatus:    status,
			Relationships:       req.Candidates,
			Refsets:             req.Refsets,
			ExternalIdentifiers: req.ExternalIdentifiers,
		},
	}, nil
}

// Define drafts a primitive concept with caller supplied names, e.g. a new
// brand or a new specific device type. No lookup is made.
func (r *NodeResolver) Define(cache *idcache.Cache, req Request, pt string) (*graph.Node, error) {
	v, err := cache.Remember("define|"+memoKey(req)+"|"+pt, func() (any, error) {
		id := cache.NextPlaceholder()
		axiom, err := r.axioms.Translate(id, req.Candidates, common.Primitive)
		if err != nil {
			return nil, fmt.Errorf("failed to translate %s axiom: %w", req.Label, err)
		}
		cache.Put(id, pt)
		return &graph.Node{
			ConceptID:     id,
			Label:         req.Label,
			PlaceholderID: id,
			Draft: &graph.NewConceptDraft{
				SemanticTag:         req.SemanticTag,
				FSN:                 pt + " (" + req.SemanticTag + ")",
				PT:                  pt,
				Axiom:               axiom,
				DefinitionStatus:    common.Primitive,
				Relationships:       req.Candidates,
				Refsets:             req.Refsets,
				ExternalIdentifiers: req.ExternalIdentifiers,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*graph.Node), nil
}

func memoKey(req Request) string {
	refsets := slices.Clone(req.Refsets)
	sort.Strings(refsets)
	selected := slices.Clone(req.SelectedIDs)
	sort.Strings(selected)
	ids := make([]string, 0, len(req.ExternalIdentifiers))
	for _, id := range req.ExternalIdentifiers {
		ids = append(ids, id.Scheme+"="+id.Value)
	}
	sort.Strings(ids)

	return strings.Join([]string{
		string(req.Label),
		fmt.Sprintf("%t,%t", req.Options.SuppressIsA, req.Options.SuppressNegativeStatements),
		ecl.CanonicalKey(req.Candidates),
		strings.Join(refsets, ","),
		strings.Join(selected, ","),
		strings.Join(ids, ","),
	}, "|")
}
