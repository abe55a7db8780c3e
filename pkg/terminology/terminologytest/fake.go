// Package terminologytest provides in-memory fakes of the terminology
// collaborators for tests.
package terminologytest

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology"
)

// Rule answers every query that contains all of Contains with Concepts.
// Total defaults to len(Concepts).
type Rule struct {
	Contains []string
	Concepts []common.ConceptReference
	Total    int
}

// Repository is an in-memory terminology.Repository. Queries are answered
// by the first matching rule; everything else is recorded for assertions.
type Repository struct {
	mu sync.Mutex

	Rules         []Rule
	Relationships map[string][]common.RelationshipCandidate
	Concepts      map[string]terminology.Concept
	Members       []common.ReferenceSetMember
	Existing      map[string]bool
	CreateErr     map[string]error
	MemberErr     map[string]error

	Queries        []string
	Created        []common.ConceptDraft
	CreatedMembers []common.ReferenceSetMember
	nextID         int
}

// NewRepository creates an empty fake.
func NewRepository(rules ...Rule) *Repository {
	return &Repository{
		Rules:         rules,
		Relationships: make(map[string][]common.RelationshipCandidate),
		Concepts:      make(map[string]terminology.Concept),
		Existing:      make(map[string]bool),
		CreateErr:     make(map[string]error),
		MemberErr:     make(map[string]error),
		nextID:        9000000,
	}
}

var _ terminology.Repository = (*Repository)(nil)

// SetRelationships registers the relationships of source with typeID.
func (r *Repository) SetRelationships(source, typeID string, rels ...common.RelationshipCandidate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Relationships[source+"|"+typeID] = rels
}

func (r *Repository) FindConceptsByQuery(ctx context.Context, branch, ecl string, offset, limit int) (terminology.ConceptPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Queries = append(r.Queries, ecl)

	for _, rule := range r.Rules {
		if !containsAll(ecl, rule.Contains) {
			continue
		}
		items := rule.Concepts
		total := rule.Total
		if total < len(items) {
			total = len(items)
		}
		if offset < len(items) {
			items = items[offset:]
		} else {
			items = nil
		}
		if limit >= 0 && len(items) > limit {
			items = items[:limit]
		}
		return terminology.ConceptPage{Items: slices.Clone(items), Total: total}, nil
	}
	return terminology.ConceptPage{Items: []common.ConceptReference{}}, nil
}

func (r *Repository) BulkLoadConcepts(ctx context.Context, branch string, ids []string) (map[string]terminology.Concept, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]terminology.Concept, len(ids))
	for _, id := range ids {
		if c, ok := r.Concepts[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (r *Repository) FindReferenceSetMembers(ctx context.Context, branch string, query terminology.MemberQuery) ([]common.ReferenceSetMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]common.ReferenceSetMember, 0)
	for _, m := range append(slices.Clone(r.Members), r.CreatedMembers...) {
		if query.RefsetID != "" && m.RefsetID != query.RefsetID {
			continue
		}
		if len(query.ReferencedComponentIDs) > 0 && !slices.Contains(query.ReferencedComponentIDs, m.ReferencedComponentID) {
			continue
		}
		if query.MapTarget != "" && m.AdditionalFields["mapTarget"] != query.MapTarget {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *Repository) FindRelationships(ctx context.Context, branch, sourceID, typeID string) ([]common.RelationshipCandidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.Relationships[sourceID+"|"+typeID]), nil
}

func (r *Repository) CreateConcept(ctx context.Context, branch string, draft common.ConceptDraft) (common.ConceptReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.CreateErr[draft.PT]; ok {
		return common.ConceptReference{}, err
	}
	id := draft.ConceptID
	if id == "" {
		r.nextID++
		id = strconv.Itoa(r.nextID)
	}
	r.Created = append(r.Created, draft)
	r.Existing[id] = true
	return common.ConceptReference{ID: id, FSN: draft.FSN, PT: draft.PT, DefinitionStatus: draft.DefinitionStatus}, nil
}

func (r *Repository) CreateReferenceSetMember(ctx context.Context, branch string, member common.ReferenceSetMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.MemberErr[member.RefsetID]; ok {
		return err
	}
	r.CreatedMembers = append(r.CreatedMembers, member)
	return nil
}

func (r *Repository) ConceptExists(ctx context.Context, branch, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Existing[id], nil
}

// QueryCount returns how many queries were made.
func (r *Repository) QueryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Queries)
}

func containsAll(s string, parts []string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}

// Names is a deterministic terminology.NameGenerator that echoes its input.
type Names struct {
	mu     sync.Mutex
	Axioms []string
}

var _ terminology.NameGenerator = (*Names)(nil)

func (n *Names) GenerateNames(ctx context.Context, semanticTag, axiom string) (terminology.Names, error) {
	n.mu.Lock()
	n.Axioms = append(n.Axioms, axiom)
	n.mu.Unlock()
	pt := semanticTag + " " + axiom
	return terminology.Names{FSN: pt + " (" + semanticTag + ")", PT: pt}, nil
}
