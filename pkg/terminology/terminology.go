// Package terminology defines the collaborators the calculator talks to:
// the terminology repository, the axiom translator, the name generator and
// the identifier scheme registry.
package terminology

import (
	"context"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
)

// ConceptPage is one bounded page of a constraint query.
//
// Total is the number of matches on the server, which may be larger than
// len(Items).
type ConceptPage struct {
	Items []common.ConceptReference
	Total int
}

// Concept is a concept as loaded from the repository.
type Concept struct {
	common.ConceptReference
	ModuleID string
	Active   bool
	Axioms   []string
}

// MemberQuery filters reference set members. Empty fields do not filter.
type MemberQuery struct {
	RefsetID               string
	ReferencedComponentIDs []string
	MapTarget              string
}

// Repository is the terminology server holding the concepts products are
// resolved against and created in. Every call addresses one branch.
type Repository interface {
	// FindConceptsByQuery runs an ECL expression and returns at most limit
	// matches starting at offset, together with the total match count.
	FindConceptsByQuery(ctx context.Context, branch, ecl string, offset, limit int) (ConceptPage, error)
	// BulkLoadConcepts loads concepts with their axioms. Unknown ids are
	// missing from the result.
	BulkLoadConcepts(ctx context.Context, branch string, ids []string) (map[string]Concept, error)
	FindReferenceSetMembers(ctx context.Context, branch string, query MemberQuery) ([]common.ReferenceSetMember, error)
	// FindRelationships returns the active inferred relationships of source
	// with the given type.
	FindRelationships(ctx context.Context, branch, sourceID, typeID string) ([]common.RelationshipCandidate, error)
	CreateConcept(ctx context.Context, branch string, draft common.ConceptDraft) (common.ConceptReference, error)
	CreateReferenceSetMember(ctx context.Context, branch string, member common.ReferenceSetMember) error
	ConceptExists(ctx context.Context, branch, id string) (bool, error)
}

// AxiomTranslator renders a candidate set as exactly one axiom expression
// for conceptID.
type AxiomTranslator interface {
	Translate(conceptID string, candidates []common.RelationshipCandidate, status common.DefinitionStatus) (string, error)
}

// Names is a generated fully specified name and preferred term.
type Names struct {
	FSN string `json:"fsn"`
	PT  string `json:"pt"`
}

// NameGenerator derives names from an axiom in which concept ids have been
// replaced by display names. It must be deterministic.
type NameGenerator interface {
	GenerateNames(ctx context.Context, semanticTag, axiom string) (Names, error)
}

// IdentifierRegistry maps an external identifier scheme to the reference
// set its identifiers are recorded in.
type IdentifierRegistry interface {
	RefsetFor(scheme string) (string, error)
}
