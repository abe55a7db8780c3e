package graph

import (
	"github.com/OFFIS-RIT/amtcalc/pkg/common"
)

// Label is the structural role of a node in the product hierarchy.
type Label string

const (
	// LabelMP is the ingredient level medicinal product.
	LabelMP Label = "MP"
	// LabelMPUU is the generic unit of use.
	LabelMPUU Label = "MPUU"
	// LabelTPUU is the branded unit of use.
	LabelTPUU Label = "TPUU"
	// LabelMPP is the generic pack.
	LabelMPP Label = "MPP"
	// LabelTPP is the branded pack.
	LabelTPP Label = "TPP"
	// LabelCTPP is the branded and containerized pack.
	LabelCTPP Label = "CTPP"
	// LabelTP is the brand.
	LabelTP Label = "TP"
)

// Relation is the meaning of an edge.
type Relation string

const (
	IsA      Relation = "IS_A"
	Contains Relation = "CONTAINS"
	HasName  Relation = "HAS_NAME"
)

// NewConceptDraft is the synthesized definition of a concept that does not
// exist yet.
type NewConceptDraft struct {
	SemanticTag         string                         `json:"semanticTag"`
	FSN                 string                         `json:"fsn"`
	PT                  string                         `json:"pt"`
	Axiom               string                         `json:"axiom"`
	DefinitionStatus    common.DefinitionStatus        `json:"definitionStatus"`
	Relationships       []common.RelationshipCandidate `json:"relationships"`
	Refsets             []string                       `json:"refsets,omitempty"`
	ExternalIdentifiers []common.ExternalIdentifier    `json:"externalIdentifiers,omitempty"`
	SpecifiedConceptID  string                         `json:"specifiedConceptId,omitempty"`
}

// Node is one level of the product hierarchy. A node is either Existing
// (Concept is set) or New (Draft is set).
//
// ConceptID is the node's identity in the graph. For new nodes it is the
// placeholder id; a new node down-selected to an existing concept during
// review keeps its placeholder ConceptID until materialization remaps it.
type Node struct {
	ConceptID      string                    `json:"conceptId"`
	Label          Label                     `json:"label"`
	Concept        *common.ConceptReference  `json:"concept,omitempty"`
	Draft          *NewConceptDraft          `json:"newConceptDetails,omitempty"`
	ConceptOptions []common.ConceptReference `json:"conceptOptions,omitempty"`
	PlaceholderID  string                    `json:"placeholderId,omitempty"`
}

// IsNew reports whether the node still has to be created.
func (n *Node) IsNew() bool {
	return n.Concept == nil
}

// Reference returns a reference usable as a relationship destination.
// For new nodes the reference carries the placeholder id and generated PT.
func (n *Node) Reference() *common.ConceptReference {
	if n.Concept != nil {
		return n.Concept
	}
	ref := &common.ConceptReference{ID: n.ConceptID}
	if n.Draft != nil {
		ref.FSN = n.Draft.FSN
		ref.PT = n.Draft.PT
		ref.DefinitionStatus = n.Draft.DefinitionStatus
	}
	return ref
}

// DisplayName is the name shown for the node.
func (n *Node) DisplayName() string {
	return n.Reference().Name()
}

// NewExistingNode wraps a resolved concept.
func NewExistingNode(concept common.ConceptReference, label Label) *Node {
	return &Node{
		ConceptID: concept.ID,
		Label:     label,
		Concept:   &concept,
	}
}

// Edge is a directed, typed connection between two nodes.
type Edge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Relation Relation `json:"label"`
}

// compose returns the relation implied by following e1 and then e2.
func compose(first, second Relation) (Relation, bool) {
	switch {
	case first == IsA && second == IsA:
		return IsA, true
	case (first == Contains || first == IsA) && (second == Contains || second == IsA):
		return Contains, true
	default:
		return "", false
	}
}
