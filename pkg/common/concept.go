package common

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefinitionStatus tells whether a concept's axiom is necessary only
// (primitive) or necessary and sufficient (fully defined).
type DefinitionStatus string

const (
	Primitive    DefinitionStatus = "PRIMITIVE"
	FullyDefined DefinitionStatus = "FULLY_DEFINED"
)

// ConceptReference identifies a concept in the terminology repository.
//
// A positive ID refers to a concept that exists. A negative ID is a
// placeholder for a concept that has only been calculated so far.
type ConceptReference struct {
	ID               string           `json:"conceptId"`
	FSN              string           `json:"fsn,omitempty"`
	PT               string           `json:"pt,omitempty"`
	DefinitionStatus DefinitionStatus `json:"definitionStatus,omitempty"`
}

// IsPlaceholder reports whether the reference points to a not-yet-created concept.
func (c *ConceptReference) IsPlaceholder() bool {
	return c != nil && IsPlaceholderID(c.ID)
}

// IsFullyDefined reports whether the referenced concept is sufficiently defined.
func (c *ConceptReference) IsFullyDefined() bool {
	return c != nil && c.DefinitionStatus == FullyDefined
}

// Name returns the preferred term, falling back to the FSN and then the id.
func (c *ConceptReference) Name() string {
	if c == nil {
		return ""
	}
	if c.PT != "" {
		return c.PT
	}
	if c.FSN != "" {
		return c.FSN
	}
	return c.ID
}

// IsPlaceholderID reports whether id is a locally allocated placeholder.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, "-")
}

// DataType is the datatype of a concrete relationship value.
type DataType string

const (
	DataTypeDecimal DataType = "DECIMAL"
	DataTypeInteger DataType = "INTEGER"
	DataTypeString  DataType = "STRING"
)

// ConcreteValue is a literal relationship destination.
type ConcreteValue struct {
	Value    string   `json:"value"`
	DataType DataType `json:"dataType"`
}

// RelationshipCandidate is an attribute a concept would need to carry to be
// equivalent to the product being described.
//
// Exactly one of Destination and Concrete is set. RoleGroup 0 means the
// attribute is ungrouped.
type RelationshipCandidate struct {
	TypeID      string            `json:"typeId"`
	Destination *ConceptReference `json:"destination,omitempty"`
	Concrete    *ConcreteValue    `json:"concreteValue,omitempty"`
	RoleGroup   int               `json:"groupId"`
	Active      bool              `json:"active"`
}

// IsConcrete reports whether the candidate carries a literal value.
func (r RelationshipCandidate) IsConcrete() bool {
	return r.Concrete != nil
}

// DestinationID returns the destination concept id or "" for concrete values.
func (r RelationshipCandidate) DestinationID() string {
	if r.Destination == nil {
		return ""
	}
	return r.Destination.ID
}

// ReferencesPlaceholder reports whether the candidate points at a placeholder concept.
func (r RelationshipCandidate) ReferencesPlaceholder() bool {
	return r.Destination.IsPlaceholder()
}

// NewRelationship builds an active relationship to a concept.
func NewRelationship(typeID string, destination *ConceptReference, group int) RelationshipCandidate {
	return RelationshipCandidate{
		TypeID:      typeID,
		Destination: destination,
		RoleGroup:   group,
		Active:      true,
	}
}

// NewDecimalRelationship builds an active relationship carrying a decimal literal.
func NewDecimalRelationship(typeID string, value decimal.Decimal, group int) RelationshipCandidate {
	return RelationshipCandidate{
		TypeID:    typeID,
		Concrete:  &ConcreteValue{Value: FormatDecimal(value), DataType: DataTypeDecimal},
		RoleGroup: group,
		Active:    true,
	}
}

// NewIntegerRelationship builds an active relationship carrying an integer literal.
func NewIntegerRelationship(typeID string, value int, group int) RelationshipCandidate {
	return RelationshipCandidate{
		TypeID:    typeID,
		Concrete:  &ConcreteValue{Value: decimal.NewFromInt(int64(value)).String(), DataType: DataTypeInteger},
		RoleGroup: group,
		Active:    true,
	}
}

// NewStringRelationship builds an active relationship carrying a string literal.
func NewStringRelationship(typeID string, value string, group int) RelationshipCandidate {
	return RelationshipCandidate{
		TypeID:    typeID,
		Concrete:  &ConcreteValue{Value: value, DataType: DataTypeString},
		RoleGroup: group,
		Active:    true,
	}
}

// FormatDecimal renders a decimal without trailing zeros.
func FormatDecimal(d decimal.Decimal) string {
	return d.String()
}

// Quantity is a value with its unit of measure.
type Quantity struct {
	Value decimal.Decimal   `json:"value"`
	Unit  *ConceptReference `json:"unit" validate:"required"`
}

// ExternalIdentifier cross-references a product in another identifier
// scheme, e.g. a regulator's registration number.
type ExternalIdentifier struct {
	Scheme string `json:"identifierScheme" validate:"required"`
	Value  string `json:"identifierValue" validate:"required"`
}

// ReferenceSetMember is a membership row to be created for a new concept.
type ReferenceSetMember struct {
	RefsetID              string            `json:"refsetId"`
	ReferencedComponentID string            `json:"referencedComponentId"`
	ModuleID              string            `json:"moduleId,omitempty"`
	AdditionalFields      map[string]string `json:"additionalFields,omitempty"`
}

// ConceptDraft is what the repository receives when a concept is created.
type ConceptDraft struct {
	ConceptID        string                  `json:"conceptId,omitempty"`
	ModuleID         string                  `json:"moduleId"`
	FSN              string                  `json:"fsn"`
	PT               string                  `json:"pt"`
	DefinitionStatus DefinitionStatus        `json:"definitionStatus"`
	Axiom            string                  `json:"axiom"`
	Relationships    []RelationshipCandidate `json:"relationships"`
}
