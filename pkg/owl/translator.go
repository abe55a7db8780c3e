// Package owl renders candidate relationship sets as OWL 2 functional syntax
// class axioms.
package owl

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology"
)

// ErrEmptyAxiom is returned for a candidate set without active relationships.
var ErrEmptyAxiom = errors.New("no active relationships to translate")

// Translator renders axioms locally, without a round trip to the
// repository.
type Translator struct{}

var _ terminology.AxiomTranslator = Translator{}

// Translate renders candidates as one SubClassOf (primitive) or
// EquivalentClasses (fully defined) axiom for conceptID. The output is
// independent of candidate order.
func (Translator) Translate(conceptID string, candidates []common.RelationshipCandidate, status common.DefinitionStatus) (string, error) {
	parents := make([]string, 0)
	ungrouped := make([]string, 0)
	groups := make(map[int][]string)

	active := 0
	for _, c := range candidates {
		if !c.Active {
			continue
		}
		active++
		if c.TypeID == common.IsA {
			if c.DestinationID() == "" {
				return "", fmt.Errorf("is-a relationship of %s has no destination", conceptID)
			}
			parents = append(parents, ":"+c.DestinationID())
			continue
		}
		expr, err := attribute(c)
		if err != nil {
			return "", fmt.Errorf("failed to translate relationship of %s: %w", conceptID, err)
		}
		if c.RoleGroup == 0 {
			ungrouped = append(ungrouped, expr)
		} else {
			groups[c.RoleGroup] = append(groups[c.RoleGroup], expr)
		}
	}
	if active == 0 {
		return "", fmt.Errorf("%w for %s", ErrEmptyAxiom, conceptID)
	}

	renderedGroups := make([]string, 0, len(groups))
	for _, attrs := range groups {
		renderedGroups = append(renderedGroups, "ObjectSomeValuesFrom(:"+common.RoleGroup+" "+intersection(attrs)+")")
	}

	exprs := make([]string, 0, len(parents)+len(ungrouped)+len(renderedGroups))
	exprs = append(exprs, parents...)
	exprs = append(exprs, ungrouped...)
	exprs = append(exprs, renderedGroups...)

	body := intersection(exprs)
	if status == common.FullyDefined {
		return "EquivalentClasses(:" + conceptID + " " + body + ")", nil
	}
	return "SubClassOf(:" + conceptID + " " + body + ")", nil
}

func intersection(exprs []string) string {
	sorted := make([]string, len(exprs))
	copy(sorted, exprs)
	sort.Strings(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	return "ObjectIntersectionOf(" + strings.Join(sorted, " ") + ")"
}

func attribute(c common.RelationshipCandidate) (string, error) {
	switch {
	case c.Concrete != nil:
		return "DataHasValue(:" + c.TypeID + " " + literal(*c.Concrete) + ")", nil
	case c.DestinationID() != "":
		return "ObjectSomeValuesFrom(:" + c.TypeID + " :" + c.DestinationID() + ")", nil
	default:
		return "", fmt.Errorf("type %s has neither destination nor value", c.TypeID)
	}
}

func literal(v common.ConcreteValue) string {
	switch v.DataType {
	case common.DataTypeInteger:
		return `"` + v.Value + `"^^xsd:integer`
	case common.DataTypeDecimal:
		return `"` + v.Value + `"^^xsd:decimal`
	default:
		return `"` + strings.ReplaceAll(v.Value, `"`, `\"`) + `"^^xsd:string`
	}
}
