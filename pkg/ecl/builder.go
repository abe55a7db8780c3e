// Package ecl turns candidate relationship sets into expression constraint
// queries that find existing concepts with the same meaning.
package ecl

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
)

// ErrNoQueryPossible is returned when a candidate references a concept that
// has not been created yet. Nothing existing can reference such a concept,
// so there is nothing to look up.
var ErrNoQueryPossible = errors.New("no query possible")

// Options tweak which clauses the builder emits.
type Options struct {
	SuppressIsA                bool
	SuppressNegativeStatements bool
}

// Build renders candidates and required reference set memberships as an ECL
// expression. The result depends only on the set of inputs, not their order.
func Build(candidates []common.RelationshipCandidate, refsets []string, opts Options) (string, error) {
	active := make([]common.RelationshipCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.Active {
			continue
		}
		if c.ReferencesPlaceholder() {
			return "", fmt.Errorf("%w: type %s references %s", ErrNoQueryPossible, c.TypeID, c.DestinationID())
		}
		active = append(active, c)
	}

	parents := make([]string, 0)
	if !opts.SuppressIsA {
		for _, c := range active {
			if c.TypeID == common.IsA && c.Destination != nil {
				parents = append(parents, c.Destination.ID)
			}
		}
	}
	parents = sortedUnique(parents)

	base := focus(parents, sortedUnique(refsets))

	ungrouped := make([]string, 0)
	groups := make(map[int][]string)
	present := make(map[string]struct{})
	for _, c := range active {
		if c.TypeID == common.IsA {
			continue
		}
		present[c.TypeID] = struct{}{}
		if c.TypeID == common.HasOtherIdentifyingInformation {
			continue
		}
		attr, ok := attribute(c)
		if !ok {
			continue
		}
		if c.RoleGroup == 0 {
			ungrouped = append(ungrouped, attr)
		} else {
			groups[c.RoleGroup] = append(groups[c.RoleGroup], attr)
		}
	}

	refinements := sortedUnique(ungrouped)

	renderedGroups := make([]string, 0, len(groups))
	for _, attrs := range groups {
		renderedGroups = append(renderedGroups, "{ "+strings.Join(sortedUnique(attrs), ", ")+" }")
	}
	refinements = append(refinements, sortedUnique(renderedGroups)...)

	if !opts.SuppressNegativeStatements && closedWorld(parents, present) {
		for _, typeID := range common.NegatableAttributes {
			if _, ok := present[typeID]; ok {
				continue
			}
			refinements = append(refinements, "[0..0] "+typeID+" = *")
		}
	}

	if len(refinements) == 0 {
		return base, nil
	}
	return base + " : " + strings.Join(refinements, ", "), nil
}

// closedWorld decides whether absent attributes must be asserted absent.
// Target concepts are sufficiently defined, so a partial constraint would
// also match every more specific concept.
func closedWorld(parents []string, present map[string]struct{}) bool {
	if slices.Contains(parents, common.MedicinalProduct) || slices.Contains(parents, common.MedicinalProductPackage) {
		return true
	}
	_, named := present[common.HasProductName]
	return !named
}

func focus(parents, refsets []string) string {
	terms := make([]string, 0, len(parents)+len(refsets))
	for _, p := range parents {
		terms = append(terms, "<"+p)
	}
	for _, r := range refsets {
		terms = append(terms, "^"+r)
	}
	switch len(terms) {
	case 0:
		return "*"
	case 1:
		return terms[0]
	default:
		return "(" + strings.Join(terms, " AND ") + ")"
	}
}

func attribute(c common.RelationshipCandidate) (string, bool) {
	switch {
	case c.Concrete != nil:
		return c.TypeID + " = " + Literal(*c.Concrete), true
	case c.Destination != nil && c.Destination.ID != "":
		return c.TypeID + " = " + c.Destination.ID, true
	default:
		return "", false
	}
}

// Literal renders a concrete value the way ECL expects it: strings quoted,
// numbers prefixed with '#'.
func Literal(v common.ConcreteValue) string {
	if v.DataType == common.DataTypeString {
		return `"` + strings.ReplaceAll(v.Value, `"`, `\"`) + `"`
	}
	return "#" + v.Value
}

// CanonicalKey renders every active candidate, placeholders and identifying
// text included, into an order independent key. Two candidate sets with the
// same key describe the same concept.
func CanonicalKey(candidates []common.RelationshipCandidate) string {
	groups := make(map[int][]string)
	for _, c := range candidates {
		if !c.Active {
			continue
		}
		attr, ok := attribute(c)
		if !ok {
			continue
		}
		groups[c.RoleGroup] = append(groups[c.RoleGroup], attr)
	}

	rendered := make([]string, 0, len(groups))
	if attrs, ok := groups[0]; ok {
		rendered = append(rendered, sortedUnique(attrs)...)
		delete(groups, 0)
	}
	grouped := make([]string, 0, len(groups))
	for _, attrs := range groups {
		grouped = append(grouped, "{"+strings.Join(sortedUnique(attrs), ",")+"}")
	}
	rendered = append(rendered, sortedUnique(grouped)...)
	return strings.Join(rendered, ";")
}

func sortedUnique(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := slices.Clone(values)
	sort.Strings(out)
	return slices.Compact(out)
}
