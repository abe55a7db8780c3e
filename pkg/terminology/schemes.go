package terminology

import (
	"fmt"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
)

// SchemeRegistry is an IdentifierRegistry backed by a static map.
type SchemeRegistry map[string]string

// ParseSchemes reads a registry from "SCHEME=refsetId" pairs separated by
// commas, e.g. "ARTGID=11000168105,PBS=900000000000468001".
func ParseSchemes(raw string) (SchemeRegistry, error) {
	registry := make(SchemeRegistry)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		scheme, refset, ok := strings.Cut(pair, "=")
		scheme = strings.TrimSpace(scheme)
		refset = strings.TrimSpace(refset)
		if !ok || scheme == "" || refset == "" {
			return nil, fmt.Errorf("invalid identifier scheme %q, expected SCHEME=refsetId", pair)
		}
		registry[scheme] = refset
	}
	return registry, nil
}

// RefsetFor returns the reference set of scheme.
func (r SchemeRegistry) RefsetFor(scheme string) (string, error) {
	refset, ok := r[scheme]
	if !ok {
		return "", common.NewValidationError("unknown identifier scheme %q", scheme)
	}
	return refset, nil
}

// Schemes lists the registered scheme names in order.
func (r SchemeRegistry) Schemes() []string {
	out := make([]string, 0, len(r))
	for s := range r {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
