// Package graph models the product hierarchy calculated for one request:
// the nodes of every level, the edges between them and the subject(s) the
// request was about.
package graph

import (
	"fmt"
	"sort"
	"strings"
)

// ProductSummary accumulates the nodes and edges of one calculation.
//
// A ProductSummary is not safe for concurrent mutation. Concurrent branches
// build their own summaries which the caller merges after joining them.
type ProductSummary struct {
	Subjects []string `json:"subjects"`
	Nodes    []*Node  `json:"nodes"`
	Edges    []Edge   `json:"edges"`

	nodeIndex map[string]*Node
	edgeIndex map[Edge]struct{}
}

// NewProductSummary creates an empty summary.
func NewProductSummary() *ProductSummary {
	return &ProductSummary{
		Subjects:  make([]string, 0),
		Nodes:     make([]*Node, 0),
		Edges:     make([]Edge, 0),
		nodeIndex: make(map[string]*Node),
		edgeIndex: make(map[Edge]struct{}),
	}
}

// reindex rebuilds lookup maps, e.g. after the summary was decoded from JSON.
func (s *ProductSummary) reindex() {
	if s.nodeIndex != nil && len(s.nodeIndex) == len(s.Nodes) && len(s.edgeIndex) == len(s.Edges) {
		return
	}
	s.nodeIndex = make(map[string]*Node, len(s.Nodes))
	nodes := s.Nodes[:0]
	for _, n := range s.Nodes {
		if _, dup := s.nodeIndex[n.ConceptID]; dup {
			continue
		}
		s.nodeIndex[n.ConceptID] = n
		nodes = append(nodes, n)
	}
	s.Nodes = nodes

	s.edgeIndex = make(map[Edge]struct{}, len(s.Edges))
	edges := s.Edges[:0]
	for _, e := range s.Edges {
		if _, dup := s.edgeIndex[e]; dup {
			continue
		}
		s.edgeIndex[e] = struct{}{}
		edges = append(edges, e)
	}
	s.Edges = edges
}

// AddNode adds n unless a node with the same id is already present. The
// node held by the summary is returned.
func (s *ProductSummary) AddNode(n *Node) *Node {
	s.reindex()
	if existing, ok := s.nodeIndex[n.ConceptID]; ok {
		return existing
	}
	s.nodeIndex[n.ConceptID] = n
	s.Nodes = append(s.Nodes, n)
	return n
}

// Node returns the node with the given id or nil.
func (s *ProductSummary) Node(id string) *Node {
	s.reindex()
	return s.nodeIndex[id]
}

// AddEdge adds a directed edge. Duplicate triples are ignored; the return
// value reports whether the edge was new.
func (s *ProductSummary) AddEdge(source, target string, rel Relation) bool {
	s.reindex()
	e := Edge{Source: source, Target: target, Relation: rel}
	if _, ok := s.edgeIndex[e]; ok {
		return false
	}
	s.edgeIndex[e] = struct{}{}
	s.Edges = append(s.Edges, e)
	return true
}

// ContainsEdgeBetween reports whether any edge connects a and b in either
// direction.
func (s *ProductSummary) ContainsEdgeBetween(a, b string) bool {
	for _, e := range s.Edges {
		if (e.Source == a && e.Target == b) || (e.Source == b && e.Target == a) {
			return true
		}
	}
	return false
}

// Merge adds all nodes and edges of other. Subjects are not merged.
func (s *ProductSummary) Merge(other *ProductSummary) {
	if other == nil {
		return
	}
	for _, n := range other.Nodes {
		s.AddNode(n)
	}
	for _, e := range other.Edges {
		s.AddEdge(e.Source, e.Target, e.Relation)
	}
}

// NewNodes returns the nodes that still have to be created.
func (s *ProductSummary) NewNodes() []*Node {
	out := make([]*Node, 0)
	for _, n := range s.Nodes {
		if n.IsNew() {
			out = append(out, n)
		}
	}
	return out
}

// NodesWithLabel returns all nodes of one hierarchy level.
func (s *ProductSummary) NodesWithLabel(label Label) []*Node {
	out := make([]*Node, 0)
	for _, n := range s.Nodes {
		if n.Label == label {
			out = append(out, n)
		}
	}
	return out
}

// ComputeTransitiveClosure adds every edge implied by composing existing
// edges until nothing changes, and returns how many edges were added.
//
// Composition: CONTAINS∘CONTAINS, CONTAINS∘IS_A and IS_A∘CONTAINS give
// CONTAINS; IS_A∘IS_A gives IS_A. HAS_NAME edges do not compose.
func (s *ProductSummary) ComputeTransitiveClosure() int {
	s.reindex()
	added := 0
	for {
		outgoing := make(map[string][]Edge, len(s.Nodes))
		for _, e := range s.Edges {
			outgoing[e.Source] = append(outgoing[e.Source], e)
		}

		pass := 0
		current := len(s.Edges)
		for i := 0; i < current; i++ {
			first := s.Edges[i]
			for _, second := range outgoing[first.Target] {
				if first.Source == second.Target {
					continue
				}
				rel, ok := compose(first.Relation, second.Relation)
				if !ok {
					continue
				}
				if s.AddEdge(first.Source, second.Target, rel) {
					pass++
				}
			}
		}

		added += pass
		if pass == 0 {
			return added
		}
	}
}

// MultipleOrNoSubjectError is returned when a single-product calculation
// does not end in exactly one subject.
type MultipleOrNoSubjectError struct {
	Label   Label
	NodeIDs []string
}

func (e *MultipleOrNoSubjectError) Error() string {
	if len(e.NodeIDs) == 0 {
		return fmt.Sprintf("no %s subject found", e.Label)
	}
	return fmt.Sprintf("expected one %s subject, found %d: %s", e.Label, len(e.NodeIDs), strings.Join(e.NodeIDs, ", "))
}

// CalculateSubject designates the single containerized branded pack that no
// other containerized branded pack contains or specializes.
func (s *ProductSummary) CalculateSubject() (*Node, error) {
	roots := s.roots(LabelCTPP)
	if len(roots) != 1 {
		ids := make([]string, 0, len(roots))
		for _, n := range roots {
			ids = append(ids, n.ConceptID)
		}
		return nil, &MultipleOrNoSubjectError{Label: LabelCTPP, NodeIDs: ids}
	}
	s.Subjects = []string{roots[0].ConceptID}
	return roots[0], nil
}

// CalculateSubjects designates every root containerized branded pack. Bulk
// operations produce one subject per generated package.
func (s *ProductSummary) CalculateSubjects() ([]*Node, error) {
	roots := s.roots(LabelCTPP)
	if len(roots) == 0 {
		return nil, &MultipleOrNoSubjectError{Label: LabelCTPP}
	}
	s.Subjects = make([]string, 0, len(roots))
	for _, n := range roots {
		s.Subjects = append(s.Subjects, n.ConceptID)
	}
	sort.Strings(s.Subjects)
	return roots, nil
}

func (s *ProductSummary) roots(label Label) []*Node {
	s.reindex()
	inner := make(map[string]struct{})
	for _, e := range s.Edges {
		if e.Relation != IsA && e.Relation != Contains {
			continue
		}
		src, tgt := s.nodeIndex[e.Source], s.nodeIndex[e.Target]
		if src == nil || tgt == nil || src == tgt {
			continue
		}
		if src.Label == label && tgt.Label == label {
			inner[tgt.ConceptID] = struct{}{}
		}
	}

	roots := make([]*Node, 0)
	for _, n := range s.Nodes {
		if n.Label != label {
			continue
		}
		if _, ok := inner[n.ConceptID]; ok {
			continue
		}
		roots = append(roots, n)
	}
	return roots
}

// RemapIDs rewrites node ids, edge endpoints and subjects through ids.
// Ids without a mapping are kept.
func (s *ProductSummary) RemapIDs(ids map[string]string) {
	remap := func(id string) string {
		if mapped, ok := ids[id]; ok {
			return mapped
		}
		return id
	}

	for _, n := range s.Nodes {
		n.ConceptID = remap(n.ConceptID)
	}
	edges := make([]Edge, len(s.Edges))
	for i, e := range s.Edges {
		edges[i] = Edge{Source: remap(e.Source), Target: remap(e.Target), Relation: e.Relation}
	}
	s.Edges = edges
	for i, id := range s.Subjects {
		s.Subjects[i] = remap(id)
	}
	s.nodeIndex = nil
	s.edgeIndex = nil
	s.reindex()
}
