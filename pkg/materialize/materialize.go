// Package materialize writes the new concepts of a reviewed product summary
// to the terminology repository.
package materialize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/graph"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"
	"github.com/OFFIS-RIT/amtcalc/pkg/store"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology"
)

// Materializer creates new concepts strictly one after another, each only
// after every placeholder it references has a real id.
//
// A Materializer should be created using NewMaterializer.
type Materializer struct {
	repo        terminology.Repository
	identifiers terminology.IdentifierRegistry
	tickets     store.TicketStore
	locker      Locker
	moduleID    string
}

// Locker serializes writers across processes. fn runs while key is held.
type Locker interface {
	Lock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// NewMaterializerParams configures a Materializer. Tickets and Locker may be
// nil; without a Locker concurrent writes to one branch are not serialized.
type NewMaterializerParams struct {
	Repository  terminology.Repository
	Identifiers terminology.IdentifierRegistry
	Tickets     store.TicketStore
	Locker      Locker
	ModuleID    string
}

func NewMaterializer(params NewMaterializerParams) (*Materializer, error) {
	if params.Repository == nil || params.Identifiers == nil {
		return nil, errors.New("materializer needs a repository and an identifier registry")
	}
	moduleID := params.ModuleID
	if moduleID == "" {
		moduleID = common.DefaultModuleID
	}
	return &Materializer{
		repo:        params.Repository,
		identifiers: params.Identifiers,
		tickets:     params.Tickets,
		locker:      params.Locker,
		moduleID:    moduleID,
	}, nil
}

// Request is a reviewed summary to write.
//
// Details is the original request body, recorded on the ticket with every
// subject.
type Request struct {
	Branch    string
	TicketKey string
	Summary   *graph.ProductSummary
	Details   json.RawMessage
}

// Materialize creates every new node of the summary and rewrites the
// summary to the created ids. Existing nodes are never written.
//
// A failure stops the run. Concepts created up to that point are kept and
// the summary is rewritten for them before the error is returned.
//
// With a Locker the whole run holds the lock of the branch, so a second
// request for the same products sees the first one's concepts in preflight.
func (m *Materializer) Materialize(ctx context.Context, req Request) (*graph.ProductSummary, error) {
	if req.Summary == nil {
		return nil, common.NewValidationError("no summary to create")
	}

	if m.locker == nil {
		return m.materialize(ctx, req)
	}
	var result *graph.ProductSummary
	locked := false
	err := m.locker.Lock(ctx, "materialize:"+req.Branch, func(ctx context.Context) error {
		locked = true
		var err error
		result, err = m.materialize(ctx, req)
		return err
	})
	if err != nil && !locked {
		return nil, fmt.Errorf("failed to lock branch %s: %w", req.Branch, err)
	}
	return result, err
}

func (m *Materializer) materialize(ctx context.Context, req Request) (*graph.ProductSummary, error) {
	summary := req.Summary
	ids := selectedIDs(summary)

	order, err := creationOrder(summary, ids)
	if err != nil {
		return nil, err
	}
	if err := m.preflight(ctx, req.Branch, order); err != nil {
		return nil, err
	}

	logger.Info("[Materialize] Creating concepts", "branch", req.Branch, "ticket", req.TicketKey, "count", len(order))

	created := 0
	for _, node := range order {
		placeholder := node.ConceptID
		written, err := m.create(ctx, req.Branch, node, ids)
		if written {
			created++
		}
		if err != nil {
			summary.RemapIDs(ids)
			if created > 0 {
				m.recordOnTicket(ctx, req, store.ProductPartial)
			}
			return summary, fmt.Errorf("failed to create %s %s after %d concepts: %w", node.Label, placeholder, created, err)
		}
	}

	summary.RemapIDs(ids)
	m.recordOnTicket(ctx, req, store.ProductCompleted)

	logger.Info("[Materialize] Created concepts", "branch", req.Branch, "ticket", req.TicketKey, "count", created)
	return summary, nil
}

// selectedIDs maps the placeholders of nodes that were down-selected to an
// existing concept during review.
func selectedIDs(summary *graph.ProductSummary) map[string]string {
	ids := make(map[string]string)
	for _, n := range summary.Nodes {
		if n.Concept == nil {
			continue
		}
		if n.PlaceholderID != "" && n.PlaceholderID != n.Concept.ID {
			ids[n.PlaceholderID] = n.Concept.ID
		}
		if common.IsPlaceholderID(n.ConceptID) {
			ids[n.ConceptID] = n.Concept.ID
		}
	}
	return ids
}

// creationOrder sorts the new nodes so every node comes after the new nodes
// its relationships point at. Ties keep summary order.
func creationOrder(summary *graph.ProductSummary, resolved map[string]string) ([]*graph.Node, error) {
	pending := summary.NewNodes()
	byID := make(map[string]*graph.Node, len(pending))
	position := make(map[string]int, len(pending))
	for i, n := range pending {
		if n.Draft == nil {
			return nil, &common.ValidationError{Reason: "new node has no draft", ConceptIDs: []string{n.ConceptID}}
		}
		byID[n.ConceptID] = n
		position[n.ConceptID] = i
	}

	indegree := make(map[string]int, len(pending))
	dependents := make(map[string][]string, len(pending))
	for _, n := range pending {
		seen := make(map[string]struct{})
		for _, rel := range n.Draft.Relationships {
			dest := rel.DestinationID()
			if !common.IsPlaceholderID(dest) || dest == n.ConceptID {
				continue
			}
			if _, ok := resolved[dest]; ok {
				continue
			}
			if _, ok := byID[dest]; !ok {
				return nil, &common.ValidationError{
					Reason:     "relationship points at an unknown placeholder",
					TypeID:     rel.TypeID,
					ConceptIDs: []string{n.ConceptID, dest},
				}
			}
			if _, dup := seen[dest]; dup {
				continue
			}
			seen[dest] = struct{}{}
			indegree[n.ConceptID]++
			dependents[dest] = append(dependents[dest], n.ConceptID)
		}
	}

	ready := make([]string, 0)
	for _, n := range pending {
		if indegree[n.ConceptID] == 0 {
			ready = append(ready, n.ConceptID)
		}
	}

	order := make([]*graph.Node, 0, len(pending))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
		id := ready[0]
		ready = ready[1:]
		order = append(order, byID[id])
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(pending) {
		stuck := make([]string, 0)
		for _, n := range pending {
			if indegree[n.ConceptID] > 0 {
				stuck = append(stuck, n.ConceptID)
			}
		}
		return nil, &common.ValidationError{Reason: "new concepts reference each other in a cycle", ConceptIDs: stuck}
	}
	return order, nil
}

// preflight rejects caller supplied ids and external identifiers that are
// already taken, before anything is written.
func (m *Materializer) preflight(ctx context.Context, branch string, nodes []*graph.Node) error {
	for _, n := range nodes {
		if id := n.Draft.SpecifiedConceptID; id != "" {
			exists, err := m.repo.ConceptExists(ctx, branch, id)
			if err != nil {
				return err
			}
			if exists {
				return &common.ConflictError{Reason: "specified concept id is already in use", Branch: branch, ConceptIDs: []string{id}}
			}
		}

		for _, ext := range n.Draft.ExternalIdentifiers {
			refset, err := m.identifiers.RefsetFor(ext.Scheme)
			if err != nil {
				return err
			}
			members, err := m.repo.FindReferenceSetMembers(ctx, branch, terminology.MemberQuery{RefsetID: refset, MapTarget: ext.Value})
			if err != nil {
				return err
			}
			if len(members) > 0 {
				ids := make([]string, 0, len(members))
				for _, mem := range members {
					ids = append(ids, mem.ReferencedComponentID)
				}
				return &common.ConflictError{
					Reason:     fmt.Sprintf("%s identifier %s is already used", ext.Scheme, ext.Value),
					Branch:     branch,
					ConceptIDs: ids,
				}
			}
		}
	}
	return nil
}

// create writes the concept of node, then its refset and identifier
// members. written reports whether the concept itself exists afterwards;
// the node is rewritten to it even if a member write fails.
func (m *Materializer) create(ctx context.Context, branch string, node *graph.Node, ids map[string]string) (written bool, err error) {
	draft := node.Draft

	rels, err := substituteRelationships(draft.Relationships, ids)
	if err != nil {
		return false, err
	}

	concept, err := m.repo.CreateConcept(ctx, branch, common.ConceptDraft{
		ConceptID:        draft.SpecifiedConceptID,
		ModuleID:         m.moduleID,
		FSN:              draft.FSN,
		PT:               draft.PT,
		DefinitionStatus: draft.DefinitionStatus,
		Axiom:            substituteAxiom(draft.Axiom, ids),
		Relationships:    rels,
	})
	if err != nil {
		return false, err
	}
	ids[node.ConceptID] = concept.ID
	if concept.DefinitionStatus == "" {
		concept.DefinitionStatus = draft.DefinitionStatus
	}
	logger.Debug("[Materialize] Created concept", "label", node.Label, "placeholder", node.ConceptID, "concept", concept.ID)

	node.Concept = &concept
	node.Draft = nil
	if node.PlaceholderID == "" {
		node.PlaceholderID = node.ConceptID
	}

	for _, refset := range draft.Refsets {
		if err := m.repo.CreateReferenceSetMember(ctx, branch, common.ReferenceSetMember{
			RefsetID:              refset,
			ReferencedComponentID: concept.ID,
			ModuleID:              m.moduleID,
		}); err != nil {
			return true, fmt.Errorf("failed to add %s to refset %s: %w", concept.ID, refset, err)
		}
	}

	for _, ext := range draft.ExternalIdentifiers {
		refset, err := m.identifiers.RefsetFor(ext.Scheme)
		if err != nil {
			return true, err
		}
		if err := m.repo.CreateReferenceSetMember(ctx, branch, common.ReferenceSetMember{
			RefsetID:              refset,
			ReferencedComponentID: concept.ID,
			ModuleID:              m.moduleID,
			AdditionalFields:      map[string]string{"mapTarget": ext.Value},
		}); err != nil {
			return true, fmt.Errorf("failed to record %s identifier of %s: %w", ext.Scheme, concept.ID, err)
		}
	}
	return true, nil
}

func substituteRelationships(rels []common.RelationshipCandidate, ids map[string]string) ([]common.RelationshipCandidate, error) {
	out := make([]common.RelationshipCandidate, len(rels))
	for i, rel := range rels {
		out[i] = rel
		if !rel.ReferencesPlaceholder() {
			continue
		}
		id, ok := ids[rel.Destination.ID]
		if !ok {
			return nil, &common.ValidationError{Reason: "relationship points at a concept that was not created", TypeID: rel.TypeID, ConceptIDs: []string{rel.Destination.ID}}
		}
		dest := *rel.Destination
		dest.ID = id
		out[i].Destination = &dest
	}
	return out, nil
}

var placeholderRef = regexp.MustCompile(`:(-\d{1,18})\b`)

// substituteAxiom replaces every created placeholder in an axiom. The
// concept's own placeholder stays for the repository to assign.
func substituteAxiom(axiom string, ids map[string]string) string {
	return placeholderRef.ReplaceAllStringFunc(axiom, func(match string) string {
		if id, ok := ids[match[1:]]; ok {
			return ":" + id
		}
		return match
	})
}

// recordOnTicket notes every subject on the ticket. Failures are logged
// and swallowed.
func (m *Materializer) recordOnTicket(ctx context.Context, req Request, status store.ProductStatus) {
	if m.tickets == nil || req.TicketKey == "" {
		return
	}

	products := make([]store.TicketProduct, 0, len(req.Summary.Subjects))
	for _, id := range req.Summary.Subjects {
		n := req.Summary.Node(id)
		if n == nil {
			continue
		}
		p := store.TicketProduct{Name: n.DisplayName(), Status: status, Details: req.Details}
		if !n.IsNew() {
			p.ConceptID = n.Concept.ID
		}
		products = append(products, p)
	}

	if err := m.tickets.PutProductsOnTicket(ctx, req.TicketKey, products); err != nil {
		logger.Warn("[Materialize] Failed to record products on ticket", "ticket", req.TicketKey, "err", err)
	}
}
