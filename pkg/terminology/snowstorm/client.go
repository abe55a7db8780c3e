// Package snowstorm implements terminology.Repository against the REST API of
// a Snowstorm terminology server.
package snowstorm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/OFFIS-RIT/amtcalc/internal/util"
	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology"
)

const (
	fsnTypeID          = "900000000000003001"
	synonymTypeID      = "900000000000013009"
	primitiveID        = "900000000000074008"
	fullyDefinedID     = "900000000000073002"
	defaultLangRefset  = "32570271000036106"
	preferred          = "PREFERRED"
	defaultMaxRetries  = 3
	defaultHTTPTimeout = 60 * time.Second
)

// Client talks to one Snowstorm instance. Reads are retried on
// infrastructure failures; writes are not.
type Client struct {
	baseURL    string
	http       *http.Client
	maxRetries int
	langRefset string
	acceptLang string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.http = c
	}
}

// WithMaxRetries sets how often a failed read is attempted.
func WithMaxRetries(n int) ClientOption {
	return func(client *Client) {
		client.maxRetries = n
	}
}

// WithLanguageRefset sets the language reference set new descriptions are
// marked preferred in.
func WithLanguageRefset(id string) ClientOption {
	return func(client *Client) {
		client.langRefset = id
	}
}

// NewClient creates a client for the Snowstorm server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: defaultMaxRetries,
		langRefset: defaultLangRefset,
		acceptLang: "en-X-" + defaultLangRefset + ",en",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	c.acceptLang = "en-X-" + c.langRefset + ",en"
	return c
}

var _ terminology.Repository = (*Client)(nil)

type term struct {
	Term string `json:"term"`
}

type conceptMini struct {
	ConceptID        string `json:"conceptId"`
	Active           bool   `json:"active"`
	DefinitionStatus string `json:"definitionStatus"`
	ModuleID         string `json:"moduleId"`
	FSN              term   `json:"fsn"`
	PT               term   `json:"pt"`
}

func (c conceptMini) reference() common.ConceptReference {
	return common.ConceptReference{
		ID:               c.ConceptID,
		FSN:              c.FSN.Term,
		PT:               c.PT.Term,
		DefinitionStatus: common.DefinitionStatus(c.DefinitionStatus),
	}
}

type conceptPage struct {
	Items []conceptMini `json:"items"`
	Total int           `json:"total"`
}

// FindConceptsByQuery runs an ECL query. Only one page is fetched.
func (c *Client) FindConceptsByQuery(ctx context.Context, branch, ecl string, offset, limit int) (terminology.ConceptPage, error) {
	q := url.Values{}
	q.Set("ecl", ecl)
	q.Set("activeFilter", "true")
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	var page conceptPage
	if err := c.read(ctx, "find concepts", branch, http.MethodGet, branchPath(branch, "concepts"), q, nil, &page); err != nil {
		return terminology.ConceptPage{}, err
	}

	out := terminology.ConceptPage{
		Items: make([]common.ConceptReference, 0, len(page.Items)),
		Total: page.Total,
	}
	for _, item := range page.Items {
		out.Items = append(out.Items, item.reference())
	}
	logger.Debug("[Snowstorm] Query", "branch", branch, "ecl", ecl, "total", page.Total)
	return out, nil
}

type browserConcept struct {
	conceptMini
	ClassAxioms []struct {
		Active           bool   `json:"active"`
		DefinitionStatus string `json:"definitionStatus"`
		OWLExpression    string `json:"owlExpression"`
	} `json:"classAxioms"`
}

// BulkLoadConcepts loads browser representations of ids.
func (c *Client) BulkLoadConcepts(ctx context.Context, branch string, ids []string) (map[string]terminology.Concept, error) {
	out := make(map[string]terminology.Concept, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	body := map[string]any{"conceptIds": ids}
	var concepts []browserConcept
	if err := c.read(ctx, "bulk load concepts", branch, http.MethodPost, "/browser"+branchPath(branch, "concepts/bulk-load"), nil, body, &concepts); err != nil {
		return nil, err
	}

	for _, bc := range concepts {
		concept := terminology.Concept{
			ConceptReference: bc.reference(),
			ModuleID:         bc.ModuleID,
			Active:           bc.Active,
		}
		for _, axiom := range bc.ClassAxioms {
			if axiom.Active && axiom.OWLExpression != "" {
				concept.Axioms = append(concept.Axioms, axiom.OWLExpression)
			}
		}
		out[bc.ConceptID] = concept
	}
	return out, nil
}

type memberPage struct {
	Items []struct {
		RefsetID              string            `json:"refsetId"`
		ReferencedComponentID string            `json:"referencedComponentId"`
		ModuleID              string            `json:"moduleId"`
		Active                bool              `json:"active"`
		AdditionalFields      map[string]string `json:"additionalFields"`
	} `json:"items"`
	Total int `json:"total"`
}

// FindReferenceSetMembers returns active members matching query.
func (c *Client) FindReferenceSetMembers(ctx context.Context, branch string, query terminology.MemberQuery) ([]common.ReferenceSetMember, error) {
	q := url.Values{}
	q.Set("active", "true")
	q.Set("limit", "1000")
	if query.RefsetID != "" {
		q.Set("referenceSet", query.RefsetID)
	}
	for _, id := range query.ReferencedComponentIDs {
		q.Add("referencedComponentId", id)
	}
	if query.MapTarget != "" {
		q.Set("mapTarget", query.MapTarget)
	}

	var page memberPage
	if err := c.read(ctx, "find members", branch, http.MethodGet, branchPath(branch, "members"), q, nil, &page); err != nil {
		return nil, err
	}

	out := make([]common.ReferenceSetMember, 0, len(page.Items))
	for _, m := range page.Items {
		out = append(out, common.ReferenceSetMember{
			RefsetID:              m.RefsetID,
			ReferencedComponentID: m.ReferencedComponentID,
			ModuleID:              m.ModuleID,
			AdditionalFields:      m.AdditionalFields,
		})
	}
	return out, nil
}

type relationship struct {
	Active        bool   `json:"active"`
	GroupID       int    `json:"groupId"`
	TypeID        string `json:"typeId"`
	DestinationID string `json:"destinationId"`
	ConcreteValue *struct {
		Value    string `json:"value"`
		DataType string `json:"dataType"`
	} `json:"concreteValue"`
}

type relationshipPage struct {
	Items []relationship `json:"items"`
}

// FindRelationships returns the active inferred relationships of sourceID
// with type typeID.
func (c *Client) FindRelationships(ctx context.Context, branch, sourceID, typeID string) ([]common.RelationshipCandidate, error) {
	q := url.Values{}
	q.Set("source", sourceID)
	q.Set("type", typeID)
	q.Set("active", "true")
	q.Set("characteristicType", "INFERRED_RELATIONSHIP")

	var page relationshipPage
	if err := c.read(ctx, "find relationships", branch, http.MethodGet, branchPath(branch, "relationships"), q, nil, &page); err != nil {
		return nil, err
	}

	out := make([]common.RelationshipCandidate, 0, len(page.Items))
	for _, r := range page.Items {
		rel := common.RelationshipCandidate{TypeID: r.TypeID, RoleGroup: r.GroupID, Active: r.Active}
		if r.ConcreteValue != nil {
			value := strings.TrimPrefix(r.ConcreteValue.Value, "#")
			if common.DataType(r.ConcreteValue.DataType) == common.DataTypeString {
				value = strings.TrimSuffix(strings.TrimPrefix(value, `"`), `"`)
			}
			rel.Concrete = &common.ConcreteValue{
				Value:    value,
				DataType: common.DataType(r.ConcreteValue.DataType),
			}
		} else {
			rel.Destination = &common.ConceptReference{ID: r.DestinationID}
		}
		out = append(out, rel)
	}
	return out, nil
}

type descriptionPayload struct {
	Term            string            `json:"term"`
	TypeID          string            `json:"typeId"`
	Lang            string            `json:"lang"`
	CaseSignificant string            `json:"caseSignificance"`
	Active          bool              `json:"active"`
	ModuleID        string            `json:"moduleId"`
	Acceptability   map[string]string `json:"acceptabilityMap"`
}

type relationshipPayload struct {
	Active        bool           `json:"active"`
	ModuleID      string         `json:"moduleId"`
	GroupID       int            `json:"groupId"`
	TypeID        string         `json:"typeId"`
	DestinationID string         `json:"destinationId,omitempty"`
	ConcreteValue map[string]any `json:"concreteValue,omitempty"`
	CharType      string         `json:"characteristicTypeId"`
	Modifier      string         `json:"modifier"`
}

type axiomPayload struct {
	Active             bool                  `json:"active"`
	ModuleID           string                `json:"moduleId"`
	DefinitionStatusID string                `json:"definitionStatusId"`
	Relationships      []relationshipPayload `json:"relationships"`
}

type conceptPayload struct {
	ConceptID          string               `json:"conceptId,omitempty"`
	Active             bool                 `json:"active"`
	ModuleID           string               `json:"moduleId"`
	DefinitionStatusID string               `json:"definitionStatusId"`
	Descriptions       []descriptionPayload `json:"descriptions"`
	ClassAxioms        []axiomPayload       `json:"classAxioms"`
}

func (c *Client) conceptPayload(draft common.ConceptDraft) conceptPayload {
	status := primitiveID
	if draft.DefinitionStatus == common.FullyDefined {
		status = fullyDefinedID
	}
	acceptability := map[string]string{c.langRefset: preferred}

	rels := make([]relationshipPayload, 0, len(draft.Relationships))
	for _, r := range draft.Relationships {
		if !r.Active {
			continue
		}
		p := relationshipPayload{
			Active:   true,
			ModuleID: draft.ModuleID,
			GroupID:  r.RoleGroup,
			TypeID:   r.TypeID,
			CharType: "STATED_RELATIONSHIP",
			Modifier: "EXISTENTIAL",
		}
		if r.Concrete != nil {
			value := r.Concrete.Value
			if r.Concrete.DataType == common.DataTypeString {
				value = `"` + value + `"`
			} else {
				value = "#" + value
			}
			p.ConcreteValue = map[string]any{"value": value, "dataType": string(r.Concrete.DataType)}
		} else {
			p.DestinationID = r.DestinationID()
		}
		rels = append(rels, p)
	}

	return conceptPayload{
		ConceptID:          draft.ConceptID,
		Active:             true,
		ModuleID:           draft.ModuleID,
		DefinitionStatusID: status,
		Descriptions: []descriptionPayload{
			{Term: draft.FSN, TypeID: fsnTypeID, Lang: "en", CaseSignificant: "CASE_INSENSITIVE", Active: true, ModuleID: draft.ModuleID, Acceptability: acceptability},
			{Term: draft.PT, TypeID: synonymTypeID, Lang: "en", CaseSignificant: "CASE_INSENSITIVE", Active: true, ModuleID: draft.ModuleID, Acceptability: acceptability},
		},
		ClassAxioms: []axiomPayload{{
			Active:             true,
			ModuleID:           draft.ModuleID,
			DefinitionStatusID: status,
			Relationships:      rels,
		}},
	}
}

// CreateConcept creates a concept and returns its assigned id.
func (c *Client) CreateConcept(ctx context.Context, branch string, draft common.ConceptDraft) (common.ConceptReference, error) {
	var created conceptMini
	err := c.do(ctx, "create concept", branch, http.MethodPost, "/browser"+branchPath(branch, "concepts"), nil, c.conceptPayload(draft), &created)
	if err != nil {
		return common.ConceptReference{}, err
	}
	ref := created.reference()
	if ref.FSN == "" {
		ref.FSN = draft.FSN
	}
	if ref.PT == "" {
		ref.PT = draft.PT
	}
	if ref.DefinitionStatus == "" {
		ref.DefinitionStatus = draft.DefinitionStatus
	}
	return ref, nil
}

// CreateReferenceSetMember creates one active member.
func (c *Client) CreateReferenceSetMember(ctx context.Context, branch string, member common.ReferenceSetMember) error {
	body := map[string]any{
		"active":                true,
		"refsetId":              member.RefsetID,
		"referencedComponentId": member.ReferencedComponentID,
		"moduleId":              member.ModuleID,
	}
	if len(member.AdditionalFields) > 0 {
		body["additionalFields"] = member.AdditionalFields
	}
	return c.do(ctx, "create member", branch, http.MethodPost, branchPath(branch, "members"), nil, body, nil)
}

// ConceptExists reports whether id is known on branch.
func (c *Client) ConceptExists(ctx context.Context, branch, id string) (bool, error) {
	err := c.read(ctx, "concept exists", branch, http.MethodGet, branchPath(branch, "concepts/"+url.PathEscape(id)), nil, nil, nil)
	var statusErr *statusError
	if errors.As(err, &statusErr) && statusErr.code == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// statusError is a non-retryable 4xx answer.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func isRetryable(err error) bool {
	return errors.Is(err, common.ErrRepositoryUnavailable)
}

func (c *Client) read(ctx context.Context, op, branch, method, path string, query url.Values, body, out any) error {
	_, err := util.RetryIfWithContext(ctx, c.maxRetries, isRetryable, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.do(ctx, op, branch, method, path, query, body, out)
	})
	return err
}

func (c *Client) do(ctx context.Context, op, branch, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", c.acceptLang)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &common.RepositoryError{Op: op, Branch: branch, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classify(op, branch, resp.StatusCode, string(msg))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &common.RepositoryError{Op: op, Branch: branch, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func classify(op, branch string, code int, body string) error {
	switch {
	case code == http.StatusConflict,
		code == http.StatusBadRequest && strings.Contains(strings.ToLower(body), "already exists"):
		return &common.ConflictError{Reason: op + ": " + strings.TrimSpace(body), Branch: branch}
	case code >= 500, code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return &common.RepositoryError{Op: op, Branch: branch, StatusCode: code, Err: errors.New(strings.TrimSpace(body))}
	default:
		return fmt.Errorf("repository %s failed [branch=%s]: %w", op, branch, &statusError{code: code, body: strings.TrimSpace(body)})
	}
}

// branchPath renders "/<branch>/<resource>" with the branch separators
// escaped the way Snowstorm accepts them in a single path segment.
func branchPath(branch, resource string) string {
	return "/" + url.PathEscape(branch) + "/" + resource
}
