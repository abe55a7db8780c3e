package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/amtcalc/internal/engine"
	"github.com/OFFIS-RIT/amtcalc/internal/queue"
	mid "github.com/OFFIS-RIT/amtcalc/internal/server/middleware"
	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/graph"
	"github.com/OFFIS-RIT/amtcalc/pkg/store"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology/terminologytest"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rabbitmq/amqp091-go"
)

type memoryTickets struct {
	products map[string][]store.TicketProduct
}

func (m *memoryTickets) FindTicket(ctx context.Context, key string) (*store.Ticket, error) {
	if _, ok := m.products[key]; !ok {
		return nil, store.ErrTicketNotFound
	}
	return &store.Ticket{Key: key}, nil
}

func (m *memoryTickets) PutProductOnTicket(ctx context.Context, key string, product store.TicketProduct) error {
	return m.PutProductsOnTicket(ctx, key, []store.TicketProduct{product})
}

func (m *memoryTickets) PutProductsOnTicket(ctx context.Context, key string, products []store.TicketProduct) error {
	if _, ok := m.products[key]; !ok {
		return store.ErrTicketNotFound
	}
	m.products[key] = append(m.products[key], products...)
	return nil
}

func (m *memoryTickets) ListProducts(ctx context.Context, key string) ([]store.TicketProduct, error) {
	products, ok := m.products[key]
	if !ok {
		return nil, store.ErrTicketNotFound
	}
	return products, nil
}

func (m *memoryTickets) DeleteProduct(ctx context.Context, key, name string) error {
	kept := make([]store.TicketProduct, 0)
	for _, p := range m.products[key] {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	m.products[key] = kept
	return nil
}

type memorySummaries struct {
	summaries map[string]*graph.ProductSummary
	deleted   []string
}

func (m *memorySummaries) GetSummary(ctx context.Context, key string) (*graph.ProductSummary, error) {
	s, ok := m.summaries[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return s, nil
}

func (m *memorySummaries) DeleteSummary(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	delete(m.summaries, key)
	return nil
}

type capturePublisher struct {
	keys   []string
	bodies [][]byte
}

func (p *capturePublisher) Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	p.keys = append(p.keys, key)
	p.bodies = append(p.bodies, msg.Body)
	return nil
}

type fixture struct {
	e         http.Handler
	repo      *terminologytest.Repository
	tickets   *memoryTickets
	queue     *capturePublisher
	summaries *memorySummaries
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := terminologytest.NewRepository()
	for _, c := range []common.ConceptReference{
		{ID: "111", PT: "Panadol"},
		{ID: "222", PT: "Blister pack"},
		{ID: "333", PT: "Tablet"},
		{ID: "444", PT: "Paracetamol"},
		{ID: "258684004", PT: "mg"},
		{ID: common.UnitEach, PT: "each"},
	} {
		repo.Concepts[c.ID] = terminology.Concept{ConceptReference: c, Active: true}
	}

	tickets := &memoryTickets{products: map[string][]store.TicketProduct{"AMT-1": {}}}
	eng, err := engine.NewEngine(engine.NewEngineParams{
		Repository:  repo,
		Names:       &terminologytest.Names{},
		Identifiers: terminology.SchemeRegistry{"ARTGID": "11000168105"},
		Tickets:     tickets,
	})
	if err != nil {
		t.Fatalf("expected engine, got %v", err)
	}

	f := &fixture{
		repo:      repo,
		tickets:   tickets,
		queue:     &capturePublisher{},
		summaries: &memorySummaries{summaries: make(map[string]*graph.ProductSummary)},
	}
	f.e = NewEcho(&mid.App{
		Engine:    eng,
		Tickets:   tickets,
		Queue:     f.queue,
		Summaries: f.summaries,
	})
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

const panadolPack = `{
	"productName": {"conceptId": "111", "pt": "Panadol"},
	"containerType": {"conceptId": "222"},
	"containedProducts": [{
		"value": "20",
		"unit": {"conceptId": "732935002", "pt": "each"},
		"productDetails": {
			"genericForm": {"conceptId": "333"},
			"activeIngredients": [{
				"activeIngredient": {"conceptId": "444"},
				"totalQuantity": {"value": "500", "unit": {"conceptId": "258684004", "pt": "mg"}}
			}]
		}
	}]
}`

func TestHealth(t *testing.T) {
	rec := newFixture(t).do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCalculateThenCreateMedication(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/MAIN|SNOMEDCT-AU/medications/calculate", panadolPack)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	summary := graph.NewProductSummary()
	if err := json.Unmarshal(rec.Body.Bytes(), summary); err != nil {
		t.Fatalf("expected summary, got %v", err)
	}
	if len(summary.NewNodes()) != 6 {
		t.Fatalf("expected 6 new nodes, got %d", len(summary.NewNodes()))
	}
	if len(summary.Subjects) != 1 || summary.Node(summary.Subjects[0]).Label != graph.LabelCTPP {
		t.Fatalf("expected one CTPP subject, got %v", summary.Subjects)
	}
	if len(f.repo.Created) != 0 {
		t.Fatalf("expected calculate not to write, got %d concepts", len(f.repo.Created))
	}

	body, err := json.Marshal(map[string]any{
		"ticketKey": "AMT-1",
		"summary":   summary,
		"details":   json.RawMessage(panadolPack),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	rec = f.do(http.MethodPost, "/api/MAIN|SNOMEDCT-AU/medications/create", string(body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	created := graph.NewProductSummary()
	if err := json.Unmarshal(rec.Body.Bytes(), created); err != nil {
		t.Fatalf("expected summary, got %v", err)
	}
	if len(created.NewNodes()) != 0 {
		t.Fatalf("expected every node to exist after create, got %d new", len(created.NewNodes()))
	}
	if len(f.repo.Created) != 6 {
		t.Fatalf("expected 6 concepts to be created, got %d", len(f.repo.Created))
	}
	products := f.tickets.products["AMT-1"]
	if len(products) != 1 || products[0].Status != store.ProductCompleted || products[0].ConceptID == "" {
		t.Fatalf("expected the completed product on the ticket, got %+v", products)
	}
}

func TestCalculate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"bad branch", "/api/PROJECT/medications/calculate", panadolPack, http.StatusBadRequest},
		{"malformed json", "/api/MAIN/medications/calculate", `{`, http.StatusBadRequest},
		{"no products", "/api/MAIN/medications/calculate", `{"productName":{"conceptId":"111"},"containerType":{"conceptId":"222"}}`, http.StatusBadRequest},
		{"unknown concept", "/api/MAIN/medications/calculate", strings.Replace(panadolPack, `"444"`, `"999"`, 1), http.StatusBadRequest},
		{"device without type", "/api/MAIN/devices/calculate", `{
			"productName": {"conceptId": "111"},
			"containerType": {"conceptId": "222"},
			"containedProducts": [{"value": "1", "unit": {"conceptId": "732935002"}, "productDetails": {}}]
		}`, http.StatusBadRequest},
		{"brand pack sizes without variants", "/api/MAIN/brand-pack-sizes/calculate", `{"productId": "6001", "packageDetails": ` + panadolPack + `}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.name != "unknown concept" && f.repo.QueryCount() != 0 {
				t.Fatalf("expected rejected input not to reach the repository")
			}
		})
	}
}

func TestCreate_RequiresTicketAndSummary(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/MAIN/devices/create", `{"summary": {"subjects": [], "nodes": [], "edges": []}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = f.do(http.MethodPost, "/api/MAIN/devices/create", `{"ticketKey": "AMT-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCalculateBrandPackSizesAsync(t *testing.T) {
	f := newFixture(t)
	body := `{"ticketKey": "AMT-1", "details": {"productId": "6001", "packageDetails": ` + panadolPack + `, "packSizes": [{"packSize": "30"}]}}`

	rec := f.do(http.MethodPost, "/api/MAIN|SNOMEDCT-AU/brand-pack-sizes/calculate/async", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		JobID      string `json:"jobId"`
		SummaryKey string `json:"summaryKey"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected response, got %v", err)
	}
	if resp.JobID == "" || resp.SummaryKey != "summaries/AMT-1/"+resp.JobID+".json" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if len(f.queue.keys) != 1 || f.queue.keys[0] != queue.CalculateQueue {
		t.Fatalf("expected one message on %s, got %v", queue.CalculateQueue, f.queue.keys)
	}
	job, err := queue.DecodeCalculateJob(f.queue.bodies[0])
	if err != nil {
		t.Fatalf("expected a valid job, got %v", err)
	}
	if job.JobID != resp.JobID || job.Branch != "MAIN/SNOMEDCT-AU" || job.TicketKey != "AMT-1" {
		t.Fatalf("unexpected job %+v", job)
	}
	if f.repo.QueryCount() != 0 {
		t.Fatalf("expected queuing not to query the repository")
	}
}

func TestCalculateBrandPackSizesAsync_RejectsInvalid(t *testing.T) {
	f := newFixture(t)
	body := `{"ticketKey": "AMT-1", "details": {"productId": "6001", "packageDetails": ` + panadolPack + `}}`

	rec := f.do(http.MethodPost, "/api/MAIN/brand-pack-sizes/calculate/async", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(f.queue.keys) != 0 {
		t.Fatalf("expected nothing to be queued")
	}
}

func TestTicketRoutes(t *testing.T) {
	f := newFixture(t)
	stored := graph.NewProductSummary()
	stored.AddNode(graph.NewExistingNode(common.ConceptReference{ID: "6001"}, graph.LabelCTPP))
	stored.Subjects = []string{"6001"}
	f.summaries.summaries["summaries/AMT-1/job1.json"] = stored
	f.tickets.products["AMT-1"] = []store.TicketProduct{
		{Name: "Panadol, 20", SummaryKey: "summaries/AMT-1/job1.json"},
		{Name: "Panadol, 30", SummaryKey: "summaries/AMT-1/job1.json"},
	}

	rec := f.do(http.MethodGet, "/api/tickets/AMT-1/summaries/job1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = f.do(http.MethodGet, "/api/tickets/AMT-1/summaries/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/api/tickets/AMT-1/products", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Panadol, 30") {
		t.Fatalf("expected products, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = f.do(http.MethodGet, "/api/tickets/AMT-404/products", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	// the summary is shared, the first delete keeps it
	rec = f.do(http.MethodDelete, "/api/tickets/AMT-1/products", `{"name": "Panadol, 20"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(f.summaries.deleted) != 0 {
		t.Fatalf("expected shared summary to be kept, got %v", f.summaries.deleted)
	}
	rec = f.do(http.MethodDelete, "/api/tickets/AMT-1/products", `{"name": "Panadol,  30"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(f.summaries.deleted) != 1 {
		t.Fatalf("expected summary to be deleted with its last product, got %v", f.summaries.deleted)
	}
}
