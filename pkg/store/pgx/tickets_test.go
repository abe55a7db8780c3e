package pgx

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/amtcalc/pkg/store"
)

func TestNewProductBatch(t *testing.T) {
	products := []store.TicketProduct{
		{Name: "Panadol 500 mg tablet, 20", ConceptID: "6001", Status: store.ProductCompleted, Details: json.RawMessage(`{"a":1}`)},
		{Name: " Panadol 500 mg tablet,  30", SummaryKey: "summaries/T-1/x.json"},
	}

	b := newProductBatch(products)

	if !reflect.DeepEqual(b.Names, []string{"Panadol 500 mg tablet, 20", "Panadol 500 mg tablet, 30"}) {
		t.Fatalf("unexpected names %v", b.Names)
	}
	if !reflect.DeepEqual(b.ConceptIDs, []string{"6001", ""}) {
		t.Fatalf("unexpected concept ids %v", b.ConceptIDs)
	}
	if !reflect.DeepEqual(b.Statuses, []string{"completed", "calculated"}) {
		t.Fatalf("expected missing status to default to calculated, got %v", b.Statuses)
	}
	if string(b.Details[0]) != `{"a":1}` || b.Details[1] != nil {
		t.Fatalf("expected details to be passed through and nil when empty, got %q", b.Details)
	}
	if b.SummaryKeys[1] != "summaries/T-1/x.json" {
		t.Fatalf("unexpected summary key %q", b.SummaryKeys[1])
	}
}

func TestNewTicketDBStore_Options(t *testing.T) {
	s := NewTicketDBStoreWithConnection(nil, WithChunkSize(10), nil)
	if s.chunkSize != 10 {
		t.Fatalf("expected chunk size 10, got %d", s.chunkSize)
	}
	if d := NewTicketDBStoreWithConnection(nil); d.chunkSize != 500 {
		t.Fatalf("expected default chunk size 500, got %d", d.chunkSize)
	}
}
