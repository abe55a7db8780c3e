package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrTicketNotFound is returned when a ticket key is unknown.
var ErrTicketNotFound = errors.New("ticket not found")

// ProductStatus is how far a product recorded on a ticket has progressed.
type ProductStatus string

const (
	// ProductCalculated marks a summary that was calculated but not written.
	ProductCalculated ProductStatus = "calculated"
	// ProductCompleted marks a product whose concepts were all created.
	ProductCompleted ProductStatus = "completed"
	// ProductPartial marks a materialization that stopped halfway.
	ProductPartial ProductStatus = "partial"
)

// Ticket is the authoring ticket products are recorded on.
type Ticket struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// TicketProduct is the denormalized reference of one product on a ticket.
// Name is unique per ticket; putting a product with the same name replaces
// the earlier record.
type TicketProduct struct {
	Name       string          `json:"name"`
	ConceptID  string          `json:"conceptId,omitempty"`
	Status     ProductStatus   `json:"status"`
	Details    json.RawMessage `json:"details,omitempty"`
	SummaryKey string          `json:"summaryKey,omitempty"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// TicketStore keeps the products created or calculated for a ticket.
// Calculations and materializations never depend on it succeeding.
type TicketStore interface {
	FindTicket(ctx context.Context, key string) (*Ticket, error)
	PutProductOnTicket(ctx context.Context, key string, product TicketProduct) error
	PutProductsOnTicket(ctx context.Context, key string, products []TicketProduct) error
	ListProducts(ctx context.Context, key string) ([]TicketProduct, error)
	DeleteProduct(ctx context.Context, key, name string) error
}
