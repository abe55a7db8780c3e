package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/amtcalc/internal/util"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"
	"github.com/OFFIS-RIT/amtcalc/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// TicketDBStore implements store.TicketStore on PostgreSQL.
type TicketDBStore struct {
	conn      pgxIConn
	chunkSize int
}

var _ store.TicketStore = (*TicketDBStore)(nil)

type TicketDBStoreOption func(*TicketDBStore)

// WithChunkSize sets how many products are written per transaction.
func WithChunkSize(n int) TicketDBStoreOption {
	return func(s *TicketDBStore) {
		s.chunkSize = n
	}
}

// NewTicketDBStoreWithConnection creates a TicketDBStore on an existing
// connection or pool.
func NewTicketDBStoreWithConnection(conn pgxIConn, opts ...TicketDBStoreOption) *TicketDBStore {
	s := &TicketDBStore{conn: conn, chunkSize: 500}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

const findTicket = `
SELECT id, key, title, created_at
FROM tickets
WHERE key = $1`

func (s *TicketDBStore) FindTicket(ctx context.Context, key string) (*store.Ticket, error) {
	t := store.Ticket{}
	err := s.conn.QueryRow(ctx, findTicket, key).Scan(&t.ID, &t.Key, &t.Title, &t.CreatedAt)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrTicketNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const upsertTicketProducts = `
INSERT INTO ticket_products (ticket_id, name, concept_id, status, details, summary_key, updated_at)
SELECT $1, p.name, NULLIF(p.concept_id, ''), p.status, p.details, NULLIF(p.summary_key, ''), $7
FROM unnest($2::text[], $3::text[], $4::text[], $5::jsonb[], $6::text[])
	AS p(name, concept_id, status, details, summary_key)
ON CONFLICT (ticket_id, name) DO UPDATE SET
	concept_id = COALESCE(EXCLUDED.concept_id, ticket_products.concept_id),
	status = EXCLUDED.status,
	details = COALESCE(EXCLUDED.details, ticket_products.details),
	summary_key = COALESCE(EXCLUDED.summary_key, ticket_products.summary_key),
	updated_at = EXCLUDED.updated_at`

// productBatch is the column-wise form of a product slice for unnest.
type productBatch struct {
	Names       []string
	ConceptIDs  []string
	Statuses    []string
	Details     [][]byte
	SummaryKeys []string
}

func newProductBatch(products []store.TicketProduct) productBatch {
	b := productBatch{
		Names:       make([]string, 0, len(products)),
		ConceptIDs:  make([]string, 0, len(products)),
		Statuses:    make([]string, 0, len(products)),
		Details:     make([][]byte, 0, len(products)),
		SummaryKeys: make([]string, 0, len(products)),
	}
	for _, p := range products {
		status := p.Status
		if status == "" {
			status = store.ProductCalculated
		}
		var details []byte
		if len(p.Details) > 0 {
			details = p.Details
		}
		b.Names = append(b.Names, util.SanitizeProductName(p.Name))
		b.ConceptIDs = append(b.ConceptIDs, p.ConceptID)
		b.Statuses = append(b.Statuses, string(status))
		b.Details = append(b.Details, details)
		b.SummaryKeys = append(b.SummaryKeys, p.SummaryKey)
	}
	return b
}

func (s *TicketDBStore) PutProductOnTicket(ctx context.Context, key string, product store.TicketProduct) error {
	return s.PutProductsOnTicket(ctx, key, []store.TicketProduct{product})
}

// PutProductsOnTicket upserts products by name in chunked transactions.
func (s *TicketDBStore) PutProductsOnTicket(ctx context.Context, key string, products []store.TicketProduct) error {
	products = store.DedupeProducts(products)
	if len(products) == 0 {
		return nil
	}

	ticket, err := s.FindTicket(ctx, key)
	if err != nil {
		return err
	}

	logger.Debug("[Tickets] Upserting products", "ticket", key, "products", len(products))

	now := time.Now().UTC()
	return store.ChunkRange(len(products), s.chunkSize, func(start, end int) error {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		b := newProductBatch(products[start:end])
		if _, err := tx.Exec(ctx, upsertTicketProducts,
			ticket.ID, b.Names, b.ConceptIDs, b.Statuses, b.Details, b.SummaryKeys, now,
		); err != nil {
			return fmt.Errorf("failed to upsert products on ticket %s: %w", key, err)
		}
		return tx.Commit(ctx)
	})
}

const listTicketProducts = `
SELECT p.name, COALESCE(p.concept_id, ''), p.status, p.details, COALESCE(p.summary_key, ''), p.updated_at
FROM ticket_products p
JOIN tickets t ON t.id = p.ticket_id
WHERE t.key = $1
ORDER BY p.name`

func (s *TicketDBStore) ListProducts(ctx context.Context, key string) ([]store.TicketProduct, error) {
	if _, err := s.FindTicket(ctx, key); err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, listTicketProducts, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.TicketProduct, 0)
	for rows.Next() {
		p := store.TicketProduct{}
		var status string
		var details []byte
		if err := rows.Scan(&p.Name, &p.ConceptID, &status, &details, &p.SummaryKey, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Status = store.ProductStatus(status)
		p.Details = details
		out = append(out, p)
	}
	return out, rows.Err()
}

const deleteTicketProduct = `
DELETE FROM ticket_products p
USING tickets t
WHERE t.id = p.ticket_id AND t.key = $1 AND p.name = $2`

func (s *TicketDBStore) DeleteProduct(ctx context.Context, key, name string) error {
	tag, err := s.conn.Exec(ctx, deleteTicketProduct, key, util.SanitizeProductName(name))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		logger.Debug("[Tickets] Nothing to delete", "ticket", key, "product", name)
	}
	return nil
}
