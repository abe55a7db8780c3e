package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/graph"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"
	"github.com/OFFIS-RIT/amtcalc/pkg/store"
)

// BulkCalculator calculates brand/pack size variants.
type BulkCalculator interface {
	Calculate(ctx context.Context, branch string, details common.BrandPackSizeCreationDetails) (*graph.ProductSummary, error)
}

// SummaryArchive stores calculated summaries and returns their key.
type SummaryArchive interface {
	PutSummary(ctx context.Context, ticket, jobID string, summary *graph.ProductSummary) (string, error)
}

// CalculateDeps is what the calculate queue needs to process a job.
// Tickets and Events may be nil.
type CalculateDeps struct {
	Calculator BulkCalculator
	Archive    SummaryArchive
	Tickets    store.TicketStore
	Events     Publisher
}

// JobEvent is published on the events exchange once a job finished.
type JobEvent struct {
	JobID      string   `json:"jobId"`
	TicketKey  string   `json:"ticketKey"`
	SummaryKey string   `json:"summaryKey"`
	Subjects   []string `json:"subjects"`
}

// Retryable reports whether a failed job may succeed when processed again.
// Rejected input never does.
func Retryable(err error) bool {
	return !errors.Is(err, common.ErrValidation) && !errors.Is(err, common.ErrAmbiguity)
}

// ProcessCalculateMessage calculates the variants of one job, archives the
// summary and records every subject on the ticket. Calculation writes
// nothing to the repository, so a job can be retried as a whole. Ticket
// failures are logged and swallowed.
func ProcessCalculateMessage(ctx context.Context, deps CalculateDeps, body []byte) error {
	job, err := DecodeCalculateJob(body)
	if err != nil {
		return err
	}

	log := logger.With("job", job.JobID, "ticket", job.TicketKey)
	log.Info("[Queue] Calculating brand and pack size variants", "branch", job.Branch)

	summary, err := deps.Calculator.Calculate(ctx, job.Branch, job.Details)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.JobID, err)
	}

	key, err := deps.Archive.PutSummary(ctx, job.TicketKey, job.JobID, summary)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.JobID, err)
	}

	details, err := json.Marshal(job.Details)
	if err != nil {
		return fmt.Errorf("failed to encode job details: %w", err)
	}
	products := make([]store.TicketProduct, 0, len(summary.Subjects))
	for _, id := range summary.Subjects {
		n := summary.Node(id)
		if n == nil {
			continue
		}
		p := store.TicketProduct{
			Name:       n.DisplayName(),
			Status:     store.ProductCalculated,
			Details:    details,
			SummaryKey: key,
		}
		if !n.IsNew() {
			p.ConceptID = n.Concept.ID
		}
		products = append(products, p)
	}
	if deps.Tickets == nil {
		log.Debug("[Queue] No ticket store, skipping products")
	} else if err := deps.Tickets.PutProductsOnTicket(ctx, job.TicketKey, products); err != nil {
		log.Warn("[Queue] Failed to record products on ticket", "err", err)
	}

	if deps.Events != nil {
		event, err := json.Marshal(JobEvent{
			JobID:      job.JobID,
			TicketKey:  job.TicketKey,
			SummaryKey: key,
			Subjects:   summary.Subjects,
		})
		if err == nil {
			err = PublishTopic(deps.Events, "calculation.completed", event)
		}
		if err != nil {
			log.Warn("[Queue] Failed to publish job event", "err", err)
		}
	}

	log.Info("[Queue] Archived calculation", "key", key, "subjects", len(products))
	return nil
}
