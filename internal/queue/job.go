package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/amtcalc/internal/util"
	"github.com/OFFIS-RIT/amtcalc/pkg/common"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// CalculateJob is the message of the calculate queue: one bulk brand/pack
// size calculation whose summary is archived for the ticket.
type CalculateJob struct {
	JobID       string                              `json:"jobId"`
	Branch      string                              `json:"branch"`
	TicketKey   string                              `json:"ticketKey"`
	Details     common.BrandPackSizeCreationDetails `json:"details"`
	RequestedAt time.Time                           `json:"requestedAt"`
}

// NewCalculateJob creates a job with a fresh id.
func NewCalculateJob(branch, ticketKey string, details common.BrandPackSizeCreationDetails) (*CalculateJob, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create job id: %w", err)
	}
	return &CalculateJob{
		JobID:       id,
		Branch:      branch,
		TicketKey:   ticketKey,
		Details:     details,
		RequestedAt: time.Now().UTC(),
	}, nil
}

// DecodeCalculateJob parses and checks a queue message.
func DecodeCalculateJob(body []byte) (*CalculateJob, error) {
	job := new(CalculateJob)
	if err := json.Unmarshal(body, job); err != nil {
		return nil, common.NewValidationError("malformed calculate job: %v", err)
	}
	if job.JobID == "" {
		return nil, common.NewValidationError("calculate job has no id")
	}
	if job.TicketKey == "" {
		return nil, common.NewValidationError("calculate job %s has no ticket", job.JobID)
	}
	if _, err := util.DecodeBranch(util.EncodeBranch(job.Branch)); err != nil {
		return nil, &common.ValidationError{Reason: err.Error(), Branch: job.Branch}
	}
	return job, nil
}
