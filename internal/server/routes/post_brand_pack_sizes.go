package routes

import (
	"encoding/json"
	"net/http"

	"github.com/OFFIS-RIT/amtcalc/internal/queue"
	"github.com/OFFIS-RIT/amtcalc/internal/server/middleware"
	"github.com/OFFIS-RIT/amtcalc/internal/storage"
	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CalculateBrandPackSizesHandler calculates every brand and pack size
// variant of an existing product.
func CalculateBrandPackSizesHandler(c echo.Context) error {
	branch, err := branchParam(c)
	if err != nil {
		return respondError(c, err)
	}

	data := new(common.BrandPackSizeCreationDetails)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Message: "Invalid request body",
			Error:   err.Error(),
		})
	}

	app := c.(*middleware.AppContext).App
	summary, err := app.Engine.BrandPackSizes.Calculate(c.Request().Context(), branch, *data)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, summary)
}

// CalculateBrandPackSizesAsyncHandler validates the request and queues it
// for the worker. The summary is fetched later by ticket and job id.
func CalculateBrandPackSizesAsyncHandler(c echo.Context) error {
	type asyncBody struct {
		TicketKey string                              `json:"ticketKey" validate:"required"`
		Details   common.BrandPackSizeCreationDetails `json:"details"`
	}

	type asyncResponse struct {
		Message    string `json:"message"`
		JobID      string `json:"jobId"`
		SummaryKey string `json:"summaryKey"`
	}

	branch, err := branchParam(c)
	if err != nil {
		return respondError(c, err)
	}

	data := new(asyncBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Message: "Invalid request body",
			Error:   err.Error(),
		})
	}

	app := c.(*middleware.AppContext).App
	if err := app.Engine.BrandPackSizes.Validate(data.Details); err != nil {
		return respondError(c, err)
	}

	job, err := queue.NewCalculateJob(branch, data.TicketKey, data.Details)
	if err != nil {
		return respondError(c, err)
	}
	body, err := json.Marshal(job)
	if err != nil {
		return respondError(c, err)
	}
	if err := queue.PublishFIFO(app.Queue, queue.CalculateQueue, body); err != nil {
		logger.Error("[Server] Failed to queue calculation", "job", job.JobID, "err", err)
		return c.JSON(http.StatusServiceUnavailable, errorResponse{
			Message: "Failed to queue calculation",
		})
	}

	logger.Info("[Server] Queued calculation", "job", job.JobID, "ticket", job.TicketKey, "branch", branch)
	return c.JSON(http.StatusAccepted, asyncResponse{
		Message:    "Calculation queued",
		JobID:      job.JobID,
		SummaryKey: storage.SummaryKey(job.TicketKey, job.JobID),
	})
}

// CreateBrandPackSizesHandler writes the reviewed summary of a brand and
// pack size calculation.
func CreateBrandPackSizesHandler(c echo.Context) error {
	return createProduct(c)
}
