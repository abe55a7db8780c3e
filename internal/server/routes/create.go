package routes

import (
	"encoding/json"
	"net/http"

	"github.com/OFFIS-RIT/amtcalc/internal/server/middleware"
	"github.com/OFFIS-RIT/amtcalc/pkg/graph"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"
	"github.com/OFFIS-RIT/amtcalc/pkg/materialize"

	"github.com/labstack/echo/v4"
)

type createBody struct {
	TicketKey string                `json:"ticketKey" validate:"required"`
	Summary   *graph.ProductSummary `json:"summary" validate:"required"`
	Details   json.RawMessage       `json:"details"`
}

type partialResponse struct {
	errorResponse
	Summary *graph.ProductSummary `json:"summary"`
}

// createProduct materializes the reviewed summary of a create request. All
// product families share it; the family only shows in the recorded details.
func createProduct(c echo.Context) error {
	branch, err := branchParam(c)
	if err != nil {
		return respondError(c, err)
	}

	data := new(createBody)
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
	summary, err := app.Engine.Materializer.Materialize(c.Request().Context(), materialize.Request{
		Branch:    branch,
		TicketKey: data.TicketKey,
		Summary:   data.Summary,
		Details:   data.Details,
	})
	if err != nil {
		if summary == nil {
			return respondError(c, err)
		}
		// concepts created before the failure stay; the client gets their ids
		status := errorStatus(err)
		logger.Error("[Server] Materialization stopped", "branch", branch, "ticket", data.TicketKey, "err", err)
		return c.JSON(status, partialResponse{newErrorResponse(err), summary})
	}

	return c.JSON(http.StatusCreated, summary)
}
