package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/amtcalc/internal/server/middleware"
	"github.com/OFFIS-RIT/amtcalc/internal/storage"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"
	"github.com/OFFIS-RIT/amtcalc/pkg/store"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/labstack/echo/v4"
)

// GetTicketSummaryHandler returns the summary a queued calculation archived.
func GetTicketSummaryHandler(c echo.Context) error {
	ticket := c.Param("ticket")
	job := c.Param("job")
	if ticket == "" || job == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Message: "Ticket and job are required",
		})
	}

	app := c.(*middleware.AppContext).App
	summary, err := app.Summaries.GetSummary(c.Request().Context(), storage.SummaryKey(ticket, job))
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return c.JSON(http.StatusNotFound, errorResponse{
				Message: "Summary not found, the calculation may still be running",
			})
		}
		logger.Error("[Server] Failed to load summary", "ticket", ticket, "job", job, "err", err)
		return c.JSON(http.StatusBadGateway, errorResponse{
			Message: "Failed to load summary",
		})
	}

	return c.JSON(http.StatusOK, summary)
}

// GetTicketProductsHandler lists the products recorded on a ticket.
func GetTicketProductsHandler(c echo.Context) error {
	type ticketProductsResponse struct {
		Ticket   *store.Ticket         `json:"ticket"`
		Products []store.TicketProduct `json:"products"`
	}

	key := c.Param("ticket")
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	ticket, err := app.Tickets.FindTicket(ctx, key)
	if err != nil {
		return respondError(c, err)
	}
	products, err := app.Tickets.ListProducts(ctx, key)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, ticketProductsResponse{
		Ticket:   ticket,
		Products: products,
	})
}
