package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/amtcalc/internal/server/middleware"
	"github.com/OFFIS-RIT/amtcalc/internal/util"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"
	"github.com/OFFIS-RIT/amtcalc/pkg/store"

	"github.com/labstack/echo/v4"
)

// DeleteTicketProductHandler removes a product from a ticket together with
// its archived summary. Concepts already created are not touched.
func DeleteTicketProductHandler(c echo.Context) error {
	type deleteProductBody struct {
		Name string `json:"name" validate:"required"`
	}

	data := new(deleteProductBody)
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

	key := c.Param("ticket")
	name := util.SanitizeProductName(data.Name)
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	products, err := app.Tickets.ListProducts(ctx, key)
	if err != nil {
		return respondError(c, err)
	}
	if err := app.Tickets.DeleteProduct(ctx, key, name); err != nil {
		return respondError(c, err)
	}

	// a summary is shared by every variant of a job, keep it while any
	// other product still points at it
	for _, p := range products {
		if p.Name != name || p.SummaryKey == "" {
			continue
		}
		if summaryInUse(products, p.Name, p.SummaryKey) {
			continue
		}
		if err := app.Summaries.DeleteSummary(ctx, p.SummaryKey); err != nil {
			logger.Warn("[Server] Failed to delete archived summary", "ticket", key, "key", p.SummaryKey, "err", err)
		}
	}

	return c.NoContent(http.StatusNoContent)
}

func summaryInUse(products []store.TicketProduct, except, key string) bool {
	for _, p := range products {
		if p.Name != except && p.SummaryKey == key {
			return true
		}
	}
	return false
}
