package server

import (
	"github.com/OFFIS-RIT/amtcalc/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	// Branch paths use '|' instead of '/', e.g. MAIN|SNOMEDCT-AU|AUAMT
	branchRoutes := e.Group("/api/:branch")

	// Medication routes
	branchRoutes.POST("/medications/calculate", routes.CalculateMedicationHandler)
	branchRoutes.POST("/medications/create", routes.CreateMedicationHandler)

	// Device routes
	branchRoutes.POST("/devices/calculate", routes.CalculateDeviceHandler)
	branchRoutes.POST("/devices/create", routes.CreateDeviceHandler)

	// Brand and pack size routes
	branchRoutes.POST("/brand-pack-sizes/calculate", routes.CalculateBrandPackSizesHandler)
	branchRoutes.POST("/brand-pack-sizes/calculate/async", routes.CalculateBrandPackSizesAsyncHandler)
	branchRoutes.POST("/brand-pack-sizes/create", routes.CreateBrandPackSizesHandler)

	// Ticket routes
	ticketRoutes := e.Group("/api/tickets")
	ticketRoutes.GET("/:ticket/products", routes.GetTicketProductsHandler)
	ticketRoutes.DELETE("/:ticket/products", routes.DeleteTicketProductHandler)
	ticketRoutes.GET("/:ticket/summaries/:job", routes.GetTicketSummaryHandler)
}
