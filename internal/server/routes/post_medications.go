package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/amtcalc/internal/server/middleware"
	"github.com/OFFIS-RIT/amtcalc/pkg/common"

	"github.com/labstack/echo/v4"
)

// CalculateMedicationHandler calculates the product summary of a medication
// package without writing anything.
func CalculateMedicationHandler(c echo.Context) error {
	branch, err := branchParam(c)
	if err != nil {
		return respondError(c, err)
	}

	data := new(common.PackageDetails[common.MedicationProductDetails])
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
	summary, err := app.Engine.Medications.Calculate(c.Request().Context(), branch, *data)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, summary)
}

// CreateMedicationHandler writes a reviewed medication summary.
func CreateMedicationHandler(c echo.Context) error {
	return createProduct(c)
}
