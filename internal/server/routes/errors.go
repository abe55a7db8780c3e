package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/amtcalc/internal/util"
	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"
	"github.com/OFFIS-RIT/amtcalc/pkg/store"

	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Message    string   `json:"message"`
	Error      string   `json:"error,omitempty"`
	Branch     string   `json:"branch,omitempty"`
	TypeID     string   `json:"typeId,omitempty"`
	ConceptIDs []string `json:"conceptIds,omitempty"`
}

// errorStatus maps a calculation or materialization error to its HTTP
// status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrAmbiguity), errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrRepositoryUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func newErrorResponse(err error) errorResponse {
	resp := errorResponse{Message: err.Error()}

	var validation *common.ValidationError
	var ambiguity *common.AmbiguityError
	var conflict *common.ConflictError
	var repository *common.RepositoryError
	switch {
	case errors.As(err, &validation):
		resp.Error = "validation"
		resp.Branch, resp.TypeID, resp.ConceptIDs = validation.Branch, validation.TypeID, validation.ConceptIDs
	case errors.Is(err, common.ErrRoundingTolerance):
		resp.Error = "rounding"
	case errors.As(err, &ambiguity):
		resp.Error = "ambiguity"
		resp.Branch, resp.ConceptIDs = ambiguity.Branch, ambiguity.ConceptIDs
	case errors.As(err, &conflict):
		resp.Error = "conflict"
		resp.Branch, resp.ConceptIDs = conflict.Branch, conflict.ConceptIDs
	case errors.As(err, &repository):
		resp.Error = "repository"
		resp.Branch = repository.Branch
	}
	return resp
}

// respondError writes err with its mapped status. Internal errors are
// logged and not echoed to the client.
func respondError(c echo.Context, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
		return c.JSON(status, errorResponse{Message: "Internal server error"})
	}
	if status == http.StatusBadGateway {
		logger.Warn("[Server] Terminology repository unavailable", "path", c.Path(), "err", err)
	}
	return c.JSON(status, newErrorResponse(err))
}

// branchParam decodes the :branch route segment.
func branchParam(c echo.Context) (string, error) {
	branch, err := util.DecodeBranch(c.Param("branch"))
	if err != nil {
		return "", &common.ValidationError{Reason: err.Error()}
	}
	return branch, nil
}
