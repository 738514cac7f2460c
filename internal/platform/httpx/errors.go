package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// StatusFor maps a domain error code onto an HTTP status.
func StatusFor(code shared.Code) int {
	switch code {
	case shared.CodeNotFound:
		return http.StatusNotFound
	case shared.CodeConflict:
		return http.StatusConflict
	case shared.CodeUnauthorizedRole, shared.CodePeriodLocked:
		return http.StatusForbidden
	case shared.CodeFTEInvalid, shared.CodeDemandXor, shared.CodePlaceholderBlocked4MFC, shared.CodeActualsOver100:
		return http.StatusUnprocessableEntity
	case shared.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var domainErr *shared.Error
	if !errors.As(err, &domainErr) {
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	status := StatusFor(domainErr.Code)
	writeProblem(w, ProblemDetail{
		Title:   http.StatusText(status),
		Status:  status,
		Detail:  domainErr.Message,
		Code:    string(domainErr.Code),
		Details: domainErr.Details,
	})
}

// BadRequest reports an undecodable or invalid payload.
func BadRequest(w http.ResponseWriter, detail string) {
	writeProblem(w, ProblemDetail{
		Title:  "Validation Failed",
		Status: http.StatusBadRequest,
		Detail: detail,
		Code:   string(shared.CodeValidation),
	})
}
