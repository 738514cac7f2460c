package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/shared"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Bind decodes the JSON body into target and runs struct validation tags.
// It writes a 400 problem and returns false on failure.
func Bind(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := DecodeJSON(r, target); err != nil {
		BadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	if err := validate.Struct(target); err != nil {
		BadRequest(w, err.Error())
		return false
	}
	return true
}

// Actor returns the caller identity placed in the context by the identity middleware.
func Actor(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		Problem(w, http.StatusUnauthorized, "Unauthorized", "missing caller identity")
		return shared.Actor{}, false
	}
	return actor, true
}

// PathUUID parses a chi URL parameter as a UUID, writing a 400 problem on failure.
func PathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		BadRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// QueryUUID parses an optional query parameter as a UUID.
func QueryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, shared.Validation("invalid " + name)
	}
	return &id, nil
}

// QueryInt parses an optional integer query parameter.
func QueryInt(r *http.Request, name string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, shared.Validation("invalid " + name)
	}
	return &v, nil
}

// QueryYearMonth reads the mandatory year and month query parameters.
func QueryYearMonth(r *http.Request) (shared.YearMonth, error) {
	year, err := QueryInt(r, "year")
	if err != nil {
		return shared.YearMonth{}, err
	}
	month, err := QueryInt(r, "month")
	if err != nil {
		return shared.YearMonth{}, err
	}
	if year == nil || month == nil {
		return shared.YearMonth{}, shared.Validation("year and month are required")
	}
	ym := shared.YearMonth{Year: *year, Month: *month}
	return ym, ym.Validate()
}
