package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"klinikcal/internal/appointment"
	"klinikcal/internal/backend"
	"klinikcal/internal/calendar"
	appLog "klinikcal/internal/log"
)

// Error codes returned in the "error" field.
const (
	codeBadRequest           = "bad_request"
	codeUnauthorized         = "unauthorized"
	codeForbidden            = "forbidden"
	codeNotFound             = "not_found"
	codeValidation           = "validation"
	codeSlotOccupied         = "slot_occupied"
	codeScopeRequired        = "scope_required"
	codeConfirmationRequired = "confirmation_required"
	codeNoDoctor             = "doctor_required"
	codeBackend              = "backend_unavailable"
	codeInternal             = "internal"
)

type errorResponse struct {
	Error   string                       `json:"error"`
	Message string                       `json:"message,omitempty"`
	Fields  appointment.ValidationErrors `json:"fields,omitempty"`
	Modes   []appointment.DeleteMode     `json:"modes,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, r, status, errorResponse{Error: code, Message: msg})
}

// writeDomainError maps errors from the calendar stack to HTTP answers. The
// session state is never touched here, so the client can retry as is.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verrs     appointment.ValidationErrors
		statusErr *backend.StatusError
	)
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{Error: codeValidation, Message: "invalid appointment", Fields: verrs})
	case errors.Is(err, calendar.ErrSlotOccupied):
		writeError(w, r, http.StatusConflict, codeSlotOccupied, err.Error())
	case errors.Is(err, appointment.ErrScopeRequired):
		modes := make([]appointment.DeleteMode, len(appointment.SeriesModes))
		copy(modes, appointment.SeriesModes)
		writeJSON(w, r, http.StatusConflict, errorResponse{Error: codeScopeRequired, Message: err.Error(), Modes: modes})
	case errors.Is(err, appointment.ErrConfirmationRequired):
		writeError(w, r, http.StatusConflict, codeConfirmationRequired, err.Error())
	case errors.Is(err, appointment.ErrInvalidMode):
		writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
	case errors.Is(err, appointment.ErrReadOnly), errors.Is(err, calendar.ErrForbidden):
		writeError(w, r, http.StatusForbidden, codeForbidden, err.Error())
	case errors.Is(err, calendar.ErrNotFound), backend.IsNotFound(err):
		writeError(w, r, http.StatusNotFound, codeNotFound, "appointment not found")
	case errors.Is(err, calendar.ErrNoDoctor):
		writeError(w, r, http.StatusBadRequest, codeNoDoctor, err.Error())
	case errors.As(err, &statusErr):
		appLog.Error("backend rejected request", err, "path", r.URL.Path)
		writeError(w, r, http.StatusBadGateway, codeBackend, statusErr.Error())
	default:
		appLog.Error("request failed", err, "path", r.URL.Path)
		writeError(w, r, http.StatusBadGateway, codeBackend, "backend request failed")
	}
}
