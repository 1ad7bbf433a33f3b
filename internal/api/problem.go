package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/itplus/visadesk/internal/session"
	"github.com/itplus/visadesk/internal/validation"
	"github.com/itplus/visadesk/pkg/crm"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusUnauthorized: {
		typeURI: "https://visadesk.itplus.kz/errors/unauthorized",
		title:   "Unauthorized",
	},
	http.StatusBadRequest: {
		typeURI: "https://visadesk.itplus.kz/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: "https://visadesk.itplus.kz/errors/not-found",
		title:   "Not Found",
	},
	http.StatusConflict: {
		typeURI: "https://visadesk.itplus.kz/errors/conflict",
		title:   "Conflict",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://visadesk.itplus.kz/errors/validation-error",
		title:   "Validation Error",
	},
	http.StatusInternalServerError: {
		typeURI: "https://visadesk.itplus.kz/errors/internal-error",
		title:   "Internal Server Error",
	},
	http.StatusBadGateway: {
		typeURI: "https://visadesk.itplus.kz/errors/backend-error",
		title:   "Backend Error",
	},
	http.StatusServiceUnavailable: {
		typeURI: "https://visadesk.itplus.kz/errors/backend-unavailable",
		title:   "Backend Unavailable",
	},
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt, ok := problemTypes[status]
	if !ok {
		pt = struct {
			typeURI string
			title   string
		}{
			typeURI: "https://visadesk.itplus.kz/errors/unknown",
			title:   http.StatusText(status),
		}
	}

	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	pt := problemTypes[http.StatusUnprocessableEntity]

	p := ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusUnprocessableEntity,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// MapBackendError converts client and session errors to Problem Details
// responses. Backend rejections pass their status through; transport
// failures surface as 502 so the dashboard can tell "backend said no"
// apart from "backend is down".
func MapBackendError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *crm.APIError

	switch {
	case errors.Is(err, crm.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.As(err, &apiErr):
		WriteProblem(w, r, apiErr.StatusCode, apiErr.Detail)
	case errors.Is(err, session.ErrResponseNotFound),
		errors.Is(err, session.ErrQuestionNotFound):
		WriteProblem(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrResponseClean),
		errors.Is(err, session.ErrFormNotPersisted),
		errors.Is(err, session.ErrNoLeadLoaded):
		WriteProblem(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, crm.ErrBackendUnavailable):
		WriteProblem(w, r, http.StatusServiceUnavailable, "Backend unavailable")
	default:
		WriteProblem(w, r, http.StatusBadGateway, "Backend request failed")
	}
}
