package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/itplus/visadesk/internal/session"
	"github.com/itplus/visadesk/internal/types"
	"github.com/itplus/visadesk/internal/validation"
	"github.com/itplus/visadesk/pkg/crm"
)

// CRM is the backend surface the gateway consumes. *crm.Client satisfies
// it; tests substitute a stub.
type CRM interface {
	session.Backend

	CreateLead(ctx context.Context, lead crm.Lead) (*crm.Lead, error)
	UpdateLead(ctx context.Context, id int, patch map[string]any) (*crm.Lead, error)
	DeleteLead(ctx context.Context, id int) error
	ValidateFormResponse(ctx context.Context, id int) (*crm.ValidationResult, error)
	ListVisas(ctx context.Context) ([]crm.Visa, error)
	GetVisa(ctx context.Context, code string) (*crm.Visa, error)
	StartVisa(ctx context.Context, code string, leadID int) (*crm.VisaStartResult, error)
	Ping(ctx context.Context) error
}

// Handler implements the gateway handlers. Each handler is one iteration
// of the dashboard's fetch-render-mutate-refetch loop: it mutates through
// the client, reloads the owning screen's state, and returns the composed
// view model.
type Handler struct {
	crm      CRM
	registry *session.Registry
	apiKey   string
	version  string
}

// NewHandler creates a new Handler.
func NewHandler(c CRM, registry *session.Registry, apiKey, version string) *Handler {
	return &Handler{
		crm:      c,
		registry: registry,
		apiKey:   apiKey,
		version:  version,
	}
}

// Registry exposes the session registry for lifecycle wiring.
func (h *Handler) Registry() *session.Registry {
	return h.registry
}

// healthResponse is the health check payload.
type healthResponse struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	BackendReachable bool   `json:"backend_reachable"`
	Sessions         int    `json:"sessions"`
}

// Health reports gateway liveness and backend reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:           "healthy",
		Version:          h.version,
		BackendReachable: true,
		Sessions:         h.registry.Len(),
	}
	if err := h.crm.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.BackendReachable = false
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Leads ---

// Statuses returns the status lookup table, fetching it once per session.
func (h *Handler) Statuses(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	if len(sess.Leads.Statuses()) == 0 {
		if err := sess.Leads.LoadStatuses(r.Context()); err != nil {
			slog.Error("load statuses failed", "error", err)
			MapBackendError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sess.Leads.Statuses())
}

// ListLeads applies any filter query parameters to the session's filter
// state, re-fetches the lead list, and returns the list view.
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	q := r.URL.Query()
	var patch types.LeadFilterPatch
	if q.Has("status") {
		v := q.Get("status")
		patch.Status = &v
	}
	if q.Has("visa_country") {
		v := q.Get("visa_country")
		patch.VisaCountry = &v
	}
	if q.Has("search") {
		v := q.Get("search")
		patch.Search = &v
	}
	sess.Leads.SetFilters(patch)

	if err := sess.Leads.LoadLeads(r.Context()); err != nil {
		slog.Error("load leads failed", "error", err, "filters", sess.Leads.Filters())
		MapBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Leads.View())
}

// CreateLead creates a lead and reloads the list.
func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	var lead crm.Lead
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	var c validation.Collector
	c.Add(validation.ValidateRequired("from_address", lead.FromAddress))
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Lead contains invalid fields", c.Errors())
		return
	}

	created, err := h.crm.CreateLead(r.Context(), lead)
	if err != nil {
		slog.Error("create lead failed", "error", err)
		MapBackendError(w, r, err)
		return
	}

	h.reloadLeads(r.Context(), sess)
	writeJSON(w, http.StatusCreated, created)
}

// UpdateLead partially updates a lead (e.g. a status change) and reloads
// the list.
func (h *Handler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	updated, err := h.crm.UpdateLead(r.Context(), id, patch)
	if err != nil {
		slog.Error("update lead failed", "error", err, "lead_id", id)
		MapBackendError(w, r, err)
		return
	}

	h.reloadLeads(r.Context(), sess)
	writeJSON(w, http.StatusOK, updated)
}

// DeleteLead deletes a lead and reloads the list.
func (h *Handler) DeleteLead(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.crm.DeleteLead(r.Context(), id); err != nil {
		slog.Error("delete lead failed", "error", err, "lead_id", id)
		MapBackendError(w, r, err)
		return
	}

	h.reloadLeads(r.Context(), sess)
	w.WriteHeader(http.StatusNoContent)
}

// LeadDetail loads the composed detail screen for one lead.
func (h *Handler) LeadDetail(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := sess.Detail.Load(r.Context(), id); err != nil {
		slog.Error("load lead detail failed", "error", err, "lead_id", id)
		MapBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Detail.View())
}

// saveFormRequest is the manual-form save payload.
type saveFormRequest struct {
	FormType string `json:"form_type"`
	RawText  string `json:"raw_text"`
}

// SaveForm saves the manual form for a lead: a create when the edit
// target has never been persisted, an update otherwise; either path
// concludes with a full reload of the screen.
func (h *Handler) SaveForm(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req saveFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	formType := crm.NormalizeFormType(req.FormType)
	if formType != "" {
		allowed := make([]string, len(types.FormTypeOptions))
		for i, t := range types.FormTypeOptions {
			allowed[i] = string(t)
		}
		var c validation.Collector
		c.Add(validation.ValidateEnum("form_type", string(formType), allowed))
		if c.HasErrors() {
			WriteProblemWithErrors(w, r, "Form contains invalid fields", c.Errors())
			return
		}
	}

	if err := h.ensureDetail(r.Context(), sess, id); err != nil {
		MapBackendError(w, r, err)
		return
	}

	sess.Detail.SetFormType(formType)
	sess.Detail.SetRawText(req.RawText)

	if err := sess.Detail.SaveForm(r.Context()); err != nil {
		slog.Error("save manual form failed", "error", err, "lead_id", id)
		MapBackendError(w, r, err)
		return
	}

	h.reloadDetail(r.Context(), sess)
	writeJSON(w, http.StatusOK, sess.Detail.View())
}

// DeleteForm deletes the lead's manual form and resets the editor to a
// fresh placeholder.
func (h *Handler) DeleteForm(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.ensureDetail(r.Context(), sess, id); err != nil {
		MapBackendError(w, r, err)
		return
	}

	if err := sess.Detail.DeleteForm(r.Context()); err != nil {
		slog.Error("delete manual form failed", "error", err, "lead_id", id)
		MapBackendError(w, r, err)
		return
	}

	h.reloadDetail(r.Context(), sess)
	writeJSON(w, http.StatusOK, sess.Detail.View())
}

// editAnswerRequest is the parsed-answer edit payload.
type editAnswerRequest struct {
	Value string `json:"value"`
}

// EditAnswer applies a local edit to one parsed answer of one response.
// No backend call is made; the response is marked dirty until saved.
func (h *Handler) EditAnswer(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	responseID, ok := pathID(w, r, "rid")
	if !ok {
		return
	}
	questionID := chi.URLParam(r, "qid")

	var req editAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	if err := h.ensureDetail(r.Context(), sess, id); err != nil {
		MapBackendError(w, r, err)
		return
	}

	if err := sess.Detail.EditAnswer(responseID, questionID, req.Value); err != nil {
		MapBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Detail.View())
}

// SaveResponse persists one response's edited answers and reloads the
// screen so the derived questionnaire reflects them.
func (h *Handler) SaveResponse(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	responseID, ok := pathID(w, r, "rid")
	if !ok {
		return
	}

	if err := h.ensureDetail(r.Context(), sess, id); err != nil {
		MapBackendError(w, r, err)
		return
	}

	if err := sess.Detail.SaveResponse(r.Context(), responseID); err != nil {
		slog.Error("save form response failed", "error", err, "response_id", responseID)
		MapBackendError(w, r, err)
		return
	}

	h.reloadDetail(r.Context(), sess)
	writeJSON(w, http.StatusOK, sess.Detail.View())
}

// ValidateResponse asks the backend to re-check one response and reloads
// the screen; the backend may have moved the lead's status.
func (h *Handler) ValidateResponse(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	responseID, ok := pathID(w, r, "rid")
	if !ok {
		return
	}

	if err := h.ensureDetail(r.Context(), sess, id); err != nil {
		MapBackendError(w, r, err)
		return
	}

	result, err := h.crm.ValidateFormResponse(r.Context(), responseID)
	if err != nil {
		slog.Error("validate form response failed", "error", err, "response_id", responseID)
		MapBackendError(w, r, err)
		return
	}

	h.reloadDetail(r.Context(), sess)
	writeJSON(w, http.StatusOK, result)
}

// --- Visas ---

// ListVisas returns the visa reference catalogue.
func (h *Handler) ListVisas(w http.ResponseWriter, r *http.Request) {
	visas, err := h.crm.ListVisas(r.Context())
	if err != nil {
		slog.Error("list visas failed", "error", err)
		MapBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visas)
}

// GetVisa returns one visa reference entry.
func (h *Handler) GetVisa(w http.ResponseWriter, r *http.Request) {
	visa, err := h.crm.GetVisa(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		MapBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visa)
}

// startVisaRequest is the start-process payload.
type startVisaRequest struct {
	LeadID int `json:"lead_id"`
}

// StartVisa starts the visa process for a lead. The status and audit
// changes are entirely server-side; the gateway only relays the
// confirmation.
func (h *Handler) StartVisa(w http.ResponseWriter, r *http.Request) {
	var req startVisaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	var c validation.Collector
	c.Add(validation.ValidatePositiveID("lead_id", req.LeadID))
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "A lead must be selected before starting a visa process", c.Errors())
		return
	}

	result, err := h.crm.StartVisa(r.Context(), chi.URLParam(r, "code"), req.LeadID)
	if err != nil {
		slog.Error("start visa failed", "error", err, "lead_id", req.LeadID)
		MapBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Settings ---

// GetSettings fetches the singleton settings record.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	if err := sess.Settings.Load(r.Context()); err != nil {
		slog.Error("load settings failed", "error", err)
		MapBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Settings.View())
}

// PutSettings merges the field patch onto the last-known record, replaces
// the record wholesale, and returns the backend's canonical echo.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	if errs := validateSettingsPatch(patch); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Settings contain invalid fields", errs)
		return
	}

	if err := sess.Settings.Save(r.Context(), patch); err != nil {
		slog.Error("save settings failed", "error", err)
		MapBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Settings.View())
}

// PutExtraConfig applies a free-form JSON edit to the local extra_config.
// Malformed input is dropped, keeping the last valid value, and only the
// invalid-JSON indicator in the returned view gives it away.
func (h *Handler) PutExtraConfig(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Unreadable request body")
		return
	}

	sess.Settings.SetExtraConfigJSON(string(raw))
	writeJSON(w, http.StatusOK, sess.Settings.View())
}

// validateSettingsPatch checks the numeric fields that have hard ranges.
// JSON numbers decode as float64; non-numeric values for these keys are
// rejected as well.
func validateSettingsPatch(patch map[string]any) []validation.ValidationError {
	var c validation.Collector

	hourFields := []string{"send_window_start_hour", "send_window_end_hour"}
	for _, field := range hourFields {
		if v, ok := patch[field]; ok {
			n, isNum := v.(float64)
			if !isNum || n != float64(int(n)) {
				c.Add(&validation.ValidationError{Field: field, Message: "must be a whole hour"})
				continue
			}
			c.Add(validation.ValidateHour(field, int(n)))
		}
	}

	dayFields := []string{"first_reminder_days", "second_reminder_days", "poll_interval_seconds"}
	for _, field := range dayFields {
		if v, ok := patch[field]; ok {
			n, isNum := v.(float64)
			if !isNum || n != float64(int(n)) {
				c.Add(&validation.ValidationError{Field: field, Message: "must be a whole number"})
				continue
			}
			c.Add(validation.ValidateNonNegative(field, int(n)))
		}
	}

	return c.Errors()
}

// --- helpers ---

// ensureDetail makes sure the session's detail screen holds the requested
// lead before an edit or mutation addressed to it.
func (h *Handler) ensureDetail(ctx context.Context, sess *session.Session, leadID int) error {
	if sess.Detail.Loaded() && sess.Detail.View().Lead.ID == leadID {
		return nil
	}
	return sess.Detail.Load(ctx, leadID)
}

// reloadLeads re-fetches the lead list after a mutation. A failed reload
// leaves the previous snapshot on screen; the mutation itself succeeded.
func (h *Handler) reloadLeads(ctx context.Context, sess *session.Session) {
	if err := sess.Leads.LoadLeads(ctx); err != nil {
		slog.Warn("lead list reload failed", "error", err)
	}
}

// reloadDetail re-fetches the detail screen after a mutation.
func (h *Handler) reloadDetail(ctx context.Context, sess *session.Session) {
	if err := sess.Detail.Reload(ctx); err != nil {
		slog.Warn("detail reload failed", "error", err)
	}
}

// pathID parses a positive integer URL parameter, writing a 400 problem
// on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid %s parameter", name))
		return 0, false
	}
	return id, true
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
