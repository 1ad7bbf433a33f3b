package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/itplus/visadesk/internal/session"
	"github.com/itplus/visadesk/pkg/crm"
)

// fakeCRM implements CRM with overridable hooks. Unset hooks return empty
// results so tests only script what they assert on.
type fakeCRM struct {
	listLeads          func(f crm.LeadFilters) ([]crm.Lead, error)
	listStatuses       func() ([]crm.LeadStatus, error)
	getLeadDetail      func(id int) (*crm.LeadDetail, error)
	getQuestionnaire   func(leadID int) (*crm.QuestionnaireSummary, error)
	createLead         func(lead crm.Lead) (*crm.Lead, error)
	updateLead         func(id int, patch map[string]any) (*crm.Lead, error)
	deleteLead         func(id int) error
	createLeadForm     func(form crm.LeadForm) (*crm.LeadForm, error)
	updateLeadForm     func(id int, formType crm.FormType, rawText string) (*crm.LeadForm, error)
	deleteLeadForm     func(id int) error
	updateFormResponse func(id int, answers []crm.ParsedAnswer) (*crm.FormResponse, error)
	validateResponse   func(id int) (*crm.ValidationResult, error)
	listVisas          func() ([]crm.Visa, error)
	getVisa            func(code string) (*crm.Visa, error)
	startVisa          func(code string, leadID int) (*crm.VisaStartResult, error)
	getBotSettings     func() (*crm.BotSettings, error)
	putBotSettings     func(s crm.BotSettings) (*crm.BotSettings, error)
	ping               func() error
}

func (f *fakeCRM) ListLeads(_ context.Context, filters crm.LeadFilters) ([]crm.Lead, error) {
	if f.listLeads != nil {
		return f.listLeads(filters)
	}
	return []crm.Lead{}, nil
}

func (f *fakeCRM) ListStatuses(_ context.Context) ([]crm.LeadStatus, error) {
	if f.listStatuses != nil {
		return f.listStatuses()
	}
	return []crm.LeadStatus{{Code: "new", Label: "New"}}, nil
}

func (f *fakeCRM) GetLeadDetail(_ context.Context, id int) (*crm.LeadDetail, error) {
	if f.getLeadDetail != nil {
		return f.getLeadDetail(id)
	}
	return &crm.LeadDetail{Lead: crm.Lead{ID: id}}, nil
}

func (f *fakeCRM) GetQuestionnaire(_ context.Context, leadID int) (*crm.QuestionnaireSummary, error) {
	if f.getQuestionnaire != nil {
		return f.getQuestionnaire(leadID)
	}
	return &crm.QuestionnaireSummary{LeadID: leadID}, nil
}

func (f *fakeCRM) CreateLead(_ context.Context, lead crm.Lead) (*crm.Lead, error) {
	if f.createLead != nil {
		return f.createLead(lead)
	}
	lead.ID = 1
	return &lead, nil
}

func (f *fakeCRM) UpdateLead(_ context.Context, id int, patch map[string]any) (*crm.Lead, error) {
	if f.updateLead != nil {
		return f.updateLead(id, patch)
	}
	return &crm.Lead{ID: id}, nil
}

func (f *fakeCRM) DeleteLead(_ context.Context, id int) error {
	if f.deleteLead != nil {
		return f.deleteLead(id)
	}
	return nil
}

func (f *fakeCRM) CreateLeadForm(_ context.Context, form crm.LeadForm) (*crm.LeadForm, error) {
	if f.createLeadForm != nil {
		return f.createLeadForm(form)
	}
	form.ID = 1
	return &form, nil
}

func (f *fakeCRM) UpdateLeadForm(_ context.Context, id int, formType crm.FormType, rawText string) (*crm.LeadForm, error) {
	if f.updateLeadForm != nil {
		return f.updateLeadForm(id, formType, rawText)
	}
	return &crm.LeadForm{ID: id, FormType: formType, RawText: rawText}, nil
}

func (f *fakeCRM) DeleteLeadForm(_ context.Context, id int) error {
	if f.deleteLeadForm != nil {
		return f.deleteLeadForm(id)
	}
	return nil
}

func (f *fakeCRM) UpdateFormResponse(_ context.Context, id int, answers []crm.ParsedAnswer) (*crm.FormResponse, error) {
	if f.updateFormResponse != nil {
		return f.updateFormResponse(id, answers)
	}
	return &crm.FormResponse{ID: id, ParsedAnswers: answers}, nil
}

func (f *fakeCRM) ValidateFormResponse(_ context.Context, id int) (*crm.ValidationResult, error) {
	if f.validateResponse != nil {
		return f.validateResponse(id)
	}
	return &crm.ValidationResult{Valid: true}, nil
}

func (f *fakeCRM) ListVisas(_ context.Context) ([]crm.Visa, error) {
	if f.listVisas != nil {
		return f.listVisas()
	}
	return []crm.Visa{}, nil
}

func (f *fakeCRM) GetVisa(_ context.Context, code string) (*crm.Visa, error) {
	if f.getVisa != nil {
		return f.getVisa(code)
	}
	return &crm.Visa{Code: code}, nil
}

func (f *fakeCRM) StartVisa(_ context.Context, code string, leadID int) (*crm.VisaStartResult, error) {
	if f.startVisa != nil {
		return f.startVisa(code, leadID)
	}
	return &crm.VisaStartResult{Status: "started"}, nil
}

func (f *fakeCRM) GetBotSettings(_ context.Context) (*crm.BotSettings, error) {
	if f.getBotSettings != nil {
		return f.getBotSettings()
	}
	return &crm.BotSettings{ID: 1}, nil
}

func (f *fakeCRM) PutBotSettings(_ context.Context, s crm.BotSettings) (*crm.BotSettings, error) {
	if f.putBotSettings != nil {
		return f.putBotSettings(s)
	}
	return &s, nil
}

func (f *fakeCRM) Ping(_ context.Context) error {
	if f.ping != nil {
		return f.ping()
	}
	return nil
}

// newTestServer spins up the full router over a fake CRM.
func newTestServer(t *testing.T, fake *fakeCRM, apiKey string) *httptest.Server {
	t.Helper()

	h := NewHandler(fake, session.NewRegistry(fake), apiKey, "test")
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

// doRequest issues one request, optionally within an existing session.
func doRequest(t *testing.T, srv *httptest.Server, method, path, sessionID string, body any) *http.Response {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, srv.URL+path, reqBody)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeCRM{}, "")

	resp := doRequest(t, srv, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var health healthResponse
	decodeBody(t, resp, &health)
	if health.Status != "healthy" || !health.BackendReachable {
		t.Errorf("Unexpected health: %+v", health)
	}
}

func TestHealth_DegradedWhenBackendDown(t *testing.T) {
	fake := &fakeCRM{ping: func() error { return crm.ErrBackendUnavailable }}
	srv := newTestServer(t, fake, "")

	resp := doRequest(t, srv, http.MethodGet, "/healthz", "", nil)
	var health healthResponse
	decodeBody(t, resp, &health)
	if health.Status != "degraded" || health.BackendReachable {
		t.Errorf("Expected degraded health, got %+v", health)
	}
}

func TestSessionHeaderEchoed(t *testing.T) {
	srv := newTestServer(t, &fakeCRM{}, "")

	resp := doRequest(t, srv, http.MethodGet, "/ui/statuses", "", nil)
	resp.Body.Close()

	sessionID := resp.Header.Get(SessionHeader)
	if sessionID == "" {
		t.Fatal("Expected a session id header")
	}

	// A follow-up with the same id lands in the same session.
	resp2 := doRequest(t, srv, http.MethodGet, "/ui/statuses", sessionID, nil)
	resp2.Body.Close()
	if got := resp2.Header.Get(SessionHeader); got != sessionID {
		t.Errorf("Expected session id %s echoed, got %s", sessionID, got)
	}
}

func TestStatuses_FetchedOncePerSession(t *testing.T) {
	var calls atomic.Int32
	fake := &fakeCRM{listStatuses: func() ([]crm.LeadStatus, error) {
		calls.Add(1)
		return []crm.LeadStatus{{Code: "new", Label: "New"}}, nil
	}}
	srv := newTestServer(t, fake, "")

	resp := doRequest(t, srv, http.MethodGet, "/ui/statuses", "", nil)
	sessionID := resp.Header.Get(SessionHeader)
	resp.Body.Close()

	resp = doRequest(t, srv, http.MethodGet, "/ui/statuses", sessionID, nil)
	resp.Body.Close()

	if calls.Load() != 1 {
		t.Errorf("Expected 1 backend fetch for the session, got %d", calls.Load())
	}
}

func TestListLeads_FiltersPersistAcrossRequests(t *testing.T) {
	var lastFilters crm.LeadFilters
	fake := &fakeCRM{listLeads: func(f crm.LeadFilters) ([]crm.Lead, error) {
		lastFilters = f
		return []crm.Lead{{ID: 1}}, nil
	}}
	srv := newTestServer(t, fake, "")

	resp := doRequest(t, srv, http.MethodGet, "/ui/leads/?status=new", "", nil)
	sessionID := resp.Header.Get(SessionHeader)
	resp.Body.Close()

	// No query parameters: the session's filter state carries over.
	resp = doRequest(t, srv, http.MethodGet, "/ui/leads/", sessionID, nil)
	resp.Body.Close()
	if lastFilters.Status != "new" {
		t.Errorf("Expected persisted status filter, got %+v", lastFilters)
	}

	// Explicit empty value clears the field.
	resp = doRequest(t, srv, http.MethodGet, "/ui/leads/?status=", sessionID, nil)
	resp.Body.Close()
	if lastFilters.Status != "" {
		t.Errorf("Expected cleared status filter, got %+v", lastFilters)
	}
}

func TestCreateLead_RequiresFromAddress(t *testing.T) {
	srv := newTestServer(t, &fakeCRM{}, "")

	resp := doRequest(t, srv, http.MethodPost, "/ui/leads/", "", map[string]any{
		"subject": "visa inquiry",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", resp.StatusCode)
	}

	var problem struct {
		Problem
		Errors []struct {
			Field string `json:"field"`
		} `json:"errors"`
	}
	decodeBody(t, resp, &problem)
	if len(problem.Errors) != 1 || problem.Errors[0].Field != "from_address" {
		t.Errorf("Unexpected validation errors: %+v", problem.Errors)
	}
}

func TestLeadDetail_DegradedSummary(t *testing.T) {
	fake := &fakeCRM{
		getQuestionnaire: func(leadID int) (*crm.QuestionnaireSummary, error) {
			return nil, errors.New("derivation failed")
		},
	}
	srv := newTestServer(t, fake, "")

	resp := doRequest(t, srv, http.MethodGet, "/ui/leads/42/", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 despite summary failure, got %d", resp.StatusCode)
	}

	var view struct {
		Lead             crm.Lead `json:"lead"`
		SummaryAvailable bool     `json:"summary_available"`
	}
	decodeBody(t, resp, &view)
	if view.Lead.ID != 42 {
		t.Errorf("Expected lead 42, got %d", view.Lead.ID)
	}
	if view.SummaryAvailable {
		t.Error("Expected summary availability down")
	}
}

func TestLeadDetail_NotFound(t *testing.T) {
	fake := &fakeCRM{getLeadDetail: func(id int) (*crm.LeadDetail, error) {
		return nil, &crm.APIError{StatusCode: http.StatusNotFound, Detail: "Not found."}
	}}
	srv := newTestServer(t, fake, "")

	resp := doRequest(t, srv, http.MethodGet, "/ui/leads/999/", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Expected problem+json, got %s", ct)
	}
	resp.Body.Close()
}

func TestEditAnswer_LocalOnlyAndDirty(t *testing.T) {
	backendWrites := false
	fake := &fakeCRM{
		getLeadDetail: func(id int) (*crm.LeadDetail, error) {
			return &crm.LeadDetail{
				Lead: crm.Lead{ID: id},
				FormResponses: []crm.FormResponse{
					{ID: 21, LeadID: id, ParsedAnswers: []crm.ParsedAnswer{
						{QuestionID: "q1", Label: "Name", Value: "Anna"},
					}},
				},
			}, nil
		},
		updateFormResponse: func(id int, answers []crm.ParsedAnswer) (*crm.FormResponse, error) {
			backendWrites = true
			return &crm.FormResponse{ID: id, ParsedAnswers: answers}, nil
		},
	}
	srv := newTestServer(t, fake, "")

	resp := doRequest(t, srv, http.MethodPut, "/ui/leads/42/responses/21/answers/q1", "",
		map[string]string{"value": "Anya"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var view struct {
		Responses []struct {
			ID            int                `json:"id"`
			Dirty         bool               `json:"dirty"`
			ParsedAnswers []crm.ParsedAnswer `json:"parsed_answers"`
		} `json:"responses"`
	}
	decodeBody(t, resp, &view)
	if !view.Responses[0].Dirty {
		t.Error("Expected the edited response to be dirty")
	}
	if view.Responses[0].ParsedAnswers[0].Value != "Anya" {
		t.Error("Expected the edited value in the view")
	}
	if backendWrites {
		t.Error("An answer edit must not hit the backend")
	}
}

func TestSaveResponse_CleanConflict(t *testing.T) {
	fake := &fakeCRM{
		getLeadDetail: func(id int) (*crm.LeadDetail, error) {
			return &crm.LeadDetail{
				Lead:          crm.Lead{ID: id},
				FormResponses: []crm.FormResponse{{ID: 21, LeadID: id}},
			}, nil
		},
	}
	srv := newTestServer(t, fake, "")

	resp := doRequest(t, srv, http.MethodPost, "/ui/leads/42/responses/21/save", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409 for a clean response, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSaveForm_CreateThenReload(t *testing.T) {
	var created atomic.Int32
	detailCalls := 0
	fake := &fakeCRM{
		getLeadDetail: func(id int) (*crm.LeadDetail, error) {
			detailCalls++
			detail := &crm.LeadDetail{Lead: crm.Lead{ID: id}}
			if created.Load() > 0 {
				detail.LeadForms = []crm.LeadForm{{ID: 31, LeadID: id, FormType: crm.FormPoland, RawText: "name: Anna"}}
			}
			return detail, nil
		},
		createLeadForm: func(form crm.LeadForm) (*crm.LeadForm, error) {
			created.Add(1)
			form.ID = 31
			return &form, nil
		},
	}
	srv := newTestServer(t, fake, "")

	resp := doRequest(t, srv, http.MethodPut, "/ui/leads/42/form", "", map[string]string{
		"form_type": "poland",
		"raw_text":  "name: Anna",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var view struct {
		EditForm crm.LeadForm `json:"edit_form"`
	}
	decodeBody(t, resp, &view)
	if created.Load() != 1 {
		t.Fatalf("Expected one create, got %d", created.Load())
	}
	if view.EditForm.ID != 31 {
		t.Errorf("Expected assigned form id after reload, got %d", view.EditForm.ID)
	}
	// Load before save, reload after: two detail fetches.
	if detailCalls != 2 {
		t.Errorf("Expected load+reload, got %d detail fetches", detailCalls)
	}
}

func TestSaveForm_RejectsUnknownType(t *testing.T) {
	srv := newTestServer(t, &fakeCRM{}, "")

	resp := doRequest(t, srv, http.MethodPut, "/ui/leads/42/form", "", map[string]string{
		"form_type": "mars",
		"raw_text":  "x",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDeleteForm_PlaceholderConflict(t *testing.T) {
	srv := newTestServer(t, &fakeCRM{}, "")

	// The default fixture lead has no manual form, so the editor holds a
	// placeholder.
	resp := doRequest(t, srv, http.MethodDelete, "/ui/leads/42/form", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409 for deleting a placeholder, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestStartVisa_RequiresLead(t *testing.T) {
	srv := newTestServer(t, &fakeCRM{}, "")

	resp := doRequest(t, srv, http.MethodPost, "/ui/visas/poland-work/start", "",
		map[string]int{"lead_id": 0})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestStartVisa_RelaysResult(t *testing.T) {
	fake := &fakeCRM{startVisa: func(code string, leadID int) (*crm.VisaStartResult, error) {
		if code != "poland-work" || leadID != 42 {
			return nil, fmt.Errorf("unexpected args %s/%d", code, leadID)
		}
		return &crm.VisaStartResult{Status: "started", Message: "Visa process started for lead 42"}, nil
	}}
	srv := newTestServer(t, fake, "")

	resp := doRequest(t, srv, http.MethodPost, "/ui/visas/poland-work/start", "",
		map[string]int{"lead_id": 42})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var result crm.VisaStartResult
	decodeBody(t, resp, &result)
	if result.Status != "started" {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestPutSettings_RejectsBadHour(t *testing.T) {
	srv := newTestServer(t, &fakeCRM{}, "")

	resp := doRequest(t, srv, http.MethodPut, "/ui/settings/", "",
		map[string]any{"send_window_start_hour": 25})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPutSettings_MergeAndEcho(t *testing.T) {
	fake := &fakeCRM{
		getBotSettings: func() (*crm.BotSettings, error) {
			return &crm.BotSettings{ID: 1, BotName: "Visa Bot", FirstReminderDays: 3}, nil
		},
		putBotSettings: func(s crm.BotSettings) (*crm.BotSettings, error) {
			return &s, nil
		},
	}
	srv := newTestServer(t, fake, "")

	resp := doRequest(t, srv, http.MethodPut, "/ui/settings/", "",
		map[string]any{"first_reminder_days": 5})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var view struct {
		Settings crm.BotSettings `json:"settings"`
	}
	decodeBody(t, resp, &view)
	if view.Settings.FirstReminderDays != 5 || view.Settings.BotName != "Visa Bot" {
		t.Errorf("Expected merged echo, got %+v", view.Settings)
	}
}

func TestPutExtraConfig_InvalidJSONIndicator(t *testing.T) {
	srv := newTestServer(t, &fakeCRM{}, "")

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/ui/settings/extra-config",
		bytes.NewReader([]byte(`{"broken": `)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var view struct {
		InvalidJSON bool `json:"invalid_json"`
	}
	decodeBody(t, resp, &view)
	if !view.InvalidJSON {
		t.Error("Expected the invalid-JSON indicator")
	}
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, &fakeCRM{}, "secret-key")

	// No token on a protected route.
	resp := doRequest(t, srv, http.MethodGet, "/ui/statuses", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The liveness probe stays public.
	resp = doRequest(t, srv, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected public healthz, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The right token passes.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/ui/statuses", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if authed.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with token, got %d", authed.StatusCode)
	}
	authed.Body.Close()
}

func TestDeleteLead_NoContent(t *testing.T) {
	deleted := 0
	fake := &fakeCRM{deleteLead: func(id int) error {
		deleted = id
		return nil
	}}
	srv := newTestServer(t, fake, "")

	resp := doRequest(t, srv, http.MethodDelete, "/ui/leads/7/", "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	if deleted != 7 {
		t.Errorf("Expected delete of lead 7, got %d", deleted)
	}
}

func TestPathID_Invalid(t *testing.T) {
	srv := newTestServer(t, &fakeCRM{}, "")

	resp := doRequest(t, srv, http.MethodGet, "/ui/leads/abc/", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
