// Package crm is a thin typed client for the visa CRM backend REST API.
//
// One request per call, JSON in and out, no implicit retries, no caching.
// Errors surface as *APIError for backend rejections and wrapped transport
// errors otherwise; translating them for users is the caller's job.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds the client configuration.
type Config struct {
	BaseURL string        // Backend base URL, e.g. "http://localhost:8000/api"
	APIKey  string        // Optional bearer token
	Timeout time.Duration // Per-request timeout (default: 30 seconds)
}

// Client issues typed requests against the CRM backend.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a new Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("BaseURL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// --- Leads ---

// ListLeads fetches leads matching the given filters. Empty filter fields
// are not sent.
func (c *Client) ListLeads(ctx context.Context, f LeadFilters) ([]Lead, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.VisaCountry != "" {
		q.Set("visa_country", f.VisaCountry)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}

	path := "/leads/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var leads []Lead
	if err := c.do(ctx, http.MethodGet, path, nil, &leads); err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}

// GetLeadDetail fetches a lead with its forms, form responses, and audit
// logs in one call.
func (c *Client) GetLeadDetail(ctx context.Context, id int) (*LeadDetail, error) {
	var detail LeadDetail
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/leads/%d/detail/", id), nil, &detail); err != nil {
		return nil, fmt.Errorf("get lead detail: %w", err)
	}
	return &detail, nil
}

// GetQuestionnaire fetches the backend-derived questionnaire summary for a
// lead. The derivation rule is server-side and opaque to this layer.
func (c *Client) GetQuestionnaire(ctx context.Context, leadID int) (*QuestionnaireSummary, error) {
	var summary QuestionnaireSummary
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/leads/%d/questionnaire/", leadID), nil, &summary); err != nil {
		return nil, fmt.Errorf("get questionnaire: %w", err)
	}
	return &summary, nil
}

// ListStatuses fetches the full status lookup table.
func (c *Client) ListStatuses(ctx context.Context) ([]LeadStatus, error) {
	var statuses []LeadStatus
	if err := c.do(ctx, http.MethodGet, "/statuses/", nil, &statuses); err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	return statuses, nil
}

// CreateLead creates a new lead and returns the backend's record.
func (c *Client) CreateLead(ctx context.Context, lead Lead) (*Lead, error) {
	var created Lead
	if err := c.do(ctx, http.MethodPost, "/leads/", lead, &created); err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	return &created, nil
}

// UpdateLead partially updates one lead. Patch keys use wire field names,
// e.g. {"status": "closed"}.
func (c *Client) UpdateLead(ctx context.Context, id int, patch map[string]any) (*Lead, error) {
	var updated Lead
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/leads/%d/", id), patch, &updated); err != nil {
		return nil, fmt.Errorf("update lead: %w", err)
	}
	return &updated, nil
}

// DeleteLead deletes one lead.
func (c *Client) DeleteLead(ctx context.Context, id int) error {
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/leads/%d/", id), nil, nil); err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	return nil
}

// --- Lead forms ---

// ListLeadForms fetches the manual forms for one lead.
func (c *Client) ListLeadForms(ctx context.Context, leadID int) ([]LeadForm, error) {
	var forms []LeadForm
	path := fmt.Sprintf("/lead-forms/?lead_id=%d", leadID)
	if err := c.do(ctx, http.MethodGet, path, nil, &forms); err != nil {
		return nil, fmt.Errorf("list lead forms: %w", err)
	}
	return forms, nil
}

// CreateLeadForm creates a manual form and returns the backend's record,
// including its newly assigned id.
func (c *Client) CreateLeadForm(ctx context.Context, form LeadForm) (*LeadForm, error) {
	var created LeadForm
	if err := c.do(ctx, http.MethodPost, "/lead-forms/", form, &created); err != nil {
		return nil, fmt.Errorf("create lead form: %w", err)
	}
	return &created, nil
}

// UpdateLeadForm partially updates a manual form's type and text.
func (c *Client) UpdateLeadForm(ctx context.Context, id int, formType FormType, rawText string) (*LeadForm, error) {
	patch := map[string]any{
		"form_type": formType,
		"raw_text":  rawText,
	}
	var updated LeadForm
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/lead-forms/%d/", id), patch, &updated); err != nil {
		return nil, fmt.Errorf("update lead form: %w", err)
	}
	return &updated, nil
}

// DeleteLeadForm deletes a manual form.
func (c *Client) DeleteLeadForm(ctx context.Context, id int) error {
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/lead-forms/%d/", id), nil, nil); err != nil {
		return fmt.Errorf("delete lead form: %w", err)
	}
	return nil
}

// --- Form responses ---

// ListFormResponses fetches the external form responses for one lead.
func (c *Client) ListFormResponses(ctx context.Context, leadID int) ([]FormResponse, error) {
	var responses []FormResponse
	path := fmt.Sprintf("/form-responses/?lead_id=%d", leadID)
	if err := c.do(ctx, http.MethodGet, path, nil, &responses); err != nil {
		return nil, fmt.Errorf("list form responses: %w", err)
	}
	return responses, nil
}

// UpdateFormResponse sends the full parsed_answers sequence for one
// response and returns the backend's canonical record.
func (c *Client) UpdateFormResponse(ctx context.Context, id int, answers []ParsedAnswer) (*FormResponse, error) {
	body := map[string]any{"parsed_answers": answers}
	var updated FormResponse
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/form-responses/%d/", id), body, &updated); err != nil {
		return nil, fmt.Errorf("update form response: %w", err)
	}
	return &updated, nil
}

// ValidateFormResponse asks the backend to re-check one response. Side
// effects (lead status, audit log) are entirely server-side.
func (c *Client) ValidateFormResponse(ctx context.Context, id int) (*ValidationResult, error) {
	var result ValidationResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/form-responses/%d/validate/", id), nil, &result); err != nil {
		return nil, fmt.Errorf("validate form response: %w", err)
	}
	return &result, nil
}

// --- Audit log ---

// ListAuditLogs fetches the audit trail for one lead.
func (c *Client) ListAuditLogs(ctx context.Context, leadID int) ([]AuditLog, error) {
	var logs []AuditLog
	path := fmt.Sprintf("/audit-log/?lead_id=%d", leadID)
	if err := c.do(ctx, http.MethodGet, path, nil, &logs); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}

// --- Visas ---

// ListVisas fetches the visa reference catalogue.
func (c *Client) ListVisas(ctx context.Context) ([]Visa, error) {
	var visas []Visa
	if err := c.do(ctx, http.MethodGet, "/visas/", nil, &visas); err != nil {
		return nil, fmt.Errorf("list visas: %w", err)
	}
	return visas, nil
}

// GetVisa fetches one visa reference entry by code.
func (c *Client) GetVisa(ctx context.Context, code string) (*Visa, error) {
	var visa Visa
	if err := c.do(ctx, http.MethodGet, "/visas/"+url.PathEscape(code)+"/", nil, &visa); err != nil {
		return nil, fmt.Errorf("get visa: %w", err)
	}
	return &visa, nil
}

// StartVisa starts the visa process for a lead. The lead id is required by
// the console flow; the backend records the action in the audit log.
func (c *Client) StartVisa(ctx context.Context, code string, leadID int) (*VisaStartResult, error) {
	body := map[string]any{"lead_id": leadID}
	var result VisaStartResult
	if err := c.do(ctx, http.MethodPost, "/visas/"+url.PathEscape(code)+"/start/", body, &result); err != nil {
		return nil, fmt.Errorf("start visa: %w", err)
	}
	return &result, nil
}

// --- Bot settings ---

// GetBotSettings fetches the singleton settings record.
func (c *Client) GetBotSettings(ctx context.Context) (*BotSettings, error) {
	var settings BotSettings
	if err := c.do(ctx, http.MethodGet, "/bot-settings/", nil, &settings); err != nil {
		return nil, fmt.Errorf("get bot settings: %w", err)
	}
	return &settings, nil
}

// PutBotSettings replaces the singleton settings record wholesale and
// returns the backend's canonical version.
func (c *Client) PutBotSettings(ctx context.Context, settings BotSettings) (*BotSettings, error) {
	var saved BotSettings
	if err := c.do(ctx, http.MethodPut, "/bot-settings/", settings, &saved); err != nil {
		return nil, fmt.Errorf("put bot settings: %w", err)
	}
	return &saved, nil
}

// Ping checks connectivity to the backend.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/statuses/", nil, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// do sends one request and decodes the JSON response into out (when out is
// non-nil). Non-2xx responses become *APIError with the body's detail.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Detail:     extractDetail(resp.Body),
		}
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// extractDetail pulls a human-readable message out of an error body.
// The backend uses {"detail": "..."} for rejections; anything else is
// returned as raw text, truncated.
func extractDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return strings.TrimSpace(string(data))
}
