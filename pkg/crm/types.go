package crm

import (
	"encoding/json"
	"strings"
)

// FormType identifies the questionnaire template a manual form was
// transcribed from.
type FormType string

const (
	FormPoland   FormType = "poland"
	FormSchengen FormType = "schengen"
	FormUSA      FormType = "usa"
	FormGermany  FormType = "germany"
	FormFrance   FormType = "france"
	FormItaly    FormType = "italy"
	FormSpain    FormType = "spain"
	FormGeneric  FormType = "generic"
)

// FieldSource identifies where a questionnaire summary field was derived from.
type FieldSource string

const (
	SourceGForm  FieldSource = "gform"
	SourceManual FieldSource = "manual"
)

// Lead is a prospective visa applicant tracked in the CRM.
// Every field is owned and computed by the backend; this layer displays
// them and requests status changes, nothing more. Timestamp fields are
// opaque backend-formatted strings.
type Lead struct {
	ID                      int    `json:"id"`
	FromAddress             string `json:"from_address"`
	Subject                 string `json:"subject"`
	VisaCountry             string `json:"visa_country"`
	Status                  string `json:"status"`
	StatusLabel             string `json:"status_label"`
	QuestionnaireStatus     string `json:"questionnaire_status"`
	QuestionnaireFormID     string `json:"questionnaire_form_id"`
	QuestionnaireResponseID string `json:"questionnaire_response_id"`
	LastMessageID           string `json:"last_message_id"`
	LastContacted           string `json:"last_contacted"`
	NextReminderAt          string `json:"next_reminder_at"`
	RemindersSent           int    `json:"reminders_sent"`
	FormAckSent             int    `json:"form_ack_sent"`
	FormsCount              int    `json:"forms_count"`
	FormResponsesCount      int    `json:"form_responses_count"`
}

// LeadForm is a staff-entered free-text transcription of an applicant's
// intake answers. ID zero marks a form that has not been created on the
// backend yet; saving such a form issues a create instead of an update.
type LeadForm struct {
	ID        int      `json:"id"`
	LeadID    int      `json:"lead_id"`
	FormType  FormType `json:"form_type"`
	RawText   string   `json:"raw_text"`
	CreatedAt string   `json:"created_at"`
}

// IsNew reports whether the form has not been persisted yet.
func (f LeadForm) IsNew() bool {
	return f.ID == 0
}

// EmptyLeadForm returns the placeholder edit target used when a lead has
// no manual form.
func EmptyLeadForm(leadID int) LeadForm {
	return LeadForm{LeadID: leadID}
}

// ParsedAnswer is one parsed question/answer pair inside a form response.
// Question identity is unique within its parent response; slice order is
// the display order.
type ParsedAnswer struct {
	QuestionID string `json:"question_id"`
	Label      string `json:"label"`
	Value      string `json:"value"`
}

// FormAttachment describes one uploaded file referenced by a form response.
type FormAttachment struct {
	QuestionID string `json:"question_id"`
	Label      string `json:"label"`
	FileID     string `json:"file_id"`
	FileName   string `json:"file_name"`
	DriveURL   string `json:"drive_url"`
}

// FormResponse is one externally-submitted form submission with per-question
// parsed answers and optional file attachments.
type FormResponse struct {
	ID              int              `json:"id"`
	LeadID          int              `json:"lead_id"`
	VisaCountry     string           `json:"visa_country"`
	FormID          string           `json:"form_id"`
	ResponseID      string           `json:"response_id"`
	RespondentEmail string           `json:"respondent_email"`
	CreatedAt       string           `json:"created_at"`
	ParsedAnswers   []ParsedAnswer   `json:"parsed_answers"`
	Attachments     []FormAttachment `json:"attachments"`
}

// MarshalJSON ensures nil slices in FormResponse marshal as [] not null.
func (r FormResponse) MarshalJSON() ([]byte, error) {
	if r.ParsedAnswers == nil {
		r.ParsedAnswers = []ParsedAnswer{}
	}
	if r.Attachments == nil {
		r.Attachments = []FormAttachment{}
	}
	type Alias FormResponse
	return json.Marshal(Alias(r))
}

// QuestionnaireField is one entry of the backend-derived questionnaire
// summary. Read-only: edits go through LeadForm or FormResponse and a
// reload re-derives the summary.
type QuestionnaireField struct {
	Code   string      `json:"code"`
	Label  string      `json:"label"`
	Value  string      `json:"value"`
	Source FieldSource `json:"source"`
}

// QuestionnaireSummary is the derived merge of manual and external-form
// answers for one lead.
type QuestionnaireSummary struct {
	LeadID int                  `json:"lead_id"`
	Fields []QuestionnaireField `json:"fields"`
}

// MarshalJSON ensures a nil Fields slice marshals as [] not null.
func (q QuestionnaireSummary) MarshalJSON() ([]byte, error) {
	if q.Fields == nil {
		q.Fields = []QuestionnaireField{}
	}
	type Alias QuestionnaireSummary
	return json.Marshal(Alias(q))
}

// AuditLog is one append-only, backend-owned event record for a lead.
type AuditLog struct {
	ID        int    `json:"id"`
	LeadID    int    `json:"lead_id"`
	Event     string `json:"event"`
	Details   string `json:"details"`
	CreatedAt string `json:"created_at"`
}

// LeadStatus is one entry of the backend-defined status lookup table.
type LeadStatus struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// LeadDetail is the composite returned by the lead detail endpoint.
type LeadDetail struct {
	Lead          Lead           `json:"lead"`
	LeadForms     []LeadForm     `json:"lead_forms"`
	FormResponses []FormResponse `json:"form_responses"`
	AuditLogs     []AuditLog     `json:"audit_logs"`
}

// MarshalJSON ensures nil slices in LeadDetail marshal as [] not null.
func (d LeadDetail) MarshalJSON() ([]byte, error) {
	if d.LeadForms == nil {
		d.LeadForms = []LeadForm{}
	}
	if d.FormResponses == nil {
		d.FormResponses = []FormResponse{}
	}
	if d.AuditLogs == nil {
		d.AuditLogs = []AuditLog{}
	}
	type Alias LeadDetail
	return json.Marshal(Alias(d))
}

// LeadFilters holds the lead list filter state. Empty fields are omitted
// from the backend query.
type LeadFilters struct {
	Status      string `json:"status,omitempty"`
	VisaCountry string `json:"visa_country,omitempty"`
	Search      string `json:"search,omitempty"`
}

// BotSettings is the single global automation configuration record.
// Fetched and replaced wholesale; the backend's echo is canonical.
type BotSettings struct {
	ID                   int            `json:"id"`
	BotName              string         `json:"bot_name"`
	SenderEmail          string         `json:"sender_email"`
	FirstReminderDays    int            `json:"first_reminder_days"`
	SecondReminderDays   int            `json:"second_reminder_days"`
	PollIntervalSeconds  int            `json:"poll_interval_seconds"`
	SendWindowStartHour  int            `json:"send_window_start_hour"`
	SendWindowEndHour    int            `json:"send_window_end_hour"`
	AutoCreateLeads      bool           `json:"auto_create_leads"`
	AutoChangeStatus     bool           `json:"auto_change_status"`
	AutoRemindersEnabled bool           `json:"auto_reminders_enabled"`
	FormPolandURL        string         `json:"form_poland_url"`
	FormSchengenURL      string         `json:"form_schengen_url"`
	FormUSAURL           string         `json:"form_usa_url"`
	FormGenericURL       string         `json:"form_generic_url"`
	ExtraConfig          map[string]any `json:"extra_config"`
}

// MarshalJSON ensures a nil ExtraConfig map marshals as {} not null.
func (s BotSettings) MarshalJSON() ([]byte, error) {
	if s.ExtraConfig == nil {
		s.ExtraConfig = map[string]any{}
	}
	type Alias BotSettings
	return json.Marshal(Alias(s))
}

// Visa is one read-mostly reference entry describing a visa product.
type Visa struct {
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Description    string   `json:"description"`
	Requirements   []string `json:"requirements"`
	ProcessingTime string   `json:"processing_time"`
}

// MarshalJSON ensures a nil Requirements slice marshals as [] not null.
func (v Visa) MarshalJSON() ([]byte, error) {
	if v.Requirements == nil {
		v.Requirements = []string{}
	}
	type Alias Visa
	return json.Marshal(Alias(v))
}

// VisaStartResult is the backend acknowledgement for a start-process action.
// The resulting status and audit changes are entirely server-side.
type VisaStartResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ValidationResult is the backend's opaque outcome of re-checking one
// form response.
type ValidationResult struct {
	Valid         bool     `json:"valid"`
	MissingFields []string `json:"missing_fields,omitempty"`
	LeadStatus    string   `json:"lead_status,omitempty"`
}

// NormalizeFormType lowercases and trims a form type string. It does not
// reject unknown values; the backend owns the authoritative set.
func NormalizeFormType(s string) FormType {
	return FormType(strings.ToLower(strings.TrimSpace(s)))
}
