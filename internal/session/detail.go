package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/itplus/visadesk/internal/types"
	"github.com/itplus/visadesk/pkg/crm"
)

var (
	// ErrNoLeadLoaded indicates a detail operation before a successful Load.
	ErrNoLeadLoaded = errors.New("no lead loaded")

	// ErrResponseNotFound indicates an edit or save targeting an unknown
	// form response id.
	ErrResponseNotFound = errors.New("form response not found in session")

	// ErrQuestionNotFound indicates an edit targeting a question id absent
	// from the response.
	ErrQuestionNotFound = errors.New("question not found in response")

	// ErrResponseClean indicates a save of a response with no unsaved
	// edits; the save affordance is disabled in this state.
	ErrResponseClean = errors.New("form response has no unsaved edits")

	// ErrFormNotPersisted indicates a delete of the placeholder form.
	ErrFormNotPersisted = errors.New("manual form has not been created yet")
)

// DetailSession reconciles the three independently-sourced views of one
// applicant: the manually-entered questionnaire, the structured list of
// external form responses, and the backend-derived summary that unions
// both. It tracks unsaved edits per response, independent of the others.
type DetailSession struct {
	backend Backend

	mu        sync.RWMutex
	loaded    bool
	lead      crm.Lead
	editForm  crm.LeadForm
	responses []types.ResponseEdit
	auditLogs []crm.AuditLog
	summary   crm.QuestionnaireSummary
	summaryOK bool
}

// NewDetailSession creates an empty detail session.
func NewDetailSession(backend Backend) *DetailSession {
	return &DetailSession{backend: backend}
}

// Load fetches the full detail screen state for one lead: the composite
// detail call, then the derived questionnaire summary.
//
// The editor always gets a non-nil target: the first returned manual form
// when any exist, otherwise a synthesized placeholder with id zero. Each
// response is projected to an editable record with a clear dirty flag.
//
// A summary fetch failure does not abort the screen; it degrades to an
// empty summary with the availability flag down.
func (d *DetailSession) Load(ctx context.Context, leadID int) error {
	detail, err := d.backend.GetLeadDetail(ctx, leadID)
	if err != nil {
		return err
	}

	editForm := crm.EmptyLeadForm(detail.Lead.ID)
	if len(detail.LeadForms) > 0 {
		editForm = detail.LeadForms[0]
	}

	responses := make([]types.ResponseEdit, len(detail.FormResponses))
	for i, fr := range detail.FormResponses {
		responses[i] = types.ResponseEdit{FormResponse: fr}
	}

	summary := crm.QuestionnaireSummary{LeadID: detail.Lead.ID}
	summaryOK := false
	if got, err := d.backend.GetQuestionnaire(ctx, detail.Lead.ID); err != nil {
		slog.Warn("questionnaire summary unavailable", "lead_id", detail.Lead.ID, "error", err)
	} else {
		summary = *got
		summaryOK = true
	}

	d.mu.Lock()
	d.loaded = true
	d.lead = detail.Lead
	d.editForm = editForm
	d.responses = responses
	d.auditLogs = detail.AuditLogs
	d.summary = summary
	d.summaryOK = summaryOK
	d.mu.Unlock()
	return nil
}

// Reload re-fetches the current lead's screen state so derived views stay
// consistent after a mutation.
func (d *DetailSession) Reload(ctx context.Context) error {
	d.mu.RLock()
	loaded := d.loaded
	leadID := d.lead.ID
	d.mu.RUnlock()

	if !loaded {
		return ErrNoLeadLoaded
	}
	return d.Load(ctx, leadID)
}

// SetFormType updates the edit target's form type locally.
func (d *DetailSession) SetFormType(t crm.FormType) {
	d.mu.Lock()
	d.editForm.FormType = t
	d.mu.Unlock()
}

// SetRawText updates the edit target's transcription text locally.
func (d *DetailSession) SetRawText(text string) {
	d.mu.Lock()
	d.editForm.RawText = text
	d.mu.Unlock()
}

// SaveForm persists the manual form: a create when the target has never
// been saved, a partial update otherwise. On create the server-returned
// record, including its assigned id, becomes the new edit target. Callers
// follow a successful save with Reload.
func (d *DetailSession) SaveForm(ctx context.Context) error {
	d.mu.RLock()
	loaded := d.loaded
	form := d.editForm
	d.mu.RUnlock()

	if !loaded {
		return ErrNoLeadLoaded
	}

	var saved *crm.LeadForm
	var err error
	if form.IsNew() {
		saved, err = d.backend.CreateLeadForm(ctx, form)
	} else {
		saved, err = d.backend.UpdateLeadForm(ctx, form.ID, form.FormType, form.RawText)
	}
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.editForm = *saved
	d.mu.Unlock()
	return nil
}

// DeleteForm deletes the persisted manual form and resets the edit target
// to a fresh placeholder for the same lead, so no dangling reference to
// the deleted id survives. Deleting the placeholder itself is an error.
func (d *DetailSession) DeleteForm(ctx context.Context) error {
	d.mu.RLock()
	loaded := d.loaded
	form := d.editForm
	leadID := d.lead.ID
	d.mu.RUnlock()

	if !loaded {
		return ErrNoLeadLoaded
	}
	if form.IsNew() {
		return ErrFormNotPersisted
	}

	if err := d.backend.DeleteLeadForm(ctx, form.ID); err != nil {
		return err
	}

	d.mu.Lock()
	d.editForm = crm.EmptyLeadForm(leadID)
	d.mu.Unlock()
	return nil
}

// EditAnswer replaces the value of one parsed answer, located by response
// id and question id, and marks only that response dirty. Answers that do
// not match keep their order and values; other responses are untouched.
func (d *DetailSession) EditAnswer(responseID int, questionID, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.responses {
		if d.responses[i].ID != responseID {
			continue
		}
		for j := range d.responses[i].ParsedAnswers {
			if d.responses[i].ParsedAnswers[j].QuestionID != questionID {
				continue
			}
			d.responses[i].ParsedAnswers[j].Value = value
			d.responses[i].Dirty = true
			return nil
		}
		return ErrQuestionNotFound
	}
	return ErrResponseNotFound
}

// Dirty reports whether the given response has unsaved edits. The save
// affordance for a response is disabled whenever this is false.
func (d *DetailSession) Dirty(responseID int) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for i := range d.responses {
		if d.responses[i].ID == responseID {
			return d.responses[i].Dirty
		}
	}
	return false
}

// SaveResponse sends the response's current parsed answers to the backend,
// adopts the returned canonical record, and clears exactly that response's
// dirty flag. Other responses' flags are unaffected. Callers follow a
// successful save with Reload so the derived questionnaire catches up.
func (d *DetailSession) SaveResponse(ctx context.Context, responseID int) error {
	d.mu.RLock()
	var answers []crm.ParsedAnswer
	found := false
	dirty := false
	for i := range d.responses {
		if d.responses[i].ID == responseID {
			found = true
			dirty = d.responses[i].Dirty
			answers = append([]crm.ParsedAnswer(nil), d.responses[i].ParsedAnswers...)
			break
		}
	}
	d.mu.RUnlock()

	if !found {
		return ErrResponseNotFound
	}
	if !dirty {
		return ErrResponseClean
	}

	saved, err := d.backend.UpdateFormResponse(ctx, responseID, answers)
	if err != nil {
		return err
	}

	d.mu.Lock()
	for i := range d.responses {
		if d.responses[i].ID == responseID {
			d.responses[i] = types.ResponseEdit{FormResponse: *saved}
			break
		}
	}
	d.mu.Unlock()
	return nil
}

// View returns a copy of the composed detail screen state.
func (d *DetailSession) View() types.DetailView {
	d.mu.RLock()
	defer d.mu.RUnlock()

	responses := make([]types.ResponseEdit, len(d.responses))
	copy(responses, d.responses)
	logs := make([]crm.AuditLog, len(d.auditLogs))
	copy(logs, d.auditLogs)

	return types.DetailView{
		Lead:             d.lead,
		EditForm:         d.editForm,
		Responses:        responses,
		AuditLogs:        logs,
		Summary:          d.summary,
		SummaryAvailable: d.summaryOK,
	}
}

// Loaded reports whether a lead has been loaded into the session.
func (d *DetailSession) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}
