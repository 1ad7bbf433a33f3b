// Package types holds the console-side view-model contract shared by the
// session containers and the gateway. Wire entities live in pkg/crm; the
// types here exist only for the lifetime of an admin session.
package types

import (
	"encoding/json"

	"github.com/itplus/visadesk/pkg/crm"
)

// FormTypeOptions is the fixed display order for the manual-form type
// selector. The order carries no semantics beyond presentation.
var FormTypeOptions = []crm.FormType{
	crm.FormPoland,
	crm.FormSchengen,
	crm.FormUSA,
	crm.FormGermany,
	crm.FormFrance,
	crm.FormItaly,
	crm.FormSpain,
	crm.FormGeneric,
}

// LeadFilterPatch is a partial update to the lead list filter state; nil
// fields leave the current value untouched.
type LeadFilterPatch struct {
	Status      *string `json:"status,omitempty"`
	VisaCountry *string `json:"visa_country,omitempty"`
	Search      *string `json:"search,omitempty"`
}

// MergeFilters applies the patch on top of f and returns the result.
func MergeFilters(f crm.LeadFilters, p LeadFilterPatch) crm.LeadFilters {
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.VisaCountry != nil {
		f.VisaCountry = *p.VisaCountry
	}
	if p.Search != nil {
		f.Search = *p.Search
	}
	return f
}

// ResponseEdit is one form response as held by the detail session: the
// backend record plus the transient dirty flag. Dirty is true once any of
// the response's parsed answers has been edited locally and not yet
// persisted; it is never sent to the backend.
type ResponseEdit struct {
	crm.FormResponse
	Dirty bool `json:"dirty"`
}

// MarshalJSON splices the dirty flag into the wire record. Without this
// the embedded FormResponse marshaler would be promoted and drop it.
func (e ResponseEdit) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.FormResponse)
	if err != nil {
		return nil, err
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	dirty, err := json.Marshal(e.Dirty)
	if err != nil {
		return nil, err
	}
	m["dirty"] = dirty
	return json.Marshal(m)
}

// DetailView is the composed lead-detail screen state handed to the
// presentation layer: the lead, the single manual-form edit target
// (placeholder when none exists), the editable responses, the audit trail,
// and the derived summary with its availability flag. A failed summary
// fetch degrades to an empty summary with SummaryAvailable false; it never
// blocks the rest of the screen.
type DetailView struct {
	Lead             crm.Lead                 `json:"lead"`
	EditForm         crm.LeadForm             `json:"edit_form"`
	Responses        []ResponseEdit           `json:"responses"`
	AuditLogs        []crm.AuditLog           `json:"audit_logs"`
	Summary          crm.QuestionnaireSummary `json:"summary"`
	SummaryAvailable bool                     `json:"summary_available"`
}

// MarshalJSON ensures nil slices in DetailView marshal as [] not null.
func (v DetailView) MarshalJSON() ([]byte, error) {
	if v.Responses == nil {
		v.Responses = []ResponseEdit{}
	}
	if v.AuditLogs == nil {
		v.AuditLogs = []crm.AuditLog{}
	}
	type Alias DetailView
	return json.Marshal(Alias(v))
}

// LeadListView is the lead list screen state: the rows, the filter state
// they were fetched under, and the loading flag.
type LeadListView struct {
	Leads   []crm.Lead      `json:"leads"`
	Filters crm.LeadFilters `json:"filters"`
	Loading bool            `json:"loading"`
}

// MarshalJSON ensures a nil Leads slice marshals as [] not null.
func (v LeadListView) MarshalJSON() ([]byte, error) {
	if v.Leads == nil {
		v.Leads = []crm.Lead{}
	}
	type Alias LeadListView
	return json.Marshal(Alias(v))
}

// SettingsView is the settings screen state: the last-known canonical
// record plus the invalid-JSON indicator for the free-form editor.
type SettingsView struct {
	Settings    crm.BotSettings `json:"settings"`
	InvalidJSON bool            `json:"invalid_json"`
}
