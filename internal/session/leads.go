package session

import (
	"context"
	"sync"

	"github.com/itplus/visadesk/internal/types"
	"github.com/itplus/visadesk/pkg/crm"
)

// LeadsStore holds the last-fetched snapshot of the lead list, the status
// lookup table, and the current filter state.
//
// Loads replace state wholesale; there is no stale-response guarding, so a
// slow earlier request completing after a newer one can overwrite newer
// data. Accepted: there is exactly one logical consumer per session.
type LeadsStore struct {
	backend Backend

	mu       sync.RWMutex
	statuses []crm.LeadStatus
	filters  crm.LeadFilters
	leads    []crm.Lead
	loading  bool
}

// NewLeadsStore creates an empty leads store.
func NewLeadsStore(backend Backend) *LeadsStore {
	return &LeadsStore{backend: backend}
}

// LoadStatuses fetches the status lookup table, replacing the prior table
// unconditionally. Idempotent; no merge.
func (s *LeadsStore) LoadStatuses(ctx context.Context) error {
	statuses, err := s.backend.ListStatuses(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.statuses = statuses
	s.mu.Unlock()
	return nil
}

// Statuses returns a copy of the status lookup table.
func (s *LeadsStore) Statuses() []crm.LeadStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]crm.LeadStatus, len(s.statuses))
	copy(out, s.statuses)
	return out
}

// SetFilters shallow-merges the patch into the current filter state. It
// does not trigger a fetch; callers re-fetch on change.
func (s *LeadsStore) SetFilters(p types.LeadFilterPatch) {
	s.mu.Lock()
	s.filters = types.MergeFilters(s.filters, p)
	s.mu.Unlock()
}

// Filters returns the current filter state.
func (s *LeadsStore) Filters() crm.LeadFilters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// LoadLeads fetches leads using the current filter state. The loading flag
// is true while the request is in flight and resets on either outcome; on
// success the list is replaced wholesale.
func (s *LeadsStore) LoadLeads(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	filters := s.filters
	s.mu.Unlock()

	leads, err := s.backend.ListLeads(ctx, filters)

	s.mu.Lock()
	s.loading = false
	if err == nil {
		s.leads = leads
	}
	s.mu.Unlock()

	return err
}

// Leads returns a copy of the last-fetched lead list.
func (s *LeadsStore) Leads() []crm.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]crm.Lead, len(s.leads))
	copy(out, s.leads)
	return out
}

// Loading reports whether a lead list request is in flight.
func (s *LeadsStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// View returns the lead list screen state.
func (s *LeadsStore) View() types.LeadListView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	leads := make([]crm.Lead, len(s.leads))
	copy(leads, s.leads)

	return types.LeadListView{
		Leads:   leads,
		Filters: s.filters,
		Loading: s.loading,
	}
}
