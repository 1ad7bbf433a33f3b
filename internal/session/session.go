// Package session holds the per-admin-session state containers: the leads
// store, the settings store, and the lead-detail editing session. One
// Session exists per logical consumer (the active screen); containers are
// created at session start and torn down when the session is removed or
// expires. None of the state here survives the session.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/itplus/visadesk/pkg/crm"
)

var (
	// ErrSessionNotFound indicates an unknown or expired session id.
	ErrSessionNotFound = errors.New("session not found")
)

// Backend is the slice of the CRM client consumed by the session
// containers. *crm.Client satisfies it; tests substitute a stub.
type Backend interface {
	ListLeads(ctx context.Context, f crm.LeadFilters) ([]crm.Lead, error)
	ListStatuses(ctx context.Context) ([]crm.LeadStatus, error)
	GetLeadDetail(ctx context.Context, id int) (*crm.LeadDetail, error)
	GetQuestionnaire(ctx context.Context, leadID int) (*crm.QuestionnaireSummary, error)
	CreateLeadForm(ctx context.Context, form crm.LeadForm) (*crm.LeadForm, error)
	UpdateLeadForm(ctx context.Context, id int, formType crm.FormType, rawText string) (*crm.LeadForm, error)
	DeleteLeadForm(ctx context.Context, id int) error
	UpdateFormResponse(ctx context.Context, id int, answers []crm.ParsedAnswer) (*crm.FormResponse, error)
	GetBotSettings(ctx context.Context) (*crm.BotSettings, error)
	PutBotSettings(ctx context.Context, settings crm.BotSettings) (*crm.BotSettings, error)
}

// Session bundles the state containers for one admin session.
type Session struct {
	ID       string
	Leads    *LeadsStore
	Settings *SettingsStore
	Detail   *DetailSession

	// opMu serializes request handling for the session, the gateway's
	// equivalent of the dashboard's single cooperative execution context.
	opMu sync.Mutex

	mu         sync.Mutex
	lastAccess time.Time
}

// Lock acquires the session's operation lock.
func (s *Session) Lock() { s.opMu.Lock() }

// Unlock releases the session's operation lock.
func (s *Session) Unlock() { s.opMu.Unlock() }

// newSession creates a session with fresh containers.
func newSession(backend Backend, now time.Time) *Session {
	return &Session{
		ID:         ulid.Make().String(),
		Leads:      NewLeadsStore(backend),
		Settings:   NewSettingsStore(backend),
		Detail:     NewDetailSession(backend),
		lastAccess: now,
	}
}

// touch records session activity.
func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

// LastAccess returns the time of the last registry access for this session.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Registry tracks active sessions by id. Sessions are created on demand
// and removed explicitly or by the expiry sweeper.
type Registry struct {
	backend Backend
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry(backend Backend) *Registry {
	return &Registry{
		backend:  backend,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session and returns it.
func (r *Registry) Create() *Session {
	s := newSession(r.backend, r.now())

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	return s
}

// Get returns the session for the given id, updating its last-access time.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}

	s.touch(r.now())
	return s, nil
}

// GetOrCreate returns the session for the given id, or a fresh session
// when the id is empty or unknown.
func (r *Registry) GetOrCreate(id string) *Session {
	if id != "" {
		if s, err := r.Get(id); err == nil {
			return s
		}
	}
	return r.Create()
}

// Remove tears down the session with the given id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SweepIdle removes sessions that have been idle for longer than maxIdle
// and returns how many were removed.
func (r *Registry) SweepIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if s.LastAccess().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
