package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/itplus/visadesk/internal/types"
	"github.com/itplus/visadesk/pkg/crm"
)

// SettingsStore holds the last-known canonical copy of the singleton bot
// settings record.
type SettingsStore struct {
	backend Backend

	mu          sync.RWMutex
	settings    crm.BotSettings
	loaded      bool
	invalidJSON bool
}

// NewSettingsStore creates an empty settings store.
func NewSettingsStore(backend Backend) *SettingsStore {
	return &SettingsStore{backend: backend}
}

// Load fetches the settings record, replacing local state wholesale.
func (s *SettingsStore) Load(ctx context.Context) error {
	settings, err := s.backend.GetBotSettings(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = *settings
	s.loaded = true
	s.invalidJSON = false
	s.mu.Unlock()
	return nil
}

// Save merges the field patch (keyed by wire field names) onto the
// last-known full record, sends the merged record wholesale, and adopts
// the backend's returned record as the displayed value. The server's echo,
// not the optimistic merge, is what callers see afterwards.
func (s *SettingsStore) Save(ctx context.Context, patch map[string]any) error {
	s.mu.RLock()
	current := s.settings
	loaded := s.loaded
	s.mu.RUnlock()

	if !loaded {
		settings, err := s.backend.GetBotSettings(ctx)
		if err != nil {
			return err
		}
		current = *settings
	}

	merged, err := mergeSettings(current, patch)
	if err != nil {
		return err
	}

	saved, err := s.backend.PutBotSettings(ctx, merged)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = *saved
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// SetExtraConfigJSON applies a free-form JSON edit to the local
// extra_config map. Malformed input is not applied, leaving the last valid
// value in place, and flips the invalid-JSON indicator instead of
// surfacing an error.
func (s *SettingsStore) SetExtraConfigJSON(raw string) {
	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		s.mu.Lock()
		s.invalidJSON = true
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.settings.ExtraConfig = cfg
	s.invalidJSON = false
	s.mu.Unlock()
}

// Settings returns the last-known canonical settings record.
func (s *SettingsStore) Settings() crm.BotSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// InvalidJSON reports whether the last free-form config edit was malformed.
func (s *SettingsStore) InvalidJSON() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invalidJSON
}

// View returns the settings screen state.
func (s *SettingsStore) View() types.SettingsView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.SettingsView{
		Settings:    s.settings,
		InvalidJSON: s.invalidJSON,
	}
}

// mergeSettings applies a wire-named field patch on top of a full settings
// record by round-tripping through JSON, so patch keys match the REST
// contract rather than Go field names.
func mergeSettings(current crm.BotSettings, patch map[string]any) (crm.BotSettings, error) {
	data, err := json.Marshal(current)
	if err != nil {
		return current, fmt.Errorf("encode settings: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return current, fmt.Errorf("decode settings: %w", err)
	}

	for k, v := range patch {
		m[k] = v
	}

	data, err = json.Marshal(m)
	if err != nil {
		return current, fmt.Errorf("encode merged settings: %w", err)
	}

	var merged crm.BotSettings
	if err := json.Unmarshal(data, &merged); err != nil {
		return current, fmt.Errorf("decode merged settings: %w", err)
	}
	return merged, nil
}
