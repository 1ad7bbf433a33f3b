package main

import (
	"encoding/json"
	"io"
	"text/tabwriter"
	"time"

	"github.com/itplus/visadesk/internal/config"
	"github.com/itplus/visadesk/pkg/crm"
)

var (
	backendOverride string
	jsonOutput      bool
)

// resolveClient creates a CRM client from config with optional --backend
// override.
func resolveClient() (*crm.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	baseURL := cfg.Backend.BaseURL
	if backendOverride != "" {
		baseURL = backendOverride
	}

	return crm.New(crm.Config{
		BaseURL: baseURL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: time.Duration(cfg.Backend.Timeout),
	})
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// truncate shortens a string for table display.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
