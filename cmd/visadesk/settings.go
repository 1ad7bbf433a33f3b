package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/itplus/visadesk/internal/session"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change the bot settings record",
}

func init() {
	settingsCmd.PersistentFlags().StringVar(&backendOverride, "backend", "",
		"Backend base URL (overrides config and VISADESK_BACKEND_URL)")
	settingsCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current bot settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := resolveClient()
	if err != nil {
		return err
	}

	settings, err := client.GetBotSettings(ctx)
	if err != nil {
		return fmt.Errorf("get bot settings: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), settings)
	}

	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "Bot: %s <%s>\n", settings.BotName, settings.SenderEmail)
	fmt.Fprintf(stdout, "Reminders: first after %dd, second after %dd, enabled=%t\n",
		settings.FirstReminderDays, settings.SecondReminderDays, settings.AutoRemindersEnabled)
	fmt.Fprintf(stdout, "Send window: %02d:00-%02d:00, poll every %ds\n",
		settings.SendWindowStartHour, settings.SendWindowEndHour, settings.PollIntervalSeconds)
	fmt.Fprintf(stdout, "Auto create leads: %t, auto change status: %t\n",
		settings.AutoCreateLeads, settings.AutoChangeStatus)

	w := newTabWriter(stdout)
	fmt.Fprintln(w, "FORM\tURL")
	fmt.Fprintf(w, "poland\t%s\n", settings.FormPolandURL)
	fmt.Fprintf(w, "schengen\t%s\n", settings.FormSchengenURL)
	fmt.Fprintf(w, "usa\t%s\n", settings.FormUSAURL)
	fmt.Fprintf(w, "generic\t%s\n", settings.FormGenericURL)
	w.Flush()

	if len(settings.ExtraConfig) > 0 {
		fmt.Fprintln(stdout, "Extra config:")
		printJSON(stdout, settings.ExtraConfig)
	}

	return nil
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <field=value> [field=value ...]",
	Short: "Update settings fields by wire name",
	Long: "Update settings fields, e.g.:\n" +
		"  visadesk settings set bot_name=\"Visa Bot\" first_reminder_days=2\n" +
		"The patch is merged onto the current record and saved wholesale.",
	Args: cobra.MinimumNArgs(1),
	RunE: runSettingsSet,
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	patch := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid assignment %q, expected field=value", arg)
		}
		patch[key] = parseValue(value)
	}

	client, err := resolveClient()
	if err != nil {
		return err
	}

	store := session.NewSettingsStore(client)
	if err := store.Save(ctx, patch); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	saved := store.Settings()
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), saved)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Settings saved (record #%d).\n", saved.ID)
	return nil
}

// parseValue interprets a value literal as JSON when possible (numbers,
// booleans, objects), falling back to a plain string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}
