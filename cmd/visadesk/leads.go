package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/itplus/visadesk/pkg/crm"
)

var (
	leadsStatusFilter  string
	leadsCountryFilter string
	leadsSearchFilter  string
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Browse and manage leads",
	Long:  "List leads, inspect one lead's questionnaire data, and change lead status.",
}

func init() {
	leadsCmd.PersistentFlags().StringVar(&backendOverride, "backend", "",
		"Backend base URL (overrides config and VISADESK_BACKEND_URL)")
	leadsCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	leadsListCmd.Flags().StringVar(&leadsStatusFilter, "status", "", "Filter by status code")
	leadsListCmd.Flags().StringVar(&leadsCountryFilter, "country", "", "Filter by visa country")
	leadsListCmd.Flags().StringVar(&leadsSearchFilter, "search", "", "Search sender address and subject")

	leadsCmd.AddCommand(leadsListCmd)
	leadsCmd.AddCommand(leadsShowCmd)
	leadsCmd.AddCommand(leadsSetStatusCmd)
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads",
	Args:  cobra.NoArgs,
	RunE:  runLeadsList,
}

func runLeadsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := resolveClient()
	if err != nil {
		return err
	}

	leads, err := client.ListLeads(ctx, crm.LeadFilters{
		Status:      leadsStatusFilter,
		VisaCountry: leadsCountryFilter,
		Search:      leadsSearchFilter,
	})
	if err != nil {
		return fmt.Errorf("list leads: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"leads": leads,
			"total": len(leads),
		})
	}

	if len(leads) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No leads found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tFROM\tSUBJECT\tCOUNTRY\tSTATUS\tFORMS\tRESPONSES")
	for _, l := range leads {
		status := l.StatusLabel
		if status == "" {
			status = l.Status
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%d\n",
			l.ID,
			l.FromAddress,
			truncate(l.Subject, 40),
			l.VisaCountry,
			status,
			l.FormsCount,
			l.FormResponsesCount,
		)
	}
	w.Flush()

	return nil
}

var leadsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one lead with its forms, responses, and audit trail",
	Args:  cobra.ExactArgs(1),
	RunE:  runLeadsShow,
}

func runLeadsShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid lead id %q", args[0])
	}

	client, err := resolveClient()
	if err != nil {
		return err
	}

	detail, err := client.GetLeadDetail(ctx, id)
	if err != nil {
		return fmt.Errorf("get lead detail: %w", err)
	}

	// The derived summary is optional: the rest of the output still
	// renders when it cannot be fetched.
	summary, summaryErr := client.GetQuestionnaire(ctx, id)

	if jsonOutput {
		out := map[string]any{"detail": detail}
		if summaryErr == nil {
			out["summary"] = summary
		}
		return printJSON(cmd.OutOrStdout(), out)
	}

	stdout := cmd.OutOrStdout()
	l := detail.Lead
	fmt.Fprintf(stdout, "Lead #%d\n", l.ID)
	fmt.Fprintf(stdout, "  From:     %s\n", l.FromAddress)
	fmt.Fprintf(stdout, "  Subject:  %s\n", l.Subject)
	fmt.Fprintf(stdout, "  Country:  %s\n", l.VisaCountry)
	fmt.Fprintf(stdout, "  Status:   %s (%s)\n", l.StatusLabel, l.Status)
	fmt.Fprintf(stdout, "  Reminders sent: %d, next at: %s\n", l.RemindersSent, l.NextReminderAt)

	fmt.Fprintf(stdout, "\nManual forms (%d):\n", len(detail.LeadForms))
	for _, f := range detail.LeadForms {
		fmt.Fprintf(stdout, "  #%d [%s] %s\n", f.ID, f.FormType, truncate(f.RawText, 60))
	}

	fmt.Fprintf(stdout, "\nForm responses (%d):\n", len(detail.FormResponses))
	for _, fr := range detail.FormResponses {
		fmt.Fprintf(stdout, "  #%d from %s (%d answers, %d attachments)\n",
			fr.ID, fr.RespondentEmail, len(fr.ParsedAnswers), len(fr.Attachments))
		for _, a := range fr.ParsedAnswers {
			fmt.Fprintf(stdout, "      %s: %s\n", a.Label, truncate(a.Value, 50))
		}
	}

	if summaryErr != nil {
		fmt.Fprintln(stdout, "\nQuestionnaire summary: no data")
	} else {
		fmt.Fprintf(stdout, "\nQuestionnaire summary (%d fields):\n", len(summary.Fields))
		for _, f := range summary.Fields {
			fmt.Fprintf(stdout, "  [%s] %s: %s\n", f.Source, f.Label, truncate(f.Value, 50))
		}
	}

	fmt.Fprintf(stdout, "\nAudit trail (%d):\n", len(detail.AuditLogs))
	for _, a := range detail.AuditLogs {
		fmt.Fprintf(stdout, "  %s  %s  %s\n", a.CreatedAt, a.Event, truncate(a.Details, 60))
	}

	return nil
}

var leadsSetStatusCmd = &cobra.Command{
	Use:   "set-status <id> <status>",
	Short: "Change a lead's status",
	Args:  cobra.ExactArgs(2),
	RunE:  runLeadsSetStatus,
}

func runLeadsSetStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid lead id %q", args[0])
	}

	client, err := resolveClient()
	if err != nil {
		return err
	}

	updated, err := client.UpdateLead(ctx, id, map[string]any{"status": args[1]})
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), updated)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Lead #%d status: %s (%s)\n",
		updated.ID, updated.StatusLabel, updated.Status)
	return nil
}
