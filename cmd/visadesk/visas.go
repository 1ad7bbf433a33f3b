package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var visasCmd = &cobra.Command{
	Use:   "visas",
	Short: "Browse the visa catalogue and start visa processes",
}

func init() {
	visasCmd.PersistentFlags().StringVar(&backendOverride, "backend", "",
		"Backend base URL (overrides config and VISADESK_BACKEND_URL)")
	visasCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	visasCmd.AddCommand(visasListCmd)
	visasCmd.AddCommand(visasShowCmd)
	visasCmd.AddCommand(visasStartCmd)
}

var visasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List visa reference entries",
	Args:  cobra.NoArgs,
	RunE:  runVisasList,
}

func runVisasList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := resolveClient()
	if err != nil {
		return err
	}

	visas, err := client.ListVisas(ctx)
	if err != nil {
		return fmt.Errorf("list visas: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"visas": visas,
			"total": len(visas),
		})
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "CODE\tNAME\tTYPE\tPROCESSING TIME")
	for _, v := range visas {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Code, v.Name, v.Type, v.ProcessingTime)
	}
	w.Flush()

	return nil
}

var visasShowCmd = &cobra.Command{
	Use:   "show <code>",
	Short: "Show one visa entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runVisasShow,
}

func runVisasShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := resolveClient()
	if err != nil {
		return err
	}

	visa, err := client.GetVisa(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get visa: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), visa)
	}

	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "%s (%s)\n", visa.Name, visa.Code)
	fmt.Fprintf(stdout, "  Type: %s\n", visa.Type)
	fmt.Fprintf(stdout, "  %s\n", visa.Description)
	fmt.Fprintln(stdout, "  Requirements:")
	for _, req := range visa.Requirements {
		fmt.Fprintf(stdout, "    - %s\n", req)
	}
	fmt.Fprintf(stdout, "  Processing time: %s\n", visa.ProcessingTime)

	return nil
}

var visasStartCmd = &cobra.Command{
	Use:   "start <code> <lead-id>",
	Short: "Start the visa process for a lead",
	Args:  cobra.ExactArgs(2),
	RunE:  runVisasStart,
}

func runVisasStart(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	leadID, err := strconv.Atoi(args[1])
	if err != nil || leadID <= 0 {
		return fmt.Errorf("invalid lead id %q", args[1])
	}

	client, err := resolveClient()
	if err != nil {
		return err
	}

	result, err := client.StartVisa(ctx, args[0], leadID)
	if err != nil {
		return fmt.Errorf("start visa: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Message)
	return nil
}
