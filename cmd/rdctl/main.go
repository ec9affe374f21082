// Package main implements rdctl, the operator CLI for a reportdeck server.
// It drives the same HTTP API that interactive clients use.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/calade/reportdeck/internal/builder"
	"github.com/calade/reportdeck/model"
)

// build-time override (e.g. -ldflags "-X main.version=1.2.3")
var version = "dev"

// Global (root-level) flag variables
var (
	flagServer  string
	flagToken   string
	flagTimeout time.Duration
)

type runCmdFlags struct {
	model        string
	fields       []string
	filters      []string
	limit        int
	preview      bool
	outputFile   string
	saveTemplate string
	exportFormat string
}

var runFlags runCmdFlags

type quickCmdFlags struct {
	model      string
	fields     []string
	filters    []string
	limit      int
	outputFile string
}

var quickFlags quickCmdFlags

type exportCmdFlags struct {
	model      string
	fields     []string
	outputFile string
}

var exportFlags exportCmdFlags

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root Cobra command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rdctl",
		Short: "Reportdeck CLI",
		Long: strings.TrimSpace(`
rdctl - command line client for a reportdeck server

Build and execute reports against the reporting backend from the terminal:
list the reporting catalog, inspect model fields, run ad-hoc reports with
filters, and produce importable settings documents.`),
	}

	cmd.PersistentFlags().StringVar(&flagServer, "server", "http://localhost:8080", "Base URL of the reportdeck server")
	cmd.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("RDCTL_TOKEN"), "Bearer token (defaults to $RDCTL_TOKEN)")
	cmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 60*time.Second, "Timeout for the whole operation")
	cmd.Version = version

	cmd.AddCommand(newModelsCmd())
	cmd.AddCommand(newFieldsCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newQuickCmd())
	cmd.AddCommand(newExportCmd())

	return cmd
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available for reporting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
			defer cancel()

			client := newAPIClient(flagServer, flagToken, flagTimeout)
			models, err := client.listModels(ctx)
			if err != nil {
				return err
			}
			renderModels(os.Stdout, models)
			return nil
		},
	}
}

func newFieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields <model>",
		Short: "List the reportable fields of a model",
		Long: strings.TrimSpace(`
List the reportable fields of a model by its technical name, e.g.:

  rdctl fields res.partner`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
			defer cancel()

			client := newAPIClient(flagServer, flagToken, flagTimeout)
			m, err := client.resolveModel(ctx, args[0])
			if err != nil {
				return err
			}

			sess, err := client.createSession(ctx)
			if err != nil {
				return err
			}
			defer destroyQuietly(client, sess.Data.SessionID)

			payload, err := client.setModel(ctx, sess.Data.SessionID, m.ID)
			if err != nil {
				return err
			}
			renderFields(os.Stdout, m.Model, payload.Data.State.AvailableFields)
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Build and execute a report through a session",
		Long: strings.TrimSpace(`
Build a report definition in a server session, execute it, and print the
result as a table. Filters are field:operator:value triples.

Examples:
  rdctl run --model res.partner --field name --field email
  rdctl run --model sale.order --field name --field amount_total \
    --filter state:=:sale --preview
  rdctl run --model res.partner --field name --out partners.json
  rdctl run --model res.partner --field name --save-template "My partners"
  rdctl run --model res.partner --field name --export xlsx`),
		Args: cobra.NoArgs,
		RunE: runRun,
	}

	c.Flags().StringVarP(&runFlags.model, "model", "m", "", "Technical model name (required)")
	c.Flags().StringArrayVarP(&runFlags.fields, "field", "f", nil, "Field to include (repeatable, required)")
	c.Flags().StringArrayVar(&runFlags.filters, "filter", nil, "Filter triple field:operator:value (repeatable)")
	c.Flags().IntVar(&runFlags.limit, "limit", 0, "Show at most this many rows in the table (0=all)")
	c.Flags().BoolVar(&runFlags.preview, "preview", false, "Execute with the server-side preview row cap")
	c.Flags().StringVarP(&runFlags.outputFile, "out", "o", "", "Write the result document (JSON) to a file")
	c.Flags().StringVar(&runFlags.saveTemplate, "save-template", "", "Also save the definition as a named template")
	c.Flags().StringVar(&runFlags.exportFormat, "export", "", "Also request a download link: xlsx|pdf")
	_ = c.MarkFlagRequired("model")
	_ = c.MarkFlagRequired("field")

	return c
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()

	filters, err := parseFilterTriples(runFlags.filters)
	if err != nil {
		return err
	}

	client := newAPIClient(flagServer, flagToken, flagTimeout)
	m, err := client.resolveModel(ctx, runFlags.model)
	if err != nil {
		return err
	}

	sess, err := client.createSession(ctx)
	if err != nil {
		return err
	}
	id := sess.Data.SessionID
	defer destroyQuietly(client, id)

	if _, err := client.setModel(ctx, id, m.ID); err != nil {
		return err
	}
	for _, f := range runFlags.fields {
		if _, err := client.addField(ctx, id, f); err != nil {
			return fmt.Errorf("add field %q: %w", f, err)
		}
	}
	for _, f := range filters {
		fid, err := client.addFilter(ctx, id)
		if err != nil {
			return err
		}
		field, op, value := f.Field, f.Operator, f.Value
		patch := builder.FilterPatch{Field: &field, Operator: &op, Value: &value}
		if _, err := client.updateFilter(ctx, id, fid, patch); err != nil {
			return fmt.Errorf("set filter %s: %w", f.Field, err)
		}
	}

	res, err := client.execute(ctx, id, runFlags.preview)
	if err != nil {
		return err
	}
	printNotifications(os.Stderr, res.Notifications)

	st := res.Data.State
	if !st.Executed {
		return errors.New("report did not execute")
	}

	rows := st.ReportData
	if runFlags.limit > 0 && len(rows) > runFlags.limit {
		rows = rows[:runFlags.limit]
	}
	renderResult(os.Stdout, st.Definition.SelectedFields, rows, st.ReportCount)

	if runFlags.outputFile != "" {
		doc, err := client.resultsJSON(ctx, id)
		if err != nil {
			return err
		}
		if err := os.WriteFile(runFlags.outputFile, doc, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", runFlags.outputFile, err)
		}
		fmt.Fprintf(os.Stdout, "Results written to %s (%d bytes)\n", runFlags.outputFile, len(doc))
	}

	if runFlags.saveTemplate != "" {
		reportID, err := client.saveTemplate(ctx, id, runFlags.saveTemplate)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Template saved (report id %d)\n", reportID)
	}

	if runFlags.exportFormat != "" {
		link, err := client.exportLink(ctx, id, runFlags.exportFormat)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Download: %s\n", link)
	}

	return nil
}

func newQuickCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "quick",
		Short: "Run a one-shot report without a session",
		Long: strings.TrimSpace(`
Run an ad-hoc report in a single API call. The server resolves the model,
builds a transient definition, and executes it.

Example:
  rdctl quick --model res.partner --field name --field email --limit 50`),
		Args: cobra.NoArgs,
		RunE: runQuick,
	}

	c.Flags().StringVarP(&quickFlags.model, "model", "m", "", "Technical model name (required)")
	c.Flags().StringArrayVarP(&quickFlags.fields, "field", "f", nil, "Field to include (repeatable, required)")
	c.Flags().StringArrayVar(&quickFlags.filters, "filter", nil, "Filter triple field:operator:value (repeatable)")
	c.Flags().IntVar(&quickFlags.limit, "limit", 0, "Row limit passed to the server (0=server default)")
	c.Flags().StringVarP(&quickFlags.outputFile, "out", "o", "", "Write the full result (JSON) to a file")
	_ = c.MarkFlagRequired("model")
	_ = c.MarkFlagRequired("field")

	return c
}

func runQuick(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()

	filters, err := parseFilterTriples(quickFlags.filters)
	if err != nil {
		return err
	}

	req := builder.QuickReportRequest{
		Model:   quickFlags.model,
		Fields:  quickFlags.fields,
		Filters: filters,
		Limit:   quickFlags.limit,
	}

	client := newAPIClient(flagServer, flagToken, flagTimeout)
	res, err := client.quickReport(ctx, req)
	if err != nil {
		return err
	}

	renderResult(os.Stdout, res.Fields, res.Rows, res.Count)

	if quickFlags.outputFile != "" {
		doc, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(quickFlags.outputFile, doc, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", quickFlags.outputFile, err)
		}
		fmt.Fprintf(os.Stdout, "Results written to %s (%d bytes)\n", quickFlags.outputFile, len(doc))
	}

	return nil
}

func newExportCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "export",
		Short: "Produce an importable settings document",
		Long: strings.TrimSpace(`
Build a report definition from flags and write the server-generated settings
document. The document can be imported into any session (or fed to another
rdctl run) later.

Example:
  rdctl export --model res.partner --field name --field email -o partners.json`),
		Args: cobra.NoArgs,
		RunE: runExport,
	}

	c.Flags().StringVarP(&exportFlags.model, "model", "m", "", "Technical model name (required)")
	c.Flags().StringArrayVarP(&exportFlags.fields, "field", "f", nil, "Field to include (repeatable, required)")
	c.Flags().StringVarP(&exportFlags.outputFile, "out", "o", "", "Output file (default stdout)")
	_ = c.MarkFlagRequired("model")
	_ = c.MarkFlagRequired("field")

	return c
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()

	client := newAPIClient(flagServer, flagToken, flagTimeout)
	m, err := client.resolveModel(ctx, exportFlags.model)
	if err != nil {
		return err
	}

	sess, err := client.createSession(ctx)
	if err != nil {
		return err
	}
	id := sess.Data.SessionID
	defer destroyQuietly(client, id)

	if _, err := client.setModel(ctx, id, m.ID); err != nil {
		return err
	}
	for _, f := range exportFlags.fields {
		if _, err := client.addField(ctx, id, f); err != nil {
			return fmt.Errorf("add field %q: %w", f, err)
		}
	}

	doc, err := client.settingsJSON(ctx, id)
	if err != nil {
		return err
	}

	if exportFlags.outputFile == "" {
		_, err = os.Stdout.Write(doc)
		return err
	}
	if err := os.WriteFile(exportFlags.outputFile, doc, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", exportFlags.outputFile, err)
	}
	fmt.Fprintf(os.Stdout, "Settings written to %s\n", exportFlags.outputFile)
	return nil
}

// parseFilterTriples parses repeated field:operator:value flags.
func parseFilterTriples(specs []string) ([]builder.QuickFilter, error) {
	out := make([]builder.QuickFilter, 0, len(specs))
	for _, s := range specs {
		parts := strings.SplitN(s, ":", 3)
		if len(parts) != 3 || parts[0] == "" {
			return nil, fmt.Errorf("invalid filter %q, expected field:operator:value", s)
		}
		if !model.ValidOperator(parts[1]) {
			return nil, fmt.Errorf("invalid filter operator %q (valid: %s)", parts[1], strings.Join(model.Operators, " "))
		}
		out = append(out, builder.QuickFilter{Field: parts[0], Operator: parts[1], Value: parts[2]})
	}
	return out, nil
}

// destroyQuietly closes a session on a fresh context so cleanup still runs
// when the command context is already done.
func destroyQuietly(client *apiClient, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.destroySession(ctx, id); err != nil {
		fmt.Fprintf(os.Stderr, "warning: session %s not closed: %v\n", id, err)
	}
}
