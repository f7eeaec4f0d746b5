package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/urlvet/internal/config"
	"github.com/nao1215/urlvet/internal/model"
)

// NewRulesCmd creates the rules command.
func NewRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the detection rules",
		Long: `Rules prints every detection rule with its category, severity and
penalty. Overrides from the configuration file are applied, so the output
shows the values analyze will use.

Examples:
  # List the rules in effect
  urlvet rules

  # List the rules as a Markdown table
  urlvet rules --markdown`,
		Args: cobra.NoArgs,
		RunE: runRulesCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .urlvet in current or home directory)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Print a Markdown table")

	return cmd
}

// runRulesCmd executes the rules command.
func runRulesCmd(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	asMarkdown, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}

	rules, err := loadRuleBook(path)
	if err != nil {
		return err
	}

	if asMarkdown {
		return writeRulesMarkdown(cmd.OutOrStdout(), rules.Rules())
	}
	return writeRulesTable(cmd.OutOrStdout(), rules.Rules())
}

// loadRuleBook returns the catalog with the overrides of the config file
// found for path, if any.
func loadRuleBook(path string) (*model.RuleBook, error) {
	found := config.FindConfigFile(path)
	if found == "" {
		if path != "" {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, path)
		}
		return model.NewRuleBook(), nil
	}

	file, err := config.LoadConfigFile(found)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", found, err)
	}
	return file.RuleBook()
}

func writeRulesTable(w io.Writer, rules []model.Rule) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tSEVERITY\tPENALTY\tMESSAGE")
	for _, r := range rules {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Category, r.Severity.Name(), r.Penalty, r.Message)
	}
	return tw.Flush()
}

func writeRulesMarkdown(w io.Writer, rules []model.Rule) error {
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, []string{
			"`" + string(r.ID) + "`",
			r.Category.String(),
			r.Severity.Name(),
			strconv.Itoa(r.Penalty),
			r.Message,
		})
	}

	md := markdown.NewMarkdown(w)
	md.H1("urlvet Rules")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Category", "Severity", "Penalty", "Message"},
		Rows:   rows,
	})
	return md.Build()
}
