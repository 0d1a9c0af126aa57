package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"revcycle-hq/callisto/pkg/cli"
	"revcycle-hq/callisto/pkg/rules/source"
	"revcycle-hq/callisto/pkg/telemetry/logging"
)

var validateFlags struct {
	rulesPath string
	format    string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate rule definition files",
	Long: `Load rule definition files and check them for structural errors.

Each rule is checked for a unique ID, a known trigger type, well-formed
condition trees, and at least one action with a known action type. Rules
referencing unknown operators or empty condition groups are reported with
the file they came from.

Examples:
  # Validate a rule directory
  callisto validate --rules rules/

  # Validate a single file
  callisto validate --rules rules/denial-review.yaml

  # Machine-readable report
  callisto validate --rules rules/ --format json`,
	RunE: validateRules,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.rulesPath, "rules", "r", "", "rule file or directory to validate")
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")

	if err := validateCmd.MarkFlagRequired("rules"); err != nil {
		panic(fmt.Sprintf("failed to mark rules flag as required: %v", err))
	}
}

type validationReport struct {
	Path   string              `json:"path"`
	Rules  int                 `json:"rules"`
	Errors []validationProblem `json:"errors,omitempty"`
}

type validationProblem struct {
	RuleID  string `json:"ruleId,omitempty"`
	Message string `json:"message"`
}

func validateRules(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(logging.Config{Level: "error", Format: "text"})
	if err != nil {
		return cli.NewCommandError("validate", err)
	}

	report := validationReport{Path: validateFlags.rulesPath}

	fileSource := source.NewFileSource(validateFlags.rulesPath, logger)
	loaded, err := fileSource.LoadRules(context.Background())
	if err != nil {
		report.Errors = append(report.Errors, validationProblem{Message: err.Error()})
	}

	seen := make(map[string]bool, len(loaded))
	for _, r := range loaded {
		if seen[r.ID] {
			report.Errors = append(report.Errors, validationProblem{
				RuleID:  r.ID,
				Message: "duplicate rule id",
			})
			continue
		}
		seen[r.ID] = true

		if err := r.Validate(); err != nil {
			report.Errors = append(report.Errors, validationProblem{
				RuleID:  r.ID,
				Message: err.Error(),
			})
		}
	}
	report.Rules = len(loaded)

	if validateFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		out, err := formatter.Format(report)
		if err != nil {
			return cli.NewCommandError("validate", err)
		}
		fmt.Println(string(out))
	} else {
		fmt.Printf("Validated %d rules from %s\n", report.Rules, report.Path)
		for _, p := range report.Errors {
			if p.RuleID != "" {
				fmt.Printf("  ✗ %s: %s\n", p.RuleID, p.Message)
			} else {
				fmt.Printf("  ✗ %s\n", p.Message)
			}
		}
		if len(report.Errors) == 0 {
			fmt.Println("✓ All rules valid")
		}
	}

	if len(report.Errors) > 0 {
		return fmt.Errorf("%d validation errors", len(report.Errors))
	}
	return nil
}
