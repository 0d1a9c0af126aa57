package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"revcycle-hq/callisto/pkg/cli"
	"revcycle-hq/callisto/pkg/rules"
	"revcycle-hq/callisto/pkg/rules/engine"
	"revcycle-hq/callisto/pkg/rules/engine/handlers"
	"revcycle-hq/callisto/pkg/rules/source"
	"revcycle-hq/callisto/pkg/telemetry/logging"
)

var testFlags struct {
	ruleFile   string
	ruleID     string
	entityFile string
	entityType string
	trigger    string
	format     string
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Dry-run a rule against a sample entity",
	Long: `Run a rule against a sample entity through the full evaluation
path, with outbound deliveries stubbed out.

The entity file is a JSON object representing the claim, account, or
denial record. Conditions are evaluated with full traces so each
comparison shows the field, the expected value, the actual value, and
whether it passed. When conditions pass, the action chain runs with
webhook, email, SMS, and script actions replaced by stubs that report
what would have been sent. Nothing is written to the audit trail.

Entity Format (JSON):
  {
    "id": "CLM-1001",
    "status": "denied",
    "denialCode": "CO-97",
    "balanceAmount": 1450.00
  }

Examples:
  # Test the only rule in a file
  callisto test --rule rules/denial-review.yaml --entity fixtures/claim.json

  # Pick one rule from a multi-rule file
  callisto test --rule rules/ --rule-id denial-review --entity fixtures/claim.json

  # JSON trace output
  callisto test --rule rules/denial-review.yaml --entity fixtures/claim.json --format json`,
	RunE: testRule,
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().StringVarP(&testFlags.ruleFile, "rule", "r", "", "rule file or directory")
	testCmd.Flags().StringVar(&testFlags.ruleID, "rule-id", "", "rule to test when the file holds several")
	testCmd.Flags().StringVarP(&testFlags.entityFile, "entity", "e", "", "entity fixture (JSON)")
	testCmd.Flags().StringVar(&testFlags.entityType, "entity-type", "claim", "entity type of the fixture")
	testCmd.Flags().StringVar(&testFlags.trigger, "trigger", "manual", "trigger type to simulate")
	testCmd.Flags().StringVar(&testFlags.format, "format", "text", "output format: text, json")

	for _, flag := range []string{"rule", "entity"} {
		if err := testCmd.MarkFlagRequired(flag); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", flag, err))
		}
	}
}

func testRule(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(logging.Config{Level: "error", Format: "text"})
	if err != nil {
		return cli.NewCommandError("test", err)
	}

	fileSource := source.NewFileSource(testFlags.ruleFile, logger)
	loaded, err := fileSource.LoadRules(context.Background())
	if err != nil {
		return cli.NewCommandError("test", fmt.Errorf("failed to load rules: %w", err))
	}
	if len(loaded) == 0 {
		return fmt.Errorf("no rules found in %s", testFlags.ruleFile)
	}

	rule := loaded[0]
	if testFlags.ruleID != "" {
		rule = nil
		for _, r := range loaded {
			if r.ID == testFlags.ruleID {
				rule = r
				break
			}
		}
		if rule == nil {
			return fmt.Errorf("rule %q not found in %s", testFlags.ruleID, testFlags.ruleFile)
		}
	} else if len(loaded) > 1 {
		return fmt.Errorf("%s holds %d rules, use --rule-id to pick one", testFlags.ruleFile, len(loaded))
	}

	entityData, err := os.ReadFile(testFlags.entityFile)
	if err != nil {
		return cli.NewCommandError("test", fmt.Errorf("failed to read entity fixture: %w", err))
	}
	var entity map[string]any
	if err := json.Unmarshal(entityData, &entity); err != nil {
		return cli.NewCommandError("test", fmt.Errorf("invalid entity fixture: %w", err))
	}

	// Full handler set, with the network-touching actions stubbed out so a
	// test run never reaches the outside world.
	registry := engine.NewHandlerRegistry()
	handlers.RegisterDefaults(registry, handlers.Options{Logger: logger})
	for _, actionType := range []rules.ActionType{
		rules.ActionTriggerWebhook,
		rules.ActionSendEmail,
		rules.ActionSendSMS,
		rules.ActionRunScript,
	} {
		registry.Register(actionType, stubHandler(actionType))
	}

	eng, err := engine.New(engine.DefaultConfig(), registry, nil, logger)
	if err != nil {
		return cli.NewCommandError("test", err)
	}

	ectx := &engine.ExecutionContext{
		EntityType: testFlags.entityType,
		EntityID:   entityIDFromFixture(entity),
		Entity:     entity,
		Trigger:    rules.TriggerType(testFlags.trigger),
	}

	result, err := eng.TestRule(context.Background(), rule, ectx)
	if err != nil {
		return cli.NewCommandError("test", err)
	}

	if testFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		out, ferr := formatter.Format(result)
		if ferr != nil {
			return cli.NewCommandError("test", ferr)
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Rule: %s (%s)\n", rule.Name, rule.ID)
	fmt.Printf("Entity: %s %s\n", ectx.EntityType, ectx.EntityID)
	fmt.Println()
	for _, trace := range result.ConditionTraces {
		mark := "✗"
		if trace.Passed {
			mark = "✓"
		}
		fmt.Printf("  %s %s %s expected=%v actual=%v\n",
			mark, trace.Field, trace.Operator, trace.Expected, trace.Actual)
		if trace.Error != "" {
			fmt.Printf("      error: %s\n", trace.Error)
		}
	}
	fmt.Println()
	if result.Error != "" {
		fmt.Printf("✗ Execution error: %s\n", result.Error)
	}
	if !result.ConditionsPassed {
		fmt.Println("✗ Conditions did not pass, no actions ran")
		return nil
	}
	fmt.Printf("✓ Conditions passed, %d actions ran\n", len(result.ActionResults))
	for _, action := range result.ActionResults {
		mark := "✗"
		if action.Success {
			mark = "✓"
		}
		fmt.Printf("  %s %s output=%v\n", mark, action.Type, action.Output)
		if action.Error != "" {
			fmt.Printf("      error: %s\n", action.Error)
		}
	}
	return nil
}

// stubHandler replaces an outbound delivery handler for test runs. It
// reports what would have been sent without sending it.
func stubHandler(actionType rules.ActionType) engine.ActionHandler {
	return func(_ context.Context, _ *engine.ExecutionContext, a *rules.Action) (map[string]any, error) {
		return map[string]any{
			"skipped":    true,
			"actionType": string(actionType),
			"parameters": a.Parameters,
		}, nil
	}
}

func entityIDFromFixture(entity map[string]any) string {
	if id, ok := entity["id"].(string); ok {
		return id
	}
	return "fixture"
}
