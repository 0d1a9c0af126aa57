package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"revcycle-hq/callisto/pkg/audit"
	"revcycle-hq/callisto/pkg/audit/retention"
	auditstorage "revcycle-hq/callisto/pkg/audit/storage"
	"revcycle-hq/callisto/pkg/cli"
	"revcycle-hq/callisto/pkg/config"
	"revcycle-hq/callisto/pkg/telemetry/logging"
)

var auditFlags struct {
	backend    string
	ruleID     string
	entityType string
	entityID   string
	tenant     string
	timeRange  string
	onlyFailed bool
	limit      int
	offset     int
	format     string
	output     string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the execution audit trail",
	Long: `Query and prune the rule execution audit trail.

Every rule execution is recorded with its condition traces and action
results. The audit command reads that trail for troubleshooting and
compliance review.

Subcommands:
  query - Query execution records with filters
  prune - Apply the retention policy immediately

Examples:
  # Recent executions of one rule
  callisto audit query --rule-id denial-review --limit 20

  # Failures for one claim
  callisto audit query --entity-type claim --entity-id CLM-1001 --only-failed

  # Export a time window to CSV
  callisto audit query --time-range "2026-08-01T00:00:00Z/2026-08-28T00:00:00Z" --format csv`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query execution records",
	Long: `Query execution records with various filters.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-08-01T00:00:00Z/2026-08-28T00:00:00Z"`,
	RunE: queryAudit,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy now",
	Long: `Delete audit records older than the configured retention window and
trim the trail to the configured maximum record count. Uses the
retention settings from the config file.`,
	RunE: pruneAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditPruneCmd)

	auditQueryCmd.Flags().StringVar(&auditFlags.backend, "backend", "", "backend: sqlite, memory (uses config if not specified)")
	auditQueryCmd.Flags().StringVar(&auditFlags.ruleID, "rule-id", "", "filter by rule ID")
	auditQueryCmd.Flags().StringVar(&auditFlags.entityType, "entity-type", "", "filter by entity type")
	auditQueryCmd.Flags().StringVar(&auditFlags.entityID, "entity-id", "", "filter by entity ID")
	auditQueryCmd.Flags().StringVar(&auditFlags.tenant, "tenant", "", "filter by tenant ID")
	auditQueryCmd.Flags().StringVar(&auditFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")
	auditQueryCmd.Flags().BoolVar(&auditFlags.onlyFailed, "only-failed", false, "only records with errors")
	auditQueryCmd.Flags().IntVar(&auditFlags.limit, "limit", 100, "max results")
	auditQueryCmd.Flags().IntVar(&auditFlags.offset, "offset", 0, "pagination offset")
	auditQueryCmd.Flags().StringVar(&auditFlags.format, "format", "text", "output format: text, json, csv")
	auditQueryCmd.Flags().StringVarP(&auditFlags.output, "output", "o", "", "output file (default: stdout)")

	auditPruneCmd.Flags().StringVar(&auditFlags.backend, "backend", "", "backend: sqlite, memory (uses config if not specified)")
}

func openAuditStorage() (audit.Storage, *config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	backend := auditFlags.backend
	if backend == "" {
		backend = cfg.Audit.Backend
	}

	logger, err := logging.New(logging.Config{Level: "error", Format: "text"})
	if err != nil {
		return nil, nil, err
	}

	switch backend {
	case "sqlite":
		storage, err := auditstorage.NewSQLiteStorage(&auditstorage.SQLiteConfig{
			Path: cfg.Audit.SQLitePath,
		}, logger)
		if err != nil {
			return nil, nil, cli.NewCommandError("audit", fmt.Errorf("failed to open audit storage: %w", err))
		}
		return storage, cfg, nil
	case "memory":
		return auditstorage.NewMemoryStorage(), cfg, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend: %s (supported: sqlite, memory)", backend)
	}
}

func queryAudit(cmd *cobra.Command, args []string) error {
	storage, _, err := openAuditStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	query := audit.Query{
		RuleID:     auditFlags.ruleID,
		EntityType: auditFlags.entityType,
		EntityID:   auditFlags.entityID,
		TenantID:   auditFlags.tenant,
		OnlyFailed: auditFlags.onlyFailed,
		Limit:      auditFlags.limit,
		Offset:     auditFlags.offset,
	}

	if auditFlags.timeRange != "" {
		parts := strings.Split(auditFlags.timeRange, "/")
		if len(parts) != 2 {
			return fmt.Errorf("invalid time range format (expected: start/end)")
		}
		since, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}
		until, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return fmt.Errorf("invalid end time: %w", err)
		}
		query.Since = since
		query.Until = until
	}

	records, err := storage.Query(context.Background(), query)
	if err != nil {
		return cli.NewCommandError("audit", fmt.Errorf("query failed: %w", err))
	}

	output := os.Stdout
	if auditFlags.output != "" {
		output, err = os.Create(auditFlags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	}

	switch auditFlags.format {
	case "json":
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(output, records)
	case "csv":
		formatter := &cli.CSVFormatter{Headers: []string{
			"id", "rule_id", "entity_type", "entity_id",
			"conditions_passed", "actions_executed", "error",
			"started_at", "duration_ms",
		}}
		rows := make([][]string, 0, len(records))
		for _, r := range records {
			rows = append(rows, []string{
				r.ID, r.RuleID, r.EntityType, r.EntityID,
				fmt.Sprintf("%t", r.ConditionsPassed),
				fmt.Sprintf("%t", r.ActionsExecuted),
				r.Error,
				r.StartedAt.Format(time.RFC3339),
				fmt.Sprintf("%d", r.DurationMs),
			})
		}
		return formatter.FormatTo(output, rows)
	default:
		fmt.Fprintf(output, "Total records: %d\n\n", len(records))
		if len(records) == 0 {
			fmt.Fprintln(output, "No records found.")
			return nil
		}
		for _, r := range records {
			status := "passed"
			switch {
			case r.Error != "":
				status = "error: " + r.Error
			case !r.ConditionsPassed:
				status = "skipped"
			case !r.ActionsExecuted:
				status = "failed"
			}
			fmt.Fprintf(output, "%s  %s  %s/%s  %s  %dms  %s\n",
				r.StartedAt.Format(time.RFC3339), r.RuleID,
				r.EntityType, r.EntityID, status, r.DurationMs, r.ID)
		}
		return nil
	}
}

func pruneAudit(cmd *cobra.Command, args []string) error {
	storage, cfg, err := openAuditStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	logger, err := logging.New(logging.Config{Level: "info", Format: "text"})
	if err != nil {
		return err
	}

	pruner := retention.NewPruner(storage, &retention.Config{
		RetentionDays: cfg.Audit.Retention.Days,
		MaxRecords:    cfg.Audit.Retention.MaxRecords,
		PruneSchedule: cfg.Audit.Retention.PruneSchedule,
	}, logger)

	deleted, err := pruner.Prune(context.Background())
	if err != nil {
		return cli.NewCommandError("audit", fmt.Errorf("prune failed: %w", err))
	}

	fmt.Printf("✓ Pruned %d records\n", deleted)
	return nil
}
