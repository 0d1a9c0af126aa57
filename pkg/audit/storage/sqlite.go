package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"revcycle-hq/callisto/pkg/audit"
	"revcycle-hq/callisto/pkg/rules/engine"
)

// SQLiteConfig configures the SQLite audit store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`

	// MaxOpenConns and MaxIdleConns size the connection pool.
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging. Default: true.
	WALMode *bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// ApplyDefaults fills zero values with defaults.
func (c *SQLiteConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "data/audit.db"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.WALMode == nil {
		wal := true
		c.WALMode = &wal
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
}

// SQLiteStorage persists execution records in SQLite. The queryable
// summary lives in columns; the full result, traces included, is stored as
// a JSON detail blob.
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger

	storeStmt *sql.Stmt
}

// NewSQLiteStorage opens (or creates) the audit database.
func NewSQLiteStorage(config *SQLiteConfig, logger *slog.Logger) (*SQLiteStorage, error) {
	if config == nil {
		config = &SQLiteConfig{}
	}
	config.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d", config.Path, config.BusyTimeout.Milliseconds())
	if *config.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &audit.StorageError{Op: "open", Cause: err}
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{db: db, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("audit storage initialized",
		slog.String("path", config.Path),
		slog.Bool("wal", *config.WALMode))
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return &audit.StorageError{Op: "init schema", Cause: err}
	}
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO schema_info (version) VALUES (?)`, SchemaVersion); err != nil {
		return &audit.StorageError{Op: "init schema version", Cause: err}
	}

	var err error
	s.storeStmt, err = s.db.Prepare(`
		INSERT INTO executions (
			id, rule_id, rule_name, rule_version,
			entity_type, entity_id, tenant_id,
			triggered, conditions_passed, actions_executed, action_count,
			error, started_at, duration_ms, recorded_at, detail
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return &audit.StorageError{Op: "prepare store", Cause: err}
	}
	return nil
}

// Store writes one execution record.
func (s *SQLiteStorage) Store(ctx context.Context, record *audit.ExecutionRecord) error {
	var detail []byte
	if record.Detail != nil {
		var err error
		detail, err = json.Marshal(record.Detail)
		if err != nil {
			return &audit.StorageError{Op: "marshal detail", Cause: err}
		}
	}

	_, err := s.storeStmt.ExecContext(ctx,
		record.ID, record.RuleID, record.RuleName, record.RuleVersion,
		record.EntityType, record.EntityID, record.TenantID,
		record.Triggered, record.ConditionsPassed, record.ActionsExecuted, record.ActionCount,
		record.Error, record.StartedAt.UTC(), record.DurationMs, record.RecordedAt.UTC(),
		string(detail))
	if err != nil {
		return &audit.StorageError{Op: "store", Cause: err}
	}
	return nil
}

// Query returns matching records, newest first.
func (s *SQLiteStorage) Query(ctx context.Context, q audit.Query) ([]*audit.ExecutionRecord, error) {
	query := `SELECT id, rule_id, rule_name, rule_version,
		entity_type, entity_id, tenant_id,
		triggered, conditions_passed, actions_executed, action_count,
		error, started_at, duration_ms, recorded_at, detail
		FROM executions WHERE 1=1`
	var args []any

	if q.RuleID != "" {
		query += ` AND rule_id = ?`
		args = append(args, q.RuleID)
	}
	if q.EntityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, q.EntityType)
	}
	if q.EntityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, q.EntityID)
	}
	if q.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, q.TenantID)
	}
	if !q.Since.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, q.Since.UTC())
	}
	if !q.Until.IsZero() {
		query += ` AND started_at < ?`
		args = append(args, q.Until.UTC())
	}
	if q.OnlyFailed {
		query += ` AND error != ''`
	}

	query += ` ORDER BY started_at DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	if q.Offset > 0 {
		if q.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &audit.StorageError{Op: "query", Cause: err}
	}
	defer rows.Close()

	var out []*audit.ExecutionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// Count returns the total number of records.
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM executions`).Scan(&count)
	if err != nil {
		return 0, &audit.StorageError{Op: "count", Cause: err}
	}
	return count, nil
}

// DeleteOlderThan removes records that started before the cutoff.
func (s *SQLiteStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, &audit.StorageError{Op: "delete by age", Cause: err}
	}
	return result.RowsAffected()
}

// DeleteOldest trims the table down to keep records.
func (s *SQLiteStorage) DeleteOldest(ctx context.Context, keep int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM executions WHERE id IN (
			SELECT id FROM executions
			ORDER BY started_at ASC
			LIMIT max(0, (SELECT COUNT(*) FROM executions) - ?)
		)`, keep)
	if err != nil {
		return 0, &audit.StorageError{Op: "delete oldest", Cause: err}
	}
	return result.RowsAffected()
}

// Close releases the database handle.
func (s *SQLiteStorage) Close() error {
	if s.storeStmt != nil {
		s.storeStmt.Close()
	}
	return s.db.Close()
}

func scanRecord(rows *sql.Rows) (*audit.ExecutionRecord, error) {
	var record audit.ExecutionRecord
	var tenantID, errMsg, detail sql.NullString

	err := rows.Scan(
		&record.ID, &record.RuleID, &record.RuleName, &record.RuleVersion,
		&record.EntityType, &record.EntityID, &tenantID,
		&record.Triggered, &record.ConditionsPassed, &record.ActionsExecuted, &record.ActionCount,
		&errMsg, &record.StartedAt, &record.DurationMs, &record.RecordedAt,
		&detail)
	if err != nil {
		return nil, &audit.StorageError{Op: "scan", Cause: err}
	}

	record.TenantID = tenantID.String
	record.Error = errMsg.String
	if detail.Valid && detail.String != "" {
		var result engine.ExecutionResult
		if err := json.Unmarshal([]byte(detail.String), &result); err != nil {
			return nil, &audit.StorageError{Op: "decode detail", Cause: err}
		}
		record.Detail = &result
	}
	return &record, nil
}
