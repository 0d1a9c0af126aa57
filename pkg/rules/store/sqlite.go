package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"revcycle-hq/callisto/pkg/rules"
)

// SQLiteStore persists rules in a SQLite database. The full rule document
// is stored as JSON; the columns that selection and filtering need are
// lifted out for indexed queries. WAL mode keeps readers unblocked during
// writes, which matters because rule reloads happen while batches run.
type SQLiteStore struct {
	db *sql.DB

	putStmt    *sql.Stmt
	getStmt    *sql.Stmt
	deleteStmt *sql.Stmt
}

// SQLiteConfig configures the SQLite rule store.
type SQLiteConfig struct {
	// DBPath is the path to the database file.
	DBPath string `yaml:"db_path"`

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// NewSQLiteStore opens (or creates) the rule database.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT,
		trigger_type TEXT NOT NULL,
		priority INTEGER NOT NULL,
		is_active INTEGER NOT NULL,
		version INTEGER NOT NULL,
		document TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_trigger_type ON rules(trigger_type);
	CREATE INDEX IF NOT EXISTS idx_rules_category ON rules(category);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.putStmt, err = s.db.Prepare(`
		INSERT INTO rules (id, name, category, trigger_type, priority, is_active, version, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			trigger_type = excluded.trigger_type,
			priority = excluded.priority,
			is_active = excluded.is_active,
			version = excluded.version,
			document = excluded.document,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare put statement: %w", err)
	}

	s.getStmt, err = s.db.Prepare(`SELECT document FROM rules WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM rules WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	return nil
}

// Put inserts or replaces a rule.
func (s *SQLiteStore) Put(ctx context.Context, rule *rules.Rule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("rule must have an id")
	}

	document, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal rule %s: %w", rule.ID, err)
	}

	now := time.Now().Unix()
	_, err = s.putStmt.ExecContext(ctx,
		rule.ID, rule.Name, rule.Category, string(rule.Trigger.Type),
		rule.Priority, boolToInt(rule.IsActive), rule.Version,
		string(document), now, now)
	if err != nil {
		return fmt.Errorf("save rule %s: %w", rule.ID, err)
	}
	return nil
}

// Get returns the rule with the given ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*rules.Rule, error) {
	var document string
	err := s.getStmt.QueryRowContext(ctx, id).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load rule %s: %w", id, err)
	}
	return decodeRule(id, document)
}

// Delete removes a rule.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.deleteStmt.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// List returns matching rules ordered by priority, then name. Column
// filters narrow the query; tag filtering happens on the decoded document.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*rules.Rule, error) {
	query := `SELECT id, document FROM rules WHERE 1=1`
	var args []any

	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.TriggerType != "" {
		query += ` AND trigger_type = ?`
		args = append(args, string(filter.TriggerType))
	}
	if filter.ActiveOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY priority ASC, name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []*rules.Rule
	for rows.Next() {
		var id, document string
		if err := rows.Scan(&id, &document); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule, err := decodeRule(id, document)
		if err != nil {
			return nil, err
		}
		if filter.Tag != "" && !hasTag(rule, filter.Tag) {
			continue
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// Close releases the database handle and prepared statements.
func (s *SQLiteStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.putStmt, s.getStmt, s.deleteStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

func decodeRule(id, document string) (*rules.Rule, error) {
	var rule rules.Rule
	if err := json.Unmarshal([]byte(document), &rule); err != nil {
		return nil, fmt.Errorf("decode rule %s: %w", id, err)
	}
	return &rule, nil
}

func hasTag(rule *rules.Rule, tag string) bool {
	for _, t := range rule.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
