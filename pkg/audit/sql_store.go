package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/enforcement"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

// ErrUnknownDriver is returned by OpenSQLStore for unsupported drivers.
var ErrUnknownDriver = errors.New("audit: unknown driver")

// Dialect selects placeholder style and DDL.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Pseudo codes for turns without violations.
const (
	CodeAllowed = "ALLOWED"
	CodeSkipped = "SKIPPED"
)

// Record is one row of enforcement_audit.
type Record struct {
	TurnID       string       `json:"turn_id"`
	SessionID    string       `json:"session_id"`
	Stage        flow.StageID `json:"stage"`
	EventType    string       `json:"event_type"`
	Token        string       `json:"token"`
	Allowed      bool         `json:"allowed"`
	Skipped      bool         `json:"skipped"`
	Code         string       `json:"code"`
	Severity     string       `json:"severity"`
	Detail       string       `json:"detail"`
	ContractHash string       `json:"contract_hash"`
	CreatedAt    time.Time    `json:"created_at"`
}

// SQLStore persists one row per violation (or one ALLOWED/SKIPPED row per
// clean turn) into enforcement_audit.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps db and creates the table if needed.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("%w: dialect %q", ErrUnknownDriver, dialect)
	}
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return s, nil
}

// OpenSQLStore opens a database with a registered driver ("sqlite" or
// "postgres") and returns a migrated store.
func OpenSQLStore(driver, dsn string) (*SQLStore, error) {
	var dialect Dialect
	switch driver {
	case "sqlite":
		dialect = DialectSQLite
	case "postgres":
		dialect = DialectPostgres
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", driver, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLStore(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	id := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == DialectPostgres {
		id = "id BIGSERIAL PRIMARY KEY"
	}
	query := `
	CREATE TABLE IF NOT EXISTS enforcement_audit (
		` + id + `,
		turn_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		event_type TEXT NOT NULL,
		token TEXT NOT NULL DEFAULT '',
		allowed BOOLEAN NOT NULL,
		skipped BOOLEAN NOT NULL,
		code TEXT NOT NULL,
		severity TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		contract_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_enforcement_audit_session ON enforcement_audit (session_id)")
	return err
}

// rebind rewrites ? placeholders for the dialect.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Records expands a report into rows.
func Records(r enforcement.Report) []Record {
	base := Record{
		TurnID:       r.TurnID,
		SessionID:    r.SessionID,
		Stage:        r.Stage,
		EventType:    string(r.Event.Type),
		Token:        r.Event.TokenValue(),
		Allowed:      r.Allowed,
		Skipped:      r.Skipped,
		ContractHash: r.ContractHash,
		CreatedAt:    r.Timestamp.UTC(),
	}
	if len(r.Violations) == 0 {
		base.Code = CodeAllowed
		if r.Skipped {
			base.Code = CodeSkipped
		}
		return []Record{base}
	}
	out := make([]Record, 0, len(r.Violations))
	for _, v := range r.Violations {
		rec := base
		rec.Code = v.Code
		rec.Severity = string(v.Severity)
		rec.Detail = v.Detail
		out = append(out, rec)
	}
	return out
}

// Report implements enforcement.Sink.
func (s *SQLStore) Report(ctx context.Context, r enforcement.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("audit: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := s.rebind(`INSERT INTO enforcement_audit (
		turn_id, session_id, stage, event_type, token, allowed, skipped, code, severity, detail, contract_hash, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for _, rec := range Records(r) {
		_, err := tx.ExecContext(ctx, query,
			rec.TurnID, rec.SessionID, string(rec.Stage), rec.EventType, rec.Token, rec.Allowed, rec.Skipped,
			rec.Code, rec.Severity, rec.Detail, rec.ContractHash, rec.CreatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to insert audit record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("audit: commit: %w", err)
	}
	return nil
}

// ListBySession returns the rows of a session in insertion order.
func (s *SQLStore) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	query := s.rebind(`
		SELECT turn_id, session_id, stage, event_type, token, allowed, skipped, code, severity, detail, contract_hash, created_at
		FROM enforcement_audit
		WHERE session_id = ?
		ORDER BY id
	`)
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			stage     string
			createdAt string
		)
		if err := rows.Scan(&rec.TurnID, &rec.SessionID, &stage, &rec.EventType, &rec.Token, &rec.Allowed, &rec.Skipped,
			&rec.Code, &rec.Severity, &rec.Detail, &rec.ContractHash, &createdAt); err != nil {
			return nil, err
		}
		rec.Stage = flow.StageID(stage)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByCode aggregates rows per code.
func (s *SQLStore) CountByCode(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT code, COUNT(*) FROM enforcement_audit GROUP BY code")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			code string
			n    int64
		)
		if err := rows.Scan(&code, &n); err != nil {
			return nil, err
		}
		out[code] = n
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
