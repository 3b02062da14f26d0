package audit

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/contract"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
)

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLStore("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStore_SQLiteRoundTrip(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Report(ctx, allowedReport("s1", "t1")))
	require.NoError(t, s.Report(ctx, rejectedReport("s1", "t2")))
	require.NoError(t, s.Report(ctx, advisoryReport("s2", "t3")))

	recs, err := s.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, CodeAllowed, recs[0].Code)
	assert.True(t, recs[0].Allowed)
	assert.Equal(t, "BTN_OS_LINUX", recs[0].Token)
	assert.Equal(t, testTime, recs[0].CreatedAt)

	assert.Equal(t, contract.CodeInvalidToken, recs[1].Code)
	assert.False(t, recs[1].Allowed)
	assert.Equal(t, "error", recs[1].Severity)
	assert.Equal(t, flow.AskOS, recs[1].Stage)
	assert.Equal(t, "sha256:abc", recs[1].ContractHash)

	counts, err := s.CountByCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		CodeAllowed:                 1,
		contract.CodeInvalidToken:   1,
		contract.CodeTextNotAllowed: 1,
	}, counts)

	none, err := s.ListBySession(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLStore_MigrateIsIdempotent(t *testing.T) {
	s := openSQLite(t)
	_, err := NewSQLStore(s.db, DialectSQLite)
	require.NoError(t, err)
}

func TestRecords(t *testing.T) {
	r := rejectedReport("s1", "t1")
	r.Violations = append(r.Violations, contract.Violation{Code: "EXTRA", Severity: contract.SeverityWarning})
	recs := Records(r)
	require.Len(t, recs, 2)
	assert.Equal(t, "EXTRA", recs[1].Code)
	assert.Equal(t, "warning", recs[1].Severity)

	skipped := allowedReport("s1", "t2")
	skipped.Skipped = true
	recs = Records(skipped)
	require.Len(t, recs, 1)
	assert.Equal(t, CodeSkipped, recs[0].Code)
}

func TestOpenSQLStore_UnknownDriver(t *testing.T) {
	_, err := OpenSQLStore("mysql", "root@/audit")
	require.ErrorIs(t, err, ErrUnknownDriver)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	_, err = NewSQLStore(db, "oracle")
	require.ErrorIs(t, err, ErrUnknownDriver)
}

func newPostgresMock(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("id BIGSERIAL PRIMARY KEY")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS idx_enforcement_audit_session")).WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := NewSQLStore(db, DialectPostgres)
	require.NoError(t, err)
	return s, mock
}

func TestSQLStore_PostgresReport(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)")).
		WithArgs("t2", "s1", "ASK_OS", "button", "BTN_OS_SOLARIS", false, false,
			contract.CodeInvalidToken, "error", sqlmock.AnyArg(), "sha256:abc", "2026-10-18T12:00:00Z").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Report(context.Background(), rejectedReport("s1", "t2")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresReportRollsBack(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enforcement_audit")).
		WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	err := s.Report(context.Background(), allowedReport("s1", "t1"))
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresListBySession(t *testing.T) {
	s, mock := newPostgresMock(t)

	rows := sqlmock.NewRows([]string{
		"turn_id", "session_id", "stage", "event_type", "token", "allowed", "skipped",
		"code", "severity", "detail", "contract_hash", "created_at",
	}).AddRow("t1", "s1", "ASK_OS", "button", "BTN_OS_LINUX", true, false,
		CodeAllowed, "", "", "sha256:abc", "2026-10-18T12:00:00Z")

	mock.ExpectQuery(regexp.QuoteMeta("WHERE session_id = $1")).
		WithArgs("s1").
		WillReturnRows(rows)

	recs, err := s.ListBySession(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "t1", recs[0].TurnID)
	assert.True(t, recs[0].Allowed)
	assert.Equal(t, testTime, recs[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresCountByCode(t *testing.T) {
	s, mock := newPostgresMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT code, COUNT(*) FROM enforcement_audit GROUP BY code")).
		WillReturnRows(sqlmock.NewRows([]string{"code", "count"}).
			AddRow("ALLOWED", 7).
			AddRow("INVALID_TOKEN", 2))

	counts, err := s.CountByCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"ALLOWED": 7, "INVALID_TOKEN": 2}, counts)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &SQLStore{dialect: DialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}
