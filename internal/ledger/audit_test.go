package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAudit(t *testing.T) (*AuditTrail, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a := NewAuditTrail(db)
	a.now = func() time.Time { return fixedNow }
	return a, mock
}

func TestAppendScan(t *testing.T) {
	a, mock := newTestAudit(t)
	expectAudit(mock, EntryScanned, payloadField{"excerpt", "hello"}).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := a.AppendScan(context.Background(), testChat, testUser, map[string]interface{}{"excerpt": "hello", "length": 5})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendScan_NilPayload(t *testing.T) {
	a, mock := newTestAudit(t)
	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs(sqlmock.AnyArg(), fixedNow, testChat, testUser, EntryScanned, []byte("{}")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, a.AppendScan(context.Background(), testChat, testUser, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendScan_Error(t *testing.T) {
	a, mock := newTestAudit(t)
	expectAudit(mock, EntryScanned, nil).WillReturnError(errors.New("read-only transaction"))

	err := a.AppendScan(context.Background(), testChat, testUser, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit:")
}

func TestHistory(t *testing.T) {
	a, mock := newTestAudit(t)
	id1, id2 := uuid.New(), uuid.New()

	rows := sqlmock.NewRows([]string{"id", "event_id", "created_at", "chat_id", "user_id", "type", "payload"}).
		AddRow(12, id2.String(), fixedNow, testChat, testUser, EntryPenalty, []byte(`{"action":"MUTE"}`)).
		AddRow(11, id1.String(), fixedNow.Add(-time.Minute), testChat, testUser, EntryStrike, []byte(`{"new_count":2}`))
	mock.ExpectQuery("FROM audit_log").
		WithArgs(testChat, testUser, 10).
		WillReturnRows(rows)

	entries, err := a.History(context.Background(), testChat, testUser, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(12), entries[0].ID)
	assert.Equal(t, id2, entries[0].EventID)
	assert.Equal(t, EntryPenalty, entries[0].Type)
	assert.Equal(t, "MUTE", entries[0].Payload["action"])
	assert.Equal(t, float64(2), entries[1].Payload["new_count"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory_LimitBounds(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultHistoryLimit},
		{-5, DefaultHistoryLimit},
		{10000, MaxHistoryLimit},
		{25, 25},
	}
	for _, tt := range tests {
		a, mock := newTestAudit(t)
		mock.ExpectQuery("FROM audit_log").
			WithArgs(testChat, testUser, tt.want).
			WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "created_at", "chat_id", "user_id", "type", "payload"}))

		_, err := a.History(context.Background(), testChat, testUser, tt.in)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet(), "limit %d", tt.in)
	}
}

func TestHistory_BadEventID(t *testing.T) {
	a, mock := newTestAudit(t)
	mock.ExpectQuery("FROM audit_log").
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "created_at", "chat_id", "user_id", "type", "payload"}).
			AddRow(1, "not-a-uuid", fixedNow, testChat, testUser, EntryScanned, []byte(`{}`)))

	_, err := a.History(context.Background(), testChat, testUser, 5)
	assert.Error(t, err)
}

func TestTotalToday(t *testing.T) {
	a, mock := newTestAudit(t)
	midnight := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(testChat, EntryViolation, midnight).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(17))

	total, err := a.TotalToday(context.Background(), testChat)
	require.NoError(t, err)
	assert.Equal(t, 17, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
