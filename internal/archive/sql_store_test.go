package archive

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStore_Archive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	mock.ExpectExec("INSERT INTO conversation_archive").
		WithArgs(sqlmock.AnyArg(), HashPhone("5215512345678"), "lead-1", "hot", 82.0, false,
			"lead_created", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 3, 90, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Archive(context.Background(), sampleResult(), "lead-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_ListByPhoneHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db)
	at := time.Date(2026, 2, 12, 15, 2, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"conversation_id", "phone_hash", "lead_id", "tier", "score", "forced", "outcome",
		"field_names", "fields", "messages", "message_count", "duration_seconds", "archived_at"}).
		AddRow("abc-20260212T150200Z", "abc", "lead-1", "hot", 82.0, false, "lead_created",
			"{name,product_interest}", []byte(`{"name":"María","product_interest":"sofás"}`),
			[]byte(`[{"role":"user","content":"hola","timestamp":"2026-02-12T15:00:00Z"}]`), 1, 0, at)
	mock.ExpectQuery("SELECT (.+) FROM conversation_archive WHERE phone_hash").
		WithArgs("abc").
		WillReturnRows(rows)

	got, err := store.ListByPhoneHash(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "María", got[0].Fields["name"])
	assert.Equal(t, "hola", got[0].Messages[0].Content)
	assert.Equal(t, RecordVersion, got[0].Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_ListByPhoneHashEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM conversation_archive").
		WithArgs("none").
		WillReturnRows(sqlmock.NewRows([]string{"conversation_id"}))

	_, err = NewSQLStore(db).ListByPhoneHash(context.Background(), "none")
	assert.ErrorIs(t, err, ErrNotFound)
}
