package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard-labs/pulseboard/internal/core/docstore"
)

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAdapterWithDB(db), mock
}

func TestAdapter_Get(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery(regexp.QuoteMeta(queryGetDocument)).
		WithArgs("college_cache", "col-1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).
			AddRow([]byte(`{"totalResponses":15,"ratingSum":59.5}`)))

	doc, err := adapter.Get(context.Background(), "college_cache", "col-1")
	require.NoError(t, err)
	require.Equal(t, json.Number("15"), doc["totalResponses"])
	require.Equal(t, json.Number("59.5"), doc["ratingSum"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_GetNotFound(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery(regexp.QuoteMeta(queryGetDocument)).
		WithArgs("college_cache", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := adapter.Get(context.Background(), "college_cache", "missing")
	require.ErrorIs(t, err, docstore.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Create(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec(regexp.QuoteMeta(queryInsertDocument)).
		WithArgs("college_cache", "col-1", []byte(`{"totalSessions":1}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := adapter.Create(context.Background(), "college_cache", "col-1", docstore.Document{
		"totalSessions": json.Number("1"),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_CreateConflict(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec(regexp.QuoteMeta(queryInsertDocument)).
		WithArgs("cache_ledger", "sess-a", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := adapter.Create(context.Background(), "cache_ledger", "sess-a", docstore.Document{})
	require.ErrorIs(t, err, docstore.ErrExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Increment(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryGetDocumentForUpdate)).
		WithArgs("college_cache", "col-1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).
			AddRow([]byte(`{"totalResponses":10}`)))
	mock.ExpectExec(regexp.QuoteMeta(queryWriteDocumentBody)).
		WithArgs("college_cache", "col-1", []byte(`{"totalResponses":15}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := adapter.Increment(context.Background(), "college_cache", "col-1", []docstore.FieldDelta{
		docstore.Delta(docstore.Path("totalResponses"), decimal.NewFromInt(5)),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_IncrementMissingDocument(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryGetDocumentForUpdate)).
		WithArgs("college_cache", "missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := adapter.Increment(context.Background(), "college_cache", "missing", []docstore.FieldDelta{
		docstore.Delta(docstore.Path("totalResponses"), decimal.NewFromInt(1)),
	})
	require.ErrorIs(t, err, docstore.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_IncrementPathConflictRollsBack(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryGetDocumentForUpdate)).
		WithArgs("college_cache", "col-1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).
			AddRow([]byte(`{"totalResponses":"n/a"}`)))
	mock.ExpectRollback()

	err := adapter.Increment(context.Background(), "college_cache", "col-1", []docstore.FieldDelta{
		docstore.Delta(docstore.Path("totalResponses"), decimal.NewFromInt(1)),
	})
	require.ErrorIs(t, err, docstore.ErrPathConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Set(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryGetDocumentForUpdate)).
		WithArgs("cache_ledger", "sess-a").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).
			AddRow([]byte(`{"status":"pending"}`)))
	mock.ExpectExec(regexp.QuoteMeta(queryWriteDocumentBody)).
		WithArgs("cache_ledger", "sess-a", []byte(`{"status":"done"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := adapter.Set(context.Background(), "cache_ledger", "sess-a", []docstore.FieldValue{
		docstore.Value(docstore.Path("status"), "done"),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Update(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(queryGetDocumentForUpdate)).
		WithArgs("college_cache", "col-1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).
			AddRow([]byte(`{"totalResponses":10}`)))
	mock.ExpectExec(regexp.QuoteMeta(queryWriteDocumentBody)).
		WithArgs("college_cache", "col-1", []byte(`{"qualitative":{"high":["ok"]},"totalResponses":10}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := adapter.Update(context.Background(), "college_cache", "col-1", func(doc docstore.Document) (docstore.Document, error) {
		doc["qualitative"] = map[string]any{"high": []any{"ok"}}
		return doc, nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Query(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery(regexp.QuoteMeta(queryByTopLevelField)).
		WithArgs("sessions", "status", "inactive").
		WillReturnRows(sqlmock.NewRows([]string{"doc_id", "body"}).
			AddRow("s1", []byte(`{"status":"inactive"}`)).
			AddRow("s2", []byte(`{"status":"inactive"}`)))

	entries, err := adapter.Query(context.Background(), "sessions", "status", "inactive")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "s1", entries[0].ID)
	require.Equal(t, "inactive", entries[1].Doc["status"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_DeleteAll(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec(regexp.QuoteMeta(queryDeleteCollection)).
		WithArgs("college_cache").
		WillReturnResult(sqlmock.NewResult(0, 7))

	require.NoError(t, adapter.DeleteAll(context.Background(), "college_cache"))
	require.NoError(t, mock.ExpectationsWereMet())
}
