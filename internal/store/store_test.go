package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

func TestFileStoreRecordGetList(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, logger.NewDiscard())
	require.NoError(t, err)

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	ctx := context.Background()
	first, err := s.Record(ctx, KindProcess, "tshirt", true, map[string]string{"a": "b"})
	require.NoError(t, err)
	_, err = s.Record(ctx, KindDesign, "hoodie", false, json.RawMessage(`{"error":"x"}`))
	require.NoError(t, err)
	third, err := s.Record(ctx, KindProcess, "beanie", true, nil)
	require.NoError(t, err)

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "tshirt", got.Subject)
	assert.JSONEq(t, `{"a":"b"}`, string(got.Payload))

	runs, err := s.List(ctx, KindProcess, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, third.ID, runs[0].ID, "newest first")

	all, err := s.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = s.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreWriteResult(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, logger.NewDiscard())
	require.NoError(t, err)

	path, err := s.WriteResult("tshirt-result.json", map[string]bool{"success": true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tshirt-result.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"success\": true\n}", string(data))
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresRecord(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	mock.ExpectExec("INSERT INTO pipeline_runs").
		WithArgs(sqlmock.AnyArg(), KindBatch, "products.yaml", true, []byte(`[1,2]`), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run, err := s.Record(context.Background(), KindBatch, "products.yaml", true, []int{1, 2})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, now, run.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet(t *testing.T) {
	s, mock := newMockStore(t)
	id := "6f1c1d56-3c61-4a43-9c4b-0f1fb0c0a001"
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, kind, subject, success, payload, created_at FROM pipeline_runs WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "subject", "success", "payload", "created_at"}).
			AddRow(id, KindHealth, "", true, []byte(`{"ok":true}`), created))

	run, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, KindHealth, run.Kind)
	assert.JSONEq(t, `{"ok":true}`, string(run.Payload))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissing(t *testing.T) {
	s, mock := newMockStore(t)
	id := "6f1c1d56-3c61-4a43-9c4b-0f1fb0c0a002"

	mock.ExpectQuery("FROM pipeline_runs").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "subject", "success", "payload", "created_at"}))

	_, err := s.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresList(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM pipeline_runs").
		WithArgs(KindProcess, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "subject", "success", "payload", "created_at"}).
			AddRow("a", KindProcess, "tshirt", true, []byte(`{}`), created).
			AddRow("b", KindProcess, "hoodie", false, []byte(`{}`), created.Add(-time.Hour)))

	runs, err := s.List(context.Background(), KindProcess, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "hoodie", runs[1].Subject)
	assert.False(t, runs[1].Success)
	require.NoError(t, mock.ExpectationsWereMet())
}
