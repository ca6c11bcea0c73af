package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/vpsinv/internal/docstore"
	"github.com/MrSnakeDoc/vpsinv/internal/docstore/docstoretest"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, SQLite, filepath.Join(t.TempDir(), "vpsinv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, SQLite))
	return db
}

func TestSQLiteConformance(t *testing.T) {
	docstoretest.Run(t, func(t *testing.T) docstore.Store {
		return NewStore(openSQLite(t), SQLite, docstore.DefaultSchema)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openSQLite(t)
	assert.NoError(t, Migrate(context.Background(), db, SQLite))
}

func TestMigrateError(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("boom")
	}

	err := Migrate(context.Background(), nil, SQLite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply migrations")
}

func TestRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{"sqlite untouched", SQLite, "a = ? AND b = ?", "a = ? AND b = ?"},
		{"postgres numbered", Postgres, "a = ? AND b = ?", "a = $1 AND b = $2"},
		{"no placeholders", Postgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.Rebind(tt.in))
		})
	}
}

func TestDialectByName(t *testing.T) {
	d, err := DialectByName("postgres")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	d, err = DialectByName("sqlite")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	_, err = DialectByName("oracle")
	assert.Error(t, err)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, Postgres, docstore.DefaultSchema), mock
}

func TestListQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM documents d WHERE d\.collection = \$1 AND EXISTS .* i\.attribute = \$2 AND i\.value = \$3`).
		WithArgs("servers", "userId", "u1").
		WillReturnError(errors.New("connection reset"))

	_, err := s.List(context.Background(), docstore.CollectionServers, docstore.Equal("userId", "u1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list documents")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCorruptAttributes(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM documents d`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "attributes", "created_at", "updated_at", "version"}).
			AddRow("srv-1", "{not json", int64(1), int64(1), int64(1)))

	_, err := s.List(context.Background(), docstore.CollectionServers)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode attributes of srv-1")
}

func TestCreateRollsBackOnInsertError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM documents`).
		WithArgs("servers", "srv-1").
		WillReturnRows(sqlmock.NewRows([]string{"one"}))
	mock.ExpectExec(`INSERT INTO documents`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.Create(context.Background(), docstore.CollectionServers, "srv-1", map[string]string{"userId": "u1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert document")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func documentRows(version int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "attributes", "created_at", "updated_at", "version"}).
		AddRow("srv-1", `{"userId":"u1"}`, int64(1), int64(1), version)
}

// expectLostUpdate queues one update attempt that reads version and then
// finds the row already bumped by another writer.
func expectLostUpdate(mock sqlmock.Sqlmock, version int64) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM documents d WHERE d\.collection = \$1 AND d\.id = \$2`).
		WithArgs("servers", "srv-1").
		WillReturnRows(documentRows(version))
	mock.ExpectExec(`UPDATE documents SET .* WHERE collection = \$4 AND id = \$5 AND version = \$6`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
}

func TestUpdateWithVersionLosesRace(t *testing.T) {
	s, mock := newMockStore(t)
	expectLostUpdate(mock, 3)

	_, err := s.Update(context.Background(), docstore.CollectionServers, "srv-1", map[string]string{"userId": "u1"}, 3)
	assert.ErrorIs(t, err, docstore.ErrVersionMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWithoutVersionRetriesLostRace(t *testing.T) {
	s, mock := newMockStore(t)
	expectLostUpdate(mock, 3)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM documents d WHERE d\.collection = \$1 AND d\.id = \$2`).
		WithArgs("servers", "srv-1").
		WillReturnRows(documentRows(4))
	mock.ExpectExec(`UPDATE documents SET .* AND version = \$6`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM document_index`).
		WithArgs("servers", "srv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO document_index`).
		WithArgs("servers", "srv-1", "userId", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc, err := s.Update(context.Background(), docstore.CollectionServers, "srv-1", map[string]string{"userId": "u1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), doc.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateWithoutVersionGivesUp(t *testing.T) {
	s, mock := newMockStore(t)
	for i := 0; i < maxUpdateAttempts; i++ {
		expectLostUpdate(mock, int64(3+i))
	}

	_, err := s.Update(context.Background(), docstore.CollectionServers, "srv-1", map[string]string{"userId": "u1"}, 0)
	assert.ErrorIs(t, err, docstore.ErrVersionMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCommitsIndexCleanup(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM documents WHERE collection = \$1 AND id = \$2`).
		WithArgs("sessions", "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM document_index`).
		WithArgs("sessions", "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Delete(context.Background(), docstore.CollectionSessions, "sess-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
