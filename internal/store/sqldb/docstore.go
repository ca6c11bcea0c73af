package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/vpsinv/internal/docstore"
)

// Store is a docstore.Store over two tables:
//
//	documents(collection, id, attributes JSON, created_at, updated_at, version)
//	document_index(collection, id, attribute, value)   indexed attributes only
//
// Timestamps are stored as Unix nanoseconds so they sort numerically.
type Store struct {
	db      *sql.DB
	dialect Dialect
	schema  docstore.Schema
	now     func() time.Time
}

var _ docstore.Store = (*Store)(nil)

// NewStore wraps an open, migrated database.
func NewStore(db *sql.DB, d Dialect, schema docstore.Schema) *Store {
	return &Store{
		db:      db,
		dialect: d,
		schema:  schema,
		now:     docstore.Now,
	}
}

const selectDocument = `SELECT d.id, d.attributes, d.created_at, d.updated_at, d.version FROM documents d`

func (s *Store) List(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	if err := s.schema.CheckFilters(collection, filters); err != nil {
		return nil, err
	}

	var q strings.Builder
	q.WriteString(selectDocument)
	q.WriteString(` WHERE d.collection = ?`)
	args := []any{collection}
	for _, f := range filters {
		q.WriteString(` AND EXISTS (SELECT 1 FROM document_index i WHERE i.collection = d.collection AND i.id = d.id AND i.attribute = ? AND i.value = ?)`)
		args = append(args, f.Attribute, f.Value)
	}
	q.WriteString(` ORDER BY d.created_at, d.id`)

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(q.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := []docstore.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	// Equal timestamps from different writers still need a stable order.
	docstore.SortDocuments(docs)
	return docs, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if _, err := s.schema.Indexed(collection); err != nil {
		return docstore.Document{}, err
	}
	return s.get(ctx, s.db, collection, id)
}

func (s *Store) get(ctx context.Context, q DBTX, collection, id string) (docstore.Document, error) {
	row := q.QueryRowContext(ctx,
		s.dialect.Rebind(selectDocument+` WHERE d.collection = ? AND d.id = ?`), collection, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	return doc, err
}

func (s *Store) Create(ctx context.Context, collection, id string, attrs map[string]string) (docstore.Document, error) {
	indexed, err := s.schema.Indexed(collection)
	if err != nil {
		return docstore.Document{}, err
	}
	if id == "" {
		id = docstore.NewID()
	}
	payload, err := json.Marshal(attrsOrEmpty(attrs))
	if err != nil {
		return docstore.Document{}, fmt.Errorf("failed to encode attributes: %w", err)
	}

	now := s.now().UTC()
	doc := docstore.Document{
		ID:         id,
		Attributes: docstore.CopyAttributes(attrs),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}

	err = WithTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		var one int
		err := tx.QueryRowContext(ctx,
			s.dialect.Rebind(`SELECT 1 FROM documents WHERE collection = ? AND id = ?`), collection, id).Scan(&one)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s/%s", docstore.ErrExists, collection, id)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to check document: %w", err)
		}

		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(
			`INSERT INTO documents (collection, id, attributes, created_at, updated_at, version) VALUES (?, ?, ?, ?, ?, ?)`),
			collection, id, string(payload), now.UnixNano(), now.UnixNano(), doc.Version,
		); err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		return s.writeIndex(ctx, tx, collection, id, indexed, attrs)
	})
	if err != nil {
		return docstore.Document{}, err
	}
	return doc, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, attrs map[string]string, ifVersion int64) (docstore.Document, error) {
	indexed, err := s.schema.Indexed(collection)
	if err != nil {
		return docstore.Document{}, err
	}
	payload, err := json.Marshal(attrsOrEmpty(attrs))
	if err != nil {
		return docstore.Document{}, fmt.Errorf("failed to encode attributes: %w", err)
	}

	// Without a precondition the last writer wins: a writer that loses the
	// race against the version predicate re-reads and tries again.
	var doc docstore.Document
	for attempt := 1; ; attempt++ {
		doc, err = s.update(ctx, collection, id, string(payload), indexed, attrs, ifVersion)
		if !errors.Is(err, errLostRace) {
			break
		}
		if ifVersion > 0 || attempt >= maxUpdateAttempts {
			return docstore.Document{}, fmt.Errorf("%w: %s/%s changed concurrently",
				docstore.ErrVersionMismatch, collection, id)
		}
	}
	if err != nil {
		return docstore.Document{}, err
	}
	return doc, nil
}

// maxUpdateAttempts bounds the retries of an unconditional update.
const maxUpdateAttempts = 5

var errLostRace = errors.New("document changed concurrently")

func (s *Store) update(ctx context.Context, collection, id, payload string, indexed []string, attrs map[string]string, ifVersion int64) (docstore.Document, error) {
	var doc docstore.Document
	err := WithTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		current, err := s.get(ctx, tx, collection, id)
		if err != nil {
			return err
		}
		if ifVersion > 0 && current.Version != ifVersion {
			return fmt.Errorf("%w: %s/%s has version %d, expected %d",
				docstore.ErrVersionMismatch, collection, id, current.Version, ifVersion)
		}

		doc = docstore.Document{
			ID:         id,
			Attributes: docstore.CopyAttributes(attrs),
			CreatedAt:  current.CreatedAt,
			UpdatedAt:  docstore.NextUpdate(current.UpdatedAt, s.now().UTC()),
			Version:    current.Version + 1,
		}

		res, err := tx.ExecContext(ctx, s.dialect.Rebind(
			`UPDATE documents SET attributes = ?, updated_at = ?, version = ? WHERE collection = ? AND id = ? AND version = ?`),
			payload, doc.UpdatedAt.UnixNano(), doc.Version, collection, id, current.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errLostRace
		}

		if err := s.deleteIndex(ctx, tx, collection, id); err != nil {
			return err
		}
		return s.writeIndex(ctx, tx, collection, id, indexed, attrs)
	})
	return doc, err
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.schema.Indexed(collection); err != nil {
		return err
	}

	return WithTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx,
			s.dialect.Rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`), collection, id)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
		}
		return s.deleteIndex(ctx, tx, collection, id)
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) writeIndex(ctx context.Context, tx DBTX, collection, id string, indexed []string, attrs map[string]string) error {
	for _, attr := range indexed {
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(
			`INSERT INTO document_index (collection, id, attribute, value) VALUES (?, ?, ?, ?)`),
			collection, id, attr, attrs[attr],
		); err != nil {
			return fmt.Errorf("failed to index %s: %w", attr, err)
		}
	}
	return nil
}

func (s *Store) deleteIndex(ctx context.Context, tx DBTX, collection, id string) error {
	if _, err := tx.ExecContext(ctx,
		s.dialect.Rebind(`DELETE FROM document_index WHERE collection = ? AND id = ?`), collection, id); err != nil {
		return fmt.Errorf("failed to drop index entries: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (docstore.Document, error) {
	var (
		doc                  docstore.Document
		payload              string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&doc.ID, &payload, &createdAt, &updatedAt, &doc.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.Document{}, err
		}
		return docstore.Document{}, fmt.Errorf("failed to scan document: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &doc.Attributes); err != nil {
		return docstore.Document{}, fmt.Errorf("failed to decode attributes of %s: %w", doc.ID, err)
	}
	if doc.Attributes == nil {
		doc.Attributes = map[string]string{}
	}
	doc.CreatedAt = time.Unix(0, createdAt).UTC()
	doc.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return doc, nil
}

func attrsOrEmpty(attrs map[string]string) map[string]string {
	if attrs == nil {
		return map[string]string{}
	}
	return attrs
}
