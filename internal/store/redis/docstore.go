package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/vpsinv/internal/docstore"
)

// maxTxRetries bounds optimistic transaction retries when a watched key
// changes under us.
const maxTxRetries = 5

// Store is a docstore.Store keeping each document in a Redis hash.
//
// Layout:
//
//	vpsinv:doc:<collection>:<id>               hash: attributes + $createdAt, $updatedAt, $version
//	vpsinv:docs:<collection>                   set of ids
//	vpsinv:idx:<collection>:<attr>:<value>     set of ids, for indexed attributes only
type Store struct {
	client *redis.Client
	schema docstore.Schema
	now    func() time.Time
}

var _ docstore.Store = (*Store)(nil)

// NewStore creates a new Redis document store
func NewStore(client *redis.Client, schema docstore.Schema) *Store {
	return &Store{
		client: client,
		schema: schema,
		now:    docstore.Now,
	}
}

// List returns the documents of a collection matching every filter
func (s *Store) List(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	if err := s.schema.CheckFilters(collection, filters); err != nil {
		return nil, err
	}

	ids, err := s.matchingIDs(ctx, collection, filters)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []docstore.Document{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, DocumentKey(collection, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	docs := make([]docstore.Document, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Deleted between the index read and the fetch
			continue
		}
		doc, err := decodeDocument(ids[i], fields)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	docstore.SortDocuments(docs)
	return docs, nil
}

func (s *Store) matchingIDs(ctx context.Context, collection string, filters []docstore.Filter) ([]string, error) {
	var (
		ids []string
		err error
	)
	switch len(filters) {
	case 0:
		ids, err = s.client.SMembers(ctx, CollectionKey(collection)).Result()
	case 1:
		f := filters[0]
		ids, err = s.client.SMembers(ctx, IndexKey(collection, f.Attribute, f.Value)).Result()
	default:
		keys := make([]string, len(filters))
		for i, f := range filters {
			keys[i] = IndexKey(collection, f.Attribute, f.Value)
		}
		ids, err = s.client.SInter(ctx, keys...).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document IDs: %w", err)
	}
	return ids, nil
}

// Get retrieves one document
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if _, err := s.schema.Indexed(collection); err != nil {
		return docstore.Document{}, err
	}

	fields, err := s.client.HGetAll(ctx, DocumentKey(collection, id)).Result()
	if err != nil {
		return docstore.Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	if len(fields) == 0 {
		return docstore.Document{}, fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
	}
	return decodeDocument(id, fields)
}

// Create stores a new document, assigning an id when none is given
func (s *Store) Create(ctx context.Context, collection, id string, attrs map[string]string) (docstore.Document, error) {
	indexed, err := s.schema.Indexed(collection)
	if err != nil {
		return docstore.Document{}, err
	}
	if err := checkAttributes(attrs); err != nil {
		return docstore.Document{}, err
	}
	if id == "" {
		id = docstore.NewID()
	}

	now := s.now().UTC()
	doc := docstore.Document{
		ID:         id,
		Attributes: docstore.CopyAttributes(attrs),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	key := DocumentKey(collection, id)

	err = s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to check document: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s/%s", docstore.ErrExists, collection, id)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeDocument(doc))
			pipe.SAdd(ctx, CollectionKey(collection), id)
			for _, attr := range indexed {
				pipe.SAdd(ctx, IndexKey(collection, attr, attrs[attr]), id)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return docstore.Document{}, wrapTxError("save document", err)
	}

	return doc, nil
}

// Update replaces the attributes of a document, optionally only if its
// version still equals ifVersion
func (s *Store) Update(ctx context.Context, collection, id string, attrs map[string]string, ifVersion int64) (docstore.Document, error) {
	indexed, err := s.schema.Indexed(collection)
	if err != nil {
		return docstore.Document{}, err
	}
	if err := checkAttributes(attrs); err != nil {
		return docstore.Document{}, err
	}

	key := DocumentKey(collection, id)
	var doc docstore.Document

	err = s.watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to get document: %w", err)
		}
		if len(fields) == 0 {
			return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
		}
		current, err := decodeDocument(id, fields)
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

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, encodeDocument(doc))
			for _, attr := range indexed {
				oldValue, newValue := current.Attr(attr), attrs[attr]
				if oldValue != newValue {
					pipe.SRem(ctx, IndexKey(collection, attr, oldValue), id)
				}
				pipe.SAdd(ctx, IndexKey(collection, attr, newValue), id)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return docstore.Document{}, wrapTxError("update document", err)
	}

	return doc, nil
}

// Delete removes a document and its index entries
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	indexed, err := s.schema.Indexed(collection)
	if err != nil {
		return err
	}

	key := DocumentKey(collection, id)

	err = s.watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to get document: %w", err)
		}
		if len(fields) == 0 {
			return fmt.Errorf("%w: %s/%s", docstore.ErrNotFound, collection, id)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, CollectionKey(collection), id)
			for _, attr := range indexed {
				pipe.SRem(ctx, IndexKey(collection, attr, fields[attr]), id)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return wrapTxError("delete document", err)
	}

	return nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.client.Close()
}

// watch runs fn in an optimistic transaction, retrying when a watched key
// was modified concurrently.
func (s *Store) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func wrapTxError(action string, err error) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound),
		errors.Is(err, docstore.ErrExists),
		errors.Is(err, docstore.ErrVersionMismatch):
		return err
	default:
		return fmt.Errorf("failed to %s: %w", action, err)
	}
}

func checkAttributes(attrs map[string]string) error {
	for name := range attrs {
		if isReservedField(name) {
			return fmt.Errorf("attribute name %q is reserved", name)
		}
	}
	return nil
}

func encodeDocument(doc docstore.Document) map[string]interface{} {
	fields := make(map[string]interface{}, len(doc.Attributes)+3)
	for k, v := range doc.Attributes {
		fields[k] = v
	}
	fields[FieldCreatedAt] = doc.CreatedAt.Format(time.RFC3339Nano)
	fields[FieldUpdatedAt] = doc.UpdatedAt.Format(time.RFC3339Nano)
	fields[FieldVersion] = strconv.FormatInt(doc.Version, 10)
	return fields
}

func decodeDocument(id string, fields map[string]string) (docstore.Document, error) {
	doc := docstore.Document{
		ID:         id,
		Attributes: make(map[string]string, len(fields)),
	}
	for k, v := range fields {
		if !isReservedField(k) {
			doc.Attributes[k] = v
		}
	}

	var err error
	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, fields[FieldCreatedAt]); err != nil {
		return docstore.Document{}, fmt.Errorf("failed to parse %s of %s: %w", FieldCreatedAt, id, err)
	}
	if doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields[FieldUpdatedAt]); err != nil {
		return docstore.Document{}, fmt.Errorf("failed to parse %s of %s: %w", FieldUpdatedAt, id, err)
	}
	if doc.Version, err = strconv.ParseInt(fields[FieldVersion], 10, 64); err != nil {
		return docstore.Document{}, fmt.Errorf("failed to parse %s of %s: %w", FieldVersion, id, err)
	}
	return doc, nil
}
