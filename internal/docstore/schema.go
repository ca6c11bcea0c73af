package docstore

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Collection names used by the application.
const (
	CollectionServers  = "servers"
	CollectionUsers    = "users"
	CollectionSessions = "sessions"
)

// Schema lists, per collection, the attributes that may be used in filters.
type Schema map[string][]string

// DefaultSchema is the schema of every collection the application writes.
var DefaultSchema = Schema{
	CollectionServers:  {"userId"},
	CollectionUsers:    {"email"},
	CollectionSessions: {"userId"},
}

// Indexed returns the indexed attributes of collection.
func (s Schema) Indexed(collection string) ([]string, error) {
	attrs, ok := s[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return attrs, nil
}

// CheckFilters verifies collection exists and that every filter targets an
// indexed attribute.
func (s Schema) CheckFilters(collection string, filters []Filter) error {
	indexed, err := s.Indexed(collection)
	if err != nil {
		return err
	}
	for _, f := range filters {
		if !slices.Contains(indexed, f.Attribute) {
			return fmt.Errorf("%w: %s.%s", ErrUnindexed, collection, f.Attribute)
		}
	}
	return nil
}

// NewID returns a fresh document id.
func NewID() string {
	return uuid.NewString()
}

// Now returns the current instant in UTC, which is how every backend stamps
// documents.
func Now() time.Time {
	return time.Now().UTC()
}

// NextUpdate returns the UpdatedAt to stamp on a document last updated at
// prev. The result never moves backwards, even if the wall clock does.
func NextUpdate(prev, now time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}

// CopyAttributes returns a copy of attrs that callers may keep.
func CopyAttributes(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// SortDocuments orders docs by CreatedAt, then ID.
func SortDocuments(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}

// MatchesAll reports whether doc satisfies every filter.
func MatchesAll(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if doc.Attr(f.Attribute) != f.Value {
			return false
		}
	}
	return true
}
