package redis

import "strings"

const (
	// KeyPrefixDocument is the prefix for document hashes
	KeyPrefixDocument = "vpsinv:doc:"
	// KeyPrefixCollection is the prefix for the set of ids in a collection
	KeyPrefixCollection = "vpsinv:docs:"
	// KeyPrefixIndex is the prefix for attribute index sets
	KeyPrefixIndex = "vpsinv:idx:"
)

// Reserved hash fields holding store bookkeeping next to the attributes.
const (
	FieldCreatedAt = "$createdAt"
	FieldUpdatedAt = "$updatedAt"
	FieldVersion   = "$version"
)

// DocumentKey returns the Redis key of a document hash
func DocumentKey(collection, id string) string {
	return KeyPrefixDocument + collection + ":" + id
}

// CollectionKey returns the key of the set of all ids in a collection
func CollectionKey(collection string) string {
	return KeyPrefixCollection + collection
}

// IndexKey returns the key of the set of ids whose attribute equals value
func IndexKey(collection, attribute, value string) string {
	return KeyPrefixIndex + collection + ":" + attribute + ":" + value
}

func isReservedField(name string) bool {
	return strings.HasPrefix(name, "$")
}
