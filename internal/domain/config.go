package domain

import (
	"fmt"
	"strings"
)

// KeyPrefix namespaces every key the node writes to the log store.
const KeyPrefix = "swarmkb:"

// Store names used by the catalog. Any other name is a user store.
const (
	// DefaultStore holds ingested templates and free-form documents.
	DefaultStore = "dsswres"
	// MetadataStore holds derived metadata records.
	MetadataStore = "kbmetadata"
)

// LocalSource is the provenance tag for results served from this node's snapshot.
const LocalSource = "local"

// MaxStoreNameLength bounds store names.
const MaxStoreNameLength = 128

// ValidateStoreName rejects names that would break key layout.
func ValidateStoreName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: store name is required", ErrInvalidSchema)
	}
	if len(name) > MaxStoreNameLength {
		return fmt.Errorf("%w: store name too long (max %d)", ErrInvalidSchema, MaxStoreNameLength)
	}
	if strings.ContainsAny(name, ":*?[] \t\n") {
		return fmt.Errorf("%w: store name %q contains reserved characters", ErrInvalidSchema, name)
	}
	return nil
}

// DocumentKey is the log-store key a document is materialized under.
func DocumentKey(store, id string) string {
	return KeyPrefix + "doc:" + store + ":" + id
}
