package pipeline

import (
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"strings"
)

// Content-addressed ID prefixes. Identical content always maps to the
// same ID, which is what makes ingestion idempotent.
const (
	docIDPrefix      = "doc-"
	chunkIDPrefix    = "chunk-"
	entityIDPrefix   = "entity-"
	relationIDPrefix = "relation-"
	indexIDPrefix    = "index-"
)

func hashOf(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // content addressing, not security
	return hex.EncodeToString(sum[:])
}

// DocID derives the content-addressed ID for a document.
func DocID(content string) string {
	return docIDPrefix + hashOf(content)
}

// ChunkID derives the content-addressed ID for a chunk of text.
func ChunkID(content string) string {
	return chunkIDPrefix + hashOf(content)
}

// EntityID derives the ID for an entity name. Names are case-folded so
// mentions across chunks converge on one node.
func EntityID(name string) string {
	return entityIDPrefix + hashOf(strings.ToLower(strings.TrimSpace(name)))
}

// RelationID derives the ID for a relation between two entities. The
// endpoint order is significant.
func RelationID(sourceName, targetName string) string {
	return relationIDPrefix + hashOf(
		strings.ToLower(strings.TrimSpace(sourceName))+"\x00"+
			strings.ToLower(strings.TrimSpace(targetName)))
}

// IndexID derives the key of a chunk's extraction index.
func IndexID(chunkID string) string {
	return indexIDPrefix + strings.TrimPrefix(chunkID, chunkIDPrefix)
}
