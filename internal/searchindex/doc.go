// Package searchindex implements a local on-disk inverted index over
// indexed messages: a custom posting-list store (no pack repo reaches
// for a Lucene/tantivy/bleve analog anywhere, see DESIGN.md) with
// edge-n-gram prefix fields, a fast-access created_at field, and an
// advisory background segment-merge policy.
package searchindex

// Document is one row of the schema: a (conversation, message) pair with
// its searchable and stored fields.
type Document struct {
	ID                string
	Agent             string
	Workspace         string
	WorkspaceOriginal string
	SourcePath        string
	MsgIdx            int
	CreatedAt         int64
	Title             string
	Content           string
	Preview           string
	SourceID          string
	OriginKind        string
	OriginHost        string

	// Deleted marks a tombstone written to a segment to shadow an
	// earlier segment's record for the same ID; never set on a document
	// returned from Search.
	Deleted bool
}

// previewLen caps the stored preview excerpt, per the schema's ~400-char
// preview field.
const previewLen = 400

// BuildPreview truncates content to previewLen runes for the stored
// preview field.
func BuildPreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLen {
		return content
	}
	return string(runes[:previewLen])
}
