// Package models defines the data types shared by the tracking core, the
// stores and the API layer.
package models

import "time"

// Reserved attribute keys present on every document and embedded child.
const (
	IDField   = "_id"
	TypeField = "_type"
)

// Document is a root entity as persisted by a store. Embedded children live
// inside Attributes as maps carrying their own _id.
type Document struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Revision   int64          `json:"revision"`
	Attributes map[string]any `json:"attributes"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}

	out := *d
	out.Attributes = CloneMap(d.Attributes)

	return &out
}

// SaveDocumentRequest is the payload for creating or saving a document.
type SaveDocumentRequest struct {
	ID         string         `json:"id,omitempty"`
	Revision   int64          `json:"revision,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

// Validate checks the request shape.
func (r *SaveDocumentRequest) Validate() error {
	if r.Attributes == nil {
		r.Attributes = map[string]any{}
	}

	if len(r.ID) > 255 {
		return ErrFieldTooLong("id", 255)
	}

	return nil
}

// FieldChange is a raw before/after pair from the host's dirty tracking.
type FieldChange struct {
	Before any
	After  any
}

// Entity is a tracked entity as seen by the diff builder and assembler: a
// root document or an embedded child addressed by Path and Relation.
type Entity struct {
	Type       string
	ID         string
	Attributes map[string]any
	Changes    map[string]FieldChange

	// Path holds the links of the entity's ancestors, root first.
	Path AssociationChain
	// Relation is the embedding relation name; empty for roots.
	Relation string
}

// IsEmbedded reports whether the entity lives inside a parent document.
func (e *Entity) IsEmbedded() bool {
	return e.Relation != ""
}

// AssociationChain returns the full chain ending at the entity itself.
func (e *Entity) AssociationChain() AssociationChain {
	name := e.Type
	if e.IsEmbedded() {
		name = e.Relation
	}

	chain := make(AssociationChain, 0, len(e.Path)+1)
	chain = append(chain, e.Path...)

	return append(chain, ChainLink{Name: name, ID: e.ID})
}

// CommitOp is the document write carried by a Commit.
type CommitOp string

const (
	OpPut    CommitOp = "put"
	OpDelete CommitOp = "delete"
)

// Commit is one atomic unit of work: the document write guarded by an
// optimistic revision check, plus every history record it produced.
// ExpectedRevision 0 with OpPut means the document must not exist yet.
type Commit struct {
	Op               CommitOp
	Document         *Document
	ExpectedRevision int64
	Records          []*HistoryRecord
}
