package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action is the lifecycle event a history record describes.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDestroy Action = "destroy"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDestroy:
		return true
	}

	return false
}

// ParseAction converts s into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", &ValidationError{Type: "action", Reason: fmt.Sprintf("unknown action %q", s)}
	}

	return a, nil
}

// ChainLink is one hop of an association chain. Link 0 names a root type;
// later links name the embedded relation used to reach the child.
type ChainLink struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// AssociationChain is a root-first path to a possibly embedded entity.
type AssociationChain []ChainLink

// Root returns the first link.
func (c AssociationChain) Root() ChainLink {
	if len(c) == 0 {
		return ChainLink{}
	}

	return c[0]
}

// Last returns the link describing the entity itself.
func (c AssociationChain) Last() ChainLink {
	if len(c) == 0 {
		return ChainLink{}
	}

	return c[len(c)-1]
}

// Parent returns the chain without its last link.
func (c AssociationChain) Parent() AssociationChain {
	if len(c) == 0 {
		return nil
	}

	return c[:len(c)-1]
}

// Path encodes the chain so that a link prefix is also a string prefix.
func (c AssociationChain) Path() string {
	var b strings.Builder

	for _, l := range c {
		b.WriteString(url.QueryEscape(l.Name))
		b.WriteByte(':')
		b.WriteString(url.QueryEscape(l.ID))
		b.WriteByte('/')
	}

	return b.String()
}

// String renders the chain in the Type:id/relation:id form.
func (c AssociationChain) String() string {
	return strings.TrimSuffix(c.Path(), "/")
}

// HasPrefix reports whether prefix is a leading sub-chain of c.
func (c AssociationChain) HasPrefix(prefix AssociationChain) bool {
	if len(prefix) > len(c) {
		return false
	}

	for i, l := range prefix {
		if c[i] != l {
			return false
		}
	}

	return true
}

// ParseChain parses the Type:id/relation:id form produced by String.
func ParseChain(s string) (AssociationChain, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, "/")
	chain := make(AssociationChain, 0, len(parts))

	for _, p := range parts {
		name, id, ok := strings.Cut(p, ":")
		if !ok || name == "" || id == "" {
			return nil, &ValidationError{Type: "chain", Reason: fmt.Sprintf("malformed link %q", p)}
		}

		n, err := url.QueryUnescape(name)
		if err != nil {
			return nil, &ValidationError{Type: "chain", Reason: err.Error()}
		}

		i, err := url.QueryUnescape(id)
		if err != nil {
			return nil, &ValidationError{Type: "chain", Reason: err.Error()}
		}

		chain = append(chain, ChainLink{Name: n, ID: i})
	}

	return chain, nil
}

// HistoryRecord is an immutable record of one tracked lifecycle event.
type HistoryRecord struct {
	ID        uuid.UUID        `json:"id"`
	Scope     string           `json:"scope"`
	Type      string           `json:"type"`
	Chain     AssociationChain `json:"association_chain"`
	Action    Action           `json:"action"`
	Version   int64            `json:"version"`
	Original  map[string]any   `json:"original"`
	Modified  map[string]any   `json:"modified"`
	Modifier  string           `json:"modifier,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// HistoryQuery holds filters for history lookups.
type HistoryQuery struct {
	Scope  string
	Chain  AssociationChain // prefix match
	Type   string
	Action Action
	Limit  int
	Offset int
}

// Matches reports whether rec passes the query's filters.
func (q HistoryQuery) Matches(rec *HistoryRecord) bool {
	if q.Scope != "" && rec.Scope != q.Scope {
		return false
	}

	if q.Type != "" && rec.Type != q.Type {
		return false
	}

	if q.Action != "" && rec.Action != q.Action {
		return false
	}

	return rec.Chain.HasPrefix(q.Chain)
}

// FromTo is one entry of a record's tracked changes.
type FromTo struct {
	From any `json:"from,omitempty"`
	To   any `json:"to,omitempty"`
}

// ArrayDelta lists the members added to and removed from a list field.
type ArrayDelta struct {
	Add    []any `json:"add,omitempty"`
	Remove []any `json:"remove,omitempty"`
}

// EditSummary categorizes a record's tracked changes.
type EditSummary struct {
	Added    map[string]any        `json:"add,omitempty"`
	Removed  map[string]any        `json:"remove,omitempty"`
	Modified map[string]FromTo     `json:"modify,omitempty"`
	Array    map[string]ArrayDelta `json:"array,omitempty"`
}

// HistoryView is a record plus its read-only projections.
type HistoryView struct {
	HistoryRecord
	TrackedChanges map[string]FromTo `json:"tracked_changes"`
	EditSummary    EditSummary       `json:"edit_summary"`
	Affected       map[string]any    `json:"affected"`
}

// NoticeType is the event type announcing a committed history record.
const NoticeType = "history.recorded"

// HistoryNotice is the compact announcement of a committed record sent to
// live listeners. Listeners fetch the full record by ID.
type HistoryNotice struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Scope   string `json:"scope"`
	Action  Action `json:"action"`
	Chain   string `json:"chain"`
	Version int64  `json:"version"`
}

// NoticeOf returns the notice announcing rec.
func NoticeOf(rec *HistoryRecord) HistoryNotice {
	return HistoryNotice{
		Type:    NoticeType,
		ID:      rec.ID.String(),
		Scope:   rec.Scope,
		Action:  rec.Action,
		Chain:   rec.Chain.String(),
		Version: rec.Version,
	}
}
