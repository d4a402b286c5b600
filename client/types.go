package client

import (
	"time"
)

// Document is a tracked root document.
type Document struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Revision   int64          `json:"revision"`
	Attributes map[string]any `json:"attributes"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// SaveDocumentRequest is the payload for creating or saving a document.
// Revision must carry the revision last read; a stale value yields a conflict.
type SaveDocumentRequest struct {
	ID         string         `json:"id,omitempty"`
	Revision   int64          `json:"revision,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

// ChainLink is one hop of an association chain.
type ChainLink struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// FromTo is one tracked change.
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

// HistoryRecord is one audit entry together with its projections.
type HistoryRecord struct {
	ID             string            `json:"id"`
	Scope          string            `json:"scope"`
	Type           string            `json:"type"`
	Chain          []ChainLink       `json:"association_chain"`
	Action         string            `json:"action"`
	Version        int64             `json:"version"`
	Original       map[string]any    `json:"original"`
	Modified       map[string]any    `json:"modified"`
	Modifier       string            `json:"modifier,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	TrackedChanges map[string]FromTo `json:"tracked_changes"`
	EditSummary    EditSummary       `json:"edit_summary"`
	Affected       map[string]any    `json:"affected"`
}

// ChainString renders the record's chain as "Type:id/relation:id".
func (r *HistoryRecord) ChainString() string {
	s := ""
	for i, l := range r.Chain {
		if i > 0 {
			s += "/"
		}
		s += l.Name + ":" + l.ID
	}
	return s
}

// HistoryListOptions holds filters for history lookups.
type HistoryListOptions struct {
	Scope  string
	Chain  string // "Type:id/relation:id" prefix
	Type   string
	Action string
	Limit  int
	Offset int
}

// TrackingSpec is the resolved tracking configuration of a type.
type TrackingSpec struct {
	Type              string              `json:"type"`
	Scope             string              `json:"scope"`
	Fields            []string            `json:"fields"`
	DynamicFields     []string            `json:"dynamic_fields,omitempty"`
	EmbedsOne         map[string][]string `json:"embeds_one,omitempty"`
	EmbedsMany        map[string][]string `json:"embeds_many,omitempty"`
	Except            []string            `json:"except"`
	ModifierField     string              `json:"modifier_field"`
	VersionField      string              `json:"version_field"`
	ModifierRequired  bool                `json:"modifier_required"`
	TrackCreate       bool                `json:"track_create"`
	TrackUpdate       bool                `json:"track_update"`
	TrackDestroy      bool                `json:"track_destroy"`
	TrackBlankChanges bool                `json:"track_blank_changes"`
	Format            map[string]string   `json:"format,omitempty"`
}

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Backend       string  `json:"backend"`
	Storage       string  `json:"storage"`
	FeedClients   int     `json:"feed_clients"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ReadinessResponse is returned by the readiness endpoint.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ExportResult is a rendered history export.
type ExportResult struct {
	Filename    string
	ContentType string
	Rows        int
	Truncated   bool
	Data        []byte
}
