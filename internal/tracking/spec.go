package tracking

import (
	"sort"

	"github.com/persistorai/doctrail/internal/models"
)

// Spec is the resolved, immutable tracking configuration of one type.
// Build it with Resolve or Registry.Register.
type Spec struct {
	typeName string
	scope    string

	fields     map[string]struct{}
	dynamic    map[string]struct{}
	embedsOne  map[string][]string
	embedsMany map[string][]string
	except     map[string]struct{}
	format     map[string]Format

	modifierField    string
	versionField     string
	modifierRequired bool
	trackCreate      bool
	trackUpdate      bool
	trackDestroy     bool
	trackBlank       bool

	ifFields     []string
	unlessFields []string
	ifFunc       Predicate
	unlessFunc   Predicate
}

// TypeName returns the tracked type.
func (s *Spec) TypeName() string { return s.typeName }

// Scope returns the grouping key records of this type are written under.
func (s *Spec) Scope() string { return s.scope }

// VersionField returns the attribute holding the entity's version counter.
func (s *Spec) VersionField() string { return s.versionField }

// ModifierField returns the attribute holding the last modifier.
func (s *Spec) ModifierField() string { return s.modifierField }

// ModifierRequired reports whether a record must carry a modifier.
func (s *Spec) ModifierRequired() bool { return s.modifierRequired }

// TrackBlankChanges reports whether updates with an empty diff are recorded.
func (s *Spec) TrackBlankChanges() bool { return s.trackBlank }

// TracksAction reports whether events of action a are recorded.
func (s *Spec) TracksAction(a models.Action) bool {
	switch a {
	case models.ActionCreate:
		return s.trackCreate
	case models.ActionUpdate:
		return s.trackUpdate
	case models.ActionDestroy:
		return s.trackDestroy
	}

	return false
}

// IsTrackedField reports whether name is a tracked top-level field, static or dynamic.
func (s *Spec) IsTrackedField(name string) bool {
	if _, ok := s.fields[name]; ok {
		return true
	}

	_, ok := s.dynamic[name]

	return ok
}

// TrackedFields returns the static and dynamic tracked fields, sorted.
func (s *Spec) TrackedFields() []string {
	out := make([]string, 0, len(s.fields)+len(s.dynamic))
	for f := range s.fields {
		out = append(out, f)
	}

	for f := range s.dynamic {
		out = append(out, f)
	}

	sort.Strings(out)

	return out
}

// EmbeddedOne returns the allow-list of a tracked embedded-one relation.
func (s *Spec) EmbeddedOne(relation string) ([]string, bool) {
	l, ok := s.embedsOne[relation]

	return l, ok
}

// EmbeddedMany returns the allow-list of a tracked embedded-many relation.
func (s *Spec) EmbeddedMany(relation string) ([]string, bool) {
	l, ok := s.embedsMany[relation]

	return l, ok
}

// EmbeddedOneRelations returns the tracked embedded-one relations, sorted.
func (s *Spec) EmbeddedOneRelations() []string { return sortedKeys(s.embedsOne) }

// EmbeddedManyRelations returns the tracked embedded-many relations, sorted.
func (s *Spec) EmbeddedManyRelations() []string { return sortedKeys(s.embedsMany) }

// Tracks reports whether key is a tracked field or relation.
func (s *Spec) Tracks(key string) bool {
	if s.IsTrackedField(key) {
		return true
	}

	if _, ok := s.embedsOne[key]; ok {
		return true
	}

	_, ok := s.embedsMany[key]

	return ok
}

// FormatFor returns the display rule for a field or "relation.attr" key.
func (s *Spec) FormatFor(key string) (Format, bool) {
	f, ok := s.format[key]

	return f, ok
}

// ShouldRecord evaluates the if/unless conditions against e.
func (s *Spec) ShouldRecord(e *models.Entity) bool {
	for _, f := range s.ifFields {
		if !truthy(e.Attributes[f]) {
			return false
		}
	}

	for _, f := range s.unlessFields {
		if truthy(e.Attributes[f]) {
			return false
		}
	}

	if s.ifFunc != nil && !s.ifFunc(e) {
		return false
	}

	if s.unlessFunc != nil && s.unlessFunc(e) {
		return false
	}

	return true
}

// Prepared is a read-only view of a Spec for tooling.
type Prepared struct {
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

// Prepared returns a copy of the resolved configuration.
func (s *Spec) Prepared() Prepared {
	p := Prepared{
		Type:              s.typeName,
		Scope:             s.scope,
		Fields:            setKeys(s.fields),
		DynamicFields:     setKeys(s.dynamic),
		EmbedsOne:         copyLists(s.embedsOne),
		EmbedsMany:        copyLists(s.embedsMany),
		Except:            setKeys(s.except),
		ModifierField:     s.modifierField,
		VersionField:      s.versionField,
		ModifierRequired:  s.modifierRequired,
		TrackCreate:       s.trackCreate,
		TrackUpdate:       s.trackUpdate,
		TrackDestroy:      s.trackDestroy,
		TrackBlankChanges: s.trackBlank,
	}

	if len(s.format) > 0 {
		p.Format = make(map[string]string, len(s.format))
		for k, f := range s.format {
			p.Format[k] = f.String()
		}
	}

	return p
}

func truthy(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}

	return !models.IsBlank(v)
}

func setKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

func sortedKeys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

func copyLists(m map[string][]string) map[string][]string {
	if len(m) == 0 {
		return nil
	}

	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}

	return out
}
