// Package schema describes the document types the tracker knows about:
// declared fields, aliases, embedded relations, localized fields and the
// soft-delete convention.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/persistorai/doctrail/internal/models"
)

// DefaultParanoiaField is the soft-delete marker used when a type does not
// configure one.
const DefaultParanoiaField = "deleted_at"

// localizedSuffix is appended to a localized field's name to form its storage key.
const localizedSuffix = "_translations"

// Field is a statically declared attribute.
type Field struct {
	Name      string `mapstructure:"name" json:"name"`
	Alias     string `mapstructure:"alias" json:"alias,omitempty"`
	Localized bool   `mapstructure:"localized" json:"localized,omitempty"`
	Required  bool   `mapstructure:"required" json:"required,omitempty"`
}

// Type is the reflection surface of one document or embedded type.
type Type struct {
	Name       string            `mapstructure:"name" json:"name"`
	Fields     []Field           `mapstructure:"fields" json:"fields"`
	Dynamic    bool              `mapstructure:"dynamic" json:"dynamic,omitempty"`
	EmbedsOne  map[string]string `mapstructure:"embeds_one" json:"embeds_one,omitempty"`
	EmbedsMany map[string]string `mapstructure:"embeds_many" json:"embeds_many,omitempty"`
	Embedded   bool              `mapstructure:"embedded" json:"embedded,omitempty"`

	// Paranoia names the soft-delete field. Empty means DefaultParanoiaField;
	// "-" disables soft-delete detection.
	Paranoia string `mapstructure:"paranoia" json:"paranoia,omitempty"`

	byName  map[string]*Field
	byAlias map[string]string
}

func (t *Type) index() {
	t.byName = make(map[string]*Field, len(t.Fields))
	t.byAlias = make(map[string]string, len(t.Fields))

	for i := range t.Fields {
		f := &t.Fields[i]
		t.byName[f.Name] = f

		if f.Alias != "" {
			t.byAlias[f.Alias] = f.Name
		}

		if f.Localized {
			t.byAlias[f.Name+localizedSuffix] = f.Name
		}
	}
}

// DeclaredFields returns the canonical names of every declared field, sorted.
func (t *Type) DeclaredFields() []string {
	out := make([]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		out = append(out, f.Name)
	}

	sort.Strings(out)

	return out
}

// IsDynamic reports whether the type accepts undeclared attributes.
func (t *Type) IsDynamic() bool { return t.Dynamic }

// EmbeddedOneRelations returns the embedded-one relation names, sorted.
func (t *Type) EmbeddedOneRelations() []string { return sortedKeys(t.EmbedsOne) }

// EmbeddedManyRelations returns the embedded-many relation names, sorted.
func (t *Type) EmbeddedManyRelations() []string { return sortedKeys(t.EmbedsMany) }

// IsEmbeddedOne reports whether name is an embedded-one relation.
func (t *Type) IsEmbeddedOne(name string) bool {
	_, ok := t.EmbedsOne[name]

	return ok
}

// IsEmbeddedMany reports whether name is an embedded-many relation.
func (t *Type) IsEmbeddedMany(name string) bool {
	_, ok := t.EmbedsMany[name]

	return ok
}

// IsRelation reports whether name is any embedded relation.
func (t *Type) IsRelation(name string) bool {
	return t.IsEmbeddedOne(name) || t.IsEmbeddedMany(name)
}

// RelatedTypeName returns the type embedded under relation.
func (t *Type) RelatedTypeName(relation string) (string, bool) {
	if n, ok := t.EmbedsOne[relation]; ok {
		return n, true
	}

	n, ok := t.EmbedsMany[relation]

	return n, ok
}

// HasField reports whether name is a declared field.
func (t *Type) HasField(name string) bool {
	_, ok := t.byName[name]

	return ok
}

// CanonicalField maps a name, alias or localized storage key to the declared
// field name. Undeclared names come back unchanged with ok=false.
func (t *Type) CanonicalField(name string) (string, bool) {
	if _, ok := t.byName[name]; ok {
		return name, true
	}

	if canon, ok := t.byAlias[name]; ok {
		return canon, true
	}

	return name, false
}

// LocalizedFields returns the names of localized fields, sorted.
func (t *Type) LocalizedFields() []string {
	var out []string

	for _, f := range t.Fields {
		if f.Localized {
			out = append(out, f.Name)
		}
	}

	sort.Strings(out)

	return out
}

// StorageKey returns the attribute key a canonical field is stored under.
func (t *Type) StorageKey(field string) string {
	if f, ok := t.byName[field]; ok && f.Localized {
		return field + localizedSuffix
	}

	return field
}

// ParanoiaField returns the soft-delete field name, or "" when disabled.
func (t *Type) ParanoiaField() string {
	switch t.Paranoia {
	case "":
		return DefaultParanoiaField
	case "-":
		return ""
	}

	return t.Paranoia
}

// IsSoftDeleted reports whether attrs carry a non-blank paranoia field.
func (t *Type) IsSoftDeleted(attrs map[string]any) bool {
	field := t.ParanoiaField()
	if field == "" || attrs == nil {
		return false
	}

	return !models.IsBlank(attrs[field])
}

// Validate checks required fields on attrs (one level, not children).
func (t *Type) Validate(attrs map[string]any) error {
	var missing []string

	for _, f := range t.Fields {
		if f.Required && models.IsBlank(attrs[t.StorageKey(f.Name)]) {
			missing = append(missing, f.Name)
		}
	}

	if len(missing) > 0 {
		return &models.ValidationError{Type: t.Name, Fields: missing, Reason: "required"}
	}

	return nil
}

func (t *Type) check(reg *Registry) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: type name is required", models.ErrConfiguration)
	}

	seen := map[string]bool{}

	for _, f := range t.Fields {
		if f.Name == "" {
			return &models.ConfigurationError{Type: t.Name, Reason: "field with empty name"}
		}

		if seen[f.Name] {
			return &models.ConfigurationError{Type: t.Name, Reason: "duplicate field " + f.Name}
		}

		seen[f.Name] = true
	}

	for rel, target := range t.EmbedsOne {
		if t.IsEmbeddedMany(rel) {
			return &models.ConfigurationError{Type: t.Name, Reason: "relation " + rel + " declared twice"}
		}

		if _, ok := reg.types[target]; !ok {
			return &models.ConfigurationError{Type: t.Name, Reason: "relation " + rel + " targets unknown type " + target}
		}
	}

	for rel, target := range t.EmbedsMany {
		if _, ok := reg.types[target]; !ok {
			return &models.ConfigurationError{Type: t.Name, Reason: "relation " + rel + " targets unknown type " + target}
		}
	}

	return nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
