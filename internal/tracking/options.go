package tracking

import (
	"fmt"
	"strings"

	"github.com/persistorai/doctrail/internal/models"
)

// Sentinels accepted in Options.On, with or without a leading colon.
const (
	AllFields         = "fields"
	All               = "all"
	EmbeddedRelations = "embedded_relations"
)

// Default field names used when Options leave them empty.
const (
	DefaultModifierField = "modifier_id"
	DefaultVersionField  = "version"
)

// ObfuscatedValue replaces the value of an obfuscated field.
const ObfuscatedValue = "********"

// Predicate decides per entity whether an event is recorded.
type Predicate func(*models.Entity) bool

// Options is the loosely structured tracking configuration of one type, as
// written by hand or decoded from a definitions file.
//
// On items are strings (field names, relation names or sentinels) or maps of
// relation name to attribute allow-list.
type Options struct {
	On               []any             `mapstructure:"on" json:"on,omitempty"`
	Except           []string          `mapstructure:"except" json:"except,omitempty"`
	ModifierField    string            `mapstructure:"modifier_field" json:"modifier_field,omitempty"`
	ModifierRequired bool              `mapstructure:"modifier_required" json:"modifier_required,omitempty"`
	VersionField     string            `mapstructure:"version_field" json:"version_field,omitempty"`
	Scope            string            `mapstructure:"scope" json:"scope,omitempty"`
	TrackCreate      *bool             `mapstructure:"track_create" json:"track_create,omitempty"`
	TrackUpdate      *bool             `mapstructure:"track_update" json:"track_update,omitempty"`
	TrackDestroy     *bool             `mapstructure:"track_destroy" json:"track_destroy,omitempty"`
	TrackBlank       bool              `mapstructure:"track_blank_changes" json:"track_blank_changes,omitempty"`
	Format           map[string]string `mapstructure:"format" json:"format,omitempty"`
	If               []string          `mapstructure:"if" json:"if,omitempty"`
	Unless           []string          `mapstructure:"unless" json:"unless,omitempty"`

	Formatters map[string]func(any) any `mapstructure:"-" json:"-"`
	IfFunc     Predicate                `mapstructure:"-" json:"-"`
	UnlessFunc Predicate                `mapstructure:"-" json:"-"`
}

// Format is the display rule of one field.
type Format struct {
	Obfuscate bool
	Template  string
	Func      func(any) any
}

// Apply formats a non-nil value. nil passes through so sparse maps stay sparse.
func (f Format) Apply(v any) any {
	if v == nil {
		return nil
	}

	switch {
	case f.Obfuscate:
		return ObfuscatedValue
	case f.Func != nil:
		return f.Func(v)
	case f.Template != "":
		return fmt.Sprintf(f.Template, v)
	}

	return v
}

// String renders the rule for Prepared views.
func (f Format) String() string {
	switch {
	case f.Obfuscate:
		return "obfuscate"
	case f.Func != nil:
		return "func"
	}

	return f.Template
}

func parseFormat(raw string) (Format, error) {
	s := strings.TrimSpace(raw)
	if strings.TrimPrefix(s, ":") == "obfuscate" {
		return Format{Obfuscate: true}, nil
	}

	if !strings.Contains(s, "%") {
		return Format{}, fmt.Errorf("format %q has no verb", raw)
	}

	return Format{Template: s}, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}

	return *p
}

func sentinel(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), ":")
}
