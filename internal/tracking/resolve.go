// Package tracking resolves raw tracking options into immutable Specs and
// keeps the per-type registry of resolved specs.
package tracking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/schema"
)

type directive struct {
	name     string
	attrs    []string
	hasAttrs bool
	explicit bool
}

// Resolve builds the Spec of typeName from opts.
func Resolve(types schema.Lookup, typeName string, opts Options) (*Spec, error) {
	typ, ok := types.Type(typeName)
	if !ok {
		return nil, &models.ConfigurationError{Type: typeName, Reason: "unknown type"}
	}

	s := &Spec{
		typeName:         typeName,
		scope:            opts.Scope,
		fields:           map[string]struct{}{},
		dynamic:          map[string]struct{}{},
		embedsOne:        map[string][]string{},
		embedsMany:       map[string][]string{},
		except:           map[string]struct{}{},
		format:           map[string]Format{},
		modifierField:    opts.ModifierField,
		versionField:     opts.VersionField,
		modifierRequired: opts.ModifierRequired,
		trackCreate:      boolOr(opts.TrackCreate, true),
		trackUpdate:      boolOr(opts.TrackUpdate, true),
		trackDestroy:     boolOr(opts.TrackDestroy, true),
		trackBlank:       opts.TrackBlank,
		ifFields:         append([]string(nil), opts.If...),
		unlessFields:     append([]string(nil), opts.Unless...),
		ifFunc:           opts.IfFunc,
		unlessFunc:       opts.UnlessFunc,
	}

	if s.scope == "" {
		s.scope = typeName
	}

	if s.modifierField == "" {
		s.modifierField = DefaultModifierField
	}

	if s.versionField == "" {
		s.versionField = DefaultVersionField
	}

	reserved := reservedFields(s.versionField, s.modifierField)

	for _, e := range opts.Except {
		canon, _ := typ.CanonicalField(strings.TrimSpace(e))
		s.except[canon] = struct{}{}
	}

	for r := range reserved {
		s.except[r] = struct{}{}
	}

	directives, err := expandOn(typ, opts.On)
	if err != nil {
		return nil, err
	}

	for _, d := range directives {
		if err := s.classify(types, typ, d, reserved); err != nil {
			return nil, err
		}
	}

	if err := s.resolveFormats(typ, opts); err != nil {
		return nil, err
	}

	return s, nil
}

func reservedFields(version, modifier string) map[string]struct{} {
	return map[string]struct{}{
		models.IDField:   {},
		models.TypeField: {},
		version:          {},
		modifier:         {},
	}
}

func expandOn(typ *schema.Type, on []any) ([]directive, error) {
	if len(on) == 0 {
		on = []any{AllFields}
	}

	var out []directive

	for _, item := range on {
		switch v := item.(type) {
		case string:
			switch sentinel(v) {
			case AllFields, All:
				for _, f := range typ.DeclaredFields() {
					out = append(out, directive{name: f})
				}
			case EmbeddedRelations:
				for _, r := range typ.EmbeddedOneRelations() {
					out = append(out, directive{name: r})
				}

				for _, r := range typ.EmbeddedManyRelations() {
					out = append(out, directive{name: r})
				}
			default:
				out = append(out, directive{name: strings.TrimSpace(v), explicit: true})
			}
		case map[string]any:
			for _, rel := range sortedAnyKeys(v) {
				attrs, err := toStrings(v[rel])
				if err != nil {
					return nil, &models.ConfigurationError{Type: typ.Name, Reason: fmt.Sprintf("relation %s: %v", rel, err)}
				}

				out = append(out, directive{name: rel, attrs: attrs, hasAttrs: true, explicit: true})
			}
		case map[string][]string:
			for rel, attrs := range v {
				out = append(out, directive{name: rel, attrs: attrs, hasAttrs: true, explicit: true})
			}
		default:
			return nil, &models.ConfigurationError{Type: typ.Name, Reason: fmt.Sprintf("unsupported directive %T", item)}
		}
	}

	return out, nil
}

func (s *Spec) classify(types schema.Lookup, typ *schema.Type, d directive, reserved map[string]struct{}) error {
	if typ.IsRelation(d.name) {
		if _, excluded := s.except[d.name]; excluded {
			if d.explicit {
				return &models.ConfigurationError{Type: typ.Name, Reason: "relation " + d.name + " is both tracked and excepted"}
			}

			return nil
		}

		relatedName, _ := typ.RelatedTypeName(d.name)

		related, ok := types.Type(relatedName)
		if !ok {
			return &models.ConfigurationError{Type: typ.Name, Reason: "relation " + d.name + " targets unknown type " + relatedName}
		}

		allow, err := allowList(related, d, reserved)
		if err != nil {
			return err
		}

		target := s.embedsMany
		if typ.IsEmbeddedOne(d.name) {
			target = s.embedsOne
		}

		// An explicit allow-list wins over the sentinel default.
		if _, seen := target[d.name]; !seen || d.hasAttrs {
			target[d.name] = allow
		}

		return nil
	}

	if d.hasAttrs {
		return &models.ConfigurationError{Type: typ.Name, Reason: d.name + " is not an embedded relation"}
	}

	canon, declared := typ.CanonicalField(d.name)

	if _, r := reserved[canon]; r {
		return nil
	}

	if _, excluded := s.except[canon]; excluded {
		return nil
	}

	switch {
	case declared:
		s.fields[canon] = struct{}{}
	case typ.IsDynamic():
		s.dynamic[canon] = struct{}{}
	default:
		return &models.ConfigurationError{Type: typ.Name, Reason: "unknown field " + d.name}
	}

	return nil
}

func allowList(related *schema.Type, d directive, reserved map[string]struct{}) ([]string, error) {
	set := map[string]struct{}{models.IDField: {}}

	names := d.attrs
	if !d.hasAttrs {
		names = related.DeclaredFields()
	}

	for _, a := range names {
		canon, declared := related.CanonicalField(strings.TrimSpace(a))
		if !declared && !related.IsDynamic() && !related.IsRelation(canon) && canon != models.IDField {
			return nil, &models.ConfigurationError{Type: related.Name, Reason: "unknown field " + a + " in allow-list of " + d.name}
		}

		if _, r := reserved[canon]; r && canon != models.IDField {
			continue
		}

		set[canon] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}

	sort.Strings(out)

	return out, nil
}

func (s *Spec) resolveFormats(typ *schema.Type, opts Options) error {
	for key, raw := range opts.Format {
		f, err := parseFormat(raw)
		if err != nil {
			return &models.ConfigurationError{Type: typ.Name, Reason: fmt.Sprintf("field %s: %v", key, err)}
		}

		if err := s.setFormat(typ, key, f); err != nil {
			return err
		}
	}

	for key, fn := range opts.Formatters {
		if err := s.setFormat(typ, key, Format{Func: fn}); err != nil {
			return err
		}
	}

	return nil
}

func (s *Spec) setFormat(typ *schema.Type, key string, f Format) error {
	if rel, attr, nested := strings.Cut(key, "."); nested {
		if !typ.IsRelation(rel) || attr == "" {
			return &models.ConfigurationError{Type: typ.Name, Reason: "format key " + key + " does not name an embedded attribute"}
		}

		s.format[key] = f

		return nil
	}

	canon, declared := typ.CanonicalField(key)
	if !declared && !typ.IsDynamic() {
		return &models.ConfigurationError{Type: typ.Name, Reason: "format for unknown field " + key}
	}

	s.format[canon] = f

	return nil
}

func toStrings(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("allow-list entry %v is not a string", e)
			}

			out = append(out, s)
		}

		return out, nil
	}

	return nil, fmt.Errorf("allow-list must be a list, got %T", v)
}

func sortedAnyKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
