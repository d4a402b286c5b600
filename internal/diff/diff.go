// Package diff computes the tracked attribute changes of an entity for one
// lifecycle event.
package diff

import (
	"fmt"

	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/schema"
	"github.com/persistorai/doctrail/internal/tracking"
)

// Builder builds diffs. It only reads the entity.
type Builder struct {
	types schema.Lookup
}

// NewBuilder creates a Builder resolving related types through types.
func NewBuilder(types schema.Lookup) *Builder {
	return &Builder{types: types}
}

// Build returns the diff of e for action under spec.
func (b *Builder) Build(spec *tracking.Spec, e *models.Entity, action models.Action) (models.Diff, error) {
	typ, ok := b.types.Type(e.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownType, e.Type)
	}

	switch action {
	case models.ActionCreate:
		return b.snapshot(spec, typ, e, false)
	case models.ActionDestroy:
		return b.snapshot(spec, typ, e, true)
	case models.ActionUpdate:
		return b.update(spec, typ, e)
	}

	return nil, fmt.Errorf("%w: unknown action %q", models.ErrValidation, action)
}

// snapshot covers create (everything becomes "after") and destroy
// (everything becomes "before").
func (b *Builder) snapshot(spec *tracking.Spec, typ *schema.Type, e *models.Entity, destroy bool) (models.Diff, error) {
	d := models.Diff{}

	for _, f := range spec.TrackedFields() {
		v, ok := e.Attributes[typ.StorageKey(f)]
		if !ok {
			continue
		}

		v = format(spec, f, models.CloneValue(v))
		if destroy {
			d[f] = models.ChangeOf(v, nil)
		} else {
			d[f] = models.ChangeOf(nil, v)
		}
	}

	for _, rel := range spec.EmbeddedOneRelations() {
		related, err := b.related(typ, rel)
		if err != nil {
			return nil, err
		}

		raw, ok := models.AsMap(e.Attributes[rel])
		if !ok || raw == nil {
			continue
		}

		if !destroy && related.IsSoftDeleted(raw) {
			continue
		}

		allow, _ := spec.EmbeddedOne(rel)
		m := restrict(spec, related, rel, allow, raw)

		if destroy {
			d[rel] = models.MapChange{From: m}
		} else {
			d[rel] = models.MapChange{To: m}
		}
	}

	for _, rel := range spec.EmbeddedManyRelations() {
		related, err := b.related(typ, rel)
		if err != nil {
			return nil, err
		}

		allow, _ := spec.EmbeddedMany(rel)
		list, _ := models.AsList(e.Attributes[rel])
		members := make([]any, 0, len(list))

		for _, item := range list {
			raw, ok := models.AsMap(item)
			if !ok {
				continue
			}

			if !destroy && related.IsSoftDeleted(raw) {
				continue
			}

			members = append(members, restrict(spec, related, rel, allow, raw))
		}

		if destroy {
			d[rel] = models.ListChange{From: members}
		} else {
			d[rel] = models.ListChange{To: members}
		}
	}

	return d, nil
}

func (b *Builder) update(spec *tracking.Spec, typ *schema.Type, e *models.Entity) (models.Diff, error) {
	d := models.Diff{}

	for key, ch := range e.Changes {
		canon, _ := typ.CanonicalField(key)

		if allow, ok := spec.EmbeddedOne(canon); ok {
			related, err := b.related(typ, canon)
			if err != nil {
				return nil, err
			}

			d[canon] = models.MapChange{
				From: oneSide(spec, related, canon, allow, ch.Before),
				To:   oneSide(spec, related, canon, allow, ch.After),
			}

			continue
		}

		if allow, ok := spec.EmbeddedMany(canon); ok {
			related, err := b.related(typ, canon)
			if err != nil {
				return nil, err
			}

			d[canon] = models.ListChange{
				From: manySide(spec, related, canon, allow, ch.Before),
				To:   manySide(spec, related, canon, allow, ch.After),
			}

			continue
		}

		if spec.IsTrackedField(canon) {
			d[canon] = models.ChangeOf(
				format(spec, canon, models.CloneValue(ch.Before)),
				format(spec, canon, models.CloneValue(ch.After)),
			)
		}
	}

	return d, nil
}

func (b *Builder) related(typ *schema.Type, rel string) (*schema.Type, error) {
	name, ok := typ.RelatedTypeName(rel)
	if !ok {
		return nil, &models.ConfigurationError{Type: typ.Name, Reason: "no embedded relation " + rel}
	}

	related, ok := b.types.Type(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownType, name)
	}

	return related, nil
}

// oneSide restricts one side of an embedded-one change. A soft-deleted side
// becomes an empty map; an absent side stays nil.
func oneSide(spec *tracking.Spec, related *schema.Type, rel string, allow []string, v any) map[string]any {
	raw, ok := models.AsMap(v)
	if !ok || raw == nil {
		return nil
	}

	if related.IsSoftDeleted(raw) {
		return map[string]any{}
	}

	return restrict(spec, related, rel, allow, raw)
}

// manySide restricts every member of one side of an embedded-many change,
// dropping soft-deleted members.
func manySide(spec *tracking.Spec, related *schema.Type, rel string, allow []string, v any) []any {
	list, ok := models.AsList(v)
	if !ok {
		return nil
	}

	out := make([]any, 0, len(list))

	for _, item := range list {
		raw, ok := models.AsMap(item)
		if !ok || related.IsSoftDeleted(raw) {
			continue
		}

		out = append(out, restrict(spec, related, rel, allow, raw))
	}

	return out
}

// restrict copies the allow-listed attributes of an embedded member, keeping
// their storage keys and applying "relation.attr" formats.
func restrict(spec *tracking.Spec, related *schema.Type, rel string, allow []string, raw map[string]any) map[string]any {
	allowed := make(map[string]struct{}, len(allow))
	for _, a := range allow {
		allowed[a] = struct{}{}
	}

	out := make(map[string]any, len(allow))

	for k, v := range raw {
		canon, _ := related.CanonicalField(k)
		if _, ok := allowed[canon]; !ok {
			continue
		}

		out[k] = format(spec, rel+"."+canon, models.CloneValue(v))
	}

	return out
}

func format(spec *tracking.Spec, key string, v any) any {
	f, ok := spec.FormatFor(key)
	if !ok {
		return v
	}

	return f.Apply(v)
}
