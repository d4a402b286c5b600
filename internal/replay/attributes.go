package replay

import (
	"time"

	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/schema"
)

// UndoAttributes computes the attributes that revert an update record: the
// original values, nil for every key the update introduced, and the modifier
// set to actor when actor is not empty.
func UndoAttributes(rec *models.HistoryRecord, modifierField, actor string) map[string]any {
	return revert(rec.Modified, rec.Original, modifierField, actor)
}

// RedoAttributes computes the attributes that re-apply an update record. It
// mirrors UndoAttributes with the two halves swapped.
func RedoAttributes(rec *models.HistoryRecord, modifierField, actor string) map[string]any {
	return revert(rec.Original, rec.Modified, modifierField, actor)
}

// revert starts from the affected keys of from, drops them, merges to and
// retracts every from key that to does not restore.
func revert(from, to map[string]any, modifierField, actor string) map[string]any {
	out := make(map[string]any, len(from)+len(to)+1)

	for k, v := range to {
		out[k] = models.CloneValue(v)
	}

	for k := range from {
		if _, ok := out[k]; !ok {
			out[k] = nil
		}
	}

	if actor != "" && modifierField != "" {
		out[modifierField] = actor
	}

	return out
}

// storageAttributes remaps canonical field names to the keys they are stored
// under on typ (localized fields carry a suffix).
func storageAttributes(typ *schema.Type, attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))

	for k, v := range attrs {
		if typ.IsRelation(k) {
			out[k] = v

			continue
		}

		out[typ.StorageKey(k)] = v
	}

	return out
}

// apply writes attrs onto target. nil deletes the attribute. Embedded
// relations are merged member by member on _id so untracked child
// attributes survive the replay. Children a diff reported as logically
// absent are soft-deleted instead of removed when their type supports it.
func (e *Engine) apply(typ *schema.Type, target, attrs map[string]any, dir Direction) {
	for k, v := range storageAttributes(typ, attrs) {
		switch {
		case v == nil:
			delete(target, k)
		case typ.IsEmbeddedOne(k):
			e.applyOne(e.relatedType(typ, k), target, k, v)
		case typ.IsEmbeddedMany(k):
			e.applyMany(e.relatedType(typ, k), target, k, v, dir)
		default:
			target[k] = models.CloneValue(v)
		}
	}
}

// relatedType returns the type behind rel, or nil when it is not registered.
func (e *Engine) relatedType(typ *schema.Type, rel string) *schema.Type {
	name, ok := typ.RelatedTypeName(rel)
	if !ok {
		return nil
	}

	related, ok := e.types.Type(name)
	if !ok {
		return nil
	}

	return related
}

// paranoiaField is related's soft-delete field, "" when it has none.
func paranoiaField(related *schema.Type) string {
	if related == nil {
		return ""
	}

	return related.ParanoiaField()
}

// softDelete returns a copy of m marked deleted under field.
func softDelete(m map[string]any, field string) map[string]any {
	out := models.CloneMap(m)
	out[field] = time.Now().UTC().Format(time.RFC3339Nano)

	return out
}

// revive overlays restored on live. A soft-deleted live member loses its
// deletion marker first so the restored state is live again.
func revive(related *schema.Type, live, restored map[string]any) map[string]any {
	merged := models.CloneMap(live)
	if merged == nil {
		merged = map[string]any{}
	}

	if field := paranoiaField(related); field != "" && related.IsSoftDeleted(merged) {
		delete(merged, field)
	}

	for k, val := range restored {
		merged[k] = models.CloneValue(val)
	}

	return merged
}

// applyOne overlays a restored embedded-one map on the live child. An empty
// restored map stands for a logically deleted child: the live child is
// soft-deleted, or removed when its type has no paranoia field.
func (e *Engine) applyOne(related *schema.Type, target map[string]any, rel string, v any) {
	restored, ok := models.AsMap(v)
	live, _ := models.AsMap(target[rel])

	if !ok || len(restored) == 0 {
		field := paranoiaField(related)

		switch {
		case len(live) == 0 || field == "":
			delete(target, rel)
		case !related.IsSoftDeleted(live):
			target[rel] = softDelete(live, field)
		}

		return
	}

	if live == nil || models.StringID(live[models.IDField]) != models.StringID(restored[models.IDField]) {
		target[rel] = models.CloneMap(restored)

		return
	}

	target[rel] = revive(related, live, restored)
}

// applyMany rebuilds an embedded-many list in the restored order. Live
// members are overlaid by _id; soft-deleted live members absent from the
// restored list are kept since the diff never carried them. On redo a live
// member the restored list drops is soft-deleted when its type allows it,
// on undo it is removed.
func (e *Engine) applyMany(related *schema.Type, target map[string]any, rel string, v any, dir Direction) {
	restored, _ := models.AsList(v)

	liveList, _ := models.AsList(target[rel])
	live := make(map[string]map[string]any, len(liveList))

	for _, item := range liveList {
		if m, ok := models.AsMap(item); ok {
			live[models.StringID(m[models.IDField])] = m
		}
	}

	out := make([]any, 0, len(restored))
	seen := make(map[string]struct{}, len(restored))

	for _, item := range restored {
		m, ok := models.AsMap(item)
		if !ok {
			continue
		}

		id := models.StringID(m[models.IDField])
		seen[id] = struct{}{}

		out = append(out, revive(related, live[id], m))
	}

	field := paranoiaField(related)

	for _, item := range liveList {
		m, ok := models.AsMap(item)
		if !ok {
			continue
		}

		if _, kept := seen[models.StringID(m[models.IDField])]; kept {
			continue
		}

		if field == "" {
			continue
		}

		if related.IsSoftDeleted(m) {
			out = append(out, models.CloneMap(m))
		} else if dir == Redo {
			out = append(out, softDelete(m, field))
		}
	}

	target[rel] = out
}
