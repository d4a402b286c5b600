package service

import (
	"context"

	"github.com/persistorai/doctrail/internal/history"
	"github.com/persistorai/doctrail/internal/metrics"
	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/schema"
)

// cascade collects the history records of one save across the embedded
// tree. Creates record the parent before its children; updates and
// destroys record children first.
type cascade struct {
	svc     *DocumentService
	ctx     context.Context //nolint:containedctx // scoped to a single save.
	records []*models.HistoryRecord
}

func (s *DocumentService) newCascade(ctx context.Context) *cascade {
	return &cascade{svc: s, ctx: ctx}
}

// record assembles e's record when its type is tracked.
func (c *cascade) record(e *models.Entity, action models.Action) error {
	spec, ok := c.svc.specs.Spec(e.Type)
	if !ok {
		return nil
	}

	rec, reason, err := c.svc.assembler.RecordWithReason(c.ctx, spec, e, action)
	if err != nil {
		return err
	}

	if rec == nil {
		if reason != history.SkipNone {
			metrics.HistorySkippedTotal.WithLabelValues(string(reason)).Inc()
		}

		return nil
	}

	c.records = append(c.records, rec)

	return nil
}

func (c *cascade) created(typ *schema.Type, e *models.Entity) error {
	if err := c.record(e, models.ActionCreate); err != nil {
		return err
	}

	return c.eachChild(typ, e, e.Attributes, func(related *schema.Type, child *models.Entity) error {
		return c.created(related, child)
	})
}

func (c *cascade) destroyed(typ *schema.Type, e *models.Entity) error {
	if err := c.eachChild(typ, e, e.Attributes, func(related *schema.Type, child *models.Entity) error {
		return c.destroyed(related, child)
	}); err != nil {
		return err
	}

	return c.record(e, models.ActionDestroy)
}

// updated matches e's children against before by _id: removed children are
// destroyed, added ones created and kept ones updated, then e itself is
// recorded with its raw changes.
func (c *cascade) updated(typ *schema.Type, e *models.Entity, before map[string]any) error {
	path := e.AssociationChain()

	for _, rel := range typ.EmbeddedOneRelations() {
		related, err := c.svc.related(typ, rel)
		if err != nil {
			return err
		}

		old, _ := models.AsMap(before[rel])
		cur, _ := models.AsMap(e.Attributes[rel])
		oldID, curID := models.StringID(old[models.IDField]), models.StringID(cur[models.IDField])

		switch {
		case old != nil && cur != nil && oldID == curID:
			err = c.keep(related, path, rel, old, cur)
		default:
			if old != nil {
				if err := c.destroyed(related, child(related, path, rel, models.CloneMap(old))); err != nil {
					return err
				}
			}

			if cur != nil {
				err = c.created(related, child(related, path, rel, cur))
			}
		}

		if err != nil {
			return err
		}
	}

	for _, rel := range typ.EmbeddedManyRelations() {
		related, err := c.svc.related(typ, rel)
		if err != nil {
			return err
		}

		oldList, _ := models.AsList(before[rel])
		curList, _ := models.AsList(e.Attributes[rel])
		curIDs := make(map[string]struct{}, len(curList))

		for _, item := range curList {
			if m, ok := models.AsMap(item); ok {
				curIDs[models.StringID(m[models.IDField])] = struct{}{}
			}
		}

		oldByID := make(map[string]map[string]any, len(oldList))

		for _, item := range oldList {
			m, ok := models.AsMap(item)
			if !ok {
				continue
			}

			id := models.StringID(m[models.IDField])
			oldByID[id] = m

			if _, kept := curIDs[id]; !kept {
				if err := c.destroyed(related, child(related, path, rel, models.CloneMap(m))); err != nil {
					return err
				}
			}
		}

		for _, item := range curList {
			m, ok := models.AsMap(item)
			if !ok {
				continue
			}

			if old, kept := oldByID[models.StringID(m[models.IDField])]; kept {
				err = c.keep(related, path, rel, old, m)
			} else {
				err = c.created(related, child(related, path, rel, m))
			}

			if err != nil {
				return err
			}
		}
	}

	e.Changes = rawChanges(before, e.Attributes)

	return c.record(e, models.ActionUpdate)
}

// keep updates a child present on both sides, carrying its stored version.
func (c *cascade) keep(related *schema.Type, path models.AssociationChain, rel string, old, cur map[string]any) error {
	c.svc.carryVersion(related.Name, old, cur)

	return c.updated(related, child(related, path, rel, cur), old)
}

// eachChild calls fn for every embedded child of e found in attrs.
func (c *cascade) eachChild(typ *schema.Type, e *models.Entity, attrs map[string]any, fn func(*schema.Type, *models.Entity) error) error {
	path := e.AssociationChain()

	for _, rel := range typ.EmbeddedOneRelations() {
		m, ok := models.AsMap(attrs[rel])
		if !ok || m == nil {
			continue
		}

		related, err := c.svc.related(typ, rel)
		if err != nil {
			return err
		}

		if err := fn(related, child(related, path, rel, m)); err != nil {
			return err
		}
	}

	for _, rel := range typ.EmbeddedManyRelations() {
		list, _ := models.AsList(attrs[rel])
		if len(list) == 0 {
			continue
		}

		related, err := c.svc.related(typ, rel)
		if err != nil {
			return err
		}

		for _, item := range list {
			m, ok := models.AsMap(item)
			if !ok {
				continue
			}

			if err := fn(related, child(related, path, rel, m)); err != nil {
				return err
			}
		}
	}

	return nil
}

func child(typ *schema.Type, path models.AssociationChain, rel string, attrs map[string]any) *models.Entity {
	return &models.Entity{
		Type:       typ.Name,
		ID:         models.StringID(attrs[models.IDField]),
		Attributes: attrs,
		Path:       path,
		Relation:   rel,
	}
}
