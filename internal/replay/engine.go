// Package replay reverts (undo) and re-applies (redo) recorded changes,
// including re-creating and destroying embedded entities addressed by their
// association chain.
package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/domain"
	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/schema"
	"github.com/persistorai/doctrail/internal/trackctx"
	"github.com/persistorai/doctrail/internal/tracking"
)

// versionPageSize is the page size used while scanning a chain's records.
const versionPageSize = 500

// Direction selects undo or redo.
type Direction string

const (
	Undo Direction = "undo"
	Redo Direction = "redo"
)

// Source is the read side the engine resolves chains and versions against.
type Source interface {
	domain.DocumentFinder
	domain.HistoryQuerier
}

// Engine replays history records through a domain.Mutator so that every
// replay is itself tracked.
type Engine struct {
	types   schema.Lookup
	specs   domain.SpecLookup
	source  Source
	mutator domain.Mutator
	log     *logrus.Logger
}

// NewEngine creates an Engine.
func NewEngine(types schema.Lookup, specs domain.SpecLookup, source Source, mutator domain.Mutator, log *logrus.Logger) *Engine {
	return &Engine{
		types:   types,
		specs:   specs,
		source:  source,
		mutator: mutator,
		log:     log,
	}
}

// Undo reverts rec on behalf of actor. It returns the resulting root
// document, or nil when the root no longer exists afterwards.
func (e *Engine) Undo(ctx context.Context, rec *models.HistoryRecord, actor string) (*models.Document, error) {
	return e.Replay(ctx, rec, Undo, actor)
}

// Redo re-applies rec on behalf of actor.
func (e *Engine) Redo(ctx context.Context, rec *models.HistoryRecord, actor string) (*models.Document, error) {
	return e.Replay(ctx, rec, Redo, actor)
}

// Replay runs rec in direction dir.
func (e *Engine) Replay(ctx context.Context, rec *models.HistoryRecord, dir Direction, actor string) (*models.Document, error) {
	if len(rec.Chain) == 0 {
		return nil, &models.ValidationError{Type: rec.Type, Reason: "record has no association chain"}
	}

	if actor != "" {
		ctx = trackctx.WithActor(ctx, actor)
	}

	var (
		doc *models.Document
		err error
	)

	switch {
	case rec.Action == models.ActionCreate && dir == Undo, rec.Action == models.ActionDestroy && dir == Redo:
		doc, err = e.destroy(ctx, rec)
	case rec.Action == models.ActionDestroy && dir == Undo:
		doc, err = e.recreate(ctx, rec, rec.Original, dir)
	case rec.Action == models.ActionCreate && dir == Redo:
		doc, err = e.recreate(ctx, rec, rec.Modified, dir)
	case rec.Action == models.ActionUpdate && dir == Undo:
		doc, err = e.update(ctx, rec, UndoAttributes(rec, e.modifierField(rec.Type), actor), dir)
	case rec.Action == models.ActionUpdate && dir == Redo:
		doc, err = e.update(ctx, rec, RedoAttributes(rec, e.modifierField(rec.Type), actor), dir)
	default:
		return nil, fmt.Errorf("%w: cannot %s action %q", models.ErrValidation, dir, rec.Action)
	}

	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"record":    rec.ID,
		"direction": dir,
		"action":    rec.Action,
		"chain":     rec.Chain.String(),
	}).Info("replay.applied")

	return doc, nil
}

func (e *Engine) modifierField(typeName string) string {
	if spec, ok := e.specs.Spec(typeName); ok {
		return spec.ModifierField()
	}

	return tracking.DefaultModifierField
}

func (e *Engine) versionField(typeName string) string {
	if spec, ok := e.specs.Spec(typeName); ok {
		return spec.VersionField()
	}

	return tracking.DefaultVersionField
}

// update applies attrs to the resolved target and saves its root.
func (e *Engine) update(ctx context.Context, rec *models.HistoryRecord, attrs map[string]any, dir Direction) (*models.Document, error) {
	t, err := e.resolve(ctx, rec.Chain)
	if err != nil {
		return nil, err
	}

	target := t.last()
	e.apply(target.typ, target.attrs, attrs, dir)

	return e.mutator.Save(ctx, t.doc)
}

// destroy removes the target: a root through the mutator, a nested entity by
// detaching it from its parent and saving the root.
func (e *Engine) destroy(ctx context.Context, rec *models.HistoryRecord) (*models.Document, error) {
	t, err := e.resolve(ctx, rec.Chain)
	if err != nil {
		return nil, err
	}

	if len(rec.Chain) == 1 {
		if err := e.mutator.Destroy(ctx, t.doc.Type, t.doc.ID); err != nil {
			return nil, err
		}

		return nil, nil
	}

	parent := t.nodes[len(t.nodes)-2]
	link := rec.Chain.Last()

	if parent.typ.IsEmbeddedOne(link.Name) {
		delete(parent.attrs, link.Name)
	} else {
		list, _ := models.AsList(parent.attrs[link.Name])
		kept := make([]any, 0, len(list))

		for _, item := range list {
			if m, ok := models.AsMap(item); ok && models.StringID(m[models.IDField]) == link.ID {
				continue
			}

			kept = append(kept, item)
		}

		parent.attrs[link.Name] = kept
	}

	return e.mutator.Save(ctx, t.doc)
}

// recreate rebuilds the entity from attrs under its original id. The version
// baseline is the latest recorded version of the chain so numbering resumes
// instead of restarting.
func (e *Engine) recreate(ctx context.Context, rec *models.HistoryRecord, attrs map[string]any, dir Direction) (*models.Document, error) {
	typ, ok := e.types.Type(rec.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownType, rec.Type)
	}

	version, err := e.latestVersion(ctx, rec)
	if err != nil {
		return nil, err
	}

	link := rec.Chain.Last()

	restored := map[string]any{}
	e.apply(typ, restored, attrs, dir)
	restored[e.versionField(rec.Type)] = version

	if actor := trackctx.Actor(ctx); actor != "" {
		restored[e.modifierField(rec.Type)] = actor
	}

	if len(rec.Chain) == 1 {
		return e.mutator.Create(ctx, &models.Document{Type: rec.Type, ID: link.ID, Attributes: restored})
	}

	t, err := e.resolve(ctx, rec.Chain.Parent())
	if err != nil {
		return nil, err
	}

	parent := t.last()
	restored[models.IDField] = link.ID

	switch {
	case parent.typ.IsEmbeddedOne(link.Name):
		if live, ok := models.AsMap(parent.attrs[link.Name]); ok && len(live) > 0 && !e.softDeleted(parent.typ, link.Name, live) {
			return nil, &models.ValidationError{Type: rec.Type, Fields: []string{link.Name}, Reason: "relation is already set"}
		}

		parent.attrs[link.Name] = restored
	case parent.typ.IsEmbeddedMany(link.Name):
		list, _ := models.AsList(parent.attrs[link.Name])

		for _, item := range list {
			if m, ok := models.AsMap(item); ok && models.StringID(m[models.IDField]) == link.ID {
				return nil, &models.ValidationError{Type: rec.Type, Fields: []string{models.IDField}, Reason: "member " + link.ID + " already exists"}
			}
		}

		parent.attrs[link.Name] = append(list, restored)
	default:
		return nil, &models.ConfigurationError{Type: parent.typ.Name, Reason: "no embedded relation " + link.Name}
	}

	return e.mutator.Save(ctx, t.doc)
}

func (e *Engine) softDeleted(parent *schema.Type, rel string, m map[string]any) bool {
	related := e.relatedType(parent, rel)

	return related != nil && related.IsSoftDeleted(m)
}

// latestVersion returns the highest version recorded for exactly rec's chain.
// Descendants share the chain prefix, so the query is narrowed to rec's type
// and paged through rather than cut off at one page.
func (e *Engine) latestVersion(ctx context.Context, rec *models.HistoryRecord) (int64, error) {
	latest := rec.Version
	q := models.HistoryQuery{Chain: rec.Chain, Type: rec.Type, Limit: versionPageSize}

	for {
		recs, hasMore, err := e.source.QueryHistory(ctx, q)
		if err != nil {
			return 0, fmt.Errorf("reading latest version: %w", err)
		}

		for i := range recs {
			if len(recs[i].Chain) == len(rec.Chain) && recs[i].Version > latest {
				latest = recs[i].Version
			}
		}

		if !hasMore || len(recs) == 0 {
			return latest, nil
		}

		q.Offset += len(recs)
	}
}

// node is one resolved hop of an association chain.
type node struct {
	typ   *schema.Type
	attrs map[string]any
}

// target is a resolved chain: the loaded root document and one node per
// link. Node attribute maps alias into doc.Attributes.
type target struct {
	doc   *models.Document
	nodes []node
}

func (t *target) last() node { return t.nodes[len(t.nodes)-1] }

// resolve walks chain root-first. Nothing is mutated on failure.
func (e *Engine) resolve(ctx context.Context, chain models.AssociationChain) (*target, error) {
	root := chain.Root()

	doc, err := e.source.FindByID(ctx, root.Name, root.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, &models.NotFoundError{Link: root, Hop: 0}
		}

		return nil, err
	}

	typ, ok := e.types.Type(root.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownType, root.Name)
	}

	if doc.Attributes == nil {
		doc.Attributes = map[string]any{}
	}

	t := &target{doc: doc, nodes: []node{{typ: typ, attrs: doc.Attributes}}}

	for hop, link := range chain[1:] {
		cur := t.last()

		child, err := e.child(cur, link)
		if err != nil {
			return nil, err
		}

		if child == nil {
			return nil, &models.NotFoundError{Link: link, Hop: hop + 1}
		}

		t.nodes = append(t.nodes, *child)
	}

	return t, nil
}

// child finds link under cur. It returns nil when the child is absent.
func (e *Engine) child(cur node, link models.ChainLink) (*node, error) {
	name, ok := cur.typ.RelatedTypeName(link.Name)
	if !ok {
		return nil, nil
	}

	typ, ok := e.types.Type(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownType, name)
	}

	if cur.typ.IsEmbeddedOne(link.Name) {
		m, ok := models.AsMap(cur.attrs[link.Name])
		if !ok || m == nil || models.StringID(m[models.IDField]) != link.ID {
			return nil, nil
		}

		return &node{typ: typ, attrs: m}, nil
	}

	list, _ := models.AsList(cur.attrs[link.Name])
	for _, item := range list {
		if m, ok := models.AsMap(item); ok && models.StringID(m[models.IDField]) == link.ID {
			return &node{typ: typ, attrs: m}, nil
		}
	}

	return nil, nil
}
