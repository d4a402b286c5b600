// Package history turns diffs into history records and derives read-only
// projections from stored records.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/persistorai/doctrail/internal/diff"
	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/trackctx"
	"github.com/persistorai/doctrail/internal/tracking"
)

// SkipReason explains why Record returned no record.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipAction    SkipReason = "action_untracked"
	SkipDisabled  SkipReason = "disabled"
	SkipCondition SkipReason = "condition"
	SkipEmpty     SkipReason = "empty_diff"
)

// Assembler builds history records. It does not persist them: the caller
// writes the record together with the entity's own update.
type Assembler struct {
	builder *diff.Builder
	now     func() time.Time
	newID   func() uuid.UUID
}

// NewAssembler creates an Assembler over builder.
func NewAssembler(builder *diff.Builder) *Assembler {
	return &Assembler{
		builder: builder,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.New,
	}
}

// WithClock overrides the timestamp source.
func (a *Assembler) WithClock(now func() time.Time) *Assembler {
	a.now = now

	return a
}

// Record assembles the history record of e for action. It returns nil when
// the event is not tracked. On success the entity's version field (and its
// modifier field when an actor is known) is updated in e.Attributes.
func (a *Assembler) Record(ctx context.Context, spec *tracking.Spec, e *models.Entity, action models.Action) (*models.HistoryRecord, error) {
	rec, _, err := a.RecordWithReason(ctx, spec, e, action)

	return rec, err
}

// RecordWithReason is Record plus the reason a nil record was returned.
func (a *Assembler) RecordWithReason(
	ctx context.Context,
	spec *tracking.Spec,
	e *models.Entity,
	action models.Action,
) (*models.HistoryRecord, SkipReason, error) {
	if !spec.TracksAction(action) {
		return nil, SkipAction, nil
	}

	if !trackctx.Enabled(ctx, spec.Scope()) {
		return nil, SkipDisabled, nil
	}

	if !spec.ShouldRecord(e) {
		return nil, SkipCondition, nil
	}

	d, err := a.builder.Build(spec, e, action)
	if err != nil {
		return nil, SkipNone, err
	}

	original, modified := Split(d)

	if len(original) == 0 && len(modified) == 0 && action != models.ActionCreate && !spec.TrackBlankChanges() {
		return nil, SkipEmpty, nil
	}

	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}

	modifier := trackctx.Actor(ctx)
	if modifier == "" {
		modifier = models.StringID(e.Attributes[spec.ModifierField()])
	}

	if modifier == "" && spec.ModifierRequired() {
		return nil, SkipNone, &models.ValidationError{
			Type:   e.Type,
			Fields: []string{spec.ModifierField()},
			Reason: "modifier is required",
		}
	}

	version := models.ToInt64(e.Attributes[spec.VersionField()]) + 1
	e.Attributes[spec.VersionField()] = version

	if modifier != "" {
		e.Attributes[spec.ModifierField()] = modifier
	}

	now := a.now()

	return &models.HistoryRecord{
		ID:        a.newID(),
		Scope:     spec.Scope(),
		Type:      e.Type,
		Chain:     e.AssociationChain(),
		Action:    action,
		Version:   version,
		Original:  original,
		Modified:  modified,
		Modifier:  modifier,
		CreatedAt: now,
		UpdatedAt: now,
	}, SkipNone, nil
}

// Split separates a diff into its original and modified halves. nil sides
// are dropped, and a field whose two sides are structurally equal is left
// out of both.
func Split(d models.Diff) (original, modified map[string]any) {
	original = map[string]any{}
	modified = map[string]any{}

	for k, c := range d {
		before, after := c.Before(), c.After()

		if before != nil && after != nil && models.Equal(before, after) {
			continue
		}

		if before != nil {
			original[k] = before
		}

		if after != nil {
			modified[k] = after
		}
	}

	return original, modified
}
