package history

import (
	"sync"

	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/tracking"
)

// Projection derives read-only views of a stored record. Results are
// computed once and cached.
type Projection struct {
	rec  *models.HistoryRecord
	spec *tracking.Spec

	trackedOnce sync.Once
	tracked     map[string]models.FromTo

	summaryOnce sync.Once
	summary     models.EditSummary

	affectedOnce sync.Once
	affected     map[string]any
}

// NewProjection creates a projection of rec filtered by the type's current
// spec. A nil spec disables the filter.
func NewProjection(rec *models.HistoryRecord, spec *tracking.Spec) *Projection {
	return &Projection{rec: rec, spec: spec}
}

// Record returns the underlying record.
func (p *Projection) Record() *models.HistoryRecord { return p.rec }

// TrackedChanges returns {from, to} per field, limited to fields the current
// spec still tracks.
func (p *Projection) TrackedChanges() map[string]models.FromTo {
	p.trackedOnce.Do(func() {
		out := make(map[string]models.FromTo)

		keys := make(map[string]struct{}, len(p.rec.Original)+len(p.rec.Modified))
		for k := range p.rec.Original {
			keys[k] = struct{}{}
		}

		for k := range p.rec.Modified {
			keys[k] = struct{}{}
		}

		for k := range keys {
			ft := models.FromTo{From: p.rec.Original[k], To: p.rec.Modified[k]}
			if ft.From == nil && ft.To == nil {
				continue
			}

			if p.spec != nil && !p.spec.Tracks(k) {
				continue
			}

			out[k] = ft
		}

		p.tracked = out
	})

	return p.tracked
}

// EditSummary categorizes tracked changes into added, removed, array delta
// and modified entries.
func (p *Projection) EditSummary() models.EditSummary {
	p.summaryOnce.Do(func() {
		s := models.EditSummary{}

		for k, ft := range p.TrackedChanges() {
			fromBlank, toBlank := models.IsBlank(ft.From), models.IsBlank(ft.To)

			switch {
			case fromBlank && toBlank:
				continue
			case fromBlank:
				s.Added = put(s.Added, k, ft.To)
			case toBlank:
				s.Removed = put(s.Removed, k, ft.From)
			default:
				if delta, ok := arrayDelta(ft.From, ft.To); ok {
					if s.Array == nil {
						s.Array = make(map[string]models.ArrayDelta)
					}

					s.Array[k] = delta

					continue
				}

				if s.Modified == nil {
					s.Modified = make(map[string]models.FromTo)
				}

				s.Modified[k] = ft
			}
		}

		p.summary = s
	})

	return p.summary
}

// Affected returns the "from" sides for destroy records and the "to" sides
// otherwise.
func (p *Projection) Affected() map[string]any {
	p.affectedOnce.Do(func() {
		out := make(map[string]any)

		for k, ft := range p.TrackedChanges() {
			v := ft.To
			if p.rec.Action == models.ActionDestroy {
				v = ft.From
			}

			if v != nil {
				out[k] = v
			}
		}

		p.affected = out
	})

	return p.affected
}

// View bundles the record with its projections.
func (p *Projection) View() models.HistoryView {
	return models.HistoryView{
		HistoryRecord:  *p.rec,
		TrackedChanges: p.TrackedChanges(),
		EditSummary:    p.EditSummary(),
		Affected:       p.Affected(),
	}
}

// arrayDelta reports the set difference of two lists. Lists holding the same
// members in another order yield an empty delta, still categorized as array.
func arrayDelta(from, to any) (models.ArrayDelta, bool) {
	fl, fok := models.AsList(from)
	tl, tok := models.AsList(to)

	if !fok || !tok {
		return models.ArrayDelta{}, false
	}

	return models.ArrayDelta{Add: subtract(tl, fl), Remove: subtract(fl, tl)}, true
}

// subtract returns the members of a that have no structural match in b.
func subtract(a, b []any) []any {
	var out []any

	for _, x := range a {
		found := false

		for _, y := range b {
			if models.Equal(x, y) {
				found = true

				break
			}
		}

		if !found {
			out = append(out, x)
		}
	}

	return out
}

func put(m map[string]any, k string, v any) map[string]any {
	if m == nil {
		m = make(map[string]any)
	}

	m[k] = v

	return m
}
