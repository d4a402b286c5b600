package models

// Change is one field's before/after pair inside a Diff. The concrete type
// tells consumers which shape the values have.
type Change interface {
	// Before returns the prior value or nil when the field had none.
	Before() any
	// After returns the resulting value or nil when the field has none.
	After() any
	isChange()
}

// Diff maps tracked field names to their changes.
type Diff map[string]Change

// ScalarChange is a change to a plain top-level value.
type ScalarChange struct {
	From any
	To   any
}

func (c ScalarChange) Before() any { return c.From }
func (c ScalarChange) After() any  { return c.To }
func (ScalarChange) isChange()     {}

// ListChange is a change to a list: an array field or an embedded-many
// relation. A nil side means the list was absent.
type ListChange struct {
	From []any
	To   []any
}

func (c ListChange) Before() any {
	if c.From == nil {
		return nil
	}

	return c.From
}

func (c ListChange) After() any {
	if c.To == nil {
		return nil
	}

	return c.To
}

func (ListChange) isChange() {}

// MapChange is a change to an embedded-one relation. A nil side means the
// relation was absent; an empty map means present but logically deleted.
type MapChange struct {
	From map[string]any
	To   map[string]any
}

func (c MapChange) Before() any {
	if c.From == nil {
		return nil
	}

	return c.From
}

func (c MapChange) After() any {
	if c.To == nil {
		return nil
	}

	return c.To
}

func (MapChange) isChange() {}

// ChangeOf classifies a raw before/after pair into the matching Change.
func ChangeOf(before, after any) Change {
	bl, bIsList := AsList(before)
	al, aIsList := AsList(after)

	if (bIsList || before == nil) && (aIsList || after == nil) && (bIsList || aIsList) {
		return ListChange{From: bl, To: al}
	}

	bm, bIsMap := AsMap(before)
	am, aIsMap := AsMap(after)

	if (bIsMap || before == nil) && (aIsMap || after == nil) && (bIsMap || aIsMap) {
		return MapChange{From: bm, To: am}
	}

	return ScalarChange{From: before, To: after}
}
