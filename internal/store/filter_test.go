package store

import (
	"testing"

	"github.com/persistorai/doctrail/internal/models"
)

func TestBuildHistoryFilter(t *testing.T) {
	where, args, next := buildHistoryFilter(models.HistoryQuery{
		Scope:  "Article",
		Chain:  models.AssociationChain{{Name: "Article", ID: "a 1"}},
		Action: models.ActionUpdate,
	})

	want := "WHERE scope = $1 AND starts_with(chain_path, $2) AND action = $3"
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}

	if len(args) != 3 || next != 4 {
		t.Fatalf("args = %v next = %d", args, next)
	}

	if args[1] != "Article:a+1/" {
		t.Errorf("chain arg = %v", args[1])
	}
}

func TestBuildHistoryFilter_Empty(t *testing.T) {
	where, args, next := buildHistoryFilter(models.HistoryQuery{})
	if where != "" || len(args) != 0 || next != 1 {
		t.Errorf("got %q %v %d", where, args, next)
	}
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		limit, offset int
		wantL, wantO  int
	}{
		{0, -3, 50, 0},
		{5000, 10, maxListLimit, 10},
		{20, 4, 20, 4},
	}

	for _, tt := range tests {
		l, o := clampPage(tt.limit, tt.offset)
		if l != tt.wantL || o != tt.wantO {
			t.Errorf("clampPage(%d, %d) = %d, %d", tt.limit, tt.offset, l, o)
		}
	}
}
