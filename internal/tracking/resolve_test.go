package tracking_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/schema"
	"github.com/persistorai/doctrail/internal/tracking"
)

func testTypes(t *testing.T) *schema.Registry {
	t.Helper()

	reg, err := schema.NewRegistry(
		schema.Type{
			Name: "Post",
			Fields: []schema.Field{
				{Name: "title"},
				{Name: "body", Alias: "content"},
				{Name: "tags"},
				{Name: "version"},
				{Name: "modifier_id"},
			},
			EmbedsOne:  map[string]string{"author": "Author"},
			EmbedsMany: map[string]string{"comments": "Comment"},
		},
		schema.Type{Name: "Author", Embedded: true, Fields: []schema.Field{{Name: "name"}, {Name: "email"}, {Name: "version"}}},
		schema.Type{Name: "Comment", Embedded: true, Fields: []schema.Field{{Name: "text"}, {Name: "score"}}},
		schema.Type{Name: "Note", Dynamic: true, Fields: []schema.Field{{Name: "title"}}},
	)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}

	return reg
}

func TestResolve_Defaults(t *testing.T) {
	spec, err := tracking.Resolve(testTypes(t), "Post", tracking.Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	p := spec.Prepared()

	if !reflect.DeepEqual(p.Fields, []string{"body", "tags", "title"}) {
		t.Errorf("fields = %v", p.Fields)
	}

	if len(p.EmbedsOne) != 0 || len(p.EmbedsMany) != 0 {
		t.Errorf("relations must be opt-in, got %v %v", p.EmbedsOne, p.EmbedsMany)
	}

	if p.Scope != "Post" || p.VersionField != "version" || p.ModifierField != "modifier_id" {
		t.Errorf("unexpected defaults: %+v", p)
	}

	for _, r := range []string{"_id", "_type", "version", "modifier_id"} {
		if spec.IsTrackedField(r) {
			t.Errorf("reserved field %s must not be tracked", r)
		}
	}

	if !spec.TracksAction(models.ActionCreate) || !spec.TracksAction(models.ActionDestroy) {
		t.Error("all actions tracked by default")
	}
}

func TestResolve_SentinelsAndRelations(t *testing.T) {
	spec, err := tracking.Resolve(testTypes(t), "Post", tracking.Options{
		On: []any{":fields", ":embedded_relations", map[string]any{"author": []any{"name"}}},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	author, ok := spec.EmbeddedOne("author")
	if !ok || !reflect.DeepEqual(author, []string{"_id", "name"}) {
		t.Errorf("author allow-list = %v", author)
	}

	comments, ok := spec.EmbeddedMany("comments")
	if !ok || !reflect.DeepEqual(comments, []string{"_id", "score", "text"}) {
		t.Errorf("comments allow-list = %v", comments)
	}
}

func TestResolve_DefaultAllowListDropsReserved(t *testing.T) {
	spec, err := tracking.Resolve(testTypes(t), "Post", tracking.Options{On: []any{"author"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	author, _ := spec.EmbeddedOne("author")
	if !reflect.DeepEqual(author, []string{"_id", "email", "name"}) {
		t.Errorf("author allow-list = %v", author)
	}
}

func TestResolve_AliasesAndExcept(t *testing.T) {
	spec, err := tracking.Resolve(testTypes(t), "Post", tracking.Options{
		On:     []any{"content", "title", "tags"},
		Except: []string{"tags"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got := spec.TrackedFields(); !reflect.DeepEqual(got, []string{"body", "title"}) {
		t.Errorf("fields = %v", got)
	}
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		opts tracking.Options
	}{
		{name: "unknown type", typ: "Ghost"},
		{name: "unknown field", typ: "Post", opts: tracking.Options{On: []any{"nope"}}},
		{name: "relation excepted", typ: "Post", opts: tracking.Options{On: []any{"comments"}, Except: []string{"comments"}}},
		{name: "allow-list on field", typ: "Post", opts: tracking.Options{On: []any{map[string]any{"title": []any{"x"}}}}},
		{name: "unknown allow-list attr", typ: "Post", opts: tracking.Options{On: []any{map[string][]string{"author": {"age"}}}}},
		{name: "bad directive", typ: "Post", opts: tracking.Options{On: []any{42}}},
		{name: "bad format", typ: "Post", opts: tracking.Options{Format: map[string]string{"title": "plain"}}},
		{name: "format unknown field", typ: "Post", opts: tracking.Options{Format: map[string]string{"zzz": "obfuscate"}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tracking.Resolve(testTypes(t), tc.typ, tc.opts)

			var cerr *models.ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestResolve_SentinelRelationExceptedIsDropped(t *testing.T) {
	spec, err := tracking.Resolve(testTypes(t), "Post", tracking.Options{
		On:     []any{"embedded_relations"},
		Except: []string{"comments"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if _, ok := spec.EmbeddedMany("comments"); ok {
		t.Error("excepted relation must be dropped")
	}

	if _, ok := spec.EmbeddedOne("author"); !ok {
		t.Error("author should be tracked")
	}
}

func TestResolve_DynamicFields(t *testing.T) {
	spec, err := tracking.Resolve(testTypes(t), "Note", tracking.Options{On: []any{"title", "mood"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	p := spec.Prepared()
	if !reflect.DeepEqual(p.DynamicFields, []string{"mood"}) {
		t.Errorf("dynamic = %v", p.DynamicFields)
	}

	if !spec.IsTrackedField("mood") || !spec.Tracks("title") {
		t.Error("both static and dynamic fields are tracked")
	}
}

func TestResolve_FormatsAndConditions(t *testing.T) {
	spec, err := tracking.Resolve(testTypes(t), "Post", tracking.Options{
		On:     []any{"title", "author"},
		Format: map[string]string{"title": ":obfuscate", "author.email": "<%v>"},
		Unless: []string{"draft"},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	f, ok := spec.FormatFor("title")
	if !ok || f.Apply("secret") != tracking.ObfuscatedValue || f.Apply(nil) != nil {
		t.Error("title should be obfuscated and nil kept")
	}

	f, ok = spec.FormatFor("author.email")
	if !ok || f.Apply("a@b") != "<a@b>" {
		t.Error("nested template format not applied")
	}

	if spec.ShouldRecord(&models.Entity{Attributes: map[string]any{"draft": true}}) {
		t.Error("unless draft should skip")
	}

	if !spec.ShouldRecord(&models.Entity{Attributes: map[string]any{"draft": false}}) {
		t.Error("draft=false should record")
	}
}

func TestRegistry_MemoizeAndInvalidate(t *testing.T) {
	reg := tracking.NewRegistry(testTypes(t))

	first, err := reg.Register("Post", tracking.Options{On: []any{"title"}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok := reg.Spec("Post")
	if !ok || got != first {
		t.Fatal("expected cached spec")
	}

	second, err := reg.Register("Post", tracking.Options{On: []any{"body"}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if got, _ := reg.Spec("Post"); got != second || got.IsTrackedField("title") {
		t.Error("re-registration should replace the spec")
	}

	if !reflect.DeepEqual(reg.Types(), []string{"Post"}) {
		t.Errorf("types = %v", reg.Types())
	}

	if !reg.Invalidate("Post") {
		t.Error("expected Post to be registered")
	}

	if _, ok := reg.Spec("Post"); ok {
		t.Error("spec should be gone")
	}
}

func TestRegistry_RegisterErrorKeepsPrevious(t *testing.T) {
	reg := tracking.NewRegistry(testTypes(t))

	if _, err := reg.Register("Post", tracking.Options{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := reg.Register("Post", tracking.Options{On: []any{"nope"}}); err == nil {
		t.Fatal("expected error")
	}

	if _, ok := reg.Spec("Post"); !ok {
		t.Error("failed re-registration must keep the old spec")
	}
}
