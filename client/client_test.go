package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestServer creates a test server that routes to the given handler map.
// Keys are "METHOD /path", values are handler funcs.
func newTestServer(t *testing.T, routes map[string]http.HandlerFunc, opts ...Option) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range routes {
		mux.HandleFunc(pattern, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := New(srv.URL, append([]Option{WithActor("alice")}, opts...)...)
	return srv, c
}

func jsonResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func TestHealth(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/health": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, HealthResponse{Status: "ok", Version: "0.3.0", Backend: "badger"})
		},
	})
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("got status %q, want ok", resp.Status)
	}
	if resp.Backend != "badger" {
		t.Errorf("got backend %q, want badger", resp.Backend)
	}
}

func TestReady_NotReady(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/ready": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 503, map[string]any{"status": "not_ready"})
		},
	})
	if _, err := c.Ready(context.Background()); statusOf(err) != 503 {
		t.Fatalf("expected 503 APIError, got %v", err)
	}
}

func TestDocumentsCRUD(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/documents/Post": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("limit") != "10" {
				t.Errorf("expected limit=10, got %q", r.URL.Query().Get("limit"))
			}
			jsonResponse(w, 200, map[string]any{"documents": []Document{{Type: "Post", ID: "p1"}}, "has_more": true})
		},
		"POST /api/v1/documents/Post": func(w http.ResponseWriter, r *http.Request) {
			var req SaveDocumentRequest
			json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
			jsonResponse(w, 201, Document{Type: "Post", ID: req.ID, Revision: 1, Attributes: req.Attributes})
		},
		"GET /api/v1/documents/Post/p1": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, Document{Type: "Post", ID: "p1", Revision: 1})
		},
		"PUT /api/v1/documents/Post/p1": func(w http.ResponseWriter, r *http.Request) {
			var req SaveDocumentRequest
			json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
			jsonResponse(w, 200, Document{Type: "Post", ID: "p1", Revision: req.Revision + 1})
		},
		"DELETE /api/v1/documents/Post/p1": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, map[string]bool{"deleted": true})
		},
	})

	ctx := context.Background()

	docs, hasMore, err := c.Documents.List(ctx, "Post", 10, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(docs) != 1 || !hasMore {
		t.Errorf("List: got %d docs, hasMore=%v", len(docs), hasMore)
	}

	doc, err := c.Documents.Create(ctx, "Post", &SaveDocumentRequest{ID: "p1", Attributes: map[string]any{"title": "a"}})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if doc.ID != "p1" || doc.Attributes["title"] != "a" {
		t.Errorf("Create: got %+v", doc)
	}

	doc, err = c.Documents.Get(ctx, "Post", "p1")
	if err != nil || doc.Revision != 1 {
		t.Fatalf("Get: err=%v doc=%+v", err, doc)
	}

	doc, err = c.Documents.Save(ctx, "Post", "p1", &SaveDocumentRequest{Revision: 1, Attributes: map[string]any{}})
	if err != nil || doc.Revision != 2 {
		t.Fatalf("Save: err=%v doc=%+v", err, doc)
	}

	if err := c.Documents.Delete(ctx, "Post", "p1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
}

func TestDocumentsDiff(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/documents/Post/p1/diff": func(w http.ResponseWriter, r *http.Request) {
			jsonResponse(w, 200, map[string]any{
				"action":  r.URL.Query().Get("action"),
				"changes": map[string]FromTo{"title": {From: "a", To: "b"}},
			})
		},
	})

	changes, err := c.Documents.Diff(context.Background(), "Post", "p1", "update", &SaveDocumentRequest{Attributes: map[string]any{"title": "b"}})
	if err != nil {
		t.Fatalf("Diff error: %v", err)
	}
	if changes["title"].To != "b" {
		t.Errorf("Diff: got %v", changes)
	}
}

func TestHistory(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/history": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("scope") != "post" || q.Get("chain") != "Post:p1" || q.Get("action") != "update" {
				t.Errorf("unexpected query: %v", q)
			}
			jsonResponse(w, 200, map[string]any{
				"data": []HistoryRecord{{
					ID:     "r1",
					Chain:  []ChainLink{{Name: "Post", ID: "p1"}, {Name: "comments", ID: "c1"}},
					Action: "update",
				}},
				"has_more": false,
			})
		},
		"GET /api/v1/history/r1": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, HistoryRecord{ID: "r1", Version: 2})
		},
		"DELETE /api/v1/history": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("retention_days") != "30" {
				t.Errorf("expected retention_days=30, got %q", r.URL.Query().Get("retention_days"))
			}
			jsonResponse(w, 200, map[string]any{"deleted": 12, "retention_days": 30})
		},
	})

	ctx := context.Background()

	recs, hasMore, err := c.History.List(ctx, &HistoryListOptions{Scope: "post", Chain: "Post:p1", Action: "update"})
	if err != nil || len(recs) != 1 || hasMore {
		t.Fatalf("List: err=%v len=%d", err, len(recs))
	}
	if got := recs[0].ChainString(); got != "Post:p1/comments:c1" {
		t.Errorf("ChainString: got %q", got)
	}

	rec, err := c.History.Get(ctx, "r1")
	if err != nil || rec.Version != 2 {
		t.Fatalf("Get: err=%v rec=%+v", err, rec)
	}

	deleted, err := c.History.Purge(ctx, 30)
	if err != nil || deleted != 12 {
		t.Fatalf("Purge: err=%v deleted=%d", err, deleted)
	}
}

func TestHistoryUndoRedo(t *testing.T) {
	var actors []string
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/history/r1/undo": func(w http.ResponseWriter, r *http.Request) {
			actors = append(actors, r.Header.Get(ActorHeader))
			jsonResponse(w, 200, map[string]any{"document": Document{ID: "p1", Revision: 3}})
		},
		"POST /api/v1/history/r1/redo": func(w http.ResponseWriter, r *http.Request) {
			actors = append(actors, r.Header.Get(ActorHeader))
			jsonResponse(w, 200, map[string]any{"document": nil})
		},
	})

	ctx := context.Background()

	doc, err := c.History.Undo(ctx, "r1")
	if err != nil || doc == nil || doc.Revision != 3 {
		t.Fatalf("Undo: err=%v doc=%+v", err, doc)
	}

	doc, err = c.History.Redo(ctx, "r1")
	if err != nil || doc != nil {
		t.Fatalf("Redo: err=%v doc=%+v", err, doc)
	}

	if len(actors) != 2 || actors[0] != "alice" || actors[1] != "alice" {
		t.Errorf("actor header: got %v", actors)
	}
}

func TestHistoryExport(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/history/export": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("limit") != "" {
				t.Errorf("export must not send limit")
			}
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("X-Export-Rows", "1")
			w.Header().Set("X-Export-Truncated", "false")
			w.Write([]byte("id\nr1\n")) //nolint:errcheck
		},
	})

	res, err := c.History.Export(context.Background(), &HistoryListOptions{Scope: "post", Limit: 5}, "csv")
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}
	if res.Rows != 1 || res.Truncated || res.Filename != "history.csv" || string(res.Data) != "id\nr1\n" {
		t.Errorf("Export: got %+v", res)
	}
}

func TestTypes(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/types": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, map[string]any{"types": []string{"Comment", "Post"}})
		},
		"GET /api/v1/types/Post/tracking": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, TrackingSpec{Type: "Post", Scope: "post", Fields: []string{"title"}})
		},
	})

	ctx := context.Background()

	types, err := c.Types.List(ctx)
	if err != nil || len(types) != 2 {
		t.Fatalf("List: err=%v types=%v", err, types)
	}

	spec, err := c.Types.Tracking(ctx, "Post")
	if err != nil || spec.Scope != "post" {
		t.Fatalf("Tracking: err=%v spec=%+v", err, spec)
	}
}

func TestAPIError(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/documents/Post/missing": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 404, map[string]string{"code": "not_found", "message": "not found"})
		},
		"PUT /api/v1/documents/Post/p1": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 409, map[string]string{"code": "conflict", "message": "version conflict"})
		},
		"POST /api/v1/documents/Post": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(400)
			w.Write([]byte("plain failure")) //nolint:errcheck
		},
	})

	ctx := context.Background()

	_, err := c.Documents.Get(ctx, "Post", "missing")
	if !IsNotFound(err) {
		t.Errorf("expected not found, got: %v", err)
	}

	_, err = c.Documents.Save(ctx, "Post", "p1", &SaveDocumentRequest{Revision: 1})
	if !IsConflict(err) {
		t.Errorf("expected conflict, got: %v", err)
	}

	_, err = c.Documents.Create(ctx, "Post", &SaveDocumentRequest{})
	if !IsValidation(err) {
		t.Errorf("expected validation error, got: %v", err)
	}
	if e, ok := err.(*APIError); !ok || e.Code != "unknown" || e.Message != "plain failure" {
		t.Errorf("expected raw body fallback, got: %#v", err)
	}
}

func TestAPIError_ValidationFields(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/documents/Post": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 400, map[string]any{
				"code":    "validation_error",
				"message": "validation failed: Post [modifier]: required",
				"fields":  []string{"modifier"},
			})
		},
	})

	_, err := c.Documents.Create(context.Background(), "Post", &SaveDocumentRequest{})
	e, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if len(e.Fields) != 1 || e.Fields[0] != "modifier" {
		t.Errorf("got fields %v, want [modifier]", e.Fields)
	}
}

func TestTrackingHeaders(t *testing.T) {
	var gotActor, gotDisabled string
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/health": func(w http.ResponseWriter, r *http.Request) {
			gotActor = r.Header.Get(ActorHeader)
			gotDisabled = r.Header.Get(TrackingDisabledHeader)
			jsonResponse(w, 200, HealthResponse{Status: "ok"})
		},
	}, WithTrackingDisabled("post", "comment"))

	c.Health(context.Background()) //nolint:errcheck
	if gotActor != "alice" {
		t.Errorf("actor header: got %q, want %q", gotActor, "alice")
	}
	if gotDisabled != "post,comment" {
		t.Errorf("tracking header: got %q, want %q", gotDisabled, "post,comment")
	}
}
