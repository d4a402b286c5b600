package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"testing"

	"github.com/persistorai/doctrail/internal/api"
	"github.com/persistorai/doctrail/internal/models"
	"github.com/persistorai/doctrail/internal/trackctx"
)

func TestDocumentCreate_Valid(t *testing.T) {
	t.Parallel()

	var gotActor string

	svc := &mockDocumentService{
		createFn: func(ctx context.Context, typeName string, req models.SaveDocumentRequest) (*models.Document, error) {
			gotActor = trackctx.Actor(ctx)

			return &models.Document{Type: typeName, ID: req.ID, Revision: 1, Attributes: req.Attributes}, nil
		},
	}

	r := newTestRouter()
	h := api.NewDocumentHandler(svc, testLogger())
	r.POST("/documents/:type", h.Create)

	w := doRequest(r, http.MethodPost, "/documents/Post", `{"id":"p1","attributes":{"title":"a"}}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var doc models.Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if doc.Type != "Post" || doc.ID != "p1" {
		t.Errorf("expected Post/p1, got %s/%s", doc.Type, doc.ID)
	}

	if gotActor != testActor {
		t.Errorf("expected actor %q in context, got %q", testActor, gotActor)
	}
}

func TestDocumentCreate_InvalidBody(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	h := api.NewDocumentHandler(&mockDocumentService{}, testLogger())
	r.POST("/documents/:type", h.Create)

	w := doRequest(r, http.MethodPost, "/documents/Post", `{"attributes":`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDocumentCreate_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"unknown type", fmt.Errorf("%w: Nope", models.ErrUnknownType), http.StatusNotFound, api.ErrCodeNotFound},
		{"modifier required", &models.ValidationError{Type: "Post", Fields: []string{"modifier"}, Reason: "required"}, http.StatusBadRequest, api.ErrCodeValidationError},
		{"configuration", &models.ConfigurationError{Type: "Post", Reason: "bad"}, http.StatusBadRequest, api.ErrCodeConfiguration},
		{"conflict", fmt.Errorf("committing: %w", models.ErrConflict), http.StatusConflict, api.ErrCodeConflict},
		{"store", errBoom, http.StatusInternalServerError, api.ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockDocumentService{
				createFn: func(context.Context, string, models.SaveDocumentRequest) (*models.Document, error) {
					return nil, tt.err
				},
			}

			r := newTestRouter()
			h := api.NewDocumentHandler(svc, testLogger())
			r.POST("/documents/:type", h.Create)

			w := doRequest(r, http.MethodPost, "/documents/Post", `{"attributes":{}}`)

			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}

			var body struct {
				Code   string   `json:"code"`
				Fields []string `json:"fields"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}

			if body.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, body.Code)
			}

			var ve *models.ValidationError
			if errors.As(tt.err, &ve) && !slices.Equal(body.Fields, ve.Fields) {
				t.Errorf("expected fields %v, got %v", ve.Fields, body.Fields)
			}
		})
	}
}

func TestDocumentGet_NotFound(t *testing.T) {
	t.Parallel()

	svc := &mockDocumentService{
		getFn: func(context.Context, string, string) (*models.Document, error) {
			return nil, &models.NotFoundError{Link: models.ChainLink{Name: "Post", ID: "p9"}}
		},
	}

	r := newTestRouter()
	h := api.NewDocumentHandler(svc, testLogger())
	r.GET("/documents/:type/:id", h.Get)

	w := doRequest(r, http.MethodGet, "/documents/Post/p9", "")

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDocumentList_Pagination(t *testing.T) {
	t.Parallel()

	var gotLimit, gotOffset int

	svc := &mockDocumentService{
		listFn: func(_ context.Context, _ string, limit, offset int) ([]models.Document, bool, error) {
			gotLimit, gotOffset = limit, offset

			return []models.Document{{Type: "Post", ID: "p1"}}, true, nil
		},
	}

	r := newTestRouter()
	h := api.NewDocumentHandler(svc, testLogger())
	r.GET("/documents/:type", h.List)

	w := doRequest(r, http.MethodGet, "/documents/Post?limit=5000&offset=-3", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if gotLimit != 1000 || gotOffset != 0 {
		t.Errorf("expected clamped limit 1000 offset 0, got %d %d", gotLimit, gotOffset)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if body["has_more"] != true {
		t.Errorf("expected has_more=true, got %v", body["has_more"])
	}
}

func TestDocumentSave_PassesRevision(t *testing.T) {
	t.Parallel()

	svc := &mockDocumentService{
		saveFn: func(_ context.Context, typeName, id string, req models.SaveDocumentRequest) (*models.Document, error) {
			return &models.Document{Type: typeName, ID: id, Revision: req.Revision + 1, Attributes: req.Attributes}, nil
		},
	}

	r := newTestRouter()
	h := api.NewDocumentHandler(svc, testLogger())
	r.PUT("/documents/:type/:id", h.Save)

	w := doRequest(r, http.MethodPut, "/documents/Post/p1", `{"revision":3,"attributes":{"title":"b"}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var doc models.Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if doc.Revision != 4 {
		t.Errorf("expected revision 4, got %d", doc.Revision)
	}
}

func TestDocumentDestroy(t *testing.T) {
	t.Parallel()

	var destroyed string

	svc := &mockDocumentService{
		destroyFn: func(_ context.Context, typeName, id string) error {
			destroyed = typeName + "/" + id

			return nil
		},
	}

	r := newTestRouter()
	h := api.NewDocumentHandler(svc, testLogger())
	r.DELETE("/documents/:type/:id", h.Destroy)

	w := doRequest(r, http.MethodDelete, "/documents/Post/p1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if destroyed != "Post/p1" {
		t.Errorf("expected Post/p1 destroyed, got %q", destroyed)
	}
}

func TestDocumentDiff(t *testing.T) {
	t.Parallel()

	var gotAction models.Action

	svc := &mockDocumentService{
		diffFn: func(_ context.Context, _, _ string, _ models.SaveDocumentRequest, action models.Action) (map[string]models.FromTo, error) {
			gotAction = action

			return map[string]models.FromTo{"title": {From: "a", To: "b"}}, nil
		},
	}

	r := newTestRouter()
	h := api.NewDocumentHandler(svc, testLogger())
	r.POST("/documents/:type/:id/diff", h.Diff)

	w := doRequest(r, http.MethodPost, "/documents/Post/p1/diff", `{"attributes":{"title":"b"}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if gotAction != models.ActionUpdate {
		t.Errorf("expected default action update, got %q", gotAction)
	}

	var body struct {
		Changes map[string]models.FromTo `json:"changes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if body.Changes["title"].To != "b" {
		t.Errorf("expected title change to b, got %v", body.Changes)
	}
}

func TestDocumentDiff_DestroyNeedsNoBody(t *testing.T) {
	t.Parallel()

	svc := &mockDocumentService{
		diffFn: func(_ context.Context, _, _ string, _ models.SaveDocumentRequest, action models.Action) (map[string]models.FromTo, error) {
			if action != models.ActionDestroy {
				t.Errorf("expected destroy, got %q", action)
			}

			return map[string]models.FromTo{}, nil
		},
	}

	r := newTestRouter()
	h := api.NewDocumentHandler(svc, testLogger())
	r.POST("/documents/:type/:id/diff", h.Diff)

	w := doRequest(r, http.MethodPost, "/documents/Post/p1/diff?action=destroy", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDocumentDiff_BadAction(t *testing.T) {
	t.Parallel()

	r := newTestRouter()
	h := api.NewDocumentHandler(&mockDocumentService{}, testLogger())
	r.POST("/documents/:type/:id/diff", h.Diff)

	w := doRequest(r, http.MethodPost, "/documents/Post/p1/diff?action=rename", `{"attributes":{}}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}
