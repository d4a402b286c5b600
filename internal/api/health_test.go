package api_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/doctrail/internal/api"
	"github.com/persistorai/doctrail/internal/tracking"
)

func TestLiveness_ReturnsOK(t *testing.T) {
	t.Parallel()

	h := api.NewHealthHandler(&mockPinger{}, nil, testLogger(), "test-v1", "badger", nil)

	r := gin.New()
	r.GET("/health", h.Liveness)

	w := doRequest(r, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", body["status"])
	}

	if body["version"] != "test-v1" {
		t.Errorf("expected version 'test-v1', got %v", body["version"])
	}

	if body["storage"] != "connected" {
		t.Errorf("expected storage 'connected', got %v", body["storage"])
	}
}

func TestLiveness_StorageDown(t *testing.T) {
	t.Parallel()

	h := api.NewHealthHandler(&mockPinger{err: errBoom}, nil, testLogger(), "v", "postgres", nil)

	r := gin.New()
	r.GET("/health", h.Liveness)

	w := doRequest(r, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("liveness must stay 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if body["storage"] != "disconnected" {
		t.Errorf("expected storage 'disconnected', got %v", body["storage"])
	}
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		store api.Pinger
		want  int
	}{
		{"ready", &mockPinger{}, http.StatusOK},
		{"storage down", &mockPinger{err: errBoom}, http.StatusServiceUnavailable},
		{"no storage", nil, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := api.NewHealthHandler(tt.store, nil, testLogger(), "v", "badger", func() []string { return []string{"Post"} })

			r := gin.New()
			r.GET("/ready", h.Readiness)

			w := doRequest(r, http.MethodGet, "/ready", "")

			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestTypes(t *testing.T) {
	t.Parallel()

	svc := &mockTrackingService{specs: map[string]tracking.Prepared{
		"Post": {Type: "Post", Scope: "post", Fields: []string{"title"}, TrackUpdate: true},
	}}

	r := newTestRouter()
	h := api.NewTypeHandler(svc, testLogger())
	r.GET("/types", h.List)
	r.GET("/types/:type/tracking", h.Tracking)

	w := doRequest(r, http.MethodGet, "/types", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var list struct {
		Types []string `json:"types"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if len(list.Types) != 1 || list.Types[0] != "Post" {
		t.Errorf("expected [Post], got %v", list.Types)
	}

	w = doRequest(r, http.MethodGet, "/types/Post/tracking", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var p tracking.Prepared
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if p.Scope != "post" || !p.TrackUpdate {
		t.Errorf("unexpected prepared spec: %+v", p)
	}

	w = doRequest(r, http.MethodGet, "/types/Nope/tracking", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
