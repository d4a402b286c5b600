package client

import (
	"context"
	"net/url"
	"strconv"
)

// DocumentService handles tracked document operations.
type DocumentService struct {
	c *Client
}

// documentListResponse wraps the paginated document list response.
type documentListResponse struct {
	Documents []Document `json:"documents"`
	HasMore   bool       `json:"has_more"`
}

// diffResponse wraps the diff preview response.
type diffResponse struct {
	Action  string            `json:"action"`
	Changes map[string]FromTo `json:"changes"`
}

func documentsPath(typeName string) string {
	return "/api/v1/documents/" + url.PathEscape(typeName)
}

func documentPath(typeName, id string) string {
	return documentsPath(typeName) + "/" + url.PathEscape(id)
}

// List returns documents of a type, ordered by id.
func (s *DocumentService) List(ctx context.Context, typeName string, limit, offset int) ([]Document, bool, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	var resp documentListResponse
	if err := s.c.get(ctx, documentsPath(typeName), params, &resp); err != nil {
		return nil, false, err
	}
	return resp.Documents, resp.HasMore, nil
}

// Get returns a single document.
func (s *DocumentService) Get(ctx context.Context, typeName, id string) (*Document, error) {
	var doc Document
	if err := s.c.get(ctx, documentPath(typeName, id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Create creates a document and records its create event.
func (s *DocumentService) Create(ctx context.Context, typeName string, req *SaveDocumentRequest) (*Document, error) {
	var doc Document
	if err := s.c.post(ctx, documentsPath(typeName), req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Save replaces a document's attributes and records the update.
func (s *DocumentService) Save(ctx context.Context, typeName, id string, req *SaveDocumentRequest) (*Document, error) {
	var doc Document
	if err := s.c.put(ctx, documentPath(typeName, id), req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete destroys a document and records the destroy event.
func (s *DocumentService) Delete(ctx context.Context, typeName, id string) error {
	return s.c.del(ctx, documentPath(typeName, id), nil, nil)
}

// Diff previews the tracked changes action would record, without writing.
// req may be nil for destroy.
func (s *DocumentService) Diff(ctx context.Context, typeName, id, action string, req *SaveDocumentRequest) (map[string]FromTo, error) {
	path := documentPath(typeName, id) + "/diff"
	if action != "" {
		path += "?action=" + url.QueryEscape(action)
	}
	var body any
	if req != nil {
		body = req
	}
	var resp diffResponse
	if err := s.c.post(ctx, path, body, &resp); err != nil {
		return nil, err
	}
	return resp.Changes, nil
}
