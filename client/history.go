package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// HistoryService handles history queries, undo/redo and maintenance.
type HistoryService struct {
	c *Client
}

// historyListResponse wraps the paginated history response.
type historyListResponse struct {
	Data    []HistoryRecord `json:"data"`
	HasMore bool            `json:"has_more"`
}

// replayResponse wraps the document returned by undo and redo.
type replayResponse struct {
	Document *Document `json:"document"`
}

func historyParams(opts *HistoryListOptions) url.Values {
	params := url.Values{}
	if opts == nil {
		return params
	}
	if opts.Scope != "" {
		params.Set("scope", opts.Scope)
	}
	if opts.Chain != "" {
		params.Set("chain", opts.Chain)
	}
	if opts.Type != "" {
		params.Set("type", opts.Type)
	}
	if opts.Action != "" {
		params.Set("action", opts.Action)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}
	return params
}

func recordPath(id string) string {
	return "/api/v1/history/" + url.PathEscape(id)
}

// List returns history records, newest first.
func (s *HistoryService) List(ctx context.Context, opts *HistoryListOptions) ([]HistoryRecord, bool, error) {
	var resp historyListResponse
	if err := s.c.get(ctx, "/api/v1/history", historyParams(opts), &resp); err != nil {
		return nil, false, err
	}
	return resp.Data, resp.HasMore, nil
}

// Get returns one history record.
func (s *HistoryService) Get(ctx context.Context, id string) (*HistoryRecord, error) {
	var rec HistoryRecord
	if err := s.c.get(ctx, recordPath(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Undo reverts the record and returns the affected root document. The
// document is nil when the undo destroyed the root.
func (s *HistoryService) Undo(ctx context.Context, id string) (*Document, error) {
	var resp replayResponse
	if err := s.c.post(ctx, recordPath(id)+"/undo", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Document, nil
}

// Redo re-applies the record and returns the affected root document.
func (s *HistoryService) Redo(ctx context.Context, id string) (*Document, error) {
	var resp replayResponse
	if err := s.c.post(ctx, recordPath(id)+"/redo", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Document, nil
}

// Purge deletes records older than retentionDays and returns how many went.
func (s *HistoryService) Purge(ctx context.Context, retentionDays int) (int, error) {
	params := url.Values{}
	if retentionDays > 0 {
		params.Set("retention_days", strconv.Itoa(retentionDays))
	}
	var resp struct {
		Deleted int `json:"deleted"`
	}
	if err := s.c.del(ctx, "/api/v1/history", params, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// Export renders matching records as xlsx or csv. Limit and Offset in opts
// are ignored.
func (s *HistoryService) Export(ctx context.Context, opts *HistoryListOptions, format string) (*ExportResult, error) {
	params := historyParams(opts)
	params.Del("limit")
	params.Del("offset")
	if format != "" {
		params.Set("format", format)
	}

	path := "/api/v1/history/export"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	req, err := s.c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, body, err := s.c.send(req)
	if err != nil {
		return nil, err
	}

	out := &ExportResult{
		ContentType: resp.Header.Get("Content-Type"),
		Data:        body,
	}
	out.Rows, _ = strconv.Atoi(resp.Header.Get("X-Export-Rows"))
	out.Truncated, _ = strconv.ParseBool(resp.Header.Get("X-Export-Truncated"))
	out.Filename = "history.xlsx"
	if format == "csv" {
		out.Filename = "history.csv"
	}
	return out, nil
}
