package client

import (
	"context"
	"net/url"
)

// TypeService exposes the server's tracking configuration.
type TypeService struct {
	c *Client
}

// List returns the tracked type names.
func (s *TypeService) List(ctx context.Context) ([]string, error) {
	var resp struct {
		Types []string `json:"types"`
	}
	if err := s.c.get(ctx, "/api/v1/types", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Types, nil
}

// Tracking returns the resolved tracking spec of a type.
func (s *TypeService) Tracking(ctx context.Context, typeName string) (*TrackingSpec, error) {
	var spec TrackingSpec
	if err := s.c.get(ctx, "/api/v1/types/"+url.PathEscape(typeName)+"/tracking", nil, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}
