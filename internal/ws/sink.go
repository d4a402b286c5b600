package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/persistorai/doctrail/internal/models"
)

// HubSink announces committed history records to the hub. It is the feed
// sink used when no database notification channel exists.
type HubSink struct {
	hub *Hub
}

// NewHubSink wraps hub as a feed sink.
func NewHubSink(hub *Hub) *HubSink {
	return &HubSink{hub: hub}
}

// Name identifies the sink in metrics and logs.
func (s *HubSink) Name() string { return "ws" }

// Publish broadcasts the notice of rec to the clients of its scope.
func (s *HubSink) Publish(_ context.Context, rec *models.HistoryRecord) error {
	data, err := json.Marshal(models.NoticeOf(rec))
	if err != nil {
		return fmt.Errorf("encoding notice: %w", err)
	}

	s.hub.BroadcastEvent(models.NoticeType, rec.Scope, data)

	return nil
}
