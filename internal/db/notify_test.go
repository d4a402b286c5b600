package db

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

type recordingHub struct {
	events []string
}

func (h *recordingHub) BroadcastEvent(eventType, scope string, _ json.RawMessage) {
	h.events = append(h.events, eventType+"@"+scope)
}

func testBridge(hub Broadcaster) *NotifyBridge {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return NewNotifyBridge(log, nil, hub)
}

func TestHandleNotification(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{"notice", `{"type":"history.recorded","scope":"Post","id":"x"}`, []string{"history.recorded@Post"}},
		{"default type", `{"scope":"Post"}`, []string{"history.recorded@Post"}},
		{"missing scope", `{"type":"history.recorded"}`, nil},
		{"garbage", `not json`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := &recordingHub{}
			testBridge(hub).handleNotification(&pgconn.Notification{Channel: "dt_changes", Payload: tt.payload})

			if len(hub.events) != len(tt.want) {
				t.Fatalf("events = %v, want %v", hub.events, tt.want)
			}

			for i := range tt.want {
				if hub.events[i] != tt.want[i] {
					t.Errorf("event[%d] = %q, want %q", i, hub.events[i], tt.want[i])
				}
			}
		})
	}
}

func TestNextBackoff(t *testing.T) {
	for _, cur := range []time.Duration{initialBackoff, 10 * time.Second, maxBackoff} {
		next := nextBackoff(cur)

		want := min(cur*backoffMultiplier, maxBackoff)
		if next < want*3/4 || next > want*5/4 {
			t.Errorf("nextBackoff(%s) = %s, want within 25%% of %s", cur, next, want)
		}
	}
}
