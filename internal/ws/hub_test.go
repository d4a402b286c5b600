package ws

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/models"
)

func testHub(t *testing.T) *Hub {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	h := NewHub(log, BufferConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go h.Run(ctx)

	return h
}

func fakeClient(h *Hub, scope string) *Client {
	return &Client{hub: h, send: make(chan []byte, clientSendBuffer), log: h.log, Scope: scope}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()

	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}

		var evt Event
		if err := json.Unmarshal(msg, &evt); err != nil {
			t.Fatalf("decoding event: %v", err)
		}

		return evt
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	return Event{}
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", h.ClientCount(), n)
		}

		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastIsScoped(t *testing.T) {
	h := testHub(t)
	posts, users := fakeClient(h, "Post"), fakeClient(h, "User")

	h.Register(posts)
	h.Register(users)
	waitForClients(t, h, 2)

	h.BroadcastEvent("history.recorded", "Post", json.RawMessage(`{"id":"x"}`))

	evt := receive(t, posts)
	if evt.Scope != "Post" || evt.ID != 1 {
		t.Errorf("event = %+v", evt)
	}

	select {
	case msg := <-users.send:
		t.Errorf("other scope received %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_Unregister(t *testing.T) {
	h := testHub(t)
	c := fakeClient(h, "Post")

	h.Register(c)
	waitForClients(t, h, 1)

	h.Unregister(c)
	waitForClients(t, h, 0)

	if _, ok := <-c.send; ok {
		t.Error("send channel still open after unregister")
	}
}

func TestHub_ReplayEvents(t *testing.T) {
	h := testHub(t)

	for range 3 {
		h.BroadcastEvent("history.recorded", "Post", json.RawMessage(`{}`))
	}

	c := fakeClient(h, "Post")
	if !h.ReplayEvents(c, 1) {
		t.Fatal("ReplayEvents reported a gap")
	}

	if got := []uint64{receive(t, c).ID, receive(t, c).ID}; got[0] != 2 || got[1] != 3 {
		t.Errorf("replayed ids = %v, want [2 3]", got)
	}
}

func TestHub_ReplayGapHonoursScopeLimit(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	h := NewHub(log, BufferConfig{MaxLen: 10, ScopeMaxLen: map[string]int{"Post": 2}})

	for range 4 {
		h.BroadcastEvent("history.recorded", "Post", json.RawMessage(`{}`))
		h.BroadcastEvent("history.recorded", "Invoice", json.RawMessage(`{}`))
	}

	if h.ReplayEvents(fakeClient(h, "Post"), 1) {
		t.Error("Post replay from id 1 should report a gap")
	}

	c := fakeClient(h, "Invoice")
	if !h.ReplayEvents(c, 1) {
		t.Fatal("Invoice replay reported a gap")
	}

	if got := len(c.send); got != 3 {
		t.Errorf("replayed %d Invoice events, want 3", got)
	}
}

func TestHubSink_Publish(t *testing.T) {
	h := testHub(t)
	c := fakeClient(h, "Post")

	h.Register(c)
	waitForClients(t, h, 1)

	sink := NewHubSink(h)
	rec := &models.HistoryRecord{
		ID:      uuid.New(),
		Scope:   "Post",
		Chain:   models.AssociationChain{{Name: "Post", ID: "p1"}},
		Action:  models.ActionCreate,
		Version: 1,
	}

	if err := sink.Publish(context.Background(), rec); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	evt := receive(t, c)
	if evt.Type != models.NoticeType {
		t.Errorf("type = %q", evt.Type)
	}

	var notice models.HistoryNotice
	if err := json.Unmarshal(evt.Data, &notice); err != nil {
		t.Fatalf("decoding notice: %v", err)
	}

	if notice.ID != rec.ID.String() || notice.Chain != "Post:p1" {
		t.Errorf("notice = %+v", notice)
	}
}
