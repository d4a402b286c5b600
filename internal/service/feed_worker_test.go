package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/persistorai/doctrail/internal/models"
)

func TestFeedWorker_PublishesToEverySink(t *testing.T) {
	kafka := &mockSink{name: "kafka"}
	hub := &mockSink{name: "hub", err: errors.New("hub down")}

	fw := NewFeedWorker(testLogger(), 10, kafka, hub)
	ctx, cancel := context.WithCancel(context.Background())

	go fw.Run(ctx)

	rec := &models.HistoryRecord{ID: uuid.New(), Scope: "Post", Action: models.ActionUpdate}
	fw.Enqueue(rec)

	time.Sleep(50 * time.Millisecond)
	cancel()

	if got := kafka.published(); len(got) != 1 || got[0].ID != rec.ID {
		t.Errorf("kafka published %v, want one record", got)
	}

	// A failing sink still receives the record and does not stop the others.
	if got := hub.published(); len(got) != 1 {
		t.Errorf("hub published %d records, want 1", len(got))
	}
}

func TestFeedWorker_DropsWhenFull(t *testing.T) {
	// Worker not started so the queue cannot drain.
	fw := NewFeedWorker(testLogger(), 2, &mockSink{name: "kafka"})

	fw.Enqueue(&models.HistoryRecord{ID: uuid.New()})
	fw.Enqueue(&models.HistoryRecord{ID: uuid.New()})

	done := make(chan struct{})
	go func() {
		fw.Enqueue(&models.HistoryRecord{ID: uuid.New()})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked when queue was full")
	}

	if len(fw.jobs) != 2 {
		t.Errorf("queue len = %d, want 2", len(fw.jobs))
	}
}

func TestFeedWorker_NoSinksIsNoop(t *testing.T) {
	fw := NewFeedWorker(testLogger(), 2)

	fw.Enqueue(&models.HistoryRecord{ID: uuid.New()})

	if len(fw.jobs) != 0 {
		t.Errorf("queue len = %d, want 0", len(fw.jobs))
	}
}

func TestFeedWorker_StopDrains(t *testing.T) {
	sink := &mockSink{name: "kafka"}
	fw := NewFeedWorker(testLogger(), 100, sink)

	for range 5 {
		fw.Enqueue(&models.HistoryRecord{ID: uuid.New()})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		fw.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run didn't return after cancel")
	}

	if got := len(sink.published()); got != 5 {
		t.Errorf("published %d records, want 5", got)
	}
}
