package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	skafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/models"
)

// fakeWriter records messages written.
type fakeWriter struct {
	msgs   []skafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...skafka.Message) error {
	if f.err != nil {
		return f.err
	}

	f.msgs = append(f.msgs, msgs...)

	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true

	return nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func TestKafkaPublisher_Publish(t *testing.T) {
	fw := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(fw, "history", quietLogger())

	rec := &models.HistoryRecord{
		ID:     uuid.New(),
		Scope:  "Post",
		Type:   "Comment",
		Chain:  models.AssociationChain{{Name: "Post", ID: "p1"}, {Name: "comments", ID: "c1"}},
		Action: models.ActionUpdate,
	}

	if err := p.Publish(context.Background(), rec); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(fw.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fw.msgs))
	}

	msg := fw.msgs[0]
	if string(msg.Key) != "Post:p1" {
		t.Errorf("key = %q, want Post:p1", msg.Key)
	}

	var got models.HistoryRecord
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decoding value: %v", err)
	}

	if got.ID != rec.ID || got.Chain.String() != "Post:p1/comments:c1" {
		t.Errorf("decoded record = %+v", got)
	}

	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != "Post" {
		t.Errorf("headers = %v", msg.Headers)
	}
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	boom := errors.New("broker unavailable")
	p := NewKafkaPublisherWithWriter(&fakeWriter{err: boom}, "history", quietLogger())

	err := p.Publish(context.Background(), &models.HistoryRecord{ID: uuid.New()})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped broker error", err)
	}
}

func TestKafkaPublisher_Close(t *testing.T) {
	fw := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(fw, "history", quietLogger())

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !fw.closed || p.Name() != "kafka" {
		t.Error("writer not closed")
	}
}
