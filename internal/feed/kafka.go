// Package feed publishes committed history records to external consumers.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	skafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/models"
)

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// KafkaPublisher writes each record as one JSON message keyed by the root of
// its association chain, so every record of one document lands on the same
// partition in commit order.
type KafkaPublisher struct {
	writer Writer
	topic  string
	log    *logrus.Logger
}

// NewKafkaPublisher creates a publisher writing to topic on the given
// comma-separated broker list.
func NewKafkaPublisher(brokers, topic string, log *logrus.Logger) *KafkaPublisher {
	addrs := strings.Split(brokers, ",")
	for i := range addrs {
		addrs[i] = strings.TrimSpace(addrs[i])
	}

	w := &skafka.Writer{
		Addr:         skafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: skafka.RequireOne,
	}

	return &KafkaPublisher{writer: w, topic: topic, log: log}
}

// NewKafkaPublisherWithWriter allows injecting a test writer.
func NewKafkaPublisherWithWriter(w Writer, topic string, log *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, log: log}
}

// Name identifies the sink in metrics and logs.
func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish writes rec to the topic.
func (p *KafkaPublisher) Publish(ctx context.Context, rec *models.HistoryRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding history record %s: %w", rec.ID, err)
	}

	msg := skafka.Message{
		Key:   []byte(models.AssociationChain{rec.Chain.Root()}.String()),
		Value: b,
		Time:  rec.CreatedAt,
		Headers: []skafka.Header{
			{Key: "scope", Value: []byte(rec.Scope)},
			{Key: "action", Value: []byte(rec.Action)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing history record %s to %s: %w", rec.ID, p.topic, err)
	}

	p.log.WithFields(logrus.Fields{
		"record": rec.ID,
		"topic":  p.topic,
	}).Debug("feed.kafka_published")

	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
