package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/doctrail/internal/metrics"
	"github.com/persistorai/doctrail/internal/models"
)

// publishTimeout bounds a single sink delivery.
const publishTimeout = 10 * time.Second

// FeedSink delivers committed history records to one destination.
type FeedSink interface {
	Name() string
	Publish(ctx context.Context, rec *models.HistoryRecord) error
}

// FeedWorker buffers committed records and fans them out to every sink from
// a single worker goroutine. Delivery is best-effort: the records are
// already durable in the store.
type FeedWorker struct {
	sinks []FeedSink
	log   *logrus.Logger
	jobs  chan *models.HistoryRecord
}

// NewFeedWorker creates a FeedWorker with the given queue capacity.
func NewFeedWorker(log *logrus.Logger, queueSize int, sinks ...FeedSink) *FeedWorker {
	if queueSize <= 0 {
		queueSize = 1000
	}

	return &FeedWorker{
		sinks: sinks,
		log:   log,
		jobs:  make(chan *models.HistoryRecord, queueSize),
	}
}

// Enqueue adds a record. Non-blocking; drops the record if the queue is full.
func (w *FeedWorker) Enqueue(rec *models.HistoryRecord) {
	if len(w.sinks) == 0 {
		return
	}

	select {
	case w.jobs <- rec:
		metrics.FeedQueueDepth.Set(float64(len(w.jobs)))
	default:
		w.log.WithFields(logrus.Fields{
			"record": rec.ID,
			"scope":  rec.Scope,
		}).Warn("feed.queue_full")
	}
}

// Run processes records until the context is cancelled, then drains the queue.
func (w *FeedWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()

			return
		case rec := <-w.jobs:
			w.process(rec)
		}
	}
}

func (w *FeedWorker) drain() {
	for {
		select {
		case rec := <-w.jobs:
			w.process(rec)
		default:
			return
		}
	}
}

func (w *FeedWorker) process(rec *models.HistoryRecord) {
	metrics.FeedQueueDepth.Set(float64(len(w.jobs)))

	for _, sink := range w.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := sink.Publish(ctx, rec)
		cancel()

		if err != nil {
			metrics.FeedPublishedTotal.WithLabelValues(sink.Name(), "error").Inc()
			w.log.WithError(err).WithFields(logrus.Fields{
				"sink":   sink.Name(),
				"record": rec.ID,
			}).Warn("feed.publish_failed")

			continue
		}

		metrics.FeedPublishedTotal.WithLabelValues(sink.Name(), "ok").Inc()
	}
}
