// Package ingest queues inbound messages and runs them through the classifier
// and the dispatch coordinator on a fixed set of workers.
package ingest

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/amishk599/jobrelay/internal/dispatch"
	"github.com/amishk599/jobrelay/internal/metrics"
	"github.com/amishk599/jobrelay/internal/model"
)

// Dispatcher handles one classified message.
type Dispatcher interface {
	HandleIncomingMessage(ctx context.Context, text string, meta model.SourceMeta, verdict model.Verdict) (dispatch.Result, error)
}

type job struct {
	id   string
	text string
	meta model.SourceMeta
}

// Pool is a bounded queue drained by a fixed number of workers.
type Pool struct {
	jobs       chan job
	workers    int
	classifier model.Classifier
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewPool returns a pool with queueSize slots and the given number of workers.
func NewPool(classifier model.Classifier, dispatcher Dispatcher, workers, queueSize int, m *metrics.Metrics, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Pool{
		jobs:       make(chan job, queueSize),
		workers:    workers,
		classifier: classifier,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
	}
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has finished its current message. Queued messages are abandoned.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}
	p.logger.Info("ingest workers started", "workers", p.workers, "queue_size", cap(p.jobs))
	wg.Wait()
	return nil
}

// TrySubmit queues a message without blocking. It returns false when the
// queue is full.
func (p *Pool) TrySubmit(text string, meta model.SourceMeta) bool {
	j := newJob(text, meta)
	select {
	case p.jobs <- j:
		p.queued(1)
		p.logger.Debug("queued message", "event_id", j.id, "channel", meta.Channel)
		return true
	default:
		if p.metrics != nil {
			p.metrics.IngestDropped.Inc()
		}
		return false
	}
}

// Submit queues a message, waiting for a free slot until ctx is done.
func (p *Pool) Submit(ctx context.Context, text string, meta model.SourceMeta) error {
	j := newJob(text, meta)
	select {
	case p.jobs <- j:
		p.queued(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newJob(text string, meta model.SourceMeta) job {
	return job{id: uuid.NewString(), text: text, meta: meta}
}

func (p *Pool) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("ingest worker stopped", "worker", id)
			return
		case j := <-p.jobs:
			p.queued(-1)
			p.process(ctx, j)
		}
	}
}

func (p *Pool) process(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("message handler panicked", "event_id", j.id, "panic", r)
		}
	}()

	verdict, err := p.classifier.Classify(ctx, j.text)
	if err != nil {
		p.countClassification("error")
		p.logger.Error("classification failed", "event_id", j.id, "channel", j.meta.Channel, "error", err)
		return
	}
	p.countClassification(strconv.Itoa(verdict.Label))

	res, err := p.dispatcher.HandleIncomingMessage(ctx, j.text, j.meta, verdict)
	if err != nil {
		p.logger.Error("dispatch failed", "event_id", j.id, "channel", j.meta.Channel, "error", err)
		return
	}
	for _, lerr := range res.LedgerErrors {
		p.logger.Warn("delivery not recorded", "event_id", j.id, "fingerprint", res.Fingerprint, "error", lerr)
	}
	p.logger.Debug("message handled",
		"event_id", j.id,
		"fingerprint", res.Fingerprint,
		"outcome", res.Outcome,
		"sent", res.SentCount,
		"failed", len(res.Failures),
	)
}

func (p *Pool) queued(delta float64) {
	if p.metrics != nil {
		p.metrics.IngestQueued.Add(delta)
	}
}

func (p *Pool) countClassification(label string) {
	if p.metrics != nil {
		p.metrics.Classifications.WithLabelValues(label).Inc()
	}
}
