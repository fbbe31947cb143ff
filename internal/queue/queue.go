// Package queue serializes evaluation batches through a single drain
// goroutine and keeps their results until fetched.
package queue

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/internal/metrics"
	"github.com/sells-group/evidence-cli/internal/model"
)

// Sentinel errors returned by Result and Await.
var (
	ErrNotFound     = eris.New("queue: batch not found")
	ErrNotCompleted = eris.New("queue: batch not completed")
	ErrAwaitTimeout = eris.New("queue: timed out waiting for batch")
)

const (
	defaultPollInterval = time.Second
	defaultAwaitTimeout = 5 * time.Minute
)

// BatchFailedError is returned by Await when the batch ended in failure.
type BatchFailedError struct {
	BatchID string
	Message string
}

func (e *BatchFailedError) Error() string {
	return fmt.Sprintf("queue: batch %s failed: %s", e.BatchID, e.Message)
}

// Evaluator runs the per-document and cross-document work of a batch.
type Evaluator interface {
	Evaluate(ctx context.Context, doc model.Document, mode model.Mode) model.EvaluationResult
	Synthesize(ctx context.Context, results []model.DocumentResult) model.EvaluationResult
}

// Option configures a Queue.
type Option func(*Queue)

// WithMetrics records queue depth and batch outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithFinishHook runs fn after each batch reaches a terminal status, outside
// the queue lock. It is used to remove uploaded files.
func WithFinishHook(fn func(batchID string, docs []model.Document)) Option {
	return func(q *Queue) { q.onFinish = fn }
}

// Queue is a FIFO of batches drained one at a time.
type Queue struct {
	eval     Evaluator
	metrics  *metrics.Metrics
	onFinish func(string, []model.Document)

	pollInterval time.Duration
	awaitTimeout time.Duration
	retention    time.Duration
	now          func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	pending   []*model.Batch
	completed map[string]*model.Batch
	draining  bool
	closed    bool
}

// New creates a Queue. The drain goroutine starts on the first Enqueue.
func New(eval Evaluator, cfg config.QueueConfig, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		eval:         eval,
		pollInterval: cfg.PollInterval(),
		awaitTimeout: cfg.AwaitTimeout(),
		retention:    cfg.Retention(),
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
		completed:    make(map[string]*model.Batch),
	}
	if q.pollInterval <= 0 {
		q.pollInterval = defaultPollInterval
	}
	if q.awaitTimeout <= 0 {
		q.awaitTimeout = defaultAwaitTimeout
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue appends a batch and returns its id. It never blocks on evaluation.
func (q *Queue) Enqueue(docs []model.Document) string {
	now := q.now()
	b := &model.Batch{
		ID:         newBatchID(now),
		Documents:  append([]model.Document(nil), docs...),
		Status:     model.BatchStatusQueued,
		Individual: []model.DocumentResult{},
		CreatedAt:  now,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.sweep()
	if q.closed {
		b.Status = model.BatchStatusFailed
		b.Error = "queue is closed"
		b.FinishedAt = now
		q.completed[b.ID] = b
		return b.ID
	}

	q.pending = append(q.pending, b)
	q.metrics.SetQueueDepth(len(q.pending))
	zap.L().Info("queue: batch enqueued",
		zap.String("batch_id", b.ID),
		zap.Int("documents", len(docs)),
		zap.Int("depth", len(q.pending)),
	)

	if !q.draining {
		q.draining = true
		q.wg.Add(1)
		go q.drain()
	}
	return b.ID
}

// Status returns the current snapshot of a batch, pending or finished.
func (q *Queue) Status(id string) (model.StatusSnapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if b := q.find(id); b != nil {
		return b.Snapshot(), true
	}
	return model.StatusSnapshot{}, false
}

// Result returns a completed batch's result and forgets the batch, so a
// result can be fetched successfully once.
func (q *Queue) Result(id string) (*model.BatchResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	b := q.find(id)
	if b == nil {
		return nil, eris.Wrapf(ErrNotFound, "batch %s", id)
	}
	if b.Status != model.BatchStatusCompleted {
		return nil, eris.Wrapf(ErrNotCompleted, "batch %s is %s", id, b.Status)
	}

	delete(q.completed, id)
	return b.Result(), nil
}

// Await polls until the batch finishes or the await timeout elapses. A
// timeout leaves the batch draining.
func (q *Queue) Await(ctx context.Context, id string) (*model.BatchResult, error) {
	waitCtx, cancel := context.WithTimeout(ctx, q.awaitTimeout)
	defer cancel()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		snap, ok := q.Status(id)
		if !ok {
			return nil, eris.Wrapf(ErrNotFound, "batch %s", id)
		}
		switch snap.Status {
		case model.BatchStatusCompleted:
			return q.Result(id)
		case model.BatchStatusFailed:
			return nil, &BatchFailedError{BatchID: id, Message: snap.Error}
		}

		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrapf(err, "queue: await batch %s", id)
			}
			return nil, eris.Wrapf(ErrAwaitTimeout, "batch %s after %s", id, q.awaitTimeout)
		case <-ticker.C:
		}
	}
}

// Depth returns the number of batches queued or processing.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops the drain goroutine. The batch in progress and any still
// queued are marked failed.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

// find looks in the pending list, then the completed store. Callers hold mu.
func (q *Queue) find(id string) *model.Batch {
	for _, b := range q.pending {
		if b.ID == id {
			return b
		}
	}
	return q.completed[id]
}

// sweep drops terminal batches older than the retention window. Callers
// hold mu.
func (q *Queue) sweep() {
	if q.retention <= 0 {
		return
	}
	cutoff := q.now().Add(-q.retention)
	for id, b := range q.completed {
		if b.FinishedAt.Before(cutoff) {
			delete(q.completed, id)
			zap.L().Debug("queue: expired unfetched batch",
				zap.String("batch_id", id),
				zap.String("status", string(b.Status)),
			)
		}
	}
}

func (q *Queue) drain() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		b := q.pending[0]
		b.Status = model.BatchStatusProcessing
		q.mu.Unlock()

		start := q.now()
		err := q.process(b)

		q.mu.Lock()
		if err != nil {
			b.Status = model.BatchStatusFailed
			b.Error = err.Error()
		} else {
			b.Status = model.BatchStatusCompleted
		}
		b.FinishedAt = q.now()
		q.pending = q.pending[1:]
		q.completed[b.ID] = b
		q.sweep()
		depth := len(q.pending)
		docs := append([]model.Document(nil), b.Documents...)
		q.mu.Unlock()

		q.metrics.SetQueueDepth(depth)
		q.metrics.ObserveBatch(string(b.Status), b.FinishedAt.Sub(start))
		if err != nil {
			zap.L().Error("queue: batch failed", zap.String("batch_id", b.ID), zap.Error(err))
		} else {
			zap.L().Info("queue: batch completed",
				zap.String("batch_id", b.ID),
				zap.Int("documents", len(docs)),
				zap.Duration("elapsed", b.FinishedAt.Sub(start)),
			)
		}
		if q.onFinish != nil {
			q.onFinish(b.ID, docs)
		}
	}
}

// process evaluates every document in order, then synthesizes. Panics in
// the evaluator become the returned error.
func (q *Queue) process(b *model.Batch) (err error) {
	defer recoverInto(&err)

	n := len(b.Documents)
	if n == 0 {
		return eris.New("queue: batch has no documents")
	}
	results := make([]model.DocumentResult, 0, n)
	for i, doc := range b.Documents {
		if err := q.ctx.Err(); err != nil {
			return eris.Wrap(err, "queue: drain cancelled")
		}

		res, err := q.evaluateDocument(doc)
		if err != nil {
			return eris.Wrapf(err, "queue: document %s", doc.Name)
		}
		results = append(results, res)

		q.mu.Lock()
		b.Individual = append(b.Individual, res)
		b.Progress = progress(i+1, n)
		q.mu.Unlock()
	}

	if err := q.ctx.Err(); err != nil {
		return eris.Wrap(err, "queue: drain cancelled")
	}

	var synthesis model.EvaluationResult
	if n == 1 {
		synthesis = results[0].Detailed
	} else {
		synthesis = q.eval.Synthesize(q.ctx, results)
	}

	q.mu.Lock()
	b.Synthesis = &synthesis
	q.mu.Unlock()
	return nil
}

// evaluateDocument runs both modes concurrently and waits for both.
func (q *Queue) evaluateDocument(doc model.Document) (model.DocumentResult, error) {
	res := model.DocumentResult{Document: doc}

	g, gctx := errgroup.WithContext(q.ctx)
	g.Go(func() (err error) {
		defer recoverInto(&err)
		res.Detailed = q.eval.Evaluate(gctx, doc, model.ModeDetailed)
		q.metrics.IncDocumentEvaluation(string(model.ModeDetailed), res.Detailed.Success)
		return nil
	})
	g.Go(func() (err error) {
		defer recoverInto(&err)
		res.Concise = q.eval.Evaluate(gctx, doc, model.ModeConcise)
		q.metrics.IncDocumentEvaluation(string(model.ModeConcise), res.Concise.Success)
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.DocumentResult{}, err
	}
	return res, nil
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = eris.Errorf("internal error: %v", r)
	}
}

func progress(done, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

func newBatchID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("batch-%d-%s", now.UnixMilli(), suffix)
}
