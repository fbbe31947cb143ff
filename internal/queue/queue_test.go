package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/internal/metrics"
	"github.com/sells-group/evidence-cli/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeEvaluator struct {
	evaluate   func(ctx context.Context, doc model.Document, mode model.Mode) model.EvaluationResult
	synthesize func(ctx context.Context, results []model.DocumentResult) model.EvaluationResult

	mu         sync.Mutex
	calls      []string
	synthCalls [][]model.DocumentResult
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, doc model.Document, mode model.Mode) model.EvaluationResult {
	f.mu.Lock()
	f.calls = append(f.calls, doc.Name+"/"+string(mode))
	f.mu.Unlock()

	if f.evaluate != nil {
		return f.evaluate(ctx, doc, mode)
	}
	return model.EvaluationResult{Text: string(mode) + ":" + doc.Name, Success: true}
}

func (f *fakeEvaluator) Synthesize(ctx context.Context, results []model.DocumentResult) model.EvaluationResult {
	f.mu.Lock()
	f.synthCalls = append(f.synthCalls, results)
	f.mu.Unlock()

	if f.synthesize != nil {
		return f.synthesize(ctx, results)
	}
	return model.EvaluationResult{Text: "synthesis", Success: true}
}

func (f *fakeEvaluator) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEvaluator) synthesisCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.synthCalls)
}

func newTestQueue(t *testing.T, eval Evaluator, opts ...Option) *Queue {
	t.Helper()
	q := New(eval, config.QueueConfig{PollIntervalMs: 5, AwaitTimeoutSecs: 5}, opts...)
	t.Cleanup(q.Close)
	return q
}

func docs(names ...string) []model.Document {
	out := make([]model.Document, len(names))
	for i, n := range names {
		out[i] = model.Document{ID: n, Name: n, Path: "/tmp/" + n}
	}
	return out
}

func waitForStatus(t *testing.T, q *Queue, id string, want model.BatchStatus) model.StatusSnapshot {
	t.Helper()
	var snap model.StatusSnapshot
	require.Eventually(t, func() bool {
		s, ok := q.Status(id)
		snap = s
		return ok && s.Status == want
	}, 5*time.Second, 2*time.Millisecond, "batch %s never reached %s", id, want)
	return snap
}

func TestBatchIDFormat(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := newBatchID(now)
	assert.Regexp(t, `^batch-1700000000123-[0-9a-f]{8}$`, id)
	assert.NotEqual(t, id, newBatchID(now))
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 33, progress(1, 3))
	assert.Equal(t, 67, progress(2, 3))
	assert.Equal(t, 100, progress(3, 3))
	assert.Equal(t, 50, progress(1, 2))
}

func TestSingleDocumentMirrorsDetailed(t *testing.T) {
	eval := &fakeEvaluator{}
	q := newTestQueue(t, eval)

	id := q.Enqueue(docs("a.pdf"))
	res, err := q.Await(context.Background(), id)
	require.NoError(t, err)

	require.Len(t, res.Individual, 1)
	require.NotNil(t, res.Synthesis)
	assert.Equal(t, res.Individual[0].Detailed, *res.Synthesis)
	assert.Equal(t, "detailed:a.pdf", res.Synthesis.Text)
	assert.Equal(t, "concise:a.pdf", res.Individual[0].Concise.Text)
	assert.Zero(t, eval.synthesisCalls())
	assert.Equal(t, res.Primary(), res.Individual[0].Detailed)
}

func TestSingleDocumentMirrorsFailedDetailed(t *testing.T) {
	eval := &fakeEvaluator{evaluate: func(_ context.Context, _ model.Document, mode model.Mode) model.EvaluationResult {
		if mode == model.ModeDetailed {
			return model.Failed("provider down")
		}
		return model.EvaluationResult{Text: "ok", Success: true}
	}}
	q := newTestQueue(t, eval)

	res, err := q.Await(context.Background(), q.Enqueue(docs("a.pdf")))
	require.NoError(t, err)
	require.NotNil(t, res.Synthesis)
	assert.False(t, res.Synthesis.Success)
	assert.Equal(t, "provider down", res.Synthesis.Error)
}

func TestMultiDocumentSynthesizesOnce(t *testing.T) {
	eval := &fakeEvaluator{}
	q := newTestQueue(t, eval)

	id := q.Enqueue(docs("a.pdf", "b.pdf"))
	res, err := q.Await(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, 1, eval.synthesisCalls())
	require.Len(t, res.Individual, 2)
	assert.Equal(t, "a.pdf", res.Individual[0].Document.Name)
	assert.Equal(t, "b.pdf", res.Individual[1].Document.Name)
	require.NotNil(t, res.Synthesis)
	assert.True(t, res.Synthesis.Success)
	assert.Equal(t, "synthesis", res.Synthesis.Text)

	eval.mu.Lock()
	got := eval.synthCalls[0]
	eval.mu.Unlock()
	require.Len(t, got, 2, "synthesis sees every document")
}

func TestPartialFailureKeepsIndividualResults(t *testing.T) {
	eval := &fakeEvaluator{
		evaluate: func(_ context.Context, doc model.Document, mode model.Mode) model.EvaluationResult {
			if doc.Name == "bad.pdf" && mode == model.ModeConcise {
				return model.Failed("unreadable")
			}
			return model.EvaluationResult{Text: string(mode), Success: true}
		},
		synthesize: func(_ context.Context, _ []model.DocumentResult) model.EvaluationResult {
			return model.Failed("synthesis failed")
		},
	}
	q := newTestQueue(t, eval)

	res, err := q.Await(context.Background(), q.Enqueue(docs("good.pdf", "bad.pdf")))
	require.NoError(t, err)
	require.Len(t, res.Individual, 2)
	assert.True(t, res.Individual[0].Concise.Success)
	assert.True(t, res.Individual[1].Detailed.Success)
	assert.False(t, res.Individual[1].Concise.Success)
	assert.Equal(t, "unreadable", res.Individual[1].Concise.Error)
	assert.False(t, res.Synthesis.Success)
}

func TestModesRunConcurrentlyPerDocument(t *testing.T) {
	var inFlight, peak atomic.Int32
	eval := &fakeEvaluator{evaluate: func(context.Context, model.Document, model.Mode) model.EvaluationResult {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return model.EvaluationResult{Success: true, Text: "x"}
	}}
	q := newTestQueue(t, eval)

	_, err := q.Await(context.Background(), q.Enqueue(docs("a", "b", "c")))
	require.NoError(t, err)
	assert.Equal(t, int32(2), peak.Load())
}

func TestFIFOOneBatchAtATime(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	eval := &fakeEvaluator{evaluate: func(_ context.Context, doc model.Document, mode model.Mode) model.EvaluationResult {
		if doc.Name == "slow" {
			started <- struct{}{}
			<-release
		}
		return model.EvaluationResult{Text: string(mode), Success: true}
	}}
	q := newTestQueue(t, eval)

	first := q.Enqueue(docs("slow"))
	<-started
	second := q.Enqueue(docs("x", "y"))

	s1, _ := q.Status(first)
	s2, ok := q.Status(second)
	require.True(t, ok)
	assert.Equal(t, model.BatchStatusProcessing, s1.Status)
	assert.Equal(t, model.BatchStatusQueued, s2.Status)
	assert.Equal(t, 0, s2.Progress)
	assert.Equal(t, 2, q.Depth())

	close(release)
	waitForStatus(t, q, second, model.BatchStatusCompleted)
	waitForStatus(t, q, first, model.BatchStatusCompleted)

	calls := eval.callLog()
	require.Len(t, calls, 6)
	for _, c := range calls[:2] {
		assert.True(t, strings.HasPrefix(c, "slow/"), "first batch drains before the second: %v", calls)
	}
	assert.True(t, strings.HasPrefix(calls[2], "x/"))
	assert.True(t, strings.HasPrefix(calls[3], "x/"))
	assert.True(t, strings.HasPrefix(calls[4], "y/"))
}

func TestProgressIsMonotonic(t *testing.T) {
	gate := make(chan struct{})
	eval := &fakeEvaluator{evaluate: func(context.Context, model.Document, model.Mode) model.EvaluationResult {
		<-gate
		return model.EvaluationResult{Text: "x", Success: true}
	}}
	q := newTestQueue(t, eval)
	id := q.Enqueue(docs("a", "b", "c"))

	go func() {
		for range 6 {
			gate <- struct{}{}
			time.Sleep(time.Millisecond)
		}
	}()

	last := -1
	var seen []int
	deadline := time.Now().Add(5 * time.Second)
	for {
		s, ok := q.Status(id)
		require.True(t, ok)
		require.GreaterOrEqual(t, s.Progress, last, "progress never decreases")
		if s.Progress != last {
			seen = append(seen, s.Progress)
		}
		last = s.Progress
		if s.Status == model.BatchStatusCompleted {
			break
		}
		require.True(t, time.Now().Before(deadline), "batch did not complete")
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, 100, last)
	for _, p := range seen {
		assert.Contains(t, []int{0, 33, 67, 100}, p)
	}
}

func TestPanicFailsOnlyThatBatch(t *testing.T) {
	eval := &fakeEvaluator{evaluate: func(_ context.Context, doc model.Document, mode model.Mode) model.EvaluationResult {
		if doc.Name == "boom" && mode == model.ModeConcise {
			panic("evaluator exploded")
		}
		return model.EvaluationResult{Text: "ok", Success: true}
	}}
	m := metrics.New()
	q := newTestQueue(t, eval, WithMetrics(m))

	bad := q.Enqueue(docs("fine", "boom"))
	good := q.Enqueue(docs("fine"))

	_, err := q.Await(context.Background(), bad)
	var failed *BatchFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, bad, failed.BatchID)
	assert.Contains(t, failed.Message, "evaluator exploded")

	snap := waitForStatus(t, q, bad, model.BatchStatusFailed)
	assert.Contains(t, snap.Error, "evaluator exploded")
	assert.Equal(t, 50, snap.Progress)

	res, err := q.Await(context.Background(), good)
	require.NoError(t, err)
	assert.True(t, res.Synthesis.Success)

	_, err = q.Result(bad)
	assert.True(t, eris.Is(err, ErrNotCompleted))
}

func TestSynthesisPanicFailsBatch(t *testing.T) {
	eval := &fakeEvaluator{synthesize: func(context.Context, []model.DocumentResult) model.EvaluationResult {
		panic("synthesis exploded")
	}}
	q := newTestQueue(t, eval)

	_, err := q.Await(context.Background(), q.Enqueue(docs("a", "b")))
	var failed *BatchFailedError
	require.True(t, errors.As(err, &failed))
	assert.Contains(t, failed.Message, "synthesis exploded")
}

func TestEmptyBatchFails(t *testing.T) {
	q := newTestQueue(t, &fakeEvaluator{})
	id := q.Enqueue(nil)
	snap := waitForStatus(t, q, id, model.BatchStatusFailed)
	assert.Contains(t, snap.Error, "no documents")
}

func TestResultFetchedOnce(t *testing.T) {
	q := newTestQueue(t, &fakeEvaluator{})
	id := q.Enqueue(docs("a"))
	waitForStatus(t, q, id, model.BatchStatusCompleted)

	res, err := q.Result(id)
	require.NoError(t, err)
	assert.Equal(t, id, res.BatchID)
	assert.False(t, res.FinishedAt.IsZero())

	_, err = q.Result(id)
	assert.True(t, eris.Is(err, ErrNotFound))
	_, ok := q.Status(id)
	assert.False(t, ok)
}

func TestResultBeforeCompletion(t *testing.T) {
	release := make(chan struct{})
	eval := &fakeEvaluator{evaluate: func(context.Context, model.Document, model.Mode) model.EvaluationResult {
		<-release
		return model.EvaluationResult{Success: true}
	}}
	q := newTestQueue(t, eval)
	id := q.Enqueue(docs("a"))

	_, err := q.Result(id)
	assert.True(t, eris.Is(err, ErrNotCompleted))

	_, err = q.Result("batch-0-deadbeef")
	assert.True(t, eris.Is(err, ErrNotFound))

	close(release)
	waitForStatus(t, q, id, model.BatchStatusCompleted)
}

func TestAwaitTimeout(t *testing.T) {
	release := make(chan struct{})
	eval := &fakeEvaluator{evaluate: func(context.Context, model.Document, model.Mode) model.EvaluationResult {
		<-release
		return model.EvaluationResult{Success: true}
	}}
	q := newTestQueue(t, eval)
	q.awaitTimeout = 30 * time.Millisecond

	id := q.Enqueue(docs("a"))
	_, err := q.Await(context.Background(), id)
	assert.True(t, eris.Is(err, ErrAwaitTimeout))

	// The batch keeps draining after the caller gives up.
	close(release)
	waitForStatus(t, q, id, model.BatchStatusCompleted)
}

func TestAwaitCallerCancelled(t *testing.T) {
	release := make(chan struct{})
	eval := &fakeEvaluator{evaluate: func(context.Context, model.Document, model.Mode) model.EvaluationResult {
		<-release
		return model.EvaluationResult{Success: true}
	}}
	q := newTestQueue(t, eval)
	id := q.Enqueue(docs("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Await(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, eris.Is(err, ErrAwaitTimeout))

	close(release)
	waitForStatus(t, q, id, model.BatchStatusCompleted)
}

func TestAwaitUnknown(t *testing.T) {
	q := newTestQueue(t, &fakeEvaluator{})
	_, err := q.Await(context.Background(), "batch-1-00000000")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestCloseFailsInFlightAndQueuedBatches(t *testing.T) {
	started := make(chan struct{}, 2)
	eval := &fakeEvaluator{evaluate: func(ctx context.Context, _ model.Document, _ model.Mode) model.EvaluationResult {
		started <- struct{}{}
		<-ctx.Done()
		return model.Failed(ctx.Err().Error())
	}}
	q := New(eval, config.QueueConfig{})

	first := q.Enqueue(docs("a", "b"))
	<-started
	second := q.Enqueue(docs("c"))
	q.Close()

	for _, id := range []string{first, second} {
		s, ok := q.Status(id)
		require.True(t, ok)
		assert.Equal(t, model.BatchStatusFailed, s.Status)
		assert.Contains(t, s.Error, "drain cancelled")
	}

	late := q.Enqueue(docs("d"))
	s, ok := q.Status(late)
	require.True(t, ok)
	assert.Equal(t, model.BatchStatusFailed, s.Status)
	assert.Equal(t, "queue is closed", s.Error)
}

func TestRetentionSweepsUnfetchedBatches(t *testing.T) {
	var clock atomic.Int64
	clock.Store(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())

	q := newTestQueue(t, &fakeEvaluator{})
	q.retention = time.Minute
	q.now = func() time.Time { return time.Unix(0, clock.Load()) }

	old := q.Enqueue(docs("a"))
	waitForStatus(t, q, old, model.BatchStatusCompleted)

	clock.Add(int64(2 * time.Minute))
	fresh := q.Enqueue(docs("b"))

	_, ok := q.Status(old)
	assert.False(t, ok, "expired batch is swept")
	waitForStatus(t, q, fresh, model.BatchStatusCompleted)
}

func TestFinishHook(t *testing.T) {
	var mu sync.Mutex
	finished := map[string][]model.Document{}
	q := newTestQueue(t, &fakeEvaluator{}, WithFinishHook(func(id string, d []model.Document) {
		mu.Lock()
		finished[id] = d
		mu.Unlock()
	}))

	id := q.Enqueue(docs("a", "b"))
	_, err := q.Await(context.Background(), id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(finished[id]) == 2
	}, time.Second, time.Millisecond)
}

func TestDrainGoroutineIdlesWhenEmpty(t *testing.T) {
	q := newTestQueue(t, &fakeEvaluator{})
	_, err := q.Await(context.Background(), q.Enqueue(docs("a")))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return !q.draining
	}, time.Second, time.Millisecond)

	_, err = q.Await(context.Background(), q.Enqueue(docs("b")))
	require.NoError(t, err)
}
