package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekuzmich/collabrun/internal/bus"
	infra_engine "github.com/ekuzmich/collabrun/internal/infra/engine"
	"github.com/ekuzmich/collabrun/internal/model"
)

type fakeQueue struct {
	jobs  chan model.ExecutionJob
	mu    sync.Mutex
	acked int
}

func newFakeQueue(jobs ...model.ExecutionJob) *fakeQueue {
	q := &fakeQueue{jobs: make(chan model.ExecutionJob, len(jobs)+1)}
	for _, j := range jobs {
		q.jobs <- j
	}
	return q
}

func (q *fakeQueue) Claim(ctx context.Context, _ string) (model.ExecutionJob, []byte, error) {
	select {
	case j := <-q.jobs:
		return j, []byte(j.JobID), nil
	case <-ctx.Done():
		return model.ExecutionJob{}, nil, ctx.Err()
	}
}

func (q *fakeQueue) Ack(_ context.Context, _ string, _ []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked++
	return nil
}

func (q *fakeQueue) Reclaim(context.Context, string) (int, error) { return 0, nil }

func (q *fakeQueue) ackCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acked
}

type failingQueue struct {
	mu     sync.Mutex
	claims int
}

func (q *failingQueue) Claim(context.Context, string) (model.ExecutionJob, []byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.claims++
	return model.ExecutionJob{}, nil, errors.New("connection refused")
}

func (q *failingQueue) Ack(context.Context, string, []byte) error { return nil }

func (q *failingQueue) Reclaim(context.Context, string) (int, error) { return 0, nil }

func (q *failingQueue) claimCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.claims
}

type fakeEngine struct {
	execute func(ctx context.Context, language, code, stdin string) (infra_engine.Result, error)
}

func (e *fakeEngine) Execute(ctx context.Context, language, code, stdin string) (infra_engine.Result, error) {
	return e.execute(ctx, language, code, stdin)
}

type fakeRecords struct {
	mu   sync.Mutex
	recs []model.ExecutionRecord
}

func (r *fakeRecords) Append(_ context.Context, rec model.ExecutionRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return int64(len(r.recs)), nil
}

func (r *fakeRecords) all() []model.ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ExecutionRecord(nil), r.recs...)
}

func runPool(t *testing.T, p *Pool, q *fakeQueue, jobs int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for q.ackCount() < jobs {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("only %d of %d jobs acked", q.ackCount(), jobs)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func collect(t *testing.T, sub bus.Subscription, n int) []bus.Envelope {
	t.Helper()
	var out []bus.Envelope
	for len(out) < n {
		select {
		case env := <-sub.Events():
			out = append(out, env)
		case <-time.After(time.Second):
			t.Fatalf("received %d of %d envelopes", len(out), n)
		}
	}
	return out
}

func job(id, roomKey, userID string) model.ExecutionJob {
	return model.ExecutionJob{
		JobID:      id,
		RoomKey:    roomKey,
		UserID:     userID,
		Language:   "python",
		SourceCode: "print(1+1)",
		Status:     model.JobPending,
	}
}

func TestProcessSuccessPublishesResultAndRecord(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "r1")
	require.NoError(t, err)

	q := newFakeQueue(job("j-1", "r1", "u1"))
	records := &fakeRecords{}
	engine := &fakeEngine{execute: func(context.Context, string, string, string) (infra_engine.Result, error) {
		return infra_engine.Result{Stdout: "2\n", ElapsedMs: 12}, nil
	}}

	pool := New(q, engine, records, b, "test", 1, time.Second, nil)
	runPool(t, pool, q, 1)

	envs := collect(t, sub, 1)
	assert.Equal(t, bus.EventRunResult, envs[0].Event.Type)
	payload := envs[0].Event.Payload.(bus.RunResultPayload)
	assert.Equal(t, "j-1", payload.JobID)
	assert.Equal(t, "2\n", payload.Output)
	assert.Equal(t, model.RunStatusSuccess, payload.Status)

	recs := records.all()
	require.Len(t, recs, 1)
	assert.Equal(t, "j-1", recs[0].JobID)
	assert.Equal(t, model.RunStatusSuccess, recs[0].Status)
	require.NotNil(t, recs[0].RoomKey)
	assert.Equal(t, "r1", *recs[0].RoomKey)
}

func TestProcessStderrDeliveredAsErrorResult(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "r1")
	require.NoError(t, err)

	q := newFakeQueue(job("j-1", "r1", "u1"))
	records := &fakeRecords{}
	engine := &fakeEngine{execute: func(context.Context, string, string, string) (infra_engine.Result, error) {
		return infra_engine.Result{Stderr: "SyntaxError"}, nil
	}}

	pool := New(q, engine, records, b, "test", 1, time.Second, nil)
	runPool(t, pool, q, 1)

	envs := collect(t, sub, 1)
	require.Equal(t, bus.EventRunResult, envs[0].Event.Type)
	payload := envs[0].Event.Payload.(bus.RunResultPayload)
	assert.Equal(t, model.RunStatusError, payload.Status)
	assert.Equal(t, "SyntaxError", payload.Output)
}

func TestEngineFailureYieldsRunErrorAndRecord(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "r1")
	require.NoError(t, err)

	q := newFakeQueue(job("j-1", "r1", "u1"))
	records := &fakeRecords{}
	engine := &fakeEngine{execute: func(context.Context, string, string, string) (infra_engine.Result, error) {
		return infra_engine.Result{}, errors.Join(infra_engine.ErrEngine, errors.New("connection refused"))
	}}

	pool := New(q, engine, records, b, "test", 1, time.Second, nil)
	runPool(t, pool, q, 1)

	envs := collect(t, sub, 1)
	require.Equal(t, bus.EventRunError, envs[0].Event.Type)
	payload := envs[0].Event.Payload.(bus.RunErrorPayload)
	assert.Equal(t, "j-1", payload.JobID)
	assert.NotEmpty(t, payload.Message)

	recs := records.all()
	require.Len(t, recs, 1)
	assert.Equal(t, model.RunStatusError, recs[0].Status)
}

func TestPanicSurfacesAsRunError(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "r1")
	require.NoError(t, err)

	q := newFakeQueue(job("j-1", "r1", "u1"))
	engine := &fakeEngine{execute: func(context.Context, string, string, string) (infra_engine.Result, error) {
		panic("boom")
	}}

	pool := New(q, engine, &fakeRecords{}, b, "test", 1, time.Second, nil)
	runPool(t, pool, q, 1)

	envs := collect(t, sub, 1)
	assert.Equal(t, bus.EventRunError, envs[0].Event.Type)
}

func TestSoloJobAddressedToUserTopic(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "u1")
	require.NoError(t, err)

	q := newFakeQueue(job("j-1", "", "u1"))
	engine := &fakeEngine{execute: func(context.Context, string, string, string) (infra_engine.Result, error) {
		return infra_engine.Result{Stdout: "ok"}, nil
	}}
	records := &fakeRecords{}

	pool := New(q, engine, records, b, "test", 1, time.Second, nil)
	runPool(t, pool, q, 1)

	envs := collect(t, sub, 1)
	assert.Equal(t, bus.EventRunResult, envs[0].Event.Type)

	recs := records.all()
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].RoomKey)
}

func TestJobsForDifferentRoomsProgressInParallel(t *testing.T) {
	b := bus.NewMemoryBus()
	ctx := context.Background()
	sub1, err := b.Subscribe(ctx, "r1")
	require.NoError(t, err)
	sub2, err := b.Subscribe(ctx, "r2")
	require.NoError(t, err)

	q := newFakeQueue(job("j-1", "r1", "u1"), job("j-2", "r2", "u2"))

	// Both executions must be in flight at once before either returns.
	var entered sync.WaitGroup
	entered.Add(2)
	engine := &fakeEngine{execute: func(ctx context.Context, _, _, _ string) (infra_engine.Result, error) {
		entered.Done()
		entered.Wait()
		return infra_engine.Result{Stdout: "ok"}, nil
	}}

	pool := New(q, engine, &fakeRecords{}, b, "test", 2, 5*time.Second, nil)
	runPool(t, pool, q, 2)

	assert.Equal(t, bus.EventRunResult, collect(t, sub1, 1)[0].Event.Type)
	assert.Equal(t, bus.EventRunResult, collect(t, sub2, 1)[0].Event.Type)
}

func TestTimeoutReportedAsFailure(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "r1")
	require.NoError(t, err)

	q := newFakeQueue(job("j-1", "r1", "u1"))
	engine := &fakeEngine{execute: func(ctx context.Context, _, _, _ string) (infra_engine.Result, error) {
		<-ctx.Done()
		return infra_engine.Result{}, ctx.Err()
	}}

	pool := New(q, engine, &fakeRecords{}, b, "test", 1, 20*time.Millisecond, nil)
	runPool(t, pool, q, 1)

	envs := collect(t, sub, 1)
	require.Equal(t, bus.EventRunError, envs[0].Event.Type)
	payload := envs[0].Event.Payload.(bus.RunErrorPayload)
	assert.Contains(t, payload.Message, "timed out")
}

func TestClaimErrorBacksOffInsteadOfSpinning(t *testing.T) {
	q := &failingQueue{}
	pool := New(q, &fakeEngine{}, &fakeRecords{}, bus.NewMemoryBus(), "test", 2, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after cancel")
	}

	// Each worker gets one failed claim in and then sits out the backoff
	// for the rest of the window.
	assert.GreaterOrEqual(t, q.claimCount(), 2)
	assert.LessOrEqual(t, q.claimCount(), 4)
}
