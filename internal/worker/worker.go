// Package worker drains the execution queue. Each worker claims one job at
// a time, runs it against the external engine, writes the audit record and
// publishes the terminal event back through the event bus.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ekuzmich/collabrun/internal/bus"
	infra_engine "github.com/ekuzmich/collabrun/internal/infra/engine"
	"github.com/ekuzmich/collabrun/internal/metrics"
	"github.com/ekuzmich/collabrun/internal/model"
)

// claimBackoff spaces out retries when the queue is unreachable, so a
// redis outage does not turn every worker into a busy loop.
const claimBackoff = time.Second

type Queue interface {
	Claim(ctx context.Context, consumer string) (model.ExecutionJob, []byte, error)
	Ack(ctx context.Context, consumer string, payload []byte) error
	Reclaim(ctx context.Context, consumer string) (int, error)
}

type Engine interface {
	Execute(ctx context.Context, language, sourceCode, stdin string) (infra_engine.Result, error)
}

type RecordStore interface {
	Append(ctx context.Context, rec model.ExecutionRecord) (int64, error)
}

type Pool struct {
	queue    Queue
	engine   Engine
	records  RecordStore
	bus      bus.Bus
	logger   *slog.Logger
	consumer string
	workers  int
	timeout  time.Duration
}

// New wires a pool with an explicit bus publishing handle; the pool never
// reaches for ambient state to find the socket layer.
func New(queue Queue, engine Engine, records RecordStore, b bus.Bus, consumer string, workers int, timeout time.Duration, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		queue:    queue,
		engine:   engine,
		records:  records,
		bus:      b,
		logger:   logger,
		consumer: consumer,
		workers:  workers,
		timeout:  timeout,
	}
}

// Run blocks until ctx is cancelled. Jobs claimed by a crashed predecessor
// under the same consumer name are requeued first.
func (p *Pool) Run(ctx context.Context) {
	if n, err := p.queue.Reclaim(ctx, p.consumer); err != nil {
		p.logger.Error("reclaim failed", "error", err)
	} else if n > 0 {
		p.logger.Info("requeued abandoned jobs", "count", n)
	}

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx)
		}()
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context) {
	for {
		job, payload, err := p.queue.Claim(ctx, p.consumer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("claim failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(claimBackoff):
			}
			continue
		}

		start := time.Now()
		status := p.process(ctx, job)
		metrics.JobsProcessed.WithLabelValues(string(status)).Inc()
		metrics.JobDuration.Observe(time.Since(start).Seconds())

		if err := p.queue.Ack(ctx, p.consumer, payload); err != nil {
			p.logger.Error("ack failed", "job_id", job.JobID, "error", err)
		}
	}
}

// process always ends in exactly one terminal publish for the claimed job,
// panics included, so no client is left waiting on a silent drop.
func (p *Pool) process(ctx context.Context, job model.ExecutionJob) (status model.JobStatus) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", "job_id", job.JobID, "panic", r)
			status = model.JobFailed
			p.fail(ctx, job, fmt.Errorf("worker failure: %v", r))
		}
	}()

	job.Status = model.JobRunning

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, err := p.engine.Execute(execCtx, job.Language, job.SourceCode, job.Stdin)
	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("execution timed out after %s", p.timeout)
		}
		p.fail(ctx, job, err)
		return model.JobFailed
	}

	runStatus := model.RunStatusSuccess
	output := res.Stdout
	if res.Stderr != "" {
		runStatus = model.RunStatusError
		output = res.Stderr
	}

	p.append(ctx, job, output, res.ElapsedMs, runStatus)
	p.publish(ctx, job, bus.Event{
		Type: bus.EventRunResult,
		Payload: bus.RunResultPayload{
			JobID:  job.JobID,
			Output: output,
			Time:   res.ElapsedMs,
			Status: runStatus,
		},
	})
	return model.JobSucceeded
}

func (p *Pool) fail(ctx context.Context, job model.ExecutionJob, cause error) {
	p.logger.Error("job failed", "job_id", job.JobID, "error", cause)
	p.append(ctx, job, cause.Error(), 0, model.RunStatusError)
	p.publish(ctx, job, bus.Event{
		Type: bus.EventRunError,
		Payload: bus.RunErrorPayload{
			JobID:   job.JobID,
			Message: cause.Error(),
		},
	})
}

func (p *Pool) append(ctx context.Context, job model.ExecutionJob, output string, elapsedMs int64, status string) {
	var roomKey *string
	if job.RoomKey != "" {
		roomKey = &job.RoomKey
	}
	_, err := p.records.Append(ctx, model.ExecutionRecord{
		JobID:       job.JobID,
		UserID:      job.UserID,
		RoomKey:     roomKey,
		Language:    job.Language,
		Code:        job.SourceCode,
		Input:       job.Stdin,
		Output:      output,
		ExecutionMs: elapsedMs,
		Status:      status,
	})
	if err != nil {
		// The record is audit history, not the delivery path; the terminal
		// event still goes out.
		p.logger.Error("record append failed", "job_id", job.JobID, "error", err)
	}
}

func (p *Pool) publish(ctx context.Context, job model.ExecutionJob, evt bus.Event) {
	if err := p.bus.Publish(ctx, job.Topic(), bus.Envelope{Event: evt}); err != nil {
		p.logger.Error("result publish failed", "job_id", job.JobID, "topic", job.Topic(), "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues(evt.Type).Inc()
}
