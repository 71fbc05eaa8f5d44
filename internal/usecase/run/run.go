package usecase_run

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	infra_engine "github.com/ekuzmich/collabrun/internal/infra/engine"
	"github.com/ekuzmich/collabrun/internal/model"
)

var ErrInternal = errors.New("internal error")

//go:generate mockery --name=JobQueue --output=./mocks/queue --filename=queue.go
type JobQueue interface {
	Enqueue(ctx context.Context, job model.ExecutionJob) error
}

type Engine interface {
	Execute(ctx context.Context, language, sourceCode, stdin string) (infra_engine.Result, error)
}

type RecordStore interface {
	Append(ctx context.Context, rec model.ExecutionRecord) (int64, error)
	HistoryByUser(ctx context.Context, userID string, limit int) ([]model.ExecutionRecord, error)
}

type Usecase struct {
	Queue   JobQueue
	Engine  Engine
	Records RecordStore
}

func New(queue JobQueue, engine Engine, records RecordStore) *Usecase {
	return &Usecase{Queue: queue, Engine: engine, Records: records}
}

// Submit assigns a job id and hands the run to the queue. It never waits on
// execution; the result arrives later over the event bus.
func (u *Usecase) Submit(ctx context.Context, roomKey, userID, language, code, input string) (string, error) {
	job := model.ExecutionJob{
		JobID:      uuid.NewString(),
		RoomKey:    roomKey,
		UserID:     userID,
		Language:   language,
		SourceCode: code,
		Stdin:      input,
		Status:     model.JobPending,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := u.Queue.Enqueue(ctx, job); err != nil {
		return "", errors.Join(ErrInternal, err)
	}
	return job.JobID, nil
}

// ExecuteSync runs code inline for the solo editor path. Same engine, same
// audit trail, no queue round trip.
func (u *Usecase) ExecuteSync(ctx context.Context, userID, language, code, input string) (model.ExecutionRecord, error) {
	rec := model.ExecutionRecord{
		JobID:    uuid.NewString(),
		UserID:   userID,
		Language: language,
		Code:     code,
		Input:    input,
	}

	res, err := u.Engine.Execute(ctx, language, code, input)
	if err != nil {
		rec.Status = model.RunStatusError
		rec.Output = err.Error()
		if _, aerr := u.Records.Append(ctx, rec); aerr != nil {
			return model.ExecutionRecord{}, errors.Join(ErrInternal, aerr)
		}
		return model.ExecutionRecord{}, err
	}

	rec.Output = res.Stdout
	rec.Status = model.RunStatusSuccess
	if res.Stderr != "" {
		rec.Output = res.Stderr
		rec.Status = model.RunStatusError
	}
	rec.ExecutionMs = res.ElapsedMs

	if _, err := u.Records.Append(ctx, rec); err != nil {
		return model.ExecutionRecord{}, errors.Join(ErrInternal, err)
	}
	return rec, nil
}

func (u *Usecase) History(ctx context.Context, userID string, limit int) ([]model.ExecutionRecord, error) {
	recs, err := u.Records.HistoryByUser(ctx, userID, limit)
	if err != nil {
		return nil, errors.Join(ErrInternal, err)
	}
	return recs, nil
}
