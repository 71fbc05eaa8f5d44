package infra_postgres_execution

import (
	"context"

	"github.com/ekuzmich/collabrun/internal/model"
	"github.com/jmoiron/sqlx"
)

// Driver is the append-only execution history. Records are written once by
// workers and never updated.
type Driver struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Driver {
	return &Driver{db: db}
}

func (d *Driver) Append(ctx context.Context, rec model.ExecutionRecord) (int64, error) {
	var id int64
	err := d.db.QueryRowxContext(ctx,
		`INSERT INTO executions
		 (job_id, user_id, room_key, language, code, input, output, execution_ms, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		rec.JobID, rec.UserID, rec.RoomKey, rec.Language,
		rec.Code, rec.Input, rec.Output, rec.ExecutionMs, rec.Status,
	).Scan(&id)
	return id, err
}

func (d *Driver) HistoryByUser(ctx context.Context, userID string, limit int) ([]model.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []model.ExecutionRecord
	err := d.db.SelectContext(ctx, &recs,
		`SELECT id, job_id, user_id, room_key, language, code, input, output,
		        execution_ms, status, created_at
		 FROM executions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	return recs, err
}
