package infra_postgres_room

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/ekuzmich/collabrun/internal/model"
	usecase_room "github.com/ekuzmich/collabrun/internal/usecase/room"
	"github.com/jmoiron/sqlx"
)

type Driver struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Driver {
	return &Driver{db: db}
}

type roomDTO struct {
	RoomKey   string    `db:"room_key"`
	CreatedBy string    `db:"created_by"`
	Language  string    `db:"language"`
	CreatedAt time.Time `db:"created_at"`
}

func (d *Driver) Create(ctx context.Context, room model.Room) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rooms (room_key, created_by, language) VALUES ($1, $2, $3)`,
		room.RoomKey, room.CreatedBy, room.Language,
	)
	if err != nil {
		if strings.Contains(err.Error(), "unique constraint") ||
			strings.Contains(err.Error(), "duplicate key") {
			return usecase_room.ErrRoomConflict
		}
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO room_participants (room_key, user_id) VALUES ($1, $2)`,
		room.RoomKey, room.CreatedBy,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Join appends the user if absent and returns the resulting participant set.
// The insert is idempotent, so concurrent joiners cannot lose each other's
// membership.
func (d *Driver) Join(ctx context.Context, roomKey, userID string) ([]string, error) {
	var exists bool
	err := d.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM rooms WHERE room_key = $1)`, roomKey)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, usecase_room.ErrRoomNotFound
	}

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO room_participants (room_key, user_id) VALUES ($1, $2)
		 ON CONFLICT (room_key, user_id) DO NOTHING`,
		roomKey, userID,
	)
	if err != nil {
		return nil, err
	}

	return d.participants(ctx, roomKey)
}

func (d *Driver) Get(ctx context.Context, roomKey string) (model.Room, error) {
	var dto roomDTO
	err := d.db.GetContext(ctx, &dto,
		`SELECT room_key, created_by, language, created_at FROM rooms WHERE room_key = $1`,
		roomKey,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Room{}, usecase_room.ErrRoomNotFound
		}
		return model.Room{}, err
	}

	participants, err := d.participants(ctx, roomKey)
	if err != nil {
		return model.Room{}, err
	}

	return model.Room{
		RoomKey:      dto.RoomKey,
		CreatedBy:    dto.CreatedBy,
		Language:     dto.Language,
		CreatedAt:    dto.CreatedAt,
		Participants: participants,
	}, nil
}

func (d *Driver) participants(ctx context.Context, roomKey string) ([]string, error) {
	var users []string
	err := d.db.SelectContext(ctx, &users,
		`SELECT user_id FROM room_participants WHERE room_key = $1 ORDER BY joined_at`,
		roomKey,
	)
	return users, err
}
