package usecase_room

import (
	"context"
	"crypto/rand"
	"errors"

	"github.com/ekuzmich/collabrun/internal/model"
)

var (
	ErrRoomConflict = errors.New("room key conflict")
	ErrRoomNotFound = errors.New("room not found")
	ErrInternal     = errors.New("internal error")
)

//go:generate mockery --name=RoomRepository --output=./mocks/repository --filename=repository.go
type RoomRepository interface {
	Create(ctx context.Context, room model.Room) error
	Join(ctx context.Context, roomKey, userID string) ([]string, error)
	Get(ctx context.Context, roomKey string) (model.Room, error)
}

type Usecase struct {
	RoomRepository RoomRepository
}

func New(repo RoomRepository) *Usecase {
	return &Usecase{RoomRepository: repo}
}

// CreateRoom books a fresh room with the creator as its first participant.
// Keys carry 48 bits of entropy, so a collision is a near-zero event; the
// repository still rejects one via the unique constraint and we retry with
// a new key rather than overwrite.
func (u *Usecase) CreateRoom(ctx context.Context, creatorID, language string) (model.Room, error) {
	if language == "" {
		language = model.DefaultLanguage
	}

	var retries = 3
	for retries > 0 {
		room := model.Room{
			RoomKey:      buildRoomKey(),
			CreatedBy:    creatorID,
			Language:     language,
			Participants: []string{creatorID},
		}
		err := u.RoomRepository.Create(ctx, room)
		if err == nil {
			return room, nil
		}
		if errors.Is(err, ErrRoomConflict) {
			retries--
			continue
		}
		return model.Room{}, errors.Join(ErrInternal, err)
	}
	return model.Room{}, ErrRoomConflict
}

// JoinRoom is idempotent: joining twice with the same user leaves the
// participant set unchanged.
func (u *Usecase) JoinRoom(ctx context.Context, roomKey, userID string) ([]string, error) {
	participants, err := u.RoomRepository.Join(ctx, roomKey, userID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, errors.Join(ErrInternal, err)
	}
	return participants, nil
}

func (u *Usecase) GetRoom(ctx context.Context, roomKey string) (model.Room, error) {
	room, err := u.RoomRepository.Get(ctx, roomKey)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return model.Room{}, ErrRoomNotFound
		}
		return model.Room{}, errors.Join(ErrInternal, err)
	}
	return room, nil
}

const (
	roomKeyLen      = 8
	roomKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
)

func buildRoomKey() string {
	buf := make([]byte, roomKeyLen)
	rand.Read(buf)
	for i, b := range buf {
		buf[i] = roomKeyAlphabet[int(b)%len(roomKeyAlphabet)]
	}
	return string(buf)
}
