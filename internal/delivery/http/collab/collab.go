package http_collab

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	http_common "github.com/ekuzmich/collabrun/internal/delivery/http/common"
	usecase_room "github.com/ekuzmich/collabrun/internal/usecase/room"
)

// Controller is the REST face of room management, for clients that create
// or join a room before opening the websocket.
type Controller struct {
	usecase *usecase_room.Usecase
	logger  *slog.Logger
}

func New(usecase *usecase_room.Usecase) *Controller {
	return &Controller{
		usecase: usecase,
		logger:  slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	collab := router.Group("/collab")
	{
		collab.POST("/rooms", c.create)
		collab.POST("/rooms/:room_key/join", c.join)
		collab.GET("/rooms/:room_key", c.get)
	}
}

type CreateRoomRequestDTO struct {
	UserID   string `json:"user_id" binding:"required"`
	Language string `json:"language"`
}

type CreateRoomResponseDTO struct {
	RoomKey      string   `json:"room_key"`
	Participants []string `json:"participants"`
}

func (c *Controller) create(ctx *gin.Context) {
	var req CreateRoomRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "invalid request"})
		return
	}

	room, err := c.usecase.CreateRoom(ctx, req.UserID, req.Language)
	if err != nil {
		c.logger.Error("failed to create room", slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{Message: "could not create room"})
		return
	}

	ctx.JSON(http.StatusCreated, CreateRoomResponseDTO{
		RoomKey:      room.RoomKey,
		Participants: room.Participants,
	})
}

type JoinRoomRequestDTO struct {
	UserID string `json:"user_id" binding:"required"`
}

type JoinRoomResponseDTO struct {
	RoomKey      string   `json:"room_key"`
	Participants []string `json:"participants"`
}

func (c *Controller) join(ctx *gin.Context) {
	roomKey := ctx.Param("room_key")

	var req JoinRoomRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "invalid request"})
		return
	}

	participants, err := c.usecase.JoinRoom(ctx, roomKey, req.UserID)
	if err != nil {
		if errors.Is(err, usecase_room.ErrRoomNotFound) {
			ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{Message: "not found"})
			return
		}
		c.logger.Error("failed to join room", slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{Message: "internal error"})
		return
	}

	ctx.JSON(http.StatusOK, JoinRoomResponseDTO{
		RoomKey:      roomKey,
		Participants: participants,
	})
}

func (c *Controller) get(ctx *gin.Context) {
	roomKey := ctx.Param("room_key")

	room, err := c.usecase.GetRoom(ctx, roomKey)
	if err != nil {
		if errors.Is(err, usecase_room.ErrRoomNotFound) {
			ctx.JSON(http.StatusNotFound, http_common.ErrorResponse{Message: "not found"})
			return
		}
		c.logger.Error("failed to get room", slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{Message: "internal error"})
		return
	}

	ctx.JSON(http.StatusOK, room)
}
