package ws_collab

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ekuzmich/collabrun/internal/bus"
	"github.com/ekuzmich/collabrun/internal/metrics"
	usecase_room "github.com/ekuzmich/collabrun/internal/usecase/room"
	usecase_run "github.com/ekuzmich/collabrun/internal/usecase/run"
)

// Inbound wire event names.
const (
	msgCreateRoom = "create_room"
	msgJoinRoom   = "join_room"
	msgCodeChange = "code_change"
	msgRunCode    = "run_code"
)

type clientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Gateway is the per-connection session layer: it translates client
// messages into room store and queue operations and keeps hub/bus
// subscriptions in step with room membership.
type Gateway struct {
	hub    *Hub
	rooms  *usecase_room.Usecase
	runs   *usecase_run.Usecase
	logger *slog.Logger
}

func NewGateway(hub *Hub, rooms *usecase_room.Usecase, runs *usecase_run.Usecase) *Gateway {
	return &Gateway{
		hub:    hub,
		rooms:  rooms,
		runs:   runs,
		logger: slog.Default(),
	}
}

func (g *Gateway) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ws", g.serve)
}

func (g *Gateway) serve(ctx *gin.Context) {
	userID := ctx.Query("user_id")
	if userID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "user_id required"})
		return
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		g.logger.Error("upgrade failed", "error", err)
		return
	}

	client := newClient(g, conn, userID)

	// Solo run results are addressed to the user id as topic, so every
	// connection listens there from the start.
	if err := g.hub.Subscribe(context.Background(), client, userID); err != nil {
		g.logger.Error("user topic subscription refused", "user_id", userID, "error", err)
		conn.Close()
		return
	}

	metrics.WsConnections.Inc()
	g.logger.Info("client connected", "conn_id", client.connID, "user_id", userID)

	go client.writePump()
	go client.readPump()
}

func (g *Gateway) dispatch(c *Client, msg clientMessage) {
	ctx := context.Background()

	switch msg.Event {
	case msgCreateRoom:
		g.handleCreateRoom(ctx, c, msg.Data)
	case msgJoinRoom:
		g.handleJoinRoom(ctx, c, msg.Data)
	case msgCodeChange:
		g.handleCodeChange(ctx, c, msg.Data)
	case msgRunCode:
		g.handleRunCode(ctx, c, msg.Data)
	default:
		c.enqueue(bus.Event{Type: bus.EventError, Payload: "unknown event: " + msg.Event})
	}
}

func (g *Gateway) handleCreateRoom(ctx context.Context, c *Client, data json.RawMessage) {
	var req struct {
		UserID   string `json:"userId"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.UserID == "" {
		c.enqueue(bus.Event{Type: bus.EventError, Payload: "invalid create_room payload"})
		return
	}

	room, err := g.rooms.CreateRoom(ctx, req.UserID, req.Language)
	if err != nil {
		g.logger.Error("create room failed", "error", err)
		c.enqueue(bus.Event{Type: bus.EventError, Payload: "could not create room"})
		return
	}

	if err := g.hub.Subscribe(ctx, c, room.RoomKey); err != nil {
		c.enqueue(bus.Event{Type: bus.EventError, Payload: "room subscription unavailable"})
		return
	}

	c.enqueue(bus.Event{
		Type: bus.EventRoomCreated,
		Payload: map[string]interface{}{
			"roomKey":      room.RoomKey,
			"participants": room.Participants,
		},
	})
}

func (g *Gateway) handleJoinRoom(ctx context.Context, c *Client, data json.RawMessage) {
	var req struct {
		RoomKey string `json:"roomKey"`
		UserID  string `json:"userId"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.RoomKey == "" || req.UserID == "" {
		c.enqueue(bus.Event{Type: bus.EventError, Payload: "invalid join_room payload"})
		return
	}

	participants, err := g.rooms.JoinRoom(ctx, req.RoomKey, req.UserID)
	if err != nil {
		if errors.Is(err, usecase_room.ErrRoomNotFound) {
			c.enqueue(bus.Event{Type: bus.EventError, Payload: "Room not found"})
			return
		}
		g.logger.Error("join room failed", "room_key", req.RoomKey, "error", err)
		c.enqueue(bus.Event{Type: bus.EventError, Payload: "could not join room"})
		return
	}

	if err := g.hub.Subscribe(ctx, c, req.RoomKey); err != nil {
		c.enqueue(bus.Event{Type: bus.EventError, Payload: "room subscription unavailable"})
		return
	}

	c.enqueue(bus.Event{
		Type: bus.EventJoinedRoom,
		Payload: map[string]interface{}{
			"roomKey":      req.RoomKey,
			"participants": participants,
		},
	})

	g.hub.Broadcast(ctx, req.RoomKey, bus.Event{
		Type:    bus.EventParticipantJoined,
		Payload: bus.ParticipantJoinedPayload{UserID: req.UserID},
	}, c.connID)
}

func (g *Gateway) handleCodeChange(ctx context.Context, c *Client, data json.RawMessage) {
	var req struct {
		RoomKey string          `json:"roomKey"`
		Delta   json.RawMessage `json:"delta"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.RoomKey == "" {
		c.enqueue(bus.Event{Type: bus.EventError, Payload: "invalid code_change payload"})
		return
	}

	// Verbatim relay. No ordering arbitration: last delivered wins on the
	// client side.
	g.hub.Broadcast(ctx, req.RoomKey, bus.Event{
		Type:    bus.EventRemoteCodeChange,
		Payload: req.Delta,
	}, c.connID)
}

func (g *Gateway) handleRunCode(ctx context.Context, c *Client, data json.RawMessage) {
	var req struct {
		RoomKey  string `json:"roomKey"`
		UserID   string `json:"userId"`
		Language string `json:"language"`
		Code     string `json:"code"`
		Input    string `json:"input"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.UserID == "" || req.Code == "" {
		c.enqueue(bus.Event{Type: bus.EventError, Payload: "invalid run_code payload"})
		return
	}

	jobID, err := g.runs.Submit(ctx, req.RoomKey, req.UserID, req.Language, req.Code, req.Input)
	if err != nil {
		g.logger.Error("run submit failed", "error", err)
		c.enqueue(bus.Event{Type: bus.EventError, Payload: "could not queue run"})
		return
	}

	c.enqueue(bus.Event{
		Type:    bus.EventRunQueued,
		Payload: map[string]interface{}{"jobId": jobID},
	})
}
