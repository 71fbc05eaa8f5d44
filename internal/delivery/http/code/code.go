package http_code

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	http_common "github.com/ekuzmich/collabrun/internal/delivery/http/common"
	usecase_run "github.com/ekuzmich/collabrun/internal/usecase/run"
)

type Controller struct {
	usecase *usecase_run.Usecase
	logger  *slog.Logger
}

func New(usecase *usecase_run.Usecase) *Controller {
	return &Controller{
		usecase: usecase,
		logger:  slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	code := router.Group("/code")
	{
		code.POST("/execute", c.execute)
		code.GET("/history", c.history)
	}
}

type ExecuteRequestDTO struct {
	UserID   string `json:"user_id" binding:"required"`
	Language string `json:"language" binding:"required"`
	Code     string `json:"code" binding:"required"`
	Input    string `json:"input"`
}

type ExecuteResponseDTO struct {
	Output string `json:"output"`
	Time   int64  `json:"time"`
	Status string `json:"status"`
}

// execute runs code inline for the solo editor. Collaborative runs go
// through the websocket and the queue instead.
func (c *Controller) execute(ctx *gin.Context) {
	var req ExecuteRequestDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "invalid request"})
		return
	}

	rec, err := c.usecase.ExecuteSync(ctx, req.UserID, req.Language, req.Code, req.Input)
	if err != nil {
		c.logger.Error("inline execution failed", slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{Message: err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, ExecuteResponseDTO{
		Output: rec.Output,
		Time:   rec.ExecutionMs,
		Status: rec.Status,
	})
}

func (c *Controller) history(ctx *gin.Context) {
	userID := ctx.Query("user")
	if userID == "" {
		ctx.JSON(http.StatusBadRequest, http_common.ErrorResponse{Message: "user required"})
		return
	}
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	recs, err := c.usecase.History(ctx, userID, limit)
	if err != nil {
		c.logger.Error("failed to load history", slog.String("error", err.Error()))
		ctx.JSON(http.StatusInternalServerError, http_common.ErrorResponse{Message: "internal error"})
		return
	}

	ctx.JSON(http.StatusOK, recs)
}
