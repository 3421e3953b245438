package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/pkg/response"
)

type connectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required,oneof=online offline hybrid"`
}

func (h *Handler) Healthz(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

func (h *Handler) Connectivity(c *gin.Context) {
	response.Success(c, gin.H{"online": h.app.Monitor.Online(), "useOnline": h.app.Sync.UseOnline()})
}

// SetConnectivity 外壳上报网络状态；离线转在线会触发同步
// @Summary 上报网络状态
// @Tags 同步
// @Accept json
// @Param request body connectivityRequest true "状态"
// @Success 200 {object} response.Response
// @Router /api/v1/connectivity [put]
func (h *Handler) SetConnectivity(c *gin.Context) {
	var req connectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	changed := h.app.SetOnline(*req.Online)
	response.Success(c, gin.H{"online": *req.Online, "changed": changed})
}

// SyncStatus 各类待同步操作数量
func (h *Handler) SyncStatus(c *gin.Context) {
	ctx := c.Request.Context()
	counts, err := h.app.Sync.Queue().Counts(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	dead, err := h.app.Sync.Queue().DeadLetters(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"mode":        h.app.Mode(),
		"online":      h.app.Monitor.Online(),
		"pending":     counts,
		"deadLetters": len(dead),
	})
}

func (h *Handler) SyncNow(c *gin.Context) {
	res, err := h.app.SyncNow(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, res)
}

func (h *Handler) DeadLetters(c *gin.Context) {
	list, err := h.app.Sync.Queue().DeadLetters(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// Requeue 死信重新入队
// @Summary 死信重试
// @Tags 同步
// @Param entry_id path string true "条目ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/sync/dead-letters/{entry_id}/requeue [post]
func (h *Handler) Requeue(c *gin.Context) {
	e, err := h.app.Sync.Queue().Requeue(c.Request.Context(), c.Param("entry_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, e)
}

func (h *Handler) Mode(c *gin.Context) {
	response.Success(c, gin.H{"mode": h.app.Mode()})
}

func (h *Handler) SetMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.app.SetMode(c.Request.Context(), model.AppMode(req.Mode)); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"mode": req.Mode})
}
