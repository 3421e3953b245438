package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/beunreal/pkg/response"
)

type reminderRequest struct {
	Time string `json:"time" binding:"required"`
}

type toggleRequest struct {
	Enabled *bool  `json:"enabled" binding:"required"`
	Time    string `json:"time"`
}

func (h *Handler) NotificationSettings(c *gin.Context) {
	st, err := h.app.Notifications.Settings(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, st)
}

// ScheduleReminder 每日提醒，time 为 HH:MM
// @Summary 设置每日提醒
// @Tags 通知
// @Accept json
// @Param request body reminderRequest true "时间"
// @Success 200 {object} response.Response
// @Router /api/v1/notifications/schedule [post]
func (h *Handler) ScheduleReminder(c *gin.Context) {
	var req reminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	next, err := h.app.Notifications.ScheduleDailyReminder(c.Request.Context(), req.Time)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"next": next})
}

func (h *Handler) ToggleNotifications(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	if err := h.app.Notifications.Toggle(ctx, *req.Enabled, req.Time); err != nil {
		fail(c, err)
		return
	}
	h.NotificationSettings(c)
}

func (h *Handler) CancelNotifications(c *gin.Context) {
	if err := h.app.Notifications.CancelAll(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}
