package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/service"
	"github.com/d60-Lab/beunreal/pkg/response"
)

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 注册（离线时创建本地账号）
// @Summary 注册
// @Tags 账号
// @Accept json
// @Produce json
// @Param request body service.RegisterInput true "注册信息"
// @Success 201 {object} response.Response{data=model.User}
// @Failure 400 {object} response.Response
// @Router /api/v1/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.app.Auth.Register(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, u)
}

// Login 用户名或邮箱登录
// @Summary 登录
// @Tags 账号
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录信息"
// @Success 200 {object} response.Response{data=model.User}
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.app.Auth.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, u)
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.app.Auth.Logout(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// Me 当前登录用户
func (h *Handler) Me(c *gin.Context) {
	u, err := h.app.Auth.CurrentUser(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if u == nil {
		response.Unauthorized(c, "not authenticated")
		return
	}
	response.Success(c, u)
}

// UpdateProfile 只更新请求中出现的字段
// @Summary 更新资料
// @Tags 账号
// @Accept json
// @Param request body model.ProfilePatch true "资料"
// @Success 200 {object} response.Response{data=model.User}
// @Router /api/v1/auth/profile [put]
func (h *Handler) UpdateProfile(c *gin.Context) {
	var patch model.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.app.Auth.UpdateProfile(c.Request.Context(), patch)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, u)
}
