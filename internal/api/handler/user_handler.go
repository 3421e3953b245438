package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/pkg/response"
)

// SearchUsers 按用户名或姓名搜索
// @Summary 搜索用户
// @Tags 用户
// @Param q query string true "关键字"
// @Success 200 {object} response.Response{data=[]model.User}
// @Router /api/v1/users/search [get]
func (h *Handler) SearchUsers(c *gin.Context) {
	list, err := h.app.Auth.SearchUsers(c.Request.Context(), c.Query("q"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.app.Auth.GetUserByID(c.Request.Context(), c.Param("user_id"))
	found(c, u, err, "user")
}

// Follow 关注用户；离线时本地生效并排队同步
// @Summary 关注用户
// @Tags 关系链
// @Produce json
// @Param user_id path string true "被关注用户ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/users/{user_id}/follow [post]
func (h *Handler) Follow(c *gin.Context) {
	if err := h.app.Auth.FollowUser(c.Request.Context(), c.Param("user_id")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// Unfollow 取消关注
// @Summary 取消关注
// @Tags 关系链
// @Produce json
// @Param user_id path string true "被取消关注用户ID"
// @Success 200 {object} response.Response
// @Router /api/v1/users/{user_id}/follow [delete]
func (h *Handler) Unfollow(c *gin.Context) {
	if err := h.app.Auth.UnfollowUser(c.Request.Context(), c.Param("user_id")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// ListFollowing 查询某用户关注的人
// @Summary 查询关注列表
// @Tags 关系链
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response{data=[]model.User}
// @Router /api/v1/users/{user_id}/following [get]
func (h *Handler) ListFollowing(c *gin.Context) {
	h.listRelation(c, func(u *model.User) []string { return u.Following })
}

// ListFollowers 查询某用户的粉丝
// @Summary 查询粉丝列表
// @Tags 关系链
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response{data=[]model.User}
// @Router /api/v1/users/{user_id}/followers [get]
func (h *Handler) ListFollowers(c *gin.Context) {
	h.listRelation(c, func(u *model.User) []string { return u.Followers })
}

func (h *Handler) listRelation(c *gin.Context, ids func(*model.User) []string) {
	ctx := c.Request.Context()
	u, err := h.app.Auth.GetUserByID(ctx, c.Param("user_id"))
	if err != nil {
		fail(c, err)
		return
	}
	if u == nil {
		response.NotFound(c, "user not found")
		return
	}
	list, err := h.app.Auth.GetUsersByIDs(ctx, ids(u))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"total": len(ids(u)), "list": list})
}
