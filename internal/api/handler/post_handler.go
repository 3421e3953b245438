package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/beunreal/pkg/response"
)

type createPostRequest struct {
	ImageURL string `json:"imageUrl" binding:"required"`
	Caption  string `json:"caption"`
}

type commentRequest struct {
	Text string `json:"text" binding:"required"`
}

// CreatePost 发帖
// @Summary 发帖
// @Tags 帖子
// @Accept json
// @Param request body createPostRequest true "帖子"
// @Success 201 {object} response.Response{data=model.Post}
// @Router /api/v1/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.app.Posts.CreatePost(c.Request.Context(), req.ImageURL, req.Caption)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, p)
}

// ListPosts 全部帖子，或 ?user_id= 指定作者
func (h *Handler) ListPosts(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		list any
		err  error
	)
	if uid := c.Query("user_id"); uid != "" {
		list, err = h.app.Posts.GetPostsByUser(ctx, uid)
	} else {
		list, err = h.app.Posts.GetPosts(ctx)
	}
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// Feed 关注的人和自己的帖子
// @Summary 帖子 feed
// @Tags 帖子
// @Success 200 {object} response.Response{data=[]model.PostWithUser}
// @Router /api/v1/posts/feed [get]
func (h *Handler) Feed(c *gin.Context) {
	list, err := h.app.Posts.GetFeedPosts(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

func (h *Handler) GetPost(c *gin.Context) {
	p, err := h.app.Posts.GetPostByID(c.Request.Context(), c.Param("post_id"))
	found(c, p, err, "post")
}

func (h *Handler) DeletePost(c *gin.Context) {
	ok, err := h.app.Posts.DeletePost(c.Request.Context(), c.Param("post_id"))
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		response.NotFound(c, "post not found")
		return
	}
	response.Success(c, nil)
}

func (h *Handler) LikePost(c *gin.Context) {
	p, err := h.app.Posts.LikePost(c.Request.Context(), c.Param("post_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, p)
}

func (h *Handler) UnlikePost(c *gin.Context) {
	p, err := h.app.Posts.UnlikePost(c.Request.Context(), c.Param("post_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, p)
}

func (h *Handler) AddComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.app.Posts.AddComment(c.Request.Context(), c.Param("post_id"), req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, p)
}

func (h *Handler) ListComments(c *gin.Context) {
	list, err := h.app.Posts.GetCommentsWithUsers(c.Request.Context(), c.Param("post_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}
