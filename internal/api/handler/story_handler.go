package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/pkg/response"
)

// createStoryRequest photoId 指向相册中的照片；否则直接使用 webPath/dataUrl
type createStoryRequest struct {
	PhotoID string `json:"photoId"`
	WebPath string `json:"webPath"`
	DataURL string `json:"dataUrl"`
	Caption string `json:"caption" binding:"max=500"`
}

// CreateStory 发布 story；离线时本地保存并排队
// @Summary 发布 story
// @Tags story
// @Accept json
// @Param request body createStoryRequest true "story"
// @Success 201 {object} response.Response{data=model.Story}
// @Failure 400 {object} response.Response
// @Router /api/v1/stories [post]
func (h *Handler) CreateStory(c *gin.Context) {
	var req createStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	photo := model.Photo{WebPath: req.WebPath, DataURL: req.DataURL}
	if req.PhotoID != "" {
		p, err := h.app.Camera.PhotoByID(ctx, req.PhotoID)
		if err != nil {
			fail(c, err)
			return
		}
		if p == nil {
			response.NotFound(c, "photo not found")
			return
		}
		photo = *p
	}
	st, err := h.app.Stories.CreateStory(ctx, photo, req.Caption)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, st)
}

func (h *Handler) StoryFeed(c *gin.Context) {
	list, err := h.app.Stories.GetFeedStories(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// NearbyStories ?km= 默认取配置的最大距离
func (h *Handler) NearbyStories(c *gin.Context) {
	km := h.nearbyKm
	if v := c.Query("km"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			response.BadRequest(c, "km must be a positive number")
			return
		}
		km = f
	}
	list, err := h.app.Stories.GetNearbyStories(c.Request.Context(), km)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

func (h *Handler) ViewStory(c *gin.Context) {
	if err := h.app.Stories.MarkStoryAsViewed(c.Request.Context(), c.Param("story_id")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *Handler) LikeStory(c *gin.Context) {
	if err := h.app.Stories.LikeStory(c.Request.Context(), c.Param("story_id")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *Handler) UnlikeStory(c *gin.Context) {
	if err := h.app.Stories.UnlikeStory(c.Request.Context(), c.Param("story_id")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *Handler) DeleteStory(c *gin.Context) {
	if err := h.app.Stories.DeleteStory(c.Request.Context(), c.Param("story_id")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}
