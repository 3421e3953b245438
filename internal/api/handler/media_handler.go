package handler

import (
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/pkg/response"
)

// UploadMedia 表单字段 file 和 type（image/video）；文件先落到媒体目录，离线时之后重放上传
// @Summary 上传媒体
// @Tags 媒体
// @Accept multipart/form-data
// @Param file formData file true "文件"
// @Param type formData string false "image 或 video"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/media [post]
func (h *Handler) UploadMedia(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	mediaType := model.MediaType(c.DefaultPostForm("type", string(model.MediaImage)))

	if err := os.MkdirAll(h.mediaDir, 0o755); err != nil {
		response.InternalError(c, err)
		return
	}
	path := filepath.Join(h.mediaDir, uuid.NewString()+filepath.Ext(fh.Filename))
	if err := c.SaveUploadedFile(fh, path); err != nil {
		response.InternalError(c, err)
		return
	}
	id, err := h.app.Media.Upload(c.Request.Context(), path, mediaType)
	if err != nil {
		_ = os.Remove(path)
		fail(c, err)
		return
	}
	response.Created(c, gin.H{"id": id})
}

func (h *Handler) GetMedia(c *gin.Context) {
	m, err := h.app.Media.Get(c.Request.Context(), c.Param("media_id"))
	found(c, m, err, "media")
}

func (h *Handler) DeleteMedia(c *gin.Context) {
	if err := h.app.Media.Delete(c.Request.Context(), c.Param("media_id")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}
