package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/beunreal/internal/device"
	"github.com/d60-Lab/beunreal/pkg/response"
)

type importPhotoRequest struct {
	WebPath string `json:"webPath"`
	DataURL string `json:"dataUrl"`
}

// TakePhoto 有请求体时导入外壳拍好的照片，否则调用相机
// @Summary 拍照
// @Tags 相册
// @Accept json
// @Param request body importPhotoRequest false "外壳拍好的照片"
// @Success 201 {object} response.Response{data=model.Photo}
// @Router /api/v1/photos [post]
func (h *Handler) TakePhoto(c *gin.Context) {
	ctx := c.Request.Context()
	var req importPhotoRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	var err error
	var out any
	if req.WebPath != "" || req.DataURL != "" {
		out, err = h.app.Camera.ImportPhoto(ctx, device.Capture{WebPath: req.WebPath, DataURL: req.DataURL})
	} else {
		out, err = h.app.Camera.TakePhoto(ctx)
	}
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, out)
}

func (h *Handler) ListPhotos(c *gin.Context) {
	list, err := h.app.Camera.Photos(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

func (h *Handler) GetPhoto(c *gin.Context) {
	p, err := h.app.Camera.PhotoByID(c.Request.Context(), c.Param("photo_id"))
	found(c, p, err, "photo")
}

func (h *Handler) DeletePhoto(c *gin.Context) {
	ok, err := h.app.Camera.DeletePhoto(c.Request.Context(), c.Param("photo_id"))
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		response.NotFound(c, "photo not found")
		return
	}
	response.Success(c, nil)
}

func (h *Handler) DeleteAllPhotos(c *gin.Context) {
	if err := h.app.Camera.DeleteAllPhotos(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}
