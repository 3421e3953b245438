package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/pkg/response"
)

type enabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type positionRequest struct {
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
	Accuracy  float64 `json:"accuracy"`
}

func (h *Handler) LocationEnabled(c *gin.Context) {
	on, err := h.app.Location.IsEnabled(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"enabled": on})
}

func (h *Handler) SetLocationEnabled(c *gin.Context) {
	var req enabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.app.Location.SetEnabled(c.Request.Context(), *req.Enabled); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"enabled": *req.Enabled})
}

// CurrentLocation 定位关闭时 data 为空
func (h *Handler) CurrentLocation(c *gin.Context) {
	loc, err := h.app.Location.CurrentLocation(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, loc)
}

// PushLocation 外壳上报设备位置
// @Summary 上报位置
// @Tags 位置
// @Accept json
// @Param request body positionRequest true "坐标"
// @Success 200 {object} response.Response{data=model.LocationData}
// @Router /api/v1/location/current [post]
func (h *Handler) PushLocation(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if h.app.Geolocator == nil {
		response.BadRequest(c, "location is provided by the device")
		return
	}
	h.app.Geolocator.Set(model.LocationData{Latitude: req.Latitude, Longitude: req.Longitude, Accuracy: req.Accuracy})
	h.CurrentLocation(c)
}

func (h *Handler) LocationPrivacy(c *gin.Context) {
	p, err := h.app.Location.GetPrivacy(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, p)
}

func (h *Handler) UpdateLocationPrivacy(c *gin.Context) {
	var p model.LocationPrivacy
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.app.Location.UpdatePrivacy(c.Request.Context(), p); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, p)
}

// NearbyUsers ?radius= 米，?limit=
func (h *Handler) NearbyUsers(c *gin.Context) {
	radius, _ := strconv.ParseFloat(c.DefaultQuery("radius", "5000"), 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	ids, err := h.app.Location.NearbyUsers(c.Request.Context(), radius, limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, ids)
}
