package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/beunreal/config"
	"github.com/d60-Lab/beunreal/internal/app"
	"github.com/d60-Lab/beunreal/internal/device"
	"github.com/d60-Lab/beunreal/internal/repository"
	"github.com/d60-Lab/beunreal/internal/service"
	"github.com/d60-Lab/beunreal/internal/syncq"
	"github.com/d60-Lab/beunreal/pkg/response"
)

// Handler 网关处理器，所有业务都委托给 app 中的服务
type Handler struct {
	app      *app.App
	mediaDir string
	nearbyKm float64
}

func New(a *app.App, cfg *config.Config) *Handler {
	km := cfg.App.NearbyMaxDistanceKm
	if km <= 0 {
		km = 20
	}
	return &Handler{app: a, mediaDir: cfg.Store.MediaDir, nearbyKm: km}
}

// fail 把服务层错误映射为 HTTP 响应
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotAuthenticated), errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrForbidden), errors.Is(err, device.ErrPermissionDenied):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrFollowSelf),
		errors.Is(err, service.ErrMediaTooLarge), errors.Is(err, service.ErrUserExists),
		errors.Is(err, service.ErrOffline), errors.Is(err, syncq.ErrUnknownKind),
		errors.Is(err, device.ErrUnavailable):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

// found 空结果返回 404
func found[T any](c *gin.Context, v *T, err error, what string) {
	if err != nil {
		fail(c, err)
		return
	}
	if v == nil {
		response.NotFound(c, what+" not found")
		return
	}
	response.Success(c, v)
}
