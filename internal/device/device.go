// Package device 平台能力（相机、定位、本地通知）的抽象。
package device

import (
	"context"
	"errors"
	"time"

	"github.com/d60-Lab/beunreal/internal/model"
)

var (
	ErrUnavailable      = errors.New("device: capability unavailable")
	ErrPermissionDenied = errors.New("device: permission denied")
)

// Capture 相机拍摄结果
type Capture struct {
	WebPath string
	DataURL string
}

type Camera interface {
	Capture(ctx context.Context) (Capture, error)
}

type Geolocator interface {
	RequestPermission(ctx context.Context) (bool, error)
	CurrentPosition(ctx context.Context) (model.LocationData, error)
}

// Notification 本地通知；Every>0 时按间隔重复
type Notification struct {
	ID    int
	Title string
	Body  string
	At    time.Time
	Every time.Duration
}

type Notifier interface {
	RequestPermission(ctx context.Context) (bool, error)
	Schedule(ctx context.Context, n Notification) error
	CancelAll(ctx context.Context) error
}

// NoCamera 没有相机的环境
type NoCamera struct{}

func (NoCamera) Capture(context.Context) (Capture, error) { return Capture{}, ErrUnavailable }
