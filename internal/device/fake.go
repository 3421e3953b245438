package device

import (
	"context"
	"sync"

	"github.com/d60-Lab/beunreal/internal/model"
)

// FakeCamera 返回预设的拍摄结果
type FakeCamera struct {
	Result Capture
	Err    error
}

func (c *FakeCamera) Capture(context.Context) (Capture, error) { return c.Result, c.Err }

// FakeGeolocator 返回预设位置
type FakeGeolocator struct {
	Location model.LocationData
	Err      error
	Denied   bool
}

func (g *FakeGeolocator) RequestPermission(context.Context) (bool, error) { return !g.Denied, nil }

func (g *FakeGeolocator) CurrentPosition(context.Context) (model.LocationData, error) {
	if g.Err != nil {
		return model.LocationData{}, g.Err
	}
	return g.Location, nil
}

// FakeNotifier 记录调度过的通知
type FakeNotifier struct {
	Denied bool

	mu        sync.Mutex
	Scheduled []Notification
	Cancels   int
}

func (n *FakeNotifier) RequestPermission(context.Context) (bool, error) { return !n.Denied, nil }

func (n *FakeNotifier) Schedule(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Scheduled = append(n.Scheduled, note)
	return nil
}

func (n *FakeNotifier) CancelAll(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Scheduled = nil
	n.Cancels++
	return nil
}
