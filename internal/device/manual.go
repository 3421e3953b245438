package device

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

// ManualGeolocator 位置由外部（网关）推送，没有推送过时不可用
type ManualGeolocator struct {
	mu  sync.RWMutex
	loc *model.LocationData
}

func (g *ManualGeolocator) Set(loc model.LocationData) {
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now()
	}
	g.mu.Lock()
	g.loc = &loc
	g.mu.Unlock()
}

func (g *ManualGeolocator) RequestPermission(context.Context) (bool, error) { return true, nil }

func (g *ManualGeolocator) CurrentPosition(context.Context) (model.LocationData, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.loc == nil {
		return model.LocationData{}, ErrUnavailable
	}
	return *g.loc, nil
}

// TimerNotifier 进程内定时器实现的通知，触发时写日志并回调 OnFire
type TimerNotifier struct {
	OnFire func(Notification)

	mu     sync.Mutex
	timers map[int]*time.Timer
}

func (n *TimerNotifier) RequestPermission(context.Context) (bool, error) { return true, nil }

func (n *TimerNotifier) Schedule(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.timers == nil {
		n.timers = make(map[int]*time.Timer)
	}
	if t, ok := n.timers[note.ID]; ok {
		t.Stop()
	}
	n.timers[note.ID] = time.AfterFunc(time.Until(note.At), func() { n.fire(note) })
	logger.Info("notification scheduled", zap.Int("id", note.ID), zap.Time("at", note.At), zap.Duration("every", note.Every))
	return nil
}

func (n *TimerNotifier) fire(note Notification) {
	logger.Info("notification fired", zap.Int("id", note.ID), zap.String("title", note.Title))
	if n.OnFire != nil {
		n.OnFire(note)
	}
	if note.Every <= 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.timers[note.ID]; !ok {
		return
	}
	next := note
	next.At = note.At.Add(note.Every)
	n.timers[note.ID] = time.AfterFunc(time.Until(next.At), func() { n.fire(next) })
}

func (n *TimerNotifier) CancelAll(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
	return nil
}
