// Package connectivity 维护进程内的在线/离线状态，并把状态跳变广播给订阅者。
package connectivity

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/pkg/logger"
)

// Event 一次状态跳变
type Event struct {
	Online bool
	At     time.Time
}

// Monitor 在线状态；Set 只在状态变化时通知订阅者
type Monitor struct {
	mu     sync.RWMutex
	online bool
	subs   map[int]chan Event
	nextID int
	hooks  []func(bool)
}

func NewMonitor(initial bool) *Monitor {
	return &Monitor{online: initial, subs: make(map[int]chan Event)}
}

// Online 当前状态（时点值）
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set 更新状态，返回是否发生跳变
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	ev := Event{Online: online, At: time.Now()}
	subs := make([]chan Event, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	hooks := append([]func(bool){}, m.hooks...)
	m.mu.Unlock()

	logger.Info("connectivity changed", zap.Bool("online", online))
	for _, h := range hooks {
		h(online)
	}
	for _, ch := range subs {
		// 订阅者处理慢时丢弃旧事件，只保留最新状态
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
	return true
}

// OnChange 注册同步回调（用于指标等轻量操作）
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	m.hooks = append(m.hooks, fn)
	m.mu.Unlock()
}

// Subscribe 返回事件通道和取消函数
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 1)
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}
