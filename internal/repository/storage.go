package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/internal/kv"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

// ErrNotFound 更新/删除的记录不存在
var ErrNotFound = errors.New("record not found")

// Storage 在 kv.Store 之上提供按 key 串行化的读-改-写
type Storage struct {
	store kv.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStorage(store kv.Store) *Storage {
	return &Storage{store: store, locks: make(map[string]*sync.Mutex)}
}

// Store 返回底层 kv
func (s *Storage) Store() kv.Store { return s.store }

func (s *Storage) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// GetString 读取字符串值
func (s *Storage) GetString(ctx context.Context, key string) (string, bool, error) {
	return s.store.Get(ctx, key)
}

// SetString 写入字符串值
func (s *Storage) SetString(ctx context.Context, key, value string) error {
	unlock := s.lock(key)
	defer unlock()
	return s.store.Set(ctx, key, value)
}

// Remove 删除 key
func (s *Storage) Remove(ctx context.Context, key string) error {
	unlock := s.lock(key)
	defer unlock()
	return s.store.Remove(ctx, key)
}

// WithLock 在 key 锁内执行 fn，fn 内不能再对同一 key 加锁
func (s *Storage) WithLock(key string, fn func() error) error {
	unlock := s.lock(key)
	defer unlock()
	return fn()
}

// readJSON 解析失败按空值处理并记录日志
func readJSON[T any](ctx context.Context, st kv.Store, key string) (T, bool, error) {
	var zero T
	raw, ok, err := st.Get(ctx, key)
	if err != nil || !ok || raw == "" {
		return zero, false, err
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logger.Warn("corrupt json in storage, treating as empty", zap.String("key", key), zap.Error(err))
		return zero, false, nil
	}
	return out, true, nil
}

func writeJSON(ctx context.Context, st kv.Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return st.Set(ctx, key, string(data))
}

// Identifiable 可按 id 定位的实体
type Identifiable interface {
	GetID() string
}

// Collection 一个存储 key 下的 JSON 数组
type Collection[T Identifiable] struct {
	st  *Storage
	key string
}

func NewCollection[T Identifiable](st *Storage, key string) *Collection[T] {
	return &Collection[T]{st: st, key: key}
}

// Key 存储 key
func (c *Collection[T]) Key() string { return c.key }

// List 返回全部元素
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	items, _, err := readJSON[[]T](ctx, c.st.store, c.key)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Get 按 id 查找，不存在返回 nil, nil
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].GetID() == id {
			return &items[i], nil
		}
	}
	return nil, nil
}

// Find 返回满足 pred 的元素
func (c *Collection[T]) Find(ctx context.Context, pred func(T) bool) ([]T, error) {
	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if pred(it) {
			out = append(out, it)
		}
	}
	return out, nil
}

// Mutate 在 key 锁内读取整个数组，fn 返回新数组和是否需要写回
func (c *Collection[T]) Mutate(ctx context.Context, fn func(items []T) ([]T, bool, error)) error {
	return c.st.WithLock(c.key, func() error {
		items, err := c.List(ctx)
		if err != nil {
			return err
		}
		next, changed, err := fn(items)
		if err != nil || !changed {
			return err
		}
		return writeJSON(ctx, c.st.store, c.key, next)
	})
}

// Append 追加到末尾
func (c *Collection[T]) Append(ctx context.Context, item T) error {
	return c.Mutate(ctx, func(items []T) ([]T, bool, error) {
		return append(items, item), true, nil
	})
}

// Save 按 id 覆盖已有元素，不存在时追加
func (c *Collection[T]) Save(ctx context.Context, item T) error {
	return c.Mutate(ctx, func(items []T) ([]T, bool, error) {
		for i := range items {
			if items[i].GetID() == item.GetID() {
				items[i] = item
				return items, true, nil
			}
		}
		return append(items, item), true, nil
	})
}

// Prepend 插入到开头
func (c *Collection[T]) Prepend(ctx context.Context, item T) error {
	return c.Mutate(ctx, func(items []T) ([]T, bool, error) {
		return append([]T{item}, items...), true, nil
	})
}

// Update 原地修改 id 对应的元素；fn 返回 false 表示无需写回
func (c *Collection[T]) Update(ctx context.Context, id string, fn func(*T) (bool, error)) (*T, error) {
	var out *T
	err := c.Mutate(ctx, func(items []T) ([]T, bool, error) {
		for i := range items {
			if items[i].GetID() != id {
				continue
			}
			changed, err := fn(&items[i])
			if err != nil {
				return nil, false, err
			}
			v := items[i]
			out = &v
			return items, changed, nil
		}
		return nil, false, ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Remove 删除 id 对应元素，返回是否存在
func (c *Collection[T]) Remove(ctx context.Context, id string) (bool, error) {
	removed := false
	err := c.Mutate(ctx, func(items []T) ([]T, bool, error) {
		out := items[:0:0]
		for _, it := range items {
			if it.GetID() == id {
				removed = true
				continue
			}
			out = append(out, it)
		}
		return out, removed, nil
	})
	return removed, err
}

// Replace 整体覆盖
func (c *Collection[T]) Replace(ctx context.Context, items []T) error {
	return c.st.WithLock(c.key, func() error {
		return writeJSON(ctx, c.st.store, c.key, items)
	})
}

// Document 一个存储 key 下的单个 JSON 值
type Document[T any] struct {
	st  *Storage
	key string
}

func NewDocument[T any](st *Storage, key string) *Document[T] {
	return &Document[T]{st: st, key: key}
}

// Load 读取，不存在时 ok=false
func (d *Document[T]) Load(ctx context.Context) (T, bool, error) {
	return readJSON[T](ctx, d.st.store, d.key)
}

// Save 覆盖写入
func (d *Document[T]) Save(ctx context.Context, v T) error {
	return d.st.WithLock(d.key, func() error {
		return writeJSON(ctx, d.st.store, d.key, v)
	})
}

// Clear 删除
func (d *Document[T]) Clear(ctx context.Context) error {
	return d.st.Remove(ctx, d.key)
}

// Mutate 在 key 锁内读-改-写
func (d *Document[T]) Mutate(ctx context.Context, fn func(v *T, exists bool) (bool, error)) error {
	return d.st.WithLock(d.key, func() error {
		v, ok, err := readJSON[T](ctx, d.st.store, d.key)
		if err != nil {
			return err
		}
		changed, err := fn(&v, ok)
		if err != nil || !changed {
			return err
		}
		return writeJSON(ctx, d.st.store, d.key, v)
	})
}
