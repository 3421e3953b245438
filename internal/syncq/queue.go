// Package syncq 离线操作队列和重放协调器。
//
// 每种操作一个存储 key，条目按入队顺序重放；重放失败按指数退避重试，
// 超过次数上限或遇到不可重试的错误时转入死信列表。
package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/internal/metrics"
	"github.com/d60-Lab/beunreal/internal/repository"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

// Kind 操作类型
type Kind string

const (
	KindFollow         Kind = "follow"
	KindUnfollow       Kind = "unfollow"
	KindProfileUpdate  Kind = "profile_update"
	KindMediaUpload    Kind = "media_upload"
	KindMediaDelete    Kind = "media_delete"
	KindStoryCreate    Kind = "story_create"
	KindLocationUpdate Kind = "location_update"
	KindPrivacyUpdate  Kind = "privacy_update"
)

// KeyDeadLetter 死信列表的存储 key
const KeyDeadLetter = "dead_letter_ops"

var storageKeys = map[Kind]string{
	KindFollow:         "pending_follows",
	KindUnfollow:       "pending_unfollows",
	KindProfileUpdate:  "pending_profile_updates",
	KindMediaUpload:    "pending_media_uploads",
	KindMediaDelete:    "pending_media_deletions",
	KindStoryCreate:    "pending_stories",
	KindLocationUpdate: "pending_location_updates",
	KindPrivacyUpdate:  "pending_privacy_updates",
}

// Kinds 默认重放顺序：用户资料、社交、媒体、story、位置
var Kinds = []Kind{
	KindProfileUpdate,
	KindFollow,
	KindUnfollow,
	KindMediaUpload,
	KindMediaDelete,
	KindStoryCreate,
	KindLocationUpdate,
	KindPrivacyUpdate,
}

// StorageKey 返回 kind 对应的存储 key
func StorageKey(k Kind) (string, bool) {
	key, ok := storageKeys[k]
	return key, ok
}

var ErrUnknownKind = errors.New("syncq: unknown kind")

// Entry 一条待重放的操作
type Entry struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	DedupKey      string          `json:"dedupKey,omitempty"`
	EnqueuedAt    time.Time       `json:"enqueuedAt"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"nextAttemptAt,omitempty"`
	LastError     string          `json:"lastError,omitempty"`
	// Claimed 正在重放；Cancelled 重放期间被取消，结束后直接丢弃
	Claimed   bool `json:"claimed,omitempty"`
	Cancelled bool `json:"cancelled,omitempty"`
}

func (e Entry) GetID() string { return e.ID }

// Decode 解析 payload
func (e Entry) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}

// Queue 持久化的待同步操作
type Queue struct {
	cols    map[Kind]*repository.Collection[Entry]
	dead    *repository.Collection[Entry]
	now     func() time.Time
	metrics *metrics.Metrics
}

// QueueOption Queue 可选项
type QueueOption func(*Queue)

func WithQueueClock(now func() time.Time) QueueOption { return func(q *Queue) { q.now = now } }

func WithQueueMetrics(m *metrics.Metrics) QueueOption { return func(q *Queue) { q.metrics = m } }

func NewQueue(st *repository.Storage, opts ...QueueOption) *Queue {
	q := &Queue{
		cols: make(map[Kind]*repository.Collection[Entry], len(storageKeys)),
		dead: repository.NewCollection[Entry](st, KeyDeadLetter),
		now:  time.Now,
	}
	for k, key := range storageKeys {
		q.cols[k] = repository.NewCollection[Entry](st, key)
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *Queue) col(k Kind) (*repository.Collection[Entry], error) {
	c, ok := q.cols[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
	return c, nil
}

// Enqueue 入队；dedupKey 非空且已有同 key 条目时原位替换（后写覆盖），不新增
func (q *Queue) Enqueue(ctx context.Context, kind Kind, payload any, dedupKey string) (Entry, error) {
	c, err := q.col(kind)
	if err != nil {
		return Entry{}, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	e := Entry{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    raw,
		DedupKey:   dedupKey,
		EnqueuedAt: q.now(),
	}
	replaced := false
	var n int
	err = c.Mutate(ctx, func(items []Entry) ([]Entry, bool, error) {
		if dedupKey != "" {
			for i := range items {
				if items[i].DedupKey == dedupKey {
					items[i] = e
					replaced = true
					n = len(items)
					return items, true, nil
				}
			}
		}
		items = append(items, e)
		n = len(items)
		return items, true, nil
	})
	if err != nil {
		return Entry{}, err
	}
	if q.metrics != nil {
		q.metrics.Enqueued.WithLabelValues(string(kind)).Inc()
		q.metrics.Pending.WithLabelValues(string(kind)).Set(float64(n))
	}
	logger.Info("operation queued",
		zap.String("kind", string(kind)),
		zap.String("id", e.ID),
		zap.String("dedup_key", dedupKey),
		zap.Bool("replaced", replaced),
	)
	return e, nil
}

// CancelResult Withdraw 的结果
type CancelResult int

const (
	NotQueued CancelResult = iota
	Cancelled
	// InFlight 条目正在重放，无法撤回，只打上取消标记
	InFlight
)

// Cancel 删除 kind 下 dedupKey 对应的条目，返回是否抵消成功
func (q *Queue) Cancel(ctx context.Context, kind Kind, dedupKey string) (bool, error) {
	r, err := q.Withdraw(ctx, kind, dedupKey)
	return r == Cancelled, err
}

// Withdraw 撤回 dedupKey 对应的条目。正在重放的条目打上取消标记并返回 InFlight，
// 调用方应入队反向操作而不是直接调用远端
func (q *Queue) Withdraw(ctx context.Context, kind Kind, dedupKey string) (CancelResult, error) {
	c, err := q.col(kind)
	if err != nil {
		return NotQueued, err
	}
	res := NotQueued
	var n int
	err = c.Mutate(ctx, func(items []Entry) ([]Entry, bool, error) {
		out := items[:0:0]
		for _, it := range items {
			if it.DedupKey != dedupKey || it.Cancelled {
				out = append(out, it)
				continue
			}
			if it.Claimed {
				it.Cancelled = true
				out = append(out, it)
				res = InFlight
				continue
			}
			if res == NotQueued {
				res = Cancelled
			}
		}
		n = len(out)
		return out, res != NotQueued, nil
	})
	if err != nil {
		return NotQueued, err
	}
	if res == Cancelled {
		q.setPending(kind, n)
	}
	return res, nil
}

// claim 重放前在 key 锁内确认条目仍在并标记为重放中；
// 已被取消或替换时返回 false
func (q *Queue) claim(ctx context.Context, e Entry) (bool, error) {
	c, err := q.col(e.Kind)
	if err != nil {
		return false, err
	}
	ok := false
	err = c.Mutate(ctx, func(items []Entry) ([]Entry, bool, error) {
		for i := range items {
			if items[i].ID != e.ID {
				continue
			}
			// 上次重放中途退出留下的取消标记
			if items[i].Cancelled {
				return append(items[:i:i], items[i+1:]...), true, nil
			}
			items[i].Claimed = true
			ok = true
			return items, true, nil
		}
		return items, false, nil
	})
	return ok, err
}

// dropIfCancelled 条目在重放期间被取消时删除它并返回 true
func (q *Queue) dropIfCancelled(ctx context.Context, e Entry) (bool, error) {
	c, err := q.col(e.Kind)
	if err != nil {
		return false, err
	}
	dropped := false
	err = c.Mutate(ctx, func(items []Entry) ([]Entry, bool, error) {
		for i := range items {
			if items[i].ID == e.ID && items[i].Cancelled {
				dropped = true
				return append(items[:i:i], items[i+1:]...), true, nil
			}
		}
		return items, false, nil
	})
	if err == nil && dropped {
		q.refreshPending(ctx, e.Kind)
	}
	return dropped, err
}

// Pending 按入队顺序返回 kind 下的条目
func (q *Queue) Pending(ctx context.Context, kind Kind) ([]Entry, error) {
	c, err := q.col(kind)
	if err != nil {
		return nil, err
	}
	return c.List(ctx)
}

// Counts 每种 kind 的条目数
func (q *Queue) Counts(ctx context.Context) (map[Kind]int, error) {
	out := make(map[Kind]int, len(q.cols))
	for k, c := range q.cols {
		items, err := c.List(ctx)
		if err != nil {
			return nil, err
		}
		out[k] = len(items)
	}
	return out, nil
}

// Len 所有 kind 的条目总数
func (q *Queue) Len(ctx context.Context) (int, error) {
	counts, err := q.Counts(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// resolve 重放成功后删除；条目已被替换或取消时什么也不做
func (q *Queue) resolve(ctx context.Context, e Entry) error {
	c, err := q.col(e.Kind)
	if err != nil {
		return err
	}
	if _, err := c.Remove(ctx, e.ID); err != nil {
		return err
	}
	q.refreshPending(ctx, e.Kind)
	return nil
}

// reschedule 记录失败并设置下次重试时间
func (q *Queue) reschedule(ctx context.Context, e Entry, next time.Time, cause error) error {
	c, err := q.col(e.Kind)
	if err != nil {
		return err
	}
	if dropped, err := q.dropIfCancelled(ctx, e); err != nil || dropped {
		return err
	}
	_, err = c.Update(ctx, e.ID, func(it *Entry) (bool, error) {
		it.Claimed = false
		it.Attempts = e.Attempts
		it.NextAttemptAt = next
		it.LastError = cause.Error()
		return true, nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

// bury 移入死信列表
func (q *Queue) bury(ctx context.Context, e Entry, cause error) error {
	c, err := q.col(e.Kind)
	if err != nil {
		return err
	}
	if dropped, err := q.dropIfCancelled(ctx, e); err != nil || dropped {
		return err
	}
	removed, err := c.Remove(ctx, e.ID)
	if err != nil || !removed {
		return err
	}
	e.Claimed = false
	e.LastError = cause.Error()
	if err := q.dead.Append(ctx, e); err != nil {
		return err
	}
	q.refreshPending(ctx, e.Kind)
	return nil
}

// DeadLetters 死信列表
func (q *Queue) DeadLetters(ctx context.Context) ([]Entry, error) {
	return q.dead.List(ctx)
}

// Requeue 把死信重新放回原队列，重置重试次数
func (q *Queue) Requeue(ctx context.Context, id string) (Entry, error) {
	e, err := q.dead.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if e == nil {
		return Entry{}, repository.ErrNotFound
	}
	c, err := q.col(e.Kind)
	if err != nil {
		return Entry{}, err
	}
	if _, err := q.dead.Remove(ctx, id); err != nil {
		return Entry{}, err
	}
	out := *e
	out.Attempts = 0
	out.Claimed = false
	out.NextAttemptAt = time.Time{}
	out.LastError = ""
	if err := c.Append(ctx, out); err != nil {
		return Entry{}, err
	}
	q.refreshPending(ctx, e.Kind)
	return out, nil
}

func (q *Queue) setPending(kind Kind, n int) {
	if q.metrics != nil {
		q.metrics.Pending.WithLabelValues(string(kind)).Set(float64(n))
	}
}

func (q *Queue) refreshPending(ctx context.Context, kind Kind) {
	if q.metrics == nil {
		return
	}
	if items, err := q.Pending(ctx, kind); err == nil {
		q.setPending(kind, len(items))
	}
}
