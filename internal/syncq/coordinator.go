package syncq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/config"
	"github.com/d60-Lab/beunreal/internal/apiclient"
	"github.com/d60-Lab/beunreal/internal/connectivity"
	"github.com/d60-Lab/beunreal/internal/metrics"
	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

// Handler 重放一条操作；返回 nil 表示已同步
type Handler func(ctx context.Context, e Entry) error

// ErrPermanent 包装后表示不应重试
var ErrPermanent = errors.New("syncq: permanent failure")

// Permanent 标记 err 为不可重试
func Permanent(err error) error { return fmt.Errorf("%w: %w", ErrPermanent, err) }

func isPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) || apiclient.IsPermanent(err)
}

// DrainResult 一次重放的统计
type DrainResult struct {
	Replayed     int `json:"replayed"`
	Retried      int `json:"retried"`
	DeadLettered int `json:"deadLettered"`
	Skipped      int `json:"skipped"`
}

type flight struct {
	done chan struct{}
	res  DrainResult
	err  error
}

// Coordinator 判断在线状态并重放队列
type Coordinator struct {
	queue   *Queue
	monitor *connectivity.Monitor
	cfg     config.SyncConfig

	mu       sync.Mutex
	handlers map[Kind]Handler
	inflight *flight

	mode    atomic.Value // model.AppMode
	ready   func(ctx context.Context) bool
	report  func(err error, tags map[string]string)
	now     func() time.Time
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option Coordinator 可选项
type Option func(*Coordinator)

// WithClock 替换时钟
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// WithMetrics 记录重放指标
func WithMetrics(m *metrics.Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

// WithReady 重放前置条件（例如已登录），不满足时跳过整次重放
func WithReady(fn func(ctx context.Context) bool) Option { return func(c *Coordinator) { c.ready = fn } }

// WithReporter 死信上报
func WithReporter(fn func(err error, tags map[string]string)) Option {
	return func(c *Coordinator) { c.report = fn }
}

func NewCoordinator(queue *Queue, monitor *connectivity.Monitor, cfg config.SyncConfig, opts ...Option) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 15 * time.Second
	}
	c := &Coordinator{
		queue:    queue,
		monitor:  monitor,
		cfg:      cfg,
		handlers: make(map[Kind]Handler),
		now:      time.Now,
		tracer:   otel.Tracer("github.com/d60-Lab/beunreal/internal/syncq"),
	}
	c.mode.Store(model.ModeHybrid)
	for _, o := range opts {
		o(c)
	}
	return c
}

// Queue 底层队列
func (c *Coordinator) Queue() *Queue { return c.queue }

// Register 注册 kind 的重放函数；按 Kinds 的顺序重放，没有注册的 kind 不重放
func (c *Coordinator) Register(kind Kind, h Handler) error {
	if _, ok := storageKeys[kind]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = h
	return nil
}

func (c *Coordinator) kinds() []Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Kind, 0, len(c.handlers))
	for _, k := range Kinds {
		if _, ok := c.handlers[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func (c *Coordinator) handler(k Kind) Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[k]
}

func (c *Coordinator) Mode() model.AppMode { return c.mode.Load().(model.AppMode) }

func (c *Coordinator) SetMode(m model.AppMode) { c.mode.Store(m) }

// UseOnline 时点判断：非离线模式且网络可达
func (c *Coordinator) UseOnline() bool {
	return c.Mode() != model.ModeOffline && c.monitor.Online()
}

// Enqueue 入队的快捷方法
func (c *Coordinator) Enqueue(ctx context.Context, kind Kind, payload any, dedupKey string) error {
	_, err := c.queue.Enqueue(ctx, kind, payload, dedupKey)
	return err
}

// Backoff 第 attempts 次失败后的等待时间
func (c *Coordinator) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := c.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= c.cfg.MaxBackoff {
			return c.cfg.MaxBackoff
		}
	}
	return d
}

// Drain 重放所有到期条目。并发调用共享同一次执行的结果
func (c *Coordinator) Drain(ctx context.Context) (DrainResult, error) {
	c.mu.Lock()
	if f := c.inflight; f != nil {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.res, f.err
		case <-ctx.Done():
			return DrainResult{}, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	c.inflight = f
	c.mu.Unlock()

	f.res, f.err = c.drain(ctx)

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(f.done)
	return f.res, f.err
}

func (c *Coordinator) drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult
	if !c.UseOnline() {
		return res, nil
	}
	if c.ready != nil && !c.ready(ctx) {
		logger.Debug("sync skipped, not ready")
		return res, nil
	}

	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "sync.drain")
	defer span.End()
	defer func() { c.metrics.ObserveDrain(time.Since(start)) }()

	for _, kind := range c.kinds() {
		entries, err := c.queue.Pending(ctx, kind)
		if err != nil {
			span.RecordError(err)
			return res, err
		}
		h := c.handler(kind)
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			// 重放过程中掉线，剩余条目留到下次
			if !c.UseOnline() {
				span.SetAttributes(attribute.Bool("sync.interrupted", true))
				return res, nil
			}
			if !e.NextAttemptAt.IsZero() && e.NextAttemptAt.After(c.now()) {
				res.Skipped++
				continue
			}
			// 读取快照之后条目可能已被取消或替换
			ok, err := c.queue.claim(ctx, e)
			if err != nil {
				span.RecordError(err)
				return res, err
			}
			if !ok {
				continue
			}
			if err := c.replay(ctx, h, e, &res); err != nil {
				span.RecordError(err)
				return res, err
			}
		}
	}
	span.SetAttributes(
		attribute.Int("sync.replayed", res.Replayed),
		attribute.Int("sync.retried", res.Retried),
		attribute.Int("sync.dead_lettered", res.DeadLettered),
	)
	if res.Replayed+res.Retried+res.DeadLettered > 0 {
		logger.Info("sync drain finished",
			zap.Int("replayed", res.Replayed),
			zap.Int("retried", res.Retried),
			zap.Int("dead_lettered", res.DeadLettered),
			zap.Int("skipped", res.Skipped),
			zap.Duration("took", time.Since(start)),
		)
	}
	return res, nil
}

// replay 返回的 error 只表示存储失败；handler 的错误转成重试或死信
func (c *Coordinator) replay(ctx context.Context, h Handler, e Entry, res *DrainResult) error {
	ctx, span := c.tracer.Start(ctx, "sync.replay", trace.WithAttributes(
		attribute.String("sync.kind", string(e.Kind)),
		attribute.String("sync.entry_id", e.ID),
		attribute.Int("sync.attempts", e.Attempts),
	))
	defer span.End()

	err := h(ctx, e)
	if err == nil {
		res.Replayed++
		c.count(e.Kind, "ok")
		return c.queue.resolve(ctx, e)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	e.Attempts++
	if isPermanent(err) || e.Attempts >= c.cfg.MaxAttempts {
		res.DeadLettered++
		c.count(e.Kind, "dead")
		if c.metrics != nil {
			c.metrics.DeadLettered.WithLabelValues(string(e.Kind)).Inc()
		}
		logger.Error("operation dead-lettered",
			zap.String("kind", string(e.Kind)),
			zap.String("id", e.ID),
			zap.Int("attempts", e.Attempts),
			zap.Error(err),
		)
		if c.report != nil {
			c.report(err, map[string]string{"sync.kind": string(e.Kind), "sync.entry_id": e.ID})
		}
		return c.queue.bury(ctx, e, err)
	}

	next := c.now().Add(c.Backoff(e.Attempts))
	res.Retried++
	c.count(e.Kind, "retry")
	logger.Warn("operation replay failed, will retry",
		zap.String("kind", string(e.Kind)),
		zap.String("id", e.ID),
		zap.Int("attempts", e.Attempts),
		zap.Time("next_attempt_at", next),
		zap.Error(err),
	)
	return c.queue.reschedule(ctx, e, next, err)
}

func (c *Coordinator) count(kind Kind, result string) {
	if c.metrics != nil {
		c.metrics.Replayed.WithLabelValues(string(kind), result).Inc()
	}
}

// Run 离线转在线时立即重放，在线期间按间隔重放到期条目，直到 ctx 结束
func (c *Coordinator) Run(ctx context.Context) {
	events, cancel := c.monitor.Subscribe()
	defer cancel()
	ticker := time.NewTicker(c.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if !ev.Online {
				continue
			}
			c.drainLogged(ctx, "reconnect")
		case <-ticker.C:
			if !c.UseOnline() {
				continue
			}
			if n, err := c.queue.Len(ctx); err != nil || n == 0 {
				continue
			}
			c.drainLogged(ctx, "tick")
		}
	}
}

func (c *Coordinator) drainLogged(ctx context.Context, trigger string) {
	if _, err := c.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("sync drain failed", zap.String("trigger", trigger), zap.Error(err))
	}
}

// Start 后台运行 Run；返回停止函数
func (c *Coordinator) Start() func(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()
	return func(stopCtx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}
