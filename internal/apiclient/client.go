// Package apiclient 远端 REST API 客户端。
//
// 远端字段使用 snake_case 和 `_id`，只在本包的 decode* 函数里转换为内部模型。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/beunreal/config"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

var (
	// ErrUnauthenticated 没有可用的访问令牌
	ErrUnauthenticated = errors.New("apiclient: not authenticated")
	// ErrTokenExpired 本地令牌已过期，不再发送
	ErrTokenExpired = errors.New("apiclient: token expired")
)

// StatusError 非 2xx 响应
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.Path, e.Status)
}

// Temporary 5xx / 408 / 429 视为可重试
func (e *StatusError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests
}

// IsPermanent 重试也不会成功的错误（4xx 中除 408/429 以外的）
func IsPermanent(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return !se.Temporary()
	}
	return errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrTokenExpired)
}

// IsNotFound 远端返回 404
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// TokenSource 提供 bearer token；返回空串表示匿名
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc 函数适配 TokenSource
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Client 远端 API 客户端，可并发使用
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	limiter *rate.Limiter
	now     func() time.Time
}

// Option 客户端可选项
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client（测试或自定义 transport）
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithClock 替换时钟，用于令牌过期判断
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func New(cfg config.APIConfig, tokens TokenSource, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		now:     time.Now,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL 远端根地址
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) authorize(ctx context.Context, req *http.Request, required bool) error {
	if c.tokens == nil {
		if required {
			return ErrUnauthenticated
		}
		return nil
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if tok == "" {
		if required {
			return ErrUnauthenticated
		}
		return nil
	}
	if exp, ok := TokenExpiry(tok); ok && !exp.After(c.now()) {
		return ErrTokenExpired
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

type request struct {
	method   string
	path     string
	query    url.Values
	body     any
	raw      io.Reader
	ctype    string
	anon     bool
	response any
}

func (c *Client) do(ctx context.Context, r request) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	ctype := r.ctype
	switch {
	case r.raw != nil:
		body = r.raw
	case r.body != nil:
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", r.method, r.path, err)
		}
		body = bytes.NewReader(data)
		ctype = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return err
	}
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	req.Header.Set("Accept", "application/json")
	if err := c.authorize(ctx, req, !r.anon); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	logger.Debug("api call",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Method: r.method, Path: r.path, Status: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); len(data) > 0 {
			if json.Unmarshal(data, &msg) == nil {
				se.Message = msg.Message
				if se.Message == "" {
					se.Message = msg.Error
				}
			}
		}
		return se
	}

	if r.response == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(r.response); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}
