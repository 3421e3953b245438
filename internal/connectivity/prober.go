package connectivity

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/pkg/logger"
)

// Prober 定期探测远端健康检查地址并更新 Monitor
type Prober struct {
	monitor  *Monitor
	client   *http.Client
	url      string
	interval time.Duration
}

func NewProber(monitor *Monitor, url string, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Prober{
		monitor:  monitor,
		client:   &http.Client{Timeout: 5 * time.Second},
		url:      url,
		interval: interval,
	}
}

// Probe 单次探测：任何 HTTP 响应（含 4xx/5xx）都说明网络可达
func (p *Prober) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		logger.Warn("probe request build failed", zap.Error(err))
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		logger.Debug("probe failed", zap.String("url", p.url), zap.Error(err))
		return false
	}
	resp.Body.Close()
	return true
}

// Start 立即探测一次，然后按间隔轮询；返回停止函数
func (p *Prober) Start() func(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			p.monitor.Set(p.Probe(ctx))
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
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
