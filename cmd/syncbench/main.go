package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/d60-Lab/beunreal/config"
	"github.com/d60-Lab/beunreal/internal/app"
	"github.com/d60-Lab/beunreal/internal/kv"
	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/repository"
	"github.com/d60-Lab/beunreal/internal/service"
	"github.com/d60-Lab/beunreal/internal/syncq"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envFloat(name string, def float64) float64 {
	if s := os.Getenv(name); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
			return f
		}
	}
	return def
}

// pct 第 p 分位
func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func main() {
	N := envInt("N", 2000)
	CONC := envInt("CONC", 4)
	FAIL := envFloat("FAIL", 0.05) // 远端返回 503 的比例
	LATENCY := time.Duration(envInt("LATENCY_MS", 2)) * time.Millisecond

	cfg := must(config.Load())
	cfg.Store.Driver = "memory"
	if d := os.Getenv("DRIVER"); d != "" {
		cfg.Store.Driver = d
	}
	if cfg.Store.Driver == "pebble" {
		cfg.Store.Path = must(os.MkdirTemp("", "syncbench-*"))
		defer os.RemoveAll(cfg.Store.Path)
	}
	cfg.Sync.BaseBackoff = time.Millisecond
	cfg.Sync.MaxBackoff = 10 * time.Millisecond
	cfg.Sync.DrainInterval = time.Hour
	cfg.API.RateLimit = 0

	// fake remote API
	var calls, failures atomic.Int64
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(LATENCY)
		if rand.Float64() < FAIL {
			failures.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer api.Close()
	cfg.API.BaseURL = api.URL

	ctx := context.Background()
	store := must(kv.Open(ctx, cfg))
	defer store.Close()
	a := must(app.New(app.Deps{Config: cfg, Store: store, Registerer: prometheus.NewRegistry()}))
	if err := a.Initialize(ctx); err != nil {
		panic(err)
	}
	defer a.Close(ctx)

	// seed: 当前用户 + N 个目标用户，会话带远端令牌
	must(a.Auth.Register(ctx, service.RegisterInput{Email: "bench@example.com", Username: "bench", Password: "benchpass"}))
	users := repository.NewUserRepository(repository.NewStorage(store))
	targets := make([]string, N)
	for i := range targets {
		id := uuid.NewString()
		targets[i] = id
		u := model.User{ID: id, Username: "u" + id[:8], Email: id[:8] + "@example.com", Following: []string{}, Followers: []string{}}
		if err := users.Save(ctx, u); err != nil {
			panic(err)
		}
	}
	if err := users.SetToken(ctx, "bench-token"); err != nil {
		panic(err)
	}

	// offline follows with CONC workers
	recs := make(chan time.Duration, N)
	feed := make(chan string, N)
	for _, id := range targets {
		feed <- id
	}
	close(feed)
	done := make(chan struct{}, CONC)
	t0 := time.Now()
	for w := 0; w < CONC; w++ {
		go func() {
			for id := range feed {
				st := time.Now()
				_ = a.Auth.FollowUser(ctx, id)
				recs <- time.Since(st)
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < CONC; w++ {
		<-done
	}
	close(recs)
	enqueueDur := time.Since(t0)
	lat := make([]time.Duration, 0, N)
	for d := range recs {
		lat = append(lat, d)
	}
	queued := must(a.Sync.Queue().Len(ctx))

	// reconnect and drain until empty or only dead letters remain
	a.SetOnline(true)
	t1 := time.Now()
	var total syncq.DrainResult
	rounds := 0
	for {
		rounds++
		res, err := a.SyncNow(ctx)
		if err != nil {
			panic(err)
		}
		total.Replayed += res.Replayed
		total.Retried += res.Retried
		total.DeadLettered += res.DeadLettered
		n := must(a.Sync.Queue().Len(ctx))
		if n == 0 || rounds > 100 {
			break
		}
		time.Sleep(cfg.Sync.MaxBackoff)
	}
	drainDur := time.Since(t1)
	dead := must(a.Sync.Queue().DeadLetters(ctx))

	fmt.Printf("N=%d, CONC=%d, FAIL=%.2f, LATENCY=%v, DRIVER=%s\n", N, CONC, FAIL, LATENCY, cfg.Store.Driver)
	fmt.Printf("Offline follow total: %v, per op: %v, p50: %v, p95: %v, p99: %v, queued=%s\n",
		enqueueDur, enqueueDur/time.Duration(N), pct(lat, 0.50), pct(lat, 0.95), pct(lat, 0.99), humanize.Comma(int64(queued)))
	fmt.Printf("Drain: %v over %d rounds, replayed=%d retried=%d dead=%d (dead list %d)\n",
		drainDur, rounds, total.Replayed, total.Retried, total.DeadLettered, len(dead))
	fmt.Printf("Remote calls: %s, injected failures: %s\n", humanize.Comma(calls.Load()), humanize.Comma(failures.Load()))
}
