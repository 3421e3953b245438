// Package app wires repositories, the remote client, the sync coordinator and the
// domain services into one explicitly constructed application.
package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/config"
	"github.com/d60-Lab/beunreal/internal/apiclient"
	"github.com/d60-Lab/beunreal/internal/connectivity"
	"github.com/d60-Lab/beunreal/internal/device"
	"github.com/d60-Lab/beunreal/internal/kv"
	"github.com/d60-Lab/beunreal/internal/metrics"
	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/repository"
	"github.com/d60-Lab/beunreal/internal/service"
	"github.com/d60-Lab/beunreal/internal/syncq"
	"github.com/d60-Lab/beunreal/pkg/errreport"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

// Deps 外部依赖；设备能力为空时使用网关可驱动的默认实现
type Deps struct {
	Config     *config.Config
	Store      kv.Store
	Registerer prometheus.Registerer
	HTTPClient *http.Client
	Clock      service.Clock

	Camera     device.Camera
	Geolocator device.Geolocator
	Notifier   device.Notifier

	// InitiallyOnline 启动时的连接状态，之后由探测器或网关更新
	InitiallyOnline bool
	// Probe 为 true 时后台探测远端健康检查地址
	Probe bool
}

// App 应用生命周期和所有服务
type App struct {
	cfg      *config.Config
	settings repository.SettingsRepository
	users    repository.UserRepository

	Monitor *connectivity.Monitor
	Metrics *metrics.Metrics
	Client  *apiclient.Client
	Sync    *syncq.Coordinator

	Auth          service.AuthService
	Posts         service.PostService
	Chat          service.ChatService
	Stories       service.StoryService
	Media         service.MediaService
	Location      service.LocationService
	Notifications service.NotificationService
	Camera        service.CameraService

	// Geolocator 网关推送位置时使用（仅 ManualGeolocator）
	Geolocator *device.ManualGeolocator

	probe bool

	mu          sync.Mutex
	initialized bool
	firstRun    bool
	stops       []func(context.Context) error
}

func New(d Deps) (*App, error) {
	if d.Config == nil || d.Store == nil {
		return nil, errors.New("app: config and store are required")
	}
	cfg := d.Config
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}

	st := repository.NewStorage(d.Store)
	users := repository.NewUserRepository(st)
	settings := repository.NewSettingsRepository(st)

	monitor := connectivity.NewMonitor(d.InitiallyOnline)
	m := metrics.New(d.Registerer)
	m.SetOnline(monitor.Online())
	monitor.OnChange(m.SetOnline)

	opts := []apiclient.Option{apiclient.WithClock(clock)}
	if d.HTTPClient != nil {
		opts = append(opts, apiclient.WithHTTPClient(d.HTTPClient))
	}
	client := apiclient.New(cfg.API, apiclient.TokenFunc(func(ctx context.Context) (string, error) {
		tok, _, err := users.Token(ctx)
		return tok, err
	}), opts...)

	queue := syncq.NewQueue(st, syncq.WithQueueMetrics(m), syncq.WithQueueClock(clock))
	a := &App{
		cfg:      cfg,
		settings: settings,
		users:    users,
		Monitor:  monitor,
		Metrics:  m,
		Client:   client,
		probe:    d.Probe,
	}
	// 只有持有远端令牌时才重放；纯本地账号的操作留在队列里
	a.Sync = syncq.NewCoordinator(queue, monitor, cfg.Sync,
		syncq.WithClock(clock),
		syncq.WithMetrics(m),
		syncq.WithReady(a.hasRemoteSession),
		syncq.WithReporter(errreport.Capture),
	)

	geo := d.Geolocator
	if geo == nil {
		a.Geolocator = &device.ManualGeolocator{}
		geo = a.Geolocator
	}
	camera := d.Camera
	if camera == nil {
		camera = device.NoCamera{}
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = &device.TimerNotifier{}
	}

	a.Auth = service.NewAuthService(users, client, a.Sync, clock)
	a.Posts = service.NewPostService(repository.NewPostRepository(st), users, clock)
	a.Chat = service.NewChatService(repository.NewConversationRepository(st), repository.NewMessageRepository(st),
		users, client, a.Sync, clock)
	a.Media = service.NewMediaService(repository.NewMediaCache(st), users, client, a.Sync, cfg.App.MaxMediaSize, clock)
	a.Location = service.NewLocationService(settings, geo, client, a.Sync, clock)
	a.Stories = service.NewStoryService(repository.NewStoryRepository(st), users, a.Media, a.Location,
		client, a.Sync, cfg.App.StoryTTL, clock)
	a.Notifications = service.NewNotificationService(settings, notifier, cfg.App.DefaultNotificationTime, clock)
	a.Camera = service.NewCameraService(repository.NewPhotoRepository(st), camera, a.Location, clock)

	if err := service.RegisterReplay(a.Sync, a.Auth, a.Media, a.Stories, a.Location); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) hasRemoteSession(ctx context.Context) bool {
	tok, ok, err := a.users.Token(ctx)
	return err == nil && ok && tok != ""
}

// Initialize 幂等；首次运行写默认设置，恢复运行模式，启动后台循环，在线时立即同步
func (a *App) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}

	done, err := a.settings.Bool(ctx, repository.KeyAppInitialized)
	if err != nil {
		return err
	}
	a.firstRun = !done

	if err := a.restoreMode(ctx); err != nil {
		return err
	}
	if a.firstRun {
		if err := a.applyDefaults(ctx); err != nil {
			return err
		}
	}
	if err := a.checkVersion(ctx); err != nil {
		return err
	}

	if granted, err := a.Notifications.Init(ctx); err != nil {
		logger.Warn("notification init failed", zap.Error(err))
	} else if !granted {
		logger.Info("notification permission not granted")
	}

	a.stops = append(a.stops, a.Sync.Start())
	if a.probe {
		url := strings.TrimRight(a.cfg.API.BaseURL, "/") + a.cfg.API.HealthPath
		a.stops = append(a.stops, connectivity.NewProber(a.Monitor, url, a.cfg.Sync.ProbeInterval).Start())
	}

	if a.Sync.UseOnline() && a.Auth.IsAuthenticated(ctx) {
		if _, err := a.Sync.Drain(ctx); err != nil {
			logger.Warn("initial sync failed", zap.Error(err))
		}
	}

	a.initialized = true
	logger.Info("app initialized",
		zap.Bool("first_run", a.firstRun),
		zap.String("mode", string(a.Sync.Mode())),
		zap.Bool("online", a.Monitor.Online()))
	return nil
}

func (a *App) restoreMode(ctx context.Context) error {
	mode, err := model.ParseAppMode(a.cfg.App.Mode)
	if err != nil {
		mode = model.ModeHybrid
	}
	stored, ok, err := a.settings.String(ctx, repository.KeyAppMode)
	if err != nil {
		return err
	}
	if ok {
		if m, err := model.ParseAppMode(stored); err == nil {
			mode = m
		} else {
			logger.Warn("stored app mode ignored", zap.String("mode", stored))
		}
	}
	a.Sync.SetMode(mode)
	return a.settings.SetString(ctx, repository.KeyAppMode, string(mode))
}

func (a *App) applyDefaults(ctx context.Context) error {
	defaults := []struct {
		key string
		val string
	}{
		{repository.KeyLocationEnabled, "false"},
		{repository.KeyNotificationEnabled, "false"},
		{repository.KeyNotificationTime, a.cfg.App.DefaultNotificationTime},
	}
	for _, d := range defaults {
		if d.val == "" {
			continue
		}
		if err := a.settings.SetString(ctx, d.key, d.val); err != nil {
			return err
		}
	}
	return a.settings.SetBool(ctx, repository.KeyAppInitialized, true)
}

// checkVersion 版本变化时记录迁移并写入新版本号
func (a *App) checkVersion(ctx context.Context) error {
	prev, ok, err := a.settings.String(ctx, repository.KeyAppVersion)
	if err != nil {
		return err
	}
	cur := a.cfg.App.Version
	if ok && prev == cur {
		return nil
	}
	if ok {
		logger.Info("app version changed", zap.String("from", prev), zap.String("to", cur))
	}
	return a.settings.SetString(ctx, repository.KeyAppVersion, cur)
}

// FirstRun 本次启动是否是首次运行
func (a *App) FirstRun() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.firstRun
}

func (a *App) Mode() model.AppMode { return a.Sync.Mode() }

// SetMode 持久化模式；切到可联网模式时立即尝试同步
func (a *App) SetMode(ctx context.Context, mode model.AppMode) error {
	if _, err := model.ParseAppMode(string(mode)); err != nil {
		return errors.Join(service.ErrInvalidInput, err)
	}
	if err := a.settings.SetString(ctx, repository.KeyAppMode, string(mode)); err != nil {
		return err
	}
	a.Sync.SetMode(mode)
	logger.Info("app mode changed", zap.String("mode", string(mode)))
	if a.Sync.UseOnline() {
		if _, err := a.Sync.Drain(ctx); err != nil {
			logger.Warn("sync after mode change failed", zap.Error(err))
		}
	}
	return nil
}

// SetOnline 网关上报的连接状态
func (a *App) SetOnline(online bool) bool { return a.Monitor.Set(online) }

// SyncNow 手动触发一次同步
func (a *App) SyncNow(ctx context.Context) (syncq.DrainResult, error) {
	if !a.Sync.UseOnline() {
		return syncq.DrainResult{}, service.ErrOffline
	}
	return a.Sync.Drain(ctx)
}

// Close 停止后台循环，不关闭存储
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	stops := a.stops
	a.stops = nil
	a.initialized = false
	a.mu.Unlock()

	var errs []error
	for i := len(stops) - 1; i >= 0; i-- {
		if err := stops[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
