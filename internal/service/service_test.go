package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/beunreal/config"
	"github.com/d60-Lab/beunreal/internal/apiclient"
	"github.com/d60-Lab/beunreal/internal/connectivity"
	"github.com/d60-Lab/beunreal/internal/device"
	"github.com/d60-Lab/beunreal/internal/kv"
	"github.com/d60-Lab/beunreal/internal/metrics"
	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/repository"
	"github.com/d60-Lab/beunreal/internal/syncq"
)

// fakeAPI 记录收到的请求；routes 中没有的路径返回 200 {}
type fakeAPI struct {
	mu     sync.Mutex
	calls  []string
	routes map[string]http.HandlerFunc
	srv    *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{routes: map[string]http.HandlerFunc{}}
	api.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		api.mu.Lock()
		api.calls = append(api.calls, key)
		h := api.routes[key]
		api.mu.Unlock()
		if h != nil {
			h(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(api.srv.Close)
	return api
}

func (a *fakeAPI) handle(key string, h http.HandlerFunc) {
	a.mu.Lock()
	a.routes[key] = h
	a.mu.Unlock()
}

// recordBodies 记录 key 收到的请求体；前 failFirst 次返回 503
func (a *fakeAPI) recordBodies(key string, failFirst int) func() []string {
	var mu sync.Mutex
	var bodies []string
	a.handle(key, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		n := len(bodies)
		mu.Unlock()
		if n <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string{}, bodies...)
	}
}

func (a *fakeAPI) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string{}, a.calls...)
}

func (a *fakeAPI) count(key string) int {
	n := 0
	for _, c := range a.Calls() {
		if c == key {
			n++
		}
	}
	return n
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type env struct {
	api      *fakeAPI
	monitor  *connectivity.Monitor
	clock    *testClock
	storage  *storageSet
	sync     *syncq.Coordinator
	geo      *device.FakeGeolocator
	notifier *device.FakeNotifier
	camera   *device.FakeCamera

	auth     AuthService
	posts    PostService
	chat     ChatService
	stories  StoryService
	media    MediaService
	location LocationService
	notes    NotificationService
	cam      CameraService
}

type storageSet struct {
	store    kv.Store
	users    repository.UserRepository
	settings repository.SettingsRepository
}

var t0 = time.Date(2026, 4, 10, 8, 30, 0, 0, time.UTC)

func newEnv(t *testing.T, online bool) *env {
	t.Helper()
	api := newFakeAPI(t)
	clock := &testClock{t: t0}
	store := kv.NewMemoryStore()
	st := repository.NewStorage(store)
	users := repository.NewUserRepository(st)
	settings := repository.NewSettingsRepository(st)

	client := apiclient.New(config.APIConfig{BaseURL: api.srv.URL, Timeout: 2 * time.Second},
		apiclient.TokenFunc(func(ctx context.Context) (string, error) {
			tok, _, err := users.Token(ctx)
			if tok == "" {
				tok = "local-session"
			}
			return tok, err
		}))
	monitor := connectivity.NewMonitor(online)
	m := metrics.New(prometheus.NewRegistry())
	queue := syncq.NewQueue(st, syncq.WithQueueClock(clock.Now), syncq.WithQueueMetrics(m))
	coord := syncq.NewCoordinator(queue, monitor, config.SyncConfig{
		MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute, DrainInterval: time.Hour,
	}, syncq.WithClock(clock.Now), syncq.WithMetrics(m))

	e := &env{
		api: api, monitor: monitor, clock: clock, sync: coord,
		storage:  &storageSet{store: store, users: users, settings: settings},
		geo:      &device.FakeGeolocator{Location: model.LocationData{Latitude: 48.8566, Longitude: 2.3522, Accuracy: 5, Timestamp: t0}},
		notifier: &device.FakeNotifier{},
		camera:   &device.FakeCamera{Result: device.Capture{WebPath: "/tmp/p.jpg", DataURL: "data:image/jpeg;base64,SlBFRw=="}},
	}
	c := Clock(clock.Now)
	e.auth = NewAuthService(users, client, coord, c)
	e.posts = NewPostService(repository.NewPostRepository(st), users, c)
	e.chat = NewChatService(repository.NewConversationRepository(st), repository.NewMessageRepository(st), users, client, coord, c)
	e.media = NewMediaService(repository.NewMediaCache(st), users, client, coord, 1024, c)
	e.location = NewLocationService(settings, e.geo, client, coord, c)
	e.stories = NewStoryService(repository.NewStoryRepository(st), users, e.media, e.location, client, coord, 24*time.Hour, c)
	e.notes = NewNotificationService(settings, e.notifier, "12:00", c)
	e.cam = NewCameraService(repository.NewPhotoRepository(st), e.camera, e.location, c)
	require.NoError(t, RegisterReplay(coord, e.auth, e.media, e.stories, e.location))
	return e
}

// seedUser 直接写入用户表
func (e *env) seedUser(t *testing.T, id, username string) model.User {
	t.Helper()
	u := model.User{ID: id, Username: username, Email: username + "@example.com", Following: []string{}, Followers: []string{}, CreatedAt: t0}
	require.NoError(t, e.storage.users.Save(context.Background(), u))
	return u
}

// login 以本地账号登录
func (e *env) login(t *testing.T, u model.User) {
	t.Helper()
	require.NoError(t, e.storage.users.SetCurrent(context.Background(), u))
}

func (e *env) mustUser(t *testing.T, id string) model.User {
	t.Helper()
	u, err := e.storage.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return *u
}
