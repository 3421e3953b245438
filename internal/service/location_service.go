package service

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/internal/apiclient"
	"github.com/d60-Lab/beunreal/internal/device"
	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/repository"
	"github.com/d60-Lab/beunreal/internal/syncq"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

const (
	locationDedupKey = "location"
	privacyDedupKey  = "privacy"
)

// LocationService 定位开关、位置缓存和隐私设置
type LocationService interface {
	Replayer
	IsEnabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, enabled bool) error
	// CurrentLocation 关闭定位时返回 nil
	CurrentLocation(ctx context.Context) (*model.LocationData, error)
	GetPrivacy(ctx context.Context) (model.LocationPrivacy, error)
	UpdatePrivacy(ctx context.Context, p model.LocationPrivacy) error
	NearbyUsers(ctx context.Context, radiusM float64, limit int) ([]string, error)
}

type locationService struct {
	settings repository.SettingsRepository
	geo      device.Geolocator
	client   *apiclient.Client
	sync     *syncq.Coordinator
	clock    Clock
}

func NewLocationService(settings repository.SettingsRepository, geo device.Geolocator, client *apiclient.Client,
	sync *syncq.Coordinator, clock Clock) LocationService {
	return &locationService{settings: settings, geo: geo, client: client, sync: sync, clock: clock}
}

func (s *locationService) IsEnabled(ctx context.Context) (bool, error) {
	return s.settings.Bool(ctx, repository.KeyLocationEnabled)
}

func (s *locationService) SetEnabled(ctx context.Context, enabled bool) error {
	if enabled {
		ok, err := s.geo.RequestPermission(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return device.ErrPermissionDenied
		}
	}
	return s.settings.SetBool(ctx, repository.KeyLocationEnabled, enabled)
}

func (s *locationService) CurrentLocation(ctx context.Context) (*model.LocationData, error) {
	enabled, err := s.IsEnabled(ctx)
	if err != nil || !enabled {
		return nil, err
	}
	loc, err := s.geo.CurrentPosition(ctx)
	if err != nil {
		logger.Warn("geolocation failed, using cached location", zap.Error(err))
		return s.settings.CachedLocation(ctx)
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = s.clock.now()
	}
	if err := s.settings.SetCachedLocation(ctx, loc); err != nil {
		return nil, err
	}

	if s.sync.UseOnline() {
		err := s.client.UpdateLocation(ctx, loc)
		if err == nil {
			// 排队中的旧位置不能再覆盖这次的
			if _, err := s.sync.Queue().Cancel(ctx, syncq.KindLocationUpdate, locationDedupKey); err != nil {
				return nil, err
			}
			return &loc, nil
		}
		if !shouldQueue(err) {
			logger.Warn("location update rejected", zap.Error(err))
			return &loc, nil
		}
	}
	if err := s.sync.Enqueue(ctx, syncq.KindLocationUpdate, loc, locationDedupKey); err != nil {
		return nil, err
	}
	return &loc, nil
}

// GetPrivacy 远端 -> 本地缓存 -> 默认值
func (s *locationService) GetPrivacy(ctx context.Context) (model.LocationPrivacy, error) {
	if s.sync.UseOnline() {
		p, err := s.client.LocationPrivacy(ctx)
		if err == nil && p.ShareWith != "" {
			if err := s.settings.SetLocationPrivacy(ctx, p); err != nil {
				return model.LocationPrivacy{}, err
			}
			return p, nil
		}
		if err != nil {
			logger.Warn("fetch location privacy failed, using cache", zap.Error(err))
		}
	}
	p, ok, err := s.settings.LocationPrivacy(ctx)
	if err != nil {
		return model.LocationPrivacy{}, err
	}
	if !ok {
		return model.DefaultLocationPrivacy(), nil
	}
	return p, nil
}

func (s *locationService) UpdatePrivacy(ctx context.Context, p model.LocationPrivacy) error {
	if err := validateStruct(p); err != nil {
		return err
	}
	if err := s.settings.SetLocationPrivacy(ctx, p); err != nil {
		return err
	}
	if s.sync.UseOnline() {
		err := s.client.UpdateLocationPrivacy(ctx, p)
		if err == nil {
			_, err := s.sync.Queue().Cancel(ctx, syncq.KindPrivacyUpdate, privacyDedupKey)
			return err
		}
		if !shouldQueue(err) {
			return err
		}
		logger.Warn("privacy update failed, queued", zap.Error(err))
	}
	return s.sync.Enqueue(ctx, syncq.KindPrivacyUpdate, p, privacyDedupKey)
}

// NearbyUsers 只在在线时可用，离线返回空
func (s *locationService) NearbyUsers(ctx context.Context, radiusM float64, limit int) ([]string, error) {
	if !s.sync.UseOnline() {
		return []string{}, nil
	}
	if radiusM <= 0 {
		radiusM = 5000
	}
	if limit <= 0 {
		limit = 20
	}
	ids, err := s.client.NearbyUsers(ctx, radiusM, limit)
	if err != nil {
		logger.Warn("nearby users failed", zap.Error(err))
		return []string{}, nil
	}
	return ids, nil
}

func (s *locationService) ReplayHandlers() map[syncq.Kind]syncq.Handler {
	return map[syncq.Kind]syncq.Handler{
		syncq.KindLocationUpdate: func(ctx context.Context, e syncq.Entry) error {
			var loc model.LocationData
			if err := e.Decode(&loc); err != nil {
				return syncq.Permanent(err)
			}
			return s.client.UpdateLocation(ctx, loc)
		},
		syncq.KindPrivacyUpdate: func(ctx context.Context, e syncq.Entry) error {
			var p model.LocationPrivacy
			if err := e.Decode(&p); err != nil {
				return syncq.Permanent(err)
			}
			return s.client.UpdateLocationPrivacy(ctx, p)
		},
	}
}

const earthRadiusKm = 6371.0

// Distance 两点间的球面距离（km）
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
