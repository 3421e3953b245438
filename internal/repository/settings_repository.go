package repository

import (
	"context"
	"strconv"

	"github.com/d60-Lab/beunreal/internal/model"
)

const (
	KeyLocationEnabled     = "location_enabled"
	KeyLocationPrivacy     = "location_privacy"
	KeyLocationCache       = "location_cache"
	KeyNotificationEnabled = "notification_enabled"
	KeyNotificationTime    = "notification_time"
	KeyAppMode             = "app_mode"
	KeyAppInitialized      = "app_initialized"
	KeyAppVersion          = "app_version"
)

// SettingsRepository 设备偏好设置，布尔值按 "true"/"false" 字符串存储
type SettingsRepository interface {
	Bool(ctx context.Context, key string) (bool, error)
	SetBool(ctx context.Context, key string, v bool) error
	String(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, v string) error

	LocationPrivacy(ctx context.Context) (model.LocationPrivacy, bool, error)
	SetLocationPrivacy(ctx context.Context, p model.LocationPrivacy) error
	CachedLocation(ctx context.Context) (*model.LocationData, error)
	SetCachedLocation(ctx context.Context, loc model.LocationData) error
}

type settingsRepository struct {
	st       *Storage
	privacy  *Document[model.LocationPrivacy]
	location *Document[model.LocationData]
}

func NewSettingsRepository(st *Storage) SettingsRepository {
	return &settingsRepository{
		st:       st,
		privacy:  NewDocument[model.LocationPrivacy](st, KeyLocationPrivacy),
		location: NewDocument[model.LocationData](st, KeyLocationCache),
	}
}

func (r *settingsRepository) Bool(ctx context.Context, key string) (bool, error) {
	v, _, err := r.st.GetString(ctx, key)
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

func (r *settingsRepository) SetBool(ctx context.Context, key string, v bool) error {
	return r.st.SetString(ctx, key, strconv.FormatBool(v))
}

func (r *settingsRepository) String(ctx context.Context, key string) (string, bool, error) {
	return r.st.GetString(ctx, key)
}

func (r *settingsRepository) SetString(ctx context.Context, key, v string) error {
	return r.st.SetString(ctx, key, v)
}

func (r *settingsRepository) LocationPrivacy(ctx context.Context) (model.LocationPrivacy, bool, error) {
	return r.privacy.Load(ctx)
}

func (r *settingsRepository) SetLocationPrivacy(ctx context.Context, p model.LocationPrivacy) error {
	return r.privacy.Save(ctx, p)
}

func (r *settingsRepository) CachedLocation(ctx context.Context) (*model.LocationData, error) {
	loc, ok, err := r.location.Load(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return &loc, nil
}

func (r *settingsRepository) SetCachedLocation(ctx context.Context, loc model.LocationData) error {
	return r.location.Save(ctx, loc)
}
