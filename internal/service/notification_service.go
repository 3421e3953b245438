package service

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/internal/device"
	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/repository"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

const dailyReminderID = 1

// NotificationService 每日拍照提醒
type NotificationService interface {
	Init(ctx context.Context) (bool, error)
	ScheduleDailyReminder(ctx context.Context, hhmm string) (time.Time, error)
	CancelAll(ctx context.Context) error
	Toggle(ctx context.Context, enabled bool, hhmm string) error
	Settings(ctx context.Context) (model.NotificationSettings, error)
}

type notificationService struct {
	settings    repository.SettingsRepository
	notifier    device.Notifier
	defaultTime string
	clock       Clock
}

func NewNotificationService(settings repository.SettingsRepository, notifier device.Notifier, defaultTime string, clock Clock) NotificationService {
	if defaultTime == "" {
		defaultTime = "12:00"
	}
	return &notificationService{settings: settings, notifier: notifier, defaultTime: defaultTime, clock: clock}
}

// Init 申请通知权限；已开启提醒时重新调度
func (s *notificationService) Init(ctx context.Context) (bool, error) {
	granted, err := s.notifier.RequestPermission(ctx)
	if err != nil || !granted {
		return false, err
	}
	st, err := s.Settings(ctx)
	if err != nil {
		return true, err
	}
	if st.Enabled {
		if _, err := s.ScheduleDailyReminder(ctx, st.Time); err != nil {
			return true, err
		}
	}
	return true, nil
}

// dailyCron "HH:MM" -> "MM HH * * *"
func dailyCron(hhmm string) (string, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "", fmt.Errorf("%w: time must be HH:MM", ErrInvalidInput)
	}
	expr := fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour())
	if !gronx.IsValid(expr) {
		return "", fmt.Errorf("%w: invalid reminder time %q", ErrInvalidInput, hhmm)
	}
	return expr, nil
}

// ScheduleDailyReminder 取消已有提醒，按 HH:MM 每天重复，返回下次触发时间
func (s *notificationService) ScheduleDailyReminder(ctx context.Context, hhmm string) (time.Time, error) {
	expr, err := dailyCron(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.notifier.CancelAll(ctx); err != nil {
		return time.Time{}, err
	}
	next, err := gronx.NextTickAfter(expr, s.clock.now(), false)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.notifier.Schedule(ctx, device.Notification{
		ID:    dailyReminderID,
		Title: "BeUnreal Reminder",
		Body:  "Time to take your daily photo!",
		At:    next,
		Every: 24 * time.Hour,
	}); err != nil {
		return time.Time{}, err
	}
	if err := s.saveSettings(ctx, model.NotificationSettings{Enabled: true, Time: hhmm}); err != nil {
		return time.Time{}, err
	}
	logger.Info("daily reminder scheduled", zap.String("time", hhmm), zap.Time("next", next))
	return next, nil
}

func (s *notificationService) CancelAll(ctx context.Context) error {
	return s.notifier.CancelAll(ctx)
}

func (s *notificationService) Toggle(ctx context.Context, enabled bool, hhmm string) error {
	if enabled {
		if hhmm == "" {
			st, err := s.Settings(ctx)
			if err != nil {
				return err
			}
			hhmm = st.Time
		}
		_, err := s.ScheduleDailyReminder(ctx, hhmm)
		return err
	}
	if err := s.notifier.CancelAll(ctx); err != nil {
		return err
	}
	return s.settings.SetBool(ctx, repository.KeyNotificationEnabled, false)
}

func (s *notificationService) saveSettings(ctx context.Context, st model.NotificationSettings) error {
	if err := s.settings.SetBool(ctx, repository.KeyNotificationEnabled, st.Enabled); err != nil {
		return err
	}
	if st.Time == "" {
		return nil
	}
	return s.settings.SetString(ctx, repository.KeyNotificationTime, st.Time)
}

func (s *notificationService) Settings(ctx context.Context) (model.NotificationSettings, error) {
	enabled, err := s.settings.Bool(ctx, repository.KeyNotificationEnabled)
	if err != nil {
		return model.NotificationSettings{}, err
	}
	t, ok, err := s.settings.String(ctx, repository.KeyNotificationTime)
	if err != nil {
		return model.NotificationSettings{}, err
	}
	if !ok || t == "" {
		t = s.defaultTime
	}
	return model.NotificationSettings{Enabled: enabled, Time: t}, nil
}
