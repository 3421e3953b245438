package model

import "time"

// LocationData 定位结果
type LocationData struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

type ShareWith string

const (
	ShareFriendsOnly ShareWith = "friends_only"
	ShareEveryone    ShareWith = "everyone"
	ShareNobody      ShareWith = "nobody"
)

type Precision string

const (
	PrecisionExact       Precision = "exact"
	PrecisionApproximate Precision = "approximate"
	PrecisionCity        Precision = "city"
)

// LocationPrivacy 位置共享设置
type LocationPrivacy struct {
	ShareWith ShareWith `json:"shareWith" validate:"oneof=friends_only everyone nobody"`
	Precision Precision `json:"precision" validate:"oneof=exact approximate city"`
}

// DefaultLocationPrivacy 未设置时的默认值
func DefaultLocationPrivacy() LocationPrivacy {
	return LocationPrivacy{ShareWith: ShareFriendsOnly, Precision: PrecisionExact}
}

// NotificationSettings 每日提醒设置
type NotificationSettings struct {
	Enabled bool   `json:"enabled"`
	Time    string `json:"time,omitempty"` // HH:MM
}
