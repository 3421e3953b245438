package model

import "time"

// GeoPoint 经纬度
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Story 24 小时后过期的图片动态
type Story struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	MediaID      string    `json:"mediaId"`
	Caption      string    `json:"caption,omitempty"`
	Location     *GeoPoint `json:"location,omitempty"`
	LocationName string    `json:"locationName,omitempty"`
	Views        []string  `json:"views"`
	Likes        []string  `json:"likes,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	// 仅离线创建时保留原图，同步成功后清空
	Photo   *Photo `json:"photoData,omitempty"`
	Pending bool   `json:"pending,omitempty"`
}

func (s Story) GetID() string { return s.ID }

// ActiveAt 在 now 时刻是否可见
func (s Story) ActiveAt(now time.Time) bool { return s.ExpiresAt.After(now) }

// StoryWithUser feed 展示用
type StoryWithUser struct {
	Story
	User   UserSummary `json:"user"`
	Viewed bool        `json:"viewed"`
}
