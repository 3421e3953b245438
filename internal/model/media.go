package model

import "time"

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Media 已上传（或待上传）的媒体
type Media struct {
	ID           string    `json:"id"`
	Type         MediaType `json:"type"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	Duration     float64   `json:"duration,omitempty"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"createdAt"`
	UserID       string    `json:"userId"`
	Local        bool      `json:"local,omitempty"`
	LocalPath    string    `json:"localPath,omitempty"`
}

// Photo 相机拍摄结果，保存在本地相册
type Photo struct {
	ID        string        `json:"id"`
	WebPath   string        `json:"webPath"`
	DataURL   string        `json:"dataUrl,omitempty"`
	Location  *LocationData `json:"location,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

func (p Photo) GetID() string { return p.ID }

func (m Media) GetID() string { return m.ID }
