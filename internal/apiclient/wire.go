package apiclient

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/d60-Lab/beunreal/internal/model"
)

// wireTime 兼容 RFC3339 字符串和毫秒时间戳
type wireTime time.Time

func (t *wireTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		v, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		*t = wireTime(v)
		return nil
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*t = wireTime(time.UnixMilli(int64(ms)))
	return nil
}

func (t wireTime) Time() time.Time { return time.Time(t) }

// wireID 远端有时返回 id，有时返回 _id
type wireID struct {
	ID  string `json:"id"`
	OID string `json:"_id"`
}

func (w wireID) get() string {
	if w.ID != "" {
		return w.ID
	}
	return w.OID
}

type wireUser struct {
	wireID
	Username       string   `json:"username"`
	Email          string   `json:"email"`
	ProfilePicture string   `json:"profile_picture"`
	Avatar         string   `json:"avatar"`
	FullName       string   `json:"full_name"`
	Bio            string   `json:"bio"`
	Following      []string `json:"following"`
	Followers      []string `json:"followers"`
	CreatedAt      wireTime `json:"created_at"`
}

func decodeUser(w wireUser) model.User {
	pic := w.ProfilePicture
	if pic == "" {
		pic = w.Avatar
	}
	return model.User{
		ID:             w.get(),
		Username:       w.Username,
		Email:          w.Email,
		ProfilePicture: pic,
		FullName:       w.FullName,
		Bio:            w.Bio,
		Following:      nonNil(w.Following),
		Followers:      nonNil(w.Followers),
		CreatedAt:      w.CreatedAt.Time(),
	}
}

// wirePoint GeoJSON Point，坐标顺序为 [lng, lat]
type wirePoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func encodePoint(p *model.GeoPoint) *wirePoint {
	if p == nil {
		return nil
	}
	return &wirePoint{Type: "Point", Coordinates: []float64{p.Longitude, p.Latitude}}
}

func decodePoint(w *wirePoint) *model.GeoPoint {
	if w == nil || len(w.Coordinates) < 2 {
		return nil
	}
	return &model.GeoPoint{Latitude: w.Coordinates[1], Longitude: w.Coordinates[0]}
}

type wireStory struct {
	wireID
	UserID       string     `json:"user_id"`
	MediaID      string     `json:"media_id"`
	Caption      string     `json:"caption"`
	Location     *wirePoint `json:"location"`
	LocationName string     `json:"locationName"`
	Views        []string   `json:"views"`
	Likes        []string   `json:"likes"`
	CreatedAt    wireTime   `json:"created_at"`
	ExpiresAt    wireTime   `json:"expires_at"`
	User         *wireUser  `json:"user"`
}

func decodeStory(w wireStory) model.Story {
	return model.Story{
		ID:           w.get(),
		UserID:       w.UserID,
		MediaID:      w.MediaID,
		Caption:      w.Caption,
		Location:     decodePoint(w.Location),
		LocationName: w.LocationName,
		Views:        nonNil(w.Views),
		Likes:        w.Likes,
		CreatedAt:    w.CreatedAt.Time(),
		ExpiresAt:    w.ExpiresAt.Time(),
	}
}

// decodeStoryWithUser Viewed 由调用方按本地已读集合填写
func decodeStoryWithUser(w wireStory) model.StoryWithUser {
	out := model.StoryWithUser{Story: decodeStory(w)}
	if w.User != nil {
		u := decodeUser(*w.User)
		out.User = model.UserSummary{ID: u.ID, Username: u.Username, ProfilePicture: u.ProfilePicture, Bio: u.Bio}
		if out.UserID == "" {
			out.UserID = u.ID
		}
	}
	return out
}

type wireMedia struct {
	wireID
	Type         string   `json:"type"`
	URL          string   `json:"url"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Duration     float64  `json:"duration"`
	Size         int64    `json:"size"`
	CreatedAt    wireTime `json:"created_at"`
	UserID       string   `json:"user_id"`
}

func decodeMedia(w wireMedia) model.Media {
	return model.Media{
		ID:           w.get(),
		Type:         model.MediaType(w.Type),
		URL:          w.URL,
		ThumbnailURL: w.ThumbnailURL,
		Duration:     w.Duration,
		Size:         w.Size,
		CreatedAt:    w.CreatedAt.Time(),
		UserID:       w.UserID,
	}
}

type wirePrivacy struct {
	ShareWith string `json:"share_with"`
	Precision string `json:"precision"`
}

func decodePrivacy(w wirePrivacy) model.LocationPrivacy {
	return model.LocationPrivacy{ShareWith: model.ShareWith(w.ShareWith), Precision: model.Precision(w.Precision)}
}

type wireMessage struct {
	wireID
	ConversationID string   `json:"conversation_id"`
	GroupID        string   `json:"group_id"`
	SenderID       string   `json:"sender_id"`
	Content        string   `json:"content"`
	ImageURL       string   `json:"image_url"`
	IsRead         bool     `json:"is_read"`
	CreatedAt      wireTime `json:"created_at"`
}

func decodeMessage(w wireMessage) model.Message {
	conv := w.ConversationID
	if conv == "" {
		conv = w.GroupID
	}
	return model.Message{
		ID:             w.get(),
		ConversationID: conv,
		SenderID:       w.SenderID,
		Content:        w.Content,
		ImageURL:       w.ImageURL,
		IsRead:         w.IsRead,
		CreatedAt:      w.CreatedAt.Time(),
	}
}

type wireGroup struct {
	wireID
	Name      string   `json:"name"`
	Avatar    string   `json:"avatar"`
	Members   []string `json:"members"`
	CreatedAt wireTime `json:"created_at"`
	UpdatedAt wireTime `json:"updated_at"`
}

func decodeGroup(w wireGroup) model.Conversation {
	return model.Conversation{
		ID:           w.get(),
		Participants: nonNil(w.Members),
		IsGroup:      true,
		GroupName:    w.Name,
		GroupAvatar:  w.Avatar,
		CreatedAt:    w.CreatedAt.Time(),
		UpdatedAt:    w.UpdatedAt.Time(),
	}
}

type wireFriendRequest struct {
	wireID
	FromUserID string   `json:"from_user_id"`
	ToUserID   string   `json:"to_user_id"`
	Status     string   `json:"status"`
	CreatedAt  wireTime `json:"created_at"`
}

// FriendRequest 好友请求
type FriendRequest struct {
	ID         string    `json:"id"`
	FromUserID string    `json:"fromUserId"`
	ToUserID   string    `json:"toUserId"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

func decodeFriendRequest(w wireFriendRequest) FriendRequest {
	return FriendRequest{ID: w.get(), FromUserID: w.FromUserID, ToUserID: w.ToUserID, Status: w.Status, CreatedAt: w.CreatedAt.Time()}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func mapSlice[W, T any](ws []W, fn func(W) T) []T {
	out := make([]T, 0, len(ws))
	for _, w := range ws {
		out = append(out, fn(w))
	}
	return out
}
