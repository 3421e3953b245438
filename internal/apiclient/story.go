package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/d60-Lab/beunreal/internal/model"
)

// CreateStoryInput 创建 story 的请求
type CreateStoryInput struct {
	MediaID  string
	Caption  string
	Location *model.GeoPoint
	Expiry   time.Duration
}

type createStoryBody struct {
	MediaID  string     `json:"media_id"`
	Caption  string     `json:"caption"`
	Location *wirePoint `json:"location,omitempty"`
	Expiry   int64      `json:"expiry"`
}

func (c *Client) CreateStory(ctx context.Context, in CreateStoryInput) (model.Story, error) {
	var out wireStory
	err := c.do(ctx, request{
		method: http.MethodPost, path: "/api/stories",
		body: createStoryBody{
			MediaID:  in.MediaID,
			Caption:  in.Caption,
			Location: encodePoint(in.Location),
			Expiry:   int64(in.Expiry / time.Second),
		},
		response: &out,
	})
	if err != nil {
		return model.Story{}, err
	}
	return decodeStory(out), nil
}

// Stories 当前用户可见的 story feed
func (c *Client) Stories(ctx context.Context) ([]model.StoryWithUser, error) {
	var out []wireStory
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/stories", response: &out}); err != nil {
		return nil, err
	}
	return mapSlice(out, decodeStoryWithUser), nil
}

// NearbyStories radius 单位为米
func (c *Client) NearbyStories(ctx context.Context, lat, lng, radiusM float64) ([]model.StoryWithUser, error) {
	var out []wireStory
	err := c.do(ctx, request{
		method: http.MethodGet, path: "/api/stories/nearby",
		query: url.Values{
			"latitude":  {strconv.FormatFloat(lat, 'f', -1, 64)},
			"longitude": {strconv.FormatFloat(lng, 'f', -1, 64)},
			"radius":    {strconv.FormatFloat(radiusM, 'f', -1, 64)},
		},
		response: &out,
	})
	if err != nil {
		return nil, err
	}
	return mapSlice(out, decodeStoryWithUser), nil
}

func (c *Client) GetStory(ctx context.Context, id string) (model.Story, error) {
	var out wireStory
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/stories/" + url.PathEscape(id), response: &out}); err != nil {
		return model.Story{}, err
	}
	return decodeStory(out), nil
}

func (c *Client) DeleteStory(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/stories/" + url.PathEscape(id)})
}

func (c *Client) ViewStory(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/api/stories/" + url.PathEscape(id) + "/view"})
}

func (c *Client) LikeStory(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/api/stories/" + url.PathEscape(id) + "/like"})
}

func (c *Client) UnlikeStory(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/api/stories/" + url.PathEscape(id) + "/unlike"})
}
