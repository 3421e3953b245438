package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/d60-Lab/beunreal/internal/model"
)

func (c *Client) UpdateLocation(ctx context.Context, loc model.LocationData) error {
	return c.do(ctx, request{
		method: http.MethodPost, path: "/api/location/update",
		body: map[string]float64{"latitude": loc.Latitude, "longitude": loc.Longitude, "accuracy": loc.Accuracy},
	})
}

// NearbyUsers 返回附近用户 id，radius 单位为米
func (c *Client) NearbyUsers(ctx context.Context, radiusM float64, limit int) ([]string, error) {
	var out []wireID
	err := c.do(ctx, request{
		method: http.MethodGet, path: "/api/location/nearby/users",
		query: url.Values{
			"radius": {strconv.FormatFloat(radiusM, 'f', -1, 64)},
			"limit":  {strconv.Itoa(limit)},
		},
		response: &out,
	})
	if err != nil {
		return nil, err
	}
	return mapSlice(out, wireID.get), nil
}

func (c *Client) LocationPrivacy(ctx context.Context) (model.LocationPrivacy, error) {
	var out wirePrivacy
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/location/privacy", response: &out}); err != nil {
		return model.LocationPrivacy{}, err
	}
	return decodePrivacy(out), nil
}

func (c *Client) UpdateLocationPrivacy(ctx context.Context, p model.LocationPrivacy) error {
	return c.do(ctx, request{
		method: http.MethodPut, path: "/api/location/privacy",
		body: wirePrivacy{ShareWith: string(p.ShareWith), Precision: string(p.Precision)},
	})
}
