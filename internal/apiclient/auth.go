package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/d60-Lab/beunreal/internal/model"
)

// AuthResult 登录/注册返回
type AuthResult struct {
	Token string
	User  model.User
}

type wireAuth struct {
	Token       string   `json:"token"`
	AccessToken string   `json:"access_token"`
	User        wireUser `json:"user"`
}

func (w wireAuth) decode() AuthResult {
	tok := w.Token
	if tok == "" {
		tok = w.AccessToken
	}
	return AuthResult{Token: tok, User: decodeUser(w.User)}
}

func (c *Client) Register(ctx context.Context, email, username, password string) (AuthResult, error) {
	var out wireAuth
	err := c.do(ctx, request{
		method: http.MethodPost, path: "/api/auth/register", anon: true,
		body:     map[string]string{"email": email, "username": username, "password": password},
		response: &out,
	})
	if err != nil {
		return AuthResult{}, err
	}
	return out.decode(), nil
}

// Login login 可以是邮箱或用户名
func (c *Client) Login(ctx context.Context, login, password string) (AuthResult, error) {
	var out wireAuth
	err := c.do(ctx, request{
		method: http.MethodPost, path: "/api/auth/login", anon: true,
		body:     map[string]string{"login": login, "password": password},
		response: &out,
	})
	if err != nil {
		return AuthResult{}, err
	}
	return out.decode(), nil
}

func (c *Client) Me(ctx context.Context) (model.User, error) {
	var out wireUser
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/auth/me", response: &out}); err != nil {
		return model.User{}, err
	}
	return decodeUser(out), nil
}

func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var out []wireUser
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/users", response: &out}); err != nil {
		return nil, err
	}
	return mapSlice(out, decodeUser), nil
}

func (c *Client) GetUser(ctx context.Context, id string) (model.User, error) {
	var out wireUser
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/users/" + url.PathEscape(id), response: &out}); err != nil {
		return model.User{}, err
	}
	return decodeUser(out), nil
}

// UpdateMe 只发送 patch 中非 nil 的字段
func (c *Client) UpdateMe(ctx context.Context, patch model.ProfilePatch) (model.User, error) {
	body := map[string]string{}
	set := func(k string, v *string) {
		if v != nil {
			body[k] = *v
		}
	}
	set("username", patch.Username)
	set("email", patch.Email)
	set("profile_picture", patch.ProfilePicture)
	set("full_name", patch.FullName)
	set("bio", patch.Bio)

	var out wireUser
	if err := c.do(ctx, request{method: http.MethodPut, path: "/api/users/me", body: body, response: &out}); err != nil {
		return model.User{}, err
	}
	return decodeUser(out), nil
}

func (c *Client) Friends(ctx context.Context) ([]model.User, error) {
	var out []wireUser
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/friends", response: &out}); err != nil {
		return nil, err
	}
	return mapSlice(out, decodeUser), nil
}

func (c *Client) FriendRequests(ctx context.Context) ([]FriendRequest, error) {
	var out []wireFriendRequest
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/friends/requests", response: &out}); err != nil {
		return nil, err
	}
	return mapSlice(out, decodeFriendRequest), nil
}

func (c *Client) FindFriends(ctx context.Context, query string) ([]model.User, error) {
	var out []wireUser
	err := c.do(ctx, request{
		method: http.MethodGet, path: "/api/friends/find",
		query:    url.Values{"q": {query}},
		response: &out,
	})
	if err != nil {
		return nil, err
	}
	return mapSlice(out, decodeUser), nil
}

// SendFriendRequest 远端的"关注"
func (c *Client) SendFriendRequest(ctx context.Context, userID string) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/api/friends/request/" + url.PathEscape(userID)})
}

func (c *Client) AcceptFriendRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/api/friends/accept/" + url.PathEscape(requestID)})
}

func (c *Client) RejectFriendRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/api/friends/reject/" + url.PathEscape(requestID)})
}

// RemoveFriend 远端的"取消关注"
func (c *Client) RemoveFriend(ctx context.Context, userID string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/friends/" + url.PathEscape(userID)})
}
