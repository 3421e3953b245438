package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/d60-Lab/beunreal/internal/model"
)

type sendMessageBody struct {
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
}

func (c *Client) DirectMessages(ctx context.Context, userID string) ([]model.Message, error) {
	var out []wireMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/messages/" + url.PathEscape(userID), response: &out}); err != nil {
		return nil, err
	}
	return mapSlice(out, decodeMessage), nil
}

func (c *Client) SendDirectMessage(ctx context.Context, userID, content, imageURL string) (model.Message, error) {
	var out wireMessage
	err := c.do(ctx, request{
		method: http.MethodPost, path: "/api/messages/" + url.PathEscape(userID),
		body:     sendMessageBody{Content: content, ImageURL: imageURL},
		response: &out,
	})
	if err != nil {
		return model.Message{}, err
	}
	return decodeMessage(out), nil
}

func (c *Client) GroupMessages(ctx context.Context, groupID string) ([]model.Message, error) {
	var out []wireMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/messages/groups/" + url.PathEscape(groupID), response: &out}); err != nil {
		return nil, err
	}
	return mapSlice(out, decodeMessage), nil
}

func (c *Client) SendGroupMessage(ctx context.Context, groupID, content, imageURL string) (model.Message, error) {
	var out wireMessage
	err := c.do(ctx, request{
		method: http.MethodPost, path: "/api/messages/groups/" + url.PathEscape(groupID),
		body:     sendMessageBody{Content: content, ImageURL: imageURL},
		response: &out,
	})
	if err != nil {
		return model.Message{}, err
	}
	return decodeMessage(out), nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/messages/" + url.PathEscape(messageID)})
}

// GroupInput 创建/修改群组
type GroupInput struct {
	Name    string   `json:"name,omitempty"`
	Avatar  string   `json:"avatar,omitempty"`
	Members []string `json:"members,omitempty"`
}

func (c *Client) Groups(ctx context.Context) ([]model.Conversation, error) {
	var out []wireGroup
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/groups", response: &out}); err != nil {
		return nil, err
	}
	return mapSlice(out, decodeGroup), nil
}

func (c *Client) CreateGroup(ctx context.Context, in GroupInput) (model.Conversation, error) {
	var out wireGroup
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/groups", body: in, response: &out}); err != nil {
		return model.Conversation{}, err
	}
	return decodeGroup(out), nil
}

func (c *Client) GetGroup(ctx context.Context, groupID string) (model.Conversation, error) {
	var out wireGroup
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/groups/" + url.PathEscape(groupID), response: &out}); err != nil {
		return model.Conversation{}, err
	}
	return decodeGroup(out), nil
}

func (c *Client) UpdateGroup(ctx context.Context, groupID string, in GroupInput) (model.Conversation, error) {
	var out wireGroup
	if err := c.do(ctx, request{method: http.MethodPut, path: "/api/groups/" + url.PathEscape(groupID), body: in, response: &out}); err != nil {
		return model.Conversation{}, err
	}
	return decodeGroup(out), nil
}

func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/groups/" + url.PathEscape(groupID)})
}

func (c *Client) AddGroupMembers(ctx context.Context, groupID string, userIDs []string) error {
	return c.do(ctx, request{
		method: http.MethodPost, path: "/api/groups/" + url.PathEscape(groupID) + "/members",
		body: map[string][]string{"members": userIDs},
	})
}

func (c *Client) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/api/groups/" + url.PathEscape(groupID) + "/members/" + url.PathEscape(userID),
	})
}
