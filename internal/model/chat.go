package model

import "time"

// Conversation 会话；非群聊时每对用户至多一个
type Conversation struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	IsGroup      bool      `json:"isGroup"`
	GroupName    string    `json:"groupName,omitempty"`
	GroupAvatar  string    `json:"groupAvatar,omitempty"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (c Conversation) GetID() string { return c.ID }

// HasParticipant 是否包含用户
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Message 会话消息
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	IsRead         bool      `json:"isRead"`
}

func (m Message) GetID() string { return m.ID }

// ConversationWithUsers 会话 + 其他参与者摘要
type ConversationWithUsers struct {
	Conversation
	Users []UserSummary `json:"users"`
}

// MessageWithUser 消息 + 发送者摘要
type MessageWithUser struct {
	Message
	Sender UserSummary `json:"sender"`
}
