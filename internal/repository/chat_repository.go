package repository

import (
	"context"

	"github.com/d60-Lab/beunreal/internal/model"
)

const (
	KeyConversations = "conversations"
	KeyMessages      = "messages"
)

type ConversationRepository interface {
	ListByParticipant(ctx context.Context, userID string) ([]model.Conversation, error)
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	// FindOrCreateDirect 在同一把锁内查找或创建两人会话，保证每对用户只有一个
	FindOrCreateDirect(ctx context.Context, a, b string, create func() model.Conversation) (model.Conversation, bool, error)
	Create(ctx context.Context, c model.Conversation) error
	Update(ctx context.Context, id string, fn func(c *model.Conversation) bool) (*model.Conversation, error)
}

type conversationRepository struct {
	convs *Collection[model.Conversation]
}

func NewConversationRepository(st *Storage) ConversationRepository {
	return &conversationRepository{convs: NewCollection[model.Conversation](st, KeyConversations)}
}

func (r *conversationRepository) ListByParticipant(ctx context.Context, userID string) ([]model.Conversation, error) {
	return r.convs.Find(ctx, func(c model.Conversation) bool { return c.HasParticipant(userID) })
}

func (r *conversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	return r.convs.Get(ctx, id)
}

func (r *conversationRepository) FindOrCreateDirect(ctx context.Context, a, b string,
	create func() model.Conversation) (model.Conversation, bool, error) {
	var out model.Conversation
	created := false
	err := r.convs.Mutate(ctx, func(items []model.Conversation) ([]model.Conversation, bool, error) {
		for _, c := range items {
			if !c.IsGroup && len(c.Participants) == 2 && c.HasParticipant(a) && c.HasParticipant(b) {
				out = c
				return items, false, nil
			}
		}
		out = create()
		created = true
		return append(items, out), true, nil
	})
	return out, created, err
}

func (r *conversationRepository) Create(ctx context.Context, c model.Conversation) error {
	return r.convs.Append(ctx, c)
}

func (r *conversationRepository) Update(ctx context.Context, id string, fn func(c *model.Conversation) bool) (*model.Conversation, error) {
	return r.convs.Update(ctx, id, func(c *model.Conversation) (bool, error) { return fn(c), nil })
}

type MessageRepository interface {
	ListByConversation(ctx context.Context, convID string) ([]model.Message, error)
	Create(ctx context.Context, m model.Message) error
	// MarkRead 把会话中非 readerID 发送的消息标记为已读，返回修改条数
	MarkRead(ctx context.Context, convID, readerID string) (int, error)
	CountUnread(ctx context.Context, convIDs []string, readerID string) (int, error)
}

type messageRepository struct {
	msgs *Collection[model.Message]
}

func NewMessageRepository(st *Storage) MessageRepository {
	return &messageRepository{msgs: NewCollection[model.Message](st, KeyMessages)}
}

func (r *messageRepository) ListByConversation(ctx context.Context, convID string) ([]model.Message, error) {
	return r.msgs.Find(ctx, func(m model.Message) bool { return m.ConversationID == convID })
}

func (r *messageRepository) Create(ctx context.Context, m model.Message) error {
	return r.msgs.Append(ctx, m)
}

func (r *messageRepository) MarkRead(ctx context.Context, convID, readerID string) (int, error) {
	n := 0
	err := r.msgs.Mutate(ctx, func(items []model.Message) ([]model.Message, bool, error) {
		for i := range items {
			m := &items[i]
			if m.ConversationID == convID && m.SenderID != readerID && !m.IsRead {
				m.IsRead = true
				n++
			}
		}
		return items, n > 0, nil
	})
	return n, err
}

func (r *messageRepository) CountUnread(ctx context.Context, convIDs []string, readerID string) (int, error) {
	set := make(map[string]struct{}, len(convIDs))
	for _, id := range convIDs {
		set[id] = struct{}{}
	}
	unread, err := r.msgs.Find(ctx, func(m model.Message) bool {
		_, ok := set[m.ConversationID]
		return ok && m.SenderID != readerID && !m.IsRead
	})
	return len(unread), err
}
