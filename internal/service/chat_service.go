package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/internal/apiclient"
	"github.com/d60-Lab/beunreal/internal/model"
	"github.com/d60-Lab/beunreal/internal/repository"
	"github.com/d60-Lab/beunreal/internal/syncq"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

// ChatService 会话与消息；本地为准，在线时尽力同步到远端
type ChatService interface {
	GetConversations(ctx context.Context) ([]model.ConversationWithUsers, error)
	GetConversationByID(ctx context.Context, id string) (*model.ConversationWithUsers, error)
	GetOrCreateConversation(ctx context.Context, userID string) (model.ConversationWithUsers, error)
	CreateGroupConversation(ctx context.Context, userIDs []string, name, avatar string) (model.ConversationWithUsers, error)
	SendMessage(ctx context.Context, convID, content, imageURL string) (model.Message, error)
	GetMessages(ctx context.Context, convID string) ([]model.MessageWithUser, error)
	MarkMessagesAsRead(ctx context.Context, convID string) error
	GetUnreadCount(ctx context.Context) (int, error)
}

type chatService struct {
	convs  repository.ConversationRepository
	msgs   repository.MessageRepository
	users  repository.UserRepository
	client *apiclient.Client
	sync   *syncq.Coordinator
	clock  Clock
}

func NewChatService(convs repository.ConversationRepository, msgs repository.MessageRepository, users repository.UserRepository,
	client *apiclient.Client, sync *syncq.Coordinator, clock Clock) ChatService {
	return &chatService{convs: convs, msgs: msgs, users: users, client: client, sync: sync, clock: clock}
}

// withUsers 群聊不带成员摘要，私聊带对方摘要
func (s *chatService) withUsers(ctx context.Context, me string, convs []model.Conversation) ([]model.ConversationWithUsers, error) {
	var ids []string
	for _, c := range convs {
		if c.IsGroup {
			continue
		}
		for _, p := range c.Participants {
			if p != me {
				ids = append(ids, p)
			}
		}
	}
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := indexUsers(users)
	out := make([]model.ConversationWithUsers, 0, len(convs))
	for _, c := range convs {
		cw := model.ConversationWithUsers{Conversation: c, Users: []model.UserSummary{}}
		if !c.IsGroup {
			for _, p := range c.Participants {
				if u, ok := byID[p]; ok && p != me {
					cw.Users = append(cw.Users, u.Summary())
				}
			}
		}
		out = append(out, cw)
	}
	return out, nil
}

func (s *chatService) GetConversations(ctx context.Context) ([]model.ConversationWithUsers, error) {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return nil, err
	}
	convs, err := s.convs.ListByParticipant(ctx, me.ID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })
	return s.withUsers(ctx, me.ID, convs)
}

// participantConversation 会话存在且当前用户是成员
func (s *chatService) participantConversation(ctx context.Context, id string) (*model.User, *model.Conversation, error) {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.convs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, ErrNotFound
	}
	if !c.HasParticipant(me.ID) {
		return nil, nil, ErrForbidden
	}
	return me, c, nil
}

func (s *chatService) GetConversationByID(ctx context.Context, id string) (*model.ConversationWithUsers, error) {
	me, c, err := s.participantConversation(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out, err := s.withUsers(ctx, me.ID, []model.Conversation{*c})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// GetOrCreateConversation 每对用户只有一个私聊会话
func (s *chatService) GetOrCreateConversation(ctx context.Context, userID string) (model.ConversationWithUsers, error) {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return model.ConversationWithUsers{}, err
	}
	if userID == "" || userID == me.ID {
		return model.ConversationWithUsers{}, ErrInvalidInput
	}
	c, _, err := s.convs.FindOrCreateDirect(ctx, me.ID, userID, func() model.Conversation {
		now := s.clock.now()
		return model.Conversation{
			ID:           uuid.NewString(),
			Participants: []string{me.ID, userID},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	})
	if err != nil {
		return model.ConversationWithUsers{}, err
	}
	out, err := s.withUsers(ctx, me.ID, []model.Conversation{c})
	if err != nil {
		return model.ConversationWithUsers{}, err
	}
	return out[0], nil
}

func (s *chatService) CreateGroupConversation(ctx context.Context, userIDs []string, name, avatar string) (model.ConversationWithUsers, error) {
	me, err := currentUser(ctx, s.users)
	if err != nil {
		return model.ConversationWithUsers{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" || len(userIDs) == 0 {
		return model.ConversationWithUsers{}, ErrInvalidInput
	}
	participants := []string{me.ID}
	for _, id := range userIDs {
		participants, _ = model.AddToSet(participants, id)
	}
	now := s.clock.now()
	c := model.Conversation{
		ID:           uuid.NewString(),
		Participants: participants,
		IsGroup:      true,
		GroupName:    name,
		GroupAvatar:  avatar,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if s.sync.UseOnline() {
		remote, err := s.client.CreateGroup(ctx, apiclient.GroupInput{Name: name, Avatar: avatar, Members: participants})
		if err == nil && remote.ID != "" {
			c.ID = remote.ID
		} else if err != nil {
			logger.Warn("remote group create failed, kept local", zap.Error(err))
		}
	}
	if err := s.convs.Create(ctx, c); err != nil {
		return model.ConversationWithUsers{}, err
	}
	return model.ConversationWithUsers{Conversation: c, Users: []model.UserSummary{}}, nil
}

func (s *chatService) SendMessage(ctx context.Context, convID, content, imageURL string) (model.Message, error) {
	if strings.TrimSpace(content) == "" && imageURL == "" {
		return model.Message{}, ErrInvalidInput
	}
	me, c, err := s.participantConversation(ctx, convID)
	if err != nil {
		return model.Message{}, err
	}
	m := model.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		SenderID:       me.ID,
		Content:        content,
		ImageURL:       imageURL,
		CreatedAt:      s.clock.now(),
	}
	if err := s.msgs.Create(ctx, m); err != nil {
		return model.Message{}, err
	}
	if _, err := s.convs.Update(ctx, convID, func(c *model.Conversation) bool {
		c.LastMessage = &m
		c.UpdatedAt = m.CreatedAt
		return true
	}); err != nil {
		return model.Message{}, err
	}
	s.mirror(ctx, me.ID, *c, m)
	return m, nil
}

// mirror 在线时把消息发到远端，失败只记录日志
func (s *chatService) mirror(ctx context.Context, me string, c model.Conversation, m model.Message) {
	if !s.sync.UseOnline() {
		return
	}
	var err error
	if c.IsGroup {
		_, err = s.client.SendGroupMessage(ctx, c.ID, m.Content, m.ImageURL)
	} else {
		for _, p := range c.Participants {
			if p != me {
				_, err = s.client.SendDirectMessage(ctx, p, m.Content, m.ImageURL)
				break
			}
		}
	}
	if err != nil {
		logger.Warn("remote message send failed", zap.String("conversation_id", c.ID), zap.Error(err))
	}
}

// GetMessages 按时间升序返回，并把别人发的消息标记为已读
func (s *chatService) GetMessages(ctx context.Context, convID string) ([]model.MessageWithUser, error) {
	me, c, err := s.participantConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if _, err := s.msgs.MarkRead(ctx, convID, me.ID); err != nil {
		return nil, err
	}
	msgs, err := s.msgs.ListByConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	users, err := s.users.GetByIDs(ctx, c.Participants)
	if err != nil {
		return nil, err
	}
	byID := indexUsers(users)
	out := make([]model.MessageWithUser, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, model.MessageWithUser{Message: m, Sender: summaryOf(byID, m.SenderID)})
	}
	return out, nil
}

func (s *chatService) MarkMessagesAsRead(ctx context.Context, convID string) error {
	me, _, err := s.participantConversation(ctx, convID)
	if err != nil {
		return err
	}
	_, err = s.msgs.MarkRead(ctx, convID, me.ID)
	return err
}

// GetUnreadCount 当前用户所在会话中别人发的未读消息数
func (s *chatService) GetUnreadCount(ctx context.Context) (int, error) {
	me, err := currentUser(ctx, s.users)
	if errors.Is(err, ErrNotAuthenticated) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	convs, err := s.convs.ListByParticipant(ctx, me.ID)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	return s.msgs.CountUnread(ctx, ids, me.ID)
}
