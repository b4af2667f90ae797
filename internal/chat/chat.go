// Package chat implements one-to-one messaging: conversation lookup and
// creation, message persistence, and live delivery to the recipient.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PaulBabatuyi/collab-chat/internal/data"
	"github.com/PaulBabatuyi/collab-chat/internal/errs"
	"github.com/PaulBabatuyi/collab-chat/internal/event"
	"github.com/PaulBabatuyi/collab-chat/internal/registry"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Store is the slice of the persistence gateway used by direct messaging.
type Store interface {
	UserByAuthID(ctx context.Context, authID string) (*data.User, error)
	FindChatBetween(ctx context.Context, a, b bson.ObjectID) (*data.Chat, error)
	CreateChat(ctx context.Context, a, b bson.ObjectID) (*data.Chat, error)
	FindChat(ctx context.Context, id bson.ObjectID) (*data.Chat, error)
	ChatView(ctx context.Context, id bson.ObjectID) (*data.ChatView, error)
	CreateMessage(ctx context.Context, chatID, from bson.ObjectID, to *bson.ObjectID,
		typ data.MessageType, text, mediaURL string) (*data.Message, error)
	SetChatLastMessage(ctx context.Context, chatID bson.ObjectID, msg *data.Message) error
	ListMessages(ctx context.Context, chatID bson.ObjectID, page data.Page) ([]data.MessageView, error)
	ListChatsFor(ctx context.Context, userID bson.ObjectID) ([]data.ChatView, error)
}

// Directory resolves the live session of a user.
type Directory interface {
	Lookup(userID string) (registry.Session, bool)
}

// Service is the direct messaging service.
type Service struct {
	store   Store
	dir     Directory
	logger  *slog.Logger
	enforce bool
}

// Option configures a Service.
type Option func(*Service)

// WithMembershipCheck controls whether callers must be participants of the
// chat they send to or read from. It is on by default.
func WithMembershipCheck(on bool) Option {
	return func(s *Service) { s.enforce = on }
}

// New returns a Service.
func New(store Store, dir Directory, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, dir: dir, logger: logger, enforce: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) user(ctx context.Context, authID string) (*data.User, error) {
	u, err := s.store.UserByAuthID(ctx, authID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("user %q: %w", authID, errs.ErrInvalidParticipant)
	}
	return u, err
}

func (s *Service) chat(ctx context.Context, chatID string) (*data.Chat, error) {
	id, err := bson.ObjectIDFromHex(chatID)
	if err != nil {
		return nil, fmt.Errorf("chat %q: %w", chatID, errs.ErrChatNotFound)
	}
	c, err := s.store.FindChat(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("chat %q: %w", chatID, errs.ErrChatNotFound)
	}
	return c, err
}

// SendDirectMessage persists a message from senderID into the chat named by
// req and delivers it to the recipient when online. The confirmation is
// emitted to origin whether or not the recipient is connected.
func (s *Service) SendDirectMessage(ctx context.Context, origin registry.Session, senderID string,
	req event.SendMessageRequest) (*data.Message, error) {
	sender, err := s.user(ctx, senderID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.user(ctx, req.ToUserID)
	if err != nil {
		return nil, err
	}

	c, err := s.chat(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	if s.enforce && !(c.HasParticipant(sender.ID) && c.HasParticipant(recipient.ID)) {
		return nil, fmt.Errorf("send to chat %s: %w", c.ID.Hex(), errs.ErrNotParticipant)
	}

	if err := req.Message.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidMessage, err)
	}

	msg, err := s.store.CreateMessage(ctx, c.ID, sender.ID, &recipient.ID,
		req.Message.Type, req.Message.Text, req.Message.MediaURL)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetChatLastMessage(ctx, c.ID, msg); err != nil {
		return nil, err
	}

	s.deliver(recipient.AuthID, event.NewMessage, event.NewMessagePayload{
		ChatID:    c.ID.Hex(),
		From:      sender.AuthID,
		MessageID: msg.ID.Hex(),
		Type:      msg.Type,
		Text:      msg.Text,
		MediaURL:  msg.MediaURL,
		Timestamp: msg.CreatedAt,
	})
	s.emit(origin, event.SendMessage, event.SendMessageConfirmation{
		Success:   true,
		ChatID:    c.ID.Hex(),
		To:        recipient.AuthID,
		MessageID: msg.ID.Hex(),
		Type:      msg.Type,
		Text:      msg.Text,
		Timestamp: msg.CreatedAt,
	})
	return msg, nil
}

// CreateOrGetChat returns the chat between the two users, creating it when
// it does not exist yet. created reports which case happened. Both users are
// sent the chat on update_chat_list when online.
func (s *Service) CreateOrGetChat(ctx context.Context, requesterID, targetID string) (view *data.ChatView, created bool, err error) {
	requester, err := s.user(ctx, requesterID)
	if err != nil {
		return nil, false, err
	}
	target, err := s.user(ctx, targetID)
	if err != nil {
		return nil, false, err
	}
	if requester.ID == target.ID {
		return nil, false, fmt.Errorf("chat with self: %w", errs.ErrInvalidParticipant)
	}

	c, err := s.store.FindChatBetween(ctx, requester.ID, target.ID)
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrNotFound):
		c, err = s.store.CreateChat(ctx, requester.ID, target.ID)
		if errors.Is(err, errs.ErrConflict) {
			// lost a creation race; the winner's chat is the one
			c, err = s.store.FindChatBetween(ctx, requester.ID, target.ID)
		} else {
			created = err == nil
		}
		if err != nil {
			return nil, false, err
		}
	default:
		return nil, false, err
	}

	view, err = s.store.ChatView(ctx, c.ID)
	if err != nil {
		return nil, false, err
	}

	update := event.ChatListUpdate{Chat: *view}
	for _, p := range view.Participants {
		s.deliver(p.AuthID, event.UpdateChatList, update)
	}
	return view, created, nil
}

// FetchChatHistory returns the messages of a chat, oldest first, and the
// profile of the participant other than the requester.
func (s *Service) FetchChatHistory(ctx context.Context, requesterID string, req event.GetMessagesRequest) (*event.ChatHistory, error) {
	requester, err := s.user(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	c, err := s.chat(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	if s.enforce && !c.HasParticipant(requester.ID) {
		return nil, fmt.Errorf("read chat %s: %w", c.ID.Hex(), errs.ErrNotParticipant)
	}

	view, err := s.store.ChatView(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, c.ID, req.Page())
	if err != nil {
		return nil, err
	}

	out := &event.ChatHistory{ChatID: c.ID.Hex(), Messages: lo.Ternary(messages == nil, []data.MessageView{}, messages)}
	if other, ok := lo.Find(view.Participants, func(p data.Profile) bool { return p.ID != requester.ID }); ok {
		out.Participant = &other
	}
	return out, nil
}

// ListConversations returns every chat the user takes part in, most
// recently active first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]data.ChatView, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	chats, err := s.store.ListChatsFor(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if chats == nil {
		chats = []data.ChatView{}
	}
	return chats, nil
}

// Typing relays a typing indicator to the target when online. Nothing is
// persisted and an offline target is not an error.
func (s *Service) Typing(senderID string, req event.TypingRequest) {
	s.deliver(req.TargetUserID, event.Typing, event.TypingNotice{UserID: senderID, IsTyping: req.IsTyping})
}

// deliver emits to the live session of userID, if any.
func (s *Service) deliver(userID string, kind event.Kind, payload any) {
	sess, ok := s.dir.Lookup(userID)
	if !ok {
		s.logger.Debug("recipient offline", "user_id", userID, "event", kind)
		return
	}
	s.emit(sess, kind, payload)
}

func (s *Service) emit(sess registry.Session, kind event.Kind, payload any) {
	if sess == nil {
		return
	}
	env, err := event.New(kind, payload)
	if err != nil {
		s.logger.Error("encode event", "event", kind, "error", err)
		return
	}
	if err := registry.Emit(sess, env); err != nil {
		s.logger.Warn("emit failed", "session_id", sess.ID(), "event", kind, "error", err)
	}
}
