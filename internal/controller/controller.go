// Package controller drives the lifecycle of a client connection: it binds
// the connection to its user, dispatches inbound frames to the messaging
// services and reports failures back as error frames.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/PaulBabatuyi/collab-chat/internal/chat"
	"github.com/PaulBabatuyi/collab-chat/internal/data"
	"github.com/PaulBabatuyi/collab-chat/internal/errs"
	"github.com/PaulBabatuyi/collab-chat/internal/event"
	"github.com/PaulBabatuyi/collab-chat/internal/registry"
	"github.com/PaulBabatuyi/collab-chat/internal/team"
)

// ErrNoIdentity is returned by Connect when the handshake named no user.
var ErrNoIdentity = errors.New("connection carries no user id")

// Identity is the verified caller of a connection.
type Identity struct {
	UserID string
	Name   string
	Email  string
}

// Provisioner creates the user record of a first time caller.
type Provisioner interface {
	EnsureUser(ctx context.Context, authID, name, email string) (*data.User, error)
}

// Controller owns the set of live connections.
type Controller struct {
	reg    *registry.Registry
	chats  *chat.Service
	teams  *team.Service
	users  Provisioner
	logger *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithProvisioning makes Connect create missing user records from the
// caller's identity.
func WithProvisioning(p Provisioner) Option {
	return func(c *Controller) { c.users = p }
}

// New returns a Controller.
func New(reg *registry.Registry, chats *chat.Service, teams *team.Service, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{reg: reg, chats: chats, teams: teams, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Conn is one active connection.
type Conn struct {
	ctl    *Controller
	ctx    context.Context
	userID string
	sess   registry.Session

	wg     sync.WaitGroup
	once   sync.Once
	logger *slog.Logger
}

// Connect registers sess for the identity. A missing user id fails with
// ErrNoIdentity and leaves the registry untouched; the transport must then
// close the connection.
func (c *Controller) Connect(ctx context.Context, id Identity, sess registry.Session) (*Conn, error) {
	if id.UserID == "" {
		return nil, ErrNoIdentity
	}
	if c.users != nil {
		if _, err := c.users.EnsureUser(ctx, id.UserID, id.Name, id.Email); err != nil {
			return nil, fmt.Errorf("provision %s: %w", id.UserID, err)
		}
	}

	c.reg.Bind(id.UserID, sess)
	logger := c.logger.With("user_id", id.UserID, "session_id", sess.ID())
	logger.Info("client connected")

	return &Conn{
		ctl:    c,
		ctx:    context.WithoutCancel(ctx),
		userID: id.UserID,
		sess:   sess,
		logger: logger,
	}, nil
}

// UserID returns the user bound to the connection.
func (cn *Conn) UserID() string { return cn.userID }

// Handle dispatches one inbound frame on its own goroutine. Frames of the
// same connection may complete in any order.
func (cn *Conn) Handle(env event.Envelope) {
	cn.wg.Add(1)
	go func() {
		defer cn.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				cn.logger.Error("handler panicked", "event", env.Event, "panic", r)
				cn.fail(env.Event, fmt.Errorf("panic: %v", r))
			}
		}()
		cn.dispatch(env)
	}()
}

// Close waits for in-flight frames and unbinds the user.
func (cn *Conn) Close() {
	cn.once.Do(func() {
		cn.wg.Wait()
		cn.ctl.reg.Unbind(cn.userID)
		cn.logger.Info("client disconnected")
	})
}

func (cn *Conn) dispatch(env event.Envelope) {
	ctx := cn.ctx
	ctl := cn.ctl

	switch env.Event {
	case event.SendMessage:
		var req event.SendMessageRequest
		if err := env.Decode(&req); err != nil {
			cn.fail(env.Event, invalid(err))
			return
		}
		if _, err := ctl.chats.SendDirectMessage(ctx, cn.sess, cn.userID, req); err != nil {
			cn.fail(env.Event, err)
		}

	case event.GetMessages:
		var req event.GetMessagesRequest
		if err := env.Decode(&req); err != nil {
			cn.fail(env.Event, invalid(err))
			return
		}
		h, err := ctl.chats.FetchChatHistory(ctx, cn.userID, req)
		if err != nil {
			cn.fail(env.Event, err)
			return
		}
		cn.emit(event.GetMessages, h)

	case event.CreateChat:
		var req event.CreateChatRequest
		if err := env.Decode(&req); err != nil {
			cn.ack(env, event.CreateChatAck{Error: describe(env.Event, invalid(err))})
			return
		}
		view, created, err := ctl.chats.CreateOrGetChat(ctx, cn.userID, req.TargetID)
		if err != nil {
			cn.logger.Warn("create chat failed", "error", err)
			cn.ack(env, event.CreateChatAck{Error: describe(env.Event, err)})
			return
		}
		msg := "Chat already exists!"
		if created {
			msg = "Chat created successfully!"
		}
		cn.ack(env, event.CreateChatAck{Chat: view, Message: msg})

	case event.GetDirectConversations:
		chats, err := ctl.chats.ListConversations(ctx, cn.userID)
		if err != nil {
			cn.logger.Warn("list conversations failed", "error", err)
			cn.ack(env, event.ConversationsAck{Error: describe(env.Event, err), Chats: []data.ChatView{}})
			return
		}
		cn.ack(env, event.ConversationsAck{Chats: chats})

	case event.Typing:
		var req event.TypingRequest
		if err := env.Decode(&req); err != nil {
			cn.fail(env.Event, invalid(err))
			return
		}
		ctl.chats.Typing(cn.userID, req)

	case event.SendTeamMessage:
		var req event.SendTeamMessageRequest
		if err := env.Decode(&req); err != nil {
			cn.fail(env.Event, invalid(err))
			return
		}
		if _, err := ctl.teams.SendTeamMessage(ctx, cn.sess, cn.userID, req); err != nil {
			cn.fail(env.Event, err)
		}

	case event.GetTeamMessages:
		var req event.GetTeamMessagesRequest
		if err := env.Decode(&req); err != nil {
			cn.fail(env.Event, invalid(err))
			return
		}
		h, err := ctl.teams.FetchTeamHistory(ctx, cn.userID, req)
		if err != nil {
			cn.fail(env.Event, err)
			return
		}
		cn.emit(event.GetTeamMessages, h)

	default:
		cn.fail(env.Event, fmt.Errorf("unknown event %q", env.Event))
	}
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", errs.ErrInvalidMessage, err)
}

// fail reports err to the originating session as a free-text error frame.
func (cn *Conn) fail(kind event.Kind, err error) {
	cn.logger.Warn("event failed", "event", kind, "error", err)
	cn.emit(event.Error, event.ErrorPayload{Message: describe(kind, err)})
}

func (cn *Conn) ack(in event.Envelope, payload any) {
	out, err := in.Reply(payload)
	if err != nil {
		cn.logger.Error("encode ack", "event", in.Event, "error", err)
		return
	}
	if err := registry.Emit(cn.sess, out); err != nil {
		cn.logger.Warn("emit failed", "event", event.Ack, "error", err)
	}
}

func (cn *Conn) emit(kind event.Kind, payload any) {
	out, err := event.New(kind, payload)
	if err != nil {
		cn.logger.Error("encode event", "event", kind, "error", err)
		return
	}
	if err := registry.Emit(cn.sess, out); err != nil {
		cn.logger.Warn("emit failed", "event", kind, "error", err)
	}
}
