// Package event defines the frames exchanged over a client session: a closed
// set of event kinds and one payload type per kind.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/PaulBabatuyi/collab-chat/internal/data"

	"github.com/go-playground/validator/v10"
)

// Kind names an event.
type Kind string

// Inbound kinds.
const (
	SendMessage            Kind = "send_message"
	GetMessages            Kind = "get_messages"
	CreateChat             Kind = "create_chat"
	GetDirectConversations Kind = "get_direct_conversations"
	Typing                 Kind = "typing"
	SendTeamMessage        Kind = "send_team_message"
	GetTeamMessages        Kind = "get_team_messages"
)

// Outbound kinds. SendMessage, SendTeamMessage, Typing, GetMessages and
// GetTeamMessages are reused as the names of their replies.
const (
	NewMessage     Kind = "new_message"
	UpdateChatList Kind = "update_chat_list"
	NewTeamMessage Kind = "new_team_message"
	Error          Kind = "error"
	Ack            Kind = "ack"
)

var inbound = map[Kind]bool{
	SendMessage:            true,
	GetMessages:            true,
	CreateChat:             true,
	GetDirectConversations: true,
	Typing:                 true,
	SendTeamMessage:        true,
	GetTeamMessages:        true,
}

// Inbound reports whether k is accepted from clients.
func (k Kind) Inbound() bool { return inbound[k] }

// Envelope is one frame on the wire. Ack carries the client's correlation id
// for events answered through an acknowledgement.
type Envelope struct {
	Event   Kind            `json:"event"`
	Ack     string          `json:"ack,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New encodes payload into an envelope of the given kind.
func New(kind Kind, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return Envelope{Event: kind, Payload: raw}, nil
}

// Reply builds the acknowledgement for e carrying payload.
func (e Envelope) Reply(payload any) (Envelope, error) {
	out, err := New(Ack, payload)
	if err != nil {
		return Envelope{}, err
	}
	out.Ack = e.Ack
	return out, nil
}

// Decode unmarshals the payload into v and validates it.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, v); err != nil {
			return fmt.Errorf("decode %s: %w", e.Event, err)
		}
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Event, err)
	}
	return nil
}

var validate = validator.New()

// MessageBody is the client supplied content of a direct or team message.
type MessageBody struct {
	Type     data.MessageType `json:"type" validate:"required,oneof=Text Media Document Link"`
	Text     string           `json:"text" validate:"required"`
	MediaURL string           `json:"mediaUrl,omitempty"`
}

// Validate checks b against the accepted message shape.
func (b MessageBody) Validate() error {
	return validate.Struct(b)
}

// HistoryQuery optionally bounds a history fetch. A zero Limit returns the
// whole history.
type HistoryQuery struct {
	Limit  int64        `json:"limit,omitempty" validate:"gte=0,lte=500"`
	Before *data.Cursor `json:"before,omitempty"`
}

// Page converts q into a store page.
func (q HistoryQuery) Page() data.Page {
	return data.Page{Limit: q.Limit, Before: q.Before}
}

// Inbound payloads. Id fields are loosely typed here; the services parse
// them and report unknown ids through the error taxonomy.

type SendMessageRequest struct {
	ChatID   string `json:"chatId" validate:"required"`
	ToUserID string `json:"toUserId" validate:"required"`
	// Message is validated by the direct messaging service so that a bad
	// body surfaces as an invalid message rather than a decode failure.
	Message MessageBody `json:"message" validate:"-"`
}

type GetMessagesRequest struct {
	ChatID string `json:"chatId" validate:"required"`
	HistoryQuery
}

type CreateChatRequest struct {
	TargetID string `json:"targetId" validate:"required"`
}

type TypingRequest struct {
	TargetUserID string `json:"targetUserId" validate:"required"`
	IsTyping     bool   `json:"isTyping"`
}

type TeamMessageBody struct {
	MessageBody
	ClientGeneratedID string `json:"clientGeneratedId,omitempty"`
}

type SendTeamMessageRequest struct {
	TeamID  string          `json:"teamId" validate:"required"`
	Message TeamMessageBody `json:"message" validate:"-"`
}

type GetTeamMessagesRequest struct {
	TeamID string `json:"teamId" validate:"required"`
	HistoryQuery
}

// Outbound payloads.

type NewMessagePayload struct {
	ChatID    string           `json:"chatId"`
	From      string           `json:"from"`
	MessageID string           `json:"messageId"`
	Type      data.MessageType `json:"type"`
	Text      string           `json:"text"`
	MediaURL  string           `json:"mediaUrl,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

type SendMessageConfirmation struct {
	Success   bool             `json:"success"`
	ChatID    string           `json:"chatId"`
	To        string           `json:"to"`
	MessageID string           `json:"messageId"`
	Type      data.MessageType `json:"type"`
	Text      string           `json:"text"`
	Timestamp time.Time        `json:"timestamp"`
}

type ChatListUpdate struct {
	Chat data.ChatView `json:"chat"`
}

type CreateChatAck struct {
	Chat    *data.ChatView `json:"chat,omitempty"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type ConversationsAck struct {
	Error string          `json:"error,omitempty"`
	Chats []data.ChatView `json:"chats"`
}

type TypingNotice struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type ChatHistory struct {
	ChatID      string             `json:"chatId"`
	Messages    []data.MessageView `json:"messages"`
	Participant *data.Profile      `json:"participant,omitempty"`
}

// Role tags a team message from the receiving participant's point of view.
type Role string

const (
	RoleMe    Role = "me"
	RoleOther Role = "other"
)

type Author struct {
	AuthID string `json:"authId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type NewTeamMessagePayload struct {
	TeamID            string           `json:"teamId"`
	From              Author           `json:"from"`
	MessageID         string           `json:"messageId"`
	Type              data.MessageType `json:"type"`
	Text              string           `json:"text"`
	MediaURL          string           `json:"mediaUrl,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	ClientGeneratedID string           `json:"clientGeneratedId,omitempty"`
	Sender            Role             `json:"sender"`
}

type TeamMessageConfirmation struct {
	Sender            Role             `json:"sender"`
	Success           bool             `json:"success"`
	TeamID            string           `json:"teamId"`
	MessageID         string           `json:"messageId"`
	Type              data.MessageType `json:"type"`
	Text              string           `json:"text"`
	ClientGeneratedID string           `json:"clientGeneratedId,omitempty"`
	Timestamp         time.Time        `json:"timestamp"`
}

type Member struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type TeamInfo struct {
	TeamID       string   `json:"teamId"`
	TeamName     string   `json:"teamName"`
	Passphrase   string   `json:"passphrase"`
	Participants []Member `json:"participants"`
}

type TeamHistory struct {
	TeamID   string                 `json:"teamId"`
	Messages []data.TeamMessageView `json:"messages"`
	TeamInfo TeamInfo               `json:"teamInfo"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
