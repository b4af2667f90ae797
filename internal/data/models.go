package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MessageType is the closed set of message kinds accepted by chats and teams.
type MessageType string

const (
	TypeText     MessageType = "Text"
	TypeMedia    MessageType = "Media"
	TypeDocument MessageType = "Document"
	TypeLink     MessageType = "Link"
)

// Valid reports whether t belongs to the closed set.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeMedia, TypeDocument, TypeLink:
		return true
	}
	return false
}

// User maps to the users collection. AuthID is the logical identity issued by
// the auth provider and used as the session registry key.
type User struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	AuthID    string        `bson:"auth_id"`
	Name      string        `bson:"name"`
	Email     string        `bson:"email"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

// Profile returns the public projection of u.
func (u *User) Profile() Profile {
	return Profile{ID: u.ID, AuthID: u.AuthID, Name: u.Name, Email: u.Email}
}

// Profile is the resolved (populated) form of a user reference.
type Profile struct {
	ID     bson.ObjectID `bson:"_id" json:"id"`
	AuthID string        `bson:"auth_id" json:"authId"`
	Name   string        `bson:"name" json:"name"`
	Email  string        `bson:"email" json:"email"`
}

// Chat maps to the chats collection: a 1:1 conversation. PairKey is derived
// from the two participant ids and carries a unique index.
type Chat struct {
	ID            bson.ObjectID   `bson:"_id,omitempty"`
	Participants  []bson.ObjectID `bson:"participants"`
	PairKey       string          `bson:"pair_key"`
	ChatName      string          `bson:"chat_name,omitempty"`
	LastMessage   *bson.ObjectID  `bson:"last_message,omitempty"`
	LastMessageAt *time.Time      `bson:"last_message_at,omitempty"`
	CreatedAt     time.Time       `bson:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"`
}

// HasParticipant reports whether id is one of the chat participants.
func (c *Chat) HasParticipant(id bson.ObjectID) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// ChatView is a Chat with its participants resolved.
type ChatView struct {
	ID           bson.ObjectID  `json:"id"`
	Participants []Profile      `json:"participants"`
	LastMessage  *bson.ObjectID `json:"lastMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Message maps to the messages collection. Messages are immutable.
type Message struct {
	ID        bson.ObjectID  `bson:"_id,omitempty"`
	ChatID    bson.ObjectID  `bson:"chat_id"`
	From      bson.ObjectID  `bson:"from"`
	To        *bson.ObjectID `bson:"to,omitempty"`
	Type      MessageType    `bson:"type"`
	Text      string         `bson:"text"`
	MediaURL  string         `bson:"media_url,omitempty"`
	CreatedAt time.Time      `bson:"created_at"`
}

// MessageView is a Message with sender and recipient resolved.
type MessageView struct {
	ID        bson.ObjectID `bson:"_id" json:"id"`
	ChatID    bson.ObjectID `bson:"chat_id" json:"chatId"`
	From      Profile       `bson:"from_user" json:"from"`
	To        *Profile      `bson:"to_user,omitempty" json:"to,omitempty"`
	Type      MessageType   `bson:"type" json:"type"`
	Text      string        `bson:"text" json:"text"`
	MediaURL  string        `bson:"media_url,omitempty" json:"mediaUrl,omitempty"`
	CreatedAt time.Time     `bson:"created_at" json:"createdAt"`
}

// Team maps to the teams collection. Passphrase is unique across teams.
type Team struct {
	ID            bson.ObjectID   `bson:"_id,omitempty"`
	TeamName      string          `bson:"team_name"`
	Passphrase    string          `bson:"passphrase"`
	Leader        bson.ObjectID   `bson:"team_leader"`
	Participants  []bson.ObjectID `bson:"participants"`
	LastMessage   *bson.ObjectID  `bson:"last_message,omitempty"`
	LastMessageAt *time.Time      `bson:"last_message_at,omitempty"`
	CreatedAt     time.Time       `bson:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"`
}

// TeamView is a Team with leader and participants resolved.
type TeamView struct {
	ID           bson.ObjectID  `json:"id"`
	TeamName     string         `json:"teamName"`
	Passphrase   string         `json:"passphrase"`
	Leader       Profile        `json:"teamLeader"`
	Participants []Profile      `json:"participants"`
	LastMessage  *bson.ObjectID `json:"lastMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// HasParticipant reports whether the user with the given auth id is on the team.
func (t *TeamView) HasParticipant(authID string) bool {
	for _, p := range t.Participants {
		if p.AuthID == authID {
			return true
		}
	}
	return false
}

// TeamMessage maps to the team_messages collection.
type TeamMessage struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	TeamID    bson.ObjectID `bson:"team_id"`
	From      bson.ObjectID `bson:"from"`
	Type      MessageType   `bson:"type"`
	Text      string        `bson:"text"`
	MediaURL  string        `bson:"media_url,omitempty"`
	CreatedAt time.Time     `bson:"created_at"`
}

// TeamMessageView is a TeamMessage with the sender resolved.
type TeamMessageView struct {
	ID        bson.ObjectID `bson:"_id" json:"id"`
	TeamID    bson.ObjectID `bson:"team_id" json:"teamId"`
	From      Profile       `bson:"from_user" json:"from"`
	Type      MessageType   `bson:"type" json:"type"`
	Text      string        `bson:"text" json:"text"`
	MediaURL  string        `bson:"media_url,omitempty" json:"mediaUrl,omitempty"`
	CreatedAt time.Time     `bson:"created_at" json:"createdAt"`
}

// Cursor identifies a position in a history: entries strictly before it.
type Cursor struct {
	CreatedAt time.Time     `json:"createdAt"`
	ID        bson.ObjectID `json:"id"`
}

// Page bounds a history read. A zero Limit returns the full history.
type Page struct {
	Limit  int64
	Before *Cursor
}

// Admits reports whether an entry at (at, id) sorts strictly before c.
func (c *Cursor) Admits(at time.Time, id bson.ObjectID) bool {
	if at.Equal(c.CreatedAt) {
		return id.Hex() < c.ID.Hex()
	}
	return at.Before(c.CreatedAt)
}
