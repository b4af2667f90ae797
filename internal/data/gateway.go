package data

import "github.com/PaulBabatuyi/collab-chat/internal/db"

// Gateway bundles the Mongo stores behind one value so services can depend on
// a single persistence handle.
type Gateway struct {
	*UsersStore
	*ChatsStore
	*MessagesStore
	*TeamsStore
	*TeamMessagesStore
}

// NewGateway wires every store to its collection on c.
func NewGateway(c *db.Client) *Gateway {
	users := NewUsersStore(c.UsersCollection())
	return &Gateway{
		UsersStore:        users,
		ChatsStore:        NewChatsStore(c.ChatsCollection(), users),
		MessagesStore:     NewMessagesStore(c.MessagesCollection(), users),
		TeamsStore:        NewTeamsStore(c.TeamsCollection(), users),
		TeamMessagesStore: NewTeamMessagesStore(c.TeamMessagesCollection(), users),
	}
}
