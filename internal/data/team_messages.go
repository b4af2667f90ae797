package data

import (
	"context"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// TeamMessagesStore provides team message operations.
type TeamMessagesStore struct {
	coll  *mongo.Collection
	users *UsersStore
}

// NewTeamMessagesStore returns a TeamMessagesStore.
func NewTeamMessagesStore(coll *mongo.Collection, users *UsersStore) *TeamMessagesStore {
	return &TeamMessagesStore{coll: coll, users: users}
}

// CreateTeamMessage inserts an immutable message broadcast to teamID.
func (m *TeamMessagesStore) CreateTeamMessage(ctx context.Context, teamID, from bson.ObjectID,
	typ MessageType, text, mediaURL string) (*TeamMessage, error) {
	msg := &TeamMessage{
		TeamID:    teamID,
		From:      from,
		Type:      typ,
		Text:      text,
		MediaURL:  mediaURL,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	result, err := m.coll.InsertOne(ctx, msg)
	if err != nil {
		return nil, storeErr("create team message", err)
	}
	msg.ID = result.InsertedID.(bson.ObjectID)
	return msg, nil
}

// ListTeamMessages returns the team history ascending by creation time with
// the sender joined.
func (m *TeamMessagesStore) ListTeamMessages(ctx context.Context, teamID bson.ObjectID, page Page) ([]TeamMessageView, error) {
	pipeline := historyPipeline(bson.D{{Key: "team_id", Value: teamID}}, page)
	pipeline = append(pipeline, lookupUser(m.users.coll.Name(), "from", "from_user")...)

	cursor, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storeErr("list team messages", err)
	}
	defer cursor.Close(ctx)

	var messages []TeamMessageView
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, storeErr("list team messages", err)
	}
	if page.Limit > 0 {
		slices.Reverse(messages)
	}
	return messages, nil
}
