package data

import (
	"context"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MessagesStore provides direct message operations.
type MessagesStore struct {
	coll  *mongo.Collection
	users *UsersStore
}

// NewMessagesStore returns a MessagesStore; users is joined into histories.
func NewMessagesStore(coll *mongo.Collection, users *UsersStore) *MessagesStore {
	return &MessagesStore{coll: coll, users: users}
}

// CreateMessage inserts an immutable message into chatID.
func (m *MessagesStore) CreateMessage(ctx context.Context, chatID, from bson.ObjectID, to *bson.ObjectID,
	typ MessageType, text, mediaURL string) (*Message, error) {
	msg := &Message{
		ChatID:    chatID,
		From:      from,
		To:        to,
		Type:      typ,
		Text:      text,
		MediaURL:  mediaURL,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	result, err := m.coll.InsertOne(ctx, msg)
	if err != nil {
		return nil, storeErr("create message", err)
	}
	msg.ID = result.InsertedID.(bson.ObjectID)
	return msg, nil
}

// ListMessages returns the chat history ascending by creation time (ties by
// id) with sender and recipient joined from the users collection.
func (m *MessagesStore) ListMessages(ctx context.Context, chatID bson.ObjectID, page Page) ([]MessageView, error) {
	pipeline := historyPipeline(bson.D{{Key: "chat_id", Value: chatID}}, page)
	pipeline = append(pipeline,
		lookupUser(m.users.coll.Name(), "from", "from_user")...)
	pipeline = append(pipeline,
		lookupUser(m.users.coll.Name(), "to", "to_user")...)

	cursor, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	defer cursor.Close(ctx)

	var messages []MessageView
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, storeErr("list messages", err)
	}
	if page.Limit > 0 {
		slices.Reverse(messages)
	}
	return messages, nil
}

// historyPipeline filters by owner and cursor, then sorts. A bounded page is
// read newest first so the limit keeps the latest entries; callers reverse it.
func historyPipeline(match bson.D, page Page) mongo.Pipeline {
	if page.Before != nil {
		match = append(match, bson.E{Key: "$or", Value: bson.A{
			bson.M{"created_at": bson.M{"$lt": page.Before.CreatedAt}},
			bson.M{"created_at": page.Before.CreatedAt, "_id": bson.M{"$lt": page.Before.ID}},
		}})
	}

	pipeline := mongo.Pipeline{{{Key: "$match", Value: match}}}
	if page.Limit > 0 {
		pipeline = append(pipeline,
			bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
			bson.D{{Key: "$limit", Value: page.Limit}},
		)
		return pipeline
	}
	return append(pipeline,
		bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}}})
}

// lookupUser joins the user referenced by field into as, keeping only the
// public profile fields. Dangling references leave as empty.
func lookupUser(usersColl, field, as string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: usersColl},
			{Key: "localField", Value: field},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: as},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$project", Value: bson.D{
					{Key: "auth_id", Value: 1},
					{Key: "name", Value: 1},
					{Key: "email", Value: 1},
				}}},
			}},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$" + as},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}
}
