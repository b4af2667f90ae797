package data

import (
	"context"
	"fmt"
	"time"

	"github.com/PaulBabatuyi/collab-chat/internal/errs"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ChatsStore provides 1:1 conversation operations.
type ChatsStore struct {
	coll  *mongo.Collection
	users *UsersStore
}

// NewChatsStore returns a ChatsStore; users is used to resolve participants.
func NewChatsStore(coll *mongo.Collection, users *UsersStore) *ChatsStore {
	return &ChatsStore{coll: coll, users: users}
}

// PairKey returns the order independent key of a participant pair.
func PairKey(a, b bson.ObjectID) string {
	ah, bh := a.Hex(), b.Hex()
	if bh < ah {
		ah, bh = bh, ah
	}
	return ah + ":" + bh
}

// FindChatBetween returns the chat whose participants are exactly a and b.
func (c *ChatsStore) FindChatBetween(ctx context.Context, a, b bson.ObjectID) (*Chat, error) {
	var chat Chat
	if err := c.coll.FindOne(ctx, bson.M{"pair_key": PairKey(a, b)}).Decode(&chat); err != nil {
		return nil, storeErr("find chat between", err)
	}
	return &chat, nil
}

// CreateChat inserts a chat for the pair. A concurrent creation for the same
// pair loses on the unique pair_key index and reports errs.ErrConflict.
func (c *ChatsStore) CreateChat(ctx context.Context, a, b bson.ObjectID) (*Chat, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	chat := &Chat{
		Participants: []bson.ObjectID{a, b},
		PairKey:      PairKey(a, b),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	result, err := c.coll.InsertOne(ctx, chat)
	if err != nil {
		return nil, storeErr("create chat", err)
	}
	chat.ID = result.InsertedID.(bson.ObjectID)
	return chat, nil
}

// FindChat returns the chat document by id.
func (c *ChatsStore) FindChat(ctx context.Context, id bson.ObjectID) (*Chat, error) {
	var chat Chat
	if err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&chat); err != nil {
		return nil, storeErr("find chat", err)
	}
	return &chat, nil
}

// ChatView returns the chat with its participants resolved.
func (c *ChatsStore) ChatView(ctx context.Context, id bson.ObjectID) (*ChatView, error) {
	chat, err := c.FindChat(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := c.views(ctx, []Chat{*chat})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// SetChatLastMessage moves the chat's last-message pointer to msg unless the
// pointer already references a newer message. Concurrent senders therefore
// converge on the newest message instead of the last writer.
func (c *ChatsStore) SetChatLastMessage(ctx context.Context, chatID bson.ObjectID, msg *Message) error {
	return setLastPointer(ctx, c.coll, chatID, msg.ID, msg.CreatedAt)
}

// ListChatsFor returns every chat containing userID, most recently updated first.
func (c *ChatsStore) ListChatsFor(ctx context.Context, userID bson.ObjectID) ([]ChatView, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := c.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, storeErr("list chats", err)
	}
	defer cursor.Close(ctx)

	var chats []Chat
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, storeErr("list chats", err)
	}
	return c.views(ctx, chats)
}

func (c *ChatsStore) views(ctx context.Context, chats []Chat) ([]ChatView, error) {
	var ids []bson.ObjectID
	for _, chat := range chats {
		ids = append(ids, chat.Participants...)
	}
	profiles, err := c.users.ProfilesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]ChatView, 0, len(chats))
	for _, chat := range chats {
		views = append(views, ChatView{
			ID:           chat.ID,
			Participants: resolve(chat.Participants, profiles),
			LastMessage:  chat.LastMessage,
			CreatedAt:    chat.CreatedAt,
			UpdatedAt:    chat.UpdatedAt,
		})
	}
	return views, nil
}

// setLastPointer is the conditional update shared by chats and teams: the
// pointer only moves forward in creation time.
func setLastPointer(ctx context.Context, coll *mongo.Collection, id, msgID bson.ObjectID, at time.Time) error {
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"last_message_at": nil},
			bson.M{"last_message_at": bson.M{"$lte": at}},
		},
	}
	update := bson.M{"$set": bson.M{
		"last_message":    msgID,
		"last_message_at": at,
		"updated_at":      time.Now().UTC().Truncate(time.Millisecond),
	}}

	result, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return storeErr("set last message", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// Either the document is gone or a newer message already won.
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return storeErr("set last message", err)
	}
	if n == 0 {
		return fmt.Errorf("set last message: %w", errs.ErrNotFound)
	}
	return nil
}
