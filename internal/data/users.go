// Package data provides DB models and the MongoDB backed stores.
package data

import (
	"context"
	"time"

	"github.com/PaulBabatuyi/collab-chat/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UsersStore reads user records. Users are owned by the auth/profile path;
// the messaging core only resolves them.
type UsersStore struct {
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// UserByAuthID finds a user by the logical identity issued by the auth provider.
func (u *UsersStore) UserByAuthID(ctx context.Context, authID string) (*User, error) {
	var user User
	if err := u.coll.FindOne(ctx, bson.M{"auth_id": authID}).Decode(&user); err != nil {
		return nil, storeErr("find user", err)
	}
	return &user, nil
}

// EnsureUser creates the user for authID if it does not exist yet and
// returns the stored record. Existing records are left untouched.
func (u *UsersStore) EnsureUser(ctx context.Context, authID, name, email string) (*User, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{"$setOnInsert": bson.M{
		"auth_id":    authID,
		"name":       name,
		"email":      normalize.Email(email),
		"created_at": now,
		"updated_at": now,
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var user User
	err := u.coll.FindOneAndUpdate(ctx, bson.M{"auth_id": authID}, update, opts).Decode(&user)
	if err != nil {
		return nil, storeErr("ensure user", err)
	}
	return &user, nil
}

// ProfilesByIDs resolves user references in one query. Unknown ids are
// absent from the returned map.
func (u *UsersStore) ProfilesByIDs(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]Profile, error) {
	profiles := make(map[bson.ObjectID]Profile, len(ids))
	if len(ids) == 0 {
		return profiles, nil
	}

	opts := options.Find().SetProjection(bson.M{"auth_id": 1, "name": 1, "email": 1})
	cursor, err := u.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, storeErr("resolve profiles", err)
	}
	defer cursor.Close(ctx)

	var found []Profile
	if err := cursor.All(ctx, &found); err != nil {
		return nil, storeErr("resolve profiles", err)
	}
	for _, p := range found {
		profiles[p.ID] = p
	}
	return profiles, nil
}

// resolve maps ids to profiles preserving order; unknown ids keep only their id.
func resolve(ids []bson.ObjectID, profiles map[bson.ObjectID]Profile) []Profile {
	out := make([]Profile, 0, len(ids))
	for _, id := range ids {
		p, ok := profiles[id]
		if !ok {
			p = Profile{ID: id}
		}
		out = append(out, p)
	}
	return out
}
