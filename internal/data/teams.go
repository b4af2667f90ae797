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

// TeamsStore provides team operations.
type TeamsStore struct {
	coll  *mongo.Collection
	users *UsersStore
}

// NewTeamsStore returns a TeamsStore; users is used to resolve the roster.
func NewTeamsStore(coll *mongo.Collection, users *UsersStore) *TeamsStore {
	return &TeamsStore{coll: coll, users: users}
}

// CreateTeam inserts a team led by leader, who is also its first participant.
// A passphrase already in use reports errs.ErrConflict.
func (t *TeamsStore) CreateTeam(ctx context.Context, name, passphrase string, leader bson.ObjectID) (*Team, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	team := &Team{
		TeamName:     name,
		Passphrase:   passphrase,
		Leader:       leader,
		Participants: []bson.ObjectID{leader},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	result, err := t.coll.InsertOne(ctx, team)
	if err != nil {
		return nil, storeErr("create team", err)
	}
	team.ID = result.InsertedID.(bson.ObjectID)
	return team, nil
}

// FindTeam returns the team with leader and participants resolved.
func (t *TeamsStore) FindTeam(ctx context.Context, id bson.ObjectID) (*TeamView, error) {
	return t.findOne(ctx, "find team", bson.M{"_id": id})
}

// FindTeamByPassphrase returns the team joined by passphrase.
func (t *TeamsStore) FindTeamByPassphrase(ctx context.Context, passphrase string) (*TeamView, error) {
	return t.findOne(ctx, "find team by passphrase", bson.M{"passphrase": passphrase})
}

// AddParticipant adds userID to the team. The membership test and the push
// run as one update, so two racing joins cannot both succeed.
func (t *TeamsStore) AddParticipant(ctx context.Context, teamID, userID bson.ObjectID) error {
	filter := bson.M{"_id": teamID, "participants": bson.M{"$ne": userID}}
	update := bson.M{
		"$push": bson.M{"participants": userID},
		"$set":  bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)},
	}

	result, err := t.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return storeErr("add participant", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	n, err := t.coll.CountDocuments(ctx, bson.M{"_id": teamID})
	if err != nil {
		return storeErr("add participant", err)
	}
	if n == 0 {
		return fmt.Errorf("add participant: %w", errs.ErrNotFound)
	}
	return fmt.Errorf("add participant: user already in the team: %w", errs.ErrConflict)
}

// SetTeamLastMessage moves the team's last-message pointer forward to msg.
func (t *TeamsStore) SetTeamLastMessage(ctx context.Context, teamID bson.ObjectID, msg *TeamMessage) error {
	return setLastPointer(ctx, t.coll, teamID, msg.ID, msg.CreatedAt)
}

// ListTeamsFor returns the teams userID participates in, newest first.
func (t *TeamsStore) ListTeamsFor(ctx context.Context, userID bson.ObjectID) ([]TeamView, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := t.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, storeErr("list teams", err)
	}
	defer cursor.Close(ctx)

	var teams []Team
	if err := cursor.All(ctx, &teams); err != nil {
		return nil, storeErr("list teams", err)
	}
	return t.views(ctx, teams)
}

func (t *TeamsStore) findOne(ctx context.Context, op string, filter bson.M) (*TeamView, error) {
	var team Team
	if err := t.coll.FindOne(ctx, filter).Decode(&team); err != nil {
		return nil, storeErr(op, err)
	}
	views, err := t.views(ctx, []Team{team})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (t *TeamsStore) views(ctx context.Context, teams []Team) ([]TeamView, error) {
	var ids []bson.ObjectID
	for _, team := range teams {
		ids = append(ids, team.Leader)
		ids = append(ids, team.Participants...)
	}
	profiles, err := t.users.ProfilesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]TeamView, 0, len(teams))
	for _, team := range teams {
		views = append(views, TeamView{
			ID:           team.ID,
			TeamName:     team.TeamName,
			Passphrase:   team.Passphrase,
			Leader:       resolve([]bson.ObjectID{team.Leader}, profiles)[0],
			Participants: resolve(team.Participants, profiles),
			LastMessage:  team.LastMessage,
			CreatedAt:    team.CreatedAt,
		})
	}
	return views, nil
}
