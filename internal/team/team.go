// Package team implements group messaging: team creation and joining by
// passphrase, team message persistence, and fan-out to every live
// participant.
package team

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/PaulBabatuyi/collab-chat/internal/data"
	"github.com/PaulBabatuyi/collab-chat/internal/errs"
	"github.com/PaulBabatuyi/collab-chat/internal/event"
	"github.com/PaulBabatuyi/collab-chat/internal/normalize"
	"github.com/PaulBabatuyi/collab-chat/internal/registry"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Store is the slice of the persistence gateway used by team messaging.
type Store interface {
	UserByAuthID(ctx context.Context, authID string) (*data.User, error)
	CreateTeam(ctx context.Context, name, passphrase string, leader bson.ObjectID) (*data.Team, error)
	FindTeam(ctx context.Context, id bson.ObjectID) (*data.TeamView, error)
	FindTeamByPassphrase(ctx context.Context, passphrase string) (*data.TeamView, error)
	AddParticipant(ctx context.Context, teamID, userID bson.ObjectID) error
	ListTeamsFor(ctx context.Context, userID bson.ObjectID) ([]data.TeamView, error)
	CreateTeamMessage(ctx context.Context, teamID, from bson.ObjectID,
		typ data.MessageType, text, mediaURL string) (*data.TeamMessage, error)
	SetTeamLastMessage(ctx context.Context, teamID bson.ObjectID, msg *data.TeamMessage) error
	ListTeamMessages(ctx context.Context, teamID bson.ObjectID, page data.Page) ([]data.TeamMessageView, error)
}

// Directory resolves the live session of a user.
type Directory interface {
	Lookup(userID string) (registry.Session, bool)
}

// Service is the team messaging service.
type Service struct {
	store   Store
	dir     Directory
	logger  *slog.Logger
	enforce bool
}

// Option configures a Service.
type Option func(*Service)

// WithMembershipCheck controls whether only participants may post to and
// read a team. It is on by default.
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

var (
	validate     = validator.New()
	teamNameExpr = regexp.MustCompile(`^[a-zA-Z0-9\s]+$`)
)

func init() {
	_ = validate.RegisterValidation("teamname", func(fl validator.FieldLevel) bool {
		return teamNameExpr.MatchString(fl.Field().String())
	})
}

// CreateRequest is the input of CreateTeam.
type CreateRequest struct {
	TeamName   string `json:"teamName" validate:"required,min=3,max=50,teamname"`
	Passphrase string `json:"passphrase" validate:"required,min=6,max=20"`
}

func (s *Service) user(ctx context.Context, authID string) (*data.User, error) {
	u, err := s.store.UserByAuthID(ctx, authID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("user %q: %w", authID, errs.ErrInvalidParticipant)
	}
	return u, err
}

func (s *Service) team(ctx context.Context, teamID string) (*data.TeamView, error) {
	id, err := bson.ObjectIDFromHex(teamID)
	if err != nil {
		return nil, fmt.Errorf("team %q: %w", teamID, errs.ErrTeamNotFound)
	}
	t, err := s.store.FindTeam(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("team %q: %w", teamID, errs.ErrTeamNotFound)
	}
	return t, err
}

// CreateTeam creates a team led by leaderID, who becomes its first
// participant. A passphrase already in use fails with errs.ErrConflict.
func (s *Service) CreateTeam(ctx context.Context, leaderID string, req CreateRequest) (*data.TeamView, error) {
	req.TeamName = normalize.TeamName(req.TeamName)
	req.Passphrase = normalize.Passphrase(req.Passphrase)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidTeam, err)
	}

	leader, err := s.user(ctx, leaderID)
	if err != nil {
		return nil, err
	}
	t, err := s.store.CreateTeam(ctx, req.TeamName, req.Passphrase, leader.ID)
	if errors.Is(err, errs.ErrConflict) {
		return nil, fmt.Errorf("passphrase already in use: %w", errs.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("team created", "team_id", t.ID.Hex(), "leader", leaderID)
	return s.store.FindTeam(ctx, t.ID)
}

// JoinTeam adds userID to the team holding passphrase. An unknown passphrase
// fails with errs.ErrTeamNotFound and an existing member with errs.ErrConflict.
func (s *Service) JoinTeam(ctx context.Context, userID, passphrase string) (*data.TeamView, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	t, err := s.store.FindTeamByPassphrase(ctx, normalize.Passphrase(passphrase))
	if errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("join: %w", errs.ErrTeamNotFound)
	}
	if err != nil {
		return nil, err
	}
	if t.HasParticipant(u.AuthID) {
		return nil, fmt.Errorf("join: user already in the team: %w", errs.ErrConflict)
	}

	switch err := s.store.AddParticipant(ctx, t.ID, u.ID); {
	case errors.Is(err, errs.ErrNotFound):
		return nil, fmt.Errorf("join: %w", errs.ErrTeamNotFound)
	case err != nil:
		return nil, err
	}
	s.logger.Info("team joined", "team_id", t.ID.Hex(), "user_id", userID)
	return s.store.FindTeam(ctx, t.ID)
}

// ListTeams returns the teams userID participates in.
func (s *Service) ListTeams(ctx context.Context, userID string) ([]data.TeamView, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	teams, err := s.store.ListTeamsFor(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if teams == nil {
		teams = []data.TeamView{}
	}
	return teams, nil
}

// SendTeamMessage persists a team message and emits new_team_message to
// every participant with a live session, the sender included. origin always
// receives a send_team_message confirmation.
func (s *Service) SendTeamMessage(ctx context.Context, origin registry.Session, senderID string,
	req event.SendTeamMessageRequest) (*data.TeamMessage, error) {
	sender, err := s.user(ctx, senderID)
	if err != nil {
		return nil, err
	}
	t, err := s.team(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}
	if s.enforce && !t.HasParticipant(sender.AuthID) {
		return nil, fmt.Errorf("post to team %s: %w", t.ID.Hex(), errs.ErrNotParticipant)
	}
	if err := req.Message.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidMessage, err)
	}

	body := req.Message
	msg, err := s.store.CreateTeamMessage(ctx, t.ID, sender.ID, body.Type, body.Text, body.MediaURL)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetTeamLastMessage(ctx, t.ID, msg); err != nil {
		return nil, err
	}

	payload := event.NewTeamMessagePayload{
		TeamID:            t.ID.Hex(),
		From:              event.Author{AuthID: sender.AuthID, Name: sender.Name, Email: sender.Email},
		MessageID:         msg.ID.Hex(),
		Type:              msg.Type,
		Text:              msg.Text,
		MediaURL:          msg.MediaURL,
		CreatedAt:         msg.CreatedAt,
		ClientGeneratedID: body.ClientGeneratedID,
	}
	delivered := 0
	for _, p := range t.Participants {
		sess, ok := s.dir.Lookup(p.AuthID)
		if !ok {
			continue
		}
		payload.Sender = lo.Ternary(p.AuthID == sender.AuthID, event.RoleMe, event.RoleOther)
		if s.emit(sess, event.NewTeamMessage, payload) {
			delivered++
		}
	}
	s.logger.Debug("team fan-out", "team_id", t.ID.Hex(), "participants", len(t.Participants), "delivered", delivered)

	s.emit(origin, event.SendTeamMessage, event.TeamMessageConfirmation{
		Sender:            event.RoleMe,
		Success:           true,
		TeamID:            t.ID.Hex(),
		MessageID:         msg.ID.Hex(),
		Type:              msg.Type,
		Text:              msg.Text,
		ClientGeneratedID: body.ClientGeneratedID,
		Timestamp:         msg.CreatedAt,
	})
	return msg, nil
}

// FetchTeamHistory returns the team's messages, oldest first, with the
// team's name, passphrase and roster.
func (s *Service) FetchTeamHistory(ctx context.Context, requesterID string, req event.GetTeamMessagesRequest) (*event.TeamHistory, error) {
	t, err := s.team(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}
	if s.enforce && !t.HasParticipant(requesterID) {
		return nil, fmt.Errorf("read team %s: %w", t.ID.Hex(), errs.ErrNotParticipant)
	}

	messages, err := s.store.ListTeamMessages(ctx, t.ID, req.Page())
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []data.TeamMessageView{}
	}

	return &event.TeamHistory{
		TeamID:   t.ID.Hex(),
		Messages: messages,
		TeamInfo: event.TeamInfo{
			TeamID:     t.ID.Hex(),
			TeamName:   t.TeamName,
			Passphrase: t.Passphrase,
			Participants: lo.Map(t.Participants, func(p data.Profile, _ int) event.Member {
				return event.Member{ID: p.AuthID, Name: p.Name, Email: p.Email}
			}),
		},
	}, nil
}

// emit writes one frame and reports whether it went out. Failures are logged
// so the caller can move on to the next recipient.
func (s *Service) emit(sess registry.Session, kind event.Kind, payload any) bool {
	if sess == nil {
		return false
	}
	env, err := event.New(kind, payload)
	if err != nil {
		s.logger.Error("encode event", "event", kind, "error", err)
		return false
	}
	if err := registry.Emit(sess, env); err != nil {
		s.logger.Warn("emit failed", "session_id", sess.ID(), "event", kind, "error", err)
		return false
	}
	return true
}
