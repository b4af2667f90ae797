package team

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/PaulBabatuyi/collab-chat/internal/data"
	"github.com/PaulBabatuyi/collab-chat/internal/data/memory"
	"github.com/PaulBabatuyi/collab-chat/internal/errs"
	"github.com/PaulBabatuyi/collab-chat/internal/event"
	"github.com/PaulBabatuyi/collab-chat/internal/registry"
	"github.com/PaulBabatuyi/collab-chat/internal/registry/registrytest"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *memory.Store
	reg   *registry.Registry
	svc   *Service
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	reg := registry.New(logger)
	for _, id := range []string{"lead", "alice", "bob", "carol"} {
		_, err := store.EnsureUser(context.Background(), id, id, id+"@example.com")
		require.NoError(t, err)
	}
	return &fixture{store: store, reg: reg, svc: New(store, reg, logger, opts...)}
}

// team creates a team led by "lead" and joins the given members.
func (f *fixture) team(t *testing.T, members ...string) *data.TeamView {
	t.Helper()
	ctx := context.Background()
	v, err := f.svc.CreateTeam(ctx, "lead", CreateRequest{TeamName: "Core Team", Passphrase: "open-sesame"})
	require.NoError(t, err)
	for _, m := range members {
		v, err = f.svc.JoinTeam(ctx, m, "open-sesame")
		require.NoError(t, err)
	}
	return v
}

func (f *fixture) online(userID string) *registrytest.Session {
	s := registrytest.NewSession()
	f.reg.Bind(userID, s)
	return s
}

func send(teamID, text string) event.SendTeamMessageRequest {
	return event.SendTeamMessageRequest{
		TeamID:  teamID,
		Message: event.TeamMessageBody{MessageBody: event.MessageBody{Type: data.TypeText, Text: text}, ClientGeneratedID: "tmp-1"},
	}
}

func TestCreateTeam(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()

	v, err := f.svc.CreateTeam(ctx, "lead", CreateRequest{TeamName: "  Core   Team ", Passphrase: " open-sesame "})
	req.NoError(err)
	req.Equal("Core Team", v.TeamName)
	req.Equal("open-sesame", v.Passphrase)
	req.Equal("lead", v.Leader.AuthID)
	req.Len(v.Participants, 1)

	_, err = f.svc.CreateTeam(ctx, "alice", CreateRequest{TeamName: "Other", Passphrase: "open-sesame"})
	req.ErrorIs(err, errs.ErrConflict)

	invalid := []CreateRequest{
		{TeamName: "ab", Passphrase: "secret1"},
		{TeamName: "Bad!Name", Passphrase: "secret1"},
		{TeamName: "Fine", Passphrase: "short"},
		{TeamName: "Fine", Passphrase: "this-passphrase-is-too-long"},
	}
	for _, r := range invalid {
		_, err := f.svc.CreateTeam(ctx, "lead", r)
		req.ErrorIs(err, errs.ErrInvalidTeam, "%+v", r)
	}

	_, err = f.svc.CreateTeam(ctx, "ghost", CreateRequest{TeamName: "Ghosts", Passphrase: "boo-boo"})
	req.ErrorIs(err, errs.ErrInvalidParticipant)
}

func TestJoinTeam(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()
	f.team(t)

	_, err := f.svc.JoinTeam(ctx, "alice", "no-such-team")
	req.ErrorIs(err, errs.ErrTeamNotFound)

	v, err := f.svc.JoinTeam(ctx, "alice", "open-sesame")
	req.NoError(err)
	req.Len(v.Participants, 2)

	_, err = f.svc.JoinTeam(ctx, "alice", "open-sesame")
	req.ErrorIs(err, errs.ErrConflict)

	after, err := f.store.FindTeamByPassphrase(ctx, "open-sesame")
	req.NoError(err)
	req.Len(after.Participants, 2)

	teams, err := f.svc.ListTeams(ctx, "alice")
	req.NoError(err)
	req.Len(teams, 1)

	teams, err = f.svc.ListTeams(ctx, "carol")
	req.NoError(err)
	req.NotNil(teams)
	req.Empty(teams)
}

func TestSendTeamMessage_FanOut(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()
	v := f.team(t, "alice", "bob")

	lead := f.online("lead")
	alice := f.online("alice")
	// bob stays offline

	msg, err := f.svc.SendTeamMessage(ctx, lead, "lead", send(v.ID.Hex(), "standup in 5"))
	req.NoError(err)

	mine := lead.Of(event.NewTeamMessage)
	req.Len(mine, 1)
	req.Equal(event.RoleMe, registrytest.Decode[event.NewTeamMessagePayload](mine[0]).Sender)

	theirs := alice.Of(event.NewTeamMessage)
	req.Len(theirs, 1)
	p := registrytest.Decode[event.NewTeamMessagePayload](theirs[0])
	req.Equal(event.RoleOther, p.Sender)
	req.Equal("standup in 5", p.Text)
	req.Equal("lead", p.From.AuthID)
	req.Equal("tmp-1", p.ClientGeneratedID)

	conf := lead.Of(event.SendTeamMessage)
	req.Len(conf, 1)
	c := registrytest.Decode[event.TeamMessageConfirmation](conf[0])
	req.True(c.Success)
	req.Equal(msg.ID.Hex(), c.MessageID)
	req.Empty(alice.Of(event.SendTeamMessage))

	stored, err := f.store.FindTeam(ctx, v.ID)
	req.NoError(err)
	req.Equal(msg.ID, *stored.LastMessage)
}

func TestSendTeamMessage_BrokenSessionDoesNotStopFanOut(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()
	v := f.team(t, "alice", "bob", "carol")

	f.reg.Bind("alice", registrytest.Panicking())
	f.reg.Bind("bob", registrytest.Failing())
	carol := f.online("carol")
	origin := registrytest.NewSession()

	_, err := f.svc.SendTeamMessage(ctx, origin, "lead", send(v.ID.Hex(), "still here?"))
	req.NoError(err)
	req.Len(carol.Of(event.NewTeamMessage), 1)
	req.Len(origin.Of(event.SendTeamMessage), 1)
}

func TestSendTeamMessage_ConfirmsWhenNobodyOnline(t *testing.T) {
	f := setup(t)
	v := f.team(t, "alice")
	origin := registrytest.NewSession()

	_, err := f.svc.SendTeamMessage(context.Background(), origin, "alice", send(v.ID.Hex(), "hello?"))
	require.NoError(t, err)
	require.Len(t, origin.Of(event.SendTeamMessage), 1)
	require.Empty(t, origin.Of(event.NewTeamMessage))
}

func TestSendTeamMessage_Failures(t *testing.T) {
	f := setup(t)
	v := f.team(t, "alice")
	ctx := context.Background()

	bad := send(v.ID.Hex(), "")
	cases := []struct {
		name string
		from string
		req  event.SendTeamMessageRequest
		want error
	}{
		{"unknown sender", "ghost", send(v.ID.Hex(), "x"), errs.ErrInvalidParticipant},
		{"malformed team id", "alice", send("t1", "x"), errs.ErrTeamNotFound},
		{"unknown team", "alice", send(v.Leader.ID.Hex(), "x"), errs.ErrTeamNotFound},
		{"not a participant", "carol", send(v.ID.Hex(), "x"), errs.ErrNotParticipant},
		{"missing text", "alice", bad, errs.ErrInvalidMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SendTeamMessage(ctx, registrytest.NewSession(), tc.from, tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSendTeamMessage_PermissiveWithoutMembershipCheck(t *testing.T) {
	f := setup(t, WithMembershipCheck(false))
	v := f.team(t)
	_, err := f.svc.SendTeamMessage(context.Background(), registrytest.NewSession(), "carol", send(v.ID.Hex(), "drive-by"))
	require.NoError(t, err)
}

func TestFetchTeamHistory(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	ctx := context.Background()
	v := f.team(t, "alice")

	for _, body := range []string{"one", "two"} {
		_, err := f.svc.SendTeamMessage(ctx, registrytest.NewSession(), "alice", send(v.ID.Hex(), body))
		req.NoError(err)
	}

	h, err := f.svc.FetchTeamHistory(ctx, "lead", event.GetTeamMessagesRequest{TeamID: v.ID.Hex()})
	req.NoError(err)
	req.Len(h.Messages, 2)
	req.Equal("one", h.Messages[0].Text)
	req.Equal("two", h.Messages[1].Text)
	req.Equal("alice", h.Messages[0].From.AuthID)
	req.Equal("Core Team", h.TeamInfo.TeamName)
	req.Equal("open-sesame", h.TeamInfo.Passphrase)
	req.Len(h.TeamInfo.Participants, 2)

	_, err = f.svc.FetchTeamHistory(ctx, "carol", event.GetTeamMessagesRequest{TeamID: v.ID.Hex()})
	req.ErrorIs(err, errs.ErrNotParticipant)

	_, err = f.svc.FetchTeamHistory(ctx, "lead", event.GetTeamMessagesRequest{TeamID: "nope"})
	req.ErrorIs(err, errs.ErrTeamNotFound)
}
