package controller

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/PaulBabatuyi/collab-chat/internal/chat"
	"github.com/PaulBabatuyi/collab-chat/internal/data/memory"
	"github.com/PaulBabatuyi/collab-chat/internal/event"
	"github.com/PaulBabatuyi/collab-chat/internal/registry"
	"github.com/PaulBabatuyi/collab-chat/internal/registry/registrytest"
	"github.com/PaulBabatuyi/collab-chat/internal/team"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *memory.Store
	reg   *registry.Registry
	ctl   *Controller
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	reg := registry.New(logger)
	ctl := New(reg, chat.New(store, reg, logger), team.New(store, reg, logger), logger, opts...)
	return &fixture{store: store, reg: reg, ctl: ctl}
}

func (f *fixture) user(t *testing.T, id string) {
	t.Helper()
	_, err := f.store.EnsureUser(context.Background(), id, id, id+"@example.com")
	require.NoError(t, err)
}

func (f *fixture) connect(t *testing.T, id string) (*Conn, *registrytest.Session) {
	t.Helper()
	s := registrytest.NewSession()
	cn, err := f.ctl.Connect(context.Background(), Identity{UserID: id}, s)
	require.NoError(t, err)
	return cn, s
}

func frame(t *testing.T, kind event.Kind, ack string, payload any) event.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return event.Envelope{Event: kind, Ack: ack, Payload: raw}
}

func TestConnect_WithoutIdentity(t *testing.T) {
	f := setup(t)
	_, err := f.ctl.Connect(context.Background(), Identity{}, registrytest.NewSession())
	require.ErrorIs(t, err, ErrNoIdentity)
	require.Zero(t, f.reg.Count())
}

func TestConnect_BindsAndCloseUnbinds(t *testing.T) {
	f := setup(t)
	cn, s := f.connect(t, "u1")

	got, ok := f.reg.Lookup("u1")
	require.True(t, ok)
	require.Equal(t, s.ID(), got.ID())

	cn.Close()
	cn.Close()
	_, ok = f.reg.Lookup("u1")
	require.False(t, ok)
}

func TestConnect_Provisioning(t *testing.T) {
	f := setup(t)
	f.ctl.users = f.store

	_, err := f.ctl.Connect(context.Background(), Identity{UserID: "kp_new", Name: "New", Email: "NEW@example.com"}, registrytest.NewSession())
	require.NoError(t, err)

	u, err := f.store.UserByAuthID(context.Background(), "kp_new")
	require.NoError(t, err)
	require.Equal(t, "new@example.com", u.Email)
}

func TestDirectMessageScenario(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	f.user(t, "u1")
	f.user(t, "u2")

	c1, s1 := f.connect(t, "u1")
	c2, s2 := f.connect(t, "u2")

	c1.Handle(frame(t, event.CreateChat, "7", event.CreateChatRequest{TargetID: "u2"}))
	c1.Close()
	acks := s1.Of(event.Ack)
	req.Len(acks, 1)
	req.Equal("7", acks[0].Ack)
	created := registrytest.Decode[event.CreateChatAck](acks[0])
	req.Equal("Chat created successfully!", created.Message)
	req.NotNil(created.Chat)
	req.Len(s2.Of(event.UpdateChatList), 1)

	c1, s1 = f.connect(t, "u1")
	c1.Handle(frame(t, event.SendMessage, "", event.SendMessageRequest{
		ChatID:   created.Chat.ID.Hex(),
		ToUserID: "u2",
		Message:  event.MessageBody{Type: "Text", Text: "hi"},
	}))
	c1.Close()

	nm := s2.Of(event.NewMessage)
	req.Len(nm, 1)
	req.Equal("hi", registrytest.Decode[event.NewMessagePayload](nm[0]).Text)
	conf := s1.Of(event.SendMessage)
	req.Len(conf, 1)
	req.True(registrytest.Decode[event.SendMessageConfirmation](conf[0]).Success)

	c2.Handle(frame(t, event.GetMessages, "", event.GetMessagesRequest{ChatID: created.Chat.ID.Hex()}))
	c2.Handle(frame(t, event.GetDirectConversations, "9", nil))
	c2.Close()

	hist := s2.Of(event.GetMessages)
	req.Len(hist, 1)
	h := registrytest.Decode[event.ChatHistory](hist[0])
	req.Len(h.Messages, 1)
	req.Equal("u1", h.Messages[0].From.AuthID)
	req.Equal("u1", h.Participant.AuthID)

	convs := s2.Of(event.Ack)
	req.Len(convs, 1)
	req.Equal("9", convs[0].Ack)
	req.Len(registrytest.Decode[event.ConversationsAck](convs[0]).Chats, 1)
}

func TestErrorsBecomeErrorFrames(t *testing.T) {
	f := setup(t)
	f.user(t, "u1")
	cn, s := f.connect(t, "u1")

	cn.Handle(frame(t, event.SendMessage, "", event.SendMessageRequest{ChatID: "c1", ToUserID: "ghost", Message: event.MessageBody{Type: "Text", Text: "hi"}}))
	cn.Close()

	errsSeen := s.Of(event.Error)
	require.Len(t, errsSeen, 1)
	require.Equal(t, "Invalid sender or recipient.", registrytest.Decode[event.ErrorPayload](errsSeen[0]).Message)
}

func TestErrorTexts(t *testing.T) {
	f := setup(t)
	f.user(t, "u1")
	f.user(t, "u2")

	cases := []struct {
		name string
		in   event.Envelope
		want string
	}{
		{"unknown chat", frame(t, event.SendMessage, "", event.SendMessageRequest{ChatID: "c1", ToUserID: "u2", Message: event.MessageBody{Type: "Text", Text: "hi"}}), "Chat not found."},
		{"malformed frame", event.Envelope{Event: event.SendMessage, Payload: json.RawMessage(`{"chatId":`)}, "Invalid message structure."},
		{"unknown team", frame(t, event.SendTeamMessage, "", event.SendTeamMessageRequest{TeamID: "t1", Message: event.TeamMessageBody{MessageBody: event.MessageBody{Type: "Text", Text: "hi"}}}), "Team not found."},
		{"team history", frame(t, event.GetTeamMessages, "", event.GetTeamMessagesRequest{TeamID: "t1"}), "Team not found."},
		{"unknown event", event.Envelope{Event: "drop_tables"}, "Unknown event."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cn, s := f.connect(t, "u1")
			cn.Handle(tc.in)
			cn.Close()
			got := s.Of(event.Error)
			require.Len(t, got, 1)
			require.Equal(t, tc.want, registrytest.Decode[event.ErrorPayload](got[0]).Message)
		})
	}
}

func TestCreateChatAckError(t *testing.T) {
	f := setup(t)
	f.user(t, "u1")
	cn, s := f.connect(t, "u1")

	cn.Handle(frame(t, event.CreateChat, "1", event.CreateChatRequest{TargetID: "ghost"}))
	cn.Close()

	acks := s.Of(event.Ack)
	require.Len(t, acks, 1)
	require.Equal(t, "One or both users not found.", registrytest.Decode[event.CreateChatAck](acks[0]).Error)
	require.Empty(t, s.Of(event.Error))
}

func TestTeamMessageThroughController(t *testing.T) {
	req := require.New(t)
	f := setup(t)
	f.user(t, "lead")
	f.user(t, "alice")

	svc := team.New(f.store, f.reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	v, err := svc.CreateTeam(context.Background(), "lead", team.CreateRequest{TeamName: "Core", Passphrase: "open-sesame"})
	req.NoError(err)
	_, err = svc.JoinTeam(context.Background(), "alice", "open-sesame")
	req.NoError(err)

	lead, ls := f.connect(t, "lead")
	alice, as := f.connect(t, "alice")

	lead.Handle(frame(t, event.SendTeamMessage, "", event.SendTeamMessageRequest{
		TeamID:  v.ID.Hex(),
		Message: event.TeamMessageBody{MessageBody: event.MessageBody{Type: "Text", Text: "morning"}},
	}))
	lead.Close()

	req.Len(ls.Of(event.NewTeamMessage), 1)
	req.Len(ls.Of(event.SendTeamMessage), 1)
	req.Len(as.Of(event.NewTeamMessage), 1)

	alice.Handle(frame(t, event.GetTeamMessages, "", event.GetTeamMessagesRequest{TeamID: v.ID.Hex()}))
	alice.Close()
	hist := as.Of(event.GetTeamMessages)
	req.Len(hist, 1)
	h := registrytest.Decode[event.TeamHistory](hist[0])
	req.Len(h.Messages, 1)
	req.Equal("Core", h.TeamInfo.TeamName)
}
