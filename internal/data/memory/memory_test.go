package memory

import (
	"context"
	"testing"
	"time"

	"github.com/PaulBabatuyi/collab-chat/internal/data"
	"github.com/PaulBabatuyi/collab-chat/internal/errs"

	"github.com/stretchr/testify/require"
)

// stepClock advances one second on every call.
func stepClock() func() time.Time {
	t := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestChatPairIsUnordered(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := New()

	a, err := s.EnsureUser(ctx, "kp_a", "A", "a@example.com")
	req.NoError(err)
	b, err := s.EnsureUser(ctx, "kp_b", "B", "b@example.com")
	req.NoError(err)

	chat, err := s.CreateChat(ctx, a.ID, b.ID)
	req.NoError(err)

	_, err = s.CreateChat(ctx, b.ID, a.ID)
	req.ErrorIs(err, errs.ErrConflict)

	found, err := s.FindChatBetween(ctx, b.ID, a.ID)
	req.NoError(err)
	req.Equal(chat.ID, found.ID)
}

func TestMessageHistoryOrderAndPaging(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := New(WithClock(stepClock()))

	a, _ := s.EnsureUser(ctx, "kp_a", "A", "a@example.com")
	b, _ := s.EnsureUser(ctx, "kp_b", "B", "b@example.com")
	chat, err := s.CreateChat(ctx, a.ID, b.ID)
	req.NoError(err)

	m1, err := s.CreateMessage(ctx, chat.ID, a.ID, &b.ID, data.TypeText, "one", "")
	req.NoError(err)
	m2, err := s.CreateMessage(ctx, chat.ID, b.ID, &a.ID, data.TypeText, "two", "")
	req.NoError(err)
	m3, err := s.CreateMessage(ctx, chat.ID, a.ID, &b.ID, data.TypeMedia, "three", "https://cdn.example.com/x.png")
	req.NoError(err)

	all, err := s.ListMessages(ctx, chat.ID, data.Page{})
	req.NoError(err)
	req.Len(all, 3)
	req.Equal(m1.ID, all[0].ID)
	req.Equal(m2.ID, all[1].ID)
	req.Equal(m3.ID, all[2].ID)
	req.Equal("kp_a", all[0].From.AuthID)
	req.Equal("kp_b", all[0].To.AuthID)

	page, err := s.ListMessages(ctx, chat.ID, data.Page{
		Limit:  1,
		Before: &data.Cursor{CreatedAt: m3.CreatedAt, ID: m3.ID},
	})
	req.NoError(err)
	req.Len(page, 1)
	req.Equal(m2.ID, page[0].ID)
}

func TestLastMessagePointerOnlyMovesForward(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := New(WithClock(stepClock()))

	a, _ := s.EnsureUser(ctx, "kp_a", "A", "a@example.com")
	b, _ := s.EnsureUser(ctx, "kp_b", "B", "b@example.com")
	chat, _ := s.CreateChat(ctx, a.ID, b.ID)

	older, _ := s.CreateMessage(ctx, chat.ID, a.ID, &b.ID, data.TypeText, "older", "")
	newer, _ := s.CreateMessage(ctx, chat.ID, b.ID, &a.ID, data.TypeText, "newer", "")

	req.NoError(s.SetChatLastMessage(ctx, chat.ID, newer))
	req.NoError(s.SetChatLastMessage(ctx, chat.ID, older))

	stored, err := s.FindChat(ctx, chat.ID)
	req.NoError(err)
	req.Equal(newer.ID, *stored.LastMessage)

	err = s.SetChatLastMessage(ctx, newer.ID, newer)
	req.ErrorIs(err, errs.ErrNotFound)
}

func TestTeamMembership(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := New()

	lead, _ := s.EnsureUser(ctx, "kp_lead", "Lead", "lead@example.com")
	member, _ := s.EnsureUser(ctx, "kp_member", "Member", "member@example.com")

	team, err := s.CreateTeam(ctx, "Core", "open-sesame", lead.ID)
	req.NoError(err)
	_, err = s.CreateTeam(ctx, "Other", "open-sesame", member.ID)
	req.ErrorIs(err, errs.ErrConflict)

	req.NoError(s.AddParticipant(ctx, team.ID, member.ID))
	req.ErrorIs(s.AddParticipant(ctx, team.ID, member.ID), errs.ErrConflict)
	req.ErrorIs(s.AddParticipant(ctx, member.ID, member.ID), errs.ErrNotFound)

	view, err := s.FindTeamByPassphrase(ctx, "open-sesame")
	req.NoError(err)
	req.Len(view.Participants, 2)
	req.True(view.HasParticipant("kp_member"))
	req.Equal("kp_lead", view.Leader.AuthID)

	teams, err := s.ListTeamsFor(ctx, member.ID)
	req.NoError(err)
	req.Len(teams, 1)
}

func TestUnavailable(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := New()
	s.SetUnavailable(true)

	_, err := s.UserByAuthID(ctx, "kp_a")
	req.ErrorIs(err, errs.ErrStoreUnavailable)

	s.SetUnavailable(false)
	_, err = s.UserByAuthID(ctx, "kp_a")
	req.ErrorIs(err, errs.ErrNotFound)
}
