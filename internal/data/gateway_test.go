package data

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/PaulBabatuyi/collab-chat/internal/db"
	"github.com/PaulBabatuyi/collab-chat/internal/errs"
)

func setupGateway(t *testing.T) *Gateway {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	c, err := db.New(ctx, uri, "chat_db_data_test")
	if err != nil {
		t.Fatalf("db.New failed: %v", err)
	}
	t.Cleanup(func() {
		_ = c.UsersCollection().Database().Drop(context.Background())
		_ = c.Close(context.Background())
	})

	// ensure clean collections in case previous runs left data
	_ = c.UsersCollection().Database().Drop(ctx)
	if err := c.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes failed: %v", err)
	}
	return NewGateway(c)
}

func TestChatLifecycle(t *testing.T) {
	g := setupGateway(t)
	ctx := context.Background()

	alice, err := g.EnsureUser(ctx, "kp_alice", "Alice", "ALICE@example.com")
	if err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	if alice.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %s", alice.Email)
	}
	bob, err := g.EnsureUser(ctx, "kp_bob", "Bob", "bob@example.com")
	if err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}

	// EnsureUser is idempotent
	again, err := g.EnsureUser(ctx, "kp_alice", "Other", "other@example.com")
	if err != nil || again.ID != alice.ID || again.Name != "Alice" {
		t.Fatalf("EnsureUser should return the existing record: %+v %v", again, err)
	}

	if _, err := g.FindChatBetween(ctx, alice.ID, bob.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before creation, got %v", err)
	}

	chat, err := g.CreateChat(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("CreateChat failed: %v", err)
	}
	if _, err := g.CreateChat(ctx, bob.ID, alice.ID); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected ErrConflict for reversed pair, got %v", err)
	}

	found, err := g.FindChatBetween(ctx, bob.ID, alice.ID)
	if err != nil || found.ID != chat.ID {
		t.Fatalf("FindChatBetween returned %+v, %v", found, err)
	}

	m1, err := g.CreateMessage(ctx, chat.ID, alice.ID, &bob.ID, TypeText, "hi bob", "")
	if err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	m2, err := g.CreateMessage(ctx, chat.ID, bob.ID, &alice.ID, TypeText, "hello alice", "")
	if err != nil {
		t.Fatalf("CreateMessage 2 failed: %v", err)
	}

	// newer pointer first, then the stale one must not overwrite it
	if err := g.SetChatLastMessage(ctx, chat.ID, m2); err != nil {
		t.Fatalf("SetChatLastMessage failed: %v", err)
	}
	if err := g.SetChatLastMessage(ctx, chat.ID, m1); err != nil {
		t.Fatalf("SetChatLastMessage (stale) failed: %v", err)
	}
	stored, err := g.FindChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("FindChat failed: %v", err)
	}
	if stored.LastMessage == nil || *stored.LastMessage != m2.ID {
		t.Fatalf("last message pointer should stay on the newest message")
	}

	history, err := g.ListMessages(ctx, chat.ID, Page{})
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(history) != 2 || history[0].ID != m1.ID || history[1].ID != m2.ID {
		t.Fatalf("history not ascending: %+v", history)
	}
	if history[0].From.AuthID != "kp_alice" || history[0].To == nil || history[0].To.AuthID != "kp_bob" {
		t.Fatalf("history participants not joined: %+v", history[0])
	}

	latest, err := g.ListMessages(ctx, chat.ID, Page{Limit: 1})
	if err != nil || len(latest) != 1 || latest[0].ID != m2.ID {
		t.Fatalf("bounded page should keep the newest entry: %+v %v", latest, err)
	}

	chats, err := g.ListChatsFor(ctx, bob.ID)
	if err != nil || len(chats) != 1 || len(chats[0].Participants) != 2 {
		t.Fatalf("ListChatsFor returned %+v, %v", chats, err)
	}
}

func TestTeamLifecycle(t *testing.T) {
	g := setupGateway(t)
	ctx := context.Background()

	lead, _ := g.EnsureUser(ctx, "kp_lead", "Lead", "lead@example.com")
	member, _ := g.EnsureUser(ctx, "kp_member", "Member", "member@example.com")

	team, err := g.CreateTeam(ctx, "Core Team", "open-sesame", lead.ID)
	if err != nil {
		t.Fatalf("CreateTeam failed: %v", err)
	}
	if _, err := g.CreateTeam(ctx, "Other Team", "open-sesame", member.ID); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate passphrase, got %v", err)
	}

	if err := g.AddParticipant(ctx, team.ID, member.ID); err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}
	if err := g.AddParticipant(ctx, team.ID, member.ID); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate participant, got %v", err)
	}

	view, err := g.FindTeamByPassphrase(ctx, "open-sesame")
	if err != nil {
		t.Fatalf("FindTeamByPassphrase failed: %v", err)
	}
	if len(view.Participants) != 2 || view.Leader.AuthID != "kp_lead" {
		t.Fatalf("unexpected roster: %+v", view)
	}

	msg, err := g.CreateTeamMessage(ctx, team.ID, member.ID, TypeLink, "see this", "https://example.com")
	if err != nil {
		t.Fatalf("CreateTeamMessage failed: %v", err)
	}
	if err := g.SetTeamLastMessage(ctx, team.ID, msg); err != nil {
		t.Fatalf("SetTeamLastMessage failed: %v", err)
	}

	history, err := g.ListTeamMessages(ctx, team.ID, Page{})
	if err != nil || len(history) != 1 || history[0].From.AuthID != "kp_member" {
		t.Fatalf("ListTeamMessages returned %+v, %v", history, err)
	}

	teams, err := g.ListTeamsFor(ctx, member.ID)
	if err != nil || len(teams) != 1 {
		t.Fatalf("ListTeamsFor returned %+v, %v", teams, err)
	}
}
