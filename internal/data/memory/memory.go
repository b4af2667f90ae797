// Package memory is an in-process implementation of the persistence gateway.
// It keeps the same contract as the Mongo stores (errors, ordering, joins) and
// backs the tests and STORE_DRIVER=memory runs.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/PaulBabatuyi/collab-chat/internal/data"
	"github.com/PaulBabatuyi/collab-chat/internal/errs"
	"github.com/PaulBabatuyi/collab-chat/internal/normalize"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Store holds every entity family in maps guarded by one lock.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	unavailable bool

	users        map[bson.ObjectID]*data.User
	usersByAuth  map[string]bson.ObjectID
	chats        map[bson.ObjectID]*data.Chat
	chatsByPair  map[string]bson.ObjectID
	messages     []*data.Message
	teams        map[bson.ObjectID]*data.Team
	teamsByPass  map[string]bson.ObjectID
	teamMessages []*data.TeamMessage
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, letting tests control creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:          time.Now,
		users:        make(map[bson.ObjectID]*data.User),
		usersByAuth:  make(map[string]bson.ObjectID),
		chats:        make(map[bson.ObjectID]*data.Chat),
		chatsByPair:  make(map[string]bson.ObjectID),
		teams:        make(map[bson.ObjectID]*data.Team),
		teamsByPass:  make(map[string]bson.ObjectID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetUnavailable makes every subsequent call fail with errs.ErrStoreUnavailable.
func (s *Store) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Store) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, errs.ErrStoreUnavailable, err)
	}
	if s.unavailable {
		return fmt.Errorf("%s: %w", op, errs.ErrStoreUnavailable)
	}
	return nil
}

func notFound(op string) error { return fmt.Errorf("%s: %w", op, errs.ErrNotFound) }

// UserByAuthID finds a user by logical identity.
func (s *Store) UserByAuthID(ctx context.Context, authID string) (*data.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "find user"); err != nil {
		return nil, err
	}
	id, ok := s.usersByAuth[authID]
	if !ok {
		return nil, notFound("find user")
	}
	u := *s.users[id]
	return &u, nil
}

// EnsureUser creates the user for authID when missing.
func (s *Store) EnsureUser(ctx context.Context, authID, name, email string) (*data.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "ensure user"); err != nil {
		return nil, err
	}
	if id, ok := s.usersByAuth[authID]; ok {
		u := *s.users[id]
		return &u, nil
	}
	now := s.stamp()
	u := &data.User{
		ID:        bson.NewObjectID(),
		AuthID:    authID,
		Name:      name,
		Email:     normalize.Email(email),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[u.ID] = u
	s.usersByAuth[authID] = u.ID
	out := *u
	return &out, nil
}

func (s *Store) profile(id bson.ObjectID) data.Profile {
	if u, ok := s.users[id]; ok {
		return u.Profile()
	}
	return data.Profile{ID: id}
}

func (s *Store) profiles(ids []bson.ObjectID) []data.Profile {
	out := make([]data.Profile, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.profile(id))
	}
	return out
}

// FindChatBetween returns the chat for the unordered pair.
func (s *Store) FindChatBetween(ctx context.Context, a, b bson.ObjectID) (*data.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "find chat between"); err != nil {
		return nil, err
	}
	id, ok := s.chatsByPair[data.PairKey(a, b)]
	if !ok {
		return nil, notFound("find chat between")
	}
	return cloneChat(s.chats[id]), nil
}

// CreateChat creates a chat; an existing pair reports errs.ErrConflict.
func (s *Store) CreateChat(ctx context.Context, a, b bson.ObjectID) (*data.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "create chat"); err != nil {
		return nil, err
	}
	key := data.PairKey(a, b)
	if _, ok := s.chatsByPair[key]; ok {
		return nil, fmt.Errorf("create chat: %w", errs.ErrConflict)
	}
	now := s.stamp()
	c := &data.Chat{
		ID:           bson.NewObjectID(),
		Participants: []bson.ObjectID{a, b},
		PairKey:      key,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.chats[c.ID] = c
	s.chatsByPair[key] = c.ID
	return cloneChat(c), nil
}

// FindChat returns the chat by id.
func (s *Store) FindChat(ctx context.Context, id bson.ObjectID) (*data.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "find chat"); err != nil {
		return nil, err
	}
	c, ok := s.chats[id]
	if !ok {
		return nil, notFound("find chat")
	}
	return cloneChat(c), nil
}

// ChatView returns the chat with participants resolved.
func (s *Store) ChatView(ctx context.Context, id bson.ObjectID) (*data.ChatView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "chat view"); err != nil {
		return nil, err
	}
	c, ok := s.chats[id]
	if !ok {
		return nil, notFound("chat view")
	}
	v := s.chatView(c)
	return &v, nil
}

func (s *Store) chatView(c *data.Chat) data.ChatView {
	return data.ChatView{
		ID:           c.ID,
		Participants: s.profiles(c.Participants),
		LastMessage:  c.LastMessage,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// SetChatLastMessage moves the pointer forward to msg.
func (s *Store) SetChatLastMessage(ctx context.Context, chatID bson.ObjectID, msg *data.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "set last message"); err != nil {
		return err
	}
	c, ok := s.chats[chatID]
	if !ok {
		return notFound("set last message")
	}
	if c.LastMessageAt == nil || !msg.CreatedAt.Before(*c.LastMessageAt) {
		id, at := msg.ID, msg.CreatedAt
		c.LastMessage, c.LastMessageAt = &id, &at
		c.UpdatedAt = s.stamp()
	}
	return nil
}

// ListChatsFor returns the chats containing userID, most recently updated first.
func (s *Store) ListChatsFor(ctx context.Context, userID bson.ObjectID) ([]data.ChatView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "list chats"); err != nil {
		return nil, err
	}
	var out []data.ChatView
	for _, c := range s.chats {
		if c.HasParticipant(userID) {
			out = append(out, s.chatView(c))
		}
	}
	slices.SortFunc(out, func(a, b data.ChatView) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.Hex(), a.ID.Hex())
	})
	return out, nil
}

// CreateMessage appends an immutable message.
func (s *Store) CreateMessage(ctx context.Context, chatID, from bson.ObjectID, to *bson.ObjectID,
	typ data.MessageType, text, mediaURL string) (*data.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "create message"); err != nil {
		return nil, err
	}
	if _, ok := s.chats[chatID]; !ok {
		return nil, notFound("create message")
	}
	m := &data.Message{
		ID:        bson.NewObjectID(),
		ChatID:    chatID,
		From:      from,
		To:        to,
		Type:      typ,
		Text:      text,
		MediaURL:  mediaURL,
		CreatedAt: s.stamp(),
	}
	s.messages = append(s.messages, m)
	out := *m
	return &out, nil
}

// ListMessages returns the chat history ascending with participants joined.
func (s *Store) ListMessages(ctx context.Context, chatID bson.ObjectID, page data.Page) ([]data.MessageView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "list messages"); err != nil {
		return nil, err
	}
	var out []data.MessageView
	for _, m := range s.messages {
		if m.ChatID != chatID || (page.Before != nil && !page.Before.Admits(m.CreatedAt, m.ID)) {
			continue
		}
		v := data.MessageView{
			ID:        m.ID,
			ChatID:    m.ChatID,
			From:      s.profile(m.From),
			Type:      m.Type,
			Text:      m.Text,
			MediaURL:  m.MediaURL,
			CreatedAt: m.CreatedAt,
		}
		if m.To != nil {
			to := s.profile(*m.To)
			v.To = &to
		}
		out = append(out, v)
	}
	// stable: insertion order breaks timestamp ties
	slices.SortStableFunc(out, func(a, b data.MessageView) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return tail(out, page.Limit), nil
}

// CreateTeam creates a team; a passphrase in use reports errs.ErrConflict.
func (s *Store) CreateTeam(ctx context.Context, name, passphrase string, leader bson.ObjectID) (*data.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "create team"); err != nil {
		return nil, err
	}
	if _, ok := s.teamsByPass[passphrase]; ok {
		return nil, fmt.Errorf("create team: %w", errs.ErrConflict)
	}
	now := s.stamp()
	t := &data.Team{
		ID:           bson.NewObjectID(),
		TeamName:     name,
		Passphrase:   passphrase,
		Leader:       leader,
		Participants: []bson.ObjectID{leader},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.teams[t.ID] = t
	s.teamsByPass[passphrase] = t.ID
	return cloneTeam(t), nil
}

// FindTeam returns the team with its roster resolved.
func (s *Store) FindTeam(ctx context.Context, id bson.ObjectID) (*data.TeamView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "find team"); err != nil {
		return nil, err
	}
	t, ok := s.teams[id]
	if !ok {
		return nil, notFound("find team")
	}
	v := s.teamView(t)
	return &v, nil
}

// FindTeamByPassphrase returns the team joined by passphrase.
func (s *Store) FindTeamByPassphrase(ctx context.Context, passphrase string) (*data.TeamView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "find team by passphrase"); err != nil {
		return nil, err
	}
	id, ok := s.teamsByPass[passphrase]
	if !ok {
		return nil, notFound("find team by passphrase")
	}
	v := s.teamView(s.teams[id])
	return &v, nil
}

func (s *Store) teamView(t *data.Team) data.TeamView {
	return data.TeamView{
		ID:           t.ID,
		TeamName:     t.TeamName,
		Passphrase:   t.Passphrase,
		Leader:       s.profile(t.Leader),
		Participants: s.profiles(t.Participants),
		LastMessage:  t.LastMessage,
		CreatedAt:    t.CreatedAt,
	}
}

// AddParticipant adds userID; an existing member reports errs.ErrConflict.
func (s *Store) AddParticipant(ctx context.Context, teamID, userID bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "add participant"); err != nil {
		return err
	}
	t, ok := s.teams[teamID]
	if !ok {
		return notFound("add participant")
	}
	if slices.Contains(t.Participants, userID) {
		return fmt.Errorf("add participant: user already in the team: %w", errs.ErrConflict)
	}
	t.Participants = append(t.Participants, userID)
	t.UpdatedAt = s.stamp()
	return nil
}

// SetTeamLastMessage moves the pointer forward to msg.
func (s *Store) SetTeamLastMessage(ctx context.Context, teamID bson.ObjectID, msg *data.TeamMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "set last message"); err != nil {
		return err
	}
	t, ok := s.teams[teamID]
	if !ok {
		return notFound("set last message")
	}
	if t.LastMessageAt == nil || !msg.CreatedAt.Before(*t.LastMessageAt) {
		id, at := msg.ID, msg.CreatedAt
		t.LastMessage, t.LastMessageAt = &id, &at
		t.UpdatedAt = s.stamp()
	}
	return nil
}

// ListTeamsFor returns the teams userID belongs to, newest first.
func (s *Store) ListTeamsFor(ctx context.Context, userID bson.ObjectID) ([]data.TeamView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "list teams"); err != nil {
		return nil, err
	}
	var out []data.TeamView
	for _, t := range s.teams {
		if slices.Contains(t.Participants, userID) {
			out = append(out, s.teamView(t))
		}
	}
	slices.SortFunc(out, func(a, b data.TeamView) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.Hex(), a.ID.Hex())
	})
	return out, nil
}

// CreateTeamMessage appends an immutable team message.
func (s *Store) CreateTeamMessage(ctx context.Context, teamID, from bson.ObjectID,
	typ data.MessageType, text, mediaURL string) (*data.TeamMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "create team message"); err != nil {
		return nil, err
	}
	if _, ok := s.teams[teamID]; !ok {
		return nil, notFound("create team message")
	}
	m := &data.TeamMessage{
		ID:        bson.NewObjectID(),
		TeamID:    teamID,
		From:      from,
		Type:      typ,
		Text:      text,
		MediaURL:  mediaURL,
		CreatedAt: s.stamp(),
	}
	s.teamMessages = append(s.teamMessages, m)
	out := *m
	return &out, nil
}

// ListTeamMessages returns the team history ascending with the sender joined.
func (s *Store) ListTeamMessages(ctx context.Context, teamID bson.ObjectID, page data.Page) ([]data.TeamMessageView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "list team messages"); err != nil {
		return nil, err
	}
	var out []data.TeamMessageView
	for _, m := range s.teamMessages {
		if m.TeamID != teamID || (page.Before != nil && !page.Before.Admits(m.CreatedAt, m.ID)) {
			continue
		}
		out = append(out, data.TeamMessageView{
			ID:        m.ID,
			TeamID:    m.TeamID,
			From:      s.profile(m.From),
			Type:      m.Type,
			Text:      m.Text,
			MediaURL:  m.MediaURL,
			CreatedAt: m.CreatedAt,
		})
	}
	slices.SortStableFunc(out, func(a, b data.TeamMessageView) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return tail(out, page.Limit), nil
}

// tail keeps the newest limit entries of an ascending slice.
func tail[T any](s []T, limit int64) []T {
	if limit <= 0 || int64(len(s)) <= limit {
		return s
	}
	return s[int64(len(s))-limit:]
}

func cloneChat(c *data.Chat) *data.Chat {
	out := *c
	out.Participants = slices.Clone(c.Participants)
	return &out
}

func cloneTeam(t *data.Team) *data.Team {
	out := *t
	out.Participants = slices.Clone(t.Participants)
	return &out
}
