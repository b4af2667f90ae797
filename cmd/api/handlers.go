package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/PaulBabatuyi/collab-chat/internal/auth"
	"github.com/PaulBabatuyi/collab-chat/internal/controller"
	"github.com/PaulBabatuyi/collab-chat/internal/errs"
	"github.com/PaulBabatuyi/collab-chat/internal/event"
	"github.com/PaulBabatuyi/collab-chat/internal/team"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errSessionClosed = errors.New("session closed")

// Server implements the chat and team services on top of the lifecycle
// controller.
type Server struct {
	ctl    *controller.Controller
	teams  *team.Service
	logger *slog.Logger
}

// newServer returns a ready-to-use Server.
func newServer(ctl *controller.Controller, teams *team.Service, logger *slog.Logger) *Server {
	return &Server{ctl: ctl, teams: teams, logger: logger}
}

// streamSession adapts a Connect stream to registry.Session. gRPC forbids
// concurrent SendMsg calls on one stream, so writes are serialized.
type streamSession struct {
	id     string
	mu     sync.Mutex
	stream grpc.ServerStream
	closed atomic.Bool
}

func newStreamSession(stream grpc.ServerStream) *streamSession {
	return &streamSession{id: uuid.NewString(), stream: stream}
}

func (s *streamSession) ID() string { return s.id }

func (s *streamSession) Emit(e event.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return errSessionClosed
	}
	return s.stream.SendMsg(&e)
}

// close stops further writes without waiting for one in progress.
func (s *streamSession) close() { s.closed.Store(true) }

func identity(c *auth.Claims) controller.Identity {
	return controller.Identity{UserID: c.UserID(), Name: c.Name, Email: c.Email}
}

// Connect runs one client connection: every received frame is handed to the
// controller until the client hangs up.
func (s *Server) Connect(stream grpc.ServerStream) error {
	claims, ok := auth.FromContext(stream.Context())
	if !ok {
		return status.Errorf(codes.Unauthenticated, "missing auth claims")
	}

	sess := newStreamSession(stream)
	defer sess.close()

	conn, err := s.ctl.Connect(stream.Context(), identity(claims), sess)
	if errors.Is(err, controller.ErrNoIdentity) {
		return status.Errorf(codes.Unauthenticated, "missing user id")
	}
	if err != nil {
		s.logger.Error("connect failed", "user_id", claims.UserID(), "error", err)
		return errs.MapToGRPCError(err)
	}
	defer conn.Close()

	for {
		var env event.Envelope
		if err := stream.RecvMsg(&env); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		conn.Handle(env)
	}
}

func callerID(ctx context.Context) (string, error) {
	claims, ok := auth.FromContext(ctx)
	if !ok {
		return "", status.Errorf(codes.Unauthenticated, "missing auth claims")
	}
	return claims.UserID(), nil
}

// CreateTeam creates a team led by the caller.
func (s *Server) CreateTeam(ctx context.Context, req *CreateTeamRequest) (*TeamResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.teams.CreateTeam(ctx, userID, team.CreateRequest{TeamName: req.TeamName, Passphrase: req.Passphrase})
	if err != nil {
		return nil, errs.MapToGRPCError(err)
	}
	return &TeamResponse{Team: t}, nil
}

// JoinTeam adds the caller to the team holding the passphrase.
func (s *Server) JoinTeam(ctx context.Context, req *JoinTeamRequest) (*TeamResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.teams.JoinTeam(ctx, userID, req.Passphrase)
	if err != nil {
		return nil, errs.MapToGRPCError(err)
	}
	return &TeamResponse{Team: t}, nil
}

// ListTeams returns the caller's teams.
func (s *Server) ListTeams(ctx context.Context, _ *ListTeamsRequest) (*ListTeamsResponse, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	teams, err := s.teams.ListTeams(ctx, userID)
	if err != nil {
		return nil, errs.MapToGRPCError(err)
	}
	return &ListTeamsResponse{Teams: teams}, nil
}
