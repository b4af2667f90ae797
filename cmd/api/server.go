package main

import (
	"context"
	"encoding/json"

	"github.com/PaulBabatuyi/collab-chat/internal/data"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// Frames and unary messages travel as JSON. Clients select the codec with
// grpc.CallContentSubtype(jsonCodecName).
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const (
	connectMethod    = "/chat.v1.ChatService/Connect"
	createTeamMethod = "/chat.v1.TeamService/CreateTeam"
	joinTeamMethod   = "/chat.v1.TeamService/JoinTeam"
	listTeamsMethod  = "/chat.v1.TeamService/ListTeams"
)

// chatServiceServer carries the duplex event stream.
type chatServiceServer interface {
	Connect(stream grpc.ServerStream) error
}

// teamServiceServer carries the team management calls.
type teamServiceServer interface {
	CreateTeam(ctx context.Context, req *CreateTeamRequest) (*TeamResponse, error)
	JoinTeam(ctx context.Context, req *JoinTeamRequest) (*TeamResponse, error)
	ListTeams(ctx context.Context, req *ListTeamsRequest) (*ListTeamsResponse, error)
}

type CreateTeamRequest struct {
	TeamName   string `json:"teamName"`
	Passphrase string `json:"passphrase"`
}

type JoinTeamRequest struct {
	Passphrase string `json:"passphrase"`
}

type ListTeamsRequest struct{}

type TeamResponse struct {
	Team *data.TeamView `json:"team"`
}

type ListTeamsResponse struct {
	Teams []data.TeamView `json:"teams"`
}

var chatServiceDesc = grpc.ServiceDesc{
	ServiceName: "chat.v1.ChatService",
	HandlerType: (*chatServiceServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName: "Connect",
		Handler: func(srv any, stream grpc.ServerStream) error {
			return srv.(chatServiceServer).Connect(stream)
		},
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "chat/v1/chat.proto",
}

var teamServiceDesc = grpc.ServiceDesc{
	ServiceName: "chat.v1.TeamService",
	HandlerType: (*teamServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateTeam", Handler: unary(createTeamMethod, teamServiceServer.CreateTeam)},
		{MethodName: "JoinTeam", Handler: unary(joinTeamMethod, teamServiceServer.JoinTeam)},
		{MethodName: "ListTeams", Handler: unary(listTeamsMethod, teamServiceServer.ListTeams)},
	},
	Metadata: "chat/v1/chat.proto",
}

// unary adapts a typed team method to a grpc.MethodHandler.
func unary[Req, Resp any](fullMethod string, call func(teamServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(teamServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(teamServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// registerServices registers both services on s.
func registerServices(s *grpc.Server, srv *Server) {
	s.RegisterService(&chatServiceDesc, srv)
	s.RegisterService(&teamServiceDesc, srv)
}
