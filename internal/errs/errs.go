// Package errs holds the error taxonomy shared by the stores, the messaging
// services and the transports.
package errs

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// Store level.
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrStoreUnavailable = errors.New("store unavailable")

	// Service level.
	ErrInvalidParticipant = errors.New("invalid participant")
	ErrChatNotFound       = errors.New("chat not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrInvalidMessage     = errors.New("invalid message")
	ErrNotParticipant     = errors.New("not a participant")
	ErrInvalidTeam        = errors.New("invalid team")
)

// MapToGRPCError converts a service error into a gRPC status error.
// Errors outside the taxonomy become codes.Internal without leaking details.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && !isTaxonomy(err) {
		return err
	}
	switch {
	case errors.Is(err, ErrTeamNotFound), errors.Is(err, ErrChatNotFound), errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrInvalidParticipant):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrInvalidTeam):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrNotParticipant):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, ErrStoreUnavailable):
		return status.Error(codes.Unavailable, "store unavailable")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func isTaxonomy(err error) bool {
	for _, e := range []error{
		ErrNotFound, ErrConflict, ErrStoreUnavailable, ErrInvalidParticipant,
		ErrChatNotFound, ErrTeamNotFound, ErrInvalidMessage, ErrNotParticipant, ErrInvalidTeam,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
