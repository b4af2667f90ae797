package controller

import (
	"errors"

	"github.com/PaulBabatuyi/collab-chat/internal/errs"
	"github.com/PaulBabatuyi/collab-chat/internal/event"
)

// describe turns a handler error into the text sent to the client. Clients
// only ever see these strings, never the wrapped error.
func describe(kind event.Kind, err error) string {
	is := func(target error) bool { return errors.Is(err, target) }

	switch kind {
	case event.SendMessage:
		switch {
		case is(errs.ErrInvalidParticipant):
			return "Invalid sender or recipient."
		case is(errs.ErrChatNotFound):
			return "Chat not found."
		case is(errs.ErrInvalidMessage):
			return "Invalid message structure."
		case is(errs.ErrNotParticipant):
			return "You are not a participant of this chat."
		}
		return "Failed to send the message."

	case event.GetMessages:
		switch {
		case is(errs.ErrChatNotFound):
			return "Chat not found."
		case is(errs.ErrNotParticipant):
			return "You are not a participant of this chat."
		}
		return "Failed to fetch messages."

	case event.CreateChat:
		if is(errs.ErrInvalidParticipant) {
			return "One or both users not found."
		}
		if is(errs.ErrInvalidMessage) {
			return "Invalid request."
		}
		return "Failed to create chat."

	case event.GetDirectConversations:
		return "Failed to fetch conversations."

	case event.Typing:
		return "Invalid typing event."

	case event.SendTeamMessage:
		switch {
		case is(errs.ErrInvalidParticipant):
			return "Invalid sender."
		case is(errs.ErrTeamNotFound):
			return "Team not found."
		case is(errs.ErrInvalidMessage):
			return "Invalid message structure."
		case is(errs.ErrNotParticipant):
			return "You are not a member of this team."
		}
		return "Failed to send the team message."

	case event.GetTeamMessages:
		switch {
		case is(errs.ErrTeamNotFound):
			return "Team not found."
		case is(errs.ErrNotParticipant):
			return "You are not a member of this team."
		}
		return "Failed to fetch team messages."
	}
	return "Unknown event."
}
