package security

import "strings"

// SafeMessage is an externally visible error string from the closed catalog.
// Messages are never formatted with request data.
type SafeMessage string

// CatalogVersion is bumped whenever a message is added, removed or reworded
const CatalogVersion = 1

const (
	MsgInvitationFailed   SafeMessage = "Unable to send invitation. Please verify the email address and try again."
	MsgInvalidEmailFormat SafeMessage = "Please provide a valid email address."
	MsgUnauthorized       SafeMessage = "You do not have permission to perform this action."
	MsgRateLimited        SafeMessage = "Too many requests. Please try again later."
	MsgMemberUpdateFailed SafeMessage = "Unable to update member. Please try again."
	MsgMemberRemoveFailed SafeMessage = "Unable to remove member. Please try again."
)

// Operation is the category of a membership mutation
type Operation string

const (
	OpInvite Operation = "invite"
	OpUpdate Operation = "update"
	OpRemove Operation = "remove"
)

var operationMessages = map[Operation]SafeMessage{
	OpInvite: MsgInvitationFailed,
	OpUpdate: MsgMemberUpdateFailed,
	OpRemove: MsgMemberRemoveFailed,
}

// Sanitize returns the fixed message registered for op. Nothing from err
// (text, type, wrapped causes) reaches the output; callers log it themselves.
func Sanitize(err error, op Operation) SafeMessage {
	_ = err

	if msg, ok := operationMessages[op]; ok {
		return msg
	}
	return MsgUnauthorized
}

// ValidationMessage returns the message for a request field that failed
// syntax validation. Only email syntax has its own message.
func ValidationMessage(field string) SafeMessage {
	if strings.EqualFold(field, "email") {
		return MsgInvalidEmailFormat
	}
	return MsgInvitationFailed
}

// Catalog returns every message keyed by its catalog name
func Catalog() map[string]SafeMessage {
	return map[string]SafeMessage{
		"invitation-failed":    MsgInvitationFailed,
		"invalid-email-format": MsgInvalidEmailFormat,
		"unauthorized":         MsgUnauthorized,
		"rate-limited":         MsgRateLimited,
		"member-update-failed": MsgMemberUpdateFailed,
		"member-remove-failed": MsgMemberRemoveFailed,
	}
}
