// Package notify delivers invitation notices once a membership mutation has
// been admitted and committed.
package notify

import (
	"context"
	"log/slog"

	"github.com/aman-churiwal/projectguard/internal/security"
)

// Invitation is the payload sent for a new project member
type Invitation struct {
	ProjectID    string `json:"project_id"`
	InviterID    string `json:"inviter_id"`
	InviteeID    string `json:"invitee_id"`
	InviteeEmail string `json:"invitee_email"`
	Role         string `json:"role"`
}

type Notifier interface {
	NotifyInvitation(ctx context.Context, inv Invitation) error
}

// LogNotifier records invitations in the operational log when no delivery endpoint is configured
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyInvitation(ctx context.Context, inv Invitation) error {
	n.logger.InfoContext(ctx, "invitation issued",
		"project_id", inv.ProjectID,
		"inviter_id", inv.InviterID,
		"invitee", security.HashForLogging(inv.InviteeEmail),
		"role", inv.Role,
	)
	return nil
}
