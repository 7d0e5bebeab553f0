package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aman-churiwal/projectguard/internal/metrics"
	"github.com/aman-churiwal/projectguard/internal/models"
	"github.com/aman-churiwal/projectguard/internal/repository"
	"github.com/aman-churiwal/projectguard/internal/security"
)

var ErrAuditProjectRequired = errors.New("audit query requires a project id")

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 500
)

type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	Find(ctx context.Context, filter repository.AuditFilter) ([]models.AuditLog, error)
}

// RequestMeta is the client information recorded with each audit entry
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// AuditInput describes one membership mutation. Each entry carries the
// project, actor and target so a timeline can be rebuilt without the
// membership row.
type AuditInput struct {
	ProjectID   string
	ActorID     string
	TargetEmail string
	OldRole     string
	NewRole     string
	Meta        RequestMeta
}

// AuditService appends membership mutations to the audit log
type AuditService struct {
	repo    AuditRepository
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewAuditService(repo AuditRepository, logger *slog.Logger, m *metrics.Metrics) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &AuditService{repo: repo, logger: logger, metrics: m}
}

func (s *AuditService) LogInvitation(ctx context.Context, in AuditInput) error {
	return s.append(ctx, models.AuditActionInvite, in,
		nil,
		models.AuditValue{"role": in.NewRole},
	)
}

func (s *AuditService) LogRoleChange(ctx context.Context, in AuditInput) error {
	return s.append(ctx, models.AuditActionRoleChange, in,
		models.AuditValue{"role": in.OldRole},
		models.AuditValue{"role": in.NewRole},
	)
}

func (s *AuditService) LogRemoval(ctx context.Context, in AuditInput) error {
	return s.append(ctx, models.AuditActionRemove, in,
		models.AuditValue{"role": in.OldRole},
		nil,
	)
}

func (s *AuditService) append(ctx context.Context, action models.AuditAction, in AuditInput, oldValue, newValue models.AuditValue) error {
	entry := &models.AuditLog{
		ProjectID:       in.ProjectID,
		PerformedBy:     in.ActorID,
		TargetUserEmail: strings.TrimSpace(in.TargetEmail),
		Action:          action,
		OldValue:        oldValue,
		NewValue:        newValue,
		IPAddress:       in.Meta.IPAddress,
		UserAgent:       in.Meta.UserAgent,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to append audit entry",
			"action", action,
			"project_id", in.ProjectID,
			"actor_id", in.ActorID,
			"target", security.HashForLogging(in.TargetEmail),
			"error", err,
		)
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	s.metrics.RecordAudit(ctx, string(action))
	return nil
}

// GetLogs returns a project's entries most-recent-first
func (s *AuditService) GetLogs(ctx context.Context, filter repository.AuditFilter) ([]models.AuditLog, error) {
	if filter.ProjectID == "" {
		return nil, ErrAuditProjectRequired
	}

	if filter.Limit <= 0 {
		filter.Limit = defaultAuditLimit
	}
	if filter.Limit > maxAuditLimit {
		filter.Limit = maxAuditLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	logs, err := s.repo.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit logs: %w", err)
	}

	return logs, nil
}
