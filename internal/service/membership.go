package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aman-churiwal/projectguard/internal/models"
	"github.com/aman-churiwal/projectguard/internal/notify"
	"github.com/aman-churiwal/projectguard/internal/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Membership failures. Handlers collapse all of these into one sanitized
// message per operation; they exist for the operational log and tests.
var (
	ErrNotPermitted   = errors.New("actor is not permitted to manage members")
	ErrTargetNotFound = errors.New("no account for target email")
	ErrAlreadyMember  = errors.New("target is already a member")
	ErrSelfInvite     = errors.New("actor cannot invite themselves")
	ErrOwnerImmutable = errors.New("project owner cannot be changed or removed")
	ErrMemberNotFound = errors.New("member not found")
	ErrInvalidRole    = errors.New("role cannot be assigned")
)

type MemberRepository interface {
	Create(ctx context.Context, member *models.ProjectMember) error
	Find(ctx context.Context, projectID, userID string) (*models.ProjectMember, error)
	ListByProject(ctx context.Context, projectID string) ([]models.ProjectMember, error)
	UpdateRole(ctx context.Context, projectID, userID, role string) error
	Delete(ctx context.Context, projectID, userID string) error
}

type Auditor interface {
	LogInvitation(ctx context.Context, in AuditInput) error
	LogRoleChange(ctx context.Context, in AuditInput) error
	LogRemoval(ctx context.Context, in AuditInput) error
}

type MembershipService struct {
	members  MemberRepository
	users    UserRepository
	audit    Auditor
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewMembershipService(members MemberRepository, users UserRepository, audit Auditor, notifier notify.Notifier, logger *slog.Logger) *MembershipService {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &MembershipService{
		members:  members,
		users:    users,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateProject allocates a project id with the caller as its owner
func (s *MembershipService) CreateProject(ctx context.Context, ownerID string) (*models.ProjectMember, error) {
	owner, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}
	if owner == nil {
		return nil, ErrNotPermitted
	}

	member := &models.ProjectMember{
		ProjectID: uuid.NewString(),
		UserID:    ownerID,
		Email:     owner.Email,
		Role:      models.RoleOwner,
	}

	if err := s.members.Create(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return member, nil
}

// Returns the actor's membership when it may manage members of the project
func (s *MembershipService) Authorize(ctx context.Context, actorID, projectID string) (*models.ProjectMember, error) {
	actor, err := s.members.Find(ctx, projectID, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load actor membership: %w", err)
	}
	if actor == nil || !models.CanManageMembers(actor.Role) {
		return nil, ErrNotPermitted
	}
	return actor, nil
}

// ListMembers returns the project's members to any member of the project
func (s *MembershipService) ListMembers(ctx context.Context, actorID, projectID string) ([]models.ProjectMember, error) {
	actor, err := s.members.Find(ctx, projectID, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load actor membership: %w", err)
	}
	if actor == nil {
		return nil, ErrNotPermitted
	}

	members, err := s.members.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	return members, nil
}

func (s *MembershipService) Invite(ctx context.Context, actorID, projectID, email, role string, meta RequestMeta) (*models.ProjectMember, error) {
	if !models.IsAssignableRole(role) {
		return nil, ErrInvalidRole
	}

	if _, err := s.Authorize(ctx, actorID, projectID); err != nil {
		return nil, err
	}

	email = strings.TrimSpace(email)
	target, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up target: %w", err)
	}
	if target == nil {
		return nil, ErrTargetNotFound
	}

	targetID := target.ID.String()
	if targetID == actorID {
		return nil, ErrSelfInvite
	}

	existing, err := s.members.Find(ctx, projectID, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyMember
	}

	member := &models.ProjectMember{
		ProjectID: projectID,
		UserID:    targetID,
		Email:     target.Email,
		Role:      role,
		InvitedBy: actorID,
	}
	if err := s.members.Create(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	s.record(ctx, s.audit.LogInvitation, AuditInput{
		ProjectID:   projectID,
		ActorID:     actorID,
		TargetEmail: target.Email,
		NewRole:     role,
		Meta:        meta,
	})

	if err := s.notifier.NotifyInvitation(ctx, notify.Invitation{
		ProjectID:    projectID,
		InviterID:    actorID,
		InviteeID:    targetID,
		InviteeEmail: target.Email,
		Role:         role,
	}); err != nil {
		s.logger.WarnContext(ctx, "invitation notification failed",
			"project_id", projectID,
			"invitee", security.HashForLogging(target.Email),
			"error", err,
		)
	}

	return member, nil
}

func (s *MembershipService) UpdateRole(ctx context.Context, actorID, projectID, targetUserID, role string, meta RequestMeta) (*models.ProjectMember, error) {
	if !models.IsAssignableRole(role) {
		return nil, ErrInvalidRole
	}

	target, err := s.mutableTarget(ctx, actorID, projectID, targetUserID)
	if err != nil {
		return nil, err
	}

	oldRole := target.Role
	if oldRole == role {
		return target, nil
	}

	if err := s.members.UpdateRole(ctx, projectID, targetUserID, role); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	target.Role = role

	s.record(ctx, s.audit.LogRoleChange, AuditInput{
		ProjectID:   projectID,
		ActorID:     actorID,
		TargetEmail: target.Email,
		OldRole:     oldRole,
		NewRole:     role,
		Meta:        meta,
	})

	return target, nil
}

func (s *MembershipService) Remove(ctx context.Context, actorID, projectID, targetUserID string, meta RequestMeta) error {
	target, err := s.mutableTarget(ctx, actorID, projectID, targetUserID)
	if err != nil {
		return err
	}

	if err := s.members.Delete(ctx, projectID, targetUserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("failed to remove member: %w", err)
	}

	s.record(ctx, s.audit.LogRemoval, AuditInput{
		ProjectID:   projectID,
		ActorID:     actorID,
		TargetEmail: target.Email,
		OldRole:     target.Role,
		Meta:        meta,
	})

	return nil
}

// Loads a member the actor may change. Owners are never mutable.
func (s *MembershipService) mutableTarget(ctx context.Context, actorID, projectID, targetUserID string) (*models.ProjectMember, error) {
	if _, err := s.Authorize(ctx, actorID, projectID); err != nil {
		return nil, err
	}

	target, err := s.members.Find(ctx, projectID, targetUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load member: %w", err)
	}
	if target == nil {
		return nil, ErrMemberNotFound
	}
	if target.Role == models.RoleOwner {
		return nil, ErrOwnerImmutable
	}

	return target, nil
}

// The mutation is already committed, so an audit failure is logged rather than returned
func (s *MembershipService) record(ctx context.Context, log func(context.Context, AuditInput) error, in AuditInput) {
	if err := log(ctx, in); err != nil {
		s.logger.ErrorContext(ctx, "membership change not audited",
			"project_id", in.ProjectID,
			"actor_id", in.ActorID,
			"error", err,
		)
	}
}
