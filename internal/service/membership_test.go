package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aman-churiwal/projectguard/internal/models"
	"github.com/aman-churiwal/projectguard/internal/notify"
	"github.com/aman-churiwal/projectguard/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Invitation
	err  error
}

func (n *recordingNotifier) NotifyInvitation(ctx context.Context, inv notify.Invitation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, inv)
	return n.err
}

type membershipFixture struct {
	svc      *MembershipService
	members  *fakeMemberRepo
	users    *fakeUserRepo
	audit    *AuditService
	auditLog *fakeAuditRepo
	notifier *recordingNotifier

	owner     *models.User
	admin     *models.User
	viewer    *models.User
	outsider  *models.User
	projectID string
}

var testMeta = RequestMeta{IPAddress: "203.0.113.7", UserAgent: "membership-test"}

func newMembershipFixture(t *testing.T) *membershipFixture {
	t.Helper()
	f := &membershipFixture{
		members:  newFakeMemberRepo(),
		users:    newFakeUserRepo(),
		auditLog: &fakeAuditRepo{},
		notifier: &recordingNotifier{},
	}
	f.audit = NewAuditService(f.auditLog, nil, nil)
	f.svc = NewMembershipService(f.members, f.users, f.audit, f.notifier, nil)

	f.owner = f.users.addUser("owner@example.com")
	f.admin = f.users.addUser("admin@example.com")
	f.viewer = f.users.addUser("viewer@example.com")
	f.outsider = f.users.addUser("outsider@example.com")

	ctx := context.Background()
	project, err := f.svc.CreateProject(ctx, f.owner.ID.String())
	require.NoError(t, err)
	f.projectID = project.ProjectID

	_, err = f.svc.Invite(ctx, f.owner.ID.String(), f.projectID, f.admin.Email, models.RoleAdmin, testMeta)
	require.NoError(t, err)
	_, err = f.svc.Invite(ctx, f.owner.ID.String(), f.projectID, f.viewer.Email, models.RoleViewer, testMeta)
	require.NoError(t, err)

	return f
}

func (f *membershipFixture) logs(t *testing.T) []models.AuditLog {
	t.Helper()
	logs, err := f.audit.GetLogs(context.Background(), repository.AuditFilter{ProjectID: f.projectID})
	require.NoError(t, err)
	return logs
}

func TestMembershipService_CreateProject(t *testing.T) {
	f := newMembershipFixture(t)

	owner, err := f.members.Find(context.Background(), f.projectID, f.owner.ID.String())
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, models.RoleOwner, owner.Role)

	_, err = f.svc.CreateProject(context.Background(), "no-such-user")
	assert.ErrorIs(t, err, ErrNotPermitted)
}

func TestMembershipService_Invite(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	member, err := f.svc.Invite(ctx, f.admin.ID.String(), f.projectID, "  OUTSIDER@example.com ", models.RoleEditor, testMeta)
	require.NoError(t, err)
	assert.Equal(t, f.outsider.ID.String(), member.UserID)
	assert.Equal(t, models.RoleEditor, member.Role)
	assert.Equal(t, f.admin.ID.String(), member.InvitedBy)

	logs := f.logs(t)
	require.Len(t, logs, 3)
	assert.Equal(t, models.AuditActionInvite, logs[0].Action)
	assert.Equal(t, f.admin.ID.String(), logs[0].PerformedBy)
	assert.Equal(t, "outsider@example.com", logs[0].TargetUserEmail)
	assert.Equal(t, models.AuditValue{"role": models.RoleEditor}, logs[0].NewValue)
	assert.Equal(t, testMeta.IPAddress, logs[0].IPAddress)

	require.Len(t, f.notifier.sent, 3)
	last := f.notifier.sent[2]
	assert.Equal(t, f.projectID, last.ProjectID)
	assert.Equal(t, f.admin.ID.String(), last.InviterID)
	assert.Equal(t, f.outsider.ID.String(), last.InviteeID)
	assert.Equal(t, models.RoleEditor, last.Role)
}

func TestMembershipService_InviteRejections(t *testing.T) {
	tests := []struct {
		name    string
		actor   func(f *membershipFixture) string
		email   string
		role    string
		wantErr error
	}{
		{
			name:    "viewer cannot invite",
			actor:   func(f *membershipFixture) string { return f.viewer.ID.String() },
			email:   "outsider@example.com",
			role:    models.RoleViewer,
			wantErr: ErrNotPermitted,
		},
		{
			name:    "non member cannot invite",
			actor:   func(f *membershipFixture) string { return f.outsider.ID.String() },
			email:   "viewer@example.com",
			role:    models.RoleViewer,
			wantErr: ErrNotPermitted,
		},
		{
			name:    "unknown email",
			actor:   func(f *membershipFixture) string { return f.owner.ID.String() },
			email:   "ghost@example.com",
			role:    models.RoleViewer,
			wantErr: ErrTargetNotFound,
		},
		{
			name:    "already a member",
			actor:   func(f *membershipFixture) string { return f.owner.ID.String() },
			email:   "viewer@example.com",
			role:    models.RoleEditor,
			wantErr: ErrAlreadyMember,
		},
		{
			name:    "self invite",
			actor:   func(f *membershipFixture) string { return f.admin.ID.String() },
			email:   "admin@example.com",
			role:    models.RoleViewer,
			wantErr: ErrSelfInvite,
		},
		{
			name:    "owner role cannot be granted",
			actor:   func(f *membershipFixture) string { return f.owner.ID.String() },
			email:   "outsider@example.com",
			role:    models.RoleOwner,
			wantErr: ErrInvalidRole,
		},
		{
			name:    "unknown role",
			actor:   func(f *membershipFixture) string { return f.owner.ID.String() },
			email:   "outsider@example.com",
			role:    "superuser",
			wantErr: ErrInvalidRole,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMembershipFixture(t)

			_, err := f.svc.Invite(context.Background(), tt.actor(f), f.projectID, tt.email, tt.role, testMeta)
			assert.ErrorIs(t, err, tt.wantErr)

			// Failed attempts leave no audit trail and send nothing
			assert.Len(t, f.logs(t), 2)
			assert.Len(t, f.notifier.sent, 2)
		})
	}
}

func TestMembershipService_UpdateRole(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	member, err := f.svc.UpdateRole(ctx, f.admin.ID.String(), f.projectID, f.viewer.ID.String(), models.RoleEditor, testMeta)
	require.NoError(t, err)
	assert.Equal(t, models.RoleEditor, member.Role)

	stored, err := f.members.Find(ctx, f.projectID, f.viewer.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.RoleEditor, stored.Role)

	logs := f.logs(t)
	require.Len(t, logs, 3)
	assert.Equal(t, models.AuditActionRoleChange, logs[0].Action)
	assert.Equal(t, models.AuditValue{"role": models.RoleViewer}, logs[0].OldValue)
	assert.Equal(t, models.AuditValue{"role": models.RoleEditor}, logs[0].NewValue)

	// Same role is a no-op and is not audited
	_, err = f.svc.UpdateRole(ctx, f.admin.ID.String(), f.projectID, f.viewer.ID.String(), models.RoleEditor, testMeta)
	require.NoError(t, err)
	assert.Len(t, f.logs(t), 3)
}

func TestMembershipService_UpdateRoleRejections(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateRole(ctx, f.viewer.ID.String(), f.projectID, f.admin.ID.String(), models.RoleViewer, testMeta)
	assert.ErrorIs(t, err, ErrNotPermitted)

	_, err = f.svc.UpdateRole(ctx, f.admin.ID.String(), f.projectID, f.owner.ID.String(), models.RoleViewer, testMeta)
	assert.ErrorIs(t, err, ErrOwnerImmutable)

	_, err = f.svc.UpdateRole(ctx, f.admin.ID.String(), f.projectID, f.outsider.ID.String(), models.RoleViewer, testMeta)
	assert.ErrorIs(t, err, ErrMemberNotFound)

	_, err = f.svc.UpdateRole(ctx, f.admin.ID.String(), f.projectID, f.viewer.ID.String(), models.RoleOwner, testMeta)
	assert.ErrorIs(t, err, ErrInvalidRole)

	assert.Len(t, f.logs(t), 2)
}

func TestMembershipService_Remove(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Remove(ctx, f.admin.ID.String(), f.projectID, f.viewer.ID.String(), testMeta))

	gone, err := f.members.Find(ctx, f.projectID, f.viewer.ID.String())
	require.NoError(t, err)
	assert.Nil(t, gone)

	logs := f.logs(t)
	require.Len(t, logs, 3)
	assert.Equal(t, models.AuditActionRemove, logs[0].Action)
	assert.Equal(t, "viewer@example.com", logs[0].TargetUserEmail)
	assert.Equal(t, models.AuditValue{"role": models.RoleViewer}, logs[0].OldValue)
	assert.Nil(t, logs[0].NewValue)

	assert.ErrorIs(t, f.svc.Remove(ctx, f.admin.ID.String(), f.projectID, f.viewer.ID.String(), testMeta), ErrMemberNotFound)
	assert.ErrorIs(t, f.svc.Remove(ctx, f.admin.ID.String(), f.projectID, f.owner.ID.String(), testMeta), ErrOwnerImmutable)
}

func TestMembershipService_RemovedAdminLosesAccess(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Remove(ctx, f.owner.ID.String(), f.projectID, f.admin.ID.String(), testMeta))

	_, err := f.svc.Invite(ctx, f.admin.ID.String(), f.projectID, f.outsider.Email, models.RoleViewer, testMeta)
	assert.ErrorIs(t, err, ErrNotPermitted)
}

func TestMembershipService_AuditAndNotifyFailuresDoNotFailMutation(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	f.auditLog.err = errors.New("audit store unavailable")
	f.notifier.err = errors.New("webhook down")

	member, err := f.svc.Invite(ctx, f.owner.ID.String(), f.projectID, f.outsider.Email, models.RoleViewer, testMeta)
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, member.Role)

	stored, err := f.members.Find(ctx, f.projectID, f.outsider.ID.String())
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestMembershipService_Authorize(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	_, err := f.svc.Authorize(ctx, f.owner.ID.String(), f.projectID)
	assert.NoError(t, err)
	_, err = f.svc.Authorize(ctx, f.admin.ID.String(), f.projectID)
	assert.NoError(t, err)
	_, err = f.svc.Authorize(ctx, f.viewer.ID.String(), f.projectID)
	assert.ErrorIs(t, err, ErrNotPermitted)
	_, err = f.svc.Authorize(ctx, f.owner.ID.String(), "another-project")
	assert.ErrorIs(t, err, ErrNotPermitted)
}

func TestMembershipService_ListMembers(t *testing.T) {
	f := newMembershipFixture(t)
	ctx := context.Background()

	members, err := f.svc.ListMembers(ctx, f.viewer.ID.String(), f.projectID)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	_, err = f.svc.ListMembers(ctx, f.outsider.ID.String(), f.projectID)
	assert.ErrorIs(t, err, ErrNotPermitted)

	f.members.err = errors.New("connection reset")
	_, err = f.svc.ListMembers(ctx, f.owner.ID.String(), f.projectID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotPermitted)
}

func TestMembershipService_RepositoryErrorsAreWrapped(t *testing.T) {
	f := newMembershipFixture(t)
	f.members.err = errors.New("connection reset")

	_, err := f.svc.Invite(context.Background(), f.owner.ID.String(), f.projectID, f.outsider.Email, models.RoleViewer, testMeta)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotPermitted)
}
