package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aman-churiwal/projectguard/internal/models"
	"github.com/aman-churiwal/projectguard/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
	err   error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*models.User{}}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	r.users[user.ID.String()] = user
	return nil
}

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.users[id], nil
}

// addUser stores a user with a precomputed hash
func (r *fakeUserRepo) addUser(email string) *models.User {
	u := &models.User{ID: uuid.New(), Email: email, PasswordHash: "x"}
	r.users[u.ID.String()] = u
	return u
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []models.AuditLog
	nextID  int64
	clock   time.Time
	err     error
}

func (r *fakeAuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.nextID++
	entry.ID = r.nextID
	if entry.CreatedAt.IsZero() {
		// Identical timestamps exercise the id tie-break
		entry.CreatedAt = r.clock
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAuditRepo) Find(ctx context.Context, f repository.AuditFilter) ([]models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	var out []models.AuditLog
	for _, e := range r.entries {
		if e.ProjectID != f.ProjectID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.PerformedBy != "" && e.PerformedBy != f.PerformedBy {
			continue
		}
		if f.TargetEmail != "" && !strings.EqualFold(e.TargetUserEmail, f.TargetEmail) {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type fakeMemberRepo struct {
	mu      sync.Mutex
	members map[string]*models.ProjectMember // projectID|userID
	err     error
}

func newFakeMemberRepo() *fakeMemberRepo {
	return &fakeMemberRepo{members: map[string]*models.ProjectMember{}}
}

func memberKey(projectID, userID string) string {
	return projectID + "|" + userID
}

func (r *fakeMemberRepo) Create(ctx context.Context, m *models.ProjectMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	cp := *m
	r.members[memberKey(m.ProjectID, m.UserID)] = &cp
	return nil
}

func (r *fakeMemberRepo) Find(ctx context.Context, projectID, userID string) (*models.ProjectMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	m, ok := r.members[memberKey(projectID, userID)]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMemberRepo) ListByProject(ctx context.Context, projectID string) ([]models.ProjectMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []models.ProjectMember
	for _, m := range r.members {
		if m.ProjectID == projectID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeMemberRepo) UpdateRole(ctx context.Context, projectID, userID, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	m, ok := r.members[memberKey(projectID, userID)]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.Role = role
	return nil
}

func (r *fakeMemberRepo) Delete(ctx context.Context, projectID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.members[memberKey(projectID, userID)]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.members, memberKey(projectID, userID))
	return nil
}

type fakeCredentialRepo struct {
	mu          sync.Mutex
	credentials map[string]*models.Credential
	touched     map[string]time.Time
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{
		credentials: map[string]*models.Credential{},
		touched:     map[string]time.Time{},
	}
}

func (r *fakeCredentialRepo) Create(ctx context.Context, c *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.UpdatedAt = time.Now()
	cp := *c
	r.credentials[c.ID.String()] = &cp
	return nil
}

func (r *fakeCredentialRepo) FindByID(ctx context.Context, userID, id string) (*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.credentials[id]
	if !ok || c.UserID != userID {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCredentialRepo) FindByName(ctx context.Context, userID, name string) (*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.credentials {
		if c.UserID == userID && c.Name == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeCredentialRepo) FindByService(ctx context.Context, userID, service string) (*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	service = strings.ToLower(service)
	var best *models.Credential
	for _, c := range r.credentials {
		if c.UserID != userID {
			continue
		}
		if strings.ToLower(c.Category) != service && !strings.Contains(strings.ToLower(c.Website), service) {
			continue
		}
		if best == nil || c.UpdatedAt.After(best.UpdatedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r *fakeCredentialRepo) ListByUser(ctx context.Context, userID string) ([]models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Credential
	for _, c := range r.credentials {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeCredentialRepo) Update(ctx context.Context, userID, id string, updates map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.credentials[id]
	if !ok || c.UserID != userID {
		return gorm.ErrRecordNotFound
	}
	for k, v := range updates {
		s := v.(string)
		switch k {
		case "name":
			c.Name = s
		case "encrypted_value":
			c.EncryptedValue = s
		case "iv":
			c.IV = s
		case "auth_tag":
			c.AuthTag = s
		case "category":
			c.Category = s
		case "website":
			c.Website = s
		case "username":
			c.Username = s
		case "notes":
			c.Notes = s
		}
	}
	c.UpdatedAt = time.Now()
	return nil
}

func (r *fakeCredentialRepo) TouchLastAccessed(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched[id] = at
	if c, ok := r.credentials[id]; ok {
		c.LastAccessedAt = &at
	}
	return nil
}

func (r *fakeCredentialRepo) Delete(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.credentials[id]
	if !ok || c.UserID != userID {
		return gorm.ErrRecordNotFound
	}
	delete(r.credentials, id)
	return nil
}
