package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/aman-churiwal/projectguard/internal/crypto"
	"github.com/aman-churiwal/projectguard/internal/metrics"
	"github.com/aman-churiwal/projectguard/internal/models"
	"gorm.io/gorm"
)

var (
	ErrCredentialNotFound     = errors.New("credential not found")
	ErrCredentialNameTaken    = errors.New("credential with this name already exists")
	ErrInvalidCredentialInput = errors.New("credential name and value are required")
	ErrReauthenticationFailed = errors.New("re-authentication failed")
)

type CredentialRepository interface {
	Create(ctx context.Context, credential *models.Credential) error
	FindByID(ctx context.Context, userID, id string) (*models.Credential, error)
	FindByName(ctx context.Context, userID, name string) (*models.Credential, error)
	FindByService(ctx context.Context, userID, service string) (*models.Credential, error)
	ListByUser(ctx context.Context, userID string) ([]models.Credential, error)
	Update(ctx context.Context, userID, id string, updates map[string]any) error
	TouchLastAccessed(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, userID, id string) error
}

// PasswordVerifier re-authenticates a user before a secret is revealed
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, userID, password string) error
}

type CredentialInput struct {
	Name     string
	Value    string
	Category string
	Website  string
	Username string
	Notes    string
}

// CredentialUpdate holds optional changes; nil fields are left untouched
type CredentialUpdate struct {
	Name     *string
	Value    *string
	Category *string
	Website  *string
	Username *string
	Notes    *string
}

// VaultService stores user secrets encrypted under per-user keys derived
// from the process master key.
type VaultService struct {
	repo      CredentialRepository
	verifier  PasswordVerifier
	masterKey []byte
	keys      sync.Map // userID -> derived key
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewVaultService(repo CredentialRepository, masterKey []byte, verifier PasswordVerifier, logger *slog.Logger, m *metrics.Metrics) *VaultService {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &VaultService{
		repo:      repo,
		verifier:  verifier,
		masterKey: masterKey,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

func (s *VaultService) userKey(ownerID string) []byte {
	if key, ok := s.keys.Load(ownerID); ok {
		return key.([]byte)
	}
	key, _ := s.keys.LoadOrStore(ownerID, crypto.DeriveUserKey(s.masterKey, ownerID))
	return key.([]byte)
}

// Encrypt seals plaintext under the owner's key
func (s *VaultService) Encrypt(ctx context.Context, plaintext, ownerID string) (crypto.Sealed, error) {
	sealed, err := crypto.Encrypt(plaintext, s.userKey(ownerID))
	s.metrics.RecordVault(ctx, "encrypt", err)
	return sealed, err
}

// Decrypt opens a value sealed for ownerID. A tampered value or a different owner yields crypto.ErrDecryptionFailed.
func (s *VaultService) Decrypt(ctx context.Context, sealed crypto.Sealed, ownerID string) (string, error) {
	plaintext, err := crypto.Decrypt(sealed, s.userKey(ownerID))
	s.metrics.RecordVault(ctx, "decrypt", err)
	return plaintext, err
}

func (s *VaultService) Create(ctx context.Context, userID string, in CredentialInput) (*models.Credential, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Value == "" {
		return nil, ErrInvalidCredentialInput
	}

	existing, err := s.repo.FindByName(ctx, userID, in.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check credential name: %w", err)
	}
	if existing != nil {
		return nil, ErrCredentialNameTaken
	}

	sealed, err := s.Encrypt(ctx, in.Value, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential: %w", err)
	}

	credential := &models.Credential{
		UserID:         userID,
		Name:           in.Name,
		EncryptedValue: sealed.Cipher,
		IV:             sealed.IV,
		AuthTag:        sealed.AuthTag,
		Category:       in.Category,
		Website:        in.Website,
		Username:       in.Username,
		Notes:          in.Notes,
	}

	if err := s.repo.Create(ctx, credential); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}

	s.logger.InfoContext(ctx, "credential created",
		"user_id", userID,
		"credential_id", credential.ID,
	)

	return credential, nil
}

// List returns metadata only; values stay encrypted
func (s *VaultService) List(ctx context.Context, userID string) ([]models.Credential, error) {
	credentials, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return credentials, nil
}

// Update applies the given changes, re-encrypting under a fresh IV when a value is supplied
func (s *VaultService) Update(ctx context.Context, userID, id string, upd CredentialUpdate) (*models.Credential, error) {
	current, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if current == nil {
		return nil, ErrCredentialNotFound
	}

	updates := map[string]any{}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, ErrInvalidCredentialInput
		}
		if name != current.Name {
			taken, err := s.repo.FindByName(ctx, userID, name)
			if err != nil {
				return nil, fmt.Errorf("failed to check credential name: %w", err)
			}
			if taken != nil {
				return nil, ErrCredentialNameTaken
			}
		}
		updates["name"] = name
	}

	if upd.Value != nil {
		if *upd.Value == "" {
			return nil, ErrInvalidCredentialInput
		}
		sealed, err := s.Encrypt(ctx, *upd.Value, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt credential: %w", err)
		}
		updates["encrypted_value"] = sealed.Cipher
		updates["iv"] = sealed.IV
		updates["auth_tag"] = sealed.AuthTag
	}

	if upd.Category != nil {
		updates["category"] = *upd.Category
	}
	if upd.Website != nil {
		updates["website"] = *upd.Website
	}
	if upd.Username != nil {
		updates["username"] = *upd.Username
	}
	if upd.Notes != nil {
		updates["notes"] = *upd.Notes
	}

	if len(updates) == 0 {
		return current, nil
	}

	if err := s.repo.Update(ctx, userID, id, updates); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to update credential: %w", err)
	}

	updated, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload credential: %w", err)
	}
	if updated == nil {
		return nil, ErrCredentialNotFound
	}

	return updated, nil
}

func (s *VaultService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCredentialNotFound
		}
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	s.logger.InfoContext(ctx, "credential deleted",
		"user_id", userID,
		"credential_id", id,
	)
	return nil
}

// Reveal decrypts a credential for its owner after password re-authentication
func (s *VaultService) Reveal(ctx context.Context, userID, id, password string) (string, error) {
	if err := s.verifier.VerifyPassword(ctx, userID, password); err != nil {
		s.logger.WarnContext(ctx, "credential reveal re-authentication failed",
			"user_id", userID,
			"credential_id", id,
			"error", err,
		)
		return "", ErrReauthenticationFailed
	}

	credential, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	if credential == nil {
		return "", ErrCredentialNotFound
	}

	return s.open(ctx, credential)
}

// GetByName decrypts a credential by name.
// Internal only: it skips re-authentication and must not back a client route.
func (s *VaultService) GetByName(ctx context.Context, userID, name string) (string, error) {
	credential, err := s.repo.FindByName(ctx, userID, strings.TrimSpace(name))
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	if credential == nil {
		return "", ErrCredentialNotFound
	}

	return s.open(ctx, credential)
}

// GetByService decrypts the most recently updated credential whose category
// or website matches service. Internal only.
func (s *VaultService) GetByService(ctx context.Context, userID, service string) (string, error) {
	credential, err := s.repo.FindByService(ctx, userID, service)
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	if credential == nil {
		return "", ErrCredentialNotFound
	}

	return s.open(ctx, credential)
}

// GetAsEnvMap decrypts every credential of the user keyed by an
// environment-variable style name. Internal only.
func (s *VaultService) GetAsEnvMap(ctx context.Context, userID string) (map[string]string, error) {
	credentials, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	env := make(map[string]string, len(credentials))
	for i := range credentials {
		value, err := s.open(ctx, &credentials[i])
		if err != nil {
			return nil, err
		}
		env[EnvName(credentials[i].Name)] = value
	}

	return env, nil
}

func (s *VaultService) open(ctx context.Context, credential *models.Credential) (string, error) {
	value, err := s.Decrypt(ctx, crypto.Sealed{
		Cipher:  credential.EncryptedValue,
		IV:      credential.IV,
		AuthTag: credential.AuthTag,
	}, credential.UserID)
	if err != nil {
		s.logger.ErrorContext(ctx, "credential decryption failed",
			"user_id", credential.UserID,
			"credential_id", credential.ID,
		)
		return "", err
	}

	now := s.now().UTC()
	if err := s.repo.TouchLastAccessed(ctx, credential.ID.String(), now); err != nil {
		s.logger.WarnContext(ctx, "failed to stamp credential access",
			"credential_id", credential.ID,
			"error", err,
		)
	} else {
		credential.LastAccessedAt = &now
	}

	return value, nil
}

// EnvName converts a credential name to UPPER_SNAKE_CASE, e.g. "github token" -> "GITHUB_TOKEN"
func EnvName(name string) string {
	var b strings.Builder
	underscore := false

	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}

	return strings.TrimRight(b.String(), "_")
}
