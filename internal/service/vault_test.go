package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aman-churiwal/projectguard/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKey = "vault-test-master-key"

type fakeVerifier struct {
	passwords map[string]string // userID -> password
}

func (v *fakeVerifier) VerifyPassword(ctx context.Context, userID, password string) error {
	if want, ok := v.passwords[userID]; ok && want == password {
		return nil
	}
	return ErrInvalidCredentials
}

func newTestVault(t *testing.T) (*VaultService, *fakeCredentialRepo) {
	t.Helper()
	repo := newFakeCredentialRepo()
	verifier := &fakeVerifier{passwords: map[string]string{
		"user-1": "pw-one",
		"user-2": "pw-two",
	}}
	svc := NewVaultService(repo, []byte(testMasterKey), verifier, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, repo
}

// flipHex changes the first hex digit so the value still decodes
func flipHex(s string) string {
	b := []byte(s)
	if b[0] == '0' {
		b[0] = '1'
	} else {
		b[0] = '0'
	}
	return string(b)
}

func TestVaultService_CreateAndReveal(t *testing.T) {
	svc, repo := newTestVault(t)
	ctx := context.Background()

	cred, err := svc.Create(ctx, "user-1", CredentialInput{Name: "github token", Value: "ghp_secret", Category: "github"})
	require.NoError(t, err)

	stored := repo.credentials[cred.ID.String()]
	require.NotNil(t, stored)
	assert.NotContains(t, stored.EncryptedValue, "ghp_secret")
	assert.NotEmpty(t, stored.IV)
	assert.NotEmpty(t, stored.AuthTag)

	value, err := svc.Reveal(ctx, "user-1", cred.ID.String(), "pw-one")
	require.NoError(t, err)
	assert.Equal(t, "ghp_secret", value)

	touched, ok := repo.touched[cred.ID.String()]
	require.True(t, ok)
	assert.Equal(t, svc.now().UTC(), touched)
}

func TestVaultService_RevealRequiresPassword(t *testing.T) {
	svc, repo := newTestVault(t)
	ctx := context.Background()

	cred, err := svc.Create(ctx, "user-1", CredentialInput{Name: "db", Value: "hunter2"})
	require.NoError(t, err)

	_, err = svc.Reveal(ctx, "user-1", cred.ID.String(), "wrong")
	assert.ErrorIs(t, err, ErrReauthenticationFailed)
	assert.Empty(t, repo.touched)

	// Another user's password does not unlock the record
	_, err = svc.Reveal(ctx, "user-1", cred.ID.String(), "pw-two")
	assert.ErrorIs(t, err, ErrReauthenticationFailed)
}

func TestVaultService_CrossUserIsolation(t *testing.T) {
	svc, repo := newTestVault(t)
	ctx := context.Background()

	cred, err := svc.Create(ctx, "user-1", CredentialInput{Name: "db", Value: "hunter2"})
	require.NoError(t, err)

	_, err = svc.Reveal(ctx, "user-2", cred.ID.String(), "pw-two")
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	// Ciphertext handed to another owner's key does not open
	stored := repo.credentials[cred.ID.String()]
	_, err = svc.Decrypt(ctx, crypto.Sealed{Cipher: stored.EncryptedValue, IV: stored.IV, AuthTag: stored.AuthTag}, "user-2")
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestVaultService_TamperedRecord(t *testing.T) {
	svc, repo := newTestVault(t)
	ctx := context.Background()

	cred, err := svc.Create(ctx, "user-1", CredentialInput{Name: "db", Value: "hunter2"})
	require.NoError(t, err)

	stored := repo.credentials[cred.ID.String()]
	stored.AuthTag = flipHex(stored.AuthTag)

	_, err = svc.Reveal(ctx, "user-1", cred.ID.String(), "pw-one")
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
	assert.Empty(t, repo.touched)
}

func TestVaultService_CreateValidation(t *testing.T) {
	svc, _ := newTestVault(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", CredentialInput{Name: "  ", Value: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentialInput)

	_, err = svc.Create(ctx, "user-1", CredentialInput{Name: "db", Value: ""})
	assert.ErrorIs(t, err, ErrInvalidCredentialInput)

	_, err = svc.Create(ctx, "user-1", CredentialInput{Name: "db", Value: "one"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, "user-1", CredentialInput{Name: "db", Value: "two"})
	assert.ErrorIs(t, err, ErrCredentialNameTaken)

	// Names are scoped per user
	_, err = svc.Create(ctx, "user-2", CredentialInput{Name: "db", Value: "three"})
	assert.NoError(t, err)
}

func TestVaultService_ListIsScopedAndOrdered(t *testing.T) {
	svc, _ := newTestVault(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := svc.Create(ctx, "user-1", CredentialInput{Name: name, Value: "v-" + name})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, "user-2", CredentialInput{Name: "other", Value: "v"})
	require.NoError(t, err)

	list, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "mid", list[1].Name)
	assert.Equal(t, "zeta", list[2].Name)
}

func TestVaultService_UpdateReencrypts(t *testing.T) {
	svc, repo := newTestVault(t)
	ctx := context.Background()

	cred, err := svc.Create(ctx, "user-1", CredentialInput{Name: "db", Value: "old-value"})
	require.NoError(t, err)
	before := *repo.credentials[cred.ID.String()]

	newValue := "new-value"
	notes := "rotated"
	updated, err := svc.Update(ctx, "user-1", cred.ID.String(), CredentialUpdate{Value: &newValue, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "rotated", updated.Notes)
	assert.NotEqual(t, before.IV, updated.IV)
	assert.NotEqual(t, before.EncryptedValue, updated.EncryptedValue)

	value, err := svc.Reveal(ctx, "user-1", cred.ID.String(), "pw-one")
	require.NoError(t, err)
	assert.Equal(t, "new-value", value)
}

func TestVaultService_UpdateErrors(t *testing.T) {
	svc, _ := newTestVault(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "user-1", CredentialInput{Name: "first", Value: "1"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "user-1", CredentialInput{Name: "second", Value: "2"})
	require.NoError(t, err)

	taken := "second"
	_, err = svc.Update(ctx, "user-1", first.ID.String(), CredentialUpdate{Name: &taken})
	assert.ErrorIs(t, err, ErrCredentialNameTaken)

	empty := ""
	_, err = svc.Update(ctx, "user-1", first.ID.String(), CredentialUpdate{Value: &empty})
	assert.ErrorIs(t, err, ErrInvalidCredentialInput)

	_, err = svc.Update(ctx, "user-2", first.ID.String(), CredentialUpdate{Name: &taken})
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	// Renaming to the current name is not a conflict
	same := "first"
	_, err = svc.Update(ctx, "user-1", first.ID.String(), CredentialUpdate{Name: &same})
	assert.NoError(t, err)
}

func TestVaultService_Delete(t *testing.T) {
	svc, _ := newTestVault(t)
	ctx := context.Background()

	cred, err := svc.Create(ctx, "user-1", CredentialInput{Name: "db", Value: "x"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, "user-2", cred.ID.String()), ErrCredentialNotFound)
	require.NoError(t, svc.Delete(ctx, "user-1", cred.ID.String()))
	assert.ErrorIs(t, svc.Delete(ctx, "user-1", cred.ID.String()), ErrCredentialNotFound)
}

func TestVaultService_InternalLookups(t *testing.T) {
	svc, _ := newTestVault(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", CredentialInput{Name: "github token", Value: "ghp_1", Category: "GitHub"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "user-1", CredentialInput{Name: "stripe-key", Value: "sk_1", Website: "https://dashboard.stripe.com"})
	require.NoError(t, err)

	value, err := svc.GetByName(ctx, "user-1", "github token")
	require.NoError(t, err)
	assert.Equal(t, "ghp_1", value)

	value, err = svc.GetByService(ctx, "user-1", "github")
	require.NoError(t, err)
	assert.Equal(t, "ghp_1", value)

	value, err = svc.GetByService(ctx, "user-1", "stripe")
	require.NoError(t, err)
	assert.Equal(t, "sk_1", value)

	_, err = svc.GetByService(ctx, "user-2", "github")
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	_, err = svc.GetByName(ctx, "user-1", "missing")
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	env, err := svc.GetAsEnvMap(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"GITHUB_TOKEN": "ghp_1",
		"STRIPE_KEY":   "sk_1",
	}, env)
}

func TestVaultService_DerivedKeysAreStable(t *testing.T) {
	svc, _ := newTestVault(t)
	ctx := context.Background()

	sealed, err := svc.Encrypt(ctx, "payload", "user-1")
	require.NoError(t, err)

	// A fresh service with the same master key opens the value
	other := NewVaultService(newFakeCredentialRepo(), []byte(testMasterKey), &fakeVerifier{}, nil, nil)
	plaintext, err := other.Decrypt(ctx, sealed, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "payload", plaintext)

	rotated := NewVaultService(newFakeCredentialRepo(), []byte("another-master-key"), &fakeVerifier{}, nil, nil)
	_, err = rotated.Decrypt(ctx, sealed, "user-1")
	assert.True(t, errors.Is(err, crypto.ErrDecryptionFailed))
}

func TestEnvName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"github token", "GITHUB_TOKEN"},
		{"stripe-key", "STRIPE_KEY"},
		{"  aws.secret  key ", "AWS_SECRET_KEY"},
		{"already_SNAKE", "ALREADY_SNAKE"},
		{"trailing!!", "TRAILING"},
		{"db2", "DB2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnvName(tt.name))
		})
	}
}
