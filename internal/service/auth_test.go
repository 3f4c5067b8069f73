package service

import (
	"context"
	"testing"
	"time"

	"github.com/codelane/authdeck/internal/adapters/memdir"
	"github.com/codelane/authdeck/internal/adapters/memstore"
	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	apperrors "github.com/codelane/authdeck/internal/errors"
	mocks "github.com/codelane/authdeck/internal/mocks/auth"
	"github.com/codelane/authdeck/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authFixture struct {
	service   *AuthService
	directory *memdir.Directory
	sessions  *memstore.SessionStore
	roles     *mocks.MemoryRoleStore
	stream    *memstore.AuthStateStream
	social    *mocks.MockSocialProvider
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	f := &authFixture{
		directory: memdir.New(),
		sessions:  memstore.NewSessionStore(),
		roles:     mocks.NewMemoryRoleStore(),
		stream:    memstore.NewAuthStateStream(),
		social:    mocks.NewMockSocialProvider(domainauth.ProviderGoogle),
	}
	f.service = NewAuthService(AuthServiceOptions{
		Directory: f.directory,
		Sessions:  f.sessions,
		Roles:     f.roles,
		Stream:    f.stream,
		Providers: map[domainauth.ProviderID]ports.SocialProvider{
			domainauth.ProviderGoogle: f.social,
		},
		Policy:     domainauth.VerificationPolicy{ExemptProviders: []domainauth.ProviderID{domainauth.ProviderFacebook}},
		SessionTTL: time.Hour,
	})
	return f
}

func TestSignUp_EstablishesSession(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	sess, err := f.service.SignUp(ctx, "new@example.com", "longenough")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", sess.Email)
	assert.Equal(t, domainauth.RoleUser, sess.Role)
	assert.NotEmpty(t, sess.DirectoryToken)
	assert.False(t, sess.EmailVerified)

	stored, err := f.sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, stored.UserID)

	// Sign-up also triggers the verification email.
	_, ok := f.directory.LastOOBCode(memdir.OOBVerifyEmail, "new@example.com")
	assert.True(t, ok)
}

func TestSignUp_WritesDefaultRoleRecord(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	sess, err := f.service.SignUp(ctx, "new@example.com", "longenough")
	require.NoError(t, err)

	rec, err := f.roles.GetRecord(ctx, sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, rec.Role)
	assert.Equal(t, "sign-up", rec.UpdatedBy)
}

func TestSignUp_RoleRecordWriteFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	f.roles.SetRoleErr = apperrors.Unavailable("role store is down")

	sess, err := f.service.SignUp(context.Background(), "new@example.com", "longenough")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, sess.Role)
}

func TestSignIn_KeepsExistingRoleRecord(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	first, err := f.service.SignUp(ctx, "user@example.com", "longenough")
	require.NoError(t, err)
	require.NoError(t, f.roles.SetRole(ctx, first.UserID, domainauth.RoleAdmin, "bootstrap"))

	_, err = f.service.SignIn(ctx, "user@example.com", "longenough")
	require.NoError(t, err)

	rec, err := f.roles.GetRecord(ctx, first.UserID)
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, rec.Role)
	assert.Equal(t, "bootstrap", rec.UpdatedBy)
}

func TestResolveBearer(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	sess, err := f.service.SignUp(ctx, "user@example.com", "longenough")
	require.NoError(t, err)

	got, err := f.service.ResolveBearer(ctx, sess.DirectoryToken)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, got.UserID)
	assert.Equal(t, domainauth.RoleUser, got.Role)
	assert.Empty(t, got.ID) // ephemeral, never persisted

	_, err = f.service.ResolveBearer(ctx, "bogus")
	assert.True(t, apperrors.IsUnauthorized(err))

	_, err = f.service.ResolveBearer(ctx, "")
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestSignIn_Success(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.service.SignUp(ctx, "user@example.com", "longenough")
	require.NoError(t, err)

	sess, err := f.service.SignIn(ctx, "user@example.com", "longenough")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, sess.Role)
}

func TestSignIn_WrongPassword(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.service.SignUp(ctx, "user@example.com", "longenough")
	require.NoError(t, err)

	_, err = f.service.SignIn(ctx, "user@example.com", "wrong-password")
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestSignIn_DisabledRoleRejected(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	first, err := f.service.SignUp(ctx, "user@example.com", "longenough")
	require.NoError(t, err)
	require.NoError(t, f.roles.SetRole(ctx, first.UserID, domainauth.RoleDisabled, "admin-1"))

	_, err = f.service.SignIn(ctx, "user@example.com", "longenough")
	assert.True(t, apperrors.IsForbidden(err))
}

func TestSignIn_AdminRoleFlowsIntoSession(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	first, err := f.service.SignUp(ctx, "admin@example.com", "longenough")
	require.NoError(t, err)
	require.NoError(t, f.roles.SetRole(ctx, first.UserID, domainauth.RoleAdmin, "bootstrap"))

	sess, err := f.service.SignIn(ctx, "admin@example.com", "longenough")
	require.NoError(t, err)
	assert.True(t, sess.IsAdmin())
}

func TestBeginSocial_UnknownProvider(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)

	_, err := f.service.BeginSocial(context.Background(), domainauth.ProviderFacebook, "http://localhost/cb")
	assert.True(t, apperrors.IsValidation(err))
}

func TestCompleteSocial_ProvisionsAndSignsIn(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	begin, err := f.service.BeginSocial(ctx, domainauth.ProviderGoogle, "http://localhost/cb")
	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", begin.AuthURL)

	sess, err := f.service.CompleteSocial(ctx, domainauth.ProviderGoogle, ports.ExchangeInput{
		Code: "code", State: begin.State, Nonce: begin.Nonce,
	})
	require.NoError(t, err)
	assert.Equal(t, "mock.user@example.com", sess.Email)
	assert.True(t, sess.EmailVerified)
	assert.Contains(t, sess.Providers, domainauth.ProviderGoogle)
}

func TestCompleteSocial_EmaillessIdentityRejected(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	f.social.Identity.Email = ""

	_, err := f.service.CompleteSocial(context.Background(), domainauth.ProviderGoogle, ports.ExchangeInput{Code: "code"})
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "email", apperrors.GetField(err))
}

func TestSignOut_RevokesTokenAndSession(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	sess, err := f.service.SignUp(ctx, "user@example.com", "longenough")
	require.NoError(t, err)

	require.NoError(t, f.service.SignOut(ctx, sess.ID))

	_, err = f.sessions.Get(ctx, sess.ID)
	assert.True(t, apperrors.IsNotFound(err))

	// Directory token was revoked too.
	_, err = f.directory.Lookup(ctx, sess.DirectoryToken)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestSignOut_UnknownSessionIsNoop(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)

	assert.NoError(t, f.service.SignOut(context.Background(), "missing"))
	assert.NoError(t, f.service.SignOut(context.Background(), ""))
}

func TestRequiresVerification(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)

	unverifiedPassword := domainauth.Session{Providers: []domainauth.ProviderID{domainauth.ProviderPassword}}
	assert.True(t, f.service.RequiresVerification(unverifiedPassword))

	verified := domainauth.Session{EmailVerified: true, Providers: []domainauth.ProviderID{domainauth.ProviderPassword}}
	assert.False(t, f.service.RequiresVerification(verified))

	// Facebook accounts are exempt even when unverified.
	facebook := domainauth.Session{Providers: []domainauth.ProviderID{domainauth.ProviderFacebook}}
	assert.False(t, f.service.RequiresVerification(facebook))
}

func TestSignedInEventPublished(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)
	ctx := context.Background()

	events, unsub, err := f.stream.Subscribe(ctx)
	require.NoError(t, err)
	defer unsub()

	sess, err := f.service.SignUp(ctx, "user@example.com", "longenough")
	require.NoError(t, err)

	select {
	case got := <-events:
		assert.Equal(t, domainauth.EventSignedIn, got.Type)
		assert.Equal(t, sess.UserID, got.UserID)
	case <-time.After(time.Second):
		t.Fatal("no signed-in event published")
	}
}

func TestResetPassword_RequiresEmail(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t)

	err := f.service.ResetPassword(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))

	assert.NoError(t, f.service.ResetPassword(context.Background(), "unknown@example.com"))
}
