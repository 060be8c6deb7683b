package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jwillz7667/verbio-auth/auth"
	"github.com/jwillz7667/verbio-auth/identity"
	"github.com/jwillz7667/verbio-auth/identity/identityfake"
	"github.com/jwillz7667/verbio-auth/token"
	"github.com/jwillz7667/verbio-auth/token/refresh"
	"github.com/jwillz7667/verbio-auth/token/refresh/repofake"
	"github.com/jwillz7667/verbio-auth/users"
	userrepofake "github.com/jwillz7667/verbio-auth/users/repofake"
)

const (
	testIssuerURL    = "https://auth.verbio.app"
	testAudience     = "verbio-api"
	testAppleSubject = "001234.abcdef.5678"
	testIDToken      = "good-apple-id-token"
	testUserEmail    = "john.doe@example.com"
	testDisplayName  = "John Doe"
)

// testFixture holds all test dependencies
type testFixture struct {
	userRepo    *userrepofake.FakeUserRepo
	refreshRepo *repofake.FakeRefreshTokenRepo
	verifier    *identityfake.FakeVerifier
	issuer      *token.Issuer
	service     *auth.Service
	now         time.Time
}

func setupTestFixture(t *testing.T, options ...auth.ServiceOption) *testFixture {
	t.Helper()

	f := &testFixture{
		userRepo:    userrepofake.NewFakeUserRepo(),
		refreshRepo: repofake.NewFakeRefreshTokenRepo(),
		verifier:    identityfake.NewFakeVerifier(),
		now:         time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	nowFunc := func() time.Time { return f.now }

	keyPair, err := token.GenerateRSAKeyPair("test-key-1", 2048)
	require.NoError(t, err)
	f.issuer = token.NewIssuer(token.NewKeyPairSigner(keyPair), testIssuerURL, testAudience,
		token.WithNowFunc(nowFunc))

	refreshManager := refresh.NewManager(f.refreshRepo, refresh.WithNowFunc(nowFunc), refresh.WithTTL(30*24*time.Hour))

	f.service, err = auth.NewService(
		auth.Repos{Users: f.userRepo},
		f.verifier,
		f.issuer,
		refreshManager,
		append([]auth.ServiceOption{auth.WithNowTime(nowFunc)}, options...)...,
	)
	require.NoError(t, err)

	f.verifier.Register(testIDToken, identity.Identity{
		Subject:       testAppleSubject,
		Email:         testUserEmail,
		EmailVerified: true,
	})

	return f
}

func (f *testFixture) login(t *testing.T) *auth.Session {
	t.Helper()
	session, err := f.service.Login(context.Background(), testIDToken, auth.ProfileHints{DisplayName: testDisplayName})
	require.NoError(t, err)
	return session
}

func TestLoginCreatesUserAndSession(t *testing.T) {
	f := setupTestFixture(t)

	session := f.login(t)
	require.Equal(t, testUserEmail, session.User.Email)
	require.Equal(t, testDisplayName, session.User.DisplayName)
	require.Equal(t, string(users.TierFree), session.User.Tier)
	require.NotEmpty(t, session.AccessToken)
	require.NotEmpty(t, session.RefreshToken)
	require.Equal(t, 3600, session.ExpiresIn)

	claims, err := f.issuer.Verify(session.AccessToken)
	require.NoError(t, err)
	require.Equal(t, session.User.ID, claims.Subject)
	require.Equal(t, testUserEmail, claims.Email)

	// A second login reuses the identity record, it never duplicates it.
	again := f.login(t)
	require.Equal(t, session.User.ID, again.User.ID)
}

func TestLoginBackfillsProfileFromHints(t *testing.T) {
	f := setupTestFixture(t)

	// Apple omits the name claim after the first authorization; simulate a
	// first login where the client failed to forward it.
	first, err := f.service.Login(context.Background(), testIDToken, auth.ProfileHints{})
	require.NoError(t, err)
	require.Empty(t, first.User.DisplayName)

	second, err := f.service.Login(context.Background(), testIDToken, auth.ProfileHints{DisplayName: testDisplayName})
	require.NoError(t, err)
	require.Equal(t, first.User.ID, second.User.ID)
	require.Equal(t, testDisplayName, second.User.DisplayName)
}

func TestLoginRejectsUnknownAssertion(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Login(context.Background(), "forged-token", auth.ProfileHints{})
	require.ErrorIs(t, err, auth.InvalidCredentialErr)
}

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	session := f.login(t)

	rotated, err := f.service.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, session.User.ID, rotated.User.ID)
	require.NotEqual(t, session.RefreshToken, rotated.RefreshToken)

	// Replaying the consumed token is the theft signal: the whole family
	// dies, including the freshly rotated credential.
	_, err = f.service.Refresh(ctx, session.RefreshToken)
	require.ErrorIs(t, err, auth.RefreshTokenRevokedErr)

	_, err = f.service.Refresh(ctx, rotated.RefreshToken)
	require.ErrorIs(t, err, auth.RefreshTokenRevokedErr)
}

// recordingNotifier captures reuse signals on a channel so the test can wait
// for the asynchronous delivery.
type recordingNotifier struct {
	signals chan string
}

func (n *recordingNotifier) NotifyReuse(_ context.Context, userID, _ string, _ time.Time) error {
	n.signals <- userID
	return nil
}

func TestRefreshReuseFiresSecurityNotification(t *testing.T) {
	recorder := &recordingNotifier{signals: make(chan string, 1)}
	f := setupTestFixture(t, auth.WithSecurityNotifier(recorder))
	ctx := context.Background()

	session := f.login(t)
	_, err := f.service.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)

	_, err = f.service.Refresh(ctx, session.RefreshToken)
	require.ErrorIs(t, err, auth.RefreshTokenRevokedErr)

	select {
	case userID := <-recorder.signals:
		require.Equal(t, session.User.ID, userID)
	case <-time.After(time.Second):
		t.Fatal("no reuse notification within 1s")
	}
}

func TestRefreshExpiredTokenIsBenign(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	expiringSession := f.login(t)
	f.now = f.now.Add(31 * 24 * time.Hour)

	_, err := f.service.Refresh(ctx, expiringSession.RefreshToken)
	require.ErrorIs(t, err, auth.RefreshTokenExpiredErr)

	// Expiry must not cascade: a later login for the same user works and
	// its fresh family is untouched.
	freshSession := f.login(t)
	_, err = f.service.Refresh(ctx, freshSession.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshUnknownToken(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Refresh(context.Background(), "never-issued")
	require.ErrorIs(t, err, auth.InvalidRefreshTokenErr)

	_, err = f.service.Refresh(context.Background(), "")
	require.ErrorIs(t, err, auth.InvalidRefreshTokenErr)
}

func TestLogoutRevokesSingleFamily(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	phoneSession := f.login(t)
	tabletSession := f.login(t)

	require.NoError(t, f.service.Logout(ctx, phoneSession.RefreshToken, false, ""))

	_, err := f.service.Refresh(ctx, phoneSession.RefreshToken)
	require.ErrorIs(t, err, auth.RefreshTokenRevokedErr)

	// The other device's session chain keeps working.
	_, err = f.service.Refresh(ctx, tabletSession.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutAllDevices(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	phoneSession := f.login(t)
	tabletSession := f.login(t)

	require.NoError(t, f.service.Logout(ctx, "", true, phoneSession.User.ID))

	for _, refreshToken := range []string{phoneSession.RefreshToken, tabletSession.RefreshToken} {
		_, err := f.service.Refresh(ctx, refreshToken)
		require.ErrorIs(t, err, auth.RefreshTokenRevokedErr)
	}
}

func TestLogoutAllDevicesViaRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	phoneSession := f.login(t)
	tabletSession := f.login(t)

	// No bearer claims available: the user is resolved from the presented
	// refresh token instead.
	require.NoError(t, f.service.Logout(ctx, phoneSession.RefreshToken, true, ""))

	_, err := f.service.Refresh(ctx, tabletSession.RefreshToken)
	require.ErrorIs(t, err, auth.RefreshTokenRevokedErr)
}

// brokenRefreshRepo fails every lookup, simulating a storage outage.
type brokenRefreshRepo struct {
	refresh.Repo
}

func (brokenRefreshRepo) GetByHash(context.Context, string) (*refresh.Token, error) {
	return nil, errors.New("connection refused")
}

// A storage outage during logout must surface as an internal failure, never
// as a silent success that leaves every token valid.
func TestLogoutStorageFailureSurfaces(t *testing.T) {
	f := setupTestFixture(t)

	broken := refresh.NewManager(brokenRefreshRepo{Repo: f.refreshRepo})
	svc, err := auth.NewService(auth.Repos{Users: f.userRepo}, f.verifier, f.issuer, broken)
	require.NoError(t, err)

	err = svc.Logout(context.Background(), "presented-token", true, "")
	require.ErrorIs(t, err, auth.InternalErr)

	err = svc.Logout(context.Background(), "presented-token", false, "")
	require.ErrorIs(t, err, auth.InternalErr)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.Logout(ctx, "", false, ""))
	require.NoError(t, f.service.Logout(ctx, "never-issued", false, ""))

	session := f.login(t)
	require.NoError(t, f.service.Logout(ctx, session.RefreshToken, false, ""))
	require.NoError(t, f.service.Logout(ctx, session.RefreshToken, false, ""))
	require.NoError(t, f.service.Logout(ctx, "", true, session.User.ID))
}
