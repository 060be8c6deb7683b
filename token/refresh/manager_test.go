package refresh_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jwillz7667/verbio-auth/token/refresh"
	"github.com/jwillz7667/verbio-auth/token/refresh/repofake"
)

const testUserID = "user-1"

// testFixture holds the manager under test with a controllable clock.
type testFixture struct {
	repo    *repofake.FakeRefreshTokenRepo
	manager *refresh.Manager
	now     time.Time
}

func setupTestFixture(t *testing.T, options ...refresh.ManagerOption) *testFixture {
	t.Helper()

	f := &testFixture{
		repo: repofake.NewFakeRefreshTokenRepo(),
		now:  time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	options = append([]refresh.ManagerOption{refresh.WithNowFunc(func() time.Time { return f.now })}, options...)
	f.manager = refresh.NewManager(f.repo, options...)
	return f
}

func (f *testFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func TestRotateConsumesTokenExactlyOnce(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	plaintext, issued, err := f.manager.Issue(ctx, testUserID)
	require.NoError(t, err)
	require.NotEmpty(t, plaintext)
	require.Nil(t, issued.RevokedAt)

	first, err := f.manager.Rotate(ctx, plaintext)
	require.NoError(t, err)
	require.Equal(t, refresh.OutcomeRotated, first.Outcome)
	require.Equal(t, issued.FamilyID, first.NewToken.FamilyID)
	require.NotEqual(t, plaintext, first.NewPlaintext)

	// The same original value presented again is a reuse, not a second
	// rotation.
	second, err := f.manager.Rotate(ctx, plaintext)
	require.NoError(t, err)
	require.Equal(t, refresh.OutcomeReuse, second.Outcome)
}

func TestReuseRevokesWholeFamily(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	plaintext, _, err := f.manager.Issue(ctx, testUserID)
	require.NoError(t, err)

	rotated, err := f.manager.Rotate(ctx, plaintext)
	require.NoError(t, err)
	require.Equal(t, refresh.OutcomeRotated, rotated.Outcome)

	reused, err := f.manager.Rotate(ctx, plaintext)
	require.NoError(t, err)
	require.Equal(t, refresh.OutcomeReuse, reused.Outcome)

	// The still-active newest token in the family must be dead as well.
	newest, err := f.manager.Rotate(ctx, rotated.NewPlaintext)
	require.NoError(t, err)
	require.Equal(t, refresh.OutcomeReuse, newest.Outcome)
}

func TestRotateUnknownValue(t *testing.T) {
	f := setupTestFixture(t)

	result, err := f.manager.Rotate(context.Background(), "never-issued")
	require.NoError(t, err)
	require.Equal(t, refresh.OutcomeNotFound, result.Outcome)
	require.Nil(t, result.Token)
}

func TestRotateExpiredTokenDoesNotRevokeFamily(t *testing.T) {
	f := setupTestFixture(t, refresh.WithTTL(time.Hour))
	ctx := context.Background()

	first, _, err := f.manager.Issue(ctx, testUserID)
	require.NoError(t, err)

	rotated, err := f.manager.Rotate(ctx, first)
	require.NoError(t, err)
	require.Equal(t, refresh.OutcomeRotated, rotated.Outcome)

	f.advance(time.Hour + time.Minute)

	expired, err := f.manager.Rotate(ctx, rotated.NewPlaintext)
	require.NoError(t, err)
	require.Equal(t, refresh.OutcomeExpired, expired.Outcome)

	// Benign expiry: the expired row itself must stay unrevoked so a later
	// presentation is still "expired", never mistaken for reuse.
	row, err := f.manager.Lookup(ctx, rotated.NewPlaintext)
	require.NoError(t, err)
	require.Nil(t, row.RevokedAt)
}

// flakyRepo fails ConsumeAndReplace a fixed number of times before
// delegating, simulating a transient storage outage mid-rotation.
type flakyRepo struct {
	refresh.Repo
	failures int
}

func (r *flakyRepo) ConsumeAndReplace(ctx context.Context, id string, at time.Time, successor *refresh.Token) (bool, error) {
	if r.failures > 0 {
		r.failures--
		return false, errors.New("connection reset by peer")
	}
	return r.Repo.ConsumeAndReplace(ctx, id, at, successor)
}

func TestRotateStorageFailureLeavesTokenRetryable(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	plaintext, issued, err := f.manager.Issue(ctx, testUserID)
	require.NoError(t, err)

	flaky := &flakyRepo{Repo: f.repo, failures: 1}
	manager := refresh.NewManager(flaky, refresh.WithNowFunc(func() time.Time { return f.now }))

	_, err = manager.Rotate(ctx, plaintext)
	require.Error(t, err)

	// The failed write consumed nothing: the presented token is still
	// active, so the retry is an ordinary rotation, never mistaken for
	// reuse, and the family survives.
	row, err := manager.Lookup(ctx, plaintext)
	require.NoError(t, err)
	require.Nil(t, row.RevokedAt)

	retried, err := manager.Rotate(ctx, plaintext)
	require.NoError(t, err)
	require.Equal(t, refresh.OutcomeRotated, retried.Outcome)
	require.Equal(t, issued.FamilyID, retried.NewToken.FamilyID)
}

func TestConcurrentRotationExactlyOneSuccess(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	plaintext, _, err := f.manager.Issue(ctx, testUserID)
	require.NoError(t, err)

	const attempts = 16
	outcomes := make([]refresh.Outcome, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.manager.Rotate(ctx, plaintext)
			require.NoError(t, err)
			outcomes[i] = result.Outcome
		}(i)
	}
	wg.Wait()

	var successes int
	for _, outcome := range outcomes {
		if outcome == refresh.OutcomeRotated {
			successes++
		}
	}
	require.Equal(t, 1, successes)
}

func TestFamilyStableAcrossRotationChain(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	plaintext, issued, err := f.manager.Issue(ctx, testUserID)
	require.NoError(t, err)

	const chainLength = 5
	plaintexts := []string{plaintext}
	for i := 0; i < chainLength; i++ {
		result, err := f.manager.Rotate(ctx, plaintexts[len(plaintexts)-1])
		require.NoError(t, err)
		require.Equal(t, refresh.OutcomeRotated, result.Outcome)
		require.Equal(t, issued.FamilyID, result.NewToken.FamilyID)
		plaintexts = append(plaintexts, result.NewPlaintext)
	}

	// Replaying the consumed token from the middle of the chain kills the
	// head of the chain too.
	reused, err := f.manager.Rotate(ctx, plaintexts[2])
	require.NoError(t, err)
	require.Equal(t, refresh.OutcomeReuse, reused.Outcome)

	head, err := f.manager.Rotate(ctx, plaintexts[len(plaintexts)-1])
	require.NoError(t, err)
	require.Equal(t, refresh.OutcomeReuse, head.Outcome)
}

func TestRevokeAllForUserSpansFamilies(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	firstLogin, _, err := f.manager.Issue(ctx, testUserID)
	require.NoError(t, err)
	secondLogin, _, err := f.manager.Issue(ctx, testUserID)
	require.NoError(t, err)

	require.NoError(t, f.manager.RevokeAllForUser(ctx, testUserID))

	for _, plaintext := range []string{firstLogin, secondLogin} {
		result, err := f.manager.Rotate(ctx, plaintext)
		require.NoError(t, err)
		require.Equal(t, refresh.OutcomeReuse, result.Outcome)
	}
}

func TestRevokeFamilyIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	plaintext, issued, err := f.manager.Issue(ctx, testUserID)
	require.NoError(t, err)

	require.NoError(t, f.manager.RevokeFamily(ctx, issued.FamilyID))
	require.NoError(t, f.manager.RevokeFamily(ctx, issued.FamilyID))

	result, err := f.manager.Rotate(ctx, plaintext)
	require.NoError(t, err)
	require.Equal(t, refresh.OutcomeReuse, result.Outcome)
}

func TestPurgeExpiredKeepsLiveTokens(t *testing.T) {
	f := setupTestFixture(t, refresh.WithTTL(time.Hour))
	ctx := context.Background()

	stale, _, err := f.manager.Issue(ctx, testUserID)
	require.NoError(t, err)

	f.advance(48 * time.Hour)

	live, _, err := f.manager.Issue(ctx, testUserID)
	require.NoError(t, err)

	purged, err := f.manager.PurgeExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	_, err = f.manager.Lookup(ctx, stale)
	require.ErrorIs(t, err, refresh.ErrNotFound)

	_, err = f.manager.Lookup(ctx, live)
	require.NoError(t, err)
}
