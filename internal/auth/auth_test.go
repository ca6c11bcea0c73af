package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/vpsinv/internal/docstore"
	"github.com/MrSnakeDoc/vpsinv/internal/domain"
	"github.com/MrSnakeDoc/vpsinv/internal/logger"
)

var testSecret = []byte("test-secret-with-enough-entropy!")

func newTestService(t *testing.T) (*Service, docstore.Store) {
	t.Helper()
	store := docstore.NewMemory(docstore.DefaultSchema)
	return NewService(store, NewTokens(testSecret, time.Hour), logger.Nop()), store
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "argon2id$v=19$m=65536,t=1,p=4$"))

	other, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts must differ")

	assert.True(t, VerifyPassword(hash, "correct horse"))
	assert.False(t, VerifyPassword(hash, "correct horse "))
}

func TestVerifyPasswordMalformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"bcrypt$whatever",
		"argon2id$v=18$m=65536,t=1,p=4$c2FsdA$a2V5",
		"argon2id$v=19$m=x$c2FsdA$a2V5",
		"argon2id$v=19$m=65536,t=1,p=4$!!!$a2V5",
		"argon2id$v=19$m=65536,t=1,p=4$c2FsdA$",
	} {
		assert.False(t, VerifyPassword(encoded, "pw"), encoded)
	}
}

func TestTokens(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)

	token, claims, err := tokens.Issue("u1")
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)

	parsed, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", parsed.UserID)
	assert.Equal(t, claims.ID, parsed.ID)

	_, err = NewTokens([]byte("another-secret"), time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensExpire(t *testing.T) {
	tokens := NewTokens(testSecret, time.Minute)
	clock := time.Now()
	tokens.now = func() time.Time { return clock }

	token, _, err := tokens.Issue("u1")
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	_, err = tokens.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensRejectOtherAlgorithms(t *testing.T) {
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "sess",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "u1",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokens(testSecret, time.Hour).Parse(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRegister(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "  Alice@Example.com ", "s3cret-pass", "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "Alice", user.Name)

	_, err = svc.Register(ctx, "ALICE@example.com", "another-pass", "Alice 2")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), "nope", "short", " ")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("email"))
	assert.True(t, verr.Has("password"))
	assert.True(t, verr.Has("name"))
}

func TestLoginLogoutCycle(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "bob@example.com", "hunter2hunter2", "Bob")
	require.NoError(t, err)

	session, err := svc.Login(ctx, "BOB@example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, session.User.ID)
	assert.True(t, session.ExpiresAt.After(time.Now()))

	me, err := svc.CurrentUser(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, registered, me)

	sessions, err := store.List(ctx, docstore.CollectionSessions, docstore.Equal("userId", registered.ID))
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	require.NoError(t, svc.Logout(ctx, session.Token))
	require.NoError(t, svc.Logout(ctx, session.Token), "logout is idempotent")

	_, err = svc.CurrentUser(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "carol@example.com", "password123", "Carol")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "carol@example.com", "password124")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPurgeExpiredSessions(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "dan@example.com", "password123", "Dan")
	require.NoError(t, err)
	session, err := svc.Login(ctx, "dan@example.com", "password123")
	require.NoError(t, err)

	_, err = store.Create(ctx, docstore.CollectionSessions, "old", map[string]string{
		"userId":    session.User.ID,
		"expiresAt": time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
	})
	require.NoError(t, err)
	_, err = store.Create(ctx, docstore.CollectionSessions, "garbled", map[string]string{
		"userId":    session.User.ID,
		"expiresAt": "tomorrow",
	})
	require.NoError(t, err)

	purged, err := svc.PurgeExpiredSessions(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	_, err = svc.CurrentUser(ctx, session.Token)
	assert.NoError(t, err, "live session survives")
}

func TestLookupUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Ops@Example.com", "long-enough", "Ops")
	require.NoError(t, err)

	byEmail, err := svc.LookupUser(ctx, " OPS@example.com ")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byID, err := svc.LookupUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", byID.Email)

	for _, ref := range []string{"", "nobody@example.com", "no-such-id"} {
		_, err := svc.LookupUser(ctx, ref)
		assert.ErrorIs(t, err, ErrUnknownUser, ref)
	}
}
