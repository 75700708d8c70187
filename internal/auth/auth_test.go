package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/errs"
	"chatlink-service/internal/repositories"
)

func newTestService(t *testing.T) (*Service, *repositories.UserRepo) {
	t.Helper()
	store := docstore.NewMemory()
	users := repositories.NewUserRepo(store)
	svc := NewService(users, repositories.NewCredentialRepo(store), "test-secret", time.Hour)
	svc.SetHashCost(bcrypt.MinCost)
	return svc, users
}

func TestSignUpAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, users := newTestService(t)

	session, err := svc.SignUp(ctx, "Alice@Example.com", "secret1", " Alice ")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "Alice", session.User.DisplayName)

	stored, err := users.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, stored.ID)

	login, err := svc.Login(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	uid, err := svc.Verify(login.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, uid)
}

func TestSignUpValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.SignUp(ctx, "not-an-email", "secret1", "x")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = svc.SignUp(ctx, "bob@example.com", "123", "Bob")
	assert.ErrorIs(t, err, errs.ErrValidation)

	session, err := svc.SignUp(ctx, "bob@example.com", "secret1", "")
	require.NoError(t, err)
	assert.Equal(t, "bob", session.User.DisplayName)

	_, err = svc.SignUp(ctx, "BOB@example.com", "secret2", "Bobby")
	assert.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.SignUp(ctx, "carol@example.com", "secret1", "Carol")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "carol@example.com", "wrong-pass")
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)

	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	session, err := svc.SignUp(ctx, "dave@example.com", "secret1", "Dave")
	require.NoError(t, err)

	svc.SetClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	_, err = svc.Verify(session.Token)
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = svc.Verify(foreign)
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)

	_, err = svc.Verify("garbage")
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	session, err := svc.SignUp(ctx, "carol@example.com", "secret1", "Carol")
	require.NoError(t, err)
	uid := session.User.ID

	assert.ErrorIs(t, svc.ChangePassword(ctx, uid, "wrong-pass", "secret2"), errs.ErrPermission)
	assert.ErrorIs(t, svc.ChangePassword(ctx, uid, "secret1", "12345"), errs.ErrValidation)
	assert.ErrorIs(t, svc.ChangePassword(ctx, uid, "secret1", "secret1"), errs.ErrValidation)
	assert.ErrorIs(t, svc.ChangePassword(ctx, "missing", "secret1", "secret2"), errs.ErrNotFound)

	require.NoError(t, svc.ChangePassword(ctx, uid, "secret1", "secret2"))

	_, err = svc.Login(ctx, "carol@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "carol@example.com", "secret2")
	require.NoError(t, err)
}
