package service

import (
	"context"
	"testing"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T) (UserService, *testEnv) {
	env := newTestEnv(t)
	return NewUserService(repository.NewUserRepository(env.db)), env
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		FullName: "Alice Doe",
		Password: "s3cret-pass",
		Role:     model.RoleStaff,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, registered.AccessToken)
	assert.NotEmpty(t, registered.RefreshToken)
	assert.Equal(t, model.RoleStaff, registered.User.Role)

	loggedIn, err := svc.Login(ctx, LoginRequest{Username: "alice", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, loggedIn.User.ID)

	_, err = svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	svc, _ := newUserService(t)

	_, err := svc.Register(context.Background(), RegisterRequest{
		Username: "root",
		Email:    "root@example.com",
		Password: "s3cret-pass",
		Role:     "admin",
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{
		Username: "alice", Email: "alice@example.com", Password: "s3cret-pass", Role: model.RoleStaff,
	})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterRequest{
		Username: "alice", Email: "other@example.com", Password: "s3cret-pass", Role: model.RoleStaff,
	})
	require.ErrorIs(t, err, ErrConflict)

	_, err = svc.Register(ctx, RegisterRequest{
		Username: "alice2", Email: "alice@example.com", Password: "s3cret-pass", Role: model.RoleStaff,
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterRequest{
		Username: "alice", Email: "alice@example.com", Password: "s3cret-pass", Role: model.RoleFinance,
	})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, registered.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, registered.RefreshToken, refreshed.RefreshToken)
	assert.Equal(t, registered.User.ID, refreshed.User.ID)

	// The old token is spent.
	_, err = svc.Refresh(ctx, registered.RefreshToken)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestGetMe(t *testing.T) {
	svc, env := newUserService(t)
	ctx := context.Background()

	user := seedUser(t, env.db, "carol", model.RoleApproverLevel2)

	me, err := svc.GetMe(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "carol", me.Username)

	_, err = svc.GetMe(ctx, "not-a-uuid")
	require.ErrorIs(t, err, ErrValidation)
}
