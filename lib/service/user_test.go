package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homecare/lib/models"
)

func Test_ToggleActive_MirrorsToCognito(t *testing.T) {
	//Arrange
	repo := newMockUserRepository(&models.User{ID: 7, CognitoID: "sub-7", IsActive: true})
	identity := &MockIdentityProvider{}
	svc := &UserService{Repo: repo, Identity: identity, Logger: testLogger()}

	//Act
	user, err := svc.ToggleActive(context.Background(), admin, 7)

	//Assert
	require.NoError(t, err)
	assert.False(t, user.IsActive)
	assert.Equal(t, []string{"disable:sub-7"}, identity.calls)

	user, err = svc.ToggleActive(context.Background(), admin, 7)
	require.NoError(t, err)
	assert.True(t, user.IsActive)
	assert.Equal(t, []string{"disable:sub-7", "enable:sub-7"}, identity.calls)
}

func Test_ToggleActive_CognitoFailureLeavesRowUnchanged(t *testing.T) {
	repo := newMockUserRepository(&models.User{ID: 7, CognitoID: "sub-7", IsActive: true})
	svc := &UserService{Repo: repo, Identity: &MockIdentityProvider{err: errBoom}, Logger: testLogger()}

	_, err := svc.ToggleActive(context.Background(), admin, 7)

	assert.ErrorIs(t, err, errBoom)
	assert.True(t, repo.rows[7].IsActive)
}

func Test_ToggleActive_OwnAccountIsAConflict(t *testing.T) {
	repo := newMockUserRepository(&models.User{ID: 1, IsActive: true, Role: models.RoleAdmin})
	svc := &UserService{Repo: repo, Identity: &MockIdentityProvider{}, Logger: testLogger()}

	_, err := svc.ToggleActive(context.Background(), admin, 1)

	assert.True(t, errors.Is(err, models.ErrStateConflict))
	assert.True(t, repo.rows[1].IsActive)
}

func Test_ToggleActive_AdminOnly(t *testing.T) {
	svc := &UserService{Repo: newMockUserRepository(), Identity: &MockIdentityProvider{}, Logger: testLogger()}

	_, err := svc.ToggleActive(context.Background(), client, 8)

	assert.True(t, errors.Is(err, models.ErrForbidden))
}

func Test_ChangeRole(t *testing.T) {
	repo := newMockUserRepository(&models.User{ID: 7, Role: models.RoleClient})
	svc := &UserService{Repo: repo, Identity: &MockIdentityProvider{}, Logger: testLogger()}

	_, err := svc.ChangeRole(context.Background(), admin, 7, models.UpdateRoleRequest{Role: "superuser"})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "role")

	user, err := svc.ChangeRole(context.Background(), admin, 7, models.UpdateRoleRequest{Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
}

func Test_DeleteUser(t *testing.T) {
	t.Run("own account is a conflict", func(t *testing.T) {
		repo := newMockUserRepository(&models.User{ID: 1, CognitoID: "sub-1"})
		identity := &MockIdentityProvider{}
		svc := &UserService{Repo: repo, Identity: identity, Logger: testLogger()}

		err := svc.Delete(context.Background(), admin, 1)

		assert.True(t, errors.Is(err, models.ErrStateConflict))
		assert.Empty(t, identity.calls)
		assert.Contains(t, repo.rows, int64(1))
	})

	t.Run("disables, removes the row, then deletes the account", func(t *testing.T) {
		repo := newMockUserRepository(&models.User{ID: 7, CognitoID: "sub-7", IsActive: true})
		identity := &MockIdentityProvider{}
		svc := &UserService{Repo: repo, Identity: identity, Subscriptions: &MockSubscriptionCounter{}, Logger: testLogger()}

		require.NoError(t, svc.Delete(context.Background(), admin, 7))

		assert.Equal(t, []string{"disable:sub-7", "delete:sub-7"}, identity.calls)
		assert.Equal(t, []int64{7}, repo.deleted)
	})

	t.Run("cognito failure keeps the row", func(t *testing.T) {
		repo := newMockUserRepository(&models.User{ID: 7, CognitoID: "sub-7"})
		svc := &UserService{Repo: repo, Identity: &MockIdentityProvider{err: errBoom}, Logger: testLogger()}

		assert.ErrorIs(t, svc.Delete(context.Background(), admin, 7), errBoom)
		assert.Empty(t, repo.deleted)
	})

	t.Run("row failure re-enables the account", func(t *testing.T) {
		//Arrange
		repo := newMockUserRepository(&models.User{ID: 7, CognitoID: "sub-7", IsActive: true})
		repo.deleteErr = errBoom
		identity := &MockIdentityProvider{}
		svc := &UserService{Repo: repo, Identity: identity, Logger: testLogger()}

		//Act
		err := svc.Delete(context.Background(), admin, 7)

		//Assert
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, []string{"disable:sub-7", "enable:sub-7"}, identity.calls)
		assert.Contains(t, repo.rows, int64(7))
	})

	t.Run("row failure leaves an inactive account disabled", func(t *testing.T) {
		repo := newMockUserRepository(&models.User{ID: 7, CognitoID: "sub-7", IsActive: false})
		repo.deleteErr = errBoom
		identity := &MockIdentityProvider{}
		svc := &UserService{Repo: repo, Identity: identity, Logger: testLogger()}

		assert.ErrorIs(t, svc.Delete(context.Background(), admin, 7), errBoom)
		assert.Equal(t, []string{"disable:sub-7"}, identity.calls)
	})

	t.Run("account delete failure after the row is gone still succeeds", func(t *testing.T) {
		repo := newMockUserRepository(&models.User{ID: 7, CognitoID: "sub-7", IsActive: true})
		identity := &MockIdentityProvider{failOn: map[string]error{"delete": errBoom}}
		svc := &UserService{Repo: repo, Identity: identity, Logger: testLogger()}

		require.NoError(t, svc.Delete(context.Background(), admin, 7))
		assert.Equal(t, []int64{7}, repo.deleted)
	})

	t.Run("billable subscription is a conflict", func(t *testing.T) {
		//Arrange
		repo := newMockUserRepository(&models.User{ID: 7, CognitoID: "sub-7", IsActive: true})
		identity := &MockIdentityProvider{}
		subs := &MockSubscriptionCounter{counts: map[int64]int{7: 1}}
		svc := &UserService{Repo: repo, Identity: identity, Subscriptions: subs, Logger: testLogger()}

		//Act
		err := svc.Delete(context.Background(), admin, 7)

		//Assert
		assert.True(t, errors.Is(err, models.ErrStateConflict))
		assert.Empty(t, identity.calls)
		assert.Empty(t, repo.deleted)
	})

	t.Run("unknown user", func(t *testing.T) {
		svc := &UserService{Repo: newMockUserRepository(), Identity: &MockIdentityProvider{}, Logger: testLogger()}

		assert.True(t, errors.Is(svc.Delete(context.Background(), admin, 99), models.ErrNotFound))
	})
}

func Test_GetUser_SelfOrAdmin(t *testing.T) {
	repo := newMockUserRepository(&models.User{ID: 7, Name: "Dewi"})
	svc := &UserService{Repo: repo, Logger: testLogger()}

	u, err := svc.Get(context.Background(), client, 7)
	require.NoError(t, err)
	assert.Equal(t, "Dewi", u.Name)

	_, err = svc.Get(context.Background(), other, 7)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = svc.List(context.Background(), client, nil)
	assert.True(t, errors.Is(err, models.ErrForbidden))
}

func Test_UpdateUser_RejectsNegativeCredit(t *testing.T) {
	repo := newMockUserRepository(&models.User{ID: 7, CreditBalance: 500})
	svc := &UserService{Repo: repo, Logger: testLogger()}
	credit := "-1.00"

	_, err := svc.Update(context.Background(), admin, 7, models.UpdateUserRequest{CreditBalance: &credit})

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "credit_balance")
	assert.Equal(t, models.Money(500), repo.rows[7].CreditBalance)
}
