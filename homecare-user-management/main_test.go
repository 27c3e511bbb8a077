package main

import (
	"context"
	"io"
	"net/http"
	"testing"

	"homecare/lib/data"
	"homecare/lib/models"
	"homecare/lib/query"
	"homecare/lib/service"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockUserRepository struct {
	data.UserRepository
	rows map[int64]*models.User
}

func (m *MockUserRepository) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := m.rows[id]
	if !ok {
		return nil, models.NotFound("user", id)
	}
	return u, nil
}

func (m *MockUserRepository) GetUserProfile(_ context.Context, cognitoID string) (*models.User, error) {
	for _, u := range m.rows {
		if u.CognitoID == cognitoID {
			return u, nil
		}
	}
	return nil, &models.NotFoundError{Entity: "user"}
}

func (m *MockUserRepository) ListUsers(context.Context, query.Params) (*data.Page[models.User], error) {
	return &data.Page[models.User]{Items: []models.User{}}, nil
}

func (m *MockUserRepository) MutateUser(_ context.Context, id int64, fn func(*models.User) error) (*models.User, error) {
	u, ok := m.rows[id]
	if !ok {
		return nil, models.NotFound("user", id)
	}
	cp := *u
	if err := fn(&cp); err != nil {
		return nil, err
	}
	m.rows[id] = &cp
	return &cp, nil
}

type MockIdentityProvider struct {
	disabled []string
}

func (m *MockIdentityProvider) DisableUser(_ context.Context, username string) error {
	m.disabled = append(m.disabled, username)
	return nil
}

func (m *MockIdentityProvider) EnableUser(context.Context, string) error { return nil }
func (m *MockIdentityProvider) DeleteUser(context.Context, string) error { return nil }

func setupTest(users ...*models.User) (*MockUserRepository, *MockIdentityProvider) {
	logger = logrus.New()
	logger.SetOutput(io.Discard)
	repo := &MockUserRepository{rows: map[int64]*models.User{}}
	for _, u := range users {
		repo.rows[u.ID] = u
	}
	identity := &MockIdentityProvider{}
	userService = &service.UserService{Repo: repo, Identity: identity, Logger: logger}
	return repo, identity
}

func apiRequest(method, resource, userID, role string, path map[string]string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod:     method,
		Resource:       resource,
		PathParameters: path,
		RequestContext: events.APIGatewayProxyRequestContext{
			Authorizer: map[string]interface{}{
				"claims": map[string]interface{}{"user_id": userID, "email": "x@example.com", "sub": "sub-" + userID, "role": role},
			},
		},
	}
}

func Test_ToggleStatus(t *testing.T) {
	//Arrange
	repo, identity := setupTest(&models.User{ID: 1, Role: models.RoleAdmin, IsActive: true}, &models.User{ID: 7, CognitoID: "sub-7", IsActive: true})

	//Act
	resp, err := LambdaHandler(context.Background(), apiRequest(http.MethodPatch, "/users/{userId}/toggle-status", "1", "admin", map[string]string{"userId": "7"}))

	//Assert
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, repo.rows[7].IsActive)
	assert.Equal(t, []string{"sub-7"}, identity.disabled)
}

func Test_ToggleOwnStatus_Is409(t *testing.T) {
	setupTest(&models.User{ID: 1, Role: models.RoleAdmin, IsActive: true})

	resp, err := LambdaHandler(context.Background(), apiRequest(http.MethodPatch, "/users/{userId}/toggle-status", "1", "admin", map[string]string{"userId": "1"}))

	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func Test_ListUsers_ClientIs403(t *testing.T) {
	setupTest()

	resp, err := LambdaHandler(context.Background(), apiRequest(http.MethodGet, "/users", "7", "client", nil))

	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func Test_GetMe(t *testing.T) {
	setupTest(&models.User{ID: 7, CognitoID: "sub-7", Name: "Dewi"})

	resp, err := LambdaHandler(context.Background(), apiRequest(http.MethodGet, "/me", "7", "client", nil))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, `"name":"Dewi"`)
}
