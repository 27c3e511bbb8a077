// Package data provides the data access layer of the homecare portal.
// This package contains repository interfaces and their PostgreSQL
// implementations for users, requests, legacy service requests, appointments,
// WhatsApp chat logs and the subscription mirror, plus the SSM parameter store.
//
// Key responsibilities:
//  1. Query execution and result mapping onto lib/models types
//  2. Row locking and transaction management for status transitions
//  3. Translating sql.ErrNoRows into models.NotFoundError
//  4. Structured logging of failed statements
//
// All repositories follow the interface pattern so that services and Lambda
// handlers can be tested against in-memory fakes.
package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"homecare/lib/models"
	"homecare/lib/query"

	"github.com/sirupsen/logrus"
)

// UserRepository defines the contract for user data operations.
//
// Users are created by the Cognito post-confirmation trigger and looked up by
// Cognito ID when tokens are issued, so both the numeric id and the Cognito
// sub are first-class identifiers here.
type UserRepository interface {
	// CreateUser inserts a client account. Calling it again for the same
	// Cognito ID returns the existing row instead of failing, because Cognito
	// retries the trigger on timeouts.
	CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.User, error)

	// GetUserByID returns models.NotFoundError for unknown ids.
	GetUserByID(ctx context.Context, id int64) (*models.User, error)

	// GetUserProfile retrieves the user by Cognito ID (the 'sub' claim).
	// Used by the token customizer and by GET /me.
	GetUserProfile(ctx context.Context, cognitoID string) (*models.User, error)

	// FindUserByPhone matches on digits only, so "+62 812-345" and "62812345"
	// refer to the same account. Returns nil without error when nobody matches.
	FindUserByPhone(ctx context.Context, digits string) (*models.User, error)

	// ListUsers serves the admin user table.
	ListUsers(ctx context.Context, p query.Params) (*Page[models.User], error)

	// MutateUser locks the row, applies fn and writes the editable columns.
	MutateUser(ctx context.Context, id int64, fn func(*models.User) error) (*models.User, error)

	// SetStripeCustomerID stores the billing provider customer of a user.
	SetStripeCustomerID(ctx context.Context, id int64, customerID string) error

	// DeleteUser hard-deletes the user. Requests, appointments and
	// subscriptions go with it through ON DELETE CASCADE; chat rows keep
	// their content with user_id set to NULL.
	DeleteUser(ctx context.Context, id int64) error
}

// UserDao implements UserRepository using PostgreSQL.
type UserDao struct {
	DB     *sql.DB        // PostgreSQL connection pool
	Logger *logrus.Logger // Structured logger
}

const userColumns = `id, cognito_id, name, email, phone, address, role, is_active, membership_tier,
	credit_balance, notes, stripe_customer_id, created_at, updated_at`

// UserListSpec is the list surface of GET /users. The status filter is a view
// over is_active.
var UserListSpec = query.Spec{
	Filters: []query.Filter{
		{Key: "role", Column: "role", Accept: query.OneOf(models.RoleValues()...)},
		{Key: "status", Column: "is_active", Accept: query.Mapped(map[string]any{
			models.UserStatusActive:   true,
			models.UserStatusInactive: false,
		})},
		{Key: "membership_tier", Column: "membership_tier", Accept: query.NonEmpty(50)},
	},
	SearchColumns: []string{"name", "email", "phone"},
	SortColumns: map[string]string{
		"id":         "id",
		"name":       "name",
		"email":      "email",
		"created_at": "created_at",
		"role":       "role",
	},
	DefaultSort:      "created_at",
	DefaultDirection: query.Desc,
	IDColumn:         "id",
	StatusExpr:       "CASE WHEN is_active THEN 'active' ELSE 'inactive' END",
	StatusKeys:       []string{models.UserStatusActive, models.UserStatusInactive},
}

var userListing = listing{columns: userColumns, from: "users", spec: UserListSpec}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID, &u.CognitoID, &u.Name, &u.Email, &u.Phone, &u.Address, &u.Role, &u.IsActive, &u.MembershipTier,
		&u.CreditBalance, &u.Notes, &u.StripeCustomerID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser uses ON CONFLICT on cognito_id. The no-op update makes
// RETURNING produce the existing row.
func (dao *UserDao) CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.User, error) {
	u, err := scanUser(dao.DB.QueryRowContext(ctx, `
		INSERT INTO users (cognito_id, name, email, phone, role, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (cognito_id) DO UPDATE SET cognito_id = EXCLUDED.cognito_id
		RETURNING `+userColumns,
		req.CognitoID, req.Name, req.Email, req.Phone, models.RoleClient,
	))
	if err != nil {
		dao.Logger.WithError(err).WithFields(logrus.Fields{
			"operation":  "CreateUser",
			"cognito_id": req.CognitoID,
		}).Error("Failed to insert user")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func (dao *UserDao) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(dao.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (dao *UserDao) GetUserProfile(ctx context.Context, cognitoID string) (*models.User, error) {
	u, err := scanUser(dao.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE cognito_id = $1", cognitoID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "user"}
	}
	if err != nil {
		dao.Logger.WithError(err).WithFields(logrus.Fields{
			"operation":  "GetUserProfile",
			"cognito_id": cognitoID,
		}).Error("Failed to load user profile")
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}
	return u, nil
}

func (dao *UserDao) FindUserByPhone(ctx context.Context, digits string) (*models.User, error) {
	if digits == "" {
		return nil, nil
	}
	u, err := scanUser(dao.DB.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE phone <> '' AND regexp_replace(phone, '\D', '', 'g') = $1
		ORDER BY id
		LIMIT 1
	`, digits))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by phone: %w", err)
	}
	return u, nil
}

func (dao *UserDao) ListUsers(ctx context.Context, p query.Params) (*Page[models.User], error) {
	return list(ctx, dao.DB, userListing, nil, p, func(row rowScanner) (models.User, error) {
		u, err := scanUser(row)
		if err != nil {
			return models.User{}, err
		}
		return *u, nil
	})
}

func (dao *UserDao) MutateUser(ctx context.Context, id int64, fn func(*models.User) error) (*models.User, error) {
	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	u, err := scanUser(tx.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}

	if err := fn(u); err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE users SET
			name = $1, phone = $2, address = $3, role = $4, is_active = $5,
			membership_tier = $6, credit_balance = $7, notes = $8, updated_at = NOW()
		WHERE id = $9
		RETURNING updated_at
	`, u.Name, u.Phone, u.Address, u.Role, u.IsActive, u.MembershipTier, u.CreditBalance, u.Notes, u.ID,
	).Scan(&u.UpdatedAt)
	if err != nil {
		dao.Logger.WithError(err).WithFields(logrus.Fields{
			"operation": "MutateUser",
			"user_id":   id,
		}).Error("Failed to update user")
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit user update: %w", err)
	}
	return u, nil
}

func (dao *UserDao) SetStripeCustomerID(ctx context.Context, id int64, customerID string) error {
	_, err := dao.DB.ExecContext(ctx, `UPDATE users SET stripe_customer_id = $1, updated_at = NOW() WHERE id = $2`, customerID, id)
	if err != nil {
		return fmt.Errorf("failed to store stripe customer: %w", err)
	}
	return nil
}

func (dao *UserDao) DeleteUser(ctx context.Context, id int64) error {
	res, err := dao.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		dao.Logger.WithError(err).WithFields(logrus.Fields{
			"operation": "DeleteUser",
			"user_id":   id,
		}).Error("Failed to delete user")
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFound("user", id)
	}
	return nil
}
