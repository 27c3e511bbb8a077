package models

import (
	"time"

	"homecare/lib/query"
)

// User is a portal account. Rows are created by the sign-up trigger.
type User struct {
	ID               int64     `json:"id"`
	CognitoID        string    `json:"cognito_id,omitempty"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone,omitempty"`
	Address          string    `json:"address,omitempty"`
	Role             Role      `json:"role"`
	IsActive         bool      `json:"is_active"`
	MembershipTier   string    `json:"membership_tier,omitempty"`
	CreditBalance    Money     `json:"credit_balance"`
	Notes            string    `json:"notes,omitempty"`
	StripeCustomerID string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// Status is the list-facing view of IsActive.
func (u *User) Status() string {
	if u.IsActive {
		return UserStatusActive
	}
	return UserStatusInactive
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID int64
	Role   Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAccess reports whether the actor may see a row owned by ownerID.
func (a Actor) CanAccess(ownerID int64) bool {
	return a.IsAdmin() || a.UserID == ownerID
}

// CreateUserRequest is what the sign-up trigger knows about a new account.
type CreateUserRequest struct {
	CognitoID string
	Name      string
	Email     string
	Phone     string
}

// UpdateUserRequest is an admin profile edit; nil fields are left unchanged.
type UpdateUserRequest struct {
	Name           *string `json:"name,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	Address        *string `json:"address,omitempty"`
	MembershipTier *string `json:"membership_tier,omitempty"`
	CreditBalance  *string `json:"credit_balance,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

type UpdateRoleRequest struct {
	Role string `json:"role"`
}

type UserListResponse struct {
	Users      []User            `json:"users"`
	Pagination query.Pagination  `json:"pagination"`
	Stats      map[string]int    `json:"stats"`
	Filters    map[string]string `json:"filters"`
	Links      query.Links       `json:"links"`
}
