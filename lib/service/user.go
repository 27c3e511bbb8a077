package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"homecare/lib/clients"
	"homecare/lib/data"
	"homecare/lib/lifecycle"
	"homecare/lib/models"
	"homecare/lib/query"
)

type subscriptionCounter interface {
	CountCancellableSubscriptions(ctx context.Context, userID int64) (int, error)
}

type UserService struct {
	Repo          data.UserRepository
	Identity      clients.IdentityProvider
	Subscriptions subscriptionCounter
	Logger        *logrus.Logger
}

// Me returns the caller's own profile.
func (s *UserService) Me(ctx context.Context, cognitoID string) (*models.User, error) {
	return s.Repo.GetUserProfile(ctx, cognitoID)
}

func (s *UserService) Get(ctx context.Context, actor models.Actor, id int64) (*models.User, error) {
	if !actor.CanAccess(id) {
		return nil, models.NotFound("user", id)
	}
	return s.Repo.GetUserByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, actor models.Actor, raw map[string]string) (*models.UserListResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	p := query.Parse(data.UserListSpec, raw)
	page, err := s.Repo.ListUsers(ctx, p)
	if err != nil {
		return nil, err
	}
	pg, filters, links := listMeta(p, page.Total)
	return &models.UserListResponse{Users: page.Items, Pagination: pg, Stats: page.Stats, Filters: filters, Links: links}, nil
}

func (s *UserService) Update(ctx context.Context, actor models.Actor, id int64, in models.UpdateUserRequest) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.Repo.MutateUser(ctx, id, func(u *models.User) error {
		verr := models.NewValidationError()
		if in.Name != nil {
			u.Name = text(verr, "name", *in.Name, true, 255)
		}
		if in.Phone != nil {
			u.Phone = text(verr, "phone", *in.Phone, false, 30)
		}
		if in.Address != nil {
			u.Address = text(verr, "address", *in.Address, false, 500)
		}
		if in.MembershipTier != nil {
			u.MembershipTier = text(verr, "membership_tier", *in.MembershipTier, false, 50)
		}
		if m := optionalMoney(verr, "credit_balance", in.CreditBalance); m != nil {
			u.CreditBalance = *m
		}
		if in.Notes != nil {
			u.Notes = text(verr, "notes", *in.Notes, false, 5000)
		}
		return verr.Err()
	})
}

// ToggleActive flips the active flag and mirrors it to the user pool inside
// the same transaction, so a Cognito failure leaves the row unchanged.
func (s *UserService) ToggleActive(ctx context.Context, actor models.Actor, id int64) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	user, err := s.Repo.MutateUser(ctx, id, func(u *models.User) error {
		if err := lifecycle.ToggleActive(u, actor); err != nil {
			return err
		}
		if u.CognitoID == "" {
			return nil
		}
		if u.IsActive {
			return s.Identity.EnableUser(ctx, u.CognitoID)
		}
		return s.Identity.DisableUser(ctx, u.CognitoID)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{
		"operation": "ToggleActive",
		"user_id":   id,
		"is_active": user.IsActive,
		"actor_id":  actor.UserID,
	}).Info("User status changed")
	return user, nil
}

func (s *UserService) ChangeRole(ctx context.Context, actor models.Actor, id int64, in models.UpdateRoleRequest) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	role, err := models.ParseRole(strings.TrimSpace(in.Role))
	if err != nil {
		return nil, models.FieldError("role", "must be one of "+strings.Join(models.RoleValues(), ", "))
	}
	user, err := s.Repo.MutateUser(ctx, id, func(u *models.User) error {
		return lifecycle.ChangeRole(u, role, actor)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{
		"operation": "ChangeRole",
		"user_id":   id,
		"role":      role,
		"actor_id":  actor.UserID,
	}).Info("User role changed")
	return user, nil
}

// Delete removes a user. Users the provider may still bill are refused. The
// pool account is disabled before the row goes and deleted after, so a failed
// row delete can be undone by re-enabling it.
func (s *UserService) Delete(ctx context.Context, actor models.Actor, id int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if id == actor.UserID {
		return &models.ConflictError{Entity: "user", ID: id, Action: "delete", Reason: "you cannot delete your own account"}
	}

	user, err := s.Repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if s.Subscriptions != nil {
		n, err := s.Subscriptions.CountCancellableSubscriptions(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return &models.ConflictError{Entity: "user", ID: id, Action: "delete", Reason: "cancel the user's subscriptions first"}
		}
	}

	logger := s.Logger.WithFields(logrus.Fields{
		"operation":  "DeleteUser",
		"user_id":    id,
		"cognito_id": user.CognitoID,
		"actor_id":   actor.UserID,
	})

	if user.CognitoID != "" {
		if err := s.Identity.DisableUser(ctx, user.CognitoID); err != nil {
			return err
		}
	}
	if err := s.Repo.DeleteUser(ctx, id); err != nil {
		if user.CognitoID != "" && user.IsActive {
			if rerr := s.Identity.EnableUser(ctx, user.CognitoID); rerr != nil {
				logger.WithError(rerr).Error("Failed to re-enable account after delete failure")
			}
		}
		return err
	}
	if user.CognitoID != "" {
		if err := s.Identity.DeleteUser(ctx, user.CognitoID); err != nil {
			logger.WithError(err).Error("User row deleted but the disabled pool account remains")
		}
	}

	logger.Info("User deleted")
	return nil
}
