package lifecycle

import "homecare/lib/models"

// ToggleActive flips a user's active flag. Admins cannot lock themselves out.
func ToggleActive(u *models.User, actor models.Actor) error {
	if u.ID == actor.UserID && u.IsActive {
		return &models.ConflictError{Entity: "user", ID: u.ID, Action: "deactivate", Reason: "you cannot deactivate your own account"}
	}
	u.IsActive = !u.IsActive
	return nil
}

// ChangeRole sets a user's role. Admins cannot demote themselves.
func ChangeRole(u *models.User, role models.Role, actor models.Actor) error {
	if u.ID == actor.UserID && role != models.RoleAdmin {
		return &models.ConflictError{Entity: "user", ID: u.ID, Action: "change role of", Reason: "you cannot remove your own admin role"}
	}
	u.Role = role
	return nil
}
