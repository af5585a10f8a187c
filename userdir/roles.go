package userdir

import (
	"context"
	"fmt"

	"taskflow/domain"
	"taskflow/permission"
)

// RoleUpdater changes a user's role through the users API.
type RoleUpdater interface {
	UpdateUserRole(ctx context.Context, userID int64, role domain.Role) (domain.User, error)
}

// RoleManager changes roles on behalf of an admin and keeps the directory consistent.
type RoleManager struct {
	dir     *Directory
	updater RoleUpdater
}

// NewRoleManager binds role changes to dir.
func NewRoleManager(dir *Directory, updater RoleUpdater) *RoleManager {
	return &RoleManager{dir: dir, updater: updater}
}

// UpdateRole sets the role of userID. Only admins may call it, and a successful change
// always invalidates the directory.
func (m *RoleManager) UpdateRole(ctx context.Context, userID int64, role domain.Role) (domain.User, error) {
	const op = "updateRole"
	actor, ok := m.dir.identity.CurrentUser()
	if !ok || !permission.CanManageUsers(actor.Role) {
		return domain.User{}, domain.Invalid(op, domain.ErrNotPermitted)
	}
	if _, ok := domain.ParseRole(string(role)); !ok {
		return domain.User{}, domain.Invalid(op, fmt.Errorf("%w: role %q", domain.ErrInvalidInput, role))
	}

	updated, err := m.updater.UpdateUserRole(ctx, userID, role)
	if err != nil {
		return domain.User{}, err
	}
	m.dir.Invalidate(ctx)
	return updated, nil
}
