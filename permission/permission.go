// Package permission decides what an actor may do with a task. Every function is pure and
// cheap so callers can evaluate it on every render.
package permission

import "taskflow/domain"

// CanMoveTask reports whether actor may move task. An empty target checks only whether the
// task may be picked up at all.
func CanMoveTask(actor domain.Actor, task domain.TaskRef, target domain.Status) bool {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleManager:
		return true
	case domain.RoleMember:
		if task.AssigneeID == nil || *task.AssigneeID != actor.ID {
			return false
		}
		if target == "" {
			return true
		}
		return memberTransition(task.Status, target)
	}
	return false
}

// memberTransition allows exactly one step forward along TODO -> DOING -> DONE.
func memberTransition(from, to domain.Status) bool {
	next, ok := from.Next()
	return ok && next == to
}

// CanCreateTask reports whether role may create tasks.
func CanCreateTask(role domain.Role) bool {
	return role == domain.RoleAdmin || role == domain.RoleManager
}

// CanDelete reports whether role may delete tasks.
func CanDelete(role domain.Role) bool {
	return role == domain.RoleAdmin
}

// CanEdit reports whether actor may open the edit form for task.
func CanEdit(actor domain.Actor, task domain.TaskRef) bool {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleManager:
		return true
	case domain.RoleMember:
		return task.AssigneeID != nil && *task.AssigneeID == actor.ID
	}
	return false
}

// CanApplyPatch reports whether actor may send patch for task. Members may only move their
// own task one step forward.
func CanApplyPatch(actor domain.Actor, task domain.TaskRef, patch domain.TaskPatch) bool {
	if !CanEdit(actor, task) {
		return false
	}
	if actor.Role != domain.RoleMember {
		return true
	}
	return patch.OnlyStatus() && CanMoveTask(actor, task, *patch.Status)
}

// CanManageUsers reports whether role may list users and change roles.
func CanManageUsers(role domain.Role) bool {
	return role == domain.RoleAdmin
}

// CanListAssignable reports whether role may read the assignable users list.
func CanListAssignable(role domain.Role) bool {
	return role == domain.RoleAdmin || role == domain.RoleManager
}

// AuditScope returns the audit scope role may read. ok is false for roles without access.
func AuditScope(role domain.Role) (domain.AuditScope, bool) {
	switch role {
	case domain.RoleAdmin:
		return domain.AuditScopeAll, true
	case domain.RoleManager, domain.RoleMember:
		return domain.AuditScopeMine, true
	}
	return "", false
}
