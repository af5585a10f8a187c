package permission

import (
	"testing"

	"taskflow/domain"
)

var allStatuses = []domain.Status{domain.StatusTodo, domain.StatusDoing, domain.StatusDone}

func TestCanMoveTaskPrivilegedRoles(t *testing.T) {
	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleManager} {
		actor := domain.Actor{ID: 1, Role: role}
		for _, from := range allStatuses {
			for _, to := range append([]domain.Status{""}, allStatuses...) {
				task := domain.TaskRef{ID: 9, Status: from}
				if !CanMoveTask(actor, task, to) {
					t.Fatalf("%s should move %s -> %q", role, from, to)
				}
			}
		}
	}
}

func TestCanMoveTaskViewerNeverMoves(t *testing.T) {
	actor := domain.Actor{ID: 1, Role: domain.RoleViewer}
	task := domain.TaskRef{ID: 9, Status: domain.StatusTodo, AssigneeID: domain.Int64(1)}
	if CanMoveTask(actor, task, "") || CanMoveTask(actor, task, domain.StatusDoing) {
		t.Fatalf("viewer must not move tasks")
	}
	if CanMoveTask(domain.Actor{ID: 1, Role: "GUEST"}, task, "") {
		t.Fatalf("unknown roles must not move tasks")
	}
}

func TestCanMoveTaskMemberTransitions(t *testing.T) {
	actor := domain.Actor{ID: 5, Role: domain.RoleMember}
	allowed := map[[2]domain.Status]bool{
		{domain.StatusTodo, domain.StatusDoing}: true,
		{domain.StatusDoing, domain.StatusDone}: true,
	}
	for _, from := range allStatuses {
		task := domain.TaskRef{ID: 3, Status: from, AssigneeID: domain.Int64(5)}
		if !CanMoveTask(actor, task, "") {
			t.Fatalf("assignee should be able to pick up own task in %s", from)
		}
		for _, to := range allStatuses {
			got := CanMoveTask(actor, task, to)
			if got != allowed[[2]domain.Status{from, to}] {
				t.Fatalf("member %s -> %s: got %v", from, to, got)
			}
		}
	}
}

func TestCanMoveTaskMemberRequiresOwnership(t *testing.T) {
	actor := domain.Actor{ID: 5, Role: domain.RoleMember}
	for _, assignee := range []*int64{nil, domain.Int64(6)} {
		task := domain.TaskRef{ID: 3, Status: domain.StatusTodo, AssigneeID: assignee}
		if CanMoveTask(actor, task, "") || CanMoveTask(actor, task, domain.StatusDoing) {
			t.Fatalf("member must not move a task assigned to %v", assignee)
		}
	}
}

func TestMemberPermissionMonotonic(t *testing.T) {
	// Anything a member may do with a target, they may also do without one.
	actor := domain.Actor{ID: 5, Role: domain.RoleMember}
	for _, assignee := range []*int64{nil, domain.Int64(5), domain.Int64(6)} {
		for _, from := range allStatuses {
			task := domain.TaskRef{Status: from, AssigneeID: assignee}
			for _, to := range allStatuses {
				if CanMoveTask(actor, task, to) && !CanMoveTask(actor, task, "") {
					t.Fatalf("target check passed but ownership check failed for %s -> %s", from, to)
				}
			}
		}
	}
}

func TestRoleGates(t *testing.T) {
	cases := []struct {
		role                        domain.Role
		create, delete, manage, lst bool
	}{
		{domain.RoleAdmin, true, true, true, true},
		{domain.RoleManager, true, false, false, true},
		{domain.RoleMember, false, false, false, false},
		{domain.RoleViewer, false, false, false, false},
	}
	for _, tc := range cases {
		if CanCreateTask(tc.role) != tc.create {
			t.Fatalf("%s create: expected %v", tc.role, tc.create)
		}
		if CanDelete(tc.role) != tc.delete {
			t.Fatalf("%s delete: expected %v", tc.role, tc.delete)
		}
		if CanManageUsers(tc.role) != tc.manage {
			t.Fatalf("%s manage: expected %v", tc.role, tc.manage)
		}
		if CanListAssignable(tc.role) != tc.lst {
			t.Fatalf("%s list assignable: expected %v", tc.role, tc.lst)
		}
	}
}

func TestCanApplyPatchMemberStatusOnly(t *testing.T) {
	actor := domain.Actor{ID: 5, Role: domain.RoleMember}
	task := domain.TaskRef{ID: 1, Status: domain.StatusTodo, AssigneeID: domain.Int64(5)}

	doing := domain.StatusDoing
	if !CanApplyPatch(actor, task, domain.TaskPatch{Status: &doing}) {
		t.Fatalf("member should advance own task")
	}
	done := domain.StatusDone
	if CanApplyPatch(actor, task, domain.TaskPatch{Status: &done}) {
		t.Fatalf("member must not skip a column")
	}
	if CanApplyPatch(actor, task, domain.TaskPatch{Status: &doing, Title: domain.String("x")}) {
		t.Fatalf("member must not edit the title")
	}
	manager := domain.Actor{ID: 2, Role: domain.RoleManager}
	if !CanApplyPatch(manager, task, domain.TaskPatch{Title: domain.String("x")}) {
		t.Fatalf("manager should edit any field")
	}
}

func TestAuditScope(t *testing.T) {
	if s, ok := AuditScope(domain.RoleAdmin); !ok || s != domain.AuditScopeAll {
		t.Fatalf("admin scope: %q %v", s, ok)
	}
	for _, role := range []domain.Role{domain.RoleManager, domain.RoleMember} {
		if s, ok := AuditScope(role); !ok || s != domain.AuditScopeMine {
			t.Fatalf("%s scope: %q %v", role, s, ok)
		}
	}
	if _, ok := AuditScope(domain.RoleViewer); ok {
		t.Fatalf("viewer must not read the audit log")
	}
}
