package client

import (
	"context"
	"net/http"

	"taskflow/domain"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by the login and register endpoints.
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, call{op: "login", method: http.MethodPost, route: "/api/auth/login",
		body: credentials{Email: email, Password: password}, result: &out})
	return out, err
}

// Register creates an account and returns its bearer token.
func (c *Client) Register(ctx context.Context, email, password string) (TokenResponse, error) {
	var out TokenResponse
	err := c.do(ctx, call{op: "register", method: http.MethodPost, route: "/api/auth/register",
		body: credentials{Email: email, Password: password}, result: &out})
	return out, err
}

// Me returns the user the token belongs to.
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var out domain.User
	err := c.do(ctx, call{op: "me", method: http.MethodGet, route: "/api/users/me", result: &out})
	return out, err
}

// ListTasks returns the tasks visible to the caller.
func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var out []domain.Task
	err := c.do(ctx, call{op: "listTasks", method: http.MethodGet, route: "/api/tasks", result: &out})
	return out, err
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, task domain.NewTask) (domain.Task, error) {
	var out domain.Task
	err := c.do(ctx, call{op: "createTask", method: http.MethodPost, route: "/api/tasks", body: task, result: &out})
	return out, err
}

// UpdateTask sends the fields set in patch.
func (c *Client) UpdateTask(ctx context.Context, id int64, patch domain.TaskPatch) (domain.Task, error) {
	var out domain.Task
	err := c.do(ctx, call{op: "updateTask", method: http.MethodPut, route: "/api/tasks/{id}",
		pathParams: idParam(id), body: patch, result: &out})
	return out, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, call{op: "deleteTask", method: http.MethodDelete, route: "/api/tasks/{id}", pathParams: idParam(id)})
}

// ListAuditEntries returns every entry for the all scope and the caller's own otherwise.
func (c *Client) ListAuditEntries(ctx context.Context, scope domain.AuditScope) ([]domain.AuditLogEntry, error) {
	route := "/api/audit/me"
	if scope == domain.AuditScopeAll {
		route = "/api/audit"
	}
	var out []domain.AuditLogEntry
	err := c.do(ctx, call{op: "listAudit", method: http.MethodGet, route: route, result: &out})
	return out, err
}

// ListUsers returns every user. Admin only.
func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	err := c.do(ctx, call{op: "listUsers", method: http.MethodGet, route: "/api/users", result: &out})
	return out, err
}

// ListAssignableUsers returns the users tasks may be assigned to.
func (c *Client) ListAssignableUsers(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	err := c.do(ctx, call{op: "listAssignableUsers", method: http.MethodGet, route: "/api/users/assignable", result: &out})
	return out, err
}

// UpdateUserRole sets the role of a user. Admin only.
func (c *Client) UpdateUserRole(ctx context.Context, id int64, role domain.Role) (domain.User, error) {
	var out domain.User
	err := c.do(ctx, call{op: "updateRole", method: http.MethodPut, route: "/api/users/{id}/role",
		pathParams: idParam(id), body: map[string]domain.Role{"role": role}, result: &out})
	return out, err
}

// Profile returns the owner of token.
func (c *Client) Profile(ctx context.Context, token string) (domain.User, error) {
	return c.WithToken(token).Me(ctx)
}
