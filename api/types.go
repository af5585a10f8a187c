// Package api is the HTTP shell that exposes per-session board and audit state.
package api

import (
	"context"
	"time"

	"taskflow/domain"
	"taskflow/session"
)

// Sessions opens, resumes and closes sessions.
type Sessions interface {
	Login(ctx context.Context, email, password string) (session.Session, error)
	Register(ctx context.Context, email, password string) (session.Session, error)
	Resume(ctx context.Context, id string) (session.Session, error)
	Logout(ctx context.Context, id string) error
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Session   string      `json:"session"`
	User      domain.User `json:"user"`
	ExpiresAt *time.Time  `json:"expiresAt,omitempty"`
}

func newSessionResponse(s session.Session) sessionResponse {
	resp := sessionResponse{Session: s.ID, User: s.User}
	if !s.ExpiresAt.IsZero() {
		exp := s.ExpiresAt
		resp.ExpiresAt = &exp
	}
	return resp
}

type errorResponse struct {
	Error    string `json:"error"`
	Kind     string `json:"kind,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Warning  bool   `json:"warning,omitempty"`
}

type filterRequest struct {
	Query       string `json:"query"`
	Status      string `json:"status"`
	MyTasksOnly bool   `json:"myTasksOnly"`
}

type dragRequest struct {
	TaskID int64 `json:"taskId"`
}

type dragResponse struct {
	Payload string `json:"payload"`
}

type dropRequest struct {
	Payload string `json:"payload"`
	Target  string `json:"target"`
}

type roleRequest struct {
	Role string `json:"role"`
}
