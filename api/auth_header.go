package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const bearerPrefix = "Bearer "

// sessionIDFromRequest reads the session id from the Authorization header, or from the
// session query parameter for clients that cannot set headers (EventSource).
func sessionIDFromRequest(req *http.Request) (string, error) {
	values := req.Header.Values(echo.HeaderAuthorization)
	if len(values) == 0 {
		if id := strings.TrimSpace(req.URL.Query().Get("session")); id != "" {
			return id, nil
		}
		return "", errMissingAuthorization
	}
	return sessionIDFromString(values[0])
}

func sessionIDFromString(raw string) (string, error) {
	trimmed := strings.Trim(raw, " ")
	if trimmed == "" {
		return "", errMissingAuthorization
	}
	if len(trimmed) <= len(bearerPrefix) || !strings.HasPrefix(trimmed, bearerPrefix) {
		return "", errBadAuthorization
	}
	id := strings.TrimSpace(trimmed[len(bearerPrefix):])
	if id == "" || strings.ContainsAny(id, " \t") {
		return "", errBadAuthorization
	}
	return id, nil
}
