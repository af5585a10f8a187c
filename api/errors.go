package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"taskflow/domain"
	"taskflow/dragmove"
)

const loginPath = "/login"

// failureStatus maps a classified failure to the status the browser sees.
func failureStatus(err error) int {
	switch domain.KindOf(err) {
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindValidation:
		if errors.Is(err, domain.ErrTaskNotFound) {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	case domain.KindServerError, domain.KindNetworkError:
		return http.StatusBadGateway
	case domain.KindRejected:
		var f *domain.Failure
		if errors.As(err, &f) && f.Status >= 400 && f.Status < 500 {
			return f.Status
		}
		return http.StatusBadRequest
	}
	switch {
	case errors.Is(err, dragmove.ErrNotDraggable), errors.Is(err, dragmove.ErrGestureFinished):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errMissingAuthorization), errors.Is(err, errBadAuthorization):
		return http.StatusUnauthorized
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func writeFailure(c echo.Context, err error) error {
	status := failureStatus(err)
	resp := errorResponse{Error: err.Error()}
	if kind := domain.KindOf(err); kind != domain.KindUnknown {
		resp.Kind = kind.String()
	}
	switch status {
	case http.StatusUnauthorized:
		resp.Redirect = loginPath
	case http.StatusForbidden:
		resp.Warning = true
	}
	return c.JSON(status, resp)
}
