package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"taskflow/audit"
	"taskflow/board"
	"taskflow/domain"
	"taskflow/dragmove"
	"taskflow/session"
)

// Server serves the board, audit and session routes.
type Server struct {
	sessions Sessions
	registry *Registry
	health   func(ctx context.Context) error
	logger   *log.Logger
}

// NewServer creates a server. health may be nil.
func NewServer(sessions Sessions, registry *Registry, health func(ctx context.Context) error, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Server{sessions: sessions, registry: registry, health: health, logger: logger}
}

// NewEcho returns an echo instance with the shared middleware and the sonic serializer.
func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = sonicSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.Decompress())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	return e
}

// Register wires up all routes on the provided Echo instance.
func Register(e *echo.Echo, s *Server) {
	e.GET("/healthz", s.healthz)
	e.GET("/api/stream", s.streamBoard)

	g := e.Group("/api", commandMetricsMiddleware(s.logger))
	g.POST("/session", s.login)
	g.POST("/session/register", s.register)
	g.GET("/session", s.getSession)
	g.DELETE("/session", s.logout)

	g.GET("/board", s.getBoard)
	g.POST("/board/reload", s.reloadBoard)
	g.PUT("/board/filters", s.putFilters)
	g.DELETE("/board/filters", s.clearFilters)
	g.GET("/board/summary", s.getSummary)
	g.POST("/board/tasks", s.createTask)
	g.PATCH("/board/tasks/:id", s.updateTask)
	g.DELETE("/board/tasks/:id", s.deleteTask)
	g.POST("/board/tasks/:id/advance", s.advanceTask)
	g.POST("/board/drag", s.startDrag)
	g.POST("/board/drop", s.drop)

	g.GET("/audit", s.getAudit)
	g.POST("/audit/reload", s.reloadAudit)

	g.GET("/users", s.getUsers)
	g.PUT("/users/:id/role", s.updateRole)
}

type mutationResponse struct {
	Task    *domain.Task     `json:"task,omitempty"`
	Status  domain.Status    `json:"status,omitempty"`
	Outcome dragmove.Outcome `json:"outcome,omitempty"`
	View    board.View       `json:"view"`
}

func (s *Server) healthz(c echo.Context) error {
	if s.health != nil {
		if err := s.health(c.Request().Context()); err != nil {
			s.logger.WithError(err).Warn("health check failed")
			return c.NoContent(http.StatusServiceUnavailable)
		}
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) workspace(c echo.Context) (*Workspace, error) {
	id, err := sessionIDFromRequest(c.Request())
	if err != nil {
		return nil, err
	}
	return s.registry.Resolve(c.Request().Context(), id)
}

// fail writes err and revokes the session of ws when the tasks API no longer accepts it.
func (s *Server) fail(c echo.Context, ws *Workspace, err error) error {
	m := metricsFrom(c)
	switch kind := domain.KindOf(err); kind {
	case domain.KindUnknown:
		m.SetErrorStage("internal")
	default:
		m.SetErrorStage(kind.String())
	}
	if ws != nil && domain.IsUnauthorized(err) {
		s.registry.Revoke(c.Request().Context(), ws)
	}
	if failureStatus(err) >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("route", c.Path()).Error("request failed")
	}
	return writeFailure(c, err)
}

func (s *Server) login(c echo.Context) error {
	return s.openSession(c, s.sessions.Login, http.StatusOK)
}

func (s *Server) register(c echo.Context) error {
	return s.openSession(c, s.sessions.Register, http.StatusCreated)
}

func (s *Server) openSession(c echo.Context, open func(ctx context.Context, email, password string) (session.Session, error), status int) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, nil, err)
	}
	done := observe(c)
	sess, err := open(c.Request().Context(), req.Email, req.Password)
	done()
	if err != nil {
		return s.fail(c, nil, err)
	}
	s.registry.Open(sess)
	return c.JSON(status, newSessionResponse(sess))
}

func (s *Server) getSession(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	return c.JSON(http.StatusOK, newSessionResponse(ws.Session))
}

func (s *Server) logout(c echo.Context) error {
	id, err := sessionIDFromRequest(c.Request())
	if err != nil {
		return s.fail(c, nil, err)
	}
	s.registry.Drop(id)
	if err := s.sessions.Logout(c.Request().Context(), id); err != nil {
		return s.fail(c, nil, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getBoard(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	done := observe(c)
	v, err := ws.BoardView(c.Request().Context())
	done()
	if err != nil {
		return s.fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) reloadBoard(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	done := observe(c)
	v, err := ws.Board.Load(c.Request().Context())
	done()
	if err != nil {
		return s.fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) putFilters(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	var req filterRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, ws, err)
	}
	f := board.Filter{Query: req.Query, MyTasksOnly: req.MyTasksOnly}
	if req.Status != "" {
		status, ok := domain.ParseStatus(req.Status)
		if !ok {
			return s.fail(c, ws, domain.Invalid("applyFilters", fmt.Errorf("%w: status %q", domain.ErrInvalidInput, req.Status)))
		}
		f.Status = status
	}
	return c.JSON(http.StatusOK, ws.Board.ApplyFilters(f))
}

func (s *Server) clearFilters(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	return c.JSON(http.StatusOK, ws.Board.ClearFilters())
}

func (s *Server) getSummary(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	done := observe(c)
	_, err = ws.BoardView(c.Request().Context())
	done()
	if err != nil {
		return s.fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, ws.Board.Summary())
}

func (s *Server) createTask(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	var req domain.NewTask
	if err := c.Bind(&req); err != nil {
		return s.fail(c, ws, err)
	}
	done := observe(c)
	task, err := ws.Board.Create(c.Request().Context(), req)
	done()
	if err != nil && !errors.Is(err, board.ErrStale) {
		return s.fail(c, ws, err)
	}
	return c.JSON(http.StatusCreated, mutationResponse{Task: &task, View: ws.Board.View()})
}

func (s *Server) updateTask(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	id, err := taskID(c)
	if err != nil {
		return s.fail(c, ws, err)
	}
	if err := ws.ensureBoard(c.Request().Context()); err != nil {
		return s.fail(c, ws, err)
	}
	current, ok := ws.Board.Task(id)
	if !ok {
		return s.fail(c, ws, domain.Invalid("updateTask", domain.ErrTaskNotFound))
	}
	edit := current.Edit()
	if err := c.Bind(&edit); err != nil {
		return s.fail(c, ws, err)
	}
	done := observe(c)
	err = ws.Board.Update(c.Request().Context(), id, edit)
	done()
	if err != nil && !errors.Is(err, board.ErrStale) {
		return s.fail(c, ws, err)
	}
	resp := mutationResponse{View: ws.Board.View()}
	if t, ok := ws.Board.Task(id); ok {
		resp.Task = &t
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) deleteTask(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	id, err := taskID(c)
	if err != nil {
		return s.fail(c, ws, err)
	}
	if err := ws.ensureBoard(c.Request().Context()); err != nil {
		return s.fail(c, ws, err)
	}
	done := observe(c)
	err = ws.Board.Delete(c.Request().Context(), id)
	done()
	if err != nil && !errors.Is(err, board.ErrStale) {
		return s.fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, mutationResponse{View: ws.Board.View()})
}

func (s *Server) advanceTask(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	id, err := taskID(c)
	if err != nil {
		return s.fail(c, ws, err)
	}
	if err := ws.ensureBoard(c.Request().Context()); err != nil {
		return s.fail(c, ws, err)
	}
	done := observe(c)
	next, err := ws.Board.Advance(c.Request().Context(), id)
	done()
	if err != nil && !errors.Is(err, board.ErrStale) {
		return s.fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, mutationResponse{Status: next, View: ws.Board.View()})
}

func (s *Server) startDrag(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	var req dragRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, ws, err)
	}
	if err := ws.ensureBoard(c.Request().Context()); err != nil {
		return s.fail(c, ws, err)
	}
	task, ok := ws.Board.Task(req.TaskID)
	if !ok {
		return s.fail(c, ws, domain.Invalid("startDrag", domain.ErrTaskNotFound))
	}
	g, err := ws.Drag.Start(task)
	if err != nil {
		return s.fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, dragResponse{Payload: string(g.Payload())})
}

func (s *Server) drop(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	var req dropRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, ws, err)
	}
	target, _ := domain.ParseStatus(req.Target)
	done := observe(c)
	outcome, err := ws.Drag.Drop(c.Request().Context(), []byte(req.Payload), target)
	done()
	if err != nil && !errors.Is(err, board.ErrStale) {
		return s.fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, mutationResponse{Outcome: outcome, View: ws.Board.View()})
}

func (s *Server) getAudit(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	done := observe(c)
	v, err := ws.AuditView(c.Request().Context())
	done()
	if err != nil {
		return s.fail(c, ws, err)
	}
	q := c.QueryParams()
	if q.Has("action") || q.Has("q") {
		action := strings.ToUpper(strings.TrimSpace(q.Get("action")))
		if action != "" && action != audit.ActionAll {
			if _, ok := domain.ParseAction(action); !ok {
				return s.fail(c, ws, domain.Invalid("filterAudit", fmt.Errorf("%w: action %q", domain.ErrInvalidInput, action)))
			}
		}
		v = ws.Audit.SetFilter(audit.Filter{Action: action, Query: q.Get("q")})
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) reloadAudit(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	done := observe(c)
	v, err := ws.ReloadAudit(c.Request().Context())
	done()
	if err != nil {
		return s.fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) getUsers(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	done := observe(c)
	err = ws.Users.Ensure(c.Request().Context())
	done()
	if err != nil {
		return s.fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, ws.Users.Users())
}

func (s *Server) updateRole(c echo.Context) error {
	ws, err := s.workspace(c)
	if err != nil {
		return s.fail(c, nil, err)
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return s.fail(c, ws, echo.NewHTTPError(http.StatusBadRequest, "invalid user id"))
	}
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, ws, err)
	}
	done := observe(c)
	user, err := ws.Roles.UpdateRole(c.Request().Context(), id, domain.Role(strings.ToUpper(req.Role)))
	done()
	if err != nil {
		return s.fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, user)
}

func taskID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	return id, nil
}
