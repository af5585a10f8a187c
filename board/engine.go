// Package board holds the task board state: the last loaded task list, the active filter
// and the commands that change tasks through the repository.
package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskflow/domain"
	"taskflow/permission"
)

const maxTitleLength = 200

// ErrStale is wrapped when a command took effect but the reload that follows it failed.
var ErrStale = errors.New("board view is stale")

// Repository is the tasks API.
type Repository interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	CreateTask(ctx context.Context, task domain.NewTask) (domain.Task, error)
	UpdateTask(ctx context.Context, id int64, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

// Identity supplies the current actor.
type Identity interface {
	CurrentUser() (domain.Actor, bool)
}

// Directory labels users and is loaded before the board.
type Directory interface {
	Labeler
	Ensure(ctx context.Context) error
}

// Engine owns the board state. Its lock is never held across a repository call, so a
// load that completes late derives its view from the filter current at completion time.
type Engine struct {
	repo     Repository
	identity Identity
	users    Directory
	logger   *log.Logger
	tracer   trace.Tracer
	now      func() time.Time

	mu        sync.Mutex
	tasks     []domain.Task
	filter    Filter
	loaded    bool
	stale     bool
	loadedAt  time.Time
	signedOut bool

	listeners *listeners
}

// NewEngine creates an engine with an empty board.
func NewEngine(repo Repository, identity Identity, users Directory, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Engine{
		repo:      repo,
		identity:  identity,
		users:     users,
		logger:    logger,
		tracer:    otel.Tracer("taskflow/board"),
		now:       time.Now,
		listeners: &listeners{},
	}
}

// Subscribe registers fn for engine events and returns a function that removes it.
func (e *Engine) Subscribe(fn func(Event)) func() {
	return e.listeners.add(fn)
}

// Load fetches the task list and replaces the board wholesale. On failure the previous
// tasks stay in place and the view is marked stale.
func (e *Engine) Load(ctx context.Context) (View, error) {
	ctx, span := e.tracer.Start(ctx, "board.load")
	defer span.End()

	actor, err := e.actor("listTasks")
	if err != nil {
		return e.View(), err
	}
	if e.users != nil {
		if err := e.users.Ensure(ctx); err != nil {
			if domain.IsUnauthorized(err) {
				return e.View(), e.fail(span, err)
			}
			e.logger.WithError(err).Debug("board load continues without user labels")
		}
	}

	tasks, err := e.repo.ListTasks(ctx)
	if err != nil {
		e.mu.Lock()
		e.stale = e.loaded
		e.mu.Unlock()
		e.fail(span, err)
		e.listeners.emit(Event{Kind: EventLoadFailed, Err: err})
		return e.View(), err
	}

	kept := tasks[:0:0]
	for _, t := range tasks {
		if !t.Status.Valid() {
			e.logger.WithField("task", t.ID).WithField("status", t.Status).Warn("task with unknown status skipped")
			continue
		}
		kept = append(kept, t)
	}
	span.SetAttributes(attribute.Int("board.tasks", len(kept)))

	e.mu.Lock()
	e.tasks = kept
	e.loaded = true
	e.stale = false
	e.loadedAt = e.now()
	v := e.viewLocked(actor)
	e.mu.Unlock()

	e.listeners.emit(Event{Kind: EventView, View: &v})
	return v, nil
}

// ApplyFilters replaces the filter and re-derives the view from the cached tasks.
func (e *Engine) ApplyFilters(f Filter) View {
	e.mu.Lock()
	e.filter = f
	e.mu.Unlock()
	v := e.View()
	e.listeners.emit(Event{Kind: EventView, View: &v})
	return v
}

// ClearFilters resets the filter to its defaults.
func (e *Engine) ClearFilters() View {
	return e.ApplyFilters(Filter{})
}

// Filter returns the active filter.
func (e *Engine) Filter() Filter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

// View derives the current board.
func (e *Engine) View() View {
	actor, _ := e.identity.CurrentUser()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked(actor)
}

func (e *Engine) viewLocked(actor domain.Actor) View {
	v := buildView(e.tasks, e.filter, actor, e.users)
	v.Stale = e.stale
	v.LoadedAt = e.loadedAt
	return v
}

// Summary digests the unfiltered board for the dashboard.
func (e *Engine) Summary() Summary {
	actor, _ := e.identity.CurrentUser()
	e.mu.Lock()
	s := Summarize(e.tasks, actor)
	e.mu.Unlock()
	s.Greeting = Greeting(e.now())
	return s
}

// Task returns the last known copy of a task.
func (e *Engine) Task(id int64) (domain.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// Create validates and creates a task, then reloads the board.
func (e *Engine) Create(ctx context.Context, nt domain.NewTask) (domain.Task, error) {
	const op = "createTask"
	ctx, span := e.tracer.Start(ctx, "board.create")
	defer span.End()

	actor, err := e.actor(op)
	if err != nil {
		return domain.Task{}, err
	}
	if !permission.CanCreateTask(actor.Role) {
		return domain.Task{}, e.fail(span, domain.Invalid(op, domain.ErrNotPermitted))
	}
	nt.Title = strings.TrimSpace(nt.Title)
	if err := validateTitle(nt.Title); err != nil {
		return domain.Task{}, e.fail(span, domain.Invalid(op, err))
	}
	if nt.Status == "" {
		nt.Status = domain.StatusTodo
	}
	if !nt.Status.Valid() {
		return domain.Task{}, e.fail(span, domain.Invalid(op, fmt.Errorf("%w: status %q", domain.ErrInvalidInput, nt.Status)))
	}

	created, err := e.repo.CreateTask(ctx, nt)
	if err != nil {
		return domain.Task{}, e.fail(span, err)
	}
	return created, e.reload(ctx, op)
}

// Update sends the fields of edit that differ from the last known task. An edit that
// changes nothing sends no request.
func (e *Engine) Update(ctx context.Context, id int64, edit domain.TaskEdit) error {
	const op = "updateTask"
	ctx, span := e.tracer.Start(ctx, "board.update", trace.WithAttributes(attribute.Int64("task.id", id)))
	defer span.End()

	actor, err := e.actor(op)
	if err != nil {
		return err
	}
	current, ok := e.Task(id)
	if !ok {
		return e.fail(span, domain.Invalid(op, domain.ErrTaskNotFound))
	}
	if !permission.CanEdit(actor, current.Ref()) {
		return e.fail(span, domain.Invalid(op, domain.ErrNotPermitted))
	}

	edit.Title = strings.TrimSpace(edit.Title)
	patch := domain.Diff(current, edit)
	if patch.Empty() {
		return nil
	}
	if !permission.CanApplyPatch(actor, current.Ref(), patch) {
		return e.fail(span, domain.Invalid(op, domain.ErrNotPermitted))
	}
	if patch.Title != nil {
		if err := validateTitle(*patch.Title); err != nil {
			return e.fail(span, domain.Invalid(op, err))
		}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return e.fail(span, domain.Invalid(op, fmt.Errorf("%w: status %q", domain.ErrInvalidInput, *patch.Status)))
	}
	span.SetAttributes(attribute.StringSlice("task.fields", patch.Fields()))

	if _, err := e.repo.UpdateTask(ctx, id, patch); err != nil {
		return e.fail(span, err)
	}
	return e.reload(ctx, op)
}

// Delete removes a task, then reloads the board.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	const op = "deleteTask"
	ctx, span := e.tracer.Start(ctx, "board.delete", trace.WithAttributes(attribute.Int64("task.id", id)))
	defer span.End()

	actor, err := e.actor(op)
	if err != nil {
		return err
	}
	if !permission.CanDelete(actor.Role) {
		return e.fail(span, domain.Invalid(op, domain.ErrNotPermitted))
	}
	if _, ok := e.Task(id); !ok {
		return e.fail(span, domain.Invalid(op, domain.ErrTaskNotFound))
	}
	if err := e.repo.DeleteTask(ctx, id); err != nil {
		return e.fail(span, err)
	}
	return e.reload(ctx, op)
}

// ChangeStatus moves a task to target. Moving a task onto its own status does nothing.
func (e *Engine) ChangeStatus(ctx context.Context, id int64, target domain.Status) error {
	const op = "changeStatus"
	ctx, span := e.tracer.Start(ctx, "board.change_status", trace.WithAttributes(
		attribute.Int64("task.id", id),
		attribute.String("task.target", string(target)),
	))
	defer span.End()

	actor, err := e.actor(op)
	if err != nil {
		return err
	}
	if !target.Valid() {
		return e.fail(span, domain.Invalid(op, fmt.Errorf("%w: status %q", domain.ErrInvalidInput, target)))
	}
	current, ok := e.Task(id)
	if !ok {
		return e.fail(span, domain.Invalid(op, domain.ErrTaskNotFound))
	}
	if current.Status == target {
		return nil
	}
	if !permission.CanMoveTask(actor, current.Ref(), target) {
		return e.fail(span, domain.Invalid(op, domain.ErrNotPermitted))
	}

	if _, err := e.repo.UpdateTask(ctx, id, domain.TaskPatch{Status: &target}); err != nil {
		return e.fail(span, err)
	}
	return e.reload(ctx, op)
}

// Advance moves a task one column forward. A DONE task has nowhere to go and the call
// returns an empty status without a request.
func (e *Engine) Advance(ctx context.Context, id int64) (domain.Status, error) {
	current, ok := e.Task(id)
	if !ok {
		return "", domain.Invalid("advanceTask", domain.ErrTaskNotFound)
	}
	next, ok := current.Status.Next()
	if !ok {
		return "", nil
	}
	if err := e.ChangeStatus(ctx, id, next); err != nil {
		return "", err
	}
	return next, nil
}

func (e *Engine) reload(ctx context.Context, op string) error {
	if _, err := e.Load(ctx); err != nil {
		e.logger.WithError(err).WithField("op", op).Warn("reload after command failed")
		return fmt.Errorf("%s: %w: %w", op, ErrStale, err)
	}
	return nil
}

func (e *Engine) actor(op string) (domain.Actor, error) {
	e.mu.Lock()
	signedOut := e.signedOut
	e.mu.Unlock()
	if signedOut {
		return domain.Actor{}, &domain.Failure{Kind: domain.KindUnauthorized, Op: op}
	}
	actor, ok := e.identity.CurrentUser()
	if !ok {
		return domain.Actor{}, &domain.Failure{Kind: domain.KindUnauthorized, Op: op}
	}
	return actor, nil
}

// fail records err on span and halts the engine when the session is gone.
func (e *Engine) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	switch domain.KindOf(err) {
	case domain.KindUnauthorized:
		e.mu.Lock()
		already := e.signedOut
		e.signedOut = true
		e.mu.Unlock()
		if !already {
			e.logger.WithError(err).Info("session rejected, board halted")
			e.listeners.emit(Event{Kind: EventSignedOut, Err: err})
		}
	case domain.KindForbidden:
		e.listeners.emit(Event{Kind: EventWarning, Err: err})
	}
	return err
}

func validateTitle(title string) error {
	switch n := len([]rune(title)); {
	case n == 0:
		return fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	case n > maxTitleLength:
		return fmt.Errorf("%w: title exceeds %d characters", domain.ErrInvalidInput, maxTitleLength)
	}
	return nil
}
