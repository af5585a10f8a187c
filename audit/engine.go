// Package audit turns raw audit records into a grouped, searchable activity log with
// field-level diffs.
package audit

import (
	"context"
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

// Repository is the audit API.
type Repository interface {
	ListAuditEntries(ctx context.Context, scope domain.AuditScope) ([]domain.AuditLogEntry, error)
}

// Identity supplies the current actor.
type Identity interface {
	CurrentUser() (domain.Actor, bool)
}

// Directory labels users and is loaded before the log.
type Directory interface {
	Users
	Ensure(ctx context.Context) error
}

// Options controls how times are rendered.
type Options struct {
	Location       *time.Location
	DateTimeLayout string
	DayLayout      string
}

// View is the render-ready audit log.
type View struct {
	Scope     domain.AuditScope `json:"scope"`
	Counts    Counts            `json:"counts"`
	Filter    Filter            `json:"filter"`
	Groups    []DayGroup        `json:"groups"`
	Shown     int               `json:"shown"`
	Empty     bool              `json:"empty"`
	NoMatches bool              `json:"noMatches"`
	Stale     bool              `json:"stale"`
}

// Engine holds the last loaded audit entries and the active filter.
type Engine struct {
	repo     Repository
	identity Identity
	users    Directory
	logger   *log.Logger
	tracer   trace.Tracer
	opts     Options
	now      func() time.Time

	mu        sync.Mutex
	entries   []domain.AuditLogEntry
	scope     domain.AuditScope
	filter    Filter
	stale     bool
	signedOut bool
	nextHook  int
	hooks     map[int]func(error)
}

// NewEngine creates an engine with no entries.
func NewEngine(repo Repository, identity Identity, users Directory, opts Options, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Engine{
		repo:     repo,
		identity: identity,
		users:    users,
		logger:   logger,
		tracer:   otel.Tracer("taskflow/audit"),
		opts:     opts,
		now:      time.Now,
	}
}

// OnSignedOut registers fn to run once when the audit API rejects the session. The
// returned func removes it.
func (e *Engine) OnSignedOut(fn func(error)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hooks == nil {
		e.hooks = map[int]func(error){}
	}
	id := e.nextHook
	e.nextHook++
	e.hooks[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.hooks, id)
		e.mu.Unlock()
	}
}

// Load fetches the entries visible to the current actor: all of them for admins and the
// actor's own for everyone else. Viewers have no access.
func (e *Engine) Load(ctx context.Context) (View, error) {
	const op = "listAudit"
	ctx, span := e.tracer.Start(ctx, "audit.load")
	defer span.End()

	e.mu.Lock()
	signedOut := e.signedOut
	e.mu.Unlock()
	actor, ok := e.identity.CurrentUser()
	if signedOut || !ok {
		return e.View(), &domain.Failure{Kind: domain.KindUnauthorized, Op: op}
	}
	scope, ok := permission.AuditScope(actor.Role)
	if !ok {
		return e.View(), domain.Invalid(op, domain.ErrNotPermitted)
	}
	span.SetAttributes(attribute.String("audit.scope", string(scope)))

	if e.users != nil {
		if err := e.users.Ensure(ctx); err != nil {
			if domain.IsUnauthorized(err) {
				return e.View(), e.fail(span, err)
			}
			e.logger.WithError(err).Debug("audit load continues without user labels")
		}
	}

	entries, err := e.repo.ListAuditEntries(ctx, scope)
	if err != nil {
		e.mu.Lock()
		e.stale = e.entries != nil
		e.mu.Unlock()
		return e.View(), e.fail(span, err)
	}
	sorted := SortNewestFirst(entries)
	span.SetAttributes(attribute.Int("audit.entries", len(sorted)))

	e.mu.Lock()
	e.entries = sorted
	e.scope = scope
	e.stale = false
	e.mu.Unlock()
	return e.View(), nil
}

// SetFilter replaces the filter and returns the re-derived view.
func (e *Engine) SetFilter(f Filter) View {
	e.mu.Lock()
	e.filter = f
	e.mu.Unlock()
	return e.View()
}

// View derives the grouped log from the cached entries and the active filter.
func (e *Engine) View() View {
	e.mu.Lock()
	entries := e.entries
	filter := e.filter
	v := View{Scope: e.scope, Filter: filter, Stale: e.stale}
	e.mu.Unlock()

	now := e.now()
	h := e.humanizer()
	v.Counts = Count(entries)
	v.Empty = len(entries) == 0

	var shown []Entry
	for _, raw := range entries {
		entry := BuildEntry(raw, h, e.users, now)
		if filter.Match(entry) {
			shown = append(shown, entry)
		}
	}
	v.Shown = len(shown)
	v.NoMatches = !v.Empty && len(shown) == 0
	v.Groups = GroupByDay(shown, now, e.opts.Location, e.opts.DayLayout)
	if v.Groups == nil {
		v.Groups = []DayGroup{}
	}
	return v
}

// Recent returns up to n of the newest entries, ignoring the filter.
func (e *Engine) Recent(n int) []Entry {
	e.mu.Lock()
	entries := e.entries
	e.mu.Unlock()
	if n > len(entries) {
		n = len(entries)
	}
	if n < 0 {
		n = 0
	}
	now := e.now()
	h := e.humanizer()
	out := make([]Entry, 0, n)
	for _, raw := range entries[:n] {
		out = append(out, BuildEntry(raw, h, e.users, now))
	}
	return out
}

// fail records err on span and halts the engine when the session is gone.
func (e *Engine) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if !domain.IsUnauthorized(err) {
		return err
	}
	e.mu.Lock()
	already := e.signedOut
	e.signedOut = true
	hooks := make([]func(error), 0, len(e.hooks))
	for _, fn := range e.hooks {
		hooks = append(hooks, fn)
	}
	e.mu.Unlock()
	if !already {
		e.logger.WithError(err).Info("session rejected, audit halted")
		for _, fn := range hooks {
			fn(err)
		}
	}
	return err
}

func (e *Engine) humanizer() Humanizer {
	h := Humanizer{Location: e.opts.Location, Layout: e.opts.DateTimeLayout}
	if e.users != nil {
		h.Users = e.users
	}
	return h
}
