package api

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskflow/audit"
	"taskflow/board"
	"taskflow/client"
	"taskflow/dragmove"
	"taskflow/session"
	"taskflow/storage"
	"taskflow/userdir"
)

// Workspace is everything one signed-in session works with.
type Workspace struct {
	Session  session.Session
	Identity *session.Identity
	Users    *userdir.Directory
	Roles    *userdir.RoleManager
	Board    *board.Engine
	Audit    *audit.Engine
	Drag     *dragmove.Protocol

	broker *updateBroker

	mu          sync.Mutex
	stop        func()
	auditLoaded bool
}

// WorkspaceConfig holds what every workspace shares.
type WorkspaceConfig struct {
	Client       *client.Client
	Redis        *redis.Client
	UserCacheTTL time.Duration
	// Users is shared by every workspace so that a role change outdates all directories.
	Users        *userdir.Generation
	Audit        audit.Options
	Logger       *log.Logger
}

// NewWorkspace binds the engines of s to the tasks API.
func NewWorkspace(s session.Session, cfg WorkspaceConfig) *Workspace {
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	api := cfg.Client.WithToken(s.Token)
	identity := session.NewIdentity(s)

	var loader userdir.Loader = api
	if cfg.Redis != nil {
		loader = storage.NewUserCache(api, cfg.Redis, cfg.UserCacheTTL)
	}
	users := userdir.NewShared(loader, identity, cfg.Users, logger)
	brd := board.NewEngine(api, identity, users, logger)

	return &Workspace{
		Session:  s,
		Identity: identity,
		Users:    users,
		Roles:    userdir.NewRoleManager(users, api),
		Board:    brd,
		Audit:    audit.NewEngine(api, identity, users, cfg.Audit, logger),
		Drag:     dragmove.New(brd, identity),
		broker:   newUpdateBroker(),
	}
}

// BoardView returns the board, loading it on first use.
func (w *Workspace) BoardView(ctx context.Context) (board.View, error) {
	if v := w.Board.View(); !v.LoadedAt.IsZero() {
		return v, nil
	}
	return w.Board.Load(ctx)
}

// ensureBoard loads the board once so commands can find the tasks they name.
func (w *Workspace) ensureBoard(ctx context.Context) error {
	_, err := w.BoardView(ctx)
	return err
}

// AuditView returns the audit log, loading it on first use.
func (w *Workspace) AuditView(ctx context.Context) (audit.View, error) {
	w.mu.Lock()
	loaded := w.auditLoaded
	w.mu.Unlock()
	if loaded {
		return w.Audit.View(), nil
	}
	return w.ReloadAudit(ctx)
}

// ReloadAudit fetches the audit log again.
func (w *Workspace) ReloadAudit(ctx context.Context) (audit.View, error) {
	v, err := w.Audit.Load(ctx)
	if err == nil {
		w.mu.Lock()
		w.auditLoaded = true
		w.mu.Unlock()
	}
	return v, err
}

func (w *Workspace) live() bool {
	_, ok := w.Identity.CurrentUser()
	return ok
}

func (w *Workspace) close() {
	w.Identity.Invalidate()
	w.mu.Lock()
	stop := w.stop
	w.stop = nil
	w.mu.Unlock()
	if stop != nil {
		stop()
	}
	w.broker.close()
}

// Registry keeps one workspace per session id.
type Registry struct {
	sessions Sessions
	build    func(session.Session) *Workspace
	logger   *log.Logger

	mu    sync.Mutex
	items map[string]*Workspace
}

// NewRegistry creates an empty registry. build may run twice for an id resumed by racing
// requests. Only one of the results is kept.
func NewRegistry(sessions Sessions, build func(session.Session) *Workspace, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Registry{sessions: sessions, build: build, logger: logger, items: map[string]*Workspace{}}
}

// Resolve returns the workspace of id, resuming the session when none is open. Concurrent
// first requests for the same id end up sharing one workspace.
func (r *Registry) Resolve(ctx context.Context, id string) (*Workspace, error) {
	r.mu.Lock()
	ws := r.items[id]
	r.mu.Unlock()
	if ws != nil {
		if ws.live() {
			return ws, nil
		}
		r.discard(ws)
	}

	s, err := r.sessions.Resume(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.register(s, true), nil
}

// Open registers a fresh workspace for s, replacing any previous one.
func (r *Registry) Open(s session.Session) *Workspace {
	return r.register(s, false)
}

// register installs a workspace for s. With reuse set, a live workspace already held for
// the id wins over the new one.
func (r *Registry) register(s session.Session, reuse bool) *Workspace {
	if reuse {
		r.mu.Lock()
		prev := r.items[s.ID]
		r.mu.Unlock()
		if prev != nil && prev.live() {
			return prev
		}
	}

	ws := r.build(s)
	stopBoard := ws.Board.Subscribe(func(ev board.Event) {
		switch ev.Kind {
		case board.EventSignedOut:
			r.Revoke(context.Background(), ws)
		default:
			ws.broker.notify()
		}
	})
	stopAudit := ws.Audit.OnSignedOut(func(error) {
		r.Revoke(context.Background(), ws)
	})
	ws.mu.Lock()
	ws.stop = func() {
		stopBoard()
		stopAudit()
	}
	ws.mu.Unlock()

	r.mu.Lock()
	prev := r.items[s.ID]
	if reuse && prev != nil && prev.live() {
		r.mu.Unlock()
		ws.close()
		return prev
	}
	r.items[s.ID] = ws
	r.mu.Unlock()

	if prev != nil {
		prev.close()
	}
	return ws
}

// Drop closes the workspace of id without touching the stored session.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	ws, ok := r.items[id]
	delete(r.items, id)
	r.mu.Unlock()
	if ok {
		ws.close()
	}
}

// Revoke closes ws and deletes its session. A workspace that has already been replaced or
// dropped is left alone, so a stale handle never evicts its successor.
func (r *Registry) Revoke(ctx context.Context, ws *Workspace) {
	if !r.discard(ws) {
		return
	}
	id := ws.Session.ID
	if err := r.sessions.Logout(ctx, id); err != nil {
		r.logger.WithError(err).WithField("session", id).Warn("revoked session not deleted")
	}
}

// discard removes and closes ws if it is still the registered workspace of its id.
func (r *Registry) discard(ws *Workspace) bool {
	id := ws.Session.ID
	r.mu.Lock()
	current := r.items[id] == ws
	if current {
		delete(r.items, id)
	}
	r.mu.Unlock()
	if current {
		ws.close()
	}
	return current
}

// Len returns the number of open workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
