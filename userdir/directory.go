// Package userdir keeps the lazily loaded user directory used to label assignees and
// audit actors.
package userdir

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"taskflow/domain"
	"taskflow/permission"
)

// Loader fetches user lists from the users API. ListUsers is admin only and
// ListAssignableUsers is open to admins and managers.
type Loader interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListAssignableUsers(ctx context.Context) ([]domain.User, error)
}

// Evicter is implemented by loaders that keep a shared copy of the lists.
type Evicter interface {
	Evict(ctx context.Context) error
}

// Identity supplies the current actor.
type Identity interface {
	CurrentUser() (domain.Actor, bool)
}

// Display is how a user is shown on cards and in the audit log.
type Display struct {
	Initials string `json:"initials"`
	Label    string `json:"label"`
}

// Generation counts invalidations. Directories sharing a Generation all reload after any
// one of them is invalidated.
type Generation struct {
	n atomic.Uint64
}

// Bump marks every directory of the generation as outdated.
func (g *Generation) Bump() {
	g.n.Add(1)
}

// Current returns the invalidation count.
func (g *Generation) Current() uint64 {
	return g.n.Load()
}

// Directory caches the users visible to the current actor until Invalidate is called on
// it or on any directory sharing its Generation.
type Directory struct {
	loader   Loader
	identity Identity
	logger   *log.Logger
	gen      *Generation

	mu     sync.RWMutex
	users  map[int64]domain.User
	order  []int64
	loaded bool
	seen   uint64
}

// New creates an empty directory with a generation of its own. Nothing is fetched until
// Ensure is called.
func New(loader Loader, identity Identity, logger *log.Logger) *Directory {
	return NewShared(loader, identity, nil, logger)
}

// NewShared creates an empty directory that follows gen. A nil gen behaves like New.
func NewShared(loader Loader, identity Identity, gen *Generation, logger *log.Logger) *Directory {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if gen == nil {
		gen = new(Generation)
	}
	return &Directory{loader: loader, identity: identity, logger: logger, gen: gen, users: map[int64]domain.User{}}
}

// Ensure loads the directory once. Roles that may not list users get an empty directory
// without a request. A failed load leaves the directory unloaded so the next call retries.
func (d *Directory) Ensure(ctx context.Context) error {
	gen := d.gen.Current()
	d.mu.RLock()
	fresh := d.loaded && d.seen == gen
	d.mu.RUnlock()
	if fresh {
		return nil
	}

	actor, ok := d.identity.CurrentUser()
	if !ok {
		return domain.Invalid("listUsers", domain.ErrNotPermitted)
	}

	var (
		users []domain.User
		err   error
	)
	switch {
	case permission.CanManageUsers(actor.Role):
		users, err = d.loader.ListUsers(ctx)
	case permission.CanListAssignable(actor.Role):
		users, err = d.loader.ListAssignableUsers(ctx)
	}
	if err != nil {
		d.logger.WithError(err).WithField("role", actor.Role).Warn("user directory load failed")
		return fmt.Errorf("load user directory: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = make(map[int64]domain.User, len(users))
	d.order = d.order[:0]
	for _, u := range users {
		if _, dup := d.users[u.ID]; !dup {
			d.order = append(d.order, u.ID)
		}
		d.users[u.ID] = u
	}
	d.loaded = true
	d.seen = gen
	return nil
}

// Invalidate drops the cached users, outdates every directory of the same generation and
// evicts any shared copy held by the loader.
func (d *Directory) Invalidate(ctx context.Context) {
	d.mu.Lock()
	d.users = map[int64]domain.User{}
	d.order = nil
	d.loaded = false
	d.mu.Unlock()
	d.gen.Bump()

	if ev, ok := d.loader.(Evicter); ok {
		if err := ev.Evict(ctx); err != nil {
			d.logger.WithError(err).Warn("user directory eviction failed")
		}
	}
}

// Loaded reports whether the directory holds a completed load of the current generation.
func (d *Directory) Loaded() bool {
	gen := d.gen.Current()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded && d.seen == gen
}

// Lookup returns the cached user with the given id.
func (d *Directory) Lookup(id int64) (domain.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	return u, ok
}

// Users returns the cached users in load order.
func (d *Directory) Users() []domain.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.User, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.users[id])
	}
	return out
}

// Label returns the email of a cached user, or "User #N".
func (d *Directory) Label(id int64) string {
	return d.display(id).Label
}

// Display returns initials and label for an optional user id.
func (d *Directory) Display(id *int64) Display {
	if id == nil {
		return Display{Initials: "?", Label: "Unassigned"}
	}
	return d.display(*id)
}

func (d *Directory) display(id int64) Display {
	u, ok := d.Lookup(id)
	if !ok || u.Email == "" {
		tag := fmt.Sprintf("#%d", id)
		return Display{Initials: tag, Label: "User " + tag}
	}
	local, _, _ := strings.Cut(u.Email, "@")
	initials := local
	if r := []rune(local); len(r) > 2 {
		initials = string(r[:2])
	}
	return Display{Initials: strings.ToUpper(initials), Label: u.Email}
}
