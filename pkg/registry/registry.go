// Package registry maps usernames to their live transport connection and
// derives the presence view from binding transitions.
//
// All operations are total: an unknown handle or username is a no-op that
// is reported through a false return, never an error.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/mahaj/dupahar-chat/pkg/model"
)

// Conn is a live transport session.
type Conn interface {
	// ID is unique per transport session.
	ID() string
	// Send queues f without blocking.
	Send(f model.Frame) error
	Close() error
}

// Transition describes a change of the username bindings. Snapshot is the
// full presence view taken atomically with the change.
type Transition struct {
	Username string
	Online   bool
	// Changed is false when Register repeated an existing binding.
	Changed bool
	// Displaced is the stale handle replaced by a duplicate Register.
	Displaced Conn
	Snapshot  []model.Presence
}

type Registry struct {
	mu       sync.Mutex
	byUser   map[string]Conn
	byConn   map[string]string
	lastSeen map[string]time.Time
	known    map[string]struct{}
	now      func() time.Time
}

type Option func(*Registry)

// WithClock overrides the clock used for last-seen timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		byUser:   make(map[string]Conn),
		byConn:   make(map[string]string),
		lastSeen: make(map[string]time.Time),
		known:    make(map[string]struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds username to conn. A handle already bound to another
// username is refused. If username was bound to a different handle, that
// handle is unbound and returned as Transition.Displaced.
func (r *Registry) Register(username string, conn Conn) (Transition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if bound, ok := r.byConn[conn.ID()]; ok {
		if bound != username {
			return Transition{}, false
		}
		return Transition{Username: username, Online: true, Snapshot: r.snapshotLocked()}, true
	}

	t := Transition{Username: username, Online: true, Changed: true}
	if old, ok := r.byUser[username]; ok {
		delete(r.byConn, old.ID())
		t.Displaced = old
	}
	r.byUser[username] = conn
	r.byConn[conn.ID()] = username
	r.known[username] = struct{}{}
	delete(r.lastSeen, username)

	t.Snapshot = r.snapshotLocked()
	return t, true
}

// Unregister removes the binding held by connID, if any, and marks its
// username offline.
func (r *Registry) Unregister(connID string) (Transition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	username, ok := r.byConn[connID]
	if !ok {
		return Transition{}, false
	}
	r.unbindLocked(username, connID)
	return Transition{Username: username, Changed: true, Snapshot: r.snapshotLocked()}, true
}

// Logout is Unregister addressed by username, used for application level
// logout rather than transport disconnect.
func (r *Registry) Logout(username string) (Transition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byUser[username]
	if !ok {
		return Transition{}, false
	}
	r.unbindLocked(username, conn.ID())
	return Transition{Username: username, Changed: true, Snapshot: r.snapshotLocked()}, true
}

func (r *Registry) unbindLocked(username, connID string) {
	delete(r.byConn, connID)
	delete(r.byUser, username)
	r.lastSeen[username] = r.now()
}

// Lookup returns the live handle bound to username.
func (r *Registry) Lookup(username string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byUser[username]
	return conn, ok
}

// UsernameOf is the reverse lookup handle -> username.
func (r *Registry) UsernameOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	username, ok := r.byConn[connID]
	return username, ok
}

// Snapshot returns the presence of every username seen since start.
func (r *Registry) Snapshot() []model.Presence {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []model.Presence {
	out := make([]model.Presence, 0, len(r.known))
	for username := range r.known {
		p := model.Presence{Username: username}
		if _, online := r.byUser[username]; online {
			p.Online = true
		} else if seen, ok := r.lastSeen[username]; ok {
			seen := seen
			p.LastSeenAt = &seen
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}
