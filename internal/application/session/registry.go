package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nst-ai/lesson-hub/internal/domain/navigation"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/logger"
	"github.com/nst-ai/lesson-hub/pkg/timeutil"
)

// ErrUnknownSession is returned for a navigation session id that is not live.
// Unlike shared.ErrSessionNotFound (a bad login token) it is a plain NOT_FOUND.
var ErrUnknownSession = shared.NewDomainError("session", "Get", shared.ErrNotFound, "navigation session not found")

// Registry keeps the live controllers of one process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Controller

	machine *navigation.Machine
	content ContentRequester
	clock   timeutil.Clock
	log     *logger.Logger
	config  Config
}

// NewRegistry creates an empty registry.
func NewRegistry(machine *navigation.Machine, content ContentRequester, clock timeutil.Clock, log *logger.Logger, config Config) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Controller),
		machine:  machine,
		content:  content,
		clock:    clock,
		log:      log,
		config:   config,
	}
}

// Open starts a new session from initial and returns it with a fresh opener
// key.
func (r *Registry) Open(initial navigation.SessionState) *Controller {
	c := newController(uuid.NewString(), uuid.NewString(), initial, r.machine, r.content, r.clock, r.log, r.config)

	r.mu.Lock()
	r.sessions[c.ID()] = c
	r.mu.Unlock()
	return c
}

// Get returns a live session or ErrUnknownSession.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return c, nil
}

// Close stops and forgets one session.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	c, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		c.Close()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll stops every session; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Controller)
	r.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}

// SweepIdle closes every session whose last client call is before cutoff and
// returns how many were closed.
func (r *Registry) SweepIdle(cutoff time.Time) int {
	r.mu.Lock()
	var idle []*Controller
	for id, c := range r.sessions {
		if c.LastActive().Before(cutoff) {
			idle = append(idle, c)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	if len(idle) > 0 {
		r.log.Info("idle sessions closed", logger.Int("count", len(idle)))
	}
	return len(idle)
}
