package api

import (
	"log/slog"
	"sync"
	"time"

	"github.com/erazemk/oddaja/internal/workflow"
)

// SessionIdleTimeout is how long an unused session keeps its controller.
const SessionIdleTimeout = 12 * time.Hour

type sessionEntry struct {
	ctrl *workflow.Controller
	used time.Time
}

// Sessions holds one workflow controller per client session, created on
// first use.
type Sessions struct {
	mu        sync.Mutex
	store     workflow.Store
	output    workflow.Output
	logger    *slog.Logger
	entries   map[string]*sessionEntry
	lastSweep time.Time
	now       func() time.Time
}

// NewSessions returns an empty registry. output may be nil.
func NewSessions(st workflow.Store, output workflow.Output, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		store:   st,
		output:  output,
		logger:  logger,
		entries: make(map[string]*sessionEntry),
		now:     time.Now,
	}
}

// Get returns the controller for session id.
func (s *Sessions) Get(id string) *workflow.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > time.Hour {
		s.sweep(now)
	}

	e, ok := s.entries[id]
	if !ok {
		e = &sessionEntry{ctrl: workflow.NewController(workflow.Config{
			Store:     s.store,
			SessionID: id,
			Output:    s.output,
			Logger:    s.logger,
		})}
		s.entries[id] = e
		s.logger.Info("session started", "session", id)
	}
	e.used = now
	return e.ctrl
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Sessions) sweep(now time.Time) {
	s.lastSweep = now
	for id, e := range s.entries {
		if now.Sub(e.used) > SessionIdleTimeout {
			delete(s.entries, id)
			s.logger.Info("session expired", "session", id)
		}
	}
}
