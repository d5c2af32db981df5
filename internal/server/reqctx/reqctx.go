// Package reqctx binds a resolved credential context to exactly one request.
//
// A binding lives in the request's context.Context, never in a process-wide
// slot, so concurrently running requests cannot observe each other's
// handles. The Manager additionally tracks open bindings by request id so
// they can be released by id and counted.
package reqctx

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gsheetsmcp/internal/logging"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/sheets/v4"
)

// Handles is the credential-bound client set handed to tool handlers.
type Handles struct {
	Sheets   *sheets.Service
	Drive    *drive.Service
	FolderID string
	UserID   string
	Email    string
}

// Scope is one request's binding. It is closed exactly once.
type Scope struct {
	id string

	mu      sync.RWMutex
	handles *Handles
}

func (s *Scope) ID() string { return s.id }

func (s *Scope) get() (*Handles, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handles, s.handles != nil
}

func (s *Scope) close() {
	s.mu.Lock()
	s.handles = nil
	s.mu.Unlock()
}

type scopeKey struct{}

type Manager struct {
	mu     sync.Mutex
	active map[string]*Scope
	logger logging.Logger
}

func NewManager(logger logging.Logger) *Manager {
	return &Manager{
		active: make(map[string]*Scope),
		logger: logger.With("module", "reqctx"),
	}
}

// Bind attaches handles to requestID and returns a context carrying the
// binding. Only code running under the returned context (or one derived
// from it) can see the handles.
func (m *Manager) Bind(ctx context.Context, requestID string, h *Handles) (context.Context, *Scope) {
	s := &Scope{id: requestID, handles: h}

	m.mu.Lock()
	if prev, ok := m.active[requestID]; ok {
		prev.close()
		m.logger.Warn(ctx, "request id rebound", "request_id", requestID)
	}
	m.active[requestID] = s
	m.mu.Unlock()

	return context.WithValue(ctx, scopeKey{}, s), s
}

// Unbind releases requestID's binding. Unbinding an unknown or already
// released id is a no-op.
func (m *Manager) Unbind(requestID string) {
	m.mu.Lock()
	s, ok := m.active[requestID]
	delete(m.active, requestID)
	m.mu.Unlock()

	if ok {
		s.close()
	}
}

func (m *Manager) release(s *Scope) {
	m.mu.Lock()
	if cur, ok := m.active[s.id]; ok && cur == s {
		delete(m.active, s.id)
	}
	m.mu.Unlock()

	s.close()
}

// Run binds handles for the duration of fn. The binding is released when fn
// returns or panics, and also as soon as ctx is cancelled.
func (m *Manager) Run(ctx context.Context, requestID string, h *Handles, fn func(ctx context.Context) error) error {
	ctx, s := m.Bind(ctx, requestID, h)
	defer m.release(s)

	stop := context.AfterFunc(ctx, func() { m.release(s) })
	defer stop()

	return fn(ctx)
}

// Active returns the number of open bindings.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Current returns the handles bound to the request ctx belongs to. It
// reports false outside a binding and after the binding has been released.
func Current(ctx context.Context) (*Handles, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	if !ok {
		return nil, false
	}
	return s.get()
}

// RequestID returns the id of the binding ctx belongs to, if any.
func RequestID(ctx context.Context) string {
	if s, ok := ctx.Value(scopeKey{}).(*Scope); ok {
		return s.id
	}
	return ""
}
