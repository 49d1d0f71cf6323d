package access

import "sync"

// Sessions hands out one console per tenant and admin user.
type Sessions struct {
	deps Deps

	mu       sync.Mutex
	consoles map[string]*Console
}

func NewSessions(deps Deps) *Sessions {
	return &Sessions{deps: deps, consoles: map[string]*Console{}}
}

func (s *Sessions) For(tenantID, userID string) *Console {
	key := tenantID + "/" + userID
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consoles[key]
	if !ok {
		c = NewConsole(s.deps, tenantID, userID)
		s.consoles[key] = c
	}
	return c
}

// DropIfIdle ends the session unless a commit is running. A missing session
// is not an error. The console's lock is held across the check and the delete
// so a commit cannot start in between.
func (s *Sessions) DropIfIdle(tenantID, userID string) error {
	key := tenantID + "/" + userID
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consoles[key]
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCommitting {
		return ErrCommitInProgress
	}
	delete(s.consoles, key)
	return nil
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.consoles)
}
