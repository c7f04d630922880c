package session

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	generatedSuffixLen = 9
	base36Alphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Manager tracks which user each live connection speaks for.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	onEnd    func(*Session)
	now      func() time.Time

	// Ids issued during genMilli. Ids from different milliseconds cannot
	// collide, so the set is reset whenever the clock moves on.
	genMilli  int64
	generated map[string]struct{}
}

func NewManager() *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		generated: make(map[string]struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetTeardownHook registers a callback invoked after a session is released.
func (m *Manager) SetTeardownHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = hook
}

// Open registers a new connection under the default identity and returns
// its session. The session ID doubles as the connection ID.
func (m *Manager) Open() *Session {
	now := m.now()
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         DefaultUserID,
		ConnectedAt:    now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Resolve returns the user the connection speaks for. Unknown connections
// resolve to DefaultUserID.
func (m *Manager) Resolve(sessionID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return DefaultUserID
	}
	return s.UserID
}

// Identify binds the connection to proposedID, or to a freshly generated id
// when proposedID is blank. A connection can be identified once; repeating
// the same id is acknowledged, a different id returns ErrAlreadyIdentified.
func (m *Manager) Identify(sessionID, proposedID string) (string, error) {
	proposedID = strings.TrimSpace(proposedID)

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return "", ErrNotFound
	}
	if s.Identified {
		if proposedID == "" || proposedID == s.UserID {
			s.LastActivityAt = m.now()
			return s.UserID, nil
		}
		return s.UserID, ErrAlreadyIdentified
	}

	userID := proposedID
	if userID == "" {
		generated, err := m.generateLocked()
		if err != nil {
			return "", fmt.Errorf("generate user id: %w", err)
		}
		userID = generated
	}
	s.UserID = userID
	s.Identified = true
	s.LastActivityAt = m.now()
	return userID, nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = m.now()
	return nil
}

// Teardown releases the connection binding. Stored conversation memory is
// not affected.
func (m *Manager) Teardown(sessionID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	delete(m.sessions, sessionID)
	ended := clone(s)
	hook := m.onEnd
	m.mu.Unlock()

	if hook != nil {
		hook(ended)
	}
	return ended, nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// generateLocked builds user_<unix millis>_<random base36>, retrying on the
// rare collision with an id issued in the same millisecond.
func (m *Manager) generateLocked() (string, error) {
	milli := m.now().UnixMilli()
	if milli != m.genMilli {
		m.genMilli = milli
		clear(m.generated)
	}
	for {
		suffix, err := randomBase36(generatedSuffixLen)
		if err != nil {
			return "", err
		}
		id := fmt.Sprintf("user_%d_%s", milli, suffix)
		if _, taken := m.generated[id]; taken {
			continue
		}
		m.generated[id] = struct{}{}
		return id, nil
	}
}

var randRead = rand.Read

// randomBase36 draws n characters uniformly from base36Alphabet. Bytes at or
// above the largest multiple of 36 are discarded so every character is
// equally likely.
func randomBase36(n int) (string, error) {
	const limit = 256 - 256%len(base36Alphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/2)
	for len(out) < n {
		if _, err := randRead(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, base36Alphabet[int(b)%len(base36Alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
