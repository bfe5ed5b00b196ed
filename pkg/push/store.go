package push

import (
	"sort"
	"sync"
	"time"

	"github.com/oneconcern/datapush/pkg/model"
	"github.com/oneconcern/datapush/pkg/push/status"
)

type sessionEntry struct {
	session model.PushSession

	// commit is held for the duration of a commit on this session
	commit sync.Mutex
}

// SessionStore keeps track of live push sessions.
//
// Sessions are handed out as copies: callers change a session through Update or Transition only.
// Sessions older than the TTL are no longer reachable, even before they are reclaimed.
type SessionStore struct {
	mx       sync.RWMutex
	sessions map[string]*sessionEntry
	now      func() time.Time
	ttl      time.Duration
}

// NewSessionStore builds an empty session store
func NewSessionStore(now func() time.Time, ttl time.Duration) *SessionStore {
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		now:      now,
		ttl:      ttl,
	}
}

// Now yields the current time on the clock of the store
func (s *SessionStore) Now() time.Time {
	return s.now()
}

// Create a new session in state Init, with a fresh token
func (s *SessionStore) Create(ref model.DatasetRef, baseline, upstream model.Stamp) model.PushSession {
	s.mx.Lock()
	defer s.mx.Unlock()

	token := model.NewToken()
	for {
		if _, taken := s.sessions[token]; !taken {
			break
		}
		token = model.NewToken()
	}

	sess := model.PushSession{
		Token:     token,
		Dataset:   ref,
		Baseline:  baseline,
		Upstream:  upstream,
		Staged:    []string{},
		CreatedAt: s.now().UTC(),
		State:     model.SessionInit,
	}
	s.sessions[token] = &sessionEntry{session: sess}
	return copySession(sess)
}

// Get a copy of a live session
func (s *SessionStore) Get(token string) (model.PushSession, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	entry, err := s.lookup(token)
	if err != nil {
		return model.PushSession{}, err
	}
	return copySession(entry.session), nil
}

// Update a live session. The change is discarded if fn returns an error
func (s *SessionStore) Update(token string, fn func(*model.PushSession) error) (model.PushSession, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	entry, err := s.lookup(token)
	if err != nil {
		return model.PushSession{}, err
	}
	updated := copySession(entry.session)
	if err := fn(&updated); err != nil {
		return model.PushSession{}, err
	}
	if !entry.session.State.CanTransition(updated.State) {
		return model.PushSession{}, status.ErrBadRequest.WrapMessage("session %q cannot move from %v to %v", token, entry.session.State, updated.State)
	}
	entry.session = updated
	return copySession(updated), nil
}

// Transition moves a live session to another state
func (s *SessionStore) Transition(token string, to model.SessionState) (model.PushSession, error) {
	return s.Update(token, func(sess *model.PushSession) error {
		sess.State = to
		return nil
	})
}

// Remove a session from the store.
//
// The returned flag is true for the one caller which actually removed the session.
func (s *SessionStore) Remove(token string) (model.PushSession, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()

	entry, ok := s.sessions[token]
	if !ok {
		return model.PushSession{}, false
	}
	delete(s.sessions, token)
	return copySession(entry.session), true
}

// Has tells if a token refers to a session held by the store, expired or not
func (s *SessionStore) Has(token string) bool {
	s.mx.RLock()
	defer s.mx.RUnlock()
	_, ok := s.sessions[token]
	return ok
}

// Len is the number of sessions held by the store, including expired ones
func (s *SessionStore) Len() int {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return len(s.sessions)
}

// Expired lists the sessions older than some TTL, oldest first
func (s *SessionStore) Expired(ttl time.Duration) []model.PushSession {
	s.mx.RLock()
	defer s.mx.RUnlock()

	now := s.now()
	expired := make([]model.PushSession, 0)
	for _, entry := range s.sessions {
		if entry.session.Age(now) > ttl {
			expired = append(expired, copySession(entry.session))
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].CreatedAt.Before(expired[j].CreatedAt) })
	return expired
}

// Reclaim removes a session, unless a commit is in progress on it.
//
// The session is marked Aborted. The returned flag is true for the one caller which actually removed it.
func (s *SessionStore) Reclaim(token string) (model.PushSession, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()

	entry, ok := s.sessions[token]
	if !ok {
		return model.PushSession{}, false
	}
	if !entry.commit.TryLock() {
		return model.PushSession{}, false
	}
	defer entry.commit.Unlock()

	delete(s.sessions, token)
	entry.session.State = model.SessionAborted
	return copySession(entry.session), true
}

// lockCommit acquires the commit latch of a session.
//
// A concurrent commit on the same session is rejected, not waited for.
func (s *SessionStore) lockCommit(token string) (func(), error) {
	s.mx.RLock()
	entry, err := s.lookup(token)
	s.mx.RUnlock()
	if err != nil {
		return nil, err
	}
	if !entry.commit.TryLock() {
		return nil, status.ErrBadRequest.WrapMessage("a commit is already in progress for session %q", token)
	}
	return entry.commit.Unlock, nil
}

func (s *SessionStore) lookup(token string) (*sessionEntry, error) {
	if token == "" {
		return nil, status.ErrUnknownToken.WrapMessage("missing token")
	}
	entry, ok := s.sessions[token]
	if !ok {
		return nil, status.ErrUnknownToken.WrapMessage("token %q", token)
	}
	if s.ttl > 0 && entry.session.Age(s.now()) > s.ttl {
		return nil, status.ErrUnknownToken.WrapMessage("token %q has expired", token)
	}
	return entry, nil
}

func copySession(sess model.PushSession) model.PushSession {
	sess.Staged = append([]string{}, sess.Staged...)
	if sess.Meta != nil {
		sess.Meta = append([]byte{}, sess.Meta...)
	}
	return sess
}

// addStaged inserts a path in a sorted set of paths
func addStaged(staged []string, pth string) []string {
	i := sort.SearchStrings(staged, pth)
	if i < len(staged) && staged[i] == pth {
		return staged
	}
	staged = append(staged, "")
	copy(staged[i+1:], staged[i:])
	staged[i] = pth
	return staged
}
