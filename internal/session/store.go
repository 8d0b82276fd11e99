// Package session owns the client's authentication state: the session
// store, the persisted session cache, and the auth event dispatcher.
package session

import (
	"sync"

	"finlink-client-go/internal/models"
)

// Snapshot is the point-in-time view delivered to subscribers.
type Snapshot struct {
	Session  *models.Session
	Profile  *models.Profile
	Accounts []models.BankAccount
}

// Store holds the current session, profile and accounts, and notifies
// subscribers on every change. It is purely reactive: the dispatcher is
// the only writer. Construct one and pass it to every component that
// needs session data; there is no ambient singleton.
type Store struct {
	mu       sync.RWMutex
	session  *models.Session
	profile  *models.Profile
	accounts []models.BankAccount
	subs     map[int]func(Snapshot)
	nextSub  int
}

func NewStore() *Store {
	return &Store{subs: make(map[int]func(Snapshot))}
}

// Current returns the active session, or nil when unauthenticated.
func (s *Store) Current() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// UserId returns the authenticated user id, or "".
func (s *Store) UserId() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.User.Id
}

// AccessToken returns the current bearer token, or "" when no session is
// active. Underlying auth failures surface here as "no session".
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.AccessToken
}

// Profile returns the loaded profile, or nil when absent or still loading.
func (s *Store) Profile() *models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Accounts returns the loaded bank accounts.
func (s *Store) Accounts() []models.BankAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts
}

// Snapshot returns a consistent view of session, profile and accounts.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Session: s.session, Profile: s.profile, Accounts: s.accounts}
}

// Subscribe registers fn for change notifications and returns its
// unsubscribe handle. Callbacks run outside the store's lock.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// SetSession replaces the active session (sign-in or token refresh).
func (s *Store) SetSession(sess *models.Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
	s.notify()
}

// SetProfile records the loaded profile and accounts.
func (s *Store) SetProfile(profile *models.Profile, accounts []models.BankAccount) {
	s.mu.Lock()
	s.profile = profile
	s.accounts = accounts
	s.mu.Unlock()
	s.notify()
}

// Clear drops session, profile and accounts (sign-out).
func (s *Store) Clear() {
	s.mu.Lock()
	s.session = nil
	s.profile = nil
	s.accounts = nil
	s.mu.Unlock()
	s.notify()
}

func (s *Store) notify() {
	s.mu.RLock()
	snap := Snapshot{Session: s.session, Profile: s.profile, Accounts: s.accounts}
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}
