package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"finlink-client-go/internal/models"
)

type fakeAuthClient struct {
	refreshSession *models.Session
	refreshErr     error
	refreshCalls   atomic.Int64
	signOutCalls   atomic.Int64
}

func (f *fakeAuthClient) Refresh(_ context.Context, _ string) (*models.Session, error) {
	f.refreshCalls.Add(1)
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshSession, nil
}

func (f *fakeAuthClient) SignOut(_ context.Context, _ string) error {
	f.signOutCalls.Add(1)
	return nil
}

func (f *fakeAuthClient) GetUser(_ context.Context, _ string) (*models.Identity, error) {
	return &models.Identity{Id: "u1"}, nil
}

type fakeProfileSource struct {
	profile  *models.Profile
	err      error
	loadOnce atomic.Int64
}

func (f *fakeProfileSource) Load(_ context.Context, identity models.Identity) (*models.Profile, []models.BankAccount, error) {
	f.loadOnce.Add(1)
	if f.err != nil {
		return nil, nil, f.err
	}
	if f.profile != nil {
		return f.profile, nil, nil
	}
	return &models.Profile{Id: identity.Id, Handle: identity.EmailLocalPart()}, nil, nil
}

type fakeUnsubscriber struct {
	calls atomic.Int64
}

func (f *fakeUnsubscriber) UnsubscribeAll() { f.calls.Add(1) }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func newTestDispatcher(t *testing.T, auth *fakeAuthClient, withCache bool) (*Dispatcher, *Store, *Cache) {
	t.Helper()
	store := NewStore()
	var cache *Cache
	if withCache {
		var cleanup func()
		cache, cleanup = setupTestCache(t)
		t.Cleanup(cleanup)
	}
	d := NewDispatcher(DispatcherConfig{
		Auth:          auth,
		Store:         store,
		Profiles:      &fakeProfileSource{},
		Cache:         cache,
		RefreshMargin: time.Minute,
	})
	return d, store, cache
}

func TestDispatcher_NoCachedSession(t *testing.T) {
	d, _, _ := newTestDispatcher(t, &fakeAuthClient{}, true)
	d.Start(context.Background())
	defer d.Close()

	waitFor(t, "unauthenticated state", func() bool {
		return d.State() == StateUnauthenticated
	})
}

func TestDispatcher_RestoresCachedSession(t *testing.T) {
	d, store, cache := newTestDispatcher(t, &fakeAuthClient{}, true)
	if err := cache.Save(context.Background(), testSession("u1")); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}

	d.Start(context.Background())
	defer d.Close()

	waitFor(t, "authenticated state", func() bool {
		return d.State() == StateAuthenticated
	})
	if store.UserId() != "u1" {
		t.Errorf("Expected session installed, got user %q", store.UserId())
	}
	waitFor(t, "profile load", func() bool {
		return store.Profile() != nil
	})
	if store.Profile().Id != "u1" {
		t.Errorf("Expected profile for u1, got %+v", store.Profile())
	}
}

func TestDispatcher_RefreshesStaleCachedSession(t *testing.T) {
	refreshed := testSession("u1")
	refreshed.AccessToken = "refreshed-token"
	auth := &fakeAuthClient{refreshSession: refreshed}
	d, store, cache := newTestDispatcher(t, auth, true)

	stale := testSession("u1")
	stale.ExpiresAt = time.Now().Add(-time.Hour).UTC()
	if err := cache.Save(context.Background(), stale); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}

	d.Start(context.Background())
	defer d.Close()

	waitFor(t, "authenticated state", func() bool {
		return d.State() == StateAuthenticated
	})
	if auth.refreshCalls.Load() != 1 {
		t.Errorf("Expected one refresh call, got %d", auth.refreshCalls.Load())
	}
	if store.AccessToken() != "refreshed-token" {
		t.Errorf("Expected refreshed token installed, got %q", store.AccessToken())
	}
}

func TestDispatcher_UnrefreshableSessionClearsCache(t *testing.T) {
	auth := &fakeAuthClient{refreshErr: errors.New("refresh token revoked")}
	d, _, cache := newTestDispatcher(t, auth, true)

	stale := testSession("u1")
	stale.ExpiresAt = time.Now().Add(-time.Hour).UTC()
	if err := cache.Save(context.Background(), stale); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}

	d.Start(context.Background())
	defer d.Close()

	waitFor(t, "unauthenticated state", func() bool {
		return d.State() == StateUnauthenticated
	})
	if _, err := cache.Load(context.Background()); err == nil {
		t.Error("Expected the stale session cleared from the cache")
	}
}

func TestDispatcher_SignedInEvent(t *testing.T) {
	d, store, cache := newTestDispatcher(t, &fakeAuthClient{}, true)
	d.Start(context.Background())
	defer d.Close()

	waitFor(t, "initial check", func() bool {
		return d.State() == StateUnauthenticated
	})

	d.Emit(Event{Type: EventSignedIn, Session: testSession("u2")})
	waitFor(t, "authenticated state", func() bool {
		return d.State() == StateAuthenticated
	})
	if store.UserId() != "u2" {
		t.Errorf("Expected user u2, got %q", store.UserId())
	}

	// Sign-in persists the session for the next start.
	cached, err := cache.Load(context.Background())
	if err != nil {
		t.Fatalf("Expected the session cached: %v", err)
	}
	if cached.User.Id != "u2" {
		t.Errorf("Expected cached user u2, got %q", cached.User.Id)
	}
}

func TestDispatcher_SignOutClearsEverything(t *testing.T) {
	auth := &fakeAuthClient{}
	d, store, cache := newTestDispatcher(t, auth, true)
	unsub := &fakeUnsubscriber{}
	d.SetRealtime(unsub)

	if err := cache.Save(context.Background(), testSession("u1")); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}
	d.Start(context.Background())
	defer d.Close()

	waitFor(t, "authenticated state", func() bool {
		return d.State() == StateAuthenticated
	})

	d.SignOut(context.Background())
	waitFor(t, "unauthenticated state", func() bool {
		return d.State() == StateUnauthenticated
	})

	if auth.signOutCalls.Load() != 1 {
		t.Errorf("Expected server-side revoke, got %d calls", auth.signOutCalls.Load())
	}
	if store.Current() != nil {
		t.Error("Expected the session store cleared")
	}
	if unsub.calls.Load() != 1 {
		t.Errorf("Expected realtime subscriptions torn down, got %d calls", unsub.calls.Load())
	}
	if _, err := cache.Load(context.Background()); err == nil {
		t.Error("Expected the cached session cleared")
	}
}

func TestDispatcher_EventWithoutSessionIgnored(t *testing.T) {
	d, _, _ := newTestDispatcher(t, &fakeAuthClient{}, true)
	d.Start(context.Background())
	defer d.Close()

	waitFor(t, "initial check", func() bool {
		return d.State() == StateUnauthenticated
	})

	d.Emit(Event{Type: EventSignedIn})
	time.Sleep(50 * time.Millisecond)
	if d.State() != StateUnauthenticated {
		t.Errorf("A sign-in event without a session must be ignored, got %s", d.State())
	}
}

func TestDispatcher_EmitAfterCloseIsDiscarded(t *testing.T) {
	d, store, _ := newTestDispatcher(t, &fakeAuthClient{}, true)
	d.Start(context.Background())
	waitFor(t, "initial check", func() bool {
		return d.State() == StateUnauthenticated
	})

	d.Close()
	d.Emit(Event{Type: EventSignedIn, Session: testSession("u1")})
	time.Sleep(50 * time.Millisecond)
	if store.Current() != nil {
		t.Error("An event after Close must not install a session")
	}
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	d, _, _ := newTestDispatcher(t, &fakeAuthClient{}, false)
	d.Start(context.Background())
	d.Close()
	d.Close()
}

func TestDispatcher_CloseWithoutStartReturns(t *testing.T) {
	d, _, _ := newTestDispatcher(t, &fakeAuthClient{}, false)

	// One-shot tools build the dispatcher through service wiring and
	// close it at exit without ever starting the loop.
	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked when the dispatcher was never started")
	}

	d.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	if d.State() != StateUninitialized {
		t.Errorf("Start after Close must be a no-op, got state %s", d.State())
	}
}
