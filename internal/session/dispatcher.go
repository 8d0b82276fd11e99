package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"finlink-client-go/internal/models"

	"go.uber.org/zap"
)

// Dispatcher states.
type State int32

const (
	StateUninitialized State = iota
	StateChecking
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "uninitialized"
	}
}

// Auth state-change event types.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event is an auth-state-change notification fed into the dispatcher.
type Event struct {
	Type    EventType
	Session *models.Session
}

// AuthClient is the slice of the identity API the dispatcher consumes.
type AuthClient interface {
	Refresh(ctx context.Context, refreshToken string) (*models.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*models.Identity, error)
}

// ProfileSource loads the profile and accounts for an identity.
type ProfileSource interface {
	Load(ctx context.Context, identity models.Identity) (*models.Profile, []models.BankAccount, error)
}

// Unsubscriber tears down derived realtime subscriptions on sign-out.
type Unsubscriber interface {
	UnsubscribeAll()
}

// DispatcherConfig contains configuration for Dispatcher
type DispatcherConfig struct {
	Auth          AuthClient
	Store         *Store
	Profiles      ProfileSource
	Cache         *Cache        // optional; nil disables session persistence
	RefreshMargin time.Duration // refresh this long before token expiry
}

// Dispatcher is the auth state machine. It restores or checks the
// session on start, re-enters on every sign-in/sign-out/refresh event,
// and drives the session store and profile loader. A liveness flag
// guards every state application so nothing lands after Close.
type Dispatcher struct {
	auth          AuthClient
	store         *Store
	profiles      ProfileSource
	cache         *Cache
	refreshMargin time.Duration

	realtimeMu sync.Mutex
	realtime   Unsubscriber

	state    atomic.Int32
	events   chan Event
	stopChan chan struct{}
	doneChan chan struct{}
	started  atomic.Bool
	closed   atomic.Bool
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	margin := cfg.RefreshMargin
	if margin <= 0 {
		margin = time.Minute
	}
	return &Dispatcher{
		auth:          cfg.Auth,
		store:         cfg.Store,
		profiles:      cfg.Profiles,
		cache:         cfg.Cache,
		refreshMargin: margin,
		events:        make(chan Event, 8),
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// SetRealtime wires the realtime listener torn down on sign-out. Set
// once the listener exists; the dispatcher tolerates it being absent.
func (d *Dispatcher) SetRealtime(u Unsubscriber) {
	d.realtimeMu.Lock()
	d.realtime = u
	d.realtimeMu.Unlock()
}

// State returns the machine's current state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

func (d *Dispatcher) setState(s State) {
	old := State(d.state.Swap(int32(s)))
	if old != s {
		zap.L().Info("Auth state changed",
			zap.String("from", old.String()),
			zap.String("to", s.String()))
	}
}

// Start begins the dispatcher: an initial session check followed by the
// event loop. Events emitted during the check are queued, not lost.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.closed.Load() || !d.started.CompareAndSwap(false, true) {
		return
	}
	d.setState(StateChecking)
	go d.run(ctx)
}

// Emit feeds an external auth event into the machine. Safe to call at
// any time, including concurrently with an in-flight initial check;
// after Close the event is discarded.
func (d *Dispatcher) Emit(ev Event) {
	if d.closed.Load() {
		return
	}
	select {
	case d.events <- ev:
	default:
		zap.L().Warn("Auth event dropped, queue full", zap.String("type", string(ev.Type)))
	}
}

// SignOut revokes the session with the identity API (best effort) and
// drives the machine to unauthenticated.
func (d *Dispatcher) SignOut(ctx context.Context) {
	if sess := d.store.Current(); sess != nil {
		if err := d.auth.SignOut(ctx, sess.AccessToken); err != nil {
			zap.L().Warn("Server sign-out failed, clearing local session anyway", zap.Error(err))
		}
	}
	d.Emit(Event{Type: EventSignedOut})
}

// Close tears the dispatcher down. In-flight work completes but its
// results are discarded. Waiting for the loop only makes sense when
// Start ran; tools that never start the machine still close cleanly.
func (d *Dispatcher) Close() {
	if d.closed.CompareAndSwap(false, true) {
		close(d.stopChan)
		if d.started.Load() {
			<-d.doneChan
		}
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.doneChan)

	d.initialCheck(ctx)

	var refreshC <-chan time.Time
	var refreshTimer *time.Timer
	armRefresh := func() {
		if refreshTimer != nil {
			refreshTimer.Stop()
		}
		refreshC = nil
		sess := d.store.Current()
		if sess == nil || sess.RefreshToken == "" || sess.ExpiresAt.IsZero() {
			return
		}
		wait := time.Until(sess.ExpiresAt.Add(-d.refreshMargin))
		if wait < time.Second {
			wait = time.Second
		}
		refreshTimer = time.NewTimer(wait)
		refreshC = refreshTimer.C
	}
	armRefresh()

	for {
		select {
		case ev := <-d.events:
			d.apply(ctx, ev)
			armRefresh()
		case <-refreshC:
			d.refresh(ctx)
			armRefresh()
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// initialCheck resolves checking -> authenticated/unauthenticated from
// the cached session, refreshing a stale token when possible.
func (d *Dispatcher) initialCheck(ctx context.Context) {
	if d.cache == nil {
		d.setState(StateUnauthenticated)
		return
	}

	sess, err := d.cache.Load(ctx)
	if err != nil {
		d.setState(StateUnauthenticated)
		return
	}

	if sess.Expired() || sess.ExpiresWithin(d.refreshMargin) {
		refreshed, err := d.auth.Refresh(ctx, sess.RefreshToken)
		if err != nil {
			zap.L().Info("Cached session could not be refreshed", zap.Error(err))
			if cerr := d.cache.Clear(ctx); cerr != nil {
				zap.L().Warn("Failed to clear stale session", zap.Error(cerr))
			}
			d.setState(StateUnauthenticated)
			return
		}
		sess = refreshed
	}

	d.applySession(ctx, sess)
}

func (d *Dispatcher) apply(ctx context.Context, ev Event) {
	if d.closed.Load() {
		return
	}

	switch ev.Type {
	case EventSignedIn, EventTokenRefreshed:
		if ev.Session == nil {
			zap.L().Warn("Auth event without session ignored", zap.String("type", string(ev.Type)))
			return
		}
		d.applySession(ctx, ev.Session)
	case EventSignedOut:
		d.applySignOut(ctx)
	default:
		zap.L().Warn("Unknown auth event ignored", zap.String("type", string(ev.Type)))
	}
}

// applySession installs a session and kicks off the profile load. A
// profile-load failure is reported but never blocks the transition to
// authenticated: the session is valid on its own.
func (d *Dispatcher) applySession(ctx context.Context, sess *models.Session) {
	if d.closed.Load() {
		return
	}

	d.store.SetSession(sess)
	if d.cache != nil {
		if err := d.cache.Save(ctx, sess); err != nil {
			zap.L().Warn("Failed to persist session", zap.Error(err))
		}
	}
	d.setState(StateAuthenticated)

	go func() {
		profile, accounts, err := d.profiles.Load(ctx, sess.User)
		if err != nil {
			zap.L().Error("Profile load failed, continuing without profile",
				zap.String("user_id", sess.User.Id),
				zap.Error(err))
		}
		if d.closed.Load() {
			return
		}
		if d.store.UserId() != sess.User.Id {
			return
		}
		d.store.SetProfile(profile, accounts)
	}()
}

func (d *Dispatcher) applySignOut(ctx context.Context) {
	d.store.Clear()
	if d.cache != nil {
		if err := d.cache.Clear(ctx); err != nil {
			zap.L().Warn("Failed to clear cached session", zap.Error(err))
		}
	}

	d.realtimeMu.Lock()
	realtime := d.realtime
	d.realtimeMu.Unlock()
	if realtime != nil {
		realtime.UnsubscribeAll()
	}

	d.setState(StateUnauthenticated)
}

func (d *Dispatcher) refresh(ctx context.Context) {
	sess := d.store.Current()
	if sess == nil {
		return
	}

	refreshed, err := d.auth.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		zap.L().Error("Token refresh failed, signing out", zap.Error(err))
		d.applySignOut(ctx)
		return
	}

	zap.L().Info("Session token refreshed",
		zap.String("user_id", refreshed.User.Id),
		zap.Time("expires_at", refreshed.ExpiresAt))
	d.applySession(ctx, refreshed)
}
