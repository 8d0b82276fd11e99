// Package chat reconciles the conversation list against the hosted
// store and tracks the active conversation's messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"finlink-client-go/internal/models"
	"finlink-client-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrSelfConversation rejects a self-targeted conversation before any
// network call is made.
var ErrSelfConversation = errors.New("cannot start a conversation with yourself")

// ErrNoSession is returned when an operation needs an authenticated user.
var ErrNoSession = errors.New("no active session")

// SessionSource is the slice of the session store the reconciler needs.
type SessionSource interface {
	Current() *models.Session
}

// Enriched is a conversation row augmented with derived projections:
// the counterpart's profile and the last-message preview. Both are
// recomputed on every reconciliation pass, never stored.
type Enriched struct {
	models.Conversation
	Counterpart  *models.Profile
	LastMessage  *models.Message
	LastActivity time.Time
}

// ReconcilerConfig contains configuration for Reconciler
type ReconcilerConfig struct {
	Rows     store.ConversationStore
	Profiles store.ProfileStore
	Session  SessionSource
}

// Reconciler maintains the enriched conversation list. Fetches are
// single-flight guarded; merges into visible state are single atomic
// replacements under the lock.
type Reconciler struct {
	rows     store.ConversationStore
	profiles store.ProfileStore
	session  SessionSource

	group  singleflight.Group
	closed atomic.Bool

	mu            sync.RWMutex
	conversations []Enriched
	activeId      string
	messages      []ChatMessage
}

func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{
		rows:     cfg.Rows,
		profiles: cfg.Profiles,
		session:  cfg.Session,
	}
}

// Close marks the reconciler torn down. In-flight passes complete but
// their results are discarded.
func (r *Reconciler) Close() {
	r.closed.Store(true)
}

// Conversations returns the current enriched list, most recent first.
func (r *Reconciler) Conversations() []Enriched {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Enriched, len(r.conversations))
	copy(out, r.conversations)
	return out
}

// ActiveId returns the selected conversation id, or "".
func (r *Reconciler) ActiveId() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeId
}

// FetchConversations runs one reconciliation pass. Concurrent callers
// share a single in-flight pass: overlapping realtime triggers cause
// exactly one network fetch.
func (r *Reconciler) FetchConversations(ctx context.Context) error {
	_, err, _ := r.group.Do("conversations", func() (any, error) {
		return nil, r.reconcile(ctx)
	})
	return err
}

func (r *Reconciler) reconcile(ctx context.Context) error {
	sess := r.session.Current()
	if sess == nil {
		return ErrNoSession
	}
	userId := sess.User.Id

	rows, err := r.rows.GetConversations(ctx, userId)
	if err != nil {
		return fmt.Errorf("conversation fetch failed: %w", err)
	}

	// Per-row enrichment runs concurrently; order among fetches is
	// unspecified, the merge below is a single state replacement.
	enriched := make([]Enriched, len(rows))
	var wg sync.WaitGroup
	for i, row := range rows {
		wg.Add(1)
		go func(i int, row models.Conversation) {
			defer wg.Done()
			enriched[i] = r.enrich(ctx, row, userId)
		}(i, row)
	}
	wg.Wait()

	// The store holds at most one row per unordered pair; drop any
	// duplicate defensively, keeping the most recently active one.
	seen := make(map[string]struct{}, len(enriched))
	deduped := enriched[:0]
	for _, conv := range enriched {
		key := conv.PairKey()
		if _, dup := seen[key]; dup {
			zap.L().Warn("Dropping duplicate conversation pair",
				zap.String("conversation_id", conv.Id),
				zap.String("pair", key))
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, conv)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].LastActivity.After(deduped[j].LastActivity)
	})

	if r.closed.Load() {
		return nil
	}

	r.mu.Lock()
	r.conversations = deduped

	// Selection policy: auto-select the most recent conversation when
	// nothing is active; never displace an existing selection on a
	// background refresh.
	needLoad := ""
	if r.activeId == "" || !containsId(deduped, r.activeId) {
		r.activeId = ""
		r.messages = nil
		if len(deduped) > 0 {
			r.activeId = deduped[0].Id
			needLoad = r.activeId
		}
	}
	r.mu.Unlock()

	if needLoad != "" {
		return r.loadMessages(ctx, needLoad)
	}
	return nil
}

func (r *Reconciler) enrich(ctx context.Context, row models.Conversation, userId string) Enriched {
	conv := Enriched{Conversation: row, LastActivity: row.UpdatedAt}
	if conv.LastActivity.IsZero() {
		conv.LastActivity = row.CreatedAt
	}

	counterpart, err := r.profiles.GetProfile(ctx, row.CounterpartId(userId))
	if err != nil {
		zap.L().Warn("Counterpart profile unavailable",
			zap.String("conversation_id", row.Id),
			zap.Error(err))
	} else {
		conv.Counterpart = counterpart
	}

	last, err := r.rows.GetLastMessage(ctx, row.Id)
	if err != nil {
		if !errors.Is(err, store.ErrRowNotFound) {
			zap.L().Warn("Last message unavailable",
				zap.String("conversation_id", row.Id),
				zap.Error(err))
		}
	} else {
		conv.LastMessage = last
		if last.CreatedAt.After(conv.LastActivity) {
			conv.LastActivity = last.CreatedAt
		}
	}

	return conv
}

// SetActive selects a conversation and loads its messages.
func (r *Reconciler) SetActive(ctx context.Context, conversationId string) error {
	r.mu.Lock()
	if !containsId(r.conversations, conversationId) {
		r.mu.Unlock()
		return fmt.Errorf("unknown conversation: %s", conversationId)
	}
	r.activeId = conversationId
	r.mu.Unlock()

	return r.loadMessages(ctx, conversationId)
}

// CreateConversation starts (or re-activates) the conversation with
// another user. Self-conversations are rejected with no network call.
func (r *Reconciler) CreateConversation(ctx context.Context, otherUserId string) error {
	sess := r.session.Current()
	if sess == nil {
		return ErrNoSession
	}
	userId := sess.User.Id

	if otherUserId == "" || otherUserId == userId {
		return ErrSelfConversation
	}

	user1, user2 := userId, otherUserId
	if user1 > user2 {
		user1, user2 = user2, user1
	}

	_, err := r.rows.CreateConversation(ctx, store.CreateConversationParams{
		Id:      uuid.New().String(),
		User1Id: user1,
		User2Id: user2,
	})
	if err != nil && !errors.Is(err, store.ErrDuplicateRow) {
		return fmt.Errorf("conversation create failed: %w", err)
	}

	if err := r.FetchConversations(ctx); err != nil {
		return err
	}

	pair := models.PairKey(userId, otherUserId)
	r.mu.RLock()
	targetId := ""
	for _, conv := range r.conversations {
		if conv.PairKey() == pair {
			targetId = conv.Id
			break
		}
	}
	r.mu.RUnlock()

	if targetId == "" {
		return fmt.Errorf("created conversation not found after refresh")
	}
	return r.SetActive(ctx, targetId)
}

func containsId(conversations []Enriched, id string) bool {
	for _, conv := range conversations {
		if conv.Id == id {
			return true
		}
	}
	return false
}
