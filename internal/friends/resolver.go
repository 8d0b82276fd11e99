// Package friends derives the undirected friendship relation from the
// directed friend-edge table.
package friends

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"finlink-client-go/internal/models"
	"finlink-client-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRequestExists is returned when an open edge already links the two
// users (pending or accepted, either direction).
var ErrRequestExists = errors.New("friend request already exists")

// Friend is a normalized accepted edge exposing the other party.
type Friend struct {
	EdgeId  string
	Profile models.Profile
	Since   time.Time
}

// Request is an incoming pending edge exposing the requester.
type Request struct {
	EdgeId    string
	From      models.Profile
	CreatedAt time.Time
}

type Resolver struct {
	edges    store.FriendStore
	profiles store.ProfileStore
	closed   atomic.Bool

	mu       sync.RWMutex
	friends  []Friend
	incoming []Request
}

func NewResolver(edges store.FriendStore, profiles store.ProfileStore) *Resolver {
	return &Resolver{edges: edges, profiles: profiles}
}

// Close marks the resolver torn down; late results are discarded.
func (r *Resolver) Close() {
	r.closed.Store(true)
}

// Friends returns the last fetched friend list.
func (r *Resolver) Friends() []Friend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Friend, len(r.friends))
	copy(out, r.friends)
	return out
}

// Incoming returns the last fetched incoming pending requests.
func (r *Resolver) Incoming() []Request {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Request, len(r.incoming))
	copy(out, r.incoming)
	return out
}

// Fetch resolves accepted edges in both directions into friend records
// exposing the counterpart's profile, plus incoming pending requests.
// The edge row only carries ids, so the counterpart profile is always a
// secondary fetch, including when the user is the edge's target.
// No ordering is guaranteed beyond the store's default.
func (r *Resolver) Fetch(ctx context.Context, userId string) error {
	if userId == "" {
		return fmt.Errorf("user id cannot be empty")
	}

	accepted, err := r.edges.GetFriendEdges(ctx, userId, models.FriendStatusAccepted)
	if err != nil {
		return fmt.Errorf("friend edge fetch failed: %w", err)
	}

	friends := make([]Friend, 0, len(accepted))
	for _, edge := range accepted {
		counterpart, perr := r.profiles.GetProfile(ctx, edge.CounterpartId(userId))
		if perr != nil {
			zap.L().Warn("Friend profile unavailable",
				zap.String("edge_id", edge.Id),
				zap.Error(perr))
			continue
		}
		friends = append(friends, Friend{
			EdgeId:  edge.Id,
			Profile: *counterpart,
			Since:   edge.UpdatedAt,
		})
	}

	pending, err := r.edges.GetIncomingRequests(ctx, userId)
	if err != nil {
		return fmt.Errorf("incoming request fetch failed: %w", err)
	}

	incoming := make([]Request, 0, len(pending))
	for _, edge := range pending {
		requester, perr := r.profiles.GetProfile(ctx, edge.RequesterId)
		if perr != nil {
			zap.L().Warn("Requester profile unavailable",
				zap.String("edge_id", edge.Id),
				zap.Error(perr))
			continue
		}
		incoming = append(incoming, Request{
			EdgeId:    edge.Id,
			From:      *requester,
			CreatedAt: edge.CreatedAt,
		})
	}

	if r.closed.Load() {
		return nil
	}

	r.mu.Lock()
	r.friends = friends
	r.incoming = incoming
	r.mu.Unlock()
	return nil
}

// SendRequest proposes a new pending edge requester -> target. An open
// edge in either direction refuses the request, and a rejected edge
// stays closed: re-proposal returns store.ErrEdgeClosed.
func (r *Resolver) SendRequest(ctx context.Context, requesterId, targetId string) (*models.FriendEdge, error) {
	if requesterId == "" || targetId == "" || requesterId == targetId {
		return nil, fmt.Errorf("invalid friend request parties")
	}

	existing, err := r.edges.GetEdgeBetween(ctx, requesterId, targetId)
	switch {
	case err == nil:
		if existing.Status == models.FriendStatusRejected {
			return nil, store.ErrEdgeClosed
		}
		return nil, ErrRequestExists
	case errors.Is(err, store.ErrRowNotFound):
		// No edge yet; propose one.
	default:
		return nil, fmt.Errorf("edge lookup failed: %w", err)
	}

	created, err := r.edges.CreateFriendRequest(ctx, store.CreateFriendRequestParams{
		Id:          uuid.New().String(),
		RequesterId: requesterId,
		TargetId:    targetId,
	})
	if err != nil {
		return nil, fmt.Errorf("friend request failed: %w", err)
	}
	return created, nil
}

// Respond settles an incoming pending request. Transitions are
// pending -> accepted or pending -> rejected only; the tentative local
// removal is rolled back when the store update fails.
func (r *Resolver) Respond(ctx context.Context, edgeId string, accept bool) error {
	status := models.FriendStatusRejected
	if accept {
		status = models.FriendStatusAccepted
	}

	// Tentative phase: drop the request from the visible list.
	removed, idx := r.removeIncoming(edgeId)

	updated, err := r.edges.UpdateFriendStatus(ctx, edgeId, status)
	if err != nil {
		if removed != nil {
			r.restoreIncoming(*removed, idx)
		}
		if errors.Is(err, store.ErrRowNotFound) {
			return fmt.Errorf("request already settled: %w", store.ErrEdgeClosed)
		}
		return fmt.Errorf("friend response failed: %w", err)
	}

	if !accept || r.closed.Load() {
		return nil
	}

	// Confirmed accept: surface the new friend immediately.
	counterpart, perr := r.profiles.GetProfile(ctx, updated.RequesterId)
	if perr != nil {
		zap.L().Warn("Accepted friend profile unavailable", zap.Error(perr))
		return nil
	}
	r.mu.Lock()
	r.friends = append(r.friends, Friend{
		EdgeId:  updated.Id,
		Profile: *counterpart,
		Since:   updated.UpdatedAt,
	})
	r.mu.Unlock()
	return nil
}

func (r *Resolver) removeIncoming(edgeId string) (*Request, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.incoming {
		if r.incoming[i].EdgeId == edgeId {
			req := r.incoming[i]
			r.incoming = append(r.incoming[:i], r.incoming[i+1:]...)
			return &req, i
		}
	}
	return nil, -1
}

func (r *Resolver) restoreIncoming(req Request, idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx > len(r.incoming) {
		idx = len(r.incoming)
	}
	r.incoming = append(r.incoming[:idx], append([]Request{req}, r.incoming[idx:]...)...)
}
