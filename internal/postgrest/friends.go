/**
 * Copyright 2025-present Finlink Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package postgrest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"finlink-client-go/internal/models"
	"finlink-client-go/internal/store"

	"go.uber.org/zap"
)

func validateFriendEdge(e *models.FriendEdge) error {
	if e.Id == "" || e.RequesterId == "" || e.TargetId == "" {
		return fmt.Errorf("friend edge missing id or parties")
	}
	if !models.ValidFriendStatus(e.Status) {
		return fmt.Errorf("friend edge has unknown status %q", e.Status)
	}
	return nil
}

// GetFriendEdges returns edges with the given status where userId is
// either requester or target.
func (s *Service) GetFriendEdges(ctx context.Context, userId, status string) ([]models.FriendEdge, error) {
	zap.L().Debug("Querying friend edges",
		zap.String("user_id", userId),
		zap.String("status", status))

	query := url.Values{}
	query.Set("or", fmt.Sprintf("(requester_id.eq.%s,target_id.eq.%s)", userId, userId))
	if status != "" {
		query.Set("status", "eq."+status)
	}

	data, err := s.get(ctx, tableFriends, query)
	if err != nil {
		return nil, fmt.Errorf("unable to query friend edges: %w", err)
	}
	return decodeRows(tableFriends, data, validateFriendEdge)
}

func (s *Service) GetIncomingRequests(ctx context.Context, userId string) ([]models.FriendEdge, error) {
	query := url.Values{}
	query.Set("target_id", "eq."+userId)
	query.Set("status", "eq."+models.FriendStatusPending)

	data, err := s.get(ctx, tableFriends, query)
	if err != nil {
		return nil, fmt.Errorf("unable to query incoming requests: %w", err)
	}
	return decodeRows(tableFriends, data, validateFriendEdge)
}

// GetEdgeBetween returns the edge between two users in either direction,
// or store.ErrRowNotFound when none exists.
func (s *Service) GetEdgeBetween(ctx context.Context, userA, userB string) (*models.FriendEdge, error) {
	query := url.Values{}
	query.Set("or", fmt.Sprintf(
		"(and(requester_id.eq.%s,target_id.eq.%s),and(requester_id.eq.%s,target_id.eq.%s))",
		userA, userB, userB, userA))

	data, err := s.get(ctx, tableFriends, query)
	if err != nil {
		return nil, fmt.Errorf("unable to query friend edge: %w", err)
	}
	return decodeOneRow(tableFriends, data, validateFriendEdge)
}

func (s *Service) CreateFriendRequest(ctx context.Context, params store.CreateFriendRequestParams) (*models.FriendEdge, error) {
	zap.L().Info("Creating friend request",
		zap.String("requester_id", params.RequesterId),
		zap.String("target_id", params.TargetId))

	body := map[string]any{
		"id":           params.Id,
		"requester_id": params.RequesterId,
		"target_id":    params.TargetId,
		"status":       models.FriendStatusPending,
	}

	data, err := s.do(ctx, http.MethodPost, tableFriends, nil, body)
	if err != nil {
		return nil, fmt.Errorf("unable to insert friend request: %w", err)
	}
	return decodeOneRow(tableFriends, data, validateFriendEdge)
}

// UpdateFriendStatus settles a pending edge. The status filter enforces
// the pending -> accepted/rejected transition: a row that already
// settled matches nothing and comes back as ErrRowNotFound.
func (s *Service) UpdateFriendStatus(ctx context.Context, edgeId, status string) (*models.FriendEdge, error) {
	if status != models.FriendStatusAccepted && status != models.FriendStatusRejected {
		return nil, fmt.Errorf("invalid target status %q", status)
	}

	query := url.Values{}
	query.Set("id", "eq."+edgeId)
	query.Set("status", "eq."+models.FriendStatusPending)

	data, err := s.do(ctx, http.MethodPatch, tableFriends, query, map[string]any{"status": status})
	if err != nil {
		return nil, fmt.Errorf("unable to update friend edge: %w", err)
	}
	return decodeOneRow(tableFriends, data, validateFriendEdge)
}
