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
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"finlink-client-go/internal/models"
	"finlink-client-go/internal/store"
)

func validateNotification(n *models.Notification) error {
	if n.Id == "" || n.ProfileId == "" {
		return fmt.Errorf("notification missing id or profile_id")
	}
	return nil
}

func (s *Service) GetNotifications(ctx context.Context, profileId string) ([]models.Notification, error) {
	query := url.Values{}
	query.Set("profile_id", "eq."+profileId)
	query.Set("order", "created_at.desc")

	data, err := s.get(ctx, tableNotifications, query)
	if err != nil {
		return nil, fmt.Errorf("unable to query notifications: %w", err)
	}
	return decodeRows(tableNotifications, data, validateNotification)
}

// MarkNotificationRead flips the read flag false -> true only.
func (s *Service) MarkNotificationRead(ctx context.Context, id string) error {
	query := url.Values{}
	query.Set("id", "eq."+id)
	query.Set("read", "eq.false")

	_, err := s.do(ctx, http.MethodPatch, tableNotifications, query, map[string]any{"read": true})
	if err != nil && !errors.Is(err, store.ErrRowNotFound) {
		return fmt.Errorf("unable to mark notification read: %w", err)
	}
	return nil
}

// DeleteNotification removes a row, scoped to the owning profile so a
// client can only delete its own notifications.
func (s *Service) DeleteNotification(ctx context.Context, id, profileId string) error {
	query := url.Values{}
	query.Set("id", "eq."+id)
	query.Set("profile_id", "eq."+profileId)

	_, err := s.do(ctx, http.MethodDelete, tableNotifications, query, nil)
	if err != nil && !errors.Is(err, store.ErrRowNotFound) {
		return fmt.Errorf("unable to delete notification: %w", err)
	}
	return nil
}
