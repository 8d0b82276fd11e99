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

func validateProfile(p *models.Profile) error {
	if p.Id == "" {
		return fmt.Errorf("profile missing id")
	}
	return nil
}

func (s *Service) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	zap.L().Debug("Querying profile", zap.String("profile_id", id))

	query := url.Values{}
	query.Set("id", "eq."+id)
	query.Set("select", "*")

	data, err := s.get(ctx, tableProfiles, query)
	if err != nil {
		return nil, fmt.Errorf("unable to query profile: %w", err)
	}
	return decodeOneRow(tableProfiles, data, validateProfile)
}

func (s *Service) CreateProfile(ctx context.Context, params store.CreateProfileParams) (*models.Profile, error) {
	zap.L().Info("Creating profile",
		zap.String("profile_id", params.Id),
		zap.String("handle", params.Handle))

	body := map[string]any{
		"id":           params.Id,
		"display_name": params.DisplayName,
		"handle":       params.Handle,
	}
	if params.AvatarURL != "" {
		body["avatar_url"] = params.AvatarURL
	}
	if params.Phone != "" {
		body["phone"] = params.Phone
	}
	if params.Bio != "" {
		body["bio"] = params.Bio
	}

	data, err := s.do(ctx, http.MethodPost, tableProfiles, nil, body)
	if err != nil {
		return nil, fmt.Errorf("unable to insert profile: %w", err)
	}
	return decodeOneRow(tableProfiles, data, validateProfile)
}

func (s *Service) UpdateProfile(ctx context.Context, id string, fields map[string]any) (*models.Profile, error) {
	if len(fields) == 0 {
		return s.GetProfile(ctx, id)
	}

	query := url.Values{}
	query.Set("id", "eq."+id)

	data, err := s.do(ctx, http.MethodPatch, tableProfiles, query, fields)
	if err != nil {
		return nil, fmt.Errorf("unable to update profile: %w", err)
	}
	return decodeOneRow(tableProfiles, data, validateProfile)
}
