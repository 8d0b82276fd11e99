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

	"go.uber.org/zap"
)

func validateConversation(c *models.Conversation) error {
	if c.Id == "" || c.User1Id == "" || c.User2Id == "" {
		return fmt.Errorf("conversation missing id or participants")
	}
	return nil
}

func validateMessage(m *models.Message) error {
	if m.Id == "" || m.ConversationId == "" || m.SenderId == "" {
		return fmt.Errorf("message missing id, conversation_id or sender_id")
	}
	return nil
}

func (s *Service) GetConversations(ctx context.Context, userId string) ([]models.Conversation, error) {
	zap.L().Debug("Querying conversations", zap.String("user_id", userId))

	query := url.Values{}
	query.Set("or", fmt.Sprintf("(user1_id.eq.%s,user2_id.eq.%s)", userId, userId))
	query.Set("order", "updated_at.desc")

	data, err := s.get(ctx, tableConversations, query)
	if err != nil {
		return nil, fmt.Errorf("unable to query conversations: %w", err)
	}
	return decodeRows(tableConversations, data, validateConversation)
}

func (s *Service) CreateConversation(ctx context.Context, params store.CreateConversationParams) (*models.Conversation, error) {
	if params.User1Id > params.User2Id {
		return nil, fmt.Errorf("conversation participants not normalized")
	}

	zap.L().Info("Creating conversation",
		zap.String("conversation_id", params.Id),
		zap.String("user1_id", params.User1Id),
		zap.String("user2_id", params.User2Id))

	body := map[string]any{
		"id":       params.Id,
		"user1_id": params.User1Id,
		"user2_id": params.User2Id,
	}

	data, err := s.do(ctx, http.MethodPost, tableConversations, nil, body)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateRow) {
			return nil, store.ErrDuplicateRow
		}
		return nil, fmt.Errorf("unable to insert conversation: %w", err)
	}
	return decodeOneRow(tableConversations, data, validateConversation)
}

func (s *Service) GetMessages(ctx context.Context, conversationId string) ([]models.Message, error) {
	query := url.Values{}
	query.Set("conversation_id", "eq."+conversationId)
	query.Set("order", "created_at.asc")

	data, err := s.get(ctx, tableMessages, query)
	if err != nil {
		return nil, fmt.Errorf("unable to query messages: %w", err)
	}
	return decodeRows(tableMessages, data, validateMessage)
}

func (s *Service) GetLastMessage(ctx context.Context, conversationId string) (*models.Message, error) {
	query := url.Values{}
	query.Set("conversation_id", "eq."+conversationId)
	query.Set("order", "created_at.desc")
	query.Set("limit", "1")

	data, err := s.get(ctx, tableMessages, query)
	if err != nil {
		return nil, fmt.Errorf("unable to query last message: %w", err)
	}
	return decodeOneRow(tableMessages, data, validateMessage)
}

func (s *Service) CreateMessage(ctx context.Context, params store.CreateMessageParams) (*models.Message, error) {
	body := map[string]any{
		"id":              params.Id,
		"conversation_id": params.ConversationId,
		"sender_id":       params.SenderId,
		"receiver_id":     params.ReceiverId,
		"content":         params.Content,
		"read":            false,
	}

	data, err := s.do(ctx, http.MethodPost, tableMessages, nil, body)
	if err != nil {
		return nil, fmt.Errorf("unable to insert message: %w", err)
	}
	return decodeOneRow(tableMessages, data, validateMessage)
}

// MarkMessageRead flips the read flag false -> true. The row filter also
// matches read=false so the transition stays monotonic server-side; an
// already-read message is simply a no-op.
func (s *Service) MarkMessageRead(ctx context.Context, messageId string) error {
	query := url.Values{}
	query.Set("id", "eq."+messageId)
	query.Set("read", "eq.false")

	_, err := s.do(ctx, http.MethodPatch, tableMessages, query, map[string]any{"read": true})
	if err != nil && !errors.Is(err, store.ErrRowNotFound) {
		return fmt.Errorf("unable to mark message read: %w", err)
	}
	return nil
}
