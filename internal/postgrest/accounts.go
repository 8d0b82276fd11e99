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
	"net/url"
	"strconv"

	"finlink-client-go/internal/models"

	"go.uber.org/zap"
)

func (s *Service) GetBankAccounts(ctx context.Context, profileId string) ([]models.BankAccount, error) {
	zap.L().Debug("Querying bank accounts", zap.String("profile_id", profileId))

	query := url.Values{}
	query.Set("profile_id", "eq."+profileId)
	query.Set("order", "is_primary.desc,name.asc")

	data, err := s.get(ctx, tableBankAccounts, query)
	if err != nil {
		return nil, fmt.Errorf("unable to query bank accounts: %w", err)
	}

	accounts, err := decodeRows(tableBankAccounts, data, func(a *models.BankAccount) error {
		if a.Id == "" || a.ProfileId == "" {
			return fmt.Errorf("bank account missing id or profile_id")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("Retrieved bank accounts",
		zap.String("profile_id", profileId),
		zap.Int("count", len(accounts)))
	return accounts, nil
}

func (s *Service) GetPaymentMethods(ctx context.Context, profileId string) ([]models.PaymentMethod, error) {
	query := url.Values{}
	query.Set("profile_id", "eq."+profileId)
	query.Set("order", "created_at.desc")

	data, err := s.get(ctx, tablePaymentMethods, query)
	if err != nil {
		return nil, fmt.Errorf("unable to query payment methods: %w", err)
	}

	return decodeRows(tablePaymentMethods, data, func(m *models.PaymentMethod) error {
		if m.Id == "" || m.ProfileId == "" {
			return fmt.Errorf("payment method missing id or profile_id")
		}
		return nil
	})
}

func (s *Service) GetTransactions(ctx context.Context, profileId string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 25
	}

	query := url.Values{}
	query.Set("profile_id", "eq."+profileId)
	query.Set("order", "created_at.desc")
	query.Set("limit", strconv.Itoa(limit))

	data, err := s.get(ctx, tableTransactions, query)
	if err != nil {
		return nil, fmt.Errorf("unable to query transactions: %w", err)
	}

	return decodeRows(tableTransactions, data, func(t *models.Transaction) error {
		if t.Id == "" || t.ProfileId == "" {
			return fmt.Errorf("transaction missing id or profile_id")
		}
		return nil
	})
}
