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

package main

import (
	"context"
	"flag"
	"fmt"

	"finlink-client-go/internal/common"
	"finlink-client-go/internal/config"
	"finlink-client-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type accountStats struct {
	accounts       int
	paymentMethods int
	transactions   int
	totalBalance   decimal.Decimal
}

const transactionLimit = 10

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	showTransactions := flag.Bool("transactions", true, "Include recent transactions in the report")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	sess, err := restoreSession(ctx, cfg, services)
	if err != nil {
		zap.L().Fatal("No usable session; run the client to sign in first", zap.Error(err))
	}

	profile, accounts, err := services.Loader.Load(ctx, sess.User)
	if err != nil {
		zap.L().Fatal("Failed to load profile", zap.Error(err))
	}

	common.PrintHeader("ACCOUNT REPORT", common.DefaultWidth)

	stats := accountStats{totalBalance: decimal.Zero}
	printProfileHeader(profile)
	printAccounts(accounts, &stats)

	methods, err := services.Rows.GetPaymentMethods(ctx, profile.Id)
	if err != nil {
		zap.L().Error("Failed to fetch payment methods", zap.Error(err))
	} else {
		printPaymentMethods(methods, &stats)
	}

	if *showTransactions {
		transactions, err := services.Rows.GetTransactions(ctx, profile.Id, transactionLimit)
		if err != nil {
			zap.L().Error("Failed to fetch transactions", zap.Error(err))
		} else {
			printTransactions(transactions, &stats)
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d accounts, %d payment methods, %d recent transactions",
		stats.accounts, stats.paymentMethods, stats.transactions)
	common.PrintFooter(summary, common.DefaultWidth)

	zap.L().Info("Account report complete",
		zap.String("user_id", profile.Id),
		zap.Int("accounts", stats.accounts),
		zap.String("total_balance", stats.totalBalance.String()))
}

// restoreSession loads the cached session and refreshes it when the
// access token is stale or about to expire. The refreshed session is
// cached again so the next invocation starts fresh.
func restoreSession(ctx context.Context, cfg *models.Config, services *common.Services) (*models.Session, error) {
	sess, err := services.Cache.Load(ctx)
	if err != nil {
		return nil, err
	}

	if sess.Expired() || sess.ExpiresWithin(cfg.Realtime.RefreshMargin) {
		zap.L().Info("Cached session stale, refreshing")
		sess, err = services.Auth.Refresh(ctx, sess.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("token refresh failed: %w", err)
		}
		if err := services.Cache.Save(ctx, sess); err != nil {
			zap.L().Warn("Failed to cache refreshed session", zap.Error(err))
		}
	}

	services.SessionStore.SetSession(sess)
	return sess, nil
}

func printProfileHeader(profile *models.Profile) {
	fmt.Printf("\n┌─ %s (@%s)\n", profile.DisplayName, profile.Handle)
	fmt.Printf("│  id:     %s\n", profile.Id)
	if profile.Phone != "" {
		fmt.Printf("│  phone:  %s\n", profile.Phone)
	}
	fmt.Printf("│  joined: %s\n", profile.JoinedAt.Format("2006-01-02"))
}

func printAccounts(accounts []models.BankAccount, stats *accountStats) {
	fmt.Printf("│\n│  Bank accounts (%d)\n", len(accounts))
	for i, a := range accounts {
		isLast := i == len(accounts)-1
		marker := " "
		if a.Primary {
			marker = "*"
		}
		fmt.Printf("│  %s%s %-20s %-10s %15s %s (...%s)\n",
			common.BoxPrefix(isLast), marker, a.Name, a.Type,
			a.Balance.StringFixed(2), a.Currency, last4(a.AccountNumber))
		stats.accounts++
		stats.totalBalance = stats.totalBalance.Add(a.Balance)
	}
	if len(accounts) == 0 {
		fmt.Println("│  └  (none)")
	}
}

func printPaymentMethods(methods []models.PaymentMethod, stats *accountStats) {
	fmt.Printf("│\n│  Payment methods (%d)\n", len(methods))
	for i, m := range methods {
		isLast := i == len(methods)-1
		marker := " "
		if m.Primary {
			marker = "*"
		}
		suffix := ""
		if m.Last4 != "" {
			suffix = " ****" + m.Last4
		}
		fmt.Printf("│  %s%s %-20s %s%s\n", common.BoxPrefix(isLast), marker, m.Label, m.Kind, suffix)
		stats.paymentMethods++
	}
	if len(methods) == 0 {
		fmt.Println("│  └  (none)")
	}
}

func printTransactions(transactions []models.Transaction, stats *accountStats) {
	fmt.Printf("│\n└─ Recent transactions (%d)\n", len(transactions))
	for i, tx := range transactions {
		isLast := i == len(transactions)-1
		fmt.Printf("   %s%s %-10s %15s %s  %s\n",
			common.BoxPrefix(isLast), tx.CreatedAt.Format("2006-01-02"),
			tx.Type, tx.Amount.StringFixed(2), tx.Currency, tx.Description)
		stats.transactions++
	}
	if len(transactions) == 0 {
		fmt.Println("   └  (none)")
	}
}

func last4(accountNumber string) string {
	if len(accountNumber) <= 4 {
		return accountNumber
	}
	return accountNumber[len(accountNumber)-4:]
}
