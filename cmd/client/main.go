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
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"finlink-client-go/internal/authapi"
	"finlink-client-go/internal/chat"
	"finlink-client-go/internal/common"
	"finlink-client-go/internal/config"
	"finlink-client-go/internal/friends"
	"finlink-client-go/internal/models"
	"finlink-client-go/internal/notify"
	"finlink-client-go/internal/realtime"
	"finlink-client-go/internal/session"

	"go.uber.org/zap"
)

// ANSI color helpers for console output.
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

const settleTimeout = 30 * time.Second

func main() {
	streamsFile := flag.String("streams", "", "Optional path to streams.yaml overriding the default realtime subscription set")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting Finlink client")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	services.Dispatcher.Start(ctx)

	if err := ensureSignedIn(ctx, services); err != nil {
		zap.L().Fatal("Failed to establish a session", zap.Error(err))
	}

	userId := services.SessionStore.UserId()
	zap.L().Info("Session established", zap.String("user_id", userId))

	streams := common.DefaultStreams()
	if *streamsFile != "" {
		streams, err = common.LoadStreamConfig(*streamsFile)
		if err != nil {
			zap.L().Fatal("Failed to load streams file", zap.Error(err))
		}
		zap.L().Info("Loaded stream subscriptions from file",
			zap.String("file", *streamsFile),
			zap.Int("count", len(streams)))
	}

	listener, err := realtime.NewListener(realtime.ListenerConfig{
		ProjectURL: cfg.Backend.ProjectURL,
		AnonKey:    cfg.Backend.AnonKey,
		Heartbeat:  cfg.Realtime.HeartbeatInterval,
	})
	if err != nil {
		zap.L().Fatal("Failed to build realtime listener", zap.Error(err))
	}
	if err := listener.Connect(ctx); err != nil {
		zap.L().Fatal("Failed to connect realtime listener", zap.Error(err))
	}
	services.Dispatcher.SetRealtime(listener)

	reconciler := chat.NewReconciler(chat.ReconcilerConfig{
		Rows:     services.Rows,
		Profiles: services.Rows,
		Session:  services.SessionStore,
	})
	defer reconciler.Close()

	resolver := friends.NewResolver(services.Rows, services.Rows)
	defer resolver.Close()

	feed := notify.NewFeed(services.Rows)

	if err := reconciler.FetchConversations(ctx); err != nil {
		zap.L().Error("Initial conversation fetch failed", zap.Error(err))
	}
	if err := resolver.Fetch(ctx, userId); err != nil {
		zap.L().Error("Initial friend fetch failed", zap.Error(err))
	}
	if err := feed.Refresh(ctx, userId); err != nil {
		zap.L().Error("Initial notification fetch failed", zap.Error(err))
	}

	printStatus(reconciler, resolver, feed)

	subscribed := 0
	for _, s := range streams {
		filter := strings.ReplaceAll(s.Filter, "{user}", userId)
		handler := changeHandler(ctx, s.Table, userId, reconciler, resolver, feed)
		if _, err := listener.Subscribe(s.Table, filter, handler); err != nil {
			zap.L().Error("Failed to subscribe to stream",
				zap.String("table", s.Table),
				zap.String("filter", filter),
				zap.Error(err))
			continue
		}
		subscribed++
		fmt.Printf("%s● subscribed %s%s%s\n", colorGreen, colorCyan, s.Table, colorReset)
	}
	if subscribed == 0 {
		zap.L().Fatal("No realtime subscriptions established")
	}

	zap.L().Info("Client running",
		zap.Int("streams", subscribed),
		zap.Int("conversations", len(reconciler.Conversations())),
		zap.Int("friends", len(resolver.Friends())))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping...")
	listener.Close()
	zap.L().Info("Client stopped")
}

// ensureSignedIn waits for the dispatcher's initial cache check and, when
// it lands on unauthenticated, signs in with FINLINK_EMAIL/FINLINK_PASSWORD.
func ensureSignedIn(ctx context.Context, services *common.Services) error {
	state, err := waitForState(ctx, services.Dispatcher, settleTimeout)
	if err != nil {
		return err
	}
	if state == session.StateAuthenticated {
		zap.L().Info("Restored cached session")
		return nil
	}

	creds := authapi.PasswordCredentials{
		Email:    os.Getenv("FINLINK_EMAIL"),
		Password: os.Getenv("FINLINK_PASSWORD"),
	}
	if creds.Email == "" || creds.Password == "" {
		return fmt.Errorf("no cached session and FINLINK_EMAIL/FINLINK_PASSWORD not set")
	}

	zap.L().Info("Signing in with password credentials", zap.String("email", creds.Email))
	sess, err := services.Auth.SignInWithPassword(ctx, creds)
	if err != nil {
		return fmt.Errorf("password sign-in failed: %w", err)
	}
	services.Dispatcher.Emit(session.Event{Type: session.EventSignedIn, Session: sess})

	state, err = waitForState(ctx, services.Dispatcher, settleTimeout)
	if err != nil {
		return err
	}
	if state != session.StateAuthenticated {
		return fmt.Errorf("sign-in did not reach authenticated state (got %s)", state)
	}
	return nil
}

// waitForState polls until the dispatcher leaves the checking state.
func waitForState(ctx context.Context, d *session.Dispatcher, timeout time.Duration) (session.State, error) {
	deadline := time.Now().Add(timeout)
	for {
		state := d.State()
		if state == session.StateAuthenticated || state == session.StateUnauthenticated {
			return state, nil
		}
		if time.Now().After(deadline) {
			return state, fmt.Errorf("auth state did not settle within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// changeHandler routes a table's change events to the component that
// owns that table. Conversation and message changes trigger a full
// reconcile; friend changes a graph refetch; notifications are patched
// in place.
func changeHandler(ctx context.Context, table, userId string, reconciler *chat.Reconciler, resolver *friends.Resolver, feed *notify.Feed) realtime.Handler {
	switch table {
	case "messages", "conversations":
		return func(ev models.ChangeEvent) {
			printChange(ev)
			go func() {
				if err := reconciler.FetchConversations(ctx); err != nil {
					zap.L().Error("Conversation refetch failed", zap.Error(err))
				}
			}()
		}
	case "friends":
		return func(ev models.ChangeEvent) {
			printChange(ev)
			go func() {
				if err := resolver.Fetch(ctx, userId); err != nil {
					zap.L().Error("Friend refetch failed", zap.Error(err))
				}
			}()
		}
	case "notifications":
		return func(ev models.ChangeEvent) {
			printChange(ev)
			feed.Apply(ev)
			fmt.Printf("%s  unread: %d%s\n", colorGray, feed.Unread(), colorReset)
		}
	default:
		return func(ev models.ChangeEvent) {
			printChange(ev)
		}
	}
}

func printChange(ev models.ChangeEvent) {
	color := colorGreen
	symbol := "+"
	switch ev.Type {
	case models.ChangeUpdate:
		color = colorYellow
		symbol = "~"
	case models.ChangeDelete:
		color = colorGray
		symbol = "-"
	}
	fmt.Printf("%s%s [%s] %s %s%s\n",
		color, time.Now().Format("15:04:05"), ev.Table, symbol, ev.Type, colorReset)
}

func printStatus(reconciler *chat.Reconciler, resolver *friends.Resolver, feed *notify.Feed) {
	common.PrintHeader("FINLINK CLIENT", common.DefaultWidth)
	conversations := reconciler.Conversations()
	fmt.Printf("Conversations: %d (active: %s)\n", len(conversations), orNone(reconciler.ActiveId()))
	for i, c := range conversations {
		name := c.Conversation.Id
		if c.Counterpart != nil {
			name = c.Counterpart.DisplayName
		}
		preview := ""
		if c.LastMessage != nil {
			preview = c.LastMessage.Content
			if len(preview) > 40 {
				preview = preview[:40] + "..."
			}
		}
		fmt.Printf("%s%-24s %s%s%s\n", common.BoxPrefix(i == len(conversations)-1), name, colorGray, preview, colorReset)
	}
	fmt.Printf("Friends: %d, pending requests: %d, unread notifications: %d\n",
		len(resolver.Friends()), len(resolver.Incoming()), feed.Unread())
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
