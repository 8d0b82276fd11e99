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

// Package realtime subscribes to row-level change pushes and routes
// them to per-table handlers. It is a cache-invalidation signal, not a
// consistency layer: a dropped connection simply stops the pushes and
// the collections go stale until re-fetched.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"finlink-client-go/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler receives row change events for one subscription.
type Handler func(models.ChangeEvent)

// ListenerConfig contains configuration for Listener
type ListenerConfig struct {
	ProjectURL string
	AnonKey    string
	Heartbeat  time.Duration
}

// Listener is the realtime channel client. Subscriptions return
// explicit handles; UnsubscribeAll runs on sign-out and on Close so
// channels never leak across login cycles.
type Listener struct {
	wsURL     string
	heartbeat time.Duration

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu   sync.RWMutex
	subs map[string]*Subscription

	refSeq   atomic.Int64
	stopChan chan struct{}
	doneChan chan struct{}
	closed   atomic.Bool
}

// Subscription is the handle for one table subscription.
type Subscription struct {
	Topic   string
	handler Handler
	l       *Listener
}

// Unsubscribe leaves the channel and drops the handler.
func (s *Subscription) Unsubscribe() {
	s.l.unsubscribe(s.Topic)
}

func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.ProjectURL == "" {
		return nil, fmt.Errorf("project URL cannot be empty")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("anon key cannot be empty")
	}

	wsURL := strings.TrimRight(cfg.ProjectURL, "/")
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/realtime/v1/websocket?apikey=" + cfg.AnonKey + "&vsn=1.0.0"

	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}

	return &Listener{
		wsURL:     wsURL,
		heartbeat: heartbeat,
		subs:      make(map[string]*Subscription),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}, nil
}

// Connect dials the realtime endpoint and starts the read and heartbeat
// loops.
func (l *Listener) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.wsURL, nil)
	if err != nil {
		return fmt.Errorf("realtime dial failed: %w", err)
	}
	l.conn = conn

	go l.readLoop()
	go l.heartbeatLoop()

	zap.L().Info("Realtime listener connected",
		zap.Duration("heartbeat", l.heartbeat))
	return nil
}

// Subscribe joins the change channel for a table, scoped by an optional
// row filter, and routes its events to handler.
func (l *Listener) Subscribe(table, filter string, handler Handler) (*Subscription, error) {
	if table == "" {
		return nil, fmt.Errorf("table cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	topic := changeTopic(table, filter)

	l.mu.Lock()
	if _, exists := l.subs[topic]; exists {
		l.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to %s", topic)
	}
	sub := &Subscription{Topic: topic, handler: handler, l: l}
	l.subs[topic] = sub
	l.mu.Unlock()

	if err := l.writeFrame(frame{Topic: topic, Event: eventJoin, Payload: emptyPayload}); err != nil {
		l.mu.Lock()
		delete(l.subs, topic)
		l.mu.Unlock()
		return nil, fmt.Errorf("channel join failed: %w", err)
	}

	zap.L().Info("Subscribed to realtime channel", zap.String("topic", topic))
	return sub, nil
}

func (l *Listener) unsubscribe(topic string) {
	l.mu.Lock()
	_, exists := l.subs[topic]
	delete(l.subs, topic)
	l.mu.Unlock()
	if !exists {
		return
	}

	if err := l.writeFrame(frame{Topic: topic, Event: eventLeave, Payload: emptyPayload}); err != nil {
		zap.L().Warn("Channel leave failed", zap.String("topic", topic), zap.Error(err))
	}
	zap.L().Info("Unsubscribed from realtime channel", zap.String("topic", topic))
}

// UnsubscribeAll leaves every channel. Called on sign-out and on Close.
func (l *Listener) UnsubscribeAll() {
	l.mu.Lock()
	topics := make([]string, 0, len(l.subs))
	for topic := range l.subs {
		topics = append(topics, topic)
	}
	l.subs = make(map[string]*Subscription)
	l.mu.Unlock()

	for _, topic := range topics {
		if err := l.writeFrame(frame{Topic: topic, Event: eventLeave, Payload: emptyPayload}); err != nil {
			zap.L().Warn("Channel leave failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// Close gracefully stops the listener.
func (l *Listener) Close() {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	zap.L().Info("Stopping realtime listener")
	l.UnsubscribeAll()
	close(l.stopChan)
	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			zap.L().Debug("Realtime connection close", zap.Error(err))
		}
		<-l.doneChan
	}
	zap.L().Info("Realtime listener stopped")
}

func (l *Listener) readLoop() {
	defer close(l.doneChan)

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if !l.closed.Load() {
				zap.L().Error("Realtime read failed, pushes stopped", zap.Error(err))
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			zap.L().Warn("Ignoring malformed realtime frame", zap.Error(err))
			continue
		}
		l.dispatch(f)
	}
}

func (l *Listener) dispatch(f frame) {
	switch f.Event {
	case eventReply, eventClose, eventHeartbeat:
		return
	case eventError:
		zap.L().Warn("Realtime channel error", zap.String("topic", f.Topic))
		return
	}
	if !isChangeEvent(f.Event) {
		return
	}

	l.mu.RLock()
	sub := l.subs[f.Topic]
	l.mu.RUnlock()
	if sub == nil || l.closed.Load() {
		return
	}

	var ev models.ChangeEvent
	if err := json.Unmarshal(f.Payload, &ev); err != nil {
		zap.L().Warn("Ignoring malformed change payload",
			zap.String("topic", f.Topic),
			zap.Error(err))
		return
	}
	ev.Type = f.Event
	if ev.Table == "" {
		ev.Table = tableFromTopic(f.Topic)
	}

	sub.handler(ev)
}

func (l *Listener) heartbeatLoop() {
	ticker := time.NewTicker(l.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f := frame{Topic: heartbeatTopic, Event: eventHeartbeat, Payload: emptyPayload}
			if err := l.writeFrame(f); err != nil {
				zap.L().Warn("Heartbeat write failed", zap.Error(err))
				return
			}
		case <-l.stopChan:
			return
		}
	}
}

func (l *Listener) writeFrame(f frame) error {
	if l.conn == nil {
		return fmt.Errorf("listener not connected")
	}
	f.Ref = strconv.FormatInt(l.refSeq.Add(1), 10)

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteJSON(f)
}
