// Package notify maintains the local notification feed. Unlike the
// other collections, realtime changes are applied as incremental
// patches rather than a full re-fetch.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"finlink-client-go/internal/models"
	"finlink-client-go/internal/store"

	"go.uber.org/zap"
)

type Feed struct {
	rows store.NotificationStore

	mu     sync.RWMutex
	owner  string
	items  []models.Notification
	unread int
}

func NewFeed(rows store.NotificationStore) *Feed {
	return &Feed{rows: rows}
}

// Items returns the feed, newest first.
func (f *Feed) Items() []models.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.Notification, len(f.items))
	copy(out, f.items)
	return out
}

// Unread returns the unread counter.
func (f *Feed) Unread() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.unread
}

// Refresh replaces the feed from the store (fallback path; the realtime
// stream keeps it fresh incrementally).
func (f *Feed) Refresh(ctx context.Context, profileId string) error {
	items, err := f.rows.GetNotifications(ctx, profileId)
	if err != nil {
		return fmt.Errorf("notification fetch failed: %w", err)
	}

	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
	}

	f.mu.Lock()
	f.owner = profileId
	f.items = items
	f.unread = unread
	f.mu.Unlock()
	return nil
}

// Apply routes one realtime change event into the local feed.
func (f *Feed) Apply(ev models.ChangeEvent) {
	switch ev.Type {
	case models.ChangeInsert, models.ChangeUpdate:
		var n models.Notification
		if err := json.Unmarshal(ev.Record, &n); err != nil || n.Id == "" {
			zap.L().Warn("Ignoring malformed notification event", zap.Error(err))
			return
		}
		if ev.Type == models.ChangeInsert {
			f.ApplyInsert(n)
		} else {
			f.ApplyUpdate(n)
		}
	case models.ChangeDelete:
		var old struct {
			Id string `json:"id"`
		}
		if err := json.Unmarshal(ev.Old, &old); err != nil || old.Id == "" {
			zap.L().Warn("Ignoring malformed notification delete", zap.Error(err))
			return
		}
		f.ApplyDelete(old.Id)
	}
}

// ApplyInsert prepends a new notification and bumps the unread counter.
func (f *Feed) ApplyInsert(n models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.items {
		if f.items[i].Id == n.Id {
			return
		}
	}
	f.items = append([]models.Notification{n}, f.items...)
	if !n.Read {
		f.unread++
	}
}

// ApplyUpdate splices the changed row in place, keeping the read flag
// monotonic: a row observed read never reverts to unread.
func (f *Feed) ApplyUpdate(n models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.items {
		if f.items[i].Id != n.Id {
			continue
		}
		if f.items[i].Read && !n.Read {
			n.Read = true
		}
		if !f.items[i].Read && n.Read {
			f.unread--
		}
		f.items[i] = n
		return
	}
}

// ApplyDelete removes the row and adjusts the unread counter.
func (f *Feed) ApplyDelete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.items {
		if f.items[i].Id != id {
			continue
		}
		if !f.items[i].Read {
			f.unread--
		}
		f.items = append(f.items[:i], f.items[i+1:]...)
		return
	}
}

// MarkRead flips a notification read flag false -> true; already-read
// rows are a no-op with no network call.
func (f *Feed) MarkRead(ctx context.Context, id string) error {
	f.mu.RLock()
	alreadyRead := false
	for i := range f.items {
		if f.items[i].Id == id {
			alreadyRead = f.items[i].Read
			break
		}
	}
	f.mu.RUnlock()

	if alreadyRead {
		return nil
	}

	if err := f.rows.MarkNotificationRead(ctx, id); err != nil {
		return err
	}

	f.mu.Lock()
	for i := range f.items {
		if f.items[i].Id == id && !f.items[i].Read {
			f.items[i].Read = true
			f.unread--
			break
		}
	}
	f.mu.Unlock()
	return nil
}

// Delete removes one of the owner's notifications, store first.
func (f *Feed) Delete(ctx context.Context, id string) error {
	f.mu.RLock()
	owner := f.owner
	f.mu.RUnlock()
	if owner == "" {
		return fmt.Errorf("feed has no owner")
	}

	if err := f.rows.DeleteNotification(ctx, id, owner); err != nil {
		return err
	}
	f.ApplyDelete(id)
	return nil
}
