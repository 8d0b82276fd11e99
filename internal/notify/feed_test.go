package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"finlink-client-go/internal/models"
	"finlink-client-go/internal/store"
)

type fakeNotificationStore struct {
	items []models.Notification

	markReadCalls int
	deleteCalls   int
	deletedFor    string
	err           error
}

func (f *fakeNotificationStore) GetNotifications(_ context.Context, _ string) ([]models.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.Notification(nil), f.items...), nil
}

func (f *fakeNotificationStore) MarkNotificationRead(_ context.Context, _ string) error {
	f.markReadCalls++
	return f.err
}

func (f *fakeNotificationStore) DeleteNotification(_ context.Context, _, profileId string) error {
	f.deleteCalls++
	f.deletedFor = profileId
	return f.err
}

func notification(id string, read bool) models.Notification {
	return models.Notification{
		Id:        id,
		ProfileId: "owner",
		Type:      "friend_request",
		Message:   "notification " + id,
		Read:      read,
		CreatedAt: time.Now().UTC(),
	}
}

func changeEvent(t *testing.T, typ string, n models.Notification) models.ChangeEvent {
	t.Helper()
	record, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Failed to encode test record: %v", err)
	}
	ev := models.ChangeEvent{Table: "notifications", Type: typ}
	if typ == models.ChangeDelete {
		ev.Old = record
	} else {
		ev.Record = record
	}
	return ev
}

func TestRefresh_CountsUnread(t *testing.T) {
	rows := &fakeNotificationStore{items: []models.Notification{
		notification("n1", false),
		notification("n2", true),
		notification("n3", false),
	}}
	f := NewFeed(rows)

	if err := f.Refresh(context.Background(), "owner"); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got := f.Unread(); got != 2 {
		t.Errorf("Expected 2 unread, got %d", got)
	}
	if got := len(f.Items()); got != 3 {
		t.Errorf("Expected 3 items, got %d", got)
	}
}

func TestApply_InsertPrependsAndCounts(t *testing.T) {
	f := NewFeed(&fakeNotificationStore{})
	f.ApplyInsert(notification("n1", true))
	f.Apply(changeEvent(t, models.ChangeInsert, notification("n2", false)))

	items := f.Items()
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].Id != "n2" {
		t.Errorf("Expected newest first, got %s", items[0].Id)
	}
	if f.Unread() != 1 {
		t.Errorf("Expected 1 unread, got %d", f.Unread())
	}

	// Duplicate insert is ignored.
	f.ApplyInsert(notification("n2", false))
	if len(f.Items()) != 2 || f.Unread() != 1 {
		t.Errorf("Duplicate insert must be a no-op, got %d items / %d unread",
			len(f.Items()), f.Unread())
	}
}

func TestApply_UpdateKeepsReadMonotonic(t *testing.T) {
	f := NewFeed(&fakeNotificationStore{})
	f.ApplyInsert(notification("n1", false))

	// false -> true decrements the counter.
	f.Apply(changeEvent(t, models.ChangeUpdate, notification("n1", true)))
	if f.Unread() != 0 {
		t.Errorf("Expected 0 unread after read update, got %d", f.Unread())
	}

	// A stale unread echo must not revert the flag or the counter.
	f.Apply(changeEvent(t, models.ChangeUpdate, notification("n1", false)))
	if !f.Items()[0].Read {
		t.Error("Read flag reverted on stale update")
	}
	if f.Unread() != 0 {
		t.Errorf("Unread counter changed on stale update, got %d", f.Unread())
	}
}

func TestApply_UpdateForUnknownRowIsIgnored(t *testing.T) {
	f := NewFeed(&fakeNotificationStore{})
	f.Apply(changeEvent(t, models.ChangeUpdate, notification("ghost", false)))
	if len(f.Items()) != 0 || f.Unread() != 0 {
		t.Errorf("Unknown-row update must be a no-op, got %d items / %d unread",
			len(f.Items()), f.Unread())
	}
}

func TestApply_DeleteAdjustsCounter(t *testing.T) {
	f := NewFeed(&fakeNotificationStore{})
	f.ApplyInsert(notification("n1", false))
	f.ApplyInsert(notification("n2", true))

	f.Apply(changeEvent(t, models.ChangeDelete, notification("n1", false)))
	if len(f.Items()) != 1 {
		t.Fatalf("Expected 1 item after delete, got %d", len(f.Items()))
	}
	if f.Unread() != 0 {
		t.Errorf("Expected unread counter decremented, got %d", f.Unread())
	}

	f.Apply(changeEvent(t, models.ChangeDelete, notification("n2", true)))
	if f.Unread() != 0 {
		t.Errorf("Deleting a read row must not touch the counter, got %d", f.Unread())
	}
}

func TestApply_MalformedEventIsIgnored(t *testing.T) {
	f := NewFeed(&fakeNotificationStore{})
	f.Apply(models.ChangeEvent{Type: models.ChangeInsert, Record: json.RawMessage(`{malformed`)})
	f.Apply(models.ChangeEvent{Type: models.ChangeInsert, Record: json.RawMessage(`{}`)})
	f.Apply(models.ChangeEvent{Type: models.ChangeDelete, Old: json.RawMessage(`{}`)})
	if len(f.Items()) != 0 {
		t.Errorf("Malformed events must be dropped, got %d items", len(f.Items()))
	}
}

func TestMarkRead_AlreadyReadSkipsStore(t *testing.T) {
	rows := &fakeNotificationStore{}
	f := NewFeed(rows)
	f.ApplyInsert(notification("n1", true))

	if err := f.MarkRead(context.Background(), "n1"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if rows.markReadCalls != 0 {
		t.Errorf("Already-read mark must not hit the store, got %d calls", rows.markReadCalls)
	}
}

func TestMarkRead_FlipsAndDecrements(t *testing.T) {
	rows := &fakeNotificationStore{}
	f := NewFeed(rows)
	f.ApplyInsert(notification("n1", false))

	if err := f.MarkRead(context.Background(), "n1"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if rows.markReadCalls != 1 {
		t.Errorf("Expected one store call, got %d", rows.markReadCalls)
	}
	if !f.Items()[0].Read || f.Unread() != 0 {
		t.Errorf("Expected read flag set and counter 0, got read=%v unread=%d",
			f.Items()[0].Read, f.Unread())
	}
}

func TestMarkRead_StoreFailureLeavesStateUntouched(t *testing.T) {
	rows := &fakeNotificationStore{}
	f := NewFeed(rows)
	f.ApplyInsert(notification("n1", false))
	rows.err = errors.New("store unavailable")

	if err := f.MarkRead(context.Background(), "n1"); err == nil {
		t.Fatal("Expected MarkRead to fail")
	}
	if f.Items()[0].Read || f.Unread() != 1 {
		t.Errorf("Failed mark must leave state untouched, got read=%v unread=%d",
			f.Items()[0].Read, f.Unread())
	}
}

func TestDelete_IsOwnerScoped(t *testing.T) {
	rows := &fakeNotificationStore{items: []models.Notification{notification("n1", false)}}
	f := NewFeed(rows)
	if err := f.Refresh(context.Background(), "owner"); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if err := f.Delete(context.Background(), "n1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if rows.deletedFor != "owner" {
		t.Errorf("Expected the delete scoped to the owner, got %q", rows.deletedFor)
	}
	if len(f.Items()) != 0 {
		t.Errorf("Expected the row removed locally, got %d items", len(f.Items()))
	}
}

func TestDelete_WithoutOwnerFails(t *testing.T) {
	f := NewFeed(&fakeNotificationStore{})
	if err := f.Delete(context.Background(), "n1"); err == nil {
		t.Fatal("Expected Delete without an owner to fail")
	}
}

var _ store.NotificationStore = (*fakeNotificationStore)(nil)
