package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"finlink-client-go/internal/models"
	"finlink-client-go/internal/store"
)

type fakeSession struct {
	sess *models.Session
}

func (f *fakeSession) Current() *models.Session { return f.sess }

func sessionFor(userId string) *fakeSession {
	return &fakeSession{sess: &models.Session{
		AccessToken: "token",
		User:        models.Identity{Id: userId, Email: userId + "@example.com"},
	}}
}

// fakeRowStore counts every network-shaped call so tests can assert
// which operations reach the store.
type fakeRowStore struct {
	mu            sync.Mutex
	conversations []models.Conversation
	messages      map[string][]models.Message
	profiles      map[string]models.Profile

	getConversationCalls atomic.Int64
	createConvCalls      atomic.Int64
	createMessageErr     error
	markReadCalls        atomic.Int64
	fetchDelay           time.Duration
}

func (f *fakeRowStore) GetConversations(_ context.Context, _ string) ([]models.Conversation, error) {
	f.getConversationCalls.Add(1)
	if f.fetchDelay > 0 {
		time.Sleep(f.fetchDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Conversation, len(f.conversations))
	copy(out, f.conversations)
	return out, nil
}

func (f *fakeRowStore) CreateConversation(_ context.Context, params store.CreateConversationParams) (*models.Conversation, error) {
	f.createConvCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.PairKey() == models.PairKey(params.User1Id, params.User2Id) {
			return nil, store.ErrDuplicateRow
		}
	}
	conv := models.Conversation{
		Id:        params.Id,
		User1Id:   params.User1Id,
		User2Id:   params.User2Id,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	f.conversations = append(f.conversations, conv)
	return &conv, nil
}

func (f *fakeRowStore) GetMessages(_ context.Context, conversationId string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.messages[conversationId]...), nil
}

func (f *fakeRowStore) GetLastMessage(_ context.Context, conversationId string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[conversationId]
	if len(msgs) == 0 {
		return nil, store.ErrRowNotFound
	}
	last := msgs[len(msgs)-1]
	return &last, nil
}

func (f *fakeRowStore) CreateMessage(_ context.Context, params store.CreateMessageParams) (*models.Message, error) {
	if f.createMessageErr != nil {
		return nil, f.createMessageErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := models.Message{
		Id:             params.Id,
		ConversationId: params.ConversationId,
		SenderId:       params.SenderId,
		ReceiverId:     params.ReceiverId,
		Content:        params.Content,
		CreatedAt:      time.Now().UTC(),
	}
	if f.messages == nil {
		f.messages = make(map[string][]models.Message)
	}
	f.messages[params.ConversationId] = append(f.messages[params.ConversationId], msg)
	return &msg, nil
}

func (f *fakeRowStore) MarkMessageRead(_ context.Context, _ string) error {
	f.markReadCalls.Add(1)
	return nil
}

func (f *fakeRowStore) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[id]; ok {
		return &p, nil
	}
	return nil, store.ErrRowNotFound
}

func (f *fakeRowStore) CreateProfile(_ context.Context, _ store.CreateProfileParams) (*models.Profile, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRowStore) UpdateProfile(_ context.Context, _ string, _ map[string]any) (*models.Profile, error) {
	return nil, errors.New("not implemented")
}

func newTestReconciler(rows *fakeRowStore, userId string) *Reconciler {
	return NewReconciler(ReconcilerConfig{
		Rows:     rows,
		Profiles: rows,
		Session:  sessionFor(userId),
	})
}

func conversationRow(id, a, b string, updated time.Time) models.Conversation {
	if a > b {
		a, b = b, a
	}
	return models.Conversation{Id: id, User1Id: a, User2Id: b, CreatedAt: updated, UpdatedAt: updated}
}

func TestFetchConversations_EnrichesAndSorts(t *testing.T) {
	now := time.Now().UTC()
	rows := &fakeRowStore{
		conversations: []models.Conversation{
			conversationRow("c1", "me", "u1", now.Add(-2*time.Hour)),
			conversationRow("c2", "me", "u2", now.Add(-1*time.Hour)),
		},
		profiles: map[string]models.Profile{
			"u1": {Id: "u1", DisplayName: "One"},
			"u2": {Id: "u2", DisplayName: "Two"},
		},
		messages: map[string][]models.Message{
			"c1": {{Id: "m1", ConversationId: "c1", SenderId: "u1", Content: "hi", CreatedAt: now}},
		},
	}
	r := newTestReconciler(rows, "me")

	if err := r.FetchConversations(context.Background()); err != nil {
		t.Fatalf("FetchConversations failed: %v", err)
	}

	convs := r.Conversations()
	if len(convs) != 2 {
		t.Fatalf("Expected 2 conversations, got %d", len(convs))
	}
	// c1's last message is newer than c2's row timestamp.
	if convs[0].Id != "c1" {
		t.Errorf("Expected c1 first by last activity, got %s", convs[0].Id)
	}
	if convs[0].Counterpart == nil || convs[0].Counterpart.DisplayName != "One" {
		t.Errorf("Expected counterpart profile One, got %+v", convs[0].Counterpart)
	}
	if convs[0].LastMessage == nil || convs[0].LastMessage.Id != "m1" {
		t.Errorf("Expected last message m1, got %+v", convs[0].LastMessage)
	}
	// Most recent conversation is auto-selected and its messages loaded.
	if r.ActiveId() != "c1" {
		t.Errorf("Expected c1 auto-selected, got %q", r.ActiveId())
	}
	if got := len(r.Messages()); got != 1 {
		t.Errorf("Expected 1 loaded message, got %d", got)
	}
}

func TestFetchConversations_SingleFlight(t *testing.T) {
	rows := &fakeRowStore{fetchDelay: 50 * time.Millisecond}
	r := newTestReconciler(rows, "me")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.FetchConversations(context.Background()); err != nil {
				t.Errorf("FetchConversations failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls := rows.getConversationCalls.Load(); calls != 1 {
		t.Errorf("Concurrent fetches must collapse into one store call, got %d", calls)
	}
}

func TestFetchConversations_DropsDuplicatePairs(t *testing.T) {
	now := time.Now().UTC()
	rows := &fakeRowStore{
		conversations: []models.Conversation{
			conversationRow("c1", "me", "u1", now),
			conversationRow("c2", "me", "u1", now.Add(-time.Hour)),
		},
	}
	r := newTestReconciler(rows, "me")

	if err := r.FetchConversations(context.Background()); err != nil {
		t.Fatalf("FetchConversations failed: %v", err)
	}

	convs := r.Conversations()
	if len(convs) != 1 {
		t.Fatalf("Expected duplicate pair collapsed to 1 conversation, got %d", len(convs))
	}
	if convs[0].Id != "c1" {
		t.Errorf("Expected the more recent row kept, got %s", convs[0].Id)
	}
}

func TestFetchConversations_PreservesActiveSelection(t *testing.T) {
	now := time.Now().UTC()
	rows := &fakeRowStore{
		conversations: []models.Conversation{
			conversationRow("c1", "me", "u1", now),
			conversationRow("c2", "me", "u2", now.Add(-time.Hour)),
		},
	}
	r := newTestReconciler(rows, "me")

	if err := r.FetchConversations(context.Background()); err != nil {
		t.Fatalf("FetchConversations failed: %v", err)
	}
	if err := r.SetActive(context.Background(), "c2"); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	// A newer conversation appears; the background refresh must not
	// displace the user's selection.
	rows.mu.Lock()
	rows.conversations = append(rows.conversations, conversationRow("c3", "me", "u3", now.Add(time.Hour)))
	rows.mu.Unlock()

	if err := r.FetchConversations(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if r.ActiveId() != "c2" {
		t.Errorf("Background refresh displaced the selection: got %q", r.ActiveId())
	}
}

func TestFetchConversations_ReselectsWhenActiveVanishes(t *testing.T) {
	now := time.Now().UTC()
	rows := &fakeRowStore{
		conversations: []models.Conversation{
			conversationRow("c1", "me", "u1", now),
			conversationRow("c2", "me", "u2", now.Add(-time.Hour)),
		},
	}
	r := newTestReconciler(rows, "me")

	if err := r.FetchConversations(context.Background()); err != nil {
		t.Fatalf("FetchConversations failed: %v", err)
	}
	if err := r.SetActive(context.Background(), "c2"); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	rows.mu.Lock()
	rows.conversations = rows.conversations[:1] // c2 deleted server-side
	rows.mu.Unlock()

	if err := r.FetchConversations(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if r.ActiveId() != "c1" {
		t.Errorf("Expected fallback to most recent conversation, got %q", r.ActiveId())
	}
}

func TestCreateConversation_RejectsSelfWithoutNetwork(t *testing.T) {
	rows := &fakeRowStore{}
	r := newTestReconciler(rows, "me")

	if err := r.CreateConversation(context.Background(), "me"); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("Expected ErrSelfConversation, got %v", err)
	}
	if err := r.CreateConversation(context.Background(), ""); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("Expected ErrSelfConversation for empty id, got %v", err)
	}
	if calls := rows.createConvCalls.Load() + rows.getConversationCalls.Load(); calls != 0 {
		t.Errorf("Self-conversation must make no store calls, got %d", calls)
	}
}

func TestCreateConversation_NormalizesPairOrder(t *testing.T) {
	rows := &fakeRowStore{}
	r := newTestReconciler(rows, "zeta")

	if err := r.CreateConversation(context.Background(), "alpha"); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	rows.mu.Lock()
	conv := rows.conversations[0]
	rows.mu.Unlock()
	if conv.User1Id != "alpha" || conv.User2Id != "zeta" {
		t.Errorf("Expected normalized pair (alpha, zeta), got (%s, %s)", conv.User1Id, conv.User2Id)
	}
	if r.ActiveId() != conv.Id {
		t.Errorf("Expected the new conversation selected, got %q", r.ActiveId())
	}
}

func TestCreateConversation_DuplicateReactivatesExisting(t *testing.T) {
	now := time.Now().UTC()
	rows := &fakeRowStore{
		conversations: []models.Conversation{conversationRow("c1", "me", "u1", now)},
	}
	r := newTestReconciler(rows, "me")

	if err := r.CreateConversation(context.Background(), "u1"); err != nil {
		t.Fatalf("Duplicate create must reuse the existing row: %v", err)
	}
	if r.ActiveId() != "c1" {
		t.Errorf("Expected existing conversation c1 selected, got %q", r.ActiveId())
	}
	rows.mu.Lock()
	count := len(rows.conversations)
	rows.mu.Unlock()
	if count != 1 {
		t.Errorf("Expected one row per pair, got %d", count)
	}
}

func TestSendMessage_ConfirmsOptimisticEntry(t *testing.T) {
	now := time.Now().UTC()
	rows := &fakeRowStore{
		conversations: []models.Conversation{conversationRow("c1", "me", "u1", now)},
	}
	r := newTestReconciler(rows, "me")
	if err := r.FetchConversations(context.Background()); err != nil {
		t.Fatalf("FetchConversations failed: %v", err)
	}

	sent, err := r.SendMessage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if sent.Delivery != DeliveryConfirmed {
		t.Errorf("Expected confirmed delivery, got %s", sent.Delivery)
	}
	// The counterpart's realtime stream filters on the receiver column.
	if sent.ReceiverId != "u1" {
		t.Errorf("Expected the counterpart as receiver, got %q", sent.ReceiverId)
	}

	msgs := r.Messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Delivery != DeliveryConfirmed {
		t.Errorf("Expected the pending entry reconciled to confirmed, got %s", msgs[0].Delivery)
	}

	convs := r.Conversations()
	if convs[0].LastMessage == nil || convs[0].LastMessage.Content != "hello" {
		t.Errorf("Expected the conversation preview updated, got %+v", convs[0].LastMessage)
	}
}

func TestSendMessage_RollsBackOnFailure(t *testing.T) {
	now := time.Now().UTC()
	rows := &fakeRowStore{
		conversations: []models.Conversation{conversationRow("c1", "me", "u1", now)},
	}
	r := newTestReconciler(rows, "me")
	if err := r.FetchConversations(context.Background()); err != nil {
		t.Fatalf("FetchConversations failed: %v", err)
	}

	rows.createMessageErr = errors.New("insert rejected")
	if _, err := r.SendMessage(context.Background(), "doomed"); err == nil {
		t.Fatal("Expected SendMessage to fail")
	}
	if got := len(r.Messages()); got != 0 {
		t.Errorf("Expected the tentative entry rolled back, got %d messages", got)
	}
}

func TestSendMessage_CloseMidSendStillReturnsMessage(t *testing.T) {
	now := time.Now().UTC()
	rows := &fakeRowStore{
		conversations: []models.Conversation{conversationRow("c1", "me", "u1", now)},
	}
	r := newTestReconciler(rows, "me")
	if err := r.FetchConversations(context.Background()); err != nil {
		t.Fatalf("FetchConversations failed: %v", err)
	}

	r.Close()
	sent, err := r.SendMessage(context.Background(), "parting shot")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if sent == nil {
		t.Fatal("A successful insert must never report a nil message")
	}
	if sent.Delivery != DeliveryConfirmed {
		t.Errorf("Expected the server row reported as confirmed, got %s", sent.Delivery)
	}
}

func TestMarkRead_AlreadyReadIsLocalNoop(t *testing.T) {
	now := time.Now().UTC()
	rows := &fakeRowStore{
		conversations: []models.Conversation{conversationRow("c1", "me", "u1", now)},
		messages: map[string][]models.Message{
			"c1": {{Id: "m1", ConversationId: "c1", SenderId: "u1", Content: "hi", Read: true, CreatedAt: now}},
		},
	}
	r := newTestReconciler(rows, "me")
	if err := r.FetchConversations(context.Background()); err != nil {
		t.Fatalf("FetchConversations failed: %v", err)
	}

	if err := r.MarkRead(context.Background(), "m1"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if calls := rows.markReadCalls.Load(); calls != 0 {
		t.Errorf("Marking an already-read message must not hit the store, got %d calls", calls)
	}
}

func TestMarkRead_FlipsUnreadMessage(t *testing.T) {
	now := time.Now().UTC()
	rows := &fakeRowStore{
		conversations: []models.Conversation{conversationRow("c1", "me", "u1", now)},
		messages: map[string][]models.Message{
			"c1": {{Id: "m1", ConversationId: "c1", SenderId: "u1", Content: "hi", CreatedAt: now}},
		},
	}
	r := newTestReconciler(rows, "me")
	if err := r.FetchConversations(context.Background()); err != nil {
		t.Fatalf("FetchConversations failed: %v", err)
	}

	if err := r.MarkRead(context.Background(), "m1"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if calls := rows.markReadCalls.Load(); calls != 1 {
		t.Errorf("Expected one store call, got %d", calls)
	}
	if msgs := r.Messages(); !msgs[0].Read {
		t.Error("Expected the local read flag set")
	}
}

func TestFetchConversations_NoSession(t *testing.T) {
	r := NewReconciler(ReconcilerConfig{
		Rows:     &fakeRowStore{},
		Profiles: &fakeRowStore{},
		Session:  &fakeSession{},
	})
	if err := r.FetchConversations(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Expected ErrNoSession, got %v", err)
	}
}

func TestClose_DiscardsLateResults(t *testing.T) {
	now := time.Now().UTC()
	rows := &fakeRowStore{
		conversations: []models.Conversation{conversationRow("c1", "me", "u1", now)},
	}
	r := newTestReconciler(rows, "me")
	r.Close()

	if err := r.FetchConversations(context.Background()); err != nil {
		t.Fatalf("FetchConversations failed: %v", err)
	}
	if got := len(r.Conversations()); got != 0 {
		t.Errorf("Results after Close must be discarded, got %d conversations", got)
	}
}
