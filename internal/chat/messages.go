package chat

import (
	"context"
	"fmt"
	"time"

	"finlink-client-go/internal/models"
	"finlink-client-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Delivery is the two-phase state of an optimistically sent message.
type Delivery string

const (
	DeliveryPending   Delivery = "pending"
	DeliveryConfirmed Delivery = "confirmed"
)

// ChatMessage is a message row tagged with its delivery phase. Rows
// fetched from the store are always confirmed; a locally sent message
// is pending until the insert resolves, then reconciled to confirmed or
// rolled back.
type ChatMessage struct {
	models.Message
	Delivery Delivery
}

// Messages returns the active conversation's messages, oldest first.
func (r *Reconciler) Messages() []ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ChatMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *Reconciler) loadMessages(ctx context.Context, conversationId string) error {
	rows, err := r.rows.GetMessages(ctx, conversationId)
	if err != nil {
		return fmt.Errorf("message fetch failed: %w", err)
	}

	if r.closed.Load() {
		return nil
	}

	loaded := make([]ChatMessage, len(rows))
	for i, row := range rows {
		loaded[i] = ChatMessage{Message: row, Delivery: DeliveryConfirmed}
	}

	r.mu.Lock()
	// A newer selection may have raced the fetch; stale results are
	// discarded rather than applied.
	if r.activeId == conversationId {
		r.messages = loaded
	}
	r.mu.Unlock()
	return nil
}

// SendMessage appends the message optimistically as pending, then
// reconciles to the confirmed server row or rolls the entry back.
func (r *Reconciler) SendMessage(ctx context.Context, content string) (*ChatMessage, error) {
	sess := r.session.Current()
	if sess == nil {
		return nil, ErrNoSession
	}
	if content == "" {
		return nil, fmt.Errorf("message content cannot be empty")
	}

	r.mu.Lock()
	conversationId := r.activeId
	if conversationId == "" {
		r.mu.Unlock()
		return nil, fmt.Errorf("no active conversation")
	}

	// The receiver column is what the counterpart's realtime stream
	// filters on; it is derived from the conversation pair, not input.
	receiverId := ""
	for i := range r.conversations {
		if r.conversations[i].Id == conversationId {
			receiverId = r.conversations[i].CounterpartId(sess.User.Id)
			break
		}
	}

	pending := ChatMessage{
		Message: models.Message{
			Id:             uuid.New().String(),
			ConversationId: conversationId,
			SenderId:       sess.User.Id,
			ReceiverId:     receiverId,
			Content:        content,
			CreatedAt:      time.Now().UTC(),
		},
		Delivery: DeliveryPending,
	}
	r.messages = append(r.messages, pending)
	r.mu.Unlock()

	created, err := r.rows.CreateMessage(ctx, store.CreateMessageParams{
		Id:             pending.Id,
		ConversationId: conversationId,
		SenderId:       pending.SenderId,
		ReceiverId:     receiverId,
		Content:        content,
	})
	if err != nil {
		// Roll the tentative entry back; state returns to last-known.
		r.removeMessage(pending.Id)
		return nil, fmt.Errorf("message send failed: %w", err)
	}

	confirmed := ChatMessage{Message: *created, Delivery: DeliveryConfirmed}

	// The insert landed server-side even if the reconciler was closed
	// mid-send; report the confirmed row, just skip the state merge.
	if r.closed.Load() {
		return &confirmed, nil
	}

	r.mu.Lock()
	for i := range r.messages {
		if r.messages[i].Id == pending.Id {
			r.messages[i] = confirmed
			break
		}
	}
	for i := range r.conversations {
		if r.conversations[i].Id == conversationId {
			r.conversations[i].LastMessage = created
			if created.CreatedAt.After(r.conversations[i].LastActivity) {
				r.conversations[i].LastActivity = created.CreatedAt
			}
			break
		}
	}
	r.mu.Unlock()

	return &confirmed, nil
}

func (r *Reconciler) removeMessage(messageId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].Id == messageId {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			return
		}
	}
}

// MarkRead flips a message's read flag false -> true. An already-read
// message is a no-op with no network call; the flag never reverts.
func (r *Reconciler) MarkRead(ctx context.Context, messageId string) error {
	r.mu.RLock()
	alreadyRead := false
	found := false
	for i := range r.messages {
		if r.messages[i].Id == messageId {
			found = true
			alreadyRead = r.messages[i].Read
			break
		}
	}
	r.mu.RUnlock()

	if found && alreadyRead {
		return nil
	}

	if err := r.rows.MarkMessageRead(ctx, messageId); err != nil {
		return err
	}

	r.mu.Lock()
	for i := range r.messages {
		if r.messages[i].Id == messageId {
			r.messages[i].Read = true
			break
		}
	}
	r.mu.Unlock()

	zap.L().Debug("Message marked read", zap.String("message_id", messageId))
	return nil
}
