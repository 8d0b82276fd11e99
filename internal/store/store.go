package store

import (
	"context"
	"errors"

	"finlink-client-go/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrRowNotFound     = errors.New("row not found")
	ErrDuplicateRow    = errors.New("duplicate row")
	ErrEdgeClosed      = errors.New("friend edge closed after rejection")
	ErrNoCachedSession = errors.New("no cached session")
)

// CreateProfileParams contains the fields for a lazily created profile.
type CreateProfileParams struct {
	Id          string
	DisplayName string
	Handle      string
	AvatarURL   string
	Phone       string
	Bio         string
}

// CreateConversationParams describes a new conversation row. User1Id and
// User2Id must already be in normalized (lexicographic) order so the
// store's one-row-per-pair constraint holds.
type CreateConversationParams struct {
	Id      string
	User1Id string
	User2Id string
}

// CreateMessageParams describes a new message row.
type CreateMessageParams struct {
	Id             string
	ConversationId string
	SenderId       string
	ReceiverId     string
	Content        string
}

// CreateFriendRequestParams describes a new pending friend edge.
type CreateFriendRequestParams struct {
	Id          string
	RequesterId string
	TargetId    string
}

// ProfileStore is the profiles collection boundary.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	CreateProfile(ctx context.Context, params CreateProfileParams) (*models.Profile, error)
	UpdateProfile(ctx context.Context, id string, fields map[string]any) (*models.Profile, error)
}

// AccountStore reads the finance collections. This client never mutates
// them; balances are maintained by privileged server-side paths.
type AccountStore interface {
	GetBankAccounts(ctx context.Context, profileId string) ([]models.BankAccount, error)
	GetPaymentMethods(ctx context.Context, profileId string) ([]models.PaymentMethod, error)
	GetTransactions(ctx context.Context, profileId string, limit int) ([]models.Transaction, error)
}

// ConversationStore is the conversations/messages collection boundary.
type ConversationStore interface {
	GetConversations(ctx context.Context, userId string) ([]models.Conversation, error)
	CreateConversation(ctx context.Context, params CreateConversationParams) (*models.Conversation, error)
	GetMessages(ctx context.Context, conversationId string) ([]models.Message, error)
	GetLastMessage(ctx context.Context, conversationId string) (*models.Message, error)
	CreateMessage(ctx context.Context, params CreateMessageParams) (*models.Message, error)
	MarkMessageRead(ctx context.Context, messageId string) error
}

// FriendStore is the friend-edge collection boundary.
type FriendStore interface {
	GetFriendEdges(ctx context.Context, userId, status string) ([]models.FriendEdge, error)
	GetIncomingRequests(ctx context.Context, userId string) ([]models.FriendEdge, error)
	GetEdgeBetween(ctx context.Context, userA, userB string) (*models.FriendEdge, error)
	CreateFriendRequest(ctx context.Context, params CreateFriendRequestParams) (*models.FriendEdge, error)
	// UpdateFriendStatus applies a pending -> status transition. The row
	// filter requires status=pending, so a settled edge yields ErrRowNotFound.
	UpdateFriendStatus(ctx context.Context, edgeId, status string) (*models.FriendEdge, error)
}

// NotificationStore is the notifications collection boundary.
type NotificationStore interface {
	GetNotifications(ctx context.Context, profileId string) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	DeleteNotification(ctx context.Context, id, profileId string) error
}

// RowStore is the full contract the hosted row API must satisfy.
type RowStore interface {
	ProfileStore
	AccountStore
	ConversationStore
	FriendStore
	NotificationStore

	Close()
}
