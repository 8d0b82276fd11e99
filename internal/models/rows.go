package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Profile is the public identity record, 1:1 with an authenticated user.
// A profile is guaranteed to exist after first successful login (the
// profile loader creates one when none is found).
type Profile struct {
	Id          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Handle      string    `json:"handle"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// BankAccount belongs to exactly one profile and is never shared.
// This client reads accounts; it never mutates them.
type BankAccount struct {
	Id            string          `json:"id"`
	ProfileId     string          `json:"profile_id"`
	Name          string          `json:"name"`
	AccountNumber string          `json:"account_number"`
	Type          string          `json:"type"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	Primary       bool            `json:"is_primary"`
}

// Transaction is a row from the transactions collection (read-only here).
type Transaction struct {
	Id          string          `json:"id"`
	AccountId   string          `json:"account_id"`
	ProfileId   string          `json:"profile_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PaymentMethod is a stored payment instrument (read-only here).
type PaymentMethod struct {
	Id        string    `json:"id"`
	ProfileId string    `json:"profile_id"`
	Kind      string    `json:"kind"`
	Label     string    `json:"label"`
	Last4     string    `json:"last4,omitempty"`
	Primary   bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation models exactly one unordered pair of participants.
// The store holds at most one row per pair; User1Id/User2Id are stored
// in normalized (lexicographic) order so the uniqueness constraint works.
type Conversation struct {
	Id        string    `json:"id"`
	User1Id   string    `json:"user1_id"`
	User2Id   string    `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PairKey returns the order-independent identity of the participant pair.
func (c *Conversation) PairKey() string {
	return PairKey(c.User1Id, c.User2Id)
}

// CounterpartId returns the participant that is not userId.
func (c *Conversation) CounterpartId(userId string) string {
	if c.User1Id == userId {
		return c.User2Id
	}
	return c.User1Id
}

// PairKey normalizes an unordered participant pair into a stable key.
func PairKey(a, b string) string {
	if a < b {
		return a + ":" + b
	}
	return b + ":" + a
}

// Message is immutable once created except for the read flag, which
// transitions false -> true only.
type Message struct {
	Id             string    `json:"id"`
	ConversationId string    `json:"conversation_id"`
	SenderId       string    `json:"sender_id"`
	ReceiverId     string    `json:"receiver_id"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

// Friend edge statuses. Transitions are pending -> accepted or
// pending -> rejected only; a rejected edge stays closed.
const (
	FriendStatusPending  = "pending"
	FriendStatusAccepted = "accepted"
	FriendStatusRejected = "rejected"
)

// FriendEdge is a directed requester -> target record. The undirected
// friendship relation is derived by checking both directions.
type FriendEdge struct {
	Id          string    `json:"id"`
	RequesterId string    `json:"requester_id"`
	TargetId    string    `json:"target_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CounterpartId returns the party that is not userId.
func (e *FriendEdge) CounterpartId(userId string) string {
	if e.RequesterId == userId {
		return e.TargetId
	}
	return e.RequesterId
}

// ValidFriendStatus reports whether s is one of the known edge statuses.
func ValidFriendStatus(s string) bool {
	return s == FriendStatusPending || s == FriendStatusAccepted || s == FriendStatusRejected
}

// Notification belongs to one profile; the read flag is monotonic and
// rows are deleted only by the owning user.
type Notification struct {
	Id        string    `json:"id"`
	ProfileId string    `json:"profile_id"`
	Type      string    `json:"type"`
	ActorId   string    `json:"actor_id,omitempty"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
