package postgrest

// Collection names owned by the hosted store's row schema.
const (
	tableProfiles       = "profiles"
	tableBankAccounts   = "bank_accounts"
	tableTransactions   = "transactions"
	tablePaymentMethods = "payment_methods"
	tableConversations  = "conversations"
	tableMessages       = "messages"
	tableFriends        = "friends"
	tableNotifications  = "notifications"
)
