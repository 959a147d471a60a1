package authapi

import "time"

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type logoutRequest struct {
	Username string `json:"username"`
}

type updateLikeRequest struct {
	Username  string `json:"username"`
	MessageID string `json:"message_id"`
	// Username2 is sent by older clients; the channel is derived from the message.
	Username2 string `json:"username2,omitempty"`
}

type sendMessageRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

type getMessagesRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
}

type newChatRequest struct {
	CurrentUser string `json:"current_user"`
	NewUser     string `json:"new_user"`
}

type accountResponse struct {
	Username string `json:"username"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Upvotes   []string  `json:"upvotes"`
}

type voteResponse struct {
	MessageID string `json:"message_id"`
	Member    bool   `json:"member"`
	Count     int    `json:"count"`
}

// valueResponse keeps the {"value": ...} envelope the browser client reads.
type valueResponse[T any] struct {
	Value T `json:"value"`
}
