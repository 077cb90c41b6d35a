// internal/domain/conversation/entity.go
package conversation

import "time"

type Status string

const (
	StatusOpen    Status = "open"
	StatusPending Status = "pending"
	StatusClosed  Status = "closed"
)

// Sender is a snapshot of the owning customer's identity fields.
// Only the customer update path writes it.
type Sender struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

type Conversation struct {
	ID            string     `json:"id"`
	CustomerID    string     `json:"customerId"`
	Channel       string     `json:"channel"`
	Status        Status     `json:"status"`
	Subject       string     `json:"subject,omitempty"`
	Sender        Sender     `json:"sender"`
	MessageCount  int        `json:"messageCount"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
	MergedFrom    []string   `json:"mergedFrom,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Direction      Direction `json:"direction"`
	Body           string    `json:"body"`
	Author         string    `json:"author,omitempty"`
	Channel        string    `json:"channel,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
