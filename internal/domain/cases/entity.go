// internal/domain/cases/entity.go
package cases

import "time"

type Status string

const (
	StatusOpen Status = "open"
	StatusWon  Status = "won"
	StatusLost Status = "lost"
)

func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusWon || s == StatusLost
}

// Case is a sales opportunity raised for a customer.
type Case struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	Title      string    `json:"title"`
	Status     Status    `json:"status"`
	Value      float64   `json:"value"`
	Currency   string    `json:"currency,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type RecordOutcomeRequest struct {
	Status Status  `json:"status" binding:"required,oneof=open won lost"`
	Value  float64 `json:"value" binding:"min=0"`
}

type OpenCaseRequest struct {
	Title string  `json:"title" binding:"required"`
	Value float64 `json:"value" binding:"min=0"`
}
