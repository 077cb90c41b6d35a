// internal/domain/activity/entity.go
package activity

import (
	"fmt"
	"time"
)

type Type string

const (
	TypeCustomerCreated     Type = "customer_created"
	TypeCustomerUpdated     Type = "customer_updated"
	TypeCustomerMerged      Type = "customer_merged"
	TypeTagAdded            Type = "tag_added"
	TypeTagRemoved          Type = "tag_removed"
	TypeContactAdded        Type = "contact_added"
	TypeCompanyLinked       Type = "company_linked"
	TypeCompanySynced       Type = "company_synced"
	TypeConversationMerged  Type = "conversation_merged"
	TypeCaseOutcomeRecorded Type = "case_outcome_recorded"
	TypeNote                Type = "note"
)

// Activity is an append-only event. It is never updated after insert.
type Activity struct {
	ID   string `json:"id"`
	Type Type   `json:"type"`

	// Owner: at most one is set.
	CustomerID     string `json:"customerId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	CaseID         string `json:"caseId,omitempty"`

	ActorID     string                 `json:"actorId,omitempty"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

func (a *Activity) Validate() error {
	if a.Type == "" {
		return fmt.Errorf("activity type is required")
	}
	owners := 0
	for _, id := range []string{a.CustomerID, a.ConversationID, a.CaseID} {
		if id != "" {
			owners++
		}
	}
	if owners > 1 {
		return fmt.Errorf("activity has %d owners, at most one allowed", owners)
	}
	return nil
}

type EntrySource string

const (
	SourceActivity EntrySource = "activity"
	SourceMessage  EntrySource = "message"
)

// Entry types synthesized from messages.
const (
	EntryMessageInbound  = "message_inbound"
	EntryMessageOutbound = "message_outbound"
)

// TimelineEntry is one row of the unified customer timeline.
type TimelineEntry struct {
	ID             string                 `json:"id"`
	Source         EntrySource            `json:"source"`
	Type           string                 `json:"type"`
	Timestamp      time.Time              `json:"timestamp"`
	ActorID        string                 `json:"actorId,omitempty"`
	Summary        string                 `json:"summary,omitempty"`
	ConversationID string                 `json:"conversationId,omitempty"`
	Channel        string                 `json:"channel,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

type TimelineOptions struct {
	Limit           int        `form:"limit" binding:"omitempty,min=1,max=500"`
	Before          *time.Time `form:"before" time_format:"2006-01-02T15:04:05Z07:00"`
	Types           []string   `form:"types"`
	IncludeMessages *bool      `form:"include_messages"`
}
