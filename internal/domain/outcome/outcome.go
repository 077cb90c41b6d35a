// internal/domain/outcome/outcome.go
package outcome

import (
	"context"
	"time"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Operations reported out-of-band.
const (
	OpCompanySync       = "company_sync"
	OpSenderPropagation = "sender_propagation"
	OpMigrationGroup    = "migration_group"
	OpCustomerMerge     = "customer_merge"
)

// Secondary describes a write attempted after the primary write committed.
// A failed secondary never rolls back the primary.
type Secondary struct {
	Operation  string    `json:"operation"`
	Status     Status    `json:"status"`
	SubjectID  string    `json:"subjectId,omitempty"`
	TargetID   string    `json:"targetId,omitempty"`
	Affected   int       `json:"affected"`
	Detail     string    `json:"detail,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func Succeeded(op, subjectID, targetID string, affected int) Secondary {
	return Secondary{Operation: op, Status: StatusSucceeded, SubjectID: subjectID, TargetID: targetID, Affected: affected, OccurredAt: time.Now().UTC()}
}

func Skipped(op, subjectID, detail string) Secondary {
	return Secondary{Operation: op, Status: StatusSkipped, SubjectID: subjectID, Detail: detail, OccurredAt: time.Now().UTC()}
}

func Failed(op, subjectID string, err error) Secondary {
	s := Secondary{Operation: op, Status: StatusFailed, SubjectID: subjectID, OccurredAt: time.Now().UTC()}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

func (s Secondary) OK() bool { return s.Status != StatusFailed }

// Reporter receives secondary outcomes for out-of-band delivery.
type Reporter interface {
	Report(ctx context.Context, s Secondary)
}

// NopReporter discards outcomes.
type NopReporter struct{}

func (NopReporter) Report(context.Context, Secondary) {}
