// internal/models/validation_request.go
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationRequest is a proposed change routed to the applicant. Every concrete
// request type shares this table; Type selects the behaviour.
type ValidationRequest struct {
	BaseModel
	PlanningApplicationID uuid.UUID    `json:"planning_application_id" gorm:"type:uuid;not null;uniqueIndex:idx_validation_requests_sequence,priority:1"`
	UserID                uuid.UUID    `json:"user_id" gorm:"type:uuid;not null;index"`
	Type                  RequestType  `json:"type" gorm:"type:varchar(40);not null;uniqueIndex:idx_validation_requests_sequence,priority:2"`
	Sequence              int          `json:"sequence" gorm:"not null;uniqueIndex:idx_validation_requests_sequence,priority:3"`
	State                 RequestState `json:"state" gorm:"type:varchar(20);not null;default:'pending';index"`
	ScopeKey              string       `json:"scope_key,omitempty" gorm:"size:64;not null;default:''"`
	Exclusive             bool         `json:"exclusive" gorm:"column:is_exclusive;not null;default:false"`
	ResponseDays          int          `json:"response_days" gorm:"not null"`
	Payload               JSONB        `json:"payload" gorm:"type:jsonb"`
	Response              JSONB        `json:"response,omitempty" gorm:"type:jsonb"`
	Approved              *bool        `json:"approved"`
	RejectionReason       string       `json:"rejection_reason,omitempty" gorm:"type:text"`
	AutoClosed            bool         `json:"auto_closed" gorm:"not null;default:false"`
	UpdateCounter         bool         `json:"update_counter" gorm:"not null;default:false"`
	NotifiedAt            *time.Time   `json:"notified_at"`
	ClosedAt              *time.Time   `json:"closed_at"`
	CancelledAt           *time.Time   `json:"cancelled_at"`
	CancelReason          string       `json:"cancel_reason,omitempty" gorm:"type:text"`

	// Relationships
	PlanningApplication *PlanningApplication `json:"planning_application,omitempty" gorm:"foreignKey:PlanningApplicationID"`
	User                *User                `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Live requests are the ones still waiting on someone.
func (r *ValidationRequest) Live() bool {
	return r.State == RequestStatePending || r.State == RequestStateOpen
}

func (r *ValidationRequest) Terminal() bool {
	return r.State == RequestStateClosed || r.State == RequestStateCancelled
}

// DisplayName is e.g. "Description change #2".
func (r *ValidationRequest) DisplayName() string {
	label := strings.ReplaceAll(string(r.Type), "_", " ")
	return fmt.Sprintf("%s%s #%d", strings.ToUpper(label[:1]), label[1:], r.Sequence)
}
