// internal/models/review.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Review is one reviewer pass over an assessor's work on an owner record. Rows
// are never rewritten once reviewed; a later edit to the owner supersedes the
// current row with a new one.
type Review struct {
	BaseModel
	OwnerType             string         `json:"owner_type" gorm:"size:50;not null;index:idx_reviews_owner,priority:1"`
	OwnerID               uuid.UUID      `json:"owner_id" gorm:"type:uuid;not null;index:idx_reviews_owner,priority:2"`
	PlanningApplicationID uuid.UUID      `json:"planning_application_id" gorm:"type:uuid;not null;index"`
	AssessorID            *uuid.UUID     `json:"assessor_id" gorm:"type:uuid"`
	ReviewerID            *uuid.UUID     `json:"reviewer_id" gorm:"type:uuid"`
	Status                ReviewStatus   `json:"status" gorm:"type:varchar(20);not null;default:'not_started'"`
	ReviewStatus          ReviewProgress `json:"review_status" gorm:"type:varchar(30);not null;default:'review_not_started'"`
	Action                ReviewAction   `json:"action,omitempty" gorm:"type:varchar(30)"`
	Comment               string         `json:"comment,omitempty" gorm:"type:text"`
	ReviewerEdited        bool           `json:"reviewer_edited" gorm:"not null;default:false"`
	ReviewedAt            *time.Time     `json:"reviewed_at"`
	IsCurrent             bool           `json:"is_current" gorm:"not null;default:true"`
	SupersedesID          *uuid.UUID     `json:"supersedes_id" gorm:"type:uuid"`
}

// Open reviews have not yet been signed off by a reviewer.
func (r *Review) Open() bool {
	return r.ReviewedAt == nil
}

// Reviewable is implemented by every record that goes through assessor/reviewer sign-off.
type Reviewable interface {
	ReviewOwnerType() string
	OwnerID() uuid.UUID
	ApplicationID() uuid.UUID
	// CurrentStatus mirrors the status of the owner's current review.
	CurrentStatus() ReviewStatus
	SetCurrentStatus(ReviewStatus)
	// MissingAssessment names the fields the assessor still has to fill in.
	MissingAssessment() []string
	// ApplyEditedContent writes edits onto the owner; unknown fields are an error.
	ApplyEditedContent(fields map[string]interface{}) error
	// Content is the assessor-authored content, used for audit diffs.
	Content() map[string]interface{}
}
