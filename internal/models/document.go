// internal/models/document.go
package models

import (
	"github.com/google/uuid"
)

// Document is a case attachment. Reference is the store's opaque handle; the
// bytes never pass through this service.
type Document struct {
	BaseModel
	PlanningApplicationID uuid.UUID  `json:"planning_application_id" gorm:"type:uuid;not null;index"`
	Reference             string     `json:"reference" gorm:"size:512;not null"`
	ContentType           string     `json:"content_type" gorm:"size:100"`
	Tags                  StringList `json:"tags"`
	Archived              bool       `json:"archived" gorm:"not null;default:false"`
	ArchiveReason         string     `json:"archive_reason,omitempty" gorm:"type:text"`
	ReplacedByID          *uuid.UUID `json:"replaced_by_id" gorm:"type:uuid"`
	ValidationRequestID   *uuid.UUID `json:"validation_request_id" gorm:"type:uuid;index"`
}
