// internal/models/planning_application.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanningApplication is the case every request and review hangs off.
type PlanningApplication struct {
	BaseModel
	Reference         string            `json:"reference" gorm:"size:50;uniqueIndex;not null"`
	Description       string            `json:"description" gorm:"type:text;not null"`
	Status            ApplicationStatus `json:"status" gorm:"type:varchar(30);default:'not_started';index"`
	BoundaryGeojson   JSONB             `json:"boundary_geojson,omitempty" gorm:"type:jsonb"`
	Fee               decimal.Decimal   `json:"fee" gorm:"type:numeric(10,2);not null;default:0"`
	ExpiryDate        *time.Time        `json:"expiry_date"`
	AssignedOfficerID *uuid.UUID        `json:"assigned_officer_id" gorm:"type:uuid;index"`
	ApplicantEmail    string            `json:"applicant_email" gorm:"size:255"`
	AgentEmail        string            `json:"agent_email,omitempty" gorm:"size:255"`
	Decision          string            `json:"decision,omitempty" gorm:"size:30"`
	InvalidatedAt     *time.Time        `json:"invalidated_at"`
	ValidatedAt       *time.Time        `json:"validated_at"`
	DeterminedAt      *time.Time        `json:"determined_at"`
	WithdrawnAt       *time.Time        `json:"withdrawn_at"`

	// Relationships
	AssignedOfficer *User `json:"assigned_officer,omitempty" gorm:"foreignKey:AssignedOfficerID"`
}

// PostValidation is true once the case has been validated.
func (a *PlanningApplication) PostValidation() bool {
	switch a.Status {
	case ApplicationStatusInAssessment, ApplicationStatusAwaitingDetermination:
		return true
	}
	return false
}

// SendsRequestsOnCreate reports whether a new request goes to the applicant
// straight away. An invalidated case has already released its pending batch, so
// nothing else would ever send a later one.
func (a *PlanningApplication) SendsRequestsOnCreate() bool {
	return a.Status == ApplicationStatusInvalidated || a.PostValidation()
}

// Closed cases accept no new requests.
func (a *PlanningApplication) Closed() bool {
	switch a.Status {
	case ApplicationStatusDetermined, ApplicationStatusWithdrawn, ApplicationStatusReturned:
		return true
	}
	return false
}

// Contact is who should hear about request activity: the agent when there is one.
func (a *PlanningApplication) Contact() string {
	if a.AgentEmail != "" {
		return a.AgentEmail
	}
	return a.ApplicantEmail
}
