// internal/models/agreement.go
package models

import (
	"github.com/google/uuid"
)

// HeadsOfTermTerm is one obligation proposed in a heads of terms.
type HeadsOfTermTerm struct {
	BaseModel
	HeadsOfTermID uuid.UUID       `json:"heads_of_term_id" gorm:"type:uuid;not null;index"`
	Title         string          `json:"title" gorm:"size:255;not null"`
	Text          string          `json:"text" gorm:"type:text"`
	Status        AgreementStatus `json:"status" gorm:"type:varchar(20);default:'proposed'"`
}

// Condition is a pre-commencement condition the applicant has to agree to.
type Condition struct {
	BaseModel
	PlanningApplicationID uuid.UUID       `json:"planning_application_id" gorm:"type:uuid;not null;index"`
	Title                 string          `json:"title" gorm:"size:255;not null"`
	Text                  string          `json:"text" gorm:"type:text"`
	Reason                string          `json:"reason" gorm:"type:text"`
	Status                AgreementStatus `json:"status" gorm:"type:varchar(20);default:'proposed'"`
}
