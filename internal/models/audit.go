// internal/models/audit.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuditLog is the append-only activity history of a case.
type AuditLog struct {
	BaseModel
	PlanningApplicationID uuid.UUID  `json:"planning_application_id" gorm:"type:uuid;not null;index"`
	ActorID               *uuid.UUID `json:"actor_id" gorm:"type:uuid;index"`
	ActivityType          string     `json:"activity_type" gorm:"size:100;not null;index"`
	Comment               string     `json:"comment,omitempty" gorm:"type:text"`
	Info                  string     `json:"info,omitempty" gorm:"type:text"`
	ResourceType          string     `json:"resource_type,omitempty" gorm:"size:50"`
	ResourceID            *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`

	// Relationships
	Actor *User `json:"actor,omitempty" gorm:"foreignKey:ActorID"`
}

// Notification records one outbound message and its delivery outcome.
type Notification struct {
	BaseModel
	PlanningApplicationID uuid.UUID          `json:"planning_application_id" gorm:"type:uuid;not null;index"`
	ValidationRequestID   *uuid.UUID         `json:"validation_request_id" gorm:"type:uuid"`
	Recipient             string             `json:"recipient" gorm:"size:255;not null"`
	Template              string             `json:"template" gorm:"size:100;not null"`
	Subject               string             `json:"subject" gorm:"size:255"`
	Status                NotificationStatus `json:"status" gorm:"type:varchar(20);default:'queued';index"`
	Attempts              int                `json:"attempts" gorm:"not null;default:0"`
	LastError             string             `json:"last_error,omitempty" gorm:"type:text"`
	SentAt                *time.Time         `json:"sent_at"`
}

// FeePayment tracks a payment intent raised for an increased application fee.
type FeePayment struct {
	BaseModel
	PlanningApplicationID uuid.UUID       `json:"planning_application_id" gorm:"type:uuid;not null;index"`
	ValidationRequestID   uuid.UUID       `json:"validation_request_id" gorm:"type:uuid;not null;uniqueIndex"`
	Amount                decimal.Decimal `json:"amount" gorm:"type:numeric(10,2);not null"`
	Currency              string          `json:"currency" gorm:"size:3;not null"`
	PaymentIntentID       string          `json:"payment_intent_id,omitempty" gorm:"size:100"`
	Status                string          `json:"status" gorm:"size:40;not null"`
}
