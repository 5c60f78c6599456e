// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}

// Decode copies the document into a typed struct.
func (j JSONB) Decode(target interface{}) error {
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}

// ToJSONB flattens a struct into a JSONB document.
func ToJSONB(v interface{}) (JSONB, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out JSONB
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StringList is a text[] column on Postgres and a text column elsewhere.
type StringList pq.StringArray

func (s StringList) Value() (driver.Value, error) {
	return pq.StringArray(s).Value()
}

func (s *StringList) Scan(value interface{}) error {
	return (*pq.StringArray)(s).Scan(value)
}

func (StringList) GormDataType() string { return "text" }

func (StringList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// Enums
type UserRole string

const (
	UserRoleAssessor UserRole = "assessor"
	UserRoleReviewer UserRole = "reviewer"
	UserRoleAdmin    UserRole = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type ApplicationStatus string

const (
	ApplicationStatusNotStarted            ApplicationStatus = "not_started"
	ApplicationStatusInvalidated           ApplicationStatus = "invalidated"
	ApplicationStatusInAssessment          ApplicationStatus = "in_assessment"
	ApplicationStatusAwaitingDetermination ApplicationStatus = "awaiting_determination"
	ApplicationStatusDetermined            ApplicationStatus = "determined"
	ApplicationStatusWithdrawn             ApplicationStatus = "withdrawn"
	ApplicationStatusReturned              ApplicationStatus = "returned"
)

type RequestType string

const (
	RequestTypeDescriptionChange          RequestType = "description_change"
	RequestTypeReplacementDocument        RequestType = "replacement_document"
	RequestTypeAdditionalDocument         RequestType = "additional_document"
	RequestTypeDocumentCreate             RequestType = "document_create"
	RequestTypeRedLineBoundaryChange      RequestType = "red_line_boundary_change"
	RequestTypeFeeChange                  RequestType = "fee_change"
	RequestTypeOtherChange                RequestType = "other_change"
	RequestTypeTimeExtension              RequestType = "time_extension"
	RequestTypeOwnershipCertificateChange RequestType = "ownership_certificate_change"
	RequestTypeHeadsOfTermsChange         RequestType = "heads_of_terms_change"
	RequestTypePreCommencementCondition   RequestType = "pre_commencement_condition"
)

type RequestState string

const (
	RequestStatePending   RequestState = "pending"
	RequestStateOpen      RequestState = "open"
	RequestStateClosed    RequestState = "closed"
	RequestStateCancelled RequestState = "cancelled"
)

type ReviewStatus string

const (
	ReviewStatusNotStarted   ReviewStatus = "not_started"
	ReviewStatusInProgress   ReviewStatus = "in_progress"
	ReviewStatusToBeReviewed ReviewStatus = "to_be_reviewed"
	ReviewStatusComplete     ReviewStatus = "complete"
	ReviewStatusUpdated      ReviewStatus = "updated"
)

type ReviewProgress string

const (
	ReviewProgressNotStarted ReviewProgress = "review_not_started"
	ReviewProgressInProgress ReviewProgress = "review_in_progress"
	ReviewProgressComplete   ReviewProgress = "review_complete"
)

type ReviewAction string

const (
	ReviewActionAccepted          ReviewAction = "accepted"
	ReviewActionEditedAndAccepted ReviewAction = "edited_and_accepted"
	ReviewActionRejected          ReviewAction = "rejected"
)

type AgreementStatus string

const (
	AgreementStatusProposed AgreementStatus = "proposed"
	AgreementStatusAgreed   AgreementStatus = "agreed"
	AgreementStatusRejected AgreementStatus = "rejected"
)

type NotificationStatus string

const (
	NotificationStatusQueued NotificationStatus = "queued"
	NotificationStatusSent   NotificationStatus = "sent"
	NotificationStatusFailed NotificationStatus = "failed"
)
