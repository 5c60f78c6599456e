// internal/services/audit_service.go
package services

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/wI2L/jsondiff"
	"gorm.io/gorm"

	"github.com/localgov/planning-backoffice/internal/models"
	"github.com/localgov/planning-backoffice/internal/utils"
)

// AuditEntry is one activity line for a case.
type AuditEntry struct {
	ApplicationID uuid.UUID
	ActivityType  string
	Comment       string
	Info          string
	ActorID       *uuid.UUID
	ResourceType  string
	ResourceID    *uuid.UUID
}

// AuditService appends to the case activity log. Emit must be given the same
// transaction as the state change it records.
type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

func (s *AuditService) Emit(tx *gorm.DB, entry AuditEntry) error {
	log := &models.AuditLog{
		PlanningApplicationID: entry.ApplicationID,
		ActorID:               entry.ActorID,
		ActivityType:          entry.ActivityType,
		Comment:               entry.Comment,
		Info:                  entry.Info,
		ResourceType:          entry.ResourceType,
		ResourceID:            entry.ResourceID,
	}
	if err := tx.Create(log).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *AuditService) ListForApplication(applicationID uuid.UUID, params utils.PaginationParams) ([]models.AuditLog, int64, error) {
	query := s.db.Model(&models.AuditLog{}).Where("planning_application_id = ?", applicationID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query = utils.ApplyPagination(query.Order("created_at "+params.Order), params)

	var logs []models.AuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}
	return logs, total, nil
}

// contentDiff renders the JSON patch between two content snapshots for audit info.
func contentDiff(before, after map[string]interface{}) (string, error) {
	b, err := json.Marshal(before)
	if err != nil {
		return "", err
	}
	a, err := json.Marshal(after)
	if err != nil {
		return "", err
	}
	patch, err := jsondiff.CompareJSON(b, a)
	if err != nil {
		return "", err
	}
	if len(patch) == 0 {
		return "", nil
	}
	out, err := json.Marshal(patch)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func actorRef(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
