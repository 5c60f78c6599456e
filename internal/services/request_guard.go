// internal/services/request_guard.go
package services

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localgov/planning-backoffice/internal/models"
)

// nextSequence returns the next 1-based ordinal for a request type on a case.
// Soft-deleted rows keep their numbers, so they are counted. The caller holds the
// case row lock.
func nextSequence(tx *gorm.DB, applicationID uuid.UUID, requestType models.RequestType) (int, error) {
	var last int
	err := tx.Unscoped().Model(&models.ValidationRequest{}).
		Where("planning_application_id = ? AND type = ?", applicationID, requestType).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute request sequence: %w", err)
	}
	return last + 1, nil
}

// ensureSingleOpen fails with a ConflictError when a pending or open request of
// the same type and scope already exists on the case.
func ensureSingleOpen(tx *gorm.DB, applicationID uuid.UUID, requestType models.RequestType, scope string) error {
	live, err := liveRequestsOfType(tx, applicationID, requestType, scope)
	if err != nil {
		return err
	}
	if len(live) == 0 {
		return nil
	}
	metricsSingleton().conflicts.WithLabelValues(string(requestType)).Inc()
	return &ConflictError{
		Message: fmt.Sprintf("%s is already in progress for this application; cancel or close it first", live[0].DisplayName()),
	}
}

// supersedePrevious marks earlier closed requests of the same type and scope as
// no longer the current one.
func supersedePrevious(tx *gorm.DB, req *models.ValidationRequest) error {
	err := tx.Model(&models.ValidationRequest{}).
		Where("planning_application_id = ? AND type = ? AND scope_key = ? AND state = ? AND id <> ?",
			req.PlanningApplicationID, req.Type, req.ScopeKey, models.RequestStateClosed, req.ID).
		Where("update_counter = ?", true).
		Update("update_counter", false).Error
	if err != nil {
		return fmt.Errorf("failed to supersede earlier requests: %w", err)
	}
	return nil
}

// reactivatePrevious restores the most recent earlier closed request of the same
// type and scope when req is cancelled.
func reactivatePrevious(tx *gorm.DB, req *models.ValidationRequest) error {
	var prior models.ValidationRequest
	err := tx.Where("planning_application_id = ? AND type = ? AND scope_key = ? AND state = ? AND id <> ?",
		req.PlanningApplicationID, req.Type, req.ScopeKey, models.RequestStateClosed, req.ID).
		Where("sequence < ?", req.Sequence).
		Order("created_at DESC, sequence DESC").
		Limit(1).
		Find(&prior).Error
	if err != nil {
		return fmt.Errorf("failed to find earlier request: %w", err)
	}
	if prior.ID == uuid.Nil || prior.UpdateCounter {
		return nil
	}
	if err := tx.Model(&prior).Update("update_counter", true).Error; err != nil {
		return fmt.Errorf("failed to reactivate earlier request: %w", err)
	}
	return nil
}
