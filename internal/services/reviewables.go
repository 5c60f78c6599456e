// internal/services/reviewables.go
package services

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/localgov/planning-backoffice/internal/models"
)

var reviewableOwners = map[string]func() models.Reviewable{
	"consideration_set":           func() models.Reviewable { return &models.ConsiderationSet{} },
	"policy_area":                 func() models.Reviewable { return &models.PolicyArea{} },
	"permitted_development_right": func() models.Reviewable { return &models.PermittedDevelopmentRight{} },
	"heads_of_term":               func() models.Reviewable { return &models.HeadsOfTerm{} },
	"local_policy":                func() models.Reviewable { return &models.LocalPolicy{} },
	"ownership_certificate":       func() models.Reviewable { return &models.OwnershipCertificate{} },
	"immunity_detail":             func() models.Reviewable { return &models.ImmunityDetail{} },
}

// ReviewableOwnerTypes lists the owner types that go through review, sorted.
func ReviewableOwnerTypes() []string {
	types := make([]string, 0, len(reviewableOwners))
	for t := range reviewableOwners {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// lockOwner loads an owner record for update.
func lockOwner(tx *gorm.DB, ownerType string, ownerID uuid.UUID) (models.Reviewable, error) {
	factory, ok := reviewableOwners[ownerType]
	if !ok {
		return nil, fieldError("owner_type", "oneof", fmt.Sprintf("%s is not reviewable", ownerType))
	}

	owner := factory()
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(owner, "id = ?", ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", ownerType, err)
	}

	if h, ok := owner.(*models.HeadsOfTerm); ok {
		if err := tx.Where("heads_of_term_id = ?", h.ID).Order("created_at ASC").Find(&h.Terms).Error; err != nil {
			return nil, fmt.Errorf("failed to load terms: %w", err)
		}
	}
	return owner, nil
}

func saveOwner(tx *gorm.DB, owner models.Reviewable) error {
	if err := tx.Omit(clause.Associations).Save(owner).Error; err != nil {
		return fmt.Errorf("failed to save %s: %w", owner.ReviewOwnerType(), err)
	}
	return nil
}
