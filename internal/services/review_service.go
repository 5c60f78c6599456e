// internal/services/review_service.go
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/localgov/planning-backoffice/internal/database"
	"github.com/localgov/planning-backoffice/internal/models"
	"github.com/localgov/planning-backoffice/internal/workflow"
)

// Review events
const (
	EventStartAssessment    workflow.Event = "start_assessment"
	EventCompleteAssessment workflow.Event = "complete_assessment"
	EventAcceptReview       workflow.Event = "accept_review"
	EventEditAndAccept      workflow.Event = "edit_and_accept_review"
	EventReturnToOfficer    workflow.Event = "return_to_officer"
)

// reviewSubject pairs the current review row with the record under review.
type reviewSubject struct {
	review *models.Review
	owner  models.Reviewable
}

func reviewStates(statuses ...models.ReviewStatus) []workflow.State {
	states := make([]workflow.State, len(statuses))
	for i, s := range statuses {
		states[i] = workflow.State(s)
	}
	return states
}

func mirrorStatus(s *reviewSubject) error {
	s.owner.SetCurrentStatus(s.review.Status)
	return nil
}

// ReviewMachine is the assessor/reviewer table shared by every reviewable owner.
var ReviewMachine = workflow.NewMachine[*reviewSubject]("review",
	workflow.Accessor[*reviewSubject]{
		Get: func(s *reviewSubject) workflow.State { return workflow.State(s.review.Status) },
		Set: func(s *reviewSubject, st workflow.State) { s.review.Status = models.ReviewStatus(st) },
	},
	workflow.Transition[*reviewSubject]{
		Event:  EventStartAssessment,
		From:   reviewStates(models.ReviewStatusNotStarted, models.ReviewStatusUpdated),
		To:     workflow.State(models.ReviewStatusInProgress),
		Effect: mirrorStatus,
	},
	workflow.Transition[*reviewSubject]{
		Event: EventCompleteAssessment,
		From:  reviewStates(models.ReviewStatusNotStarted, models.ReviewStatusInProgress, models.ReviewStatusUpdated),
		To:    workflow.State(models.ReviewStatusToBeReviewed),
		Guard: func(s *reviewSubject) error {
			missing := s.owner.MissingAssessment()
			if len(missing) == 0 {
				return nil
			}
			verrs := &ValidationErrors{}
			for _, field := range missing {
				verrs.Add(field, "required", field+" must be completed before the assessment is sent for review")
			}
			return verrs
		},
		Effect: mirrorStatus,
	},
	workflow.Transition[*reviewSubject]{
		Event:  EventAcceptReview,
		From:   reviewStates(models.ReviewStatusToBeReviewed),
		To:     workflow.State(models.ReviewStatusComplete),
		Effect: mirrorStatus,
	},
	workflow.Transition[*reviewSubject]{
		Event:  EventEditAndAccept,
		From:   reviewStates(models.ReviewStatusToBeReviewed),
		To:     workflow.State(models.ReviewStatusComplete),
		Effect: mirrorStatus,
	},
	workflow.Transition[*reviewSubject]{
		Event:  EventReturnToOfficer,
		From:   reviewStates(models.ReviewStatusToBeReviewed),
		To:     workflow.State(models.ReviewStatusInProgress),
		Effect: mirrorStatus,
	},
)

type EditAndAcceptInput struct {
	Fields  map[string]interface{} `json:"fields" validate:"required"`
	Comment string                 `json:"comment,omitempty"`
}

type ReturnToOfficerInput struct {
	Comment string `json:"comment"`
}

type UpdateOwnerInput struct {
	Fields map[string]interface{} `json:"fields" validate:"required"`
}

// ReviewService runs the assessor/reviewer sign-off on reviewable records.
// Completed reviews are never rewritten: a later change supersedes the current
// row with a new one in updated.
type ReviewService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
}

func NewReviewService(db *gorm.DB, audit *AuditService) *ReviewService {
	return &ReviewService{db: db, audit: audit, now: time.Now}
}

func (s *ReviewService) WithClock(now func() time.Time) *ReviewService {
	s.now = now
	return s
}

// Current returns the owner's current review.
func (s *ReviewService) Current(ownerType string, ownerID uuid.UUID) (*models.Review, error) {
	var review models.Review
	err := s.db.Where("owner_type = ? AND owner_id = ? AND is_current = ?", ownerType, ownerID, true).First(&review).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch review: %w", err)
	}
	return &review, nil
}

// History lists every review row for an owner, newest first.
func (s *ReviewService) History(ownerType string, ownerID uuid.UUID) ([]models.Review, error) {
	var reviews []models.Review
	err := s.db.Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		Order("created_at DESC").
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reviews: %w", err)
	}
	return reviews, nil
}

func (s *ReviewService) StartAssessment(ownerType string, ownerID, actorID uuid.UUID) (*models.Review, error) {
	return s.run(ownerType, ownerID, actorID, "start assessment", func(tx *gorm.DB, subj *reviewSubject) error {
		if err := ReviewMachine.Fire(subj, EventStartAssessment); err != nil {
			return err
		}
		subj.review.AssessorID = actorRef(actorID)
		return s.persist(tx, subj, actorID, "assessment_started", "", "")
	})
}

// CompleteAssessment sends the assessor's work for review. Missing fields come
// back as ValidationErrors and nothing changes.
func (s *ReviewService) CompleteAssessment(ownerType string, ownerID, actorID uuid.UUID) (*models.Review, error) {
	return s.run(ownerType, ownerID, actorID, "complete assessment", func(tx *gorm.DB, subj *reviewSubject) error {
		if err := ReviewMachine.Fire(subj, EventCompleteAssessment); err != nil {
			return err
		}
		subj.review.AssessorID = actorRef(actorID)
		return s.persist(tx, subj, actorID, "assessment_completed", "", "")
	})
}

func (s *ReviewService) AcceptReview(ownerType string, ownerID, reviewerID uuid.UUID, comment string) (*models.Review, error) {
	return s.run(ownerType, ownerID, reviewerID, "accept review", func(tx *gorm.DB, subj *reviewSubject) error {
		if err := ReviewMachine.Fire(subj, EventAcceptReview); err != nil {
			return err
		}
		s.signOff(subj.review, reviewerID, models.ReviewActionAccepted, comment, false)
		return s.persist(tx, subj, reviewerID, "review_accepted", strings.TrimSpace(comment), "")
	})
}

// EditAndAcceptReview applies the reviewer's edits to the owner and accepts in
// one step. The audit entry carries a JSON patch of the change. When the edits
// leave the content as it was, this is a plain accept.
func (s *ReviewService) EditAndAcceptReview(ownerType string, ownerID, reviewerID uuid.UUID, in EditAndAcceptInput) (*models.Review, error) {
	if err := validateStruct(&in); err != nil {
		return nil, err
	}

	return s.run(ownerType, ownerID, reviewerID, "edit and accept review", func(tx *gorm.DB, subj *reviewSubject) error {
		if err := ReviewMachine.Fire(subj, EventEditAndAccept); err != nil {
			return err
		}

		patch, err := s.applyEdits(tx, subj.owner, in.Fields)
		if err != nil {
			return err
		}

		if patch == "" {
			s.signOff(subj.review, reviewerID, models.ReviewActionAccepted, in.Comment, false)
			return s.persist(tx, subj, reviewerID, "review_accepted", strings.TrimSpace(in.Comment), "")
		}
		s.signOff(subj.review, reviewerID, models.ReviewActionEditedAndAccepted, in.Comment, true)
		return s.persist(tx, subj, reviewerID, "review_edited_and_accepted", strings.TrimSpace(in.Comment), patch)
	})
}

// ReturnToOfficer sends the work back to the assessor with a comment. The row
// stays open.
func (s *ReviewService) ReturnToOfficer(ownerType string, ownerID, reviewerID uuid.UUID, in ReturnToOfficerInput) (*models.Review, error) {
	comment := strings.TrimSpace(in.Comment)
	if comment == "" {
		return nil, fieldError("comment", "required", "comment is required when returning to the officer")
	}

	return s.run(ownerType, ownerID, reviewerID, "return to officer", func(tx *gorm.DB, subj *reviewSubject) error {
		if err := ReviewMachine.Fire(subj, EventReturnToOfficer); err != nil {
			return err
		}
		subj.review.ReviewerID = actorRef(reviewerID)
		subj.review.Action = models.ReviewActionRejected
		subj.review.Comment = comment
		subj.review.ReviewerEdited = false
		subj.review.ReviewStatus = models.ReviewProgressInProgress
		return s.persist(tx, subj, reviewerID, "returned_to_officer", comment, "")
	})
}

// ReopenForUpdate supersedes a signed-off review with a new row in updated.
func (s *ReviewService) ReopenForUpdate(ownerType string, ownerID, actorID uuid.UUID) (*models.Review, error) {
	var review *models.Review
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		owner, err := lockOwner(tx, ownerType, ownerID)
		if err != nil {
			return err
		}
		review, err = s.reopen(tx, owner, actorID)
		return err
	})
	if err != nil {
		return nil, classify("reopen review", err)
	}
	return review, nil
}

// UpdateOwner applies an assessor's edits to the owner. Editing signed-off work
// reopens it for review.
func (s *ReviewService) UpdateOwner(ownerType string, ownerID, actorID uuid.UUID, in UpdateOwnerInput) (*models.Review, error) {
	if err := validateStruct(&in); err != nil {
		return nil, err
	}

	var review *models.Review
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		owner, err := lockOwner(tx, ownerType, ownerID)
		if err != nil {
			return err
		}
		current, err := s.ensureCurrent(tx, owner, actorID)
		if err != nil {
			return err
		}

		patch, err := s.applyEdits(tx, owner, in.Fields)
		if err != nil {
			return err
		}
		if patch == "" {
			review = current
			return nil
		}

		if err := s.audit.Emit(tx, AuditEntry{
			ApplicationID: owner.ApplicationID(),
			ActivityType:  owner.ReviewOwnerType() + "_updated",
			Info:          patch,
			ActorID:       actorRef(actorID),
			ResourceType:  owner.ReviewOwnerType(),
			ResourceID:    refOf(owner.OwnerID()),
		}); err != nil {
			return err
		}

		if current.Status == models.ReviewStatusComplete {
			review, err = s.reopen(tx, owner, actorID)
			return err
		}
		review = current
		return nil
	})
	if err != nil {
		return nil, classify("update "+ownerType, err)
	}
	return review, nil
}

// reopen runs inside the caller's transaction with the owner already locked.
func (s *ReviewService) reopen(tx *gorm.DB, owner models.Reviewable, actorID uuid.UUID) (*models.Review, error) {
	current, err := s.lockCurrent(tx, owner)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, s.notCreatable(owner, "there is no review to supersede")
	}
	if current.Open() {
		return nil, s.notCreatable(owner, "the current review has not been signed off")
	}

	// The old row stops being current before the new one exists.
	current.IsCurrent = false
	if err := tx.Save(current).Error; err != nil {
		return nil, fmt.Errorf("failed to supersede review: %w", err)
	}

	next := &models.Review{
		OwnerType:             owner.ReviewOwnerType(),
		OwnerID:               owner.OwnerID(),
		PlanningApplicationID: owner.ApplicationID(),
		AssessorID:            actorRef(actorID),
		Status:                models.ReviewStatusUpdated,
		ReviewStatus:          models.ReviewProgressNotStarted,
		IsCurrent:             true,
		SupersedesID:          &current.ID,
	}
	next.CreatedAt = s.now()
	if err := tx.Create(next).Error; err != nil {
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	subj := &reviewSubject{review: next, owner: owner}
	if err := mirrorStatus(subj); err != nil {
		return nil, err
	}
	if err := saveOwner(tx, owner); err != nil {
		return nil, err
	}
	if err := s.emit(tx, subj, actorID, "review_updated", "", ""); err != nil {
		return nil, err
	}
	return next, nil
}

// run locks the owner and its current review, creating a not_started review on
// first use, and applies fn in one transaction.
func (s *ReviewService) run(ownerType string, ownerID, actorID uuid.UUID, op string,
	fn func(tx *gorm.DB, subj *reviewSubject) error) (*models.Review, error) {

	var review *models.Review
	var event string
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		owner, err := lockOwner(tx, ownerType, ownerID)
		if err != nil {
			return err
		}
		current, err := s.ensureCurrent(tx, owner, actorID)
		if err != nil {
			return err
		}
		subj := &reviewSubject{review: current, owner: owner}
		if err := fn(tx, subj); err != nil {
			return err
		}
		review = subj.review
		event = strings.ReplaceAll(op, " ", "_")
		return nil
	})
	if err != nil {
		return nil, classify(op, err)
	}

	metricsSingleton().transitions.WithLabelValues(ReviewMachine.Name(), ownerType, event).Inc()
	return review, nil
}

func (s *ReviewService) ensureCurrent(tx *gorm.DB, owner models.Reviewable, actorID uuid.UUID) (*models.Review, error) {
	current, err := s.lockCurrent(tx, owner)
	if err != nil || current != nil {
		return current, err
	}

	current = &models.Review{
		OwnerType:             owner.ReviewOwnerType(),
		OwnerID:               owner.OwnerID(),
		PlanningApplicationID: owner.ApplicationID(),
		AssessorID:            actorRef(actorID),
		Status:                models.ReviewStatusNotStarted,
		ReviewStatus:          models.ReviewProgressNotStarted,
		IsCurrent:             true,
	}
	current.CreatedAt = s.now()
	if err := tx.Create(current).Error; err != nil {
		return nil, fmt.Errorf("failed to create review: %w", err)
	}
	return current, nil
}

func (s *ReviewService) lockCurrent(tx *gorm.DB, owner models.Reviewable) (*models.Review, error) {
	var current models.Review
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_type = ? AND owner_id = ? AND is_current = ?", owner.ReviewOwnerType(), owner.OwnerID(), true).
		First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current review: %w", err)
	}
	return &current, nil
}

// applyEdits writes fields onto the owner and returns the JSON patch of the
// change, empty when nothing changed.
func (s *ReviewService) applyEdits(tx *gorm.DB, owner models.Reviewable, fields map[string]interface{}) (string, error) {
	before := owner.Content()
	if err := owner.ApplyEditedContent(fields); err != nil {
		return "", fieldError("fields", "editable", err.Error())
	}
	patch, err := contentDiff(before, owner.Content())
	if err != nil {
		return "", fmt.Errorf("failed to diff %s: %w", owner.ReviewOwnerType(), err)
	}
	if patch == "" {
		return "", nil
	}
	if err := saveOwner(tx, owner); err != nil {
		return "", err
	}
	return patch, nil
}

func (s *ReviewService) signOff(review *models.Review, reviewerID uuid.UUID, action models.ReviewAction, comment string, edited bool) {
	now := s.now()
	review.ReviewerID = actorRef(reviewerID)
	review.ReviewedAt = &now
	review.ReviewStatus = models.ReviewProgressComplete
	review.Action = action
	review.Comment = strings.TrimSpace(comment)
	review.ReviewerEdited = edited
}

// persist saves the review and the owner's mirrored status and records the audit entry.
func (s *ReviewService) persist(tx *gorm.DB, subj *reviewSubject, actorID uuid.UUID, action, comment, info string) error {
	if err := tx.Save(subj.review).Error; err != nil {
		return fmt.Errorf("failed to save review: %w", err)
	}
	if err := saveOwner(tx, subj.owner); err != nil {
		return err
	}
	return s.emit(tx, subj, actorID, action, comment, info)
}

func (s *ReviewService) emit(tx *gorm.DB, subj *reviewSubject, actorID uuid.UUID, action, comment, info string) error {
	return s.audit.Emit(tx, AuditEntry{
		ApplicationID: subj.owner.ApplicationID(),
		ActivityType:  subj.owner.ReviewOwnerType() + "_" + action,
		Comment:       comment,
		Info:          info,
		ActorID:       actorRef(actorID),
		ResourceType:  "review",
		ResourceID:    &subj.review.ID,
	})
}

func (s *ReviewService) notCreatable(owner models.Reviewable, reason string) error {
	err := &NotCreatableError{Reason: reason}
	logrus.WithFields(logrus.Fields{
		"owner_type": owner.ReviewOwnerType(),
		"owner_id":   owner.OwnerID(),
	}).Warn(err.Error())
	return err
}

func refOf(id uuid.UUID) *uuid.UUID {
	return &id
}
