package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localgov/planning-backoffice/internal/models"
)

func newConsiderationSet(t *testing.T, f *fixture, summary string) *models.ConsiderationSet {
	t.Helper()
	app := f.application(models.ApplicationStatusInAssessment)
	set := &models.ConsiderationSet{ReviewTracking: models.ReviewTracking{PlanningApplicationID: app.ID}, Summary: summary}
	require.NoError(t, f.db.Create(set).Error)
	return set
}

func signedOff(t *testing.T, f *fixture, set *models.ConsiderationSet) *models.Review {
	t.Helper()
	_, err := f.reviews.CompleteAssessment("consideration_set", set.ID, f.officer.ID)
	require.NoError(t, err)
	review, err := f.reviews.AcceptReview("consideration_set", set.ID, f.officer.ID, "")
	require.NoError(t, err)
	return review
}

func TestCompleteAssessmentReportsMissingFields(t *testing.T) {
	f := newFixture(t)
	set := newConsiderationSet(t, f, "")

	_, err := f.reviews.CompleteAssessment("consideration_set", set.ID, f.officer.ID)
	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "summary", verrs.Fields[0].Field)

	// Nothing was written, not even the first review row
	_, err = f.reviews.Current("consideration_set", set.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssessmentAndAcceptMirrorStatusOnOwner(t *testing.T) {
	f := newFixture(t)
	set := newConsiderationSet(t, f, "Acceptable in scale")

	review, err := f.reviews.StartAssessment("consideration_set", set.ID, f.officer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusInProgress, review.Status)

	review, err = f.reviews.CompleteAssessment("consideration_set", set.ID, f.officer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusToBeReviewed, review.Status)

	review, err = f.reviews.AcceptReview("consideration_set", set.ID, f.officer.ID, " Agreed ")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusComplete, review.Status)
	assert.Equal(t, models.ReviewProgressComplete, review.ReviewStatus)
	assert.Equal(t, models.ReviewActionAccepted, review.Action)
	assert.Equal(t, "Agreed", review.Comment)
	assert.NotNil(t, review.ReviewedAt)

	var owner models.ConsiderationSet
	require.NoError(t, f.db.First(&owner, "id = ?", set.ID).Error)
	assert.Equal(t, models.ReviewStatusComplete, owner.ReviewState)
}

func TestAcceptRequiresAssessmentToBeComplete(t *testing.T) {
	f := newFixture(t)
	set := newConsiderationSet(t, f, "Acceptable in scale")

	_, err := f.reviews.AcceptReview("consideration_set", set.ID, f.officer.ID, "")
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.EqualValues(t, models.ReviewStatusNotStarted, transition.From)
}

func TestEditAndAcceptRecordsPatch(t *testing.T) {
	f := newFixture(t)
	set := newConsiderationSet(t, f, "Acceptable in scale")
	_, err := f.reviews.CompleteAssessment("consideration_set", set.ID, f.officer.ID)
	require.NoError(t, err)

	review, err := f.reviews.EditAndAcceptReview("consideration_set", set.ID, f.officer.ID, EditAndAcceptInput{
		Fields:  map[string]interface{}{"summary": "Acceptable in scale and massing"},
		Comment: "Tightened wording",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReviewActionEditedAndAccepted, review.Action)
	assert.True(t, review.ReviewerEdited)

	var owner models.ConsiderationSet
	require.NoError(t, f.db.First(&owner, "id = ?", set.ID).Error)
	assert.Equal(t, "Acceptable in scale and massing", owner.Summary)

	var entry models.AuditLog
	require.NoError(t, f.db.Where("activity_type = ?", "consideration_set_review_edited_and_accepted").First(&entry).Error)
	assert.Contains(t, entry.Info, `"path":"/summary"`)
	assert.Contains(t, entry.Info, "Acceptable in scale and massing")
}

func TestEditAndAcceptWithoutChangeIsPlainAccept(t *testing.T) {
	f := newFixture(t)
	set := newConsiderationSet(t, f, "Acceptable in scale")
	_, err := f.reviews.CompleteAssessment("consideration_set", set.ID, f.officer.ID)
	require.NoError(t, err)

	review, err := f.reviews.EditAndAcceptReview("consideration_set", set.ID, f.officer.ID, EditAndAcceptInput{
		Fields: map[string]interface{}{"summary": "Acceptable in scale"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReviewActionAccepted, review.Action)
	assert.False(t, review.ReviewerEdited)
}

func TestEditAndAcceptRejectsUnknownFields(t *testing.T) {
	f := newFixture(t)
	set := newConsiderationSet(t, f, "Acceptable in scale")
	_, err := f.reviews.CompleteAssessment("consideration_set", set.ID, f.officer.ID)
	require.NoError(t, err)

	_, err = f.reviews.EditAndAcceptReview("consideration_set", set.ID, f.officer.ID, EditAndAcceptInput{
		Fields: map[string]interface{}{"planning_application_id": "x"},
	})
	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)

	current, err := f.reviews.Current("consideration_set", set.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusToBeReviewed, current.Status)
}

func TestReturnToOfficerNeedsComment(t *testing.T) {
	f := newFixture(t)
	set := newConsiderationSet(t, f, "Acceptable in scale")
	_, err := f.reviews.CompleteAssessment("consideration_set", set.ID, f.officer.ID)
	require.NoError(t, err)

	_, err = f.reviews.ReturnToOfficer("consideration_set", set.ID, f.officer.ID, ReturnToOfficerInput{Comment: " "})
	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "comment", verrs.Fields[0].Field)

	review, err := f.reviews.ReturnToOfficer("consideration_set", set.ID, f.officer.ID, ReturnToOfficerInput{Comment: "Mention the neighbour's window"})
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusInProgress, review.Status)
	assert.Equal(t, models.ReviewActionRejected, review.Action)
	assert.Nil(t, review.ReviewedAt)

	// The assessor can send it back again on the same row
	again, err := f.reviews.CompleteAssessment("consideration_set", set.ID, f.officer.ID)
	require.NoError(t, err)
	assert.Equal(t, review.ID, again.ID)
}

func TestReopenNeedsSignedOffReview(t *testing.T) {
	f := newFixture(t)
	set := newConsiderationSet(t, f, "Acceptable in scale")

	_, err := f.reviews.ReopenForUpdate("consideration_set", set.ID, f.officer.ID)
	var creatable *NotCreatableError
	require.ErrorAs(t, err, &creatable)

	_, err = f.reviews.StartAssessment("consideration_set", set.ID, f.officer.ID)
	require.NoError(t, err)
	_, err = f.reviews.ReopenForUpdate("consideration_set", set.ID, f.officer.ID)
	require.ErrorAs(t, err, &creatable)
}

func TestReopenSupersedesCompletedReview(t *testing.T) {
	f := newFixture(t)
	set := newConsiderationSet(t, f, "Acceptable in scale")
	done := signedOff(t, f, set)

	next, err := f.reviews.ReopenForUpdate("consideration_set", set.ID, f.officer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusUpdated, next.Status)
	assert.Equal(t, done.ID, *next.SupersedesID)

	history, err := f.reviews.History("consideration_set", set.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	current := 0
	for _, r := range history {
		if r.IsCurrent {
			current++
			assert.Equal(t, next.ID, r.ID)
		}
	}
	assert.Equal(t, 1, current)

	var old models.Review
	require.NoError(t, f.db.First(&old, "id = ?", done.ID).Error)
	assert.Equal(t, models.ReviewStatusComplete, old.Status)
	assert.Equal(t, models.ReviewActionAccepted, old.Action)
}

func TestUpdateOwnerReopensSignedOffWork(t *testing.T) {
	f := newFixture(t)
	set := newConsiderationSet(t, f, "Acceptable in scale")
	done := signedOff(t, f, set)

	review, err := f.reviews.UpdateOwner("consideration_set", set.ID, f.officer.ID, UpdateOwnerInput{
		Fields: map[string]interface{}{"advice": "Obscure glazing to the side window"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, done.ID, review.ID)
	assert.Equal(t, models.ReviewStatusUpdated, review.Status)

	var owner models.ConsiderationSet
	require.NoError(t, f.db.First(&owner, "id = ?", set.ID).Error)
	assert.Equal(t, "Obscure glazing to the side window", owner.Advice)
	assert.Equal(t, models.ReviewStatusUpdated, owner.ReviewState)
}

func TestUpdateOwnerBeforeSignOffKeepsReview(t *testing.T) {
	f := newFixture(t)
	set := newConsiderationSet(t, f, "Acceptable in scale")
	started, err := f.reviews.StartAssessment("consideration_set", set.ID, f.officer.ID)
	require.NoError(t, err)

	review, err := f.reviews.UpdateOwner("consideration_set", set.ID, f.officer.ID, UpdateOwnerInput{
		Fields: map[string]interface{}{"advice": "None"},
	})
	require.NoError(t, err)
	assert.Equal(t, started.ID, review.ID)
	assert.Equal(t, models.ReviewStatusInProgress, review.Status)
}

func TestUnknownOwnerType(t *testing.T) {
	f := newFixture(t)
	set := newConsiderationSet(t, f, "Acceptable in scale")

	_, err := f.reviews.StartAssessment("site_visit", set.ID, f.officer.ID)
	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "owner_type", verrs.Fields[0].Field)
}

func TestOwnershipCertificateChangeReopensCertificateReview(t *testing.T) {
	f := newFixture(t)
	app := f.application(models.ApplicationStatusInAssessment)
	cert := &models.OwnershipCertificate{ReviewTracking: models.ReviewTracking{PlanningApplicationID: app.ID}, CertificateType: "A"}
	require.NoError(t, f.db.Create(cert).Error)

	_, err := f.reviews.CompleteAssessment("ownership_certificate", cert.ID, f.officer.ID)
	require.NoError(t, err)
	done, err := f.reviews.AcceptReview("ownership_certificate", cert.ID, f.officer.ID, "")
	require.NoError(t, err)

	req, err := f.requests.Create(f.ctx(), app.ID, f.officer.ID, CreateRequestInput{
		Type:    models.RequestTypeOwnershipCertificateChange,
		Payload: map[string]interface{}{"reason": "Neighbour owns the boundary wall"},
	})
	require.NoError(t, err)
	_, err = f.requests.Respond(f.ctx(), req.ID, f.officer.ID, RespondInput{
		Approved: boolPtr(true),
		Response: map[string]interface{}{
			"certificate_type": "B",
			"land_owners":      []interface{}{map[string]interface{}{"name": "J Smith", "notice_given": true}},
		},
	})
	require.NoError(t, err)

	var updated models.OwnershipCertificate
	require.NoError(t, f.db.First(&updated, "id = ?", cert.ID).Error)
	assert.Equal(t, "B", updated.CertificateType)
	assert.Equal(t, models.ReviewStatusUpdated, updated.ReviewState)

	current, err := f.reviews.Current("ownership_certificate", cert.ID)
	require.NoError(t, err)
	assert.Equal(t, done.ID, *current.SupersedesID)
}
