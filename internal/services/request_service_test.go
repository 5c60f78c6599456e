package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/localgov/planning-backoffice/internal/models"
)

type RequestServiceTestSuite struct {
	suite.Suite
	f   *fixture
	ctx context.Context
}

func (suite *RequestServiceTestSuite) SetupTest() {
	suite.f = newFixture(suite.T())
	suite.ctx = context.Background()
}

func TestRequestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(RequestServiceTestSuite))
}

func (suite *RequestServiceTestSuite) TestCreateStartsPendingAndNumbersPerType() {
	app := suite.f.application(models.ApplicationStatusNotStarted)

	first := suite.f.descriptionChange(app, "Two storey rear extension")
	other, err := suite.f.requests.Create(suite.ctx, app.ID, suite.f.officer.ID, CreateRequestInput{
		Type:    models.RequestTypeOtherChange,
		Payload: map[string]interface{}{"summary": "Site address", "suggestion": "Add the flat number"},
	})
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), models.RequestStatePending, first.State)
	assert.Equal(suite.T(), 1, first.Sequence)
	assert.Equal(suite.T(), 5, first.ResponseDays)
	assert.Equal(suite.T(), "Single storey rear extension", first.Payload["previous_description"])
	assert.Equal(suite.T(), 1, other.Sequence)
	assert.Equal(suite.T(), "Other change #1", other.DisplayName())
	assert.Empty(suite.T(), suite.f.notifier.templates())
}

func (suite *RequestServiceTestSuite) TestCreateRejectsUnknownTypeAndBadPayload() {
	app := suite.f.application(models.ApplicationStatusNotStarted)

	_, err := suite.f.requests.Create(suite.ctx, app.ID, suite.f.officer.ID, CreateRequestInput{
		Type:    "site_visit",
		Payload: map[string]interface{}{},
	})
	var verrs *ValidationErrors
	require.ErrorAs(suite.T(), err, &verrs)
	assert.Equal(suite.T(), "type", verrs.Fields[0].Field)

	_, err = suite.f.requests.Create(suite.ctx, app.ID, suite.f.officer.ID, CreateRequestInput{
		Type:    models.RequestTypeDescriptionChange,
		Payload: map[string]interface{}{"proposed_description": app.Description},
	})
	require.ErrorAs(suite.T(), err, &verrs)
	assert.Equal(suite.T(), "proposed_description", verrs.Fields[0].Field)
}

func (suite *RequestServiceTestSuite) TestExclusiveTypeAllowsOneLiveRequest() {
	app := suite.f.application(models.ApplicationStatusNotStarted)
	first := suite.f.descriptionChange(app, "Two storey rear extension")

	_, err := suite.f.requests.Create(suite.ctx, app.ID, suite.f.officer.ID, CreateRequestInput{
		Type:    models.RequestTypeDescriptionChange,
		Payload: map[string]interface{}{"proposed_description": "Loft conversion"},
	})
	var conflict *ConflictError
	require.ErrorAs(suite.T(), err, &conflict)
	assert.Contains(suite.T(), conflict.Message, "Description change #1")

	_, err = suite.f.requests.Cancel(suite.ctx, first.ID, suite.f.officer.ID, "Raised in error")
	require.NoError(suite.T(), err)

	second := suite.f.descriptionChange(app, "Loft conversion")
	assert.Equal(suite.T(), 2, second.Sequence)
}

func (suite *RequestServiceTestSuite) TestNonExclusiveTypesCanRunTogether() {
	app := suite.f.application(models.ApplicationStatusNotStarted)
	payload := map[string]interface{}{"document_request_type": "Floor plan", "reason": "Missing"}

	for i := 1; i <= 2; i++ {
		req, err := suite.f.requests.Create(suite.ctx, app.ID, suite.f.officer.ID, CreateRequestInput{
			Type:    models.RequestTypeAdditionalDocument,
			Payload: payload,
		})
		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), i, req.Sequence)
	}
}

func (suite *RequestServiceTestSuite) TestRoundTripWritesSentAndReceived() {
	app := suite.f.application(models.ApplicationStatusNotStarted)
	req := suite.f.descriptionChange(app, "Two storey rear extension")

	sent, err := suite.f.requests.MarkSent(suite.ctx, req.ID, suite.f.officer.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.RequestStateOpen, sent.State)
	require.NotNil(suite.T(), sent.NotifiedAt)

	closed, err := suite.f.requests.Respond(suite.ctx, req.ID, suite.f.officer.ID, RespondInput{Approved: boolPtr(true)})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.RequestStateClosed, closed.State)
	assert.True(suite.T(), *closed.Approved)
	assert.True(suite.T(), closed.UpdateCounter)
	require.NotNil(suite.T(), closed.ClosedAt)

	assert.Equal(suite.T(), "Two storey rear extension", suite.f.reload(app).Description)
	assert.ElementsMatch(suite.T(), []string{
		"description_change_validation_request_sent",
		"description_change_validation_request_received",
	}, suite.f.auditTypes(app))
	assert.Equal(suite.T(), []string{TemplateRequestSent, TemplateRequestReceived}, suite.f.notifier.templates())
}

func (suite *RequestServiceTestSuite) TestSentNotificationCarriesWorkingDayDeadline() {
	app := suite.f.application(models.ApplicationStatusNotStarted)
	req := suite.f.descriptionChange(app, "Two storey rear extension")

	_, err := suite.f.requests.MarkSent(suite.ctx, req.ID, suite.f.officer.ID)
	require.NoError(suite.T(), err)

	require.Len(suite.T(), suite.f.notifier.messages, 1)
	msg := suite.f.notifier.messages[0]
	assert.Equal(suite.T(), "applicant@example.com", msg.Recipient)
	// Five working days from Monday 2 March
	assert.Equal(suite.T(), "9 March 2026", msg.Data["ResponseDue"])
}

func (suite *RequestServiceTestSuite) TestRejectionNeedsReason() {
	app := suite.f.application(models.ApplicationStatusInAssessment)
	req := suite.f.descriptionChange(app, "Two storey rear extension")

	_, err := suite.f.requests.Respond(suite.ctx, req.ID, suite.f.officer.ID, RespondInput{Approved: boolPtr(false)})
	var verrs *ValidationErrors
	require.ErrorAs(suite.T(), err, &verrs)
	assert.Equal(suite.T(), "rejection_reason", verrs.Fields[0].Field)
	assert.Equal(suite.T(), models.RequestStateOpen, suite.f.request(req.ID).State)

	rejected, err := suite.f.requests.Respond(suite.ctx, req.ID, suite.f.officer.ID, RespondInput{
		Approved:        boolPtr(false),
		RejectionReason: "The extension is single storey",
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.RequestStateClosed, rejected.State)
	assert.False(suite.T(), *rejected.Approved)
	assert.Equal(suite.T(), "The extension is single storey", rejected.RejectionReason)
	assert.Equal(suite.T(), "Single storey rear extension", suite.f.reload(app).Description)
}

func (suite *RequestServiceTestSuite) TestRespondRequiresOpenRequest() {
	app := suite.f.application(models.ApplicationStatusNotStarted)
	req := suite.f.descriptionChange(app, "Two storey rear extension")

	_, err := suite.f.requests.Respond(suite.ctx, req.ID, suite.f.officer.ID, RespondInput{Approved: boolPtr(true)})
	var transition *InvalidTransitionError
	require.ErrorAs(suite.T(), err, &transition)
	assert.EqualValues(suite.T(), models.RequestStatePending, transition.From)
	assert.Empty(suite.T(), suite.f.auditTypes(app))
}

func (suite *RequestServiceTestSuite) TestCancelNeedsReason() {
	app := suite.f.application(models.ApplicationStatusNotStarted)
	req := suite.f.descriptionChange(app, "Two storey rear extension")

	_, err := suite.f.requests.Cancel(suite.ctx, req.ID, suite.f.officer.ID, "   ")
	var verrs *ValidationErrors
	require.ErrorAs(suite.T(), err, &verrs)
	assert.Equal(suite.T(), "cancel_reason", verrs.Fields[0].Field)
	assert.Equal(suite.T(), models.RequestStatePending, suite.f.request(req.ID).State)
}

func (suite *RequestServiceTestSuite) TestCancelOpenRequestNotifiesApplicant() {
	app := suite.f.application(models.ApplicationStatusInAssessment)
	req := suite.f.descriptionChange(app, "Two storey rear extension")

	cancelled, err := suite.f.requests.Cancel(suite.ctx, req.ID, suite.f.officer.ID, "Agreed by phone")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.RequestStateCancelled, cancelled.State)
	assert.Equal(suite.T(), "Agreed by phone", cancelled.CancelReason)
	require.NotNil(suite.T(), cancelled.CancelledAt)
	assert.Equal(suite.T(), []string{TemplateRequestSent, TemplateRequestCancelled}, suite.f.notifier.templates())

	_, err = suite.f.requests.Cancel(suite.ctx, req.ID, suite.f.officer.ID, "Again")
	var transition *InvalidTransitionError
	assert.ErrorAs(suite.T(), err, &transition)
}

func (suite *RequestServiceTestSuite) TestAutoApproveAppliesChangeOnce() {
	app := suite.f.application(models.ApplicationStatusInAssessment)
	req := suite.f.descriptionChange(app, "Two storey rear extension")

	approved, changed, err := suite.f.requests.AutoApprove(suite.ctx, req.ID)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), changed)
	assert.Equal(suite.T(), models.RequestStateClosed, approved.State)
	assert.True(suite.T(), approved.AutoClosed)
	assert.True(suite.T(), *approved.Approved)
	assert.Equal(suite.T(), "Two storey rear extension", suite.f.reload(app).Description)

	again, changed, err := suite.f.requests.AutoApprove(suite.ctx, req.ID)
	require.NoError(suite.T(), err)
	assert.False(suite.T(), changed)
	assert.True(suite.T(), again.AutoClosed)
	assert.Equal(suite.T(), approved.ClosedAt.Unix(), again.ClosedAt.Unix())

	count := 0
	for _, activity := range suite.f.auditTypes(app) {
		if activity == "description_change_validation_request_auto_closed" {
			count++
		}
	}
	assert.Equal(suite.T(), 1, count)
}

func (suite *RequestServiceTestSuite) TestAutoApproveRefusesManualTypes() {
	app := suite.f.application(models.ApplicationStatusInAssessment)
	req, err := suite.f.requests.Create(suite.ctx, app.ID, suite.f.officer.ID, CreateRequestInput{
		Type:    models.RequestTypeOtherChange,
		Payload: map[string]interface{}{"summary": "Ownership", "suggestion": "Confirm the owner"},
	})
	require.NoError(suite.T(), err)

	_, _, err = suite.f.requests.AutoApprove(suite.ctx, req.ID)
	var transition *InvalidTransitionError
	require.ErrorAs(suite.T(), err, &transition)
	assert.Equal(suite.T(), models.RequestStateOpen, suite.f.request(req.ID).State)
}

func (suite *RequestServiceTestSuite) TestCreateOnValidatedCaseSendsStraightAway() {
	app := suite.f.application(models.ApplicationStatusInAssessment)
	req := suite.f.descriptionChange(app, "Two storey rear extension")

	assert.Equal(suite.T(), models.RequestStateOpen, req.State)
	assert.NotNil(suite.T(), req.NotifiedAt)
	assert.Equal(suite.T(), []string{"description_change_validation_request_sent"}, suite.f.auditTypes(app))
}

func (suite *RequestServiceTestSuite) TestCreateOnInvalidatedCaseSendsStraightAway() {
	app := suite.f.application(models.ApplicationStatusInvalidated)
	req := suite.f.descriptionChange(app, "Two storey rear extension")

	assert.Equal(suite.T(), models.RequestStateOpen, req.State)
	require.NotNil(suite.T(), req.NotifiedAt)
	assert.Equal(suite.T(), models.RequestStateOpen, suite.f.request(req.ID).State)
	assert.Equal(suite.T(), []string{"description_change_validation_request_sent"}, suite.f.auditTypes(app))
	assert.NotEmpty(suite.T(), suite.f.notifier.templates())
}

func (suite *RequestServiceTestSuite) TestCreateOnClosedCaseIsRefused() {
	app := suite.f.application(models.ApplicationStatusDetermined)

	_, err := suite.f.requests.Create(suite.ctx, app.ID, suite.f.officer.ID, CreateRequestInput{
		Type:    models.RequestTypeDescriptionChange,
		Payload: map[string]interface{}{"proposed_description": "Loft conversion"},
	})
	var conflict *ConflictError
	assert.ErrorAs(suite.T(), err, &conflict)
}

func (suite *RequestServiceTestSuite) TestDestroyOnlyPendingRequests() {
	app := suite.f.application(models.ApplicationStatusNotStarted)
	req := suite.f.descriptionChange(app, "Two storey rear extension")

	require.NoError(suite.T(), suite.f.requests.Destroy(suite.ctx, req.ID, suite.f.officer.ID))
	_, err := suite.f.requests.Get(req.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	// The deleted request keeps its number
	next := suite.f.descriptionChange(app, "Loft conversion")
	assert.Equal(suite.T(), 2, next.Sequence)

	_, err = suite.f.requests.MarkSent(suite.ctx, next.ID, suite.f.officer.ID)
	require.NoError(suite.T(), err)
	err = suite.f.requests.Destroy(suite.ctx, next.ID, suite.f.officer.ID)
	var destroyable *NotDestroyableError
	require.ErrorAs(suite.T(), err, &destroyable)
	assert.Equal(suite.T(), "open", destroyable.State)
}

func (suite *RequestServiceTestSuite) TestUpdateCounterFollowsLatestClosedRequest() {
	app := suite.f.application(models.ApplicationStatusInAssessment)
	first := suite.f.descriptionChange(app, "Two storey rear extension")
	_, err := suite.f.requests.Respond(suite.ctx, first.ID, suite.f.officer.ID, RespondInput{Approved: boolPtr(true)})
	require.NoError(suite.T(), err)
	assert.True(suite.T(), suite.f.request(first.ID).UpdateCounter)

	suite.f.now = suite.f.now.Add(time.Hour)
	second := suite.f.descriptionChange(app, "Loft conversion")
	assert.False(suite.T(), suite.f.request(first.ID).UpdateCounter)

	_, err = suite.f.requests.Cancel(suite.ctx, second.ID, suite.f.officer.ID, "Withdrawn by officer")
	require.NoError(suite.T(), err)
	assert.True(suite.T(), suite.f.request(first.ID).UpdateCounter)
}

func (suite *RequestServiceTestSuite) TestReplacementDocumentArchivesOriginal() {
	app := suite.f.application(models.ApplicationStatusInAssessment)
	original := &models.Document{PlanningApplicationID: app.ID, Reference: "plans/site-plan.pdf", ContentType: "application/pdf", Tags: models.StringList{"Site plan"}}
	require.NoError(suite.T(), suite.f.db.Create(original).Error)

	req, err := suite.f.requests.Create(suite.ctx, app.ID, suite.f.officer.ID, CreateRequestInput{
		Type:    models.RequestTypeReplacementDocument,
		Payload: map[string]interface{}{"old_document_id": original.ID.String(), "reason": "Scale bar missing"},
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), original.ID.String(), req.ScopeKey)

	_, err = suite.f.requests.Respond(suite.ctx, req.ID, suite.f.officer.ID, RespondInput{
		Approved: boolPtr(true),
		Response: map[string]interface{}{"document_reference": "plans/notes.docx"},
	})
	var verrs *ValidationErrors
	require.ErrorAs(suite.T(), err, &verrs)
	assert.Equal(suite.T(), "document_reference", verrs.Fields[0].Field)
	assert.Equal(suite.T(), models.RequestStateOpen, suite.f.request(req.ID).State)

	_, err = suite.f.requests.Respond(suite.ctx, req.ID, suite.f.officer.ID, RespondInput{
		Approved: boolPtr(true),
		Response: map[string]interface{}{"document_reference": "plans/site-plan-v2.pdf"},
	})
	require.NoError(suite.T(), err)

	var archived models.Document
	require.NoError(suite.T(), suite.f.db.First(&archived, "id = ?", original.ID).Error)
	assert.True(suite.T(), archived.Archived)
	require.NotNil(suite.T(), archived.ReplacedByID)

	var replacement models.Document
	require.NoError(suite.T(), suite.f.db.First(&replacement, "id = ?", *archived.ReplacedByID).Error)
	assert.Equal(suite.T(), "plans/site-plan-v2.pdf", replacement.Reference)
	assert.Equal(suite.T(), models.StringList{"Site plan"}, replacement.Tags)
	assert.Equal(suite.T(), req.ID, *replacement.ValidationRequestID)
}

func (suite *RequestServiceTestSuite) TestSecondReplacementOfSameDocumentConflicts() {
	app := suite.f.application(models.ApplicationStatusInAssessment)
	original := &models.Document{PlanningApplicationID: app.ID, Reference: "plans/site-plan.pdf", ContentType: "application/pdf", Tags: models.StringList{"Site plan"}}
	require.NoError(suite.T(), suite.f.db.Create(original).Error)

	replace := func(reason string) *models.ValidationRequest {
		req, err := suite.f.requests.Create(suite.ctx, app.ID, suite.f.officer.ID, CreateRequestInput{
			Type:    models.RequestTypeReplacementDocument,
			Payload: map[string]interface{}{"old_document_id": original.ID.String(), "reason": reason},
		})
		require.NoError(suite.T(), err)
		return req
	}
	first := replace("Scale bar missing")
	second := replace("North arrow missing")

	_, err := suite.f.requests.Respond(suite.ctx, first.ID, suite.f.officer.ID, RespondInput{
		Approved: boolPtr(true),
		Response: map[string]interface{}{"document_reference": "plans/site-plan-v2.pdf"},
	})
	require.NoError(suite.T(), err)

	_, err = suite.f.requests.Respond(suite.ctx, second.ID, suite.f.officer.ID, RespondInput{
		Approved: boolPtr(true),
		Response: map[string]interface{}{"document_reference": "plans/elevations.pdf"},
	})
	var conflict *ConflictError
	require.ErrorAs(suite.T(), err, &conflict)
	assert.Equal(suite.T(), models.RequestStateOpen, suite.f.request(second.ID).State)

	var archived models.Document
	require.NoError(suite.T(), suite.f.db.First(&archived, "id = ?", original.ID).Error)
	require.NotNil(suite.T(), archived.ReplacedByID)

	var live []models.Document
	require.NoError(suite.T(), suite.f.db.Where("planning_application_id = ? AND archived = ?", app.ID, false).Find(&live).Error)
	require.Len(suite.T(), live, 1)
	assert.Equal(suite.T(), "plans/site-plan-v2.pdf", live[0].Reference)
	assert.Equal(suite.T(), *archived.ReplacedByID, live[0].ID)
}

func (suite *RequestServiceTestSuite) TestDocumentRequestsCannotBeRejected() {
	app := suite.f.application(models.ApplicationStatusInAssessment)
	req, err := suite.f.requests.Create(suite.ctx, app.ID, suite.f.officer.ID, CreateRequestInput{
		Type:    models.RequestTypeDocumentCreate,
		Payload: map[string]interface{}{"document_request_type": "Floor plan", "reason": "Missing"},
	})
	require.NoError(suite.T(), err)

	_, err = suite.f.requests.Respond(suite.ctx, req.ID, suite.f.officer.ID, RespondInput{
		Approved:        boolPtr(false),
		RejectionReason: "Not needed",
	})
	var verrs *ValidationErrors
	require.ErrorAs(suite.T(), err, &verrs)
	assert.Equal(suite.T(), "approved", verrs.Fields[0].Field)
}

func (suite *RequestServiceTestSuite) TestFeeIncreaseCollectsBalanceAfterCommit() {
	app := suite.f.application(models.ApplicationStatusInAssessment)
	req, err := suite.f.requests.Create(suite.ctx, app.ID, suite.f.officer.ID, CreateRequestInput{
		Type:    models.RequestTypeFeeChange,
		Payload: map[string]interface{}{"proposed_fee": "462.00", "reason": "Householder fee does not apply"},
	})
	require.NoError(suite.T(), err)

	_, err = suite.f.requests.Respond(suite.ctx, req.ID, suite.f.officer.ID, RespondInput{Approved: boolPtr(true)})
	require.NoError(suite.T(), err)

	assert.True(suite.T(), decimal.RequireFromString("462").Equal(suite.f.reload(app).Fee))
	require.Len(suite.T(), suite.f.fees.balances, 1)
	assert.True(suite.T(), decimal.RequireFromString("204").Equal(suite.f.fees.balances[0].Amount))
	assert.Equal(suite.T(), req.ID, suite.f.fees.balances[0].RequestID)
}

func (suite *RequestServiceTestSuite) TestFeeChangeNeedsProposedFee() {
	app := suite.f.application(models.ApplicationStatusInAssessment)

	_, err := suite.f.requests.Create(suite.ctx, app.ID, suite.f.officer.ID, CreateRequestInput{
		Type:    models.RequestTypeFeeChange,
		Payload: map[string]interface{}{"reason": "wrong band"},
	})
	var verrs *ValidationErrors
	require.ErrorAs(suite.T(), err, &verrs)
	assert.Equal(suite.T(), "proposed_fee", verrs.Fields[0].Field)

	var count int64
	require.NoError(suite.T(), suite.f.db.Model(&models.ValidationRequest{}).Where("planning_application_id = ?", app.ID).Count(&count).Error)
	assert.Zero(suite.T(), count)
	assert.True(suite.T(), decimal.RequireFromString("258").Equal(suite.f.reload(app).Fee))
}

func (suite *RequestServiceTestSuite) TestTimeExtensionMustMoveExpiryLater() {
	app := suite.f.application(models.ApplicationStatusInAssessment)
	expiry := monday.AddDate(0, 1, 0)
	require.NoError(suite.T(), suite.f.db.Model(app).Update("expiry_date", expiry).Error)

	_, err := suite.f.requests.Create(suite.ctx, app.ID, suite.f.officer.ID, CreateRequestInput{
		Type:    models.RequestTypeTimeExtension,
		Payload: map[string]interface{}{"proposed_expiry_date": expiry.AddDate(0, 0, -1).Format(time.RFC3339), "reason": "Consultation"},
	})
	var verrs *ValidationErrors
	require.ErrorAs(suite.T(), err, &verrs)

	later := expiry.AddDate(0, 0, 14)
	req, err := suite.f.requests.Create(suite.ctx, app.ID, suite.f.officer.ID, CreateRequestInput{
		Type:    models.RequestTypeTimeExtension,
		Payload: map[string]interface{}{"proposed_expiry_date": later.Format(time.RFC3339), "reason": "Consultation"},
	})
	require.NoError(suite.T(), err)

	_, _, err = suite.f.requests.AutoApprove(suite.ctx, req.ID)
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), suite.f.reload(app).ExpiryDate)
	assert.True(suite.T(), later.Equal(*suite.f.reload(app).ExpiryDate))
}
