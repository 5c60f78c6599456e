package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localgov/planning-backoffice/internal/models"
)

func TestCreateApplicationRejectsDuplicateReference(t *testing.T) {
	f := newFixture(t)
	in := CreateApplicationInput{
		Reference:      "26/00123/FUL",
		Description:    "Garden room",
		ApplicantEmail: "applicant@example.com",
		Fee:            decimal.RequireFromString("258"),
	}

	app, err := f.cases.Create(f.officer.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusNotStarted, app.Status)
	assert.Equal(t, []string{"application_created"}, f.auditTypes(app))

	_, err = f.cases.Create(f.officer.ID, in)
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = f.cases.Create(f.officer.ID, CreateApplicationInput{Reference: "26/00124/FUL"})
	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "description", verrs.Fields[0].Field)
}

func TestInvalidateSendsPendingRequests(t *testing.T) {
	f := newFixture(t)
	app := f.application(models.ApplicationStatusNotStarted)
	first := f.descriptionChange(app, "Two storey rear extension")
	second, err := f.requests.Create(context.Background(), app.ID, f.officer.ID, CreateRequestInput{
		Type:    models.RequestTypeAdditionalDocument,
		Payload: map[string]interface{}{"document_request_type": "Floor plan", "reason": "Missing"},
	})
	require.NoError(t, err)

	invalidated, err := f.cases.Invalidate(context.Background(), app.ID, f.officer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusInvalidated, invalidated.Status)
	assert.NotNil(t, invalidated.InvalidatedAt)

	for _, id := range []interface{}{first.ID, second.ID} {
		var req models.ValidationRequest
		require.NoError(t, f.db.First(&req, "id = ?", id).Error)
		assert.Equal(t, models.RequestStateOpen, req.State)
		assert.NotNil(t, req.NotifiedAt)
	}
	assert.Contains(t, f.auditTypes(app), "application_invalidated")
	assert.Contains(t, f.notifier.templates(), TemplateApplicationStatus)
}

func TestValidateBlockedByOpenRequest(t *testing.T) {
	f := newFixture(t)
	app := f.application(models.ApplicationStatusNotStarted)
	req := f.descriptionChange(app, "Two storey rear extension")
	_, err := f.cases.Invalidate(context.Background(), app.ID, f.officer.ID)
	require.NoError(t, err)

	_, err = f.cases.Validate(context.Background(), app.ID, f.officer.ID)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Message, "Description change #1")
	assert.Equal(t, models.ApplicationStatusInvalidated, f.reload(app).Status)

	_, err = f.requests.Respond(context.Background(), req.ID, f.officer.ID, RespondInput{Approved: boolPtr(true)})
	require.NoError(t, err)

	validated, err := f.cases.Validate(context.Background(), app.ID, f.officer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusInAssessment, validated.Status)
	assert.True(t, validated.PostValidation())
}

func TestDetermineFollowsStatusOrder(t *testing.T) {
	f := newFixture(t)
	app := f.application(models.ApplicationStatusInAssessment)

	_, err := f.cases.Determine(context.Background(), app.ID, f.officer.ID, DetermineInput{Decision: "granted"})
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)

	_, err = f.cases.Submit(context.Background(), app.ID, f.officer.ID)
	require.NoError(t, err)

	_, err = f.cases.Determine(context.Background(), app.ID, f.officer.ID, DetermineInput{Decision: "approved"})
	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)

	determined, err := f.cases.Determine(context.Background(), app.ID, f.officer.ID, DetermineInput{Decision: "granted"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusDetermined, determined.Status)
	assert.Equal(t, "granted", determined.Decision)
	assert.True(t, determined.Closed())
}

func TestWithdrawCancelsLiveRequests(t *testing.T) {
	f := newFixture(t)
	app := f.application(models.ApplicationStatusInAssessment)
	req := f.descriptionChange(app, "Two storey rear extension")

	_, err := f.cases.Withdraw(context.Background(), app.ID, f.officer.ID, CloseCaseInput{Reason: "Applicant request"})
	require.NoError(t, err)

	var cancelled models.ValidationRequest
	require.NoError(t, f.db.First(&cancelled, "id = ?", req.ID).Error)
	assert.Equal(t, models.RequestStateCancelled, cancelled.State)
	assert.Equal(t, "Application withdrawn: Applicant request", cancelled.CancelReason)

	assert.Contains(t, f.auditTypes(app), "description_change_validation_request_cancelled")
	assert.Contains(t, f.auditTypes(app), "application_withdrawn")

	_, err = f.cases.Withdraw(context.Background(), app.ID, f.officer.ID, CloseCaseInput{Reason: "Again"})
	var transition *InvalidTransitionError
	assert.ErrorAs(t, err, &transition)
}

func TestReturnOnlyBeforeValidation(t *testing.T) {
	f := newFixture(t)
	app := f.application(models.ApplicationStatusInAssessment)

	_, err := f.cases.Return(context.Background(), app.ID, f.officer.ID, CloseCaseInput{Reason: "Wrong form"})
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)

	_, err = f.cases.Return(context.Background(), app.ID, f.officer.ID, CloseCaseInput{})
	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "reason", verrs.Fields[0].Field)

	fresh := f.application(models.ApplicationStatusNotStarted)
	returned, err := f.cases.Return(context.Background(), fresh.ID, f.officer.ID, CloseCaseInput{Reason: "Wrong form"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusReturned, returned.Status)
}
