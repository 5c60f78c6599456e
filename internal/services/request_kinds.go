// internal/services/request_kinds.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/localgov/planning-backoffice/internal/models"
)

// requestContext carries one transition's transaction and the hooks to run once
// it has committed.
type requestContext struct {
	ctx      context.Context
	tx       *gorm.DB
	app      *models.PlanningApplication
	actorID  uuid.UUID
	now      time.Time
	svc      *RequestService
	onCommit []func()
}

func (rc *requestContext) afterCommit(fn func()) {
	rc.onCommit = append(rc.onCommit, fn)
}

func (rc *requestContext) saveApplication() error {
	if err := rc.tx.Save(rc.app).Error; err != nil {
		return fmt.Errorf("failed to update planning application: %w", err)
	}
	return nil
}

type sideEffect func(rc *requestContext, req *models.ValidationRequest) error

// requestKind is the capability record for one request type. approve and
// autoApprove are declared separately for every type, even where they match.
type requestKind struct {
	exclusive      bool
	autoApprovable bool
	responseDays   int
	rejectable     bool
	reasonRequired bool

	// prepare validates the proposal, fills in what it replaces and returns the
	// exclusivity scope.
	prepare func(rc *requestContext, payload models.JSONB) (models.JSONB, string, error)
	// checkResponse validates the applicant's response for either decision.
	checkResponse func(rc *requestContext, req *models.ValidationRequest) error
	approve       sideEffect
	autoApprove   sideEffect
}

var requestKinds = map[models.RequestType]requestKind{
	models.RequestTypeDescriptionChange: {
		exclusive: true, autoApprovable: true, responseDays: 5, rejectable: true, reasonRequired: true,
		prepare:     prepareDescriptionChange,
		approve:     applyDescriptionChange,
		autoApprove: applyDescriptionChange,
	},
	models.RequestTypeReplacementDocument: {
		responseDays:  15,
		prepare:       prepareReplacementDocument,
		checkResponse: checkDocumentResponse,
		approve:       applyReplacementDocument,
	},
	models.RequestTypeAdditionalDocument: {
		responseDays:  15,
		prepare:       prepareDocumentRequest,
		checkResponse: checkAdditionalDocumentResponse,
		approve:       applyAdditionalDocuments,
	},
	models.RequestTypeDocumentCreate: {
		responseDays:  15,
		prepare:       prepareDocumentRequest,
		checkResponse: checkDocumentResponse,
		approve:       applyDocumentCreate,
	},
	models.RequestTypeRedLineBoundaryChange: {
		exclusive: true, autoApprovable: true, responseDays: 5, rejectable: true, reasonRequired: true,
		prepare:     prepareRedLineBoundaryChange,
		approve:     applyRedLineBoundaryChange,
		autoApprove: applyRedLineBoundaryChange,
	},
	models.RequestTypeFeeChange: {
		exclusive: true, responseDays: 15, rejectable: true, reasonRequired: true,
		prepare: prepareFeeChange,
		approve: applyFeeChange,
	},
	models.RequestTypeOtherChange: {
		responseDays: 15, rejectable: true,
		prepare:       prepareOtherChange,
		checkResponse: checkOtherChangeResponse,
		approve:       noCaseChange,
	},
	models.RequestTypeTimeExtension: {
		exclusive: true, autoApprovable: true, responseDays: 5, rejectable: true, reasonRequired: true,
		prepare:     prepareTimeExtension,
		approve:     applyTimeExtension,
		autoApprove: applyTimeExtension,
	},
	models.RequestTypeOwnershipCertificateChange: {
		exclusive: true, responseDays: 15, rejectable: true, reasonRequired: true,
		prepare:       prepareOwnershipCertificateChange,
		checkResponse: checkOwnershipCertificateResponse,
		approve:       applyOwnershipCertificateChange,
	},
	models.RequestTypeHeadsOfTermsChange: {
		exclusive: true, autoApprovable: true, responseDays: 10, rejectable: true, reasonRequired: true,
		prepare:     prepareHeadsOfTermsChange,
		approve:     agreeTerm,
		autoApprove: agreeTerm,
	},
	models.RequestTypePreCommencementCondition: {
		autoApprovable: true, responseDays: 10, rejectable: true, reasonRequired: true,
		prepare:     preparePreCommencementCondition,
		approve:     agreeCondition,
		autoApprove: agreeCondition,
	},
}

func lookupKind(t models.RequestType) (requestKind, error) {
	kind, ok := requestKinds[t]
	if !ok {
		return requestKind{}, fieldError("type", "oneof", fmt.Sprintf("unsupported request type %q", t))
	}
	return kind, nil
}

// Payloads

type DescriptionChangePayload struct {
	ProposedDescription string `json:"proposed_description" validate:"required,max=5000"`
	PreviousDescription string `json:"previous_description,omitempty"`
}

type ReplacementDocumentPayload struct {
	OldDocumentID uuid.UUID `json:"old_document_id" validate:"required"`
	Reason        string    `json:"reason" validate:"required"`
}

type DocumentRequestPayload struct {
	DocumentRequestType string `json:"document_request_type" validate:"required,max=100"`
	Reason              string `json:"reason" validate:"required"`
}

type RedLineBoundaryPayload struct {
	NewGeojson      models.JSONB `json:"new_geojson" validate:"required"`
	OriginalGeojson models.JSONB `json:"original_geojson,omitempty"`
	Reason          string       `json:"reason" validate:"required"`
}

type FeeChangePayload struct {
	ProposedFee *decimal.Decimal `json:"proposed_fee"`
	PreviousFee decimal.Decimal  `json:"previous_fee"`
	Reason      string           `json:"reason" validate:"required"`
}

type OtherChangePayload struct {
	Summary    string `json:"summary" validate:"required"`
	Suggestion string `json:"suggestion" validate:"required"`
}

type TimeExtensionPayload struct {
	ProposedExpiryDate time.Time  `json:"proposed_expiry_date"`
	PreviousExpiryDate *time.Time `json:"previous_expiry_date,omitempty"`
	Reason             string     `json:"reason" validate:"required"`
}

type OwnershipCertificatePayload struct {
	Reason     string `json:"reason" validate:"required"`
	Suggestion string `json:"suggestion,omitempty"`
}

type HeadsOfTermsPayload struct {
	TermID uuid.UUID `json:"term_id" validate:"required"`
}

type PreCommencementConditionPayload struct {
	ConditionID uuid.UUID `json:"condition_id" validate:"required"`
}

// Responses

type DocumentResponse struct {
	DocumentReference string `json:"document_reference" validate:"required"`
}

type AdditionalDocumentResponse struct {
	DocumentReferences []string `json:"document_references" validate:"required,min=1,dive,required"`
}

type OtherChangeResponse struct {
	Text string `json:"text" validate:"required"`
}

type OwnershipCertificateResponse struct {
	CertificateType string                   `json:"certificate_type" validate:"required,oneof=A B C D"`
	LandOwners      []map[string]interface{} `json:"land_owners,omitempty"`
}

// decodePayload decodes and validates a JSON document into target.
func decodePayload(field string, doc models.JSONB, target interface{}) error {
	if err := doc.Decode(target); err != nil {
		return fieldError(field, "invalid", fmt.Sprintf("%s is not valid: %v", field, err))
	}
	return validateStruct(target)
}

func encode(v interface{}) (models.JSONB, error) {
	doc, err := models.ToJSONB(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return doc, nil
}

// Description change

func prepareDescriptionChange(rc *requestContext, payload models.JSONB) (models.JSONB, string, error) {
	var p DescriptionChangePayload
	if err := decodePayload("payload", payload, &p); err != nil {
		return nil, "", err
	}
	p.ProposedDescription = strings.TrimSpace(p.ProposedDescription)
	if p.ProposedDescription == strings.TrimSpace(rc.app.Description) {
		return nil, "", fieldError("proposed_description", "different", "proposed description must differ from the current description")
	}
	p.PreviousDescription = rc.app.Description
	doc, err := encode(p)
	return doc, "", err
}

func applyDescriptionChange(rc *requestContext, req *models.ValidationRequest) error {
	var p DescriptionChangePayload
	if err := req.Payload.Decode(&p); err != nil {
		return fmt.Errorf("failed to read description change: %w", err)
	}
	rc.app.Description = p.ProposedDescription
	return rc.saveApplication()
}

// Documents

func prepareReplacementDocument(rc *requestContext, payload models.JSONB) (models.JSONB, string, error) {
	var p ReplacementDocumentPayload
	if err := decodePayload("payload", payload, &p); err != nil {
		return nil, "", err
	}
	doc, err := caseDocument(rc, p.OldDocumentID)
	if err != nil {
		return nil, "", err
	}
	if doc.Archived {
		return nil, "", fieldError("old_document_id", "archived", "document has already been archived")
	}
	out, err := encode(p)
	return out, p.OldDocumentID.String(), err
}

func prepareDocumentRequest(rc *requestContext, payload models.JSONB) (models.JSONB, string, error) {
	var p DocumentRequestPayload
	if err := decodePayload("payload", payload, &p); err != nil {
		return nil, "", err
	}
	out, err := encode(p)
	return out, "", err
}

func checkDocumentResponse(rc *requestContext, req *models.ValidationRequest) error {
	var r DocumentResponse
	return decodePayload("response", req.Response, &r)
}

func checkAdditionalDocumentResponse(rc *requestContext, req *models.ValidationRequest) error {
	var r AdditionalDocumentResponse
	return decodePayload("response", req.Response, &r)
}

func applyReplacementDocument(rc *requestContext, req *models.ValidationRequest) error {
	var p ReplacementDocumentPayload
	if err := req.Payload.Decode(&p); err != nil {
		return fmt.Errorf("failed to read replacement request: %w", err)
	}
	var r DocumentResponse
	if err := req.Response.Decode(&r); err != nil {
		return fmt.Errorf("failed to read replacement response: %w", err)
	}

	old, err := caseDocument(rc, p.OldDocumentID)
	if err != nil {
		return err
	}
	if old.Archived {
		return &ConflictError{Message: fmt.Sprintf("document %s has already been replaced; cancel %s", old.Reference, req.DisplayName())}
	}
	replacement, err := attachDocument(rc, req, r.DocumentReference, old.Tags)
	if err != nil {
		return err
	}

	old.Archived = true
	old.ArchiveReason = "Replaced by " + req.DisplayName()
	old.ReplacedByID = &replacement.ID
	if err := rc.tx.Save(old).Error; err != nil {
		return fmt.Errorf("failed to archive document: %w", err)
	}
	return nil
}

func applyAdditionalDocuments(rc *requestContext, req *models.ValidationRequest) error {
	var p DocumentRequestPayload
	if err := req.Payload.Decode(&p); err != nil {
		return fmt.Errorf("failed to read document request: %w", err)
	}
	var r AdditionalDocumentResponse
	if err := req.Response.Decode(&r); err != nil {
		return fmt.Errorf("failed to read document response: %w", err)
	}
	for _, ref := range r.DocumentReferences {
		if _, err := attachDocument(rc, req, ref, models.StringList{p.DocumentRequestType}); err != nil {
			return err
		}
	}
	return nil
}

func applyDocumentCreate(rc *requestContext, req *models.ValidationRequest) error {
	var p DocumentRequestPayload
	if err := req.Payload.Decode(&p); err != nil {
		return fmt.Errorf("failed to read document request: %w", err)
	}
	var r DocumentResponse
	if err := req.Response.Decode(&r); err != nil {
		return fmt.Errorf("failed to read document response: %w", err)
	}
	_, err := attachDocument(rc, req, r.DocumentReference, models.StringList{p.DocumentRequestType})
	return err
}

// attachDocument checks the reference with the document store and adds it to the case.
func attachDocument(rc *requestContext, req *models.ValidationRequest, reference string, tags models.StringList) (*models.Document, error) {
	if rc.svc.store == nil {
		return nil, errors.New("document store is not configured")
	}
	info, err := rc.svc.store.Inspect(rc.ctx, reference)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil, fieldError("document_reference", "exists", fmt.Sprintf("document %s was not found", reference))
		}
		return nil, err
	}
	if !info.Permitted {
		return nil, fieldError("document_reference", "content_type",
			fmt.Sprintf("document content type %q is not permitted", info.ContentType))
	}

	doc := &models.Document{
		PlanningApplicationID: rc.app.ID,
		Reference:             info.Reference,
		ContentType:           info.ContentType,
		Tags:                  tags,
		ValidationRequestID:   &req.ID,
	}
	if err := rc.tx.Create(doc).Error; err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return doc, nil
}

func caseDocument(rc *requestContext, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := rc.tx.Where("id = ? AND planning_application_id = ?", id, rc.app.ID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fieldError("old_document_id", "exists", "document does not belong to this application")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return &doc, nil
}

// Red line boundary

func prepareRedLineBoundaryChange(rc *requestContext, payload models.JSONB) (models.JSONB, string, error) {
	var p RedLineBoundaryPayload
	if err := decodePayload("payload", payload, &p); err != nil {
		return nil, "", err
	}
	if _, ok := p.NewGeojson["type"]; !ok {
		return nil, "", fieldError("new_geojson", "geojson", "new_geojson must be a GeoJSON object with a type")
	}
	p.OriginalGeojson = rc.app.BoundaryGeojson
	out, err := encode(p)
	return out, "", err
}

func applyRedLineBoundaryChange(rc *requestContext, req *models.ValidationRequest) error {
	var p RedLineBoundaryPayload
	if err := req.Payload.Decode(&p); err != nil {
		return fmt.Errorf("failed to read boundary change: %w", err)
	}
	rc.app.BoundaryGeojson = p.NewGeojson
	return rc.saveApplication()
}

// Fee change

func prepareFeeChange(rc *requestContext, payload models.JSONB) (models.JSONB, string, error) {
	var p FeeChangePayload
	if err := decodePayload("payload", payload, &p); err != nil {
		return nil, "", err
	}
	if p.ProposedFee == nil {
		return nil, "", fieldError("proposed_fee", "required", "proposed_fee is required")
	}
	if p.ProposedFee.IsNegative() {
		return nil, "", fieldError("proposed_fee", "min", "proposed fee cannot be negative")
	}
	if p.ProposedFee.Equal(rc.app.Fee) {
		return nil, "", fieldError("proposed_fee", "different", "proposed fee must differ from the current fee")
	}
	p.PreviousFee = rc.app.Fee
	out, err := encode(p)
	return out, "", err
}

func applyFeeChange(rc *requestContext, req *models.ValidationRequest) error {
	var p FeeChangePayload
	if err := req.Payload.Decode(&p); err != nil {
		return fmt.Errorf("failed to read fee change: %w", err)
	}
	if p.ProposedFee == nil {
		return &ConflictError{Message: "fee change has no proposed fee"}
	}

	previous := rc.app.Fee
	rc.app.Fee = *p.ProposedFee
	if err := rc.saveApplication(); err != nil {
		return err
	}

	if balance := p.ProposedFee.Sub(previous); balance.IsPositive() && rc.svc.fees != nil {
		fb := FeeBalance{
			ApplicationID: rc.app.ID,
			RequestID:     req.ID,
			Reference:     rc.app.Reference,
			Amount:        balance,
		}
		fees := rc.svc.fees
		rc.afterCommit(func() {
			if _, err := fees.CollectBalance(fb); err != nil {
				logFailure(err, "Failed to collect fee balance", req)
			}
		})
	}
	return nil
}

// Other change

func prepareOtherChange(rc *requestContext, payload models.JSONB) (models.JSONB, string, error) {
	var p OtherChangePayload
	if err := decodePayload("payload", payload, &p); err != nil {
		return nil, "", err
	}
	out, err := encode(p)
	return out, "", err
}

func checkOtherChangeResponse(rc *requestContext, req *models.ValidationRequest) error {
	var r OtherChangeResponse
	return decodePayload("response", req.Response, &r)
}

func noCaseChange(rc *requestContext, req *models.ValidationRequest) error {
	return nil
}

// Time extension

func prepareTimeExtension(rc *requestContext, payload models.JSONB) (models.JSONB, string, error) {
	var p TimeExtensionPayload
	if err := decodePayload("payload", payload, &p); err != nil {
		return nil, "", err
	}
	if p.ProposedExpiryDate.IsZero() {
		return nil, "", fieldError("proposed_expiry_date", "required", "proposed_expiry_date is required")
	}
	if rc.app.ExpiryDate != nil && !p.ProposedExpiryDate.After(*rc.app.ExpiryDate) {
		return nil, "", fieldError("proposed_expiry_date", "gt", "proposed expiry date must be later than the current expiry date")
	}
	p.PreviousExpiryDate = rc.app.ExpiryDate
	out, err := encode(p)
	return out, "", err
}

func applyTimeExtension(rc *requestContext, req *models.ValidationRequest) error {
	var p TimeExtensionPayload
	if err := req.Payload.Decode(&p); err != nil {
		return fmt.Errorf("failed to read time extension: %w", err)
	}
	expiry := p.ProposedExpiryDate
	rc.app.ExpiryDate = &expiry
	return rc.saveApplication()
}

// Ownership certificate

func prepareOwnershipCertificateChange(rc *requestContext, payload models.JSONB) (models.JSONB, string, error) {
	var p OwnershipCertificatePayload
	if err := decodePayload("payload", payload, &p); err != nil {
		return nil, "", err
	}
	out, err := encode(p)
	return out, "", err
}

func checkOwnershipCertificateResponse(rc *requestContext, req *models.ValidationRequest) error {
	if req.Approved == nil || !*req.Approved {
		return nil
	}
	var r OwnershipCertificateResponse
	return decodePayload("response", req.Response, &r)
}

func applyOwnershipCertificateChange(rc *requestContext, req *models.ValidationRequest) error {
	var r OwnershipCertificateResponse
	if err := req.Response.Decode(&r); err != nil {
		return fmt.Errorf("failed to read ownership certificate: %w", err)
	}

	var cert models.OwnershipCertificate
	err := rc.tx.Where("planning_application_id = ?", rc.app.ID).First(&cert).Error
	exists := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load ownership certificate: %w", err)
	}

	owners := make([]interface{}, 0, len(r.LandOwners))
	for _, o := range r.LandOwners {
		owners = append(owners, o)
	}
	cert.PlanningApplicationID = rc.app.ID
	cert.CertificateType = r.CertificateType
	cert.LandOwners = models.JSONB{"owners": owners}

	if !exists {
		if err := rc.tx.Create(&cert).Error; err != nil {
			return fmt.Errorf("failed to create ownership certificate: %w", err)
		}
		return nil
	}
	if err := rc.tx.Save(&cert).Error; err != nil {
		return fmt.Errorf("failed to update ownership certificate: %w", err)
	}
	if cert.CurrentStatus() == models.ReviewStatusComplete && rc.svc.reviews != nil {
		if _, err := rc.svc.reviews.reopen(rc.tx, &cert, rc.actorID); err != nil {
			return err
		}
	}
	return nil
}

// Heads of terms

func prepareHeadsOfTermsChange(rc *requestContext, payload models.JSONB) (models.JSONB, string, error) {
	var p HeadsOfTermsPayload
	if err := decodePayload("payload", payload, &p); err != nil {
		return nil, "", err
	}
	term, err := caseTerm(rc, p.TermID)
	if err != nil {
		return nil, "", err
	}
	if term.Status == models.AgreementStatusAgreed {
		return nil, "", fieldError("term_id", "agreed", "term has already been agreed")
	}
	out, err := encode(p)
	return out, p.TermID.String(), err
}

func agreeTerm(rc *requestContext, req *models.ValidationRequest) error {
	var p HeadsOfTermsPayload
	if err := req.Payload.Decode(&p); err != nil {
		return fmt.Errorf("failed to read heads of terms request: %w", err)
	}
	term, err := caseTerm(rc, p.TermID)
	if err != nil {
		return err
	}
	term.Status = models.AgreementStatusAgreed
	if err := rc.tx.Save(term).Error; err != nil {
		return fmt.Errorf("failed to agree term: %w", err)
	}
	return nil
}

func caseTerm(rc *requestContext, id uuid.UUID) (*models.HeadsOfTermTerm, error) {
	var term models.HeadsOfTermTerm
	err := rc.tx.
		Joins("JOIN heads_of_terms ON heads_of_terms.id = heads_of_term_terms.heads_of_term_id").
		Where("heads_of_term_terms.id = ? AND heads_of_terms.planning_application_id = ?", id, rc.app.ID).
		First(&term).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fieldError("term_id", "exists", "term does not belong to this application")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load term: %w", err)
	}
	return &term, nil
}

// Pre-commencement conditions

func preparePreCommencementCondition(rc *requestContext, payload models.JSONB) (models.JSONB, string, error) {
	var p PreCommencementConditionPayload
	if err := decodePayload("payload", payload, &p); err != nil {
		return nil, "", err
	}
	cond, err := caseCondition(rc, p.ConditionID)
	if err != nil {
		return nil, "", err
	}
	if cond.Status == models.AgreementStatusAgreed {
		return nil, "", fieldError("condition_id", "agreed", "condition has already been agreed")
	}
	out, err := encode(p)
	return out, p.ConditionID.String(), err
}

func agreeCondition(rc *requestContext, req *models.ValidationRequest) error {
	var p PreCommencementConditionPayload
	if err := req.Payload.Decode(&p); err != nil {
		return fmt.Errorf("failed to read condition request: %w", err)
	}
	cond, err := caseCondition(rc, p.ConditionID)
	if err != nil {
		return err
	}
	cond.Status = models.AgreementStatusAgreed
	if err := rc.tx.Save(cond).Error; err != nil {
		return fmt.Errorf("failed to agree condition: %w", err)
	}
	return nil
}

func caseCondition(rc *requestContext, id uuid.UUID) (*models.Condition, error) {
	var cond models.Condition
	err := rc.tx.Where("id = ? AND planning_application_id = ?", id, rc.app.ID).First(&cond).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fieldError("condition_id", "exists", "condition does not belong to this application")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load condition: %w", err)
	}
	return &cond, nil
}
