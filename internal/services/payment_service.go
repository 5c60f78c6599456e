// internal/services/payment_service.go
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"gorm.io/gorm"

	"github.com/localgov/planning-backoffice/internal/config"
	"github.com/localgov/planning-backoffice/internal/models"
)

// Fee payment statuses
const (
	FeePaymentPending       = "requires_payment"
	FeePaymentNotConfigured = "not_configured"
	FeePaymentFailed        = "failed"
)

// FeeBalance is raised after an accepted fee change increases the fee.
type FeeBalance struct {
	ApplicationID uuid.UUID
	RequestID     uuid.UUID
	Reference     string
	Amount        decimal.Decimal
}

// FeeCollector collects the outstanding balance once the fee change has committed.
type FeeCollector interface {
	CollectBalance(balance FeeBalance) (*models.FeePayment, error)
}

type IntentCreator func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)

type PaymentService struct {
	db           *gorm.DB
	config       *config.Config
	createIntent IntentCreator
}

func NewPaymentService(db *gorm.DB, config *config.Config) *PaymentService {
	// Initialize Stripe
	stripe.Key = config.Payment.StripeSecretKey

	return &PaymentService{
		db:     db,
		config: config,
	}
}

// WithIntentCreator replaces the Stripe call.
func (s *PaymentService) WithIntentCreator(create IntentCreator) *PaymentService {
	s.createIntent = create
	return s
}

// CollectBalance raises one payment intent per fee change request. Calling it
// again for the same request returns the existing record.
func (s *PaymentService) CollectBalance(balance FeeBalance) (*models.FeePayment, error) {
	if !balance.Amount.IsPositive() {
		return nil, nil
	}

	var existing models.FeePayment
	err := s.db.Where("validation_request_id = ?", balance.RequestID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check fee payment: %w", err)
	}

	currency := strings.ToLower(s.config.Payment.Currency)
	if currency == "" {
		currency = "gbp"
	}

	payment := &models.FeePayment{
		PlanningApplicationID: balance.ApplicationID,
		ValidationRequestID:   balance.RequestID,
		Amount:                balance.Amount.Round(2),
		Currency:              currency,
		Status:                FeePaymentNotConfigured,
	}

	if s.config.Payment.StripeSecretKey != "" || s.createIntent != nil {
		// Stripe amounts are in the minor unit
		params := &stripe.PaymentIntentParams{
			Amount:      stripe.Int64(balance.Amount.Shift(2).Round(0).IntPart()),
			Currency:    stripe.String(currency),
			Description: stripe.String(fmt.Sprintf("Additional planning fee for %s", balance.Reference)),
		}
		params.AddMetadata("planning_application_id", balance.ApplicationID.String())
		params.AddMetadata("validation_request_id", balance.RequestID.String())

		pi, err := s.intent(params)
		if err != nil {
			payment.Status = FeePaymentFailed
			logrus.WithError(err).WithField("validation_request_id", balance.RequestID).
				Error("Failed to create fee balance payment intent")
		} else {
			payment.PaymentIntentID = pi.ID
			payment.Status = string(pi.Status)
			if payment.Status == "" {
				payment.Status = FeePaymentPending
			}
		}
	}

	if err := s.db.Create(payment).Error; err != nil {
		return nil, fmt.Errorf("failed to record fee payment: %w", err)
	}

	return payment, nil
}

func (s *PaymentService) ListForApplication(applicationID uuid.UUID) ([]models.FeePayment, error) {
	var payments []models.FeePayment
	if err := s.db.Where("planning_application_id = ?", applicationID).Order("created_at DESC").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch fee payments: %w", err)
	}
	return payments, nil
}

func (s *PaymentService) intent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if s.createIntent == nil {
		return paymentintent.New(params)
	}
	return s.createIntent(params)
}
