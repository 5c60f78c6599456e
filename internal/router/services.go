// internal/router/services.go
package router

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/localgov/planning-backoffice/internal/config"
	"github.com/localgov/planning-backoffice/internal/deadline"
	"github.com/localgov/planning-backoffice/internal/services"
)

// Services is the wired service graph shared by the HTTP server and the CLI.
type Services struct {
	Audit         *services.AuditService
	Notifications *services.NotificationService
	Storage       *services.StorageService
	Payments      *services.PaymentService
	Auth          *services.AuthService
	Users         *services.UserService
	Admin         *services.AdminService
	Reviews       *services.ReviewService
	Requests      *services.RequestService
	Cases         *services.CaseService
	Aggregator    *services.CaseAggregator
	Sweeper       *services.AutoApprovalSweeper
}

func NewServices(db *gorm.DB, cfg *config.Config, calculator *deadline.Calculator) (*Services, error) {
	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise storage: %w", err)
	}

	auditService := services.NewAuditService(db)
	notificationService := services.NewNotificationService(db, cfg)
	paymentService := services.NewPaymentService(db, cfg)
	reviewService := services.NewReviewService(db, auditService)

	requestService := services.NewRequestService(db, auditService, calculator, notificationService).
		WithDocumentStore(storageService).
		WithFeeCollector(paymentService).
		WithReviews(reviewService)

	return &Services{
		Audit:         auditService,
		Notifications: notificationService,
		Storage:       storageService,
		Payments:      paymentService,
		Auth:          services.NewAuthService(db, cfg),
		Users:         services.NewUserService(db),
		Admin:         services.NewAdminService(db, calculator),
		Reviews:       reviewService,
		Requests:      requestService,
		Cases:         services.NewCaseService(db, auditService, requestService, notificationService),
		Aggregator:    services.NewCaseAggregator(db, calculator),
		Sweeper:       services.NewAutoApprovalSweeper(db, requestService, calculator, cfg.Workflow.SweepConcurrency),
	}, nil
}
