// internal/router/router.go
package router

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/localgov/planning-backoffice/internal/config"
	"github.com/localgov/planning-backoffice/internal/handlers"
	"github.com/localgov/planning-backoffice/internal/middleware"
	"github.com/localgov/planning-backoffice/internal/utils"
)

func Initialize(svc *Services, cfg *config.Config) *gin.Engine {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(svc.Auth)
	userHandler := handlers.NewUserHandler(svc.Users)
	adminHandler := handlers.NewAdminHandler(svc.Admin, svc.Auth, svc.Sweeper)
	applicationHandler := handlers.NewApplicationHandler(svc.Cases, svc.Aggregator, svc.Audit)
	requestHandler := handlers.NewValidationRequestHandler(svc.Requests, svc.Aggregator)
	reviewHandler := handlers.NewReviewHandler(svc.Reviews)
	documentHandler := handlers.NewDocumentHandler(svc.Aggregator, svc.Storage)
	paymentHandler := handlers.NewPaymentHandler(svc.Payments)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))
	r.Use(middleware.RequestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.Frontend.BaseURL},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept-Language", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "X-Total-Count", "X-Total-Pages"},
		AllowCredentials: true,
	}))
	if cfg.Server.RateLimitPerSecond > 0 {
		limiter := middleware.NewRateLimiter(rate.Limit(cfg.Server.RateLimitPerSecond), cfg.Server.RateLimitPerSecond*2)
		go limiter.Cleanup(context.Background())
		r.Use(limiter.Middleware())
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/login", middleware.AuthRateLimit(), authHandler.Login)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
			auth.PATCH("/me", middleware.AuthRequired(), userHandler.UpdateProfile)
			auth.POST("/password", middleware.AuthRequired(), userHandler.ChangePassword)
		}

		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())

		applications := protected.Group("/applications")
		{
			applications.POST("", applicationHandler.CreateApplication)
			applications.GET("/:id", applicationHandler.GetApplication)
			applications.POST("/:id/invalidate", applicationHandler.Invalidate)
			applications.POST("/:id/validate", applicationHandler.Validate)
			applications.POST("/:id/submit", applicationHandler.Submit)
			applications.POST("/:id/determine", middleware.ReviewerRequired(), applicationHandler.Determine)
			applications.POST("/:id/withdraw", applicationHandler.Withdraw)
			applications.POST("/:id/return", applicationHandler.Return)
			applications.GET("/:id/audits", applicationHandler.GetAuditLog)
			applications.GET("/:id/documents", documentHandler.ListDocuments)
			applications.GET("/:id/fee-payments", paymentHandler.GetFeePayments)
			applications.GET("/:id/validation-requests", requestHandler.ListRequests)
			applications.POST("/:id/validation-requests", requestHandler.CreateRequest)
			applications.GET("/:id/validation-requests/latest/:type", requestHandler.GetLatest)
		}

		requests := protected.Group("/validation-requests")
		{
			requests.GET("/:id", requestHandler.GetRequest)
			requests.DELETE("/:id", requestHandler.DeleteRequest)
			requests.POST("/:id/send", requestHandler.MarkSent)
			requests.POST("/:id/response", requestHandler.Respond)
			requests.POST("/:id/auto-approve", requestHandler.AutoApprove)
			requests.POST("/:id/cancel", requestHandler.Cancel)
		}
		protected.GET("/validation-request-types/:type", requestHandler.GetCapabilities)

		protected.GET("/documents/:id/url", documentHandler.GetDownloadURL)

		protected.GET("/review-owner-types", reviewHandler.GetOwnerTypes)
		reviews := protected.Group("/reviews/:owner_type/:owner_id")
		{
			reviews.GET("", reviewHandler.GetCurrent)
			reviews.GET("/history", reviewHandler.GetHistory)
			reviews.POST("/start", reviewHandler.StartAssessment)
			reviews.POST("/complete", reviewHandler.CompleteAssessment)
			reviews.POST("/reopen", reviewHandler.ReopenForUpdate)
			reviews.PATCH("/owner", reviewHandler.UpdateOwner)

			signOff := reviews.Group("")
			signOff.Use(middleware.ReviewerRequired())
			signOff.POST("/accept", reviewHandler.AcceptReview)
			signOff.POST("/edit-and-accept", reviewHandler.EditAndAcceptReview)
			signOff.POST("/return", reviewHandler.ReturnToOfficer)
		}

		admin := protected.Group("/admin")
		admin.Use(middleware.AdminRequired())
		{
			admin.GET("/dashboard", adminHandler.GetDashboard)
			admin.GET("/users", adminHandler.GetUsers)
			admin.POST("/users", adminHandler.CreateUser)
			admin.PATCH("/users/:id/status", adminHandler.UpdateUserStatus)
			admin.GET("/validation-requests/overdue", adminHandler.GetOverdueRequests)
			admin.POST("/auto-approvals", adminHandler.RunAutoApproval)
		}
	}

	return r
}
