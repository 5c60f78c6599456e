// internal/handlers/payment.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/localgov/planning-backoffice/internal/services"
	"github.com/localgov/planning-backoffice/internal/utils"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
}

func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// GET /applications/:id/fee-payments
func (h *PaymentHandler) GetFeePayments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	payments, err := h.paymentService.ListForApplication(id)
	if err != nil {
		respondError(c, err, "application")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"fee_payments": payments,
	})
}
