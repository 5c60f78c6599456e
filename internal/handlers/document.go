// internal/handlers/document.go
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/localgov/planning-backoffice/internal/services"
	"github.com/localgov/planning-backoffice/internal/utils"
)

const documentURLExpiry = 15 * time.Minute

type DocumentHandler struct {
	aggregator     *services.CaseAggregator
	storageService *services.StorageService
}

func NewDocumentHandler(aggregator *services.CaseAggregator, storageService *services.StorageService) *DocumentHandler {
	return &DocumentHandler{
		aggregator:     aggregator,
		storageService: storageService,
	}
}

// GET /applications/:id/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	docs, err := h.aggregator.Documents(id, c.Query("archived") == "true")
	if err != nil {
		respondError(c, err, "application")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"documents": docs,
	})
}

// GET /documents/:id/url
func (h *DocumentHandler) GetDownloadURL(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	doc, err := h.aggregator.Document(id)
	if err != nil {
		respondError(c, err, "document")
		return
	}

	url, err := h.storageService.GeneratePresignedURL(doc.Reference, documentURLExpiry)
	if err != nil {
		respondError(c, err, "document")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"url":        url,
		"expires_in": int(documentURLExpiry.Seconds()),
	})
}
