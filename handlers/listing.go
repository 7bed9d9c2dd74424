package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/johnwmail/taskgrab/internal/exchange"
	"github.com/johnwmail/taskgrab/utils"
)

// ListingHandler handles listing lifecycle requests
type ListingHandler struct {
	exchange *exchange.Exchange
}

// NewListingHandler creates a new listing handler
func NewListingHandler(ex *exchange.Exchange) *ListingHandler {
	return &ListingHandler{exchange: ex}
}

// CreateRequest is the body of POST /api/post
type CreateRequest struct {
	Title      string   `json:"title"`
	Contact    string   `json:"contact"`
	Category   string   `json:"category"`
	Attributes []string `json:"attributes"`
}

// ClaimRequest is the body of POST /api/grab
type ClaimRequest struct {
	ID string `json:"id"`
}

// OwnerRequest is the body of POST /api/renew and POST /api/cancel
type OwnerRequest struct {
	ID              string `json:"id"`
	OwnerCapability string `json:"owner_capability"`
}

// Create handles POST /api/post
func (h *ListingHandler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Contact = strings.TrimSpace(req.Contact)
	if req.Title == "" || req.Contact == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and contact are required"})
		return
	}

	listing, err := h.exchange.Create(req.Title, req.Contact, req.Category, req.Attributes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create listing"})
		return
	}

	// The only response that ever carries the owner capability
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"id":               listing.ID,
		"owner_capability": listing.OwnerCapability,
		"expires_at":       listing.ExpiresAt,
	})
}

// Claim handles POST /api/grab. A missed claim is a normal outcome for the
// caller, not an error, so it comes back as HTTP 200 with success=false.
func (h *ListingHandler) Claim(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !utils.IsValidID(req.ID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing id"})
		return
	}

	contact, err := h.exchange.Claim(req.ID)
	if err != nil {
		if errors.Is(err, exchange.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{
				"success": false,
				"message": "Too slow, the listing is already gone",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to claim listing"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"contact": contact,
	})
}

// Renew handles POST /api/renew
func (h *ListingHandler) Renew(c *gin.Context) {
	var req OwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !utils.IsValidID(req.ID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing id"})
		return
	}

	expiresAt, err := h.exchange.Renew(req.ID, req.OwnerCapability)
	if err != nil {
		switch {
		case errors.Is(err, exchange.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not yours to modify"})
		case errors.Is(err, exchange.ErrNotFound):
			// Already claimed, cancelled or expired: a valid terminal
			// outcome for the owner, reported as gone.
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing is already resolved"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to renew listing"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"expires_at": expiresAt,
	})
}

// Cancel handles POST /api/cancel. Idempotent: cancelling a listing that is
// already gone succeeds.
func (h *ListingHandler) Cancel(c *gin.Context) {
	var req OwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if !utils.IsValidID(req.ID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing id"})
		return
	}

	if err := h.exchange.Cancel(req.ID, req.OwnerCapability); err != nil {
		if errors.Is(err, exchange.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not yours to modify"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel listing"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// List handles GET /api/listings: the redacted snapshot, newest first.
// Poll fallback for clients without a WebSocket connection.
func (h *ListingHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"listings": h.exchange.Snapshot()})
}
