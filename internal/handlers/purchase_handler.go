package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/ticketloop/purchases-service/internal/admission"
	"github.com/ticketloop/purchases-service/internal/clients"
	"github.com/ticketloop/purchases-service/internal/helpers"
	"github.com/ticketloop/purchases-service/internal/ledger"
	"github.com/ticketloop/purchases-service/internal/middleware"
)

type PurchaseRequest struct {
	EventID  int64 `json:"event_id" binding:"required"`
	Quantity int   `json:"quantity" binding:"required"`
}

// PurchaseHandler serves the purchase endpoints. Decisions are delegated to
// the admission engine; read paths go straight to the ledger.
type PurchaseHandler struct {
	engine *admission.Engine
	ledger ledger.Ledger
	oracle admission.CapacityOracle
	secret string
}

func NewPurchaseHandler(engine *admission.Engine, store ledger.Ledger, oracle admission.CapacityOracle, secret string) *PurchaseHandler {
	return &PurchaseHandler{
		engine: engine,
		ledger: store,
		oracle: oracle,
		secret: secret,
	}
}

// Create handles POST /purchases.
func (h *PurchaseHandler) Create(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, helpers.CodeTokenMissing, "User not authenticated.")
		return
	}

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, helpers.CodeInvalidInput, "event_id and quantity are required.")
		return
	}

	result, err := h.engine.Purchase(c.Request.Context(), identity, req.EventID, req.Quantity)
	if err != nil {
		h.respondAdmissionError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Purchase created successfully.",
		"purchase": result.Purchase,
		"event_info": gin.H{
			"name":       result.Event.Name,
			"unit_price": result.Event.Price,
			"total":      result.Purchase.Total,
		},
	})
}

// Pay handles POST /purchases/:id/pay and returns the confirmation envelope.
func (h *PurchaseHandler) Pay(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, helpers.CodeTokenMissing, "User not authenticated.")
		return
	}

	purchaseID, err := helpers.ParsePurchaseID(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, helpers.CodeInvalidInput, "Invalid purchase id.")
		return
	}

	result, err := h.engine.ConfirmPayment(c.Request.Context(), identity, purchaseID)
	if err != nil {
		h.respondAdmissionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Payment confirmed.",
		"purchase": result.Purchase,
		"event_info": gin.H{
			"name": result.Event.Name,
			"date": result.Event.Date,
		},
	})
}

// List handles GET /purchases: own purchases, or all for admins.
func (h *PurchaseHandler) List(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, helpers.CodeTokenMissing, "User not authenticated.")
		return
	}

	var (
		purchases interface{}
		err       error
	)
	if identity.IsAdmin() {
		purchases, err = h.ledger.ListAll(c.Request.Context())
	} else {
		purchases, err = h.ledger.ListByBuyer(c.Request.Context(), identity.UserID)
	}
	if err != nil {
		log.WithError(err).Error("Listing purchases failed")
		helpers.RespondWithError(c, http.StatusInternalServerError, helpers.CodePersistenceError, "Failed to list purchases.")
		return
	}

	c.JSON(http.StatusOK, purchases)
}

// Get handles GET /purchases/:id with an owner-or-admin guard.
func (h *PurchaseHandler) Get(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, helpers.CodeTokenMissing, "User not authenticated.")
		return
	}

	purchaseID, err := helpers.ParsePurchaseID(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, helpers.CodeInvalidInput, "Invalid purchase id.")
		return
	}

	purchase, err := h.ledger.Get(c.Request.Context(), purchaseID)
	if err != nil {
		if errors.Is(err, ledger.ErrPurchaseNotFound) {
			helpers.RespondWithError(c, http.StatusNotFound, helpers.CodePurchaseNotFound, "Purchase not found.")
			return
		}
		log.WithError(err).Error("Loading purchase failed")
		helpers.RespondWithError(c, http.StatusInternalServerError, helpers.CodePersistenceError, "Failed to load purchase.")
		return
	}

	if !identity.IsAdmin() && purchase.UserID != identity.UserID {
		helpers.RespondWithError(c, http.StatusForbidden, helpers.CodeForbidden, "You don't have permission to view this purchase.")
		return
	}

	c.JSON(http.StatusOK, purchase)
}

// Remaining handles GET /purchases/event/:event_id/remaining. No auth
// required; capacity comes from the events service, sold from the ledger.
func (h *PurchaseHandler) Remaining(c *gin.Context) {
	eventID, err := helpers.ParseEventID(c.Param("event_id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, helpers.CodeInvalidInput, "Invalid event id.")
		return
	}

	snapshot, err := h.oracle.FetchEvent(c.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, clients.ErrEventNotFound) {
			helpers.RespondWithError(c, http.StatusNotFound, helpers.CodeEventNotFound, "Event not found.")
			return
		}
		log.WithError(err).WithField("event_id", eventID).Error("Events service lookup failed")
		helpers.RespondWithError(c, http.StatusServiceUnavailable, helpers.CodeUpstreamUnavailable, "Events service unavailable.")
		return
	}

	sold, err := h.ledger.SoldQuantity(c.Request.Context(), eventID)
	if err != nil {
		log.WithError(err).Error("Summing sold quantity failed")
		helpers.RespondWithError(c, http.StatusInternalServerError, helpers.CodePersistenceError, "Failed to compute remaining tickets.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id":  eventID,
		"capacity":  snapshot.Capacity,
		"remaining": snapshot.Capacity - sold,
		"sold":      sold,
	})
}

// ListByUser handles GET /purchases/user/:user_id, allowed for admins and the
// user themselves.
func (h *PurchaseHandler) ListByUser(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, helpers.CodeTokenMissing, "User not authenticated.")
		return
	}

	userID := c.Param("user_id")
	if !identity.IsAdmin() && identity.UserID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, helpers.CodeForbidden, "You don't have permission to view these purchases.")
		return
	}

	purchases, err := h.ledger.ListByBuyer(c.Request.Context(), userID)
	if err != nil {
		log.WithError(err).Error("Listing purchases failed")
		helpers.RespondWithError(c, http.StatusInternalServerError, helpers.CodePersistenceError, "Failed to list purchases.")
		return
	}

	c.JSON(http.StatusOK, purchases)
}

// ListByEvent handles GET /purchases/event/:event_id, admin only, with sales
// statistics.
func (h *PurchaseHandler) ListByEvent(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, helpers.CodeTokenMissing, "User not authenticated.")
		return
	}
	if !identity.IsAdmin() {
		helpers.RespondWithError(c, http.StatusForbidden, helpers.CodeForbidden, "Administrators only.")
		return
	}

	eventID, err := helpers.ParseEventID(c.Param("event_id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, helpers.CodeInvalidInput, "Invalid event id.")
		return
	}

	purchases, err := h.ledger.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		log.WithError(err).Error("Listing purchases failed")
		helpers.RespondWithError(c, http.StatusInternalServerError, helpers.CodePersistenceError, "Failed to list purchases.")
		return
	}

	stats, err := h.ledger.EventStats(c.Request.Context(), eventID)
	if err != nil {
		log.WithError(err).Error("Aggregating event stats failed")
		helpers.RespondWithError(c, http.StatusInternalServerError, helpers.CodePersistenceError, "Failed to compute statistics.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"purchases":  purchases,
		"statistics": stats,
	})
}

// ListPaid handles GET /purchases/mine/paid: the caller's paid purchases.
func (h *PurchaseHandler) ListPaid(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, helpers.CodeTokenMissing, "User not authenticated.")
		return
	}

	purchases, err := h.ledger.ListPaidByBuyer(c.Request.Context(), identity.UserID)
	if err != nil {
		log.WithError(err).Error("Listing paid purchases failed")
		helpers.RespondWithError(c, http.StatusInternalServerError, helpers.CodePersistenceError, "Failed to list purchases.")
		return
	}

	c.JSON(http.StatusOK, purchases)
}

func (h *PurchaseHandler) respondAdmissionError(c *gin.Context, err error) {
	var capacityErr *admission.CapacityError
	switch {
	case errors.As(err, &capacityErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Not enough tickets available.",
			"code":      helpers.CodeInsufficientCapacity,
			"requested": capacityErr.Requested,
			"available": capacityErr.Available,
		})
	case errors.Is(err, admission.ErrInvalidQuantity):
		helpers.RespondWithError(c, http.StatusBadRequest, helpers.CodeInvalidQuantity, "Quantity must be greater than 0.")
	case errors.Is(err, admission.ErrEventNotFound):
		helpers.RespondWithError(c, http.StatusNotFound, helpers.CodeEventNotFound, "Event not found.")
	case errors.Is(err, admission.ErrUpstreamUnavailable):
		helpers.RespondWithError(c, http.StatusServiceUnavailable, helpers.CodeUpstreamUnavailable, "Events service unavailable.")
	case errors.Is(err, admission.ErrPurchaseNotFound):
		helpers.RespondWithError(c, http.StatusNotFound, helpers.CodePurchaseNotFound, "Purchase not found.")
	case errors.Is(err, admission.ErrForbidden):
		helpers.RespondWithError(c, http.StatusForbidden, helpers.CodeForbidden, "This purchase belongs to another user.")
	case errors.Is(err, admission.ErrAlreadyPaid):
		helpers.RespondWithError(c, http.StatusBadRequest, helpers.CodeAlreadyPaid, "Purchase is already paid.")
	default:
		log.WithError(err).Error("Purchase operation failed")
		helpers.RespondWithError(c, http.StatusInternalServerError, helpers.CodePersistenceError, "Failed to process purchase.")
	}
}
