package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/ticketloop/purchases-service/internal/helpers"
	"github.com/ticketloop/purchases-service/internal/ledger"
	"github.com/ticketloop/purchases-service/internal/middleware"
	"github.com/ticketloop/purchases-service/internal/models"
)

func generateQRCodeData(purchase *models.Purchase, secretKey string) string {
	signature := generateSignature(purchase, secretKey)
	return fmt.Sprintf("purchase:%s;event:%d;quantity:%d;signature:%s",
		purchase.ID.String(),
		purchase.EventID,
		purchase.Quantity,
		signature,
	)
}

func generateSignature(purchase *models.Purchase, secretKey string) string {
	data := fmt.Sprintf("%s:%d:%s", purchase.ID.String(), purchase.EventID, purchase.UserID)
	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// TicketQR handles GET /purchases/:id/qr. Only the buyer of a paid purchase
// gets a code; the payload is HMAC-signed so gate scanners can verify it
// offline.
func (h *PurchaseHandler) TicketQR(c *gin.Context) {
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
		helpers.RespondWithError(c, http.StatusInternalServerError, helpers.CodePersistenceError, "Failed to load purchase.")
		return
	}

	if purchase.UserID != identity.UserID {
		helpers.RespondWithError(c, http.StatusForbidden, helpers.CodeForbidden, "You don't have permission to generate a QR code for this purchase.")
		return
	}

	if !purchase.IsPaid() {
		helpers.RespondWithError(c, http.StatusBadRequest, helpers.CodeInvalidInput, "Purchase is not paid yet.")
		return
	}

	qrImage, err := qrcode.Encode(generateQRCodeData(purchase, h.secret), qrcode.Medium, 256)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, helpers.CodePersistenceError, "Failed to generate QR code.")
		return
	}

	c.Data(http.StatusOK, "image/png", qrImage)
}
