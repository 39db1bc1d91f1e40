package entitlement

import (
	"Entitle/appstore"
	"Entitle/common"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger(r.Context())

	var request RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		logger.Printf("Failed to parse redeem request: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if request.UserID <= 0 {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}
	if request.Platform != "apple" {
		http.Error(w, "invalid platform, must be 'apple'", http.StatusBadRequest)
		return
	}

	response, err := h.service.RedeemReceipt(r.Context(), &request)
	if err != nil {
		logger.Printf("Failed to redeem receipt: %v", err)
		if response != nil {
			// Return structured error response
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(response)
			return
		}
		http.Error(w, "failed to redeem receipt", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) HandleGetEntitlement(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger(r.Context())

	userID, err := strconv.Atoi(r.PathValue("user_id"))
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	entitlement, err := h.service.GetEntitlement(r.Context(), userID)
	if err != nil {
		logger.Printf("Failed to get entitlement: %v", err)
		http.Error(w, "failed to get entitlement", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entitlement)
}

func (h *Handler) HandleGetEntitlementStatus(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger(r.Context())

	userID, err := strconv.Atoi(r.PathValue("user_id"))
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	isActive, err := h.service.HasActiveEntitlement(r.Context(), userID)
	if err != nil {
		logger.Printf("Failed to get entitlement status: %v", err)
		http.Error(w, "failed to get entitlement status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"is_active": isActive})
}

func (h *Handler) HandleGetProducts(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger(r.Context())

	platform := r.URL.Query().Get("platform")
	productType := r.URL.Query().Get("type")

	products, err := h.service.GetProducts(r.Context(), platform, productType)
	if err != nil {
		logger.Printf("Failed to get products: %v", err)
		http.Error(w, "failed to get products", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(products)
}

// HandleAppStoreNotification processes App Store server-to-server
// subscription notifications. Apple retries on non-200 responses, so the
// handler acknowledges everything it can parse and processes asynchronously.
func (h *Handler) HandleAppStoreNotification(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger(r.Context())
	logger.Printf("Received App Store server notification")

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		logger.Printf("Failed to decode notification: %v", err)
		http.Error(w, "invalid notification payload", http.StatusBadRequest)
		return
	}

	notification := appstore.ParseSubscriptionNotification(raw)
	if notification.NotificationType == "" {
		logger.Printf("Received notification without a type, ignoring")
		w.WriteHeader(http.StatusOK)
		return
	}

	logger.Printf("Received notification type: %s, environment: %s",
		notification.NotificationType, notification.Environment)

	if !h.service.VerifyNotificationSecret(notification) {
		logger.Printf("Notification shared secret mismatch, rejecting")
		http.Error(w, "invalid shared secret", http.StatusUnauthorized)
		return
	}

	notificationID := uuid.NewString()
	if err := h.logNotification(r.Context(), notificationID, notification); err != nil {
		logger.Printf("Failed to log notification to database: %v", err)
	}

	// Process the notification asynchronously
	go func() {
		ctx := context.WithValue(context.Background(), common.LoggerCtxKey, logger)

		if err := h.service.ApplyNotification(ctx, notification); err != nil {
			logger.Printf("Failed to apply App Store notification: %v", err)
			h.logNotificationError(ctx, notificationID, err)
		}
	}()

	// Always respond with 200 OK to acknowledge receipt
	w.WriteHeader(http.StatusOK)
}

// logNotification records the notification for audit purposes
func (h *Handler) logNotification(ctx context.Context, notificationID string, n *appstore.SubscriptionNotification) error {
	rawPayload, err := json.Marshal(n.Raw)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = h.service.db.Exec(ctx, `
		INSERT INTO app_store_notifications (
			notification_id, notification_type, environment,
			original_transaction_id, raw_payload
		) VALUES ($1, $2, $3, $4, $5)
	`, notificationID, n.NotificationType, n.Environment,
		n.OriginalTransactionID, rawPayload)
	if err != nil {
		return fmt.Errorf("failed to insert notification record: %w", err)
	}

	return nil
}

// logNotificationError updates the notification record with error information
func (h *Handler) logNotificationError(ctx context.Context, notificationID string, err error) {
	logger := common.Logger(ctx)

	_, dbErr := h.service.db.Exec(ctx, `
		UPDATE app_store_notifications
		SET error_message = $1
		WHERE notification_id = $2
	`, err.Error(), notificationID)
	if dbErr != nil {
		logger.Printf("Failed to log notification error to database: %v", dbErr)
	}
}
