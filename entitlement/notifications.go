package entitlement

import (
	"Entitle/appstore"
	"Entitle/common"
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
)

// planAction is what a server-to-server notification asks us to do with the
// affected entitlement.
type planAction int

const (
	// planNone: nothing to change, record only.
	planNone planAction = iota
	// planExtend: the subscription was bought, renewed, or recovered;
	// extend the entitlement to the latest expiry.
	planExtend
	// planRevoke: the purchase was cancelled or refunded; cut the
	// entitlement off now.
	planRevoke
	// planLapse: renewal failed; deactivate once the paid period has run
	// out, but never before.
	planLapse
	// planRecordStatus: only the auto-renew preference changed.
	planRecordStatus
)

// planNotification maps a notification type to the action it implies. It is
// deliberately side-effect free so the mapping can be tested on its own.
func planNotification(notificationType string) planAction {
	switch notificationType {
	case appstore.NotificationInitialBuy,
		appstore.NotificationRenewal,
		appstore.NotificationDidRenew,
		appstore.NotificationDidRecover,
		appstore.NotificationInteractiveRenewal:
		return planExtend
	case appstore.NotificationCancel,
		appstore.NotificationRefund:
		return planRevoke
	case appstore.NotificationDidFailToRenew:
		return planLapse
	case appstore.NotificationDidChangeRenewalStatus,
		appstore.NotificationDidChangeRenewalPref,
		appstore.NotificationPriceIncreaseConsent:
		return planRecordStatus
	default:
		return planNone
	}
}

// VerifyNotificationSecret compares the notification's echoed shared secret
// against ours. Notifications with a mismatched secret must be dropped.
func (s *Service) VerifyNotificationSecret(n *appstore.SubscriptionNotification) bool {
	if s.sharedSecret == "" {
		return true
	}
	return n.Password == s.sharedSecret
}

// ApplyNotification applies a server-to-server subscription notification to
// the affected user's entitlement. An unknown original transaction id is not
// an error: the purchase may predate this system or belong to another one.
func (s *Service) ApplyNotification(ctx context.Context, n *appstore.SubscriptionNotification) error {
	logger := common.Logger(ctx)

	origTxID := n.OriginalTransactionID
	if origTxID == "" && n.LatestReceiptInfo != nil {
		origTxID = n.LatestReceiptInfo.TransactionID
	}
	if origTxID == "" {
		logger.Printf("Notification %s carries no transaction reference, ignoring", n.NotificationType)
		return nil
	}

	var userID int
	err := s.db.QueryRow(ctx, `
		SELECT user_id FROM user_entitlements
		WHERE original_transaction_id = $1 OR transaction_id = $1
	`, origTxID).Scan(&userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			logger.Printf("No user found for transaction %s, ignoring %s notification",
				origTxID, n.NotificationType)
			return nil
		}
		return fmt.Errorf("failed to find user for transaction: %w", err)
	}

	switch planNotification(n.NotificationType) {
	case planExtend:
		return s.extendEntitlement(ctx, userID, n)
	case planRevoke:
		return s.revokeEntitlement(ctx, userID, n)
	case planLapse:
		return s.lapseEntitlement(ctx, userID, n)
	case planRecordStatus:
		return s.recordRenewalStatus(ctx, userID, n)
	default:
		logger.Printf("Unhandled notification type %s for user %d", n.NotificationType, userID)
		return nil
	}
}

func (s *Service) extendEntitlement(ctx context.Context, userID int, n *appstore.SubscriptionNotification) error {
	logger := common.Logger(ctx)

	var newEnd *time.Time
	var transactionID string
	if n.LatestReceiptInfo != nil {
		newEnd = n.LatestReceiptInfo.ExpiresDate
		transactionID = n.LatestReceiptInfo.TransactionID
	}
	if newEnd == nil {
		logger.Printf("Notification %s for user %d carries no expiry, only reactivating",
			n.NotificationType, userID)
		_, err := s.db.Exec(ctx, `
			UPDATE user_entitlements
			SET is_active = true, auto_renew_status = true
			WHERE user_id = $1
		`, userID)
		if err != nil {
			return fmt.Errorf("failed to reactivate entitlement: %w", err)
		}
		return nil
	}

	_, err := s.db.Exec(ctx, `
		UPDATE user_entitlements
		SET
			is_active = true,
			entitlement_end = $1,
			transaction_id = $2,
			latest_receipt = $3,
			auto_renew_status = true
		WHERE user_id = $4
	`, *newEnd, transactionID, n.LatestReceipt, userID)
	if err != nil {
		return fmt.Errorf("failed to extend entitlement: %w", err)
	}

	logger.Printf("Extended entitlement for user %d until %s", userID, newEnd.Format(time.RFC3339))
	return nil
}

func (s *Service) revokeEntitlement(ctx context.Context, userID int, n *appstore.SubscriptionNotification) error {
	logger := common.Logger(ctx)

	_, err := s.db.Exec(ctx, `
		UPDATE user_entitlements
		SET
			is_active = false,
			entitlement_end = NOW(),
			auto_renew_status = false
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke entitlement: %w", err)
	}

	logger.Printf("Revoked entitlement for user %d after %s notification", userID, n.NotificationType)
	return nil
}

func (s *Service) lapseEntitlement(ctx context.Context, userID int, n *appstore.SubscriptionNotification) error {
	logger := common.Logger(ctx)

	// During a billing grace period the entitlement stays active until the
	// grace period runs out, not just until the paid period does.
	cutoff := time.Now()
	if n.GracePeriodExpiresDate != nil && n.GracePeriodExpiresDate.After(cutoff) {
		logger.Printf("User %d is in billing grace period until %s, keeping entitlement active",
			userID, n.GracePeriodExpiresDate.Format(time.RFC3339))
		_, err := s.db.Exec(ctx, `
			UPDATE user_entitlements
			SET entitlement_end = $1
			WHERE user_id = $2
		`, *n.GracePeriodExpiresDate, userID)
		if err != nil {
			return fmt.Errorf("failed to apply grace period: %w", err)
		}
		return nil
	}

	result, err := s.db.Exec(ctx, `
		UPDATE user_entitlements
		SET is_active = false
		WHERE user_id = $1 AND (entitlement_end IS NULL OR entitlement_end <= NOW())
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to lapse entitlement: %w", err)
	}

	if result.RowsAffected() == 0 {
		logger.Printf("Entitlement for user %d still has paid time remaining, leaving active", userID)
	} else {
		logger.Printf("Lapsed entitlement for user %d after failed renewal", userID)
	}
	return nil
}

func (s *Service) recordRenewalStatus(ctx context.Context, userID int, n *appstore.SubscriptionNotification) error {
	logger := common.Logger(ctx)

	autoRenew := n.AutoRenewStatus == "true" || n.AutoRenewStatus == "1"
	_, err := s.db.Exec(ctx, `
		UPDATE user_entitlements
		SET auto_renew_status = $1
		WHERE user_id = $2
	`, autoRenew, userID)
	if err != nil {
		return fmt.Errorf("failed to record renewal status: %w", err)
	}

	logger.Printf("Recorded auto-renew status %t for user %d", autoRenew, userID)
	return nil
}
