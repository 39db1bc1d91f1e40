package appstore

import "time"

// Server-to-server notification types.
// https://developer.apple.com/documentation/appstoreservernotifications/notification_type
const (
	NotificationInitialBuy             = "INITIAL_BUY"
	NotificationCancel                 = "CANCEL"
	NotificationRenewal                = "RENEWAL"
	NotificationInteractiveRenewal     = "INTERACTIVE_RENEWAL"
	NotificationDidChangeRenewalPref   = "DID_CHANGE_RENEWAL_PREF"
	NotificationDidChangeRenewalStatus = "DID_CHANGE_RENEWAL_STATUS"
	NotificationDidFailToRenew         = "DID_FAIL_TO_RENEW"
	NotificationDidRecover             = "DID_RECOVER"
	NotificationDidRenew               = "DID_RENEW"
	NotificationPriceIncreaseConsent   = "PRICE_INCREASE_CONSENT"
	NotificationRefund                 = "REFUND"
)

// SubscriptionNotification is a decoded server-to-server push about a
// subscription event (renewal, cancellation, billing retry, ...).
type SubscriptionNotification struct {
	// Environment is the environment the event happened in.
	Environment string

	// NotificationType is one of the Notification* constants.
	NotificationType string

	// UnifiedReceipt is the notification's unified_receipt object. Nil for
	// legacy payloads that carry the receipt fields at the top level.
	UnifiedReceipt *UnifiedReceipt

	// LatestReceipt is the base64-encoded latest app receipt, from the
	// unified receipt or the legacy top-level fields.
	LatestReceipt string

	// LatestReceiptInfo is the first (most relevant) transaction of the
	// latest receipt info list, or nil when the list is empty.
	LatestReceiptInfo *InAppEntry

	// OriginalTransactionID is derived from LatestReceiptInfo's original
	// transaction back-reference. Empty when that chain is absent;
	// derivation never fails construction.
	OriginalTransactionID string

	// AutoRenewStatus is the subscription's current renewal status as
	// received ("true"/"false" on legacy payloads).
	AutoRenewStatus string

	// AutoRenewProductID is the product the subscription renews into.
	AutoRenewProductID string

	// AutoRenewStatusChangeDate is when the user changed the renewal
	// status, with the raw millisecond companion preserved.
	AutoRenewStatusChangeDate   *time.Time
	AutoRenewStatusChangeDateMS string

	// IsInBillingRetryPeriod reports that Apple is retrying billing.
	IsInBillingRetryPeriod bool

	// GracePeriodExpiresDate is when the billing grace period ends.
	GracePeriodExpiresDate *time.Time

	// ExpirationIntent is the reason the subscription expired (1-5).
	ExpirationIntent *int64

	// Password echoes the app's shared secret; receivers should compare it
	// against their own before trusting the payload.
	Password string

	// Raw is the notification document with the raw-echo key stripped.
	Raw map[string]any
}

// ParseSubscriptionNotification decodes a server-to-server notification
// payload. Both the current unified_receipt shape and the legacy shape with
// top-level latest_receipt/latest_expired_receipt fields are supported.
// Parsing is lenient throughout: absent or malformed fields read as absent.
func ParseSubscriptionNotification(raw map[string]any) *SubscriptionNotification {
	n := &SubscriptionNotification{
		Environment:                 stringAttr(raw["environment"]),
		NotificationType:            stringAttr(raw["notification_type"]),
		AutoRenewStatus:             stringAttr(raw["auto_renew_status"]),
		AutoRenewProductID:          stringAttr(raw["auto_renew_product_id"]),
		AutoRenewStatusChangeDate:   parseDate(raw["auto_renew_status_change_date"]),
		AutoRenewStatusChangeDateMS: stringAttr(raw["auto_renew_status_change_date_ms"]),
		IsInBillingRetryPeriod:      truthyAttr(raw["is_in_billing_retry_period"]),
		GracePeriodExpiresDate:      parseDate(raw["grace_period_expires_date"]),
		ExpirationIntent:            optionalIntAttr(raw["expiration_intent"]),
		Password:                    stringAttr(raw["password"]),
		Raw:                         stripRawEcho(raw),
	}

	var latestInfo []*InAppEntry
	if unified := mapAttr(raw["unified_receipt"]); unified != nil {
		n.UnifiedReceipt = newUnifiedReceipt(unified)
		n.LatestReceipt = n.UnifiedReceipt.LatestReceipt
		latestInfo = n.UnifiedReceipt.LatestReceiptInfo
	} else {
		// Pre-unified_receipt payload shape.
		n.LatestReceipt = stringAttr(raw["latest_receipt"])
		if n.LatestReceipt == "" {
			n.LatestReceipt = stringAttr(raw["latest_expired_receipt"])
		}
		latestInfo = inAppListAttr(raw["latest_receipt_info"])
		if len(latestInfo) == 0 {
			latestInfo = inAppListAttr(raw["latest_expired_receipt_info"])
		}
	}

	if len(latestInfo) > 0 {
		n.LatestReceiptInfo = latestInfo[0]
		if n.LatestReceiptInfo.Original != nil {
			n.OriginalTransactionID = n.LatestReceiptInfo.Original.TransactionID
		}
	}

	return n
}
