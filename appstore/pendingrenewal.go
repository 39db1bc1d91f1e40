package appstore

import "time"

// PendingRenewalInfo is one subscription's auto-renewal state snapshot from
// a response's pending_renewal_info array.
type PendingRenewalInfo struct {
	// ExpirationIntent is the reason a subscription expired (1-5). Only
	// present for expired auto-renewable subscriptions.
	ExpirationIntent *int64

	// AutoRenewStatus reports whether the subscription will auto-renew
	// ("1" in the source).
	AutoRenewStatus bool

	// AutoRenewProductID is the product the subscription renews into, when
	// the user has downgraded or crossgraded.
	AutoRenewProductID string

	// IsInBillingRetryPeriod reports that Apple is retrying billing for an
	// expired subscription.
	IsInBillingRetryPeriod bool

	// GracePeriodExpiresDate is when the billing grace period ends, with the
	// raw millisecond companion preserved as received.
	GracePeriodExpiresDate   *time.Time
	GracePeriodExpiresDateMS string

	// ProductID is the purchased product's identifier.
	ProductID string

	// PriceConsentStatus is 1 once the customer consents to a price
	// increase, 0 before. Only present when Apple notified the customer.
	PriceConsentStatus *int64

	// OriginalTransactionID is the transaction identifier of the original
	// purchase.
	OriginalTransactionID string
}

func newPendingRenewalInfo(attrs map[string]any) *PendingRenewalInfo {
	return &PendingRenewalInfo{
		ExpirationIntent:         optionalIntAttr(attrs["expiration_intent"]),
		AutoRenewStatus:          truthyAttr(attrs["auto_renew_status"]),
		AutoRenewProductID:       stringAttr(attrs["auto_renew_product_id"]),
		IsInBillingRetryPeriod:   truthyAttr(attrs["is_in_billing_retry_period"]),
		GracePeriodExpiresDate:   parseDate(attrs["grace_period_expires_date"]),
		GracePeriodExpiresDateMS: stringAttr(attrs["grace_period_expires_date_ms"]),
		ProductID:                stringAttr(attrs["product_id"]),
		PriceConsentStatus:       optionalIntAttr(attrs["price_consent_status"]),
		OriginalTransactionID:    stringAttr(attrs["original_transaction_id"]),
	}
}

// pendingRenewalListAttr decodes a pending_renewal_info array, order
// preserved. An absent key yields an empty slice, never nil.
func pendingRenewalListAttr(v any) []*PendingRenewalInfo {
	infos := []*PendingRenewalInfo{}
	if list, ok := v.([]any); ok {
		for _, item := range list {
			if attrs := mapAttr(item); attrs != nil {
				infos = append(infos, newPendingRenewalInfo(attrs))
			}
		}
	}
	return infos
}
