package appstore

import "time"

// Success statuses. 21006 means the receipt is valid but the subscription
// has expired; the response body is still a full success payload.
const (
	statusOK                  = 0
	statusSubscriptionExpired = 21006
)

// VerificationResponse is the decoded body of a successful verifyReceipt
// call. Construction is all-or-nothing on the status code: any status other
// than 0 or 21006 yields a *VerificationError and no response value.
type VerificationResponse struct {
	// Status is the top-level status code, 0 or 21006.
	Status int

	// Environment is "Sandbox" or "Production".
	Environment string

	// Receipt is the decoded receipt sub-object. The notification-style
	// response shape carries it under latest_receipt instead of receipt;
	// both decode here.
	Receipt *Receipt

	// LatestReceipt is the base64-encoded latest app receipt, when present.
	LatestReceipt string

	// LatestReceiptInfo holds the most recent renewal transactions, newest
	// last as received. Empty, never nil, when the key is absent.
	LatestReceiptInfo []*InAppEntry

	// PendingRenewalInfo holds one renewal-state snapshot per auto-renewable
	// subscription. Empty, never nil, when the key is absent.
	PendingRenewalInfo []*PendingRenewalInfo

	// Fields below only appear on the subscription-notification response
	// shape, which shares this parser.
	AutoRenewStatus       string
	AutoRenewProductID    string
	NotificationType      string
	CancellationDate      *time.Time
	OriginalTransactionID string

	// Raw is the response document with the raw-echo key stripped.
	Raw map[string]any
}

// IsSubscription reports whether the response describes an auto-renewable
// subscription rather than a one-time purchase.
func (r *VerificationResponse) IsSubscription() bool {
	return r.AutoRenewProductID != "" || len(r.PendingRenewalInfo) > 0
}

// ParseVerificationResponse classifies and decodes a verification response
// document. A response whose status is missing or not a success code fails
// with a *VerificationError carrying the status, the raw document, and the
// endpoint's is-retryable hint; no partial response is ever returned.
func ParseVerificationResponse(raw map[string]any) (*VerificationResponse, error) {
	status, ok := intAttr(raw["status"])
	if !ok || (status != statusOK && status != statusSubscriptionExpired) {
		return nil, &VerificationError{
			Code:      int(status),
			Retryable: truthyAttr(raw["is-retryable"]),
			Raw:       raw,
		}
	}

	resp := &VerificationResponse{
		Status:                int(status),
		Environment:           stringAttr(raw["environment"]),
		LatestReceipt:         stringAttr(raw["latest_receipt"]),
		LatestReceiptInfo:     inAppListAttr(raw["latest_receipt_info"]),
		PendingRenewalInfo:    pendingRenewalListAttr(raw["pending_renewal_info"]),
		AutoRenewStatus:       stringAttr(raw["auto_renew_status"]),
		AutoRenewProductID:    stringAttr(raw["auto_renew_product_id"]),
		NotificationType:      stringAttr(raw["notification_type"]),
		CancellationDate:      parseDate(raw["cancellation_date"]),
		OriginalTransactionID: stringAttr(raw["original_transaction_id"]),
		Raw:                   stripRawEcho(raw),
	}

	// The receipt lives under "receipt" in verify responses and under
	// "latest_receipt" in the notification shape (where latest_receipt is an
	// object, not the usual base64 string).
	receiptAttrs := mapAttr(raw["receipt"])
	if receiptAttrs == nil {
		receiptAttrs = mapAttr(raw["latest_receipt"])
	}
	if receiptAttrs != nil {
		resp.Receipt = newReceipt(receiptAttrs, raw)
	}

	return resp, nil
}
