package appstore

// UnifiedReceipt is the unified_receipt object carried by server-to-server
// subscription notifications. Its latest_receipt_info and
// pending_renewal_info arrays are identical in shape to the verifyReceipt
// response's.
type UnifiedReceipt struct {
	// Environment is the environment the receipt was generated in.
	Environment string

	// LatestReceipt is the latest base64-encoded app receipt.
	LatestReceipt string

	// LatestReceiptInfo holds the latest in-app purchase transactions,
	// order preserved. Empty, never nil, when absent.
	LatestReceiptInfo []*InAppEntry

	// PendingRenewalInfo holds one renewal-state snapshot per auto-renewable
	// subscription. Empty, never nil, when absent.
	PendingRenewalInfo []*PendingRenewalInfo

	// Status is 0 for a valid notification.
	Status int
}

func newUnifiedReceipt(attrs map[string]any) *UnifiedReceipt {
	receipt := &UnifiedReceipt{
		Environment:        stringAttr(attrs["environment"]),
		LatestReceipt:      stringAttr(attrs["latest_receipt"]),
		LatestReceiptInfo:  inAppListAttr(attrs["latest_receipt_info"]),
		PendingRenewalInfo: pendingRenewalListAttr(attrs["pending_renewal_info"]),
	}
	if status, ok := intAttr(attrs["status"]); ok {
		receipt.Status = int(status)
	}
	return receipt
}
