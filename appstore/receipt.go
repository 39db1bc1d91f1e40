package appstore

import "time"

// Receipt is the decoded app receipt from a successful verification
// response: bundle metadata plus the ordered in-app purchase entries.
type Receipt struct {
	// BundleID is the app's bundle identifier.
	BundleID string

	// ApplicationVersion is the app's version number.
	ApplicationVersion string

	// OriginalApplicationVersion is the version of the app that was
	// originally purchased.
	OriginalApplicationVersion string

	// OriginalPurchaseDate is when the app itself was originally purchased.
	OriginalPurchaseDate *time.Time

	// ExpiresDate is when the app receipt expires. Only present for apps
	// purchased through the Volume Purchase Program; the source field is an
	// epoch-millisecond count.
	ExpiresDate *time.Time

	// ReceiptType is e.g. "Production" or "ProductionSandbox".
	ReceiptType string

	// AdamID and DownloadID are undocumented numeric receipt identifiers.
	AdamID     int64
	DownloadID int64

	// RequestedAt is when the verification request was processed.
	RequestedAt *time.Time

	// InApp holds one entry per element of the receipt's in_app array, in
	// source order. Entries with malformed optional fields still appear,
	// with those fields absent.
	InApp []*InAppEntry

	// Raw is the top-level response document this receipt was decoded from,
	// with any embedded raw-echo key stripped, retained for callers that
	// need fields this model does not surface.
	Raw map[string]any
}

// newReceipt builds a Receipt from the receipt sub-object of a response.
// raw is the enclosing top-level document; it is retained after stripping
// the raw-echo key.
//
// Each date decodes strictly from its documented source key: expiration_date
// is always epoch milliseconds, original_purchase_date and request_date are
// date strings with the usual millisecond fallback. No cross-field aliasing.
func newReceipt(attrs map[string]any, raw map[string]any) *Receipt {
	receipt := &Receipt{
		BundleID:                   stringAttr(attrs["bundle_id"]),
		ApplicationVersion:         stringAttr(attrs["application_version"]),
		OriginalApplicationVersion: stringAttr(attrs["original_application_version"]),
		OriginalPurchaseDate:       parseDate(attrs["original_purchase_date"]),
		ExpiresDate:                parseDateMilliseconds(attrs["expiration_date"]),
		ReceiptType:                stringAttr(attrs["receipt_type"]),
		RequestedAt:                parseDate(attrs["request_date"]),
		InApp:                      []*InAppEntry{},
		Raw:                        stripRawEcho(raw),
	}

	if id, ok := intAttr(attrs["adam_id"]); ok {
		receipt.AdamID = id
	}
	if id, ok := intAttr(attrs["download_id"]); ok {
		receipt.DownloadID = id
	}

	if list, ok := attrs["in_app"].([]any); ok {
		for _, item := range list {
			if itemAttrs := mapAttr(item); itemAttrs != nil {
				receipt.InApp = append(receipt.InApp, newInAppEntry(itemAttrs))
			}
		}
	}

	return receipt
}
