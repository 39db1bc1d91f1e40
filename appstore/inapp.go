package appstore

import "time"

// InAppEntry is one purchase or renewal transaction line from a receipt's
// in_app or latest_receipt_info collection.
//
// Field documentation follows
// https://developer.apple.com/documentation/appstorereceipts/responsebody/receipt/in_app
type InAppEntry struct {
	// Quantity is the number of items purchased. Nil when the field is
	// absent; absence is not the same as zero.
	Quantity *int64

	// ProductID is the product identifier configured in App Store Connect.
	ProductID string

	// TransactionID identifies this individual transaction.
	TransactionID string

	// PurchaseDate is when the App Store charged the user's account.
	PurchaseDate *time.Time

	// ExpiresDate is when a subscription expires or renews. Only present for
	// auto-renewable subscriptions.
	ExpiresDate *time.Time

	// CancellationDate is when Apple customer support canceled the
	// transaction. Only present for refunded transactions.
	CancellationDate *time.Time

	// CancellationReason is 1 when the customer canceled due to a perceived
	// issue in the app, 0 otherwise. Callers may set this after construction;
	// it is the one deliberate exception to the entries being immutable.
	CancellationReason *int64

	// AppItemID identifies the application that created the transaction.
	// Production-only; not present for sandbox receipts or Mac apps.
	AppItemID string

	// VersionExternalIdentifier is an arbitrary revision number of the app.
	// Not present for sandbox receipts.
	VersionExternalIdentifier string

	// IsTrialPeriod reports whether the subscription is in its free trial.
	IsTrialPeriod bool

	// IsInIntroOfferPeriod reports whether the subscription is in an
	// introductory price period.
	IsInIntroOfferPeriod bool

	// IsUpgraded reports that the system canceled the subscription because
	// the user upgraded. Only present on upgrade transactions.
	IsUpgraded bool

	// PromotionalOfferID is the identifier of the subscription offer the
	// user redeemed, if any.
	PromotionalOfferID string

	// SubscriptionGroupIdentifier is the subscription group this
	// subscription belongs to.
	SubscriptionGroupIdentifier string

	// Original is a partial entry carrying only the original transaction id
	// and original purchase date of the transaction this one restores or
	// renews. Nil when the source has neither field.
	Original *InAppEntry
}

// newInAppEntry builds an entry from one purchase record's attributes.
// Every field decodes leniently: a malformed value reads as absent, and flag
// fields default to false.
func newInAppEntry(attrs map[string]any) *InAppEntry {
	entry := &InAppEntry{
		Quantity:                    optionalIntAttr(attrs["quantity"]),
		ProductID:                   stringAttr(attrs["product_id"]),
		TransactionID:               stringAttr(attrs["transaction_id"]),
		PurchaseDate:                parseDate(attrs["purchase_date"]),
		ExpiresDate:                 parseDate(attrs["expires_date"]),
		CancellationDate:            parseDate(attrs["cancellation_date"]),
		CancellationReason:          optionalIntAttr(attrs["cancellation_reason"]),
		AppItemID:                   stringAttr(attrs["app_item_id"]),
		VersionExternalIdentifier:   stringAttr(attrs["version_external_identifier"]),
		IsTrialPeriod:               truthyAttr(attrs["is_trial_period"]),
		IsInIntroOfferPeriod:        truthyAttr(attrs["is_in_intro_offer_period"]),
		IsUpgraded:                  truthyAttr(attrs["is_upgraded"]),
		PromotionalOfferID:          stringAttr(attrs["promotional_offer_id"]),
		SubscriptionGroupIdentifier: stringAttr(attrs["subscription_group_identifier"]),
	}

	// The original-transaction back-reference is constructed only when the
	// source actually carries one of its two fields; a zero-valued stand-in
	// would be indistinguishable from a real (empty) original transaction.
	origID, hasOrigID := attrs["original_transaction_id"]
	origDate, hasOrigDate := attrs["original_purchase_date"]
	if hasOrigID || hasOrigDate {
		entry.Original = newInAppEntry(map[string]any{
			"transaction_id": origID,
			"purchase_date":  origDate,
		})
	}

	return entry
}

// inAppListAttr decodes a collection of purchase records. Apple returns
// either an array or, in some notification shapes, a single bare object;
// both decode to a slice, order preserved. An absent key yields an empty
// slice, never nil.
func inAppListAttr(v any) []*InAppEntry {
	entries := []*InAppEntry{}
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			if attrs := mapAttr(item); attrs != nil {
				entries = append(entries, newInAppEntry(attrs))
			}
		}
	case map[string]any:
		entries = append(entries, newInAppEntry(list))
	}
	return entries
}
