package appstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInAppAttrs() map[string]any {
	return map[string]any{
		"quantity":                      "1",
		"product_id":                    "com.test.in_app.productid",
		"transaction_id":                "1000000375057773",
		"original_transaction_id":       "1000000375057628",
		"purchase_date":                 "2018-02-11 21:00:41 Etc/GMT",
		"purchase_date_ms":              "1518382841000",
		"original_purchase_date":        "2018-02-11 20:55:10 Etc/GMT",
		"original_purchase_date_ms":     "1518382510000",
		"expires_date":                  "2018-02-11 21:05:41 Etc/GMT",
		"expires_date_ms":               "1518383141000",
		"web_order_line_item_id":        "1000000037792871",
		"is_trial_period":               "false",
		"is_in_intro_offer_period":      "false",
		"subscription_group_identifier": "20371337",
	}
}

func TestNewInAppEntry(t *testing.T) {
	entry := newInAppEntry(sampleInAppAttrs())

	require.NotNil(t, entry.Quantity)
	assert.Equal(t, int64(1), *entry.Quantity)
	assert.Equal(t, "com.test.in_app.productid", entry.ProductID)
	assert.Equal(t, "1000000375057773", entry.TransactionID)
	assert.Equal(t, "20371337", entry.SubscriptionGroupIdentifier)

	require.NotNil(t, entry.PurchaseDate)
	assert.Equal(t, time.Date(2018, 2, 11, 21, 0, 41, 0, time.UTC), *entry.PurchaseDate)
	require.NotNil(t, entry.ExpiresDate)
	assert.Equal(t, time.Date(2018, 2, 11, 21, 5, 41, 0, time.UTC), *entry.ExpiresDate)

	assert.False(t, entry.IsTrialPeriod)
	assert.False(t, entry.IsInIntroOfferPeriod)
	assert.False(t, entry.IsUpgraded)
	assert.Nil(t, entry.CancellationDate)
	assert.Nil(t, entry.CancellationReason)
}

func TestInAppEntryOriginal(t *testing.T) {
	t.Run("BothFieldsAbsent", func(t *testing.T) {
		entry := newInAppEntry(map[string]any{
			"transaction_id": "1000000375057628",
		})
		assert.Nil(t, entry.Original)
	})

	t.Run("TransactionIDOnly", func(t *testing.T) {
		entry := newInAppEntry(map[string]any{
			"transaction_id":          "1000000375057773",
			"original_transaction_id": "1000000375057628",
		})
		require.NotNil(t, entry.Original)
		assert.Equal(t, "1000000375057628", entry.Original.TransactionID)
		assert.Nil(t, entry.Original.PurchaseDate)
	})

	t.Run("PurchaseDateOnly", func(t *testing.T) {
		entry := newInAppEntry(map[string]any{
			"original_purchase_date": "2018-02-11 20:55:10 Etc/GMT",
		})
		require.NotNil(t, entry.Original)
		assert.Empty(t, entry.Original.TransactionID)
		require.NotNil(t, entry.Original.PurchaseDate)
		assert.Equal(t, time.Date(2018, 2, 11, 20, 55, 10, 0, time.UTC), *entry.Original.PurchaseDate)
	})

	t.Run("OnlyTheTwoFieldsCarryOver", func(t *testing.T) {
		entry := newInAppEntry(sampleInAppAttrs())
		require.NotNil(t, entry.Original)
		assert.Equal(t, "1000000375057628", entry.Original.TransactionID)
		require.NotNil(t, entry.Original.PurchaseDate)
		assert.Equal(t, time.Date(2018, 2, 11, 20, 55, 10, 0, time.UTC), *entry.Original.PurchaseDate)
		// The partial entry must not inherit anything else.
		assert.Empty(t, entry.Original.ProductID)
		assert.Nil(t, entry.Original.Quantity)
		assert.Nil(t, entry.Original.ExpiresDate)
		assert.Nil(t, entry.Original.Original)
	})
}

func TestInAppEntryFlags(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  bool
	}{
		{"AbsentDefaultsFalse", nil, false},
		{"StringTrue", "true", true},
		{"StringFalse", "false", false},
		{"NativeTrue", true, true},
		{"NativeFalse", false, false},
		{"StringOne", "1", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			attrs := map[string]any{"transaction_id": "t1"}
			if tc.value != nil {
				attrs["is_trial_period"] = tc.value
				attrs["is_in_intro_offer_period"] = tc.value
				attrs["is_upgraded"] = tc.value
			}
			entry := newInAppEntry(attrs)
			assert.Equal(t, tc.want, entry.IsTrialPeriod)
			assert.Equal(t, tc.want, entry.IsInIntroOfferPeriod)
			assert.Equal(t, tc.want, entry.IsUpgraded)
		})
	}
}

func TestInAppEntryQuantityAbsent(t *testing.T) {
	entry := newInAppEntry(map[string]any{"product_id": "p"})
	assert.Nil(t, entry.Quantity)

	entry = newInAppEntry(map[string]any{"quantity": "garbage"})
	assert.Nil(t, entry.Quantity)
}

func TestInAppEntryCancellation(t *testing.T) {
	entry := newInAppEntry(map[string]any{
		"transaction_id":      "1000000375057773",
		"cancellation_date":   "2018-02-12 10:00:00 Etc/GMT",
		"cancellation_reason": "1",
	})
	require.NotNil(t, entry.CancellationDate)
	require.NotNil(t, entry.CancellationReason)
	assert.Equal(t, int64(1), *entry.CancellationReason)

	// CancellationReason is the documented mutable exception.
	reason := int64(0)
	entry.CancellationReason = &reason
	assert.Equal(t, int64(0), *entry.CancellationReason)
}

func TestInAppListAttr(t *testing.T) {
	t.Run("SingleObjectWrapped", func(t *testing.T) {
		entries := inAppListAttr(map[string]any{"transaction_id": "t1"})
		require.Len(t, entries, 1)
		assert.Equal(t, "t1", entries[0].TransactionID)
	})

	t.Run("AbsentYieldsEmptyNotNil", func(t *testing.T) {
		entries := inAppListAttr(nil)
		require.NotNil(t, entries)
		assert.Empty(t, entries)
	})

	t.Run("OrderPreserved", func(t *testing.T) {
		entries := inAppListAttr([]any{
			map[string]any{"transaction_id": "t1"},
			map[string]any{"transaction_id": "t2"},
			map[string]any{"transaction_id": "t3"},
		})
		require.Len(t, entries, 3)
		assert.Equal(t, "t1", entries[0].TransactionID)
		assert.Equal(t, "t2", entries[1].TransactionID)
		assert.Equal(t, "t3", entries[2].TransactionID)
	})
}
