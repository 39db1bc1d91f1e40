package appstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerificationResponseSuccess(t *testing.T) {
	doc := decodeDoc(t, sampleVerifyResponse)
	resp, err := ParseVerificationResponse(doc)
	require.NoError(t, err)

	assert.Equal(t, 0, resp.Status)
	assert.Equal(t, "Production", resp.Environment)
	require.NotNil(t, resp.Receipt)
	assert.Equal(t, "com.test.app", resp.Receipt.BundleID)
	require.NotNil(t, resp.LatestReceiptInfo)
	assert.Empty(t, resp.LatestReceiptInfo)
	require.NotNil(t, resp.PendingRenewalInfo)
	assert.Empty(t, resp.PendingRenewalInfo)
	assert.False(t, resp.IsSubscription())
}

func TestParseVerificationResponseExpiredSubscription(t *testing.T) {
	// 21006 is a success: the receipt is valid, the subscription lapsed.
	resp, err := ParseVerificationResponse(map[string]any{
		"status":      float64(21006),
		"environment": "Production",
		"receipt":     map[string]any{"bundle_id": "com.test.app"},
	})
	require.NoError(t, err)
	assert.Equal(t, 21006, resp.Status)
	require.NotNil(t, resp.Receipt)
}

func TestParseVerificationResponseFailure(t *testing.T) {
	raw := map[string]any{"status": float64(21000)}
	resp, err := ParseVerificationResponse(raw)
	assert.Nil(t, resp)

	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 21000, verr.Code)
	assert.False(t, verr.Retryable)
	assert.Equal(t, raw, verr.Raw)
	assert.Contains(t, verr.Error(), "21000")
	assert.Contains(t, verr.Error(), "could not read the JSON object")
}

func TestParseVerificationResponseRetryable(t *testing.T) {
	_, err := ParseVerificationResponse(map[string]any{
		"status":       float64(21005),
		"is-retryable": true,
	})
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 21005, verr.Code)
	assert.True(t, verr.Retryable)
}

func TestParseVerificationResponseMissingStatus(t *testing.T) {
	_, err := ParseVerificationResponse(map[string]any{
		"receipt": map[string]any{"bundle_id": "com.test.app"},
	})
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, verr.Code)
}

func TestParseVerificationResponseSubscription(t *testing.T) {
	resp, err := ParseVerificationResponse(map[string]any{
		"status":         float64(0),
		"environment":    "Sandbox",
		"receipt":        map[string]any{"bundle_id": "com.test.app"},
		"latest_receipt": "base64-latest-receipt",
		"latest_receipt_info": []any{
			map[string]any{"transaction_id": "1000000375057773", "product_id": "com.test.monthly"},
		},
		"pending_renewal_info": []any{
			map[string]any{
				"auto_renew_status":          "1",
				"auto_renew_product_id":      "com.test.monthly",
				"product_id":                 "com.test.monthly",
				"original_transaction_id":    "1000000375057628",
				"is_in_billing_retry_period": "0",
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "base64-latest-receipt", resp.LatestReceipt)
	require.Len(t, resp.LatestReceiptInfo, 1)
	assert.Equal(t, "1000000375057773", resp.LatestReceiptInfo[0].TransactionID)
	require.Len(t, resp.PendingRenewalInfo, 1)
	assert.True(t, resp.PendingRenewalInfo[0].AutoRenewStatus)
	assert.False(t, resp.PendingRenewalInfo[0].IsInBillingRetryPeriod)
	assert.True(t, resp.IsSubscription())
}

func TestParseVerificationResponseSingleLatestInfoObject(t *testing.T) {
	// Older responses carry latest_receipt_info as a single object.
	resp, err := ParseVerificationResponse(map[string]any{
		"status": float64(0),
		"latest_receipt_info": map[string]any{
			"transaction_id": "1000000375057773",
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.LatestReceiptInfo, 1)
	assert.Equal(t, "1000000375057773", resp.LatestReceiptInfo[0].TransactionID)
}

func TestParseVerificationResponseReceiptFallback(t *testing.T) {
	t.Run("LatestReceiptObject", func(t *testing.T) {
		// Notification-style documents carry the receipt under latest_receipt.
		resp, err := ParseVerificationResponse(map[string]any{
			"status": float64(0),
			"latest_receipt": map[string]any{
				"bundle_id": "com.test.app",
			},
		})
		require.NoError(t, err)
		require.NotNil(t, resp.Receipt)
		assert.Equal(t, "com.test.app", resp.Receipt.BundleID)
		// The string accessor must not pick up the object form.
		assert.Empty(t, resp.LatestReceipt)
	})

	t.Run("LatestReceiptString", func(t *testing.T) {
		resp, err := ParseVerificationResponse(map[string]any{
			"status":         float64(0),
			"latest_receipt": "base64-data",
		})
		require.NoError(t, err)
		assert.Nil(t, resp.Receipt)
		assert.Equal(t, "base64-data", resp.LatestReceipt)
	})
}

func TestParseVerificationResponseCancellation(t *testing.T) {
	resp, err := ParseVerificationResponse(map[string]any{
		"status":                  float64(0),
		"cancellation_date":       "2018-02-12 10:00:00 Etc/GMT",
		"original_transaction_id": "1000000375057628",
		"notification_type":       NotificationCancel,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.CancellationDate)
	assert.Equal(t, time.Date(2018, 2, 12, 10, 0, 0, 0, time.UTC), *resp.CancellationDate)
	assert.Equal(t, "1000000375057628", resp.OriginalTransactionID)
	assert.Equal(t, NotificationCancel, resp.NotificationType)
}
