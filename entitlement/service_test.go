package entitlement

import (
	"Entitle/appstore"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanNotification(t *testing.T) {
	cases := []struct {
		notificationType string
		want             planAction
	}{
		{appstore.NotificationInitialBuy, planExtend},
		{appstore.NotificationRenewal, planExtend},
		{appstore.NotificationDidRenew, planExtend},
		{appstore.NotificationDidRecover, planExtend},
		{appstore.NotificationInteractiveRenewal, planExtend},
		{appstore.NotificationCancel, planRevoke},
		{appstore.NotificationRefund, planRevoke},
		{appstore.NotificationDidFailToRenew, planLapse},
		{appstore.NotificationDidChangeRenewalStatus, planRecordStatus},
		{appstore.NotificationDidChangeRenewalPref, planRecordStatus},
		{appstore.NotificationPriceIncreaseConsent, planRecordStatus},
		{"CONSUMPTION_REQUEST", planNone},
		{"", planNone},
	}

	for _, tc := range cases {
		t.Run(tc.notificationType, func(t *testing.T) {
			assert.Equal(t, tc.want, planNotification(tc.notificationType))
		})
	}
}

func TestLatestEntry(t *testing.T) {
	entryAt := func(id string) *appstore.InAppEntry {
		return &appstore.InAppEntry{TransactionID: id}
	}

	t.Run("PrefersLatestReceiptInfo", func(t *testing.T) {
		resp := &appstore.VerificationResponse{
			LatestReceiptInfo: []*appstore.InAppEntry{entryAt("t1"), entryAt("t2")},
			Receipt: &appstore.Receipt{
				InApp: []*appstore.InAppEntry{entryAt("t0")},
			},
		}
		entry := latestEntry(resp)
		require.NotNil(t, entry)
		assert.Equal(t, "t2", entry.TransactionID)
	})

	t.Run("FallsBackToInApp", func(t *testing.T) {
		resp := &appstore.VerificationResponse{
			LatestReceiptInfo: []*appstore.InAppEntry{},
			Receipt: &appstore.Receipt{
				InApp: []*appstore.InAppEntry{entryAt("t0"), entryAt("t1")},
			},
		}
		entry := latestEntry(resp)
		require.NotNil(t, entry)
		assert.Equal(t, "t1", entry.TransactionID)
	})

	t.Run("NoEntries", func(t *testing.T) {
		resp := &appstore.VerificationResponse{
			LatestReceiptInfo: []*appstore.InAppEntry{},
			Receipt:           &appstore.Receipt{InApp: []*appstore.InAppEntry{}},
		}
		assert.Nil(t, latestEntry(resp))
	})
}

func TestExtractTransactionID(t *testing.T) {
	cases := []struct {
		name string
		req  RedeemRequest
		want string
	}{
		{"String", RedeemRequest{TransactionID: "2000000123456789"}, "2000000123456789"},
		{"Number", RedeemRequest{TransactionID: float64(2000000123456789)}, "2000000123456789"},
		{"NumericReceiptData", RedeemRequest{ReceiptData: "2000000123456789"}, "2000000123456789"},
		{"Base64ReceiptData", RedeemRequest{ReceiptData: "MIIT6gYJKoZIhvcNAQcCoIIT2z=="}, ""},
		{"Empty", RedeemRequest{}, ""},
		{"StringWinsOverReceiptData", RedeemRequest{TransactionID: "t1", ReceiptData: "12345"}, "t1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractTransactionID(&tc.req))
		})
	}
}

func TestVerifyNotificationSecret(t *testing.T) {
	t.Run("Match", func(t *testing.T) {
		s := &Service{sharedSecret: "secret"}
		assert.True(t, s.VerifyNotificationSecret(&appstore.SubscriptionNotification{Password: "secret"}))
	})

	t.Run("Mismatch", func(t *testing.T) {
		s := &Service{sharedSecret: "secret"}
		assert.False(t, s.VerifyNotificationSecret(&appstore.SubscriptionNotification{Password: "wrong"}))
		assert.False(t, s.VerifyNotificationSecret(&appstore.SubscriptionNotification{}))
	})

	t.Run("NoConfiguredSecretAcceptsAll", func(t *testing.T) {
		s := &Service{}
		assert.True(t, s.VerifyNotificationSecret(&appstore.SubscriptionNotification{Password: "anything"}))
	})
}

func TestGrantEndFallback(t *testing.T) {
	// A non-renewing product has no expiry in the transaction; the grant
	// runs for the product's configured duration instead.
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	product := &Product{DurationDays: 30}

	g := grant{start: start}
	g.end = g.start.AddDate(0, 0, product.DurationDays)
	assert.Equal(t, time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC), g.end)
}
