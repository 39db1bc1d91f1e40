package entitlement

import (
	"Entitle/appstore"
	"Entitle/common"
	"Entitle/postgres"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Product types
const (
	ProductTypeSubscription = "subscription"
	ProductTypeNonRenewing  = "non_renewing"
)

type Service struct {
	db           *pgxpool.Pool
	verifier     *appstore.Client
	serverAPI    *appstore.ServerAPIClient
	sharedSecret string
	bundleID     string
}

type Config struct {
	SharedSecret string
	BundleID     string
}

// RedeemRequest contains the data needed to redeem a purchase into an
// entitlement
type RedeemRequest struct {
	UserID        int         `json:"user_id"`
	ReceiptData   string      `json:"receipt_data,omitempty"`
	TransactionID interface{} `json:"transaction_id,omitempty"` // Can be number or string
	Platform      string      `json:"platform"`
}

// RedeemResponse contains the result of a redemption attempt
type RedeemResponse struct {
	Success     bool             `json:"success"`
	Message     string           `json:"message,omitempty"`
	Entitlement *EntitlementInfo `json:"entitlement,omitempty"`
}

type EntitlementInfo struct {
	IsActive         bool    `json:"is_active"`
	Tier             string  `json:"tier"`
	EntitlementStart *string `json:"entitlement_start,omitempty"`
	EntitlementEnd   *string `json:"entitlement_end,omitempty"`
	AutoRenewStatus  bool    `json:"auto_renew_status"`
}

type Product struct {
	ID           int    `json:"id"`
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	Tier         string `json:"tier"`
	Platform     string `json:"platform"`
	DurationDays int    `json:"duration_days"`
	Type         string `json:"type"`
}

// grant captures everything needed to upsert one entitlement row.
type grant struct {
	start                 time.Time
	end                   time.Time
	transactionID         string
	originalTransactionID string
	environment           string
	latestReceipt         string
}

func NewService(db *pgxpool.Pool, verifier *appstore.Client, serverAPI *appstore.ServerAPIClient, cfg Config) *Service {
	return &Service{
		db:           db,
		verifier:     verifier,
		serverAPI:    serverAPI,
		sharedSecret: cfg.SharedSecret,
		bundleID:     cfg.BundleID,
	}
}

// GetEntitlement returns the user's current entitlement, lapsing it first if
// the end date has passed but the row is still marked active.
func (s *Service) GetEntitlement(ctx context.Context, userID int) (*EntitlementInfo, error) {
	logger := common.Logger(ctx)

	var info EntitlementInfo
	var startTime, endTime *time.Time
	var needsUpdate bool

	err := s.db.QueryRow(ctx, `
		SELECT
			COALESCE(is_active, false),
			COALESCE(tier, 'none'),
			entitlement_start,
			entitlement_end,
			COALESCE(auto_renew_status, false)
		FROM user_entitlements
		WHERE user_id = $1
	`, userID).Scan(&info.IsActive, &info.Tier, &startTime, &endTime, &info.AutoRenewStatus)

	if err != nil {
		if err == pgx.ErrNoRows {
			logger.Printf("No entitlement found for user %d, returning defaults", userID)
			return &EntitlementInfo{IsActive: false, Tier: "none"}, nil
		}
		logger.Printf("Error fetching entitlement for user %d: %v", userID, err)
		return nil, err
	}

	if info.IsActive && endTime != nil && time.Now().After(*endTime) {
		logger.Printf("Entitlement for user %d expired at %s but is still marked active, lapsing",
			userID, endTime.Format(time.RFC3339))
		info.IsActive = false
		needsUpdate = true
	}

	if startTime != nil {
		startStr := common.FormatTimestamp(*startTime)
		info.EntitlementStart = &startStr
	}
	if endTime != nil {
		endStr := common.FormatTimestamp(*endTime)
		info.EntitlementEnd = &endStr
	}

	if needsUpdate {
		_, err := s.db.Exec(ctx, `
			UPDATE user_entitlements
			SET is_active = false
			WHERE user_id = $1
		`, userID)
		if err != nil {
			logger.Printf("Error lapsing entitlement for user %d: %v", userID, err)
			// Still return the entitlement info
		}
	}

	return &info, nil
}

// HasActiveEntitlement reports whether the user currently holds an active,
// unexpired entitlement.
func (s *Service) HasActiveEntitlement(ctx context.Context, userID int) (bool, error) {
	logger := common.Logger(ctx)

	var isActive bool
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(is_active, false)
		FROM user_entitlements
		WHERE user_id = $1 AND is_active = true
		AND (entitlement_end IS NULL OR entitlement_end > NOW())
	`, userID).Scan(&isActive)

	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		logger.Printf("Error checking entitlement status for user %d: %v", userID, err)
		return false, err
	}

	return isActive, nil
}

// RedeemReceipt verifies an App Store purchase and grants the matching
// entitlement. Purchases arriving as a transaction id go through the App
// Store Server API; base64 receipt data goes through verifyReceipt.
func (s *Service) RedeemReceipt(ctx context.Context, req *RedeemRequest) (*RedeemResponse, error) {
	logger := common.Logger(ctx)

	if req.Platform != "apple" {
		return nil, fmt.Errorf("unsupported platform: %s", req.Platform)
	}

	transactionID := extractTransactionID(req)
	if transactionID != "" && s.serverAPI != nil {
		logger.Printf("Redeeming transaction %s for user %d via server API", transactionID, req.UserID)
		return s.redeemTransaction(ctx, req.UserID, transactionID)
	}

	if req.ReceiptData == "" {
		return nil, errors.New("missing transaction_id or receipt_data")
	}

	logger.Printf("Redeeming receipt for user %d via verification endpoint", req.UserID)
	return s.redeemVerifiedReceipt(ctx, req.UserID, req.ReceiptData)
}

// extractTransactionID normalizes the loosely typed transaction_id field.
// Numeric receipt_data is treated as a transaction id too.
func extractTransactionID(req *RedeemRequest) string {
	switch v := req.TransactionID.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatInt(int64(v), 10)
	}
	if _, err := strconv.ParseInt(req.ReceiptData, 10, 64); err == nil && req.ReceiptData != "" {
		return req.ReceiptData
	}
	return ""
}

func (s *Service) redeemTransaction(ctx context.Context, userID int, transactionID string) (*RedeemResponse, error) {
	logger := common.Logger(ctx)

	transaction, err := s.serverAPI.TransactionByID(ctx, transactionID)
	if err != nil {
		logger.Printf("Failed to fetch transaction %s: %v", transactionID, err)
		return &RedeemResponse{
			Success: false,
			Message: "Transaction verification failed",
		}, fmt.Errorf("transaction verification failed: %w", err)
	}

	if s.bundleID != "" && transaction.BundleID != "" && transaction.BundleID != s.bundleID {
		logger.Printf("Transaction %s belongs to bundle %s, expected %s",
			transactionID, transaction.BundleID, s.bundleID)
		return &RedeemResponse{
			Success: false,
			Message: "Transaction belongs to another app",
		}, fmt.Errorf("bundle mismatch: %s", transaction.BundleID)
	}

	product, err := s.lookupProduct(ctx, transaction.ProductID)
	if err != nil {
		logger.Printf("Product not found: %s", transaction.ProductID)
		return &RedeemResponse{
			Success: false,
			Message: "Product not recognized",
		}, err
	}

	g := grant{
		start:                 transaction.PurchasedAt,
		end:                   transaction.ExpiresAt,
		transactionID:         transaction.TransactionID,
		originalTransactionID: transaction.OriginalTransactionID,
		environment:           transaction.Environment,
	}
	if transaction.ExpiresDate == 0 {
		g.end = g.start.AddDate(0, 0, product.DurationDays)
	}

	return s.finishRedeem(ctx, userID, product, g)
}

func (s *Service) redeemVerifiedReceipt(ctx context.Context, userID int, receiptData string) (*RedeemResponse, error) {
	logger := common.Logger(ctx)

	resp, err := s.verifier.Verify(ctx, receiptData, nil)
	if err != nil {
		logger.Printf("Receipt verification failed for user %d: %v", userID, err)
		return &RedeemResponse{
			Success: false,
			Message: "Receipt verification failed",
		}, fmt.Errorf("receipt verification failed: %w", err)
	}

	entry := latestEntry(resp)
	if entry == nil {
		logger.Printf("No purchase entries found in receipt for user %d", userID)
		return &RedeemResponse{
			Success: false,
			Message: "No purchase details found in receipt",
		}, errors.New("no purchase entries in receipt")
	}

	product, err := s.lookupProduct(ctx, entry.ProductID)
	if err != nil {
		logger.Printf("Product not found: %s", entry.ProductID)
		return &RedeemResponse{
			Success: false,
			Message: "Product not recognized",
		}, err
	}

	g := grant{
		transactionID: entry.TransactionID,
		environment:   resp.Environment,
		latestReceipt: resp.LatestReceipt,
	}
	if entry.Original != nil {
		g.originalTransactionID = entry.Original.TransactionID
	}
	if entry.PurchaseDate != nil {
		g.start = *entry.PurchaseDate
	} else {
		g.start = time.Now().UTC()
	}
	if entry.ExpiresDate != nil {
		g.end = *entry.ExpiresDate
	} else {
		g.end = g.start.AddDate(0, 0, product.DurationDays)
	}

	return s.finishRedeem(ctx, userID, product, g)
}

// latestEntry picks the most recent transaction out of a verification
// response: the last latest_receipt_info element, falling back to the last
// in_app entry.
func latestEntry(resp *appstore.VerificationResponse) *appstore.InAppEntry {
	if len(resp.LatestReceiptInfo) > 0 {
		return resp.LatestReceiptInfo[len(resp.LatestReceiptInfo)-1]
	}
	if resp.Receipt != nil && len(resp.Receipt.InApp) > 0 {
		return resp.Receipt.InApp[len(resp.Receipt.InApp)-1]
	}
	return nil
}

func (s *Service) lookupProduct(ctx context.Context, productID string) (*Product, error) {
	var product Product
	err := s.db.QueryRow(ctx, `
		SELECT id, product_id, name, tier, platform, duration_days, type
		FROM entitlement_products
		WHERE product_id = $1 AND platform = 'apple'
	`, productID).Scan(
		&product.ID,
		&product.ProductID,
		&product.Name,
		&product.Tier,
		&product.Platform,
		&product.DurationDays,
		&product.Type,
	)
	if err != nil {
		return nil, fmt.Errorf("product not found: %s", productID)
	}
	return &product, nil
}

func (s *Service) finishRedeem(ctx context.Context, userID int, product *Product, g grant) (*RedeemResponse, error) {
	logger := common.Logger(ctx)

	err := postgres.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO user_entitlements
			(user_id, is_active, tier, entitlement_start, entitlement_end,
			latest_receipt, transaction_id, original_transaction_id,
			environment, auto_renew_status, platform)
			VALUES
			($1, true, $2, $3, $4, $5, $6, $7, $8, true, 'apple')
			ON CONFLICT (user_id)
			DO UPDATE SET
				is_active = true,
				tier = EXCLUDED.tier,
				entitlement_start = EXCLUDED.entitlement_start,
				entitlement_end = EXCLUDED.entitlement_end,
				latest_receipt = EXCLUDED.latest_receipt,
				transaction_id = EXCLUDED.transaction_id,
				original_transaction_id = EXCLUDED.original_transaction_id,
				environment = EXCLUDED.environment,
				platform = 'apple'
		`, userID, product.Tier, g.start, g.end, g.latestReceipt,
			g.transactionID, g.originalTransactionID, g.environment)
		return err
	})
	if err != nil {
		return &RedeemResponse{
			Success: false,
			Message: "Failed to save entitlement",
		}, fmt.Errorf("failed to save entitlement: %w", err)
	}

	entitlement, err := s.GetEntitlement(ctx, userID)
	if err != nil {
		logger.Printf("Warning: failed to get updated entitlement: %v", err)
	}

	logger.Printf("Granted %s entitlement to user %d until %s",
		product.Tier, userID, g.end.Format(time.RFC3339))

	return &RedeemResponse{
		Success:     true,
		Message:     fmt.Sprintf("Successfully redeemed %s entitlement", product.Tier),
		Entitlement: entitlement,
	}, nil
}

// GetProducts returns the redeemable products, optionally filtered by
// platform and type.
func (s *Service) GetProducts(ctx context.Context, platform, productType string) ([]Product, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, product_id, name, tier, platform, duration_days, type
		FROM entitlement_products
		WHERE
			($1 = '' OR platform = $1)
			AND ($2 = '' OR type = $2)
		ORDER BY
			CASE
				WHEN tier = 'basic' THEN 1
				WHEN tier = 'standard' THEN 2
				WHEN tier = 'premium' THEN 3
				ELSE 4
			END
	`, platform, productType)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var product Product
		err := rows.Scan(
			&product.ID,
			&product.ProductID,
			&product.Name,
			&product.Tier,
			&product.Platform,
			&product.DurationDays,
			&product.Type,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product rows: %w", err)
	}

	return products, nil
}
