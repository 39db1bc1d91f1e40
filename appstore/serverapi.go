package appstore

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// App Store Server API base URLs.
const (
	ServerAPIProductionURL = "https://api.storekit.itunes.apple.com"
	ServerAPISandboxURL    = "https://api.storekit-sandbox.itunes.apple.com"
)

// Transaction is a decoded App Store Server API transaction, either fetched
// by id or extracted from a signed notification payload. Date fields arrive
// as epoch milliseconds; the At variants are materialized on decode.
type Transaction struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	WebOrderLineItemID    string `json:"webOrderLineItemId"`
	BundleID              string `json:"bundleId"`
	ProductID             string `json:"productId"`
	SubscriptionGroupID   string `json:"subscriptionGroupId"`
	PurchaseDate          int64  `json:"purchaseDate"`
	OriginalPurchaseDate  int64  `json:"originalPurchaseDate"`
	ExpiresDate           int64  `json:"expiresDate"`
	Quantity              int    `json:"quantity"`
	Type                  string `json:"type"`
	InAppOwnershipType    string `json:"inAppOwnershipType"`
	SignedDate            int64  `json:"signedDate"`
	Environment           string `json:"environment"`

	PurchasedAt         time.Time `json:"-"`
	OriginallyPurchased time.Time `json:"-"`
	ExpiresAt           time.Time `json:"-"`

	jwt.RegisteredClaims
}

func (t *Transaction) materializeDates() {
	t.PurchasedAt = time.Unix(t.PurchaseDate/1000, 0).UTC()
	t.OriginallyPurchased = time.Unix(t.OriginalPurchaseDate/1000, 0).UTC()
	t.ExpiresAt = time.Unix(t.ExpiresDate/1000, 0).UTC()
}

// ServerAPIError is an error body returned by the App Store Server API.
type ServerAPIError struct {
	ErrorCode    int64  `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (e *ServerAPIError) Error() string {
	return fmt.Sprintf("appstore: server API error %d: %s", e.ErrorCode, e.ErrorMessage)
}

// ServerAPIConfig configures a ServerAPIClient. The private key is the PEM
// from App Store Connect (PKCS8, EC, or PKCS1).
type ServerAPIConfig struct {
	IssuerID   string
	KeyID      string
	PrivateKey []byte
	BundleID   string
	HTTPClient *http.Client
}

// ServerAPIClient fetches transactions from the App Store Server API,
// authenticating with short-lived signed JWTs. Fetched transactions are
// cached by id.
type ServerAPIClient struct {
	cfg        ServerAPIConfig
	httpClient *http.Client

	mu    sync.RWMutex
	cache map[string]*Transaction
}

// NewServerAPIClient builds a client from cfg.
func NewServerAPIClient(cfg ServerAPIConfig) *ServerAPIClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ServerAPIClient{
		cfg:        cfg,
		httpClient: httpClient,
		cache:      make(map[string]*Transaction),
	}
}

// token signs a one-hour App Store Connect API token.
func (c *ServerAPIClient) token() (string, error) {
	if len(c.cfg.PrivateKey) == 0 {
		return "", errors.New("appstore: server API private key is empty")
	}

	block, _ := pem.Decode(c.cfg.PrivateKey)
	if block == nil {
		return "", errors.New("appstore: failed to decode private key PEM block")
	}

	// App Store Connect issues EC keys in PKCS8 form, but key tooling in the
	// wild re-encodes them, so accept bare EC and PKCS1 too.
	var privateKey any
	privateKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		privateKey, err = x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			privateKey, err = x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return "", fmt.Errorf("appstore: failed to parse private key: %w", err)
			}
		}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": c.cfg.IssuerID,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
		"aud": "appstoreconnect-v1",
		"bid": c.cfg.BundleID,
	}

	var token *jwt.Token
	switch privateKey.(type) {
	case *ecdsa.PrivateKey:
		token = jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	case *rsa.PrivateKey:
		token = jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	default:
		return "", fmt.Errorf("appstore: unsupported private key type %T", privateKey)
	}
	token.Header["kid"] = c.cfg.KeyID

	signed, err := token.SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("appstore: failed to sign server API token: %w", err)
	}
	return signed, nil
}

// TransactionByID fetches a transaction, trying production first and
// falling back to the sandbox environment.
func (c *ServerAPIClient) TransactionByID(ctx context.Context, transactionID string) (*Transaction, error) {
	c.mu.RLock()
	cached, found := c.cache[transactionID]
	c.mu.RUnlock()
	if found {
		return cached, nil
	}

	token, err := c.token()
	if err != nil {
		return nil, err
	}

	transaction, prodErr := c.fetchTransaction(ctx, ServerAPIProductionURL, transactionID, token)
	if prodErr != nil {
		var sandboxErr error
		transaction, sandboxErr = c.fetchTransaction(ctx, ServerAPISandboxURL, transactionID, token)
		if sandboxErr != nil {
			return nil, fmt.Errorf("appstore: transaction lookup failed in both environments: %w", sandboxErr)
		}
	}

	c.mu.Lock()
	c.cache[transactionID] = transaction
	c.mu.Unlock()
	return transaction, nil
}

// fetchTransaction requests one transaction with exponential backoff on
// rate-limit responses only.
func (c *ServerAPIClient) fetchTransaction(ctx context.Context, baseURL, transactionID, token string) (*Transaction, error) {
	const maxRetries = 3
	baseDelay := 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("appstore: context cancelled during retry: %w", ctx.Err())
			}
		}

		transaction, err := c.doTransactionRequest(ctx, baseURL, transactionID, token)
		if err == nil {
			return transaction, nil
		}
		lastErr = err
		if !isRateLimited(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *ServerAPIClient) doTransactionRequest(ctx context.Context, baseURL, transactionID, token string) (*Transaction, error) {
	url := baseURL + "/inApps/v1/transactions/" + transactionID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("appstore: failed to create transaction request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("appstore: transaction request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("appstore: failed to read transaction response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr ServerAPIError
		if err := json.Unmarshal(body, &apiErr); err != nil {
			return nil, fmt.Errorf("appstore: server API returned HTTP %d", resp.StatusCode)
		}
		return nil, &apiErr
	}

	var envelope struct {
		SignedTransactionInfo string `json:"signedTransactionInfo"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("appstore: failed to parse transaction envelope: %w", err)
	}
	if envelope.SignedTransactionInfo == "" {
		return nil, errors.New("appstore: transaction response carried no signed transaction")
	}

	return DecodeTransaction(envelope.SignedTransactionInfo)
}

// DecodeTransaction extracts the claims of an Apple-signed transaction JWS.
// Apple signed the payload; the signature is not re-verified here.
func DecodeTransaction(signed string) (*Transaction, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(signed, &Transaction{})
	if err != nil {
		return nil, fmt.Errorf("appstore: failed to parse signed transaction: %w", err)
	}

	transaction, ok := token.Claims.(*Transaction)
	if !ok {
		return nil, errors.New("appstore: unexpected signed transaction claims")
	}
	transaction.materializeDates()
	return transaction, nil
}

var errRateLimited = errors.New("appstore: server API rate limited the request")

func isRateLimited(err error) bool {
	return errors.Is(err, errRateLimited)
}
