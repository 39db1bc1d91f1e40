package appstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Well-known verification endpoints.
const (
	ProductionURL = "https://buy.itunes.apple.com/verifyReceipt"
	SandboxURL    = "https://sandbox.itunes.apple.com/verifyReceipt"
)

// Environment selects which verification endpoint a request is sent to
// first. The 21007/21008 status codes can still redirect a single request to
// the other environment.
type Environment int

const (
	Production Environment = iota
	Sandbox
)

func (e Environment) String() string {
	if e == Sandbox {
		return "Sandbox"
	}
	return "Production"
}

// Environment-redirect statuses: the receipt is valid but was sent to the
// wrong endpoint.
const (
	statusSandboxReceipt    = 21007
	statusProductionReceipt = 21008
)

// maxVerifyAttempts bounds the redirect loop. Apple never emits both
// redirect codes for one well-formed receipt, but a misbehaving endpoint
// must not be able to keep the client bouncing.
const maxVerifyAttempts = 4

// Config configures a Client. The zero value has no endpoints configured
// and every Verify call will fail with ErrNoEndpoint; most callers start
// from DefaultConfig.
type Config struct {
	// Environment selects the endpoint tried first.
	Environment Environment

	// ProductionURL and SandboxURL are the verification endpoints. An empty
	// URL means that environment is not configured.
	ProductionURL string
	SandboxURL    string

	// SharedSecret is the app's shared secret, sent as the password field.
	// Required for auto-renewable subscription receipts.
	SharedSecret string

	// ExcludeOldTransactions asks the endpoint to return only the latest
	// renewal transaction per subscription.
	ExcludeOldTransactions bool

	// HTTPClient is the transport used for requests. Defaults to a client
	// with a 30 second timeout.
	HTTPClient *http.Client

	// RequestTimeout bounds each verification attempt. Zero means no
	// per-attempt deadline beyond the transport's own.
	RequestTimeout time.Duration

	// RateLimit throttles outbound verification calls when set.
	RateLimit *rate.Limiter
}

// DefaultConfig returns a Config pointed at the well-known App Store
// endpoints, trying env first.
func DefaultConfig(env Environment) Config {
	return Config{
		Environment:   env,
		ProductionURL: ProductionURL,
		SandboxURL:    SandboxURL,
	}
}

// Options overrides per-call settings of Verify and Valid.
type Options struct {
	// SharedSecret replaces the client's configured shared secret.
	SharedSecret string

	// ExcludeOldTransactions asks the endpoint to return only the latest
	// renewal transaction per subscription.
	ExcludeOldTransactions bool

	// Timeout bounds this call's attempts, replacing Config.RequestTimeout.
	Timeout time.Duration
}

// Client verifies receipts against the App Store verification endpoint.
// A Client is immutable after construction and safe for concurrent use.
type Client struct {
	env           Environment
	productionURL string
	sandboxURL    string
	sharedSecret  string
	excludeOld    bool
	httpClient    *http.Client
	timeout       time.Duration
	limiter       *rate.Limiter
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		env:           cfg.Environment,
		productionURL: cfg.ProductionURL,
		sandboxURL:    cfg.SandboxURL,
		sharedSecret:  cfg.SharedSecret,
		excludeOld:    cfg.ExcludeOldTransactions,
		httpClient:    httpClient,
		timeout:       cfg.RequestTimeout,
		limiter:       cfg.RateLimit,
	}
}

func (c *Client) endpoint(env Environment) string {
	if env == Sandbox {
		return c.sandboxURL
	}
	return c.productionURL
}

// verifyRequest is the verification endpoint's request body.
type verifyRequest struct {
	ReceiptData            string `json:"receipt-data"`
	Password               string `json:"password,omitempty"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions,omitempty"`
}

// Verify sends receiptData for verification and returns the decoded
// response.
//
// A 21007 status switches the request to the sandbox endpoint and a 21008
// status to the production endpoint, each at most once per direction; any
// other non-success status returns a *VerificationError. Transport timeouts
// return a *TimeoutError and are never retried. With no endpoint configured
// for the starting environment, Verify fails with ErrNoEndpoint before any
// network I/O.
func (c *Client) Verify(ctx context.Context, receiptData string, opts *Options) (*VerificationResponse, error) {
	env := c.env
	if c.endpoint(env) == "" {
		return nil, ErrNoEndpoint
	}

	payload := verifyRequest{
		ReceiptData:            receiptData,
		Password:               c.sharedSecret,
		ExcludeOldTransactions: c.excludeOld,
	}
	timeout := c.timeout
	if opts != nil {
		if opts.SharedSecret != "" {
			payload.Password = opts.SharedSecret
		}
		if opts.ExcludeOldTransactions {
			payload.ExcludeOldTransactions = true
		}
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("appstore: failed to marshal verification request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxVerifyAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("appstore: rate limit wait failed: %w", err)
			}
		}

		doc, err := c.send(ctx, c.endpoint(env), body, timeout)
		if err != nil {
			return nil, err
		}

		resp, err := ParseVerificationResponse(doc)
		if err == nil {
			return resp, nil
		}
		var verr *VerificationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		lastErr = err

		var next Environment
		switch verr.Code {
		case statusSandboxReceipt:
			next = Sandbox
		case statusProductionReceipt:
			next = Production
		default:
			return nil, err
		}
		if next == env || c.endpoint(next) == "" {
			// Already on the endpoint the status points at (or the other
			// environment is not configured): the redirect cannot help.
			return nil, err
		}
		env = next
	}

	return nil, lastErr
}

// Valid is the lenient form of Verify for callers that only need a yes/no
// answer: any failure, including rejected receipts and timeouts, reads as
// false. Use Verify to distinguish failure causes.
func (c *Client) Valid(ctx context.Context, receiptData string, opts *Options) bool {
	_, err := c.Verify(ctx, receiptData, opts)
	return err == nil
}

// send performs one POST to the verification endpoint and decodes the
// response body into a raw document.
func (c *Client) send(ctx context.Context, url string, body []byte, timeout time.Duration) (map[string]any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("appstore: failed to create verification request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{err: err}
		}
		return nil, fmt.Errorf("appstore: verification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("appstore: verification endpoint returned HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{err: err}
		}
		return nil, fmt.Errorf("appstore: failed to read verification response: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("appstore: failed to parse verification response: %w", err)
	}
	return doc, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
