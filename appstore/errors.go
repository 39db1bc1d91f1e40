package appstore

import (
	"errors"
	"fmt"
)

// ErrNoEndpoint is returned when a Client has no verification endpoint
// configured. It is checked before any network attempt.
var ErrNoEndpoint = errors.New("appstore: no verification endpoint configured")

// Statuses the verification endpoint reports alongside rejected receipts.
// https://developer.apple.com/documentation/appstorereceipts/status
var statusMessages = map[int]string{
	21000: "the App Store could not read the JSON object you provided",
	21002: "the data in the receipt-data property was malformed or missing",
	21003: "the receipt could not be authenticated",
	21004: "the shared secret you provided does not match the shared secret on file for your account",
	21005: "the receipt server is not currently available",
	21007: "this receipt is from the test environment, but it was sent to the production environment for verification",
	21008: "this receipt is from the production environment, but it was sent to the test environment for verification",
	21009: "internal data access error",
	21010: "the user account cannot be found or has been deleted",
}

// VerificationError reports a non-success status code from the verification
// endpoint. No response model is constructed alongside it; Raw carries the
// full response document for inspection.
type VerificationError struct {
	Code      int
	Retryable bool
	Raw       map[string]any
}

func (e *VerificationError) Error() string {
	if msg, ok := statusMessages[e.Code]; ok {
		return fmt.Sprintf("appstore: verification failed with status %d: %s", e.Code, msg)
	}
	return fmt.Sprintf("appstore: verification failed with status %d", e.Code)
}

// TimeoutError reports a transport-level timeout talking to the App Store.
// Timeouts are terminal: the client never retries them.
type TimeoutError struct {
	err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("appstore: the App Store timed out: %v", e.err)
}

func (e *TimeoutError) Unwrap() error { return e.err }
