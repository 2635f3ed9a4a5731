// Package blob error classification.
//
// Sentinel errors and a typed wrapper let callers use errors.Is/errors.As
// for storage failure assertions rather than string matching.
package blob

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for store failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrNotFound indicates the target bucket/key does not exist (404, NoSuchKey).
	ErrNotFound = errors.New("not found")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrThrottled indicates rate limiting (429, SlowDown).
	ErrThrottled = errors.New("rate limited")

	// ErrAuth indicates authentication failure (no credentials, expired token).
	ErrAuth = errors.New("authentication failed")

	// ErrAccessDenied indicates authorization failure (valid creds but no permission).
	ErrAccessDenied = errors.New("access denied")

	// ErrNetwork indicates a network-level failure (connection refused, DNS).
	ErrNetwork = errors.New("network error")
)

// StoreError wraps an underlying error with store classification.
// It preserves the original error in the chain for inspection via errors.As.
type StoreError struct {
	// Kind is the sentinel error for classification (e.g. ErrAccessDenied).
	Kind error
	// Op is the operation that failed (e.g. "put", "read", "init").
	Op string
	// Key is the object key or local path involved, if any.
	Key string
	// Err is the underlying error.
	Err error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// WrapWriteError classifies and wraps an object write error.
// Returns nil if err is nil.
func WrapWriteError(err error, key string) error {
	if err == nil {
		return nil
	}
	return &StoreError{Kind: classify(err), Op: "put", Key: key, Err: err}
}

// WrapReadError classifies and wraps a local read error during upload.
// Returns nil if err is nil.
func WrapReadError(err error, path string) error {
	if err == nil {
		return nil
	}
	return &StoreError{Kind: classify(err), Op: "read", Key: path, Err: err}
}

// WrapInitError classifies and wraps a client/bucket initialization error.
// Returns nil if err is nil.
func WrapInitError(err error, bucket string) error {
	if err == nil {
		return nil
	}
	return &StoreError{Kind: classify(err), Op: "init", Key: bucket, Err: err}
}

// classify determines the sentinel error for the given error.
// Classification is by typed assertion first, then message patterns:
// the AWS SDK surfaces most service failures as coded API errors whose
// codes appear in the message.
func classify(err error) error {
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "nosuchkey", "nosuchbucket", "notfound", "not found", "no such file", "404"):
		return ErrNotFound
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ErrTimeout
	case containsAny(msg, "slowdown", "toomanyrequests", "throttl", "429"):
		return ErrThrottled
	case containsAny(msg, "nocredentialproviders", "invalidaccesskeyid", "signaturedoesnotmatch",
		"expiredtoken", "credentials", "401", "unauthorized"):
		return ErrAuth
	case containsAny(msg, "accessdenied", "forbidden", "403"):
		return ErrAccessDenied
	case containsAny(msg, "connection refused", "no route to host", "network unreachable",
		"dial tcp", "i/o timeout", "dns"):
		return ErrNetwork
	default:
		return errors.New("store error")
	}
}

// containsAny checks if s contains any of the lowercase substrings.
func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
