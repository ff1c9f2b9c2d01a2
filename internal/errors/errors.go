// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrTokenExpired     = errors.New("access token expired")
	ErrMarketClosed     = errors.New("market is closed")
	ErrSymbolNotFound   = errors.New("symbol not found")
	ErrSegmentNotFound  = errors.New("segment not found")
	ErrDataNotFound     = errors.New("data not found")
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrSessionClosed    = errors.New("session closed")
	ErrConnectTimeout   = errors.New("connect confirmation timed out")
	ErrConfigInvalid    = errors.New("invalid configuration")
)

// AuthError represents a rejection from the token endpoint.
type AuthError struct {
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error [%d]: %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("auth error [%d]: %s", e.Status, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError creates a new AuthError.
func NewAuthError(status int, message string, err error) *AuthError {
	return &AuthError{Status: status, Message: message, Err: err}
}

// RateLimitError represents an HTTP 429 from a history endpoint. Message is
// the decoded server message from the base64 error body.
type RateLimitError struct {
	Endpoint string
	Message  string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited [%s]: %s", e.Endpoint, e.Message)
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(endpoint, message string) *RateLimitError {
	return &RateLimitError{Endpoint: endpoint, Message: message}
}

// StaleConnectionError reports that heartbeats stopped arriving within the
// allowed window. It triggers the reconnect path and is not normally surfaced
// to callers.
type StaleConnectionError struct {
	LastHeartbeat time.Time
	Allowed       time.Duration
}

func (e *StaleConnectionError) Error() string {
	return fmt.Sprintf("stale connection: no heartbeat since %s (allowed %s)",
		e.LastHeartbeat.Format(time.RFC3339), e.Allowed)
}

// ProtocolError represents a malformed or unmappable inbound frame. Frames
// carrying it are logged and dropped; the session continues.
type ProtocolError struct {
	FrameKind string
	Reason    string
	Err       error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error [%s]: %s: %v", e.FrameKind, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error [%s]: %s", e.FrameKind, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(frameKind, reason string, err error) *ProtocolError {
	return &ProtocolError{FrameKind: frameKind, Reason: reason, Err: err}
}

// ConfigError represents invalid caller-supplied parameters, raised
// synchronously (e.g. an id list whose length does not match the symbol list).
type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Message: message}
}

// UnsubscribeError is the result type for unsubscribe misses: the symbol was
// never subscribed, or its removal was already in flight. Callers that do not
// care can ignore it; it is never raised as a panic.
type UnsubscribeError struct {
	Symbol string
	Reason string
}

func (e *UnsubscribeError) Error() string {
	return fmt.Sprintf("unsubscribe %s: %s", e.Symbol, e.Reason)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
