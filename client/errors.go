package client

import (
	"errors"
	"fmt"
)

// Status labels shared with the tool layer.
const (
	StatusSuccess     = "success"
	StatusPartial     = "partial"
	StatusAuthError   = "auth_error"
	StatusRateLimited = "rate_limited"
	StatusMalformed   = "malformed_response"
	StatusConfigError = "config_error"
	StatusNetwork     = "network_error"
)

// ErrConfig indicates a missing or placeholder service key. Fatal,
// never retried.
type ErrConfig struct {
	Err error
}

func (e ErrConfig) Error() string {
	return fmt.Errorf("config: %w", e.Err).Error()
}

func (e ErrConfig) Unwrap() error {
	return e.Err
}

// ErrNetwork indicates a timeout or connection failure.
type ErrNetwork struct {
	Err     error
	Timeout bool
}

func (e ErrNetwork) Error() string {
	return fmt.Errorf("network: %w", e.Err).Error()
}

func (e ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrAuth indicates the remote API rejected the service key. Fatal for
// the run; retrying cannot fix it.
type ErrAuth struct {
	Code string
	Msg  string
}

func (e ErrAuth) Error() string {
	return fmt.Sprintf("auth: result code %s: %s", e.Code, e.Msg)
}

// ErrRateLimited indicates the API reported the request quota was hit
// (result code 22) or responded with HTTP 429.
type ErrRateLimited struct {
	Code string
	Msg  string
}

func (e ErrRateLimited) Error() string {
	return fmt.Sprintf("rate_limited: result code %s: %s", e.Code, e.Msg)
}

// ErrMalformed indicates the response body did not match the expected
// envelope. Snippet carries up to snippetLen bytes of the raw body for
// diagnosis.
type ErrMalformed struct {
	Err     error
	Snippet string
}

func (e ErrMalformed) Error() string {
	return fmt.Errorf("malformed_response: %w", e.Err).Error()
}

func (e ErrMalformed) Unwrap() error {
	return e.Err
}

// StatusLabel maps an error to its classification label. A nil error
// maps to success.
func StatusLabel(err error) string {
	if err == nil {
		return StatusSuccess
	}
	var cfg ErrConfig
	if errors.As(err, &cfg) {
		return StatusConfigError
	}
	var auth ErrAuth
	if errors.As(err, &auth) {
		return StatusAuthError
	}
	var limited ErrRateLimited
	if errors.As(err, &limited) {
		return StatusRateLimited
	}
	var malformed ErrMalformed
	if errors.As(err, &malformed) {
		return StatusMalformed
	}
	var network ErrNetwork
	if errors.As(err, &network) {
		return StatusNetwork
	}
	return StatusNetwork
}

// Retriable reports whether the pagination engine may retry the call.
// Auth, config, and malformed responses are terminal.
func Retriable(err error) bool {
	switch StatusLabel(err) {
	case StatusNetwork, StatusRateLimited:
		return true
	}
	return false
}
