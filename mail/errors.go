package mail

import (
	"fmt"

	"github.com/pkg/errors"
)

// Message fields that a backend may refuse to transmit.
const (
	FieldCc      = "cc"
	FieldBcc     = "bcc"
	FieldReplyTo = "replyTo"
)

// InvalidArgumentError reports a missing or malformed argument. It is always
// returned before any side effect.
type InvalidArgumentError struct {
	Arg    string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("mail: invalid argument %q", e.Arg)
	}
	return fmt.Sprintf("mail: invalid argument %q: %s", e.Arg, e.Reason)
}

// UnsupportedFieldError reports a populated field the backend cannot transmit.
type UnsupportedFieldError struct {
	Provider string
	Field    string
}

func (e *UnsupportedFieldError) Error() string {
	return fmt.Sprintf("mail.%s: field %q is not supported", e.Provider, e.Field)
}

// TransportError wraps a network level failure (connection, TLS, auth, timeout).
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mail.%s: transport: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProviderError is a failure reported by the backend itself. Body holds the raw
// backend response for diagnosis.
type ProviderError struct {
	Provider   string
	StatusCode int    // HTTP status, 0 when not applicable
	Code       int    // backend error code, 0 when absent
	Message    string // backend error message
	Body       []byte // raw backend response
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Body)
	}
	return fmt.Sprintf("mail.%s: provider error (status=%d, code=%d): %s", e.Provider, e.StatusCode, e.Code, msg)
}

// MappingError reports a backend status value the adapter does not recognise.
type MappingError struct {
	Provider string
	Value    string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mail.%s: unknown delivery status %q", e.Provider, e.Value)
}

// ConfigError reports a missing configuration value at adapter construction.
type ConfigError struct {
	Provider string
	Field    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("mail.%s: missing configuration %q", e.Provider, e.Field)
}

// IsInvalidArgument checks if err is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target)
}

// IsUnsupportedField checks if err is an UnsupportedFieldError.
func IsUnsupportedField(err error) bool {
	var target *UnsupportedFieldError
	return errors.As(err, &target)
}

// IsTransport checks if err is a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsProvider checks if err is a ProviderError.
func IsProvider(err error) bool {
	var target *ProviderError
	return errors.As(err, &target)
}

// IsMapping checks if err is a MappingError.
func IsMapping(err error) bool {
	var target *MappingError
	return errors.As(err, &target)
}

// IsConfig checks if err is a ConfigError.
func IsConfig(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}
