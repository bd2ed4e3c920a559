package internal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different types of errors
type ErrorType int

const (
	ErrSharingDisabled ErrorType = iota
	ErrQuotaExceeded
	ErrUnresolvableID
	ErrUnrecognizedURL
	ErrIO
	ErrNetwork
	ErrTooManyRedirects
	ErrConfirmationLoop
	ErrInvalidResponse
	ErrRunFailed
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// FetchError describes a failure while retrieving a shared resource
type FetchError struct {
	Type       ErrorType              `json:"type"`
	Severity   ErrorSeverity          `json:"severity"`
	Message    string                 `json:"message"`
	ID         string                 `json:"id,omitempty"`
	URL        string                 `json:"url,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString(e.Type.String())
	if e.ID != "" {
		fmt.Fprintf(&b, " [%s]", e.ID)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause
func (e *FetchError) Unwrap() error {
	return e.Err
}

// DetailedError returns a detailed error message with all available information
func (e *FetchError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s Error", e.Severity.String(), e.Type.String()))

	if e.ID != "" {
		parts = append(parts, fmt.Sprintf("ID: %s", e.ID))
	}
	if e.Message != "" {
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	}
	if e.Err != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Err))
	}
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("URL: %s", redactSensitiveURL(e.URL)))
	}
	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}
	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrSharingDisabled:
		return "SharingDisabled"
	case ErrQuotaExceeded:
		return "QuotaExceeded"
	case ErrUnresolvableID:
		return "UnresolvableID"
	case ErrUnrecognizedURL:
		return "UnrecognizedURL"
	case ErrIO:
		return "IO"
	case ErrNetwork:
		return "Network"
	case ErrTooManyRedirects:
		return "TooManyRedirects"
	case ErrConfirmationLoop:
		return "ConfirmationLoop"
	case ErrInvalidResponse:
		return "InvalidResponse"
	case ErrRunFailed:
		return "RunFailed"
	default:
		return "Unknown"
	}
}

// String returns the string representation of ErrorSeverity
func (es ErrorSeverity) String() string {
	switch es {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// NewFetchError creates a FetchError with the default severity and suggestion for its type
func NewFetchError(errorType ErrorType, message string) *FetchError {
	return &FetchError{
		Type:       errorType,
		Severity:   getDefaultSeverity(errorType),
		Message:    message,
		Suggestion: getDefaultSuggestion(errorType),
		Context:    make(map[string]interface{}),
	}
}

// WithID attaches the resource identifier
func (e *FetchError) WithID(id string) *FetchError {
	e.ID = id
	return e
}

// WithURL adds URL context to the error (will be redacted in logs)
func (e *FetchError) WithURL(url string) *FetchError {
	e.URL = url
	return e
}

// WithSuggestion replaces the default suggestion
func (e *FetchError) WithSuggestion(suggestion string) *FetchError {
	e.Suggestion = suggestion
	return e
}

// WithCause wraps an underlying error
func (e *FetchError) WithCause(err error) *FetchError {
	e.Err = err
	return e
}

// WithContext adds context information to the error
func (e *FetchError) WithContext(key string, value interface{}) *FetchError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsRetryable reports whether repeating the request could succeed
func (e *FetchError) IsRetryable() bool {
	return e.Type == ErrNetwork
}

// IsType reports whether err is, or wraps, a FetchError of the given type
func IsType(err error, errorType ErrorType) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Type == errorType
	}
	return false
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field      string                 `json:"field"`
	Message    string                 `json:"message"`
	Value      interface{}            `json:"value,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := []string{fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// DetailedError returns a detailed validation error message
func (e *ValidationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Validation Error for field '%s'", e.Field))
	parts = append(parts, fmt.Sprintf("Message: %s", e.Message))

	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("Provided value: %v", e.Value))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewValidationErrorWithValue creates a ValidationError with the invalid value
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Context: make(map[string]interface{}),
	}
}

// WithSuggestion adds a suggestion to the validation error
func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

// WithContext adds context to the validation error
func (e *ValidationError) WithContext(key string, value interface{}) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func getDefaultSuggestion(errorType ErrorType) string {
	switch errorType {
	case ErrSharingDisabled:
		return "Ask the owner to enable link sharing (\"Anyone with the link\")"
	case ErrQuotaExceeded:
		return "Too many users have downloaded this file recently. Try again in 24 hours or make a copy in your own drive"
	case ErrUnresolvableID:
		return "Pass a file or folder link, or a bare identifier of at least 10 characters"
	case ErrUnrecognizedURL:
		return "Only file (/file/d/...), uc?id=... and folder (/folders/...) links are supported"
	case ErrIO:
		return "Check free disk space and write permissions of the destination directory"
	case ErrNetwork:
		return "Check your internet connection and try again. Consider using a proxy if needed"
	case ErrTooManyRedirects:
		return "The service kept redirecting. Try again later"
	case ErrConfirmationLoop:
		return "The service did not accept the download confirmation. The file may be restricted"
	case ErrInvalidResponse:
		return "Unexpected response from the service. The page layout might have changed"
	default:
		return ""
	}
}

func getDefaultSeverity(errorType ErrorType) ErrorSeverity {
	switch errorType {
	case ErrNetwork, ErrUnrecognizedURL, ErrUnresolvableID:
		return SeverityWarning
	case ErrIO, ErrRunFailed:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// redactSensitiveURL drops the query string, which carries confirm/uuid tokens
func redactSensitiveURL(url string) string {
	if i := strings.Index(url, "?"); i >= 0 {
		return url[:i] + "?[REDACTED]"
	}
	return url
}

// NewSharingDisabledError reports a login redirect for a resource that is not public
func NewSharingDisabledError(id string) *FetchError {
	return NewFetchError(ErrSharingDisabled, "sharing is not enabled").WithID(id)
}

// NewQuotaExceededError reports the service's download quota page
func NewQuotaExceededError(id string) *FetchError {
	return NewFetchError(ErrQuotaExceeded, "download quota exceeded").WithID(id)
}

// NewUnresolvableIDError reports input from which no identifier could be extracted
func NewUnresolvableIDError(input string) *FetchError {
	return NewFetchError(ErrUnresolvableID, fmt.Sprintf("cannot extract an identifier from %q", input)).
		WithURL(input)
}

// NewUnrecognizedURLError reports a URL that is neither a file nor a folder link
func NewUnrecognizedURLError(id, url string) *FetchError {
	return NewFetchError(ErrUnrecognizedURL, fmt.Sprintf("unrecognized URL %s", redactSensitiveURL(url))).
		WithID(id).
		WithURL(url)
}

// NewIOError wraps a filesystem failure
func NewIOError(op, path string, err error) *FetchError {
	return NewFetchError(ErrIO, fmt.Sprintf("%s %s", op, path)).
		WithCause(err).
		WithContext("path", path)
}

// NewNetworkError wraps a transport failure
func NewNetworkError(url string, err error) *FetchError {
	return NewFetchError(ErrNetwork, "request failed").
		WithURL(url).
		WithCause(err)
}

// NewTooManyRedirectsError reports a redirect chain longer than the hop cap
func NewTooManyRedirectsError(url string, hops int) *FetchError {
	return NewFetchError(ErrTooManyRedirects, fmt.Sprintf("stopped after %d redirects", hops)).
		WithURL(url).
		WithContext("hops", hops)
}

// NewConfirmationLoopError reports a confirmation page that kept coming back
func NewConfirmationLoopError(id string, attempts int) *FetchError {
	return NewFetchError(ErrConfirmationLoop, fmt.Sprintf("no file after %d confirmation attempts", attempts)).
		WithID(id).
		WithContext("attempts", attempts)
}

// NewInvalidResponseError reports an unexpected HTTP status
func NewInvalidResponseError(status int, url string) *FetchError {
	return NewFetchError(ErrInvalidResponse, fmt.Sprintf("unexpected HTTP status %d", status)).
		WithURL(url).
		WithContext("status", status)
}

// NewRunFailedError summarizes a run that recorded errors
func NewRunFailedError(count int) *FetchError {
	return NewFetchError(ErrRunFailed, fmt.Sprintf("%d error(s) recorded", count)).
		WithContext("errors", count)
}
