package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeSource represents source API errors (timeouts, 5xx, bad bodies)
	ErrorTypeSource ErrorType = "source"
	// ErrorTypeRateLimit represents rate limiting by the source
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeDecode represents page body decoding errors
	ErrorTypeDecode ErrorType = "decode"
	// ErrorTypeValidation represents record validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeSink represents sink write errors
	ErrorTypeSink ErrorType = "sink"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// PipelineError represents a pipeline-specific error
type PipelineError struct {
	Type     ErrorType
	Category string
	Message  string
	Err      error
	Time     time.Time
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Category, e.Message)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the crawl loop should retry after this error.
// Transient errors count toward the per-unit consecutive error budget.
func (e *PipelineError) IsTransient() bool {
	switch e.Type {
	case ErrorTypeSource, ErrorTypeRateLimit, ErrorTypeDecode:
		return true
	default:
		return false
	}
}

// New creates a new PipelineError
func New(errType ErrorType, category, message string, err error) *PipelineError {
	return &PipelineError{
		Type:     errType,
		Category: category,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewSource creates a new source API error
func NewSource(category, message string, err error) *PipelineError {
	return New(ErrorTypeSource, category, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(category string, duration time.Duration) *PipelineError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, category, message, nil)
}

// NewDecode creates a new page decode error
func NewDecode(category, message string, err error) *PipelineError {
	return New(ErrorTypeDecode, category, message, err)
}

// NewValidation creates a new validation error
func NewValidation(category, message string) *PipelineError {
	return New(ErrorTypeValidation, category, message, nil)
}

// NewSink creates a new sink write error
func NewSink(category, message string, err error) *PipelineError {
	return New(ErrorTypeSink, category, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *PipelineError {
	return New(ErrorTypeConfiguration, "", message, err)
}
