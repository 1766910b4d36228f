// Package apperr defines the error kinds shared by the ingestion and query pipelines.
package apperr

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a missing or invalid setting. It is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Configuration builds a ConfigurationError.
func Configuration(field, reason string) error {
	return &ConfigurationError{Field: field, Reason: reason}
}

// ExternalServiceError wraps a failed call to the embedding service, the
// vector index or the completion service. Callers degrade instead of failing.
type ExternalServiceError struct {
	Service string
	Op      string
	Query   string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Service, e.Op)
	if e.Query != "" {
		msg += fmt.Sprintf(" for %q", e.Query)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// External builds an ExternalServiceError.
func External(service, op, query string, err error) error {
	return &ExternalServiceError{Service: service, Op: op, Query: query, Err: err}
}

// DataQualityError reports a document that cannot be ingested.
type DataQualityError struct {
	Document string
	Reason   string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("document %s: %s", e.Document, e.Reason)
}

// DataQuality builds a DataQualityError.
func DataQuality(document, reason string) error {
	return &DataQualityError{Document: document, Reason: reason}
}

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsExternal(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}

func IsDataQuality(err error) bool {
	var target *DataQualityError
	return errors.As(err, &target)
}
