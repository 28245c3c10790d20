package domain

import (
	"errors"
	"fmt"
)

// ErrMissingExtension is returned when an upstream entry has no catalog key
var ErrMissingExtension = errors.New("catalog entry has no extension")

// FetchError means the upstream snapshot could not be obtained.
// A sync cycle aborts before any reconciliation when it sees one.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: upstream returned HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed
func (e *FetchError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// StoreWriteError is a failed write of a single cell, row or label
type StoreWriteError struct {
	Extension string
	Op        string
	Type      PriceType
	Term      Term
	Err       error
}

func (e *StoreWriteError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: %s %s year %d: %v", e.Extension, e.Op, e.Type, e.Term, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Extension, e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// ConfigError reports an invalid pricing setting. Callers log it and keep going
// with the fallback value the parser returned.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}
