package config

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is against ConfigError.
var (
	ErrMissingField = errors.New("missing required field")
	ErrMalformed    = errors.New("malformed configuration")
)

// ErrorKind classifies configuration failures.
type ErrorKind int

const (
	MissingField ErrorKind = iota
	Malformed
)

// ConfigError is returned by Load when the configuration cannot be used.
// Field names the offending key when known.
type ConfigError struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *ConfigError) sentinel() error {
	if e.Kind == MissingField {
		return ErrMissingField
	}
	return ErrMalformed
}

func (e *ConfigError) Error() string {
	msg := "config: " + e.sentinel().Error()
	if e.Field != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.sentinel()}
	}
	return []error{e.sentinel(), e.Err}
}

func missing(field string) error {
	return &ConfigError{Kind: MissingField, Field: field}
}

func malformed(field string, err error) error {
	return &ConfigError{Kind: Malformed, Field: field, Err: err}
}
