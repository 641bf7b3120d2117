package core

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrUniformConflict   = errors.New("uniform conflict")
	ErrTargetMismatch    = errors.New("target mismatch")
	ErrBackendAllocation = errors.New("backend allocation failure")
	ErrFatalUsage        = errors.New("fatal usage error")
)

// ConfigurationError reports a malformed input value. It is always detected
// before any native call is made.
type ConfigurationError struct {
	Field  string
	Reason string
}

func NewConfigurationError(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// UniformConflictError reports a uniform declared by both shader stages with
// incompatible layouts.
type UniformConflictError struct {
	Name   string
	Detail string
}

func (e *UniformConflictError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: uniform '%s' differs between stages", ErrUniformConflict, e.Name)
	}
	return fmt.Sprintf("%s: uniform '%s' differs between stages (%s)", ErrUniformConflict, e.Name, e.Detail)
}

func (e *UniformConflictError) Unwrap() error { return ErrUniformConflict }

// TargetMismatchError reports a clear request whose colour count does not
// match the attachments of the target.
type TargetMismatchError struct {
	Expected int
	Got      int
}

func (e *TargetMismatchError) Error() string {
	return fmt.Sprintf("%s: target has %d colour attachments, got %d clear colours", ErrTargetMismatch, e.Expected, e.Got)
}

func (e *TargetMismatchError) Unwrap() error { return ErrTargetMismatch }

// BackendAllocationError carries the diagnostic of a native API that refused
// to create a resource.
type BackendAllocationError struct {
	Backend    string
	Diagnostic string
}

func (e *BackendAllocationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrBackendAllocation, e.Backend, e.Diagnostic)
}

func (e *BackendAllocationError) Unwrap() error { return ErrBackendAllocation }

// FatalUsageError is a programming error: wrong thread, torn-down backend,
// foreign or stale handle.
type FatalUsageError struct {
	Op     string
	Reason string
}

func NewFatalUsageError(op, format string, args ...interface{}) *FatalUsageError {
	return &FatalUsageError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

func (e *FatalUsageError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrFatalUsage, e.Op, e.Reason)
}

func (e *FatalUsageError) Unwrap() error { return ErrFatalUsage }
