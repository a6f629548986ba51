// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package faults defines the error taxonomy shared across the pipeline.
// The classes matter more than the messages: a ValidationError is rejected
// before any write, an ExternalServiceError or MalformedResultError leaves
// the raw capture intact with derived writes skipped, and a
// PersistenceError surfaces a partial multi-store write that the sweeper
// repairs later.
package faults

import (
	"errors"
	"fmt"
)

// ValidationError reports bad or missing input, detected before any write.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// NewValidation creates a ValidationError
func NewValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ExternalServiceError reports that the extraction gateway was unreachable
// or returned an error status.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// IsExternalService reports whether err is an ExternalServiceError
func IsExternalService(err error) bool {
	var ee *ExternalServiceError
	return errors.As(err, &ee)
}

// MalformedResultError reports that the gateway returned output that could
// not be parsed into the expected schema. RawPayload is kept for diagnosis.
type MalformedResultError struct {
	Reason     string
	RawPayload string
}

func (e *MalformedResultError) Error() string {
	return "malformed gateway result: " + e.Reason
}

// IsMalformedResult reports whether err is a MalformedResultError
func IsMalformedResult(err error) bool {
	var me *MalformedResultError
	return errors.As(err, &me)
}

// PersistenceError reports a failed store write. Writes are not
// transactional across stores, so a partial write is expected state, not
// corruption.
type PersistenceError struct {
	Store string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Store, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistence reports whether err is a PersistenceError
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
