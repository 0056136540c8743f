// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"errors"
	"fmt"
)

var (
	errNoDumpPath = &ValidationError{Message: "No path provided."}
	errBadMagic   = errors.New("not a devnet dump")
)

// ValidationError is a malformed request. Nothing was touched.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether [err] is a caller error.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// LoadError is a dump that could not be loaded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("Cannot load from %s. Make sure the file exists and contains a Devnet dump.", e.Path)
}

func (e *LoadError) Unwrap() error { return e.Err }
