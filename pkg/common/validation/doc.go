// Package validation provides common validation utilities for constructor
// arguments across the gopool library.
//
// Every helper returns a *errors.ValidationError so callers can match
// configuration mistakes with errors.Is(err, errors.ErrInvalidConfiguration).
package validation
