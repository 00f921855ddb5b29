// Package validation provides common validation utilities for configuration
// parameters across the flowcore library.
//
// Constructors call these helpers so that every rejected value surfaces as a
// *errors.ValidationError wrapping errors.ErrInvalidConfiguration.
package validation
