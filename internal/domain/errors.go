// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates a request value is outside its allowed domain.
var ErrValidation = errors.New("validation failed")

// ErrConflict indicates a lost race: the decision was already resolved
// by a concurrent approve, reject, or expiry.
var ErrConflict = errors.New("conflict: decision already resolved")

// ErrTransient indicates an I/O failure at the persistence boundary.
// Callers may retry exactly once before surfacing it.
var ErrTransient = errors.New("transient store error")
