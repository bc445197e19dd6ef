package repository

import "errors"

// ErrNotFound is returned when a requested record does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional status update finds the record
// in a status from which the requested transition is not allowed.
var ErrConflict = errors.New("status conflict")
