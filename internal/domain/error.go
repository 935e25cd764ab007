package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound   = errors.New("entity not found")
	ErrValidation = errors.New("invalid input or illegal state transition")
	ErrConflict   = errors.New("conflicting entity already exists")

	// Infra-level errors surfaced by repositories
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
