package domain

import "errors"

// Sentinel errors shared across repositories and services.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrEmptyRecipients  = errors.New("no recipients provided")
)
