package leads

import "errors"

var (
	// ErrInvalidTitle is returned when the lead title is empty
	ErrInvalidTitle = errors.New("leads: title is required")

	// ErrMissingContact is returned when both email and phone are missing
	ErrMissingContact = errors.New("leads: either email or phone is required")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("leads: lead not found")

	// ErrDuplicateLead is returned when an open lead already exists for the phone
	ErrDuplicateLead = errors.New("leads: open lead already exists")

	// ErrEmitFailed wraps any failure to persist a qualified lead
	ErrEmitFailed = errors.New("leads: emit failed")
)
