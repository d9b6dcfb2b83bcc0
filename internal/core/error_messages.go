package core

// # Error Codes Reference
//
// This file maps technical errors to user-facing messages with codes for
// support reference. Failure entries, event log rows and API error bodies
// all carry the code.
//
// # Not Found (NF001-NF099)
//
//	NF001 - Submission not found
//	        Patterns: "submission not found"
//	NF002 - Reviewer has no user account
//	        Patterns: "user not found"
//	NF003 - Submission has no catalog match
//	        Patterns: "catalog match not found"
//
// # State Violations (ST001-ST099)
//
//	ST001 - Illegal status transition
//	        Patterns: "invalid transition"
//	ST002 - Stage cannot run for this submission
//	        Patterns: "stage cannot run", "changed during run"
//
// # Validation (VAL001-VAL099)
//
//	VAL001 - Required field is empty
//	         Patterns: "required field"
//	VAL002 - Illegal delimiter sequence in title
//	         Patterns: "illegal delimiter"
//	VAL003 - Value missing from lookup table
//	         Patterns: "value not found in"
//	VAL004 - Title cleaned to nothing
//	         Patterns: "empty after cleaning"
//	VAL005 - No catalog product matched
//	         Patterns: "no catalog match"
//	VAL006 - Invalid input (status, stage, rules)
//	         Patterns: "unknown status", "unknown target status", "unknown stage", "invalid rules"
//
// # Upstream (UPS001-UPS099)
//
//	UPS001 - Forms API failed
//	         Patterns: "forms responses returned", "decode forms response", "forms listing"
//	UPS002 - Catalog API failed
//	         Patterns: "catalog search returned", "decode catalog response"
//	UPS003 - External service unreachable
//	         Patterns: "execute request"
//
// # Database (DB001-DB099)
//
//	DB001 - Duplicate key
//	DB002 - Unique constraint
//	DB003 - Foreign key
//	DB004 - Connection refused
//	DB005 - Connection reset
//	DB006 - Timeout
//	DB007 - Deadlock
//
// # Runs (RUN001-RUN099)
//
//	RUN001 - Too many concurrent pipeline runs
//	         Patterns: "too many concurrent pipeline runs"
//	RUN002 - Run was cancelled or timed out
//	         Patterns: "context canceled", "context deadline exceeded"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check application logs for
// the original technical error.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Not Found (NF001-NF003)
	// =========================================================================
	{
		pattern: "submission not found",
		msg: UserMessage{
			Message: "Submission does not exist",
			Action:  "Check the submission id or run ingest first",
			Code:    "NF001",
		},
	},
	{
		pattern: "user not found",
		msg: UserMessage{
			Message: "Reviewer has no user account",
			Action:  "Create a user whose name matches the reviewer, then re-run",
			Code:    "NF002",
		},
	},
	{
		pattern: "catalog match not found",
		msg: UserMessage{
			Message: "Submission has not been matched to a catalog product",
			Action:  "Run the match stage for this submission first",
			Code:    "NF003",
		},
	},

	// =========================================================================
	// State Violations (ST001-ST002)
	// =========================================================================
	{
		pattern: "invalid transition",
		msg: UserMessage{
			Message: "Submission is not in the required state for this step",
			Action:  "Run the preceding stage first",
			Code:    "ST001",
		},
	},
	{
		pattern: "stage cannot run",
		msg: UserMessage{
			Message: "This stage cannot run for a single submission",
			Action:  "Run the stage as a batch instead",
			Code:    "ST002",
		},
	},
	{
		pattern: "changed during run",
		msg: UserMessage{
			Message: "Submission changed while it was being processed",
			Action:  "Please try again",
			Code:    "ST002",
		},
	},

	// =========================================================================
	// Validation (VAL001-VAL006)
	// =========================================================================
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Fill in the field on the form response",
			Code:    "VAL001",
		},
	},
	{
		pattern: "illegal delimiter",
		msg: UserMessage{
			Message: "Title contains an empty segment between delimiters",
			Action:  "Remove the repeated | from the product title",
			Code:    "VAL002",
		},
	},
	{
		pattern: "value not found in",
		msg: UserMessage{
			Message: "Value is not in the allowed list",
			Action:  "Pick one of the suggested values or add it to the lookup table",
			Code:    "VAL003",
		},
	},
	{
		pattern: "empty after cleaning",
		msg: UserMessage{
			Message: "Title is empty after applying the cleaning rules",
			Action:  "Review the title rules or the product title",
			Code:    "VAL004",
		},
	},
	{
		pattern: "no catalog match",
		msg: UserMessage{
			Message: "No catalog product matched the title",
			Action:  "Correct the title or pick one of the suggested products",
			Code:    "VAL005",
		},
	},
	{
		pattern: "unknown status",
		msg: UserMessage{
			Message: "Unknown status",
			Action:  "Use one of the documented status values",
			Code:    "VAL006",
		},
	},
	{
		pattern: "unknown target status",
		msg: UserMessage{
			Message: "Unknown status",
			Action:  "Use one of the documented status values",
			Code:    "VAL006",
		},
	},
	{
		pattern: "unknown stage",
		msg: UserMessage{
			Message: "Unknown stage",
			Action:  "Use ingest, clean_title, match_product or generate_specification",
			Code:    "VAL006",
		},
	},
	{
		pattern: "invalid rules",
		msg: UserMessage{
			Message: "Title rules file is invalid",
			Action:  "Fix the reported rule and import again",
			Code:    "VAL006",
		},
	},

	// =========================================================================
	// Upstream (UPS001-UPS003)
	// =========================================================================
	{
		pattern: "forms responses returned",
		msg: UserMessage{
			Message: "The forms service returned an error",
			Action:  "Check the forms token and try again later",
			Code:    "UPS001",
		},
	},
	{
		pattern: "decode forms response",
		msg: UserMessage{
			Message: "The forms service returned an unexpected response",
			Action:  "Please try again later",
			Code:    "UPS001",
		},
	},
	{
		pattern: "forms listing",
		msg: UserMessage{
			Message: "The forms service returned too many pages",
			Action:  "Please try again later",
			Code:    "UPS001",
		},
	},
	{
		pattern: "catalog search returned",
		msg: UserMessage{
			Message: "The catalog service returned an error",
			Action:  "Check the catalog token and try again later",
			Code:    "UPS002",
		},
	},
	{
		pattern: "decode catalog response",
		msg: UserMessage{
			Message: "The catalog service returned an unexpected response",
			Action:  "Please try again later",
			Code:    "UPS002",
		},
	},
	{
		pattern: "execute request",
		msg: UserMessage{
			Message: "External service is unreachable",
			Action:  "Please try again in a few moments",
			Code:    "UPS003",
		},
	},

	// =========================================================================
	// Database Constraint Errors (DB001-DB003)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Re-run the stage; upserts resolve duplicates",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate lookup values",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Check for duplicate lookup values",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Ensure the referenced lookup or user row exists",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Ensure the referenced lookup or user row exists",
			Code:    "DB003",
		},
	},

	// =========================================================================
	// Database Connection Errors (DB004-DB007)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// Runs (RUN001-RUN002)
	// =========================================================================
	{
		pattern: "too many concurrent pipeline runs",
		msg: UserMessage{
			Message: "Another pipeline run is in progress",
			Action:  "Please wait for it to finish and try again",
			Code:    "RUN001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Run was cancelled",
			Action:  "Please try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Run timed out",
			Action:  "Please try again or run a single stage",
			Code:    "RUN002",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	err := errors.New("reviewer: user not found: \"Ada\"")
//	msg := MapError(err)
//	// msg.Code == "NF002"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
//
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
