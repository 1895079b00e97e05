// Package pipelineerr implements the closed StageOutcome/Category model
// called for in §9 ("Error handling by exceptions: convert to a closed
// StageOutcome = Ok(result) | Err(category, message, retryable)"). Stage
// executors return a plain error to the Task Runtime (a *StageError where
// the stage knows the category); TR maps every error to a Category with
// Classify for retry scheduling. TR does not consume the Outcome type.
package pipelineerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Category is the §7 error taxonomy. The category drives TR's retry
// strategy and whether a document's final status is "failed".
type Category string

const (
	CategoryTransient     Category = "TRANSIENT"
	CategoryResource      Category = "RESOURCE"
	CategoryRateLimit     Category = "RATE_LIMIT"
	CategoryConfiguration Category = "CONFIGURATION"
	CategoryData          Category = "DATA"
	CategoryPermanent     Category = "PERMANENT"
)

// Retryable reports whether TR should schedule a retry for this category,
// independent of remaining retry budget (§7 table).
func (c Category) Retryable() bool {
	switch c {
	case CategoryTransient, CategoryResource, CategoryRateLimit:
		return true
	default: // CONFIGURATION, DATA, PERMANENT
		return false
	}
}

// Outcome is the result of one stage execution attempt.
type Outcome struct {
	ok       bool
	Category Category
	Message  string
	cause    error
}

// Ok builds a successful outcome.
func Ok() Outcome { return Outcome{ok: true} }

// Err builds a failed, classified outcome.
func Err(category Category, cause error) Outcome {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return Outcome{ok: false, Category: category, Message: msg, cause: cause}
}

// IsOk reports whether the stage succeeded.
func (o Outcome) IsOk() bool { return o.ok }

// Retryable reports whether TR should retry this outcome.
func (o Outcome) Retryable() bool { return !o.ok && o.Category.Retryable() }

// Cause returns the underlying error, or nil on success.
func (o Outcome) Cause() error { return o.cause }

func (o Outcome) Error() string {
	if o.ok {
		return ""
	}
	return fmt.Sprintf("%s: %s", o.Category, o.Message)
}

// StageError is a concrete error type a stage can return; Classify
// recognizes it directly instead of falling back to heuristics.
type StageError struct {
	Category Category
	Reason   string // short machine-readable reason, e.g. "ocr_timeout", "empty_ocr"
	Err      error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Reason)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError constructs a classified error for a stage to return.
func NewStageError(category Category, reason string, err error) *StageError {
	return &StageError{Category: category, Reason: reason, Err: err}
}

// Classify maps an arbitrary error to a §7 category. A *StageError's
// explicit category always wins; otherwise Classify applies the
// heuristics named in §7's trigger column. Unclassifiable errors default
// to PERMANENT so they fail closed rather than retry forever.
func Classify(err error) Category {
	if err == nil {
		return ""
	}

	var se *StageError
	if errors.As(err, &se) {
		return se.Category
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTransient
		}
		return CategoryTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return CategoryRateLimit
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "eof") || strings.Contains(msg, "reset by peer") || strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "504"):
		return CategoryTransient
	case strings.Contains(msg, "out of memory") || strings.Contains(msg, "no space left") || strings.Contains(msg, "disk full") || strings.Contains(msg, "oom"):
		return CategoryResource
	case strings.Contains(msg, "credential") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid bucket") || strings.Contains(msg, "missing config"):
		return CategoryConfiguration
	case strings.Contains(msg, "corrupt") || strings.Contains(msg, "unreadable") || strings.Contains(msg, "empty_ocr") || strings.Contains(msg, "malformed pdf"):
		return CategoryData
	default:
		return CategoryPermanent
	}
}
