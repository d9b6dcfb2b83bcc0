package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/reviewflow/internal/enum"
	"github.com/JonMunkholm/reviewflow/internal/status"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindStateViolation Kind = "state_violation"
	KindValidation     Kind = "validation"
	KindUpstream       Kind = "upstream"
	KindInfra          Kind = "infra"
)

// PipelineError is a classified failure with optional field-level detail.
type PipelineError struct {
	Kind        Kind
	Field       string
	Value       string
	Suggestions []string
	Err         error
}

func (e *PipelineError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return e.Err.Error()
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func notFoundError(field, value string, err error) *PipelineError {
	return &PipelineError{Kind: KindNotFound, Field: field, Value: value, Err: err}
}

func validationError(field, value string, err error) *PipelineError {
	return &PipelineError{Kind: KindValidation, Field: field, Value: value, Err: err}
}

func stateError(err error) *PipelineError {
	return &PipelineError{Kind: KindStateViolation, Err: err}
}

func upstreamError(err error) *PipelineError {
	return &PipelineError{Kind: KindUpstream, Err: err}
}

func infraError(err error) *PipelineError {
	return &PipelineError{Kind: KindInfra, Err: err}
}

func submissionNotFound(id string) *PipelineError {
	return notFoundError("submission_id", id, fmt.Errorf("submission not found: %s", id))
}

// Classify returns err as a *PipelineError, inferring the kind when err
// was not raised by the pipeline itself. Anything unrecognised is infra.
func Classify(err error) *PipelineError {
	if err == nil {
		return nil
	}

	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}

	var te *status.TransitionError
	if errors.As(err, &te) {
		return stateError(err)
	}

	var nf *enum.NotFoundError
	if errors.As(err, &nf) {
		return validationError("", nf.Value, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &PipelineError{Kind: KindNotFound, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		// Integrity constraint violation class.
		return validationError(pgErr.ColumnName, "", err)
	}

	return infraError(err)
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return Classify(err).Kind
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
