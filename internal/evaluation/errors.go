package evaluation

import (
	"errors"
	"fmt"
)

// Validation failure codes surfaced to API callers.
const (
	CodeOutOfRangeScore          = "out_of_range_score"
	CodeUnknownCriterion         = "unknown_criterion"
	CodeUnknownBid               = "unknown_bid"
	CodeNotCommitteeMember       = "not_committee_member"
	CodeTenderNotUnderEvaluation = "tender_not_under_evaluation"
	CodeInvalidWeights           = "invalid_weights"
	CodeInvalidFinancialAmount   = "invalid_financial_amount"
	CodeNotFullyScored           = "not_fully_scored"
	CodeUnknownEvaluationType    = "unknown_evaluation_type"
)

// ValidationError rejects an operation because its input violates an
// evaluation rule. Maps to HTTP 400.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func validationf(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsValidation unwraps err to a ValidationError if there is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// ConflictError rejects an operation because of the tender's current state,
// not the caller's input. Maps to HTTP 409.
type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func conflictf(code, format string, args ...any) *ConflictError {
	return &ConflictError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsConflict unwraps err to a ConflictError if there is one.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	ok := errors.As(err, &ce)
	return ce, ok
}
