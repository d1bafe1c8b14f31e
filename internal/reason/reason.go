// Package reason defines the engine's error taxonomy. Every rejected or
// deferred item carries a stable code so operators can tell "not enough data
// yet" from "data is malformed" from "system busy".
package reason

import (
	"errors"
	"fmt"
)

const (
	CodeValidationFailed     = "validation_failed"
	CodeInsufficientData     = "insufficient_data"
	CodeConstraintInfeasible = "constraint_infeasible"
	CodeSettlementConflict   = "settlement_conflict"
	CodeStaleOutcome         = "stale_outcome"
	CodeInactiveBankroll     = "inactive_bankroll"
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

func newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(CodeValidationFailed, format, args...)
}

func InsufficientData(format string, args ...any) *Error {
	return newf(CodeInsufficientData, format, args...)
}

func ConstraintInfeasible(format string, args ...any) *Error {
	return newf(CodeConstraintInfeasible, format, args...)
}

func SettlementConflict(format string, args ...any) *Error {
	return newf(CodeSettlementConflict, format, args...)
}

func StaleOutcome(format string, args ...any) *Error {
	return newf(CodeStaleOutcome, format, args...)
}

func InactiveBankroll(format string, args ...any) *Error {
	return newf(CodeInactiveBankroll, format, args...)
}

// CodeOf returns the reason code carried by err, or "" for plain errors.
func CodeOf(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
