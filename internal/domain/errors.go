package domain

import (
	"errors"
	"fmt"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Error codes returned by the progression engine.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeInternal             = "INTERNAL_ERROR"
	CodeInsufficientPoints   = "INSUFFICIENT_POINTS"
	CodeItemInactive         = "ITEM_INACTIVE"
	CodeOutOfStock           = "OUT_OF_STOCK"
	CodeAlreadyClaimed       = "ALREADY_CLAIMED"
	CodeNotCompleted         = "NOT_COMPLETED"
	CodeEventNotActive       = "EVENT_NOT_ACTIVE"
	CodeMissionExpired       = "MISSION_EXPIRED"
	CodeDuplicateEvent       = "DUPLICATE_EVENT"
	CodeInvalidRuleCondition = "INVALID_RULE_CONDITION"
	CodeRateLimited          = "RATE_LIMITED"
	CodeUnavailable          = "UNAVAILABLE"
)

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Status: 409}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, Status: 403}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}

// Economy and progression errors.

func ErrInsufficientPoints() *AppError {
	return &AppError{Code: CodeInsufficientPoints, Message: "insufficient points", Status: 400}
}

func ErrItemInactive(itemID string) *AppError {
	return &AppError{Code: CodeItemInactive, Message: fmt.Sprintf("item %s is not available", itemID), Status: 409}
}

func ErrOutOfStock(itemID string) *AppError {
	return &AppError{Code: CodeOutOfStock, Message: fmt.Sprintf("item %s is out of stock", itemID), Status: 409}
}

func ErrAlreadyClaimed(what string) *AppError {
	return &AppError{Code: CodeAlreadyClaimed, Message: fmt.Sprintf("%s reward already claimed", what), Status: 409}
}

func ErrNotCompleted(what string) *AppError {
	return &AppError{Code: CodeNotCompleted, Message: fmt.Sprintf("%s is not completed", what), Status: 409}
}

func ErrEventNotActive(eventID string) *AppError {
	return &AppError{Code: CodeEventNotActive, Message: fmt.Sprintf("event %s is not active", eventID), Status: 409}
}

func ErrMissionExpired(missionID string) *AppError {
	return &AppError{Code: CodeMissionExpired, Message: fmt.Sprintf("mission %s has expired", missionID), Status: 410}
}

// ErrDuplicateEvent marks an inbound event that was already processed. It is
// recovered inside the orchestrator and never reaches a user.
func ErrDuplicateEvent(eventID string) *AppError {
	return &AppError{Code: CodeDuplicateEvent, Message: fmt.Sprintf("event %s already processed", eventID), Status: 200}
}

func ErrInvalidRuleCondition(ruleID string, cause error) *AppError {
	return &AppError{Code: CodeInvalidRuleCondition, Message: fmt.Sprintf("rule %s has an invalid condition", ruleID), Status: 400, Cause: cause}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: msg, Status: 429}
}

func ErrUnavailable(msg string, cause error) *AppError {
	return &AppError{Code: CodeUnavailable, Message: msg, Status: 503, Cause: cause}
}

// IsCode reports whether err (or anything it wraps) is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
