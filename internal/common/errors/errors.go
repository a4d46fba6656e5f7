// Package errors provides the standardized error type shared by the HTTP API,
// the Zeebe worker and the notification engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Template errors
const (
	ErrCodeTemplateGroupNotFound   ErrorCode = "TPL_GRP_001"
	ErrCodeTemplateGroupExists     ErrorCode = "TPL_GRP_002"
	ErrCodeTemplateGroupInUse      ErrorCode = "TPL_GRP_003"
	ErrCodeChannelSettingNotFound  ErrorCode = "TPL_CHN_001"
	ErrCodeTemplateVariantNotFound ErrorCode = "TPL_VRT_001"
	ErrCodeTemplateVariantExists   ErrorCode = "TPL_VRT_002"
	ErrCodeTemplateNotFound        ErrorCode = "TPL_VRT_003"
	ErrCodeTemplateSubjectRequired ErrorCode = "TPL_VRT_004"
)

// Sender configuration errors
const (
	ErrCodeProfileNotFound     ErrorCode = "SND_PRF_001"
	ErrCodeProfileExists       ErrorCode = "SND_PRF_002"
	ErrCodeProfileInUse        ErrorCode = "SND_PRF_003"
	ErrCodeNoEndpointAvailable ErrorCode = "SND_EP_001"
	ErrCodeEndpointNotFound              = ErrCodeNoEndpointAvailable
	ErrCodeEndpointExists      ErrorCode = "SND_EP_002"
	ErrCodeRoutingRuleNotFound ErrorCode = "SND_RTR_001"
	ErrCodeDuplicateRule       ErrorCode = "SND_RTR_002"
	ErrCodeProfileInactive     ErrorCode = "SND_RTR_003"
	ErrCodeCannotDeleteDefault ErrorCode = "SND_RTR_004"
	ErrCodeRoutingNotFound     ErrorCode = "SND_RTR_005"
)

// Notification errors
const (
	ErrCodeInvalidPhone     ErrorCode = "NTF_001"
	ErrCodeInvalidEmail     ErrorCode = "NTF_002"
	ErrCodeInvalidPushToken ErrorCode = "NTF_003"
	ErrCodeJobNotFound      ErrorCode = "NTF_004"
)

// Generic errors
const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnknown          ErrorCode = "UNKNOWN_ERROR"
	ErrCodeDatabase         ErrorCode = "DATABASE_ERROR"
)

// Kind groups error codes by how callers should react to them.
type Kind string

const (
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
	KindValidation Kind = "VALIDATION"
	KindInternal   Kind = "INTERNAL"
)

type codeInfo struct {
	kind    Kind
	message string
}

var catalog = map[ErrorCode]codeInfo{
	ErrCodeTemplateGroupNotFound:   {KindNotFound, "Template group not found"},
	ErrCodeTemplateGroupExists:     {KindConflict, "Template group with the given key already exists"},
	ErrCodeTemplateGroupInUse:      {KindConflict, "Template group has notification jobs and cannot be deleted"},
	ErrCodeChannelSettingNotFound:  {KindNotFound, "Template channel setting not found"},
	ErrCodeTemplateVariantNotFound: {KindNotFound, "Template variant not found"},
	ErrCodeTemplateVariantExists:   {KindConflict, "Template variant with the given channel and locale already exists for the template group"},
	ErrCodeTemplateNotFound:        {KindNotFound, "No active template variant for the channel and locale"},
	ErrCodeTemplateSubjectRequired: {KindValidation, "Subject must be provided when the channel is EMAIL"},

	ErrCodeProfileNotFound:     {KindNotFound, "Sender profile not found"},
	ErrCodeProfileExists:       {KindConflict, "Sender profile with the given key already exists"},
	ErrCodeProfileInUse:        {KindConflict, "Cannot delete sender profile with active routing rules"},
	ErrCodeNoEndpointAvailable: {KindNotFound, "Sender endpoint not found"},
	ErrCodeEndpointExists:      {KindConflict, "Sender endpoint with this channel, provider, and identifier already exists"},
	ErrCodeRoutingRuleNotFound: {KindNotFound, "Sender routing rule not found"},
	ErrCodeDuplicateRule:       {KindConflict, "Sender routing rule already exists for this combination"},
	ErrCodeProfileInactive:     {KindConflict, "Sender profile must be active to be routed to"},
	ErrCodeCannotDeleteDefault: {KindConflict, "The default routing rule cannot be deleted"},
	ErrCodeRoutingNotFound:     {KindInternal, "No routing rule matched and the default rule is missing"},

	ErrCodeInvalidPhone:     {KindValidation, "A valid mobile phone number is required for the SMS channel"},
	ErrCodeInvalidEmail:     {KindValidation, "A valid email address is required for the EMAIL channel"},
	ErrCodeInvalidPushToken: {KindValidation, "A push token is required for the PUSH channel"},
	ErrCodeJobNotFound:      {KindNotFound, "Notification job not found"},

	ErrCodeValidationFailed: {KindValidation, "Request validation failed"},
	ErrCodeInternal:         {KindInternal, "Unexpected error"},
	ErrCodeUnknown:          {KindInternal, "Unknown error"},
	ErrCodeDatabase:         {KindInternal, "Database operation failed"},
}

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is matches another *StandardError by code so errors.Is works against the
// sentinel values returned by New.
func (e *StandardError) Is(target error) bool {
	var t *StandardError
	if stderrors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// ==========================
// 2. Error Constructors
// ==========================

// New creates an error for a catalogued code with its standard message.
func New(code ErrorCode) *StandardError {
	info, ok := catalog[code]
	if !ok {
		info = catalog[ErrCodeInternal]
	}
	return &StandardError{
		Code:      code,
		Message:   info.message,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWithDetails creates a catalogued error carrying extra context.
func NewWithDetails(code ErrorCode, details string) *StandardError {
	e := New(code)
	e.Details = details
	return e
}

// NewValidationError creates a non-retryable request validation error.
func NewValidationError(field, message string) *StandardError {
	e := New(ErrCodeValidationFailed)
	e.Details = fmt.Sprintf("%s: %s", field, message)
	e.Metadata = map[string]interface{}{"field": field}
	return e
}

// NewDatabaseError wraps a driver error that has no domain meaning.
func NewDatabaseError(operation string, err error) *StandardError {
	e := New(ErrCodeDatabase)
	e.Details = fmt.Sprintf("operation: %s, error: %s", operation, err.Error())
	e.Retryable = true
	return e
}

// NewInternalError wraps an unexpected error.
func NewInternalError(err error) *StandardError {
	e := New(ErrCodeInternal)
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// ==========================
// 3. Helpers
// ==========================

// Normalize returns err as a *StandardError, wrapping unknown errors as
// INTERNAL_ERROR.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// CodeOf returns the domain code carried by err, or "" when err is not a
// StandardError.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsDomainError reports whether err is a catalogued domain error, as opposed
// to an internal failure.
func IsDomainError(err error) bool {
	code := CodeOf(err)
	if code == "" {
		return false
	}
	_, ok := catalog[code]
	return ok && GetErrorKind(code) != KindInternal
}

func GetErrorKind(code ErrorCode) Kind {
	if info, ok := catalog[code]; ok {
		return info.kind
	}
	return KindInternal
}

// HTTPStatus maps an error code to the response status used by the API.
func HTTPStatus(code ErrorCode) int {
	switch GetErrorKind(code) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "TPL_"):
		return "TEMPLATE"
	case strings.HasPrefix(codeStr, "SND_"):
		return "SENDER"
	case strings.HasPrefix(codeStr, "NTF_"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	default:
		return "SYSTEM"
	}
}
