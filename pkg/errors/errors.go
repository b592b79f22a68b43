package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	// CodeConnectivity marks transport-level failures: timeout, reset,
	// DNS, TLS. Retried a bounded number of times, then the unit of work
	// is abandoned.
	CodeConnectivity Code = "CONNECTIVITY_ERROR"

	// CodeApplication marks requests the remote API understood but
	// rejected. Never retried.
	CodeApplication Code = "APPLICATION_ERROR"

	// CodeValidation marks expected business-rule rejections: margin test
	// failed, delivery too slow, seller blacklisted.
	CodeValidation Code = "VALIDATION_FAILURE"

	// CodeWorkflow marks a fatal reconciliation-run failure with a stage
	// attached.
	CodeWorkflow Code = "WORKFLOW_ERROR"

	// CodePurchaseStopped marks a purchase-bot abort, isolated to one
	// destination-listing purchase attempt.
	CodePurchaseStopped Code = "PURCHASE_STOPPED"

	CodeInternal Code = "INTERNAL_ERROR"
)

type Metadata struct {
	Retryable bool
	Expected  bool
}

var metadataByCode = map[Code]Metadata{
	CodeConnectivity:    {Retryable: true},
	CodeApplication:     {},
	CodeValidation:      {Expected: true},
	CodeWorkflow:        {},
	CodePurchaseStopped: {},
	CodeInternal:        {},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	stage   string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// WithStage tags the error with the workflow stage it was raised in.
func (e *Error) WithStage(stage string) *Error {
	if e == nil {
		return nil
	}
	e.stage = stage
	return e
}

func (e *Error) Stage() string {
	if e == nil {
		return ""
	}
	return e.stage
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.stage != "" {
		return fmt.Sprintf("%s [%s]: %s", e.code, e.stage, e.message)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// IsRetryable reports whether err is worth another attempt under the
// fixed-count retry policy. Untyped errors are treated as connectivity
// failures since they come straight from a transport.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	typed := As(err)
	if typed == nil {
		return true
	}
	return MetadataFor(typed.Code()).Retryable
}
