package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type OperationErrorCode string

const (
	OperationErrorValidation      OperationErrorCode = "validation_failed"
	OperationErrorEncodeFailed    OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed    OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed OperationErrorCode = "transport_failed"
	OperationErrorTimeout         OperationErrorCode = "timeout"
	OperationErrorQueryFailed     OperationErrorCode = "query_failed"
	OperationErrorEmbedFailed     OperationErrorCode = "embed_failed"
	OperationErrorNotFound        OperationErrorCode = "not_found"
	OperationErrorEmptyIndex      OperationErrorCode = "empty_index"
)

// OperationError is returned by every index backend.
type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "vector index operation failed"
	}
	detail := e.Message
	if e.Cause != nil {
		if detail == "" {
			detail = e.Cause.Error()
		} else {
			detail += ": " + e.Cause.Error()
		}
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("vector index %s failed (code=%s status=%d): %s", e.Operation, e.Code, e.StatusCode, detail)
	}
	return fmt.Sprintf("vector index %s failed (code=%s): %s", e.Operation, e.Code, detail)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsCode reports whether err is an *OperationError with the given code.
func IsCode(err error, code OperationErrorCode) bool {
	var opErr *OperationError
	return errors.As(err, &opErr) && opErr.Code == code
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{
		Code:      code,
		Operation: op,
		Message:   msg,
		Cause:     cause,
	}
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}
