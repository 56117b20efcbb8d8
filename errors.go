package ignite

import (
	"fmt"
)

//go:generate go run golang.org/x/tools/cmd/stringer -type=ErrorCode -output=errorcode_string.go
type ErrorCode uint

const (
	Success               ErrorCode = 0
	Failed                ErrorCode = 1
	InvalidOpCode         ErrorCode = 2
	InvalidNodeState      ErrorCode = 10
	FunctionalityDisabled ErrorCode = 100
	CacheDoesNotExists    ErrorCode = 1000
	CacheExists           ErrorCode = 1001
	CacheConfigInvalid    ErrorCode = 1002
	TooManyCursors        ErrorCode = 1010
	ResourceDoesNotExists ErrorCode = 1011
	SecurityViolation     ErrorCode = 1012
	TxLimitExceeded       ErrorCode = 1020
	TxNotFound            ErrorCode = 1021
	TooManyComputeTasks   ErrorCode = 1030
	AuthFailed            ErrorCode = 2000
)

// ClientError is embedded by every error the client returns. Cause, when set, is reachable
// with errors.Unwrap.
type ClientError struct {
	Message string
	Cause   error
}

func (err *ClientError) Error() string {
	if err.Cause != nil {
		return fmt.Sprintf("%s: %s", err.Message, err.Cause)
	}
	return err.Message
}

func (err *ClientError) Unwrap() error {
	return err.Cause
}

// IllegalArgumentError reports a nil key, an empty name or an enum item without a selector.
type IllegalArgumentError struct {
	ClientError
}

// UnsupportedTypeError reports a value that has no wire mapping or an unknown type code.
type UnsupportedTypeError struct {
	ClientError
}

// TypeCastError reports a value whose shape does not fit the requested wire type.
type TypeCastError struct {
	ClientError
	Target TypeDesc
}

// ValueCastError reports a value of the right shape that is not representable in the requested
// wire type, e.g. an integer out of range or an unparsable UUID.
type ValueCastError struct {
	ClientError
	Target TypeDesc
}

// SerializationError reports malformed binary object content.
type SerializationError struct {
	ClientError
}

// EnumSerializationError reports an enum item that cannot be resolved against its type.
type EnumSerializationError struct {
	ClientError
}

// OperationError is returned when the server answers with a non-zero status.
type OperationError struct {
	ClientError
	Code ErrorCode
}

func (err *OperationError) Error() string {
	return fmt.Sprintf("%s: %s", err.Code, err.Message)
}

// IllegalStateError reports use of a closed client, cursor or connection.
type IllegalStateError struct {
	ClientError
}

// LostConnectionError is returned for every request pending on a connection that dropped.
type LostConnectionError struct {
	ClientError
}

// ClusterUnavailableError is returned when no connection to any node can be established.
type ClusterUnavailableError struct {
	ClientError
}

// ProtocolError reports a handshake rejection or a malformed frame.
type ProtocolError struct {
	ClientError
}

// AuthenticationError reports rejected credentials.
type AuthenticationError struct {
	ClientError
}

func newIllegalArgumentError(format string, args ...interface{}) *IllegalArgumentError {
	return &IllegalArgumentError{ClientError{Message: fmt.Sprintf(format, args...)}}
}

func newUnsupportedTypeError(format string, args ...interface{}) *UnsupportedTypeError {
	return &UnsupportedTypeError{ClientError{Message: fmt.Sprintf(format, args...)}}
}

func newSerializationError(cause error, format string, args ...interface{}) *SerializationError {
	return &SerializationError{ClientError{Message: fmt.Sprintf(format, args...), Cause: cause}}
}

func newEnumSerializationError(format string, args ...interface{}) *EnumSerializationError {
	return &EnumSerializationError{ClientError{Message: fmt.Sprintf(format, args...)}}
}

func newIllegalStateError(format string, args ...interface{}) *IllegalStateError {
	return &IllegalStateError{ClientError{Message: fmt.Sprintf(format, args...)}}
}

func newLostConnectionError(msg string, cause error) *LostConnectionError {
	return &LostConnectionError{ClientError{Message: msg, Cause: cause}}
}

func newProtocolError(cause error, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{ClientError{Message: fmt.Sprintf(format, args...), Cause: cause}}
}
