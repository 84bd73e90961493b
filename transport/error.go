package transport

import (
	"errors"
	"fmt"
)

// Shared error values: errShortBuffer reports an output buffer too small for
// the packet being built; errInvalidToken and errFlowControl are transport
// errors raised on invalid peer input.
var (
	errShortBuffer  = errors.New("transport: short buffer")
	errInvalidToken = newError(InvalidToken, "invalid retry token")
	errFlowControl  = newError(FlowControlError, "flow control violation")
)

// ErrorCode is a QUIC transport error code (RFC 9000 section 20.1), or a
// CRYPTO_ERROR offset from 0x100 carrying a TLS alert number.
type ErrorCode uint64

// Transport error codes.
const (
	NoError                  ErrorCode = 0x0
	InternalError            ErrorCode = 0x1
	ConnectionRefused        ErrorCode = 0x2
	FlowControlError         ErrorCode = 0x3
	StreamLimitError         ErrorCode = 0x4
	StreamStateError         ErrorCode = 0x5
	FinalSizeError           ErrorCode = 0x6
	FrameEncodingError       ErrorCode = 0x7
	TransportParameterError  ErrorCode = 0x8
	ConnectionIDLimitError   ErrorCode = 0x9
	ProtocolViolation        ErrorCode = 0xa
	InvalidToken             ErrorCode = 0xb
	ApplicationError         ErrorCode = 0xc
	CryptoBufferExceeded     ErrorCode = 0xd
	KeyUpdateError           ErrorCode = 0xe
	AEADLimitReached         ErrorCode = 0xf
	NoViablePath             ErrorCode = 0x10
	cryptoErrorBase          ErrorCode = 0x100
)

// Error is a transport-level failure carrying a QUIC transport error code.
// Conn.Write returns it to the caller; returning it does not by itself move
// the connection into the closing state or send a CONNECTION_CLOSE frame.
type Error struct {
	Code    ErrorCode
	Message string
}

func newError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func newCryptoError(alert uint8, message string) *Error {
	return &Error{Code: cryptoErrorBase + ErrorCode(alert), Message: message}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return errorCodeString(uint64(e.Code))
	}
	return fmt.Sprintf("%s: %s", errorCodeString(uint64(e.Code)), e.Message)
}

var errorCodeNames = map[ErrorCode]string{
	NoError:                 "no_error",
	InternalError:           "internal_error",
	ConnectionRefused:       "connection_refused",
	FlowControlError:        "flow_control_error",
	StreamLimitError:        "stream_limit_error",
	StreamStateError:        "stream_state_error",
	FinalSizeError:          "final_size_error",
	FrameEncodingError:      "frame_encoding_error",
	TransportParameterError: "transport_parameter_error",
	ConnectionIDLimitError:  "connection_id_limit_error",
	ProtocolViolation:       "protocol_violation",
	InvalidToken:            "invalid_token",
	ApplicationError:        "application_error",
	CryptoBufferExceeded:    "crypto_buffer_exceeded",
	KeyUpdateError:          "key_update_error",
	AEADLimitReached:        "aead_limit_reached",
	NoViablePath:            "no_viable_path",
}

// errorCodeString formats a raw error code for logging, resolving
// CRYPTO_ERROR (0x100-0x1ff) to a TLS-alert-numbered label.
func errorCodeString(code uint64) string {
	ec := ErrorCode(code)
	if ec >= cryptoErrorBase && ec < cryptoErrorBase+0x100 {
		return fmt.Sprintf("crypto_error_%d", code-uint64(cryptoErrorBase))
	}
	if name, ok := errorCodeNames[ec]; ok {
		return name
	}
	return fmt.Sprintf("error_0x%x", code)
}
