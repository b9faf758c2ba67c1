package domain

import (
	"context"
	"errors"
	"fmt"
)

// Category sentinels shared by every subsystem.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrRateLimit    = fmt.Errorf("rate limit exceeded")
)

// BLE sentinels. The first six form the user-facing taxonomy; the rest are
// precondition failures raised by the session.
var (
	ErrAdapterPoweredOff        = fmt.Errorf("bluetooth adapter is powered off")
	ErrDiscoveryAgent           = fmt.Errorf("device discovery failed")
	ErrConnection               = fmt.Errorf("controller connection error")
	ErrInvalidAdapter           = fmt.Errorf("invalid bluetooth adapter")
	ErrNoWritableCharacteristic = fmt.Errorf("no writable characteristic found")

	ErrNotConnected           = fmt.Errorf("not connected")
	ErrScanInProgress         = fmt.Errorf("scan already in progress")
	ErrDeviceNotFound         = fmt.Errorf("device not found")
	ErrServiceNotFound        = fmt.Errorf("service not found")
	ErrCharacteristicNotFound = fmt.Errorf("characteristic not found")
	ErrNotWritable            = fmt.Errorf("characteristic is not writable")
	ErrInvalidTransition      = fmt.Errorf("invalid connection state transition")
	ErrLinkUnhealthy          = fmt.Errorf("link unhealthy: writes suspended")
	ErrSessionClosed          = fmt.Errorf("session closed")
	ErrRemoteClosed           = fmt.Errorf("remote device closed the connection")
)

// Gateway / RPC errors.
var (
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid: %w", ErrInvalidInput)

	ErrConfigLoad = fmt.Errorf("failed to load configuration")
	ErrDecryption = fmt.Errorf("decryption failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Session.Connect")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "gatt", "control"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem so that
// category sentinels resolve to a subsystem-specific ErrorCode.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category reported to gateway clients.
type ErrorCode string

const (
	CodeUnknown                  ErrorCode = "UNKNOWN"
	CodeNotFound                 ErrorCode = "NOT_FOUND"
	CodeTimeout                  ErrorCode = "TIMEOUT"
	CodeInvalidInput             ErrorCode = "INVALID_INPUT"
	CodeRateLimit                ErrorCode = "RATE_LIMIT"
	CodeAdapterPoweredOff        ErrorCode = "ADAPTER_POWERED_OFF"
	CodeDiscoveryAgent           ErrorCode = "DISCOVERY_AGENT"
	CodeConnection               ErrorCode = "CONNECTION"
	CodeInvalidAdapter           ErrorCode = "INVALID_ADAPTER"
	CodeNoWritableCharacteristic ErrorCode = "NO_WRITABLE_CHARACTERISTIC"
	CodeNotConnected             ErrorCode = "NOT_CONNECTED"
	CodeScanInProgress           ErrorCode = "SCAN_IN_PROGRESS"
	CodeDeviceNotFound           ErrorCode = "DEVICE_NOT_FOUND"
	CodeServiceNotFound          ErrorCode = "SERVICE_NOT_FOUND"
	CodeCharacteristicNotFound   ErrorCode = "CHARACTERISTIC_NOT_FOUND"
	CodeNotWritable              ErrorCode = "NOT_WRITABLE"
	CodeInvalidTransition        ErrorCode = "INVALID_TRANSITION"
	CodeLinkUnhealthy            ErrorCode = "LINK_UNHEALTHY"
	CodeSessionClosed            ErrorCode = "SESSION_CLOSED"
	CodeRemoteClosed             ErrorCode = "REMOTE_CLOSED"
	CodeAuthInvalid              ErrorCode = "AUTH_INVALID"
	CodeRPCMethodNotFound        ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload        ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeConfigLoad               ErrorCode = "CONFIG_LOAD"
	CodeDecryption               ErrorCode = "DECRYPTION"

	// Subsystem-specific codes resolved from category sentinels.
	CodeControlInvalidInput ErrorCode = "CONTROL_INVALID_INPUT"
	CodeScanTimeout         ErrorCode = "SCAN_TIMEOUT"
)

// errorCodeMap lists the specific sentinels. Order of lookup matters for
// wrapped chains, so the walk in ErrorCodeOf uses errorCodeOrder.
var errorCodeMap = map[error]ErrorCode{
	ErrAdapterPoweredOff:        CodeAdapterPoweredOff,
	ErrDiscoveryAgent:           CodeDiscoveryAgent,
	ErrConnection:               CodeConnection,
	ErrInvalidAdapter:           CodeInvalidAdapter,
	ErrNoWritableCharacteristic: CodeNoWritableCharacteristic,
	ErrNotConnected:             CodeNotConnected,
	ErrScanInProgress:           CodeScanInProgress,
	ErrDeviceNotFound:           CodeDeviceNotFound,
	ErrServiceNotFound:          CodeServiceNotFound,
	ErrCharacteristicNotFound:   CodeCharacteristicNotFound,
	ErrNotWritable:              CodeNotWritable,
	ErrInvalidTransition:        CodeInvalidTransition,
	ErrLinkUnhealthy:            CodeLinkUnhealthy,
	ErrSessionClosed:            CodeSessionClosed,
	ErrRemoteClosed:             CodeRemoteClosed,
	ErrGatewayAuthFailed:        CodeAuthInvalid,
	ErrAuthInvalid:              CodeAuthInvalid,
	ErrRPCMethodNotFound:        CodeRPCMethodNotFound,
	ErrRPCInvalidPayload:        CodeRPCInvalidPayload,
	ErrConfigLoad:               CodeConfigLoad,
	ErrDecryption:               CodeDecryption,
	ErrNotFound:                 CodeNotFound,
	ErrTimeout:                  CodeTimeout,
	ErrInvalidInput:             CodeInvalidInput,
	ErrRateLimit:                CodeRateLimit,
}

// errorCodeOrder is the chain-walk order: specific sentinels before the
// category sentinels they may wrap.
var errorCodeOrder = []error{
	ErrAdapterPoweredOff,
	ErrDiscoveryAgent,
	ErrConnection,
	ErrInvalidAdapter,
	ErrNoWritableCharacteristic,
	ErrNotConnected,
	ErrScanInProgress,
	ErrDeviceNotFound,
	ErrServiceNotFound,
	ErrCharacteristicNotFound,
	ErrNotWritable,
	ErrInvalidTransition,
	ErrLinkUnhealthy,
	ErrSessionClosed,
	ErrRemoteClosed,
	ErrGatewayAuthFailed,
	ErrAuthInvalid,
	ErrRPCMethodNotFound,
	ErrRPCInvalidPayload,
	ErrConfigLoad,
	ErrDecryption,
	ErrNotFound,
	ErrTimeout,
	ErrInvalidInput,
	ErrRateLimit,
}

var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrInvalidInput: {
		"control": CodeControlInvalidInput,
	},
	ErrTimeout: {
		"scan": CodeScanTimeout,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for _, sentinel := range errorCodeOrder {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}

// ControllerErrorKind is the coarse classification of errors raised by the
// BLE controller. Users see the kind; nothing retries on any of them.
type ControllerErrorKind string

const (
	ControllerErrorNone           ControllerErrorKind = ""
	ControllerErrorUnknown        ControllerErrorKind = "unknown"
	ControllerErrorConnection     ControllerErrorKind = "connection"
	ControllerErrorInvalidAdapter ControllerErrorKind = "invalid-adapter"
	ControllerErrorOther          ControllerErrorKind = "other"
)

// ClassifyControllerError maps an error from the BLE stack onto one of the
// four controller error kinds.
func ClassifyControllerError(err error) ControllerErrorKind {
	switch {
	case err == nil:
		return ControllerErrorNone
	case errors.Is(err, ErrConnection):
		return ControllerErrorConnection
	case errors.Is(err, ErrInvalidAdapter), errors.Is(err, ErrAdapterPoweredOff):
		return ControllerErrorInvalidAdapter
	case ErrorCodeOf(err) != CodeUnknown:
		return ControllerErrorOther
	default:
		return ControllerErrorUnknown
	}
}

// Describe returns the user-facing sentence for the kind.
func (k ControllerErrorKind) Describe() string {
	switch k {
	case ControllerErrorNone:
		return ""
	case ControllerErrorConnection:
		return "connection error"
	case ControllerErrorInvalidAdapter:
		return "invalid bluetooth adapter"
	case ControllerErrorOther:
		return "other controller error"
	default:
		return "unknown controller error"
	}
}
