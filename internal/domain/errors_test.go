package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Session.Connect", ErrDeviceNotFound, "aa:bb:cc:dd:ee:ff")
	want := "Session.Connect: aa:bb:cc:dd:ee:ff: device not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Session.Send", ErrNoWritableCharacteristic, "")
	want := "Session.Send: no writable characteristic found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Session.Select", ErrNotWritable, "2a00")
	if !errors.Is(err, ErrNotWritable) {
		t.Error("errors.Is should match ErrNotWritable")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewDomainError("Central.Dial", ErrConnection, "timeout"))
	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "Central.Dial", de.Op)
}

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeAdapterPoweredOff, ErrorCodeOf(ErrAdapterPoweredOff))
	assert.Equal(t, CodeNoWritableCharacteristic, ErrorCodeOf(ErrNoWritableCharacteristic))
	assert.Equal(t, CodeInvalidAdapter, ErrorCodeOf(ErrInvalidAdapter))
	assert.Equal(t, CodeRPCMethodNotFound, ErrorCodeOf(ErrRPCMethodNotFound))
}

func TestErrorCodeOf_WrappedSpecificBeatsCategory(t *testing.T) {
	// ErrRPCInvalidPayload wraps ErrInvalidInput; the specific code wins.
	wrapped := fmt.Errorf("decode: %w", ErrRPCInvalidPayload)
	assert.Equal(t, CodeRPCInvalidPayload, ErrorCodeOf(wrapped))
	assert.Equal(t, CodeAuthInvalid, ErrorCodeOf(fmt.Errorf("x: %w", ErrGatewayAuthFailed)))
}

func TestErrorCodeOf_SubSystem(t *testing.T) {
	err := NewSubSystemError("control", "ParseControlText", ErrInvalidInput, "abc")
	assert.Equal(t, CodeControlInvalidInput, ErrorCodeOf(err))

	err = NewSubSystemError("scan", "Scan", ErrTimeout, "")
	assert.Equal(t, CodeScanTimeout, ErrorCodeOf(err))
}

func TestErrorCodeOf_SubSystemFallback(t *testing.T) {
	err := NewSubSystemError("elsewhere", "Op", ErrInvalidInput, "")
	assert.Equal(t, CodeInvalidInput, ErrorCodeOf(err))
}

func TestErrorCodeOf_DeadlineExceeded(t *testing.T) {
	assert.Equal(t, CodeTimeout, ErrorCodeOf(fmt.Errorf("dial: %w", context.DeadlineExceeded)))
}

func TestErrorCodeOf_UnknownAndNil(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("some random error")))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestAllSentinelsHaveCodes(t *testing.T) {
	require.NotEmpty(t, errorCodeMap)
	require.Len(t, errorCodeOrder, len(errorCodeMap))
	for _, sentinel := range errorCodeOrder {
		code, ok := errorCodeMap[sentinel]
		assert.True(t, ok, "sentinel %v missing from errorCodeMap", sentinel)
		assert.NotEqual(t, CodeUnknown, code, "sentinel %v maps to UNKNOWN", sentinel)
	}
}

func TestWrapOp(t *testing.T) {
	assert.Nil(t, WrapOp("anything", nil))

	err := WrapOp("Session.Disconnect", ErrNotConnected)
	assert.Equal(t, "Session.Disconnect: not connected", err.Error())
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.Equal(t, CodeNotConnected, ErrorCodeOf(err))
}

func TestClassifyControllerError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ControllerErrorKind
	}{
		{"nil", nil, ControllerErrorNone},
		{"connection", fmt.Errorf("dial: %w", ErrConnection), ControllerErrorConnection},
		{"invalid adapter", NewDomainError("Central.Ready", ErrInvalidAdapter, "hci9"), ControllerErrorInvalidAdapter},
		{"powered off", ErrAdapterPoweredOff, ControllerErrorInvalidAdapter},
		{"remote closed", ErrRemoteClosed, ControllerErrorOther},
		{"deadline", context.DeadlineExceeded, ControllerErrorOther},
		{"opaque", errors.New("hci: status 0x3e"), ControllerErrorUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyControllerError(tt.err))
		})
	}
}

func TestControllerErrorKindDescribe(t *testing.T) {
	assert.Equal(t, "", ControllerErrorNone.Describe())
	assert.Equal(t, "connection error", ControllerErrorConnection.Describe())
	assert.Equal(t, "unknown controller error", ControllerErrorUnknown.Describe())
}
