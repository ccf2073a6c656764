package ctap

import (
	"errors"

	"github.com/go-ctap/ctap2/pkg/ctaptypes"
)

var (
	// ErrPinRequired is returned when an authenticated operation is
	// attempted without a pinUvAuthToken, before any transport exchange.
	ErrPinRequired = errors.New("ctap: pinUvAuthToken required")

	// ErrPinInvalid matches, via errors.Is, a CTAPError carrying
	// CTAP2_ERR_PIN_INVALID: the authenticator rejected the MAC.
	ErrPinInvalid = errors.New("ctap: PIN invalid")

	// ErrNoCredentials matches, via errors.Is, a CTAPError carrying
	// CTAP2_ERR_NO_CREDENTIALS.
	ErrNoCredentials = errors.New("ctap: no credentials")

	// ErrInvalidHashLength is returned when a client data or rpId hash is
	// not exactly 32 bytes.
	ErrInvalidHashLength = errors.New("ctap: hash must be exactly 32 bytes")
)

// CTAPError is a nonzero status byte in a response frame. The payload of
// such a frame is undefined and is never parsed.
type CTAPError struct {
	Command    ctaptypes.Command
	StatusCode ctaptypes.StatusCode
}

func (e *CTAPError) Error() string {
	return e.Command.String() + " failed (" + e.StatusCode.String() + ")"
}

func (e *CTAPError) Is(target error) bool {
	switch target {
	case ErrPinInvalid:
		return e.StatusCode == ctaptypes.CTAP2_ERR_PIN_INVALID
	case ErrNoCredentials:
		return e.StatusCode == ctaptypes.CTAP2_ERR_NO_CREDENTIALS
	default:
		return false
	}
}

// TransportError wraps a failure of the transport collaborator
// (disconnect, timeout, I/O error).
type TransportError struct {
	Command ctaptypes.Command
	Err     error
}

func (e *TransportError) Error() string {
	return "ctap: transport failed during " + e.Command.String() + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is a structurally invalid success response:
// undecodable CBOR or a missing required field. It is distinct from
// CTAPError, which reports a status the authenticator itself signalled.
type MalformedResponseError struct {
	Command ctaptypes.Command
	Reason  string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	msg := "ctap: malformed " + e.Command.String() + " response: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
