// Package ctap implements the CTAP2 command/response protocol engine:
// it builds command frames (opcode byte + canonical CBOR map), parses
// response frames (status byte + CBOR payload) and drives the paging
// sequences of GetAssertion and the Credential Management sub-protocol.
// The physical channel is supplied by the caller as a Transport.
package ctap

import (
	"crypto/sha256"
	"encoding/hex"
	"iter"
	"log/slog"
	"slices"

	"github.com/go-ctap/ctap2/pkg/ctapcodec"
	"github.com/go-ctap/ctap2/pkg/ctaptypes"
	"github.com/go-ctap/ctap2/pkg/options"
	"github.com/go-ctap/ctap2/pkg/pinuv"
	"github.com/go-ctap/ctap2/pkg/webauthntypes"

	"github.com/fxamacker/cbor/v2"
)

// Transport performs one blocking request/response exchange with the
// authenticator. It receives a complete command frame and returns the
// complete response frame, status byte included. The channel is
// half-duplex: at most one command may be outstanding at a time.
type Transport interface {
	SendCommand(data []byte) ([]byte, error)
}

// Client builds and parses CTAP2 frames. It holds no per-authenticator
// state; the credential management opcode choice and enumeration
// strictness are fixed at construction.
type Client struct {
	logger      *slog.Logger
	encMode     cbor.EncMode
	credMgmtCmd ctaptypes.Command
	strictEnum  bool
}

func NewClient(opts ...options.Option) *Client {
	oo := options.NewOptions(opts...)

	credMgmtCmd := ctaptypes.AuthenticatorCredentialManagement
	if oo.PreviewCredentialManagement {
		credMgmtCmd = ctaptypes.PrototypeAuthenticatorCredentialManagement
	}

	return &Client{
		logger:      oo.Logger,
		encMode:     oo.EncMode,
		credMgmtCmd: credMgmtCmd,
		strictEnum:  oo.StrictEnumeration,
	}
}

// HashClientData returns the SHA-256 digest of the client data JSON.
func HashClientData(clientData []byte) []byte {
	hash := sha256.Sum256(clientData)
	return hash[:]
}

// HashRPID returns the SHA-256 digest of a relying party identifier.
func HashRPID(rpID string) []byte {
	hash := sha256.Sum256([]byte(rpID))
	return hash[:]
}

// exchange sends a frame and classifies the response status byte. The
// returned payload is valid only for CTAP2_OK; on any other status the
// payload may be absent or garbage and is never CBOR-parsed.
func (cl *Client) exchange(t Transport, cmd ctaptypes.Command, frame []byte) (raw, payload []byte, err error) {
	cl.logger.Debug(cmd.String()+" CBOR request", "hex", hex.EncodeToString(frame))

	raw, err = t.SendCommand(frame)
	if err != nil {
		return nil, nil, &TransportError{Command: cmd, Err: err}
	}
	cl.logger.Debug(cmd.String()+" CBOR response", "hex", hex.EncodeToString(raw))

	if len(raw) == 0 {
		return nil, nil, &MalformedResponseError{Command: cmd, Reason: "empty response frame"}
	}
	if code := ctaptypes.StatusCode(raw[0]); code != ctaptypes.CTAP2_OK {
		return nil, nil, &CTAPError{Command: cmd, StatusCode: code}
	}

	return raw, raw[1:], nil
}

func (cl *Client) buildMakeCredential(
	pin *pinuv.Client,
	clientDataHash []byte,
	rp webauthntypes.PublicKeyCredentialRpEntity,
	user webauthntypes.PublicKeyCredentialUserEntity,
	pubKeyCredParams []webauthntypes.PublicKeyCredentialParameters,
	excludeList []webauthntypes.PublicKeyCredentialDescriptor,
	opts map[ctaptypes.Option]bool,
) ([]byte, error) {
	if len(clientDataHash) != sha256.Size {
		return nil, ErrInvalidHashLength
	}

	if opts == nil {
		opts = map[ctaptypes.Option]bool{ctaptypes.OptionResidentKeys: true}
	}

	req := &ctaptypes.AuthenticatorMakeCredentialRequest{
		ClientDataHash:   clientDataHash,
		RP:               rp,
		User:             user,
		PubKeyCredParams: pubKeyCredParams,
		ExcludeList:      excludeList,
		Options:          opts,
	}

	if pin.HasToken() {
		req.PinUvAuthParam = pin.Authenticate(clientDataHash)
		req.PinUvAuthProtocol = pin.Protocol()
	}

	b, err := cl.encMode.Marshal(req)
	if err != nil {
		return nil, err
	}

	return slices.Concat([]byte{byte(ctaptypes.AuthenticatorMakeCredential)}, b), nil
}

// MakeCredential creates a new credential on the authenticator.
// Absent optional arguments are omitted from the request map entirely;
// a nil opts map defaults to {rk: true}.
func (cl *Client) MakeCredential(
	t Transport,
	pin *pinuv.Client,
	clientDataHash []byte,
	rp webauthntypes.PublicKeyCredentialRpEntity,
	user webauthntypes.PublicKeyCredentialUserEntity,
	pubKeyCredParams []webauthntypes.PublicKeyCredentialParameters,
	excludeList []webauthntypes.PublicKeyCredentialDescriptor,
	opts map[ctaptypes.Option]bool,
) (*ctaptypes.AuthenticatorMakeCredentialResponse, error) {
	frame, err := cl.buildMakeCredential(pin, clientDataHash, rp, user, pubKeyCredParams, excludeList, opts)
	if err != nil {
		return nil, err
	}

	raw, payload, err := cl.exchange(t, ctaptypes.AuthenticatorMakeCredential, frame)
	if err != nil {
		return nil, err
	}

	return parseMakeCredentialResponse(raw, payload)
}

func parseMakeCredentialResponse(raw, payload []byte) (*ctaptypes.AuthenticatorMakeCredentialResponse, error) {
	cmd := ctaptypes.AuthenticatorMakeCredential

	var resp *ctaptypes.AuthenticatorMakeCredentialResponse
	if err := ctapcodec.Unmarshal(payload, &resp); err != nil || resp == nil {
		return nil, &MalformedResponseError{Command: cmd, Reason: "invalid CBOR payload", Err: err}
	}

	if resp.Format == "" {
		return nil, &MalformedResponseError{Command: cmd, Reason: "missing fmt (0x01)"}
	}
	if len(resp.AuthDataRaw) == 0 {
		return nil, &MalformedResponseError{Command: cmd, Reason: "missing authData (0x02)"}
	}
	if len(resp.AttestationStatementRaw) == 0 {
		return nil, &MalformedResponseError{Command: cmd, Reason: "missing attStmt (0x03)"}
	}

	authData, err := ctaptypes.ParseAuthData(resp.AuthDataRaw)
	if err != nil {
		return nil, &MalformedResponseError{Command: cmd, Reason: "invalid authData", Err: err}
	}
	resp.AuthData = authData
	resp.Raw = raw

	return resp, nil
}

func (cl *Client) buildGetAssertion(
	pin *pinuv.Client,
	rpID string,
	clientDataHash []byte,
	allowList []webauthntypes.PublicKeyCredentialDescriptor,
	opts map[ctaptypes.Option]bool,
) ([]byte, error) {
	if len(clientDataHash) != sha256.Size {
		return nil, ErrInvalidHashLength
	}

	if opts == nil {
		opts = map[ctaptypes.Option]bool{ctaptypes.OptionUserPresence: true}
	}

	req := &ctaptypes.AuthenticatorGetAssertionRequest{
		RPID:           rpID,
		ClientDataHash: clientDataHash,
		AllowList:      allowList,
		Options:        opts,
	}

	if pin.HasToken() {
		req.PinUvAuthParam = pin.Authenticate(clientDataHash)
		req.PinUvAuthProtocol = pin.Protocol()
	}

	b, err := cl.encMode.Marshal(req)
	if err != nil {
		return nil, err
	}

	return slices.Concat([]byte{byte(ctaptypes.AuthenticatorGetAssertion)}, b), nil
}

// GetAssertion requests assertions for rpID. When the authenticator
// reports more than one matching credential, the remaining assertions are
// fetched with GetNextAssertion, one per iteration; "next" requests are
// never authenticated. The number declared by the first response bounds
// the sequence.
func (cl *Client) GetAssertion(
	t Transport,
	pin *pinuv.Client,
	rpID string,
	clientDataHash []byte,
	allowList []webauthntypes.PublicKeyCredentialDescriptor,
	opts map[ctaptypes.Option]bool,
) iter.Seq2[*ctaptypes.AuthenticatorGetAssertionResponse, error] {
	return func(yield func(*ctaptypes.AuthenticatorGetAssertionResponse, error) bool) {
		frame, err := cl.buildGetAssertion(pin, rpID, clientDataHash, allowList, opts)
		if err != nil {
			yield(nil, err)
			return
		}

		raw, payload, err := cl.exchange(t, ctaptypes.AuthenticatorGetAssertion, frame)
		if err != nil {
			yield(nil, err)
			return
		}

		first, err := parseGetAssertionResponse(ctaptypes.AuthenticatorGetAssertion, raw, payload)
		if err != nil {
			yield(nil, err)
			return
		}

		if !yield(first, nil) {
			return
		}

		for i := uint(1); i < first.NumberOfCredentials; i++ {
			resp, err := cl.GetNextAssertion(t)
			if !yield(resp, err) || err != nil {
				return
			}
		}
	}
}

// GetNextAssertion fetches the next assertion of a sequence begun by
// GetAssertion. The frame is a bare opcode byte with no payload.
func (cl *Client) GetNextAssertion(t Transport) (*ctaptypes.AuthenticatorGetAssertionResponse, error) {
	raw, payload, err := cl.exchange(
		t,
		ctaptypes.AuthenticatorGetNextAssertion,
		[]byte{byte(ctaptypes.AuthenticatorGetNextAssertion)},
	)
	if err != nil {
		return nil, err
	}

	return parseGetAssertionResponse(ctaptypes.AuthenticatorGetNextAssertion, raw, payload)
}

func parseGetAssertionResponse(cmd ctaptypes.Command, raw, payload []byte) (*ctaptypes.AuthenticatorGetAssertionResponse, error) {
	var resp *ctaptypes.AuthenticatorGetAssertionResponse
	if err := ctapcodec.Unmarshal(payload, &resp); err != nil || resp == nil {
		return nil, &MalformedResponseError{Command: cmd, Reason: "invalid CBOR payload", Err: err}
	}

	if len(resp.AuthDataRaw) == 0 {
		return nil, &MalformedResponseError{Command: cmd, Reason: "missing authData (0x02)"}
	}
	if len(resp.Signature) == 0 {
		return nil, &MalformedResponseError{Command: cmd, Reason: "missing signature (0x03)"}
	}

	// A descriptor sent without its own type field means "public-key".
	if resp.Credential != nil && resp.Credential.Type == "" {
		resp.Credential.Type = webauthntypes.PublicKeyCredentialTypePublicKey
	}

	authData, err := ctaptypes.ParseAuthData(resp.AuthDataRaw)
	if err != nil {
		return nil, &MalformedResponseError{Command: cmd, Reason: "invalid authData", Err: err}
	}
	resp.AuthData = authData
	resp.Raw = raw

	return resp, nil
}

// GetInfo queries the authenticator's capabilities.
func (cl *Client) GetInfo(t Transport) (*ctaptypes.AuthenticatorGetInfoResponse, error) {
	_, payload, err := cl.exchange(
		t,
		ctaptypes.AuthenticatorGetInfo,
		[]byte{byte(ctaptypes.AuthenticatorGetInfo)},
	)
	if err != nil {
		return nil, err
	}

	var resp *ctaptypes.AuthenticatorGetInfoResponse
	if err := ctapcodec.Unmarshal(payload, &resp); err != nil || resp == nil {
		return nil, &MalformedResponseError{Command: ctaptypes.AuthenticatorGetInfo, Reason: "invalid CBOR payload", Err: err}
	}

	return resp, nil
}
