package ctap

import (
	"errors"
	"iter"
	"slices"

	"github.com/go-ctap/ctap2/pkg/ctapcodec"
	"github.com/go-ctap/ctap2/pkg/ctaptypes"
	"github.com/go-ctap/ctap2/pkg/pinuv"
	"github.com/go-ctap/ctap2/pkg/webauthntypes"

	"github.com/fxamacker/cbor/v2"
)

// buildCredentialManagement assembles an authenticated credential
// management frame. The MAC covers exactly the subcommand byte followed by
// the raw encoded params bytes, not the outer map, and the identical bytes
// are spliced into the frame so the authenticator verifies what was
// signed. A nil params value leaves key 0x02 out entirely.
func (cl *Client) buildCredentialManagement(
	pin *pinuv.Client,
	subCommand ctaptypes.CredentialManagementSubCommand,
	params *ctaptypes.CredentialManagementSubCommandParams,
) ([]byte, error) {
	var rawParams cbor.RawMessage
	if params != nil {
		b, err := cl.encMode.Marshal(params)
		if err != nil {
			return nil, err
		}
		rawParams = b
	}

	req := &ctaptypes.AuthenticatorCredentialManagementRequest{
		SubCommand:        subCommand,
		SubCommandParams:  rawParams,
		PinUvAuthProtocol: pin.Protocol(),
		PinUvAuthParam:    pin.Authenticate(slices.Concat([]byte{byte(subCommand)}, rawParams)),
	}

	b, err := cl.encMode.Marshal(req)
	if err != nil {
		return nil, err
	}

	return slices.Concat([]byte{byte(cl.credMgmtCmd)}, b), nil
}

// buildCredentialManagementNext assembles an unauthenticated "next" frame:
// just the subcommand, no params, no auth.
func (cl *Client) buildCredentialManagementNext(subCommand ctaptypes.CredentialManagementSubCommand) ([]byte, error) {
	b, err := cl.encMode.Marshal(&ctaptypes.AuthenticatorCredentialManagementRequest{
		SubCommand: subCommand,
	})
	if err != nil {
		return nil, err
	}

	return slices.Concat([]byte{byte(cl.credMgmtCmd)}, b), nil
}

func parseCredentialManagementResponse(cmd ctaptypes.Command, payload []byte) (*ctaptypes.AuthenticatorCredentialManagementResponse, error) {
	var resp *ctaptypes.AuthenticatorCredentialManagementResponse
	if err := ctapcodec.Unmarshal(payload, &resp); err != nil || resp == nil {
		return nil, &MalformedResponseError{Command: cmd, Reason: "invalid CBOR payload", Err: err}
	}

	if resp.CredentialID.ID != nil && resp.CredentialID.Type == "" {
		resp.CredentialID.Type = webauthntypes.PublicKeyCredentialTypePublicKey
	}

	return resp, nil
}

// GetCredsMetadata returns the resident credential counters. It requires a
// pinUvAuthToken and fails with ErrPinRequired, without any transport
// exchange, when none is held.
func (cl *Client) GetCredsMetadata(t Transport, pin *pinuv.Client) (*ctaptypes.CredentialMetadata, error) {
	if !pin.HasToken() {
		return nil, ErrPinRequired
	}

	frame, err := cl.buildCredentialManagement(pin, ctaptypes.CredentialManagementSubCommandGetCredsMetadata, nil)
	if err != nil {
		return nil, err
	}

	_, payload, err := cl.exchange(t, cl.credMgmtCmd, frame)
	if err != nil {
		return nil, err
	}

	resp, err := parseCredentialManagementResponse(cl.credMgmtCmd, payload)
	if err != nil {
		return nil, err
	}

	return &ctaptypes.CredentialMetadata{
		ExistingResidentCredentialsCount:             resp.ExistingResidentCredentialsCount,
		MaxPossibleRemainingResidentCredentialsCount: resp.MaxPossibleRemainingResidentCredentialsCount,
	}, nil
}

// EnumerateRPs lists every relying party with resident credentials. The
// "begin" request is authenticated; each subsequent "next" request is not.
// An authenticator answering "begin" with CTAP2_ERR_NO_CREDENTIALS yields
// an empty sequence, not an error. The total count declared by "begin"
// bounds the number of "next" exchanges; an unparseable "next" item is
// skipped unless the client was built with WithStrictEnumeration.
func (cl *Client) EnumerateRPs(t Transport, pin *pinuv.Client) iter.Seq2[*ctaptypes.AuthenticatorCredentialManagementResponse, error] {
	return cl.enumerate(
		t,
		pin,
		ctaptypes.CredentialManagementSubCommandEnumerateRPsBegin,
		ctaptypes.CredentialManagementSubCommandEnumerateRPsGetNextRP,
		nil,
		func(resp *ctaptypes.AuthenticatorCredentialManagementResponse) uint { return resp.TotalRPs },
	)
}

// EnumerateCredentials lists the resident credentials stored for the
// relying party identified by rpIDHash (SHA-256 of the rpId, see
// HashRPID). Paging follows the same begin/next rules as EnumerateRPs.
func (cl *Client) EnumerateCredentials(t Transport, pin *pinuv.Client, rpIDHash []byte) iter.Seq2[*ctaptypes.AuthenticatorCredentialManagementResponse, error] {
	return cl.enumerate(
		t,
		pin,
		ctaptypes.CredentialManagementSubCommandEnumerateCredentialsBegin,
		ctaptypes.CredentialManagementSubCommandEnumerateCredentialsGetNextCredential,
		&ctaptypes.CredentialManagementSubCommandParams{RPIDHash: rpIDHash},
		func(resp *ctaptypes.AuthenticatorCredentialManagementResponse) uint { return resp.TotalCredentials },
	)
}

// enumerate drives one begin/next paging sequence. The authenticator keeps
// the enumeration cursor; interleaving any other command on the same
// session corrupts it, so callers must hold the session for the whole
// sequence (Session does).
func (cl *Client) enumerate(
	t Transport,
	pin *pinuv.Client,
	begin, next ctaptypes.CredentialManagementSubCommand,
	params *ctaptypes.CredentialManagementSubCommandParams,
	total func(*ctaptypes.AuthenticatorCredentialManagementResponse) uint,
) iter.Seq2[*ctaptypes.AuthenticatorCredentialManagementResponse, error] {
	return func(yield func(*ctaptypes.AuthenticatorCredentialManagementResponse, error) bool) {
		if !pin.HasToken() {
			yield(nil, ErrPinRequired)
			return
		}

		frame, err := cl.buildCredentialManagement(pin, begin, params)
		if err != nil {
			yield(nil, err)
			return
		}

		_, payload, err := cl.exchange(t, cl.credMgmtCmd, frame)
		if err != nil {
			// An empty store is a successful, empty enumeration.
			var ctapErr *CTAPError
			if errors.As(err, &ctapErr) && ctapErr.StatusCode == ctaptypes.CTAP2_ERR_NO_CREDENTIALS {
				return
			}
			yield(nil, err)
			return
		}

		first, err := parseCredentialManagementResponse(cl.credMgmtCmd, payload)
		if err != nil {
			yield(nil, err)
			return
		}

		remaining := total(first)
		if remaining == 0 {
			return
		}

		if !yield(first, nil) {
			return
		}

		for i := uint(1); i < remaining; i++ {
			frame, err := cl.buildCredentialManagementNext(next)
			if err != nil {
				yield(nil, err)
				return
			}

			_, payload, err := cl.exchange(t, cl.credMgmtCmd, frame)
			if err != nil {
				yield(nil, err)
				return
			}

			resp, err := parseCredentialManagementResponse(cl.credMgmtCmd, payload)
			if err != nil {
				if cl.strictEnum {
					yield(nil, err)
					return
				}
				// Keep listing: drop the odd item, the count is still
				// consumed so the cursor stays in step.
				cl.logger.Warn("skipping unparseable enumeration item", "subCommand", next.String(), "err", err)
				continue
			}

			if !yield(resp, nil) {
				return
			}
		}
	}
}

// DeleteCredential removes the resident credential with the given
// credential ID. Requires a pinUvAuthToken.
func (cl *Client) DeleteCredential(t Transport, pin *pinuv.Client, credentialID []byte) error {
	if !pin.HasToken() {
		return ErrPinRequired
	}

	frame, err := cl.buildCredentialManagement(
		pin,
		ctaptypes.CredentialManagementSubCommandDeleteCredential,
		&ctaptypes.CredentialManagementSubCommandParams{
			CredentialID: &webauthntypes.PublicKeyCredentialDescriptor{
				Type: webauthntypes.PublicKeyCredentialTypePublicKey,
				ID:   credentialID,
			},
		},
	)
	if err != nil {
		return err
	}

	if _, _, err := cl.exchange(t, cl.credMgmtCmd, frame); err != nil {
		return err
	}

	return nil
}

// UpdateUserInformation rewrites the user entity stored with a resident
// credential. Requires a pinUvAuthToken.
func (cl *Client) UpdateUserInformation(
	t Transport,
	pin *pinuv.Client,
	credentialID []byte,
	user webauthntypes.PublicKeyCredentialUserEntity,
) error {
	if !pin.HasToken() {
		return ErrPinRequired
	}

	frame, err := cl.buildCredentialManagement(
		pin,
		ctaptypes.CredentialManagementSubCommandUpdateUserInformation,
		&ctaptypes.CredentialManagementSubCommandParams{
			CredentialID: &webauthntypes.PublicKeyCredentialDescriptor{
				Type: webauthntypes.PublicKeyCredentialTypePublicKey,
				ID:   credentialID,
			},
			User: &user,
		},
	)
	if err != nil {
		return err
	}

	if _, _, err := cl.exchange(t, cl.credMgmtCmd, frame); err != nil {
		return err
	}

	return nil
}
