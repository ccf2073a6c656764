package ctaptypes

import (
	"github.com/go-ctap/ctap2/pkg/webauthntypes"
	"github.com/google/uuid"
)

type AuthenticatorGetInfoResponse struct {
	Versions                         Versions                                      `cbor:"1,keyasint"`
	Extensions                       []string                                      `cbor:"2,keyasint"`
	AAGUID                           uuid.UUID                                     `cbor:"3,keyasint"`
	Options                          map[Option]bool                               `cbor:"4,keyasint"`
	MaxMsgSize                       uint                                          `cbor:"5,keyasint"`
	PinUvAuthProtocols               []PinUvAuthProtocol                           `cbor:"6,keyasint"`
	MaxCredentialCountInList         uint                                          `cbor:"7,keyasint"`
	MaxCredentialLength              uint                                          `cbor:"8,keyasint"`
	Transports                       []string                                      `cbor:"9,keyasint"`
	Algorithms                       []webauthntypes.PublicKeyCredentialParameters `cbor:"10,keyasint"`
	ForcePinChange                   bool                                          `cbor:"12,keyasint"`
	MinPinLength                     uint                                          `cbor:"13,keyasint"`
	FirmwareVersion                  uint                                          `cbor:"14,keyasint"`
	RemainingDiscoverableCredentials uint                                          `cbor:"20,keyasint"`
}

// SupportsCredentialManagement reports whether either the standard or the
// preview credMgmt option is advertised.
func (r *AuthenticatorGetInfoResponse) SupportsCredentialManagement() bool {
	return r.Options[OptionCredentialManagement] || r.Options[OptionCredentialManagementPreview]
}

// PreviewCredentialManagementOnly reports whether the authenticator only
// implements the prototype credential management command (0x41), which is
// the case for FIDO_2_0/FIDO_2_1_PRE-only authenticators.
func (r *AuthenticatorGetInfoResponse) PreviewCredentialManagementOnly() bool {
	return r.Options[OptionCredentialManagementPreview] && !r.Options[OptionCredentialManagement]
}

func (vv Versions) Supports(ver Version) bool {
	for _, v := range vv {
		if v == ver {
			return true
		}
	}

	return false
}

func (vv Versions) IsPreviewOnly() bool {
	fidoTwo := false
	fidoTwoOnePre := false
	fidoTwoOne := false
	fidoTwoTwo := false

	for _, v := range vv {
		switch v {
		case FIDO_2_0:
			fidoTwo = true
		case FIDO_2_1_PRE:
			fidoTwoOnePre = true
		case FIDO_2_1:
			fidoTwoOne = true
		case FIDO_2_2:
			fidoTwoTwo = true
		}
	}

	return fidoTwo && (!fidoTwoOne && !fidoTwoTwo && fidoTwoOnePre)
}
