package ctaptypes

import (
	"github.com/go-ctap/ctap2/pkg/webauthntypes"
)

type AuthenticatorGetAssertionRequest struct {
	RPID              string                                        `cbor:"1,keyasint"`
	ClientDataHash    []byte                                        `cbor:"2,keyasint"`
	AllowList         []webauthntypes.PublicKeyCredentialDescriptor `cbor:"3,keyasint,omitempty"`
	Options           map[Option]bool                               `cbor:"5,keyasint,omitempty"`
	PinUvAuthParam    []byte                                        `cbor:"6,keyasint,omitempty"`
	PinUvAuthProtocol PinUvAuthProtocol                             `cbor:"7,keyasint,omitempty"`
}

type AuthenticatorGetAssertionResponse struct {
	Credential          *webauthntypes.PublicKeyCredentialDescriptor `cbor:"1,keyasint,omitempty"`
	AuthDataRaw         []byte                                       `cbor:"2,keyasint"`
	AuthData            *AuthData                                    `cbor:"-"`
	Signature           []byte                                       `cbor:"3,keyasint"`
	User                *webauthntypes.PublicKeyCredentialUserEntity `cbor:"4,keyasint,omitempty"`
	NumberOfCredentials uint                                         `cbor:"5,keyasint,omitempty"`
	// Raw holds the complete response frame including the status byte.
	Raw []byte `cbor:"-"`
}
