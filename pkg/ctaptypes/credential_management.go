package ctaptypes

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/go-ctap/ctap2/pkg/webauthntypes"
	"github.com/ldclabs/cose/key"
)

type AuthenticatorCredentialManagementRequest struct {
	SubCommand CredentialManagementSubCommand `cbor:"1,keyasint"`
	// SubCommandParams carries the already-encoded params map so the exact
	// bytes covered by PinUvAuthParam are spliced into the frame unchanged.
	SubCommandParams  cbor.RawMessage   `cbor:"2,keyasint,omitempty"`
	PinUvAuthProtocol PinUvAuthProtocol `cbor:"3,keyasint,omitempty"`
	PinUvAuthParam    []byte            `cbor:"4,keyasint,omitempty"`
}

type CredentialManagementSubCommandParams struct {
	RPIDHash     []byte                                       `cbor:"1,keyasint,omitempty"`
	CredentialID *webauthntypes.PublicKeyCredentialDescriptor `cbor:"2,keyasint,omitempty"`
	User         *webauthntypes.PublicKeyCredentialUserEntity `cbor:"3,keyasint,omitempty"`
}

type AuthenticatorCredentialManagementResponse struct {
	ExistingResidentCredentialsCount             uint                                         `cbor:"1,keyasint"`
	MaxPossibleRemainingResidentCredentialsCount uint                                         `cbor:"2,keyasint"`
	RP                                           webauthntypes.PublicKeyCredentialRpEntity    `cbor:"3,keyasint"`
	RPIDHash                                     []byte                                       `cbor:"4,keyasint"`
	TotalRPs                                     uint                                         `cbor:"5,keyasint"`
	User                                         webauthntypes.PublicKeyCredentialUserEntity  `cbor:"6,keyasint"`
	CredentialID                                 webauthntypes.PublicKeyCredentialDescriptor  `cbor:"7,keyasint"`
	PublicKey                                    key.Key                                      `cbor:"8,keyasint"`
	TotalCredentials                             uint                                         `cbor:"9,keyasint"`
	CredProtect                                  uint                                         `cbor:"10,keyasint"`
	LargeBlobKey                                 []byte                                       `cbor:"11,keyasint"`
}

// CredentialMetadata reports the resident credential counters returned by
// the getCredsMetadata subcommand.
type CredentialMetadata struct {
	ExistingResidentCredentialsCount             uint
	MaxPossibleRemainingResidentCredentialsCount uint
}

// RelyingParty is one item of a relying-party enumeration. RP.ID and
// RP.Name may be empty when the authenticator stores only the hash.
type RelyingParty struct {
	RP       webauthntypes.PublicKeyCredentialRpEntity
	RPIDHash []byte
}

// Credential is one item of a credential enumeration for a relying party.
type Credential struct {
	User         webauthntypes.PublicKeyCredentialUserEntity
	CredentialID webauthntypes.PublicKeyCredentialDescriptor
	PublicKey    key.Key
	CredProtect  uint
	LargeBlobKey []byte
}
