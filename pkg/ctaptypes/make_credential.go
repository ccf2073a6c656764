package ctaptypes

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/go-ctap/ctap2/pkg/ctapcodec"
	"github.com/go-ctap/ctap2/pkg/webauthntypes"
	"github.com/ldclabs/cose/key"
	"github.com/samber/mo"
)

type AuthenticatorMakeCredentialRequest struct {
	ClientDataHash    []byte                                        `cbor:"1,keyasint"`
	RP                webauthntypes.PublicKeyCredentialRpEntity     `cbor:"2,keyasint"`
	User              webauthntypes.PublicKeyCredentialUserEntity   `cbor:"3,keyasint"`
	PubKeyCredParams  []webauthntypes.PublicKeyCredentialParameters `cbor:"4,keyasint"`
	ExcludeList       []webauthntypes.PublicKeyCredentialDescriptor `cbor:"5,keyasint,omitempty"`
	Options           map[Option]bool                               `cbor:"7,keyasint,omitempty"`
	PinUvAuthParam    []byte                                        `cbor:"8,keyasint,omitempty"`
	PinUvAuthProtocol PinUvAuthProtocol                             `cbor:"9,keyasint,omitempty"`
}

type AuthenticatorMakeCredentialResponse struct {
	Format                  webauthntypes.AttestationStatementFormatIdentifier `cbor:"1,keyasint"`
	AuthDataRaw             []byte                                             `cbor:"2,keyasint"`
	AuthData                *AuthData                                          `cbor:"-"`
	AttestationStatementRaw cbor.RawMessage                                    `cbor:"3,keyasint"`
	// Raw holds the complete response frame including the status byte.
	Raw []byte `cbor:"-"`
}

// AttestationStatement decodes the untyped attestation statement map.
// Its layout depends on Format, so it is exposed as an inspectable map
// rather than a struct.
func (r *AuthenticatorMakeCredentialResponse) AttestationStatement() (ctapcodec.Map, error) {
	return ctapcodec.DecodeMap(r.AttestationStatementRaw)
}

// PackedAttestationStatement extracts the "packed" format fields, when the
// statement parses as that format.
func (r *AuthenticatorMakeCredentialResponse) PackedAttestationStatement() mo.Option[webauthntypes.PackedAttestationStatementFormat] {
	if r.Format != webauthntypes.AttestationStatementFormatIdentifierPacked {
		return mo.None[webauthntypes.PackedAttestationStatementFormat]()
	}

	attStmt, err := r.AttestationStatement()
	if err != nil {
		return mo.None[webauthntypes.PackedAttestationStatementFormat]()
	}

	alg, algOK := attStmt.Int("alg").Get()
	sig, sigOK := attStmt.Bytes("sig").Get()
	if !algOK || !sigOK {
		return mo.None[webauthntypes.PackedAttestationStatementFormat]()
	}

	stmt := webauthntypes.PackedAttestationStatementFormat{
		Algorithm: key.Alg(alg),
		Signature: sig,
	}
	if x5c, ok := attStmt.Array("x5c").Get(); ok {
		for _, c := range x5c {
			der, ok := c.([]byte)
			if !ok {
				return mo.None[webauthntypes.PackedAttestationStatementFormat]()
			}
			stmt.X509Chain = append(stmt.X509Chain, der)
		}
	}

	return mo.Some(stmt)
}
