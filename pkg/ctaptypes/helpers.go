package ctaptypes

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-ctap/ctap2/pkg/ctapcodec"
	"github.com/google/uuid"
)

func (f AuthDataFlag) UserPresent() bool {
	return f&AuthDataFlagUserPresent != 0
}
func (f AuthDataFlag) UserVerified() bool {
	return f&AuthDataFlagUserVerified != 0
}
func (f AuthDataFlag) AttestedCredentialDataIncluded() bool {
	return f&AuthDataFlagAttestedCredentialDataIncluded != 0
}
func (f AuthDataFlag) ExtensionDataIncluded() bool {
	return f&AuthDataFlagExtensionDataIncluded != 0
}

// ParseAuthData parses raw authenticator data: rpIdHash (32), flags (1),
// signCount (4), then attested credential data and extensions as indicated
// by the flags. Truncated input yields an error wrapping
// ctapcodec.ErrMalformed, never a panic.
func ParseAuthData(data []byte) (*AuthData, error) {
	if len(data) < 37 {
		return nil, fmt.Errorf("%w: authData too short (%d bytes)", ctapcodec.ErrMalformed, len(data))
	}

	d := &AuthData{
		RPIDHash:  data[:32],
		Flags:     AuthDataFlag(data[32]),
		SignCount: binary.BigEndian.Uint32(data[33:37]),
	}
	offset := 37

	if d.Flags.AttestedCredentialDataIncluded() {
		if len(data) < offset+18 {
			return nil, fmt.Errorf("%w: attested credential data truncated", ctapcodec.ErrMalformed)
		}

		credData := &AttestedCredentialData{
			AAGUID: uuid.UUID(data[offset : offset+16]),
		}
		offset += 16

		length := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 2
		if len(data) < offset+int(length) {
			return nil, fmt.Errorf("%w: credential ID exceeds authData length", ctapcodec.ErrMalformed)
		}
		credData.CredentialID = data[offset : offset+int(length)]
		offset += int(length)

		dec := cbor.NewDecoder(bytes.NewReader(data[offset:]))
		if err := dec.Decode(&credData.CredentialPublicKey); err != nil {
			return nil, fmt.Errorf("%w: credential public key: %w", ctapcodec.ErrMalformed, err)
		}
		offset += dec.NumBytesRead()

		d.AttestedCredentialData = credData
	}

	if d.Flags.ExtensionDataIncluded() {
		d.Extensions = data[offset:]
	}

	return d, nil
}
