package ctap

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/go-ctap/ctap2/pkg/ctapcodec"
	"github.com/go-ctap/ctap2/pkg/ctaptypes"
	"github.com/go-ctap/ctap2/pkg/options"
	"github.com/go-ctap/ctap2/pkg/pinuv"
	"github.com/go-ctap/ctap2/pkg/webauthntypes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport replays scripted response frames and records every
// command frame it is handed.
type fakeTransport struct {
	requests  [][]byte
	responses [][]byte
	err       error
}

func (f *fakeTransport) SendCommand(data []byte) ([]byte, error) {
	f.requests = append(f.requests, data)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, errors.New("fakeTransport: no scripted response")
	}

	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func successFrame(t *testing.T, payload any) []byte {
	t.Helper()

	b, err := ctapcodec.Marshal(payload)
	require.NoError(t, err)
	return slices.Concat([]byte{byte(ctaptypes.CTAP2_OK)}, b)
}

func tokenlessPin(t *testing.T) *pinuv.Client {
	t.Helper()

	pin, err := pinuv.NewClient(ctaptypes.PinUvAuthProtocolTwo)
	require.NoError(t, err)
	return pin
}

func tokenPin(t *testing.T) *pinuv.Client {
	t.Helper()

	pin := tokenlessPin(t)
	pin.SetToken(bytes.Repeat([]byte{0x42}, 32))
	return pin
}

func TestHashHelpers(t *testing.T) {
	h1 := HashClientData([]byte(`{"type":"webauthn.get"}`))
	h2 := HashClientData([]byte(`{"type":"webauthn.get"}`))
	h3 := HashClientData([]byte(`{"type":"webauthn.create"}`))

	assert.Len(t, h1, 32)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)

	r1 := HashRPID("example.com")
	r2 := HashRPID("example.org")
	assert.Len(t, r1, 32)
	assert.Equal(t, r1, HashRPID("example.com"))
	assert.NotEqual(t, r1, r2)
}

func TestBuildMakeCredentialFixedVector(t *testing.T) {
	cl := NewClient()

	frame, err := cl.buildMakeCredential(
		tokenlessPin(t),
		make([]byte, 32),
		webauthntypes.PublicKeyCredentialRpEntity{ID: "example.com"},
		webauthntypes.PublicKeyCredentialUserEntity{ID: []byte{1, 2, 3}},
		[]webauthntypes.PublicKeyCredentialParameters{
			{Type: webauthntypes.PublicKeyCredentialTypePublicKey, Algorithm: -7},
		},
		nil,
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, byte(ctaptypes.AuthenticatorMakeCredential), frame[0])

	m, err := ctapcodec.DecodeMap(frame[1:])
	require.NoError(t, err)
	assert.Equal(t, 5, m.Len())

	assert.Equal(t, make([]byte, 32), m.Bytes(1).MustGet())

	rp := m.Map(2).MustGet()
	assert.Equal(t, "example.com", rp.Text("id").MustGet())
	assert.False(t, rp.Has("name"))

	user := m.Map(3).MustGet()
	assert.Equal(t, []byte{1, 2, 3}, user.Bytes("id").MustGet())
	assert.False(t, user.Has("name"))
	assert.False(t, user.Has("displayName"))

	params := m.Array(4).MustGet()
	require.Len(t, params, 1)
	param, ok := params[0].(map[any]any)
	require.True(t, ok)
	assert.Equal(t, "public-key", ctapcodec.Map(param).Text("type").MustGet())
	assert.Equal(t, int64(-7), ctapcodec.Map(param).Int("alg").MustGet())

	assert.True(t, m.Map(7).MustGet().Bool("rk").MustGet())

	assert.False(t, m.Has(5))
	assert.False(t, m.Has(8))
	assert.False(t, m.Has(9))
}

func TestBuildMakeCredentialOptionalFields(t *testing.T) {
	cl := NewClient()
	rp := webauthntypes.PublicKeyCredentialRpEntity{ID: "example.com", Name: "Example"}
	user := webauthntypes.PublicKeyCredentialUserEntity{ID: []byte{1}, Name: "alice"}
	params := []webauthntypes.PublicKeyCredentialParameters{
		{Type: webauthntypes.PublicKeyCredentialTypePublicKey, Algorithm: -7},
	}

	t.Run("exclude list present only when non-empty", func(t *testing.T) {
		excludeList := []webauthntypes.PublicKeyCredentialDescriptor{
			{Type: webauthntypes.PublicKeyCredentialTypePublicKey, ID: []byte{9, 9}},
		}

		frame, err := cl.buildMakeCredential(tokenlessPin(t), make([]byte, 32), rp, user, params, excludeList, nil)
		require.NoError(t, err)

		m, err := ctapcodec.DecodeMap(frame[1:])
		require.NoError(t, err)
		assert.True(t, m.Has(5))
		assert.False(t, m.Has(8))
		assert.False(t, m.Has(9))
	})

	t.Run("auth keys present only with token", func(t *testing.T) {
		pin := tokenPin(t)

		frame, err := cl.buildMakeCredential(pin, make([]byte, 32), rp, user, params, nil, nil)
		require.NoError(t, err)

		m, err := ctapcodec.DecodeMap(frame[1:])
		require.NoError(t, err)
		assert.False(t, m.Has(5))
		assert.Equal(t, pin.Authenticate(make([]byte, 32)), m.Bytes(8).MustGet())
		assert.Equal(t, uint64(ctaptypes.PinUvAuthProtocolTwo), m.Uint(9).MustGet())
	})
}

func TestBuildMakeCredentialRejectsBadHashLength(t *testing.T) {
	cl := NewClient()

	_, err := cl.buildMakeCredential(
		tokenlessPin(t),
		[]byte{1, 2, 3},
		webauthntypes.PublicKeyCredentialRpEntity{ID: "example.com"},
		webauthntypes.PublicKeyCredentialUserEntity{ID: []byte{1}},
		nil,
		nil,
		nil,
	)
	assert.ErrorIs(t, err, ErrInvalidHashLength)
}

func TestMakeCredentialProtocolErrorSkipsPayload(t *testing.T) {
	// Nonzero status followed by garbage: the payload must never be
	// CBOR-parsed, so this yields a protocol error, not a decode fault.
	ft := &fakeTransport{responses: [][]byte{
		slices.Concat([]byte{byte(ctaptypes.CTAP2_ERR_PIN_INVALID)}, []byte{0xff, 0x00, 0xc1, 0x9b}),
	}}
	cl := NewClient()

	_, err := cl.MakeCredential(
		ft,
		tokenlessPin(t),
		make([]byte, 32),
		webauthntypes.PublicKeyCredentialRpEntity{ID: "example.com"},
		webauthntypes.PublicKeyCredentialUserEntity{ID: []byte{1}},
		nil,
		nil,
		nil,
	)
	require.Error(t, err)

	var ctapErr *CTAPError
	require.ErrorAs(t, err, &ctapErr)
	assert.Equal(t, ctaptypes.CTAP2_ERR_PIN_INVALID, ctapErr.StatusCode)
	assert.ErrorIs(t, err, ErrPinInvalid)
}

func TestMakeCredentialSuccess(t *testing.T) {
	authData := slices.Concat(
		HashRPID("example.com"),
		[]byte{0x01},             // UP
		[]byte{0, 0, 0, 1},       // signCount
	)
	frame := successFrame(t, map[any]any{
		1: "packed",
		2: authData,
		3: map[any]any{"alg": -7, "sig": []byte{0x30, 0x44}},
	})
	ft := &fakeTransport{responses: [][]byte{frame}}
	cl := NewClient()

	resp, err := cl.MakeCredential(
		ft,
		tokenlessPin(t),
		make([]byte, 32),
		webauthntypes.PublicKeyCredentialRpEntity{ID: "example.com"},
		webauthntypes.PublicKeyCredentialUserEntity{ID: []byte{1}},
		nil,
		nil,
		nil,
	)
	require.NoError(t, err)

	assert.Equal(t, webauthntypes.AttestationStatementFormatIdentifierPacked, resp.Format)
	assert.Equal(t, authData, resp.AuthDataRaw)
	require.NotNil(t, resp.AuthData)
	assert.Equal(t, HashRPID("example.com"), resp.AuthData.RPIDHash)
	assert.True(t, resp.AuthData.Flags.UserPresent())
	assert.Equal(t, frame, resp.Raw)

	attStmt, err := resp.AttestationStatement()
	require.NoError(t, err)
	assert.Equal(t, int64(-7), attStmt.Int("alg").MustGet())
}

func TestMakeCredentialMissingRequiredField(t *testing.T) {
	authData := slices.Concat(HashRPID("example.com"), []byte{0x01}, []byte{0, 0, 0, 1})

	cases := map[string]any{
		"missing fmt":      map[any]any{2: authData, 3: map[any]any{}},
		"missing authData": map[any]any{1: "packed", 3: map[any]any{}},
		"missing attStmt":  map[any]any{1: "packed", 2: authData},
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			ft := &fakeTransport{responses: [][]byte{successFrame(t, payload)}}
			cl := NewClient()

			_, err := cl.MakeCredential(
				ft,
				tokenlessPin(t),
				make([]byte, 32),
				webauthntypes.PublicKeyCredentialRpEntity{ID: "example.com"},
				webauthntypes.PublicKeyCredentialUserEntity{ID: []byte{1}},
				nil,
				nil,
				nil,
			)
			require.Error(t, err)

			var malformed *MalformedResponseError
			assert.ErrorAs(t, err, &malformed)
		})
	}
}

func TestMakeCredentialTransportError(t *testing.T) {
	ft := &fakeTransport{err: errors.New("device removed")}
	cl := NewClient()

	_, err := cl.MakeCredential(
		ft,
		tokenlessPin(t),
		make([]byte, 32),
		webauthntypes.PublicKeyCredentialRpEntity{ID: "example.com"},
		webauthntypes.PublicKeyCredentialUserEntity{ID: []byte{1}},
		nil,
		nil,
		nil,
	)
	require.Error(t, err)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, ctaptypes.AuthenticatorMakeCredential, transportErr.Command)
}

func getAssertionPayload(credID []byte, numberOfCredentials uint) map[any]any {
	authData := slices.Concat(HashRPID("example.com"), []byte{0x01}, []byte{0, 0, 0, 1})
	payload := map[any]any{
		1: map[any]any{"id": credID},
		2: authData,
		3: []byte{0x30, 0x45, 0x02},
	}
	if numberOfCredentials > 0 {
		payload[5] = numberOfCredentials
	}
	return payload
}

func TestGetAssertionDescriptorTypeDefault(t *testing.T) {
	ft := &fakeTransport{responses: [][]byte{
		successFrame(t, getAssertionPayload([]byte{0xca, 0xfe}, 0)),
	}}
	cl := NewClient()

	var collected []*ctaptypes.AuthenticatorGetAssertionResponse
	for resp, err := range cl.GetAssertion(ft, tokenlessPin(t), "example.com", make([]byte, 32), nil, nil) {
		require.NoError(t, err)
		collected = append(collected, resp)
	}

	require.Len(t, collected, 1)
	require.NotNil(t, collected[0].Credential)
	assert.Equal(t, webauthntypes.PublicKeyCredentialTypePublicKey, collected[0].Credential.Type)
	assert.Equal(t, []byte{0xca, 0xfe}, collected[0].Credential.ID)
}

func TestGetAssertionPaging(t *testing.T) {
	ft := &fakeTransport{responses: [][]byte{
		successFrame(t, getAssertionPayload([]byte{0x01}, 3)),
		successFrame(t, getAssertionPayload([]byte{0x02}, 0)),
		successFrame(t, getAssertionPayload([]byte{0x03}, 0)),
	}}
	cl := NewClient()

	var ids [][]byte
	for resp, err := range cl.GetAssertion(ft, tokenlessPin(t), "example.com", make([]byte, 32), nil, nil) {
		require.NoError(t, err)
		ids = append(ids, resp.Credential.ID)
	}

	assert.Equal(t, [][]byte{{0x01}, {0x02}, {0x03}}, ids)

	// One GetAssertion frame plus exactly two bare GetNextAssertion frames.
	require.Len(t, ft.requests, 3)
	assert.Equal(t, []byte{byte(ctaptypes.AuthenticatorGetNextAssertion)}, ft.requests[1])
	assert.Equal(t, []byte{byte(ctaptypes.AuthenticatorGetNextAssertion)}, ft.requests[2])
}

func TestGetAssertionBuildsUpOptionByDefault(t *testing.T) {
	cl := NewClient()

	frame, err := cl.buildGetAssertion(tokenlessPin(t), "example.com", make([]byte, 32), nil, nil)
	require.NoError(t, err)
	require.Equal(t, byte(ctaptypes.AuthenticatorGetAssertion), frame[0])

	m, err := ctapcodec.DecodeMap(frame[1:])
	require.NoError(t, err)

	assert.Equal(t, "example.com", m.Text(1).MustGet())
	assert.Equal(t, make([]byte, 32), m.Bytes(2).MustGet())
	assert.False(t, m.Has(3))
	assert.True(t, m.Map(5).MustGet().Bool("up").MustGet())
	assert.False(t, m.Has(6))
	assert.False(t, m.Has(7))
}

func TestGetInfo(t *testing.T) {
	ft := &fakeTransport{responses: [][]byte{
		successFrame(t, map[any]any{
			1: []any{"FIDO_2_0", "FIDO_2_1_PRE"},
			3: bytes.Repeat([]byte{0xee}, 16),
			4: map[any]any{"rk": true, "credentialMgmtPreview": true},
		}),
	}}
	cl := NewClient()

	info, err := cl.GetInfo(ft)
	require.NoError(t, err)

	assert.Equal(t, []byte{byte(ctaptypes.AuthenticatorGetInfo)}, ft.requests[0])
	assert.True(t, info.Versions.Supports(ctaptypes.FIDO_2_1_PRE))
	assert.True(t, info.Versions.IsPreviewOnly())
	assert.True(t, info.SupportsCredentialManagement())
	assert.True(t, info.PreviewCredentialManagementOnly())
}

func TestStrictnessOptionWiring(t *testing.T) {
	assert.False(t, NewClient().strictEnum)
	assert.True(t, NewClient(options.WithStrictEnumeration()).strictEnum)
	assert.Equal(t, ctaptypes.AuthenticatorCredentialManagement, NewClient().credMgmtCmd)
	assert.Equal(
		t,
		ctaptypes.PrototypeAuthenticatorCredentialManagement,
		NewClient(options.WithPreviewCredentialManagement()).credMgmtCmd,
	)
}
