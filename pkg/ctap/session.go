package ctap

import (
	"sync"

	"github.com/go-ctap/ctap2/pkg/ctaptypes"
	"github.com/go-ctap/ctap2/pkg/options"
	"github.com/go-ctap/ctap2/pkg/pinuv"
	"github.com/go-ctap/ctap2/pkg/webauthntypes"

	"github.com/samber/lo"
)

// Session owns one authenticator channel: a Transport plus the PIN/UV
// client holding the session's pinUvAuthToken. Every operation takes an
// internal lock for its entire exchange sequence, so enumerations can
// never interleave with each other or with other commands — the
// authenticator's server-side cursor would silently desynchronize
// otherwise. One Session must not be shared across authenticators.
type Session struct {
	mu        sync.Mutex
	transport Transport
	pin       *pinuv.Client
	client    *Client
}

func NewSession(t Transport, pin *pinuv.Client, opts ...options.Option) *Session {
	return &Session{
		transport: t,
		pin:       pin,
		client:    NewClient(opts...),
	}
}

// Client exposes the underlying protocol engine for callers that manage
// their own serialization.
func (s *Session) Client() *Client {
	return s.client
}

func (s *Session) GetInfo() (*ctaptypes.AuthenticatorGetInfoResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.client.GetInfo(s.transport)
}

// MakeCredential hashes clientData and creates a credential.
func (s *Session) MakeCredential(
	clientData []byte,
	rp webauthntypes.PublicKeyCredentialRpEntity,
	user webauthntypes.PublicKeyCredentialUserEntity,
	pubKeyCredParams []webauthntypes.PublicKeyCredentialParameters,
	excludeList []webauthntypes.PublicKeyCredentialDescriptor,
	opts map[ctaptypes.Option]bool,
) (*ctaptypes.AuthenticatorMakeCredentialResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.client.MakeCredential(
		s.transport,
		s.pin,
		HashClientData(clientData),
		rp,
		user,
		pubKeyCredParams,
		excludeList,
		opts,
	)
}

// GetAssertion hashes clientData and collects every assertion of the
// paging sequence, holding the session for its whole duration.
func (s *Session) GetAssertion(
	rpID string,
	clientData []byte,
	allowList []webauthntypes.PublicKeyCredentialDescriptor,
	opts map[ctaptypes.Option]bool,
) ([]*ctaptypes.AuthenticatorGetAssertionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assertions := make([]*ctaptypes.AuthenticatorGetAssertionResponse, 0, 1)
	for resp, err := range s.client.GetAssertion(s.transport, s.pin, rpID, HashClientData(clientData), allowList, opts) {
		if err != nil {
			return nil, err
		}
		assertions = append(assertions, resp)
	}

	return assertions, nil
}

func (s *Session) GetCredentialsMetadata() (*ctaptypes.CredentialMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.client.GetCredsMetadata(s.transport, s.pin)
}

// EnumerateRelyingParties runs a full begin/next enumeration and returns
// the relying parties in authenticator order. An empty store yields an
// empty, non-nil slice.
func (s *Session) EnumerateRelyingParties() ([]ctaptypes.RelyingParty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resps := make([]*ctaptypes.AuthenticatorCredentialManagementResponse, 0)
	for resp, err := range s.client.EnumerateRPs(s.transport, s.pin) {
		if err != nil {
			return nil, err
		}
		resps = append(resps, resp)
	}

	return lo.Map(resps, func(resp *ctaptypes.AuthenticatorCredentialManagementResponse, _ int) ctaptypes.RelyingParty {
		return ctaptypes.RelyingParty{
			RP:       resp.RP,
			RPIDHash: resp.RPIDHash,
		}
	}), nil
}

// EnumerateCredentials lists the resident credentials for one relying
// party, identified by the SHA-256 of its rpId.
func (s *Session) EnumerateCredentials(rpIDHash []byte) ([]ctaptypes.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resps := make([]*ctaptypes.AuthenticatorCredentialManagementResponse, 0)
	for resp, err := range s.client.EnumerateCredentials(s.transport, s.pin, rpIDHash) {
		if err != nil {
			return nil, err
		}
		resps = append(resps, resp)
	}

	return lo.Map(resps, func(resp *ctaptypes.AuthenticatorCredentialManagementResponse, _ int) ctaptypes.Credential {
		return ctaptypes.Credential{
			User:         resp.User,
			CredentialID: resp.CredentialID,
			PublicKey:    resp.PublicKey,
			CredProtect:  resp.CredProtect,
			LargeBlobKey: resp.LargeBlobKey,
		}
	}), nil
}

func (s *Session) DeleteCredential(credentialID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.client.DeleteCredential(s.transport, s.pin, credentialID)
}

func (s *Session) UpdateUserInformation(credentialID []byte, user webauthntypes.PublicKeyCredentialUserEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.client.UpdateUserInformation(s.transport, s.pin, credentialID, user)
}
