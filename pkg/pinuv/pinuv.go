// Package pinuv holds the pinUvAuthToken obtained by an external PIN/UV
// handshake and computes per-command MAC auth params with it. The key
// agreement and token exchange themselves are not implemented here; the
// handshake collaborator installs the token with SetToken and tears it
// down with Invalidate on PIN change, authenticator reset or disconnect.
package pinuv

import (
	"errors"

	"github.com/go-ctap/ctap2/pkg/ctaptypes"
	"github.com/go-ctap/ctap2/pkg/pinuv/protocolone"
	"github.com/go-ctap/ctap2/pkg/pinuv/protocoltwo"
)

var ErrInvalidAuthProtocol = errors.New("pinuv: invalid PIN/UV auth protocol")

// Client pairs a pinUvAuthToken with the protocol it was issued under.
// The zero token state is valid: HasToken reports false and Authenticate
// returns nil, letting callers fail fast before touching the transport.
type Client struct {
	protocol ctaptypes.PinUvAuthProtocol
	token    []byte
}

func NewClient(protocol ctaptypes.PinUvAuthProtocol) (*Client, error) {
	switch protocol {
	case ctaptypes.PinUvAuthProtocolOne, ctaptypes.PinUvAuthProtocolTwo:
		return &Client{protocol: protocol}, nil
	default:
		return nil, ErrInvalidAuthProtocol
	}
}

func (c *Client) Protocol() ctaptypes.PinUvAuthProtocol {
	return c.protocol
}

// SetToken installs a pinUvAuthToken obtained by the handshake subsystem.
func (c *Client) SetToken(token []byte) {
	c.token = token
}

// Invalidate drops the held token.
func (c *Client) Invalidate() {
	c.token = nil
}

func (c *Client) HasToken() bool {
	return c != nil && len(c.token) > 0
}

// Authenticate computes the pinUvAuthParam over message with the held
// token. It returns nil if and only if no token is held.
func (c *Client) Authenticate(message []byte) []byte {
	if !c.HasToken() {
		return nil
	}

	switch c.protocol {
	case ctaptypes.PinUvAuthProtocolOne:
		return protocolone.Authenticate(c.token, message)
	case ctaptypes.PinUvAuthProtocolTwo:
		return protocoltwo.Authenticate(c.token, message)
	default:
		// NewClient rejects anything else.
		panic("pinuv: invalid auth protocol")
	}
}
