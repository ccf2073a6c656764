package options

import (
	"log/slog"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-ctap/ctap2/pkg/ctapcodec"
)

type Options struct {
	Logger  *slog.Logger
	EncMode cbor.EncMode
	// PreviewCredentialManagement selects the prototype credential
	// management opcode (0x41) instead of the standard one (0x0a). Fixed
	// for the lifetime of a client.
	PreviewCredentialManagement bool
	// StrictEnumeration makes an unparseable enumeration "next" response
	// abort the whole listing instead of being skipped.
	StrictEnumeration bool
}

type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

func WithEncMode(encMode cbor.EncMode) Option {
	return func(opts *Options) {
		opts.EncMode = encMode
	}
}

func WithPreviewCredentialManagement() Option {
	return func(opts *Options) {
		opts.PreviewCredentialManagement = true
	}
}

func WithStrictEnumeration() Option {
	return func(opts *Options) {
		opts.StrictEnumeration = true
	}
}

func NewOptions(opts ...Option) *Options {
	oo := &Options{
		Logger:  slog.Default(),
		EncMode: ctapcodec.EncMode(),
	}

	for _, opt := range opts {
		opt(oo)
	}

	return oo
}
