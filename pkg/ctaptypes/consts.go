package ctaptypes

// Command is a CTAP2 authenticator command opcode, the first byte of every
// request frame.
type Command byte

const (
	AuthenticatorMakeCredential                Command = 0x01
	AuthenticatorGetAssertion                  Command = 0x02
	AuthenticatorGetInfo                       Command = 0x04
	AuthenticatorGetNextAssertion              Command = 0x08
	AuthenticatorCredentialManagement          Command = 0x0a
	PrototypeAuthenticatorCredentialManagement Command = 0x41
)

type CredentialManagementSubCommand byte

const (
	CredentialManagementSubCommandGetCredsMetadata CredentialManagementSubCommand = iota + 1
	CredentialManagementSubCommandEnumerateRPsBegin
	CredentialManagementSubCommandEnumerateRPsGetNextRP
	CredentialManagementSubCommandEnumerateCredentialsBegin
	CredentialManagementSubCommandEnumerateCredentialsGetNextCredential
	CredentialManagementSubCommandDeleteCredential
	CredentialManagementSubCommandUpdateUserInformation
)

// PinUvAuthProtocol is a PIN/UV auth protocol version number.
type PinUvAuthProtocol uint

const (
	PinUvAuthProtocolOne PinUvAuthProtocol = 1
	PinUvAuthProtocolTwo PinUvAuthProtocol = 2
)

type Option string

const (
	OptionPlatformDevice               Option = "plat"
	OptionResidentKeys                 Option = "rk"
	OptionClientPIN                    Option = "clientPin"
	OptionUserPresence                 Option = "up"
	OptionUserVerification             Option = "uv"
	OptionPinUvAuthToken               Option = "pinUvAuthToken"
	OptionCredentialManagement         Option = "credMgmt"
	OptionCredentialManagementPreview  Option = "credentialMgmtPreview"
	OptionCredentialManagementReadOnly Option = "perCredMgmtRO"
	OptionMakeCredentialUvNotRequired  Option = "makeCredUvNotRqd"
	OptionAlwaysUv                     Option = "alwaysUv"
)

type Version string

const (
	U2F_V2       Version = "U2F_V2"
	FIDO_2_0     Version = "FIDO_2_0"
	FIDO_2_1_PRE Version = "FIDO_2_1_PRE"
	FIDO_2_1     Version = "FIDO_2_1"
	FIDO_2_2     Version = "FIDO_2_2"
)

type Versions []Version

// StatusCode is the first byte of every response frame. CTAP2_OK means the
// payload carries a CBOR response map; any other value is a protocol error
// and the payload, if any, is undefined.
type StatusCode byte

const (
	CTAP2_OK                          StatusCode = 0x00
	CTAP1_ERR_INVALID_COMMAND         StatusCode = 0x01
	CTAP1_ERR_INVALID_PARAMETER       StatusCode = 0x02
	CTAP1_ERR_INVALID_LENGTH          StatusCode = 0x03
	CTAP1_ERR_INVALID_SEQ             StatusCode = 0x04
	CTAP1_ERR_TIMEOUT                 StatusCode = 0x05
	CTAP1_ERR_CHANNEL_BUSY            StatusCode = 0x06
	CTAP1_ERR_LOCK_REQUIRED           StatusCode = 0x0A
	CTAP1_ERR_INVALID_CHANNEL         StatusCode = 0x0B
	CTAP2_ERR_CBOR_UNEXPECTED_TYPE    StatusCode = 0x11
	CTAP2_ERR_INVALID_CBOR            StatusCode = 0x12
	CTAP2_ERR_MISSING_PARAMETER       StatusCode = 0x14
	CTAP2_ERR_LIMIT_EXCEEDED          StatusCode = 0x15
	CTAP2_ERR_FP_DATABASE_FULL        StatusCode = 0x17
	CTAP2_ERR_LARGE_BLOB_STORAGE_FULL StatusCode = 0x18
	CTAP2_ERR_CREDENTIAL_EXCLUDED     StatusCode = 0x19
	CTAP2_ERR_PROCESSING              StatusCode = 0x21
	CTAP2_ERR_INVALID_CREDENTIAL      StatusCode = 0x22
	CTAP2_ERR_USER_ACTION_PENDING     StatusCode = 0x23
	CTAP2_ERR_OPERATION_PENDING       StatusCode = 0x24
	CTAP2_ERR_NO_OPERATIONS           StatusCode = 0x25
	CTAP2_ERR_UNSUPPORTED_ALGORITHM   StatusCode = 0x26
	CTAP2_ERR_OPERATION_DENIED        StatusCode = 0x27
	CTAP2_ERR_KEY_STORE_FULL          StatusCode = 0x28
	CTAP2_ERR_UNSUPPORTED_OPTION      StatusCode = 0x2B
	CTAP2_ERR_INVALID_OPTION          StatusCode = 0x2C
	CTAP2_ERR_KEEPALIVE_CANCEL        StatusCode = 0x2D
	CTAP2_ERR_NO_CREDENTIALS          StatusCode = 0x2E
	CTAP2_ERR_USER_ACTION_TIMEOUT     StatusCode = 0x2F
	CTAP2_ERR_NOT_ALLOWED             StatusCode = 0x30
	CTAP2_ERR_PIN_INVALID             StatusCode = 0x31
	CTAP2_ERR_PIN_BLOCKED             StatusCode = 0x32
	CTAP2_ERR_PIN_AUTH_INVALID        StatusCode = 0x33
	CTAP2_ERR_PIN_AUTH_BLOCKED        StatusCode = 0x34
	CTAP2_ERR_PIN_NOT_SET             StatusCode = 0x35
	CTAP2_ERR_PUAT_REQUIRED           StatusCode = 0x36
	CTAP2_ERR_PIN_POLICY_VIOLATION    StatusCode = 0x37
	CTAP2_ERR_REQUEST_TOO_LARGE       StatusCode = 0x39
	CTAP2_ERR_ACTION_TIMEOUT          StatusCode = 0x3A
	CTAP2_ERR_UP_REQUIRED             StatusCode = 0x3B
	CTAP2_ERR_UV_BLOCKED              StatusCode = 0x3C
	CTAP2_ERR_INTEGRITY_FAILURE       StatusCode = 0x3D
	CTAP2_ERR_INVALID_SUBCOMMAND      StatusCode = 0x3E
	CTAP2_ERR_UV_INVALID              StatusCode = 0x3F
	CTAP2_ERR_UNAUTHORIZED_PERMISSION StatusCode = 0x40
	CTAP1_ERR_OTHER                   StatusCode = 0x7F
	CTAP2_ERR_SPEC_LAST               StatusCode = 0xDF
	CTAP2_ERR_EXTENSION_FIRST         StatusCode = 0xE0
	CTAP2_ERR_EXTENSION_LAST          StatusCode = 0xEF
	CTAP2_ERR_VENDOR_FIRST            StatusCode = 0xF0
	CTAP2_ERR_VENDOR_LAST             StatusCode = 0xFF
)
