package ctaptypes

import "fmt"

func (c Command) String() string {
	switch c {
	case AuthenticatorMakeCredential:
		return "authenticatorMakeCredential"
	case AuthenticatorGetAssertion:
		return "authenticatorGetAssertion"
	case AuthenticatorGetInfo:
		return "authenticatorGetInfo"
	case AuthenticatorGetNextAssertion:
		return "authenticatorGetNextAssertion"
	case AuthenticatorCredentialManagement:
		return "authenticatorCredentialManagement"
	case PrototypeAuthenticatorCredentialManagement:
		return "prototypeAuthenticatorCredentialManagement"
	default:
		return fmt.Sprintf("Command(0x%02x)", byte(c))
	}
}

func (sc CredentialManagementSubCommand) String() string {
	switch sc {
	case CredentialManagementSubCommandGetCredsMetadata:
		return "getCredsMetadata"
	case CredentialManagementSubCommandEnumerateRPsBegin:
		return "enumerateRPsBegin"
	case CredentialManagementSubCommandEnumerateRPsGetNextRP:
		return "enumerateRPsGetNextRP"
	case CredentialManagementSubCommandEnumerateCredentialsBegin:
		return "enumerateCredentialsBegin"
	case CredentialManagementSubCommandEnumerateCredentialsGetNextCredential:
		return "enumerateCredentialsGetNextCredential"
	case CredentialManagementSubCommandDeleteCredential:
		return "deleteCredential"
	case CredentialManagementSubCommandUpdateUserInformation:
		return "updateUserInformation"
	default:
		return fmt.Sprintf("CredentialManagementSubCommand(0x%02x)", byte(sc))
	}
}

var statusCodeNames = map[StatusCode]string{
	CTAP2_OK:                          "CTAP2_OK",
	CTAP1_ERR_INVALID_COMMAND:         "CTAP1_ERR_INVALID_COMMAND",
	CTAP1_ERR_INVALID_PARAMETER:       "CTAP1_ERR_INVALID_PARAMETER",
	CTAP1_ERR_INVALID_LENGTH:          "CTAP1_ERR_INVALID_LENGTH",
	CTAP1_ERR_INVALID_SEQ:             "CTAP1_ERR_INVALID_SEQ",
	CTAP1_ERR_TIMEOUT:                 "CTAP1_ERR_TIMEOUT",
	CTAP1_ERR_CHANNEL_BUSY:            "CTAP1_ERR_CHANNEL_BUSY",
	CTAP1_ERR_LOCK_REQUIRED:           "CTAP1_ERR_LOCK_REQUIRED",
	CTAP1_ERR_INVALID_CHANNEL:         "CTAP1_ERR_INVALID_CHANNEL",
	CTAP2_ERR_CBOR_UNEXPECTED_TYPE:    "CTAP2_ERR_CBOR_UNEXPECTED_TYPE",
	CTAP2_ERR_INVALID_CBOR:            "CTAP2_ERR_INVALID_CBOR",
	CTAP2_ERR_MISSING_PARAMETER:       "CTAP2_ERR_MISSING_PARAMETER",
	CTAP2_ERR_LIMIT_EXCEEDED:          "CTAP2_ERR_LIMIT_EXCEEDED",
	CTAP2_ERR_FP_DATABASE_FULL:        "CTAP2_ERR_FP_DATABASE_FULL",
	CTAP2_ERR_LARGE_BLOB_STORAGE_FULL: "CTAP2_ERR_LARGE_BLOB_STORAGE_FULL",
	CTAP2_ERR_CREDENTIAL_EXCLUDED:     "CTAP2_ERR_CREDENTIAL_EXCLUDED",
	CTAP2_ERR_PROCESSING:              "CTAP2_ERR_PROCESSING",
	CTAP2_ERR_INVALID_CREDENTIAL:      "CTAP2_ERR_INVALID_CREDENTIAL",
	CTAP2_ERR_USER_ACTION_PENDING:     "CTAP2_ERR_USER_ACTION_PENDING",
	CTAP2_ERR_OPERATION_PENDING:       "CTAP2_ERR_OPERATION_PENDING",
	CTAP2_ERR_NO_OPERATIONS:           "CTAP2_ERR_NO_OPERATIONS",
	CTAP2_ERR_UNSUPPORTED_ALGORITHM:   "CTAP2_ERR_UNSUPPORTED_ALGORITHM",
	CTAP2_ERR_OPERATION_DENIED:        "CTAP2_ERR_OPERATION_DENIED",
	CTAP2_ERR_KEY_STORE_FULL:          "CTAP2_ERR_KEY_STORE_FULL",
	CTAP2_ERR_UNSUPPORTED_OPTION:      "CTAP2_ERR_UNSUPPORTED_OPTION",
	CTAP2_ERR_INVALID_OPTION:          "CTAP2_ERR_INVALID_OPTION",
	CTAP2_ERR_KEEPALIVE_CANCEL:        "CTAP2_ERR_KEEPALIVE_CANCEL",
	CTAP2_ERR_NO_CREDENTIALS:          "CTAP2_ERR_NO_CREDENTIALS",
	CTAP2_ERR_USER_ACTION_TIMEOUT:     "CTAP2_ERR_USER_ACTION_TIMEOUT",
	CTAP2_ERR_NOT_ALLOWED:             "CTAP2_ERR_NOT_ALLOWED",
	CTAP2_ERR_PIN_INVALID:             "CTAP2_ERR_PIN_INVALID",
	CTAP2_ERR_PIN_BLOCKED:             "CTAP2_ERR_PIN_BLOCKED",
	CTAP2_ERR_PIN_AUTH_INVALID:        "CTAP2_ERR_PIN_AUTH_INVALID",
	CTAP2_ERR_PIN_AUTH_BLOCKED:        "CTAP2_ERR_PIN_AUTH_BLOCKED",
	CTAP2_ERR_PIN_NOT_SET:             "CTAP2_ERR_PIN_NOT_SET",
	CTAP2_ERR_PUAT_REQUIRED:           "CTAP2_ERR_PUAT_REQUIRED",
	CTAP2_ERR_PIN_POLICY_VIOLATION:    "CTAP2_ERR_PIN_POLICY_VIOLATION",
	CTAP2_ERR_REQUEST_TOO_LARGE:       "CTAP2_ERR_REQUEST_TOO_LARGE",
	CTAP2_ERR_ACTION_TIMEOUT:          "CTAP2_ERR_ACTION_TIMEOUT",
	CTAP2_ERR_UP_REQUIRED:             "CTAP2_ERR_UP_REQUIRED",
	CTAP2_ERR_UV_BLOCKED:              "CTAP2_ERR_UV_BLOCKED",
	CTAP2_ERR_INTEGRITY_FAILURE:       "CTAP2_ERR_INTEGRITY_FAILURE",
	CTAP2_ERR_INVALID_SUBCOMMAND:      "CTAP2_ERR_INVALID_SUBCOMMAND",
	CTAP2_ERR_UV_INVALID:              "CTAP2_ERR_UV_INVALID",
	CTAP2_ERR_UNAUTHORIZED_PERMISSION: "CTAP2_ERR_UNAUTHORIZED_PERMISSION",
	CTAP1_ERR_OTHER:                   "CTAP1_ERR_OTHER",
}

func (sc StatusCode) String() string {
	if name, ok := statusCodeNames[sc]; ok {
		return name
	}

	switch {
	case sc >= CTAP2_ERR_EXTENSION_FIRST && sc <= CTAP2_ERR_EXTENSION_LAST:
		return fmt.Sprintf("CTAP2_ERR_EXTENSION(0x%02x)", byte(sc))
	case sc >= CTAP2_ERR_VENDOR_FIRST:
		return fmt.Sprintf("CTAP2_ERR_VENDOR(0x%02x)", byte(sc))
	default:
		return fmt.Sprintf("StatusCode(0x%02x)", byte(sc))
	}
}
