package client

import (
	"github.com/lumachat/lumaclient/internal/transport"
)

// Error codes the backend returns in the {"error": CODE} body.
const (
	CodeUsernameExists   = "USERNAME_EXISTS"
	CodeUsernameRequired = "USERNAME_REQUIRED"
	CodeUsernameInvalid  = "USERNAME_INVALID"
	CodeUserDoesNotExist = "USER_DOES_NOT_EXIST"
	CodePasswordRequired = "PASSWORD_REQUIRED"
	CodePasswordInvalid  = "PASSWORD_INVALID"
	CodeEmailRequired    = "EMAIL_REQUIRED"
	CodeEmailInvalid     = "EMAIL_INVALID"
	CodeBadRequest       = "BAD_REQUEST"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternalError    = "INTERNAL_SERVER_ERROR"
)

const genericErrorText = "Something went wrong, please try again"

// display text per known code; server messages are never shown raw
var errorText = map[string]string{
	CodeUsernameExists:   "Username already exists",
	CodeUsernameRequired: "Username is required",
	CodeUsernameInvalid:  "Username is invalid",
	CodeUserDoesNotExist: "No account with that username",
	CodePasswordRequired: "Password is required",
	CodePasswordInvalid:  "Password is invalid",
	CodeEmailRequired:    "Email is required",
	CodeEmailInvalid:     "Email is invalid",
	CodeBadRequest:       "Invalid request",
	CodeNotFound:         "Not found",
	CodeUnauthorized:     "You are not signed in",
	CodeInternalError:    "The server hit an internal error",
}

// DisplayText maps a request failure to user-facing text, falling back
// to a generic message for codes the client does not know.
func DisplayText(err error) string {
	if err == nil {
		return ""
	}

	if text, ok := errorText[transport.CodeOf(err)]; ok {
		return text
	}

	return genericErrorText
}
