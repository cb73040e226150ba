package model

import "errors"

// Credential and token outcomes. Callers tell them apart with errors.Is or KindOf.
var (
	ErrNullUserField    = errors.New("username or password cannot be empty")
	ErrWrongCredentials = errors.New("wrong username or password")
	ErrUsernameExists   = errors.New("username already exists")
	ErrInsecurePassword = errors.New("password does not meet the security policy")
	ErrMalformedToken   = errors.New("token format is invalid")
	ErrInvalidToken     = errors.New("token is invalid")
	ErrExpiredToken     = errors.New("token is expired")
	ErrNotAdmin         = errors.New("not enough privileges")
)

// Portal outcomes.
var (
	ErrNotFound         = errors.New("not found")
	ErrNotOwner         = errors.New("you are not the owner of this job")
	ErrInvalidID        = errors.New("invalid identifier")
	ErrFieldsIncomplete = errors.New("job fields are incomplete")
	ErrInvalidJobState  = errors.New("operation not allowed in the current job status")
	ErrFileTypeRejected = errors.New("file type not accepted by this factory")
)

// Storage-level errors returned by outbound adapters.
var (
	ErrStoreCorrupted  = errors.New("store file corrupted")
	ErrInvalidChecksum = errors.New("invalid file checksum")
	ErrTokenExists     = errors.New("api token already stored")
)

type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindNullUserField
	KindWrongCredentials
	KindUsernameExists
	KindInsecurePassword
	KindMalformedToken
	KindInvalidToken
	KindExpiredToken
	KindNotAdmin
	KindNotFound
	KindNotOwner
	KindInvalidID
	KindFieldsIncomplete
	KindInvalidJobState
	KindFileTypeRejected
)

var kindNames = map[ErrorKind]string{
	KindUnexpected:       "unexpected",
	KindNullUserField:    "null_user_field",
	KindWrongCredentials: "wrong_credentials",
	KindUsernameExists:   "username_exists",
	KindInsecurePassword: "insecure_password",
	KindMalformedToken:   "malformed_token",
	KindInvalidToken:     "invalid_token",
	KindExpiredToken:     "expired_token",
	KindNotAdmin:         "not_admin",
	KindNotFound:         "not_found",
	KindNotOwner:         "not_owner",
	KindInvalidID:        "invalid_id",
	KindFieldsIncomplete: "fields_incomplete",
	KindInvalidJobState:  "invalid_job_state",
	KindFileTypeRejected: "file_type_rejected",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unexpected"
}

var kindErrors = []struct {
	err  error
	kind ErrorKind
}{
	{ErrNullUserField, KindNullUserField},
	{ErrWrongCredentials, KindWrongCredentials},
	{ErrUsernameExists, KindUsernameExists},
	{ErrInsecurePassword, KindInsecurePassword},
	{ErrMalformedToken, KindMalformedToken},
	{ErrInvalidToken, KindInvalidToken},
	{ErrExpiredToken, KindExpiredToken},
	{ErrNotAdmin, KindNotAdmin},
	{ErrNotFound, KindNotFound},
	{ErrNotOwner, KindNotOwner},
	{ErrInvalidID, KindInvalidID},
	{ErrFieldsIncomplete, KindFieldsIncomplete},
	{ErrInvalidJobState, KindInvalidJobState},
	{ErrFileTypeRejected, KindFileTypeRejected},
}

// KindOf classifies err. Anything outside the known taxonomy, including nil, is KindUnexpected.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnexpected
	}
	for _, ke := range kindErrors {
		if errors.Is(err, ke.err) {
			return ke.kind
		}
	}
	return KindUnexpected
}
