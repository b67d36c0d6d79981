package service

import "errors"

// Failure kinds reported by registry operations. Match them with errors.Is; validation
// failures wrap them with the offending detail.
var (
	ErrNotFound            = errors.New("document not found")
	ErrOwnershipRequired   = errors.New("caller is not the document owner")
	ErrInvalidTitle        = errors.New("invalid title")
	ErrInvalidVolume       = errors.New("invalid file size")
	ErrTagValidationFailed = errors.New("tag validation failed")
	ErrUnauthorized        = errors.New("caller may not access this document")
	ErrAdminOnly           = errors.New("administrator only operation")
)

// Machine-readable failure codes.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeOwnershipRequired   = "OWNERSHIP_REQUIRED"
	CodeInvalidTitle        = "INVALID_TITLE"
	CodeInvalidVolume       = "INVALID_VOLUME"
	CodeTagValidationFailed = "TAG_VALIDATION_FAILED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeAdminOnly           = "ADMIN_ONLY_OPERATION"
	CodeInternal            = "INTERNAL_ERROR"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrNotFound, CodeNotFound},
	{ErrOwnershipRequired, CodeOwnershipRequired},
	{ErrInvalidTitle, CodeInvalidTitle},
	{ErrInvalidVolume, CodeInvalidVolume},
	{ErrTagValidationFailed, CodeTagValidationFailed},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrAdminOnly, CodeAdminOnly},
}

// Code maps an operation error to its failure code. Errors outside the fixed
// enumeration (store or height failures) map to CodeInternal; nil maps to "".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
