package shared

import (
	"errors"
	"fmt"
)

// RequestError is used when we want a specific error message and StatusCode.
// Lower layers join one of the sentinels below into their error chain and the
// router classifies the chain with errors.Is.
//
// Error codes should be bubbled where the RequestError msg is expected to be
// returned to the user. If the user should see a generic error message but
// the error chain should include more detail for logging purposes, then a generic
// error should be added that provides context
type RequestError struct {
	StatusCode int
	Err        error
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status %d: err %v", r.StatusCode, r.Err)
}

// Message is the user facing part of the error
func (r *RequestError) Message() string {
	return r.Err.Error()
}

var (
	ErrMissingAuth   = &RequestError{Err: errors.New("missing authorization header"), StatusCode: 401}
	ErrInvalidFormat = &RequestError{Err: errors.New("invalid authentication format"), StatusCode: 401}
	ErrInvalidKeyLen = &RequestError{Err: errors.New("invalid API key length"), StatusCode: 401}
	ErrUnauthorized  = &RequestError{Err: errors.New("unauthorized"), StatusCode: 401}

	ErrBadRequest         = &RequestError{Err: errors.New("bad request"), StatusCode: 400}
	ErrInvalidRequest     = &RequestError{Err: errors.New("invalid request body"), StatusCode: 400}
	ErrInsufficientCredit = &RequestError{Err: errors.New("insufficient credits"), StatusCode: 400}
	ErrUserNotFound       = &RequestError{Err: errors.New("user not found"), StatusCode: 400}

	ErrNotFound = &RequestError{Err: errors.New("not found"), StatusCode: 404}

	ErrInternalServerError   = &RequestError{Err: errors.New("internal server error"), StatusCode: 500}
	ErrProviderJobFailed     = &RequestError{Err: errors.New("generation failed"), StatusCode: 500}
	ErrInvalidProviderOutput = &RequestError{Err: errors.New("invalid output from inference provider"), StatusCode: 500}
	ErrArtifactFetchFailed   = &RequestError{Err: errors.New("failed to fetch generated image"), StatusCode: 500}
	ErrStorageWriteFailed    = &RequestError{Err: errors.New("failed to upload image to storage"), StatusCode: 500}
	ErrRecordWriteFailed     = &RequestError{Err: errors.New("failed to save emoji"), StatusCode: 500}
	ErrGenerationTimeout     = &RequestError{Err: errors.New("generation timed out"), StatusCode: 500}
)

// ClassifyError returns the first RequestError sentinel found in the chain,
// falling back to ErrInternalServerError
func ClassifyError(err error) *RequestError {
	for _, sentinel := range []*RequestError{
		ErrMissingAuth,
		ErrInvalidFormat,
		ErrInvalidKeyLen,
		ErrUnauthorized,
		ErrInsufficientCredit,
		ErrUserNotFound,
		ErrInvalidRequest,
		ErrBadRequest,
		ErrNotFound,
		ErrProviderJobFailed,
		ErrInvalidProviderOutput,
		ErrArtifactFetchFailed,
		ErrStorageWriteFailed,
		ErrRecordWriteFailed,
		ErrGenerationTimeout,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	var rerr *RequestError
	if errors.As(err, &rerr) {
		return rerr
	}
	return ErrInternalServerError
}
