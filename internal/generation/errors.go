package generation

import "errors"

var (
	// ErrGenerationFailed indicates the provider call itself failed.
	ErrGenerationFailed = errors.New("model generation failed")

	// ErrEmptyResponse indicates the provider returned no usable text.
	ErrEmptyResponse = errors.New("model returned empty response")

	// ErrMalformedResponse indicates the provider's text could not be
	// parsed into the expected structure.
	ErrMalformedResponse = errors.New("model returned malformed response")
)
