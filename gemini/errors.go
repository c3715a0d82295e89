package gemini

import (
	"errors"
	"fmt"
)

// ErrProviderUnavailable marks transport-level failures: the request never produced a
// response (connection refused, reset, DNS, per-attempt timeout).
var ErrProviderUnavailable = errors.New("gemini: provider unavailable")

// ProviderError is a non-2xx response from the generateContent endpoint.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected http status %d from generateContent", e.StatusCode)
	}
	return fmt.Sprintf("unexpected http status %d from generateContent: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err is a transport failure that another attempt may fix.
// Anything else (malformed JSON, request encoding) is critical.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return true
	}

	return errors.Is(err, ErrProviderUnavailable)
}
