package keyrelay

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrConfiguration      = errors.New("keyrelay: configuration error")
	ErrQuotaExhausted     = errors.New("keyrelay: credential quota exhausted")
	ErrServiceUnavailable = errors.New("keyrelay: all credentials exhausted")
	ErrUpstream           = errors.New("keyrelay: upstream error")
	ErrUpstreamTimeout    = errors.New("keyrelay: upstream timed out")
	ErrPersistence        = errors.New("keyrelay: persistence error")
	ErrTranslation        = errors.New("keyrelay: translation error")
	ErrSnapshotNotFound   = errors.New("keyrelay: usage snapshot not found")
)

// DispatchError wraps an error with dispatch context.
type DispatchError struct {
	Err        error
	Credential string // masked
	Attempts   int
}

func (e *DispatchError) Error() string {
	if e.Credential == "" {
		return fmt.Sprintf("keyrelay: attempts=%d: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("keyrelay: credential=%s attempts=%d: %v", e.Credential, e.Attempts, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error can be retried with another credential.
// Only quota exhaustion qualifies; every other failure is surfaced to the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrQuotaExhausted)
}

// IsClientError returns true if the error was caused by the inbound request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrTranslation)
}
