package embedding

import "errors"

var (
	// ErrRateLimited and ErrTransient are the only retried failures.
	ErrRateLimited = errors.New("embedding provider rate limited")
	ErrTransient   = errors.New("embedding provider transient failure")

	ErrInvalidInput      = errors.New("invalid embedding input")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrCircuitOpen       = errors.New("embedding provider circuit open")
	ErrEmbeddingFailed   = errors.New("embedding failed")
)

// IsRetryable reports whether err is worth another provider call.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
