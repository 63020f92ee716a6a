package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Each error class has a distinct recovery story:
// parameter errors never reach the gateway, transient errors are retried
// before surfacing, and exchange rejections surface immediately.
var (
	ErrInvalidParameters  = errors.New("invalid parameters")
	ErrRateLimitTimeout   = errors.New("rate limit timeout")
	ErrSubmissionFailed   = errors.New("submission failed after retries")
	ErrRejectedByExchange = errors.New("rejected by exchange")
	ErrStaleEvent         = errors.New("stale event")
	ErrNotFound           = errors.New("not found")
	ErrInternal           = errors.New("internal error")
)

// GatewayError is a structured rejection from the exchange gateway.
type GatewayError struct {
	Code      int // exchange error code, 0 for transport failures
	Msg       string
	Transient bool // retryable (timeout, 5xx, "try again")
	Duplicate bool // duplicate client order id: the first attempt succeeded
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Msg)
}

// AsGatewayError unwraps err into a GatewayError if present.
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}
