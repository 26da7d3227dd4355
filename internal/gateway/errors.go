package gateway

import (
	"errors"
	"fmt"

	"fpoadmin/pkg/domain"
)

// NetworkError reports a failed remote call: either a transport error
// (Status 0) or a non-2xx response. It matches domain.ErrNetworkFailure.
type NetworkError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("gateway: %s: status %d: %s", e.Op, e.Status, e.Message)
	default:
		return fmt.Sprintf("gateway: %s: status %d", e.Op, e.Status)
	}
}

// Is makes errors.Is(err, domain.ErrNetworkFailure) hold.
func (e *NetworkError) Is(target error) bool {
	return target == domain.ErrNetworkFailure
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkFailure reports whether err came from the transport layer.
func IsNetworkFailure(err error) bool {
	return errors.Is(err, domain.ErrNetworkFailure)
}
