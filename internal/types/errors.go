package types

import "errors"

// Mapping and calibration error taxonomy. All of these are expected,
// recoverable conditions for the control loop: a failed mapping simply means
// no command is sent that tick.
var (
	// ErrNoNotch: the input falls into no calibrated notch's range
	// (uncalibrated dead zone).
	ErrNoNotch = errors.New("input matches no calibrated notch")

	// ErrNoSimInputRange: the notch lacks its simulator-side sub-range.
	ErrNoSimInputRange = errors.New("notch has no sim input range")

	// ErrUnmappedNotch: a linear notch lacks its hardware input range.
	ErrUnmappedNotch = errors.New("linear notch has no input range")

	// ErrNoGateAtIndex: detent lookup beyond the lever's gate count.
	ErrNoGateAtIndex = errors.New("no gate notch at index")

	// ErrNoSamples: capture requested before any samples accumulated.
	ErrNoSamples = errors.New("no samples accumulated")

	// ErrNoRangeDetected: accumulated samples show no meaningful variation;
	// the operator likely did not move the lever.
	ErrNoRangeDetected = errors.New("no range detected in samples")
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
