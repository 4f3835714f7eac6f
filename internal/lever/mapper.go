// Package lever implements the pure lever position mapping core: given a
// lever's calibrated notch list and a normalized hardware input, it computes
// the value to write to the simulator's control endpoint.
package lever

import (
	"github.com/opencab/OpenCabBridge/internal/types"
)

// FindNotch returns the notch whose calibrated hardware range contains input.
// Interior notches own [input_min, input_max); the last calibrated notch's
// upper bound is inclusive, so input == 1.0 matches a full-travel layout even
// when trailing notches are still uncalibrated. Uncalibrated notches are
// skipped. The second return is false when the input falls into no notch,
// which is a normal outcome for levers with dead zones.
func FindNotch(notches []types.Notch, input float64) (*types.Notch, bool) {
	last := -1
	for i := range notches {
		if notches[i].HasInputRange() {
			last = i
		}
	}

	for i := range notches {
		n := &notches[i]
		if !n.HasInputRange() {
			continue
		}
		if input < *n.InputMin {
			continue
		}
		if input < *n.InputMax || (i == last && input == *n.InputMax) {
			return n, true
		}
	}
	return nil, false
}

// CalculateSimInput computes the simulator-facing value for an input already
// associated with the given notch. Gates report the center of their sim
// range regardless of the exact position inside the detent's dead zone;
// linear notches interpolate the input's fractional position onto the sim
// range. The result carries the 2-decimal storage precision.
func CalculateSimInput(n *types.Notch, input float64) (float64, error) {
	if !n.HasSimInputRange() {
		return 0, types.ErrNoSimInputRange
	}

	if n.Type == types.NotchTypeGate {
		return types.Round2((*n.SimInputMin + *n.SimInputMax) / 2), nil
	}

	if !n.HasInputRange() {
		return 0, types.ErrUnmappedNotch
	}

	var p float64
	if span := *n.InputMax - *n.InputMin; span > 0 {
		p = (input - *n.InputMin) / span
	}
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}

	return types.Round2(*n.SimInputMin + p*(*n.SimInputMax-*n.SimInputMin)), nil
}

// MapInput is the runtime entry point: one hardware sample in, one simulator
// value out. Inversion translates the physical axis direction before any
// notch lookup; it does not change how notches are defined.
func MapInput(cfg *types.LeverConfig, raw float64) (float64, error) {
	effective := raw
	if cfg.Inverted {
		effective = 1.0 - raw
	}

	n, ok := FindNotch(cfg.Notches, effective)
	if !ok {
		return 0, types.ErrNoNotch
	}

	return CalculateSimInput(n, effective)
}

// MapDetent returns the sim value for the detentIndex-th gate notch, in
// index order, ignoring linear notches. Used for "jump to notch N" commands.
func MapDetent(cfg *types.LeverConfig, detentIndex int) (float64, error) {
	if detentIndex < 0 {
		return 0, types.ErrNoGateAtIndex
	}

	seen := 0
	for i := range cfg.Notches {
		n := &cfg.Notches[i]
		if n.Type != types.NotchTypeGate {
			continue
		}
		if seen == detentIndex {
			if !n.HasSimInputRange() {
				return 0, types.ErrNoSimInputRange
			}
			return types.Round2((*n.SimInputMin + *n.SimInputMax) / 2), nil
		}
		seen++
	}

	return 0, types.ErrNoGateAtIndex
}

// ReversedLayout reports whether the lever's physical notch ordering runs
// opposite to its logical ordering: the sim-input midpoints and the
// hardware-input midpoints progress in opposite directions. Diagnostic only;
// inversion plus per-notch ranges already fully determine the mapping.
func ReversedLayout(notches []types.Notch) bool {
	type mid struct{ in, sim float64 }
	mids := make([]mid, 0, len(notches))
	for i := range notches {
		n := &notches[i]
		if !n.HasInputRange() || !n.HasSimInputRange() {
			continue
		}
		mids = append(mids, mid{
			in:  (*n.InputMin + *n.InputMax) / 2,
			sim: (*n.SimInputMin + *n.SimInputMax) / 2,
		})
	}
	if len(mids) < 2 {
		return false
	}

	first, last := mids[0], mids[len(mids)-1]
	return (last.in-first.in)*(last.sim-first.sim) < 0
}
