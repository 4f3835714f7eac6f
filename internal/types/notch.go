package types

import (
	"fmt"
	"math"
)

type NotchType string

const (
	// NotchTypeGate is a discrete detent reporting one fixed value.
	NotchTypeGate NotchType = "gate"
	// NotchTypeLinear is a continuous zone mapped proportionally onto a value range.
	NotchTypeLinear NotchType = "linear"
)

// Notch is one segment of a lever's travel. Gate notches carry Value,
// linear notches carry MinValue/MaxValue. InputMin/InputMax hold the
// calibrated hardware sub-range, SimInputMin/SimInputMax the simulator-side
// sub-range this notch maps onto.
type Notch struct {
	Index int       `json:"index"`
	Type  NotchType `json:"type"`

	Value    *float64 `json:"value,omitempty"`
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`

	InputMin *float64 `json:"input_min,omitempty"`
	InputMax *float64 `json:"input_max,omitempty"`

	SimInputMin *float64 `json:"sim_input_min,omitempty"`
	SimInputMax *float64 `json:"sim_input_max,omitempty"`

	Description string `json:"description,omitempty"`

	// Haptic motor parameters, carried per notch for BLDC-equipped levers.
	// Not involved in the mapping math.
	BLDCDetentStrength  *int `json:"bldc_detent_strength,omitempty"`
	BLDCDamping         *int `json:"bldc_damping,omitempty"`
	BLDCEndstopStrength *int `json:"bldc_endstop_strength,omitempty"`
}

// Round2 rounds to 2 decimal places, the storage precision for all notch
// float fields. Negative zero is normalized to positive zero.
func Round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

// HasInputRange reports whether the hardware sub-range has been calibrated.
func (n *Notch) HasInputRange() bool {
	return n.InputMin != nil && n.InputMax != nil
}

// HasSimInputRange reports whether the simulator-side sub-range is known.
func (n *Notch) HasSimInputRange() bool {
	return n.SimInputMin != nil && n.SimInputMax != nil
}

// Round applies the 2-decimal storage precision to every float field.
func (n *Notch) Round() {
	for _, f := range []*float64{n.Value, n.MinValue, n.MaxValue, n.InputMin, n.InputMax, n.SimInputMin, n.SimInputMax} {
		if f != nil {
			*f = Round2(*f)
		}
	}
}

// Validate checks the per-notch invariants.
func (n *Notch) Validate() error {
	switch n.Type {
	case NotchTypeGate:
		if n.Value == nil {
			return fmt.Errorf("notch %d: gate requires value", n.Index)
		}
	case NotchTypeLinear:
		if n.MinValue == nil || n.MaxValue == nil {
			return fmt.Errorf("notch %d: linear requires min_value and max_value", n.Index)
		}
	default:
		return fmt.Errorf("notch %d: unknown type %q", n.Index, n.Type)
	}

	if (n.InputMin == nil) != (n.InputMax == nil) {
		return fmt.Errorf("notch %d: input_min and input_max must be set together", n.Index)
	}
	if n.HasInputRange() {
		if *n.InputMin < 0 || *n.InputMax > 1 {
			return fmt.Errorf("notch %d: input range must lie within [0.0, 1.0]", n.Index)
		}
		if *n.InputMin > *n.InputMax {
			return fmt.Errorf("notch %d: input_min must not exceed input_max", n.Index)
		}
	}

	if (n.SimInputMin == nil) != (n.SimInputMax == nil) {
		return fmt.Errorf("notch %d: sim_input_min and sim_input_max must be set together", n.Index)
	}
	// Sim input ranges are not constrained to [0,1]; some simulator axes are
	// negative or exceed 1.
	if n.HasSimInputRange() && *n.SimInputMin > *n.SimInputMax {
		return fmt.Errorf("notch %d: sim_input_min must not exceed sim_input_max", n.Index)
	}

	for name, p := range map[string]*int{
		"bldc_detent_strength":  n.BLDCDetentStrength,
		"bldc_damping":          n.BLDCDamping,
		"bldc_endstop_strength": n.BLDCEndstopStrength,
	} {
		if p != nil && (*p < 0 || *p > 255) {
			return fmt.Errorf("notch %d: %s must be in [0, 255]", n.Index, name)
		}
	}

	return nil
}

// ValidateNotchSet checks a lever's complete notch list: every notch valid
// and indices contiguous from 0 in list order.
func ValidateNotchSet(notches []Notch) error {
	if len(notches) == 0 {
		return fmt.Errorf("lever requires at least one notch")
	}
	for i := range notches {
		if notches[i].Index != i {
			return fmt.Errorf("notch indices must be contiguous: position %d has index %d", i, notches[i].Index)
		}
		if err := notches[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Float64Ptr is a convenience for building notch literals.
func Float64Ptr(v float64) *float64 { return &v }
