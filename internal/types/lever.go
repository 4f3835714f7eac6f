package types

import (
	"time"

	"github.com/google/uuid"
)

// LeverConfig is one lever's full configuration: its ordered notch list,
// whether the hardware's physical direction is reversed relative to notch
// order, and the endpoint identifiers binding it to the simulator control
// and the hardware input channel.
type LeverConfig struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Inverted        bool       `json:"inverted"`
	SimControlID    string     `json:"sim_control_id"`
	HardwareInputID string     `json:"hardware_input_id"`
	Notches         []Notch    `json:"notches"`
	CalibratedAt    *time.Time `json:"calibrated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Calibrated reports whether every notch carries a hardware input range.
func (l *LeverConfig) Calibrated() bool {
	if len(l.Notches) == 0 {
		return false
	}
	for i := range l.Notches {
		if !l.Notches[i].HasInputRange() {
			return false
		}
	}
	return true
}

// InputRange is a captured hardware sub-range for one notch.
type InputRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}
