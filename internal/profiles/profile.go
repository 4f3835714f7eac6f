// Package profiles imports lever profile documents: JSON files that
// describe the notch layout of a train's levers so operators do not
// have to enter nominal values by hand. Profiles carry no physical
// input ranges; those come from calibration.
package profiles

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opencab/OpenCabBridge/internal/types"
)

// Profile is one lever profile document.
type Profile struct {
	SchemaVersion int            `json:"schema_version"`
	Name          string         `json:"name"`
	Train         string         `json:"train"`
	Description   string         `json:"description,omitempty"`
	Levers        []ProfileLever `json:"levers"`
}

// ProfileLever describes one lever within a profile.
type ProfileLever struct {
	Name          string         `json:"name"`
	SimControlID  string         `json:"sim_control_id"`
	HardwareInput string         `json:"hardware_input,omitempty"`
	Inverted      bool           `json:"inverted"`
	Notches       []ProfileNotch `json:"notches"`
}

// ProfileNotch is the profile-file form of a notch. Gate notches carry
// value, linear notches min_value/max_value.
type ProfileNotch struct {
	Index       int      `json:"index"`
	Type        string   `json:"type"`
	Value       *float64 `json:"value,omitempty"`
	MinValue    *float64 `json:"min_value,omitempty"`
	MaxValue    *float64 `json:"max_value,omitempty"`
	Description string   `json:"description,omitempty"`

	BLDCDetentStrength  *int `json:"bldc_detent_strength,omitempty"`
	BLDCDamping         *int `json:"bldc_damping,omitempty"`
	BLDCEndstopStrength *int `json:"bldc_endstop_strength,omitempty"`
}

// ToLeverConfigs converts a profile into fresh uncalibrated lever
// configurations, one per profile lever.
func (p *Profile) ToLeverConfigs() ([]*types.LeverConfig, error) {
	now := time.Now()
	configs := make([]*types.LeverConfig, 0, len(p.Levers))

	for _, pl := range p.Levers {
		cfg := &types.LeverConfig{
			ID:              uuid.New(),
			Name:            pl.Name,
			Inverted:        pl.Inverted,
			SimControlID:    pl.SimControlID,
			HardwareInputID: pl.HardwareInput,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		for _, pn := range pl.Notches {
			cfg.Notches = append(cfg.Notches, types.Notch{
				Index:       pn.Index,
				Type:        types.NotchType(pn.Type),
				Value:       pn.Value,
				MinValue:    pn.MinValue,
				MaxValue:    pn.MaxValue,
				Description: pn.Description,

				BLDCDetentStrength:  pn.BLDCDetentStrength,
				BLDCDamping:         pn.BLDCDamping,
				BLDCEndstopStrength: pn.BLDCEndstopStrength,
			})
		}

		if err := types.ValidateNotchSet(cfg.Notches); err != nil {
			return nil, fmt.Errorf("profile lever %q: %w", pl.Name, err)
		}

		configs = append(configs, cfg)
	}

	return configs, nil
}
