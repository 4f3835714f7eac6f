package types

import (
	"math"
	"testing"
)

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0.035, 0.04},
		{0.333333, 0.33},
		{1.005, 1.0}, // 1.005 stored as slightly below, rounds down
		{-0.355, -0.36},
		{2.0, 2.0},
	}
	for _, c := range cases {
		if got := Round2(c.in); got != c.want {
			t.Errorf("Round2(%v) = %v, want %v", c.in, got, c.want)
		}
	}

	if math.Signbit(Round2(-0.0)) {
		t.Error("Round2(-0.0) must be positive zero")
	}
}

func TestNotchValidateRequiredFields(t *testing.T) {
	gate := Notch{Index: 0, Type: NotchTypeGate}
	if err := gate.Validate(); err == nil {
		t.Error("gate without value must not validate")
	}
	gate.Value = Float64Ptr(0.5)
	if err := gate.Validate(); err != nil {
		t.Errorf("valid gate rejected: %v", err)
	}

	linear := Notch{Index: 0, Type: NotchTypeLinear, MinValue: Float64Ptr(0)}
	if err := linear.Validate(); err == nil {
		t.Error("linear without max_value must not validate")
	}
	linear.MaxValue = Float64Ptr(1)
	if err := linear.Validate(); err != nil {
		t.Errorf("valid linear rejected: %v", err)
	}

	unknown := Notch{Index: 0, Type: NotchType("bezier")}
	if err := unknown.Validate(); err == nil {
		t.Error("unknown notch type must not validate")
	}
}

func TestNotchValidateInputRange(t *testing.T) {
	n := Notch{Index: 0, Type: NotchTypeGate, Value: Float64Ptr(0)}

	n.InputMin = Float64Ptr(0.2)
	if err := n.Validate(); err == nil {
		t.Error("input_min without input_max must not validate")
	}

	n.InputMax = Float64Ptr(0.1)
	if err := n.Validate(); err == nil {
		t.Error("input_min > input_max must not validate")
	}

	n.InputMax = Float64Ptr(1.5)
	if err := n.Validate(); err == nil {
		t.Error("input range outside [0,1] must not validate")
	}

	n.InputMax = Float64Ptr(0.8)
	if err := n.Validate(); err != nil {
		t.Errorf("valid input range rejected: %v", err)
	}
}

func TestNotchValidateSimRangeUnbounded(t *testing.T) {
	// Sim axes may be negative or exceed 1.
	n := Notch{
		Index: 0, Type: NotchTypeGate, Value: Float64Ptr(-1),
		SimInputMin: Float64Ptr(-1.5), SimInputMax: Float64Ptr(2.0),
	}
	if err := n.Validate(); err != nil {
		t.Errorf("unbounded sim range rejected: %v", err)
	}

	n.SimInputMin = Float64Ptr(3.0)
	if err := n.Validate(); err == nil {
		t.Error("sim_input_min > sim_input_max must not validate")
	}
}

func TestNotchValidateBLDCBounds(t *testing.T) {
	bad := 300
	n := Notch{Index: 0, Type: NotchTypeGate, Value: Float64Ptr(0), BLDCDamping: &bad}
	if err := n.Validate(); err == nil {
		t.Error("bldc parameter above 255 must not validate")
	}

	ok := 255
	n.BLDCDamping = &ok
	if err := n.Validate(); err != nil {
		t.Errorf("valid bldc parameter rejected: %v", err)
	}
}

func TestValidateNotchSetContiguity(t *testing.T) {
	notches := []Notch{
		{Index: 0, Type: NotchTypeGate, Value: Float64Ptr(0)},
		{Index: 2, Type: NotchTypeGate, Value: Float64Ptr(1)},
	}
	if err := ValidateNotchSet(notches); err == nil {
		t.Error("gapped indices must not validate")
	}

	notches[1].Index = 1
	if err := ValidateNotchSet(notches); err != nil {
		t.Errorf("contiguous set rejected: %v", err)
	}

	if err := ValidateNotchSet(nil); err == nil {
		t.Error("empty notch set must not validate")
	}
}

func TestNotchRoundAppliesToAllFloats(t *testing.T) {
	n := Notch{
		Index: 0, Type: NotchTypeLinear,
		MinValue: Float64Ptr(0.111111), MaxValue: Float64Ptr(0.999999),
		InputMin: Float64Ptr(0.123456), InputMax: Float64Ptr(0.654321),
		SimInputMin: Float64Ptr(-0.005), SimInputMax: Float64Ptr(1.005),
	}
	n.Round()

	if *n.MinValue != 0.11 || *n.MaxValue != 1.0 {
		t.Errorf("value range not rounded: %v %v", *n.MinValue, *n.MaxValue)
	}
	if *n.InputMin != 0.12 || *n.InputMax != 0.65 {
		t.Errorf("input range not rounded: %v %v", *n.InputMin, *n.InputMax)
	}
	// Round2 rounds half away from zero, so -0.005 lands on -0.01.
	if *n.SimInputMin != -0.01 || *n.SimInputMax != 1.0 {
		t.Errorf("sim range not rounded: %v %v", *n.SimInputMin, *n.SimInputMax)
	}
}
