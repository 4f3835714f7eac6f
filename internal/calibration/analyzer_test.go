package calibration

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opencab/OpenCabBridge/internal/sim"
	"github.com/opencab/OpenCabBridge/internal/types"
)

type scriptedReader struct {
	mu     sync.Mutex
	script []sim.ControlReading
	cursor int
}

func (r *scriptedReader) GetControl(_ context.Context, _ string) (sim.ControlReading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reading := r.script[r.cursor]
	if r.cursor < len(r.script)-1 {
		r.cursor++
	}
	return reading, nil
}

func obs(values []float64, notchIndex int) []observation {
	out := make([]observation, len(values))
	for i, v := range values {
		out[i] = observation{value: v, notchIndex: notchIndex}
	}
	return out
}

func TestSegmentGateAndLinear(t *testing.T) {
	// Brake lever: a release detent at 0, a continuous service zone, an
	// emergency detent at 1.
	var trace []observation
	trace = append(trace, obs([]float64{0.0, 0.0, 0.0}, 0)...)
	trace = append(trace, obs([]float64{0.1, 0.25, 0.5, 0.75, 0.9}, 1)...)
	trace = append(trace, obs([]float64{1.0, 1.0}, 2)...)

	notches, err := segment(trace, 3, 0.0, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if notches[0].Type != types.NotchTypeGate {
		t.Errorf("notch 0: expected gate, got %s", notches[0].Type)
	}
	if *notches[0].Value != 0.0 {
		t.Errorf("notch 0: expected value 0.0, got %v", *notches[0].Value)
	}
	// Boundary sits halfway between the detent and the zone's first value.
	if *notches[0].SimInputMin != 0.0 || *notches[0].SimInputMax != 0.05 {
		t.Errorf("notch 0: sim range [%v %v], want [0 0.05]", *notches[0].SimInputMin, *notches[0].SimInputMax)
	}

	if notches[1].Type != types.NotchTypeLinear {
		t.Errorf("notch 1: expected linear, got %s", notches[1].Type)
	}
	if *notches[1].MinValue != 0.1 || *notches[1].MaxValue != 0.9 {
		t.Errorf("notch 1: value range [%v %v], want [0.1 0.9]", *notches[1].MinValue, *notches[1].MaxValue)
	}
	if *notches[1].SimInputMin != 0.1 || *notches[1].SimInputMax != 0.9 {
		t.Errorf("notch 1: sim range [%v %v], want [0.1 0.9]", *notches[1].SimInputMin, *notches[1].SimInputMax)
	}

	if notches[2].Type != types.NotchTypeGate {
		t.Errorf("notch 2: expected gate, got %s", notches[2].Type)
	}
	if *notches[2].SimInputMin != 0.95 || *notches[2].SimInputMax != 1.0 {
		t.Errorf("notch 2: sim range [%v %v], want [0.95 1.0]", *notches[2].SimInputMin, *notches[2].SimInputMax)
	}
}

func TestSegmentNegativeAxis(t *testing.T) {
	// Reverser on a [-1, 1] axis.
	var trace []observation
	trace = append(trace, obs([]float64{-1.0, -1.0}, 0)...)
	trace = append(trace, obs([]float64{0.0, 0.0}, 1)...)
	trace = append(trace, obs([]float64{1.0, 1.0}, 2)...)

	notches, err := segment(trace, 3, -1.0, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if *notches[0].SimInputMin != -1.0 || *notches[0].SimInputMax != -0.5 {
		t.Errorf("notch 0: sim range [%v %v], want [-1 -0.5]", *notches[0].SimInputMin, *notches[0].SimInputMax)
	}
	if *notches[1].SimInputMin != -0.5 || *notches[1].SimInputMax != 0.5 {
		t.Errorf("notch 1: sim range [%v %v], want [-0.5 0.5]", *notches[1].SimInputMin, *notches[1].SimInputMax)
	}
	if *notches[2].Value != 1.0 {
		t.Errorf("notch 2: expected value 1.0, got %v", *notches[2].Value)
	}
}

func TestSegmentUnobservedNotchFails(t *testing.T) {
	trace := obs([]float64{0.0, 0.0}, 0)

	if _, err := segment(trace, 2, 0.0, 1.0); err == nil {
		t.Fatal("expected error for notch never observed during sweep")
	}
}

func TestSegmentReversedIndexOrder(t *testing.T) {
	// Physically reversed lever: notch 0 sits at the high end of the axis.
	var trace []observation
	trace = append(trace, obs([]float64{1.0, 1.0}, 0)...)
	trace = append(trace, obs([]float64{0.0, 0.0}, 1)...)

	notches, err := segment(trace, 2, 0.0, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if *notches[0].SimInputMin != 0.5 || *notches[0].SimInputMax != 1.0 {
		t.Errorf("notch 0: sim range [%v %v], want [0.5 1.0]", *notches[0].SimInputMin, *notches[0].SimInputMax)
	}
	if *notches[1].SimInputMin != 0.0 || *notches[1].SimInputMax != 0.5 {
		t.Errorf("notch 1: sim range [%v %v], want [0.0 0.5]", *notches[1].SimInputMin, *notches[1].SimInputMax)
	}
}

func TestAnalyzeSweep(t *testing.T) {
	reader := &scriptedReader{}
	// First reading provides the axis metadata; the rest is the sweep.
	reader.script = append(reader.script, sim.ControlReading{
		Current: 0.0, Min: 0.0, Max: 1.0, NotchCount: 2, NotchIndex: 0,
	})
	for _, v := range []float64{0.0, 0.0, 0.0} {
		reader.script = append(reader.script, sim.ControlReading{
			Current: v, Min: 0.0, Max: 1.0, NotchCount: 2, NotchIndex: 0,
		})
	}
	for _, v := range []float64{0.2, 0.5, 0.8, 1.0} {
		reader.script = append(reader.script, sim.ControlReading{
			Current: v, Min: 0.0, Max: 1.0, NotchCount: 2, NotchIndex: 1,
		})
	}

	a := NewAnalyzer(reader, time.Millisecond, 50*time.Millisecond, zap.NewNop())

	notches, err := a.Analyze(context.Background(), "throttle")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notches) != 2 {
		t.Fatalf("expected 2 notches, got %d", len(notches))
	}
	if notches[0].Type != types.NotchTypeGate || notches[1].Type != types.NotchTypeLinear {
		t.Errorf("expected gate then linear, got %s %s", notches[0].Type, notches[1].Type)
	}
	if err := types.ValidateNotchSet(notches); err != nil {
		t.Errorf("analyzer output must be a valid notch set: %v", err)
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	reader := &scriptedReader{script: []sim.ControlReading{
		{Current: 0, Min: 0, Max: 1, NotchCount: 1, NotchIndex: 0},
	}}
	a := NewAnalyzer(reader, time.Millisecond, time.Minute, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Analyze(ctx, "throttle"); err == nil {
		t.Fatal("expected context error")
	}
}
