package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencab/OpenCabBridge/internal/hardware"
	"github.com/opencab/OpenCabBridge/internal/types"
)

type fakeSource struct {
	ch chan hardware.Sample
}

func (f *fakeSource) Subscribe() (<-chan hardware.Sample, func()) {
	return f.ch, func() {}
}

type fakeSim struct {
	mu    sync.Mutex
	calls []simCall
}

type simCall struct {
	controlID string
	value     float64
}

func (f *fakeSim) SetControl(_ context.Context, controlID string, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, simCall{controlID, value})
	return nil
}

func (f *fakeSim) snapshot() []simCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]simCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	inputs int
	errors []string
}

func (f *fakeBroadcaster) BroadcastLeverInput(_, _ string, _, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs++
}

func (f *fakeBroadcaster) BroadcastLeverError(_, _ string, _ float64, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, reason)
}

func calibratedThrottle() *types.LeverConfig {
	now := time.Now()
	return &types.LeverConfig{
		ID:              uuid.New(),
		Name:            "throttle",
		SimControlID:    "throttle",
		HardwareInputID: "A0",
		CalibratedAt:    &now,
		Notches: []types.Notch{
			{
				Index:       0,
				Type:        types.NotchTypeLinear,
				MinValue:    types.Float64Ptr(0.0),
				MaxValue:    types.Float64Ptr(1.0),
				InputMin:    types.Float64Ptr(0.0),
				InputMax:    types.Float64Ptr(1.0),
				SimInputMin: types.Float64Ptr(0.0),
				SimInputMax: types.Float64Ptr(1.0),
			},
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestControllerMapsAndWrites(t *testing.T) {
	source := &fakeSource{ch: make(chan hardware.Sample, 16)}
	sim := &fakeSim{}
	bc := &fakeBroadcaster{}

	ctrl := NewController(zap.NewNop(), source, sim, bc, nil, time.Second)
	ctrl.SetLevers([]*types.LeverConfig{calibratedThrottle()})
	ctrl.Start()
	defer ctrl.Stop()

	source.ch <- hardware.Sample{InputID: "A0", Value: 0.5}

	waitFor(t, func() bool { return len(sim.snapshot()) == 1 })
	call := sim.snapshot()[0]
	if call.controlID != "throttle" || call.value != 0.5 {
		t.Fatalf("unexpected sim write %+v", call)
	}
}

func TestControllerSkipsUnchangedValues(t *testing.T) {
	source := &fakeSource{ch: make(chan hardware.Sample, 16)}
	sim := &fakeSim{}

	ctrl := NewController(zap.NewNop(), source, sim, nil, nil, time.Second)
	ctrl.SetLevers([]*types.LeverConfig{calibratedThrottle()})
	ctrl.Start()
	defer ctrl.Stop()

	source.ch <- hardware.Sample{InputID: "A0", Value: 0.5}
	source.ch <- hardware.Sample{InputID: "A0", Value: 0.5}
	source.ch <- hardware.Sample{InputID: "A0", Value: 0.75}

	waitFor(t, func() bool { return len(sim.snapshot()) == 2 })
	time.Sleep(20 * time.Millisecond)
	calls := sim.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected 2 sim writes, got %d", len(calls))
	}
	if calls[1].value != 0.75 {
		t.Fatalf("expected second write 0.75, got %v", calls[1].value)
	}
}

func TestControllerIgnoresUnknownInput(t *testing.T) {
	source := &fakeSource{ch: make(chan hardware.Sample, 16)}
	sim := &fakeSim{}

	ctrl := NewController(zap.NewNop(), source, sim, nil, nil, time.Second)
	ctrl.SetLevers([]*types.LeverConfig{calibratedThrottle()})
	ctrl.Start()
	defer ctrl.Stop()

	source.ch <- hardware.Sample{InputID: "A9", Value: 0.5}
	source.ch <- hardware.Sample{InputID: "A0", Value: 0.25}

	waitFor(t, func() bool { return len(sim.snapshot()) == 1 })
	if got := sim.snapshot()[0].value; got != 0.25 {
		t.Fatalf("expected write 0.25, got %v", got)
	}
}

func TestControllerReportsDeadZone(t *testing.T) {
	cfg := calibratedThrottle()
	// Shrink coverage so 0.9 falls outside every notch.
	cfg.Notches[0].InputMax = types.Float64Ptr(0.5)

	source := &fakeSource{ch: make(chan hardware.Sample, 16)}
	sim := &fakeSim{}
	bc := &fakeBroadcaster{}

	ctrl := NewController(zap.NewNop(), source, sim, bc, nil, time.Second)
	ctrl.SetLevers([]*types.LeverConfig{cfg})
	ctrl.Start()
	defer ctrl.Stop()

	source.ch <- hardware.Sample{InputID: "A0", Value: 0.9}

	waitFor(t, func() bool {
		bc.mu.Lock()
		defer bc.mu.Unlock()
		return len(bc.errors) == 1
	})
	bc.mu.Lock()
	reason := bc.errors[0]
	bc.mu.Unlock()
	if reason != "no_notch" {
		t.Fatalf("expected reason no_notch, got %q", reason)
	}
	if len(sim.snapshot()) != 0 {
		t.Fatal("dead-zone sample must not reach the simulator")
	}

	status := ctrl.Status()
	if len(status) != 1 || status[0].LastError == "" {
		t.Fatalf("expected lever status with error, got %+v", status)
	}
}

func TestControllerTapSeesEverySample(t *testing.T) {
	source := &fakeSource{ch: make(chan hardware.Sample, 16)}
	sim := &fakeSim{}
	tap := &recordingTap{}

	ctrl := NewController(zap.NewNop(), source, sim, nil, tap, time.Second)
	ctrl.Start()
	defer ctrl.Stop()

	source.ch <- hardware.Sample{InputID: "A0", Value: 0.1}
	source.ch <- hardware.Sample{InputID: "A7", Value: 0.2}

	waitFor(t, func() bool {
		tap.mu.Lock()
		defer tap.mu.Unlock()
		return len(tap.samples) == 2
	})
}

type recordingTap struct {
	mu      sync.Mutex
	samples []hardware.Sample
}

func (r *recordingTap) Ingest(inputID string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, hardware.Sample{InputID: inputID, Value: value})
}
