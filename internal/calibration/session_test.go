package calibration

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencab/OpenCabBridge/internal/types"
)

type fakeStore struct {
	err   error
	calls int
	saved map[uuid.UUID][]types.InputRange
}

func (f *fakeStore) SaveNotchRanges(_ context.Context, leverID uuid.UUID, ranges []types.InputRange) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.saved == nil {
		f.saved = make(map[uuid.UUID][]types.InputRange)
	}
	f.saved[leverID] = ranges
	return nil
}

func testLever(notchCount int) *types.LeverConfig {
	notches := make([]types.Notch, notchCount)
	for i := range notches {
		notches[i] = types.Notch{
			Index: i,
			Type:  types.NotchTypeGate,
			Value: types.Float64Ptr(float64(i)),
		}
	}
	return &types.LeverConfig{
		ID:      uuid.New(),
		Name:    "throttle",
		Notches: notches,
	}
}

func newTestSession(t *testing.T, lever *types.LeverConfig, store Store) *Session {
	t.Helper()
	s, err := NewSession(lever, store, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error creating session: %v", err)
	}
	return s
}

func captureNotch(t *testing.T, s *Session, samples ...float64) {
	t.Helper()
	if err := s.StartCapturing(); err != nil {
		t.Fatalf("start capturing: %v", err)
	}
	for _, v := range samples {
		s.Ingest(v)
	}
	if _, err := s.CaptureRange(); err != nil {
		t.Fatalf("capture range: %v", err)
	}
}

func TestSessionRejectsInvalidNotchSet(t *testing.T) {
	lever := testLever(2)
	lever.Notches[1].Index = 5

	if _, err := NewSession(lever, &fakeStore{}, nil, zap.NewNop()); err == nil {
		t.Fatal("expected error for non-contiguous notch set")
	}
}

func TestSessionIdleSamplesUpdateLiveOnly(t *testing.T) {
	s := newTestSession(t, testLever(1), &fakeStore{})
	if err := s.StartMapping(); err != nil {
		t.Fatalf("start mapping: %v", err)
	}

	s.Ingest(0.42)

	ps := s.PublicState()
	if ps.Live == nil || *ps.Live != 0.42 {
		t.Errorf("expected live readout 0.42, got %v", ps.Live)
	}
	if ps.SampleCount != 0 {
		t.Errorf("idle samples must not accumulate, got %d", ps.SampleCount)
	}
}

func TestSessionCaptureRangeErrors(t *testing.T) {
	s := newTestSession(t, testLever(1), &fakeStore{})
	if err := s.StartMapping(); err != nil {
		t.Fatalf("start mapping: %v", err)
	}

	if err := s.StartCapturing(); err != nil {
		t.Fatalf("start capturing: %v", err)
	}
	if _, err := s.CaptureRange(); !errors.Is(err, types.ErrNoSamples) {
		t.Errorf("expected ErrNoSamples, got %v", err)
	}

	// A flat trace means the operator never moved the lever.
	if err := s.StartCapturing(); err != nil {
		t.Fatalf("restart capturing: %v", err)
	}
	for i := 0; i < 20; i++ {
		s.Ingest(0.5)
	}
	if _, err := s.CaptureRange(); !errors.Is(err, types.ErrNoRangeDetected) {
		t.Errorf("expected ErrNoRangeDetected, got %v", err)
	}

	// Errors leave the session state intact.
	if ps := s.PublicState(); ps.State != SessionStateCapturing {
		t.Errorf("expected state capturing after failed capture, got %s", ps.State)
	}
}

func TestSessionCaptureTogglePreservesSamples(t *testing.T) {
	s := newTestSession(t, testLever(1), &fakeStore{})
	if err := s.StartMapping(); err != nil {
		t.Fatalf("start mapping: %v", err)
	}

	if err := s.StartCapturing(); err != nil {
		t.Fatal(err)
	}
	s.Ingest(0.10)
	if err := s.StopCapturing(); err != nil {
		t.Fatal(err)
	}
	s.Ingest(0.99) // paused, must not accumulate
	if err := s.StartCapturing(); err != nil {
		t.Fatal(err)
	}
	s.Ingest(0.20)

	r, err := s.CaptureRange()
	if err != nil {
		t.Fatalf("capture range: %v", err)
	}
	if r.Min != 0.1 || r.Max != 0.2 {
		t.Errorf("expected range {0.1 0.2}, got %+v", r)
	}
}

func TestSessionResetSamples(t *testing.T) {
	s := newTestSession(t, testLever(2), &fakeStore{})
	if err := s.StartMapping(); err != nil {
		t.Fatal(err)
	}

	captureNotch(t, s, 0.0, 0.1)
	if err := s.NextNotch(); err != nil {
		t.Fatal(err)
	}

	if err := s.StartCapturing(); err != nil {
		t.Fatal(err)
	}
	s.Ingest(0.9)
	s.ResetSamples()

	ps := s.PublicState()
	if ps.SampleCount != 0 {
		t.Errorf("expected empty buffer after reset, got %d samples", ps.SampleCount)
	}
	if len(ps.Ranges) != 1 {
		t.Errorf("reset must keep other notches' captured ranges, got %v", ps.Ranges)
	}
}

func TestSessionFullWalkAndSave(t *testing.T) {
	store := &fakeStore{}
	lever := testLever(3)
	s := newTestSession(t, lever, store)

	if err := s.StartMapping(); err != nil {
		t.Fatal(err)
	}

	captureNotch(t, s, 0.02, 0.0, 0.05)
	if err := s.NextNotch(); err != nil {
		t.Fatal(err)
	}
	captureNotch(t, s, 0.4, 0.45, 0.5)
	if err := s.NextNotch(); err != nil {
		t.Fatal(err)
	}
	captureNotch(t, s, 0.95, 1.0)

	if ps := s.PublicState(); !ps.AllCaptured {
		t.Fatal("expected all_captured after final notch")
	}
	if err := s.NextNotch(); err != nil {
		t.Fatal(err)
	}
	if ps := s.PublicState(); ps.State != SessionStatePreview {
		t.Fatalf("expected preview after last notch, got %s", ps.State)
	}

	if err := s.SaveMapping(context.Background()); err != nil {
		t.Fatalf("save mapping: %v", err)
	}

	saved := store.saved[lever.ID]
	if len(saved) != 3 {
		t.Fatalf("expected 3 persisted ranges, got %d", len(saved))
	}
	if saved[0].Min != 0.0 || saved[0].Max != 0.05 {
		t.Errorf("notch 0 range wrong: %+v", saved[0])
	}
	if saved[2].Min != 0.95 || saved[2].Max != 1.0 {
		t.Errorf("notch 2 range wrong: %+v", saved[2])
	}

	// Ranges land on the lever's notches after save.
	if !lever.Calibrated() {
		t.Error("lever must be calibrated after save")
	}
	if !s.Done() {
		t.Error("session must be terminal after save")
	}
}

func TestSessionSaveFailureStaysInPreview(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	s := newTestSession(t, testLever(1), store)

	if err := s.StartMapping(); err != nil {
		t.Fatal(err)
	}
	captureNotch(t, s, 0.1, 0.9)
	if err := s.NextNotch(); err != nil {
		t.Fatal(err)
	}

	if err := s.SaveMapping(context.Background()); err == nil {
		t.Fatal("expected propagated storage error")
	}
	if ps := s.PublicState(); ps.State != SessionStatePreview {
		t.Fatalf("session must stay in preview on save failure, got %s", ps.State)
	}

	// Retry succeeds without recapturing.
	store.err = nil
	if err := s.SaveMapping(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if store.calls != 2 {
		t.Errorf("expected 2 save attempts, got %d", store.calls)
	}
}

func TestSessionSaveRequiresAllCaptured(t *testing.T) {
	s := newTestSession(t, testLever(2), &fakeStore{})
	if err := s.StartMapping(); err != nil {
		t.Fatal(err)
	}

	if err := s.SaveMapping(context.Background()); err == nil {
		t.Error("save must fail outside preview")
	}
}

func TestSessionGoToNotchRedo(t *testing.T) {
	s := newTestSession(t, testLever(2), &fakeStore{})
	if err := s.StartMapping(); err != nil {
		t.Fatal(err)
	}

	captureNotch(t, s, 0.0, 0.1)
	if err := s.NextNotch(); err != nil {
		t.Fatal(err)
	}
	captureNotch(t, s, 0.8, 1.0)
	if err := s.NextNotch(); err != nil {
		t.Fatal(err)
	}

	// Redo notch 0 from preview.
	if err := s.GoToNotch(0); err != nil {
		t.Fatalf("go to notch: %v", err)
	}
	captureNotch(t, s, 0.05, 0.15)

	ps := s.PublicState()
	if ps.Ranges[0].Min != 0.05 || ps.Ranges[0].Max != 0.15 {
		t.Errorf("redo did not replace range: %+v", ps.Ranges[0])
	}
	if ps.Ranges[1].Min != 0.8 {
		t.Errorf("redo clobbered other notch: %+v", ps.Ranges[1])
	}

	if err := s.GoToNotch(5); err == nil {
		t.Error("out-of-range notch index must fail")
	}
}

func TestSessionCancel(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, testLever(1), store)

	if err := s.StartMapping(); err != nil {
		t.Fatal(err)
	}
	captureNotch(t, s, 0.2, 0.4)

	s.Cancel()

	if ps := s.PublicState(); ps.State != SessionStateCancelled {
		t.Fatalf("expected cancelled, got %s", ps.State)
	}
	if store.calls != 0 {
		t.Error("cancel must not persist anything")
	}
	if err := s.StartCapturing(); err == nil {
		t.Error("operations must fail after cancel")
	}
}

func TestSessionStartMappingOnlyFromReady(t *testing.T) {
	s := newTestSession(t, testLever(1), &fakeStore{})
	if err := s.StartMapping(); err != nil {
		t.Fatal(err)
	}
	if err := s.StartMapping(); err == nil {
		t.Error("second StartMapping must fail")
	}
}
