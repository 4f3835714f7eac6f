// Package calibration holds the interactive notch mapping session and the
// automated lever analyzer. The session walks an operator through capturing
// the hardware input range for every notch the analyzer discovered; the
// analyzer itself only discovers notch types and simulator-side ranges.
package calibration

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencab/OpenCabBridge/internal/types"
)

type SessionState string

const (
	SessionStateReady     SessionState = "ready"
	SessionStateCapturing SessionState = "capturing"
	SessionStatePreview   SessionState = "preview"
	SessionStateSaved     SessionState = "saved"
	SessionStateCancelled SessionState = "cancelled"
)

// rangeEpsilon is the minimum sample spread accepted by CaptureRange. A gate
// being captured must show operator-caused jitter inside the detent's dead
// zone; a completely flat trace means the lever was not moved.
const rangeEpsilon = 1e-3

// Store persists a completed mapping. Implemented by the Postgres layer.
type Store interface {
	// SaveNotchRanges atomically writes every notch's captured hardware
	// range for the lever and marks it calibrated. Either all notches are
	// updated or none.
	SaveNotchRanges(ctx context.Context, leverID uuid.UUID, ranges []types.InputRange) error
}

// Broadcaster pushes public snapshots to connected UI clients. Optional.
type Broadcaster interface {
	BroadcastCalibrationState(state PublicState)
}

// PublicState is the snapshot exposed to the UI layer.
type PublicState struct {
	LeverID     uuid.UUID                `json:"lever_id"`
	LeverName   string                   `json:"lever_name"`
	State       SessionState             `json:"state"`
	NotchIndex  int                      `json:"notch_index"`
	Capturing   bool                     `json:"capturing"`
	SampleCount int                      `json:"sample_count"`
	Live        *float64                 `json:"live,omitempty"`
	SampleMin   *float64                 `json:"sample_min,omitempty"`
	SampleMax   *float64                 `json:"sample_max,omitempty"`
	Notches     []types.Notch            `json:"notches"`
	Ranges      map[int]types.InputRange `json:"captured_ranges"`
	AllCaptured bool                     `json:"all_captured"`
}

// Session is the per-lever interactive mapping state machine. It assumes
// single-writer access from the host; the internal mutex only protects
// against the concurrent sample push from the hardware stream.
type Session struct {
	logger      *zap.Logger
	store       Store
	broadcaster Broadcaster

	mu         sync.Mutex
	lever      *types.LeverConfig
	state      SessionState
	notchIndex int
	capturing  bool
	samples    []float64
	live       *float64
	ranges     map[int]types.InputRange
}

// NewSession creates a session in the ready state for the given lever. The
// lever's notch list must already be populated by the analyzer.
func NewSession(lever *types.LeverConfig, store Store, broadcaster Broadcaster, logger *zap.Logger) (*Session, error) {
	if err := types.ValidateNotchSet(lever.Notches); err != nil {
		return nil, fmt.Errorf("cannot map lever: %w", err)
	}

	return &Session{
		logger:      logger,
		store:       store,
		broadcaster: broadcaster,
		lever:       lever,
		state:       SessionStateReady,
		ranges:      make(map[int]types.InputRange),
	}, nil
}

// StartMapping transitions from ready to the first notch's capture state.
func (s *Session) StartMapping() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionStateReady {
		return fmt.Errorf("cannot start mapping in state %s", s.state)
	}

	s.state = SessionStateCapturing
	s.notchIndex = 0
	s.capturing = false
	s.samples = nil

	s.logger.Info("Notch mapping started",
		zap.String("lever", s.lever.Name),
		zap.Int("notches", len(s.lever.Notches)))

	s.broadcastLocked()
	return nil
}

// Ingest accepts one normalized hardware sample. Samples always update the
// live readout, but only accumulate into the capture buffer while capture is
// active. Never blocks and never fails.
func (s *Session) Ingest(sample float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := sample
	s.live = &v

	if s.state == SessionStateCapturing && s.capturing {
		s.samples = append(s.samples, sample)
	}
}

// StartCapturing begins accumulating samples for the current notch. Samples
// already in the buffer are kept, so capture can be toggled without loss.
func (s *Session) StartCapturing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionStateCapturing {
		return fmt.Errorf("cannot capture in state %s", s.state)
	}

	s.capturing = true
	s.broadcastLocked()
	return nil
}

// StopCapturing pauses sample accumulation without clearing the buffer.
func (s *Session) StopCapturing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionStateCapturing {
		return fmt.Errorf("cannot stop capture in state %s", s.state)
	}

	s.capturing = false
	s.broadcastLocked()
	return nil
}

// CaptureRange computes {min, max} over the accumulated samples and stores
// it as the current notch's provisional hardware range. On success the
// capture sub-state resets to idle; the session state is otherwise
// unaffected, so the operator can retry after an error.
func (s *Session) CaptureRange() (types.InputRange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionStateCapturing {
		return types.InputRange{}, fmt.Errorf("cannot capture range in state %s", s.state)
	}
	if len(s.samples) == 0 {
		return types.InputRange{}, types.ErrNoSamples
	}

	lo, hi := s.samples[0], s.samples[0]
	for _, v := range s.samples[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	if hi-lo < rangeEpsilon {
		return types.InputRange{}, types.ErrNoRangeDetected
	}

	r := types.InputRange{Min: types.Round2(lo), Max: types.Round2(hi)}
	s.ranges[s.notchIndex] = r
	s.capturing = false

	s.logger.Info("Notch range captured",
		zap.String("lever", s.lever.Name),
		zap.Int("notch", s.notchIndex),
		zap.Float64("min", r.Min),
		zap.Float64("max", r.Max),
		zap.Int("samples", len(s.samples)))

	s.broadcastLocked()
	return r, nil
}

// ResetSamples clears the sample buffer for the current notch. Ranges
// already captured for other notches are untouched.
func (s *Session) ResetSamples() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = nil
	s.broadcastLocked()
}

// GoToNotch jumps to notch i's capture state, for re-visiting an earlier
// notch. Allowed at any point after StartMapping.
func (s *Session) GoToNotch(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionStateCapturing && s.state != SessionStatePreview {
		return fmt.Errorf("cannot jump to notch in state %s", s.state)
	}
	if i < 0 || i >= len(s.lever.Notches) {
		return fmt.Errorf("notch index %d out of range", i)
	}

	s.state = SessionStateCapturing
	s.notchIndex = i
	s.capturing = false
	s.samples = nil

	s.broadcastLocked()
	return nil
}

// NextNotch advances past the current notch. After the last notch the
// session moves to preview. Progression is host-driven: CaptureRange never
// advances on its own.
func (s *Session) NextNotch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionStateCapturing {
		return fmt.Errorf("cannot advance in state %s", s.state)
	}

	s.capturing = false
	s.samples = nil

	if s.notchIndex >= len(s.lever.Notches)-1 {
		s.state = SessionStatePreview
	} else {
		s.notchIndex++
	}

	s.broadcastLocked()
	return nil
}

// SaveMapping persists every captured range into the lever's notches as one
// atomic replace and terminates the session. On a storage failure the
// session stays in preview so nothing is lost and the operator can retry.
func (s *Session) SaveMapping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionStatePreview {
		return fmt.Errorf("cannot save in state %s", s.state)
	}
	if !s.allCapturedLocked() {
		return fmt.Errorf("cannot save: %d of %d notches captured", len(s.ranges), len(s.lever.Notches))
	}

	ordered := make([]types.InputRange, len(s.lever.Notches))
	for i := range s.lever.Notches {
		ordered[i] = s.ranges[i]
	}

	if err := s.store.SaveNotchRanges(ctx, s.lever.ID, ordered); err != nil {
		s.logger.Error("Failed to persist notch mapping",
			zap.String("lever", s.lever.Name),
			zap.Error(err))
		return fmt.Errorf("failed to save mapping: %w", err)
	}

	for i := range s.lever.Notches {
		s.lever.Notches[i].InputMin = types.Float64Ptr(ordered[i].Min)
		s.lever.Notches[i].InputMax = types.Float64Ptr(ordered[i].Max)
	}

	s.state = SessionStateSaved
	s.logger.Info("Notch mapping saved", zap.String("lever", s.lever.Name))

	s.broadcastLocked()
	return nil
}

// Cancel terminates the session without persisting. Valid from any state.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionStateSaved || s.state == SessionStateCancelled {
		return
	}

	s.state = SessionStateCancelled
	s.capturing = false
	s.samples = nil

	s.logger.Info("Notch mapping cancelled", zap.String("lever", s.lever.Name))
	s.broadcastLocked()
}

// Done reports whether the session reached a terminal state.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == SessionStateSaved || s.state == SessionStateCancelled
}

// PublicState returns the UI snapshot.
func (s *Session) PublicState() PublicState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicStateLocked()
}

func (s *Session) publicStateLocked() PublicState {
	ps := PublicState{
		LeverID:     s.lever.ID,
		LeverName:   s.lever.Name,
		State:       s.state,
		NotchIndex:  s.notchIndex,
		Capturing:   s.capturing,
		SampleCount: len(s.samples),
		Notches:     s.lever.Notches,
		Ranges:      make(map[int]types.InputRange, len(s.ranges)),
		AllCaptured: s.allCapturedLocked(),
	}

	if s.live != nil {
		v := *s.live
		ps.Live = &v
	}
	if len(s.samples) > 0 {
		lo, hi := s.samples[0], s.samples[0]
		for _, v := range s.samples[1:] {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		ps.SampleMin = &lo
		ps.SampleMax = &hi
	}
	for i, r := range s.ranges {
		ps.Ranges[i] = r
	}

	return ps
}

func (s *Session) allCapturedLocked() bool {
	return len(s.ranges) == len(s.lever.Notches)
}

func (s *Session) broadcastLocked() {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastCalibrationState(s.publicStateLocked())
}
