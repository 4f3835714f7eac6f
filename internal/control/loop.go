package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencab/OpenCabBridge/internal/hardware"
	"github.com/opencab/OpenCabBridge/internal/lever"
	"github.com/opencab/OpenCabBridge/internal/types"
)

// SampleSource delivers normalized hardware samples. Satisfied by
// hardware.Stream.
type SampleSource interface {
	Subscribe() (<-chan hardware.Sample, func())
}

// SimWriter pushes a mapped value to one simulator control.
type SimWriter interface {
	SetControl(ctx context.Context, controlID string, value float64) error
}

// Broadcaster publishes live lever activity to connected panels.
type Broadcaster interface {
	BroadcastLeverInput(leverID, name string, raw, simValue float64)
	BroadcastLeverError(leverID, name string, raw float64, reason string)
}

// CalibrationTap receives every raw sample so active calibration
// sessions see the same stream the mapper does.
type CalibrationTap interface {
	Ingest(hardwareInputID string, sample float64)
}

// LeverStatus is the last observed state of one configured lever.
type LeverStatus struct {
	LeverID    uuid.UUID  `json:"lever_id"`
	Name       string     `json:"name"`
	Calibrated bool       `json:"calibrated"`
	LastRaw    *float64   `json:"last_raw,omitempty"`
	LastSim    *float64   `json:"last_sim,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// Controller runs the hardware-to-simulator mapping loop. It subscribes
// to the raw input stream, maps each sample through the lever
// configuration and writes changed values to the simulator.
type Controller struct {
	logger      *zap.Logger
	stream      SampleSource
	sim         SimWriter
	broadcaster Broadcaster
	tap         CalibrationTap
	simTimeout  time.Duration

	mu sync.RWMutex
	// Keyed by hardware input ID; one lever per physical input.
	levers map[string]*leverState

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

type leverState struct {
	config  *types.LeverConfig
	lastRaw *float64
	lastSim *float64
	lastErr string
	updated time.Time
}

// NewController creates a controller over the given input stream and
// simulator writer. The broadcaster and calibration tap may be nil.
func NewController(logger *zap.Logger, stream SampleSource, sim SimWriter, broadcaster Broadcaster, tap CalibrationTap, simTimeout time.Duration) *Controller {
	if simTimeout <= 0 {
		simTimeout = 2 * time.Second
	}
	return &Controller{
		logger:      logger,
		stream:      stream,
		sim:         sim,
		broadcaster: broadcaster,
		tap:         tap,
		simTimeout:  simTimeout,
		levers:      make(map[string]*leverState),
	}
}

// SetLevers replaces the full set of mapped levers.
func (c *Controller) SetLevers(configs []*types.LeverConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levers = make(map[string]*leverState, len(configs))
	for _, cfg := range configs {
		c.levers[cfg.HardwareInputID] = &leverState{config: cfg}
	}
}

// UpdateLever installs or replaces the mapping for one lever. Any
// previous lever bound to the same hardware input is displaced.
func (c *Controller) UpdateLever(cfg *types.LeverConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for inputID, st := range c.levers {
		if st.config.ID == cfg.ID && inputID != cfg.HardwareInputID {
			delete(c.levers, inputID)
		}
	}
	c.levers[cfg.HardwareInputID] = &leverState{config: cfg}
}

// RemoveLever drops the mapping for a lever by ID.
func (c *Controller) RemoveLever(leverID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for inputID, st := range c.levers {
		if st.config.ID == leverID {
			delete(c.levers, inputID)
		}
	}
}

// Start begins consuming the input stream.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopChan = make(chan struct{})
	c.mu.Unlock()

	samples, cancel := c.stream.Subscribe()
	c.wg.Add(1)
	go c.loop(samples, cancel)

	c.logger.Info("control loop started")
}

// Stop halts the mapping loop.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopChan)
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("control loop stopped")
}

func (c *Controller) loop(samples <-chan hardware.Sample, cancel func()) {
	defer c.wg.Done()
	defer cancel()

	for {
		select {
		case <-c.stopChan:
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			c.handleSample(sample)
		}
	}
}

func (c *Controller) handleSample(sample hardware.Sample) {
	if c.tap != nil {
		c.tap.Ingest(sample.InputID, sample.Value)
	}

	c.mu.Lock()
	st, ok := c.levers[sample.InputID]
	if !ok {
		c.mu.Unlock()
		return
	}
	cfg := st.config
	raw := sample.Value
	now := time.Now()
	st.lastRaw = &raw
	st.updated = now

	simValue, err := lever.MapInput(cfg, raw)
	if err != nil {
		st.lastErr = err.Error()
		c.mu.Unlock()
		c.reportMappingError(cfg, raw, err)
		return
	}
	st.lastErr = ""

	// Unchanged values are not re-sent
	if st.lastSim != nil && *st.lastSim == simValue {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancelWrite := context.WithTimeout(context.Background(), c.simTimeout)
	defer cancelWrite()
	if err := c.sim.SetControl(ctx, cfg.SimControlID, simValue); err != nil {
		c.logger.Warn("failed to write simulator control",
			zap.String("lever", cfg.Name),
			zap.String("control_id", cfg.SimControlID),
			zap.Error(err))
		return
	}

	c.mu.Lock()
	st.lastSim = &simValue
	c.mu.Unlock()

	if c.broadcaster != nil {
		c.broadcaster.BroadcastLeverInput(cfg.ID.String(), cfg.Name, raw, simValue)
	}
}

func (c *Controller) reportMappingError(cfg *types.LeverConfig, raw float64, err error) {
	// Dead zones between notches are routine on gated levers, so no
	// logging. Missing calibration gets surfaced once per sample to
	// the panel only.
	var reason string
	switch {
	case errors.Is(err, types.ErrNoNotch):
		reason = "no_notch"
	case errors.Is(err, types.ErrNoSimInputRange), errors.Is(err, types.ErrUnmappedNotch):
		reason = "uncalibrated"
	default:
		reason = "mapping_failed"
		c.logger.Warn("lever mapping failed",
			zap.String("lever", cfg.Name),
			zap.Float64("raw", raw),
			zap.Error(err))
	}
	if c.broadcaster != nil {
		c.broadcaster.BroadcastLeverError(cfg.ID.String(), cfg.Name, raw, reason)
	}
}

// Status returns the last observed state of every configured lever.
func (c *Controller) Status() []LeverStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LeverStatus, 0, len(c.levers))
	for _, st := range c.levers {
		s := LeverStatus{
			LeverID:    st.config.ID,
			Name:       st.config.Name,
			Calibrated: st.config.Calibrated(),
			LastRaw:    st.lastRaw,
			LastSim:    st.lastSim,
			LastError:  st.lastErr,
		}
		if !st.updated.IsZero() {
			t := st.updated
			s.UpdatedAt = &t
		}
		out = append(out, s)
	}
	return out
}

// Running reports whether the loop is active.
func (c *Controller) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}
