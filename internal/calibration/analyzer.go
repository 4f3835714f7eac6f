package calibration

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/opencab/OpenCabBridge/internal/sim"
	"github.com/opencab/OpenCabBridge/internal/types"
)

// SimReader is the slice of the simulator client the analyzer needs.
type SimReader interface {
	GetControl(ctx context.Context, controlID string) (sim.ControlReading, error)
}

// Analyzer discovers a lever's notch types and simulator-side value ranges
// by sampling the simulator while the operator sweeps the physical lever
// through its full travel. It does not touch hardware input ranges; those
// are mapped afterwards by the interactive Session.
type Analyzer struct {
	reader   SimReader
	logger   *zap.Logger
	interval time.Duration
	duration time.Duration
}

func NewAnalyzer(reader SimReader, interval, duration time.Duration, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		reader:   reader,
		logger:   logger,
		interval: interval,
		duration: duration,
	}
}

// observation is one sampled point of the sweep trace.
type observation struct {
	value      float64
	notchIndex int
}

// Analyze sweeps the control for the configured duration and segments the
// observed trace into gate and linear notches. The operator must move the
// lever through its full travel while this runs. Cancelling the context
// aborts the sweep.
func (a *Analyzer) Analyze(ctx context.Context, controlID string) ([]types.Notch, error) {
	first, err := a.reader.GetControl(ctx, controlID)
	if err != nil {
		return nil, fmt.Errorf("failed to read control %s: %w", controlID, err)
	}
	if first.NotchCount < 1 {
		return nil, fmt.Errorf("control %s reports no notches", controlID)
	}

	a.logger.Info("Lever analysis started",
		zap.String("control", controlID),
		zap.Int("notch_count", first.NotchCount),
		zap.Float64("axis_min", first.Min),
		zap.Float64("axis_max", first.Max),
		zap.Duration("duration", a.duration))

	trace := []observation{{value: first.Current, notchIndex: first.NotchIndex}}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(a.duration)
	defer deadline.Stop()

sweep:
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			break sweep
		case <-ticker.C:
			reading, err := a.reader.GetControl(ctx, controlID)
			if err != nil {
				a.logger.Warn("Sample failed during sweep",
					zap.String("control", controlID),
					zap.Error(err))
				continue
			}
			trace = append(trace, observation{value: reading.Current, notchIndex: reading.NotchIndex})
		}
	}

	notches, err := segment(trace, first.NotchCount, first.Min, first.Max)
	if err != nil {
		return nil, err
	}

	a.logger.Info("Lever analysis completed",
		zap.String("control", controlID),
		zap.Int("samples", len(trace)),
		zap.Int("notches", len(notches)))

	return notches, nil
}

// gateSpreadFraction: a notch whose observed values span less than this
// fraction of the full axis is a detent, not a continuous zone.
const gateSpreadFraction = 0.02

// segment groups the sweep trace by reported notch index and classifies
// each run as gate or linear from its observed value spread.
func segment(trace []observation, notchCount int, axisMin, axisMax float64) ([]types.Notch, error) {
	type span struct {
		lo, hi float64
		seen   bool
	}
	spans := make([]span, notchCount)

	for _, obs := range trace {
		if obs.notchIndex < 0 || obs.notchIndex >= notchCount {
			continue
		}
		sp := &spans[obs.notchIndex]
		if !sp.seen {
			sp.lo, sp.hi, sp.seen = obs.value, obs.value, true
			continue
		}
		if obs.value < sp.lo {
			sp.lo = obs.value
		}
		if obs.value > sp.hi {
			sp.hi = obs.value
		}
	}

	for i := range spans {
		if !spans[i].seen {
			return nil, fmt.Errorf("notch %d never observed; sweep the lever through its full travel", i)
		}
	}

	axisSpan := axisMax - axisMin
	if axisSpan <= 0 {
		axisSpan = 1
	}

	// Physical order of notches along the axis may differ from index order
	// on reversed layouts; boundaries are computed between axis neighbors.
	order := make([]int, notchCount)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return spans[order[a]].lo < spans[order[b]].lo
	})

	simRanges := make([]types.InputRange, notchCount)
	for pos, idx := range order {
		sp := spans[idx]

		lo := axisMin
		if pos > 0 {
			prev := spans[order[pos-1]]
			lo = (prev.hi + sp.lo) / 2
		}
		hi := axisMax
		if pos < notchCount-1 {
			next := spans[order[pos+1]]
			hi = (sp.hi + next.lo) / 2
		}
		simRanges[idx] = types.InputRange{Min: lo, Max: hi}
	}

	notches := make([]types.Notch, notchCount)
	for i := range notches {
		sp := spans[i]
		n := types.Notch{
			Index:       i,
			SimInputMin: types.Float64Ptr(simRanges[i].Min),
			SimInputMax: types.Float64Ptr(simRanges[i].Max),
		}

		if sp.hi-sp.lo < gateSpreadFraction*axisSpan {
			n.Type = types.NotchTypeGate
			n.Value = types.Float64Ptr((sp.lo + sp.hi) / 2)
		} else {
			n.Type = types.NotchTypeLinear
			n.MinValue = types.Float64Ptr(sp.lo)
			n.MaxValue = types.Float64Ptr(sp.hi)
			n.SimInputMin = types.Float64Ptr(sp.lo)
			n.SimInputMax = types.Float64Ptr(sp.hi)
		}

		n.Round()
		notches[i] = n
	}

	return notches, nil
}
