package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/opencab/OpenCabBridge/internal/lever"
	"github.com/opencab/OpenCabBridge/internal/types"
)

type leverRequest struct {
	Name            string        `json:"name" binding:"required"`
	Inverted        bool          `json:"inverted"`
	SimControlID    string        `json:"sim_control_id" binding:"required"`
	HardwareInputID string        `json:"hardware_input_id" binding:"required"`
	Notches         []types.Notch `json:"notches" binding:"required"`
}

// GET /api/v1/levers
func (s *Server) listLevers(c *gin.Context) {
	configs, err := s.lm.Storage().LoadAllLeverConfigs(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to load levers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("storage_error", "failed to load levers", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"levers": configs,
		"count":  len(configs),
	})
}

// POST /api/v1/levers
func (s *Server) createLever(c *gin.Context) {
	var req leverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("invalid_request", "invalid lever payload", err.Error()))
		return
	}

	cfg := &types.LeverConfig{
		ID:              uuid.New(),
		Name:            req.Name,
		Inverted:        req.Inverted,
		SimControlID:    req.SimControlID,
		HardwareInputID: req.HardwareInputID,
		Notches:         req.Notches,
	}

	if err := types.ValidateNotchSet(cfg.Notches); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("invalid_notches", err.Error(), nil))
		return
	}

	id, err := s.lm.Storage().SaveLeverConfig(c.Request.Context(), cfg)
	if err != nil {
		s.logger.Error("Failed to save lever", zap.String("name", cfg.Name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("storage_error", "failed to save lever", nil))
		return
	}
	cfg.ID = id

	s.lm.Controller().UpdateLever(cfg)

	c.JSON(http.StatusCreated, cfg)
}

// GET /api/v1/levers/:id
func (s *Server) getLever(c *gin.Context) {
	cfg, ok := s.loadLever(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lever":           cfg,
		"reversed_layout": lever.ReversedLayout(cfg.Notches),
	})
}

// PUT /api/v1/levers/:id
func (s *Server) updateLever(c *gin.Context) {
	leverID, ok := s.leverID(c)
	if !ok {
		return
	}

	existing, err := s.lm.Storage().GetLeverConfig(c.Request.Context(), leverID)
	if err != nil {
		s.respondLeverLookupError(c, err)
		return
	}

	var req leverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("invalid_request", "invalid lever payload", err.Error()))
		return
	}

	cfg := &types.LeverConfig{
		ID:              existing.ID,
		Name:            req.Name,
		Inverted:        req.Inverted,
		SimControlID:    req.SimControlID,
		HardwareInputID: req.HardwareInputID,
		Notches:         req.Notches,
		CreatedAt:       existing.CreatedAt,
	}

	if err := types.ValidateNotchSet(cfg.Notches); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("invalid_notches", err.Error(), nil))
		return
	}

	if _, err := s.lm.Storage().SaveLeverConfig(c.Request.Context(), cfg); err != nil {
		s.logger.Error("Failed to update lever", zap.String("id", leverID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("storage_error", "failed to update lever", nil))
		return
	}

	// Re-read so calibration timestamps reflect what the save did.
	saved, err := s.lm.Storage().GetLeverConfig(c.Request.Context(), leverID)
	if err != nil {
		s.respondLeverLookupError(c, err)
		return
	}

	s.lm.Controller().UpdateLever(saved)

	c.JSON(http.StatusOK, saved)
}

// DELETE /api/v1/levers/:id
func (s *Server) deleteLever(c *gin.Context) {
	leverID, ok := s.leverID(c)
	if !ok {
		return
	}

	if err := s.lm.Storage().DeleteLever(c.Request.Context(), leverID); err != nil {
		s.respondLeverLookupError(c, err)
		return
	}

	s.lm.Controller().RemoveLever(leverID)
	s.lm.Calibration().Remove(leverID)

	c.JSON(http.StatusOK, gin.H{"message": "lever deleted"})
}

type mapRequest struct {
	Raw *float64 `json:"raw" binding:"required"`
}

// POST /api/v1/levers/:id/map
//
// Dry-run mapping: runs one raw value through the lever's notch table
// without touching the simulator.
func (s *Server) mapValue(c *gin.Context) {
	cfg, ok := s.loadLever(c)
	if !ok {
		return
	}

	var req mapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("invalid_request", "raw value required", err.Error()))
		return
	}

	simValue, err := lever.MapInput(cfg, *req.Raw)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse(mappingErrorCode(err), err.Error(), gin.H{
			"raw": *req.Raw,
		}))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"raw":       *req.Raw,
		"sim_value": simValue,
	})
}

// GET /api/v1/levers/:id/detents/:index
func (s *Server) getDetent(c *gin.Context) {
	cfg, ok := s.loadLever(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("invalid_request", "detent index must be an integer", nil))
		return
	}

	simValue, err := lever.MapDetent(cfg, index)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, types.ErrNoGateAtIndex) {
			status = http.StatusNotFound
		}
		c.JSON(status, types.NewErrorResponse(mappingErrorCode(err), err.Error(), gin.H{
			"detent_index": index,
		}))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"detent_index": index,
		"sim_value":    simValue,
	})
}

// POST /api/v1/levers/:id/analyze
//
// Sweeps the lever's simulator control and proposes a notch layout.
// The operator moves the in-sim lever through all positions while this
// runs. Nothing is persisted; the client reviews and PUTs the result.
func (s *Server) analyzeLever(c *gin.Context) {
	cfg, ok := s.loadLever(c)
	if !ok {
		return
	}

	notches, err := s.lm.Analyzer().Analyze(c.Request.Context(), cfg.SimControlID)
	if err != nil {
		s.logger.Warn("Control analysis failed",
			zap.String("control_id", cfg.SimControlID),
			zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse("analysis_failed", err.Error(), gin.H{
			"control_id": cfg.SimControlID,
		}))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"control_id": cfg.SimControlID,
		"notches":    notches,
	})
}

func mappingErrorCode(err error) string {
	switch {
	case errors.Is(err, types.ErrNoNotch):
		return "no_notch"
	case errors.Is(err, types.ErrNoSimInputRange):
		return "no_sim_input_range"
	case errors.Is(err, types.ErrUnmappedNotch):
		return "unmapped_notch"
	case errors.Is(err, types.ErrNoGateAtIndex):
		return "no_gate_at_index"
	default:
		return "mapping_failed"
	}
}

func (s *Server) leverID(c *gin.Context) (uuid.UUID, bool) {
	leverID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("invalid_request", "invalid lever id", nil))
		return uuid.Nil, false
	}
	return leverID, true
}

func (s *Server) loadLever(c *gin.Context) (*types.LeverConfig, bool) {
	leverID, ok := s.leverID(c)
	if !ok {
		return nil, false
	}

	cfg, err := s.lm.Storage().GetLeverConfig(c.Request.Context(), leverID)
	if err != nil {
		s.respondLeverLookupError(c, err)
		return nil, false
	}
	return cfg, true
}

func (s *Server) respondLeverLookupError(c *gin.Context, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("not_found", "lever not found", nil))
		return
	}
	s.logger.Error("Lever lookup failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, types.NewErrorResponse("storage_error", "lever lookup failed", nil))
}
