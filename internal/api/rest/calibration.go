package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opencab/OpenCabBridge/internal/calibration"
	"github.com/opencab/OpenCabBridge/internal/types"
)

// POST /api/v1/levers/:id/calibration
//
// Creates a mapping session for the lever and puts it on the first
// notch. The lever needs a notch layout first (manual or analyzed).
func (s *Server) startCalibration(c *gin.Context) {
	cfg, ok := s.loadLever(c)
	if !ok {
		return
	}

	session, err := s.lm.Calibration().StartSession(cfg)
	if err != nil {
		c.JSON(http.StatusConflict, types.NewErrorResponse("session_conflict", err.Error(), nil))
		return
	}

	if err := session.StartMapping(); err != nil {
		c.JSON(http.StatusConflict, types.NewErrorResponse("session_conflict", err.Error(), nil))
		return
	}

	c.JSON(http.StatusCreated, session.PublicState())
}

// GET /api/v1/levers/:id/calibration
func (s *Server) getCalibrationState(c *gin.Context) {
	session, ok := s.loadSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.PublicState())
}

// DELETE /api/v1/levers/:id/calibration
func (s *Server) cancelCalibration(c *gin.Context) {
	leverID, ok := s.leverID(c)
	if !ok {
		return
	}

	if _, found := s.lm.Calibration().Get(leverID); !found {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("not_found", "no mapping session for lever", nil))
		return
	}

	s.lm.Calibration().Remove(leverID)
	c.JSON(http.StatusOK, gin.H{"message": "mapping session cancelled"})
}

// POST /api/v1/levers/:id/calibration/capture/start
func (s *Server) startCapture(c *gin.Context) {
	s.sessionOp(c, func(session *calibration.Session) error {
		return session.StartCapturing()
	})
}

// POST /api/v1/levers/:id/calibration/capture/stop
func (s *Server) stopCapture(c *gin.Context) {
	s.sessionOp(c, func(session *calibration.Session) error {
		return session.StopCapturing()
	})
}

// POST /api/v1/levers/:id/calibration/capture
//
// Closes out the current notch: computes {min, max} over the samples
// accumulated so far and stores it as the notch's provisional range.
func (s *Server) captureRange(c *gin.Context) {
	session, ok := s.loadSession(c)
	if !ok {
		return
	}

	r, err := session.CaptureRange()
	if err != nil {
		status := http.StatusConflict
		code := "invalid_state"
		switch {
		case errors.Is(err, types.ErrNoSamples):
			status, code = http.StatusUnprocessableEntity, "no_samples"
		case errors.Is(err, types.ErrNoRangeDetected):
			status, code = http.StatusUnprocessableEntity, "no_range_detected"
		}
		c.JSON(status, types.NewErrorResponse(code, err.Error(), nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"range": r,
		"state": session.PublicState(),
	})
}

// POST /api/v1/levers/:id/calibration/reset
func (s *Server) resetSamples(c *gin.Context) {
	session, ok := s.loadSession(c)
	if !ok {
		return
	}
	session.ResetSamples()
	c.JSON(http.StatusOK, session.PublicState())
}

// POST /api/v1/levers/:id/calibration/next
func (s *Server) nextNotch(c *gin.Context) {
	s.sessionOp(c, func(session *calibration.Session) error {
		return session.NextNotch()
	})
}

type gotoRequest struct {
	Index *int `json:"index" binding:"required"`
}

// POST /api/v1/levers/:id/calibration/goto
func (s *Server) goToNotch(c *gin.Context) {
	var req gotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("invalid_request", "notch index required", err.Error()))
		return
	}

	s.sessionOp(c, func(session *calibration.Session) error {
		return session.GoToNotch(*req.Index)
	})
}

// POST /api/v1/levers/:id/calibration/save
func (s *Server) saveCalibration(c *gin.Context) {
	session, ok := s.loadSession(c)
	if !ok {
		return
	}

	if err := session.SaveMapping(c.Request.Context()); err != nil {
		s.logger.Warn("Mapping save failed", zap.Error(err))
		c.JSON(http.StatusConflict, types.NewErrorResponse("save_failed", err.Error(), nil))
		return
	}

	// The session mutated its lever copy; swap the fresh config into the
	// runtime loop.
	leverID, _ := s.leverID(c)
	if cfg, err := s.lm.Storage().GetLeverConfig(c.Request.Context(), leverID); err == nil {
		s.lm.Controller().UpdateLever(cfg)
	}

	c.JSON(http.StatusOK, session.PublicState())
}

func (s *Server) sessionOp(c *gin.Context, op func(*calibration.Session) error) {
	session, ok := s.loadSession(c)
	if !ok {
		return
	}

	if err := op(session); err != nil {
		c.JSON(http.StatusConflict, types.NewErrorResponse("invalid_state", err.Error(), nil))
		return
	}

	c.JSON(http.StatusOK, session.PublicState())
}

func (s *Server) loadSession(c *gin.Context) (*calibration.Session, bool) {
	leverID, ok := s.leverID(c)
	if !ok {
		return nil, false
	}

	session, found := s.lm.Calibration().Get(leverID)
	if !found {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("not_found", "no mapping session for lever", nil))
		return nil, false
	}
	return session, true
}
