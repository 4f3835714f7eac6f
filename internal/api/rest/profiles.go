package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opencab/OpenCabBridge/internal/types"
)

// GET /api/v1/profiles
func (s *Server) listProfiles(c *gin.Context) {
	catalogs, err := s.lm.Profiles().Catalogs()
	if err != nil {
		s.logger.Error("Failed to read profile catalogs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("catalog_error", "failed to read profile catalogs", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"catalogs": catalogs,
		"count":    len(catalogs),
	})
}

// GET /api/v1/profiles/:id
func (s *Server) getProfile(c *gin.Context) {
	profile, err := s.lm.Profiles().Load(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("not_found", err.Error(), nil))
		return
	}

	c.JSON(http.StatusOK, profile)
}

// POST /api/v1/profiles/:id/import
//
// Creates one uncalibrated lever per profile lever and registers them
// with the runtime loop.
func (s *Server) importProfile(c *gin.Context) {
	profile, err := s.lm.Profiles().Load(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("not_found", err.Error(), nil))
		return
	}

	configs, err := profile.ToLeverConfigs()
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse("invalid_profile", err.Error(), nil))
		return
	}

	created := make([]*types.LeverConfig, 0, len(configs))
	for _, cfg := range configs {
		id, err := s.lm.Storage().SaveLeverConfig(c.Request.Context(), cfg)
		if err != nil {
			s.logger.Error("Failed to import profile lever",
				zap.String("profile", profile.Name),
				zap.String("lever", cfg.Name),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, types.NewErrorResponse("storage_error", "failed to import profile", gin.H{
				"imported": len(created),
			}))
			return
		}
		cfg.ID = id
		s.lm.Controller().UpdateLever(cfg)
		created = append(created, cfg)
	}

	s.logger.Info("Profile imported",
		zap.String("profile", profile.Name),
		zap.Int("levers", len(created)))

	c.JSON(http.StatusCreated, gin.H{
		"profile": profile.Name,
		"levers":  created,
	})
}
