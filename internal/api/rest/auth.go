package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opencab/OpenCabBridge/internal/types"
)

type loginRequest struct {
	Passcode string `json:"passcode" binding:"required"`
}

// POST /api/v1/auth/login
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("invalid_request", "passcode required", err.Error()))
		return
	}

	token, err := s.authService.Login(req.Passcode)
	if err != nil {
		s.logger.Warn("Login rejected", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse("invalid_credentials", "invalid passcode", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
	})
}
