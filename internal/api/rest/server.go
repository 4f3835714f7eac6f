package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opencab/OpenCabBridge/internal/api/websocket"
	"github.com/opencab/OpenCabBridge/internal/auth"
	"github.com/opencab/OpenCabBridge/internal/config"
	"github.com/opencab/OpenCabBridge/internal/interfaces"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH (PUBLIC) ====================
		v1.POST("/auth/login", s.login)

		// ==================== LEVERS ====================
		levers := v1.Group("/levers")
		levers.Use(s.authService.Middleware())
		{
			levers.GET("", s.listLevers)
			levers.POST("", s.createLever)
			levers.GET("/:id", s.getLever)
			levers.PUT("/:id", s.updateLever)
			levers.DELETE("/:id", s.deleteLever)

			// Mapping utilities
			levers.POST("/:id/map", s.mapValue)
			levers.GET("/:id/detents/:index", s.getDetent)
			levers.POST("/:id/analyze", s.analyzeLever)

			// Calibration session
			levers.POST("/:id/calibration", s.startCalibration)
			levers.GET("/:id/calibration", s.getCalibrationState)
			levers.DELETE("/:id/calibration", s.cancelCalibration)
			levers.POST("/:id/calibration/capture/start", s.startCapture)
			levers.POST("/:id/calibration/capture/stop", s.stopCapture)
			levers.POST("/:id/calibration/capture", s.captureRange)
			levers.POST("/:id/calibration/reset", s.resetSamples)
			levers.POST("/:id/calibration/next", s.nextNotch)
			levers.POST("/:id/calibration/goto", s.goToNotch)
			levers.POST("/:id/calibration/save", s.saveCalibration)
		}

		// ==================== PROFILES ====================
		profileRoutes := v1.Group("/profiles")
		profileRoutes.Use(s.authService.Middleware())
		{
			profileRoutes.GET("", s.listProfiles)
			profileRoutes.GET("/:id", s.getProfile)
			profileRoutes.POST("/:id/import", s.importProfile)
		}

		// ==================== SYSTEM ====================
		system := v1.Group("/system")
		system.Use(s.authService.Middleware())
		{
			system.GET("/status", s.getSystemStatus)
		}

		// ==================== WEBSOCKET (auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.authService.Middleware(), s.wsStatus)
		}
	}
}

func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWS(s.wsHub, s.authService, s.logger, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.ClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
