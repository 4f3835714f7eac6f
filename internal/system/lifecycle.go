package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opencab/OpenCabBridge/internal/api/rest"
	"github.com/opencab/OpenCabBridge/internal/api/websocket"
	"github.com/opencab/OpenCabBridge/internal/auth"
	"github.com/opencab/OpenCabBridge/internal/calibration"
	"github.com/opencab/OpenCabBridge/internal/config"
	"github.com/opencab/OpenCabBridge/internal/control"
	"github.com/opencab/OpenCabBridge/internal/hardware"
	"github.com/opencab/OpenCabBridge/internal/interfaces"
	"github.com/opencab/OpenCabBridge/internal/profiles"
	"github.com/opencab/OpenCabBridge/internal/sim"
	"github.com/opencab/OpenCabBridge/internal/storage"
)

// LifecycleManager owns every component and runs startup and shutdown
// in dependency order.
type LifecycleManager struct {
	config      *config.Config
	storage     *storage.PostgresClient
	simClient   *sim.Client
	stream      *hardware.Stream
	wsHub       *websocket.Hub
	calibration *calibration.Manager
	analyzer    *calibration.Analyzer
	controller  *control.Controller
	profiles    *profiles.Loader
	authService *auth.AuthService
	logger      *zap.Logger

	restServer *rest.Server

	stateMu      sync.RWMutex
	currentState SystemState

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// hubBroadcaster adapts the websocket hub to the broadcaster interfaces
// the domain packages declare.
type hubBroadcaster struct {
	hub *websocket.Hub
}

func (b hubBroadcaster) BroadcastCalibrationState(state calibration.PublicState) {
	b.hub.BroadcastCalibrationState(state)
}

func (b hubBroadcaster) BroadcastLeverInput(leverID, name string, raw, simValue float64) {
	b.hub.Broadcast(websocket.NewLeverInputMessage(leverID, name, raw, simValue))
}

func (b hubBroadcaster) BroadcastLeverError(leverID, name string, raw float64, reason string) {
	b.hub.Broadcast(websocket.NewLeverErrorMessage(leverID, name, raw, reason))
}

func NewLifecycleManager(
	storage *storage.PostgresClient,
	cfg *config.Config,
	logger *zap.Logger,
) *LifecycleManager {
	wsHub := websocket.NewHub(logger)
	broadcaster := hubBroadcaster{hub: wsHub}

	simClient := sim.NewClient(cfg.Simulator.BaseURL, cfg.Simulator.RequestTimeout)
	analyzer := calibration.NewAnalyzer(simClient, cfg.Simulator.AnalyzeInterval, cfg.Simulator.AnalyzeDuration, logger)
	calibrationManager := calibration.NewManager(storage, broadcaster, logger)

	stream := hardware.NewStream(cfg.Hardware.SerialPort, cfg.Hardware.BaudRate, cfg.Hardware.ReconnectInterval, logger)
	controller := control.NewController(logger, stream, simClient, broadcaster, calibrationManager, cfg.Simulator.RequestTimeout)

	profileLoader, err := profiles.NewLoader(cfg.Profiles.SearchPaths)
	if err != nil {
		logger.Fatal("Failed to create profile loader", zap.Error(err))
	}

	authService, err := auth.NewAuthService(cfg.Auth, logger)
	if err != nil {
		logger.Fatal("Failed to create auth service", zap.Error(err))
	}

	return &LifecycleManager{
		config:       cfg,
		storage:      storage,
		simClient:    simClient,
		stream:       stream,
		wsHub:        wsHub,
		calibration:  calibrationManager,
		analyzer:     analyzer,
		controller:   controller,
		profiles:     profileLoader,
		authService:  authService,
		logger:       logger,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}
}

func (lm *LifecycleManager) Config() *config.Config            { return lm.config }
func (lm *LifecycleManager) Storage() *storage.PostgresClient  { return lm.storage }
func (lm *LifecycleManager) SimClient() *sim.Client            { return lm.simClient }
func (lm *LifecycleManager) Controller() *control.Controller   { return lm.controller }
func (lm *LifecycleManager) Calibration() *calibration.Manager { return lm.calibration }
func (lm *LifecycleManager) Analyzer() *calibration.Analyzer   { return lm.analyzer }
func (lm *LifecycleManager) Profiles() *profiles.Loader        { return lm.profiles }

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenCabBridge")

	schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := lm.storage.EnsureSchema(schemaCtx); err != nil {
		lm.setState(StateError)
		return err
	}

	if err := lm.loadLeversFromDB(); err != nil {
		lm.logger.Warn("Failed to load levers from database", zap.Error(err))
		// Continue anyway, levers can be created via the API
	}

	go lm.wsHub.Run()

	if err := lm.stream.Start(); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to start hardware stream: %w", err)
	}

	lm.controller.Start()

	if err := lm.startRESTServer(); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("serial_port", lm.config.Hardware.SerialPort),
		zap.String("simulator", lm.config.Simulator.BaseURL))

	return nil
}

func (lm *LifecycleManager) loadLeversFromDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	configs, err := lm.storage.LoadAllLeverConfigs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load levers: %w", err)
	}

	lm.controller.SetLevers(configs)

	calibrated := 0
	for _, cfg := range configs {
		if cfg.Calibrated() {
			calibrated++
		}
	}

	lm.logger.Info("Levers loaded from database",
		zap.Int("count", len(configs)),
		zap.Int("calibrated", calibrated))

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService)
	return lm.restServer.Start()
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)

		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 4)

	// 1. Control loop first so no more writes reach the simulator
	wg.Add(1)
	go func() {
		defer wg.Done()
		lm.controller.Stop()
	}()

	// 2. Hardware stream
	wg.Add(1)
	go func() {
		defer wg.Done()
		lm.stream.Stop()
	}()

	// 3. REST API server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// 4. Websocket hub last so clients see the final states
	wg.Add(1)
	go func() {
		defer wg.Done()
		lm.wsHub.Stop()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
		return nil
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		return fmt.Errorf("shutdown timeout exceeded")
	case err := <-errChan:
		return err
	}
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Forcing state transition", zap.Error(err))
	}

	lm.currentState = state
	lm.logger.Info("System state changed", zap.String("state", state.String()))

	lm.wsHub.Broadcast(websocket.NewMessage(websocket.MessageTypeSystemStatus, map[string]string{
		"state": state.String(),
	}))
}

// GetCurrentStatus returns the snapshot the status endpoint serves.
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	lm.stateMu.RUnlock()

	leverStatus := lm.controller.Status()
	calibrated := 0
	for _, ls := range leverStatus {
		if ls.Calibrated {
			calibrated++
		}
	}

	return interfaces.SystemStatus{
		State:            state.String(),
		LeverCount:       len(leverStatus),
		CalibratedLevers: calibrated,
		ActiveSessions:   lm.calibration.ActiveCount(),
		WebsocketClients: lm.wsHub.ClientCount(),
	}
}
