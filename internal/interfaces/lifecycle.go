package interfaces

import (
	"context"

	"github.com/opencab/OpenCabBridge/internal/calibration"
	"github.com/opencab/OpenCabBridge/internal/config"
	"github.com/opencab/OpenCabBridge/internal/control"
	"github.com/opencab/OpenCabBridge/internal/profiles"
	"github.com/opencab/OpenCabBridge/internal/sim"
	"github.com/opencab/OpenCabBridge/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string `json:"state"`
	LeverCount       int    `json:"lever_count"`
	CalibratedLevers int    `json:"calibrated_levers"`
	ActiveSessions   int    `json:"active_sessions"`
	WebsocketClients int    `json:"websocket_clients"`
}

type LifecycleManager interface {
	Config() *config.Config
	Storage() *storage.PostgresClient
	SimClient() *sim.Client
	Controller() *control.Controller
	Calibration() *calibration.Manager
	Analyzer() *calibration.Analyzer
	Profiles() *profiles.Loader
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
