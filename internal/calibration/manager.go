package calibration

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencab/OpenCabBridge/internal/types"
)

// Manager owns the in-progress mapping sessions, one per lever at most.
type Manager struct {
	logger      *zap.Logger
	store       Store
	broadcaster Broadcaster

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewManager(store Store, broadcaster Broadcaster, logger *zap.Logger) *Manager {
	return &Manager{
		logger:      logger,
		store:       store,
		broadcaster: broadcaster,
		sessions:    make(map[uuid.UUID]*Session),
	}
}

// StartSession creates a session for the lever. A lever can only have one
// active session; a finished one is replaced.
func (m *Manager) StartSession(lever *types.LeverConfig) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[lever.ID]; ok && !existing.Done() {
		return nil, fmt.Errorf("lever %s already has an active mapping session", lever.Name)
	}

	session, err := NewSession(lever, m.store, m.broadcaster, m.logger)
	if err != nil {
		return nil, err
	}

	m.sessions[lever.ID] = session
	m.logger.Info("Mapping session created", zap.String("lever", lever.Name))

	return session, nil
}

// Get returns the lever's session, finished or not.
func (m *Manager) Get(leverID uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[leverID]
	return session, ok
}

// Remove drops the lever's session, cancelling it if still running.
func (m *Manager) Remove(leverID uuid.UUID) {
	m.mu.Lock()
	session, ok := m.sessions[leverID]
	delete(m.sessions, leverID)
	m.mu.Unlock()

	if ok {
		session.Cancel()
	}
}

// ActiveCount returns how many sessions are still in progress.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, session := range m.sessions {
		if !session.Done() {
			count++
		}
	}
	return count
}

// Ingest routes a hardware sample to the session of every lever bound to
// the given input. Sessions accept samples even while idle to drive the
// live readout.
func (m *Manager) Ingest(hardwareInputID string, sample float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, session := range m.sessions {
		if session.lever.HardwareInputID == hardwareInputID && !session.Done() {
			session.Ingest(sample)
		}
	}
}
