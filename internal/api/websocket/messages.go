package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Live mapped lever values flowing to the simulator
	MessageTypeLeverInput MessageType = "lever_input"

	// Mapping-time problems (dead zone, missing calibration)
	MessageTypeLeverError MessageType = "lever_error"

	// Calibration session snapshots
	MessageTypeCalibrationState MessageType = "calibration_state"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// LeverInputData is one mapped hardware sample.
type LeverInputData struct {
	LeverID  string  `json:"lever_id"`
	Name     string  `json:"name"`
	Raw      float64 `json:"raw"`
	SimValue float64 `json:"sim_value"`
}

// LeverErrorData reports a skipped tick and why.
type LeverErrorData struct {
	LeverID string  `json:"lever_id"`
	Name    string  `json:"name"`
	Raw     float64 `json:"raw"`
	Reason  string  `json:"reason"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewLeverInputMessage(leverID, name string, raw, simValue float64) Message {
	return NewMessage(MessageTypeLeverInput, LeverInputData{
		LeverID:  leverID,
		Name:     name,
		Raw:      raw,
		SimValue: simValue,
	})
}

func NewLeverErrorMessage(leverID, name string, raw float64, reason string) Message {
	return NewMessage(MessageTypeLeverError, LeverErrorData{
		LeverID: leverID,
		Name:    name,
		Raw:     raw,
		Reason:  reason,
	})
}

func NewCalibrationStateMessage(state interface{}) Message {
	return NewMessage(MessageTypeCalibrationState, state)
}
