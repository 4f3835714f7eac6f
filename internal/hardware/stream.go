// Package hardware reads normalized lever samples from the control panel's
// microcontroller over USB serial. The line protocol is one sample per
// line: "<input-id>:<raw>", where raw is a 10-bit ADC count (0-1023).
package hardware

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// maxRawCount is the full-scale ADC reading; counts normalize onto 0.0-1.0.
const maxRawCount = 1023

// Sample is one normalized reading for a hardware input channel.
type Sample struct {
	InputID string
	Value   float64
}

// Stream owns the serial connection and fans samples out to subscribers.
// Delivery is best-effort: a subscriber that cannot keep up loses samples
// rather than blocking the read loop.
type Stream struct {
	portName  string
	baudRate  int
	reconnect time.Duration
	logger    *zap.Logger

	// openPort is swappable for tests.
	openPort func(name string, mode *serial.Mode) (serial.Port, error)

	mu       sync.Mutex
	subs     map[chan Sample]struct{}
	port     serial.Port
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func NewStream(portName string, baudRate int, reconnect time.Duration, logger *zap.Logger) *Stream {
	return &Stream{
		portName:  portName,
		baudRate:  baudRate,
		reconnect: reconnect,
		logger:    logger,
		openPort:  serial.Open,
		subs:      make(map[chan Sample]struct{}),
	}
}

// Start launches the read loop.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.wg.Add(1)

	go s.readLoop()

	s.logger.Info("Hardware stream started",
		zap.String("port", s.portName),
		zap.Int("baud", s.baudRate))

	return nil
}

// Stop terminates the read loop and waits for it. The open port is closed
// to unblock a read on a silent device.
func (s *Stream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	port := s.port
	s.mu.Unlock()

	close(s.stopChan)
	if port != nil {
		port.Close()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Hardware stream stopped", zap.String("port", s.portName))
}

// Subscribe registers a sample channel. The returned function unsubscribes.
func (s *Stream) Subscribe() (<-chan Sample, func()) {
	ch := make(chan Sample, 64)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

func (s *Stream) readLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		port, err := s.openPort(s.portName, &serial.Mode{BaudRate: s.baudRate})
		if err != nil {
			s.logger.Warn("Failed to open serial port, retrying",
				zap.String("port", s.portName),
				zap.Duration("retry_in", s.reconnect),
				zap.Error(err))
			select {
			case <-s.stopChan:
				return
			case <-time.After(s.reconnect):
				continue
			}
		}

		s.mu.Lock()
		s.port = port
		s.mu.Unlock()

		// Stop may have fired between the open and the store above; it
		// would have missed this port, so close it here.
		select {
		case <-s.stopChan:
			port.Close()
			return
		default:
		}

		s.readFrames(port)
		port.Close()

		s.mu.Lock()
		s.port = nil
		s.mu.Unlock()
	}
}

func (s *Stream) readFrames(port serial.Port) {
	scanner := bufio.NewScanner(port)

	for scanner.Scan() {
		select {
		case <-s.stopChan:
			return
		default:
		}

		sample, err := parseSample(scanner.Text())
		if err != nil {
			s.logger.Debug("Dropping malformed frame", zap.Error(err))
			continue
		}

		s.publish(sample)
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-s.stopChan:
			// Stop closed the port under us
			return
		default:
		}
		s.logger.Warn("Serial read failed, reconnecting",
			zap.String("port", s.portName),
			zap.Error(err))
	}
}

func (s *Stream) publish(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- sample:
		default:
			// Subscriber buffer full, drop
		}
	}
}

// parseSample decodes one "<input-id>:<raw>" frame and normalizes the raw
// count to 0.0-1.0. Out-of-scale counts are clamped.
func parseSample(line string) (Sample, error) {
	line = strings.TrimSpace(line)

	id, rawStr, ok := strings.Cut(line, ":")
	if !ok || id == "" {
		return Sample{}, fmt.Errorf("malformed frame: %q", line)
	}

	raw, err := strconv.Atoi(rawStr)
	if err != nil {
		return Sample{}, fmt.Errorf("malformed count in frame %q: %w", line, err)
	}

	if raw < 0 {
		raw = 0
	} else if raw > maxRawCount {
		raw = maxRawCount
	}

	return Sample{
		InputID: id,
		Value:   float64(raw) / maxRawCount,
	}, nil
}
