package clock

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// RateSetter is the rate-apply primitive: it moves the GPU to the given
// operating point. freq is opaque here and interpreted by the backend.
type RateSetter interface {
	SetRate(clockMHz, freq uint) error
}

const (
	BackendSysfs = "sysfs"
	BackendGPIO  = "gpio"
	BackendNoop  = "noop"
)

type Config struct {
	// Backend is one of sysfs, gpio or noop.
	Backend string
	// DevfreqDir is the devfreq device directory used by the sysfs backend,
	// e.g. /sys/class/devfreq/13000000.gpu.
	DevfreqDir string
	// GPIOLine names the clock-select line for the gpio backend (e.g. "GPIO17").
	GPIOLine string
}

type Snapshot struct {
	Backend string `json:"backend"`

	Applies      uint64    `json:"applies"`
	LastClockMHz uint      `json:"last_clock_mhz"`
	LastFreq     uint      `json:"last_freq"`
	LastApplyAt  time.Time `json:"last_apply_utc,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

var openGPIOFn = openGPIO

// Service wraps the configured backend and remembers the last request.
type Service struct {
	backend string
	drv     RateSetter

	mu   sync.RWMutex
	snap Snapshot
}

func New(cfg Config) (*Service, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendNoop
	}

	var drv RateSetter
	switch backend {
	case BackendSysfs:
		if strings.TrimSpace(cfg.DevfreqDir) == "" {
			return nil, fmt.Errorf("clock: sysfs backend requires a devfreq dir")
		}
		drv = &sysfsDevfreq{dir: cfg.DevfreqDir}
	case BackendGPIO:
		g, err := openGPIOFn(cfg.GPIOLine)
		if err != nil {
			return nil, err
		}
		drv = g
	case BackendNoop:
		drv = noop{}
	default:
		return nil, fmt.Errorf("clock: unknown backend %q", cfg.Backend)
	}

	return &Service{backend: backend, drv: drv, snap: Snapshot{Backend: backend}}, nil
}

// SetRate forwards to the backend. The request is recorded even when the
// backend fails.
func (s *Service) SetRate(clockMHz, freq uint) error {
	err := s.drv.SetRate(clockMHz, freq)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Applies++
	s.snap.LastClockMHz = clockMHz
	s.snap.LastFreq = freq
	s.snap.LastApplyAt = time.Now().UTC()
	s.snap.LastError = ""
	if err != nil {
		s.snap.LastError = err.Error()
	}
	return err
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Close releases the backend if it holds resources.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	if c, ok := s.drv.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

type noop struct{}

func (noop) SetRate(clockMHz, freq uint) error { return nil }
