package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"gpuclockd/internal/clock"
	"gpuclockd/internal/dvfs"
)

const (
	// DefaultNodeDir is where serve creates the device node and where the
	// CLI looks for it.
	DefaultNodeDir   = "/run/gpuclockd"
	DefaultStoreRate = 20.0
)

type Config struct {
	Device  DeviceConfig `yaml:"device"`
	Web     WebConfig    `yaml:"web"`
	Clock   ClockConfig  `yaml:"clock"`
	DVFS    DVFSConfig   `yaml:"dvfs"`
	Log     LogConfig    `yaml:"log"`
	PIDFile string       `yaml:"pidfile"`
}

type DeviceConfig struct {
	Name string `yaml:"name"`
	// NodeDir holds the unix-socket device node the CLI talks to.
	NodeDir string `yaml:"node_dir"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
	// StoreRate limits attribute writes per second across all clients.
	// Unset means DefaultStoreRate; 0 disables the limit.
	StoreRate  *float64 `yaml:"store_rate"`
	StoreBurst int      `yaml:"store_burst"`
	LogLines   int      `yaml:"log_lines"`
}

// StoreRateLimit returns the configured write rate, 0 when unlimited.
func (w WebConfig) StoreRateLimit() float64 {
	if w.StoreRate == nil {
		return 0
	}
	return *w.StoreRate
}

type ClockConfig struct {
	Backend    string `yaml:"backend"`
	DevfreqDir string `yaml:"devfreq_dir"`
	GPIOLine   string `yaml:"gpio_line"`
}

// StepConfig is one operating point. Thresholds are percentages.
type StepConfig struct {
	ClockMHz    uint `yaml:"clock_mhz"`
	Freq        uint `yaml:"freq"`
	VoltageUV   uint `yaml:"voltage_uv"`
	DownPercent uint `yaml:"down_percent"`
	UpPercent   uint `yaml:"up_percent"`
}

type DVFSConfig struct {
	Steps     []StepConfig `yaml:"steps"`
	Staycount []int32      `yaml:"staycount"`
}

type LogConfig struct {
	Verbosity int `yaml:"verbosity"`
	// RateErrorInterval limits repeated rate-apply failure logs.
	RateErrorInterval time.Duration `yaml:"rate_error_interval"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() Config {
	var cfg Config
	_ = DefaultAndValidate(&cfg)
	return cfg
}

// DefaultAndValidate fills in defaults and reports every invalid field.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if strings.TrimSpace(cfg.Device.Name) == "" {
		cfg.Device.Name = "gpu_clock_control"
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8087"
	}
	if cfg.Device.NodeDir == "" {
		cfg.Device.NodeDir = DefaultNodeDir
	}
	if cfg.Web.StoreRate == nil {
		r := DefaultStoreRate
		cfg.Web.StoreRate = &r
	}
	if cfg.Web.StoreBurst <= 0 {
		cfg.Web.StoreBurst = 5
	}
	if cfg.Web.LogLines <= 0 {
		cfg.Web.LogLines = 2000
	}
	if cfg.Clock.Backend == "" {
		cfg.Clock.Backend = clock.BackendNoop
	}
	cfg.Clock.Backend = strings.ToLower(strings.TrimSpace(cfg.Clock.Backend))
	if cfg.Log.RateErrorInterval <= 0 {
		cfg.Log.RateErrorInterval = 10 * time.Second
	}

	if len(cfg.DVFS.Steps) == 0 {
		cfg.DVFS.Steps = defaultSteps()
	}
	if len(cfg.DVFS.Staycount) == 0 {
		def := dvfs.DefaultSnapshot()
		cfg.DVFS.Staycount = []int32{def.Staycount[0].Staycount, def.Staycount[1].Staycount}
	}

	var errs *multierror.Error
	if strings.ContainsAny(cfg.Device.Name, "/ \t\n") {
		errs = multierror.Append(errs, fmt.Errorf("device.name %q must not contain '/' or whitespace", cfg.Device.Name))
	}
	if *cfg.Web.StoreRate < 0 {
		errs = multierror.Append(errs, fmt.Errorf("web.store_rate must be >= 0 (got %g)", *cfg.Web.StoreRate))
	}
	switch cfg.Clock.Backend {
	case clock.BackendNoop, clock.BackendGPIO:
	case clock.BackendSysfs:
		if strings.TrimSpace(cfg.Clock.DevfreqDir) == "" {
			errs = multierror.Append(errs, fmt.Errorf("clock.devfreq_dir is required when clock.backend is 'sysfs'"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("clock.backend must be one of sysfs, gpio, noop (got %q)", cfg.Clock.Backend))
	}
	if cfg.Clock.Backend == clock.BackendGPIO && strings.TrimSpace(cfg.Clock.GPIOLine) == "" {
		errs = multierror.Append(errs, fmt.Errorf("clock.gpio_line is required when clock.backend is 'gpio'"))
	}

	if len(cfg.DVFS.Steps) != dvfs.Steps {
		errs = multierror.Append(errs, fmt.Errorf("dvfs.steps must have exactly %d entries (got %d)", dvfs.Steps, len(cfg.DVFS.Steps)))
	} else {
		for i, s := range cfg.DVFS.Steps {
			if s.ClockMHz < dvfs.MinClockMHz || s.ClockMHz > dvfs.MaxClockMHz {
				errs = multierror.Append(errs, fmt.Errorf("dvfs.steps[%d].clock_mhz must be in [%d,%d] (got %d)", i, dvfs.MinClockMHz, dvfs.MaxClockMHz, s.ClockMHz))
			}
			if s.DownPercent > 100 {
				errs = multierror.Append(errs, fmt.Errorf("dvfs.steps[%d].down_percent must be <= 100 (got %d)", i, s.DownPercent))
			}
			if s.UpPercent > 100 {
				errs = multierror.Append(errs, fmt.Errorf("dvfs.steps[%d].up_percent must be <= 100 (got %d)", i, s.UpPercent))
			}
		}
	}
	if len(cfg.DVFS.Staycount) != dvfs.Steps {
		errs = multierror.Append(errs, fmt.Errorf("dvfs.staycount must have exactly %d entries (got %d)", dvfs.Steps, len(cfg.DVFS.Staycount)))
	}

	return errs.ErrorOrNil()
}

// defaultSteps mirrors dvfs.DefaultSnapshot in config units.
func defaultSteps() []StepConfig {
	return []StepConfig{
		{ClockMHz: 160, Freq: 1, VoltageUV: 950000, DownPercent: 0, UpPercent: 85},
		{ClockMHz: 267, Freq: 1, VoltageUV: 1000000, DownPercent: 75, UpPercent: 100},
	}
}

// Tables converts the dvfs section into the governor's initial tables.
// cfg must have passed DefaultAndValidate.
func (c DVFSConfig) Tables() dvfs.Snapshot {
	var snap dvfs.Snapshot
	for i := 0; i < dvfs.Steps && i < len(c.Steps); i++ {
		s := c.Steps[i]
		snap.Clock[i] = dvfs.ClockStep{Clock: s.ClockMHz, Freq: s.Freq, Vol: s.VoltageUV}
		snap.Threshold[i] = dvfs.ThresholdStep{
			Down: dvfs.PercentToThreshold(s.DownPercent),
			Up:   dvfs.PercentToThreshold(s.UpPercent),
		}
	}
	for i := 0; i < dvfs.Steps && i < len(c.Staycount); i++ {
		snap.Staycount[i] = dvfs.StaycountStep{Staycount: c.Staycount[i]}
	}
	return snap
}
