package tuning

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/time/rate"

	"gpuclockd/internal/clock"
	"gpuclockd/internal/dvfs"
	"gpuclockd/internal/sysattr"
)

const (
	DeviceName    = "gpu_clock_control"
	ControlAttr   = "gpu_control"
	StaycountAttr = "gpu_staycount"

	// maxUpPercent bounds the up-threshold of a percentage write. The
	// down-threshold has no upper bound.
	maxUpPercent = 100
)

// ErrInvalidArgument is the only error a store returns.
var ErrInvalidArgument = errors.New("invalid argument")

// Recorder observes store outcomes and rate-apply results.
type Recorder interface {
	StoreResult(attr string, err error)
	RateApplied(err error)
}

type Config struct {
	// Tables is the governor's shared handle. Required.
	Tables *dvfs.Tables
	// Rate is the rate-apply primitive. Required.
	Rate clock.RateSetter

	Log      logr.Logger
	Recorder Recorder
	// RateErrorLogInterval limits how often a failing rate-apply is logged.
	RateErrorLogInterval time.Duration
}

type Interface struct {
	tables *dvfs.Tables
	rate   clock.RateSetter
	log    logr.Logger
	rec    Recorder

	rateErrLog *rate.Limiter
}

func New(cfg Config) (*Interface, error) {
	if cfg.Tables == nil {
		return nil, fmt.Errorf("tuning: tables are nil")
	}
	if cfg.Rate == nil {
		return nil, fmt.Errorf("tuning: rate setter is nil")
	}
	if cfg.Log.GetSink() == nil {
		cfg.Log = logr.Discard()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.RateErrorLogInterval <= 0 {
		cfg.RateErrorLogInterval = 10 * time.Second
	}
	return &Interface{
		tables:     cfg.Tables,
		rate:       cfg.Rate,
		log:        cfg.Log,
		rec:        cfg.Recorder,
		rateErrLog: rate.NewLimiter(rate.Every(cfg.RateErrorLogInterval), 1),
	}, nil
}

// ShowControl renders step clocks, the step-0 up-threshold and the step-1
// down-threshold as percentages.
func (t *Interface) ShowControl() string {
	return fmt.Sprintf("Step0: %d\nStep1: %d\nThreshold0-1/up-down: %d%% %d%%\n",
		t.tables.Clock[0].Clock,
		t.tables.Clock[1].Clock,
		dvfs.ThresholdToPercent(t.tables.Threshold[0].Up),
		dvfs.ThresholdToPercent(t.tables.Threshold[1].Down),
	)
}

// StoreControl accepts "<up>% <down>%" (step-0 up-threshold, step-1
// down-threshold) or "<low> <high>" (step clocks in MHz, clamped).
func (t *Interface) StoreControl(buf string) (int, error) {
	kind, a, b := parseControl(buf)
	switch kind {
	case payloadPercentPair:
		up, down := a, b
		if down < 0 || up < 0 || up > maxUpPercent {
			return t.reject(ControlAttr, buf, "threshold out of range")
		}
		t.tables.Threshold[0].Up = dvfs.PercentToThreshold(uint(up))
		t.tables.Threshold[1].Down = dvfs.PercentToThreshold(uint(down))
		t.log.V(1).Info("thresholds updated", "up0", t.tables.Threshold[0].Up, "down1", t.tables.Threshold[1].Down)

	case payloadIntPair:
		low, high := dvfs.ClampClock(a), dvfs.ClampClock(b)
		if int64(low) != a || int64(high) != b {
			t.log.V(1).Info("clock clamped", "requested", []int64{a, b}, "applied", []uint{low, high})
		}
		t.tables.Clock[0].Clock = low
		t.tables.Clock[1].Clock = high
		t.log.V(1).Info("step clocks updated", "step0", low, "step1", high)

	default:
		return t.reject(ControlAttr, buf, "unrecognised payload")
	}

	t.dropToLowStep()
	t.rec.StoreResult(ControlAttr, nil)
	return len(buf), nil
}

func (t *Interface) ShowStaycount() string {
	return fmt.Sprintf("%d %d\n", t.tables.Staycount[0].Staycount, t.tables.Staycount[1].Staycount)
}

// StoreStaycount accepts "<i1> <i2>". Values are stored as given.
func (t *Interface) StoreStaycount(buf string) (int, error) {
	a, b, ok := parsePair(intPairRe, buf)
	if !ok {
		return t.reject(StaycountAttr, buf, "unrecognised payload")
	}
	t.tables.Staycount[0].Staycount = int32(a)
	t.tables.Staycount[1].Staycount = int32(b)
	t.log.V(1).Info("staycount updated", "step0", a, "step1", b)

	t.dropToLowStep()
	t.rec.StoreResult(StaycountAttr, nil)
	return len(buf), nil
}

// Group returns the attribute group backed by this interface.
func (t *Interface) Group() sysattr.Group {
	return sysattr.Group{Attrs: []sysattr.Attribute{
		{Name: ControlAttr, Mode: sysattr.ModeWorldRW, Show: t.ShowControl, Store: t.StoreControl},
		{Name: StaycountAttr, Mode: sysattr.ModeWorldRW, Show: t.ShowStaycount, Store: t.StoreStaycount},
	}}
}

// dropToLowStep applies step 0. The tables are already committed, so a
// failing primitive is reported but does not fail the store.
func (t *Interface) dropToLowStep() {
	step := t.tables.Clock[0]
	err := t.rate.SetRate(step.Clock, step.Freq)
	t.rec.RateApplied(err)
	if err != nil && t.rateErrLog.Allow() {
		t.log.Error(err, "drop to step 0 failed", "clock", step.Clock, "freq", step.Freq)
	}
}

func (t *Interface) reject(attr, buf, reason string) (int, error) {
	err := fmt.Errorf("tuning: %s: %s %q: %w", attr, reason, buf, ErrInvalidArgument)
	t.rec.StoreResult(attr, err)
	t.log.V(1).Info("store rejected", "attr", attr, "reason", reason)
	return 0, err
}

type nopRecorder struct{}

func (nopRecorder) StoreResult(string, error) {}
func (nopRecorder) RateApplied(error)         {}
