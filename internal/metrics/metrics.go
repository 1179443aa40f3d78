package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"gpuclockd/internal/dvfs"
	"gpuclockd/internal/sysattr"
	"gpuclockd/internal/tuning"
)

// Table metric descriptor indices and descriptor table.
const (
	stepClockDesc = iota
	stepThresholdDesc
	stepStaycountDesc
	numDescriptors
)

var descriptors = [numDescriptors]*prometheus.Desc{
	stepClockDesc: prometheus.NewDesc(
		"gpu_dvfs_step_clock_mhz",
		"Configured clock of a DVFS step.",
		[]string{"step"}, nil,
	),
	stepThresholdDesc: prometheus.NewDesc(
		"gpu_dvfs_step_threshold",
		"Load threshold of a DVFS step on the 0-255 scale.",
		[]string{"step", "direction"}, nil,
	),
	stepStaycountDesc: prometheus.NewDesc(
		"gpu_dvfs_step_staycount",
		"Hysteresis staycount of a DVFS step.",
		[]string{"step"}, nil,
	),
}

type tableCollector struct {
	gov *dvfs.Governor
}

// NewTableCollector exports the governor's tables at scrape time.
func NewTableCollector(gov *dvfs.Governor) prometheus.Collector {
	return &tableCollector{gov: gov}
}

func (c *tableCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range descriptors {
		ch <- d
	}
}

func (c *tableCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.gov.Snapshot()
	for i := 0; i < dvfs.Steps; i++ {
		step := strconv.Itoa(i)
		ch <- prometheus.MustNewConstMetric(descriptors[stepClockDesc],
			prometheus.GaugeValue, float64(snap.Clock[i].Clock), step)
		ch <- prometheus.MustNewConstMetric(descriptors[stepThresholdDesc],
			prometheus.GaugeValue, float64(snap.Threshold[i].Up), step, "up")
		ch <- prometheus.MustNewConstMetric(descriptors[stepThresholdDesc],
			prometheus.GaugeValue, float64(snap.Threshold[i].Down), step, "down")
		ch <- prometheus.MustNewConstMetric(descriptors[stepStaycountDesc],
			prometheus.GaugeValue, float64(snap.Staycount[i].Staycount), step)
	}
}

// Recorder counts attribute stores and rate applications. It implements
// tuning.Recorder.
type Recorder struct {
	stores      *prometheus.CounterVec
	rateApplies *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	return &Recorder{
		stores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpu_tuning_stores_total",
			Help: "Attribute writes by attribute and result.",
		}, []string{"attr", "result"}),
		rateApplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpu_tuning_rate_applies_total",
			Help: "Drops to step 0 after a tuning write, by result.",
		}, []string{"result"}),
	}
}

func (r *Recorder) StoreResult(attr string, err error) {
	r.stores.WithLabelValues(attr, result(err)).Inc()
}

func (r *Recorder) RateApplied(err error) {
	r.rateApplies.WithLabelValues(result(err)).Inc()
}

func (r *Recorder) Describe(ch chan<- *prometheus.Desc) {
	r.stores.Describe(ch)
	r.rateApplies.Describe(ch)
}

func (r *Recorder) Collect(ch chan<- prometheus.Metric) {
	r.stores.Collect(ch)
	r.rateApplies.Collect(ch)
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, tuning.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, sysattr.ErrPermission):
		return "denied"
	default:
		return "error"
	}
}

// NewRegistry builds the registry served on /metrics.
func NewRegistry(gov *dvfs.Governor, rec *Recorder) (*prometheus.Registry, error) {
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewTableCollector(gov)); err != nil {
		return nil, err
	}
	if rec != nil {
		if err := reg.Register(rec); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

var _ tuning.Recorder = (*Recorder)(nil)
