package web

import (
	"time"

	"gpuclockd/internal/clock"
	"gpuclockd/internal/dvfs"
	"gpuclockd/internal/sysattr"
)

const serviceName = "gpuclockd"

// Status assembles /api/status from the live components. Any of them may be
// nil.
type Status struct {
	start time.Time
	gov   *dvfs.Governor
	clk   *clock.Service
	dev   *sysattr.Device
}

func NewStatus(gov *dvfs.Governor, clk *clock.Service, dev *sysattr.Device) *Status {
	return &Status{start: time.Now().UTC(), gov: gov, clk: clk, dev: dev}
}

// TablesStatus is the governor's tables plus the thresholds as the
// percentages gpu_control reports.
type TablesStatus struct {
	dvfs.Snapshot
	UpPercent   [dvfs.Steps]uint `json:"up_percent"`
	DownPercent [dvfs.Steps]uint `json:"down_percent"`
}

type DeviceStatus struct {
	Name       string   `json:"name"`
	Registered bool     `json:"registered"`
	Attributes []string `json:"attributes"`
}

type StatusSnapshot struct {
	Service   string          `json:"service"`
	NowUTC    string          `json:"now_utc"`
	UptimeSec int64           `json:"uptime_sec"`
	Device    *DeviceStatus   `json:"device,omitempty"`
	Tables    *TablesStatus   `json:"tables,omitempty"`
	Clock     *clock.Snapshot `json:"clock,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	snap := StatusSnapshot{
		Service:   serviceName,
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(s.start).Seconds()),
	}
	if s.dev != nil {
		snap.Device = &DeviceStatus{
			Name:       s.dev.Name(),
			Registered: s.dev.Registered(),
			Attributes: s.dev.Attributes(),
		}
	}
	if s.gov != nil {
		ts := &TablesStatus{Snapshot: s.gov.Snapshot()}
		for i := 0; i < dvfs.Steps; i++ {
			ts.UpPercent[i] = dvfs.ThresholdToPercent(ts.Threshold[i].Up)
			ts.DownPercent[i] = dvfs.ThresholdToPercent(ts.Threshold[i].Down)
		}
		snap.Tables = ts
	}
	if s.clk != nil {
		c := s.clk.Snapshot()
		snap.Clock = &c
	}
	return snap
}
