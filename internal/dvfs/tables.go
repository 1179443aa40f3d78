package dvfs

import "sync"

const (
	// Steps is the number of operating points in every table (0 = low, 1 = high).
	Steps = 2

	MinClockMHz = 10
	MaxClockMHz = 800

	// ThresholdScale is the full-scale value of a load threshold (100%).
	ThresholdScale = 255
)

// ClockStep is one operating point. Freq is opaque to everything but the
// rate-apply primitive.
type ClockStep struct {
	Clock uint `json:"clock_mhz"`
	Freq  uint `json:"freq"`
	Vol   uint `json:"voltage_uv"`
}

// ThresholdStep holds load thresholds on the 0..255 scale.
type ThresholdStep struct {
	Down uint `json:"down"`
	Up   uint `json:"up"`
}

type StaycountStep struct {
	Staycount int32 `json:"staycount"`
}

// Tables are the process-wide DVFS tables. The zero value is usable.
//
// Tables embeds the governor's lock; code that mutates fields is expected to
// hold it (see Governor.Locker). Nothing enforces that.
type Tables struct {
	sync.Mutex

	Clock     [Steps]ClockStep
	Threshold [Steps]ThresholdStep
	Staycount [Steps]StaycountStep
}

// Snapshot is a copy of the tables, safe to hand out.
type Snapshot struct {
	Clock     [Steps]ClockStep     `json:"clock"`
	Threshold [Steps]ThresholdStep `json:"threshold"`
	Staycount [Steps]StaycountStep `json:"staycount"`
}

// snapshotLocked copies the tables. Caller holds the lock.
func (t *Tables) snapshotLocked() Snapshot {
	return Snapshot{Clock: t.Clock, Threshold: t.Threshold, Staycount: t.Staycount}
}

func (t *Tables) load(s Snapshot) {
	t.Clock = s.Clock
	t.Threshold = s.Threshold
	t.Staycount = s.Staycount
}

// PercentToThreshold converts a load percentage to the 0..255 scale,
// truncating. Values above 100 are converted as-is.
func PercentToThreshold(p uint) uint {
	return p * ThresholdScale / 100
}

// ThresholdToPercent converts a threshold back to a percentage, truncating.
func ThresholdToPercent(t uint) uint {
	return t * 100 / ThresholdScale
}

// ClampClock bounds an operator-supplied clock to [MinClockMHz, MaxClockMHz].
func ClampClock(mhz int64) uint {
	if mhz < MinClockMHz {
		return MinClockMHz
	}
	if mhz > MaxClockMHz {
		return MaxClockMHz
	}
	return uint(mhz)
}
