package dvfs

import "sync"

// Governor owns the DVFS tables. It allocates and initialises them once and
// hands out the shared handle; it never replaces it.
type Governor struct {
	tables *Tables
}

// DefaultSnapshot is the Mali-400 table of Exynos 4 boards.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Clock: [Steps]ClockStep{
			{Clock: 160, Freq: 1, Vol: 950000},
			{Clock: 267, Freq: 1, Vol: 1000000},
		},
		Threshold: [Steps]ThresholdStep{
			{Down: 0, Up: PercentToThreshold(85)},
			{Down: PercentToThreshold(75), Up: PercentToThreshold(100)},
		},
		Staycount: [Steps]StaycountStep{
			{Staycount: 1},
			{Staycount: 1},
		},
	}
}

func NewGovernor(initial Snapshot) *Governor {
	t := &Tables{}
	t.load(initial)
	return &Governor{tables: t}
}

// Tables returns the shared tables handle.
func (g *Governor) Tables() *Tables {
	return g.tables
}

// Locker returns the lock the governor holds while it reads or mutates the
// tables. Attribute dispatch takes it around every call.
func (g *Governor) Locker() sync.Locker {
	return g.tables
}

func (g *Governor) Snapshot() Snapshot {
	g.tables.Lock()
	defer g.tables.Unlock()
	return g.tables.snapshotLocked()
}
