//go:build linux && (arm || arm64)

package clock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// openGPIO drives a clock-select line through the GPIO character device.
// Boards with two fixed GPU oscillators pick one with this line; freq 0
// selects the low oscillator and anything else the high one.
func openGPIO(lineName string) (RateSetter, error) {
	lineName = strings.TrimSpace(lineName)
	if lineName == "" {
		return nil, fmt.Errorf("clock: gpio backend requires a line name")
	}

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("gpuclockd-clksel"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodClockSelect{chip: chip, line: line}, nil
	}

	return nil, fmt.Errorf("clock: gpio line %q not found (or busy)", lineName)
}

type gpiodClockSelect struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodClockSelect) SetRate(clockMHz, freq uint) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("clock: gpio driver not initialized")
	}
	v := 0
	if freq != 0 {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *gpiodClockSelect) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	// Leave the board on the low oscillator.
	_ = g.line.SetValue(0)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
