//go:build !linux || (!arm && !arm64)

package clock

import "fmt"

func openGPIO(lineName string) (RateSetter, error) {
	return nil, fmt.Errorf("clock: gpio unsupported on this platform")
}
