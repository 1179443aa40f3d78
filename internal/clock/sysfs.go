package clock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const userspaceGovernor = "userspace"

// sysfsDevfreq drives a devfreq device through the userspace governor:
//
//	<dir>/governor            must read "userspace"
//	<dir>/userspace/set_freq  target rate in Hz
type sysfsDevfreq struct {
	dir string
}

func (d *sysfsDevfreq) SetRate(clockMHz, freq uint) error {
	gov, err := readTrimmed(filepath.Join(d.dir, "governor"))
	if err != nil {
		return fmt.Errorf("clock: read devfreq governor: %w", err)
	}
	if gov != userspaceGovernor {
		return fmt.Errorf("clock: devfreq governor is %q, want %q", gov, userspaceGovernor)
	}

	hz := uint64(clockMHz) * 1_000_000
	p := filepath.Join(d.dir, "userspace", "set_freq")
	if err := writeSysfs(p, strconv.FormatUint(hz, 10)); err != nil {
		return fmt.Errorf("clock: set rate %d MHz: %w", clockMHz, err)
	}
	return nil
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

var sysfsRetryWindow = 2 * time.Second

func writeSysfs(path string, value string) error {
	// O_WRONLY without O_TRUNC/O_CREATE: some sysfs attributes reject the
	// truncation flags. Right after a devfreq device appears udev may still be
	// fixing permissions, so EACCES/ENOENT are retried for a short window.
	deadline := time.Now().Add(sysfsRetryWindow)
	var lastErr error
	for {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			lastErr = err
			if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
				time.Sleep(25 * time.Millisecond)
				continue
			}
			return err
		}
		_, werr := f.WriteString(value)
		cerr := f.Close()
		if werr == nil && cerr == nil {
			return nil
		}
		if werr != nil {
			lastErr = werr
		} else {
			lastErr = cerr
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(lastErr) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		return errors.Join(werr, cerr)
	}
}

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOENT)
}
