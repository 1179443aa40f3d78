package clock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeDevfreq(t *testing.T, governor string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "userspace"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "governor"), []byte(governor+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "userspace", "set_freq"), nil, 0o644))
	return dir
}

func TestNew_DefaultsToNoop(t *testing.T) {
	svc, err := New(Config{})
	require.NoError(t, err)
	require.Equal(t, BackendNoop, svc.Snapshot().Backend)
	require.NoError(t, svc.SetRate(160, 1))
	require.NoError(t, svc.Close())
}

func TestNew_RejectsUnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "pll"})
	require.EqualError(t, err, `clock: unknown backend "pll"`)
}

func TestNew_SysfsRequiresDir(t *testing.T) {
	_, err := New(Config{Backend: "sysfs"})
	require.Error(t, err)
}

func TestSysfs_WritesHz(t *testing.T) {
	dir := writeDevfreq(t, "userspace")

	svc, err := New(Config{Backend: BackendSysfs, DevfreqDir: dir})
	require.NoError(t, err)
	require.NoError(t, svc.SetRate(160, 1))

	b, err := os.ReadFile(filepath.Join(dir, "userspace", "set_freq"))
	require.NoError(t, err)
	require.Equal(t, "160000000", string(b))

	snap := svc.Snapshot()
	require.Equal(t, uint64(1), snap.Applies)
	require.Equal(t, uint(160), snap.LastClockMHz)
	require.Equal(t, uint(1), snap.LastFreq)
	require.Empty(t, snap.LastError)
	require.False(t, snap.LastApplyAt.IsZero())
}

func TestSysfs_RequiresUserspaceGovernor(t *testing.T) {
	dir := writeDevfreq(t, "simple_ondemand")

	svc, err := New(Config{Backend: BackendSysfs, DevfreqDir: dir})
	require.NoError(t, err)

	err = svc.SetRate(267, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), `devfreq governor is "simple_ondemand"`)

	snap := svc.Snapshot()
	require.Equal(t, uint64(1), snap.Applies)
	require.Equal(t, err.Error(), snap.LastError)
}

func TestSysfs_MissingNodeFailsAfterRetryWindow(t *testing.T) {
	old := sysfsRetryWindow
	sysfsRetryWindow = 50 * time.Millisecond
	t.Cleanup(func() { sysfsRetryWindow = old })

	dir := writeDevfreq(t, "userspace")
	require.NoError(t, os.Remove(filepath.Join(dir, "userspace", "set_freq")))

	d := &sysfsDevfreq{dir: dir}
	err := d.SetRate(100, 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist), "err=%v", err)
}

type fakeSelect struct {
	freqs  []uint
	closed bool
}

func (f *fakeSelect) SetRate(clockMHz, freq uint) error {
	f.freqs = append(f.freqs, freq)
	return nil
}

func (f *fakeSelect) Close() error {
	f.closed = true
	return nil
}

func TestGPIOBackendUsesOpener(t *testing.T) {
	fake := &fakeSelect{}
	old := openGPIOFn
	openGPIOFn = func(line string) (RateSetter, error) {
		require.Equal(t, "GPIO17", line)
		return fake, nil
	}
	t.Cleanup(func() { openGPIOFn = old })

	svc, err := New(Config{Backend: "GPIO", GPIOLine: "GPIO17"})
	require.NoError(t, err)
	require.NoError(t, svc.SetRate(160, 1))
	require.NoError(t, svc.SetRate(160, 0))
	require.Equal(t, []uint{1, 0}, fake.freqs)

	require.NoError(t, svc.Close())
	require.True(t, fake.closed)
}
