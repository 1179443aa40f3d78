// Package pidfile keeps a single daemon instance per PID file.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
)

// File is a PID file at a fixed path.
type File struct {
	path string
	f    *os.File
}

func New(path string) *File {
	return &File{path: path}
}

func (p *File) Path() string { return p.path }

// Write creates the PID file and writes os.Getpid() to it. A file left by a
// process that is no longer running is replaced; one owned by a live process
// is an error. The file stays open until Remove.
func (p *File) Write() error {
	if p.f != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create PID file")
	}

	f, err := p.create()
	if os.IsExist(err) {
		if err := p.removeStale(); err != nil {
			return err
		}
		f, err = p.create()
	}
	if err != nil {
		return errors.Wrap(err, "failed to create PID file")
	}
	p.f = f

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		p.close()
		return errors.Wrap(err, "failed to write PID file")
	}
	return nil
}

func (p *File) create() (*os.File, error) {
	return os.OpenFile(p.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
}

func (p *File) removeStale() error {
	owner, err := p.OwnerPid()
	if err != nil {
		return errors.Wrap(err, "failed to check existing PID file")
	}
	if owner != 0 {
		return errors.Errorf("PID file %s is held by running process %d", p.path, owner)
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove stale PID file")
	}
	return nil
}

// Read returns the PID stored in the file, or 0 if there is no file or it
// is empty.
func (p *File) Read() (int, error) {
	buf, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return -1, errors.Wrap(err, "failed to read PID file")
	}

	s := strings.TrimSpace(string(buf))
	if s == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(s)
	if err != nil {
		return -1, errors.Wrapf(err, "invalid PID (%q) in PID file", string(buf))
	}
	return pid, nil
}

// OwnerPid returns the PID of the live process owning the file, 0 if none.
func (p *File) OwnerPid() (int, error) {
	pid, err := p.Read()
	if err != nil || pid == 0 {
		return pid, err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return -1, errors.Wrapf(err, "FindProcess() failed for PID %d", pid)
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return pid, nil
	}
	if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
		return 0, nil
	}
	return -1, errors.Wrapf(err, "failed to check process %d", pid)
}

// Remove closes and removes the PID file, whoever created it.
func (p *File) Remove() error {
	p.close()
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (p *File) close() {
	if p.f != nil {
		_ = p.f.Truncate(0)
		_ = p.f.Close()
		p.f = nil
	}
}
