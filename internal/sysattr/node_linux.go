//go:build linux

package sysattr

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

var umaskMu sync.Mutex

// ListenNode creates the device node <dir>/<name>.sock as a unix socket with
// mode 0666 so any local user can read and write attributes through it.
func ListenNode(dir, name string) (net.Listener, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("sysattr: create node dir: %w", err)
	}
	path := filepath.Join(dir, name+".sock")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("sysattr: remove stale node: %w", err)
	}

	// bind(2) applies the process umask to the socket inode.
	umaskMu.Lock()
	old := unix.Umask(0o111)
	ln, err := net.Listen("unix", path)
	unix.Umask(old)
	umaskMu.Unlock()
	if err != nil {
		return nil, "", fmt.Errorf("sysattr: listen %s: %w", path, err)
	}
	return ln, path, nil
}
