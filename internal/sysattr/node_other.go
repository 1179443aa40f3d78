//go:build !linux

package sysattr

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

func ListenNode(dir, name string) (net.Listener, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("sysattr: create node dir: %w", err)
	}
	path := filepath.Join(dir, name+".sock")
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, "", fmt.Errorf("sysattr: listen %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		_ = ln.Close()
		return nil, "", fmt.Errorf("sysattr: chmod node: %w", err)
	}
	return ln, path, nil
}
