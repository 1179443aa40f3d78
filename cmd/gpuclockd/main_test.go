package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gpuclockd/internal/config"
	"gpuclockd/internal/sysattr"
	"gpuclockd/internal/tuning"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s did not appear", path)
}

func TestNewDaemon_LogsInitAndRegistersGroup(t *testing.T) {
	var logOut bytes.Buffer
	d, err := newDaemon(config.Default(), &logOut)
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}
	defer d.clk.Close()

	if !strings.Contains(logOut.String(), "Initializing gpu clock control interface") {
		t.Fatalf("log=%q", logOut.String())
	}
	lines, _ := d.logs.Snapshot(10)
	if len(lines) == 0 || !strings.Contains(lines[0], "Initializing gpu clock control interface") {
		t.Fatalf("log buffer=%q", lines)
	}
	if got := d.dev.Attributes(); len(got) != 2 || got[0] != "gpu_control" || got[1] != "gpu_staycount" {
		t.Fatalf("attributes=%q", got)
	}
}

func TestNewDaemon_RejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Clock.Backend = "pll"
	if _, err := newDaemon(cfg, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestServe_ShowAndStoreOverNode(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Web.Listen = "127.0.0.1:0"
	cfg.Device.NodeDir = dir
	cfg.PIDFile = filepath.Join(dir, "gpuclockd.pid")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, &bytes.Buffer{}) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
		if _, err := os.Stat(cfg.PIDFile); !os.IsNotExist(err) {
			t.Errorf("pid file left behind: %v", err)
		}
	}()

	node := filepath.Join(dir, "gpu_clock_control.sock")
	waitForFile(t, node)

	out, err := runCLI(t, "store", "--node", node, "gpu_control", "90%", "50%")
	if err != nil {
		t.Fatalf("store: %v (%s)", err, out)
	}
	if out != "7\n" {
		t.Fatalf("store out=%q", out)
	}

	out, err = runCLI(t, "show", "--node", node, "gpu_control")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	// 90% and 50% are stored as 229 and 127 on the 0-255 scale.
	if want := "Step0: 160\nStep1: 267\nThreshold0-1/up-down: 89% 49%\n"; out != want {
		t.Fatalf("show out=%q want %q", out, want)
	}

	out, err = runCLI(t, "store", "--node", node, "gpu_staycount", "-1", "9999999")
	if err != nil {
		t.Fatalf("store negative staycount: %v (%s)", err, out)
	}
	out, err = runCLI(t, "show", "--node", node, "gpu_staycount")
	if err != nil {
		t.Fatalf("show staycount: %v", err)
	}
	if out != "-1 9999999\n" {
		t.Fatalf("staycount=%q", out)
	}

	if _, err := runCLI(t, "store", "--node", node, "gpu_control", "-3", "801"); err != nil {
		t.Fatalf("store negative clock: %v", err)
	}
	out, _ = runCLI(t, "show", "--node", node, "gpu_control")
	if !strings.HasPrefix(out, "Step0: 10\nStep1: 800\n") {
		t.Fatalf("clamped clocks=%q", out)
	}

	if _, err := runCLI(t, "store", "--node", node, "gpu_control", "101%", "5%"); err == nil {
		t.Fatalf("expected store error")
	}
	if _, err := runCLI(t, "show", "--node", node, "gpu_voltage"); err == nil {
		t.Fatalf("expected show error")
	}
}

func TestServe_PIDFileConflict(t *testing.T) {
	dir := t.TempDir()
	pid := filepath.Join(dir, "gpuclockd.pid")
	if err := os.WriteFile(pid, []byte("1\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	cfg := config.Default()
	cfg.Web.Listen = "127.0.0.1:0"
	cfg.Device.NodeDir = dir
	cfg.PIDFile = pid

	if err := serve(context.Background(), cfg, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected pid file error")
	}
}

func TestServe_ReplacesStalePIDFile(t *testing.T) {
	child := exec.Command(os.Args[0], "-test.run=^$")
	if err := child.Run(); err != nil {
		t.Fatalf("run child: %v", err)
	}

	dir := t.TempDir()
	pid := filepath.Join(dir, "gpuclockd.pid")
	if err := os.WriteFile(pid, []byte(fmt.Sprintf("%d\n", child.Process.Pid)), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	cfg := config.Default()
	cfg.Web.Listen = "127.0.0.1:0"
	cfg.Device.NodeDir = dir
	cfg.PIDFile = pid

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := serve(ctx, cfg, &bytes.Buffer{}); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if _, err := os.Stat(pid); !os.IsNotExist(err) {
		t.Fatalf("pid file left behind: %v", err)
	}
}

func TestNewDaemon_GroupFailureIsNotFatal(t *testing.T) {
	orig := attrGroupFn
	t.Cleanup(func() { attrGroupFn = orig })
	attrGroupFn = func(ti *tuning.Interface) sysattr.Group {
		g := orig(ti)
		g.Attrs = append(g.Attrs, g.Attrs[0])
		return g
	}

	var logOut bytes.Buffer
	d, err := newDaemon(config.Default(), &logOut)
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}
	defer d.clk.Close()

	if !d.dev.Registered() {
		t.Fatalf("device not registered")
	}
	if got := d.dev.Attributes(); len(got) != 0 {
		t.Fatalf("attributes=%q want none", got)
	}
	for _, want := range []string{"sysfs_create_group failed", "Unable to create group"} {
		if !strings.Contains(logOut.String(), want) {
			t.Fatalf("log missing %q: %q", want, logOut.String())
		}
	}
}

func TestDefaultNodeMatchesServe(t *testing.T) {
	cfg := config.Default()
	want := filepath.Join(cfg.Device.NodeDir, cfg.Device.Name+".sock")
	if defaultNode != want {
		t.Fatalf("defaultNode=%q want %q", defaultNode, want)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, `"service": "gpuclockd"`) {
		t.Fatalf("out=%q", out)
	}
}
