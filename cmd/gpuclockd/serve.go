package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"gpuclockd/internal/clock"
	"gpuclockd/internal/config"
	"gpuclockd/internal/dvfs"
	"gpuclockd/internal/logging"
	"gpuclockd/internal/metrics"
	"gpuclockd/internal/pidfile"
	"gpuclockd/internal/sysattr"
	"gpuclockd/internal/tuning"
	"gpuclockd/internal/web"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		verbosity  int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if configPath != "" {
				var err error
				cfg, err = config.Load(configPath)
				if err != nil {
					return fmt.Errorf("config load failed: %w", err)
				}
			}
			if cmd.Flags().Changed("v") {
				cfg.Log.Verbosity = verbosity
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg, os.Stderr)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config (defaults apply when empty)")
	cmd.Flags().IntVarP(&verbosity, "v", "v", 0, "log verbosity (overrides log.verbosity)")
	return cmd
}

var attrGroupFn = (*tuning.Interface).Group

// daemon is the wired set of components behind one attribute device.
type daemon struct {
	log     logr.Logger
	logs    *web.LogBuffer
	gov     *dvfs.Governor
	clk     *clock.Service
	dev     *sysattr.Device
	handler http.Handler
}

func newDaemon(cfg config.Config, logOut io.Writer) (*daemon, error) {
	logs := web.NewLogBuffer(cfg.Web.LogLines)
	log := logging.New(io.MultiWriter(logOut, logs), cfg.Log.Verbosity).WithName("gpuclockd")

	gov := dvfs.NewGovernor(cfg.DVFS.Tables())

	clk, err := clock.New(clock.Config{
		Backend:    cfg.Clock.Backend,
		DevfreqDir: cfg.Clock.DevfreqDir,
		GPIOLine:   cfg.Clock.GPIOLine,
	})
	if err != nil {
		return nil, err
	}

	rec := metrics.NewRecorder()
	reg, err := metrics.NewRegistry(gov, rec)
	if err != nil {
		_ = clk.Close()
		return nil, fmt.Errorf("metrics registry: %w", err)
	}

	ti, err := tuning.New(tuning.Config{
		Tables:               gov.Tables(),
		Rate:                 clk,
		Log:                  log.WithName("tuning"),
		Recorder:             rec,
		RateErrorLogInterval: cfg.Log.RateErrorInterval,
	})
	if err != nil {
		_ = clk.Close()
		return nil, err
	}

	log.Info("Initializing gpu clock control interface")

	dev := sysattr.NewDevice(cfg.Device.Name, gov.Locker())
	if err := dev.Register(); err != nil {
		_ = clk.Close()
		return nil, fmt.Errorf("register %s: %w", cfg.Device.Name, err)
	}
	// The device stays registered without its attributes.
	if err := dev.CreateGroup(attrGroupFn(ti)); err != nil {
		log.Error(err, "sysfs_create_group failed")
		log.Error(err, "Unable to create group", "device", cfg.Device.Name)
	}

	var limiter *rate.Limiter
	if r := cfg.Web.StoreRateLimit(); r > 0 {
		limiter = rate.NewLimiter(rate.Limit(r), cfg.Web.StoreBurst)
	}

	h := web.Handler(
		web.NewStatus(gov, clk, dev),
		web.AttrStore{Device: dev, Limiter: limiter},
		logs,
		reg,
	)

	return &daemon{log: log, logs: logs, gov: gov, clk: clk, dev: dev, handler: h}, nil
}

func serve(ctx context.Context, cfg config.Config, logOut io.Writer) (err error) {
	d, err := newDaemon(cfg, logOut)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.clk.Close(); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("clock close: %w", cerr)).ErrorOrNil()
		}
	}()

	if cfg.PIDFile != "" {
		pf := pidfile.New(cfg.PIDFile)
		if err := pf.Write(); err != nil {
			return err
		}
		defer func() { _ = pf.Remove() }()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var listeners []net.Listener
	tcp, err := net.Listen("tcp", cfg.Web.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Web.Listen, err)
	}
	listeners = append(listeners, tcp)
	d.log.Info("web listening", "addr", tcp.Addr().String())

	if cfg.Device.NodeDir != "" {
		node, path, err := sysattr.ListenNode(cfg.Device.NodeDir, cfg.Device.Name)
		if err != nil {
			_ = tcp.Close()
			return err
		}
		defer func() { _ = os.Remove(path) }()
		listeners = append(listeners, node)
		d.log.Info("device node ready", "path", path)
	}

	errCh := make(chan error, len(listeners))
	for _, ln := range listeners {
		go func(ln net.Listener) {
			errCh <- web.ServeListener(ctx, ln, d.handler)
		}(ln)
	}

	var errs *multierror.Error
	for range listeners {
		serr := <-errCh
		if serr != nil && !errors.Is(serr, context.Canceled) {
			errs = multierror.Append(errs, serr)
			// One listener failing takes the daemon down.
			cancel()
		}
	}
	d.log.Info("gpuclockd stopping")
	return errs.ErrorOrNil()
}
