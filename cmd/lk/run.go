package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/littlekernel/lk-sub014/hal"
	"github.com/littlekernel/lk-sub014/internal/kconfig"
	"github.com/littlekernel/lk-sub014/internal/klog"
	"github.com/littlekernel/lk-sub014/kernel"
)

func newRunCmd() *cobra.Command {
	var configPath string
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "boot the kernel and run until the given duration elapses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKernel(cmd.Context(), configPath, duration)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to lkconfig.toml (defaults built in if unset)")
	flags.DurationVar(&duration, "duration", 2*time.Second, "how long to let the simulated machine run")

	return cmd
}

func runKernel(ctx context.Context, configPath string, duration time.Duration) error {
	cfg := kconfig.Default()
	if configPath != "" {
		loaded, err := kconfig.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	level := klog.Info
	switch cfg.LogLevel {
	case "spew":
		level = klog.Spew
	case "critical":
		level = klog.Critical
	}
	log, err := klog.New(level)
	if err != nil {
		return err
	}
	defer log.Sync()
	kernel.SetLogger(log)

	h := hal.NewSimHAL(cfg.NumCPUs)
	k := kernel.New(h, cfg.NumCPUs)
	for _, cpu := range cfg.RealtimeCPUs {
		k.SetRealtime(cpu, true)
	}

	log.Info("booting %d simulated cpus", cfg.NumCPUs)

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		// fatal already logged the Violation through SetLogger's logger
		// before panicking (see kernel/errors.go); this recover only
		// keeps that panic from taking the whole CLI process down
		// before runKernel gets to report it and return a non-zero exit.
		defer func() {
			if r := recover(); r != nil {
				if v, ok := r.(*kernel.Violation); ok {
					errCh <- v
					return
				}
				panic(r)
			}
		}()
		errCh <- k.Main(runCtx)
	}()

	<-runCtx.Done()
	stats := k.Stats()
	log.Info("shutting down after %s: %d threads, %d reschedule ipis", duration, stats.NumThreads, stats.Reschedulers)
	for i, cs := range stats.PerCPU {
		fmt.Printf("cpu%d: %d context switches, %d reschedule ipis\n", i, cs.ContextSwitches, cs.RescheduleIPIs)
	}

	err = <-errCh
	if err != nil && err != context.DeadlineExceeded && err != context.Canceled {
		return err
	}
	return nil
}
