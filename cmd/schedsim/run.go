package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"ember/hal"
	"ember/kernel/handover"
	"ember/kernel/mem"
	"ember/kernel/sched"
)

// Simulated memory map. The boot stack lives below the allocator arena
// so adopting it never collides with allocated task stacks.
const (
	bootStackBase = 0x8000
	bootStackSize = 0x4000
	bootIP        = 0x1000
	arenaBase     = 0x100000
)

var errAllExited = errors.New("all workers exited")

func newRunCmd() *cobra.Command {
	var profilePath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Boot the scheduler and run the workers from the profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := LoadProfile(profilePath)
			if err != nil {
				return err
			}
			return runSim(cmd.Context(), p)
		},
	}
	cmd.Flags().StringVarP(&profilePath, "profile", "p", "", "YAML simulation profile (default: two workers)")
	return cmd
}

func runSim(ctx context.Context, p Profile) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stackSize := p.StackSize
	if stackSize == 0 {
		stackSize = sched.DefaultStackSize
	}
	arenaSize := uint64(len(p.Tasks))*stackSize + 64*1024
	alloc := mem.NewAllocator(arenaBase, arenaSize)

	payload := handover.Payload{
		Magic:     handover.Magic,
		StackBase: bootStackBase,
		StackSize: bootStackSize,
		SP:        bootStackBase + bootStackSize,
		IP:        bootIP,
	}

	var reg *prometheus.Registry
	cfg := sched.Config{
		Alloc:     alloc,
		Port:      sched.NewHostPort(),
		Quantum:   sched.Tick(p.Quantum),
		StackSize: stackSize,
		Log:       hal.NewStderrLogger(),
	}
	if p.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		cfg.Metrics = reg
	}
	port := cfg.Port.(*sched.HostPort)

	s, err := sched.Init(payload, cfg)
	if err != nil {
		return err
	}
	port.OnExit(s.Exit)

	if reg != nil {
		srv := &http.Server{Addr: p.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "err", err)
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
		log.Info("serving metrics", "addr", p.MetricsAddr)
	}

	for _, tp := range p.Tasks {
		tp := tp
		ip := port.Register(func() {
			for i := 0; i < tp.Spins; i++ {
				s.Yield()
			}
		})
		h, err := s.NewTask(tp.Name)
		if err != nil {
			return fmt.Errorf("task %q: %w", tp.Name, err)
		}
		if err := s.Start(h, ip); err != nil {
			return fmt.Errorf("task %q: %w", tp.Name, err)
		}
	}

	log.Info("simulation starting",
		"tasks", len(p.Tasks), "hz", p.Hz, "ticks", p.Ticks)
	start := time.Now()

	err = hal.RunHeadless(ctx, hal.HeadlessConfig{Hz: p.Hz, Ticks: p.Ticks}, func(uint64) error {
		s.Schedule()
		if len(s.Snapshot()) == 1 {
			return errAllExited
		}
		return nil
	})
	if err != nil && !errors.Is(err, errAllExited) {
		return err
	}

	log.Info("simulation done",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"ticks", s.Now())
	for _, ti := range s.Snapshot() {
		log.Info("task accounting",
			"task", ti.Name, "state", ti.State.String(), "granted", uint64(ti.Granted))
	}
	return nil
}
