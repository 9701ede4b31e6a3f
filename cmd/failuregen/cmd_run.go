package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/curbz/failure-niner/internal/failgen"
	"github.com/curbz/failure-niner/internal/failures"
	"github.com/curbz/failure-niner/internal/simdata"
	"github.com/curbz/failure-niner/internal/transport"
	"github.com/curbz/failure-niner/internal/xplaneapi/xpconnect"
	"github.com/curbz/failure-niner/pkg/rand"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to X-Plane and run the failure generators",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := configPath(cmd)
			a, err := openApp(cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			defer setupLogging(a.cfg)()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			xpc, err := xpconnect.New(cfgPath)
			if err != nil {
				return err
			}
			if err := xpc.Start(ctx); err != nil {
				return err
			}
			defer xpc.Stop()

			orchestrator := failures.NewOrchestrator(a.catalogue, xpc)
			defer orchestrator.Wait()
			go reconcileLoop(ctx, orchestrator, xpc, a.cfg.Failures.ReconcileInterval)

			rnd := rand.New()
			if a.cfg.Failures.Seed != 0 {
				rnd = rand.NewSeeded(a.cfg.Failures.Seed)
			}
			activator := failgen.NewActivator(orchestrator, a.assoc, rnd, a.cfg.Failures.MaxFailuresAtOnce)
			engine := failgen.NewEngine(a.registries, activator, rnd, a.mirror, a.cfg.Failures.CoarseTick)

			fine := time.NewTicker(a.cfg.Failures.FineTick)
			defer fine.Stop()
			coarse := time.NewTicker(a.cfg.Failures.CoarseTick)
			defer coarse.Stop()

			log.Printf("failure generators running, %d failures in catalogue, at most %d at once",
				len(a.catalogue), a.cfg.Failures.MaxFailuresAtOnce)
			runLoop(ctx, engine, a.registries, xpc, a.mirror.Remote(), fine.C, coarse.C)
			log.Println("shutting down")
			return nil
		},
	}
}

// reconcileLoop periodically drops failures that were repaired in the
// simulator from the active set, so they stop counting against the cap.
func reconcileLoop(ctx context.Context, o *failures.Orchestrator, reader failures.DatarefReader, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.Reconcile(ctx, reader); err != nil {
				log.Printf("error reconciling active failures: %v", err)
			}
		}
	}
}

// runLoop is the single owner of the engine state and the registries. It
// returns when ctx is done. Settings edited by other processes are picked up
// from the shared store on every coarse tick.
func runLoop(ctx context.Context, engine *failgen.Engine, regs *failgen.Registries, provider simdata.SimDataProvider,
	remote <-chan transport.SettingsEvent, fine, coarse <-chan time.Time) {

	st := failgen.NewState()
	var lastErr error
	telemetry := func() (simdata.Telemetry, bool) {
		t, err := provider.GetTelemetry()
		if err != nil {
			if lastErr == nil || !errors.Is(err, lastErr) {
				log.Printf("skipping ticks: %v", err)
			}
			lastErr = err
			return t, false
		}
		if lastErr != nil {
			log.Println("telemetry resumed")
			lastErr = nil
		}
		return t, true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-fine:
			if t, ok := telemetry(); ok {
				engine.TickFine(ctx, st, now, t)
			}
		case now := <-coarse:
			for _, name := range regs.Refresh() {
				log.Printf("reloaded %s settings from the store", name)
			}
			if t, ok := telemetry(); ok {
				engine.TickCoarse(ctx, st, now, t)
			}
		case ev := <-remote:
			r, err := regs.ByPrefix(ev.GeneratorType)
			if err != nil {
				log.Printf("ignoring remote settings from %s: %v", ev.Origin, err)
				continue
			}
			r.ApplyRemote(ev.Settings)
			log.Printf("applied %s settings from %s", r.Type().Name, ev.Origin)
		}
	}
}
