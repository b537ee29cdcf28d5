package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"sprout/internal/evolution"
	"sprout/internal/logging"
	"sprout/internal/observability"
	"sprout/internal/scheduler"
	"sprout/internal/server"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and the cycle scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics, err := observability.NewMetrics(cfg.Observability.MetricsAddr, logging.NewComponentLogger("Metrics"))
			if err != nil {
				return err
			}
			rt.coordinator.AddListener(metrics.ObserveCycle)
			rt.coordinator.AddListener(func(result evolution.CycleResult) {
				if snap := rt.coordinator.Snapshot(); snap != nil {
					metrics.ObserveTreeLevels(snap.Trees)
				}
			})

			var tracer *observability.TracerProvider
			if cfg.Observability.TraceEnabled {
				tracer, err = observability.NewTracerProvider(ctx, cfg.Observability.OTLPEndpoint, version)
				if err != nil {
					return err
				}
			}

			api := server.New(server.Config{
				Addr:         cfg.Server.Addr,
				AllowOrigins: cfg.Server.AllowOrigins,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
			}, rt.coordinator, logging.NewComponentLogger("Server"))

			sched := scheduler.New(scheduler.Config{
				Enabled:  cfg.Scheduler.Enabled,
				Spec:     cfg.Scheduler.Spec,
				Interval: cfg.Scheduler.Interval,
			}, rt.coordinator, logging.NewComponentLogger("Scheduler"))

			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(api.Start)
			group.Go(func() error {
				return sched.Start(groupCtx)
			})
			group.Go(func() error {
				<-groupCtx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				err := api.Shutdown(shutdownCtx)
				sched.Stop()
				_ = metrics.Shutdown(shutdownCtx)
				_ = tracer.Shutdown(shutdownCtx)
				return err
			})

			rt.logger.Info("sprout serving on %s", cfg.Server.Addr)
			return group.Wait()
		},
	}
	return cmd
}
