package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cuemby/streamsched/pkg/api"
	"github.com/cuemby/streamsched/pkg/config"
	"github.com/cuemby/streamsched/pkg/dispatch"
	"github.com/cuemby/streamsched/pkg/log"
	"github.com/cuemby/streamsched/pkg/metrics"
	"github.com/cuemby/streamsched/pkg/notify"
	"github.com/cuemby/streamsched/pkg/probe"
	"github.com/cuemby/streamsched/pkg/scheduler"
	"github.com/cuemby/streamsched/pkg/store"
	"github.com/cuemby/streamsched/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the streamsched daemon",
	Long: `serve starts the Stream-Size Scheduler daemon: the Registry, its
stream admin, notification broker, program dispatcher and schedule
store, and the admin HTTP surface, then recovers any schedules
persisted from a previous run.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("streams-path", "", "Base directory LocalDirAdmin resolves streams under")
	serveCmd.Flags().String("containerd-socket", "", "containerd socket path (external dispatcher)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("streams-path"); v != "" {
		cfg.Dispatch.StreamsPath = v
	}
	if v, _ := cmd.Flags().GetString("containerd-socket"); v != "" {
		cfg.Dispatch.ContainerdSocket = v
	}

	logger := log.WithComponent("serve")

	admin, err := probe.NewLocalDirAdmin(cfg.Dispatch.StreamsPath)
	if err != nil {
		return fmt.Errorf("init stream admin: %w", err)
	}

	dispatcher, err := dispatch.NewContainerdDispatcher(cfg.Dispatch.ContainerdSocket, imageForProgram)
	if err != nil {
		return fmt.Errorf("init dispatcher: %w", err)
	}
	defer dispatcher.Close()

	var sched store.ScheduleStore
	if cfg.Store.DataDir != "" {
		boltStore, err := store.NewBoltScheduleStore(cfg.Store.DataDir)
		if err != nil {
			return fmt.Errorf("init schedule store: %w", err)
		}
		defer boltStore.Close()
		sched = boltStore
	}

	pollPool := notify.NewFixedPool(cfg.Scheduler.StreamSize.Polling.Workers)
	defer pollPool.Stop()

	registry := scheduler.NewRegistry(scheduler.Deps{
		Admin:        admin,
		Notifier:     notify.NewBroker(),
		Dispatcher:   dispatcher,
		Store:        sched,
		PollPool:     pollPool,
		PollingDelay: cfg.Scheduler.StreamSize.PollingDelay(),
		Logger:       log.WithComponent("registry"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := recoverSchedules(ctx, registry, sched, logger); err != nil {
		return fmt.Errorf("recover persisted schedules: %w", err)
	}

	collector := metrics.NewCollector(registry.MetricsSnapshot, 15*time.Second)
	collector.Start()
	defer collector.Stop()

	server := api.NewServer(registry, log.WithComponent("api"))
	go func() {
		logger.Info().Str("addr", cfg.API.Addr).Msg("admin API listening")
		if err := server.Start(cfg.API.Addr); err != nil {
			logger.Error().Err(err).Msg("admin API server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	return nil
}

// recoverSchedules reads every persisted TaskSnapshot and re-schedules
// it from its saved watermark, with persist=false since the store
// already has it. A snapshot that fails to recover is logged and
// skipped rather than aborting the whole startup.
func recoverSchedules(ctx context.Context, registry *scheduler.Registry, sched store.ScheduleStore, logger zerolog.Logger) error {
	if sched == nil {
		return nil
	}

	snapshots, err := sched.LoadAll()
	if err != nil {
		return fmt.Errorf("load persisted schedules: %w", err)
	}

	for _, snap := range snapshots {
		err := registry.ScheduleWithState(ctx, snap.Program, snap.Spec, snap.BaseSize, snap.BaseTs, snap.Active, false)
		if err != nil {
			logger.Warn().Err(err).Str("schedule_id", snap.ScheduleId.String()).Msg("failed to recover persisted schedule")
			continue
		}
		logger.Info().Str("schedule_id", snap.ScheduleId.String()).Msg("recovered schedule")
	}
	return nil
}

// imageForProgram resolves a program reference to the OCI image the
// ContainerdDispatcher pulls. streamsched's core has no opinion on image
// naming; this is the reference convention for the reference dispatcher.
func imageForProgram(program types.ProgramRef) string {
	return fmt.Sprintf("docker.io/streamsched/%s-%s:latest", program.Application, program.ProgramName)
}
