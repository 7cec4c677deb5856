package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tradedash/internal/archive"
	"tradedash/internal/backend"
	"tradedash/internal/coordinator"
	"tradedash/internal/dashboard"
	"tradedash/internal/metrics"
	"tradedash/internal/pairstate"
	"tradedash/internal/publish"
	"tradedash/internal/stream"
	"tradedash/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator, live stream and dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	log := logger.GetLogger()
	log.WithFields(logger.Fields{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	}).Info("starting tradedash")

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	startReport(ctx, log)
	metrics.Init()

	client, err := backend.NewClient(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	state := pairstate.New(cfg.Coordinator.DefaultQuote)
	store := dashboard.NewStore()
	presenters := coordinator.Presenters{store}

	var archiveWriter *archive.Writer
	if cfg.Archive.Enabled {
		archiveWriter, err = archive.NewWriter(cfg)
		if err != nil {
			return fmt.Errorf("failed to create archive writer: %w", err)
		}
		presenters = append(presenters, archiveWriter)
	} else {
		log.WithComponent("main").Info("archive disabled; skipping writer")
	}

	var publisher *publish.Publisher
	if cfg.Storage.Kafka.Enabled {
		publisher, err = publish.NewPublisher(cfg.Storage.Kafka)
		if err != nil {
			return fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		presenters = append(presenters, publisher)
	}

	// the live feed goes to the same sinks as refreshed books
	sink := append(coordinator.Presenters(nil), presenters...)
	subscriber := stream.NewSubscriber(cfg.Stream, state, sink)
	presenters = append(presenters, subscriber)

	coord := coordinator.New(cfg.Coordinator, client, state, presenters)

	server, err := dashboard.NewServer(cfg.Dashboard, log, store, coord)
	if err != nil {
		return fmt.Errorf("failed to create dashboard: %w", err)
	}

	if archiveWriter != nil {
		if err := archiveWriter.Start(ctx); err != nil {
			return err
		}
	}
	if publisher != nil {
		if err := publisher.Start(ctx); err != nil {
			return err
		}
	}
	if err := subscriber.Start(ctx); err != nil {
		return err
	}
	if err := coord.Start(ctx); err != nil {
		return err
	}
	if err := coord.Bootstrap(ctx); err != nil {
		// the refresh loop retries on its own schedule
		log.WithError(err).Warn("bootstrap failed")
	}

	var wg sync.WaitGroup
	if server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(ctx); err != nil {
				log.WithError(err).Error("dashboard stopped")
				cancel()
			}
		}()
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		coord.Stop()
		subscriber.Stop()
		if archiveWriter != nil {
			archiveWriter.Stop()
		}
		if publisher != nil {
			publisher.Stop()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("tradedash stopped")
	return nil
}
