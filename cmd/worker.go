package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func workerCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run a standalone task worker for async document and listing runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.queue == nil {
				return errors.New("queue.enable must be true to run a worker")
			}
			if err := a.setupDocuments(); err != nil {
				return err
			}
			if err := a.setupListings(); err != nil {
				return err
			}

			worker := a.newWorker()
			if err := worker.Start(); err != nil {
				return err
			}
			a.logger.Info("Task worker started")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			a.logger.Info("Stopping task worker...")
			worker.Stop()
			return nil
		},
	}
}
