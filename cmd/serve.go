package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyerfyer/doc-extract/api"
	"github.com/fyerfyer/doc-extract/api/handler"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var noWorker bool
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long:  "Run the HTTP API server. When the task queue is enabled an embedded worker processes async runs unless --no-worker is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(cmd.Context(), !noWorker)
		},
	}
	serve.Flags().BoolVar(&noWorker, "no-worker", false, "do not start the embedded task worker")
	return serve
}

func (a *app) serve(ctx context.Context, withWorker bool) error {
	if err := a.setupDocuments(); err != nil {
		return err
	}
	if err := a.setupListings(); err != nil {
		return err
	}

	h := api.Handlers{
		Document: handler.NewDocumentHandler(a.documents, a.sessions, a.cfg.Server.KeepUploads, a.cfg.Server.MaxUploadMB<<20),
		QA:       handler.NewQAHandler(a.qa),
		Listing:  handler.NewListingHandler(a.listings),
		Session:  handler.NewSessionHandler(a.sessions),
		Run:      handler.NewRunHandler(a.runs),
	}
	if a.cfg.SQL.Enable {
		if err := a.setupSQL(ctx); err != nil {
			return err
		}
		h.SQL = handler.NewSQLHandler(a.sql)
	}
	if a.queue != nil {
		h.Task = handler.NewTaskHandler(a.queue)
		if withWorker {
			worker := a.newWorker()
			if err := worker.Start(); err != nil {
				return err
			}
			defer worker.Stop()
			a.logger.Info("Embedded task worker started")
		}
	}

	srv := &http.Server{
		Addr:    a.cfg.Server.Addr(),
		Handler: api.SetupRouter(h, a.metrics),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("addr", srv.Addr).Info("Server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	a.logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.logger.Info("Server exited")
	return nil
}
