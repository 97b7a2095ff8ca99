package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rxscout/backend/internal/app"
	httpDelivery "github.com/rxscout/backend/internal/delivery/http"
)

var (
	servePort       string
	shutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := app.New(cfg, app.Options{})
		if err != nil {
			return eris.Wrap(err, "init pipeline")
		}
		env.Start()

		handler := httpDelivery.NewHandler(env.Service, httpDelivery.WithOperations(env))
		router := httpDelivery.SetupRouter(cfg, handler)

		port := servePort
		if port == "" {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("starting server",
				zap.String("port", port),
				zap.String("environment", cfg.Server.Environment),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		return awaitShutdown(ctx, errCh, srv.Shutdown, env.Close, shutdownTimeout)
	},
}

// awaitShutdown blocks until the listener fails or ctx ends, then drains the
// server and releases the pipeline. The pipeline is closed on both paths.
func awaitShutdown(
	ctx context.Context,
	errCh <-chan error,
	shutdown func(context.Context) error,
	closeEnv func(context.Context),
	timeout time.Duration,
) error {
	var listenErr error
	select {
	case err := <-errCh:
		listenErr = err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if listenErr != nil {
		closeEnv(shutdownCtx)
		return eris.Wrap(listenErr, "server listen")
	}

	zap.L().Info("shutting down server")
	if err := shutdown(shutdownCtx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
	closeEnv(shutdownCtx)
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "server port (default from config)")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for in-flight requests")
	rootCmd.AddCommand(serveCmd)
}
