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

	"github.com/spf13/cobra"

	"github.com/toccatech/coffre/auth"
	"github.com/toccatech/coffre/config"
	coffrehttp "github.com/toccatech/coffre/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the Coffre HTTP server.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, err := config.FromContext(ctx)
	if err != nil {
		return err
	}

	service, meta, cleanup, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	resolver, err := auth.NewResolver(meta, auth.ResolverConfig{
		Strict: cfg.Auth.Mode == "strict",
	})
	if err != nil {
		return fmt.Errorf("create resolver: %w", err)
	}

	handlerConfig := coffrehttp.HandlerConfig{
		Resolver:      resolver,
		CORS:          cfg.CORS,
		MaxUploadSize: cfg.Server.MaxUploadSize,
	}

	handler := coffrehttp.NewHandler(&handlerConfig, service, meta)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "err", err)
		}
		cancel()
	}()

	slog.Info("server listening",
		"addr", addr,
		"metastore", cfg.Metastore.URL,
		"uploads_dir", cfg.Uploads.Dir,
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	<-ctx.Done()
	return nil
}
