package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"oasisrun/internal/server"
)

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve key resolution for one model over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd)
			path, _ := cmd.Flags().GetString("server-config")

			cfg, err := server.LoadConfig(path)
			if err != nil {
				return err
			}
			sctx, err := server.NewContext(cfg, logger)
			if err != nil {
				// Fail closed: never serve with a half-built context.
				return fmt.Errorf("startup aborted: %w", err)
			}

			srv := &http.Server{
				Addr:         cfg.BindAddress,
				Handler:      server.NewHandler(sctx),
				ReadTimeout:  cfg.ReadTimeout,
				WriteTimeout: cfg.WriteTimeout,
			}
			go func() {
				<-cmd.Context().Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			logger.Printf("lookup service for %s listening on %s", sctx.Identity(), cfg.BindAddress)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("server-config", "keys_server.yaml", "lookup service YAML config")
	return cmd
}
