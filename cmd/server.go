/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"time"

	"github.com/bbff-chat/apiserver/config"
	"github.com/bbff-chat/apiserver/internal/log"
	"github.com/bbff-chat/apiserver/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serverInMemory bool

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the chat API server",
	Long: `Starts the chat API server. Usage:

	bbff server
	bbff server --memory    # no database, data is lost on exit
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := log.New(cfg.Env)

		srv, err := server.New(cmd.Context(), cfg, logger, server.Options{InMemory: serverInMemory})
		if err != nil {
			logger.Error().Err(err).Msg("failed to start server")
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				logger.Error().Err(err).Msg("server error")
			}
			return err
		case <-cmd.Context().Done():
		}

		logger.Info().Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
			return err
		}
		return <-errCh
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().BoolVar(&serverInMemory, "memory", false, "use an in-memory store instead of PostgreSQL")
}
