/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"

	"github.com/bbff-chat/apiserver/config"
	"github.com/bbff-chat/apiserver/internal/events"
	"github.com/bbff-chat/apiserver/internal/log"
	"github.com/bbff-chat/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect domain events on the configured broker",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Subscribe to the event channel and log every event",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := log.New(cfg.Env)

		broker, err := mq.Open(cmd.Context(), cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not set")
		}
		defer broker.Close()

		logger.Info().Str("backend", cfg.MQ.Backend).Str("channel", broker.Channel()).Msg("tailing events")
		err = broker.Subscribe(cmd.Context(), func(ctx context.Context, msg mq.Message) error {
			event, err := events.Decode(msg)
			if err != nil {
				logger.Warn().Err(err).Str("message_id", msg.ID).Msg("skipping undecodable message")
				return nil
			}
			logger.Info().
				Str("id", event.ID).
				Str("type", event.Type).
				Int("actor_id", event.ActorID).
				Int("resource_id", event.ResourceID).
				Int("chat_id", event.ChatID).
				Time("occurred_at", event.OccurredAt).
				Msg("event")
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
