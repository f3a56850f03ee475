package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentforge"
	"github.com/hupe1980/agentforge/docstore"
)

var (
	eventsChatID    string
	eventsMessageID string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print the stored events of a message as JSON lines",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if eventsChatID == "" || eventsMessageID == "" {
			return errors.New("--chat and --message are required")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		docs, err := agentforge.OpenStore(cfg.Store)
		if err != nil {
			return err
		}
		defer docs.Close()

		events, err := docs.ListEvents(cmd.Context(), docstore.MessagePath(eventsChatID, eventsMessageID))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsChatID, "chat", "", "Chat id")
	eventsCmd.Flags().StringVar(&eventsMessageID, "message", "", "Assistant message id")
}
