package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobrelay/internal/dispatch"
	"github.com/amishk599/jobrelay/internal/telegram"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test notification",
	Long:  "Sends a sample confirmation request to every configured operator.",
	RunE:  runNotifyTest,
}

const testNotification = "Test notification from jobrelay.\n\n" +
	"Real notifications carry the message excerpt and the contacts that were reached. " +
	"The buttons below do nothing here."

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()
	if err := cfg.RequireTelegram(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if len(cfg.Dispatch.Operators) == 0 {
		logger.Error("no operators configured (dispatch.operators)")
		os.Exit(1)
	}

	b, err := telegram.NewBot(cfg.Telegram.BotToken, telegram.NewHandler(cfg.Dispatch.Operators, nil, logger))
	if err != nil {
		logger.Error("failed to create telegram bot", "error", err)
		os.Exit(1)
	}
	messenger := telegram.NewMessenger(b, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := 0
	for _, op := range cfg.Dispatch.Operators {
		id, err := messenger.SendInteractive(ctx, op, testNotification, dispatch.NotificationActions("test"))
		if err != nil {
			logger.Error("test notification failed", "operator", op, "error", err)
			failed++
			continue
		}
		logger.Info("test notification sent", "operator", op, "message_id", id)
	}
	if failed > 0 {
		os.Exit(1)
	}
	return nil
}
