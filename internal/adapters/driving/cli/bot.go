package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oratorio-dev/rudybot/internal/adapters/driving/telegram"
	"github.com/oratorio-dev/rudybot/internal/logger"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	Long: `Starts the long-polling Telegram bot.

Requires TELEGRAM_BOT_TOKEN in the environment (or .env). Users listed
in TELEGRAM_ADMIN_IDS (comma-separated) may trigger a knowledge base
update with /update_kb.`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(botCmd)
}

func runBot(cmd *cobra.Command, _ []string) error {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is not set")
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	bot, err := telegram.NewBot(telegram.Config{
		Token:        token,
		AdminUserIDs: parseAdminIDs(os.Getenv("TELEGRAM_ADMIN_IDS")),
		CorpusDir:    a.cfg.Corpus.Dir,
	}, a.askService, a.ingestService)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Bot stopped")
	return nil
}

// parseAdminIDs parses a comma-separated list of Telegram user IDs.
func parseAdminIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			logger.Warn("Ignoring invalid admin ID %q", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
