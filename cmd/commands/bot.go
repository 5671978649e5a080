package commands

// Command to run the bot with the launch scheduler
// Initializes configuration, storage and the Printr client
// Implements graceful shutdown for proper termination

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"printr-launcher/internal/bot"
	"printr-launcher/internal/clients_api/printr"
	"printr-launcher/internal/infra/config"
	logging "printr-launcher/internal/infra/log"
	"printr-launcher/internal/scheduler"
	"printr-launcher/internal/store"
	"printr-launcher/internal/submitter"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot and the launch scheduler",
	Long:  `Run the operator-facing Telegram bot together with the background scheduler that submits due token launches to Printr.`,
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.LogError("Failed to load config", zap.Error(err))
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.New(cfg.App.DatabasePath)
	if err != nil {
		logging.LogError("Failed to open store", zap.Error(err))
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	logging.LogSuccess("Store ready", zap.String("path", cfg.App.DatabasePath))

	client := printr.NewClient(cfg.Printr.APIURL, cfg.Printr.BearerToken)
	sub := submitter.NewExecSubmitter(cfg.App.SignerDir, scheduler.ChainSubmitTimeout)

	interval := time.Duration(cfg.App.PollIntervalSeconds) * time.Second
	sched := scheduler.New(st, client, sub, cfg, nil, interval)

	tgBot, err := bot.New(cfg, st, client, sched)
	if err != nil {
		logging.LogError("Failed to initialize bot", zap.Error(err))
		return err
	}
	// Launch outcomes go back to the operator chat.
	sched.SetNotifier(tgBot)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		tgBot.Run(ctx)
	}()

	logging.LogSuccess("Printr launcher is running", zap.String("status", "active"))

	<-ctx.Done()
	logging.LogInfo("Shutdown signal received, gracefully stopping...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.LogSuccess("All workers stopped gracefully")
	case <-time.After(10 * time.Second):
		logging.LogWarn("Timeout waiting for workers to stop, forcing shutdown")
	}

	return nil
}
