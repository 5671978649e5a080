package commands

// Command to verify configuration before running the bot
// Core settings are enforced by LoadConfig; this reports missing per-chain
// credential tuples, then checks the database opens

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"printr-launcher/internal/chains"
	"printr-launcher/internal/infra/config"
	logging "printr-launcher/internal/infra/log"
	"printr-launcher/internal/store"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check configuration and storage without starting the bot",
	RunE:  runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.LogError("Core configuration incomplete", zap.Error(err))
		return err
	}
	logging.LogSuccess("Core configuration present",
		zap.Int64("allowedUserID", cfg.Telegram.AllowedUserID),
		zap.String("printrAPI", cfg.Printr.APIURL))

	perChain := cfg.MissingVars()
	if len(perChain) == 0 {
		logging.LogSuccess("All chain credential tuples complete",
			zap.Int("chains", len(chains.Supported)))
	} else {
		logging.LogWarn("Missing per-chain variables; affected chains cannot submit",
			zap.Strings("vars", perChain))
	}

	for _, c := range chains.Supported {
		cc, complete := cfg.ChainFor(c)
		state := "ready"
		if !complete {
			state = "incomplete"
		}
		fmt.Printf("  %-10s %-12s %s\n", c, state, cc.CAIP2)
	}

	st, err := store.New(cfg.App.DatabasePath)
	if err != nil {
		logging.LogError("Failed to open database", zap.Error(err))
		return err
	}
	defer st.Close()
	logging.LogSuccess("Database opened and migrated", zap.String("path", cfg.App.DatabasePath))

	return nil
}
