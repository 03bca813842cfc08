package cmd

import (
	"github.com/michaelpento.lv/arbbot/cmd/bot"
	"github.com/michaelpento.lv/arbbot/config"
	"github.com/michaelpento.lv/arbbot/utils"
	"github.com/michaelpento.lv/arbbot/utils/metrics"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the arbitrage bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		metrics.Initialize(log)

		if err := config.LoadEnv(); err != nil {
			log.Warn("Failed to load .env file", zap.Error(err))
		}

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		secure, err := config.LoadSecureConfig()
		if err != nil {
			return err
		}

		b, err := bot.New(cfg, secure, log)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := b.Start(ctx); err != nil {
			b.Stop()
			return err
		}

		<-ctx.Done()
		b.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
