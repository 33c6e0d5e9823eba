// Command lls-node runs a single Local Location Store node.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/distcache/lls/common/logging"
	llsconfig "github.com/distcache/lls/config"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "lls-node",
		Short: "Local Location Store node",
		Run:   doRun,
	}

	logger = logging.GetLogger("cmd/lls-node")
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				fmt.Fprintf(os.Stderr, "lls-node: failed to read config file: %v\n", err)
				os.Exit(1)
			}
		}
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML/JSON config file")
	llsconfig.RegisterFlags(rootCmd)
}

func doRun(cmd *cobra.Command, args []string) {
	ctx, err := buildNode()
	if err != nil {
		logger.Error("failed to build node", "err", err)
		os.Exit(1)
	}

	logger.Info("lls node starting")
	if err := ctx.core.Start(ctx.ctx); err != nil {
		logger.Error("failed to start lls core", "err", err)
		os.Exit(1)
	}

	waitForShutdown(ctx)
}
