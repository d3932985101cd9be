package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"inspections-api/pkg/config"
)

var (
	envFile string
	cfg     *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "inspections: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspections",
		Short: "Environmental inspection records API",
		Long: `inspections serves the environmental inspection REST API and manages its
record store (schema creation, sample data, reset).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				config.LoadDotEnv(envFile)
			} else {
				config.LoadDotEnv()
			}
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default ./.env)")
	cmd.AddCommand(
		newServeCmd(),
		newDBCmd(),
	)
	return cmd
}
