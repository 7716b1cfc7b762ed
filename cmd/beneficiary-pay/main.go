package main

import (
	"context"
	"fmt"
	"os"

	"github.com/LerianStudio/beneficiary-pay/internal/bootstrap"
	"github.com/LerianStudio/beneficiary-pay/pkg/commons"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           bootstrap.ApplicationName,
		Short:         "Pays beneficiaries on behalf of customers with idempotent retries",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       commons.GetenvOrDefault("VERSION", "0.0.0"),
	}

	root.AddCommand(newServeCmd())

	return root
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig(configPath)
			if err != nil {
				return err
			}

			svc, err := bootstrap.InitServers(context.Background(), cfg)
			if err != nil {
				return err
			}

			return commons.NewLauncher(
				commons.WithLogger(svc.Logger),
				commons.RunApp("service", svc),
			).RunWithError()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "optional YAML configuration file")

	return cmd
}
