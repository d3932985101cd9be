package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"inspections-api/api/services"
	"inspections-api/pkg/seed"
	"inspections-api/pkg/store"
	"inspections-api/pkg/validation"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the inspection record store",
	}
	cmd.AddCommand(
		newDBInitCmd(),
		newDBSeedCmd(),
		newDBResetCmd(),
	)
	return cmd
}

func newDBInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the schema for the configured store driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			log.Printf("Store %q initialized", cfg.StoreDriver)
			return nil
		},
	}
}

func newDBSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the sample inspections",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := cliService(st)
			if err != nil {
				return err
			}
			_, err = seed.Run(cmd.Context(), svc)
			return err
		},
	}
}

func newDBResetCmd() *cobra.Command {
	var skipSeed bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every inspection, then reseed",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			resetter, ok := st.(store.Resetter)
			if !ok {
				return fmt.Errorf("store driver %q does not support reset", cfg.StoreDriver)
			}
			if err := resetter.Reset(cmd.Context()); err != nil {
				return err
			}
			log.Println("All inspections deleted")

			if skipSeed {
				return nil
			}
			svc, err := cliService(st)
			if err != nil {
				return err
			}
			_, err = seed.Run(cmd.Context(), svc)
			return err
		},
	}
	cmd.Flags().BoolVar(&skipSeed, "no-seed", false, "Leave the store empty after reset")
	return cmd
}

// cliService builds a service without a change feed; the CLI never starts NATS.
func cliService(st store.Store) (*services.InspectionService, error) {
	validator, err := validation.New()
	if err != nil {
		return nil, fmt.Errorf("failed to build validator: %w", err)
	}
	return services.NewInspectionService(st, validator, nil), nil
}
