package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/fleetpm/internal/input"
)

// newValidateCmd checks the configuration, the credentials and the input list
// without opening a browser.
func newValidateCmd() *cobra.Command {
	var inputPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check configuration and the vehicle list without opening a browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("input") {
				cfg.SetInputPath(inputPath)
			}
			if err := cfg.ValidateCredentials(); err != nil {
				return err
			}
			records, err := input.Load(cfg.Input().Path)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("no vehicles in %s", cfg.Input().Path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK. %d vehicles in %s.\n", len(records), cfg.Input().Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "CSV file of vehicle MVAs. (Overrides config/env)")
	return cmd
}
