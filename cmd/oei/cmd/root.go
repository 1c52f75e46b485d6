package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "oei",
	Short: "DRAM bring-up stage and SOM EEPROM tools",
	Long: `Run the DRAM bring-up stage against a simulated board, and inspect,
build or read the SOM identification EEPROM that carries the DRAM adjustment
tables.

Examples:
  oei boot --eeprom som.bin                 # Boot the simulated board
  oei eeprom build som.toml -o som.bin      # Build an EEPROM image
  oei eeprom decode som.bin                 # Show header and adjustment preview
  oei eeprom read --bridge mcp2221          # Read a real SOM over USB
  oei divider --speed 400000                # Show the LPI2C clock divider`,
	Version:      "0.3.0",
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// debugLogger returns the diagnostics logger, or nil without --verbose.
func debugLogger(cmd *cobra.Command) *log.Logger {
	if !verbose {
		return nil
	}
	return log.New(cmd.ErrOrStderr(), "", log.Lmicroseconds)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
