package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/mcp2221"
	"github.com/spf13/cobra"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List USB-I2C bridges",
	Long: `Scan the host for MCP2221 USB-I2C bridges. Use this to check the cable
before reading a SOM EEPROM with "oei eeprom read".`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	infos, err := mcp2221.Discover()
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No interfaces found.")
		return nil
	}

	fmt.Fprintln(out, "Detected USB-I2C bridges:")
	for _, iface := range infos {
		fmt.Fprintf(out, "  - %s (VID:PID %04X:%04X, bus %d addr %d, serial %q)\n",
			iface.Description, iface.VID, iface.PID, iface.Bus, iface.Address, iface.SerialNumber)
	}
	return nil
}
