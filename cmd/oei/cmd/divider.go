package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/i2c"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/lpi2c"
	"github.com/spf13/cobra"
)

var (
	dividerSpeed uint32
	dividerClock uint32
)

var dividerCmd = &cobra.Command{
	Use:   "divider",
	Short: "Show the LPI2C clock divider for a bus speed",
	Long: `Run the controller's divider search for the requested SCL rate and print
the chosen prescaler and CLKHI, the resulting rate and the MCCR0/MCFGR1 values
the driver programs.

Examples:
  oei divider --speed 400000
  oei divider --speed 1000000 --clock 48000000`,
	RunE: runDivider,
}

func init() {
	rootCmd.AddCommand(dividerCmd)

	dividerCmd.Flags().Uint32VarP(&dividerSpeed, "speed", "s", i2c.SpeedStandard, "bus speed in Hz")
	dividerCmd.Flags().Uint32Var(&dividerClock, "clock", lpi2c.DefaultClockRate, "controller functional clock in Hz")
}

func runDivider(cmd *cobra.Command, args []string) error {
	if dividerSpeed == 0 || dividerClock == 0 {
		return lpi2c.ErrInvalidSpeed
	}
	d, e := lpi2c.SearchDivider(dividerClock, dividerSpeed)
	clkLo, clkHi, setHold, dataVd := lpi2c.SplitMCCR0(d.MCCR0())

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Requested: %d Hz from %d Hz\n", dividerSpeed, dividerClock)
	fmt.Fprintf(out, "Divider:   %s\n", d)
	fmt.Fprintf(out, "Actual:    %d Hz (error %d Hz)\n", d.Rate(dividerClock), e)
	fmt.Fprintf(out, "MCCR0:     0x%08x (clklo=%d clkhi=%d sethold=%d datavd=%d)\n", d.MCCR0(), clkLo, clkHi, setHold, dataVd)
	fmt.Fprintf(out, "MCFGR1:    prescale code %d\n", d.PrescaleCode())
	return nil
}
