package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var timingTables bool

var timingCmd = &cobra.Command{
	Use:   "timing [file.c]",
	Short: "Parse and summarize a DRAM timing source",
	Long: `Parse a DRAM timing C source and print the size of each configuration
table and the frequency set-points. Without a file the built-in LPDDR5 tables
are shown.

Examples:
  oei timing lpddr5_timing.c
  oei timing --tables`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTiming,
}

func init() {
	rootCmd.AddCommand(timingCmd)

	timingCmd.Flags().BoolVar(&timingTables, "tables", false, "list the rows of the adjustable tables")
}

func runTiming(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	t, err := loadTiming(path)
	if err != nil {
		return fmt.Errorf("parse timing: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "DRAM Timing Summary")
	fmt.Fprintln(out, "===================")
	fmt.Fprintf(out, "DDRC rows:        %d\n", len(t.DDRC))
	fmt.Fprintf(out, "DDR PHY rows:     %d\n", len(t.DDRPHY))
	fmt.Fprintf(out, "Trained CSR rows: %d\n", len(t.TrainedCSR))
	fmt.Fprintf(out, "PHY PIE rows:     %d\n", len(t.PHYPIE))
	fmt.Fprintf(out, "Set-points:       %d\n", len(t.FSPCfg))
	for i, cfg := range t.FSPCfg {
		fmt.Fprintf(out, "  FSP_CFG[%d]: %d DDRC rows, %d MR rows, bypass %v\n", i, len(cfg.DDRC), len(cfg.MR), cfg.Bypass)
	}
	for i, msg := range t.FSPMsg {
		fmt.Fprintf(out, "  FSP_MSG[%d]: %d MT/s %s, %d PHY rows\n", i, msg.DRate, msg.FWType, len(msg.PHY))
	}
	fmt.Fprintf(out, "FSP table:        %v\n", t.FSPTable)

	if !timingTables {
		return nil
	}
	for _, tbl := range t.AdjustTables() {
		fmt.Fprintf(out, "\n%s (%s, %d rows):\n", tbl.Name, tbl.Kind, tbl.Len())
		for i := 0; i < tbl.Len(); i++ {
			fmt.Fprintf(out, "  [%3d] 0x%08x = 0x%08x\n", i, tbl.Reg(i), tbl.Val(i))
		}
	}
	return nil
}
